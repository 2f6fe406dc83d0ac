package blockchain

import (
	"github.com/bsv-blockchain/chainstate/model"
	"github.com/bsv-blockchain/chainstate/services/mempool"
	"github.com/lightningnetwork/lnd/clock"
)

type Options struct {
	mempool     *mempool.TxMemPool
	clock       clock.Clock
	subscribers []model.Subscriber
}

// Option is a function that sets some option on the Options struct
type Option func(*Options)

func NewDefaultOptions() *Options {
	return &Options{}
}

func ProcessOptions(opts ...Option) *Options {
	options := NewDefaultOptions()
	for _, o := range opts {
		o(options)
	}

	return options
}

// WithMempool keeps the pool in step with the chain: mined transactions are removed
// on connect and the transactions of disconnected blocks are re-added.
func WithMempool(mp *mempool.TxMemPool) Option {
	return func(o *Options) {
		o.mempool = mp
	}
}

// WithClock replaces the wall clock used for tip age and flush intervals
func WithClock(c clock.Clock) Option {
	return func(o *Options) {
		o.clock = c
	}
}

// WithSubscriber registers an observer for block and tip notifications
func WithSubscriber(s model.Subscriber) Option {
	return func(o *Options) {
		o.subscribers = append(o.subscribers, s)
	}
}
