package mempool

import (
	"github.com/bsv-blockchain/chainstate/model"
	"github.com/lightningnetwork/lnd/clock"
)

type Options struct {
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

// WithClock replaces the wall clock, tests use lnd's test clock
func WithClock(c clock.Clock) Option {
	return func(o *Options) {
		o.clock = c
	}
}

// WithSubscriber registers an observer for TxAccepted and TxRemoved notifications
func WithSubscriber(s model.Subscriber) Option {
	return func(o *Options) {
		o.subscribers = append(o.subscribers, s)
	}
}
