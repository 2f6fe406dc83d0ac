package daemon

import (
	"github.com/bsv-blockchain/chainstate/model"
	blockchain_store "github.com/bsv-blockchain/chainstate/stores/blockchain"
	"github.com/bsv-blockchain/chainstate/stores/utxo"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/ticker"
)

// Option is a functional option type for configuring the Engine.
type Option func(*Engine)

// WithClock replaces the wall clock used by the chain state and the mempool.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithSubscriber registers an observer for block, transaction and misbehavior events.
func WithSubscriber(s model.Subscriber) Option {
	return func(e *Engine) {
		e.subscribers = append(e.subscribers, s)
	}
}

// WithFlushTicker drives the periodic flush from t instead of a ticker firing every
// blockchain_flushCheckInterval.
func WithFlushTicker(t ticker.Ticker) Option {
	return func(e *Engine) {
		e.flushTicker = t
	}
}

// WithExpiryTicker drives the mempool expiry from t instead of a ticker firing every
// mempool_expiryCheckInterval.
func WithExpiryTicker(t ticker.Ticker) Option {
	return func(e *Engine) {
		e.expiryTicker = t
	}
}

// WithCoinsView uses coins as the coin database instead of opening the configured
// backend. The engine does not close it.
func WithCoinsView(coins utxo.CoinsView) Option {
	return func(e *Engine) {
		e.stores.coins = coins
		e.stores.externalCoins = true
	}
}

// WithBlockIndexStore uses store for the block index instead of opening index.db in
// the data folder. The engine does not close it.
func WithBlockIndexStore(store blockchain_store.Store) Option {
	return func(e *Engine) {
		e.stores.index = store
		e.stores.externalIndex = true
	}
}
