package memory

import (
	"context"
	"sync"

	"github.com/bsv-blockchain/chainstate/model"
	utxostore "github.com/bsv-blockchain/chainstate/stores/utxo"
	"github.com/bsv-blockchain/chainstate/ulogger"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/dolthub/swiss"
)

// Memory is a coin store held entirely in a swiss map. It is the base view for tests
// and for nodes running without a data folder.
type Memory struct {
	logger    ulogger.Logger
	mu        sync.RWMutex
	m         *swiss.Map[model.Outpoint, *model.Coin]
	bestBlock chainhash.Hash
	diskSize  uint64
}

func New(logger ulogger.Logger) *Memory {
	return &Memory{
		logger: logger,
		// the swiss map uses a lot less memory than the standard map
		m: swiss.NewMap[model.Outpoint, *model.Coin](1024),
	}
}

func (m *Memory) GetCoin(_ context.Context, outpoint model.Outpoint) (*model.Coin, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	coin, ok := m.m.Get(outpoint)
	if !ok {
		return nil, nil
	}

	return coin, nil
}

func (m *Memory) HaveCoin(_ context.Context, outpoint model.Outpoint) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.m.Has(outpoint), nil
}

func (m *Memory) GetBestBlock(_ context.Context) (chainhash.Hash, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.bestBlock, nil
}

func (m *Memory) BatchWrite(_ context.Context, entries map[model.Outpoint]*utxostore.CacheEntry, bestBlock chainhash.Hash) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var written, deleted int

	for outpoint, entry := range entries {
		if entry.Flags&utxostore.Dirty == 0 {
			continue
		}

		if old, ok := m.m.Get(outpoint); ok {
			m.diskSize -= uint64(model.OutpointSize + len(old.Bytes())) //nolint:gosec // sizes are positive
		}

		if entry.IsSpent() {
			m.m.Delete(outpoint)
			deleted++

			continue
		}

		m.m.Put(outpoint, entry.Coin)
		m.diskSize += uint64(model.OutpointSize + len(entry.Coin.Bytes())) //nolint:gosec // sizes are positive
		written++
	}

	m.bestBlock = bestBlock

	m.logger.Debugf("[Memory] batch write: %d coins written, %d deleted, best block %s", written, deleted, bestBlock)

	return nil
}

func (m *Memory) EstimateSize(_ context.Context) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.diskSize, nil
}

func (m *Memory) ForEach(ctx context.Context, fn func(outpoint model.Outpoint, coin *model.Coin) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var err error

	m.m.Iter(func(outpoint model.Outpoint, coin *model.Coin) bool {
		if err = ctx.Err(); err != nil {
			return true
		}

		err = fn(outpoint, coin)

		return err != nil
	})

	return err
}

// Len returns the number of unspent coins.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.m.Count()
}
