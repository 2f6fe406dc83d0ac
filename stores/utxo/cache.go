package utxo

import (
	"context"
	"sync"

	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/chainstate/model"
	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
)

// EntryFlags track how a cached coin relates to the parent view.
type EntryFlags uint8

const (
	// Dirty means the entry differs from the parent and must be written on flush.
	Dirty EntryFlags = 1 << iota
	// Fresh means the parent has no unspent version of the coin, so a spend can simply
	// drop the entry instead of writing a tombstone.
	Fresh
)

// CacheEntry is a coin, or a tombstone when Coin is nil.
type CacheEntry struct {
	Coin  *model.Coin
	Flags EntryFlags
}

func (e *CacheEntry) IsSpent() bool {
	return e.Coin == nil
}

// approximate per entry map overhead: key, pointer and entry struct
const cacheEntryOverhead = model.OutpointSize + 8 + 24

func (e *CacheEntry) memoryUsage() int {
	if e.Coin == nil {
		return cacheEntryOverhead
	}

	return cacheEntryOverhead + e.Coin.DynamicMemoryUsage()
}

// CoinsViewCache buffers reads and writes on top of a parent view. Changes reach the
// parent only on Flush, in a single BatchWrite.
type CoinsViewCache struct {
	mu          sync.Mutex
	base        CoinsView
	cacheCoins  map[model.Outpoint]*CacheEntry
	bestBlock   chainhash.Hash
	hasBest     bool
	cachedUsage int
}

func NewCoinsViewCache(base CoinsView) *CoinsViewCache {
	return &CoinsViewCache{
		base:       base,
		cacheCoins: make(map[model.Outpoint]*CacheEntry),
	}
}

// fetchCoin returns the cache entry for the outpoint, pulling it from the parent when
// it is not yet cached. Returns nil when neither layer knows the coin.
func (c *CoinsViewCache) fetchCoin(ctx context.Context, outpoint model.Outpoint) (*CacheEntry, error) {
	if entry, ok := c.cacheCoins[outpoint]; ok {
		return entry, nil
	}

	coin, err := c.base.GetCoin(ctx, outpoint)
	if err != nil {
		return nil, err
	}

	if coin == nil {
		return nil, nil
	}

	entry := &CacheEntry{Coin: coin}
	c.cacheCoins[outpoint] = entry
	c.cachedUsage += entry.memoryUsage()

	return entry, nil
}

func (c *CoinsViewCache) GetCoin(ctx context.Context, outpoint model.Outpoint) (*model.Coin, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, err := c.fetchCoin(ctx, outpoint)
	if err != nil || entry == nil {
		return nil, err
	}

	return entry.Coin, nil
}

func (c *CoinsViewCache) HaveCoin(ctx context.Context, outpoint model.Outpoint) (bool, error) {
	coin, err := c.GetCoin(ctx, outpoint)
	if err != nil {
		return false, err
	}

	return coin != nil, nil
}

// HaveCoinInCache checks only this layer and never touches the parent.
func (c *CoinsViewCache) HaveCoinInCache(outpoint model.Outpoint) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.cacheCoins[outpoint]

	return ok && !entry.IsSpent()
}

// AddCoin inserts an unspent coin. Unless possibleOverwrite is set, adding on top of
// an unspent coin is an error: that only happens with duplicate transaction ids.
func (c *CoinsViewCache) AddCoin(outpoint model.Outpoint, coin *model.Coin, possibleOverwrite bool) error {
	if coin == nil {
		return errors.NewInvalidArgumentError("cannot add a nil coin for %s", outpoint)
	}

	if coin.IsUnspendable() {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.cacheCoins[outpoint]
	if !ok {
		entry = &CacheEntry{}
		c.cacheCoins[outpoint] = entry
	} else {
		c.cachedUsage -= entry.memoryUsage()
	}

	fresh := false

	if !possibleOverwrite {
		if !entry.IsSpent() {
			c.cachedUsage += entry.memoryUsage()
			return errors.NewUtxoExistsError("adding new coin %s that replaces an unspent entry", outpoint)
		}

		// a spent entry that is not dirty matches the parent, which then has no
		// unspent version either
		fresh = entry.Flags&Dirty == 0
	}

	entry.Coin = coin
	entry.Flags |= Dirty
	if fresh {
		entry.Flags |= Fresh
	}

	c.cachedUsage += entry.memoryUsage()

	return nil
}

// AddCoins adds every output of tx. Coinbase outputs may overwrite, matching the
// historical duplicate coinbase transactions.
func (c *CoinsViewCache) AddCoins(ctx context.Context, tx *bt.Tx, height uint32, check bool) error {
	txHash := tx.TxIDChainHash()
	isCoinbase := tx.IsCoinbase()

	for i, out := range tx.Outputs {
		outpoint := model.NewOutpoint(txHash, uint32(i)) //nolint:gosec // output count is bounded by block size

		overwrite := isCoinbase
		if check && !overwrite {
			have, err := c.HaveCoin(ctx, outpoint)
			if err != nil {
				return err
			}

			overwrite = have
		}

		if err := c.AddCoin(outpoint, model.NewCoinFromOutput(out, height, isCoinbase), overwrite); err != nil {
			return err
		}
	}

	return nil
}

// SpendCoin tombstones the coin and returns it so the caller can record undo data.
// Returns nil when the coin does not exist or is already spent.
func (c *CoinsViewCache) SpendCoin(ctx context.Context, outpoint model.Outpoint) (*model.Coin, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, err := c.fetchCoin(ctx, outpoint)
	if err != nil || entry == nil || entry.IsSpent() {
		return nil, err
	}

	spent := entry.Coin

	c.cachedUsage -= entry.memoryUsage()

	if entry.Flags&Fresh != 0 {
		delete(c.cacheCoins, outpoint)
		return spent, nil
	}

	entry.Coin = nil
	entry.Flags |= Dirty
	c.cachedUsage += entry.memoryUsage()

	return spent, nil
}

// Uncache drops a clean entry, used to release memory after a rejected transaction.
func (c *CoinsViewCache) Uncache(outpoint model.Outpoint) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.cacheCoins[outpoint]; ok && entry.Flags == 0 {
		c.cachedUsage -= entry.memoryUsage()
		delete(c.cacheCoins, outpoint)
	}
}

func (c *CoinsViewCache) GetBestBlock(ctx context.Context) (chainhash.Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.hasBest {
		best, err := c.base.GetBestBlock(ctx)
		if err != nil {
			return chainhash.Hash{}, err
		}

		c.bestBlock = best
		c.hasBest = true
	}

	return c.bestBlock, nil
}

func (c *CoinsViewCache) SetBestBlock(hash chainhash.Hash) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.bestBlock = hash
	c.hasBest = true
}

// BatchWrite merges a child cache into this one.
func (c *CoinsViewCache) BatchWrite(_ context.Context, entries map[model.Outpoint]*CacheEntry, bestBlock chainhash.Hash) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for outpoint, child := range entries {
		if child.Flags&Dirty == 0 {
			continue
		}

		parent, ok := c.cacheCoins[outpoint]
		if !ok {
			// a fresh tombstone never needs to reach a layer that never saw the coin
			if child.Flags&Fresh != 0 && child.IsSpent() {
				continue
			}

			entry := &CacheEntry{Coin: child.Coin, Flags: Dirty}
			if child.Flags&Fresh != 0 {
				entry.Flags |= Fresh
			}

			c.cacheCoins[outpoint] = entry
			c.cachedUsage += entry.memoryUsage()

			continue
		}

		if child.Flags&Fresh != 0 && !parent.IsSpent() {
			return errors.NewChainStateCorruptedError("batch write of %s", outpoint, ErrFreshMisapplied)
		}

		c.cachedUsage -= parent.memoryUsage()

		if parent.Flags&Fresh != 0 && child.IsSpent() {
			delete(c.cacheCoins, outpoint)
			continue
		}

		parent.Coin = child.Coin
		parent.Flags |= Dirty
		c.cachedUsage += parent.memoryUsage()
	}

	c.bestBlock = bestBlock
	c.hasBest = true

	return nil
}

// Flush pushes every change to the parent atomically and empties the cache. On error
// the cache keeps its contents.
func (c *CoinsViewCache) Flush(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.hasBest {
		return errors.NewProcessingError("cannot flush a coins cache without a best block")
	}

	if err := c.base.BatchWrite(ctx, c.cacheCoins, c.bestBlock); err != nil {
		return err
	}

	c.cacheCoins = make(map[model.Outpoint]*CacheEntry)
	c.cachedUsage = 0

	return nil
}

func (c *CoinsViewCache) EstimateSize(ctx context.Context) (uint64, error) {
	return c.base.EstimateSize(ctx)
}

// CacheSize returns the number of cached entries, tombstones included.
func (c *CoinsViewCache) CacheSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.cacheCoins)
}

// DynamicMemoryUsage is the approximate heap used by the cached entries.
func (c *CoinsViewCache) DynamicMemoryUsage() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.cachedUsage
}

// HaveInputs reports whether every input of a non-coinbase tx is unspent in this view.
func (c *CoinsViewCache) HaveInputs(ctx context.Context, tx *bt.Tx) (bool, error) {
	if tx.IsCoinbase() {
		return true, nil
	}

	for _, in := range tx.Inputs {
		have, err := c.HaveCoin(ctx, model.InputOutpoint(in))
		if err != nil || !have {
			return false, err
		}
	}

	return true, nil
}

// GetValueIn sums the values of the coins spent by tx. All inputs must be present.
func (c *CoinsViewCache) GetValueIn(ctx context.Context, tx *bt.Tx) (uint64, error) {
	if tx.IsCoinbase() {
		return 0, nil
	}

	var total uint64

	for _, in := range tx.Inputs {
		outpoint := model.InputOutpoint(in)

		coin, err := c.GetCoin(ctx, outpoint)
		if err != nil {
			return 0, err
		}

		if coin == nil {
			return 0, errors.NewUtxoNotFoundError("input %s not found", outpoint)
		}

		total += coin.Value
	}

	return total, nil
}
