package blockchain

import (
	"context"
	"time"

	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/chainstate/model"
	blockchain_store "github.com/bsv-blockchain/chainstate/stores/blockchain"
)

// FlushMode controls how eagerly FlushStateToDisk writes.
type FlushMode int

const (
	// FlushNone only prunes when pruning is pending.
	FlushNone FlushMode = iota
	// FlushIfNeeded writes when the coin cache is over its budget.
	FlushIfNeeded
	// FlushPeriodic also writes when the cache is close to the budget or the write
	// and flush intervals have passed.
	FlushPeriodic
	// FlushAlways writes everything.
	FlushAlways
)

func (m FlushMode) String() string {
	switch m {
	case FlushNone:
		return "none"
	case FlushIfNeeded:
		return "if_needed"
	case FlushPeriodic:
		return "periodic"
	case FlushAlways:
		return "always"
	default:
		return "unknown"
	}
}

// FlushStateToDisk persists the block files, the block index and the coin cache as
// far as mode requires.
func (c *ChainState) FlushStateToDisk(ctx context.Context, mode FlushMode) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.flushStateToDisk(ctx, mode)
}

// PruneAndFlush prunes what the prune target allows and writes the result.
func (c *ChainState) PruneAndFlush(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.checkForPruning.Store(true)

	return c.flushStateToDisk(ctx, FlushNone)
}

// flushStateToDisk writes in two steps. The block files are synced and the block
// index with the file statistics is written first, then the coin cache is flushed. The
// coin database therefore never references a block the index does not know, and the
// coin write is the point at which the new tip becomes durable.
//
// A failed write leaves memory ahead of disk, so the error is fatal and halts the
// chain state.
func (c *ChainState) flushStateToDisk(ctx context.Context, mode FlushMode) error {
	return c.abort(ctx, c.writeState(ctx, mode))
}

func (c *ChainState) writeState(ctx context.Context, mode FlushMode) error {
	if c.fsm.Current() == StateVerifying && mode != FlushAlways {
		return nil
	}

	var pruneFiles []int32

	flushForPrune := false

	if c.settings.BlockChain.PruneTargetBytes > 0 && c.checkForPruning.Load() {
		pruneFiles = c.findFilesToPrune(c.params.PruneAfterHeight)
		c.checkForPruning.Store(false)

		if len(pruneFiles) > 0 {
			flushForPrune = true

			if !c.havePruned.Load() {
				if err := c.store.SetFlag(ctx, blockchain_store.FlagPrunedBlockFiles, true); err != nil {
					return errors.NewFatalError("[ChainState] failed to write pruned flag", err)
				}

				c.havePruned.Store(true)
			}
		}
	}

	now := c.clock.Now()

	if c.lastWrite.Load().IsZero() {
		c.lastWrite.Store(now)
	}

	if c.lastFlush.Load().IsZero() {
		c.lastFlush.Store(now)
	}

	cacheSize := int64(c.coinsTip.DynamicMemoryUsage())
	budget := c.settings.UtxoStore.DBCacheBytes

	cacheLarge := mode == FlushPeriodic && cacheSize*10/9 > budget
	cacheCritical := mode == FlushIfNeeded && cacheSize > budget
	periodicWrite := mode == FlushPeriodic && now.Sub(c.lastWrite.Load()) > c.settings.BlockChain.DatabaseWriteInterval
	periodicFlush := mode == FlushPeriodic && now.Sub(c.lastFlush.Load()) > c.settings.BlockChain.DatabaseFlushInterval

	fullFlush := mode == FlushAlways || cacheLarge || cacheCritical || periodicFlush || flushForPrune

	if fullFlush || periodicWrite {
		if err := c.writeBlockIndex(ctx); err != nil {
			return err
		}

		if flushForPrune {
			c.files.UnlinkFiles(pruneFiles)
			prometheusChainStatePrunedFiles.Add(float64(len(pruneFiles)))
		}

		c.lastWrite.Store(now)
		prometheusChainStateFlushes.WithLabelValues("index").Inc()
	}

	if fullFlush {
		start := time.Now()
		entries := c.coinsTip.CacheSize()

		if err := c.coinsTip.Flush(ctx); err != nil {
			return errors.NewFatalError("[ChainState] failed to write coin database", err)
		}

		c.lastFlush.Store(now)
		prometheusChainStateFlushes.WithLabelValues("coins").Inc()
		prometheusChainStateFlushDuration.Observe(time.Since(start).Seconds())

		c.logger.Debugf("[ChainState] flushed %d coin cache entries in %s (mode %s)", entries, time.Since(start), mode)
	}

	prometheusChainStateCoinCacheBytes.Set(float64(c.coinsTip.DynamicMemoryUsage()))

	return nil
}

// writeBlockIndex syncs the block files and writes every changed index entry and file
// statistic in one batch. On failure the changes are queued again for the next try.
func (c *ChainState) writeBlockIndex(ctx context.Context) error {
	if err := c.files.FlushFiles(false); err != nil {
		return errors.NewFatalError("[ChainState] failed to sync block files", err)
	}

	files, lastFile := c.files.TakeDirty()
	blocks := c.tree.TakeDirty()

	batch := &blockchain_store.Batch{
		FileInfo: files,
		LastFile: lastFile,
		Blocks:   make([]*model.DiskBlockIndex, 0, len(blocks)),
	}

	for _, bi := range blocks {
		batch.Blocks = append(batch.Blocks, c.tree.DiskIndex(bi))
	}

	if err := c.store.WriteBatchSync(ctx, batch); err != nil {
		c.files.RestoreDirty(files)
		c.tree.RestoreDirty(blocks)

		return errors.NewFatalError("[ChainState] failed to write block index", err)
	}

	return nil
}
