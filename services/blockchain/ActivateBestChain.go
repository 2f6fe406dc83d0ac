package blockchain

import (
	"context"
	"math"
	"math/big"
	"time"

	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/chainstate/model"
	"github.com/bsv-blockchain/chainstate/services/blockvalidation"
	"github.com/bsv-blockchain/chainstate/services/mempool"
	"github.com/bsv-blockchain/chainstate/stores/utxo"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
)

// maxConnectBatch is how far ahead of the fork point blocks are looked up at once.
const maxConnectBatch = 32

// ActivateBestChain moves the active chain to the valid candidate with the most work.
// The chain lock is released between steps so other callers are not starved during
// long reorganisations. block, when set, is used instead of reading it back from
// disk if it turns out to be the new tip.
func (c *ChainState) ActivateBestChain(ctx context.Context, block *model.Block) error {
	for {
		if err := ctx.Err(); err != nil {
			return errors.NewContextCanceledError("[ChainState] ActivateBestChain interrupted", err)
		}

		if err := c.checkNotAborted(); err != nil {
			return err
		}

		c.mu.Lock()

		oldTip := c.chain.Tip()

		mostWork := c.findMostWorkChain()
		if mostWork == nil || mostWork == oldTip {
			c.mu.Unlock()
			break
		}

		var connect *model.Block
		if block != nil && mostWork.Hash.IsEqual(block.Hash()) {
			connect = block
		}

		_, err := c.activateBestChainStep(ctx, mostWork, connect)
		err = c.abort(ctx, err)

		newTip := c.chain.Tip()
		initialDownload := c.isInitialBlockDownload()

		c.mu.Unlock()

		if err != nil {
			return err
		}

		if newTip != oldTip {
			hash := newTip.Hash
			c.notify(&model.Notification{
				Type:            model.NotificationTypeUpdatedBlockTip,
				Hash:            &hash,
				Height:          newTip.Height,
				InitialDownload: initialDownload,
			})
		}

		if newTip == mostWork {
			break
		}
	}

	return c.FlushStateToDisk(ctx, FlushPeriodic)
}

// findMostWorkChain returns the candidate with the most work whose whole branch back
// to the active chain is valid and stored. Candidates found to be unusable are
// removed on the way: failed branches get their descendants marked failed, branches
// with missing data wait in unlinked until the data arrives.
func (c *ChainState) findMostWorkChain() *model.BlockIndex {
	for {
		candidate := c.bestCandidate()
		if candidate == nil {
			return nil
		}

		invalidAncestor := false

		for walk := candidate; walk != nil && !c.chain.Contains(walk); walk = c.tree.Parent(walk) {
			failed := walk.Failed()
			missingData := !walk.HaveData()

			if !failed && !missingData {
				continue
			}

			if failed && (c.bestInvalid == nil || candidate.ChainWork.Cmp(c.bestInvalid.ChainWork) > 0) {
				c.bestInvalid = candidate
			}

			for drop := candidate; drop != walk; drop = c.tree.Parent(drop) {
				if failed {
					drop.Status |= model.StatusFailedChild
					c.tree.MarkDirty(drop)
				} else {
					parent := c.tree.Parent(drop)
					c.unlinked[parent.ID] = append(c.unlinked[parent.ID], drop.ID)
				}

				delete(c.candidates, drop.ID)
			}

			delete(c.candidates, walk.ID)

			invalidAncestor = true

			break
		}

		if !invalidAncestor {
			return candidate
		}
	}
}

func (c *ChainState) bestCandidate() *model.BlockIndex {
	var best *model.BlockIndex

	for id := range c.candidates {
		bi := c.tree.Get(id)
		if best == nil || model.WorkLess(best, bi) {
			best = bi
		}
	}

	return best
}

// pruneBlockIndexCandidates drops candidates that are worse than the tip. The tip
// itself stays.
func (c *ChainState) pruneBlockIndexCandidates() {
	tip := c.chain.Tip()
	if tip == nil {
		return
	}

	for id := range c.candidates {
		if model.WorkLess(c.tree.Get(id), tip) {
			delete(c.candidates, id)
		}
	}
}

// activateBestChainStep makes progress towards mostWork: it disconnects back to the
// fork point and connects at most one batch of blocks. It stops early once the tip has
// more work than when it started so the caller can release the lock. The bool result
// is true when an invalid block was found on the way.
func (c *ChainState) activateBestChainStep(ctx context.Context, mostWork *model.BlockIndex, block *model.Block) (bool, error) {
	oldTip := c.chain.Tip()
	fork := c.chain.FindFork(mostWork)

	disconnected := 0

	for tip := c.chain.Tip(); tip != nil && tip != fork; tip = c.chain.Tip() {
		if err := c.disconnectTip(ctx); err != nil {
			return false, err
		}

		disconnected++
	}

	if disconnected > 0 {
		prometheusChainStateReorgs.Inc()
		c.logger.Infof("[ChainState] reorganisation: disconnected %d blocks back to %s at height %d", disconnected, fork.Hash, fork.Height)
	}

	invalidFound := false

	height := int32(-1)
	if fork != nil {
		height = fork.Height
	}

connectLoop:
	for height != mostWork.Height {
		target := min(height+maxConnectBatch, mostWork.Height)

		toConnect := make([]*model.BlockIndex, 0, target-height)
		for walk := c.tree.Ancestor(mostWork, target); walk != nil && walk.Height > height; walk = c.tree.Parent(walk) {
			toConnect = append(toConnect, walk)
		}

		height = target

		for i := len(toConnect) - 1; i >= 0; i-- {
			bi := toConnect[i]

			var connectBlock *model.Block
			if bi == mostWork {
				connectBlock = block
			}

			if err := c.connectTip(ctx, bi, connectBlock); err != nil {
				if !errors.IsInvalid(err) {
					return false, err
				}

				if !errors.IsCorruptionPossible(err) {
					c.invalidChainFound(toConnect[0])
				}

				invalidFound = true

				break connectLoop
			}

			c.pruneBlockIndexCandidates()

			if oldTip == nil || c.chain.Tip().ChainWork.Cmp(oldTip.ChainWork) > 0 {
				break connectLoop
			}
		}
	}

	if disconnected > 0 && c.mempool != nil {
		if err := c.mempool.RemoveForReorg(ctx, c.chainTip(), c.params.CoinbaseMaturity); err != nil {
			return invalidFound, err
		}

		c.mempool.LimitSize(c.coinsTip)
	}

	c.checkForkWarningConditions()

	return invalidFound, nil
}

// connectTip connects bi, a child of the tip, to the active chain.
func (c *ChainState) connectTip(ctx context.Context, bi *model.BlockIndex, block *model.Block) error {
	start := time.Now()

	if block == nil {
		var err error
		if block, err = c.files.ReadBlock(bi.DataPosition()); err != nil {
			return errors.NewFatalError("[ChainState] failed to read block %s", bi.Hash, err)
		}
	}

	_, err := c.validator.ConnectBlock(ctx, c.tree, block, bi, c.coinsTip, blockvalidation.ConnectOptions{
		WriteUndo: func(undo *model.BlockUndo) error {
			return c.writeUndo(bi, undo)
		},
	})
	if err != nil {
		if errors.IsInvalid(err) {
			c.invalidBlockFound(bi, err)
		}

		c.logger.Errorf("[ChainState] ConnectTip: ConnectBlock %s failed: %v", bi.Hash, err)

		return err
	}

	if err = c.flushStateToDisk(ctx, FlushIfNeeded); err != nil {
		return err
	}

	if c.mempool != nil {
		c.mempool.RemoveForBlock(block.Transactions, bi.Height)
	}

	c.chain.SetTip(bi)
	c.updateTip(bi)

	hash := bi.Hash
	c.notify(&model.Notification{
		Type:   model.NotificationTypeBlockConnected,
		Hash:   &hash,
		Height: bi.Height,
		Block:  block,
	})

	prometheusChainStateConnectTip.Observe(float64(time.Since(start).Microseconds()) / 1_000_000)
	prometheusChainStateBlockSize.Observe(float64(block.Size()))

	return nil
}

// writeUndo stores the undo data of bi next to its block, once.
func (c *ChainState) writeUndo(bi *model.BlockIndex, undo *model.BlockUndo) error {
	if !bi.HaveUndo() {
		pos, err := c.files.WriteUndo(undo, bi.File, c.tree.PrevHash(bi))
		if err != nil {
			return err
		}

		bi.UndoPos = pos.Pos
		bi.Status |= model.StatusHaveUndo
	}

	bi.RaiseValidity(model.StatusValidScripts)
	c.tree.MarkDirty(bi)

	return nil
}

// disconnectTip removes the tip from the active chain and returns the transactions of
// the block to the mempool where they still fit.
func (c *ChainState) disconnectTip(ctx context.Context) error {
	start := time.Now()

	tip := c.chain.Tip()
	parent := c.tree.Parent(tip)

	block, err := c.files.ReadBlock(tip.DataPosition())
	if err != nil {
		return errors.NewFatalError("[ChainState] failed to read block %s", tip.Hash, err)
	}

	undo, err := c.files.ReadUndo(tip.UndoPosition(), &parent.Hash)
	if err != nil {
		return errors.NewFatalError("[ChainState] failed to read undo data of %s", tip.Hash, err)
	}

	view := utxo.NewCoinsViewCache(c.coinsTip)

	clean, err := c.validator.DisconnectBlock(ctx, c.tree, block, tip, undo, view)
	if err != nil {
		return errors.NewFatalError("[ChainState] DisconnectTip: DisconnectBlock %s failed", tip.Hash, err)
	}

	if !clean {
		return errors.NewChainStateCorruptedError("[ChainState] DisconnectTip: block %s does not match the coin database", tip.Hash)
	}

	if err = view.Flush(ctx); err != nil {
		return errors.NewFatalError("[ChainState] failed to apply disconnect of %s", tip.Hash, err)
	}

	if err = c.flushStateToDisk(ctx, FlushIfNeeded); err != nil {
		return err
	}

	c.chain.SetTip(parent)
	c.updateTip(parent)

	if c.mempool != nil {
		c.resurrectTransactions(ctx, block)
	}

	hash := tip.Hash
	c.notify(&model.Notification{
		Type:   model.NotificationTypeBlockDisconnected,
		Hash:   &hash,
		Height: tip.Height,
		Block:  block,
	})

	prometheusChainStateDisconnectTip.Observe(float64(time.Since(start).Microseconds()) / 1_000_000)

	return nil
}

// resurrectTransactions re-admits the transactions of a disconnected block. Those that
// no longer fit are dropped together with their pooled spenders.
func (c *ChainState) resurrectTransactions(ctx context.Context, block *model.Block) {
	tip := c.chainTip()

	readded := make([]chainhash.Hash, 0, len(block.Transactions))

	for _, tx := range block.Transactions {
		if tx.IsCoinbase() {
			c.mempool.RemoveRecursive(tx, mempool.RemovalReorg)
			continue
		}

		if _, err := c.mempool.AcceptToMemoryPool(ctx, tx, tip, mempool.AcceptOptions{OverrideMempoolLimit: true}); err != nil {
			c.logger.Debugf("[ChainState] transaction %s of disconnected block not re-added: %v", tx.TxID(), err)
			c.mempool.RemoveRecursive(tx, mempool.RemovalReorg)

			continue
		}

		readded = append(readded, *tx.TxIDChainHash())
	}

	c.mempool.UpdateTransactionsFromBlock(readded)
}

// invalidBlockFound marks bi failed unless the error could be caused by a corrupted
// copy of the block.
func (c *ChainState) invalidBlockFound(bi *model.BlockIndex, err error) {
	if errors.IsCorruptionPossible(err) {
		return
	}

	bi.Status |= model.StatusFailedValid
	c.tree.MarkDirty(bi)
	delete(c.candidates, bi.ID)

	prometheusChainStateInvalidBlocks.Inc()

	c.invalidChainFound(bi)
}

// invalidChainFound records bi as the best invalid block when it has more work than
// the previous one.
func (c *ChainState) invalidChainFound(bi *model.BlockIndex) {
	if c.bestInvalid == nil || bi.ChainWork.Cmp(c.bestInvalid.ChainWork) > 0 {
		c.bestInvalid = bi
	}

	c.logger.Warnf("[ChainState] invalid block=%s height=%d log2_work=%.8g date=%s",
		bi.Hash, bi.Height, log2Work(bi.ChainWork), time.Unix(bi.BlockTime(), 0).UTC().Format(time.RFC3339))

	if tip := c.chain.Tip(); tip != nil {
		c.logger.Warnf("[ChainState] current best=%s height=%d log2_work=%.8g date=%s",
			tip.Hash, tip.Height, log2Work(tip.ChainWork), time.Unix(tip.BlockTime(), 0).UTC().Format(time.RFC3339))
	}

	c.checkForkWarningConditions()
}

// checkForkWarningConditions warns when an invalid chain has clearly more work than
// the active one, which means either this node or most of the network is broken.
func (c *ChainState) checkForkWarningConditions() {
	if c.isInitialBlockDownload() {
		return
	}

	tip := c.chain.Tip()
	if tip == nil || c.bestInvalid == nil {
		return
	}

	margin := new(big.Int).Mul(model.CalcWork(tip.Bits), big.NewInt(6))
	if c.bestInvalid.ChainWork.Cmp(new(big.Int).Add(tip.ChainWork, margin)) > 0 {
		c.logger.Warnf("[ChainState] found invalid chain at least ~6 blocks longer than our best chain, we may need to upgrade or other nodes may need to")
	}
}

// updateTip logs the new tip and warns when many recent blocks carry versions this
// node does not know.
func (c *ChainState) updateTip(tip *model.BlockIndex) {
	prometheusChainStateHeight.Set(float64(tip.Height))
	prometheusChainStateCoinCacheBytes.Set(float64(c.coinsTip.DynamicMemoryUsage()))

	if !c.isInitialBlockDownload() {
		unexpected := 0

		for walk, i := tip, 0; walk != nil && i < 100; walk, i = c.tree.Parent(walk), i+1 {
			expected := c.validator.ComputeBlockVersion(c.tree, c.tree.Parent(walk))
			if walk.Version > blockvalidation.VersionBitsTopBits && walk.Version&^expected != 0 {
				unexpected++
			}
		}

		if unexpected > 50 {
			c.logger.Warnf("[ChainState] %d of the last 100 blocks have unexpected versions, unknown rules may be in effect", unexpected)
		}
	}

	c.logger.Debugf("[ChainState] UpdateTip: new best=%s height=%d version=0x%08x log2_work=%.8g tx=%d date=%s cache=%.1fMiB(%dtxo)",
		tip.Hash, tip.Height, tip.Version, log2Work(tip.ChainWork), tip.ChainTxCount,
		time.Unix(tip.BlockTime(), 0).UTC().Format(time.RFC3339),
		float64(c.coinsTip.DynamicMemoryUsage())/(1<<20), c.coinsTip.CacheSize())
}

func log2Work(work *big.Int) float64 {
	if work.Sign() <= 0 {
		return 0
	}

	f, _ := new(big.Float).SetInt(work).Float64()

	return math.Log2(f)
}
