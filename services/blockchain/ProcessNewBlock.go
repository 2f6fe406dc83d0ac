package blockchain

import (
	"context"

	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/chainstate/model"
	safeconversion "github.com/bsv-blockchain/go-safe-conversion"
)

// ProcessNewBlock checks a block received from peerID, stores it when it is worth
// keeping and moves the active chain to the best valid tip. Blocks that were not
// asked for are only stored when they have more work than the tip; force treats the
// block as requested. diskPos is set when the block already sits in a block file.
//
// The returned error carries the DoS score of the rule the block broke, if any.
func (c *ChainState) ProcessNewBlock(ctx context.Context, block *model.Block, peerID string, force bool, diskPos *model.DiskPos) error {
	if err := c.checkNotAborted(); err != nil {
		return err
	}

	if err := c.validator.CheckBlock(block, true, true); err != nil {
		c.logger.Warnf("[ChainState] ProcessNewBlock: block %s from peer %q failed CheckBlock: %v", block.Hash(), peerID, err)
		return err
	}

	c.mu.Lock()
	_, _, err := c.acceptBlock(ctx, block, force, diskPos, true)
	err = c.abort(ctx, err)
	c.mu.Unlock()

	if err != nil {
		c.logger.Warnf("[ChainState] ProcessNewBlock: AcceptBlock of %s from peer %q failed: %v", block.Hash(), peerID, err)
		return err
	}

	return c.ActivateBestChain(ctx, block)
}

// AcceptBlockHeader adds a header to the block tree after the header checks.
func (c *ChainState) AcceptBlockHeader(ctx context.Context, header *model.BlockHeader) (*model.BlockIndex, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	bi, err := c.acceptBlockHeader(ctx, header)

	return snapshot(bi), err
}

func (c *ChainState) acceptBlockHeader(_ context.Context, header *model.BlockHeader) (*model.BlockIndex, error) {
	hash := header.Hash()

	if !hash.IsEqual(c.params.GenesisHash) {
		if existing := c.tree.Lookup(hash); existing != nil {
			if existing.Failed() {
				return existing, errors.NewBlockInvalidError(0, errors.RejectDuplicate, "duplicate: block %s is marked invalid", hash)
			}

			return existing, nil
		}

		if err := c.validator.CheckBlockHeader(header, true); err != nil {
			return nil, err
		}

		parent := c.tree.Lookup(header.HashPrevBlock)
		if parent == nil {
			return nil, errors.NewBlockInvalidError(10, errors.RejectInvalid, "bad-prevblk: previous block %s of %s not found", header.HashPrevBlock, hash)
		}

		if parent.Failed() {
			return nil, errors.NewBlockInvalidError(100, errors.RejectInvalid, "bad-prevblk: previous block %s of %s is invalid", header.HashPrevBlock, hash)
		}

		if err := c.validator.CheckIndexAgainstCheckpoint(c.tree, parent, hash); err != nil {
			return nil, err
		}

		if err := c.validator.ContextualCheckBlockHeader(c.tree, header, parent); err != nil {
			return nil, err
		}
	}

	return c.addToBlockIndex(header), nil
}

// addToBlockIndex inserts a checked header and tracks the best known header.
func (c *ChainState) addToBlockIndex(header *model.BlockHeader) *model.BlockIndex {
	bi, existed := c.tree.AddHeader(header)
	if existed {
		return bi
	}

	bi.RaiseValidity(model.StatusValidTree)
	c.tree.MarkDirty(bi)

	if c.bestHeader == nil || model.WorkLess(c.bestHeader, bi) {
		c.bestHeader = bi
	}

	return bi
}

// acceptBlock stores a block and records its transactions in the tree. The second
// return value is true when the block data was new. checked skips CheckBlock when the
// caller already ran it.
func (c *ChainState) acceptBlock(ctx context.Context, block *model.Block, requested bool, diskPos *model.DiskPos,
	checked bool) (*model.BlockIndex, bool, error) {
	bi, err := c.acceptBlockHeader(ctx, block.Header)
	if err != nil {
		return bi, false, err
	}

	if bi.HaveData() {
		return bi, false, nil
	}

	tip := c.chain.Tip()
	hasMoreWork := tip == nil || bi.ChainWork.Cmp(tip.ChainWork) > 0
	tooFarAhead := bi.Height > c.chain.Height()+MinBlocksToKeep

	if !requested {
		// a block with a tx count had its data before and was pruned
		if bi.TxCount != 0 || !hasMoreWork || tooFarAhead {
			return bi, false, nil
		}
	}

	if !checked {
		err = c.validator.CheckBlock(block, true, true)
	}

	if err == nil {
		err = c.validator.ContextualCheckBlock(c.tree, block, c.tree.Parent(bi))
	}

	if err != nil {
		if errors.IsInvalid(err) && !errors.IsCorruptionPossible(err) {
			bi.Status |= model.StatusFailedValid
			c.tree.MarkDirty(bi)
			prometheusChainStateInvalidBlocks.Inc()
		}

		return bi, false, err
	}

	var pos model.DiskPos

	if diskPos != nil {
		size, sErr := safeconversion.IntToUint32(block.Size())
		if sErr != nil {
			return bi, false, errors.NewProcessingError("block %s too large", bi.Hash, sErr)
		}

		pos = *diskPos
		c.files.RecordBlock(pos, size, bi.Height, uint64(block.Header.Timestamp))
	} else {
		if pos, err = c.files.WriteBlock(block, bi.Height); err != nil {
			return bi, false, errors.NewFatalError("[ChainState] failed to write block %s", bi.Hash, err)
		}
	}

	c.receivedBlockTransactions(block, bi, pos)

	if c.settings.BlockChain.PruneTargetBytes > 0 {
		c.checkForPruning.Store(true)
	}

	if c.checkForPruning.Load() {
		if err = c.flushStateToDisk(ctx, FlushNone); err != nil {
			return bi, true, err
		}
	}

	return bi, true, nil
}

// receivedBlockTransactions records that the data of bi is stored at pos. Once every
// ancestor has data, bi and its waiting descendants become chain candidates in the
// order they are linked.
func (c *ChainState) receivedBlockTransactions(block *model.Block, bi *model.BlockIndex, pos model.DiskPos) {
	bi.TxCount = uint32(len(block.Transactions)) //nolint:gosec // tx count is bounded by block size
	bi.ChainTxCount = 0
	bi.File = pos.File
	bi.DataPos = pos.Pos
	bi.UndoPos = 0
	bi.Status |= model.StatusHaveData
	bi.RaiseValidity(model.StatusValidTransactions)
	c.tree.MarkDirty(bi)

	parent := c.tree.Parent(bi)

	if parent != nil && parent.ChainTxCount == 0 {
		if parent.IsValid(model.StatusValidTree) {
			c.unlinked[parent.ID] = append(c.unlinked[parent.ID], bi.ID)
		}

		return
	}

	queue := []*model.BlockIndex{bi}

	for len(queue) > 0 {
		walk := queue[0]
		queue = queue[1:]

		walk.ChainTxCount = uint64(walk.TxCount)
		if p := c.tree.Parent(walk); p != nil {
			walk.ChainTxCount += p.ChainTxCount
		}

		walk.SequenceID = c.tree.NextSequenceID()

		if tip := c.chain.Tip(); tip == nil || !model.WorkLess(walk, tip) {
			c.candidates[walk.ID] = struct{}{}
		}

		for _, child := range c.unlinked[walk.ID] {
			queue = append(queue, c.tree.Get(child))
		}

		delete(c.unlinked, walk.ID)
	}
}
