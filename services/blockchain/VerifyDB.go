package blockchain

import (
	"context"

	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/chainstate/model"
	"github.com/bsv-blockchain/chainstate/services/blockvalidation"
	"github.com/bsv-blockchain/chainstate/stores/utxo"
)

// VerifyDB checks the top checkDepth blocks of the active chain. Each level includes
// the ones below it:
//
//	0: the block can be read
//	1: the block passes CheckBlock
//	2: the undo data can be read and its checksum matches
//	3: the blocks disconnect cleanly from the coins, in memory and while the cache budget allows
//	4: the disconnected blocks connect again
//
// Nothing is written. A checkDepth of zero or less checks the whole chain.
func (c *ChainState) VerifyDB(ctx context.Context, checkLevel, checkDepth int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.withVerifyMode(ctx, func() error {
		return c.verifyDB(ctx, checkLevel, checkDepth)
	})
}

// withVerifyMode runs fn in the verifying state, which holds back everything but
// forced flushes.
func (c *ChainState) withVerifyMode(_ context.Context, fn func() error) error {
	previous := c.fsm.Current()

	c.fsm.SetState(StateVerifying)

	defer func() {
		if c.fsm.Current() == StateVerifying {
			c.fsm.SetState(previous)
		}
	}()

	return fn()
}

func (c *ChainState) verifyDB(ctx context.Context, checkLevel, checkDepth int) error {
	tip := c.chain.Tip()
	if tip == nil || c.tree.Parent(tip) == nil {
		return nil
	}

	height := int(c.chain.Height())

	if checkDepth <= 0 || checkDepth > height {
		checkDepth = height
	}

	checkLevel = max(0, min(4, checkLevel))

	c.logger.Infof("[ChainState] verifying last %d blocks at level %d", checkDepth, checkLevel)

	coins := utxo.NewCoinsViewCache(c.coinsTip)
	budget := c.settings.UtxoStore.DBCacheBytes

	state := tip
	goodTransactions := 0

	var failure *model.BlockIndex

	reported := -1

	for bi := tip; bi != nil && c.tree.Parent(bi) != nil; bi = c.tree.Parent(bi) {
		if err := ctx.Err(); err != nil {
			return errors.NewContextCanceledError("[ChainState] verification interrupted", err)
		}

		if int(bi.Height) < height-checkDepth {
			break
		}

		if percent := (height - int(bi.Height)) * 100 / max(1, checkDepth); percent/10 != reported/10 {
			c.logger.Infof("[ChainState] verifying blocks %d%%", percent)
			reported = percent
		}

		if !bi.HaveData() {
			c.logger.Infof("[ChainState] block verification stopping at height %d (pruned, no data)", bi.Height)
			break
		}

		parent := c.tree.Parent(bi)

		block, err := c.files.ReadBlock(bi.DataPosition())
		if err != nil {
			return errors.NewChainStateCorruptedError("[ChainState] VerifyDB: failed to read block %s at height %d", bi.Hash, bi.Height, err)
		}

		if checkLevel >= 1 {
			if err = c.validator.CheckBlock(block, true, true); err != nil {
				return errors.NewChainStateCorruptedError("[ChainState] VerifyDB: found bad block %s at height %d", bi.Hash, bi.Height, err)
			}
		}

		var undo *model.BlockUndo

		if checkLevel >= 2 && bi.HaveUndo() {
			if undo, err = c.files.ReadUndo(bi.UndoPosition(), &parent.Hash); err != nil {
				return errors.NewChainStateCorruptedError("[ChainState] VerifyDB: found bad undo data of %s at height %d", bi.Hash, bi.Height, err)
			}
		}

		if checkLevel >= 3 && bi == state && int64(coins.DynamicMemoryUsage()+c.coinsTip.DynamicMemoryUsage()) <= budget {
			if undo == nil {
				return errors.NewChainStateCorruptedError("[ChainState] VerifyDB: no undo data for connected block %s at height %d", bi.Hash, bi.Height)
			}

			clean, dErr := c.validator.DisconnectBlock(ctx, c.tree, block, bi, undo, coins)
			if dErr != nil {
				return errors.NewChainStateCorruptedError("[ChainState] VerifyDB: irrecoverable inconsistency in block %s at height %d", bi.Hash, bi.Height, dErr)
			}

			state = parent

			if clean {
				goodTransactions += len(block.Transactions)
			} else {
				goodTransactions = 0
				failure = bi
			}
		}
	}

	if failure != nil {
		return errors.NewChainStateCorruptedError("[ChainState] VerifyDB: coin database inconsistencies found (last %d blocks, %d good transactions before that)",
			tip.Height-failure.Height+1, goodTransactions)
	}

	if checkLevel >= 4 {
		for bi := c.chain.Next(state); bi != nil; bi = c.chain.Next(bi) {
			block, err := c.files.ReadBlock(bi.DataPosition())
			if err != nil {
				return errors.NewChainStateCorruptedError("[ChainState] VerifyDB: failed to read block %s at height %d", bi.Hash, bi.Height, err)
			}

			if _, err = c.validator.ConnectBlock(ctx, c.tree, block, bi, coins, blockvalidation.ConnectOptions{}); err != nil {
				return errors.NewChainStateCorruptedError("[ChainState] VerifyDB: found unconnectable block %s at height %d", bi.Hash, bi.Height, err)
			}
		}
	}

	c.logger.Infof("[ChainState] no coin database inconsistencies in last %d blocks (%d transactions)", tip.Height-state.Height, goodTransactions)

	return nil
}
