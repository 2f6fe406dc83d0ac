package blockchain

import (
	"context"

	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/chainstate/model"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
)

// InvalidateBlock marks the block as invalid, disconnects it and every descendant from
// the active chain and switches to the best remaining chain.
func (c *ChainState) InvalidateBlock(ctx context.Context, hash *chainhash.Hash) error {
	if err := c.checkNotAborted(); err != nil {
		return err
	}

	c.mu.Lock()

	bi := c.tree.Lookup(hash)
	if bi == nil {
		c.mu.Unlock()
		return errors.NewBlockNotFoundError("block %s not found", hash)
	}

	if c.tree.Parent(bi) == nil {
		c.mu.Unlock()
		return errors.NewInvalidArgumentError("the genesis block cannot be invalidated")
	}

	bi.Status |= model.StatusFailedValid
	c.tree.MarkDirty(bi)
	delete(c.candidates, bi.ID)

	disconnected := 0

	for c.chain.Contains(bi) {
		walk := c.chain.Tip()
		walk.Status |= model.StatusFailedChild
		c.tree.MarkDirty(walk)
		delete(c.candidates, walk.ID)

		if err := c.disconnectTip(ctx); err != nil {
			if disconnected > 0 && c.mempool != nil {
				_ = c.mempool.RemoveForReorg(ctx, c.chainTip(), c.params.CoinbaseMaturity)
			}

			c.mu.Unlock()

			return err
		}

		disconnected++
	}

	if c.mempool != nil {
		c.mempool.LimitSize(c.coinsTip)
	}

	// the new tip may have been pruned from the candidates earlier
	tip := c.chain.Tip()

	c.tree.ForEach(func(walk *model.BlockIndex) bool {
		if walk.IsValid(model.StatusValidTransactions) && walk.ChainTxCount > 0 && !model.WorkLess(walk, tip) {
			c.candidates[walk.ID] = struct{}{}
		}

		return true
	})

	c.invalidChainFound(bi)

	if c.mempool != nil {
		if err := c.mempool.RemoveForReorg(ctx, c.chainTip(), c.params.CoinbaseMaturity); err != nil {
			c.mu.Unlock()
			return err
		}
	}

	c.logger.Infof("[ChainState] invalidated block %s at height %d, disconnected %d blocks", bi.Hash, bi.Height, disconnected)

	c.mu.Unlock()

	return c.ActivateBestChain(ctx, nil)
}

// ReconsiderBlock clears the failure flags of the block, its descendants and its
// ancestors, then activates the best chain again.
func (c *ChainState) ReconsiderBlock(ctx context.Context, hash *chainhash.Hash) error {
	if err := c.checkNotAborted(); err != nil {
		return err
	}

	c.mu.Lock()

	bi := c.tree.Lookup(hash)
	if bi == nil {
		c.mu.Unlock()
		return errors.NewBlockNotFoundError("block %s not found", hash)
	}

	tip := c.chain.Tip()

	c.tree.ForEach(func(walk *model.BlockIndex) bool {
		if walk.IsValid(model.StatusValidTransactions) || c.tree.Ancestor(walk, bi.Height) != bi {
			return true
		}

		walk.Status &^= model.StatusFailedMask
		c.tree.MarkDirty(walk)

		if walk.IsValid(model.StatusValidTransactions) && walk.ChainTxCount > 0 && (tip == nil || model.WorkLess(tip, walk)) {
			c.candidates[walk.ID] = struct{}{}
		}

		if walk == c.bestInvalid {
			c.bestInvalid = nil
		}

		return true
	})

	for walk := bi; walk != nil; walk = c.tree.Parent(walk) {
		if walk.Status&model.StatusFailedMask != 0 {
			walk.Status &^= model.StatusFailedMask
			c.tree.MarkDirty(walk)
		}
	}

	c.logger.Infof("[ChainState] reconsidering block %s at height %d", bi.Hash, bi.Height)

	c.mu.Unlock()

	return c.ActivateBestChain(ctx, nil)
}
