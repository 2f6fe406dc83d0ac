package blockchain

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/chainstate/model"
	blockchain_store "github.com/bsv-blockchain/chainstate/stores/blockchain"
	"github.com/bsv-blockchain/chainstate/stores/utxo"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
)

// LoadBlockIndex rebuilds the block tree from the index store, loads the block file
// statistics and sets the active chain to the best block of the coin database.
func (c *ChainState) LoadBlockIndex(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()

	records, err := c.store.LoadBlockIndex(ctx)
	if err != nil {
		return errors.NewStorageError("[ChainState] failed to load block index", err)
	}

	tree := model.NewBlockTree()
	if err = tree.Load(records); err != nil {
		return err
	}

	c.tree = tree
	c.chain = model.NewChain(tree)
	c.candidates = make(map[model.BlockID]struct{})
	c.unlinked = make(map[model.BlockID][]model.BlockID)
	c.bestHeader = nil
	c.bestInvalid = nil
	c.validator.VersionBits().Clear()

	if err = c.files.Load(ctx, c.store); err != nil {
		return err
	}

	referenced := make(map[int32]struct{})

	tree.ForEach(func(bi *model.BlockIndex) bool {
		parent := tree.Parent(bi)

		if bi.IsValid(model.StatusValidTransactions) && (bi.ChainTxCount > 0 || parent == nil) {
			c.candidates[bi.ID] = struct{}{}
		}

		if bi.TxCount > 0 && bi.ChainTxCount == 0 && parent != nil {
			c.unlinked[parent.ID] = append(c.unlinked[parent.ID], bi.ID)
		}

		if bi.Status&model.StatusFailedMask != 0 && (c.bestInvalid == nil || bi.ChainWork.Cmp(c.bestInvalid.ChainWork) > 0) {
			c.bestInvalid = bi
		}

		if bi.IsValid(model.StatusValidTree) && (c.bestHeader == nil || model.WorkLess(c.bestHeader, bi)) {
			c.bestHeader = bi
		}

		if bi.HaveData() {
			referenced[bi.File] = struct{}{}
		}

		return true
	})

	for file := range referenced {
		if !c.files.FileExists(file) {
			return errors.NewChainStateCorruptedError("[ChainState] block file %d referenced by the block index is missing", file)
		}
	}

	pruned, err := c.store.GetFlag(ctx, blockchain_store.FlagPrunedBlockFiles)
	if err != nil {
		return errors.NewStorageError("[ChainState] failed to read pruned flag", err)
	}

	c.havePruned.Store(pruned)

	if pruned {
		c.logger.Infof("[ChainState] block files have been pruned before")
	}

	c.coinsTip = utxo.NewCoinsViewCache(c.coinsDB)

	best, err := c.coinsTip.GetBestBlock(ctx)
	if err != nil {
		return errors.NewStorageError("[ChainState] failed to read best block of coin database", err)
	}

	if best == (chainhash.Hash{}) {
		c.logger.Infof("[ChainState] loaded %d block index entries, coin database is empty", tree.Len())
		return nil
	}

	tip := tree.Lookup(&best)
	if tip == nil {
		return errors.NewChainStateCorruptedError("[ChainState] best block %s of the coin database is not in the block index", best)
	}

	c.chain.SetTip(tip)
	c.resequence()
	c.pruneBlockIndexCandidates()

	c.logger.Infof("[ChainState] loaded %d block index entries in %s, best block %s height %d date %s",
		tree.Len(), time.Since(start), tip.Hash, tip.Height, time.Unix(tip.BlockTime(), 0).UTC().Format(time.RFC3339))

	prometheusChainStateHeight.Set(float64(tip.Height))

	return nil
}

// resequence hands out arrival numbers to the loaded blocks that have data, the active
// chain first and the rest by height, so the chain that was active before a restart
// still wins against equal-work siblings.
func (c *ChainState) resequence() {
	for height := int32(0); height <= c.chain.Height(); height++ {
		c.chain.At(height).SequenceID = c.tree.NextSequenceID()
	}

	var rest []*model.BlockIndex

	c.tree.ForEach(func(bi *model.BlockIndex) bool {
		if bi.ChainTxCount > 0 && !c.chain.Contains(bi) {
			rest = append(rest, bi)
		}

		return true
	})

	slices.SortFunc(rest, func(a, b *model.BlockIndex) int {
		if a.Height != b.Height {
			return cmp.Compare(a.Height, b.Height)
		}

		return cmp.Compare(a.ID, b.ID)
	})

	for _, bi := range rest {
		bi.SequenceID = c.tree.NextSequenceID()
	}
}

// InitBlockIndex writes and connects the genesis block when the chain is empty, then
// forces a full write so a later verification does not see stale data.
func (c *ChainState) InitBlockIndex(ctx context.Context) error {
	c.mu.Lock()

	if c.chain.Genesis() != nil {
		c.mu.Unlock()
		return nil
	}

	genesis := c.params.GenesisBlock

	if bi := c.tree.Lookup(genesis.Hash()); bi == nil || !bi.HaveData() {
		pos, err := c.files.WriteBlock(genesis, 0)
		if err != nil {
			c.mu.Unlock()
			return errors.NewFatalError("[ChainState] failed to write genesis block", err)
		}

		bi = c.addToBlockIndex(genesis.Header)
		c.receivedBlockTransactions(genesis, bi, pos)

		c.logger.Infof("[ChainState] initialized block index with genesis block %s", bi.Hash)
	}

	c.mu.Unlock()

	if err := c.ActivateBestChain(ctx, genesis); err != nil {
		return err
	}

	return c.FlushStateToDisk(ctx, FlushAlways)
}
