package blockvalidation

import (
	"context"

	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/chainstate/model"
	"github.com/bsv-blockchain/chainstate/stores/utxo"
)

// TestBlockValidity runs every check on a block that would extend parent, including
// connecting it to a throwaway view over view, without changing the tree or view.
// parent must be the tip view is at. The proof of work and merkle root are not
// checked, which lets callers validate block templates.
func (bv *BlockValidator) TestBlockValidity(ctx context.Context, tree *model.BlockTree, block *model.Block, parent *model.BlockIndex,
	view *utxo.CoinsViewCache) error {
	if parent == nil {
		return errors.NewInvalidArgumentError("block template needs a parent")
	}

	if !block.Header.HashPrevBlock.IsEqual(&parent.Hash) {
		return errors.NewInvalidArgumentError("block template builds on %s, not on %s", block.Header.HashPrevBlock, parent.Hash)
	}

	if err := bv.CheckIndexAgainstCheckpoint(tree, parent, block.Hash()); err != nil {
		return err
	}

	if err := bv.ContextualCheckBlockHeader(tree, block.Header, parent); err != nil {
		return err
	}

	if err := bv.CheckBlock(block, false, false); err != nil {
		return err
	}

	if err := bv.ContextualCheckBlock(tree, block, parent); err != nil {
		return err
	}

	// an index entry that is never added to the tree; it only needs to reach its ancestors
	dummy := &model.BlockIndex{
		ID:         model.NoBlock,
		Parent:     parent.ID,
		Skip:       model.NoBlock,
		Hash:       *block.Hash(),
		Height:     parent.Height + 1,
		Version:    block.Header.Version,
		MerkleRoot: *block.Header.HashMerkleRoot,
		Timestamp:  block.Header.Timestamp,
		Bits:       block.Header.Bits,
		Nonce:      block.Header.Nonce,
	}

	_, err := bv.ConnectBlock(ctx, tree, block, dummy, utxo.NewCoinsViewCache(view), ConnectOptions{JustCheck: true})

	return err
}
