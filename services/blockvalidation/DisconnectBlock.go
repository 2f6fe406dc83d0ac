package blockvalidation

import (
	"context"
	"time"

	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/chainstate/model"
	"github.com/bsv-blockchain/chainstate/stores/utxo"
)

// DisconnectBlock reverses block from its undo data: outputs it created are spent and
// coins it spent are restored, transactions in reverse order and inputs in reverse
// order. view must be at bi and ends at the parent of bi.
//
// clean is false when the view did not match what the block created or the undo data
// would overwrite an unspent coin. The reversal is still applied as far as possible.
// An error means the undo data does not fit the block and view is left untouched.
func (bv *BlockValidator) DisconnectBlock(ctx context.Context, tree *model.BlockTree, block *model.Block, bi *model.BlockIndex,
	undo *model.BlockUndo, view *utxo.CoinsViewCache) (clean bool, err error) {
	start := time.Now()
	defer func() {
		prometheusBlockValidationDisconnectBlock.Observe(float64(time.Since(start).Microseconds()) / 1_000_000)
	}()

	parent := tree.Parent(bi)
	if parent == nil {
		return false, errors.NewProcessingError("cannot disconnect the genesis block %s", bi.Hash)
	}

	best, err := view.GetBestBlock(ctx)
	if err != nil {
		return false, err
	}

	if best != bi.Hash {
		return false, errors.NewChainStateCorruptedError("coin view is at %s, cannot disconnect %s", best, bi.Hash)
	}

	if len(undo.TxUndo)+1 != len(block.Transactions) {
		return false, errors.NewUndoCorruptError("block and undo data inconsistent for %s: %d txs, %d undo records", bi.Hash, len(block.Transactions), len(undo.TxUndo))
	}

	child := utxo.NewCoinsViewCache(view)
	clean = true

	for i := len(block.Transactions) - 1; i >= 0; i-- {
		tx := block.Transactions[i]
		txHash := tx.TxIDChainHash()
		isCoinbase := i == 0

		for o, out := range tx.Outputs {
			created := model.NewCoinFromOutput(out, uint32(bi.Height), isCoinbase) //nolint:gosec // heights fit uint32
			if created.IsUnspendable() {
				continue
			}

			spent, sErr := child.SpendCoin(ctx, model.NewOutpoint(txHash, uint32(o))) //nolint:gosec // output count is bounded by block size
			if sErr != nil {
				return false, sErr
			}

			if !spent.Equal(created) {
				clean = false
			}
		}

		if isCoinbase {
			continue
		}

		txUndo := undo.TxUndo[i-1]
		if len(txUndo.PrevOut) != len(tx.Inputs) {
			return false, errors.NewUndoCorruptError("transaction and undo data inconsistent for tx %s", tx.TxID())
		}

		for j := len(tx.Inputs) - 1; j >= 0; j-- {
			outpoint := model.InputOutpoint(tx.Inputs[j])

			have, hErr := child.HaveCoin(ctx, outpoint)
			if hErr != nil {
				return false, hErr
			}

			if have {
				clean = false
			}

			if aErr := child.AddCoin(outpoint, txUndo.PrevOut[j], have); aErr != nil {
				return false, aErr
			}
		}
	}

	child.SetBestBlock(parent.Hash)

	if err = child.Flush(ctx); err != nil {
		return false, err
	}

	if !clean {
		prometheusBlockValidationUncleanUndo.Inc()
		bv.logger.Warnf("[BlockValidation] disconnect of block %s at height %d did not match the coin view", bi.Hash, bi.Height)
	}

	return clean, nil
}
