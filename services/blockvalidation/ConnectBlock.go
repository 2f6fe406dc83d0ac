package blockvalidation

import (
	"context"
	"time"

	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/chainstate/model"
	"github.com/bsv-blockchain/chainstate/services/validator"
	"github.com/bsv-blockchain/chainstate/stores/utxo"
	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/bscript/interpreter/scriptflag"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
)

// ConnectOptions tune a single ConnectBlock call.
type ConnectOptions struct {
	// JustCheck runs every check but leaves the view untouched.
	JustCheck bool

	// WriteUndo persists the undo data after all checks passed and before the changes
	// reach the parent view. A failure aborts the connect.
	WriteUndo func(undo *model.BlockUndo) error
}

// ConnectResult summarises a connected block.
type ConnectResult struct {
	Undo   *model.BlockUndo
	Fees   uint64
	SigOps int
	Inputs int
}

// the two historical blocks that duplicate an earlier coinbase on main net
var bip30Exceptions = map[int32]string{
	91842: "00000000000a4d0a398161ffc163c503763b1f4360639393e0e4c8e300e0caec",
	91880: "00000000000743f190a18c5577a3c2d2a1f610ae9601ac046a38084ccb7cd721",
}

func (bv *BlockValidator) enforceBIP30(bi *model.BlockIndex) bool {
	if bi.Height >= bv.params.BIP0034Height {
		return false
	}

	if bv.params.Name == "mainnet" {
		if hash, ok := bip30Exceptions[bi.Height]; ok && bi.Hash.String() == hash {
			return false
		}
	}

	return true
}

// blockInvalidFromTx turns the rejection of one transaction into the rejection of the
// block, keeping its ban score and reason. Local errors pass through unchanged.
func blockInvalidFromTx(err error, tx *bt.Tx) error {
	if !errors.IsInvalid(err) {
		return err
	}

	return errors.NewBlockInvalidError(errors.DoSScore(err), errors.GetRejectCode(err), "%s: in tx %s", errors.GetRejectReason(err), tx.TxID(), err)
}

// ConnectBlock validates block against view, whose best block must be the parent of bi,
// and applies it: inputs are spent, outputs created and the best block moved to bi.
// All changes are made in a child view that is merged into view only when every check,
// scripts included, has passed. On any failure view is left as it was.
func (bv *BlockValidator) ConnectBlock(ctx context.Context, tree *model.BlockTree, block *model.Block, bi *model.BlockIndex,
	view *utxo.CoinsViewCache, opts ConnectOptions) (result *ConnectResult, err error) {
	start := time.Now()
	defer func() {
		prometheusBlockValidationConnectBlock.Observe(float64(time.Since(start).Microseconds()) / 1_000_000)
		countInvalid(err)
	}()

	if err = bv.CheckBlock(block, !opts.JustCheck, !opts.JustCheck); err != nil {
		return nil, err
	}

	var prevHash chainhash.Hash

	parent := tree.Parent(bi)
	if parent != nil {
		prevHash = parent.Hash
	}

	best, err := view.GetBestBlock(ctx)
	if err != nil {
		return nil, err
	}

	if best != prevHash {
		return nil, errors.NewChainStateCorruptedError("coin view is at %s but block %s builds on %s", best, bi.Hash, prevHash)
	}

	// the outputs of the genesis coinbase are not spendable, nothing to apply
	if bi.Hash.IsEqual(bv.params.GenesisHash) {
		if !opts.JustCheck {
			view.SetBestBlock(bi.Hash)
		}

		return &ConnectResult{Undo: &model.BlockUndo{}}, nil
	}

	// blocks below the last checkpoint are known good, their scripts are skipped
	scriptChecks := true
	if checkpoint := bv.LastCheckpoint(tree); checkpoint != nil && tree.Ancestor(checkpoint, bi.Height) == bi {
		scriptChecks = false
	}

	child := utxo.NewCoinsViewCache(view)

	if bv.enforceBIP30(bi) {
		for _, tx := range block.Transactions {
			for o := range tx.Outputs {
				have, hErr := child.HaveCoin(ctx, model.NewOutpoint(tx.TxIDChainHash(), uint32(o))) //nolint:gosec // output count is bounded by block size
				if hErr != nil {
					return nil, hErr
				}

				if have {
					return nil, errors.NewBlockInvalidError(100, errors.RejectInvalid, "bad-txns-BIP30: tried to overwrite transaction %s", tx.TxID())
				}
			}
		}
	}

	flags, lockTimeFlags := bv.ScriptFlags(tree, bi)

	var prevMedianTimePast int64
	if parent != nil {
		prevMedianTimePast = tree.MedianTimePast(parent)
	}

	medianTimePast := func(height int32) int64 {
		return tree.MedianTimePast(tree.Ancestor(bi, height))
	}

	result = &ConnectResult{
		Undo: &model.BlockUndo{TxUndo: make([]*model.TxUndo, 0, len(block.Transactions)-1)},
	}

	var checks []*validator.ScriptCheck

	maxSigOps := bv.params.MaxBlockSigOps()

	for _, tx := range block.Transactions {
		result.SigOps += validator.GetLegacySigOpCount(tx)
		if result.SigOps > maxSigOps {
			return nil, errors.NewBlockInvalidError(100, errors.RejectInvalid, "bad-blk-sigops: too many sigops")
		}

		if !tx.IsCoinbase() {
			txUndo, txChecks, txErr := bv.connectTx(ctx, tree, tx, bi, child, flags, lockTimeFlags, prevMedianTimePast, medianTimePast, result, scriptChecks)
			if txErr != nil {
				return nil, txErr
			}

			if result.SigOps > maxSigOps {
				return nil, errors.NewBlockInvalidError(100, errors.RejectInvalid, "bad-blk-sigops: too many sigops")
			}

			result.Undo.TxUndo = append(result.Undo.TxUndo, txUndo)
			checks = append(checks, txChecks...)
		}

		if err = child.AddCoins(ctx, tx, uint32(bi.Height), false); err != nil { //nolint:gosec // heights fit uint32
			if errors.Is(err, errors.ErrUtxoExists) {
				return nil, errors.NewBlockInvalidError(100, errors.RejectInvalid, "bad-txns-BIP30: tx %s overwrites an unspent output", tx.TxID(), err)
			}

			return nil, err
		}
	}

	blockReward := result.Fees + GetBlockSubsidy(bi.Height, bv.params)
	if coinbaseOut := block.Transactions[0].TotalOutputSatoshis(); coinbaseOut > blockReward {
		return nil, errors.NewBlockInvalidError(100, errors.RejectInvalid, "bad-cb-amount: coinbase pays too much (actual=%d vs limit=%d)", coinbaseOut, blockReward)
	}

	if err = bv.validator.Queue().Run(ctx, checks); err != nil {
		if errors.IsInvalid(err) {
			return nil, errors.NewBlockInvalidError(100, errors.RejectInvalid, "mandatory-script-verify-flag-failed: block %s", bi.Hash, err)
		}

		return nil, err
	}

	if opts.JustCheck {
		return result, nil
	}

	if opts.WriteUndo != nil {
		if err = opts.WriteUndo(result.Undo); err != nil {
			return nil, errors.NewFatalError("failed to write undo data of %s", bi.Hash, err)
		}
	}

	child.SetBestBlock(bi.Hash)

	if err = child.Flush(ctx); err != nil {
		return nil, err
	}

	prometheusBlockValidationConnectedTxs.Add(float64(len(block.Transactions)))

	bv.logger.Debugf("[BlockValidation] connected block %s at height %d: %d txs, %d inputs, fees %d", bi.Hash, bi.Height, len(block.Transactions), result.Inputs, result.Fees)

	return result, nil
}

// connectTx checks one non-coinbase tx of a block against child, spends its inputs and
// returns the undo record and the script checks still to run.
func (bv *BlockValidator) connectTx(ctx context.Context, tree *model.BlockTree, tx *bt.Tx, bi *model.BlockIndex, child *utxo.CoinsViewCache,
	flags scriptflag.Flag, lockTimeFlags validator.LockTimeFlags, prevMedianTimePast int64, medianTimePast validator.MedianTimePastFunc,
	result *ConnectResult, scriptChecks bool) (*model.TxUndo, []*validator.ScriptCheck, error) {
	prevHeights := make([]int32, len(tx.Inputs))

	for i, in := range tx.Inputs {
		coin, err := child.GetCoin(ctx, model.InputOutpoint(in))
		if err != nil {
			return nil, nil, err
		}

		if coin == nil {
			return nil, nil, errors.NewBlockInvalidError(100, errors.RejectInvalid, "bad-txns-inputs-missingorspent: input %d of tx %s", i, tx.TxID())
		}

		prevHeights[i] = int32(coin.Height) //nolint:gosec // heights fit int32
	}

	if !validator.SequenceLocks(tx, lockTimeFlags, prevHeights, bi.Height, prevMedianTimePast, medianTimePast) {
		return nil, nil, errors.NewBlockInvalidError(100, errors.RejectInvalid, "bad-txns-nonfinal: contains a non-BIP68-final transaction %s", tx.TxID())
	}

	if flags&scriptflag.Bip16 != 0 {
		p2shSigOps, err := validator.GetP2SHSigOpCount(ctx, tx, child)
		if err != nil {
			return nil, nil, err
		}

		result.SigOps += p2shSigOps
	}

	fee, err := validator.CheckTxInputs(ctx, tx, child, bi.Height, bv.params.CoinbaseMaturity)
	if err != nil {
		return nil, nil, blockInvalidFromTx(err, tx)
	}

	result.Fees += fee
	if !validator.MoneyRange(result.Fees) {
		return nil, nil, errors.NewBlockInvalidError(100, errors.RejectInvalid, "bad-txns-accumulated-fee-outofrange")
	}

	var checks []*validator.ScriptCheck

	if scriptChecks {
		if checks, err = bv.validator.ScriptChecks(ctx, tx, child, flags); err != nil {
			return nil, nil, blockInvalidFromTx(err, tx)
		}
	}

	txUndo := &model.TxUndo{PrevOut: make([]*model.Coin, 0, len(tx.Inputs))}

	for i, in := range tx.Inputs {
		spent, err := child.SpendCoin(ctx, model.InputOutpoint(in))
		if err != nil {
			return nil, nil, err
		}

		if spent == nil {
			return nil, nil, errors.NewBlockInvalidError(100, errors.RejectInvalid, "bad-txns-inputs-missingorspent: input %d of tx %s", i, tx.TxID())
		}

		txUndo.PrevOut = append(txUndo.PrevOut, spent)
	}

	result.Inputs += len(tx.Inputs)

	return txUndo, checks, nil
}
