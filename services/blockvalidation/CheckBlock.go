package blockvalidation

import (
	"time"

	"github.com/bsv-blockchain/chainstate/chaincfg"
	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/chainstate/model"
	"github.com/bsv-blockchain/chainstate/services/validator"
)

// CheckProofOfWork reports whether hash meets the target encoded in bits, and whether
// that target is within the network limit.
func CheckProofOfWork(hash []byte, bits uint32, params *chaincfg.Params) bool {
	target := model.CompactToBig(bits)
	if target.Sign() <= 0 || target.Cmp(params.PowLimit) > 0 {
		return false
	}

	return model.HashToBig(hash).Cmp(target) <= 0
}

// CheckBlockHeader runs the checks that need nothing but the header.
func (bv *BlockValidator) CheckBlockHeader(header *model.BlockHeader, checkPoW bool) error {
	if checkPoW && !CheckProofOfWork(header.Hash()[:], header.Bits, bv.params) {
		return errors.NewBlockInvalidError(50, errors.RejectInvalid, "high-hash: proof of work failed for %s", header.Hash())
	}

	maxFuture := bv.settings.BlockChain.MaxFutureBlockTime
	if maxFuture == 0 {
		maxFuture = 2 * time.Hour
	}

	if int64(header.Timestamp) > bv.AdjustedTime()+int64(maxFuture/time.Second) {
		return errors.NewBlockInvalidError(0, errors.RejectInvalid, "time-too-new: block timestamp %d too far in the future", header.Timestamp)
	}

	return nil
}

// CheckBlock runs the context free checks of a block: header, merkle root, size, the
// coinbase position, every transaction on its own and the legacy sigop count. A merkle
// mismatch may come from a block mutated in transit, so those rejections do not mark
// the block hash invalid.
func (bv *BlockValidator) CheckBlock(block *model.Block, checkPoW, checkMerkleRoot bool) (err error) {
	start := time.Now()
	defer func() {
		prometheusBlockValidationCheckBlock.Observe(float64(time.Since(start).Microseconds()) / 1_000_000)
		countInvalid(err)
	}()

	if err = bv.CheckBlockHeader(block.Header, checkPoW); err != nil {
		return err
	}

	if checkMerkleRoot {
		root, mutated := block.CalcMerkleRoot()
		if !root.IsEqual(block.Header.HashMerkleRoot) {
			return errors.NewCorruptionPossibleError(errors.ERR_BLOCK_INVALID, 100, errors.RejectInvalid, "bad-txnmrklroot: merkle root mismatch in %s", block.Hash())
		}

		if mutated {
			return errors.NewCorruptionPossibleError(errors.ERR_BLOCK_INVALID, 100, errors.RejectInvalid, "bad-txns-duplicate: duplicate transaction in %s", block.Hash())
		}
	}

	maxBlockSize := bv.params.MaxBlockSize
	if len(block.Transactions) == 0 || len(block.Transactions) > maxBlockSize || block.Size() > maxBlockSize {
		return errors.NewBlockInvalidError(100, errors.RejectInvalid, "bad-blk-length: size limits failed for %s", block.Hash())
	}

	if !block.Transactions[0].IsCoinbase() {
		return errors.NewBlockInvalidError(100, errors.RejectInvalid, "bad-cb-missing: first tx is not coinbase")
	}

	for i, tx := range block.Transactions[1:] {
		if tx.IsCoinbase() {
			return errors.NewBlockInvalidError(100, errors.RejectInvalid, "bad-cb-multiple: tx %d is a second coinbase", i+1)
		}
	}

	sigOps := 0

	for _, tx := range block.Transactions {
		if txErr := validator.CheckTransaction(tx, maxBlockSize); txErr != nil {
			return errors.NewBlockInvalidError(errors.DoSScore(txErr), errors.GetRejectCode(txErr), "%s: tx %s failed the context free checks", errors.GetRejectReason(txErr), tx.TxID(), txErr)
		}

		sigOps += validator.GetLegacySigOpCount(tx)
	}

	if sigOps > bv.params.MaxBlockSigOps() {
		return errors.NewCorruptionPossibleError(errors.ERR_BLOCK_INVALID, 100, errors.RejectInvalid, "bad-blk-sigops: %d sigops exceed the limit", sigOps)
	}

	return nil
}

func countInvalid(err error) {
	if reason := errors.GetRejectReason(err); reason != "" {
		prometheusBlockValidationInvalidBlocks.WithLabelValues(reason).Inc()
	}
}
