package blockvalidation

import (
	"bytes"

	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/chainstate/model"
	"github.com/bsv-blockchain/chainstate/services/validator"
	"github.com/bsv-blockchain/chainstate/util"
	"github.com/bsv-blockchain/go-bt/v2/bscript/interpreter/scriptflag"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
)

// LastCheckpoint returns the entry of the highest checkpoint present in the tree, or
// nil when checkpoints are disabled or none is known yet.
func (bv *BlockValidator) LastCheckpoint(tree *model.BlockTree) *model.BlockIndex {
	if !bv.checkpoints {
		return nil
	}

	for i := len(bv.params.Checkpoints) - 1; i >= 0; i-- {
		if bi := tree.Lookup(bv.params.Checkpoints[i].Hash); bi != nil {
			return bi
		}
	}

	return nil
}

// CheckIndexAgainstCheckpoint rejects a header at a checkpoint height with the wrong
// hash and any fork from the main chain below the last known checkpoint.
func (bv *BlockValidator) CheckIndexAgainstCheckpoint(tree *model.BlockTree, parent *model.BlockIndex, hash *chainhash.Hash) error {
	if !bv.checkpoints || parent.Hash.IsEqual(bv.params.GenesisHash) {
		return nil
	}

	height := parent.Height + 1

	if expected := bv.params.Checkpoint(height); expected != nil && !expected.IsEqual(hash) {
		return errors.NewBlockCheckpointError(100, "checkpoint mismatch: block %s at height %d", hash, height)
	}

	if checkpoint := bv.LastCheckpoint(tree); checkpoint != nil && height < checkpoint.Height {
		return errors.NewBlockCheckpointError(100, "bad-fork-prior-to-checkpoint: forked chain older than last checkpoint (height %d)", height)
	}

	return nil
}

// ContextualCheckBlockHeader checks the header against its parent: difficulty, median
// time past and the minimum version once the version based soft forks are enforced.
func (bv *BlockValidator) ContextualCheckBlockHeader(tree *model.BlockTree, header *model.BlockHeader, parent *model.BlockIndex) error {
	if bits := GetNextWorkRequired(tree, parent, header.Timestamp, bv.params); header.Bits != bits {
		return errors.NewBlockInvalidError(100, errors.RejectInvalid, "bad-diffbits: incorrect proof of work, expected %08x got %08x", bits, header.Bits)
	}

	if int64(header.Timestamp) <= tree.MedianTimePast(parent) {
		return errors.NewBlockInvalidError(0, errors.RejectInvalid, "time-too-old: block's timestamp is too early")
	}

	height := parent.Height + 1

	for _, rule := range []struct {
		version uint32
		height  int32
	}{
		{2, bv.params.BIP0034Height},
		{3, bv.params.BIP0066Height},
		{4, bv.params.BIP0065Height},
	} {
		if int32(header.Version) < int32(rule.version) && height >= rule.height { //nolint:gosec // versions are compared as signed
			return errors.NewBlockInvalidError(0, errors.RejectObsolete, "bad-version(0x%08x): rejected nVersion=0x%08x block", rule.version-1, header.Version)
		}
	}

	return nil
}

// ContextualCheckBlock checks the transactions against the parent: every one must be
// final at the new height, and from BIP34 on the coinbase must start with the height.
func (bv *BlockValidator) ContextualCheckBlock(tree *model.BlockTree, block *model.Block, parent *model.BlockIndex) error {
	height := int32(0)
	if parent != nil {
		height = parent.Height + 1
	}

	cutoff := int64(block.Header.Timestamp)
	if parent != nil && bv.IsCSVActive(tree, parent) {
		cutoff = tree.MedianTimePast(parent)
	}

	for _, tx := range block.Transactions {
		if !util.IsFinalTx(tx, height, cutoff) {
			return errors.NewBlockInvalidError(10, errors.RejectInvalid, "bad-txns-nonfinal: non-final transaction %s", tx.TxID())
		}
	}

	if height >= bv.params.BIP0034Height {
		expect := model.SerializeHeightScript(height)

		unlocking := block.Transactions[0].Inputs[0].UnlockingScript
		if unlocking == nil || !bytes.HasPrefix(*unlocking, expect) {
			return errors.NewBlockInvalidError(100, errors.RejectInvalid, "bad-cb-height: block height mismatch in coinbase")
		}
	}

	return nil
}

// ScriptFlags returns the script verification flags and lock time flags that apply
// to the transactions of bi.
func (bv *BlockValidator) ScriptFlags(tree *model.BlockTree, bi *model.BlockIndex) (scriptflag.Flag, validator.LockTimeFlags) {
	var (
		flags         scriptflag.Flag
		lockTimeFlags validator.LockTimeFlags
	)

	if bi.BlockTime() >= bv.params.BIP0016Time {
		flags |= scriptflag.Bip16
	}

	if bi.Height >= bv.params.BIP0066Height {
		flags |= scriptflag.VerifyDERSignatures
	}

	if bi.Height >= bv.params.BIP0065Height {
		flags |= scriptflag.VerifyCheckLockTimeVerify
	}

	if parent := tree.Parent(bi); parent != nil && bv.IsCSVActive(tree, parent) {
		flags |= scriptflag.VerifyCheckSequenceVerify
		lockTimeFlags |= validator.LockTimeVerifySequence
	}

	return flags, lockTimeFlags
}
