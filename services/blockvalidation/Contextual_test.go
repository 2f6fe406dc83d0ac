package blockvalidation

import (
	"testing"

	"github.com/bsv-blockchain/chainstate/chaincfg"
	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/chainstate/model"
	"github.com/bsv-blockchain/chainstate/services/validator"
	"github.com/bsv-blockchain/chainstate/settings"
	"github.com/bsv-blockchain/chainstate/ulogger"
	"github.com/bsv-blockchain/go-bt/v2/bscript/interpreter/scriptflag"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextualCheckBlockHeader(t *testing.T) {
	bv := newTestChain(t).bv
	tree, genesis := headerTree(t)
	params := bv.Params()

	header := func(parent *model.BlockIndex, version, timestamp, bits uint32) *model.BlockHeader {
		return &model.BlockHeader{
			Version:        version,
			HashPrevBlock:  &parent.Hash,
			HashMerkleRoot: &chainhash.Hash{},
			Timestamp:      timestamp,
			Bits:           bits,
		}
	}

	tip := addHeaders(tree, genesis, 20, 4)

	t.Run("valid", func(t *testing.T) {
		require.NoError(t, bv.ContextualCheckBlockHeader(tree, header(tip, 4, tip.Timestamp+600, tip.Bits), tip))
	})

	t.Run("wrong difficulty", func(t *testing.T) {
		err := bv.ContextualCheckBlockHeader(tree, header(tip, 4, tip.Timestamp+600, 0x1d00ffff), tip)
		require.Error(t, err)
		assert.Equal(t, "bad-diffbits", errors.GetRejectReason(err))
		assert.Equal(t, 100, errors.DoSScore(err))
	})

	t.Run("not after median time past", func(t *testing.T) {
		mtp := uint32(tree.MedianTimePast(tip)) //nolint:gosec // test times fit

		err := bv.ContextualCheckBlockHeader(tree, header(tip, 4, mtp, tip.Bits), tip)
		require.Error(t, err)
		assert.Equal(t, "time-too-old", errors.GetRejectReason(err))
		assert.Zero(t, errors.DoSScore(err))

		require.NoError(t, bv.ContextualCheckBlockHeader(tree, header(tip, 4, mtp+1, tip.Bits), tip))
	})

	t.Run("obsolete version", func(t *testing.T) {
		parent := addHeaders(tree, tip, int(params.BIP0066Height-1-tip.Height), 4)
		require.Equal(t, params.BIP0066Height-1, parent.Height)

		err := bv.ContextualCheckBlockHeader(tree, header(parent, 2, parent.Timestamp+600, parent.Bits), parent)
		require.Error(t, err)
		assert.Equal(t, "bad-version(0x00000002)", errors.GetRejectReason(err))
		assert.Equal(t, errors.RejectObsolete, errors.GetRejectCode(err))

		require.NoError(t, bv.ContextualCheckBlockHeader(tree, header(parent, 3, parent.Timestamp+600, parent.Bits), parent))

		// version bits blocks count as version 4 and up
		require.NoError(t, bv.ContextualCheckBlockHeader(tree, header(parent, VersionBitsTopBits, parent.Timestamp+600, parent.Bits), parent))
	})
}

func TestContextualCheckBlock(t *testing.T) {
	c := newTestChain(t)
	c.mature()

	t.Run("final transactions", func(t *testing.T) {
		tx := model.NewSpendTx([]model.SpendOutput{c.coinbaseOutput(1)}, validator.Coin)
		block := c.build(c.tip, GetBlockSubsidy(c.tip.Height+1, c.bv.Params()), tx)

		require.NoError(t, c.bv.ContextualCheckBlock(c.tree, block, c.tip))
	})

	t.Run("lock time in the future", func(t *testing.T) {
		spend := c.coinbaseOutput(1)
		spend.Sequence = 1

		tx := model.NewSpendTx([]model.SpendOutput{spend}, validator.Coin)
		tx.LockTime = uint32(c.tip.Height + 2) //nolint:gosec // small

		block := c.build(c.tip, GetBlockSubsidy(c.tip.Height+1, c.bv.Params()), tx)

		err := c.bv.ContextualCheckBlock(c.tree, block, c.tip)
		require.Error(t, err)
		assert.Equal(t, "bad-txns-nonfinal", errors.GetRejectReason(err))
		assert.Equal(t, 10, errors.DoSScore(err))

		tx.LockTime = uint32(c.tip.Height) //nolint:gosec // small
		block = c.build(c.tip, GetBlockSubsidy(c.tip.Height+1, c.bv.Params()), tx)

		require.NoError(t, c.bv.ContextualCheckBlock(c.tree, block, c.tip))
	})
}

func TestScriptFlags(t *testing.T) {
	bv := newTestChain(t).bv
	tree, genesis := headerTree(t)
	params := bv.Params()

	at := func(height int32, timestamp uint32) *model.BlockIndex {
		return &model.BlockIndex{ID: model.NoBlock, Parent: genesis.ID, Skip: model.NoBlock, Height: height, Timestamp: timestamp}
	}

	flags, lockTimeFlags := bv.ScriptFlags(tree, at(1, genesis.Timestamp+600))
	assert.Zero(t, flags)
	assert.Zero(t, lockTimeFlags)

	flags, _ = bv.ScriptFlags(tree, at(1, uint32(params.BIP0016Time))) //nolint:gosec // fits
	assert.Equal(t, scriptflag.Bip16, flags)

	flags, _ = bv.ScriptFlags(tree, at(params.BIP0065Height, uint32(params.BIP0016Time))) //nolint:gosec // fits
	assert.Equal(t, scriptflag.Bip16|scriptflag.VerifyDERSignatures|scriptflag.VerifyCheckLockTimeVerify, flags)

	t.Run("csv", func(t *testing.T) {
		tip := addHeaders(tree, genesis, 431, VersionBitsTopBits|1)
		bi := addHeaders(tree, tip, 1, 4)

		flags, lockTimeFlags := bv.ScriptFlags(tree, bi)
		assert.NotZero(t, flags&scriptflag.VerifyCheckSequenceVerify)
		assert.Equal(t, validator.LockTimeVerifySequence, lockTimeFlags)
	})
}

func TestCheckpoints(t *testing.T) {
	tree, genesis := headerTree(t)
	chain := addHeaders(tree, genesis, 20, 4)

	params := chaincfg.RegressionNetParams
	params.Checkpoints = []chaincfg.Checkpoint{
		{Height: 10, Hash: &tree.Ancestor(chain, 10).Hash},
		{Height: 15, Hash: &tree.Ancestor(chain, 15).Hash},
	}

	tSettings := settings.NewRegtestSettings()
	tSettings.ChainCfgParams = &params

	t.Run("disabled", func(t *testing.T) {
		bv := New(ulogger.TestLogger{}, tSettings, nil, WithCheckpoints(false))

		assert.Nil(t, bv.LastCheckpoint(tree))
		require.NoError(t, bv.CheckIndexAgainstCheckpoint(tree, tree.Ancestor(chain, 9), &chainhash.Hash{1}))
	})

	bv := New(ulogger.TestLogger{}, tSettings, nil, WithCheckpoints(true))

	t.Run("last checkpoint", func(t *testing.T) {
		assert.Same(t, tree.Ancestor(chain, 15), bv.LastCheckpoint(tree))
	})

	t.Run("mismatch at checkpoint height", func(t *testing.T) {
		err := bv.CheckIndexAgainstCheckpoint(tree, tree.Ancestor(chain, 14), &chainhash.Hash{1})
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrBlockCheckpoint))

		require.NoError(t, bv.CheckIndexAgainstCheckpoint(tree, tree.Ancestor(chain, 14), &tree.Ancestor(chain, 15).Hash))
	})

	t.Run("fork below the last checkpoint", func(t *testing.T) {
		err := bv.CheckIndexAgainstCheckpoint(tree, tree.Ancestor(chain, 11), &chainhash.Hash{1})
		require.Error(t, err)
		assert.Equal(t, "bad-fork-prior-to-checkpoint", errors.GetRejectReason(err))
		assert.Equal(t, errors.RejectCheckpoint, errors.GetRejectCode(err))
	})

	t.Run("above the last checkpoint", func(t *testing.T) {
		require.NoError(t, bv.CheckIndexAgainstCheckpoint(tree, chain, &chainhash.Hash{1}))
	})
}
