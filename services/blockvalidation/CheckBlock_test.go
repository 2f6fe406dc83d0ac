package blockvalidation

import (
	"testing"
	"time"

	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/chainstate/model"
	"github.com/bsv-blockchain/chainstate/services/validator"
	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckBlock(t *testing.T) {
	c := newTestChain(t)
	c.extend()

	subsidy := GetBlockSubsidy(2, c.bv.Params())
	coinbase := model.NewCoinbaseTx(2, subsidy)
	spend := model.NewSpendTx([]model.SpendOutput{c.coinbaseOutput(1)}, validator.Coin)
	other := model.NewSpendTx([]model.SpendOutput{c.coinbaseOutput(1)}, 2*validator.Coin)

	mine := func(txs ...*bt.Tx) *model.Block {
		return model.MineBlock(&c.tip.Hash, 4, c.tip.Timestamp+600, c.tip.Bits, txs)
	}

	t.Run("valid", func(t *testing.T) {
		require.NoError(t, c.bv.CheckBlock(mine(coinbase, spend), true, true))
	})

	tests := []struct {
		name       string
		block      func() *model.Block
		reason     string
		dos        int
		corruption bool
	}{
		{
			name: "merkle root mismatch",
			block: func() *model.Block {
				block := mine(coinbase)
				return model.NewBlock(block.Header, []*bt.Tx{coinbase, spend})
			},
			reason:     "bad-txnmrklroot",
			dos:        100,
			corruption: true,
		},
		{
			name:       "duplicate transaction",
			block:      func() *model.Block { return mine(coinbase, spend, other, other) },
			reason:     "bad-txns-duplicate",
			dos:        100,
			corruption: true,
		},
		{
			name:   "no transactions",
			block:  func() *model.Block { return mine() },
			reason: "bad-blk-length",
			dos:    100,
		},
		{
			name:   "coinbase missing",
			block:  func() *model.Block { return mine(spend) },
			reason: "bad-cb-missing",
			dos:    100,
		},
		{
			name:   "second coinbase",
			block:  func() *model.Block { return mine(coinbase, model.NewCoinbaseTx(3, subsidy)) },
			reason: "bad-cb-multiple",
			dos:    100,
		},
		{
			name: "transaction without outputs",
			block: func() *model.Block {
				return mine(coinbase, model.NewSpendTx([]model.SpendOutput{c.coinbaseOutput(1)}))
			},
			reason: "bad-txns-vout-empty",
			dos:    10,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.bv.CheckBlock(tt.block(), true, true)
			require.Error(t, err)

			assert.True(t, errors.Is(err, errors.ErrBlockInvalid))
			assert.Equal(t, tt.reason, errors.GetRejectReason(err))
			assert.Equal(t, tt.dos, errors.DoSScore(err))
			assert.Equal(t, tt.corruption, errors.IsCorruptionPossible(err))
		})
	}

	t.Run("merkle root not checked", func(t *testing.T) {
		block := mine(coinbase)
		require.NoError(t, c.bv.CheckBlock(model.NewBlock(block.Header, []*bt.Tx{coinbase, spend}), true, false))
	})
}

func TestCheckBlockHeader(t *testing.T) {
	now := time.Unix(1_400_000_000, 0)
	c := newTestChain(t, WithClock(clock.NewTestClock(now)))

	header := func(bits, timestamp uint32) *model.BlockHeader {
		return &model.BlockHeader{
			Version:        4,
			HashPrevBlock:  &c.tip.Hash,
			HashMerkleRoot: &c.tip.MerkleRoot,
			Timestamp:      timestamp,
			Bits:           bits,
		}
	}

	t.Run("target no hash can meet", func(t *testing.T) {
		err := c.bv.CheckBlockHeader(header(0x03000001, c.tip.Timestamp+600), true)
		require.Error(t, err)
		assert.Equal(t, "high-hash", errors.GetRejectReason(err))
		assert.Equal(t, 50, errors.DoSScore(err))
	})

	t.Run("target above the limit", func(t *testing.T) {
		assert.False(t, CheckProofOfWork(make([]byte, 32), 0x2100ffff, c.bv.Params()))
		assert.True(t, CheckProofOfWork(make([]byte, 32), c.bv.Params().PowLimitBits, c.bv.Params()))
	})

	t.Run("proof of work skipped", func(t *testing.T) {
		require.NoError(t, c.bv.CheckBlockHeader(header(0x03000001, c.tip.Timestamp+600), false))
	})

	t.Run("two hours ahead", func(t *testing.T) {
		limit := uint32(now.Add(2 * time.Hour).Unix()) //nolint:gosec // fits

		require.NoError(t, c.bv.CheckBlockHeader(header(0, limit), false))

		err := c.bv.CheckBlockHeader(header(0, limit+1), false)
		require.Error(t, err)
		assert.Equal(t, "time-too-new", errors.GetRejectReason(err))
		assert.Zero(t, errors.DoSScore(err))
	})
}

func TestGetBlockSubsidy(t *testing.T) {
	params := newTestChain(t).bv.Params()

	assert.Equal(t, 50*validator.Coin, GetBlockSubsidy(0, params))
	assert.Equal(t, 50*validator.Coin, GetBlockSubsidy(149, params))
	assert.Equal(t, 25*validator.Coin, GetBlockSubsidy(150, params))
	assert.Equal(t, uint64(1_250_000_000), GetBlockSubsidy(300, params))
	assert.Equal(t, uint64(1), GetBlockSubsidy(150*32, params))
	assert.Zero(t, GetBlockSubsidy(150*33, params))
	assert.Zero(t, GetBlockSubsidy(150*64, params))
	assert.Zero(t, GetBlockSubsidy(150*1000, params))

	total := uint64(0)
	for height := int32(0); height < 150*64; height += 150 {
		total += GetBlockSubsidy(height, params) * 150
	}

	assert.LessOrEqual(t, total, validator.MaxMoney)
}
