package validator

import (
	"testing"

	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/chainstate/model"
	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/bscript"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func spendOf(b byte, index uint32) model.SpendOutput {
	return model.SpendOutput{Outpoint: model.Outpoint{Hash: chainhash.Hash{b}, Index: index}}
}

func TestCheckTransaction(t *testing.T) {
	t.Run("valid spend", func(t *testing.T) {
		tx := model.NewSpendTx([]model.SpendOutput{spendOf(1, 0), spendOf(1, 1)}, 1000, 2000)
		require.NoError(t, CheckTransaction(tx, 1_000_000))
	})

	t.Run("valid coinbase", func(t *testing.T) {
		require.NoError(t, CheckTransaction(model.NewCoinbaseTx(10, 50*Coin), 1_000_000))
	})

	tests := []struct {
		name   string
		tx     func() *bt.Tx
		reason string
		dos    int
	}{
		{
			name:   "no inputs",
			tx:     func() *bt.Tx { return model.NewSpendTx(nil, 1000) },
			reason: "bad-txns-vin-empty",
			dos:    10,
		},
		{
			name:   "no outputs",
			tx:     func() *bt.Tx { return model.NewSpendTx([]model.SpendOutput{spendOf(1, 0)}) },
			reason: "bad-txns-vout-empty",
			dos:    10,
		},
		{
			name:   "output above max money",
			tx:     func() *bt.Tx { return model.NewSpendTx([]model.SpendOutput{spendOf(1, 0)}, MaxMoney+1) },
			reason: "bad-txns-vout-toolarge",
			dos:    100,
		},
		{
			name:   "outputs sum above max money",
			tx:     func() *bt.Tx { return model.NewSpendTx([]model.SpendOutput{spendOf(1, 0)}, MaxMoney, 1) },
			reason: "bad-txns-txouttotal-toolarge",
			dos:    100,
		},
		{
			name:   "duplicate inputs",
			tx:     func() *bt.Tx { return model.NewSpendTx([]model.SpendOutput{spendOf(1, 0), spendOf(1, 0)}, 1000) },
			reason: "bad-txns-inputs-duplicate",
			dos:    100,
		},
		{
			name: "coinbase script too short",
			tx: func() *bt.Tx {
				tx := model.NewCoinbaseTx(1, 50*Coin)
				tx.Inputs[0].UnlockingScript = bscript.NewFromBytes([]byte{0x51})

				return tx
			},
			reason: "bad-cb-length",
			dos:    100,
		},
		{
			name: "null prevout in non coinbase",
			tx: func() *bt.Tx {
				null := model.SpendOutput{Outpoint: model.Outpoint{Index: 0xffffffff}}
				return model.NewSpendTx([]model.SpendOutput{spendOf(1, 0), null}, 1000)
			},
			reason: "bad-txns-prevout-null",
			dos:    10,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckTransaction(tt.tx(), 1_000_000)
			require.Error(t, err)

			assert.True(t, errors.IsInvalid(err))
			assert.Equal(t, tt.reason, errors.GetRejectReason(err))
			assert.Equal(t, tt.dos, errors.DoSScore(err))
		})
	}

	t.Run("oversize", func(t *testing.T) {
		tx := model.NewSpendTx([]model.SpendOutput{spendOf(1, 0)}, 1000)

		err := CheckTransaction(tx, tx.Size()-1)
		require.Error(t, err)
		assert.Equal(t, "bad-txns-oversize", errors.GetRejectReason(err))
	})
}

func TestMoneyRange(t *testing.T) {
	assert.True(t, MoneyRange(0))
	assert.True(t, MoneyRange(MaxMoney))
	assert.False(t, MoneyRange(MaxMoney+1))
}
