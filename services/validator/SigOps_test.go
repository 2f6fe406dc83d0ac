package validator

import (
	"context"
	"testing"

	"github.com/bsv-blockchain/chainstate/model"
	"github.com/bsv-blockchain/go-bt/v2/bscript"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapView map[model.Outpoint]*model.Coin

func (m mapView) GetCoin(_ context.Context, outpoint model.Outpoint) (*model.Coin, error) {
	return m[outpoint], nil
}

func p2shScript() []byte {
	script := []byte{bscript.OpHASH160, 0x14}
	script = append(script, make([]byte, 20)...)

	return append(script, bscript.OpEQUAL)
}

func TestCountSigOps(t *testing.T) {
	assert.Equal(t, 2, CountSigOps([]byte{bscript.OpCHECKSIG, bscript.OpCHECKSIGVERIFY}, false))
	assert.Equal(t, 0, CountSigOps(nil, true))

	multi := []byte{bscript.Op1, bscript.Op2, bscript.OpCHECKMULTISIG}
	assert.Equal(t, 2, CountSigOps(multi, true))
	assert.Equal(t, maxPubKeysPerMultiSig, CountSigOps(multi, false))

	// no preceding small int counts the maximum even in accurate mode
	assert.Equal(t, maxPubKeysPerMultiSig, CountSigOps([]byte{bscript.OpCHECKMULTISIGVERIFY}, true))

	// pushed bytes are data, not opcodes
	assert.Equal(t, 0, CountSigOps([]byte{0x02, bscript.OpCHECKSIG, bscript.OpCHECKSIG}, false))

	// counting stops at a truncated push but keeps what came before
	assert.Equal(t, 1, CountSigOps([]byte{bscript.OpCHECKSIG, bscript.OpPUSHDATA1}, false))
	assert.Equal(t, 1, CountSigOps([]byte{bscript.OpCHECKSIG, 0x05, 0x01}, false))
}

func TestGetLegacySigOpCount(t *testing.T) {
	tx := model.NewSpendTx([]model.SpendOutput{spendOf(1, 0)}, 1000)
	tx.Outputs[0].LockingScript = bscript.NewFromBytes([]byte{bscript.OpCHECKSIG})
	tx.Inputs[0].UnlockingScript = bscript.NewFromBytes([]byte{bscript.OpCHECKMULTISIG})

	assert.Equal(t, 1+maxPubKeysPerMultiSig, GetLegacySigOpCount(tx))
}

func TestGetP2SHSigOpCount(t *testing.T) {
	ctx := context.Background()

	p2sh := spendOf(1, 0)
	plain := spendOf(2, 0)

	view := mapView{
		p2sh.Outpoint:  {Value: 1000, Script: p2shScript()},
		plain.Outpoint: {Value: 1000, Script: *model.AnyoneCanSpendScript()},
	}

	tx := model.NewSpendTx([]model.SpendOutput{p2sh, plain}, 1500)

	// the redeem script is the last push: two checksigs
	tx.Inputs[0].UnlockingScript = bscript.NewFromBytes([]byte{bscript.Op1, 0x02, bscript.OpCHECKSIG, bscript.OpCHECKSIG})
	// non P2SH inputs are not inspected
	tx.Inputs[1].UnlockingScript = bscript.NewFromBytes([]byte{0x01, bscript.OpCHECKSIG})

	count, err := GetP2SHSigOpCount(ctx, tx, view)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	coinbase := model.NewCoinbaseTx(1, 50*Coin)
	count, err = GetP2SHSigOpCount(ctx, coinbase, view)
	require.NoError(t, err)
	assert.Zero(t, count)

	missing := model.NewSpendTx([]model.SpendOutput{spendOf(9, 9)}, 1)
	_, err = GetP2SHSigOpCount(ctx, missing, view)
	require.Error(t, err)
}
