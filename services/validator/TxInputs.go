package validator

import (
	"context"

	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/chainstate/model"
	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/bscript/interpreter/scriptflag"
)

// CheckTxInputs resolves every input of a non-coinbase tx against view and checks
// coinbase maturity at spendHeight and the value ranges. It returns the fee.
func CheckTxInputs(ctx context.Context, tx *bt.Tx, view CoinsView, spendHeight, coinbaseMaturity int32) (uint64, error) {
	if tx.IsCoinbase() {
		return 0, errors.NewInvalidArgumentError("coinbase tx %s has no inputs to check", tx.TxID())
	}

	var valueIn uint64

	for i, in := range tx.Inputs {
		outpoint := model.InputOutpoint(in)

		coin, err := view.GetCoin(ctx, outpoint)
		if err != nil {
			return 0, err
		}

		if coin == nil {
			return 0, errors.NewTxInvalidDoubleSpendError(0, "bad-txns-inputs-missingorspent: input %d spends %s", i, outpoint)
		}

		if coin.IsCoinbase && spendHeight-int32(coin.Height) < coinbaseMaturity { //nolint:gosec // heights fit int32
			return 0, errors.NewTxPrematureSpendError("bad-txns-premature-spend-of-coinbase: input %d tries to spend coinbase at depth %d", i, spendHeight-int32(coin.Height)) //nolint:gosec // heights fit int32
		}

		valueIn += coin.Value
		if !MoneyRange(coin.Value) || !MoneyRange(valueIn) {
			return 0, errors.NewTxInvalidError(100, errors.RejectInvalid, "bad-txns-inputvalues-outofrange")
		}
	}

	valueOut := tx.TotalOutputSatoshis()
	if valueIn < valueOut {
		return 0, errors.NewTxInvalidError(100, errors.RejectInvalid, "bad-txns-in-belowout: value in (%d) < value out (%d)", valueIn, valueOut)
	}

	fee := valueIn - valueOut
	if !MoneyRange(fee) {
		return 0, errors.NewTxInvalidError(100, errors.RejectInvalid, "bad-txns-fee-outofrange")
	}

	return fee, nil
}

// BuildScriptChecks creates one check per input of tx, capturing the spent output
// from view.
func BuildScriptChecks(ctx context.Context, tx *bt.Tx, view CoinsView, flags scriptflag.Flag) ([]*ScriptCheck, error) {
	checks := make([]*ScriptCheck, 0, len(tx.Inputs))

	for i, in := range tx.Inputs {
		coin, err := view.GetCoin(ctx, model.InputOutpoint(in))
		if err != nil {
			return nil, err
		}

		if coin == nil {
			return nil, errors.NewTxInvalidDoubleSpendError(0, "bad-txns-inputs-missingorspent: input %d spends %s", i, model.InputOutpoint(in))
		}

		checks = append(checks, &ScriptCheck{
			Tx:         tx,
			InputIndex: i,
			PrevOut:    coin.Output(),
			Flags:      flags,
		})
	}

	return checks, nil
}
