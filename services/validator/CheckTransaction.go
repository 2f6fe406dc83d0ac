package validator

import (
	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/chainstate/model"
	"github.com/bsv-blockchain/go-bt/v2"
)

const (
	// Coin is the number of satoshis in one coin.
	Coin uint64 = 100_000_000

	// MaxMoney is the largest amount any output, or sum of outputs, may hold.
	MaxMoney = 21_000_000 * Coin
)

// MoneyRange reports whether value is a valid amount.
func MoneyRange(value uint64) bool {
	return value <= MaxMoney
}

// CheckTransaction runs the checks that need nothing but the transaction itself.
func CheckTransaction(tx *bt.Tx, maxBlockSize int) error {
	if len(tx.Inputs) == 0 {
		return errors.NewTxInvalidError(10, errors.RejectInvalid, "bad-txns-vin-empty")
	}

	if len(tx.Outputs) == 0 {
		return errors.NewTxInvalidError(10, errors.RejectInvalid, "bad-txns-vout-empty")
	}

	if tx.Size() > maxBlockSize {
		return errors.NewTxInvalidError(100, errors.RejectInvalid, "bad-txns-oversize: %d bytes", tx.Size())
	}

	var valueOut uint64

	for i, out := range tx.Outputs {
		if out.Satoshis > MaxMoney {
			return errors.NewTxInvalidError(100, errors.RejectInvalid, "bad-txns-vout-toolarge: output %d", i)
		}

		valueOut += out.Satoshis
		if !MoneyRange(valueOut) {
			return errors.NewTxInvalidError(100, errors.RejectInvalid, "bad-txns-txouttotal-toolarge")
		}
	}

	seen := make(map[model.Outpoint]struct{}, len(tx.Inputs))

	for _, in := range tx.Inputs {
		outpoint := model.InputOutpoint(in)
		if _, ok := seen[outpoint]; ok {
			return errors.NewTxInvalidError(100, errors.RejectInvalid, "bad-txns-inputs-duplicate: %s", outpoint)
		}

		seen[outpoint] = struct{}{}
	}

	if tx.IsCoinbase() {
		size := 0
		if tx.Inputs[0].UnlockingScript != nil {
			size = len(*tx.Inputs[0].UnlockingScript)
		}

		if size < 2 || size > 100 {
			return errors.NewTxInvalidError(100, errors.RejectInvalid, "bad-cb-length: %d", size)
		}

		return nil
	}

	for _, in := range tx.Inputs {
		if model.InputOutpoint(in).IsNull() {
			return errors.NewTxInvalidError(10, errors.RejectInvalid, "bad-txns-prevout-null")
		}
	}

	return nil
}
