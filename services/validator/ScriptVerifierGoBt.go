package validator

import (
	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/chainstate/ulogger"
	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/bscript/interpreter"
	"github.com/bsv-blockchain/go-bt/v2/bscript/interpreter/scriptflag"
)

type scriptVerifierGoBt struct {
	logger ulogger.Logger
}

// NewScriptVerifierGoBt returns a verifier backed by the go-bt script interpreter.
func NewScriptVerifierGoBt(logger ulogger.Logger) ScriptVerifier {
	return &scriptVerifierGoBt{
		logger: logger,
	}
}

func (v *scriptVerifierGoBt) VerifyInput(tx *bt.Tx, inputIdx int, prevOut *bt.Output, flags scriptflag.Flag) error {
	if inputIdx < 0 || inputIdx >= len(tx.Inputs) {
		return errors.NewInvalidArgumentError("input %d out of range for tx %s", inputIdx, tx.TxID())
	}

	if prevOut == nil || prevOut.LockingScript == nil {
		return errors.NewInvalidArgumentError("no previous output for input %d of tx %s", inputIdx, tx.TxID())
	}

	if tx.Inputs[inputIdx].UnlockingScript == nil {
		return errors.NewTxScriptError(100, errors.RejectInvalid, "script-verify-flag-failed input %d of tx %s has no unlocking script", inputIdx, tx.TxID())
	}

	if err := interpreter.NewEngine().Execute(
		interpreter.WithTx(tx, inputIdx, prevOut),
		interpreter.WithFlags(flags),
	); err != nil {
		return errors.NewTxScriptError(100, errors.RejectInvalid, "script-verify-flag-failed input %d of tx %s: %v", inputIdx, tx.TxID(), err.Error())
	}

	return nil
}
