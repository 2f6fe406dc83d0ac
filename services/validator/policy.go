package validator

import (
	"context"

	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/chainstate/model"
	"github.com/bsv-blockchain/chainstate/settings"
	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/bscript"
	"github.com/bsv-blockchain/go-bt/v2/bscript/interpreter"
	"github.com/bsv-blockchain/go-bt/v2/bscript/interpreter/scriptflag"
)

const (
	// MandatoryScriptVerifyFlags are enforced by every block after the relevant soft
	// forks. A transaction failing only non-mandatory flags is non-standard, not invalid.
	MandatoryScriptVerifyFlags = scriptflag.Bip16

	// StandardScriptVerifyFlags are applied to transactions entering the mempool.
	StandardScriptVerifyFlags = MandatoryScriptVerifyFlags |
		scriptflag.VerifyDERSignatures |
		scriptflag.VerifyStrictEncoding |
		scriptflag.VerifyMinimalData |
		scriptflag.DiscourageUpgradableNops |
		scriptflag.VerifyCleanStack |
		scriptflag.VerifyCheckLockTimeVerify |
		scriptflag.VerifyCheckSequenceVerify |
		scriptflag.VerifyLowS

	// MaxStandardVersion is the highest transaction version relayed.
	MaxStandardVersion = 2

	// MaxP2SHSigOps bounds the sigops of a standard redeem script.
	MaxP2SHSigOps = 15
)

// ScriptClass is the template a locking script matches.
type ScriptClass int

const (
	NonStandard ScriptClass = iota
	PubKey
	PubKeyHash
	ScriptHash
	MultiSig
	NullData
)

func (c ScriptClass) String() string {
	switch c {
	case PubKey:
		return "pubkey"
	case PubKeyHash:
		return "pubkeyhash"
	case ScriptHash:
		return "scripthash"
	case MultiSig:
		return "multisig"
	case NullData:
		return "nulldata"
	default:
		return "nonstandard"
	}
}

// ClassifyScript matches a locking script against the standard templates.
func ClassifyScript(script *bscript.Script) ScriptClass {
	if script == nil || len(*script) == 0 {
		return NonStandard
	}

	switch {
	case script.IsP2PKH():
		return PubKeyHash
	case script.IsP2SH():
		return ScriptHash
	case script.IsP2PK():
		return PubKey
	case isNullData(*script):
		return NullData
	case isStandardMultiSig(script):
		return MultiSig
	}

	return NonStandard
}

// isNullData matches OP_RETURN followed only by pushes.
func isNullData(script []byte) bool {
	if len(script) == 0 || script[0] != bscript.OpRETURN {
		return false
	}

	pushOnly := true

	ok := walkScript(script[1:], func(op byte, _ []byte) {
		if op > bscript.Op16 {
			pushOnly = false
		}
	})

	return ok && pushOnly
}

// isStandardMultiSig matches m-of-n bare multisig with at most three keys.
func isStandardMultiSig(script *bscript.Script) bool {
	parser := interpreter.DefaultOpcodeParser{}

	parsed, err := parser.Parse(script)
	if err != nil || len(parsed) < 4 {
		return false
	}

	if parsed[len(parsed)-1].Value() != bscript.OpCHECKMULTISIG {
		return false
	}

	m := smallInt(parsed[0].Value())
	n := smallInt(parsed[len(parsed)-2].Value())

	if m < 1 || n < 1 || n > 3 || m > n || len(parsed) != n+3 {
		return false
	}

	for _, op := range parsed[1 : len(parsed)-2] {
		if l := len(op.Data); l != 33 && l != 65 {
			return false
		}
	}

	return true
}

func smallInt(op byte) int {
	if op >= bscript.Op1 && op <= bscript.Op16 {
		return int(op-bscript.Op1) + 1
	}

	return 0
}

func isPushOnly(script *bscript.Script) bool {
	if script == nil {
		return true
	}

	parser := interpreter.DefaultOpcodeParser{}

	parsed, err := parser.Parse(script)
	if err != nil {
		return false
	}

	return parsed.IsPushOnly()
}

// GetFee returns the fee for size bytes at feeRate satoshis per 1000 bytes. A non-zero
// rate never yields a zero fee.
func GetFee(feeRate int64, size int) int64 {
	fee := feeRate * int64(size) / 1000
	if fee == 0 && feeRate > 0 && size > 0 {
		fee = 1
	}

	return fee
}

// DustThreshold is the smallest value an output can carry without costing more than a
// third of its value in fees to spend at the relay fee rate.
func DustThreshold(out *bt.Output, minRelayFee int64) uint64 {
	if out.LockingScript != nil && len(*out.LockingScript) > 0 && (*out.LockingScript)[0] == bscript.OpRETURN {
		return 0
	}

	// serialized output plus a typical spending input
	size := 8 + len(bt.VarInt(len(scriptBytes(out.LockingScript))).Bytes()) + len(scriptBytes(out.LockingScript)) + 148

	return uint64(3 * GetFee(minRelayFee, size)) //nolint:gosec // fees are positive
}

func IsDust(out *bt.Output, minRelayFee int64) bool {
	return out.Satoshis < DustThreshold(out, minRelayFee)
}

// IsStandardTx applies the relay policy to the transaction itself.
func IsStandardTx(tx *bt.Tx, policy *settings.PolicySettings) error {
	if version := int32(tx.Version); version > MaxStandardVersion || version < 1 { //nolint:gosec // versions are compared as signed
		return errors.NewTxPolicyError(errors.RejectNonstandard, "version")
	}

	if tx.Size() >= policy.MaxStandardTxSize {
		return errors.NewTxPolicyError(errors.RejectNonstandard, "tx-size")
	}

	for _, in := range tx.Inputs {
		if len(scriptBytes(in.UnlockingScript)) > policy.MaxStandardScriptSigSize {
			return errors.NewTxPolicyError(errors.RejectNonstandard, "scriptsig-size")
		}

		if !isPushOnly(in.UnlockingScript) {
			return errors.NewTxPolicyError(errors.RejectNonstandard, "scriptsig-not-pushonly")
		}
	}

	dataOut := 0

	for _, out := range tx.Outputs {
		class := ClassifyScript(out.LockingScript)

		switch class {
		case NonStandard:
			return errors.NewTxPolicyError(errors.RejectNonstandard, "scriptpubkey")
		case NullData:
			if !policy.DataCarrier || len(*out.LockingScript) > policy.DataCarrierSize {
				return errors.NewTxPolicyError(errors.RejectNonstandard, "scriptpubkey")
			}

			dataOut++

			continue
		case MultiSig:
			if !policy.PermitBareMultisig {
				return errors.NewTxPolicyError(errors.RejectNonstandard, "bare-multisig")
			}
		}

		if IsDust(out, policy.DustRelayFee) {
			return errors.NewTxPolicyError(errors.RejectDust, "dust")
		}
	}

	if dataOut > 1 {
		return errors.NewTxPolicyError(errors.RejectNonstandard, "multi-op-return")
	}

	return nil
}

// AreInputsStandard checks that every spent output follows a standard template and
// that P2SH redeem scripts stay within the sigop budget.
func AreInputsStandard(ctx context.Context, tx *bt.Tx, view CoinsView) (bool, error) {
	if tx.IsCoinbase() {
		return true, nil
	}

	for _, in := range tx.Inputs {
		coin, err := view.GetCoin(ctx, model.InputOutpoint(in))
		if err != nil {
			return false, err
		}

		if coin == nil {
			return false, errors.NewUtxoNotFoundError("input %s not found", model.InputOutpoint(in))
		}

		class := ClassifyScript(bscript.NewFromBytes(coin.Script))
		if class == NonStandard {
			return false, nil
		}

		if class == ScriptHash {
			redeem, ok := p2shRedeemScript(scriptBytes(in.UnlockingScript))
			if !ok || CountSigOps(redeem, true) > MaxP2SHSigOps {
				return false, nil
			}
		}
	}

	return true, nil
}
