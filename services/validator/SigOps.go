package validator

import (
	"context"
	"encoding/binary"

	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/chainstate/model"
	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/bscript"
)

// maxPubKeysPerMultiSig is counted for a multisig whose key count is not known.
const maxPubKeysPerMultiSig = 20

// walkScript calls fn for every opcode with its push data. It stops at the first
// truncated push and reports whether the whole script was well formed. Counting has to
// include the opcodes before a malformed push, which is why this does not go through
// the interpreter's parser.
func walkScript(script []byte, fn func(op byte, data []byte)) bool {
	for i := 0; i < len(script); {
		op := script[i]
		i++

		var size int

		switch {
		case op > 0 && op < bscript.OpPUSHDATA1:
			size = int(op)
		case op == bscript.OpPUSHDATA1:
			if i+1 > len(script) {
				return false
			}

			size = int(script[i])
			i++
		case op == bscript.OpPUSHDATA2:
			if i+2 > len(script) {
				return false
			}

			size = int(binary.LittleEndian.Uint16(script[i:]))
			i += 2
		case op == bscript.OpPUSHDATA4:
			if i+4 > len(script) {
				return false
			}

			size = int(binary.LittleEndian.Uint32(script[i:]))
			i += 4
		}

		if size < 0 || i+size > len(script) {
			return false
		}

		fn(op, script[i:i+size])
		i += size
	}

	return true
}

// CountSigOps counts signature operations in a script. In accurate mode a multisig
// preceded by OP_1..OP_16 counts that many keys, otherwise it counts the maximum.
func CountSigOps(script []byte, accurate bool) int {
	var (
		count int
		last  byte = 0xff
	)

	walkScript(script, func(op byte, _ []byte) {
		switch op {
		case bscript.OpCHECKSIG, bscript.OpCHECKSIGVERIFY:
			count++
		case bscript.OpCHECKMULTISIG, bscript.OpCHECKMULTISIGVERIFY:
			if accurate && last >= bscript.Op1 && last <= bscript.Op16 {
				count += int(last-bscript.Op1) + 1
			} else {
				count += maxPubKeysPerMultiSig
			}
		}

		last = op
	})

	return count
}

func scriptBytes(s *bscript.Script) []byte {
	if s == nil {
		return nil
	}

	return *s
}

// GetLegacySigOpCount counts the sigops of all input and output scripts of tx the
// pre-P2SH way.
func GetLegacySigOpCount(tx *bt.Tx) int {
	var count int

	for _, in := range tx.Inputs {
		count += CountSigOps(scriptBytes(in.UnlockingScript), false)
	}

	for _, out := range tx.Outputs {
		count += CountSigOps(scriptBytes(out.LockingScript), false)
	}

	return count
}

// p2shRedeemScript returns the last push of a push-only unlocking script.
func p2shRedeemScript(unlocking []byte) ([]byte, bool) {
	var (
		redeem   []byte
		pushOnly = true
	)

	ok := walkScript(unlocking, func(op byte, data []byte) {
		if op > bscript.Op16 {
			pushOnly = false
		}

		redeem = data
	})

	return redeem, ok && pushOnly
}

// GetP2SHSigOpCount counts the sigops in the redeem scripts of inputs spending
// pay-to-script-hash outputs.
func GetP2SHSigOpCount(ctx context.Context, tx *bt.Tx, view CoinsView) (int, error) {
	if tx.IsCoinbase() {
		return 0, nil
	}

	var count int

	for _, in := range tx.Inputs {
		coin, err := view.GetCoin(ctx, model.InputOutpoint(in))
		if err != nil {
			return 0, err
		}

		if coin == nil {
			return 0, errors.NewUtxoNotFoundError("input %s not found", model.InputOutpoint(in))
		}

		if !bscript.NewFromBytes(coin.Script).IsP2SH() {
			continue
		}

		if redeem, ok := p2shRedeemScript(scriptBytes(in.UnlockingScript)); ok {
			count += CountSigOps(redeem, true)
		}
	}

	return count, nil
}
