package model

import (
	"math"

	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/bscript"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
)

// helpers to build spendable chains in tests without keys; imported by tests in
// other packages, so they live outside a _test file

// AnyoneCanSpendScript is a locking script satisfied by an unlocking script that
// pushes a true value (OP_VERIFY OP_1).
func AnyoneCanSpendScript() *bscript.Script {
	return bscript.NewFromBytes([]byte{bscript.OpVERIFY, bscript.Op1})
}

// TrueUnlockingScript satisfies AnyoneCanSpendScript.
func TrueUnlockingScript() *bscript.Script {
	return bscript.NewFromBytes([]byte{bscript.Op1})
}

// FalseUnlockingScript fails AnyoneCanSpendScript.
func FalseUnlockingScript() *bscript.Script {
	return bscript.NewFromBytes([]byte{bscript.Op0})
}

// SerializeHeightScript returns the BIP34 prefix a coinbase at the given height must carry.
func SerializeHeightScript(height int32) []byte {
	switch {
	case height == 0:
		return []byte{bscript.Op0}
	case height >= 1 && height <= 16:
		return []byte{bscript.Op1 + byte(height-1)}
	}

	num := scriptNum(int64(height))

	return append([]byte{byte(len(num))}, num...)
}

// scriptNum encodes n as a minimal little-endian sign-magnitude number.
func scriptNum(n int64) []byte {
	if n == 0 {
		return nil
	}

	negative := n < 0

	abs := uint64(n)
	if negative {
		abs = uint64(-n)
	}

	var out []byte
	for abs > 0 {
		out = append(out, byte(abs&0xff))
		abs >>= 8
	}

	if out[len(out)-1]&0x80 != 0 {
		extra := byte(0x00)
		if negative {
			extra = 0x80
		}

		out = append(out, extra)
	} else if negative {
		out[len(out)-1] |= 0x80
	}

	return out
}

// NewCoinbaseTx builds a coinbase paying value to an anyone-can-spend output. The extra
// bytes are appended to the height so coinbases at equal heights can differ.
func NewCoinbaseTx(height int32, value uint64, extra ...byte) *bt.Tx {
	sigScript := SerializeHeightScript(height)
	sigScript = append(sigScript, 0x00)
	sigScript = append(sigScript, extra...)

	in := &bt.Input{
		PreviousTxOutIndex: math.MaxUint32,
		SequenceNumber:     math.MaxUint32,
		UnlockingScript:    bscript.NewFromBytes(sigScript),
	}
	_ = in.PreviousTxIDAdd(&chainhash.Hash{})

	tx := bt.NewTx()
	tx.Inputs = append(tx.Inputs, in)
	tx.AddOutput(&bt.Output{
		Satoshis:      value,
		LockingScript: AnyoneCanSpendScript(),
	})

	return tx
}

// SpendOutput describes one input of a test transaction.
type SpendOutput struct {
	Outpoint Outpoint
	Coin     *Coin
	Sequence uint32
}

// NewSpendTx builds a transaction spending the given outputs with the true unlocking script,
// paying each value in outputs to an anyone-can-spend script.
func NewSpendTx(spends []SpendOutput, outputs ...uint64) *bt.Tx {
	tx := bt.NewTx()

	for _, spend := range spends {
		in := &bt.Input{
			PreviousTxOutIndex: spend.Outpoint.Index,
			SequenceNumber:     spend.Sequence,
			UnlockingScript:    TrueUnlockingScript(),
		}

		if in.SequenceNumber == 0 {
			in.SequenceNumber = math.MaxUint32
		}

		hash := spend.Outpoint.Hash
		_ = in.PreviousTxIDAdd(&hash)

		if spend.Coin != nil {
			in.PreviousTxSatoshis = spend.Coin.Value
			in.PreviousTxScript = bscript.NewFromBytes(spend.Coin.Script)
		}

		tx.Inputs = append(tx.Inputs, in)
	}

	for _, value := range outputs {
		tx.AddOutput(&bt.Output{
			Satoshis:      value,
			LockingScript: AnyoneCanSpendScript(),
		})
	}

	return tx
}

// SpendTxOutput returns a SpendOutput for output index of tx created at the given height.
func SpendTxOutput(tx *bt.Tx, index uint32, height uint32) SpendOutput {
	return SpendOutput{
		Outpoint: NewOutpoint(tx.TxIDChainHash(), index),
		Coin:     NewCoinFromOutput(tx.Outputs[index], height, tx.IsCoinbase()),
	}
}

// MineBlock assembles a block on top of prevHash and grinds the nonce until the
// header meets bits. Only usable with easy targets such as regtest.
func MineBlock(prevHash *chainhash.Hash, version, timestamp, bits uint32, txs []*bt.Tx) *Block {
	hashes := make([]chainhash.Hash, len(txs))
	for i, tx := range txs {
		hashes[i] = *tx.TxIDChainHash()
	}

	merkleRoot, _ := ComputeMerkleRoot(hashes)
	prev := *prevHash

	header := &BlockHeader{
		Version:        version,
		HashPrevBlock:  &prev,
		HashMerkleRoot: &merkleRoot,
		Timestamp:      timestamp,
		Bits:           bits,
	}

	target := CompactToBig(bits)

	for nonce := uint32(0); nonce < math.MaxUint32; nonce++ {
		header.Nonce = nonce
		if HashToBig(header.Hash()[:]).Cmp(target) <= 0 {
			break
		}
	}

	return NewBlock(header, txs)
}
