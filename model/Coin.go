package model

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/bscript"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	safeconversion "github.com/bsv-blockchain/go-safe-conversion"
)

const OutpointSize = chainhash.HashSize + 4

// Outpoint identifies a transaction output.
type Outpoint struct {
	Hash  chainhash.Hash
	Index uint32
}

func NewOutpoint(hash *chainhash.Hash, index uint32) Outpoint {
	return Outpoint{Hash: *hash, Index: index}
}

// InputOutpoint returns the outpoint spent by in.
func InputOutpoint(in *bt.Input) Outpoint {
	op := Outpoint{Index: in.PreviousTxOutIndex}
	if h := in.PreviousTxIDChainHash(); h != nil {
		op.Hash = *h
	}

	return op
}

// IsNull reports whether this is the null outpoint referenced by coinbase inputs.
func (o Outpoint) IsNull() bool {
	return o.Index == 0xffffffff && o.Hash == chainhash.Hash{}
}

// Bytes returns the 36 byte key form: hash followed by little-endian index.
func (o Outpoint) Bytes() []byte {
	b := make([]byte, OutpointSize)
	copy(b, o.Hash[:])
	binary.LittleEndian.PutUint32(b[chainhash.HashSize:], o.Index)

	return b
}

func NewOutpointFromBytes(b []byte) (Outpoint, error) {
	if len(b) != OutpointSize {
		return Outpoint{}, errors.NewInvalidArgumentError("outpoint should be %d bytes, got %d", OutpointSize, len(b))
	}

	var o Outpoint
	copy(o.Hash[:], b[:chainhash.HashSize])
	o.Index = binary.LittleEndian.Uint32(b[chainhash.HashSize:])

	return o, nil
}

func (o Outpoint) String() string {
	return fmt.Sprintf("%s:%d", o.Hash, o.Index)
}

// Coin is an unspent output together with the context it was created in.
type Coin struct {
	Value      uint64
	Script     []byte
	Height     uint32
	IsCoinbase bool
}

func NewCoinFromOutput(out *bt.Output, height uint32, isCoinbase bool) *Coin {
	c := &Coin{
		Value:      out.Satoshis,
		Height:     height,
		IsCoinbase: isCoinbase,
	}

	if out.LockingScript != nil {
		c.Script = make([]byte, len(*out.LockingScript))
		copy(c.Script, *out.LockingScript)
	}

	return c
}

// Output returns the coin in the shape the script interpreter expects.
func (c *Coin) Output() *bt.Output {
	return &bt.Output{
		Satoshis:      c.Value,
		LockingScript: bscript.NewFromBytes(c.Script),
	}
}

// DynamicMemoryUsage approximates the heap footprint of the coin.
func (c *Coin) DynamicMemoryUsage() int {
	return 48 + cap(c.Script)
}

func (c *Coin) Equal(other *Coin) bool {
	if c == nil || other == nil {
		return c == other
	}

	return c.Value == other.Value &&
		c.Height == other.Height &&
		c.IsCoinbase == other.IsCoinbase &&
		string(c.Script) == string(other.Script)
}

func (c *Coin) Clone() *Coin {
	if c == nil {
		return nil
	}

	clone := *c
	clone.Script = append([]byte(nil), c.Script...)

	return &clone
}

// Bytes encodes the coin as: height<<1|coinbase (uint32 LE), value (uint64 LE),
// script length (varint), script.
func (c *Coin) Bytes() []byte {
	b := make([]byte, 0, 12+9+len(c.Script))

	var flag uint32
	if c.IsCoinbase {
		flag = 1
	}

	encodedHeight := (c.Height << 1) | flag

	b = binary.LittleEndian.AppendUint32(b, encodedHeight)
	b = binary.LittleEndian.AppendUint64(b, c.Value)
	b = append(b, bt.VarInt(len(c.Script)).Bytes()...)
	b = append(b, c.Script...)

	return b
}

func NewCoinFromReader(r io.Reader) (*Coin, error) {
	var fixed [12]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		return nil, errors.NewStorageError("failed to read coin header", err)
	}

	encodedHeight := binary.LittleEndian.Uint32(fixed[:4])

	c := &Coin{
		Height:     encodedHeight >> 1,
		IsCoinbase: encodedHeight&1 == 1,
		Value:      binary.LittleEndian.Uint64(fixed[4:]),
	}

	var scriptLen bt.VarInt
	if _, err := scriptLen.ReadFrom(r); err != nil {
		return nil, errors.NewStorageError("failed to read coin script length", err)
	}

	l, err := safeconversion.Uint64ToInt(uint64(scriptLen))
	if err != nil || l > MaxScriptSize {
		return nil, errors.NewStorageError("invalid coin script length %d", uint64(scriptLen))
	}

	c.Script = make([]byte, l)
	if _, err = io.ReadFull(r, c.Script); err != nil {
		return nil, errors.NewStorageError("failed to read coin script", err)
	}

	return c, nil
}

// MaxScriptSize is the largest locking script the coin decoder accepts.
const MaxScriptSize = 10_000_000

func (c *Coin) String() string {
	return fmt.Sprintf("value %d, height %d, coinbase %t, script %x", c.Value, c.Height, c.IsCoinbase, c.Script)
}

// IsUnspendable reports whether the locking script can never be satisfied, in which
// case the output is never added to the UTXO set.
func (c *Coin) IsUnspendable() bool {
	return len(c.Script) > 0 && c.Script[0] == 0x6a || len(c.Script) > MaxScriptSize
}
