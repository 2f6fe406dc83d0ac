package model

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/chainstate/util"
	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/bscript"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
)

// Block is a full block: header plus its ordered transaction list.
type Block struct {
	Header       *BlockHeader
	Transactions []*bt.Tx

	hash *chainhash.Hash
	size int
}

func NewBlock(header *BlockHeader, txs []*bt.Tx) *Block {
	return &Block{
		Header:       header,
		Transactions: txs,
	}
}

func NewBlockFromBytes(blockBytes []byte) (*Block, error) {
	block, err := NewBlockFromReader(bytes.NewReader(blockBytes))
	if err != nil {
		return nil, err
	}

	block.size = len(blockBytes)

	return block, nil
}

func NewBlockFromReader(r io.Reader) (*Block, error) {
	headerBytes := make([]byte, BlockHeaderSize)
	if _, err := io.ReadFull(r, headerBytes); err != nil {
		return nil, errors.NewInvalidArgumentError("failed to read block header", err)
	}

	header, err := NewBlockHeaderFromBytes(headerBytes)
	if err != nil {
		return nil, err
	}

	var txCount bt.VarInt
	if _, err = txCount.ReadFrom(r); err != nil {
		return nil, errors.NewInvalidArgumentError("failed to read transaction count", err)
	}

	if uint64(txCount) > MaxBlockTransactions {
		return nil, errors.NewInvalidArgumentError("transaction count %d too large", uint64(txCount))
	}

	txs := make([]*bt.Tx, 0, txCount)

	for i := uint64(0); i < uint64(txCount); i++ {
		tx := &bt.Tx{}
		if _, err = tx.ReadFrom(r); err != nil {
			return nil, errors.NewInvalidArgumentError("failed to read transaction %d", i, err)
		}

		txs = append(txs, tx)
	}

	return &Block{
		Header:       header,
		Transactions: txs,
	}, nil
}

// MaxBlockTransactions bounds the transaction count accepted by the block decoder.
const MaxBlockTransactions = 1 << 22

func (b *Block) Hash() *chainhash.Hash {
	if b.hash == nil {
		b.hash = b.Header.Hash()
	}

	return b.hash
}

func (b *Block) Bytes() []byte {
	buf := bytes.NewBuffer(make([]byte, 0, b.size))

	buf.Write(b.Header.Bytes())
	buf.Write(bt.VarInt(len(b.Transactions)).Bytes())

	for _, tx := range b.Transactions {
		buf.Write(tx.Bytes())
	}

	return buf.Bytes()
}

// Size returns the serialized size of the block in bytes.
func (b *Block) Size() int {
	if b.size == 0 {
		size := BlockHeaderSize + util.VarintSize(uint64(len(b.Transactions)))
		for _, tx := range b.Transactions {
			size += tx.Size()
		}

		b.size = size
	}

	return b.size
}

func (b *Block) String() string {
	return fmt.Sprintf("%s (%d transactions)", b.Hash(), len(b.Transactions))
}

// CalcMerkleRoot computes the merkle root of the transaction list. Mutated is set when the
// list contains a duplicated subtree that produces the same root as a shorter list.
func (b *Block) CalcMerkleRoot() (root chainhash.Hash, mutated bool) {
	hashes := make([]chainhash.Hash, len(b.Transactions))
	for i, tx := range b.Transactions {
		hashes[i] = *tx.TxIDChainHash()
	}

	return ComputeMerkleRoot(hashes)
}

// ComputeMerkleRoot builds the merkle root over hashes, duplicating the last hash of odd levels.
func ComputeMerkleRoot(hashes []chainhash.Hash) (root chainhash.Hash, mutated bool) {
	if len(hashes) == 0 {
		return chainhash.Hash{}, false
	}

	level := make([]chainhash.Hash, len(hashes))
	copy(level, hashes)

	var buf [chainhash.HashSize * 2]byte

	for len(level) > 1 {
		for i := 0; i+1 < len(level); i += 2 {
			if level[i] == level[i+1] {
				mutated = true
			}
		}

		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}

		next := make([]chainhash.Hash, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			copy(buf[:chainhash.HashSize], level[i][:])
			copy(buf[chainhash.HashSize:], level[i+1][:])
			next[i/2] = chainhash.DoubleHashH(buf[:])
		}

		level = next
	}

	return level[0], mutated
}

// ExtractCoinbaseHeight attempts to extract the height of the block from the
// scriptSig of a coinbase transaction. Heights are present from BIP0034 onwards.
func (b *Block) ExtractCoinbaseHeight() (uint32, error) {
	if len(b.Transactions) == 0 || len(b.Transactions[0].Inputs) != 1 {
		return 0, errors.ErrCoinbaseMissingBlockHeight
	}

	return ExtractCoinbaseHeight(b.Transactions[0])
}

func ExtractCoinbaseHeight(coinbase *bt.Tx) (uint32, error) {
	if coinbase.Inputs[0].UnlockingScript == nil || len(*coinbase.Inputs[0].UnlockingScript) < 1 {
		return 0, errors.NewCoinbaseMissingBlockHeightError("the coinbase signature script must start with the length of the serialized block height")
	}

	sigScript := *coinbase.Inputs[0].UnlockingScript

	// Detect the case when the block height is a small integer encoded with a single byte.
	opcode := sigScript[0]
	if opcode == bscript.Op0 {
		return 0, nil
	}

	if opcode >= bscript.Op1 && opcode <= bscript.Op16 {
		return uint32(opcode - (bscript.Op1 - 1)), nil
	}

	// Otherwise, the opcode is the length of the following bytes which encode the block height.
	serializedLen := int(sigScript[0])
	if serializedLen > 8 || len(sigScript[1:]) < serializedLen {
		return 0, errors.NewCoinbaseMissingBlockHeightError("the coinbase signature script must start with the serialized block height (%d bytes)", serializedLen)
	}

	serializedHeightBytes := make([]byte, 8)
	copy(serializedHeightBytes, sigScript[1:serializedLen+1])
	serializedHeight := binary.LittleEndian.Uint64(serializedHeightBytes)

	return uint32(serializedHeight), nil
}
