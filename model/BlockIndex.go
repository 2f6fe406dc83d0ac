package model

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math/big"

	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
)

// BlockStatus is a bit field describing how far a block has been validated and
// which of its data is available on disk.
type BlockStatus uint32

const (
	// StatusValidUnknown means nothing has been validated yet.
	StatusValidUnknown BlockStatus = 0

	// StatusValidHeader means the header parses, PoW is met and the timestamp is not in the future.
	StatusValidHeader BlockStatus = 1

	// StatusValidTree means all parent headers are known and the contextual header checks passed.
	StatusValidTree BlockStatus = 2

	// StatusValidTransactions means the block data passed the context free checks and the
	// transaction count is known.
	StatusValidTransactions BlockStatus = 3

	// StatusValidChain means outputs do not overspend, no double spends, coinbase output ok,
	// and all parents are also at least StatusValidChain.
	StatusValidChain BlockStatus = 4

	// StatusValidScripts means scripts and signatures are ok.
	StatusValidScripts BlockStatus = 5

	StatusValidMask BlockStatus = StatusValidHeader | StatusValidTree | StatusValidTransactions |
		StatusValidChain | StatusValidScripts

	StatusHaveData BlockStatus = 8  // full block available in a blk file
	StatusHaveUndo BlockStatus = 16 // undo data available in a rev file
	StatusHaveMask BlockStatus = StatusHaveData | StatusHaveUndo

	StatusFailedValid BlockStatus = 32 // the block itself failed validation
	StatusFailedChild BlockStatus = 64 // descends from a failed block
	StatusFailedMask  BlockStatus = StatusFailedValid | StatusFailedChild
)

func (s BlockStatus) String() string {
	return fmt.Sprintf("valid=%d data=%t undo=%t failed=%t failedChild=%t",
		s&StatusValidMask, s&StatusHaveData != 0, s&StatusHaveUndo != 0, s&StatusFailedValid != 0, s&StatusFailedChild != 0)
}

// BlockID is the dense arena index of a block in a BlockTree.
type BlockID uint32

// NoBlock is the id used for "no parent" and "not found".
const NoBlock = ^BlockID(0)

// BlockIndex is the in-memory metadata kept for every known header. Entries are
// owned by a BlockTree and refer to each other by BlockID.
type BlockIndex struct {
	ID     BlockID
	Parent BlockID
	Skip   BlockID

	Hash   chainhash.Hash
	Height int32

	Version    uint32
	MerkleRoot chainhash.Hash
	Timestamp  uint32
	Bits       uint32
	Nonce      uint32

	// ChainWork is the total work of the chain up to and including this block.
	ChainWork *big.Int

	Status BlockStatus

	// TxCount is the number of transactions in this block, zero until the data is seen.
	TxCount uint32

	// ChainTxCount is the number of transactions in the chain up to and including this
	// block. Only set when this block and all its ancestors have data.
	ChainTxCount uint64

	File    int32
	DataPos uint32
	UndoPos uint32

	// SequenceID orders blocks by when their data was received; lower wins ties on equal work.
	SequenceID int32
}

// Header rebuilds the block header of this entry.
func (bi *BlockIndex) Header(prevHash *chainhash.Hash) *BlockHeader {
	merkleRoot := bi.MerkleRoot

	prev := &chainhash.Hash{}
	if prevHash != nil {
		*prev = *prevHash
	}

	return &BlockHeader{
		Version:        bi.Version,
		HashPrevBlock:  prev,
		HashMerkleRoot: &merkleRoot,
		Timestamp:      bi.Timestamp,
		Bits:           bi.Bits,
		Nonce:          bi.Nonce,
	}
}

// IsValid reports whether the block is valid up to the given level and not failed.
func (bi *BlockIndex) IsValid(upTo BlockStatus) bool {
	if bi.Status&StatusFailedMask != 0 {
		return false
	}

	return bi.Status&StatusValidMask >= upTo
}

// RaiseValidity raises the validity level and reports whether it changed.
func (bi *BlockIndex) RaiseValidity(upTo BlockStatus) bool {
	if bi.Status&StatusFailedMask != 0 {
		return false
	}

	if bi.Status&StatusValidMask < upTo {
		bi.Status = (bi.Status &^ StatusValidMask) | upTo
		return true
	}

	return false
}

func (bi *BlockIndex) HaveData() bool {
	return bi.Status&StatusHaveData != 0
}

func (bi *BlockIndex) HaveUndo() bool {
	return bi.Status&StatusHaveUndo != 0
}

func (bi *BlockIndex) Failed() bool {
	return bi.Status&StatusFailedMask != 0
}

func (bi *BlockIndex) DataPosition() DiskPos {
	return DiskPos{File: bi.File, Pos: bi.DataPos}
}

func (bi *BlockIndex) UndoPosition() DiskPos {
	return DiskPos{File: bi.File, Pos: bi.UndoPos}
}

func (bi *BlockIndex) BlockTime() int64 {
	return int64(bi.Timestamp)
}

func (bi *BlockIndex) String() string {
	return fmt.Sprintf("%s (height %d, %s)", bi.Hash, bi.Height, bi.Status)
}

// DiskIndex returns the persistent part of the entry. Parent, skip, chain work and
// the arena id are rebuilt when the index is loaded.
func (bi *BlockIndex) DiskIndex(prevHash *chainhash.Hash) *DiskBlockIndex {
	return &DiskBlockIndex{
		Header:  bi.Header(prevHash),
		Height:  bi.Height,
		Status:  bi.Status,
		TxCount: bi.TxCount,
		File:    bi.File,
		DataPos: bi.DataPos,
		UndoPos: bi.UndoPos,
	}
}

// DiskBlockIndex is a decoded block index record as stored in the block tree database.
type DiskBlockIndex struct {
	Header  *BlockHeader
	Height  int32
	Status  BlockStatus
	TxCount uint32
	File    int32
	DataPos uint32
	UndoPos uint32
}

// Bytes encodes the record as: header (80), height int32, status uint32, tx count
// uint32, file int32, data pos uint32, undo pos uint32; all little-endian.
func (d *DiskBlockIndex) Bytes() []byte {
	buf := bytes.NewBuffer(make([]byte, 0, BlockHeaderSize+24))

	buf.Write(d.Header.Bytes())

	var b [24]byte
	binary.LittleEndian.PutUint32(b[0:], uint32(d.Height))
	binary.LittleEndian.PutUint32(b[4:], uint32(d.Status))
	binary.LittleEndian.PutUint32(b[8:], d.TxCount)
	binary.LittleEndian.PutUint32(b[12:], uint32(d.File))
	binary.LittleEndian.PutUint32(b[16:], d.DataPos)
	binary.LittleEndian.PutUint32(b[20:], d.UndoPos)
	buf.Write(b[:])

	return buf.Bytes()
}

func NewDiskBlockIndexFromBytes(b []byte) (*DiskBlockIndex, error) {
	if len(b) != BlockHeaderSize+24 {
		return nil, errors.NewStorageError("block index record should be %d bytes, got %d", BlockHeaderSize+24, len(b))
	}

	header, err := NewBlockHeaderFromBytes(b[:BlockHeaderSize])
	if err != nil {
		return nil, err
	}

	r := b[BlockHeaderSize:]

	return &DiskBlockIndex{
		Header:  header,
		Height:  int32(binary.LittleEndian.Uint32(r[0:])),
		Status:  BlockStatus(binary.LittleEndian.Uint32(r[4:])),
		TxCount: binary.LittleEndian.Uint32(r[8:]),
		File:    int32(binary.LittleEndian.Uint32(r[12:])),
		DataPos: binary.LittleEndian.Uint32(r[16:]),
		UndoPos: binary.LittleEndian.Uint32(r[20:]),
	}, nil
}

// DiskPos addresses a record inside a numbered blk or rev file.
type DiskPos struct {
	File int32
	Pos  uint32
}

func (p DiskPos) IsNull() bool {
	return p.File == -1
}

func (p DiskPos) String() string {
	return fmt.Sprintf("file %d, pos %d", p.File, p.Pos)
}

var NullDiskPos = DiskPos{File: -1}

// BlockFileInfo tracks aggregate statistics about one blk/rev file pair.
type BlockFileInfo struct {
	Blocks      uint32
	Size        uint32
	UndoSize    uint32
	HeightFirst int32
	HeightLast  int32
	TimeFirst   uint64
	TimeLast    uint64
}

// AddBlock updates the statistics for a block stored in this file.
func (fi *BlockFileInfo) AddBlock(height int32, timestamp uint64) {
	if fi.Blocks == 0 || fi.HeightFirst > height {
		fi.HeightFirst = height
	}

	if fi.Blocks == 0 || fi.TimeFirst > timestamp {
		fi.TimeFirst = timestamp
	}

	fi.Blocks++

	if height > fi.HeightLast {
		fi.HeightLast = height
	}

	if timestamp > fi.TimeLast {
		fi.TimeLast = timestamp
	}
}

func (fi *BlockFileInfo) String() string {
	return fmt.Sprintf("blocks=%d size=%d undo=%d heights=%d...%d", fi.Blocks, fi.Size, fi.UndoSize, fi.HeightFirst, fi.HeightLast)
}

func (fi *BlockFileInfo) Bytes() []byte {
	b := make([]byte, 36)
	binary.LittleEndian.PutUint32(b[0:], fi.Blocks)
	binary.LittleEndian.PutUint32(b[4:], fi.Size)
	binary.LittleEndian.PutUint32(b[8:], fi.UndoSize)
	binary.LittleEndian.PutUint32(b[12:], uint32(fi.HeightFirst))
	binary.LittleEndian.PutUint32(b[16:], uint32(fi.HeightLast))
	binary.LittleEndian.PutUint64(b[20:], fi.TimeFirst)
	binary.LittleEndian.PutUint64(b[28:], fi.TimeLast)

	return b
}

func NewBlockFileInfoFromReader(r io.Reader) (*BlockFileInfo, error) {
	b := make([]byte, 36)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, errors.NewStorageError("failed to read block file info", err)
	}

	return &BlockFileInfo{
		Blocks:      binary.LittleEndian.Uint32(b[0:]),
		Size:        binary.LittleEndian.Uint32(b[4:]),
		UndoSize:    binary.LittleEndian.Uint32(b[8:]),
		HeightFirst: int32(binary.LittleEndian.Uint32(b[12:])),
		HeightLast:  int32(binary.LittleEndian.Uint32(b[16:])),
		TimeFirst:   binary.LittleEndian.Uint64(b[20:]),
		TimeLast:    binary.LittleEndian.Uint64(b[28:]),
	}, nil
}
