package blockfile

import (
	"context"
	"os"
	"testing"

	"github.com/bsv-blockchain/chainstate/chaincfg"
	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/chainstate/model"
	"github.com/bsv-blockchain/chainstate/stores/blockchain"
	"github.com/bsv-blockchain/chainstate/ulogger"
	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var magic = chaincfg.RegressionNetParams.MessageStart

func testBlock(height int32) *model.Block {
	params := &chaincfg.RegressionNetParams

	return model.MineBlock(params.GenesisHash, 0x20000000, params.GenesisBlock.Header.Timestamp+uint32(height)*600,
		params.PowLimitBits, []*bt.Tx{model.NewCoinbaseTx(height, 50*1e8)})
}

func TestWriteAndReadBlock(t *testing.T) {
	m, err := New(ulogger.TestLogger{}, t.TempDir(), magic, Options{BlockChunkSize: 1024, UndoChunkSize: 256})
	require.NoError(t, err)

	block := testBlock(1)

	pos, err := m.WriteBlock(block, 1)
	require.NoError(t, err)
	assert.Equal(t, model.DiskPos{File: 0, Pos: FrameHeaderSize}, pos)

	pos2, err := m.WriteBlock(testBlock(2), 2)
	require.NoError(t, err)
	assert.Equal(t, uint32(2*FrameHeaderSize+len(block.Bytes())), pos2.Pos)

	read, err := m.ReadBlock(pos)
	require.NoError(t, err)
	assert.Equal(t, block.Hash(), read.Hash())

	info := m.FileInfo(0)
	assert.Equal(t, uint32(2), info.Blocks)
	assert.Equal(t, int32(1), info.HeightFirst)
	assert.Equal(t, int32(2), info.HeightLast)

	// pre-allocated to whole chunks
	st, err := os.Stat(m.BlockPath(0))
	require.NoError(t, err)
	assert.Equal(t, int64(0), st.Size()%1024)

	require.NoError(t, m.FlushFiles(true))

	st, err = os.Stat(m.BlockPath(0))
	require.NoError(t, err)
	assert.Equal(t, int64(info.Size), st.Size())
}

func TestReadBlockBadMagic(t *testing.T) {
	m, err := New(ulogger.TestLogger{}, t.TempDir(), magic, Options{})
	require.NoError(t, err)

	pos, err := m.WriteBlock(testBlock(1), 1)
	require.NoError(t, err)

	other, err := New(ulogger.TestLogger{}, m.dir, chaincfg.MainNetParams.MessageStart, Options{})
	require.NoError(t, err)

	_, err = other.ReadBlock(pos)
	require.Error(t, err)
}

func TestNewFileWhenFull(t *testing.T) {
	block := testBlock(1)
	frame := uint32(len(block.Bytes()) + FrameHeaderSize)

	m, err := New(ulogger.TestLogger{}, t.TempDir(), magic, Options{MaxFileSize: frame*2 + 1, BlockChunkSize: 64, UndoChunkSize: 64})
	require.NoError(t, err)

	for h := int32(1); h <= 3; h++ {
		_, err = m.WriteBlock(testBlock(h), h)
		require.NoError(t, err)
	}

	assert.Equal(t, int32(1), m.LastFile())
	assert.Equal(t, uint32(2), m.FileInfo(0).Blocks)
	assert.Equal(t, uint32(1), m.FileInfo(1).Blocks)
	assert.Equal(t, int32(3), m.FileInfo(1).HeightFirst)

	dirty, last := m.TakeDirty()
	assert.Len(t, dirty, 2)
	assert.Equal(t, int32(1), last)

	dirty, _ = m.TakeDirty()
	assert.Empty(t, dirty)
}

func TestUndoRoundTripAndChecksum(t *testing.T) {
	m, err := New(ulogger.TestLogger{}, t.TempDir(), magic, Options{})
	require.NoError(t, err)

	undo := &model.BlockUndo{TxUndo: []*model.TxUndo{{
		PrevOut: []*model.Coin{{Value: 10, Script: []byte{0x51}, Height: 3, IsCoinbase: true}},
	}}}

	prev := chainhash.Hash{1}

	pos, err := m.WriteUndo(undo, 0, &prev)
	require.NoError(t, err)

	read, err := m.ReadUndo(pos, &prev)
	require.NoError(t, err)
	require.Len(t, read.TxUndo, 1)
	assert.True(t, undo.TxUndo[0].PrevOut[0].Equal(read.TxUndo[0].PrevOut[0]))

	other := chainhash.Hash{2}
	_, err = m.ReadUndo(pos, &other)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUndoCorrupt))
}

func TestPruneAndLoad(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	m, err := New(ulogger.TestLogger{}, dir, magic, Options{})
	require.NoError(t, err)

	_, err = m.WriteBlock(testBlock(1), 1)
	require.NoError(t, err)

	_, err = m.WriteUndo(&model.BlockUndo{}, 0, &chainhash.Hash{})
	require.NoError(t, err)

	assert.Positive(t, m.CurrentUsage())

	store := blockchain.NewMockStore()
	infos, last := m.TakeDirty()
	require.NoError(t, store.WriteBatchSync(ctx, &blockchain.Batch{FileInfo: infos, LastFile: last}))

	loaded, err := New(ulogger.TestLogger{}, dir, magic, Options{})
	require.NoError(t, err)
	require.NoError(t, loaded.Load(ctx, store))
	assert.Equal(t, m.FileInfo(0), loaded.FileInfo(0))

	loaded.PruneFile(0)
	loaded.UnlinkFiles([]int32{0})

	assert.Equal(t, uint64(0), loaded.CurrentUsage())
	assert.False(t, loaded.FileExists(0))

	_, err = os.Stat(loaded.UndoPath(0))
	assert.True(t, os.IsNotExist(err))
}
