package bbolt

import (
	"context"
	"testing"

	"github.com/bsv-blockchain/chainstate/chaincfg"
	"github.com/bsv-blockchain/chainstate/model"
	"github.com/bsv-blockchain/chainstate/stores/blockchain"
	"github.com/bsv-blockchain/chainstate/ulogger"
	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAndLoadBlockIndex(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	params := &chaincfg.RegressionNetParams
	tree := model.NewBlockTree()

	genesis, _ := tree.AddHeader(params.GenesisBlock.Header)
	genesis.Status = model.StatusValidScripts | model.StatusHaveData | model.StatusHaveUndo
	genesis.TxCount = 1
	genesis.File = 0

	block1 := model.MineBlock(&genesis.Hash, 0x20000000, params.GenesisBlock.Header.Timestamp+600, params.PowLimitBits,
		[]*bt.Tx{model.NewCoinbaseTx(1, 50*1e8)})
	bi1, _ := tree.AddHeader(block1.Header)
	bi1.Status = model.StatusValidTree
	bi1.File = 0
	bi1.DataPos = 293

	store, err := New(ulogger.TestLogger{}, dir)
	require.NoError(t, err)

	err = store.WriteBatchSync(ctx, &blockchain.Batch{
		FileInfo: map[int32]*model.BlockFileInfo{
			0: {Blocks: 2, Size: 600, HeightFirst: 0, HeightLast: 1, TimeFirst: 1, TimeLast: 2},
		},
		LastFile: 0,
		Blocks:   []*model.DiskBlockIndex{tree.DiskIndex(genesis), tree.DiskIndex(bi1)},
	})
	require.NoError(t, err)
	require.NoError(t, store.SetFlag(ctx, blockchain.FlagPrunedBlockFiles, true))
	require.NoError(t, store.Close())

	store, err = New(ulogger.TestLogger{}, dir)
	require.NoError(t, err)

	defer func() {
		_ = store.Close()
	}()

	records, err := store.LoadBlockIndex(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)

	loaded := model.NewBlockTree()
	require.NoError(t, loaded.Load(records))

	got := loaded.Lookup(&bi1.Hash)
	require.NotNil(t, got)
	assert.Equal(t, int32(1), got.Height)
	assert.Equal(t, model.StatusValidTree, got.Status)
	assert.Equal(t, uint32(293), got.DataPos)
	assert.Equal(t, 0, got.ChainWork.Cmp(bi1.ChainWork))

	info, err := store.GetBlockFileInfo(ctx, 0)
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, uint32(600), info.Size)
	assert.Equal(t, int32(1), info.HeightLast)

	info, err = store.GetBlockFileInfo(ctx, 7)
	require.NoError(t, err)
	assert.Nil(t, info)

	last, found, err := store.GetLastBlockFile(ctx)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int32(0), last)

	pruned, err := store.GetFlag(ctx, blockchain.FlagPrunedBlockFiles)
	require.NoError(t, err)
	assert.True(t, pruned)

	unset, err := store.GetFlag(ctx, "reindexing")
	require.NoError(t, err)
	assert.False(t, unset)
}

func TestEmptyStore(t *testing.T) {
	store, err := New(ulogger.TestLogger{}, t.TempDir())
	require.NoError(t, err)

	defer func() {
		_ = store.Close()
	}()

	records, err := store.LoadBlockIndex(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)

	_, found, err := store.GetLastBlockFile(context.Background())
	require.NoError(t, err)
	assert.False(t, found)
}
