package blockvalidation

import (
	"context"
	"testing"

	"github.com/bsv-blockchain/chainstate/model"
	"github.com/bsv-blockchain/chainstate/services/validator"
	"github.com/bsv-blockchain/chainstate/settings"
	"github.com/bsv-blockchain/chainstate/stores/utxo"
	"github.com/bsv-blockchain/chainstate/stores/utxo/memory"
	"github.com/bsv-blockchain/chainstate/ulogger"
	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/stretchr/testify/require"
)

// testChain is a regtest chain connected block by block into an in-memory coin view.
type testChain struct {
	t      testing.TB
	ctx    context.Context
	bv     *BlockValidator
	tree   *model.BlockTree
	view   *utxo.CoinsViewCache
	tip    *model.BlockIndex
	blocks []*model.Block
	undo   map[chainhash.Hash]*model.BlockUndo
}

func newTestChain(t testing.TB, opts ...Option) *testChain {
	t.Helper()

	tSettings := settings.NewRegtestSettings()

	txValidator := validator.New(ulogger.TestLogger{}, tSettings, validator.WithWorkers(2))
	t.Cleanup(txValidator.Stop)

	c := &testChain{
		t:    t,
		ctx:  context.Background(),
		bv:   New(ulogger.TestLogger{}, tSettings, txValidator, opts...),
		tree: model.NewBlockTree(),
		view: utxo.NewCoinsViewCache(memory.New(ulogger.TestLogger{})),
		undo: make(map[chainhash.Hash]*model.BlockUndo),
	}

	genesis := tSettings.ChainCfgParams.GenesisBlock

	bi, _ := c.tree.AddHeader(genesis.Header)
	_, err := c.bv.ConnectBlock(c.ctx, c.tree, genesis, bi, c.view, ConnectOptions{})
	require.NoError(t, err)

	c.tip = bi
	c.blocks = append(c.blocks, genesis)

	return c
}

// build mines a block on parent whose coinbase pays coinbaseValue.
func (c *testChain) build(parent *model.BlockIndex, coinbaseValue uint64, txs ...*bt.Tx) *model.Block {
	coinbase := model.NewCoinbaseTx(parent.Height+1, coinbaseValue)

	return model.MineBlock(&parent.Hash, c.bv.ComputeBlockVersion(c.tree, parent), parent.Timestamp+600, parent.Bits,
		append([]*bt.Tx{coinbase}, txs...))
}

// connect adds the block to the tree and connects it to view, recording its undo data.
func (c *testChain) connect(block *model.Block, view *utxo.CoinsViewCache) (*model.BlockIndex, *ConnectResult, error) {
	bi, _ := c.tree.AddHeader(block.Header)

	result, err := c.bv.ConnectBlock(c.ctx, c.tree, block, bi, view, ConnectOptions{
		WriteUndo: func(undo *model.BlockUndo) error {
			c.undo[bi.Hash] = undo
			return nil
		},
	})

	return bi, result, err
}

// extend mines and connects a block paying the subsidy on top of the tip.
func (c *testChain) extend(txs ...*bt.Tx) *model.BlockIndex {
	c.t.Helper()

	block := c.build(c.tip, GetBlockSubsidy(c.tip.Height+1, c.bv.Params()), txs...)

	bi, _, err := c.connect(block, c.view)
	require.NoError(c.t, err)

	c.tip = bi
	c.blocks = append(c.blocks, block)

	return bi
}

// mature extends the chain until the coinbase at height 1 is spendable in the next block.
func (c *testChain) mature() {
	c.t.Helper()

	for c.tip.Height < c.bv.Params().CoinbaseMaturity {
		c.extend()
	}
}

func (c *testChain) coinbaseOutput(height int32) model.SpendOutput {
	return model.SpendTxOutput(c.blocks[height].Transactions[0], 0, uint32(height)) //nolint:gosec // test heights are small
}

func (c *testChain) bestBlock(view *utxo.CoinsViewCache) chainhash.Hash {
	best, err := view.GetBestBlock(c.ctx)
	require.NoError(c.t, err)

	return best
}

func (c *testChain) coin(view *utxo.CoinsViewCache, outpoint model.Outpoint) *model.Coin {
	coin, err := view.GetCoin(c.ctx, outpoint)
	require.NoError(c.t, err)

	return coin
}

// addHeaders appends n headers with the given version on top of parent, without block
// data, and returns the last one.
func addHeaders(tree *model.BlockTree, parent *model.BlockIndex, n int, version uint32) *model.BlockIndex {
	for i := 0; i < n; i++ {
		header := &model.BlockHeader{
			Version:        version,
			HashPrevBlock:  &parent.Hash,
			HashMerkleRoot: &chainhash.Hash{},
			Timestamp:      parent.Timestamp + 600,
			Bits:           parent.Bits,
		}

		parent, _ = tree.AddHeader(header)
	}

	return parent
}

// headerTree is a block tree holding only the regtest genesis header.
func headerTree(t testing.TB) (*model.BlockTree, *model.BlockIndex) {
	t.Helper()

	tree := model.NewBlockTree()

	genesis, _ := tree.AddHeader(settings.NewRegtestSettings().ChainCfgParams.GenesisBlock.Header)
	require.NotNil(t, genesis)

	return tree, genesis
}
