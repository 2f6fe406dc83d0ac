package blockvalidation

import (
	"testing"

	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/chainstate/model"
	"github.com/bsv-blockchain/chainstate/services/validator"
	"github.com/bsv-blockchain/chainstate/stores/utxo"
	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestDisconnectBlock(t *testing.T) {
	c := newTestChain(t)
	c.mature()

	parentHash := c.tip.Hash
	spend := c.coinbaseOutput(1)
	tx := model.NewSpendTx([]model.SpendOutput{spend}, 40*validator.Coin, 9*validator.Coin)

	bi := c.extend(tx)
	block := c.blocks[bi.Height]

	clean, err := c.bv.DisconnectBlock(c.ctx, c.tree, block, bi, c.undo[bi.Hash], c.view)
	require.NoError(t, err)
	assert.True(t, clean)

	assert.Equal(t, parentHash, c.bestBlock(c.view))
	assert.True(t, spend.Coin.Equal(c.coin(c.view, spend.Outpoint)))
	assert.Nil(t, c.coin(c.view, model.NewOutpoint(tx.TxIDChainHash(), 0)))
	assert.Nil(t, c.coin(c.view, model.NewOutpoint(tx.TxIDChainHash(), 1)))
	assert.Nil(t, c.coin(c.view, model.NewOutpoint(block.Transactions[0].TxIDChainHash(), 0)))
}

func TestDisconnectBlockUnclean(t *testing.T) {
	c := newTestChain(t)
	c.mature()

	spend := c.coinbaseOutput(1)
	tx := model.NewSpendTx([]model.SpendOutput{spend}, 49*validator.Coin)

	bi := c.extend(tx)

	// the output is gone before the block is disconnected
	_, err := c.view.SpendCoin(c.ctx, model.NewOutpoint(tx.TxIDChainHash(), 0))
	require.NoError(t, err)

	clean, err := c.bv.DisconnectBlock(c.ctx, c.tree, c.blocks[bi.Height], bi, c.undo[bi.Hash], c.view)
	require.NoError(t, err)
	assert.False(t, clean)

	assert.Equal(t, c.tree.Parent(bi).Hash, c.bestBlock(c.view))
	assert.True(t, spend.Coin.Equal(c.coin(c.view, spend.Outpoint)))
}

func TestDisconnectBlockUndoMismatch(t *testing.T) {
	c := newTestChain(t)
	c.mature()

	tx := model.NewSpendTx([]model.SpendOutput{c.coinbaseOutput(1)}, 49*validator.Coin)
	bi := c.extend(tx)
	block := c.blocks[bi.Height]

	t.Run("missing tx undo", func(t *testing.T) {
		_, err := c.bv.DisconnectBlock(c.ctx, c.tree, block, bi, &model.BlockUndo{}, c.view)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrUndoCorrupt))
	})

	t.Run("missing input undo", func(t *testing.T) {
		undo := &model.BlockUndo{TxUndo: []*model.TxUndo{{}}}

		_, err := c.bv.DisconnectBlock(c.ctx, c.tree, block, bi, undo, c.view)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrUndoCorrupt))
	})

	assert.Equal(t, bi.Hash, c.bestBlock(c.view))
	assert.NotNil(t, c.coin(c.view, model.NewOutpoint(tx.TxIDChainHash(), 0)))
}

func TestDisconnectBlockNotAtTip(t *testing.T) {
	c := newTestChain(t)
	first := c.extend()
	c.extend()

	_, err := c.bv.DisconnectBlock(c.ctx, c.tree, c.blocks[first.Height], first, c.undo[first.Hash], c.view)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrChainStateCorrupted))
}

func TestDisconnectGenesis(t *testing.T) {
	c := newTestChain(t)

	_, err := c.bv.DisconnectBlock(c.ctx, c.tree, c.blocks[0], c.tip, &model.BlockUndo{}, c.view)
	require.Error(t, err)
	assert.Equal(t, c.tip.Hash, c.bestBlock(c.view))
}

// Connecting a block of random spends, including spends of outputs created earlier in
// the same block, and disconnecting it again leaves every coin as it was.
func TestConnectDisconnectRoundTrip(t *testing.T) {
	c := newTestChain(t)

	for c.tip.Height < c.bv.Params().CoinbaseMaturity+10 {
		c.extend()
	}

	maxSpendable := c.tip.Height - c.bv.Params().CoinbaseMaturity

	rapid.Check(t, func(rt *rapid.T) {
		view := utxo.NewCoinsViewCache(c.view)

		// outputs available to the transactions of the block, with their coins
		var available []model.SpendOutput

		heights := rapid.SliceOfNDistinct(rapid.Int32Range(1, maxSpendable), 1, 4, rapid.ID[int32]).Draw(rt, "coinbases")
		for _, height := range heights {
			available = append(available, c.coinbaseOutput(height))
		}

		before := make(map[model.Outpoint]*model.Coin, len(available))
		for _, spend := range available {
			before[spend.Outpoint] = c.coin(view, spend.Outpoint)
		}

		var (
			txs     []*bt.Tx
			created []model.Outpoint
		)

		txCount := rapid.IntRange(1, 6).Draw(rt, "txs")
		for i := 0; i < txCount && len(available) > 0; i++ {
			pick := rapid.IntRange(0, len(available)-1).Draw(rt, "input")
			spend := available[pick]
			available = append(available[:pick], available[pick+1:]...)

			outputs := rapid.IntRange(1, 3).Draw(rt, "outputs")
			value := spend.Coin.Value / uint64(outputs+1) //nolint:gosec // small

			values := make([]uint64, outputs)
			for o := range values {
				values[o] = value
			}

			tx := model.NewSpendTx([]model.SpendOutput{spend}, values...)
			txs = append(txs, tx)

			for o := range values {
				available = append(available, model.SpendTxOutput(tx, uint32(o), uint32(c.tip.Height+1))) //nolint:gosec // small
				created = append(created, model.NewOutpoint(tx.TxIDChainHash(), uint32(o)))           //nolint:gosec // small
			}
		}

		block := c.build(c.tip, GetBlockSubsidy(c.tip.Height+1, c.bv.Params()), txs...)
		created = append(created, model.NewOutpoint(block.Transactions[0].TxIDChainHash(), 0))

		bi, _, err := c.connect(block, view)
		require.NoError(rt, err)

		for _, outpoint := range created[len(created)-1:] {
			assert.NotNil(rt, c.coin(view, outpoint))
		}

		clean, err := c.bv.DisconnectBlock(c.ctx, c.tree, block, bi, c.undo[bi.Hash], view)
		require.NoError(rt, err)
		assert.True(rt, clean)

		assert.Equal(rt, c.tip.Hash, c.bestBlock(view))

		for outpoint, coin := range before {
			assert.True(rt, coin.Equal(c.coin(view, outpoint)), "coin %s not restored", outpoint)
		}

		for _, outpoint := range created {
			assert.Nil(rt, c.coin(view, outpoint))
		}
	})
}
