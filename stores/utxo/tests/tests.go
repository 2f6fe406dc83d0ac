// Package tests holds the behaviour every durable coin store must share. Backends run
// these from their own test files.
package tests

import (
	"context"
	"testing"

	"github.com/bsv-blockchain/chainstate/model"
	utxostore "github.com/bsv-blockchain/chainstate/stores/utxo"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	Hash, _  = chainhash.NewHashFromStr("5e3bc5947f48cec766090aa17f309fd16259de029dcef5d306b514848c9687c7")
	Hash2, _ = chainhash.NewHashFromStr("663bc5947f48cec766090aa17f309fd16259de029dcef5d306b514848c9687c8")

	Outpoint0 = model.NewOutpoint(Hash, 0)
	Outpoint1 = model.NewOutpoint(Hash, 1)

	Coin0 = &model.Coin{Value: 5_000_000_000, Script: *model.AnyoneCanSpendScript(), Height: 1, IsCoinbase: true}
	Coin1 = &model.Coin{Value: 1234, Script: []byte{0x76, 0xa9, 0x14}, Height: 7}
)

func dirty(coin *model.Coin) *utxostore.CacheEntry {
	return &utxostore.CacheEntry{Coin: coin, Flags: utxostore.Dirty}
}

// Store writes two coins and reads them back.
func Store(t *testing.T, db utxostore.CoinsView) {
	ctx := context.Background()

	err := db.BatchWrite(ctx, map[model.Outpoint]*utxostore.CacheEntry{
		Outpoint0: dirty(Coin0),
		Outpoint1: dirty(Coin1),
	}, *Hash2)
	require.NoError(t, err)

	coin, err := db.GetCoin(ctx, Outpoint0)
	require.NoError(t, err)
	assert.True(t, Coin0.Equal(coin))

	coin, err = db.GetCoin(ctx, Outpoint1)
	require.NoError(t, err)
	assert.True(t, Coin1.Equal(coin))

	have, err := db.HaveCoin(ctx, model.NewOutpoint(Hash, 2))
	require.NoError(t, err)
	assert.False(t, have)

	best, err := db.GetBestBlock(ctx)
	require.NoError(t, err)
	assert.Equal(t, *Hash2, best)
}

// Spend deletes a coin through a tombstone and ignores clean entries.
func Spend(t *testing.T, db utxostore.CoinsView) {
	ctx := context.Background()

	require.NoError(t, db.BatchWrite(ctx, map[model.Outpoint]*utxostore.CacheEntry{
		Outpoint0: dirty(Coin0),
		Outpoint1: dirty(Coin1),
	}, *Hash))

	require.NoError(t, db.BatchWrite(ctx, map[model.Outpoint]*utxostore.CacheEntry{
		Outpoint0: {Flags: utxostore.Dirty},
		// not dirty: must not be written even though it looks spent
		Outpoint1: {},
	}, *Hash2))

	have, err := db.HaveCoin(ctx, Outpoint0)
	require.NoError(t, err)
	assert.False(t, have)

	coin, err := db.GetCoin(ctx, Outpoint0)
	require.NoError(t, err)
	assert.Nil(t, coin)

	have, err = db.HaveCoin(ctx, Outpoint1)
	require.NoError(t, err)
	assert.True(t, have)
}

// EmptyBestBlock checks a new store reports the zero hash.
func EmptyBestBlock(t *testing.T, db utxostore.CoinsView) {
	best, err := db.GetBestBlock(context.Background())
	require.NoError(t, err)
	assert.Equal(t, chainhash.Hash{}, best)
}

// Stats walks a populated store.
func Stats(t *testing.T, db utxostore.CoinsView) {
	ctx := context.Background()

	require.NoError(t, db.BatchWrite(ctx, map[model.Outpoint]*utxostore.CacheEntry{
		Outpoint0: dirty(Coin0),
		Outpoint1: dirty(Coin1),
	}, *Hash2))

	stats, err := utxostore.GetStats(ctx, db)
	require.NoError(t, err)

	assert.Equal(t, uint64(2), stats.Coins)
	assert.Equal(t, Coin0.Value+Coin1.Value, stats.TotalAmount)
	assert.Equal(t, *Hash2, stats.BestBlock)
}
