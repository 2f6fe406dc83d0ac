package leveldb

import (
	"context"
	"testing"

	"github.com/bsv-blockchain/chainstate/model"
	utxostore "github.com/bsv-blockchain/chainstate/stores/utxo"
	"github.com/bsv-blockchain/chainstate/stores/utxo/tests"
	"github.com/bsv-blockchain/chainstate/ulogger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := NewInMemory(ulogger.TestLogger{})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = db.Close()
	})

	return db
}

func TestLevelDB(t *testing.T) {
	t.Run("leveldb store", func(t *testing.T) {
		tests.Store(t, newTestStore(t))
	})

	t.Run("leveldb spend", func(t *testing.T) {
		tests.Spend(t, newTestStore(t))
	})

	t.Run("leveldb empty best block", func(t *testing.T) {
		tests.EmptyBestBlock(t, newTestStore(t))
	})

	t.Run("leveldb stats", func(t *testing.T) {
		tests.Stats(t, newTestStore(t))
	})
}

func TestLevelDBReopen(t *testing.T) {
	ctx := context.Background()
	path := t.TempDir()

	db, err := New(ulogger.TestLogger{}, path, Options{CacheMB: 1, WriteBufferMB: 1})
	require.NoError(t, err)

	require.NoError(t, db.BatchWrite(ctx, map[model.Outpoint]*utxostore.CacheEntry{
		tests.Outpoint0: {Coin: tests.Coin0, Flags: utxostore.Dirty},
	}, *tests.Hash2))
	require.NoError(t, db.Close())

	db, err = New(ulogger.TestLogger{}, path, Options{})
	require.NoError(t, err)

	defer func() {
		_ = db.Close()
	}()

	coin, err := db.GetCoin(ctx, tests.Outpoint0)
	require.NoError(t, err)
	assert.True(t, tests.Coin0.Equal(coin))

	best, err := db.GetBestBlock(ctx)
	require.NoError(t, err)
	assert.Equal(t, *tests.Hash2, best)
}

func TestLevelDBCacheFlush(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)

	cache := utxostore.NewCoinsViewCache(db)
	require.NoError(t, cache.AddCoin(tests.Outpoint0, tests.Coin0, false))
	cache.SetBestBlock(*tests.Hash)
	require.NoError(t, cache.Flush(ctx))

	cache = utxostore.NewCoinsViewCache(db)
	spent, err := cache.SpendCoin(ctx, tests.Outpoint0)
	require.NoError(t, err)
	assert.True(t, tests.Coin0.Equal(spent))

	cache.SetBestBlock(*tests.Hash2)
	require.NoError(t, cache.Flush(ctx))

	have, err := db.HaveCoin(ctx, tests.Outpoint0)
	require.NoError(t, err)
	assert.False(t, have)
}
