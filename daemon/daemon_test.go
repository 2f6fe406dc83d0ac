package daemon

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/chainstate/model"
	"github.com/bsv-blockchain/chainstate/services/blockvalidation"
	"github.com/bsv-blockchain/chainstate/settings"
	blockchain_store "github.com/bsv-blockchain/chainstate/stores/blockchain"
	"github.com/bsv-blockchain/chainstate/stores/utxo"
	"github.com/bsv-blockchain/chainstate/stores/utxo/memory"
	"github.com/bsv-blockchain/chainstate/ulogger"
	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

type recorder struct {
	mu     sync.Mutex
	events []*model.Notification
}

func (r *recorder) Notify(n *model.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, n)
}

func (r *recorder) count(notificationType model.NotificationType) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0

	for _, ev := range r.events {
		if ev.Type == notificationType {
			n++
		}
	}

	return n
}

// connected counts the blocks connected above genesis, which Start connects itself.
func (r *recorder) connected() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0

	for _, ev := range r.events {
		if ev.Type == model.NotificationTypeBlockConnected && ev.Height > 0 {
			n++
		}
	}

	return n
}

// brokenCoinsDB fails every batch write once broken is set.
type brokenCoinsDB struct {
	utxo.CoinsView
	broken atomic.Bool
}

func (b *brokenCoinsDB) BatchWrite(ctx context.Context, entries map[model.Outpoint]*utxo.CacheEntry, bestBlock chainhash.Hash) error {
	if b.broken.Load() {
		return errors.NewStorageError("disk gone")
	}

	return b.CoinsView.BatchWrite(ctx, entries, bestBlock)
}

func testSettings(t *testing.T) *settings.Settings {
	tSettings := settings.NewRegtestSettings()
	tSettings.DataFolder = t.TempDir()

	return tSettings
}

// newStartedEngine starts an engine on in-memory stores. The tickers only fire when
// fed through their Force channels.
func newStartedEngine(t *testing.T, tSettings *settings.Settings, opts ...Option) (*Engine, *recorder) {
	t.Helper()

	events := &recorder{}

	opts = append([]Option{
		WithCoinsView(memory.New(ulogger.TestLogger{})),
		WithBlockIndexStore(blockchain_store.NewMockStore()),
		WithFlushTicker(ticker.NewForce(time.Hour)),
		WithExpiryTicker(ticker.NewForce(time.Hour)),
		WithSubscriber(events),
	}, opts...)

	e, err := New(context.Background(), ulogger.TestLogger{}, tSettings, opts...)
	require.NoError(t, err)

	require.NoError(t, e.Start(context.Background()))

	t.Cleanup(func() {
		_ = e.Stop(context.Background())
	})

	return e, events
}

// mine builds a block on the current tip with the given transactions after the coinbase.
func mine(t *testing.T, e *Engine, txs ...*bt.Tx) *model.Block {
	t.Helper()

	tip := e.ChainState().Tip()
	require.NotNil(t, tip)

	params := e.ChainState().Params()
	height := tip.Height + 1

	coinbase := model.NewCoinbaseTx(height, blockvalidation.GetBlockSubsidy(height, params))

	return model.MineBlock(&tip.Hash, 4, tip.Timestamp+600, tip.Bits, append([]*bt.Tx{coinbase}, txs...))
}

// matureCoinbase mines enough blocks for the coinbase of the first one to be spendable
// and returns that first block.
func matureCoinbase(t *testing.T, e *Engine) *model.Block {
	t.Helper()

	var first *model.Block

	for i := int32(0); i <= e.ChainState().Params().CoinbaseMaturity; i++ {
		block := mine(t, e)
		require.NoError(t, e.SubmitBlock(context.Background(), block.Bytes(), "miner", false))

		if first == nil {
			first = block
		}
	}

	return first
}

func TestEngineLifecycle(t *testing.T) {
	t.Run("reopens the stores in the data folder", func(t *testing.T) {
		ctx := context.Background()
		tSettings := testSettings(t)

		e, err := New(ctx, ulogger.TestLogger{}, tSettings)
		require.NoError(t, err)
		require.NoError(t, e.Start(ctx))

		block := mine(t, e)
		require.NoError(t, e.SubmitBlock(ctx, block.Bytes(), "peer", false))
		require.Equal(t, int32(1), e.ChainState().Height())

		require.NoError(t, e.Stop(ctx))
		require.NoError(t, e.Stop(ctx))

		reopened, err := New(ctx, ulogger.TestLogger{}, tSettings)
		require.NoError(t, err)
		require.NoError(t, reopened.Start(ctx))

		defer func() {
			require.NoError(t, reopened.Stop(ctx))
		}()

		assert.Equal(t, int32(1), reopened.ChainState().Height())
		assert.Equal(t, *block.Hash(), reopened.ChainState().Tip().Hash)
	})

	t.Run("cannot start after stop", func(t *testing.T) {
		e, _ := newStartedEngine(t, testSettings(t))

		require.NoError(t, e.Stop(context.Background()))
		require.Error(t, e.Start(context.Background()))
	})

	t.Run("unknown coin database backend", func(t *testing.T) {
		tSettings := testSettings(t)
		tSettings.UtxoStore.Backend = "nope"

		_, err := New(context.Background(), ulogger.TestLogger{}, tSettings)
		require.Error(t, err)
	})
}

func TestSubmitBlock(t *testing.T) {
	ctx := context.Background()

	t.Run("connects blocks and tolerates duplicates", func(t *testing.T) {
		e, events := newStartedEngine(t, testSettings(t))

		block := mine(t, e)
		require.NoError(t, e.SubmitBlock(ctx, block.Bytes(), "peer", false))
		require.NoError(t, e.SubmitBlock(ctx, block.Bytes(), "peer", false))

		assert.Equal(t, int32(1), e.ChainState().Height())
		assert.Equal(t, 1, events.connected())
		assert.Equal(t, 0, events.count(model.NotificationTypeMisbehaving))
	})

	t.Run("undecodable block", func(t *testing.T) {
		e, events := newStartedEngine(t, testSettings(t))

		err := e.SubmitBlock(ctx, []byte{0x01, 0x02}, "peer", false)
		require.Error(t, err)

		assert.True(t, errors.IsInvalid(err))
		assert.Equal(t, errors.RejectMalformed, errors.GetRejectCode(err))
		assert.Equal(t, 0, events.count(model.NotificationTypeMisbehaving))
	})

	t.Run("unknown parent is reported as misbehavior", func(t *testing.T) {
		e, events := newStartedEngine(t, testSettings(t))

		tip := e.ChainState().Tip()
		unknown := chainhash.Hash{0x01}
		orphan := model.MineBlock(&unknown, 4, tip.Timestamp+600, tip.Bits, []*bt.Tx{model.NewCoinbaseTx(5, 1000)})

		err := e.SubmitBlock(ctx, orphan.Bytes(), "peer", true)
		require.Error(t, err)

		assert.Equal(t, 10, e.MisbehaviorScore("peer"))
		assert.Equal(t, 1, events.count(model.NotificationTypeMisbehaving))
		assert.False(t, e.ShouldBan("peer"))
	})
}

func TestSubmitTransaction(t *testing.T) {
	ctx := context.Background()

	t.Run("orphans are resolved when the parent arrives", func(t *testing.T) {
		e, events := newStartedEngine(t, testSettings(t))

		first := matureCoinbase(t, e)

		funding := model.SpendTxOutput(first.Transactions[0], 0, 1)
		parent := model.NewSpendTx([]model.SpendOutput{funding}, funding.Coin.Value-10_000)

		spend := model.SpendTxOutput(parent, 0, 0)
		child := model.NewSpendTx([]model.SpendOutput{spend}, spend.Coin.Value-10_000)

		result, err := e.SubmitTransaction(ctx, child.Bytes(), "peer")
		require.NoError(t, err)
		assert.True(t, result.Orphan)
		assert.Equal(t, 1, e.Orphans().Len())
		assert.False(t, e.Mempool().Exists(child.TxIDChainHash()))

		result, err = e.SubmitTransaction(ctx, parent.Bytes(), "peer")
		require.NoError(t, err)
		require.Len(t, result.Accepted, 2)
		assert.Equal(t, *parent.TxIDChainHash(), result.Accepted[0])
		assert.Equal(t, *child.TxIDChainHash(), result.Accepted[1])

		assert.Equal(t, 0, e.Orphans().Len())
		assert.Equal(t, 2, e.Mempool().Size())
		assert.Equal(t, 2, events.count(model.NotificationTypeTxAccepted))
		require.NoError(t, e.Mempool().Check())

		_, err = e.SubmitTransaction(ctx, parent.Bytes(), "peer")
		require.ErrorIs(t, err, errors.ErrTxAlreadyExists)
	})

	t.Run("mined transactions leave the mempool", func(t *testing.T) {
		e, _ := newStartedEngine(t, testSettings(t))

		first := matureCoinbase(t, e)

		funding := model.SpendTxOutput(first.Transactions[0], 0, 1)
		tx := model.NewSpendTx([]model.SpendOutput{funding}, funding.Coin.Value-10_000)

		_, err := e.SubmitTransaction(ctx, tx.Bytes(), "peer")
		require.NoError(t, err)
		require.True(t, e.Mempool().Exists(tx.TxIDChainHash()))

		require.NoError(t, e.SubmitBlock(ctx, mine(t, e, tx).Bytes(), "miner", false))
		assert.False(t, e.Mempool().Exists(tx.TxIDChainHash()))
	})

	t.Run("invalid transactions are remembered and scored", func(t *testing.T) {
		e, events := newStartedEngine(t, testSettings(t))

		tx := model.NewSpendTx(nil, 1000)

		_, err := e.ProcessTransaction(ctx, tx, "peer")
		require.Error(t, err)
		assert.True(t, errors.IsInvalid(err))
		assert.Equal(t, 10, e.MisbehaviorScore("peer"))
		assert.Equal(t, 1, events.count(model.NotificationTypeMisbehaving))

		_, err = e.ProcessTransaction(ctx, tx, "peer")
		require.ErrorIs(t, err, errors.ErrTxAlreadyExists)
		assert.Equal(t, 10, e.MisbehaviorScore("peer"))
	})

	t.Run("policy rejections are remembered without scoring", func(t *testing.T) {
		tSettings := testSettings(t)
		tSettings.Policy.RequireStandard = true

		e, _ := newStartedEngine(t, tSettings)

		first := matureCoinbase(t, e)

		// anyone-can-spend outputs are not a standard script
		funding := model.SpendTxOutput(first.Transactions[0], 0, 1)
		tx := model.NewSpendTx([]model.SpendOutput{funding}, funding.Coin.Value-10_000)

		_, err := e.ProcessTransaction(ctx, tx, "peer")
		require.ErrorIs(t, err, errors.ErrTxPolicy)
		assert.Equal(t, errors.RejectNonstandard, errors.GetRejectCode(err))
		assert.False(t, e.Mempool().Exists(tx.TxIDChainHash()))

		_, err = e.ProcessTransaction(ctx, tx, "peer")
		require.ErrorIs(t, err, errors.ErrTxAlreadyExists)
		assert.Equal(t, 0, e.MisbehaviorScore("peer"))

		// a new tip clears the filter
		require.NoError(t, e.SubmitBlock(ctx, mine(t, e).Bytes(), "miner", false))

		_, err = e.ProcessTransaction(ctx, tx, "peer")
		require.ErrorIs(t, err, errors.ErrTxPolicy)
	})

	t.Run("undecodable transaction", func(t *testing.T) {
		e, _ := newStartedEngine(t, testSettings(t))

		_, err := e.SubmitTransaction(ctx, []byte{0xff}, "peer")
		require.Error(t, err)
		assert.Equal(t, errors.RejectMalformed, errors.GetRejectCode(err))
	})
}

func TestMisbehavior(t *testing.T) {
	ctx := context.Background()
	e, _ := newStartedEngine(t, testSettings(t))

	for i := uint64(0); i < 10; i++ {
		_, err := e.ProcessTransaction(ctx, model.NewSpendTx(nil, 1000+i), "bad")
		require.Error(t, err)
	}

	assert.Equal(t, 100, e.MisbehaviorScore("bad"))
	assert.True(t, e.ShouldBan("bad"))
	assert.False(t, e.ShouldBan("good"))

	e.PeerDisconnected("bad")

	assert.Equal(t, 0, e.MisbehaviorScore("bad"))
	assert.False(t, e.ShouldBan("bad"))
}

func TestBackgroundLoops(t *testing.T) {
	t.Run("flush loop writes the block index", func(t *testing.T) {
		start := time.Now()
		testClock := clock.NewTestClock(start)
		store := blockchain_store.NewMockStore()
		flushTicker := ticker.NewForce(time.Hour)

		e, _ := newStartedEngine(t, testSettings(t),
			WithClock(testClock),
			WithBlockIndexStore(store),
			WithFlushTicker(flushTicker),
		)

		writes := store.WriteCount()

		testClock.SetTime(start.Add(2 * time.Hour))
		flushTicker.Force <- testClock.Now()

		require.Eventually(t, func() bool {
			return store.WriteCount() > writes
		}, 5*time.Second, 10*time.Millisecond)

		require.NoError(t, e.Stop(context.Background()))
	})

	t.Run("expiry loop expires old transactions", func(t *testing.T) {
		ctx := context.Background()
		start := time.Now()
		testClock := clock.NewTestClock(start)
		expiryTicker := ticker.NewForce(time.Hour)
		tSettings := testSettings(t)

		e, _ := newStartedEngine(t, tSettings,
			WithClock(testClock),
			WithExpiryTicker(expiryTicker),
		)

		first := matureCoinbase(t, e)

		funding := model.SpendTxOutput(first.Transactions[0], 0, 1)
		tx := model.NewSpendTx([]model.SpendOutput{funding}, funding.Coin.Value-10_000)

		_, err := e.SubmitTransaction(ctx, tx.Bytes(), "peer")
		require.NoError(t, err)
		require.Equal(t, 1, e.Mempool().Size())

		testClock.SetTime(start.Add(tSettings.Mempool.Expiry + time.Hour))
		expiryTicker.Force <- testClock.Now()

		require.Eventually(t, func() bool {
			return e.Mempool().Size() == 0
		}, 5*time.Second, 10*time.Millisecond)
	})
}

func TestFatalErrorHaltsEngine(t *testing.T) {
	ctx := context.Background()
	start := time.Now()
	testClock := clock.NewTestClock(start)
	flushTicker := ticker.NewForce(time.Hour)
	coinsDB := &brokenCoinsDB{CoinsView: memory.New(ulogger.TestLogger{})}

	e, _ := newStartedEngine(t, testSettings(t),
		WithClock(testClock),
		WithCoinsView(coinsDB),
		WithFlushTicker(flushTicker),
	)

	require.NoError(t, e.SubmitBlock(ctx, mine(t, e).Bytes(), "miner", false))
	require.NoError(t, e.Err())

	select {
	case <-e.Halted():
		t.Fatal("halted before any failure")
	default:
	}

	coinsDB.broken.Store(true)

	// past the flush interval the periodic flush writes the coins
	testClock.SetTime(start.Add(e.settings.BlockChain.DatabaseFlushInterval + time.Hour))
	flushTicker.Force <- testClock.Now()

	select {
	case <-e.Halted():
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not halt after the coin database failed")
	}

	require.Error(t, e.Err())
	assert.True(t, errors.IsFatal(e.Err()))

	err := e.SubmitBlock(ctx, mine(t, e).Bytes(), "miner", false)
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
	assert.Equal(t, int32(1), e.ChainState().Height())
	assert.Equal(t, 0, e.MisbehaviorScore("miner"))
}
