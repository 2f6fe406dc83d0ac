package blockchain

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/bsv-blockchain/chainstate/chaincfg"
	"github.com/bsv-blockchain/chainstate/model"
	"github.com/bsv-blockchain/chainstate/services/blockvalidation"
	"github.com/bsv-blockchain/chainstate/services/mempool"
	"github.com/bsv-blockchain/chainstate/services/validator"
	"github.com/bsv-blockchain/chainstate/settings"
	blockchain_store "github.com/bsv-blockchain/chainstate/stores/blockchain"
	"github.com/bsv-blockchain/chainstate/stores/blockfile"
	"github.com/bsv-blockchain/chainstate/stores/utxo"
	"github.com/bsv-blockchain/chainstate/stores/utxo/memory"
	"github.com/bsv-blockchain/chainstate/ulogger"
	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/stretchr/testify/require"
)

// testEnv is a regtest chain state over a block index store, a coin database and a
// block file directory that survive reopening.
type testEnv struct {
	t        *testing.T
	ctx      context.Context
	settings *settings.Settings
	params   *chaincfg.Params

	store    blockchain_store.Store
	coinsDB  utxo.CoinsView
	dir      string
	fileOpts blockfile.Options
	clock    clock.Clock
	withPool bool

	files  *blockfile.Manager
	mp     *mempool.TxMemPool
	cs     *ChainState
	events []*model.Notification
}

type envOption func(e *testEnv)

func withSettings(fn func(s *settings.Settings)) envOption {
	return func(e *testEnv) {
		fn(e.settings)
	}
}

func withFileOptions(opts blockfile.Options) envOption {
	return func(e *testEnv) {
		e.fileOpts = opts
	}
}

func withTestMempool() envOption {
	return func(e *testEnv) {
		e.withPool = true
	}
}

func withTestClock(c clock.Clock) envOption {
	return func(e *testEnv) {
		e.clock = c
	}
}

func withStores(store blockchain_store.Store, coinsDB utxo.CoinsView, dir string) envOption {
	return func(e *testEnv) {
		e.store = store
		e.coinsDB = coinsDB
		e.dir = dir
	}
}

// newTestEnv creates and loads a chain state holding only the genesis block.
func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	tSettings := settings.NewRegtestSettings()

	e := &testEnv{
		t:        t,
		ctx:      context.Background(),
		settings: tSettings,
		params:   tSettings.ChainCfgParams,
		store:    blockchain_store.NewMockStore(),
		coinsDB:  memory.New(ulogger.TestLogger{}),
		dir:      t.TempDir(),
	}

	for _, o := range opts {
		o(e)
	}

	e.open()

	return e
}

// open builds a fresh chain state over the env's stores and loads it.
func (e *testEnv) open() {
	e.t.Helper()

	logger := ulogger.TestLogger{}

	files, err := blockfile.New(logger, e.dir, e.params.MessageStart, e.fileOpts)
	require.NoError(e.t, err)

	txValidator := validator.New(logger, e.settings, validator.WithWorkers(2))
	e.t.Cleanup(txValidator.Stop)

	bv := blockvalidation.New(logger, e.settings, txValidator)

	opts := []Option{
		WithSubscriber(model.SubscriberFunc(func(n *model.Notification) {
			e.events = append(e.events, n)
		})),
	}

	if e.withPool {
		e.mp = mempool.New(logger, e.settings, txValidator)
		opts = append(opts, WithMempool(e.mp))
	}

	if e.clock != nil {
		opts = append(opts, WithClock(e.clock))
	}

	e.files = files
	e.events = nil
	e.cs = New(logger, e.settings, bv, e.store, files, e.coinsDB, opts...)

	require.NoError(e.t, e.cs.Load(e.ctx))
}

func (e *testEnv) genesis() *model.BlockIndex {
	return e.index(e.params.GenesisHash)
}

func (e *testEnv) index(hash *chainhash.Hash) *model.BlockIndex {
	e.t.Helper()

	bi := e.cs.GetBlockIndex(hash)
	require.NotNil(e.t, bi, "block %s not in index", hash)

	return bi
}

// build mines a block on parent with a coinbase paying the subsidy. Blocks on different
// branches should use different tags so their coinbases differ.
func (e *testEnv) build(parent *model.BlockIndex, tag byte, txs ...*bt.Tx) *model.Block {
	height := parent.Height + 1

	return e.buildWithCoinbase(parent, model.NewCoinbaseTx(height, blockvalidation.GetBlockSubsidy(height, e.params), tag), txs...)
}

func (e *testEnv) buildWithCoinbase(parent *model.BlockIndex, coinbase *bt.Tx, txs ...*bt.Tx) *model.Block {
	return model.MineBlock(&parent.Hash, 4, parent.Timestamp+600, parent.Bits, append([]*bt.Tx{coinbase}, txs...))
}

func (e *testEnv) process(block *model.Block) error {
	return e.cs.ProcessNewBlock(e.ctx, block, "test", true, nil)
}

// extend mines and processes n blocks on parent and returns them.
func (e *testEnv) extend(parent *model.BlockIndex, n int, tag byte) []*model.Block {
	e.t.Helper()

	blocks := make([]*model.Block, 0, n)

	for i := 0; i < n; i++ {
		block := e.build(parent, tag)
		require.NoError(e.t, e.process(block))

		blocks = append(blocks, block)
		parent = e.index(block.Hash())
	}

	return blocks
}

func (e *testEnv) countEvents(notificationType model.NotificationType) int {
	n := 0

	for _, ev := range e.events {
		if ev.Type == notificationType {
			n++
		}
	}

	return n
}

// frame wraps a block the way block files store it.
func frame(magic [4]byte, block *model.Block) []byte {
	data := block.Bytes()

	out := append([]byte{}, magic[:]...)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(data))) //nolint:gosec // test blocks are small

	return append(out, data...)
}
