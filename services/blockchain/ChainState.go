/*
Package blockchain owns the chain state of the node.

ChainState aggregates the block tree with its active chain, the coin cache on top
of the coin database, the block and undo files and the block index store. Every
mutation happens under a single chain lock: headers and blocks are accepted into
the tree, ActivateBestChain moves the active chain to the valid candidate with
the most work, and FlushStateToDisk persists the index, the file statistics and
the coins in that order.

Observers registered with WithSubscriber receive block connected, block
disconnected and tip update notifications in chain order.
*/
package blockchain

import (
	"context"
	"math/big"
	"sync"

	"github.com/bsv-blockchain/chainstate/chaincfg"
	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/chainstate/model"
	"github.com/bsv-blockchain/chainstate/services/blockvalidation"
	"github.com/bsv-blockchain/chainstate/services/mempool"
	"github.com/bsv-blockchain/chainstate/settings"
	blockchain_store "github.com/bsv-blockchain/chainstate/stores/blockchain"
	"github.com/bsv-blockchain/chainstate/stores/blockfile"
	"github.com/bsv-blockchain/chainstate/stores/utxo"
	"github.com/bsv-blockchain/chainstate/ulogger"
	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/looplab/fsm"
	"go.uber.org/atomic"
)

// MinBlocksToKeep is the depth below the tip within which block and undo files are
// never pruned.
const MinBlocksToKeep = 288

type ChainState struct {
	logger    ulogger.Logger
	settings  *settings.Settings
	params    *chaincfg.Params
	validator *blockvalidation.BlockValidator
	store     blockchain_store.Store
	files     *blockfile.Manager
	coinsDB   utxo.CoinsView
	mempool   *mempool.TxMemPool
	clock     clock.Clock
	fsm       *fsm.FSM

	subscribers []model.Subscriber

	// mu is the chain lock, it guards everything below and the coin cache
	mu          sync.Mutex
	tree        *model.BlockTree
	chain       *model.Chain
	coinsTip    *utxo.CoinsViewCache
	candidates  map[model.BlockID]struct{}
	unlinked    map[model.BlockID][]model.BlockID
	bestHeader  *model.BlockIndex
	bestInvalid *model.BlockIndex

	lastWrite       atomic.Time
	lastFlush       atomic.Time
	checkForPruning atomic.Bool
	havePruned      atomic.Bool
	importing       atomic.Bool
	ibdLatched      atomic.Bool

	// fatalErr is the first fatal error, once set the chain state refuses all work
	fatalErr atomic.Error
}

// New creates an empty chain state. Load must be called before blocks are processed.
func New(logger ulogger.Logger, tSettings *settings.Settings, bv *blockvalidation.BlockValidator, store blockchain_store.Store,
	files *blockfile.Manager, coinsDB utxo.CoinsView, opts ...Option) *ChainState {
	initPrometheusMetrics()

	options := ProcessOptions(opts...)

	clk := options.clock
	if clk == nil {
		clk = clock.NewDefaultClock()
	}

	tree := model.NewBlockTree()

	return &ChainState{
		logger:      logger,
		settings:    tSettings,
		params:      tSettings.ChainCfgParams,
		validator:   bv,
		store:       store,
		files:       files,
		coinsDB:     coinsDB,
		mempool:     options.mempool,
		clock:       clk,
		fsm:         NewFiniteStateMachine(),
		subscribers: options.subscribers,
		tree:        tree,
		chain:       model.NewChain(tree),
		coinsTip:    utxo.NewCoinsViewCache(coinsDB),
		candidates:  make(map[model.BlockID]struct{}),
		unlinked:    make(map[model.BlockID][]model.BlockID),
	}
}

// Load reads the block index and restores the active chain, writing the genesis block
// first when the data directory is empty. The chain state then enters initial block
// download until the tip is recent enough.
func (c *ChainState) Load(ctx context.Context) error {
	if err := c.LoadBlockIndex(ctx); err != nil {
		return err
	}

	if err := c.InitBlockIndex(ctx); err != nil {
		return err
	}

	if err := c.fsm.Event(ctx, EventLoaded); err != nil {
		return errors.NewProcessingError("[ChainState] cannot leave state %s", c.fsm.Current(), err)
	}

	c.IsInitialBlockDownload()

	return nil
}

// Stop writes everything to disk.
func (c *ChainState) Stop(ctx context.Context) error {
	err := c.FlushStateToDisk(ctx, FlushAlways)

	if c.fsm.Can(EventStop) {
		_ = c.fsm.Event(ctx, EventStop)
	}

	return err
}

// abort records err when it is fatal and moves the chain state to Aborted. It
// returns err unchanged.
func (c *ChainState) abort(ctx context.Context, err error) error {
	if !errors.IsFatal(err) || !c.fatalErr.CompareAndSwap(nil, err) {
		return err
	}

	c.logger.Errorf("[ChainState] halting block and transaction processing: %v", err)

	if c.fsm.Can(EventAbort) {
		_ = c.fsm.Event(ctx, EventAbort)
	} else {
		c.fsm.SetState(StateAborted)
	}

	return err
}

// FatalError returns the error that halted the chain state, or nil while it runs.
func (c *ChainState) FatalError() error {
	return c.fatalErr.Load()
}

// checkNotAborted refuses work once a fatal error was recorded.
func (c *ChainState) checkNotAborted() error {
	if err := c.fatalErr.Load(); err != nil {
		return errors.NewFatalError("[ChainState] halted after a fatal error", err)
	}

	return nil
}

// State returns the lifecycle state.
func (c *ChainState) State() string {
	return c.fsm.Current()
}

func (c *ChainState) Params() *chaincfg.Params {
	return c.params
}

func (c *ChainState) notify(n *model.Notification) {
	for _, s := range c.subscribers {
		s.Notify(n)
	}
}

// Tip returns a copy of the active tip, or nil before the genesis block is connected.
func (c *ChainState) Tip() *model.BlockIndex {
	c.mu.Lock()
	defer c.mu.Unlock()

	return snapshot(c.chain.Tip())
}

// Height returns the active chain height, -1 when empty.
func (c *ChainState) Height() int32 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.chain.Height()
}

// GetBlockIndex returns a copy of the entry for hash, or nil when it is unknown.
func (c *ChainState) GetBlockIndex(hash *chainhash.Hash) *model.BlockIndex {
	c.mu.Lock()
	defer c.mu.Unlock()

	return snapshot(c.tree.Lookup(hash))
}

// IsOnActiveChain reports whether the block with the given hash is part of the active chain.
func (c *ChainState) IsOnActiveChain(hash *chainhash.Hash) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.chain.Contains(c.tree.Lookup(hash))
}

// BlockHashAt returns the hash of the active block at height.
func (c *ChainState) BlockHashAt(height int32) (*chainhash.Hash, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	bi := c.chain.At(height)
	if bi == nil {
		return nil, false
	}

	hash := bi.Hash

	return &hash, true
}

// ReadBlock reads the data of a stored block.
func (c *ChainState) ReadBlock(hash *chainhash.Hash) (*model.Block, error) {
	c.mu.Lock()
	bi := c.tree.Lookup(hash)
	known := bi != nil
	haveData := known && bi.HaveData()

	var pos model.DiskPos
	if haveData {
		pos = bi.DataPosition()
	}
	c.mu.Unlock()

	if !known {
		return nil, errors.NewBlockNotFoundError("block %s not found", hash)
	}

	if !haveData {
		return nil, errors.NewBlockNotFoundError("block %s not available (pruned data)", hash)
	}

	return c.files.ReadBlock(pos)
}

func snapshot(bi *model.BlockIndex) *model.BlockIndex {
	if bi == nil {
		return nil
	}

	cp := *bi
	cp.ChainWork = new(big.Int).Set(bi.ChainWork)

	return &cp
}

// ChainInfo is a point in time summary of the chain state.
type ChainInfo struct {
	Network              string
	State                string
	Height               int32
	BestHash             chainhash.Hash
	BestTime             int64
	MedianTime           int64
	ChainWork            *big.Int
	Headers              int32
	KnownBlocks          int
	InitialBlockDownload bool
	Pruned               bool
	PruneTargetBytes     uint64
	BlockFilesBytes      uint64
	CoinCacheEntries     int
	CoinCacheBytes       int
	Difficulty           float64
}

// Info returns a snapshot of the chain state.
func (c *ChainState) Info() *ChainInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	info := &ChainInfo{
		Network:              c.params.Name,
		State:                c.fsm.Current(),
		Height:               c.chain.Height(),
		KnownBlocks:          c.tree.Len(),
		InitialBlockDownload: c.isInitialBlockDownload(),
		Pruned:               c.havePruned.Load(),
		PruneTargetBytes:     c.settings.BlockChain.PruneTargetBytes,
		BlockFilesBytes:      c.files.CurrentUsage(),
		CoinCacheEntries:     c.coinsTip.CacheSize(),
		CoinCacheBytes:       c.coinsTip.DynamicMemoryUsage(),
		Headers:              -1,
		ChainWork:            new(big.Int),
	}

	if tip := c.chain.Tip(); tip != nil {
		info.BestHash = tip.Hash
		info.BestTime = tip.BlockTime()
		info.MedianTime = c.tree.MedianTimePast(tip)
		info.ChainWork.Set(tip.ChainWork)
		info.Difficulty = GetDifficulty(tip.Bits)
	}

	if c.bestHeader != nil {
		info.Headers = c.bestHeader.Height
	}

	return info
}

// IsInitialBlockDownload reports whether the node is still catching up. Once the tip
// is recent and has the minimum chain work the answer latches to false.
func (c *ChainState) IsInitialBlockDownload() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.isInitialBlockDownload()
}

func (c *ChainState) isInitialBlockDownload() bool {
	if c.importing.Load() {
		return true
	}

	if c.validator.CheckpointsEnabled() {
		if checkpoint := c.params.LastCheckpoint(); checkpoint != nil && c.chain.Height() < checkpoint.Height {
			return true
		}
	}

	if c.ibdLatched.Load() {
		c.caughtUp()
		return false
	}

	tip := c.chain.Tip()
	if tip == nil {
		return true
	}

	if c.params.MinimumChainWork != nil && tip.ChainWork.Cmp(c.params.MinimumChainWork) < 0 {
		return true
	}

	if tip.BlockTime() < c.clock.Now().Add(-c.settings.BlockChain.MaxTipAge).Unix() {
		return true
	}

	c.ibdLatched.Store(true)
	c.caughtUp()

	c.logger.Infof("[ChainState] leaving initial block download at height %d", tip.Height)

	return false
}

// caughtUp moves the state machine to running. The latch can be set while still
// loading, so this is retried on every check.
func (c *ChainState) caughtUp() {
	if c.fsm.Can(EventCaughtUp) {
		_ = c.fsm.Event(context.Background(), EventCaughtUp)
	}
}

// chainTip describes the active tip to the mempool. Callers hold c.mu.
func (c *ChainState) chainTip() *mempool.ChainTip {
	tip := c.chain.Tip()

	return &mempool.ChainTip{
		Coins:          c.coinsTip,
		Height:         tip.Height,
		MedianTimePast: c.tree.MedianTimePast(tip),
		AdjustedTime:   c.validator.AdjustedTime(),
		MedianTimePastAt: func(height int32) int64 {
			if bi := c.chain.At(height); bi != nil {
				return c.tree.MedianTimePast(bi)
			}

			return c.tree.MedianTimePast(tip)
		},
	}
}

// AcceptToMemoryPool admits tx to the mempool against the active tip.
func (c *ChainState) AcceptToMemoryPool(ctx context.Context, tx *bt.Tx, opts mempool.AcceptOptions) (*mempool.AcceptResult, error) {
	if c.mempool == nil {
		return nil, errors.NewServiceNotStartedError("[ChainState] no mempool configured")
	}

	if err := c.checkNotAborted(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.chain.Tip() == nil {
		return nil, errors.NewProcessingError("[ChainState] chain not loaded")
	}

	return c.mempool.AcceptToMemoryPool(ctx, tx, c.chainTip(), opts)
}

// LimitMempoolSize expires and trims the mempool, uncaching the coins only the
// removed transactions used.
func (c *ChainState) LimitMempoolSize() {
	if c.mempool == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.mempool.LimitSize(c.coinsTip)
}

// GetSpendHeight returns the height a transaction spending from view would be mined
// at: one above the view's best block.
func (c *ChainState) GetSpendHeight(ctx context.Context, view utxo.CoinsView) (int32, error) {
	best, err := view.GetBestBlock(ctx)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	bi := c.tree.Lookup(&best)
	if bi == nil {
		return 0, errors.NewBlockNotFoundError("best block %s of view not in block index", best)
	}

	return bi.Height + 1, nil
}

// GetCoin returns the unspent coin at outpoint as seen by the active tip.
func (c *ChainState) GetCoin(ctx context.Context, outpoint model.Outpoint) (*model.Coin, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.coinsTip.GetCoin(ctx, outpoint)
}

// ComputeBlockVersion returns the version a block built on the active tip should use.
func (c *ChainState) ComputeBlockVersion() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.validator.ComputeBlockVersion(c.tree, c.chain.Tip())
}

// TestBlockValidity runs every check on a block built on the active tip without
// changing any state. The proof of work and merkle root are not checked.
func (c *ChainState) TestBlockValidity(ctx context.Context, block *model.Block) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tip := c.chain.Tip()
	if tip == nil {
		return errors.NewProcessingError("[ChainState] chain not loaded")
	}

	return c.validator.TestBlockValidity(ctx, c.tree, block, tip, c.coinsTip)
}
