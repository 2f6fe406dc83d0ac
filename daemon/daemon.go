/*
Package daemon assembles the chain state engine from its stores and services.

The Engine opens the coin database, the block index store and the block files in
the data folder, wires the script validator, the block validator, the mempool and
the chain state together and exposes the entry points a peer-to-peer layer or a
command line drives: SubmitBlock, SubmitTransaction and ImportFile. Two background
loops run while the engine is started, one flushing the chain state periodically
and one expiring and trimming the mempool.
*/
package daemon

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/chainstate/model"
	"github.com/bsv-blockchain/chainstate/services/blockchain"
	"github.com/bsv-blockchain/chainstate/services/blockvalidation"
	"github.com/bsv-blockchain/chainstate/services/mempool"
	"github.com/bsv-blockchain/chainstate/services/validator"
	"github.com/bsv-blockchain/chainstate/settings"
	blockchain_store "github.com/bsv-blockchain/chainstate/stores/blockchain"
	"github.com/bsv-blockchain/chainstate/stores/blockchain/bbolt"
	"github.com/bsv-blockchain/chainstate/stores/blockfile"
	"github.com/bsv-blockchain/chainstate/stores/utxo"
	"github.com/bsv-blockchain/chainstate/stores/utxo/factory"
	"github.com/bsv-blockchain/chainstate/ulogger"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/ticker"
	"go.uber.org/atomic"
)

// engineStores holds the databases the engine opened, or was handed, and closes
// the ones it owns.
type engineStores struct {
	coins         utxo.CoinsView
	externalCoins bool
	index         blockchain_store.Store
	externalIndex bool
	files         *blockfile.Manager
}

func (s *engineStores) close(logger ulogger.Logger) error {
	var firstErr error

	if s.index != nil && !s.externalIndex {
		if err := s.index.Close(); err != nil {
			logger.Errorf("[Engine] failed to close block index store: %v", err)
			firstErr = err
		}
	}

	if closer, ok := s.coins.(utxo.Closer); ok && !s.externalCoins {
		if err := closer.Close(); err != nil {
			logger.Errorf("[Engine] failed to close coin database: %v", err)

			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}

type Engine struct {
	logger      ulogger.Logger
	settings    *settings.Settings
	clock       clock.Clock
	subscribers []model.Subscriber
	stores      engineStores

	txValidator    *validator.Validator
	blockValidator *blockvalidation.BlockValidator
	mempool        *mempool.TxMemPool
	chainState     *blockchain.ChainState
	orphans        *mempool.OrphanPool
	rejects        *mempool.RecentRejects

	flushTicker  ticker.Ticker
	expiryTicker ticker.Ticker

	misbehaviorMu sync.Mutex
	misbehavior   map[string]int

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	started  atomic.Bool
	stopped  atomic.Bool
	halted   chan struct{}
	haltOnce sync.Once
}

// New opens the stores in tSettings.DataFolder and builds the services on top of
// them. Nothing is read from the stores until Start.
func New(ctx context.Context, logger ulogger.Logger, tSettings *settings.Settings, opts ...Option) (*Engine, error) {
	e := &Engine{
		logger:      logger,
		settings:    tSettings,
		misbehavior: make(map[string]int),
		halted:      make(chan struct{}),
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.clock == nil {
		e.clock = clock.NewDefaultClock()
	}

	if e.flushTicker == nil {
		e.flushTicker = ticker.New(tSettings.BlockChain.FlushCheckInterval)
	}

	if e.expiryTicker == nil {
		e.expiryTicker = ticker.New(tSettings.Mempool.ExpiryCheckInterval)
	}

	if err := os.MkdirAll(tSettings.DataFolder, 0o755); err != nil {
		return nil, errors.NewStorageError("[Engine] failed to create data folder %s", tSettings.DataFolder, err)
	}

	if err := e.openStores(ctx); err != nil {
		_ = e.stores.close(logger)
		return nil, err
	}

	e.txValidator = validator.New(logger.New("validator"), tSettings)
	e.blockValidator = blockvalidation.New(logger.New("blockvalidation"), tSettings, e.txValidator,
		blockvalidation.WithClock(e.clock),
	)

	events := model.SubscriberFunc(e.notify)

	e.mempool = mempool.New(logger.New("mempool"), tSettings, e.txValidator,
		mempool.WithClock(e.clock),
		mempool.WithSubscriber(events),
	)

	e.chainState = blockchain.New(logger.New("blockchain"), tSettings, e.blockValidator, e.stores.index, e.stores.files, e.stores.coins,
		blockchain.WithMempool(e.mempool),
		blockchain.WithClock(e.clock),
		blockchain.WithSubscriber(events),
	)

	e.orphans = mempool.NewOrphanPool(logger.New("orphans"), tSettings.Mempool.MaxOrphanTxs, tSettings.Mempool.MaxOrphanTxSize, tSettings.Mempool.OrphanTTL)
	e.rejects = mempool.NewRecentRejects(tSettings.Mempool.RejectFilterSize)

	return e, nil
}

func (e *Engine) openStores(ctx context.Context) error {
	var err error

	if e.stores.coins == nil {
		if e.stores.coins, err = factory.NewStore(ctx, e.logger, e.settings); err != nil {
			return err
		}
	}

	if e.stores.index == nil {
		store, bErr := bbolt.New(e.logger, filepath.Join(e.settings.DataFolder, "index"))
		if bErr != nil {
			return bErr
		}

		e.stores.index = store
	}

	chainSettings := e.settings.BlockChain

	e.stores.files, err = blockfile.New(e.logger, filepath.Join(e.settings.DataFolder, "blocks"), e.settings.ChainCfgParams.MessageStart, blockfile.Options{
		MaxFileSize:    chainSettings.MaxBlockFileSize,
		BlockChunkSize: chainSettings.BlockFileChunkSize,
		UndoChunkSize:  chainSettings.UndoFileChunkSize,
	})

	return err
}

// Start loads the chain state, verifies the top of the active chain, connects any
// stored chain with more work and starts the background loops.
func (e *Engine) Start(ctx context.Context) error {
	if e.stopped.Load() {
		return errors.NewServiceError("[Engine] cannot restart a stopped engine")
	}

	if !e.started.CompareAndSwap(false, true) {
		return nil
	}

	if err := e.chainState.Load(ctx); err != nil {
		return err
	}

	chainSettings := e.settings.BlockChain

	if chainSettings.CheckLevel > 0 || chainSettings.CheckBlocks > 0 {
		if err := e.chainState.VerifyDB(ctx, chainSettings.CheckLevel, chainSettings.CheckBlocks); err != nil {
			return err
		}
	}

	if err := e.chainState.ActivateBestChain(ctx, nil); err != nil {
		return err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel

	e.runLoop(loopCtx, "flush", e.flushTicker, func(ctx context.Context) {
		if err := e.chainState.FlushStateToDisk(ctx, blockchain.FlushPeriodic); err != nil {
			e.logger.Errorf("[Engine] periodic flush failed: %v", err)
			e.haltOnFatal(err)
		}
	})

	e.runLoop(loopCtx, "expiry", e.expiryTicker, func(context.Context) {
		e.chainState.LimitMempoolSize()
	})

	info := e.chainState.Info()
	e.logger.Infof("[Engine] started on %s at height %d (%s)", info.Network, info.Height, info.BestHash)

	return nil
}

func (e *Engine) runLoop(ctx context.Context, name string, t ticker.Ticker, fn func(ctx context.Context)) {
	e.wg.Add(1)

	t.Resume()

	go func() {
		defer e.wg.Done()

		for {
			select {
			case <-ctx.Done():
				e.logger.Debugf("[Engine] %s loop stopped", name)
				return
			case <-t.Ticks():
				fn(ctx)
			}
		}
	}()
}

// Stop ends the background loops, writes the chain state to disk and closes the
// stores. An engine cannot be started again once stopped.
func (e *Engine) Stop(ctx context.Context) error {
	if !e.stopped.CompareAndSwap(false, true) {
		return nil
	}

	var firstErr error

	// cancel is only set once Start got as far as the loops
	if e.cancel != nil {
		e.cancel()
		e.wg.Wait()

		e.flushTicker.Stop()
		e.expiryTicker.Stop()

		if err := e.chainState.Stop(ctx); err != nil {
			e.logger.Errorf("[Engine] failed to flush chain state: %v", err)
			firstErr = err
		}
	}

	e.txValidator.Stop()

	if err := e.stores.close(e.logger); err != nil && firstErr == nil {
		firstErr = err
	}

	e.logger.Infof("[Engine] stopped")

	return firstErr
}

// haltOnFatal ends the background loops when err left the chain state unusable.
// Stop still has to be called to close the stores.
func (e *Engine) haltOnFatal(err error) {
	if !errors.IsFatal(err) {
		return
	}

	e.haltOnce.Do(func() {
		e.logger.Errorf("[Engine] halting after fatal error: %v", err)

		if e.cancel != nil {
			e.cancel()
		}

		close(e.halted)
	})
}

// Halted is closed once a fatal error stopped block and transaction processing.
func (e *Engine) Halted() <-chan struct{} {
	return e.halted
}

// Err returns the fatal error that halted the engine, if any.
func (e *Engine) Err() error {
	return e.chainState.FatalError()
}

// ImportFile loads the blocks of a bootstrap or block file into the chain.
func (e *Engine) ImportFile(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.NewStorageError("[Engine] failed to open %s", path, err)
	}

	defer f.Close()

	e.logger.Infof("[Engine] importing blocks from %s", path)

	n, err := e.chainState.LoadExternalBlockFile(ctx, f)
	e.haltOnFatal(err)

	return n, err
}

func (e *Engine) ChainState() *blockchain.ChainState {
	return e.chainState
}

func (e *Engine) Mempool() *mempool.TxMemPool {
	return e.mempool
}

func (e *Engine) Orphans() *mempool.OrphanPool {
	return e.orphans
}

func (e *Engine) notify(n *model.Notification) {
	for _, s := range e.subscribers {
		s.Notify(n)
	}
}
