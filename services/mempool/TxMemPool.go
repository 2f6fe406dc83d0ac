/*
Package mempool implements the pool of validated, unconfirmed transactions.

TxMemPool keeps every pooled transaction together with links to its in-pool
parents and children and the outpoints it reserves. Running ancestor and
descendant totals are kept on each entry so that chain limits, replacement and
size based eviction can be decided without walking the graph.

AcceptToMemoryPool drives a single transaction through the admission stages.
OrphanPool holds transactions whose inputs are not known yet and RecentRejects
remembers recently rejected transaction ids until the chain tip changes.
*/
package mempool

import (
	"math"
	"sync"
	"time"

	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/chainstate/model"
	"github.com/bsv-blockchain/chainstate/services/validator"
	"github.com/bsv-blockchain/chainstate/settings"
	"github.com/bsv-blockchain/chainstate/ulogger"
	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/lightningnetwork/lnd/clock"
	"go.uber.org/atomic"
	"golang.org/x/time/rate"
)

// RemovalReason says why a transaction left the pool.
type RemovalReason int

const (
	RemovalUnknown RemovalReason = iota
	RemovalExpiry
	RemovalSizeLimit
	RemovalReorg
	RemovalBlock
	RemovalConflict
	RemovalReplaced
)

func (r RemovalReason) String() string {
	switch r {
	case RemovalExpiry:
		return "expiry"
	case RemovalSizeLimit:
		return "sizelimit"
	case RemovalReorg:
		return "reorg"
	case RemovalBlock:
		return "block"
	case RemovalConflict:
		return "conflict"
	case RemovalReplaced:
		return "replaced"
	default:
		return "unknown"
	}
}

// rollingFeeUpdateDelay is the minimum time between decays of the rolling minimum fee.
const rollingFeeUpdateDelay = 10 * time.Second

// TxMemPool is safe for concurrent use. Mutating operations that depend on chain state
// are expected to run while the caller holds the chain lock.
type TxMemPool struct {
	logger    ulogger.Logger
	settings  *settings.Settings
	validator *validator.Validator
	clock     clock.Clock

	mu      sync.RWMutex
	entries map[chainhash.Hash]*TxMemPoolEntry
	nextTx  map[model.Outpoint]chainhash.Hash

	totalTxSize int
	usage       int

	rollingMinimumFeeRate        float64
	lastRollingFeeUpdate         time.Time
	blockSinceLastRollingFeeBump bool

	freeLimiter *rate.Limiter

	sequence            atomic.Uint64
	transactionsUpdated atomic.Uint64

	subscribers []model.Subscriber
}

// New creates an empty pool.
func New(logger ulogger.Logger, tSettings *settings.Settings, txValidator *validator.Validator, opts ...Option) *TxMemPool {
	initPrometheusMetrics()

	options := ProcessOptions(opts...)

	clk := options.clock
	if clk == nil {
		clk = clock.NewDefaultClock()
	}

	// the free allowance refills its burst of LimitFreeRelay*10 kB over ten minutes
	burst := tSettings.Policy.LimitFreeRelay * 10 * 1000

	return &TxMemPool{
		logger:      logger,
		settings:    tSettings,
		validator:   txValidator,
		clock:       clk,
		entries:     make(map[chainhash.Hash]*TxMemPoolEntry),
		nextTx:      make(map[model.Outpoint]chainhash.Hash),
		freeLimiter: rate.NewLimiter(rate.Limit(float64(burst)/600), burst),
		subscribers: options.subscribers,

		lastRollingFeeUpdate: clk.Now(),
	}
}

func (mp *TxMemPool) notify(n *model.Notification) {
	for _, s := range mp.subscribers {
		s.Notify(n)
	}
}

func (mp *TxMemPool) Exists(hash *chainhash.Hash) bool {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	_, ok := mp.entries[*hash]

	return ok
}

// Get returns a copy of the entry without its links, or nil.
func (mp *TxMemPool) Get(hash *chainhash.Hash) *TxMemPoolEntry {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	entry, ok := mp.entries[*hash]
	if !ok {
		return nil
	}

	clone := *entry
	clone.parents = copyHashSet(entry.parents)
	clone.children = copyHashSet(entry.children)

	return &clone
}

func copyHashSet(m map[chainhash.Hash]struct{}) map[chainhash.Hash]struct{} {
	c := make(map[chainhash.Hash]struct{}, len(m))
	for k := range m {
		c[k] = struct{}{}
	}

	return c
}

// Spender returns the pooled transaction spending outpoint.
func (mp *TxMemPool) Spender(outpoint model.Outpoint) (chainhash.Hash, bool) {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	hash, ok := mp.nextTx[outpoint]

	return hash, ok
}

func (mp *TxMemPool) Size() int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return len(mp.entries)
}

func (mp *TxMemPool) TotalTxSize() int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return mp.totalTxSize
}

func (mp *TxMemPool) DynamicMemoryUsage() int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return mp.usage
}

// TransactionsUpdated counts additions and removals, for callers polling for changes.
func (mp *TxMemPool) TransactionsUpdated() uint64 {
	return mp.transactionsUpdated.Load()
}

// Transactions returns the pooled transactions in arrival order.
func (mp *TxMemPool) Transactions() []*bt.Tx {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	entries := mp.sortedEntries(func(a, b *TxMemPoolEntry) bool { return a.sequence < b.sequence })

	txs := make([]*bt.Tx, len(entries))
	for i, e := range entries {
		txs[i] = e.Tx
	}

	return txs
}

// GetMinFee returns the fee rate, in satoshis per 1000 bytes, a transaction needs to
// enter a pool limited to sizeLimit bytes. After evictions the rate rises and then
// decays with a half life that shrinks as the pool empties.
func (mp *TxMemPool) GetMinFee(sizeLimit int64) int64 {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	return mp.getMinFee(sizeLimit)
}

func (mp *TxMemPool) getMinFee(sizeLimit int64) int64 {
	minRelay := mp.settings.Policy.MinRelayTxFee

	if !mp.blockSinceLastRollingFeeBump || mp.rollingMinimumFeeRate == 0 {
		return int64(mp.rollingMinimumFeeRate)
	}

	now := mp.clock.Now()
	if now.After(mp.lastRollingFeeUpdate.Add(rollingFeeUpdateDelay)) {
		halfLife := mp.settings.Mempool.RollingFeeHalfLife

		switch usage := int64(mp.usage); {
		case usage < sizeLimit/4:
			halfLife /= 4
		case usage < sizeLimit/2:
			halfLife /= 2
		}

		elapsed := now.Sub(mp.lastRollingFeeUpdate)
		mp.rollingMinimumFeeRate /= math.Pow(2, elapsed.Seconds()/halfLife.Seconds())
		mp.lastRollingFeeUpdate = now

		if mp.rollingMinimumFeeRate < float64(minRelay)/2 {
			mp.rollingMinimumFeeRate = 0
			return 0
		}
	}

	return max(int64(mp.rollingMinimumFeeRate), minRelay)
}

func (mp *TxMemPool) trackPackageRemoved(rate float64) {
	if rate > mp.rollingMinimumFeeRate {
		mp.rollingMinimumFeeRate = rate
		mp.blockSinceLastRollingFeeBump = false
	}
}

// AncestorLimits bound the in-pool chain a new transaction may join.
type AncestorLimits struct {
	AncestorCount   int
	AncestorSize    int
	DescendantCount int
	DescendantSize  int
}

// LimitsFromSettings returns the configured chain limits.
func LimitsFromSettings(tSettings *settings.Settings) AncestorLimits {
	return AncestorLimits{
		AncestorCount:   tSettings.Mempool.AncestorLimit,
		AncestorSize:    tSettings.Mempool.AncestorSizeLimit,
		DescendantCount: tSettings.Mempool.DescendantLimit,
		DescendantSize:  tSettings.Mempool.DescendantSizeLimit,
	}
}

// NoLimits disables the chain limits, used when re-adding transactions of
// disconnected blocks.
var NoLimits = AncestorLimits{
	AncestorCount:   math.MaxInt32,
	AncestorSize:    math.MaxInt32,
	DescendantCount: math.MaxInt32,
	DescendantSize:  math.MaxInt32,
}

// CalculateAncestors returns every in-pool ancestor of tx, failing when adding tx
// would break one of the limits.
func (mp *TxMemPool) CalculateAncestors(tx *bt.Tx, limits AncestorLimits) (map[chainhash.Hash]struct{}, error) {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return mp.calculateAncestors(tx, tx.Size(), limits)
}

func (mp *TxMemPool) calculateAncestors(tx *bt.Tx, size int, limits AncestorLimits) (map[chainhash.Hash]struct{}, error) {
	ancestors := make(map[chainhash.Hash]struct{})
	pending := make(map[chainhash.Hash]struct{})

	for _, in := range tx.Inputs {
		parent := model.InputOutpoint(in).Hash
		if _, ok := mp.entries[parent]; !ok {
			continue
		}

		pending[parent] = struct{}{}
		if len(pending)+1 > limits.AncestorCount {
			return nil, errors.NewTxTooLongMempoolChainError("too-long-mempool-chain: too many unconfirmed parents [limit: %d]", limits.AncestorCount)
		}
	}

	totalSize := size

	for len(pending) > 0 {
		var hash chainhash.Hash
		for hash = range pending {
			break
		}

		delete(pending, hash)
		ancestors[hash] = struct{}{}

		entry := mp.entries[hash]
		totalSize += entry.Size

		switch {
		case entry.SizeWithDescendants+size > limits.DescendantSize:
			return nil, errors.NewTxTooLongMempoolChainError("too-long-mempool-chain: exceeds descendant size limit for tx %s [limit: %d]", hash, limits.DescendantSize)
		case entry.CountWithDescendants+1 > limits.DescendantCount:
			return nil, errors.NewTxTooLongMempoolChainError("too-long-mempool-chain: too many descendants for tx %s [limit: %d]", hash, limits.DescendantCount)
		case totalSize > limits.AncestorSize:
			return nil, errors.NewTxTooLongMempoolChainError("too-long-mempool-chain: exceeds ancestor size limit [limit: %d]", limits.AncestorSize)
		}

		for parent := range entry.parents {
			if _, ok := ancestors[parent]; !ok {
				pending[parent] = struct{}{}
			}

			if len(pending)+len(ancestors)+1 > limits.AncestorCount {
				return nil, errors.NewTxTooLongMempoolChainError("too-long-mempool-chain: too many unconfirmed ancestors [limit: %d]", limits.AncestorCount)
			}
		}
	}

	return ancestors, nil
}

// calculateDescendants adds hash and all its in-pool descendants to set.
func (mp *TxMemPool) calculateDescendants(hash chainhash.Hash, set map[chainhash.Hash]struct{}) {
	stack := []chainhash.Hash{hash}

	for len(stack) > 0 {
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if _, seen := set[h]; seen {
			continue
		}

		set[h] = struct{}{}

		for child := range mp.entries[h].children {
			stack = append(stack, child)
		}
	}
}

// ancestorsOf walks parent links of an entry already in the pool.
func (mp *TxMemPool) ancestorsOf(entry *TxMemPoolEntry) map[chainhash.Hash]struct{} {
	ancestors := make(map[chainhash.Hash]struct{})
	stack := entry.Parents()

	for len(stack) > 0 {
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if _, seen := ancestors[h]; seen {
			continue
		}

		ancestors[h] = struct{}{}

		for parent := range mp.entries[h].parents {
			stack = append(stack, parent)
		}
	}

	return ancestors
}

// AddUnchecked inserts an entry that passed admission. ancestors must be the result
// of CalculateAncestors for the entry's tx.
func (mp *TxMemPool) AddUnchecked(entry *TxMemPoolEntry, ancestors map[chainhash.Hash]struct{}) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.addUnchecked(entry, ancestors)
}

func (mp *TxMemPool) addUnchecked(entry *TxMemPoolEntry, ancestors map[chainhash.Hash]struct{}) {
	entry.sequence = mp.sequence.Inc()
	mp.entries[entry.Hash] = entry

	for _, in := range entry.Tx.Inputs {
		outpoint := model.InputOutpoint(in)
		mp.nextTx[outpoint] = entry.Hash

		if parent, ok := mp.entries[outpoint.Hash]; ok {
			entry.parents[outpoint.Hash] = struct{}{}
			parent.children[entry.Hash] = struct{}{}
		}
	}

	for hash := range ancestors {
		ancestor := mp.entries[hash]
		ancestor.CountWithDescendants++
		ancestor.SizeWithDescendants += entry.Size
		ancestor.FeesWithDescendants += entry.Fee

		entry.CountWithAncestors++
		entry.SizeWithAncestors += ancestor.Size
		entry.FeesWithAncestors += ancestor.Fee
		entry.SigOpsWithAncestors += ancestor.SigOpCount
	}

	mp.totalTxSize += entry.Size
	mp.usage += entry.memoryUsage()
	mp.transactionsUpdated.Inc()

	prometheusMempoolSize.Set(float64(len(mp.entries)))
}

// removeStaged removes a set of entries. Entries outside the set keep consistent
// totals: ancestors lose the removed descendants and surviving descendants lose the
// removed ancestors.
func (mp *TxMemPool) removeStaged(stage map[chainhash.Hash]struct{}, reason RemovalReason) []*bt.Tx {
	for hash := range stage {
		entry := mp.entries[hash]

		for ancestorHash := range mp.ancestorsOf(entry) {
			if _, removing := stage[ancestorHash]; removing {
				continue
			}

			ancestor := mp.entries[ancestorHash]
			ancestor.CountWithDescendants--
			ancestor.SizeWithDescendants -= entry.Size
			ancestor.FeesWithDescendants -= entry.Fee
		}

		descendants := make(map[chainhash.Hash]struct{})
		mp.calculateDescendants(hash, descendants)

		for descendantHash := range descendants {
			if _, removing := stage[descendantHash]; removing {
				continue
			}

			descendant := mp.entries[descendantHash]
			descendant.CountWithAncestors--
			descendant.SizeWithAncestors -= entry.Size
			descendant.FeesWithAncestors -= entry.Fee
			descendant.SigOpsWithAncestors -= entry.SigOpCount
		}
	}

	removed := make([]*bt.Tx, 0, len(stage))

	for hash := range stage {
		entry := mp.entries[hash]

		for _, in := range entry.Tx.Inputs {
			delete(mp.nextTx, model.InputOutpoint(in))
		}

		for parent := range entry.parents {
			if p, ok := mp.entries[parent]; ok {
				delete(p.children, hash)
			}
		}

		for child := range entry.children {
			if c, ok := mp.entries[child]; ok {
				delete(c.parents, hash)
			}
		}

		delete(mp.entries, hash)

		mp.totalTxSize -= entry.Size
		mp.usage -= entry.memoryUsage()

		removed = append(removed, entry.Tx)

		mp.notify(&model.Notification{
			Type:   model.NotificationTypeTxRemoved,
			Hash:   &entry.Hash,
			Tx:     entry.Tx,
			Reason: reason.String(),
		})
	}

	if len(stage) > 0 {
		mp.transactionsUpdated.Inc()
		prometheusMempoolRemoved.WithLabelValues(reason.String()).Add(float64(len(stage)))
		prometheusMempoolSize.Set(float64(len(mp.entries)))
	}

	return removed
}

// RemoveRecursive removes tx, or the pooled spenders of its outputs when tx itself is
// not pooled, together with all descendants.
func (mp *TxMemPool) RemoveRecursive(tx *bt.Tx, reason RemovalReason) []*bt.Tx {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	return mp.removeRecursive(tx, reason)
}

func (mp *TxMemPool) removeRecursive(tx *bt.Tx, reason RemovalReason) []*bt.Tx {
	hash := *tx.TxIDChainHash()
	stage := make(map[chainhash.Hash]struct{})

	if _, ok := mp.entries[hash]; ok {
		mp.calculateDescendants(hash, stage)
	} else {
		// a tx from a disconnected block that did not make it back into the pool
		for i := range tx.Outputs {
			if spender, ok := mp.nextTx[model.NewOutpoint(&hash, uint32(i))]; ok { //nolint:gosec // output counts fit uint32
				mp.calculateDescendants(spender, stage)
			}
		}
	}

	return mp.removeStaged(stage, reason)
}

// removeConflicts removes pooled transactions, other than tx, spending any input of tx.
func (mp *TxMemPool) removeConflicts(tx *bt.Tx) []*bt.Tx {
	hash := *tx.TxIDChainHash()

	var conflicts []*bt.Tx

	for _, in := range tx.Inputs {
		spender, ok := mp.nextTx[model.InputOutpoint(in)]
		if !ok || spender == hash {
			continue
		}

		stage := make(map[chainhash.Hash]struct{})
		mp.calculateDescendants(spender, stage)
		conflicts = append(conflicts, mp.removeStaged(stage, RemovalConflict)...)
	}

	return conflicts
}

func (mp *TxMemPool) sortedEntries(less func(a, b *TxMemPoolEntry) bool) []*TxMemPoolEntry {
	entries := make([]*TxMemPoolEntry, 0, len(mp.entries))
	for _, e := range mp.entries {
		entries = append(entries, e)
	}

	sortEntries(entries, less)

	return entries
}

// Clear empties the pool.
func (mp *TxMemPool) Clear() {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.entries = make(map[chainhash.Hash]*TxMemPoolEntry)
	mp.nextTx = make(map[model.Outpoint]chainhash.Hash)
	mp.totalTxSize = 0
	mp.usage = 0
	mp.rollingMinimumFeeRate = 0
	mp.blockSinceLastRollingFeeBump = false
	mp.lastRollingFeeUpdate = mp.clock.Now()
	mp.transactionsUpdated.Inc()

	prometheusMempoolSize.Set(0)
}
