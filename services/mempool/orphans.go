package mempool

import (
	"sync"
	"time"

	"github.com/bsv-blockchain/chainstate/ulogger"
	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/jellydator/ttlcache/v3"
)

type orphanTx struct {
	tx     *bt.Tx
	peerID string
}

// OrphanPool holds transactions that spend outputs nobody has seen yet. Entries
// expire after ttl and the oldest entry makes room when the pool is full.
type OrphanPool struct {
	logger    ulogger.Logger
	maxTxSize int

	mu     sync.Mutex
	cache  *ttlcache.Cache[chainhash.Hash, *orphanTx]
	byPrev map[chainhash.Hash]map[chainhash.Hash]struct{}
}

func NewOrphanPool(logger ulogger.Logger, maxOrphans int, maxTxSize int, ttl time.Duration) *OrphanPool {
	initPrometheusMetrics()

	return &OrphanPool{
		logger:    logger,
		maxTxSize: maxTxSize,
		cache: ttlcache.New[chainhash.Hash, *orphanTx](
			ttlcache.WithTTL[chainhash.Hash, *orphanTx](ttl),
			ttlcache.WithCapacity[chainhash.Hash, *orphanTx](uint64(max(maxOrphans, 1))), //nolint:gosec // positive
			ttlcache.WithDisableTouchOnHit[chainhash.Hash, *orphanTx](),
		),
		byPrev: make(map[chainhash.Hash]map[chainhash.Hash]struct{}),
	}
}

// Add stores tx received from peerID. Large transactions are ignored so a peer cannot
// fill memory with orphans. It reports whether tx was added.
func (p *OrphanPool) Add(tx *bt.Tx, peerID string) bool {
	hash := *tx.TxIDChainHash()

	p.mu.Lock()
	defer p.mu.Unlock()

	p.cache.DeleteExpired()

	if p.cache.Has(hash) {
		return false
	}

	if size := tx.Size(); size > p.maxTxSize {
		p.logger.Debugf("[OrphanPool] ignoring large orphan tx %s (size %d)", hash, size)
		return false
	}

	p.cache.Set(hash, &orphanTx{tx: tx, peerID: peerID}, ttlcache.DefaultTTL)

	for _, in := range tx.Inputs {
		prev := *in.PreviousTxIDChainHash()
		if p.byPrev[prev] == nil {
			p.byPrev[prev] = make(map[chainhash.Hash]struct{})
		}

		p.byPrev[prev][hash] = struct{}{}
	}

	p.pruneIndex()

	prometheusOrphanPoolSize.Set(float64(p.cache.Len()))

	return true
}

// pruneIndex drops index entries of orphans that expired or were evicted.
func (p *OrphanPool) pruneIndex() {
	for prev, spenders := range p.byPrev {
		for hash := range spenders {
			if !p.cache.Has(hash) {
				delete(spenders, hash)
			}
		}

		if len(spenders) == 0 {
			delete(p.byPrev, prev)
		}
	}
}

func (p *OrphanPool) Has(hash *chainhash.Hash) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.cache.Has(*hash)
}

func (p *OrphanPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.cache.DeleteExpired()

	return p.cache.Len()
}

// Remove erases one orphan, typically after it was accepted or rejected.
func (p *OrphanPool) Remove(hash *chainhash.Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.remove(*hash)
}

func (p *OrphanPool) remove(hash chainhash.Hash) {
	item, ok := p.cache.GetAndDelete(hash)
	if !ok {
		return
	}

	for _, in := range item.Value().tx.Inputs {
		prev := *in.PreviousTxIDChainHash()
		if spenders, ok := p.byPrev[prev]; ok {
			delete(spenders, hash)

			if len(spenders) == 0 {
				delete(p.byPrev, prev)
			}
		}
	}

	prometheusOrphanPoolSize.Set(float64(p.cache.Len()))
}

// EraseForPeer removes every orphan received from peerID and returns how many.
func (p *OrphanPool) EraseForPeer(peerID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	var erase []chainhash.Hash

	p.cache.Range(func(item *ttlcache.Item[chainhash.Hash, *orphanTx]) bool {
		if item.Value().peerID == peerID {
			erase = append(erase, item.Key())
		}

		return true
	})

	for _, hash := range erase {
		p.remove(hash)
	}

	if len(erase) > 0 {
		p.logger.Debugf("[OrphanPool] erased %d orphan tx from peer %s", len(erase), peerID)
	}

	return len(erase)
}

// OrphanTx is an orphan handed back for another admission attempt.
type OrphanTx struct {
	Tx     *bt.Tx
	PeerID string
}

// Spending returns the orphans that spend an output of parent, oldest first.
func (p *OrphanPool) Spending(parent *chainhash.Hash) []OrphanTx {
	p.mu.Lock()
	defer p.mu.Unlock()

	spenders := p.byPrev[*parent]
	if len(spenders) == 0 {
		return nil
	}

	var orphans []OrphanTx

	p.cache.RangeBackwards(func(item *ttlcache.Item[chainhash.Hash, *orphanTx]) bool {
		if _, ok := spenders[item.Key()]; ok {
			orphans = append(orphans, OrphanTx{Tx: item.Value().tx, PeerID: item.Value().peerID})
		}

		return true
	})

	return orphans
}
