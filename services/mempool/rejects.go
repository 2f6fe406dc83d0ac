package mempool

import (
	"sync"

	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/cespare/xxhash"
	"github.com/greatroar/blobloom"
)

// RecentRejects remembers ids of recently rejected transactions so they are not
// downloaded and validated again. It is a rolling filter of two bloom generations:
// once the current one holds half the capacity the older one is dropped. The whole
// filter is reset whenever the chain tip changes, since a rejection may depend on it.
type RecentRejects struct {
	mu       sync.Mutex
	capacity uint64
	fpRate   float64
	tip      chainhash.Hash
	current  *blobloom.Filter
	previous *blobloom.Filter
	inserted uint64
}

func NewRecentRejects(capacity uint64) *RecentRejects {
	r := &RecentRejects{
		capacity: max(capacity, 2),
		fpRate:   0.000001,
	}

	r.current = r.newFilter()
	r.previous = r.newFilter()

	return r
}

func (r *RecentRejects) newFilter() *blobloom.Filter {
	return blobloom.NewOptimized(blobloom.Config{
		Capacity: r.capacity / 2,
		FPRate:   r.fpRate,
	})
}

func rejectKey(hash *chainhash.Hash) uint64 {
	return xxhash.Sum64(hash[:])
}

func (r *RecentRejects) Add(hash *chainhash.Hash) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.inserted >= r.capacity/2 {
		r.previous, r.current = r.current, r.previous
		r.current.Clear()
		r.inserted = 0
	}

	r.current.Add(rejectKey(hash))
	r.inserted++
}

// Contains may report false positives, never false negatives for the most recent
// capacity/2 additions.
func (r *RecentRejects) Contains(hash *chainhash.Hash) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := rejectKey(hash)

	return r.current.Has(key) || r.previous.Has(key)
}

// ResetIfTipChanged clears the filter when tip differs from the tip seen last.
func (r *RecentRejects) ResetIfTipChanged(tip chainhash.Hash) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if tip == r.tip {
		return
	}

	r.tip = tip
	r.current.Clear()
	r.previous.Clear()
	r.inserted = 0
}
