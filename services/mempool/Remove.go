package mempool

import (
	"context"
	"slices"
	"sort"
	"time"

	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/chainstate/model"
	"github.com/bsv-blockchain/chainstate/services/validator"
	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
)

func sortEntries(entries []*TxMemPoolEntry, less func(a, b *TxMemPoolEntry) bool) {
	sort.Slice(entries, func(i, j int) bool {
		return less(entries[i], entries[j])
	})
}

// evictionOrder puts the lowest descendant score first; on equal scores the newest
// entry goes first.
func evictionOrder(a, b *TxMemPoolEntry) bool {
	sa, sb := a.DescendantScore(), b.DescendantScore()
	if sa != sb {
		return sa < sb
	}

	return a.sequence > b.sequence
}

// Expire removes every entry that arrived before cutoff, with its descendants.
func (mp *TxMemPool) Expire(cutoff time.Time) int {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	return mp.expire(cutoff)
}

func (mp *TxMemPool) expire(cutoff time.Time) int {
	stage := make(map[chainhash.Hash]struct{})

	for hash, entry := range mp.entries {
		if entry.Time.Before(cutoff) {
			mp.calculateDescendants(hash, stage)
		}
	}

	mp.removeStaged(stage, RemovalExpiry)

	return len(stage)
}

// TrimToSize evicts packages with the lowest descendant fee rate until the pool uses
// at most sizeLimit bytes. The rolling minimum fee is raised above every evicted
// package. It returns the outpoints spent by evicted transactions that are neither
// pooled nor spent by what is left, so the caller can drop them from the coin cache.
func (mp *TxMemPool) TrimToSize(sizeLimit int64) []model.Outpoint {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	return mp.trimToSize(sizeLimit)
}

func (mp *TxMemPool) trimToSize(sizeLimit int64) []model.Outpoint {
	var (
		noSpendsRemaining []model.Outpoint
		maxFeeRateRemoved float64
		removedCount      int
	)

	for len(mp.entries) > 0 && int64(mp.usage) > sizeLimit {
		var worst *TxMemPoolEntry
		for _, e := range mp.entries {
			if worst == nil || evictionOrder(e, worst) {
				worst = e
			}
		}

		removed := feeRate(worst.FeesWithDescendants, worst.SizeWithDescendants) + float64(mp.settings.Mempool.IncrementalRelayFee)
		mp.trackPackageRemoved(removed)
		maxFeeRateRemoved = max(maxFeeRateRemoved, removed)

		stage := make(map[chainhash.Hash]struct{})
		mp.calculateDescendants(worst.Hash, stage)

		txs := mp.removeStaged(stage, RemovalSizeLimit)
		removedCount += len(txs)

		for _, tx := range txs {
			for _, in := range tx.Inputs {
				outpoint := model.InputOutpoint(in)
				if _, pooled := mp.entries[outpoint.Hash]; pooled {
					continue
				}

				if _, spent := mp.nextTx[outpoint]; !spent {
					noSpendsRemaining = append(noSpendsRemaining, outpoint)
				}
			}
		}
	}

	if maxFeeRateRemoved > 0 {
		mp.logger.Debugf("[Mempool] removed %d txs, rolling minimum fee bumped to %.0f sat/kB", removedCount, maxFeeRateRemoved)
	}

	return noSpendsRemaining
}

// trimNode is an entry as seen by survivesTrim.
type trimNode struct {
	fee                 uint64
	size                int
	usage               int
	sequence            uint64
	expired             bool
	feesWithDescendants uint64
	sizeWithDescendants int
	parents             []chainhash.Hash
	children            []chainhash.Hash
}

func (n *trimNode) score() float64 {
	own := feeRate(n.fee, n.size)
	if withDescendants := feeRate(n.feesWithDescendants, n.sizeWithDescendants); withDescendants > own {
		return withDescendants
	}

	return own
}

// survivesTrim reports whether entry would still be pooled after stage is removed,
// entry is added and the pool is expired at cutoff and trimmed to sizeLimit. It
// replays limitSize on a copy of the package graph and leaves the pool untouched.
func (mp *TxMemPool) survivesTrim(entry *TxMemPoolEntry, stage map[chainhash.Hash]struct{}, sizeLimit int64, cutoff time.Time) bool {
	nodes := make(map[chainhash.Hash]*trimNode, len(mp.entries)+1)
	usage := int64(mp.usage)

	for hash, e := range mp.entries {
		if _, removing := stage[hash]; removing {
			usage -= int64(e.memoryUsage())
			continue
		}

		nodes[hash] = &trimNode{
			fee:      e.Fee,
			size:     e.Size,
			usage:    e.memoryUsage(),
			sequence: e.sequence,
			expired:  e.Time.Before(cutoff),
		}
	}

	added := &trimNode{
		fee:      entry.Fee,
		size:     entry.Size,
		usage:    entry.memoryUsage(),
		sequence: mp.sequence.Load() + 1,
	}

	for hash, node := range nodes {
		for parent := range mp.entries[hash].parents {
			if _, ok := nodes[parent]; ok {
				node.parents = append(node.parents, parent)
				nodes[parent].children = append(nodes[parent].children, hash)
			}
		}
	}

	for _, in := range entry.Tx.Inputs {
		parent := model.InputOutpoint(in).Hash
		if p, ok := nodes[parent]; ok && !slices.Contains(added.parents, parent) {
			added.parents = append(added.parents, parent)
			p.children = append(p.children, entry.Hash)
		}
	}

	nodes[entry.Hash] = added
	usage += int64(added.usage)

	walk := func(from chainhash.Hash, next func(*trimNode) []chainhash.Hash) map[chainhash.Hash]struct{} {
		seen := make(map[chainhash.Hash]struct{})
		stack := []chainhash.Hash{from}

		for len(stack) > 0 {
			h := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			node, alive := nodes[h]
			if !alive {
				continue
			}

			if _, ok := seen[h]; ok {
				continue
			}

			seen[h] = struct{}{}
			stack = append(stack, next(node)...)
		}

		return seen
	}

	parentsOf := func(n *trimNode) []chainhash.Hash { return n.parents }
	childrenOf := func(n *trimNode) []chainhash.Hash { return n.children }

	for hash, node := range nodes {
		for d := range walk(hash, childrenOf) {
			node.feesWithDescendants += nodes[d].fee
			node.sizeWithDescendants += nodes[d].size
		}
	}

	remove := func(pkg map[chainhash.Hash]struct{}) {
		for h := range pkg {
			node := nodes[h]

			for a := range walk(h, parentsOf) {
				if _, removing := pkg[a]; removing {
					continue
				}

				nodes[a].feesWithDescendants -= node.fee
				nodes[a].sizeWithDescendants -= node.size
			}
		}

		for h := range pkg {
			usage -= int64(nodes[h].usage)
			delete(nodes, h)
		}
	}

	expired := make(map[chainhash.Hash]struct{})

	for hash, node := range nodes {
		if node.expired {
			for d := range walk(hash, childrenOf) {
				expired[d] = struct{}{}
			}
		}
	}

	remove(expired)

	for len(nodes) > 0 && usage > sizeLimit {
		if _, ok := nodes[entry.Hash]; !ok {
			return false
		}

		var (
			worstHash chainhash.Hash
			worst     *trimNode
		)

		for hash, node := range nodes {
			if worst == nil || node.score() < worst.score() ||
				(node.score() == worst.score() && node.sequence > worst.sequence) {
				worstHash, worst = hash, node
			}
		}

		remove(walk(worstHash, childrenOf))
	}

	_, ok := nodes[entry.Hash]

	return ok
}

// LimitSize expires old entries, trims the pool to the configured size and uncaches
// tip coins nothing in the pool refers to any more.
func (mp *TxMemPool) LimitSize(coins TipCoins) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.limitSize(coins, mp.settings.Mempool.MaxMempoolBytes, mp.settings.Mempool.Expiry)
}

func (mp *TxMemPool) limitSize(coins TipCoins, sizeLimit int64, age time.Duration) {
	if expired := mp.expire(mp.clock.Now().Add(-age)); expired > 0 {
		mp.logger.Debugf("[Mempool] expired %d transactions from the memory pool", expired)
	}

	for _, outpoint := range mp.trimToSize(sizeLimit) {
		coins.Uncache(outpoint)
	}
}

// RemoveForBlock removes the transactions of a newly connected block and everything
// conflicting with them. Descendants of mined transactions stay. It returns the
// conflicts that were removed.
func (mp *TxMemPool) RemoveForBlock(txs []*bt.Tx, height int32) []*bt.Tx {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	var conflicts []*bt.Tx

	for _, tx := range txs {
		hash := *tx.TxIDChainHash()
		if _, ok := mp.entries[hash]; ok {
			mp.removeStaged(map[chainhash.Hash]struct{}{hash: {}}, RemovalBlock)
		}

		conflicts = append(conflicts, mp.removeConflicts(tx)...)
	}

	mp.lastRollingFeeUpdate = mp.clock.Now()
	mp.blockSinceLastRollingFeeBump = true

	if len(conflicts) > 0 {
		mp.logger.Debugf("[Mempool] block %d removed %d conflicting transactions", height, len(conflicts))
	}

	return conflicts
}

// RemoveForReorg removes transactions that became invalid after the tip moved back:
// non-final ones, ones whose sequence locks no longer hold and spends of coinbases
// that are no longer mature.
func (mp *TxMemPool) RemoveForReorg(ctx context.Context, tip *ChainTip, coinbaseMaturity int32) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	view := &poolCoinsView{mp: mp, tip: tip.Coins}
	stage := make(map[chainhash.Hash]struct{})

	for hash, entry := range mp.entries {
		if !validator.CheckFinalTx(entry.Tx, validator.StandardLockTimeFlags, tip.Height, tip.MedianTimePast, tip.AdjustedTime) {
			mp.calculateDescendants(hash, stage)
			continue
		}

		locked, err := checkSequenceLocks(ctx, view, tip, entry.Tx)
		if err != nil {
			return err
		}

		if !locked {
			mp.calculateDescendants(hash, stage)
			continue
		}

		if !entry.SpendsCoinbase {
			continue
		}

		for _, in := range entry.Tx.Inputs {
			outpoint := model.InputOutpoint(in)
			if _, pooled := mp.entries[outpoint.Hash]; pooled {
				continue
			}

			coin, err := tip.Coins.GetCoin(ctx, outpoint)
			if err != nil {
				return err
			}

			if coin == nil || (coin.IsCoinbase && tip.Height+1-int32(coin.Height) < coinbaseMaturity) { //nolint:gosec // heights fit int32
				mp.calculateDescendants(hash, stage)
				break
			}
		}
	}

	mp.removeStaged(stage, RemovalReorg)

	return nil
}

// Check verifies the internal consistency of the pool: links, reserved outpoints and
// running totals. Only meant for tests and debugging.
func (mp *TxMemPool) Check() error {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	totalSize := 0

	for hash, entry := range mp.entries {
		totalSize += entry.Size

		parents := make(map[chainhash.Hash]struct{})

		for _, in := range entry.Tx.Inputs {
			outpoint := model.InputOutpoint(in)

			if spender, ok := mp.nextTx[outpoint]; !ok || spender != hash {
				return errors.NewProcessingError("input %s of %s is not reserved", outpoint, hash)
			}

			if _, ok := mp.entries[outpoint.Hash]; ok {
				parents[outpoint.Hash] = struct{}{}
			}
		}

		if len(parents) != len(entry.parents) {
			return errors.NewProcessingError("parent links of %s are stale", hash)
		}

		for parent := range parents {
			if _, ok := mp.entries[parent].children[hash]; !ok {
				return errors.NewProcessingError("%s missing from the children of %s", hash, parent)
			}
		}

		ancestors := mp.ancestorsOf(entry)

		count, size, fees, sigOps := 1, entry.Size, entry.Fee, entry.SigOpCount
		for a := range ancestors {
			count++
			size += mp.entries[a].Size
			fees += mp.entries[a].Fee
			sigOps += mp.entries[a].SigOpCount
		}

		if count != entry.CountWithAncestors || size != entry.SizeWithAncestors || fees != entry.FeesWithAncestors || sigOps != entry.SigOpsWithAncestors {
			return errors.NewProcessingError("ancestor totals of %s are wrong", hash)
		}

		descendants := make(map[chainhash.Hash]struct{})
		mp.calculateDescendants(hash, descendants)

		dSize, dFees := 0, uint64(0)
		for d := range descendants {
			dSize += mp.entries[d].Size
			dFees += mp.entries[d].Fee
		}

		if len(descendants) != entry.CountWithDescendants || dSize != entry.SizeWithDescendants || dFees != entry.FeesWithDescendants {
			return errors.NewProcessingError("descendant totals of %s are wrong", hash)
		}
	}

	for outpoint, spender := range mp.nextTx {
		if _, ok := mp.entries[spender]; !ok {
			return errors.NewProcessingError("outpoint %s reserved by unknown tx %s", outpoint, spender)
		}
	}

	if totalSize != mp.totalTxSize {
		return errors.NewProcessingError("total size %d, expected %d", mp.totalTxSize, totalSize)
	}

	return nil
}

// UpdateTransactionsFromBlock links transactions re-added from a disconnected block to
// the pooled transactions that already spend them and fixes the running totals of
// both sides. hashes are in block order.
func (mp *TxMemPool) UpdateTransactionsFromBlock(hashes []chainhash.Hash) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	fromBlock := make(map[chainhash.Hash]struct{}, len(hashes))
	for _, hash := range hashes {
		fromBlock[hash] = struct{}{}
	}

	for i := len(hashes) - 1; i >= 0; i-- {
		entry, ok := mp.entries[hashes[i]]
		if !ok {
			continue
		}

		for idx := range entry.Tx.Outputs {
			spender, ok := mp.nextTx[model.NewOutpoint(&entry.Hash, uint32(idx))] //nolint:gosec // output counts fit uint32
			if !ok {
				continue
			}

			// spenders from the same block were linked when they were re-added
			if _, same := fromBlock[spender]; same {
				continue
			}

			entry.children[spender] = struct{}{}
			mp.entries[spender].parents[entry.Hash] = struct{}{}
		}

		descendants := make(map[chainhash.Hash]struct{})
		mp.calculateDescendants(entry.Hash, descendants)

		for hash := range descendants {
			if _, same := fromBlock[hash]; same {
				continue
			}

			descendant := mp.entries[hash]

			entry.CountWithDescendants++
			entry.SizeWithDescendants += descendant.Size
			entry.FeesWithDescendants += descendant.Fee

			descendant.CountWithAncestors++
			descendant.SizeWithAncestors += entry.Size
			descendant.FeesWithAncestors += entry.Fee
			descendant.SigOpsWithAncestors += entry.SigOpCount
		}
	}
}
