package model

import (
	"sort"

	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/chainstate/util"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/dolthub/swiss"
)

// BlockTree is an arena of BlockIndex entries addressed by dense id and by hash.
// Entries are never removed. BlockTree is not safe for concurrent use; the chain
// state lock guards it.
type BlockTree struct {
	entries      []*BlockIndex
	byHash       *swiss.Map[chainhash.Hash, BlockID]
	dirty        map[BlockID]struct{}
	nextSequence int32
}

func NewBlockTree() *BlockTree {
	return &BlockTree{
		entries:      make([]*BlockIndex, 0, 1024),
		byHash:       swiss.NewMap[chainhash.Hash, BlockID](1024),
		dirty:        make(map[BlockID]struct{}),
		nextSequence: 1,
	}
}

func (t *BlockTree) Len() int {
	return len(t.entries)
}

// Get returns the entry with the given id, or nil.
func (t *BlockTree) Get(id BlockID) *BlockIndex {
	if id == NoBlock || int(id) >= len(t.entries) {
		return nil
	}

	return t.entries[id]
}

// Lookup returns the entry with the given hash, or nil.
func (t *BlockTree) Lookup(hash *chainhash.Hash) *BlockIndex {
	id, ok := t.byHash.Get(*hash)
	if !ok {
		return nil
	}

	return t.entries[id]
}

func (t *BlockTree) Parent(bi *BlockIndex) *BlockIndex {
	return t.Get(bi.Parent)
}

// PrevHash returns the hash of the parent, or the zero hash for genesis.
func (t *BlockTree) PrevHash(bi *BlockIndex) *chainhash.Hash {
	if parent := t.Parent(bi); parent != nil {
		return &parent.Hash
	}

	return &chainhash.Hash{}
}

// BlockHeader rebuilds the full header of an entry.
func (t *BlockTree) BlockHeader(bi *BlockIndex) *BlockHeader {
	return bi.Header(t.PrevHash(bi))
}

// DiskIndex returns the persistent record of an entry.
func (t *BlockTree) DiskIndex(bi *BlockIndex) *DiskBlockIndex {
	return bi.DiskIndex(t.PrevHash(bi))
}

// AddHeader inserts a header whose parent is already known (or which has no parent,
// for genesis). The second return value is true when the header was already present.
func (t *BlockTree) AddHeader(header *BlockHeader) (*BlockIndex, bool) {
	hash := header.Hash()

	if existing := t.Lookup(hash); existing != nil {
		return existing, true
	}

	bi := &BlockIndex{
		ID:         BlockID(len(t.entries)),
		Parent:     NoBlock,
		Skip:       NoBlock,
		Hash:       *hash,
		Version:    header.Version,
		Timestamp:  header.Timestamp,
		Bits:       header.Bits,
		Nonce:      header.Nonce,
		File:       -1,
		SequenceID: 0,
	}

	if header.HashMerkleRoot != nil {
		bi.MerkleRoot = *header.HashMerkleRoot
	}

	work := CalcWork(header.Bits)

	if header.HashPrevBlock != nil {
		if parent := t.Lookup(header.HashPrevBlock); parent != nil {
			bi.Parent = parent.ID
			bi.Height = parent.Height + 1
			work.Add(work, parent.ChainWork)
		}
	}

	bi.ChainWork = work

	t.entries = append(t.entries, bi)
	t.byHash.Put(bi.Hash, bi.ID)

	if parent := t.Parent(bi); parent != nil {
		if skip := t.Ancestor(parent, skipHeight(bi.Height)); skip != nil {
			bi.Skip = skip.ID
		}
	}

	t.MarkDirty(bi)

	return bi, false
}

// Load rebuilds the arena from persisted records. Records may be in any order; they
// are inserted by height so parents always precede children.
func (t *BlockTree) Load(records []*DiskBlockIndex) error {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Height < records[j].Height
	})

	for _, rec := range records {
		if rec.Height > 0 && t.Lookup(rec.Header.HashPrevBlock) == nil {
			return errors.NewChainStateCorruptedError("block index record %s at height %d has unknown parent %s",
				rec.Header.Hash(), rec.Height, rec.Header.HashPrevBlock)
		}

		bi, _ := t.AddHeader(rec.Header)
		if bi.Height != rec.Height {
			return errors.NewChainStateCorruptedError("block index record %s has height %d, expected %d", bi.Hash, rec.Height, bi.Height)
		}

		bi.Status = rec.Status
		bi.TxCount = rec.TxCount
		bi.File = rec.File
		bi.DataPos = rec.DataPos
		bi.UndoPos = rec.UndoPos
	}

	// chain tx counts are only meaningful when every ancestor has data
	for _, bi := range t.entries {
		parent := t.Parent(bi)

		if bi.TxCount > 0 && (parent == nil || parent.ChainTxCount > 0) {
			bi.ChainTxCount = uint64(bi.TxCount)
			if parent != nil {
				bi.ChainTxCount += parent.ChainTxCount
			}
		}
	}

	t.dirty = make(map[BlockID]struct{})

	return nil
}

// NextSequenceID returns the next received-order number.
func (t *BlockTree) NextSequenceID() int32 {
	id := t.nextSequence
	t.nextSequence++

	return id
}

func (t *BlockTree) MarkDirty(bi *BlockIndex) {
	t.dirty[bi.ID] = struct{}{}
}

// TakeDirty returns the entries modified since the last call and resets the set.
func (t *BlockTree) TakeDirty() []*BlockIndex {
	out := make([]*BlockIndex, 0, len(t.dirty))
	for id := range t.dirty {
		out = append(out, t.entries[id])
	}

	t.dirty = make(map[BlockID]struct{})

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out
}

// RestoreDirty re-marks entries whose write failed.
func (t *BlockTree) RestoreDirty(entries []*BlockIndex) {
	for _, bi := range entries {
		t.dirty[bi.ID] = struct{}{}
	}
}

func (t *BlockTree) DirtyCount() int {
	return len(t.dirty)
}

// ForEach calls fn for every entry in id order until fn returns false.
func (t *BlockTree) ForEach(fn func(bi *BlockIndex) bool) {
	for _, bi := range t.entries {
		if !fn(bi) {
			return
		}
	}
}

// Ancestor returns the ancestor of bi at the given height, using the skip list.
func (t *BlockTree) Ancestor(bi *BlockIndex, height int32) *BlockIndex {
	if bi == nil || height > bi.Height || height < 0 {
		return nil
	}

	walk := bi
	heightWalk := bi.Height

	for heightWalk > height {
		heightSkip := skipHeight(heightWalk)
		heightSkipPrev := skipHeight(heightWalk - 1)

		if walk.Skip != NoBlock &&
			(heightSkip == height || (heightSkip > height && !(heightSkipPrev < heightSkip-2 && heightSkipPrev >= height))) {
			walk = t.entries[walk.Skip]
			heightWalk = heightSkip
		} else {
			walk = t.entries[walk.Parent]
			heightWalk--
		}
	}

	return walk
}

// IsDescendant reports whether bi is ancestor itself or one of its descendants.
func (t *BlockTree) IsDescendant(bi, ancestor *BlockIndex) bool {
	return t.Ancestor(bi, ancestor.Height) == ancestor
}

// LastCommonAncestor returns the fork point of a and b.
func (t *BlockTree) LastCommonAncestor(a, b *BlockIndex) *BlockIndex {
	if a.Height > b.Height {
		a = t.Ancestor(a, b.Height)
	} else if b.Height > a.Height {
		b = t.Ancestor(b, a.Height)
	}

	for a != b && a != nil && b != nil {
		a = t.Parent(a)
		b = t.Parent(b)
	}

	return a
}

// MedianTimePast returns the median timestamp of bi and up to ten of its ancestors.
func (t *BlockTree) MedianTimePast(bi *BlockIndex) int64 {
	timestamps := make([]int64, 0, util.MedianTimeBlocks)

	for walk := bi; walk != nil && len(timestamps) < util.MedianTimeBlocks; walk = t.Parent(walk) {
		timestamps = append(timestamps, walk.BlockTime())
	}

	// cannot fail, the slice never exceeds MedianTimeBlocks
	mtp, _ := util.CalcPastMedianTime(timestamps)

	return mtp
}

// WorkLess orders candidates for the best chain: less work sorts first; on equal
// work the later received block sorts first, then the higher id.
func WorkLess(a, b *BlockIndex) bool {
	if c := a.ChainWork.Cmp(b.ChainWork); c != 0 {
		return c < 0
	}

	if a.SequenceID != b.SequenceID {
		return a.SequenceID > b.SequenceID
	}

	return a.ID > b.ID
}

func invertLowestOne(n int32) int32 {
	return n & (n - 1)
}

// skipHeight picks the height the skip pointer of a block at the given height points to.
// Any number strictly lower than height works; this choice keeps lookups logarithmic.
func skipHeight(height int32) int32 {
	if height < 2 {
		return 0
	}

	if height&1 == 1 {
		return invertLowestOne(invertLowestOne(height-1)) + 1
	}

	return invertLowestOne(height)
}
