package mempool

import (
	"time"

	"github.com/bsv-blockchain/chainstate/services/validator"
	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
)

// MempoolHeight is the height given to coins created by pooled transactions.
const MempoolHeight = 0x7fffffff

// entryOverhead approximates the bookkeeping memory of one entry on top of the tx bytes.
const entryOverhead = 400

// TxMemPoolEntry is a pooled transaction with the context it was accepted in and
// running totals over its in-pool ancestors and descendants. The totals include the
// entry itself.
type TxMemPoolEntry struct {
	Tx                *bt.Tx
	Hash              chainhash.Hash
	Fee               uint64
	Size              int
	Time              time.Time
	EntryHeight       int32
	EntryPriority     float64
	InChainInputValue uint64
	SpendsCoinbase    bool
	SigOpCount        int

	// sequence orders entries by arrival
	sequence uint64

	parents  map[chainhash.Hash]struct{}
	children map[chainhash.Hash]struct{}

	CountWithDescendants int
	SizeWithDescendants  int
	FeesWithDescendants  uint64

	CountWithAncestors  int
	SizeWithAncestors   int
	FeesWithAncestors   uint64
	SigOpsWithAncestors int
}

// NewTxMemPoolEntry creates a stand-alone entry; pool links are set when it is added.
func NewTxMemPoolEntry(tx *bt.Tx, fee uint64, entryTime time.Time, priority float64, height int32, inChainInputValue uint64, spendsCoinbase bool, sigOps int) *TxMemPoolEntry {
	size := tx.Size()

	return &TxMemPoolEntry{
		Tx:                tx,
		Hash:              *tx.TxIDChainHash(),
		Fee:               fee,
		Size:              size,
		Time:              entryTime,
		EntryHeight:       height,
		EntryPriority:     priority,
		InChainInputValue: inChainInputValue,
		SpendsCoinbase:    spendsCoinbase,
		SigOpCount:        sigOps,
		parents:           make(map[chainhash.Hash]struct{}),
		children:          make(map[chainhash.Hash]struct{}),

		CountWithDescendants: 1,
		SizeWithDescendants:  size,
		FeesWithDescendants:  fee,

		CountWithAncestors:  1,
		SizeWithAncestors:   size,
		FeesWithAncestors:   fee,
		SigOpsWithAncestors: sigOps,
	}
}

// VirtualSize charges bytesPerSigop for each signature operation when that exceeds
// the serialized size.
func (e *TxMemPoolEntry) VirtualSize(bytesPerSigop int) int {
	if sigOpSize := e.SigOpCount * bytesPerSigop; sigOpSize > e.Size {
		return sigOpSize
	}

	return e.Size
}

// FeeRate is the fee in satoshis per 1000 bytes.
func (e *TxMemPoolEntry) FeeRate() float64 {
	return feeRate(e.Fee, e.Size)
}

// DescendantScore is the higher of the entry's own fee rate and the fee rate of the
// entry together with its descendants. The pool evicts the lowest score first.
func (e *TxMemPoolEntry) DescendantScore() float64 {
	own := e.FeeRate()
	if withDescendants := feeRate(e.FeesWithDescendants, e.SizeWithDescendants); withDescendants > own {
		return withDescendants
	}

	return own
}

// Priority is the coin age priority at the given height.
func (e *TxMemPoolEntry) Priority(height int32) float64 {
	modSize := modifiedSize(e.Tx, e.Size)
	if modSize == 0 {
		return e.EntryPriority
	}

	deltaPriority := float64(height-e.EntryHeight) * float64(e.InChainInputValue) / float64(modSize)

	return e.EntryPriority + deltaPriority
}

// Parents returns the hashes of in-pool transactions this entry spends.
func (e *TxMemPoolEntry) Parents() []chainhash.Hash {
	return hashKeys(e.parents)
}

// Children returns the hashes of in-pool transactions spending this entry.
func (e *TxMemPoolEntry) Children() []chainhash.Hash {
	return hashKeys(e.children)
}

func (e *TxMemPoolEntry) memoryUsage() int {
	return e.Size + entryOverhead + 64*len(e.Tx.Inputs)
}

func hashKeys(m map[chainhash.Hash]struct{}) []chainhash.Hash {
	keys := make([]chainhash.Hash, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	return keys
}

func feeRate(fee uint64, size int) float64 {
	if size <= 0 {
		return 0
	}

	return float64(fee) * 1000 / float64(size)
}

// modifiedSize discounts the part of each input that only exists to spend it, so
// priority is not penalized for consolidating outputs.
func modifiedSize(tx *bt.Tx, size int) int {
	for _, in := range tx.Inputs {
		scriptLen := 0
		if in.UnlockingScript != nil {
			scriptLen = len(*in.UnlockingScript)
		}

		offset := 41 + min(110, scriptLen)
		if size > offset {
			size -= offset
		}
	}

	return size
}

// ComputePriority turns the sum of value times confirmations of the inputs into the
// priority of a transaction of the given size.
func ComputePriority(tx *bt.Tx, inputPriority float64, size int) float64 {
	modSize := modifiedSize(tx, size)
	if modSize == 0 {
		return 0
	}

	return inputPriority / float64(modSize)
}

// AllowFree reports whether a priority is high enough to relay without fee: one coin
// a day old spent in a 250 byte transaction.
func AllowFree(priority float64) bool {
	return priority > float64(validator.Coin)*144/250
}
