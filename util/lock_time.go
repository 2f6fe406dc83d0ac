package util

import (
	"github.com/bsv-blockchain/go-bt/v2"
)

const (
	// LockTimeThreshold is the number below which a lock time is interpreted as a
	// block height, and at or above which it is a unix timestamp.
	LockTimeThreshold = 500_000_000

	// SequenceFinal disables lock time and relative lock time for an input.
	SequenceFinal uint32 = 0xffffffff

	// SequenceLockTimeDisableFlag disables the relative lock time of an input when set.
	SequenceLockTimeDisableFlag uint32 = 1 << 31

	// SequenceLockTimeTypeFlag selects time based (set) or height based (unset) relative lock time.
	SequenceLockTimeTypeFlag uint32 = 1 << 22

	// SequenceLockTimeMask extracts the relative lock time value from the sequence number.
	SequenceLockTimeMask uint32 = 0x0000ffff

	// SequenceLockTimeGranularity converts time based relative lock times from units of
	// 512 seconds to seconds.
	SequenceLockTimeGranularity = 9
)

// IsFinalTx reports whether tx can be included in a block at the given height with the
// given lock time cutoff. A transaction is final when its lock time is zero, already in
// the past, or when every input has a final sequence number.
func IsFinalTx(tx *bt.Tx, blockHeight int32, blockTime int64) bool {
	if tx.LockTime == 0 {
		return true
	}

	cutoff := int64(blockHeight)
	if tx.LockTime >= LockTimeThreshold {
		cutoff = blockTime
	}

	if int64(tx.LockTime) < cutoff {
		return true
	}

	for _, in := range tx.Inputs {
		if in.SequenceNumber != SequenceFinal {
			return false
		}
	}

	return true
}
