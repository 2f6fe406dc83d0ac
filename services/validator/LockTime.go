package validator

import (
	"github.com/bsv-blockchain/chainstate/util"
	"github.com/bsv-blockchain/go-bt/v2"
)

// LockTimeFlags select which lock time rules apply.
type LockTimeFlags uint8

const (
	// LockTimeVerifySequence enforces BIP68 relative lock times.
	LockTimeVerifySequence LockTimeFlags = 1 << iota
	// LockTimeMedianTimePast uses the median time past instead of the block time for
	// time based lock times (BIP113).
	LockTimeMedianTimePast
)

// StandardLockTimeFlags are applied to transactions entering the mempool.
const StandardLockTimeFlags = LockTimeVerifySequence | LockTimeMedianTimePast

// SequenceLock is the earliest height and time after which a transaction can be mined.
// -1 means no constraint.
type SequenceLock struct {
	MinHeight int32
	MinTime   int64
}

// MedianTimePastFunc returns the median time past of the active chain block at height.
type MedianTimePastFunc func(height int32) int64

// CheckFinalTx reports whether tx may be included in the block after the given tip.
// With LockTimeMedianTimePast the cutoff is the tip's median time past, otherwise it
// is adjustedTime.
func CheckFinalTx(tx *bt.Tx, flags LockTimeFlags, tipHeight int32, tipMedianTime, adjustedTime int64) bool {
	blockTime := adjustedTime
	if flags&LockTimeMedianTimePast != 0 {
		blockTime = tipMedianTime
	}

	return util.IsFinalTx(tx, tipHeight+1, blockTime)
}

// CalculateSequenceLocks computes the BIP68 lock of tx. prevHeights holds the
// confirming height of the coin spent by each input; entries of inputs with relative
// lock time disabled are set to zero.
func CalculateSequenceLocks(tx *bt.Tx, flags LockTimeFlags, prevHeights []int32, medianTimePast MedianTimePastFunc) SequenceLock {
	lock := SequenceLock{MinHeight: -1, MinTime: -1}

	if int32(tx.Version) < 2 || flags&LockTimeVerifySequence == 0 { //nolint:gosec // versions are compared as signed
		return lock
	}

	for i, in := range tx.Inputs {
		if in.SequenceNumber&util.SequenceLockTimeDisableFlag != 0 {
			prevHeights[i] = 0
			continue
		}

		coinHeight := prevHeights[i]
		value := int64(in.SequenceNumber & util.SequenceLockTimeMask)

		if in.SequenceNumber&util.SequenceLockTimeTypeFlag != 0 {
			ancestor := coinHeight - 1
			if ancestor < 0 {
				ancestor = 0
			}

			minTime := medianTimePast(ancestor) + (value << util.SequenceLockTimeGranularity) - 1
			if minTime > lock.MinTime {
				lock.MinTime = minTime
			}

			continue
		}

		minHeight := coinHeight + int32(value) - 1 //nolint:gosec // masked to 16 bits
		if minHeight > lock.MinHeight {
			lock.MinHeight = minHeight
		}
	}

	return lock
}

// EvaluateSequenceLocks reports whether a lock is satisfied by a block at blockHeight
// whose parent has the given median time past.
func EvaluateSequenceLocks(lock SequenceLock, blockHeight int32, prevMedianTimePast int64) bool {
	return lock.MinHeight < blockHeight && lock.MinTime < prevMedianTimePast
}

// SequenceLocks combines CalculateSequenceLocks and EvaluateSequenceLocks.
func SequenceLocks(tx *bt.Tx, flags LockTimeFlags, prevHeights []int32, blockHeight int32, prevMedianTimePast int64, medianTimePast MedianTimePastFunc) bool {
	lock := CalculateSequenceLocks(tx, flags, prevHeights, medianTimePast)

	return EvaluateSequenceLocks(lock, blockHeight, prevMedianTimePast)
}
