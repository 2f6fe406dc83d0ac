package validator

import (
	"testing"

	"github.com/bsv-blockchain/chainstate/model"
	"github.com/bsv-blockchain/chainstate/util"
	"github.com/stretchr/testify/assert"
)

func TestCalculateSequenceLocks(t *testing.T) {
	mtp := func(height int32) int64 { return 1_000_000 + int64(height)*600 }

	t.Run("version 1 is unconstrained", func(t *testing.T) {
		tx := model.NewSpendTx([]model.SpendOutput{{Outpoint: spendOf(1, 0).Outpoint, Sequence: 10}}, 1000)
		tx.Version = 1

		lock := CalculateSequenceLocks(tx, StandardLockTimeFlags, []int32{100}, mtp)
		assert.Equal(t, SequenceLock{MinHeight: -1, MinTime: -1}, lock)
	})

	t.Run("without the verify flag nothing is enforced", func(t *testing.T) {
		tx := model.NewSpendTx([]model.SpendOutput{{Outpoint: spendOf(1, 0).Outpoint, Sequence: 10}}, 1000)
		tx.Version = 2

		lock := CalculateSequenceLocks(tx, 0, []int32{100}, mtp)
		assert.Equal(t, int32(-1), lock.MinHeight)
	})

	t.Run("height lock", func(t *testing.T) {
		tx := model.NewSpendTx([]model.SpendOutput{{Outpoint: spendOf(1, 0).Outpoint, Sequence: 10}}, 1000)
		tx.Version = 2

		lock := CalculateSequenceLocks(tx, StandardLockTimeFlags, []int32{100}, mtp)
		assert.Equal(t, int32(109), lock.MinHeight)
		assert.Equal(t, int64(-1), lock.MinTime)

		assert.False(t, EvaluateSequenceLocks(lock, 109, 0))
		assert.True(t, EvaluateSequenceLocks(lock, 110, 0))
	})

	t.Run("time lock uses the median time past before the coin", func(t *testing.T) {
		seq := util.SequenceLockTimeTypeFlag | 2
		tx := model.NewSpendTx([]model.SpendOutput{{Outpoint: spendOf(1, 0).Outpoint, Sequence: seq}}, 1000)
		tx.Version = 2

		lock := CalculateSequenceLocks(tx, StandardLockTimeFlags, []int32{100}, mtp)
		want := mtp(99) + 2<<util.SequenceLockTimeGranularity - 1
		assert.Equal(t, want, lock.MinTime)

		assert.False(t, EvaluateSequenceLocks(lock, 200, want))
		assert.True(t, EvaluateSequenceLocks(lock, 200, want+1))
	})

	t.Run("disabled inputs are ignored and their heights cleared", func(t *testing.T) {
		tx := model.NewSpendTx([]model.SpendOutput{
			{Outpoint: spendOf(1, 0).Outpoint, Sequence: util.SequenceLockTimeDisableFlag | 50},
			{Outpoint: spendOf(1, 1).Outpoint, Sequence: 3},
		}, 1000)
		tx.Version = 2

		heights := []int32{100, 200}
		lock := CalculateSequenceLocks(tx, StandardLockTimeFlags, heights, mtp)

		assert.Equal(t, int32(202), lock.MinHeight)
		assert.Equal(t, int32(0), heights[0])
		assert.True(t, SequenceLocks(tx, StandardLockTimeFlags, []int32{100, 200}, 203, 0, mtp))
		assert.False(t, SequenceLocks(tx, StandardLockTimeFlags, []int32{100, 200}, 202, 0, mtp))
	})
}

func TestCheckFinalTx(t *testing.T) {
	tx := model.NewSpendTx([]model.SpendOutput{{Outpoint: spendOf(1, 0).Outpoint, Sequence: 1}}, 1000)
	tx.LockTime = 100

	// the next block is at tip height + 1
	assert.False(t, CheckFinalTx(tx, 0, 99, 0, 0))
	assert.True(t, CheckFinalTx(tx, 0, 100, 0, 0))

	tx.LockTime = util.LockTimeThreshold + 1000
	assert.False(t, CheckFinalTx(tx, LockTimeMedianTimePast, 10, util.LockTimeThreshold+1000, util.LockTimeThreshold+5000))
	assert.True(t, CheckFinalTx(tx, LockTimeMedianTimePast, 10, util.LockTimeThreshold+1001, 0))
	assert.True(t, CheckFinalTx(tx, 0, 10, 0, util.LockTimeThreshold+1001))
}
