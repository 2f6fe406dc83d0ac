package blockvalidation

import (
	"testing"

	"github.com/bsv-blockchain/chainstate/chaincfg"
	"github.com/stretchr/testify/assert"
)

func TestVersionBitsState(t *testing.T) {
	signalCSV := VersionBitsTopBits | 1

	t.Run("activation", func(t *testing.T) {
		bv := newTestChain(t).bv
		tree, genesis := headerTree(t)
		tip := addHeaders(tree, genesis, 431, signalCSV)

		state := func(height int32) ThresholdState {
			return bv.VersionBits().State(tree, tree.Ancestor(tip, height), chaincfg.DeploymentCSV)
		}

		assert.Equal(t, ThresholdDefined, bv.VersionBits().State(tree, nil, chaincfg.DeploymentCSV))
		assert.Equal(t, ThresholdDefined, state(0))
		assert.Equal(t, ThresholdDefined, state(142))
		assert.Equal(t, ThresholdStarted, state(143))
		assert.Equal(t, ThresholdStarted, state(286))
		assert.Equal(t, ThresholdLockedIn, state(287))
		assert.Equal(t, ThresholdLockedIn, state(430))
		assert.Equal(t, ThresholdActive, state(431))

		assert.False(t, bv.IsCSVActive(tree, tree.Ancestor(tip, 430)))
		assert.True(t, bv.IsCSVActive(tree, tip))

		assert.Equal(t, VersionBitsTopBits, bv.ComputeBlockVersion(tree, tree.Ancestor(tip, 100)))
		assert.Equal(t, VersionBitsTopBits|1|1<<28, bv.ComputeBlockVersion(tree, tree.Ancestor(tip, 300)))
		assert.Equal(t, VersionBitsTopBits|1<<28, bv.ComputeBlockVersion(tree, tip))
	})

	t.Run("threshold", func(t *testing.T) {
		for signalling, expected := range map[int]ThresholdState{107: ThresholdStarted, 108: ThresholdLockedIn} {
			bv := newTestChain(t).bv
			tree, genesis := headerTree(t)

			tip := addHeaders(tree, genesis, 143, 4)
			tip = addHeaders(tree, tip, 144-signalling, 4)
			tip = addHeaders(tree, tip, signalling, signalCSV)

			assert.Equal(t, int32(287), tip.Height)
			assert.Equal(t, expected, bv.VersionBits().State(tree, tip, chaincfg.DeploymentCSV), "%d signalling blocks", signalling)
		}
	})

	t.Run("old style versions do not signal", func(t *testing.T) {
		bv := newTestChain(t).bv
		tree, genesis := headerTree(t)
		tip := addHeaders(tree, genesis, 287, 4|1)

		assert.Equal(t, ThresholdStarted, bv.VersionBits().State(tree, tip, chaincfg.DeploymentCSV))
	})

	t.Run("cache cleared", func(t *testing.T) {
		bv := newTestChain(t).bv
		tree, genesis := headerTree(t)
		tip := addHeaders(tree, genesis, 287, signalCSV)

		assert.Equal(t, ThresholdLockedIn, bv.VersionBits().State(tree, tip, chaincfg.DeploymentCSV))

		bv.VersionBits().Clear()

		assert.Equal(t, ThresholdLockedIn, bv.VersionBits().State(tree, tip, chaincfg.DeploymentCSV))
	})
}
