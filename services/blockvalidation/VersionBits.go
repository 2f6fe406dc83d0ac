package blockvalidation

import (
	"sync"

	"github.com/bsv-blockchain/chainstate/chaincfg"
	"github.com/bsv-blockchain/chainstate/model"
)

const (
	// VersionBitsTopBits is the version prefix of blocks that signal with version bits.
	VersionBitsTopBits uint32 = 0x20000000
	// VersionBitsTopMask selects the prefix bits.
	VersionBitsTopMask uint32 = 0xE0000000
)

// ThresholdState is the BIP9 state of a deployment for the blocks of one period.
type ThresholdState int

const (
	ThresholdDefined ThresholdState = iota
	ThresholdStarted
	ThresholdLockedIn
	ThresholdActive
	ThresholdFailed
)

func (s ThresholdState) String() string {
	switch s {
	case ThresholdDefined:
		return "defined"
	case ThresholdStarted:
		return "started"
	case ThresholdLockedIn:
		return "locked_in"
	case ThresholdActive:
		return "active"
	case ThresholdFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// VersionBitsCache remembers the state of every deployment at the last block of each
// period it has evaluated. Entries never go stale: blocks are immutable and the state
// of a period depends only on its ancestors.
type VersionBitsCache struct {
	params *chaincfg.Params

	mu     sync.Mutex
	states [chaincfg.DefinedDeployments]map[model.BlockID]ThresholdState
}

func NewVersionBitsCache(params *chaincfg.Params) *VersionBitsCache {
	c := &VersionBitsCache{params: params}
	c.Clear()

	return c
}

// Clear drops every cached state, used when the block tree is reloaded.
func (c *VersionBitsCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.states {
		c.states[i] = make(map[model.BlockID]ThresholdState)
	}
}

func (c *VersionBitsCache) mask(deployment int) uint32 {
	return uint32(1) << c.params.Deployments[deployment].BitNumber
}

// signals reports whether the block at bi votes for the deployment.
func (c *VersionBitsCache) signals(bi *model.BlockIndex, deployment int) bool {
	return bi.Version&VersionBitsTopMask == VersionBitsTopBits && bi.Version&c.mask(deployment) != 0
}

// State returns the state of deployment for the block built on parent. A nil parent
// is the genesis block.
func (c *VersionBitsCache) State(tree *model.BlockTree, parent *model.BlockIndex, deployment int) ThresholdState {
	c.mu.Lock()
	defer c.mu.Unlock()

	var (
		period    = int32(c.params.MinerConfirmationWindow) //nolint:gosec // window is small
		threshold = int(c.params.RuleChangeActivationThreshold)
		start     = c.params.Deployments[deployment].StartTime
		timeout   = c.params.Deployments[deployment].ExpireTime
		cache     = c.states[deployment]
	)

	// the state of a block equals that of the first block of its period, so it is
	// computed from the last block of the previous period
	if parent != nil {
		parent = tree.Ancestor(parent, parent.Height-((parent.Height+1)%period))
	}

	var toCompute []*model.BlockIndex

	state := ThresholdDefined

	for {
		if parent == nil {
			break
		}

		if cached, ok := cache[parent.ID]; ok {
			state = cached
			break
		}

		if tree.MedianTimePast(parent) < start {
			cache[parent.ID] = ThresholdDefined
			break
		}

		toCompute = append(toCompute, parent)
		parent = tree.Ancestor(parent, parent.Height-period)
	}

	for i := len(toCompute) - 1; i >= 0; i-- {
		walk := toCompute[i]
		mtp := tree.MedianTimePast(walk)
		next := state

		switch state {
		case ThresholdDefined:
			if mtp >= timeout {
				next = ThresholdFailed
			} else if mtp >= start {
				next = ThresholdStarted
			}
		case ThresholdStarted:
			if mtp >= timeout {
				next = ThresholdFailed
				break
			}

			count := 0
			for counted, bi := int32(0), walk; counted < period && bi != nil; counted, bi = counted+1, tree.Parent(bi) {
				if c.signals(bi, deployment) {
					count++
				}
			}

			if count >= threshold {
				next = ThresholdLockedIn
			}
		case ThresholdLockedIn:
			next = ThresholdActive
		case ThresholdActive, ThresholdFailed:
		}

		cache[walk.ID] = next
		state = next
	}

	return state
}

// ComputeBlockVersion is the version a miner should use for a block on parent: the
// top bits plus the bit of every deployment that is started or locked in.
func (bv *BlockValidator) ComputeBlockVersion(tree *model.BlockTree, parent *model.BlockIndex) uint32 {
	version := VersionBitsTopBits

	for deployment := 0; deployment < chaincfg.DefinedDeployments; deployment++ {
		switch bv.versionBits.State(tree, parent, deployment) {
		case ThresholdStarted, ThresholdLockedIn:
			version |= bv.versionBits.mask(deployment)
		default:
		}
	}

	return version
}

// IsCSVActive reports whether BIP68, BIP112 and BIP113 apply to the block built on parent.
func (bv *BlockValidator) IsCSVActive(tree *model.BlockTree, parent *model.BlockIndex) bool {
	return bv.versionBits.State(tree, parent, chaincfg.DeploymentCSV) == ThresholdActive
}
