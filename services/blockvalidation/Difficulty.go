package blockvalidation

import (
	"math/big"
	"time"

	"github.com/bsv-blockchain/chainstate/chaincfg"
	"github.com/bsv-blockchain/chainstate/model"
)

// GetNextWorkRequired returns the bits a block with the given timestamp must carry
// when built on parent. A nil parent is the genesis block.
func GetNextWorkRequired(tree *model.BlockTree, parent *model.BlockIndex, timestamp uint32, params *chaincfg.Params) uint32 {
	if parent == nil {
		return params.PowLimitBits
	}

	interval := params.DifficultyAdjustmentInterval()

	if (parent.Height+1)%interval != 0 {
		if !params.ReduceMinDifficulty {
			return parent.Bits
		}

		// testnet: a block more than twice the target spacing after its parent may
		// use the minimum difficulty
		if int64(timestamp) > parent.BlockTime()+int64(params.MinDiffReductionTime/time.Second) {
			return params.PowLimitBits
		}

		// otherwise use the last difficulty that was not a minimum difficulty exception
		walk := parent
		for walk.Parent != model.NoBlock && walk.Height%interval != 0 && walk.Bits == params.PowLimitBits {
			walk = tree.Parent(walk)
		}

		return walk.Bits
	}

	first := tree.Ancestor(parent, parent.Height-(interval-1))

	return CalculateNextWorkRequired(parent, first.BlockTime(), params)
}

// CalculateNextWorkRequired retargets the difficulty of last from the time it took to
// mine the window that started at firstBlockTime.
func CalculateNextWorkRequired(last *model.BlockIndex, firstBlockTime int64, params *chaincfg.Params) uint32 {
	if params.NoDifficultyAdjustment {
		return last.Bits
	}

	targetTimespan := int64(params.TargetTimespan / time.Second)
	adjustment := params.RetargetAdjustmentFactor

	actualTimespan := last.BlockTime() - firstBlockTime
	actualTimespan = max(actualTimespan, targetTimespan/adjustment)
	actualTimespan = min(actualTimespan, targetTimespan*adjustment)

	target := model.CompactToBig(last.Bits)
	target.Mul(target, big.NewInt(actualTimespan))
	target.Div(target, big.NewInt(targetTimespan))

	if target.Cmp(params.PowLimit) > 0 {
		target.Set(params.PowLimit)
	}

	return model.BigToCompact(target)
}
