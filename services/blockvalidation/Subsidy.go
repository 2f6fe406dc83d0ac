package blockvalidation

import (
	"github.com/bsv-blockchain/chainstate/chaincfg"
	"github.com/bsv-blockchain/chainstate/services/validator"
)

// GetBlockSubsidy is the newly created value a coinbase at height may claim. It starts
// at 50 coins and halves every SubsidyReductionInterval blocks.
func GetBlockSubsidy(height int32, params *chaincfg.Params) uint64 {
	halvings := height / params.SubsidyReductionInterval

	// a shift by 64 or more is undefined on most CPUs, so the subsidy ends explicitly
	if halvings >= 64 {
		return 0
	}

	return (50 * validator.Coin) >> uint(halvings) //nolint:gosec // halvings in [0, 64)
}
