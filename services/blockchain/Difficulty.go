package blockchain

import (
	"github.com/bsv-blockchain/chainstate/services/blockvalidation"
)

// GetDifficulty returns how many times harder than the minimum difficulty target the
// compact target bits are.
func GetDifficulty(bits uint32) float64 {
	mantissa := bits & 0x00ffffff
	if mantissa == 0 {
		return 0
	}

	shift := int(bits>>24) & 0xff
	difficulty := float64(0x0000ffff) / float64(mantissa)

	for ; shift < 29; shift++ {
		difficulty *= 256.0
	}

	for ; shift > 29; shift-- {
		difficulty /= 256.0
	}

	return difficulty
}

// NextWorkRequired returns the target bits a block built on the active tip with the
// given timestamp must carry.
func (c *ChainState) NextWorkRequired(timestamp uint32) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return blockvalidation.GetNextWorkRequired(c.tree, c.chain.Tip(), timestamp, c.params)
}
