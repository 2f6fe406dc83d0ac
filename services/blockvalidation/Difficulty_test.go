package blockvalidation

import (
	"testing"

	"github.com/bsv-blockchain/chainstate/chaincfg"
	"github.com/bsv-blockchain/chainstate/model"
	"github.com/stretchr/testify/assert"
)

func TestCalculateNextWorkRequired(t *testing.T) {
	params := &chaincfg.MainNetParams

	tests := []struct {
		name      string
		firstTime int64
		lastTime  uint32
		bits      uint32
		expected  uint32
	}{
		{name: "retarget", firstTime: 1261130161, lastTime: 1262152739, bits: 0x1d00ffff, expected: 0x1d00d86a},
		{name: "capped at the limit", firstTime: 1231006505, lastTime: 1233061996, bits: 0x1d00ffff, expected: 0x1d00ffff},
		{name: "fastest adjustment", firstTime: 1279008237, lastTime: 1279297671, bits: 0x1c05a3f4, expected: 0x1c0168fd},
		{name: "slowest adjustment", firstTime: 1263163443, lastTime: 1269211443, bits: 0x1c387f6f, expected: 0x1d00e1fd},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			last := &model.BlockIndex{Height: 2015, Timestamp: tt.lastTime, Bits: tt.bits}

			assert.Equal(t, tt.expected, CalculateNextWorkRequired(last, tt.firstTime, params))
		})
	}

	t.Run("no adjustment on regtest", func(t *testing.T) {
		last := &model.BlockIndex{Height: 2015, Timestamp: 1262152739, Bits: 0x207fffff}

		assert.Equal(t, uint32(0x207fffff), CalculateNextWorkRequired(last, 1261130161, &chaincfg.RegressionNetParams))
	})
}

func TestGetNextWorkRequired(t *testing.T) {
	params := &chaincfg.RegressionNetParams
	tree, genesis := headerTree(t)
	tip := addHeaders(tree, genesis, 10, 4)

	assert.Equal(t, params.PowLimitBits, GetNextWorkRequired(tree, nil, 0, params))
	assert.Equal(t, tip.Bits, GetNextWorkRequired(tree, tip, tip.Timestamp+600, params))

	// a slow block may use the minimum difficulty
	assert.Equal(t, params.PowLimitBits, GetNextWorkRequired(tree, tip, tip.Timestamp+3600, params))
}
