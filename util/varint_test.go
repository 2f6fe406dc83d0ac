package util

import (
	"math"
	"testing"

	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/stretchr/testify/assert"
)

func TestVarintSize(t *testing.T) {
	tests := []struct {
		input    uint64
		expected int
	}{
		{0, 1},
		{0xfc, 1},
		{0xfd, 3},
		{0xffff, 3},
		{0x10000, 5},
		{0xffffffff, 5},
		{0x100000000, 9},
		{math.MaxUint64, 9},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, VarintSize(tt.input), "VarintSize(%x)", tt.input)
	}
}

func TestVarintSizeMatchesEncoding(t *testing.T) {
	for _, v := range []uint64{0, 1, 252, 253, 65535, 65536, 4294967295, 4294967296} {
		assert.Len(t, bt.VarInt(v).Bytes(), VarintSize(v))
	}
}
