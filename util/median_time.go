package util

import (
	"sort"

	"github.com/bsv-blockchain/chainstate/errors"
)

// MedianTimeBlocks is the number of previous blocks which should be
// used to calculate the median time used to validate block timestamps.
const MedianTimeBlocks = 11

// CalcPastMedianTime calculates the median of the given block timestamps.
// The input slice is not modified.
func CalcPastMedianTime(timestamps []int64) (int64, error) {
	if len(timestamps) == 0 {
		return 0, errors.NewInvalidArgumentError("no timestamps for median time calculation")
	}

	if len(timestamps) > MedianTimeBlocks {
		return 0, errors.NewProcessingError("too many timestamps for median time calculation")
	}

	sorted := make([]int64, len(timestamps))
	copy(sorted, timestamps)

	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	// NOTE: The consensus rules incorrectly calculate the median for even
	// numbers of blocks.  A true median averages the middle two elements
	// for a set with an even number of elements in it. This only affects
	// the first few blocks of a chain and is kept for compatibility.
	return sorted[len(sorted)/2], nil
}
