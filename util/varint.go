package util

// VarintSize returns the number of bytes a compact size integer occupies on the wire.
func VarintSize(x uint64) int {
	switch {
	case x < 0xfd:
		return 1
	case x <= 0xffff:
		return 3
	case x <= 0xffffffff:
		return 5
	default:
		return 9
	}
}
