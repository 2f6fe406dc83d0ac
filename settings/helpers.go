package settings

import (
	"math"
	"time"

	"github.com/ordishs/gocore"
)

func getString(key, defaultValue string) string {
	value, found := gocore.Config().Get(key)
	if !found {
		return defaultValue
	}

	return value
}

func getInt(key string, defaultValue int) int {
	value, found := gocore.Config().GetInt(key)
	if !found {
		return defaultValue
	}

	return value
}

func getInt64(key string, defaultValue int64) int64 {
	return int64(getInt(key, int(defaultValue)))
}

// getUint32 clamps negative or oversized values to the default.
func getUint32(key string, defaultValue uint32) uint32 {
	value := getInt64(key, int64(defaultValue))
	if value < 0 || value > math.MaxUint32 {
		return defaultValue
	}

	return uint32(value)
}

func getUint64(key string, defaultValue uint64) uint64 {
	value := getInt64(key, int64(defaultValue)) //nolint:gosec // defaults are small
	if value < 0 {
		return defaultValue
	}

	return uint64(value)
}

func getBool(key string, defaultValue bool) bool {
	return gocore.Config().GetBool(key, defaultValue)
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	value, err, _ := gocore.Config().GetDuration(key, defaultValue)
	if err != nil {
		return defaultValue
	}

	return value
}
