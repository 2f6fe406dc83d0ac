package validator

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/bsv-blockchain/go-bt/v2/bscript/interpreter/scriptflag"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/jellydator/ttlcache/v3"
)

// ScriptCache remembers transactions whose scripts all passed under a given flag set.
// A miss only means the scripts have to run again.
type ScriptCache struct {
	cache    *ttlcache.Cache[chainhash.Hash, struct{}]
	stopOnce sync.Once
}

// NewScriptCache creates a cache holding at most capacity entries for ttl each.
func NewScriptCache(capacity uint64, ttl time.Duration) *ScriptCache {
	cache := ttlcache.New[chainhash.Hash, struct{}](
		ttlcache.WithTTL[chainhash.Hash, struct{}](ttl),
		ttlcache.WithCapacity[chainhash.Hash, struct{}](capacity),
		ttlcache.WithDisableTouchOnHit[chainhash.Hash, struct{}](),
	)

	go cache.Start()

	return &ScriptCache{cache: cache}
}

func scriptCacheKey(txHash *chainhash.Hash, flags scriptflag.Flag) chainhash.Hash {
	var b [chainhash.HashSize + 4]byte

	copy(b[:], txHash[:])
	binary.LittleEndian.PutUint32(b[chainhash.HashSize:], uint32(flags))

	return chainhash.DoubleHashH(b[:])
}

func (c *ScriptCache) Contains(txHash *chainhash.Hash, flags scriptflag.Flag) bool {
	if c == nil {
		return false
	}

	return c.cache.Has(scriptCacheKey(txHash, flags))
}

func (c *ScriptCache) Add(txHash *chainhash.Hash, flags scriptflag.Flag) {
	if c == nil {
		return
	}

	c.cache.Set(scriptCacheKey(txHash, flags), struct{}{}, ttlcache.DefaultTTL)
}

func (c *ScriptCache) Len() int {
	if c == nil {
		return 0
	}

	return c.cache.Len()
}

// Stop ends the expiry goroutine.
func (c *ScriptCache) Stop() {
	if c != nil {
		c.stopOnce.Do(c.cache.Stop)
	}
}
