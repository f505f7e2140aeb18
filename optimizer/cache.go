package optimizer

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/lru"

	"github.com/embervm/ember/asm"
)

// DefaultCacheCapacity is how many optimized streams a ResultCache holds.
const DefaultCacheCapacity = 4096

// ResultCache memoizes encoded optimized streams keyed by the Keccak hash
// of the unoptimized encoding, so recompiling an unchanged unit skips the
// whole pipeline.
type ResultCache struct {
	encoded *lru.Cache[common.Hash, []byte]
}

func NewResultCache(capacity int) *ResultCache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	return &ResultCache{encoded: lru.NewCache[common.Hash, []byte](capacity)}
}

func (c *ResultCache) Get(hash common.Hash) ([]byte, bool) {
	return c.encoded.Get(hash)
}

func (c *ResultCache) Add(hash common.Hash, encoded []byte) {
	c.encoded.Add(hash, encoded)
}

func (c *ResultCache) Remove(hash common.Hash) {
	c.encoded.Remove(hash)
}

// OptimizeCached optimizes program unless an identical unit was already
// optimized, in which case the cached encoding is returned and the stream
// is left untouched. The returned flag reports a cache hit.
func OptimizeCached(program *asm.Program, opts *asm.Options, cache *ResultCache) ([]byte, bool, error) {
	if err := program.RecalculateInstructionAddresses(); err != nil {
		return nil, false, err
	}
	key := program.Hash()
	if encoded, ok := cache.Get(key); ok {
		return encoded, true, nil
	}
	if _, err := Optimize(program, opts); err != nil {
		return nil, false, err
	}
	encoded := program.EncodeBinary()
	cache.Add(key, encoded)
	return encoded, false, nil
}
