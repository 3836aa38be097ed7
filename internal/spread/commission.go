package spread

import (
	"hash/fnv"
	"sync"
)

// shardCount mirrors the teacher's sharded price tracker: enough
// shards to spread lock contention across goroutines without paying
// for a single global mutex on the hot path.
const shardCount = 32

// key identifies one commission entry (spec.md §4.3 cache key).
type key struct {
	buyVenue, sellVenue, instrument string
}

func (k key) hash() uint32 {
	h := fnv.New32a()
	h.Write([]byte(k.buyVenue))
	h.Write([]byte{0})
	h.Write([]byte(k.sellVenue))
	h.Write([]byte{0})
	h.Write([]byte(k.instrument))
	return h.Sum32()
}

type shard struct {
	mu sync.Mutex
	m  map[key]float64
}

// CommissionCache is the read-mostly, insert-if-absent cache required
// by spec.md §4.3/§5: two concurrent computations of the same key
// never race, and a hit never recomputes.
type CommissionCache struct {
	shards [shardCount]*shard
}

// NewCommissionCache builds an empty cache.
func NewCommissionCache() *CommissionCache {
	c := &CommissionCache{}
	for i := range c.shards {
		c.shards[i] = &shard{m: make(map[key]float64)}
	}
	return c
}

func (c *CommissionCache) shardFor(k key) *shard {
	return c.shards[k.hash()%shardCount]
}

// GetOrCompute returns the cached commission percent for
// (buyVenue, sellVenue, instrument), computing it via compute on a
// miss and storing the result. Concurrent misses for the same key are
// serialized by the shard's mutex, so compute runs at most once per
// key even under a race (spec.md §5 insert-if-absent).
func (c *CommissionCache) GetOrCompute(buyVenue, sellVenue, instrument string, compute func() float64) float64 {
	k := key{buyVenue, sellVenue, instrument}
	s := c.shardFor(k)

	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := s.m[k]; ok {
		return v
	}
	v := compute()
	s.m[k] = v
	return v
}

// Len returns the total number of cached entries across all shards —
// used by tests to verify idempotence (spec.md §8: "the cache has
// exactly one entry per key").
func (c *CommissionCache) Len() int {
	n := 0
	for _, s := range c.shards {
		s.mu.Lock()
		n += len(s.m)
		s.mu.Unlock()
	}
	return n
}
