package cache

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"time"

	"github.com/IvanBrykalov/atresolve/internal/singleflight"
	"github.com/IvanBrykalov/atresolve/internal/util"
)

var (
	// ErrNoLoader is returned by GetOrLoad when no Loader was configured in Options.
	ErrNoLoader = errors.New("cache: no Loader provided")
	// ErrClosed is returned by loads on a closed cache.
	ErrClosed = errors.New("cache: closed")
)

// cache is a sharded in-memory KV store with LRU capacity bounds.
// All methods are safe for concurrent use by multiple goroutines.
type cache[K Key, V any] struct {
	shards []*shard[K, V]
	closed atomic.Bool
	total  totals

	opt Options[K, V]

	// in-flight producer calls, one per key
	sf singleflight.Group[K, V]

	loads     atomic.Uint64
	coalesced atomic.Uint64
}

// New constructs a cache with the provided Options.
// Defaults:
//   - nil Metrics  -> NoopMetrics
//   - Shards <= 0  -> auto, rounded up to the next power of two
//
// New panics if Capacity <= 0.
func New[K Key, V any](opt Options[K, V]) Cache[K, V] {
	if opt.Capacity <= 0 {
		panic("cache: Capacity must be > 0")
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}

	n := util.ReasonableShardCount()
	if opt.Shards > 0 {
		n = util.ClampShards(opt.Shards)
	}
	opt.Shards = n

	c := &cache[K, V]{opt: opt}
	c.shards = make([]*shard[K, V], n)
	perShardCap := (opt.Capacity + n - 1) / n
	var perShardCost int64
	if opt.MaxCost > 0 {
		perShardCost = (opt.MaxCost + int64(n) - 1) / int64(n)
	}
	for i := range c.shards {
		c.shards[i] = newShard(perShardCap, perShardCost, &c.opt, &c.total)
	}
	return c
}

// ---- Cache[K,V] implementation ----

func (c *cache[K, V]) Add(k K, v V) bool {
	if c.closed.Load() {
		return false
	}
	return c.shardFor(k).add(k, v, c.deadline(c.opt.DefaultTTL), c.costOf(v))
}

func (c *cache[K, V]) Set(k K, v V) {
	c.SetWithTTL(k, v, c.opt.DefaultTTL)
}

func (c *cache[K, V]) SetWithTTL(k K, v V, ttl time.Duration) {
	if c.closed.Load() {
		return
	}
	c.shardFor(k).set(k, v, nil, c.deadline(ttl), c.costOf(v))
}

func (c *cache[K, V]) Get(k K) (V, bool) {
	var zero V
	if c.closed.Load() {
		return zero, false
	}
	v, err, ok := c.shardFor(k).lookup(k, true)
	if !ok || err != nil {
		return zero, false
	}
	return v, true
}

func (c *cache[K, V]) Remove(k K) bool {
	if c.closed.Load() {
		return false
	}
	return c.shardFor(k).remove(k)
}

func (c *cache[K, V]) Len() int {
	total := 0
	for _, s := range c.shards {
		total += s.length()
	}
	return total
}

func (c *cache[K, V]) Stats() Stats {
	st := Stats{
		Loads:     c.loads.Load(),
		Coalesced: c.coalesced.Load(),
	}
	for _, s := range c.shards {
		st.Hits += s.hits.Load()
		st.Misses += s.misses.Load()
		st.Evictions += s.evicts.Load()
	}
	return st
}

// Close marks the cache as closed. Producers already running finish, but
// their results are not stored.
func (c *cache[K, V]) Close() error {
	c.closed.Store(true)
	return nil
}

func (c *cache[K, V]) GetOrLoad(ctx context.Context, k K) (V, error) {
	if c.opt.Loader == nil {
		var zero V
		return zero, ErrNoLoader
	}
	return c.GetOrCreate(ctx, k, func(ctx context.Context) (V, error) {
		return c.opt.Loader(ctx, k)
	}, c.opt.LoadPolicy)
}

func (c *cache[K, V]) GetOrCreate(ctx context.Context, k K, fn Producer[V], p LoadPolicy[V]) (V, error) {
	if c.closed.Load() {
		var zero V
		return zero, ErrClosed
	}

	// fast path: live value or live negative entry
	s := c.shardFor(k)
	if v, err, ok := s.lookup(k, true); ok {
		return v, err
	}

	ran := false
	v, err, _ := c.sf.Do(ctx, k, func() (V, error) {
		// Re-check after registering: an episode may have completed
		// between the fast path and becoming leader.
		if v, err, ok := s.lookup(k, false); ok {
			return v, err
		}
		ran = true
		return c.load(ctx, k, fn, p)
	})
	if !ran {
		c.coalesced.Add(1)
		c.opt.Metrics.Coalesced()
	}
	return v, err
}

// load runs the producer once and stores its outcome according to p.
func (c *cache[K, V]) load(ctx context.Context, k K, fn Producer[V], p LoadPolicy[V]) (V, error) {
	start := c.now()
	v, err := fn(ctx)
	c.loads.Add(1)
	c.opt.Metrics.Load(time.Duration(c.now()-start), err)

	if c.closed.Load() {
		return v, err
	}
	switch {
	case err != nil:
		// A caller giving up is not a backend failure; do not replay it.
		if p.FailureTTL > 0 && ctx.Err() == nil {
			var zero V
			c.shardFor(k).set(k, zero, err, c.deadline(p.FailureTTL), 0)
		}
	case p.Negative != nil && p.Negative(v):
		if p.FailureTTL > 0 {
			c.shardFor(k).set(k, v, nil, c.deadline(p.FailureTTL), c.costOf(v))
		}
	default:
		ttl := p.SuccessTTL
		if ttl <= 0 {
			ttl = c.opt.DefaultTTL
		}
		c.shardFor(k).set(k, v, nil, c.deadline(ttl), c.costOf(v))
	}
	return v, err
}

// ---- helpers ----

func (c *cache[K, V]) shardFor(k K) *shard[K, V] {
	return c.shards[util.ShardIndex(util.Hash64(k), len(c.shards))]
}

func (c *cache[K, V]) now() int64 {
	if c.opt.Clock != nil {
		return c.opt.Clock.NowUnixNano()
	}
	return time.Now().UnixNano()
}

// deadline converts a relative TTL into an absolute UnixNano deadline.
// A non-positive ttl returns 0 (no expiration).
func (c *cache[K, V]) deadline(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	return c.now() + int64(ttl)
}

// costOf computes the per-entry cost (clamped to int32 range).
func (c *cache[K, V]) costOf(v V) int32 {
	if c.opt.Cost == nil {
		return 0
	}
	iv := c.opt.Cost(v)
	if iv < 0 {
		iv = 0
	}
	if iv > math.MaxInt32 {
		iv = math.MaxInt32
	}
	return int32(iv)
}
