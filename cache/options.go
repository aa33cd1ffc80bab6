package cache

import (
	"context"
	"time"
)

// EvictReason explains why an entry was removed.
type EvictReason int

const (
	// EvictTTL: the entry's deadline passed (lazy eviction on access or trim).
	EvictTTL EvictReason = iota
	// EvictCapacity: removed to satisfy Capacity/MaxCost limits (LRU first).
	EvictCapacity
)

// String returns a stable label for the reason.
func (r EvictReason) String() string {
	switch r {
	case EvictTTL:
		return "ttl"
	case EvictCapacity:
		return "capacity"
	default:
		return "unknown"
	}
}

// Metrics exposes cache-level observability hooks.
// A NoopMetrics implementation is provided and used by default.
type Metrics interface {
	Hit()
	Miss()
	Evict(reason EvictReason)
	Size(entries int, cost int64)
	// Load observes one producer call: its duration and outcome.
	Load(d time.Duration, err error)
	// Coalesced counts a caller served by another caller's producer call.
	Coalesced()
}

// Clock provides time in UnixNano; useful for deterministic tests.
type Clock interface{ NowUnixNano() int64 }

// Options configures the cache behavior. Zero values are safe;
// defaults are applied in New():
//   - Shards <= 0  => auto (rounded up to power of two)
//   - nil Metrics  => NoopMetrics
//   - nil Clock    => wall clock
type Options[K Key, V any] struct {
	// Capacity is the entry count limit. Must be > 0.
	Capacity int

	// Shards defines the number of shards. If 0, an automatic value is chosen
	// (≈ 2*GOMAXPROCS) and rounded to the next power of two.
	Shards int

	// DefaultTTL applies to Add/Set and to loads whose LoadPolicy has no
	// SuccessTTL (0 = no TTL).
	DefaultTTL time.Duration

	// Cost-based limiting (e.g., response bytes). If Cost is non-nil and
	// MaxCost > 0, the cache evicts until both limits are satisfied.
	Cost    func(v V) int
	MaxCost int64

	// Loader and LoadPolicy are used by GetOrLoad.
	Loader     func(ctx context.Context, k K) (V, error)
	LoadPolicy LoadPolicy[V]

	// OnEvict is called on eviction under the shard lock; keep it lightweight.
	OnEvict func(k K, v V, reason EvictReason)
	Metrics Metrics

	// Clock allows overriding the time source (tests). Nil => time.Now().
	Clock Clock
}
