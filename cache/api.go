package cache

import (
	"context"
	"time"
)

// Key is the constraint for cache keys: identifiers, handles, request URLs.
type Key interface{ ~string }

// Producer computes the value for a missing key. It receives the context
// of the caller that became the leader for the key.
type Producer[V any] func(ctx context.Context) (V, error)

// LoadPolicy decides how long the outcome of a producer call is kept.
type LoadPolicy[V any] struct {
	// SuccessTTL applies to successful results. A non-positive value falls
	// back to Options.DefaultTTL (0 there means no expiration).
	SuccessTTL time.Duration

	// FailureTTL enables negative caching: when > 0, a producer error is
	// stored and replayed to callers for this long. When <= 0 failures are
	// not cached and the next call runs the producer again.
	FailureTTL time.Duration

	// Negative reports whether a successful result is an empty answer
	// (e.g. "no such service entry"). Such results use FailureTTL instead
	// of SuccessTTL and are not cached when FailureTTL <= 0.
	Negative func(v V) bool
}

// Cache is a sharded, in-memory key/value cache interface.
// All methods are safe for concurrent use by multiple goroutines.
type Cache[K Key, V any] interface {
	// Add inserts k→v only if k is not present (or expired).
	// It uses the cache's DefaultTTL (if any).
	Add(k K, v V) bool

	// Set inserts or updates k→v with DefaultTTL.
	Set(k K, v V)

	// SetWithTTL inserts or updates k→v with a per-key TTL.
	// A non-positive ttl disables expiration for this entry.
	SetWithTTL(k K, v V, ttl time.Duration)

	// Get returns the value for k iff a live, non-negative entry exists.
	// It never calls a producer.
	Get(k K) (V, bool)

	// Remove deletes k (including a negative entry) and reports whether it existed.
	Remove(k K) bool

	// Len returns the total number of resident entries across all shards.
	Len() int

	// Stats returns a snapshot of the cache counters.
	Stats() Stats

	// Close marks the cache closed; later operations are ignored and
	// loads return ErrClosed.
	Close() error

	// GetOrCreate returns the cached value (or cached error) for k, or runs
	// fn exactly once for all concurrent callers of the same miss episode
	// and stores the outcome according to p.
	GetOrCreate(ctx context.Context, k K, fn Producer[V], p LoadPolicy[V]) (V, error)

	// GetOrLoad is GetOrCreate with Options.Loader and Options.LoadPolicy.
	// If no Loader was configured, returns ErrNoLoader.
	GetOrLoad(ctx context.Context, k K) (V, error)
}

// Stats is a point-in-time view of cache activity.
type Stats struct {
	Hits      uint64 // Get/GetOrCreate served from a live entry
	Misses    uint64 // lookups that found nothing live
	Loads     uint64 // producer invocations
	Coalesced uint64 // GetOrCreate callers served by another caller's producer call
	Evictions uint64 // entries dropped for TTL or capacity
}
