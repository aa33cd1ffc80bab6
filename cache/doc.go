// Package cache provides a generic, sharded in-memory TTL cache with
// single-flight loading and outcome-dependent expiry. It is the resolution
// substrate used by the identity and xrpc packages.
//
// Design
//
//   - Concurrency: the cache is split into shards, each protected by a
//     mutex. The default shard count is chosen by a heuristic
//     (util.ReasonableShardCount) and is a power of two. Keys are hashed
//     with xxHash64.
//
//   - Storage: each shard keeps a map[K]*entry and an intrusive MRU↔LRU
//     list. When Capacity (or MaxCost) is exceeded the LRU entry goes.
//
//   - TTL: every entry carries its own absolute deadline (UnixNano).
//     Expiration is lazy on read and while trimming to capacity. An entry
//     is live while now < deadline.
//
//   - Negative entries: GetOrCreate may store a failed load (the error
//     itself) for LoadPolicy.FailureTTL. While it is live, GetOrCreate
//     returns the cached error without calling the producer again; Get
//     reports a miss.
//
//   - GetOrCreate: at most one producer runs per key at any instant.
//     Callers that arrive while it runs wait for the shared result. The
//     in-flight marker is dropped before waiters are released, and the
//     leader re-checks the cache after registering, so each miss episode
//     costs exactly one producer call.
//
//   - Metrics: Options.Metrics receives Hit/Miss/Evict/Size/Load/Coalesced
//     signals. NoopMetrics is the default; see metrics/prom.
//
// Basic usage
//
//	c := cache.New[string, string](cache.Options[string, string]{Capacity: 10_000})
//	endpoint, err := c.GetOrCreate(ctx, did, func(ctx context.Context) (string, error) {
//	    return lookup(ctx, did)
//	}, cache.LoadPolicy[string]{
//	    SuccessTTL: 5 * time.Minute,
//	    FailureTTL: 30 * time.Second,
//	})
//
// All methods on Cache are safe for concurrent use.
package cache
