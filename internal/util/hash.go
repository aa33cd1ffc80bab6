// Package util contains internal helpers (key hashing, shard sizing, padding).
//revive:disable:var-naming  // allow 'util' as an internal helpers package name
package util

import "github.com/cespare/xxhash/v2"

// Hash64 hashes a string-like cache key with xxHash64.
// Cache keys in this module are identifiers, handles and request URLs,
// so restricting to ~string keeps hashing allocation-free.
func Hash64[K ~string](k K) uint64 {
	return xxhash.Sum64String(string(k))
}

// ShardIndex maps a 64-bit hash to a shard index.
// shards must be a power of two (see NextPow2).
func ShardIndex(hash uint64, shards int) int {
	if shards <= 1 {
		return 0
	}
	return int(hash & uint64(shards-1))
}
