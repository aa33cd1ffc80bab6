package cache

// entry is an intrusive doubly linked list element owned by a shard.
// A write replaces val, err, exp and cost together; readers copy them out
// under the shard lock.
type entry[K Key, V any] struct {
	key K
	val V

	// err marks a negative entry: a cached producer failure.
	err error

	// Intrusive list links: head is MRU, tail is LRU.
	prev *entry[K, V]
	next *entry[K, V]

	// Absolute expiration deadline in UnixNano. Zero means "no TTL".
	exp int64

	cost int32
}

// liveAt reports whether the entry is still valid at now.
func (e *entry[K, V]) liveAt(now int64) bool {
	return e.exp == 0 || now < e.exp
}
