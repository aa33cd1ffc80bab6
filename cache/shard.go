package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/IvanBrykalov/atresolve/internal/util"
)

// shard is an independent partition of the cache with its own lock, map,
// and an intrusive doubly linked list (head=MRU, tail=LRU).
type shard[K Key, V any] struct {
	// ---- guarded by mu ----
	mu      sync.Mutex
	m       map[K]*entry[K, V]
	head    *entry[K, V] // MRU
	tail    *entry[K, V] // LRU
	len     int
	cost    int64
	cap     int
	maxCost int64 // 0 = disabled

	opt   *Options[K, V]
	total *totals // cache-wide size, shared by all shards

	// ---- hot counters (separate cache lines to avoid false sharing) ----
	_      util.CacheLinePad
	hits   util.PaddedCounter
	misses util.PaddedCounter
	evicts util.PaddedCounter
}

// totals tracks resident entries and cost across shards for Metrics.Size.
type totals struct {
	entries atomic.Int64
	cost    atomic.Int64
}

func newShard[K Key, V any](capacity int, maxCost int64, opt *Options[K, V], total *totals) *shard[K, V] {
	return &shard[K, V]{
		m:       make(map[K]*entry[K, V], capacity),
		cap:     capacity,
		maxCost: maxCost,
		opt:     opt,
		total:   total,
	}
}

// lookup returns a copy of the live entry for k.
// found is false on a miss; an expired entry is evicted first.
// When count is false the lookup is not reflected in hit/miss counters.
func (s *shard[K, V]) lookup(k K, count bool) (v V, err error, found bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.m[k]
	if ok && !e.liveAt(s.now()) {
		s.evict(e, EvictTTL)
		ok = false
	}
	if !ok {
		if count {
			s.misses.Add(1)
			s.opt.Metrics.Miss()
		}
		return v, nil, false
	}

	s.moveToFront(e)
	if count {
		s.hits.Add(1)
		s.opt.Metrics.Hit()
	}
	return e.val, e.err, true
}

// add inserts a new entry unless a live one exists for k.
func (s *shard[K, V]) add(k K, v V, exp int64, cost int32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.m[k]; ok {
		if e.liveAt(s.now()) {
			return false
		}
		s.evict(e, EvictTTL)
	}
	s.insertLocked(k, v, nil, exp, cost)
	return true
}

// set inserts or replaces the entry for k. A non-nil err stores a
// negative entry.
func (s *shard[K, V]) set(k K, v V, err error, exp int64, cost int32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.m[k]; ok {
		delta := int64(cost) - int64(e.cost)
		s.cost += delta
		s.total.cost.Add(delta)
		e.val, e.err, e.exp, e.cost = v, err, exp, cost
		s.moveToFront(e)
		s.enforceLimitsLocked()
		return
	}
	s.insertLocked(k, v, err, exp, cost)
}

func (s *shard[K, V]) remove(k K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.m[k]
	if !ok {
		return false
	}
	s.unlink(e)
	delete(s.m, k)
	return true
}

func (s *shard[K, V]) length() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.len
}

// -------------------- internals (mu held) --------------------

func (s *shard[K, V]) now() int64 {
	if s.opt.Clock != nil {
		return s.opt.Clock.NowUnixNano()
	}
	return time.Now().UnixNano()
}

func (s *shard[K, V]) insertLocked(k K, v V, err error, exp int64, cost int32) {
	e := &entry[K, V]{key: k, val: v, err: err, exp: exp, cost: cost}
	s.m[k] = e
	s.pushFront(e)
	s.enforceLimitsLocked()
}

func (s *shard[K, V]) pushFront(e *entry[K, V]) {
	e.prev = nil
	e.next = s.head
	if s.head != nil {
		s.head.prev = e
	}
	s.head = e
	if s.tail == nil {
		s.tail = e
	}
	s.len++
	s.cost += int64(e.cost)
	s.total.entries.Add(1)
	s.total.cost.Add(int64(e.cost))
}

func (s *shard[K, V]) moveToFront(e *entry[K, V]) {
	if e == s.head {
		return
	}
	s.unlink(e)
	s.pushFront(e)
}

// unlink detaches e from the list and updates counters.
func (s *shard[K, V]) unlink(e *entry[K, V]) {
	if e.prev != nil {
		e.prev.next = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	}
	if s.head == e {
		s.head = e.next
	}
	if s.tail == e {
		s.tail = e.prev
	}
	e.prev, e.next = nil, nil
	s.len--
	s.cost -= int64(e.cost)
	s.total.entries.Add(-1)
	s.total.cost.Add(-int64(e.cost))
}

func (s *shard[K, V]) evict(e *entry[K, V], reason EvictReason) {
	s.unlink(e)
	delete(s.m, e.key)
	s.evicts.Add(1)
	s.opt.Metrics.Evict(reason)
	if cb := s.opt.OnEvict; cb != nil {
		cb(e.key, e.val, reason)
	}
}

// enforceLimitsLocked evicts from the LRU end until both the count and
// cost limits hold. Victims that already expired are reported as EvictTTL.
func (s *shard[K, V]) enforceLimitsLocked() {
	var now int64
	for s.tail != nil && (s.len > s.cap || (s.maxCost > 0 && s.cost > s.maxCost)) {
		if now == 0 {
			now = s.now()
		}
		reason := EvictCapacity
		if !s.tail.liveAt(now) {
			reason = EvictTTL
		}
		s.evict(s.tail, reason)
	}
	s.opt.Metrics.Size(int(s.total.entries.Load()), s.total.cost.Load())
}
