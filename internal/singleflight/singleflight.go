// Package singleflight coalesces concurrent calls that share a key.
package singleflight

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrLeaderPanicked is returned to followers when the leader's fn panicked.
// The leader itself re-panics with the original value.
var ErrLeaderPanicked = errors.New("singleflight: producer panicked")

// Group coalesces concurrent function calls for the same key K so that
// the supplied fn is executed at most once per in-flight episode. Other
// concurrent callers wait for the shared result.
//
// Concurrency notes:
//   - The first caller for a given key becomes the leader and runs fn.
//   - The in-flight marker is deleted before done is closed, so a caller
//     arriving after completion never joins a finished call; it starts a
//     new episode (and is expected to re-check its cache first).
//   - Cancelling ctx in a follower unblocks only that follower; it does
//     NOT cancel the leader's fn.
//
// The zero value is ready to use.
type Group[K comparable, V any] struct {
	mu sync.Mutex
	m  map[K]*call[V]
}

type call[V any] struct {
	done    chan struct{} // closed when val/err are published
	val     V
	err     error
	waiters int // followers that joined; guarded by Group.mu
}

// Do runs fn once for the given key. Concurrent calls with the same key
// wait for the shared result. shared reports whether the result was
// delivered to more than one caller.
func (g *Group[K, V]) Do(ctx context.Context, key K, fn func() (V, error)) (v V, err error, shared bool) {
	g.mu.Lock()
	if g.m == nil {
		g.m = make(map[K]*call[V])
	}
	if c, ok := g.m[key]; ok {
		c.waiters++
		g.mu.Unlock()

		select {
		case <-c.done:
			return c.val, c.err, true
		case <-ctx.Done():
			var zero V
			return zero, ctx.Err(), true
		}
	}

	c := &call[V]{done: make(chan struct{})}
	g.m[key] = c
	g.mu.Unlock()

	g.run(key, c, fn)

	g.mu.Lock()
	shared = c.waiters > 0
	g.mu.Unlock()
	return c.val, c.err, shared
}

// run executes fn as the leader, then unregisters the call and releases
// followers, in that order, even if fn panics.
func (g *Group[K, V]) run(key K, c *call[V], fn func() (V, error)) {
	normal := false
	defer func() {
		var rec any
		if !normal {
			rec = recover()
			c.err = fmt.Errorf("%w: %v", ErrLeaderPanicked, rec)
		}

		g.mu.Lock()
		if g.m[key] == c {
			delete(g.m, key)
		}
		g.mu.Unlock()
		close(c.done)

		if !normal {
			panic(rec)
		}
	}()

	c.val, c.err = fn()
	normal = true
}

// Forget drops the in-flight marker for key. Callers already waiting
// still receive the leader's result; new callers start a fresh episode.
func (g *Group[K, V]) Forget(key K) {
	g.mu.Lock()
	delete(g.m, key)
	g.mu.Unlock()
}

// InFlight returns the number of keys with a running leader.
func (g *Group[K, V]) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.m)
}
