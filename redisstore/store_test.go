package redisstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IvanBrykalov/atresolve/tid"
)

// dial connects to the Redis named by ATRESOLVE_TEST_REDIS or skips.
func dial(t *testing.T) *Store {
	t.Helper()
	addr := os.Getenv("ATRESOLVE_TEST_REDIS")
	if addr == "" {
		t.Skip("ATRESOLVE_TEST_REDIS not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	// A fresh prefix per test keeps runs independent on a shared server.
	s, err := Dial(ctx, addr, "", 0, WithPrefix("atresolve-test:"+tid.Next().String()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_RoundTrip(t *testing.T) {
	s := dial(t)
	ctx := context.Background()

	_, ok, err := s.GetEndpoint(ctx, "did:plc:alice")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetEndpoint(ctx, "did:plc:alice", "https://pds.example.com", time.Minute))
	ep, ok, err := s.GetEndpoint(ctx, "did:plc:alice")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "https://pds.example.com", ep)

	ttl, err := s.rdb.TTL(ctx, s.key("did:plc:alice")).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 50*time.Second)

	require.NoError(t, s.Forget(ctx, "did:plc:alice"))
	_, ok, err = s.GetEndpoint(ctx, "did:plc:alice")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_MaxTTL(t *testing.T) {
	s := dial(t)
	s.maxTTL = 10 * time.Second
	ctx := context.Background()

	require.NoError(t, s.SetEndpoint(ctx, "did:plc:bob", "https://bob.example", time.Hour))
	ttl, err := s.rdb.TTL(ctx, s.key("did:plc:bob")).Result()
	require.NoError(t, err)
	assert.LessOrEqual(t, ttl, 10*time.Second)
	assert.Greater(t, ttl, time.Duration(0))
}

func TestWithPrefix(t *testing.T) {
	s := New(nil, WithPrefix(":custom:"))
	assert.Equal(t, "custom:did:plc:x", s.key("did:plc:x"))

	s = New(nil, WithPrefix("::"))
	assert.Equal(t, DefaultPrefix+":did:plc:x", s.key("did:plc:x"))
}
