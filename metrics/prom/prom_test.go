package prom

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IvanBrykalov/atresolve/cache"
)

func TestAdapter_RecordsCacheActivity(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg, "atresolve", "test", nil)

	c := cache.New[string, string](cache.Options[string, string]{Capacity: 1, Shards: 1, Metrics: m})
	pol := cache.LoadPolicy[string]{SuccessTTL: time.Minute, FailureTTL: time.Second}

	_, err := c.GetOrCreate(context.Background(), "a", func(context.Context) (string, error) { return "1", nil }, pol)
	require.NoError(t, err)
	_, err = c.GetOrCreate(context.Background(), "a", func(context.Context) (string, error) { return "2", nil }, pol)
	require.NoError(t, err)
	_, err = c.GetOrCreate(context.Background(), "b", func(context.Context) (string, error) { return "", errors.New("down") }, pol)
	require.Error(t, err)

	assert.InDelta(t, 1, testutil.ToFloat64(m.hits), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.misses), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.evicts.WithLabelValues("capacity")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.sizeEnt), 0)
	assert.Equal(t, 2, testutil.CollectAndCount(m.loads))
}
