package cache

import "time"

// NoopMetrics is a drop-in Metrics implementation that does nothing.
// It is the default when no observability backend is configured.
type NoopMetrics struct{}

func (NoopMetrics) Hit()                         {}
func (NoopMetrics) Miss()                        {}
func (NoopMetrics) Evict(EvictReason)            {}
func (NoopMetrics) Size(entries int, cost int64) {}
func (NoopMetrics) Load(time.Duration, error)    {}
func (NoopMetrics) Coalesced()                   {}

var _ Metrics = NoopMetrics{}
