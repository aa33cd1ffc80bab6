// Package prom exports cache.Metrics signals as Prometheus metrics.
package prom

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/IvanBrykalov/atresolve/cache"
)

// Adapter implements cache.Metrics and exports Prometheus counters/gauges.
// Safe for concurrent use; all Prometheus metric types are goroutine-safe.
type Adapter struct {
	hits      prometheus.Counter
	misses    prometheus.Counter
	coalesced prometheus.Counter
	evicts    *prometheus.CounterVec
	loads     *prometheus.HistogramVec
	sizeEnt   prometheus.Gauge
	sizeCost  prometheus.Gauge
}

// New constructs a Prometheus metrics adapter.
//   - reg:          registry to register metrics with (nil => prometheus.DefaultRegisterer)
//   - ns, sub:      Prometheus namespace and subsystem (e.g. "atresolve", "endpoints")
//   - constLabels:  static labels applied to all metrics (may be nil)
func New(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *Adapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: name, Help: help, ConstLabels: constLabels,
		})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: sub, Name: name, Help: help, ConstLabels: constLabels,
		})
	}

	a := &Adapter{
		hits:      counter("hits_total", "Lookups served from a live entry"),
		misses:    counter("misses_total", "Lookups that found no live entry"),
		coalesced: counter("coalesced_total", "Callers served by another caller's in-flight load"),
		evicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "evictions_total",
			Help:        "Evictions by reason",
			ConstLabels: constLabels,
		}, []string{"reason"}),
		loads: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "load_duration_seconds",
			Help:        "Producer call latency by outcome",
			ConstLabels: constLabels,
			Buckets:     prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"outcome"}),
		sizeEnt:  gauge("size_entries", "Number of resident entries"),
		sizeCost: gauge("size_cost", "Total resident cost"),
	}
	reg.MustRegister(a.hits, a.misses, a.coalesced, a.evicts, a.loads, a.sizeEnt, a.sizeCost)
	return a
}

// Hit increments the hit counter.
func (a *Adapter) Hit() { a.hits.Inc() }

// Miss increments the miss counter.
func (a *Adapter) Miss() { a.misses.Inc() }

// Coalesced increments the coalesced-caller counter.
func (a *Adapter) Coalesced() { a.coalesced.Inc() }

// Evict increments the eviction counter with a reason label.
func (a *Adapter) Evict(r cache.EvictReason) {
	a.evicts.WithLabelValues(r.String()).Inc()
}

// Load observes a producer call.
func (a *Adapter) Load(d time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	a.loads.WithLabelValues(outcome).Observe(d.Seconds())
}

// Size updates gauges for the number of entries and total cost.
func (a *Adapter) Size(entries int, cost int64) {
	a.sizeEnt.Set(float64(entries))
	a.sizeCost.Set(float64(cost))
}

var _ cache.Metrics = (*Adapter)(nil)
