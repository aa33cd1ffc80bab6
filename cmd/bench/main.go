// Command bench drives a synthetic resolution workload through the cache's
// GetOrCreate path and reports how many producer calls the cache saved.
// It exposes optional pprof and Prometheus endpoints.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/atresolve/cache"
	pmet "github.com/IvanBrykalov/atresolve/metrics/prom"
)

var errUpstream = errors.New("bench: simulated upstream failure")

func main() {
	// ---- Flags ----
	var (
		capacity = flag.Int("cap", 100_000, "cache capacity (entries)")
		shards   = flag.Int("shards", 0, "number of shards (0=auto)")

		workers  = flag.Int("workers", 8*runtime.GOMAXPROCS(0), "number of worker goroutines")
		duration = flag.Duration("duration", 10*time.Second, "benchmark duration")
		invalPct = flag.Float64("invalidate", 0.5, "percentage of requests that drop their key first [0..100]")

		keys  = flag.Int("keys", 200_000, "identifier space size")
		zipfS = flag.Float64("zipf_s", 1.1, "Zipf s > 1 (skew)")
		zipfV = flag.Float64("zipf_v", 1.0, "Zipf v")
		seed  = flag.Int64("seed", time.Now().UnixNano(), "random seed")

		latency  = flag.Duration("latency", 20*time.Millisecond, "simulated producer latency")
		failPct  = flag.Float64("fail", 2, "percentage of producer calls that fail [0..100]")
		okTTL    = flag.Duration("ttl", 5*time.Minute, "success TTL")
		errTTL   = flag.Duration("fail_ttl", 30*time.Second, "failure TTL (<=0 disables negative caching)")
		negative = flag.Float64("absent", 5, "percentage of identifiers with no endpoint [0..100]")

		pprofAddr   = flag.String("pprof", "", "serve pprof at addr (e.g. :6060); empty = disabled")
		metricsAddr = flag.String("http", ":8080", "serve Prometheus metrics at addr; empty = disabled")
	)
	flag.Parse()

	// ---- pprof server (on DefaultServeMux) ----
	if *pprofAddr != "" {
		go func() {
			log.Printf("pprof: serving at %s", *pprofAddr)
			log.Println(http.ListenAndServe(*pprofAddr, nil))
		}()
	}

	// ---- Prometheus metrics (on DefaultServeMux) ----
	metrics := pmet.New(nil, "atresolve", "bench", nil)
	if *metricsAddr != "" {
		http.Handle("/metrics", promhttp.Handler())
		go func() {
			log.Printf("metrics: serving at %s", *metricsAddr)
			log.Println(http.ListenAndServe(*metricsAddr, nil))
		}()
	}

	c := cache.New(cache.Options[string, string]{
		Capacity: *capacity,
		Shards:   *shards,
		Metrics:  metrics,
	})
	defer func() { _ = c.Close() }()

	policy := cache.LoadPolicy[string]{
		SuccessTTL: *okTTL,
		FailureTTL: *errTTL,
		Negative:   func(ep string) bool { return ep == "" },
	}

	// ---- Snapshot flags for goroutines ----
	keysMax := uint64(*keys - 1)
	seedBase := *seed
	workersN := max(*workers, 1)
	lat := *latency
	failFrac := *failPct / 100
	absentFrac := *negative / 100
	invalFrac := *invalPct / 100

	var requests, failures, absent, producerCalls atomic.Uint64

	// producer stands in for a directory lookup.
	producer := func(id uint64, r float64) cache.Producer[string] {
		return func(ctx context.Context) (string, error) {
			producerCalls.Add(1)
			select {
			case <-time.After(lat):
			case <-ctx.Done():
				return "", ctx.Err()
			}
			switch {
			case r < failFrac:
				return "", errUpstream
			case id%1000 < uint64(absentFrac*1000):
				return "", nil
			}
			return "https://pds" + strconv.FormatUint(id%64, 10) + ".example.com", nil
		}
	}

	// ---- Load generation ----
	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	start := time.Now()
	var g errgroup.Group
	for w := 0; w < workersN; w++ {
		g.Go(func() error {
			// Each worker gets its own RNG + Zipf (rand.Rand is NOT goroutine-safe).
			localR := rand.New(rand.NewSource(seedBase + int64(w)*9973))
			localZipf := rand.NewZipf(localR, *zipfS, *zipfV, keysMax)

			for ctx.Err() == nil {
				id := localZipf.Uint64()
				k := "did:plc:" + strconv.FormatUint(id, 36)
				if localR.Float64() < invalFrac {
					c.Remove(k)
				}
				requests.Add(1)
				ep, err := c.GetOrCreate(ctx, k, producer(id, localR.Float64()), policy)
				switch {
				case errors.Is(err, context.DeadlineExceeded):
					return nil
				case err != nil:
					failures.Add(1)
				case ep == "":
					absent.Add(1)
				}
			}
			return nil
		})
	}
	_ = g.Wait()
	elapsed := time.Since(start)

	// ---- Report ----
	reqN := requests.Load()
	calls := producerCalls.Load()
	st := c.Stats()

	saved := 0.0
	if reqN > 0 {
		saved = (1 - float64(calls)/float64(reqN)) * 100
	}

	fmt.Printf("cap=%d shards=%d workers=%d keys=%d dur=%v seed=%d latency=%v\n",
		*capacity, *shards, workersN, *keys, elapsed, seedBase, lat)
	fmt.Printf("requests=%d (%.0f req/s)  producer-calls=%d  saved=%.2f%%\n",
		reqN, float64(reqN)/elapsed.Seconds(), calls, saved)
	fmt.Printf("hits=%d  misses=%d  coalesced=%d  evictions=%d\n",
		st.Hits, st.Misses, st.Coalesced, st.Evictions)
	fmt.Printf("failures=%d  absent=%d  Len()=%d\n", failures.Load(), absent.Load(), c.Len())
}
