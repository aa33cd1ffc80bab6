package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/IvanBrykalov/atresolve/cache"
	"github.com/IvanBrykalov/atresolve/config"
	"github.com/IvanBrykalov/atresolve/identity"
	"github.com/IvanBrykalov/atresolve/metrics/prom"
	"github.com/IvanBrykalov/atresolve/redisstore"
	"github.com/IvanBrykalov/atresolve/xrpc"
)

const (
	FlagConfig      = "config"
	FlagDirectory   = "directory"
	FlagTimeout     = "timeout"
	FlagMetricsAddr = "metrics-addr"
	FlagRedisAddr   = "redis-addr"

	redisDialTimeout = 5 * time.Second
)

// Env is the per-invocation state shared by all subcommands.
type Env struct {
	Config   config.Config
	Log      *slog.Logger
	Resolver *identity.Resolver
	Client   *xrpc.Client

	closers []func(context.Context) error
}

type envKey struct{}

// EnvFrom returns the Env installed by the root command's pre-run hook.
func EnvFrom(ctx context.Context) (*Env, error) {
	env, ok := ctx.Value(envKey{}).(*Env)
	if !ok {
		return nil, errors.New("command environment not initialized")
	}
	return env, nil
}

// setup is the root PersistentPreRunE: it loads the configuration, applies
// flag overrides and builds the resolver stack.
func setup(cmd *cobra.Command, _ []string) error {
	log, err := BaseLogger(cmd)
	if err != nil {
		return err
	}
	slog.SetDefault(log)
	ctx := cmd.Context()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	env := &Env{Config: cfg, Log: log}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	endpoints := cache.New(cache.Options[string, string]{
		Capacity: cfg.CacheCapacity,
		Shards:   cfg.CacheShards,
		Metrics:  prom.New(reg, "atresolve", "endpoints", nil),
	})
	env.closers = append(env.closers, func(context.Context) error { return endpoints.Close() })

	var limiter *rate.Limiter
	if cfg.DirectoryRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.DirectoryRPS), max(cfg.DirectoryBurst, 1))
	}

	var shared identity.SharedStore
	if cfg.Redis.Addr != "" {
		dialCtx, cancel := context.WithTimeout(ctx, redisDialTimeout)
		store, err := redisstore.Dial(dialCtx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
			redisstore.WithPrefix(cfg.Redis.Prefix), redisstore.WithMaxTTL(cfg.SuccessTTL.Value()))
		cancel()
		if err != nil {
			return fmt.Errorf("redis %s: %w", cfg.Redis.Addr, err)
		}
		shared = store
		env.closers = append(env.closers, func(context.Context) error { return store.Close() })
	}

	hc := &http.Client{Timeout: cfg.HTTPTimeout.Value()}
	env.Resolver = identity.New(identity.Options{
		DirectoryURL: cfg.DirectoryURL,
		HTTPClient:   hc,
		UserAgent:    cfg.UserAgent,
		SuccessTTL:   cfg.SuccessTTL.Value(),
		FailureTTL:   cfg.FailureTTL.Value(),
		Cache:        endpoints,
		Limiter:      limiter,
		Shared:       shared,
		Logger:       log,
	})
	env.Client = xrpc.New(xrpc.WithHTTPClient(hc), xrpc.WithUserAgent(cfg.UserAgent), xrpc.WithLogger(log))

	if cfg.MetricsAddr != "" {
		stop, err := serveMetrics(ctx, log, cfg.MetricsAddr, reg)
		if err != nil {
			return err
		}
		env.closers = append(env.closers, stop)
	}

	cmd.SetContext(context.WithValue(ctx, envKey{}, env))
	return nil
}

// teardown is the root PersistentPostRunE.
func teardown(cmd *cobra.Command, _ []string) error {
	env, err := EnvFrom(cmd.Context())
	if err != nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var errs []error
	for i := len(env.closers) - 1; i >= 0; i-- {
		errs = append(errs, env.closers[i](ctx))
	}
	return errors.Join(errs...)
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	if path, _ := cmd.Flags().GetString(FlagConfig); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return cfg, err
		}
	}

	// CLI flags take precedence over the config file values.
	flags := cmd.Flags()
	if flags.Changed(FlagDirectory) {
		cfg.DirectoryURL, _ = flags.GetString(FlagDirectory)
	}
	if flags.Changed(FlagTimeout) {
		d, _ := flags.GetDuration(FlagTimeout)
		cfg.HTTPTimeout = config.Duration(d)
	}
	if flags.Changed(FlagMetricsAddr) {
		cfg.MetricsAddr, _ = flags.GetString(FlagMetricsAddr)
	}
	if flags.Changed(FlagRedisAddr) {
		cfg.Redis.Addr, _ = flags.GetString(FlagRedisAddr)
	}
	return cfg, cfg.Validate()
}

func serveMetrics(ctx context.Context, log *slog.Logger, addr string, reg *prometheus.Registry) (func(context.Context) error, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.ErrorContext(ctx, "metrics server stopped", slog.String("error", err.Error()))
		}
	}()
	log.InfoContext(ctx, "serving metrics", slog.String("addr", ln.Addr().String()))
	return srv.Shutdown, nil
}
