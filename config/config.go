// Package config holds the runtime configuration of the atresolve tools.
//
// Files are YAML (or JSON) decoded with sigs.k8s.io/yaml, so struct fields
// carry json tags. Durations are Go duration strings ("30s", "5m") or
// integer nanoseconds.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"sigs.k8s.io/yaml"
)

const (
	DefaultDirectoryURL  = "https://plc.directory"
	DefaultHTTPTimeout   = 10 * time.Second
	DefaultUserAgent     = "atresolve"
	DefaultSuccessTTL    = 5 * time.Minute
	DefaultFailureTTL    = 30 * time.Second
	DefaultCacheCapacity = 10_000
	DefaultRedisPrefix   = "atresolve:endpoint"
)

// Duration is a time.Duration that decodes from a duration string.
type Duration time.Duration

func (d Duration) Value() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("failed to parse duration: %w", err)
	}
	switch value := v.(type) {
	case float64:
		*d = Duration(time.Duration(value))
		return nil
	case string:
		tmp, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: must be like 30s, 5m or a nanoseconds number: %w", value, err)
		}
		*d = Duration(tmp)
		return nil
	default:
		return fmt.Errorf("duration must be a string or nanoseconds number, got %T", v)
	}
}

// Redis configures the optional shared endpoint tier. An empty Addr
// disables it.
type Redis struct {
	Addr     string `json:"addr,omitempty"`
	Password string `json:"password,omitempty"`
	DB       int    `json:"db,omitempty"`
	Prefix   string `json:"prefix,omitempty"`
}

// Config is the full tool configuration.
type Config struct {
	// DirectoryURL is the base URL of the identity directory.
	DirectoryURL string `json:"directoryURL"`
	// HTTPTimeout bounds each outgoing request.
	HTTPTimeout Duration `json:"httpTimeout"`
	UserAgent   string   `json:"userAgent,omitempty"`

	// SuccessTTL is how long resolved endpoints stay cached.
	SuccessTTL Duration `json:"successTTL"`
	// FailureTTL is how long failures and not-found results stay cached.
	// A negative value disables failure caching.
	FailureTTL Duration `json:"failureTTL"`

	CacheCapacity int `json:"cacheCapacity"`
	// CacheShards is rounded up to a power of two; 0 picks a default from
	// GOMAXPROCS.
	CacheShards int `json:"cacheShards,omitempty"`

	// DirectoryRPS limits outgoing identity lookups per second; 0 is
	// unlimited.
	DirectoryRPS   float64 `json:"directoryRPS,omitempty"`
	DirectoryBurst int     `json:"directoryBurst,omitempty"`

	Redis Redis `json:"redis,omitempty"`

	// MetricsAddr, if set, serves Prometheus metrics on /metrics.
	MetricsAddr string `json:"metricsAddr,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		DirectoryURL:  DefaultDirectoryURL,
		HTTPTimeout:   Duration(DefaultHTTPTimeout),
		UserAgent:     DefaultUserAgent,
		SuccessTTL:    Duration(DefaultSuccessTTL),
		FailureTTL:    Duration(DefaultFailureTTL),
		CacheCapacity: DefaultCacheCapacity,
		Redis:         Redis{Prefix: DefaultRedisPrefix},
	}
}

// Load reads path over Default and validates the result. Keys absent from
// the file keep their default values.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := Parse(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML or JSON data into cfg and validates it.
func Parse(data []byte, cfg *Config) error {
	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return err
	}
	return cfg.Validate()
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error
	if u, err := url.Parse(c.DirectoryURL); err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		errs = append(errs, fmt.Errorf("directoryURL %q must be an absolute http(s) URL", c.DirectoryURL))
	}
	if c.HTTPTimeout < 0 {
		errs = append(errs, fmt.Errorf("httpTimeout must not be negative, got %s", c.HTTPTimeout))
	}
	if c.SuccessTTL <= 0 {
		errs = append(errs, fmt.Errorf("successTTL must be positive, got %s", c.SuccessTTL))
	}
	if c.CacheCapacity <= 0 {
		errs = append(errs, fmt.Errorf("cacheCapacity must be positive, got %d", c.CacheCapacity))
	}
	if c.CacheShards < 0 {
		errs = append(errs, fmt.Errorf("cacheShards must not be negative, got %d", c.CacheShards))
	}
	if c.DirectoryRPS < 0 {
		errs = append(errs, fmt.Errorf("directoryRPS must not be negative, got %g", c.DirectoryRPS))
	}
	if c.DirectoryBurst < 0 {
		errs = append(errs, fmt.Errorf("directoryBurst must not be negative, got %d", c.DirectoryBurst))
	}
	if c.Redis.DB < 0 {
		errs = append(errs, fmt.Errorf("redis.db must not be negative, got %d", c.Redis.DB))
	}
	return errors.Join(errs...)
}
