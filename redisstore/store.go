// Package redisstore keeps resolved endpoints in Redis so that several
// processes share one warm second tier behind their in-memory caches.
package redisstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/IvanBrykalov/atresolve/identity"
)

const DefaultPrefix = "atresolve:endpoint"

// Store implements identity.SharedStore on a go-redis client.
type Store struct {
	rdb    redis.UniversalClient
	prefix string
	maxTTL time.Duration
}

var _ identity.SharedStore = (*Store)(nil)

type Option func(*Store)

// WithPrefix sets the key prefix; keys are "<prefix>:<did>".
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		if p := strings.Trim(prefix, ":"); p != "" {
			s.prefix = p
		}
	}
}

// WithMaxTTL caps the TTL of stored entries. Zero means no cap.
func WithMaxTTL(d time.Duration) Option {
	return func(s *Store) { s.maxTTL = d }
}

func New(rdb redis.UniversalClient, opts ...Option) *Store {
	s := &Store{rdb: rdb, prefix: DefaultPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dial connects to addr and verifies the connection with PING.
func Dial(ctx context.Context, addr, password string, db int, opts ...Option) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return New(rdb, opts...), nil
}

func (s *Store) key(did string) string { return s.prefix + ":" + did }

// GetEndpoint returns the stored endpoint for did. A missing key is
// ("", false, nil).
func (s *Store) GetEndpoint(ctx context.Context, did string) (string, bool, error) {
	ep, err := s.rdb.Get(ctx, s.key(did)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return ep, true, nil
}

// SetEndpoint stores endpoint for did. A non-positive ttl stores without
// expiration, subject to WithMaxTTL.
func (s *Store) SetEndpoint(ctx context.Context, did, endpoint string, ttl time.Duration) error {
	if s.maxTTL > 0 && (ttl <= 0 || ttl > s.maxTTL) {
		ttl = s.maxTTL
	}
	if ttl < 0 {
		ttl = 0
	}
	return s.rdb.Set(ctx, s.key(did), endpoint, ttl).Err()
}

// Forget deletes the entry for did.
func (s *Store) Forget(ctx context.Context, did string) error {
	return s.rdb.Del(ctx, s.key(did)).Err()
}

func (s *Store) Close() error { return s.rdb.Close() }
