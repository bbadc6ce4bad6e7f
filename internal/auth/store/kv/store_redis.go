package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"backoffice/pkg/platform/sentinel"
)

const defaultRedisPrefix = "backoffice:kv:"

// RedisStore persists values in Redis. With a TTL configured, keys expire on
// their own as a backstop to the token store's own expiry check.
type RedisStore struct {
	client   *redis.Client
	prefix   string
	ttl      time.Duration
	observer LatencyObserver
}

// RedisOption configures a RedisStore instance.
type RedisOption func(*RedisStore)

// WithKeyPrefix namespaces keys.
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// WithTTL sets a key expiry applied on every Save.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.ttl = ttl
	}
}

// WithRedisLatency records operation latency.
func WithRedisLatency(o LatencyObserver) RedisOption {
	return func(s *RedisStore) {
		if o != nil {
			s.observer = o
		}
	}
}

func NewRedis(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client, prefix: defaultRedisPrefix, observer: noopObserver{}}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *RedisStore) Load(ctx context.Context, key string) ([]byte, error) {
	defer s.observer.ObserveStoreLatency("redis", "load", time.Now())
	v, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return v, nil
}

func (s *RedisStore) Save(ctx context.Context, key string, value []byte) error {
	defer s.observer.ObserveStoreLatency("redis", "save", time.Now())
	if err := s.client.Set(ctx, s.prefix+key, value, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	defer s.observer.ObserveStoreLatency("redis", "delete", time.Now())
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
