package behavior

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	cbus "github.com/next-trace/scg-shared-kernel/contract/bus"
	berr "github.com/next-trace/scg-shared-kernel/contract/errors"
	"github.com/next-trace/scg-shared-kernel/servicebus"
)

// DefaultUniqueTTL applies when a cbus.Unique request reports a zero TTL.
const DefaultUniqueTTL = 24 * time.Hour

// Store records which unique keys have been claimed.
type Store interface {
	// Acquire claims key for ttl and reports whether this caller got it.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// Idempotency lets a cbus.Unique request run once per key. Repeated or concurrent
// requests with a claimed key fail with ErrDuplicateRequest. A failed handler
// releases the key so the request can be retried; an ErrAfterCommit failure keeps it.
func Idempotency(store Store, logger *slog.Logger) servicebus.Middleware {
	logger = orDefault(logger)

	return func(next servicebus.HandlerFunc) servicebus.HandlerFunc {
		return func(ctx context.Context, req any) (any, error) {
			u, ok := req.(cbus.Unique)
			if !ok || u.UniqueKey() == "" {
				return next(ctx, req)
			}

			name := servicebus.MessageName(req)
			key := name + ":" + u.UniqueKey()

			ttl := u.UniqueTTL()
			if ttl <= 0 {
				ttl = DefaultUniqueTTL
			}

			acquired, err := store.Acquire(ctx, key, ttl)
			if err != nil {
				return nil, fmt.Errorf("idempotency %s: %w", name, err)
			}

			if !acquired {
				return nil, fmt.Errorf("%s key %q: %w", name, u.UniqueKey(), berr.ErrDuplicateRequest)
			}

			res, err := next(ctx, req)
			if err != nil && !errors.Is(err, berr.ErrAfterCommit) {
				if rerr := store.Release(context.WithoutCancel(ctx), key); rerr != nil {
					logger.WarnContext(ctx, "idempotency key release failed", "key", key, "error", rerr)
				}
			}

			return res, err
		}
	}
}

// MemoryStore is a process local Store.
type MemoryStore struct {
	mu   sync.Mutex
	keys map[string]time.Time
	now  func() time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{keys: make(map[string]time.Time), now: time.Now}
}

// Acquire implements Store.
func (s *MemoryStore) Acquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if exp, ok := s.keys[key]; ok && now.Before(exp) {
		return false, nil
	}

	s.keys[key] = now.Add(ttl)

	return true, nil
}

// Release implements Store.
func (s *MemoryStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.keys, key)
	s.mu.Unlock()

	return nil
}

// RedisStore keeps unique keys in Redis so they are shared across instances.
type RedisStore struct {
	client redis.Cmdable
	prefix string
}

// NewRedisStore returns a RedisStore namespacing keys under prefix.
func NewRedisStore(client redis.Cmdable, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "idempotency"
	}

	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(k string) string { return s.prefix + ":" + k }

// Acquire implements Store with SETNX.
func (s *RedisStore) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.key(key), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx %s: %w", s.key(key), err)
	}

	return ok, nil
}

// Release implements Store.
func (s *RedisStore) Release(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.key(key)).Err()
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*RedisStore)(nil)
)
