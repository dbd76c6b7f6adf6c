// Package lock serializes mutations of one sub-record kind for one visit.
// A second mutation that arrives while the first is in flight is refused
// with ErrBusy instead of being queued.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ErrBusy is returned when the key is already held.
var ErrBusy = errors.New("lock: mutation already in flight")

// Release frees a held key.
type Release func(ctx context.Context) error

// Locker acquires exclusive, non-blocking holds on string keys.
type Locker interface {
	TryLock(ctx context.Context, key string) (Release, error)
}

// Local is an in-process Locker.
type Local struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocal() *Local {
	return &Local{held: make(map[string]struct{})}
}

func (l *Local) TryLock(_ context.Context, key string) (Release, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[key]; busy {
		return nil, ErrBusy
	}
	l.held[key] = struct{}{}
	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
		return nil
	}, nil
}

// Redis is a Locker shared across server instances. The TTL bounds how long a
// crashed holder can block a key.
type Redis struct {
	client *redislock.Client
	ttl    time.Duration
	prefix string
}

func NewRedis(rdb redis.UniversalClient, ttl time.Duration) *Redis {
	return &Redis{client: redislock.New(rdb), ttl: ttl, prefix: "eyeexam:lock:"}
}

// NewRedisFromURL parses a redis:// URL and builds a Redis locker.
func NewRedisFromURL(url string, ttl time.Duration) (*Redis, *redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	return NewRedis(rdb, ttl), rdb, nil
}

func (r *Redis) TryLock(ctx context.Context, key string) (Release, error) {
	l, err := r.client.Obtain(ctx, r.prefix+key, r.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrBusy
	}
	if err != nil {
		return nil, fmt.Errorf("obtain lock %s: %w", key, err)
	}
	return func(ctx context.Context) error {
		if err := l.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			return fmt.Errorf("release lock %s: %w", key, err)
		}
		return nil
	}, nil
}

// Key builds the lock key for one kind and visit.
func Key(kind, visitID string) string {
	return kind + ":" + visitID
}
