package cron

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultLockTTL bounds how long a crashed worker can block the next cycle.
// Healthy cycles keep the lease alive with Extend.
const DefaultLockTTL = 10 * time.Minute

// Lock is a renewable lease that serializes batch sync cycles across workers.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Extend(ctx context.Context) error
	Release(ctx context.Context) error
	TTL() time.Duration
}

// ErrLockLost means the lease expired or was taken over while a cycle ran.
var ErrLockLost = errors.New("cron lock lost")

// leaseStore is the subset of pkg/redis.Client the lease needs.
type leaseStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	DelIfValue(ctx context.Context, key, value string) (bool, error)
	ExpireIfValue(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
}

// RedisLock is a Redis lease whose value identifies the holding process.
type RedisLock struct {
	store leaseStore
	key   string
	ttl   time.Duration

	mu    sync.Mutex
	token string
}

// NewRedisLock builds a lease on key. A non-positive ttl uses DefaultLockTTL.
func NewRedisLock(store leaseStore, key string, ttl time.Duration) (*RedisLock, error) {
	if store == nil {
		return nil, errors.New("redis client required for lock")
	}
	if key == "" {
		return nil, errors.New("lock key is required")
	}
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &RedisLock{store: store, key: key, ttl: ttl}, nil
}

// TTL returns the lease duration.
func (l *RedisLock) TTL() time.Duration { return l.ttl }

// Acquire takes the lease if nobody holds it.
func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	token := holderToken()
	ok, err := l.store.SetNX(ctx, l.key, token, l.ttl)
	if err != nil {
		return false, fmt.Errorf("acquire %s: %w", l.key, err)
	}
	if ok {
		l.mu.Lock()
		l.token = token
		l.mu.Unlock()
	}
	return ok, nil
}

// Extend renews the lease for another TTL. It returns ErrLockLost when the
// key no longer carries this holder's token.
func (l *RedisLock) Extend(ctx context.Context) error {
	token := l.held()
	if token == "" {
		return ErrLockLost
	}
	ok, err := l.store.ExpireIfValue(ctx, l.key, token, l.ttl)
	if err != nil {
		return fmt.Errorf("extend %s: %w", l.key, err)
	}
	if !ok {
		l.forget()
		return ErrLockLost
	}
	return nil
}

// Release drops the lease if this holder still owns it.
func (l *RedisLock) Release(ctx context.Context) error {
	token := l.held()
	if token == "" {
		return nil
	}
	defer l.forget()
	if _, err := l.store.DelIfValue(ctx, l.key, token); err != nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	return nil
}

func (l *RedisLock) held() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.token
}

func (l *RedisLock) forget() {
	l.mu.Lock()
	l.token = ""
	l.mu.Unlock()
}

func holderToken() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return fmt.Sprintf("%s/%d/%s", host, os.Getpid(), uuid.NewString())
}
