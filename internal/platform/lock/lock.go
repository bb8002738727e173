// Package lock serialises pipeline runs across processes.
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

// ErrBusy indicates another run holds the lock.
var ErrBusy = errors.New("lock held by another run")

// Releaser releases an acquired lock.
type Releaser interface {
	Release(ctx context.Context) error
}

// Locker acquires named locks.
type Locker interface {
	Acquire(ctx context.Context, name string) (Releaser, error)
}

// Redis is a Locker backed by redislock.
type Redis struct {
	client *redislock.Client
	ttl    time.Duration
}

// NewRedis constructs a Redis locker; locks expire after ttl if the holder dies.
func NewRedis(client redis.UniversalClient, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Redis{client: redislock.New(client), ttl: ttl}
}

func (l *Redis) Acquire(ctx context.Context, name string) (Releaser, error) {
	held, err := l.client.Obtain(ctx, "fieldsync:lock:"+name, l.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("%s: %w", name, ErrBusy)
	}
	if err != nil {
		return nil, fmt.Errorf("platform/lock: obtain %s: %w", name, err)
	}
	return held, nil
}

// Local is an in-process Locker.
type Local struct {
	mu   sync.Mutex
	held map[string]bool
}

// NewLocal constructs an in-process locker.
func NewLocal() *Local {
	return &Local{held: map[string]bool{}}
}

func (l *Local) Acquire(ctx context.Context, name string) (Releaser, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[name] {
		return nil, fmt.Errorf("%s: %w", name, ErrBusy)
	}
	l.held[name] = true
	return releaseFunc(func() {
		l.mu.Lock()
		delete(l.held, name)
		l.mu.Unlock()
	}), nil
}

type releaseFunc func()

func (f releaseFunc) Release(ctx context.Context) error {
	f()
	return nil
}
