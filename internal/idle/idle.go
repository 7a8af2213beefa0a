// Package idle tracks per-user inactivity windows. A user whose window lapses
// is treated as signed out until they authenticate again.
package idle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTimeout is the inactivity window applied when none is configured.
const DefaultTimeout = 2 * time.Hour

// Tracker records activity. Start opens a fresh window; Touch extends an
// existing one and reports false when the window already lapsed.
type Tracker interface {
	Start(ctx context.Context, userID string) error
	Touch(ctx context.Context, userID string) (bool, error)
	Forget(ctx context.Context, userID string) error
	Timeout() time.Duration
}

type RedisTracker struct {
	client  *redis.Client
	timeout time.Duration
	prefix  string
}

func NewRedisTracker(client *redis.Client, timeout time.Duration) *RedisTracker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &RedisTracker{client: client, timeout: timeout, prefix: "idle:"}
}

func (t *RedisTracker) Timeout() time.Duration {
	return t.timeout
}

func (t *RedisTracker) Start(ctx context.Context, userID string) error {
	if err := t.client.Set(ctx, t.prefix+userID, time.Now().UTC().Unix(), t.timeout).Err(); err != nil {
		return fmt.Errorf("start idle window: %w", err)
	}
	return nil
}

// Touch uses SET XX so a lapsed key is never resurrected.
func (t *RedisTracker) Touch(ctx context.Context, userID string) (bool, error) {
	ok, err := t.client.SetXX(ctx, t.prefix+userID, time.Now().UTC().Unix(), t.timeout).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("touch idle window: %w", err)
	}
	return ok, nil
}

func (t *RedisTracker) Forget(ctx context.Context, userID string) error {
	if err := t.client.Del(ctx, t.prefix+userID).Err(); err != nil {
		return fmt.Errorf("forget idle window: %w", err)
	}
	return nil
}

type MemoryTracker struct {
	mu        sync.Mutex
	deadlines map[string]time.Time
	timeout   time.Duration
	now       func() time.Time
}

func NewMemoryTracker(timeout time.Duration) *MemoryTracker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &MemoryTracker{
		deadlines: make(map[string]time.Time),
		timeout:   timeout,
		now:       time.Now,
	}
}

func (t *MemoryTracker) Timeout() time.Duration {
	return t.timeout
}

func (t *MemoryTracker) Start(_ context.Context, userID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.deadlines[userID] = t.now().Add(t.timeout)
	t.sweepLocked()
	return nil
}

func (t *MemoryTracker) Touch(_ context.Context, userID string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	deadline, ok := t.deadlines[userID]
	if !ok || !now.Before(deadline) {
		delete(t.deadlines, userID)
		return false, nil
	}
	t.deadlines[userID] = now.Add(t.timeout)
	return true, nil
}

func (t *MemoryTracker) Forget(_ context.Context, userID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.deadlines, userID)
	return nil
}

// sweepLocked drops lapsed entries so the map does not grow with every user
// that ever signed in.
func (t *MemoryTracker) sweepLocked() {
	now := t.now()
	for id, deadline := range t.deadlines {
		if !now.Before(deadline) {
			delete(t.deadlines, id)
		}
	}
}
