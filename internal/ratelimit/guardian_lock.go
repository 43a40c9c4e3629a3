package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
)

// GuardianLocker serializes submit and spend for a single guardian so a
// balance or daily-cap decision is never made from a read another writer
// is about to invalidate.
type GuardianLocker interface {
	Acquire(ctx context.Context, guardianID snowflake.ID) (release func(), err error)
}

// MemoryGuardianLocker serializes per guardian within one process.
type MemoryGuardianLocker struct {
	mu    sync.Mutex
	locks map[snowflake.ID]*sync.Mutex
}

func NewMemoryGuardianLocker() *MemoryGuardianLocker {
	return &MemoryGuardianLocker{locks: make(map[snowflake.ID]*sync.Mutex)}
}

func (l *MemoryGuardianLocker) Acquire(_ context.Context, guardianID snowflake.ID) (func(), error) {
	l.mu.Lock()
	guard, ok := l.locks[guardianID]
	if !ok {
		guard = &sync.Mutex{}
		l.locks[guardianID] = guard
	}
	l.mu.Unlock()

	guard.Lock()
	return guard.Unlock, nil
}

// RedisGuardianLocker serializes per guardian across instances using the
// token Locker. Acquisition polls until the lock is free or the context
// is done.
type RedisGuardianLocker struct {
	locker *Locker
	ttl    time.Duration
}

func NewRedisGuardianLocker(locker *Locker, ttl time.Duration) *RedisGuardianLocker {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &RedisGuardianLocker{locker: locker, ttl: ttl}
}

func (l *RedisGuardianLocker) Acquire(ctx context.Context, guardianID snowflake.ID) (func(), error) {
	key := fmt.Sprintf("walking:lock:guardian:%d", guardianID)
	for {
		token, ok, err := l.locker.TryLock(ctx, key, l.ttl)
		if err != nil {
			return nil, err
		}
		if ok {
			return func() {
				_ = l.locker.Release(context.WithoutCancel(ctx), key, token)
			}, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(20 * time.Millisecond):
		}
	}
}
