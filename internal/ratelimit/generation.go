package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/inkwise/inkwise/internal/config"
	redis "github.com/redis/go-redis/v9"
)

const (
	keyGenerateUser = "generate:rate:user:%s"
	keyGenerateLock = "generate:lock:user:%s"

	lockPollInterval = 50 * time.Millisecond
)

// UserLocker serializes generation work per user: Gate and Settle for one user
// never interleave across concurrent requests.
type UserLocker interface {
	Lock(ctx context.Context, userID string) (release func(), err error)
}

// GenerationLimiter gates generation endpoints. Redis-backed when configured;
// otherwise the rate limit is a no-op and locking degrades to an in-process
// keyed mutex, which is enough for a single instance.
type GenerationLimiter struct {
	enabled bool

	bucket *TokenBucket
	locker UserLocker

	rate  float64
	burst int
}

func NewGenerationLimiter(cfg config.Config) (*GenerationLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return &GenerationLimiter{locker: newKeyedMutex()}, nil
	}

	addr := strings.TrimSpace(limitCfg.RedisAddr)
	if addr == "" {
		return nil, fmt.Errorf("rate limit redis addr is required")
	}
	if limitCfg.GenerateRate <= 0 || limitCfg.GenerateBurst <= 0 {
		return nil, fmt.Errorf("generate rate limit must be positive")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(limitCfg.RedisPassword),
		DB:       limitCfg.RedisDB,
	})

	return &GenerationLimiter{
		enabled: true,
		bucket:  NewTokenBucket(client),
		locker: &redisUserLocker{
			locker: NewLocker(client),
			ttl:    time.Duration(limitCfg.UserLockTTLSeconds) * time.Second,
		},
		rate:  limitCfg.GenerateRate,
		burst: limitCfg.GenerateBurst,
	}, nil
}

// Allow consumes one generation slot for the user. Pass-through when the
// limiter is not redis-backed.
func (l *GenerationLimiter) Allow(ctx context.Context, userID string) (bool, error) {
	if l == nil || !l.enabled {
		return true, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyGenerateUser, strings.TrimSpace(userID)), l.rate, l.burst)
}

// LockUser blocks until the per-user generation lock is held or ctx ends.
func (l *GenerationLimiter) LockUser(ctx context.Context, userID string) (func(), error) {
	if l == nil || l.locker == nil {
		return func() {}, nil
	}
	return l.locker.Lock(ctx, userID)
}

type redisUserLocker struct {
	locker *Locker
	ttl    time.Duration
}

func (r *redisUserLocker) Lock(ctx context.Context, userID string) (func(), error) {
	key := fmt.Sprintf(keyGenerateLock, strings.TrimSpace(userID))
	for {
		token, ok, err := r.locker.TryLock(ctx, key, r.ttl)
		if err != nil {
			return nil, err
		}
		if ok {
			return func() {
				_ = r.locker.Release(context.Background(), key, token)
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockPollInterval):
		}
	}
}

// keyedMutex is the single-instance fallback. Entries are never evicted; the
// map is bounded by the set of users seen by this process.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: map[string]*sync.Mutex{}}
}

func (k *keyedMutex) Lock(ctx context.Context, userID string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	k.mu.Lock()
	lock, ok := k.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		k.locks[userID] = lock
	}
	k.mu.Unlock()

	lock.Lock()
	return lock.Unlock, nil
}
