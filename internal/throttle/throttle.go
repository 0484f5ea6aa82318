// Package throttle enforces the per-borrower hourly attempt cap (gate 6 of
// the scorer cascade). Redis (github.com/redis/go-redis/v9) is the primary
// counter store, grounded on DimaJoyti-go-coffee's use of go-redis as a
// shared cache backing a multi-service bot; an in-process map is the
// fallback when Redis is unreachable, matching SPEC_FULL.md's ambient-stack
// requirement to "degrade to in-memory fallback for throttle" rather than
// treat a Redis outage as a hard failure.
package throttle

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Store enforces an hourly attempt cap per borrower key. The in-process
// fallback counts attempts in a rolling window; the Redis path counts them
// in a fixed window that starts at a key's first attempt and ends when the
// key expires.
type Store struct {
	redis *redis.Client
	log   *zap.Logger

	window time.Duration

	mu       sync.Mutex
	fallback map[string][]time.Time

	nowFunc func() time.Time
}

// New builds a Store. redisClient may be nil, in which case the in-process
// fallback is used exclusively.
func New(redisClient *redis.Client, log *zap.Logger, window time.Duration) *Store {
	return &Store{
		redis:    redisClient,
		log:      log,
		window:   window,
		fallback: make(map[string][]time.Time),
		nowFunc:  time.Now,
	}
}

// Allow reports whether key (typically "<chain>:<borrower>") is still under
// cap attempts within the window (see Store), recording this attempt if so.
// A Redis error falls back to the in-process counter rather than failing
// the candidate.
func (s *Store) Allow(ctx context.Context, key string, cap int64) bool {
	if s.redis != nil {
		allowed, err := s.allowRedis(ctx, key, cap)
		if err == nil {
			return allowed
		}
		s.log.Warn("throttle: redis unreachable, falling back to in-process counter",
			zap.String("key", key), zap.Error(err))
	}
	return s.allowFallback(key, cap)
}

func (s *Store) allowRedis(ctx context.Context, key string, cap int64) (bool, error) {
	count, err := s.redis.Incr(ctx, redisKey(key)).Result()
	if err != nil {
		return false, err
	}
	if count == 1 {
		if err := s.redis.Expire(ctx, redisKey(key), s.window).Err(); err != nil {
			return false, err
		}
	}
	return count <= cap, nil
}

func (s *Store) allowFallback(key string, cap int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFunc()
	cutoff := now.Add(-s.window)

	attempts := s.fallback[key]
	kept := attempts[:0]
	for _, t := range attempts {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if int64(len(kept)) >= cap {
		s.fallback[key] = kept
		return false
	}

	s.fallback[key] = append(kept, now)
	return true
}

func redisKey(key string) string {
	return "liquidationd:throttle:" + key
}
