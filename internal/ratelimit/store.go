package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-admin/internal/shared"
)

type window struct {
	mu     sync.Mutex
	start  time.Time
	length time.Duration
	count  int
	dead   bool
}

func (w *window) hit(limit int, length time.Duration, now time.Time) Result {
	if w.start.IsZero() || now.Sub(w.start) >= w.length {
		w.start = now
		w.count = 0
	}
	w.length = length
	reset := w.start.Add(length)
	if w.count >= limit {
		return Result{Limit: limit, RetryAfter: reset.Sub(now), ResetAt: reset}
	}
	w.count++
	return Result{Allowed: true, Limit: limit, Remaining: limit - w.count, ResetAt: reset}
}

// MemoryStore keeps counters in process. Each key has its own mutex, so
// callers on different keys never wait for each other.
type MemoryStore struct {
	windows sync.Map // key -> *window
}

// NewMemoryStore constructs an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Hit(_ context.Context, key string, limit int, length time.Duration, now time.Time) (Result, error) {
	for {
		v, ok := s.windows.Load(key)
		if !ok {
			v, _ = s.windows.LoadOrStore(key, &window{})
		}
		w := v.(*window)
		w.mu.Lock()
		if w.dead {
			// swept between Load and Lock; retry on a fresh entry
			w.mu.Unlock()
			continue
		}
		res := w.hit(limit, length, now)
		w.mu.Unlock()
		return res, nil
	}
}

func (s *MemoryStore) Sweep(_ context.Context, now time.Time) (int, error) {
	removed := 0
	s.windows.Range(func(key, v any) bool {
		w := v.(*window)
		w.mu.Lock()
		if !w.start.IsZero() && now.Sub(w.start) >= w.length {
			w.dead = true
			s.windows.CompareAndDelete(key, w)
			removed++
		}
		w.mu.Unlock()
		return true
	})
	return removed, nil
}

// windowScript implements the fixed window with the caller's clock so that
// every instance agrees on window boundaries.
// KEYS[1] counter hash; ARGV: now ms, window ms, limit.
var windowScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local length = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local state = redis.call('HMGET', KEYS[1], 'start', 'count')
local start = tonumber(state[1])
local count = tonumber(state[2])
if not start or not count or now - start >= length then
	start = now
	count = 0
	redis.call('HSET', KEYS[1], 'start', ARGV[1], 'count', '0')
end
local reset = start + length - now
if count >= limit then
	return {0, count, reset}
end
count = redis.call('HINCRBY', KEYS[1], 'count', 1)
redis.call('PEXPIRE', KEYS[1], reset)
return {1, count, reset}
`)

// RedisStore shares counters between instances through an atomic Lua script.
// Keys expire with their window so Sweep has nothing to do.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wires a go-redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Hit(ctx context.Context, key string, limit int, length time.Duration, now time.Time) (Result, error) {
	raw, err := windowScript.Run(ctx, s.client, []string{shared.RateWindowKey(key)},
		now.UnixMilli(), length.Milliseconds(), limit).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("ratelimit: redis window: %w", err)
	}
	if len(raw) != 3 {
		return Result{}, fmt.Errorf("ratelimit: unexpected script reply %v", raw)
	}
	reset := time.Duration(raw[2]) * time.Millisecond
	res := Result{Limit: limit, ResetAt: now.Add(reset)}
	if raw[0] == 1 {
		res.Allowed = true
		res.Remaining = limit - int(raw[1])
		return res, nil
	}
	res.RetryAfter = reset
	return res, nil
}

func (s *RedisStore) Sweep(context.Context, time.Time) (int, error) {
	return 0, nil
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*RedisStore)(nil)
)
