package data

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gamification/internal/biz"
	"gamification/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-redis/redis/v8"
)

const rateLimitBackendRedis = "redis"

// fixedWindowScript 计数加一，首次计数时设置窗口过期；返回 {计数, 剩余毫秒}
const fixedWindowScript = `
local current = redis.call('INCR', KEYS[1])
if current == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {current, ttl}
`

// NewRateLimitStore 按配置选择限流存储，Redis 不可用时直接使用本地计数
func NewRateLimitStore(d *Data, local biz.LocalRateLimitStore, c *conf.Gamification, logger log.Logger) biz.RateLimitStore {
	helper := log.NewHelper(logger)
	if c != nil && c.RateLimitBackend == rateLimitBackendRedis {
		if rds := d.RedisClient(); rds != nil {
			helper.Info("Using redis rate limit store")
			return NewRedisRateLimitStore(rds)
		}
		helper.Warn("Redis rate limit store requested but redis is unavailable, using local counters")
	}
	return local
}

// NewLocalRateLimitStore 进程内固定窗口计数
func NewLocalRateLimitStore() biz.LocalRateLimitStore {
	return NewMemoryRateLimitStore(time.Now)
}

// redisRateLimitStore 多实例共享的固定窗口计数
type redisRateLimitStore struct {
	rds *redis.Client
}

// NewRedisRateLimitStore 创建 Redis 限流存储
func NewRedisRateLimitStore(rds *redis.Client) biz.RateLimitStore {
	return &redisRateLimitStore{rds: rds}
}

func (s *redisRateLimitStore) Hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	res, err := s.rds.Eval(ctx, fixedWindowScript, []string{key}, window.Milliseconds()).Result()
	if err != nil {
		return 0, 0, err
	}
	vals, ok := res.([]interface{})
	if !ok || len(vals) != 2 {
		return 0, 0, fmt.Errorf("unexpected rate limit script result: %v", res)
	}
	count, ok1 := vals[0].(int64)
	ttlMs, ok2 := vals[1].(int64)
	if !ok1 || !ok2 {
		return 0, 0, fmt.Errorf("unexpected rate limit script result: %v", res)
	}
	return count, time.Duration(ttlMs) * time.Millisecond, nil
}

type rateWindow struct {
	count     int64
	expiresAt time.Time
}

// memoryRateLimitStore 进程内固定窗口计数，过期窗口由 Sweep 清理
type memoryRateLimitStore struct {
	mu      sync.Mutex
	windows map[string]*rateWindow
	now     func() time.Time
}

// NewMemoryRateLimitStore 创建进程内限流存储
func NewMemoryRateLimitStore(now func() time.Time) biz.LocalRateLimitStore {
	return &memoryRateLimitStore{
		windows: make(map[string]*rateWindow),
		now:     now,
	}
}

func (s *memoryRateLimitStore) Hit(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	w, ok := s.windows[key]
	if !ok || !now.Before(w.expiresAt) {
		w = &rateWindow{expiresAt: now.Add(window)}
		s.windows[key] = w
	}
	w.count++
	return w.count, w.expiresAt.Sub(now), nil
}

// Sweep 删除已经过期的窗口，返回删除数量
func (s *memoryRateLimitStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for k, w := range s.windows {
		if !now.Before(w.expiresAt) {
			delete(s.windows, k)
			removed++
		}
	}
	return removed
}
