package data

import (
	"context"
	"path"
	"strings"
	"sync"
	"time"

	"gamification/internal/biz"
	"gamification/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-redis/redis/v8"
)

const (
	defaultMemoryCacheCapacity = 10000
	scanBatch                  = 100
)

// NewCache 启用了 Redis 时使用 Redis，否则使用进程内缓存
func NewCache(d *Data, c *conf.Gamification, logger log.Logger) biz.Cache {
	if rds := d.RedisClient(); rds != nil {
		return NewRedisCache(rds, logger)
	}
	capacity := defaultMemoryCacheCapacity
	if c != nil && c.MemoryCacheCapacity > 0 {
		capacity = c.MemoryCacheCapacity
	}
	return NewMemoryCache(capacity, time.Now)
}

// redisCache Redis 缓存，故障时按未命中处理
type redisCache struct {
	rds    *redis.Client
	logger *log.Helper
}

// NewRedisCache 创建 Redis 缓存
func NewRedisCache(rds *redis.Client, logger log.Logger) biz.Cache {
	return &redisCache{rds: rds, logger: log.NewHelper(logger)}
}

func (c *redisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := c.rds.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		c.logger.WithContext(ctx).Warnf("Failed to read cache, key: %s, error: %v", key, err)
		return nil, false
	}
	return val, true
}

func (c *redisCache) SetEX(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if err := c.rds.Set(ctx, key, value, ttl).Err(); err != nil {
		c.logger.WithContext(ctx).Warnf("Failed to write cache, key: %s, error: %v", key, err)
	}
}

// DeletePattern 不含通配符时直接删除，否则先 SCAN 再批量删除
func (c *redisCache) DeletePattern(ctx context.Context, pattern string) {
	if !strings.ContainsAny(pattern, "*?[") {
		if err := c.rds.Del(ctx, pattern).Err(); err != nil {
			c.logger.WithContext(ctx).Warnf("Failed to delete cache key: %s, error: %v", pattern, err)
		}
		return
	}

	var keys []string
	iter := c.rds.Scan(ctx, 0, pattern, scanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.logger.WithContext(ctx).Warnf("Failed to scan cache keys, pattern: %s, error: %v", pattern, err)
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := c.rds.Del(ctx, keys...).Err(); err != nil {
		c.logger.WithContext(ctx).Warnf("Failed to delete cache keys, pattern: %s, count: %d, error: %v", pattern, len(keys), err)
	}
}

type memoryItem struct {
	value     []byte
	expiresAt time.Time
}

// memoryCache 有容量上限的进程内缓存，写满时先清过期项，再淘汰最早过期的一项
type memoryCache struct {
	mu       sync.Mutex
	items    map[string]memoryItem
	capacity int
	now      func() time.Time
}

// NewMemoryCache 创建进程内缓存
func NewMemoryCache(capacity int, now func() time.Time) biz.Cache {
	if capacity <= 0 {
		capacity = defaultMemoryCacheCapacity
	}
	return &memoryCache{
		items:    make(map[string]memoryItem),
		capacity: capacity,
		now:      now,
	}
}

func (c *memoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.items[key]
	if !ok {
		return nil, false
	}
	if !c.now().Before(item.expiresAt) {
		delete(c.items, key)
		return nil, false
	}
	return append([]byte(nil), item.value...), true
}

func (c *memoryCache) SetEX(_ context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if _, exists := c.items[key]; !exists && len(c.items) >= c.capacity {
		c.evict(now)
	}
	c.items[key] = memoryItem{
		value:     append([]byte(nil), value...),
		expiresAt: now.Add(ttl),
	}
}

// evict 调用方持有锁
func (c *memoryCache) evict(now time.Time) {
	for k, item := range c.items {
		if !now.Before(item.expiresAt) {
			delete(c.items, k)
		}
	}
	if len(c.items) < c.capacity {
		return
	}
	var oldestKey string
	var oldest time.Time
	for k, item := range c.items {
		if oldestKey == "" || item.expiresAt.Before(oldest) {
			oldestKey, oldest = k, item.expiresAt
		}
	}
	delete(c.items, oldestKey)
}

func (c *memoryCache) DeletePattern(_ context.Context, pattern string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.items {
		if ok, _ := path.Match(pattern, k); ok || k == pattern {
			delete(c.items, k)
		}
	}
}
