package biz

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gamification/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
	"golang.org/x/sync/singleflight"
)

const (
	// SettingsCacheKey 生效配置的缓存键
	SettingsCacheKey = "gamification:settings:active"

	leaderboardPattern = "gamification:leaderboard:*"
)

// SummaryCacheKey 用户概要缓存键
func SummaryCacheKey(userID int64) string {
	return fmt.Sprintf("gamification:user:%d:summary", userID)
}

// BadgesCacheKey 用户徽章列表缓存键
func BadgesCacheKey(userID int64) string {
	return fmt.Sprintf("gamification:user:%d:badges", userID)
}

// LeaderboardCacheKey 排行榜缓存键
func LeaderboardCacheKey(limit int) string {
	return fmt.Sprintf("gamification:leaderboard:%d", limit)
}

func userPattern(userID int64) string {
	return fmt.Sprintf("gamification:user:%d:*", userID)
}

// Cache 键值缓存，任何后端故障都按未命中处理，不向上返回错误
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	SetEX(ctx context.Context, key string, value []byte, ttl time.Duration)
	DeletePattern(ctx context.Context, pattern string)
}

// CacheLayer 读穿缓存，同一个键的并发加载合并为一次
type CacheLayer struct {
	cache Cache
	ttl   time.Duration
	group singleflight.Group
	log   *log.Helper
}

// NewCacheLayer 创建缓存层
func NewCacheLayer(cache Cache, c *conf.Gamification, logger log.Logger) *CacheLayer {
	return &CacheLayer{
		cache: cache,
		ttl:   c.CacheTTL(),
		log:   log.NewHelper(logger),
	}
}

// Delete 删除单个键
func (c *CacheLayer) Delete(ctx context.Context, key string) {
	c.cache.DeletePattern(ctx, key)
}

// InvalidateUser 删除用户相关的全部缓存
func (c *CacheLayer) InvalidateUser(ctx context.Context, userID int64) {
	c.cache.DeletePattern(ctx, userPattern(userID))
}

// InvalidateLeaderboard 删除所有排行榜缓存
func (c *CacheLayer) InvalidateLeaderboard(ctx context.Context) {
	c.cache.DeletePattern(ctx, leaderboardPattern)
}

// GetOrLoad 先读缓存，未命中时调用 load 并写回；load 出错时不写缓存
func GetOrLoad[T any](ctx context.Context, c *CacheLayer, key string, load func(ctx context.Context) (T, error)) (T, error) {
	if raw, ok := c.cache.Get(ctx, key); ok {
		var cached T
		if err := json.Unmarshal(raw, &cached); err == nil {
			return cached, nil
		}
		c.log.WithContext(ctx).Warnf("Discarding undecodable cache entry, key: %s", key)
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		loaded, err := load(ctx)
		if err != nil {
			return loaded, err
		}
		if raw, err := json.Marshal(loaded); err == nil {
			c.cache.SetEX(ctx, key, raw, c.ttl)
		} else {
			c.log.WithContext(ctx).Warnf("Failed to encode cache entry, key: %s, error: %v", key, err)
		}
		return loaded, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}
