package biz

import (
	"context"
	"fmt"
	"time"

	"gamification/internal/pkg/tracing"

	"github.com/go-kratos/kratos/v2/log"
)

// RateLimitStore 固定窗口计数器
type RateLimitStore interface {
	// Hit 计数加一，返回窗口内的当前计数与窗口剩余时长
	Hit(ctx context.Context, key string, window time.Duration) (count int64, ttl time.Duration, err error)
}

// LocalRateLimitStore 进程内计数器，需要定期清理过期窗口
type LocalRateLimitStore interface {
	RateLimitStore
	Sweep(now time.Time) int
}

// RateLimiter 按 (用户, 事件类型) 限流，主存储故障时退回本地内存计数
type RateLimiter struct {
	store    RateLimitStore
	fallback LocalRateLimitStore
	log      *log.Helper
}

// NewRateLimiter 创建限流器，store 可以就是 fallback 本身
func NewRateLimiter(store RateLimitStore, fallback LocalRateLimitStore, logger log.Logger) *RateLimiter {
	return &RateLimiter{
		store:    store,
		fallback: fallback,
		log:      log.NewHelper(logger),
	}
}

func rateLimitKey(userID int64, eventType EventType) string {
	return fmt.Sprintf("gamification:ratelimit:%d:%s", userID, eventType)
}

// Allow 超过窗口上限时返回带 retry_after 的 ErrRateLimited
func (r *RateLimiter) Allow(ctx context.Context, userID int64, eventType EventType) error {
	rule, ok := RateLimitRuleFor(eventType)
	if !ok {
		return nil
	}
	key := rateLimitKey(userID, eventType)

	count, ttl, err := r.store.Hit(ctx, key, rule.Window)
	if err != nil {
		r.log.WithContext(ctx).Warnf("Rate limit store unavailable, using local counters, key: %s, error: %v", key, err)
		count, ttl, err = r.fallback.Hit(ctx, key, rule.Window)
		if err != nil {
			// 两个存储都不可用时放行，避免限流故障阻断全部上报
			r.log.WithContext(ctx).Errorf("Failed to count rate limit hit, key: %s, error: %v", key, err)
			return nil
		}
	}
	if count > rule.Max {
		if ttl <= 0 {
			ttl = rule.Window
		}
		tracing.AddSpanEvent(ctx, "rate_limit.exceeded", map[string]interface{}{
			"event_type": string(eventType),
			"count":      count,
		})
		r.log.WithContext(ctx).Infof("Rate limit exceeded, user_id: %d, event_type: %s, count: %d, retry_after: %s", userID, eventType, count, ttl)
		return NewRateLimitedError(ttl)
	}
	return nil
}
