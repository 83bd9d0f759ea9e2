package biz

import (
	"context"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
)

// UpdateKind 推送消息类型
type UpdateKind string

const (
	UpdateEventProcessed  UpdateKind = "EVENT_PROCESSED"
	UpdateBadgeEarned     UpdateKind = "BADGE_EARNED"
	UpdateLevelUp         UpdateKind = "LEVEL_UP"
	UpdateStreakMilestone UpdateKind = "STREAK_MILESTONE"
	UpdatePointsSpent     UpdateKind = "POINTS_SPENT"
)

const publishTimeout = 2 * time.Second

// GamificationUpdate 推送给前端或下游的状态变化
type GamificationUpdate struct {
	ID         string      `json:"id"`
	Kind       UpdateKind  `json:"kind"`
	UserID     int64       `json:"user_id"`
	Email      string      `json:"-"`
	EventType  EventType   `json:"event_type,omitempty"`
	XP         int64       `json:"xp,omitempty"`
	TotalXP    int64       `json:"total_xp,omitempty"`
	Points     int64       `json:"points,omitempty"`
	Available  int64       `json:"available,omitempty"`
	Level      int         `json:"level,omitempty"`
	Title      string      `json:"title,omitempty"`
	Streak     int         `json:"streak,omitempty"`
	BadgeID    string      `json:"badge_id,omitempty"`
	BadgeName  string      `json:"badge_name,omitempty"`
	Action     SpendAction `json:"action,omitempty"`
	OccurredAt time.Time   `json:"occurred_at"`
}

// Publisher 推送通道
type Publisher interface {
	Publish(ctx context.Context, update *GamificationUpdate) error
}

type multiPublisher []Publisher

// NewMultiPublisher 依次投递到所有通道，单个通道失败不影响其他通道
func NewMultiPublisher(publishers ...Publisher) Publisher {
	return multiPublisher(publishers)
}

func (m multiPublisher) Publish(ctx context.Context, update *GamificationUpdate) error {
	var firstErr error
	for _, p := range m {
		if err := p.Publish(ctx, update); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// publishAsync 异步推送，失败只记录日志
func publishAsync(ctx context.Context, p Publisher, logger *log.Helper, update *GamificationUpdate, now time.Time) {
	if p == nil {
		return
	}
	if update.ID == "" {
		update.ID = uuid.NewString()
	}
	if update.OccurredAt.IsZero() {
		update.OccurredAt = now
	}
	// 请求结束后 ctx 会被取消，这里只保留其中的值
	base := context.WithoutCancel(ctx)
	go func() {
		pctx, cancel := context.WithTimeout(base, publishTimeout)
		defer cancel()
		if err := p.Publish(pctx, update); err != nil {
			logger.WithContext(pctx).Warnf("Failed to publish update, kind: %s, user_id: %d, error: %v", update.Kind, update.UserID, err)
		}
	}()
}
