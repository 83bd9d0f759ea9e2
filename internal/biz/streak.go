package biz

import (
	"context"
	"fmt"
	"time"

	"gamification/internal/conf"
	"gamification/internal/pkg/tracing"

	"github.com/go-kratos/kratos/v2/log"
)

// StreakStatus 一次活动对连胜的影响
type StreakStatus string

const (
	StreakNew       StreakStatus = "NEW"
	StreakExtended  StreakStatus = "EXTENDED"
	StreakBroken    StreakStatus = "BROKEN"
	StreakUnchanged StreakStatus = "UNCHANGED"
)

const (
	recoveryCostPerDay = 10
	maxRecoveryCost    = 500
)

// StreakState 连胜相关字段
type StreakState struct {
	Streak        int
	LongestStreak int
	LastActivity  *time.Time
}

// NextStreak 按 loc 时区的自然日推进连胜
func NextStreak(state StreakState, now time.Time, loc *time.Location) (StreakState, StreakStatus) {
	next := state
	t := now
	next.LastActivity = &t

	if state.LastActivity == nil || state.Streak == 0 {
		next.Streak = 1
		if next.LongestStreak < 1 {
			next.LongestStreak = 1
		}
		return next, StreakNew
	}

	today := calendarDay(now, loc)
	last := calendarDay(*state.LastActivity, loc)
	switch {
	case !last.Before(today):
		// 同一天或时钟回拨
		return next, StreakUnchanged
	case last.Equal(today.AddDate(0, 0, -1)):
		next.Streak = state.Streak + 1
		if next.Streak > next.LongestStreak {
			next.LongestStreak = next.Streak
		}
		return next, StreakExtended
	default:
		next.Streak = 1
		if next.LongestStreak < 1 {
			next.LongestStreak = 1
		}
		return next, StreakBroken
	}
}

// RecoveryCost 连胜恢复价格 min(streak*10, 500)
func RecoveryCost(streak int) int64 {
	cost := int64(streak) * recoveryCostPerDay
	if cost > maxRecoveryCost {
		cost = maxRecoveryCost
	}
	return cost
}

// StreakOutcome 一次活动后的连胜结果
type StreakOutcome struct {
	Status        StreakStatus `json:"status"`
	Streak        int          `json:"streak"`
	LongestStreak int          `json:"longest_streak"`
	MilestoneXP   int64        `json:"milestone_xp"`
	OldLevel      int          `json:"-"`
	NewLevel      int          `json:"-"`
}

// RecoveryResult 连胜恢复结果
type RecoveryResult struct {
	Cost    int64 `json:"cost"`
	Streak  int   `json:"streak"`
	TotalXP int64 `json:"total_xp"`
	Level   int   `json:"level"`
}

// StreakUsecase 连胜引擎
type StreakUsecase struct {
	tx      Transaction
	devRepo DeveloperRepository
	stats   StatsRepository
	xp      XPLedgerRepository
	loc     *time.Location
	log     *log.Helper
}

// NewStreakUsecase 创建连胜业务逻辑实例
func NewStreakUsecase(tx Transaction, devRepo DeveloperRepository, stats StatsRepository, xp XPLedgerRepository,
	c *conf.Gamification, logger log.Logger) *StreakUsecase {
	return &StreakUsecase{
		tx:      tx,
		devRepo: devRepo,
		stats:   stats,
		xp:      xp,
		loc:     c.Location(),
		log:     log.NewHelper(logger),
	}
}

// Location 计算自然日使用的时区
func (uc *StreakUsecase) Location() *time.Location {
	return uc.loc
}

// RecordActivity 记录一次活动，推进连胜并在里程碑发放经验，24 小时内同一里程碑只发一次
func (uc *StreakUsecase) RecordActivity(ctx context.Context, userID int64, now time.Time) (*StreakOutcome, error) {
	ctx, span := tracing.StartSpan(ctx, "StreakUsecase.RecordActivity")
	defer span.End()
	tracing.AddSpanTags(ctx, map[string]interface{}{"user_id": userID})

	var outcome *StreakOutcome
	err := uc.tx.InTx(ctx, func(ctx context.Context) error {
		dev, err := uc.devRepo.GetForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		next, status := NextStreak(StreakState{
			Streak:        dev.Streak,
			LongestStreak: dev.LongestStreak,
			LastActivity:  dev.LastActivityDate,
		}, now, uc.loc)

		dev.Streak = next.Streak
		dev.LongestStreak = next.LongestStreak
		dev.LastActivityDate = next.LastActivity
		outcome = &StreakOutcome{
			Status:        status,
			Streak:        next.Streak,
			LongestStreak: next.LongestStreak,
			OldLevel:      dev.CurrentLevel,
			NewLevel:      dev.CurrentLevel,
		}

		if status != StreakUnchanged {
			stats, err := uc.stats.Get(ctx, userID)
			if err != nil {
				return err
			}
			stats.Incr(ActivityActiveDays)
			if err := uc.stats.Save(ctx, stats); err != nil {
				return err
			}
		}

		if status == StreakExtended {
			if bonus := MilestoneBonus(next.Streak); bonus > 0 {
				granted, err := uc.grantMilestone(ctx, dev, bonus, now)
				if err != nil {
					return err
				}
				if granted {
					outcome.MilestoneXP = bonus
					outcome.OldLevel, outcome.NewLevel = dev.applyXP(bonus)
				}
			}
		}
		return uc.devRepo.Save(ctx, dev)
	})
	if err != nil {
		uc.log.WithContext(ctx).Errorf("Failed to record activity, user_id: %d, error: %v", userID, err)
		return nil, err
	}

	uc.log.WithContext(ctx).Infof("Streak updated, user_id: %d, status: %s, streak: %d", userID, outcome.Status, outcome.Streak)
	return outcome, nil
}

func (uc *StreakUsecase) grantMilestone(ctx context.Context, dev *Developer, bonus int64, now time.Time) (bool, error) {
	sourceID := fmt.Sprintf("streak_%d", dev.Streak)
	if err := ValidateAward(XPSourceStreakBonus, bonus, sourceID); err != nil {
		return false, err
	}
	exists, err := uc.xp.ExistsSince(ctx, dev.ID, XPSourceStreakBonus, sourceID, now.Add(-24*time.Hour))
	if err != nil {
		return false, err
	}
	if exists {
		uc.log.WithContext(ctx).Infof("Milestone bonus already granted, user_id: %d, source_id: %s", dev.ID, sourceID)
		return false, nil
	}
	entry := NewXPLedgerEntry(dev.ID, XPSourceStreakBonus, bonus, sourceID, fmt.Sprintf("%d day streak", dev.Streak), now)
	if err := uc.xp.Append(ctx, entry); err != nil {
		return false, err
	}
	return true, nil
}

// Recover 断签恰好一天时，用经验买回连胜，最后活动时间回填为昨天
func (uc *StreakUsecase) Recover(ctx context.Context, userID int64, now time.Time) (*RecoveryResult, error) {
	ctx, span := tracing.StartSpan(ctx, "StreakUsecase.Recover")
	defer span.End()
	tracing.AddSpanTags(ctx, map[string]interface{}{"user_id": userID})

	var result *RecoveryResult
	err := uc.tx.InTx(ctx, func(ctx context.Context) error {
		dev, err := uc.devRepo.GetForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		if dev.LastActivityDate == nil || dev.Streak == 0 {
			return ErrStreakRecoveryUnavailable
		}
		today := calendarDay(now, uc.loc)
		if !calendarDay(*dev.LastActivityDate, uc.loc).Equal(today.AddDate(0, 0, -2)) {
			return ErrStreakRecoveryUnavailable
		}

		cost := RecoveryCost(dev.Streak)
		if dev.TotalXP < cost {
			return ErrInsufficientXP.WithMetadata(map[string]string{"cost": fmt.Sprint(cost)})
		}
		sourceID := "recovery_" + dayKey(now, uc.loc)
		if err := ValidateAward(XPSourceStreakRecovery, -cost, sourceID); err != nil {
			return err
		}
		entry := NewXPLedgerEntry(userID, XPSourceStreakRecovery, -cost, sourceID, fmt.Sprintf("recovered %d day streak", dev.Streak), now)
		if err := uc.xp.Append(ctx, entry); err != nil {
			return err
		}

		dev.applyXP(-cost)
		yesterday := now.AddDate(0, 0, -1)
		dev.LastActivityDate = &yesterday
		if err := uc.devRepo.Save(ctx, dev); err != nil {
			return err
		}
		result = &RecoveryResult{Cost: cost, Streak: dev.Streak, TotalXP: dev.TotalXP, Level: dev.CurrentLevel}
		return nil
	})
	if err != nil {
		uc.log.WithContext(ctx).Warnf("Streak recovery rejected, user_id: %d, error: %v", userID, err)
		return nil, err
	}

	uc.log.WithContext(ctx).Infof("Streak recovered, user_id: %d, cost: %d, streak: %d", userID, result.Cost, result.Streak)
	return result, nil
}
