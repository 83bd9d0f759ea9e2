package biz

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"gamification/internal/conf"
	"gamification/internal/pkg/tracing"

	"github.com/go-kratos/kratos/v2/log"
	"golang.org/x/sync/errgroup"
)

// maxEventDepth 内部派生事件（徽章获得、升级）的最大嵌套深度
const maxEventDepth = 3

const (
	defaultLeaderboardSize = 10
	maxLeaderboardSize     = 100
)

// EventResult 一次事件处理的汇总，包含派生事件的奖励
type EventResult struct {
	EventType     EventType      `json:"event_type"`
	UserID        int64          `json:"user_id"`
	XPAwarded     int64          `json:"xp_awarded"`
	PointsAwarded int64          `json:"points_awarded"`
	TotalXP       int64          `json:"total_xp"`
	Level         int            `json:"level"`
	LeveledUp     bool           `json:"leveled_up"`
	Duplicate     bool           `json:"duplicate"`
	Streak        *StreakOutcome `json:"streak,omitempty"`
	BadgesEarned  []string       `json:"badges_earned"`
}

func (r *EventResult) merge(child *EventResult) {
	if child == nil {
		return
	}
	r.XPAwarded += child.XPAwarded
	r.PointsAwarded += child.PointsAwarded
	r.BadgesEarned = append(r.BadgesEarned, child.BadgesEarned...)
}

// BatchResult 批量上报中单个事件的结果
type BatchResult struct {
	Index  int
	Result *EventResult
	Err    error
}

// Summary 用户概要
type Summary struct {
	UserID           int64            `json:"user_id"`
	DisplayName      string           `json:"display_name"`
	TotalXP          int64            `json:"total_xp"`
	Level            int              `json:"level"`
	Title            string           `json:"title"`
	LevelProgress    float64          `json:"level_progress"`
	XPToNextLevel    int64            `json:"xp_to_next_level"`
	Streak           int              `json:"streak"`
	LongestStreak    int              `json:"longest_streak"`
	LastActivityDate *time.Time       `json:"last_activity_date,omitempty"`
	Tier             SubscriptionTier `json:"tier"`
	AvailablePoints  int64            `json:"available_points"`
	PointsMonthly    int64            `json:"points_monthly"`
	PointsUsed       int64            `json:"points_used"`
	PointsEarned     int64            `json:"points_earned"`
	BadgeCount       int64            `json:"badge_count"`
	ProfilePercent   int              `json:"profile_percent"`
}

// LeaderboardEntry 排行榜一行
type LeaderboardEntry struct {
	Rank        int    `json:"rank"`
	UserID      int64  `json:"user_id"`
	DisplayName string `json:"display_name"`
	TotalXP     int64  `json:"total_xp"`
	Level       int    `json:"level"`
	Title       string `json:"title"`
}

// EventManager 事件处理编排：经验、积分、连胜、徽章、派生事件、缓存失效、推送
type EventManager struct {
	gateway   *AuthGateway
	tx        Transaction
	devRepo   DeveloperRepository
	stats     StatsRepository
	xp        XPLedgerRepository
	points    *PointsUsecase
	streaks   *StreakUsecase
	badges    *BadgeEvaluator
	settings  *SettingsUsecase
	cache     *CacheLayer
	publisher Publisher
	clock     Clock
	loc       *time.Location
	workers   int
	log       *log.Helper
}

// NewEventManager 创建事件编排器
func NewEventManager(gateway *AuthGateway, tx Transaction, devRepo DeveloperRepository, stats StatsRepository,
	xp XPLedgerRepository, points *PointsUsecase, streaks *StreakUsecase, badges *BadgeEvaluator,
	settings *SettingsUsecase, cache *CacheLayer, publisher Publisher, clock Clock,
	c *conf.Gamification, logger log.Logger) *EventManager {
	workers := c.Workers
	if workers <= 0 {
		workers = 4
	}
	return &EventManager{
		gateway:   gateway,
		tx:        tx,
		devRepo:   devRepo,
		stats:     stats,
		xp:        xp,
		points:    points,
		streaks:   streaks,
		badges:    badges,
		settings:  settings,
		cache:     cache,
		publisher: publisher,
		clock:     clock,
		loc:       c.Location(),
		workers:   workers,
		log:       log.NewHelper(logger),
	}
}

// SubmitEvent 安全检查失败时返回错误；之后各步骤的失败只记录日志
func (m *EventManager) SubmitEvent(ctx context.Context, creds Credentials, ev Event) (*EventResult, error) {
	ctx, span := tracing.StartSpan(ctx, "EventManager.SubmitEvent")
	defer span.End()
	tracing.AddSpanTags(ctx, map[string]interface{}{"event_type": ev.Type, "user_id": ev.Data.UserID})

	if _, err := m.gateway.Admit(ctx, creds, ev); err != nil {
		return nil, err
	}
	return m.process(ctx, ev, 0), nil
}

// SubmitBatch 同一用户的事件按顺序处理，不同用户之间并发
func (m *EventManager) SubmitBatch(ctx context.Context, creds Credentials, events []Event) []BatchResult {
	results := make([]BatchResult, len(events))
	byUser := make(map[int64][]int)
	var order []int64
	for i, ev := range events {
		results[i].Index = i
		if _, ok := byUser[ev.Data.UserID]; !ok {
			order = append(order, ev.Data.UserID)
		}
		byUser[ev.Data.UserID] = append(byUser[ev.Data.UserID], i)
	}

	var g errgroup.Group
	g.SetLimit(m.workers)
	for _, userID := range order {
		indexes := byUser[userID]
		g.Go(func() error {
			for _, i := range indexes {
				res, err := m.SubmitEvent(ctx, creds, events[i])
				results[i].Result = res
				results[i].Err = err
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Process 处理已经通过安全检查的事件，供内部调用
func (m *EventManager) Process(ctx context.Context, ev Event) (*EventResult, error) {
	return m.process(ctx, ev, 0), nil
}

// process 之后各步骤的故障只记录日志，不返回给调用方
func (m *EventManager) process(ctx context.Context, ev Event, depth int) *EventResult {
	userID := ev.Data.UserID
	now := m.clock.Now()
	logger := m.log.WithContext(ctx)

	res := &EventResult{EventType: ev.Type, UserID: userID, BadgesEarned: []string{}}
	before, err := m.devRepo.Get(ctx, userID)
	if err != nil {
		// 已通过安全检查，内部故障只记录
		logger.Errorf("Failed to load developer, user_id: %d, event_type: %s, error: %v", userID, ev.Type, err)
		return res
	}
	settings := m.settings.Active(ctx)

	// 1. 经验
	xpAwarded, duplicate, err := m.awardXP(ctx, ev, settings, now)
	if err != nil {
		logger.Errorf("XP step failed, user_id: %d, event_type: %s, error: %v", userID, ev.Type, err)
	}
	res.XPAwarded += xpAwarded
	res.Duplicate = duplicate

	// 2. 积分
	entry, err := m.points.awardWith(ctx, userID, func(ctx context.Context, dev *Developer) (*PointsAward, error) {
		return m.bonusFor(ctx, ev, dev, now)
	})
	if err != nil {
		logger.Errorf("Points step failed, user_id: %d, event_type: %s, error: %v", userID, ev.Type, err)
	} else if entry != nil {
		res.PointsAwarded += entry.Amount
	}

	// 3. 连胜
	if IsStreakEligible(ev.Type) {
		outcome, err := m.streaks.RecordActivity(ctx, userID, now)
		if err != nil {
			logger.Errorf("Streak step failed, user_id: %d, event_type: %s, error: %v", userID, ev.Type, err)
		} else {
			res.Streak = outcome
			res.XPAwarded += outcome.MilestoneXP
			if outcome.MilestoneXP > 0 {
				publishAsync(ctx, m.publisher, m.log, &GamificationUpdate{
					Kind:   UpdateStreakMilestone,
					UserID: userID,
					Email:  before.Email,
					XP:     outcome.MilestoneXP,
					Streak: outcome.Streak,
				}, now)
			}
		}
	}

	// 4. 徽章
	eval, err := m.badges.Evaluate(ctx, userID, EventContext{Type: ev.Type, Data: ev.Data, At: now})
	if err != nil {
		logger.Errorf("Badge step failed, user_id: %d, event_type: %s, error: %v", userID, ev.Type, err)
	} else {
		res.XPAwarded += eval.XP
		for _, def := range eval.Awarded {
			res.BadgesEarned = append(res.BadgesEarned, def.ID)
		}
	}

	after, err := m.devRepo.Get(ctx, userID)
	if err != nil {
		logger.Errorf("Failed to reload developer, user_id: %d, error: %v", userID, err)
		after = before
	}
	res.TotalXP = after.TotalXP
	res.Level = after.CurrentLevel
	res.LeveledUp = after.CurrentLevel > before.CurrentLevel

	// 5. 派生事件
	if eval != nil {
		for _, def := range eval.Awarded {
			publishAsync(ctx, m.publisher, m.log, &GamificationUpdate{
				Kind:      UpdateBadgeEarned,
				UserID:    userID,
				Email:     after.Email,
				XP:        def.XPReward,
				BadgeID:   def.ID,
				BadgeName: def.Name,
			}, now)
			m.reenter(ctx, res, Event{Type: EventBadgeEarned, Data: EventData{UserID: userID, BadgeID: def.ID}}, depth)
		}
	}
	if res.LeveledUp {
		publishAsync(ctx, m.publisher, m.log, &GamificationUpdate{
			Kind:    UpdateLevelUp,
			UserID:  userID,
			Email:   after.Email,
			Level:   after.CurrentLevel,
			Title:   LevelTitle(after.CurrentLevel),
			TotalXP: after.TotalXP,
		}, now)
		m.reenter(ctx, res, Event{Type: EventLevelUp, Data: EventData{UserID: userID, NewLevel: after.CurrentLevel}}, depth)
	}

	// 6. 缓存失效
	m.cache.InvalidateUser(ctx, userID)
	m.cache.InvalidateLeaderboard(ctx)

	// 7. 推送
	if depth == 0 {
		publishAsync(ctx, m.publisher, m.log, &GamificationUpdate{
			Kind:      UpdateEventProcessed,
			UserID:    userID,
			Email:     after.Email,
			EventType: ev.Type,
			XP:        res.XPAwarded,
			TotalXP:   res.TotalXP,
			Points:    res.PointsAwarded,
			Level:     res.Level,
			Streak:    after.Streak,
		}, now)
	}

	logger.Infof("Event processed, user_id: %d, event_type: %s, xp: %d, points: %d, badges: %d, depth: %d",
		userID, ev.Type, res.XPAwarded, res.PointsAwarded, len(res.BadgesEarned), depth)
	return res
}

func (m *EventManager) reenter(ctx context.Context, parent *EventResult, ev Event, depth int) {
	if depth+1 > maxEventDepth {
		m.log.WithContext(ctx).Warnf("Derived event dropped at max depth, user_id: %d, event_type: %s", ev.Data.UserID, ev.Type)
		return
	}
	child := m.process(ctx, ev, depth+1)
	parent.merge(child)
	// 派生事件可能继续升级
	if child.Level > parent.Level {
		parent.Level = child.Level
		parent.TotalXP = child.TotalXP
		parent.LeveledUp = true
	} else if child.TotalXP > parent.TotalXP {
		parent.TotalXP = child.TotalXP
	}
}

// awardXP 持锁事务内发放事件经验并更新行为计数；重复的 sourceId 不发经验也不计数
func (m *EventManager) awardXP(ctx context.Context, ev Event, settings *Settings, now time.Time) (int64, bool, error) {
	spec := eventSpecs[ev.Type]
	if spec.source == "" {
		return 0, false, nil
	}
	userID := ev.Data.UserID
	base := settings.XPReward(spec.source)
	sourceID := spec.sourceID(ev.Data, dayKey(now, m.loc))
	policy, _ := SourcePolicy(spec.source)

	var awarded int64
	var duplicate bool
	err := m.tx.InTx(ctx, func(ctx context.Context) error {
		dev, err := m.devRepo.GetForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		if ev.Type == EventProfileSectionUpdated {
			dev.MarkSection(ProfileSection(ev.Data.Section), !ev.Data.Cleared)
		}

		if !policy.Repeatable {
			exists, err := m.xp.Exists(ctx, userID, spec.source, sourceID)
			if err != nil {
				return err
			}
			duplicate = exists
		}
		if duplicate {
			return m.devRepo.Save(ctx, dev)
		}

		amount := ScaledXP(base, settings.Tier(dev.SubscriptionTier).XPMultiplier, TimeMultiplier(dev.LastActivityDate, now))
		if amount > 0 {
			if err := ValidateAward(spec.source, amount, sourceID); err != nil {
				return err
			}
			entry := NewXPLedgerEntry(userID, spec.source, amount, sourceID, string(ev.Type), now)
			if err := m.xp.Append(ctx, entry); err != nil {
				return err
			}
			dev.applyXP(amount)
			awarded = amount
		}
		if err := m.devRepo.Save(ctx, dev); err != nil {
			return err
		}
		return m.recordStats(ctx, ev, spec, now)
	})
	if stderrors.Is(err, ErrDuplicateAward) {
		return 0, true, nil
	}
	if err != nil {
		return 0, false, err
	}
	if duplicate {
		m.log.WithContext(ctx).Infof("Duplicate event ignored, user_id: %d, event_type: %s, source_id: %s", userID, ev.Type, sourceID)
	}
	return awarded, duplicate, nil
}

func (m *EventManager) recordStats(ctx context.Context, ev Event, spec eventSpec, now time.Time) error {
	stats, err := m.stats.Get(ctx, ev.Data.UserID)
	if err != nil {
		return err
	}
	stats.Incr(spec.activity)
	if spec.streakEligible && isWeekend(now.In(m.loc)) {
		stats.Incr(ActivityWeekendActivities)
	}
	if ev.Type == EventCVAnalysisCompleted && ev.Data.Score != nil && *ev.Data.Score > stats.BestCVScore {
		stats.BestCVScore = *ev.Data.Score
	}
	return m.stats.Save(ctx, stats)
}

// bonusFor 事件对应的奖励积分，在积分事务内用最新聚合计算
func (m *EventManager) bonusFor(ctx context.Context, ev Event, dev *Developer, now time.Time) (*PointsAward, error) {
	switch ev.Type {
	case EventDailyLogin:
		// 按今天登录之后的连胜计算，已中断的连胜不再计奖
		next, _ := NextStreak(StreakState{
			Streak:        dev.Streak,
			LongestStreak: dev.LongestStreak,
			LastActivity:  dev.LastActivityDate,
		}, now, m.loc)
		bonus := StreakBonus(next.Streak)
		if bonus == 0 {
			return nil, nil
		}
		return &PointsAward{
			Source:      PointsSourceStreakBonus,
			Amount:      bonus,
			SourceID:    "login_" + dayKey(now, m.loc),
			Description: fmt.Sprintf("%d day streak", next.Streak),
		}, nil
	case EventLevelUp:
		// 只认可已经达到的等级
		if dev.CurrentLevel < ev.Data.NewLevel {
			return nil, nil
		}
		bonus := int64(5 * ev.Data.NewLevel)
		if bonus > 25 {
			bonus = 25
		}
		return &PointsAward{
			Source:      PointsSourceLevelBonus,
			Amount:      bonus,
			SourceID:    fmt.Sprintf("level_%d", ev.Data.NewLevel),
			Description: fmt.Sprintf("reached level %d", ev.Data.NewLevel),
		}, nil
	case EventBadgeEarned:
		def, ok := m.badges.Catalog().Get(ev.Data.BadgeID)
		if !ok {
			return nil, nil
		}
		has, err := m.badges.HasBadge(ctx, dev.ID, def.ID)
		if err != nil || !has {
			return nil, err
		}
		bonus := def.XPReward / 10
		if bonus > 100 {
			bonus = 100
		}
		if bonus <= 0 {
			return nil, nil
		}
		return &PointsAward{
			Source:      PointsSourceAchievement,
			Amount:      bonus,
			SourceID:    def.ID,
			Description: "badge " + def.Name,
		}, nil
	case EventChallengeCompleted:
		return &PointsAward{
			Source:      PointsSourceBonus,
			Amount:      10,
			SourceID:    "challenge_" + ev.Data.ChallengeID,
			Description: "challenge completed",
		}, nil
	case EventAchievementUnlocked:
		return &PointsAward{
			Source:      PointsSourceAchievement,
			Amount:      20,
			SourceID:    ev.Data.AchievementID,
			Description: "achievement unlocked",
		}, nil
	}
	return nil, nil
}

// Summary 用户概要，带缓存
func (m *EventManager) Summary(ctx context.Context, userID int64) (*Summary, error) {
	return GetOrLoad(ctx, m.cache, SummaryCacheKey(userID), func(ctx context.Context) (*Summary, error) {
		dev, err := m.devRepo.Get(ctx, userID)
		if err != nil {
			return nil, err
		}
		count, err := m.badges.CountBadges(ctx, userID)
		if err != nil {
			return nil, err
		}
		s := &Summary{
			UserID:           dev.ID,
			DisplayName:      dev.DisplayName,
			TotalXP:          dev.TotalXP,
			Level:            dev.CurrentLevel,
			Title:            LevelTitle(dev.CurrentLevel),
			LevelProgress:    dev.LevelProgress,
			Streak:           dev.Streak,
			LongestStreak:    dev.LongestStreak,
			LastActivityDate: dev.LastActivityDate,
			Tier:             dev.SubscriptionTier,
			AvailablePoints:  dev.AvailablePoints(),
			PointsMonthly:    dev.PointsMonthly,
			PointsUsed:       dev.PointsUsed,
			PointsEarned:     dev.PointsEarned,
			BadgeCount:       count,
			ProfilePercent:   dev.ProfileCompleteness(),
		}
		if dev.CurrentLevel < MaxLevel {
			s.XPToNextLevel = XPForLevel(dev.CurrentLevel+1) - dev.TotalXP
		}
		return s, nil
	})
}

// Leaderboard 经验排行榜，带缓存
func (m *EventManager) Leaderboard(ctx context.Context, limit int) ([]*LeaderboardEntry, error) {
	if limit <= 0 {
		limit = defaultLeaderboardSize
	}
	if limit > maxLeaderboardSize {
		limit = maxLeaderboardSize
	}
	return GetOrLoad(ctx, m.cache, LeaderboardCacheKey(limit), func(ctx context.Context) ([]*LeaderboardEntry, error) {
		devs, err := m.devRepo.TopByXP(ctx, limit)
		if err != nil {
			return nil, err
		}
		entries := make([]*LeaderboardEntry, 0, len(devs))
		for i, d := range devs {
			entries = append(entries, &LeaderboardEntry{
				Rank:        i + 1,
				UserID:      d.ID,
				DisplayName: d.DisplayName,
				TotalXP:     d.TotalXP,
				Level:       d.CurrentLevel,
				Title:       LevelTitle(d.CurrentLevel),
			})
		}
		return entries, nil
	})
}

// XPHistory 经验流水分页
func (m *EventManager) XPHistory(ctx context.Context, userID int64, page, pageSize int) ([]*XPLedgerEntry, int64, error) {
	page, pageSize = normalizePage(page, pageSize)
	return m.xp.ListByUser(ctx, userID, page, pageSize)
}
