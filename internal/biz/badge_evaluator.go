package biz

import (
	"context"
	stderrors "errors"
	"time"

	"gamification/internal/conf"
	"gamification/internal/pkg/tracing"

	"github.com/go-kratos/kratos/v2/log"
)

// EventContext 徽章判定时的事件信息
type EventContext struct {
	Type EventType
	Data EventData
	At   time.Time
}

// BadgeEvaluation 一次判定的结果
type BadgeEvaluation struct {
	Awarded  []*BadgeDefinition
	XP       int64
	OldLevel int
	NewLevel int
}

// badgeFacts 判定条件所需的数据，早期用户名次按需查询
type badgeFacts struct {
	dev        *Developer
	stats      *DeveloperStats
	badgeCount int64
	at         time.Time
	rank       func() (int64, error)
}

// BadgeView 徽章列表中的一项，未获得的隐藏徽章不暴露名称与描述
type BadgeView struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Icon        string        `json:"icon"`
	Rarity      BadgeRarity   `json:"rarity"`
	Category    BadgeCategory `json:"category"`
	XPReward    int64         `json:"xp_reward"`
	Hidden      bool          `json:"hidden"`
	Earned      bool          `json:"earned"`
	EarnedAt    *time.Time    `json:"earned_at,omitempty"`
}

// BadgeEvaluator 徽章判定与发放
type BadgeEvaluator struct {
	catalog *BadgeCatalog
	index   *EventBadgeIndex
	tx      Transaction
	devRepo DeveloperRepository
	stats   StatsRepository
	badges  BadgeRepository
	xp      XPLedgerRepository
	cache   *CacheLayer
	loc     *time.Location
	log     *log.Helper
}

// NewBadgeEvaluator 创建徽章判定器
func NewBadgeEvaluator(catalog *BadgeCatalog, tx Transaction, devRepo DeveloperRepository, stats StatsRepository,
	badges BadgeRepository, xp XPLedgerRepository, cache *CacheLayer, c *conf.Gamification, logger log.Logger) *BadgeEvaluator {
	return &BadgeEvaluator{
		catalog: catalog,
		index:   NewEventBadgeIndex(catalog),
		tx:      tx,
		devRepo: devRepo,
		stats:   stats,
		badges:  badges,
		xp:      xp,
		cache:   cache,
		loc:     c.Location(),
		log:     log.NewHelper(logger),
	}
}

// Catalog 徽章目录
func (e *BadgeEvaluator) Catalog() *BadgeCatalog {
	return e.catalog
}

// Evaluate 发放用户因该事件新满足的全部徽章，每个徽章每个用户至多一次
func (e *BadgeEvaluator) Evaluate(ctx context.Context, userID int64, ec EventContext) (*BadgeEvaluation, error) {
	ctx, span := tracing.StartSpan(ctx, "BadgeEvaluator.Evaluate")
	defer span.End()
	tracing.AddSpanTags(ctx, map[string]interface{}{"user_id": userID, "event_type": ec.Type})

	dev, err := e.devRepo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	result := &BadgeEvaluation{OldLevel: dev.CurrentLevel, NewLevel: dev.CurrentLevel}

	local := ec.At.In(e.loc)
	candidates := e.index.Candidates(ec.Type, PruneContext{At: local, Level: dev.CurrentLevel, Streak: dev.Streak})
	if len(candidates) == 0 {
		return result, nil
	}

	earnedRows, err := e.badges.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	earned := make(map[string]bool, len(earnedRows))
	for _, row := range earnedRows {
		earned[row.BadgeID] = true
	}

	stats, err := e.stats.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	var cachedRank *int64
	facts := &badgeFacts{
		dev:        dev,
		stats:      stats,
		badgeCount: int64(len(earnedRows)),
		at:         local,
		rank: func() (int64, error) {
			if cachedRank == nil {
				r, err := e.devRepo.EarlyAdopterRank(ctx, dev)
				if err != nil {
					return 0, err
				}
				cachedRank = &r
			}
			return *cachedRank, nil
		},
	}

	for _, def := range candidates {
		if earned[def.ID] || def.Hidden {
			continue
		}
		ok, err := e.satisfied(ctx, def, facts)
		if err != nil {
			e.log.WithContext(ctx).Warnf("Failed to evaluate badge, badge_id: %s, user_id: %d, error: %v", def.ID, userID, err)
			continue
		}
		if !ok {
			continue
		}
		awarded, newLevel, err := e.award(ctx, userID, def, ec.At)
		if err != nil {
			e.log.WithContext(ctx).Errorf("Failed to award badge, badge_id: %s, user_id: %d, error: %v", def.ID, userID, err)
			continue
		}
		if !awarded {
			continue
		}
		result.Awarded = append(result.Awarded, def)
		result.XP += def.XPReward
		result.NewLevel = newLevel
		facts.badgeCount++
	}

	if len(result.Awarded) > 0 {
		e.cache.InvalidateUser(ctx, userID)
	}
	return result, nil
}

// satisfied 条件判定；无法识别的条件一律视为不满足
func (e *BadgeEvaluator) satisfied(ctx context.Context, def *BadgeDefinition, f *badgeFacts) (bool, error) {
	switch r := def.Requirement.(type) {
	case ProfileCompletenessRequirement:
		return f.dev.ProfileCompleteness() >= r.MinPercent, nil
	case ActivityCountRequirement:
		return f.stats.Count(r.Activity) >= r.Min, nil
	case CVScoreRequirement:
		return f.stats.BestCVScore >= r.MinScore, nil
	case StreakLengthRequirement:
		return f.dev.Streak >= r.Days, nil
	case LevelReachedRequirement:
		return f.dev.CurrentLevel >= r.Level, nil
	case TotalXPRequirement:
		return f.dev.TotalXP >= r.Min, nil
	case EarlyAdopterRequirement:
		rank, err := f.rank()
		if err != nil {
			return false, err
		}
		return rank > 0 && rank <= r.MaxRank, nil
	case ActivityHourRequirement:
		return hourInRange(f.at.Hour(), r.FromHour, r.ToHour), nil
	case BadgeCountRequirement:
		return f.badgeCount >= r.Min, nil
	case SuggestionsAcceptedRequirement, SuggestionsGeneratedRequirement, ApplicationQualityRequirement,
		BetaParticipationRequirement, FeedbackSubmittedRequirement:
		e.log.WithContext(ctx).Debugf("Badge requirement has no data source yet, badge_id: %s, kind: %s", def.ID, r.Kind())
		return false, nil
	default:
		kind := RequirementKind("<nil>")
		if r != nil {
			kind = r.Kind()
		}
		e.log.WithContext(ctx).Warnf("Skipping badge with unrecognized requirement, badge_id: %s, kind: %s", def.ID, kind)
		return false, nil
	}
}

func hourInRange(hour, from, to int) bool {
	if from <= to {
		return hour >= from && hour < to
	}
	return hour >= from || hour < to
}

// award 一个事务内写入徽章并记入经验；已拥有时返回 false
func (e *BadgeEvaluator) award(ctx context.Context, userID int64, def *BadgeDefinition, at time.Time) (bool, int, error) {
	var newLevel int
	err := e.tx.InTx(ctx, func(ctx context.Context) error {
		dev, err := e.devRepo.GetForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		has, err := e.badges.Has(ctx, userID, def.ID)
		if err != nil {
			return err
		}
		if has {
			return ErrDuplicateAward
		}
		if err := e.badges.UpsertDefinition(ctx, def); err != nil {
			return err
		}
		if err := e.badges.Award(ctx, &UserBadgeAward{UserID: userID, BadgeID: def.ID, EarnedAt: at}); err != nil {
			return err
		}
		newLevel = dev.CurrentLevel
		if def.XPReward <= 0 {
			return nil
		}
		if err := ValidateAward(XPSourceBadge, def.XPReward, def.ID); err != nil {
			return err
		}
		entry := NewXPLedgerEntry(userID, XPSourceBadge, def.XPReward, def.ID, "badge "+def.Name, at)
		if err := e.xp.Append(ctx, entry); err != nil {
			return err
		}
		_, newLevel = dev.applyXP(def.XPReward)
		return e.devRepo.Save(ctx, dev)
	})
	if stderrors.Is(err, ErrDuplicateAward) {
		e.log.WithContext(ctx).Infof("Badge already awarded, badge_id: %s, user_id: %d", def.ID, userID)
		return false, 0, nil
	}
	if err != nil {
		return false, 0, err
	}
	tracing.AddSpanEvent(ctx, "badge.awarded", map[string]interface{}{
		"badge_id": def.ID,
		"xp":       def.XPReward,
	})
	e.log.WithContext(ctx).Infof("Badge awarded, badge_id: %s, user_id: %d, xp: %d", def.ID, userID, def.XPReward)
	return true, newLevel, nil
}

// HasBadge 用户是否拥有徽章
func (e *BadgeEvaluator) HasBadge(ctx context.Context, userID int64, badgeID string) (bool, error) {
	return e.badges.Has(ctx, userID, badgeID)
}

// CountBadges 用户已获得的徽章数
func (e *BadgeEvaluator) CountBadges(ctx context.Context, userID int64) (int64, error) {
	return e.badges.Count(ctx, userID)
}

// ListBadges 全部徽章及用户获得情况
func (e *BadgeEvaluator) ListBadges(ctx context.Context, userID int64) ([]*BadgeView, error) {
	return GetOrLoad(ctx, e.cache, BadgesCacheKey(userID), func(ctx context.Context) ([]*BadgeView, error) {
		rows, err := e.badges.ListByUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		earnedAt := make(map[string]time.Time, len(rows))
		for _, row := range rows {
			earnedAt[row.BadgeID] = row.EarnedAt
		}
		views := make([]*BadgeView, 0, len(e.catalog.All()))
		for _, def := range e.catalog.All() {
			v := &BadgeView{
				ID:          def.ID,
				Name:        def.Name,
				Description: def.Description,
				Icon:        def.Icon,
				Rarity:      def.Rarity,
				Category:    def.Category,
				XPReward:    def.XPReward,
				Hidden:      def.Hidden,
			}
			if t, ok := earnedAt[def.ID]; ok {
				t := t
				v.Earned = true
				v.EarnedAt = &t
			} else if def.Hidden {
				v.Name = "???"
				v.Description = "Keep exploring to reveal this badge"
				v.Icon = "lock"
			}
			views = append(views, v)
		}
		return views, nil
	})
}
