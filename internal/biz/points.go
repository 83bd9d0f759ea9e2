package biz

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"gamification/internal/pkg/tracing"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/shopspring/decimal"
)

// SpendAction 可消耗积分的付费功能
type SpendAction string

const (
	ActionCVAnalysis      SpendAction = "CV_ANALYSIS"
	ActionCoverLetter     SpendAction = "COVER_LETTER"
	ActionCVDescription   SpendAction = "CV_DESCRIPTION"
	ActionReadmeAnalysis  SpendAction = "README_ANALYSIS"
	ActionProjectIdeas    SpendAction = "PROJECT_IDEAS"
	ActionOutreachMessage SpendAction = "OUTREACH_MESSAGE"
	ActionInterviewPrep   SpendAction = "INTERVIEW_PREP"
)

var defaultPointsCosts = map[SpendAction]int64{
	ActionCVAnalysis:      10,
	ActionCoverLetter:     5,
	ActionCVDescription:   3,
	ActionReadmeAnalysis:  5,
	ActionProjectIdeas:    4,
	ActionOutreachMessage: 3,
	ActionInterviewPrep:   8,
}

// DefaultPointsCosts 默认功能价格表
func DefaultPointsCosts() map[SpendAction]int64 {
	out := make(map[SpendAction]int64, len(defaultPointsCosts))
	for k, v := range defaultPointsCosts {
		out[k] = v
	}
	return out
}

// PointsSource 积分流水类别
type PointsSource string

const (
	PointsSourceStreakBonus  PointsSource = "STREAK_BONUS"
	PointsSourceLevelBonus   PointsSource = "LEVEL_BONUS"
	PointsSourceBonus        PointsSource = "BONUS"
	PointsSourceAchievement  PointsSource = "ACHIEVEMENT"
	PointsSourceSpend        PointsSource = "SPEND"
	PointsSourceMonthlyReset PointsSource = "MONTHLY_RESET"
)

var pointsAwardCaps = map[PointsSource]int64{
	PointsSourceStreakBonus: 50,
	PointsSourceLevelBonus:  25,
	PointsSourceBonus:       100,
	PointsSourceAchievement: 100,
}

// AvailablePoints max(0, monthly - used + earned)
func AvailablePoints(monthly, used, earned int64) int64 {
	avail := monthly - used + earned
	if avail < 0 {
		return 0
	}
	return avail
}

// EffectiveCost ceil(base * efficiency)，使用十进制避免 10*0.9 被浮点误差抬到 10
func EffectiveCost(action SpendAction, tier TierDefinition, costs map[SpendAction]int64) (int64, error) {
	base, ok := costs[action]
	if !ok {
		return 0, ErrUnknownAction.WithMetadata(map[string]string{"action": string(action)})
	}
	efficiency := tier.Efficiency
	if efficiency.IsZero() {
		efficiency = decimal.NewFromInt(1)
	}
	return decimal.NewFromInt(base).Mul(efficiency).Ceil().IntPart(), nil
}

// PointsAward 一笔积分奖励
type PointsAward struct {
	Source      PointsSource
	Amount      int64
	SourceID    string
	Description string
}

// ValidatePointsAward 校验积分奖励
func ValidatePointsAward(award PointsAward) error {
	limit, ok := pointsAwardCaps[award.Source]
	if !ok || award.Amount <= 0 {
		return ErrInvalidAmount.WithMetadata(map[string]string{"source": string(award.Source)})
	}
	if award.Amount > limit {
		return ErrExceedsSourceMaximum.WithMetadata(map[string]string{
			"source": string(award.Source),
			"max":    fmt.Sprint(limit),
		})
	}
	if award.Source == PointsSourceAchievement && award.SourceID == "" {
		return ErrMissingSourceID.WithMetadata(map[string]string{"source": string(award.Source)})
	}
	return nil
}

// PointsLedgerEntry 积分流水，负数为消费
type PointsLedgerEntry struct {
	ID          int64        `gorm:"column:id;primaryKey;autoIncrement:false" json:"id"`
	UserID      int64        `gorm:"column:user_id;not null;index:idx_points_user_created;uniqueIndex:uk_points_dedupe" json:"user_id"`
	Amount      int64        `gorm:"column:amount;not null" json:"amount"`
	Source      PointsSource `gorm:"column:source;type:varchar(32);not null" json:"source"`
	SourceID    string       `gorm:"column:source_id;type:varchar(128)" json:"source_id"`
	DedupeKey   *string      `gorm:"column:dedupe_key;type:varchar(192);uniqueIndex:uk_points_dedupe" json:"-"`
	Description string       `gorm:"column:description;type:varchar(255)" json:"description"`
	CreatedAt   time.Time    `gorm:"column:created_at;not null;index:idx_points_user_created" json:"created_at"`
}

func (PointsLedgerEntry) TableName() string {
	return "points_ledger"
}

// PointsLedgerRepository 积分流水存储
type PointsLedgerRepository interface {
	// Append 唯一约束冲突时返回 ErrDuplicateAward
	Append(ctx context.Context, entry *PointsLedgerEntry) error
	Exists(ctx context.Context, userID int64, source PointsSource, sourceID string) (bool, error)
	ListByUser(ctx context.Context, userID int64, page, pageSize int) ([]*PointsLedgerEntry, int64, error)
}

// SpendResult 消费结果，余额不足不是错误
type SpendResult struct {
	Approved  bool        `json:"approved"`
	Action    SpendAction `json:"action"`
	Cost      int64       `json:"cost"`
	Available int64       `json:"available"`
	Reason    string      `json:"reason,omitempty"`
}

// PointsUsecase 积分账本
type PointsUsecase struct {
	tx        Transaction
	devRepo   DeveloperRepository
	ledger    PointsLedgerRepository
	settings  *SettingsUsecase
	cache     *CacheLayer
	publisher Publisher
	clock     Clock
	log       *log.Helper
}

// NewPointsUsecase 创建积分业务逻辑实例
func NewPointsUsecase(tx Transaction, devRepo DeveloperRepository, ledger PointsLedgerRepository, settings *SettingsUsecase,
	cache *CacheLayer, publisher Publisher, clock Clock, logger log.Logger) *PointsUsecase {
	return &PointsUsecase{
		tx:        tx,
		devRepo:   devRepo,
		ledger:    ledger,
		settings:  settings,
		cache:     cache,
		publisher: publisher,
		clock:     clock,
		log:       log.NewHelper(logger),
	}
}

// Spend 原子地检查余额并扣减
func (uc *PointsUsecase) Spend(ctx context.Context, userID int64, action SpendAction) (*SpendResult, error) {
	ctx, span := tracing.StartSpan(ctx, "PointsUsecase.Spend")
	defer span.End()
	tracing.AddSpanTags(ctx, map[string]interface{}{"user_id": userID, "action": action})

	settings := uc.settings.Active(ctx)
	if _, ok := settings.PointsCosts[action]; !ok {
		return nil, ErrUnknownAction.WithMetadata(map[string]string{"action": string(action)})
	}

	var result *SpendResult
	var email string
	err := uc.tx.InTx(ctx, func(ctx context.Context) error {
		dev, err := uc.devRepo.GetForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		cost, err := EffectiveCost(action, settings.Tier(dev.SubscriptionTier), settings.PointsCosts)
		if err != nil {
			return err
		}
		available := dev.AvailablePoints()
		if available < cost {
			result = &SpendResult{Action: action, Cost: cost, Available: available, Reason: "insufficient points"}
			return nil
		}

		dev.PointsUsed += cost
		if err := uc.devRepo.Save(ctx, dev); err != nil {
			return err
		}
		entry := &PointsLedgerEntry{
			UserID:      userID,
			Amount:      -cost,
			Source:      PointsSourceSpend,
			SourceID:    string(action),
			Description: "spent on " + string(action),
			CreatedAt:   uc.clock.Now(),
		}
		if err := uc.ledger.Append(ctx, entry); err != nil {
			return err
		}
		email = dev.Email
		result = &SpendResult{Approved: true, Action: action, Cost: cost, Available: dev.AvailablePoints()}
		return nil
	})
	if err != nil {
		uc.log.WithContext(ctx).Errorf("Failed to spend points, user_id: %d, action: %s, error: %v", userID, action, err)
		return nil, err
	}

	if !result.Approved {
		uc.log.WithContext(ctx).Infof("Spend declined, user_id: %d, action: %s, cost: %d, available: %d", userID, action, result.Cost, result.Available)
		return result, nil
	}

	uc.cache.InvalidateUser(ctx, userID)
	publishAsync(ctx, uc.publisher, uc.log, &GamificationUpdate{
		Kind:      UpdatePointsSpent,
		UserID:    userID,
		Email:     email,
		Action:    action,
		Points:    -result.Cost,
		Available: result.Available,
	}, uc.clock.Now())
	uc.log.WithContext(ctx).Infof("Points spent, user_id: %d, action: %s, cost: %d", userID, action, result.Cost)
	return result, nil
}

// Award 发放积分；已发放过的 sourceId 返回 nil, nil
func (uc *PointsUsecase) Award(ctx context.Context, userID int64, award PointsAward) (*PointsLedgerEntry, error) {
	return uc.awardWith(ctx, userID, func(context.Context, *Developer) (*PointsAward, error) {
		return &award, nil
	})
}

// awardWith 在持锁事务内根据最新聚合计算奖励，build 返回 nil 表示不发放
func (uc *PointsUsecase) awardWith(ctx context.Context, userID int64, build func(ctx context.Context, dev *Developer) (*PointsAward, error)) (*PointsLedgerEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "PointsUsecase.Award")
	defer span.End()

	var entry *PointsLedgerEntry
	err := uc.tx.InTx(ctx, func(ctx context.Context) error {
		dev, err := uc.devRepo.GetForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		award, err := build(ctx, dev)
		if err != nil || award == nil {
			return err
		}
		if err := ValidatePointsAward(*award); err != nil {
			return err
		}
		if award.SourceID != "" {
			exists, err := uc.ledger.Exists(ctx, userID, award.Source, award.SourceID)
			if err != nil {
				return err
			}
			if exists {
				return ErrDuplicateAward
			}
		}

		e := &PointsLedgerEntry{
			UserID:      userID,
			Amount:      award.Amount,
			Source:      award.Source,
			SourceID:    award.SourceID,
			Description: award.Description,
			CreatedAt:   uc.clock.Now(),
		}
		if award.SourceID != "" {
			key := string(award.Source) + ":" + award.SourceID
			e.DedupeKey = &key
		}
		if err := uc.ledger.Append(ctx, e); err != nil {
			return err
		}
		dev.PointsEarned += award.Amount
		if err := uc.devRepo.Save(ctx, dev); err != nil {
			return err
		}
		entry = e
		return nil
	})
	if stderrors.Is(err, ErrDuplicateAward) {
		uc.log.WithContext(ctx).Infof("Points award already granted, user_id: %d", userID)
		return nil, nil
	}
	if err != nil {
		uc.log.WithContext(ctx).Errorf("Failed to award points, user_id: %d, error: %v", userID, err)
		return nil, err
	}
	if entry != nil {
		uc.log.WithContext(ctx).Infof("Points awarded, user_id: %d, source: %s, amount: %d", userID, entry.Source, entry.Amount)
	}
	return entry, nil
}

// History 积分流水分页
func (uc *PointsUsecase) History(ctx context.Context, userID int64, page, pageSize int) ([]*PointsLedgerEntry, int64, error) {
	page, pageSize = normalizePage(page, pageSize)
	return uc.ledger.ListByUser(ctx, userID, page, pageSize)
}

// Register 创建开发者并发放所选订阅等级的月度额度
func (uc *PointsUsecase) Register(ctx context.Context, email, displayName string, tier SubscriptionTier) (*Developer, error) {
	ctx, span := tracing.StartSpan(ctx, "PointsUsecase.Register")
	defer span.End()

	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, invalidData("email", "a valid email is required")
	}
	if tier == "" {
		tier = TierFree
	}
	settings := uc.settings.Active(ctx)
	if _, ok := settings.Tiers[tier]; !ok {
		return nil, invalidData("tier", "unknown subscription tier")
	}

	dev := &Developer{
		Email:            email,
		DisplayName:      strings.TrimSpace(displayName),
		CurrentLevel:     1,
		SubscriptionTier: tier,
		PointsMonthly:    settings.Tier(tier).MonthlyPoints,
	}
	if err := uc.devRepo.Create(ctx, dev); err != nil {
		uc.log.WithContext(ctx).Errorf("Failed to register developer, email: %s, error: %v", email, err)
		return nil, err
	}
	uc.cache.InvalidateLeaderboard(ctx)
	uc.log.WithContext(ctx).Infof("Developer registered, user_id: %d, tier: %s", dev.ID, tier)
	return dev, nil
}

// ChangeTier 切换订阅等级并立即发放新等级的月度额度
func (uc *PointsUsecase) ChangeTier(ctx context.Context, userID int64, tier SubscriptionTier) (*Developer, error) {
	settings := uc.settings.Active(ctx)
	if _, ok := settings.Tiers[tier]; !ok {
		return nil, invalidData("tier", "unknown subscription tier")
	}
	var updated *Developer
	err := uc.tx.InTx(ctx, func(ctx context.Context) error {
		dev, err := uc.devRepo.GetForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		dev.SubscriptionTier = tier
		dev.PointsMonthly = settings.Tier(tier).MonthlyPoints
		updated = dev
		return uc.devRepo.Save(ctx, dev)
	})
	if err != nil {
		uc.log.WithContext(ctx).Errorf("Failed to change tier, user_id: %d, tier: %s, error: %v", userID, tier, err)
		return nil, err
	}
	uc.cache.InvalidateUser(ctx, userID)
	uc.log.WithContext(ctx).Infof("Subscription tier changed, user_id: %d, tier: %s", userID, tier)
	return updated, nil
}

// ResetMonthlyCycle 开始新的计费周期：月度额度重置，未用完的已赚取积分保留
func (uc *PointsUsecase) ResetMonthlyCycle(ctx context.Context, userID int64) (*Developer, error) {
	settings := uc.settings.Active(ctx)
	var updated *Developer
	err := uc.tx.InTx(ctx, func(ctx context.Context) error {
		dev, err := uc.devRepo.GetForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		// 超出月度额度的部分已经消耗了赚取的积分
		if over := dev.PointsUsed - dev.PointsMonthly; over > 0 {
			dev.PointsEarned -= over
			if dev.PointsEarned < 0 {
				dev.PointsEarned = 0
			}
		}
		dev.PointsUsed = 0
		dev.PointsMonthly = settings.Tier(dev.SubscriptionTier).MonthlyPoints
		if err := uc.devRepo.Save(ctx, dev); err != nil {
			return err
		}
		updated = dev
		return uc.ledger.Append(ctx, &PointsLedgerEntry{
			UserID:      userID,
			Amount:      0,
			Source:      PointsSourceMonthlyReset,
			Description: fmt.Sprintf("monthly allotment %d", dev.PointsMonthly),
			CreatedAt:   uc.clock.Now(),
		})
	})
	if err != nil {
		uc.log.WithContext(ctx).Errorf("Failed to reset monthly cycle, user_id: %d, error: %v", userID, err)
		return nil, err
	}
	uc.cache.InvalidateUser(ctx, userID)
	return updated, nil
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}
