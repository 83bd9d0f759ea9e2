package biz

import (
	"context"
	"encoding/json"
	"time"

	"gamification/internal/pkg/tracing"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/shopspring/decimal"
)

// SettingKey 可在线调整的配置键
type SettingKey string

const (
	SettingPointsCosts       SettingKey = "points_costs"
	SettingXPRewards         SettingKey = "xp_rewards"
	SettingSubscriptionTiers SettingKey = "subscription_tiers"
)

// ParseSettingKey 校验配置键
func ParseSettingKey(key string) (SettingKey, error) {
	switch k := SettingKey(key); k {
	case SettingPointsCosts, SettingXPRewards, SettingSubscriptionTiers:
		return k, nil
	}
	return "", ErrUnknownSetting.WithMetadata(map[string]string{"key": key})
}

// TierDefinition 订阅等级参数
type TierDefinition struct {
	Tier          SubscriptionTier `json:"tier"`
	MonthlyPoints int64            `json:"monthly_points"`
	XPMultiplier  float64          `json:"xp_multiplier"`
	Efficiency    decimal.Decimal  `json:"efficiency"`
	PriceUSD      decimal.Decimal  `json:"price_usd"`
}

var defaultTiers = map[SubscriptionTier]TierDefinition{
	TierFree: {
		Tier: TierFree, MonthlyPoints: 20, XPMultiplier: 1.0,
		Efficiency: decimal.NewFromInt(1), PriceUSD: decimal.Zero,
	},
	TierBasic: {
		Tier: TierBasic, MonthlyPoints: 100, XPMultiplier: 1.1,
		Efficiency: decimal.RequireFromString("0.95"), PriceUSD: decimal.RequireFromString("9.99"),
	},
	TierPro: {
		Tier: TierPro, MonthlyPoints: 300, XPMultiplier: 1.25,
		Efficiency: decimal.RequireFromString("0.90"), PriceUSD: decimal.RequireFromString("19.99"),
	},
	TierEnterprise: {
		Tier: TierEnterprise, MonthlyPoints: 1000, XPMultiplier: 1.5,
		Efficiency: decimal.RequireFromString("0.80"), PriceUSD: decimal.RequireFromString("49.99"),
	},
}

// Settings 合并后的生效配置
type Settings struct {
	PointsCosts map[SpendAction]int64               `json:"points_costs"`
	XPRewards   map[XPSource]int64                  `json:"xp_rewards"`
	Tiers       map[SubscriptionTier]TierDefinition `json:"subscription_tiers"`
	Versions    map[SettingKey]int                  `json:"versions"`
}

// DefaultSettings 内置默认配置
func DefaultSettings() *Settings {
	s := &Settings{
		PointsCosts: DefaultPointsCosts(),
		XPRewards:   DefaultXPRewards(),
		Tiers:       make(map[SubscriptionTier]TierDefinition, len(defaultTiers)),
		Versions:    map[SettingKey]int{},
	}
	for k, v := range defaultTiers {
		s.Tiers[k] = v
	}
	return s
}

// Tier 查询订阅等级参数，未知等级按 FREE 处理
func (s *Settings) Tier(tier SubscriptionTier) TierDefinition {
	if def, ok := s.Tiers[tier]; ok {
		return def
	}
	return s.Tiers[TierFree]
}

// XPReward 查询来源的基础经验
func (s *Settings) XPReward(source XPSource) int64 {
	return s.XPRewards[source]
}

// apply 用存储中的一行覆盖默认值
func (s *Settings) apply(snap *ConfigurationSnapshot) error {
	switch snap.Key {
	case SettingPointsCosts:
		costs, err := decodePointsCosts(snap.Value)
		if err != nil {
			return err
		}
		for k, v := range costs {
			s.PointsCosts[k] = v
		}
	case SettingXPRewards:
		rewards, err := decodeXPRewards(snap.Value)
		if err != nil {
			return err
		}
		for k, v := range rewards {
			s.XPRewards[k] = v
		}
	case SettingSubscriptionTiers:
		tiers, err := decodeTiers(snap.Value)
		if err != nil {
			return err
		}
		for k, v := range tiers {
			v.Tier = k
			s.Tiers[k] = v
		}
	default:
		return ErrUnknownSetting
	}
	s.Versions[snap.Key] = snap.Version
	return nil
}

func decodePointsCosts(raw json.RawMessage) (map[SpendAction]int64, error) {
	var costs map[SpendAction]int64
	if err := json.Unmarshal(raw, &costs); err != nil {
		return nil, invalidData("value", "points_costs must be an object of action to cost")
	}
	for action, cost := range costs {
		if _, ok := defaultPointsCosts[action]; !ok {
			return nil, invalidData("value", "unknown action "+string(action))
		}
		if cost < 0 {
			return nil, invalidData("value", "cost must not be negative")
		}
	}
	return costs, nil
}

func decodeXPRewards(raw json.RawMessage) (map[XPSource]int64, error) {
	var rewards map[XPSource]int64
	if err := json.Unmarshal(raw, &rewards); err != nil {
		return nil, invalidData("value", "xp_rewards must be an object of source to xp")
	}
	for source, xp := range rewards {
		if _, ok := xpSourcePolicies[source]; !ok {
			return nil, invalidData("value", "unknown xp source "+string(source))
		}
		if xp < 0 {
			return nil, invalidData("value", "xp must not be negative")
		}
	}
	return rewards, nil
}

func decodeTiers(raw json.RawMessage) (map[SubscriptionTier]TierDefinition, error) {
	var tiers map[SubscriptionTier]TierDefinition
	if err := json.Unmarshal(raw, &tiers); err != nil {
		return nil, invalidData("value", "subscription_tiers must be an object of tier to definition")
	}
	one := decimal.NewFromInt(1)
	for tier, def := range tiers {
		if _, ok := defaultTiers[tier]; !ok {
			return nil, invalidData("value", "unknown tier "+string(tier))
		}
		if def.MonthlyPoints < 0 || def.XPMultiplier <= 0 {
			return nil, invalidData("value", "tier allotment and multiplier must be positive")
		}
		if !def.Efficiency.IsPositive() || def.Efficiency.GreaterThan(one) {
			return nil, invalidData("value", "tier efficiency must be in (0, 1]")
		}
	}
	return tiers, nil
}

// ConfigurationSnapshot 一个配置键的某个版本，同一键只有一个生效版本
type ConfigurationSnapshot struct {
	ID        int64           `json:"id"`
	Key       SettingKey      `json:"key"`
	Version   int             `json:"version"`
	Value     json.RawMessage `json:"value"`
	IsActive  bool            `json:"is_active"`
	CreatedBy string          `json:"created_by"`
	CreatedAt time.Time       `json:"created_at"`
}

// SettingsRepository 配置版本存储
type SettingsRepository interface {
	ListActive(ctx context.Context) ([]*ConfigurationSnapshot, error)
	// GetActive 没有生效版本时返回 nil, nil
	GetActive(ctx context.Context, key SettingKey) (*ConfigurationSnapshot, error)
	Deactivate(ctx context.Context, key SettingKey) error
	Create(ctx context.Context, snap *ConfigurationSnapshot) error
	History(ctx context.Context, key SettingKey) ([]*ConfigurationSnapshot, error)
}

// SettingsUsecase 配置读取与版本化更新
type SettingsUsecase struct {
	repo  SettingsRepository
	tx    Transaction
	cache *CacheLayer
	clock Clock
	log   *log.Helper
}

// NewSettingsUsecase 创建配置业务逻辑实例
func NewSettingsUsecase(repo SettingsRepository, tx Transaction, cache *CacheLayer, clock Clock, logger log.Logger) *SettingsUsecase {
	return &SettingsUsecase{
		repo:  repo,
		tx:    tx,
		cache: cache,
		clock: clock,
		log:   log.NewHelper(logger),
	}
}

// Active 返回生效配置；存储不可用时回退到默认值
func (uc *SettingsUsecase) Active(ctx context.Context) *Settings {
	s, err := GetOrLoad(ctx, uc.cache, SettingsCacheKey, uc.load)
	if err != nil {
		uc.log.WithContext(ctx).Warnf("Falling back to default settings, error: %v", err)
		return DefaultSettings()
	}
	return s
}

func (uc *SettingsUsecase) load(ctx context.Context) (*Settings, error) {
	rows, err := uc.repo.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	s := DefaultSettings()
	for _, row := range rows {
		if err := s.apply(row); err != nil {
			// 单个坏行不影响其他配置
			uc.log.WithContext(ctx).Warnf("Ignoring invalid setting row, key: %s, version: %d, error: %v", row.Key, row.Version, err)
		}
	}
	return s, nil
}

// Update 在一个事务里停用当前版本并写入新版本
func (uc *SettingsUsecase) Update(ctx context.Context, key SettingKey, value json.RawMessage, admin string) (*ConfigurationSnapshot, error) {
	ctx, span := tracing.StartSpan(ctx, "SettingsUsecase.Update")
	defer span.End()

	if err := DefaultSettings().apply(&ConfigurationSnapshot{Key: key, Value: value}); err != nil {
		return nil, err
	}

	snap := &ConfigurationSnapshot{
		Key:       key,
		Value:     value,
		IsActive:  true,
		CreatedBy: admin,
		CreatedAt: uc.clock.Now(),
	}
	err := uc.tx.InTx(ctx, func(ctx context.Context) error {
		current, err := uc.repo.GetActive(ctx, key)
		if err != nil {
			return err
		}
		snap.Version = 1
		if current != nil {
			snap.Version = current.Version + 1
			if err := uc.repo.Deactivate(ctx, key); err != nil {
				return err
			}
		}
		return uc.repo.Create(ctx, snap)
	})
	if err != nil {
		uc.log.WithContext(ctx).Errorf("Failed to update setting, key: %s, error: %v", key, err)
		return nil, err
	}

	uc.cache.Delete(ctx, SettingsCacheKey)
	uc.log.WithContext(ctx).Infof("Setting updated, key: %s, version: %d, by: %s", key, snap.Version, admin)
	return snap, nil
}

// History 配置键的全部版本，新版本在前
func (uc *SettingsUsecase) History(ctx context.Context, key SettingKey) ([]*ConfigurationSnapshot, error) {
	return uc.repo.History(ctx, key)
}
