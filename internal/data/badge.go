package data

import (
	"context"
	"encoding/json"
	"time"

	"gamification/internal/biz"
	"gamification/internal/pkg/snowflake"
	"gamification/internal/pkg/tracing"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/datatypes"
	"gorm.io/gorm/clause"
)

// badgeModel 徽章定义表，判定条件以 kind + JSON 参数存储
type badgeModel struct {
	ID              string         `gorm:"column:id;type:varchar(64);primaryKey"`
	Name            string         `gorm:"column:name;type:varchar(128);not null"`
	Description     string         `gorm:"column:description;type:varchar(255)"`
	Icon            string         `gorm:"column:icon;type:varchar(64)"`
	Rarity          string         `gorm:"column:rarity;type:varchar(32);not null"`
	Category        string         `gorm:"column:category;type:varchar(32);not null"`
	XPReward        int64          `gorm:"column:xp_reward;not null;default:0"`
	Hidden          bool           `gorm:"column:hidden;not null;default:false"`
	RequirementKind string         `gorm:"column:requirement_kind;type:varchar(64);not null"`
	Requirement     datatypes.JSON `gorm:"column:requirement"`
	Triggers        datatypes.JSON `gorm:"column:triggers"`
	WeekendOnly     bool           `gorm:"column:weekend_only;not null;default:false"`
	MinLevel        int            `gorm:"column:min_level;not null;default:0"`
	UpdatedAt       time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (badgeModel) TableName() string {
	return "badge_definitions"
}

func toBadgeModel(def *biz.BadgeDefinition) (*badgeModel, error) {
	kind, params, err := biz.EncodeRequirement(def.Requirement)
	if err != nil {
		return nil, err
	}
	triggers, err := json.Marshal(def.Triggers)
	if err != nil {
		return nil, err
	}
	return &badgeModel{
		ID:              def.ID,
		Name:            def.Name,
		Description:     def.Description,
		Icon:            def.Icon,
		Rarity:          string(def.Rarity),
		Category:        string(def.Category),
		XPReward:        def.XPReward,
		Hidden:          def.Hidden,
		RequirementKind: string(kind),
		Requirement:     datatypes.JSON(params),
		Triggers:        datatypes.JSON(triggers),
		WeekendOnly:     def.WeekendOnly,
		MinLevel:        def.MinLevel,
	}, nil
}

func (m *badgeModel) toBiz() (*biz.BadgeDefinition, error) {
	req, err := biz.DecodeRequirement(biz.RequirementKind(m.RequirementKind), json.RawMessage(m.Requirement))
	if err != nil {
		return nil, err
	}
	var triggers []biz.EventType
	if len(m.Triggers) > 0 {
		if err := json.Unmarshal(m.Triggers, &triggers); err != nil {
			return nil, err
		}
	}
	return &biz.BadgeDefinition{
		ID:          m.ID,
		Name:        m.Name,
		Description: m.Description,
		Icon:        m.Icon,
		Rarity:      biz.BadgeRarity(m.Rarity),
		Category:    biz.BadgeCategory(m.Category),
		XPReward:    m.XPReward,
		Hidden:      m.Hidden,
		Requirement: req,
		Triggers:    triggers,
		WeekendOnly: m.WeekendOnly,
		MinLevel:    m.MinLevel,
	}, nil
}

// badgeRepository 徽章数据访问实现
type badgeRepository struct {
	data   *Data
	ids    *snowflake.Generator
	logger *log.Helper
}

// NewBadgeRepository 创建徽章数据访问实例
func NewBadgeRepository(data *Data, ids *snowflake.Generator, logger log.Logger) biz.BadgeRepository {
	return &badgeRepository{
		data:   data,
		ids:    ids,
		logger: log.NewHelper(logger),
	}
}

func (r *badgeRepository) UpsertDefinition(ctx context.Context, def *biz.BadgeDefinition) error {
	ctx, span := tracing.StartSpan(ctx, "BadgeRepository.UpsertDefinition")
	defer span.End()

	tracing.AddSpanTags(ctx, map[string]interface{}{"badge_id": def.ID})

	m, err := toBadgeModel(def)
	if err != nil {
		r.logger.WithContext(ctx).Errorf("Failed to encode badge definition, badge_id: %s, error: %v", def.ID, err)
		return err
	}
	err = r.data.DB(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(m).Error
	if err != nil {
		r.logger.WithContext(ctx).Errorf("Failed to upsert badge definition, badge_id: %s, error: %v", def.ID, err)
		return err
	}
	return nil
}

// ListDefinitions 无法解码的行跳过并记录日志
func (r *badgeRepository) ListDefinitions(ctx context.Context) ([]*biz.BadgeDefinition, error) {
	ctx, span := tracing.StartSpan(ctx, "BadgeRepository.ListDefinitions")
	defer span.End()

	var rows []*badgeModel
	if err := r.data.DB(ctx).Order("id ASC").Find(&rows).Error; err != nil {
		r.logger.WithContext(ctx).Errorf("Failed to list badge definitions, error: %v", err)
		return nil, err
	}
	defs := make([]*biz.BadgeDefinition, 0, len(rows))
	for _, row := range rows {
		def, err := row.toBiz()
		if err != nil {
			r.logger.WithContext(ctx).Warnf("Skipping undecodable badge definition, badge_id: %s, error: %v", row.ID, err)
			continue
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func (r *badgeRepository) ListByUser(ctx context.Context, userID int64) ([]*biz.UserBadgeAward, error) {
	ctx, span := tracing.StartSpan(ctx, "BadgeRepository.ListByUser")
	defer span.End()

	tracing.AddSpanTags(ctx, map[string]interface{}{"user_id": userID})

	var awards []*biz.UserBadgeAward
	err := r.data.DB(ctx).Where("user_id = ?", userID).Order("earned_at ASC").Find(&awards).Error
	if err != nil {
		r.logger.WithContext(ctx).Errorf("Failed to list badges, user_id: %d, error: %v", userID, err)
		return nil, err
	}
	return awards, nil
}

func (r *badgeRepository) Has(ctx context.Context, userID int64, badgeID string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "BadgeRepository.Has")
	defer span.End()

	tracing.AddSpanTags(ctx, map[string]interface{}{
		"user_id":  userID,
		"badge_id": badgeID,
	})

	var count int64
	err := r.data.DB(ctx).Model(&biz.UserBadgeAward{}).
		Where("user_id = ? AND badge_id = ?", userID, badgeID).
		Count(&count).Error
	if err != nil {
		r.logger.WithContext(ctx).Errorf("Failed to check badge, user_id: %d, badge_id: %s, error: %v", userID, badgeID, err)
		return false, err
	}
	return count > 0, nil
}

func (r *badgeRepository) Award(ctx context.Context, award *biz.UserBadgeAward) error {
	ctx, span := tracing.StartSpan(ctx, "BadgeRepository.Award")
	defer span.End()

	tracing.AddSpanTags(ctx, map[string]interface{}{
		"user_id":  award.UserID,
		"badge_id": award.BadgeID,
	})

	if award.ID == 0 {
		award.ID = r.ids.NextID()
	}
	err := appendEntry(r.data.DB(ctx), award)
	if err == biz.ErrDuplicateAward {
		r.logger.WithContext(ctx).Infof("Badge already awarded, user_id: %d, badge_id: %s", award.UserID, award.BadgeID)
		return err
	}
	if err != nil {
		r.logger.WithContext(ctx).Errorf("Failed to award badge, user_id: %d, badge_id: %s, error: %v", award.UserID, award.BadgeID, err)
		return err
	}

	r.logger.WithContext(ctx).Infof("Successfully awarded badge %s to user_id: %d", award.BadgeID, award.UserID)
	return nil
}

func (r *badgeRepository) Count(ctx context.Context, userID int64) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "BadgeRepository.Count")
	defer span.End()

	var count int64
	err := r.data.DB(ctx).Model(&biz.UserBadgeAward{}).Where("user_id = ?", userID).Count(&count).Error
	if err != nil {
		r.logger.WithContext(ctx).Errorf("Failed to count badges, user_id: %d, error: %v", userID, err)
		return 0, err
	}
	return count, nil
}
