package data

import (
	"context"
	stderrors "errors"

	"gamification/internal/biz"
	"gamification/internal/pkg/tracing"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// developerRepository 开发者聚合数据访问实现
type developerRepository struct {
	data   *Data
	logger *log.Helper
}

// NewDeveloperRepository 创建开发者数据访问实例
func NewDeveloperRepository(data *Data, logger log.Logger) biz.DeveloperRepository {
	return &developerRepository{
		data:   data,
		logger: log.NewHelper(logger),
	}
}

func (r *developerRepository) Create(ctx context.Context, dev *biz.Developer) error {
	ctx, span := tracing.StartSpan(ctx, "DeveloperRepository.Create")
	defer span.End()

	tracing.AddSpanTags(ctx, map[string]interface{}{
		"email": dev.Email,
		"tier":  dev.SubscriptionTier,
	})

	r.logger.WithContext(ctx).Infof("Creating developer with email: %s", dev.Email)
	err := r.data.DB(ctx).Create(dev).Error
	if isUniqueViolation(err) {
		r.logger.WithContext(ctx).Warnf("Developer already exists, email: %s", dev.Email)
		return biz.ErrDeveloperExists
	}
	if err != nil {
		r.logger.WithContext(ctx).Errorf("Failed to create developer, email: %s, error: %v", dev.Email, err)
		return err
	}

	r.logger.WithContext(ctx).Infof("Successfully created developer with id: %d", dev.ID)
	return nil
}

func (r *developerRepository) Get(ctx context.Context, id int64) (*biz.Developer, error) {
	ctx, span := tracing.StartSpan(ctx, "DeveloperRepository.Get")
	defer span.End()

	tracing.AddSpanTags(ctx, map[string]interface{}{"user_id": id})
	return r.first(ctx, r.data.DB(ctx), id)
}

func (r *developerRepository) GetForUpdate(ctx context.Context, id int64) (*biz.Developer, error) {
	ctx, span := tracing.StartSpan(ctx, "DeveloperRepository.GetForUpdate")
	defer span.End()

	tracing.AddSpanTags(ctx, map[string]interface{}{"user_id": id})
	return r.first(ctx, r.data.DB(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (r *developerRepository) first(ctx context.Context, db *gorm.DB, id int64) (*biz.Developer, error) {
	var dev biz.Developer
	err := db.Where("id = ?", id).First(&dev).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		r.logger.WithContext(ctx).Warnf("Developer not found, user_id: %d", id)
		return nil, biz.ErrDeveloperNotFound
	}
	if err != nil {
		r.logger.WithContext(ctx).Errorf("Failed to get developer, user_id: %d, error: %v", id, err)
		return nil, err
	}
	return &dev, nil
}

func (r *developerRepository) Save(ctx context.Context, dev *biz.Developer) error {
	ctx, span := tracing.StartSpan(ctx, "DeveloperRepository.Save")
	defer span.End()

	tracing.AddSpanTags(ctx, map[string]interface{}{
		"user_id":  dev.ID,
		"total_xp": dev.TotalXP,
		"level":    dev.CurrentLevel,
	})

	err := r.data.DB(ctx).Save(dev).Error
	if err != nil {
		r.logger.WithContext(ctx).Errorf("Failed to save developer, user_id: %d, error: %v", dev.ID, err)
		return err
	}
	return nil
}

// EarlyAdopterRank 注册时间早于该用户的人数加一，同一时刻注册的按 id 排序
func (r *developerRepository) EarlyAdopterRank(ctx context.Context, dev *biz.Developer) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "DeveloperRepository.EarlyAdopterRank")
	defer span.End()

	tracing.AddSpanTags(ctx, map[string]interface{}{"user_id": dev.ID})

	var rank int64
	err := r.data.DB(ctx).Model(&biz.Developer{}).
		Where("created_at < ? OR (created_at = ? AND id <= ?)", dev.CreatedAt, dev.CreatedAt, dev.ID).
		Count(&rank).Error
	if err != nil {
		r.logger.WithContext(ctx).Errorf("Failed to count early adopter rank, user_id: %d, error: %v", dev.ID, err)
		return 0, err
	}
	return rank, nil
}

func (r *developerRepository) TopByXP(ctx context.Context, limit int) ([]*biz.Developer, error) {
	ctx, span := tracing.StartSpan(ctx, "DeveloperRepository.TopByXP")
	defer span.End()

	tracing.AddSpanTags(ctx, map[string]interface{}{"limit": limit})

	var devs []*biz.Developer
	err := r.data.DB(ctx).Order("total_xp DESC").Order("id ASC").Limit(limit).Find(&devs).Error
	if err != nil {
		r.logger.WithContext(ctx).Errorf("Failed to list leaderboard, limit: %d, error: %v", limit, err)
		return nil, err
	}
	return devs, nil
}

// statsRepository 行为计数数据访问实现
type statsRepository struct {
	data   *Data
	logger *log.Helper
}

// NewStatsRepository 创建行为计数数据访问实例
func NewStatsRepository(data *Data, logger log.Logger) biz.StatsRepository {
	return &statsRepository{
		data:   data,
		logger: log.NewHelper(logger),
	}
}

func (r *statsRepository) Get(ctx context.Context, userID int64) (*biz.DeveloperStats, error) {
	ctx, span := tracing.StartSpan(ctx, "StatsRepository.Get")
	defer span.End()

	tracing.AddSpanTags(ctx, map[string]interface{}{"user_id": userID})

	var stats biz.DeveloperStats
	err := r.data.DB(ctx).Where("user_id = ?", userID).First(&stats).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return &biz.DeveloperStats{UserID: userID}, nil
	}
	if err != nil {
		r.logger.WithContext(ctx).Errorf("Failed to get stats, user_id: %d, error: %v", userID, err)
		return nil, err
	}
	return &stats, nil
}

// Save 不存在时插入，存在时整行覆盖
func (r *statsRepository) Save(ctx context.Context, stats *biz.DeveloperStats) error {
	ctx, span := tracing.StartSpan(ctx, "StatsRepository.Save")
	defer span.End()

	tracing.AddSpanTags(ctx, map[string]interface{}{"user_id": stats.UserID})

	err := r.data.DB(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		UpdateAll: true,
	}).Create(stats).Error
	if err != nil {
		r.logger.WithContext(ctx).Errorf("Failed to save stats, user_id: %d, error: %v", stats.UserID, err)
		return err
	}
	return nil
}
