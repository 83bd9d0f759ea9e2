package data

import (
	"context"
	"time"

	"gamification/internal/biz"
	"gamification/internal/conf"
	"gamification/internal/pkg/snowflake"
	"gamification/internal/pkg/tracing"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
)

// NewIDGenerator 账本行 ID 生成器
func NewIDGenerator(c *conf.Gamification, logger log.Logger) (*snowflake.Generator, error) {
	var node int64 = 1
	if c != nil && c.SnowflakeNode > 0 {
		node = c.SnowflakeNode
	}
	return snowflake.NewGenerator(node, logger)
}

// appendEntry 插入流水行，唯一约束冲突转换为 biz.ErrDuplicateAward
func appendEntry(db *gorm.DB, entry interface{}) error {
	err := db.Create(entry).Error
	if isUniqueViolation(err) {
		return biz.ErrDuplicateAward
	}
	return err
}

// pageOf 按时间倒序分页读取某个用户的流水
func pageOf[T any](db *gorm.DB, userID int64, page, pageSize int) ([]*T, int64, error) {
	var total int64
	if err := db.Model(new(T)).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	offset := (page - 1) * pageSize
	var rows []*T
	err := db.Where("user_id = ?", userID).
		Order("created_at DESC").Order("id DESC").
		Offset(offset).Limit(pageSize).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// xpLedgerRepository 经验流水数据访问实现
type xpLedgerRepository struct {
	data   *Data
	ids    *snowflake.Generator
	logger *log.Helper
}

// NewXPLedgerRepository 创建经验流水数据访问实例
func NewXPLedgerRepository(data *Data, ids *snowflake.Generator, logger log.Logger) biz.XPLedgerRepository {
	return &xpLedgerRepository{
		data:   data,
		ids:    ids,
		logger: log.NewHelper(logger),
	}
}

func (r *xpLedgerRepository) Append(ctx context.Context, entry *biz.XPLedgerEntry) error {
	ctx, span := tracing.StartSpan(ctx, "XPLedgerRepository.Append")
	defer span.End()

	tracing.AddSpanTags(ctx, map[string]interface{}{
		"user_id":   entry.UserID,
		"source":    entry.Source,
		"source_id": entry.SourceID,
		"amount":    entry.Amount,
	})

	if entry.ID == 0 {
		entry.ID = r.ids.NextID()
	}
	err := appendEntry(r.data.DB(ctx), entry)
	if err == biz.ErrDuplicateAward {
		r.logger.WithContext(ctx).Infof("XP entry already recorded, user_id: %d, source: %s, source_id: %s", entry.UserID, entry.Source, entry.SourceID)
		return err
	}
	if err != nil {
		r.logger.WithContext(ctx).Errorf("Failed to append xp entry, user_id: %d, source: %s, error: %v", entry.UserID, entry.Source, err)
		return err
	}

	r.logger.WithContext(ctx).Infof("Successfully appended xp entry with id: %d, user_id: %d, amount: %d", entry.ID, entry.UserID, entry.Amount)
	return nil
}

func (r *xpLedgerRepository) Exists(ctx context.Context, userID int64, source biz.XPSource, sourceID string) (bool, error) {
	return r.ExistsSince(ctx, userID, source, sourceID, time.Time{})
}

// ExistsSince since 为零值时不限时间
func (r *xpLedgerRepository) ExistsSince(ctx context.Context, userID int64, source biz.XPSource, sourceID string, since time.Time) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "XPLedgerRepository.Exists")
	defer span.End()

	tracing.AddSpanTags(ctx, map[string]interface{}{
		"user_id":   userID,
		"source":    source,
		"source_id": sourceID,
	})

	q := r.data.DB(ctx).Model(&biz.XPLedgerEntry{}).
		Where("user_id = ? AND source = ? AND source_id = ?", userID, source, sourceID)
	if !since.IsZero() {
		q = q.Where("created_at >= ?", since)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		r.logger.WithContext(ctx).Errorf("Failed to check xp entry, user_id: %d, source: %s, error: %v", userID, source, err)
		return false, err
	}
	return count > 0, nil
}

func (r *xpLedgerRepository) ListByUser(ctx context.Context, userID int64, page, pageSize int) ([]*biz.XPLedgerEntry, int64, error) {
	ctx, span := tracing.StartSpan(ctx, "XPLedgerRepository.ListByUser")
	defer span.End()

	tracing.AddSpanTags(ctx, map[string]interface{}{
		"user_id":   userID,
		"page":      page,
		"page_size": pageSize,
	})

	rows, total, err := pageOf[biz.XPLedgerEntry](r.data.DB(ctx), userID, page, pageSize)
	if err != nil {
		r.logger.WithContext(ctx).Errorf("Failed to list xp entries, user_id: %d, error: %v", userID, err)
		return nil, 0, err
	}
	return rows, total, nil
}

// pointsLedgerRepository 积分流水数据访问实现
type pointsLedgerRepository struct {
	data   *Data
	ids    *snowflake.Generator
	logger *log.Helper
}

// NewPointsLedgerRepository 创建积分流水数据访问实例
func NewPointsLedgerRepository(data *Data, ids *snowflake.Generator, logger log.Logger) biz.PointsLedgerRepository {
	return &pointsLedgerRepository{
		data:   data,
		ids:    ids,
		logger: log.NewHelper(logger),
	}
}

func (r *pointsLedgerRepository) Append(ctx context.Context, entry *biz.PointsLedgerEntry) error {
	ctx, span := tracing.StartSpan(ctx, "PointsLedgerRepository.Append")
	defer span.End()

	tracing.AddSpanTags(ctx, map[string]interface{}{
		"user_id":   entry.UserID,
		"source":    entry.Source,
		"source_id": entry.SourceID,
		"amount":    entry.Amount,
	})

	if entry.ID == 0 {
		entry.ID = r.ids.NextID()
	}
	err := appendEntry(r.data.DB(ctx), entry)
	if err == biz.ErrDuplicateAward {
		r.logger.WithContext(ctx).Infof("Points entry already recorded, user_id: %d, source: %s, source_id: %s", entry.UserID, entry.Source, entry.SourceID)
		return err
	}
	if err != nil {
		r.logger.WithContext(ctx).Errorf("Failed to append points entry, user_id: %d, source: %s, error: %v", entry.UserID, entry.Source, err)
		return err
	}

	r.logger.WithContext(ctx).Infof("Successfully appended points entry with id: %d, user_id: %d, amount: %d", entry.ID, entry.UserID, entry.Amount)
	return nil
}

func (r *pointsLedgerRepository) Exists(ctx context.Context, userID int64, source biz.PointsSource, sourceID string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "PointsLedgerRepository.Exists")
	defer span.End()

	tracing.AddSpanTags(ctx, map[string]interface{}{
		"user_id":   userID,
		"source":    source,
		"source_id": sourceID,
	})

	var count int64
	err := r.data.DB(ctx).Model(&biz.PointsLedgerEntry{}).
		Where("user_id = ? AND source = ? AND source_id = ?", userID, source, sourceID).
		Count(&count).Error
	if err != nil {
		r.logger.WithContext(ctx).Errorf("Failed to check points entry, user_id: %d, source: %s, error: %v", userID, source, err)
		return false, err
	}
	return count > 0, nil
}

func (r *pointsLedgerRepository) ListByUser(ctx context.Context, userID int64, page, pageSize int) ([]*biz.PointsLedgerEntry, int64, error) {
	ctx, span := tracing.StartSpan(ctx, "PointsLedgerRepository.ListByUser")
	defer span.End()

	tracing.AddSpanTags(ctx, map[string]interface{}{
		"user_id":   userID,
		"page":      page,
		"page_size": pageSize,
	})

	rows, total, err := pageOf[biz.PointsLedgerEntry](r.data.DB(ctx), userID, page, pageSize)
	if err != nil {
		r.logger.WithContext(ctx).Errorf("Failed to list points entries, user_id: %d, error: %v", userID, err)
		return nil, 0, err
	}
	return rows, total, nil
}
