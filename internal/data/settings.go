package data

import (
	"context"
	stderrors "errors"
	"time"

	"gamification/internal/biz"
	"gamification/internal/pkg/tracing"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// settingModel 配置版本表，(setting_key, version) 唯一
type settingModel struct {
	ID        int64          `gorm:"column:id;primaryKey;autoIncrement"`
	Key       string         `gorm:"column:setting_key;type:varchar(64);not null;uniqueIndex:uk_setting_version;index:idx_setting_active"`
	Version   int            `gorm:"column:version;not null;uniqueIndex:uk_setting_version"`
	Value     datatypes.JSON `gorm:"column:value;not null"`
	IsActive  bool           `gorm:"column:is_active;not null;index:idx_setting_active"`
	CreatedBy string         `gorm:"column:created_by;type:varchar(255)"`
	CreatedAt time.Time      `gorm:"column:created_at;not null"`
}

func (settingModel) TableName() string {
	return "configuration_snapshots"
}

func (m *settingModel) toBiz() *biz.ConfigurationSnapshot {
	return &biz.ConfigurationSnapshot{
		ID:        m.ID,
		Key:       biz.SettingKey(m.Key),
		Version:   m.Version,
		Value:     []byte(m.Value),
		IsActive:  m.IsActive,
		CreatedBy: m.CreatedBy,
		CreatedAt: m.CreatedAt,
	}
}

func toBizSnapshots(rows []*settingModel) []*biz.ConfigurationSnapshot {
	out := make([]*biz.ConfigurationSnapshot, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toBiz())
	}
	return out
}

// settingsRepository 配置版本数据访问实现
type settingsRepository struct {
	data   *Data
	logger *log.Helper
}

// NewSettingsRepository 创建配置版本数据访问实例
func NewSettingsRepository(data *Data, logger log.Logger) biz.SettingsRepository {
	return &settingsRepository{
		data:   data,
		logger: log.NewHelper(logger),
	}
}

func (r *settingsRepository) ListActive(ctx context.Context) ([]*biz.ConfigurationSnapshot, error) {
	ctx, span := tracing.StartSpan(ctx, "SettingsRepository.ListActive")
	defer span.End()

	var rows []*settingModel
	err := r.data.DB(ctx).Where("is_active = ?", true).Order("setting_key ASC").Find(&rows).Error
	if err != nil {
		r.logger.WithContext(ctx).Errorf("Failed to list active settings, error: %v", err)
		return nil, err
	}
	return toBizSnapshots(rows), nil
}

func (r *settingsRepository) GetActive(ctx context.Context, key biz.SettingKey) (*biz.ConfigurationSnapshot, error) {
	ctx, span := tracing.StartSpan(ctx, "SettingsRepository.GetActive")
	defer span.End()

	tracing.AddSpanTags(ctx, map[string]interface{}{"key": key})

	var row settingModel
	err := r.data.DB(ctx).Where("setting_key = ? AND is_active = ?", string(key), true).
		Order("version DESC").First(&row).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		r.logger.WithContext(ctx).Errorf("Failed to get active setting, key: %s, error: %v", key, err)
		return nil, err
	}
	return row.toBiz(), nil
}

func (r *settingsRepository) Deactivate(ctx context.Context, key biz.SettingKey) error {
	ctx, span := tracing.StartSpan(ctx, "SettingsRepository.Deactivate")
	defer span.End()

	tracing.AddSpanTags(ctx, map[string]interface{}{"key": key})

	err := r.data.DB(ctx).Model(&settingModel{}).
		Where("setting_key = ? AND is_active = ?", string(key), true).
		Update("is_active", false).Error
	if err != nil {
		r.logger.WithContext(ctx).Errorf("Failed to deactivate setting, key: %s, error: %v", key, err)
		return err
	}
	return nil
}

func (r *settingsRepository) Create(ctx context.Context, snap *biz.ConfigurationSnapshot) error {
	ctx, span := tracing.StartSpan(ctx, "SettingsRepository.Create")
	defer span.End()

	tracing.AddSpanTags(ctx, map[string]interface{}{
		"key":     snap.Key,
		"version": snap.Version,
	})

	row := &settingModel{
		Key:       string(snap.Key),
		Version:   snap.Version,
		Value:     datatypes.JSON(snap.Value),
		IsActive:  snap.IsActive,
		CreatedBy: snap.CreatedBy,
		CreatedAt: snap.CreatedAt,
	}
	if err := r.data.DB(ctx).Create(row).Error; err != nil {
		r.logger.WithContext(ctx).Errorf("Failed to create setting, key: %s, version: %d, error: %v", snap.Key, snap.Version, err)
		return err
	}
	snap.ID = row.ID

	r.logger.WithContext(ctx).Infof("Successfully created setting %s version %d", snap.Key, snap.Version)
	return nil
}

func (r *settingsRepository) History(ctx context.Context, key biz.SettingKey) ([]*biz.ConfigurationSnapshot, error) {
	ctx, span := tracing.StartSpan(ctx, "SettingsRepository.History")
	defer span.End()

	tracing.AddSpanTags(ctx, map[string]interface{}{"key": key})

	var rows []*settingModel
	err := r.data.DB(ctx).Where("setting_key = ?", string(key)).Order("version DESC").Find(&rows).Error
	if err != nil {
		r.logger.WithContext(ctx).Errorf("Failed to list setting history, key: %s, error: %v", key, err)
		return nil, err
	}
	return toBizSnapshots(rows), nil
}
