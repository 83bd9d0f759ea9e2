package service

import (
	"context"
	"strings"

	"gamification/internal/biz"
	"gamification/internal/pkg/tracing"
)

// UpdateSetting 写入新版本的运行时配置
func (s *GamificationService) UpdateSetting(ctx context.Context, req *UpdateSettingRequest) (*SettingReply, error) {
	ctx, span := tracing.StartSpan(ctx, "GamificationService.UpdateSetting")
	defer span.End()

	p, err := s.admin(ctx)
	if err != nil {
		return nil, s.toTransportError(ctx, "UpdateSetting", err)
	}
	key := biz.SettingKey(strings.TrimSpace(req.Key))
	tracing.AddSpanTags(ctx, map[string]interface{}{"setting_key": string(key)})

	snapshot, err := s.settings.Update(ctx, key, req.Value, adminName(p))
	if err != nil {
		return nil, s.toTransportError(ctx, "UpdateSetting", err)
	}
	s.log.WithContext(ctx).Infof("Setting updated, key: %s, version: %d, by: %s", key, snapshot.Version, snapshot.CreatedBy)
	return &SettingReply{Snapshot: snapshot}, nil
}

func (s *GamificationService) SettingHistory(ctx context.Context, req *SettingHistoryRequest) (*SettingHistoryReply, error) {
	ctx, span := tracing.StartSpan(ctx, "GamificationService.SettingHistory")
	defer span.End()

	if _, err := s.admin(ctx); err != nil {
		return nil, s.toTransportError(ctx, "SettingHistory", err)
	}
	snapshots, err := s.settings.History(ctx, biz.SettingKey(strings.TrimSpace(req.Key)))
	if err != nil {
		return nil, s.toTransportError(ctx, "SettingHistory", err)
	}
	return &SettingHistoryReply{Snapshots: snapshots}, nil
}

func (s *GamificationService) RegisterDeveloper(ctx context.Context, req *RegisterDeveloperRequest) (*DeveloperReply, error) {
	ctx, span := tracing.StartSpan(ctx, "GamificationService.RegisterDeveloper")
	defer span.End()

	if _, err := s.admin(ctx); err != nil {
		return nil, s.toTransportError(ctx, "RegisterDeveloper", err)
	}
	dev, err := s.points.Register(ctx, req.Email, req.DisplayName, req.Tier)
	if err != nil {
		return nil, s.toTransportError(ctx, "RegisterDeveloper", err)
	}
	return &DeveloperReply{Developer: dev}, nil
}

func (s *GamificationService) ChangeTier(ctx context.Context, req *ChangeTierRequest) (*DeveloperReply, error) {
	ctx, span := tracing.StartSpan(ctx, "GamificationService.ChangeTier")
	defer span.End()

	if _, err := s.admin(ctx); err != nil {
		return nil, s.toTransportError(ctx, "ChangeTier", err)
	}
	dev, err := s.points.ChangeTier(ctx, req.ID, req.Tier)
	if err != nil {
		return nil, s.toTransportError(ctx, "ChangeTier", err)
	}
	return &DeveloperReply{Developer: dev}, nil
}

// ResetMonthlyCycle 手动开始新的积分周期
func (s *GamificationService) ResetMonthlyCycle(ctx context.Context, req *DeveloperIDRequest) (*DeveloperReply, error) {
	ctx, span := tracing.StartSpan(ctx, "GamificationService.ResetMonthlyCycle")
	defer span.End()

	if _, err := s.admin(ctx); err != nil {
		return nil, s.toTransportError(ctx, "ResetMonthlyCycle", err)
	}
	dev, err := s.points.ResetMonthlyCycle(ctx, req.ID)
	if err != nil {
		return nil, s.toTransportError(ctx, "ResetMonthlyCycle", err)
	}
	return &DeveloperReply{Developer: dev}, nil
}

// AwardPoints 管理员按来源发放积分，同样受来源上限约束
func (s *GamificationService) AwardPoints(ctx context.Context, req *AwardPointsRequest) (*AwardPointsReply, error) {
	ctx, span := tracing.StartSpan(ctx, "GamificationService.AwardPoints")
	defer span.End()

	if _, err := s.admin(ctx); err != nil {
		return nil, s.toTransportError(ctx, "AwardPoints", err)
	}
	entry, err := s.points.Award(ctx, req.ID, biz.PointsAward{
		Source:      req.Source,
		Amount:      req.Amount,
		SourceID:    req.SourceID,
		Description: req.Description,
	})
	if err != nil {
		return nil, s.toTransportError(ctx, "AwardPoints", err)
	}
	return &AwardPointsReply{Entry: entry, Duplicate: entry == nil}, nil
}
