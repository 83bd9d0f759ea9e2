package service

import (
	"context"

	"gamification/internal/biz"
	"gamification/internal/pkg/tracing"
)

// SubmitEvent 提交单条事件
func (s *GamificationService) SubmitEvent(ctx context.Context, req *SubmitEventRequest) (*SubmitEventReply, error) {
	ctx, span := tracing.StartSpan(ctx, "GamificationService.SubmitEvent")
	defer span.End()

	tracing.AddSpanTags(ctx, map[string]interface{}{
		"event_type": string(req.Type),
		"user_id":    req.Data.UserID,
	})

	result, err := s.events.SubmitEvent(ctx, CredentialsFromContext(ctx), req.event())
	if err != nil {
		return nil, s.toTransportError(ctx, "SubmitEvent", err)
	}
	return &SubmitEventReply{Result: result}, nil
}

// SubmitBatch 批量提交事件，每条事件独立鉴权与限流
func (s *GamificationService) SubmitBatch(ctx context.Context, req *SubmitBatchRequest) (*SubmitBatchReply, error) {
	ctx, span := tracing.StartSpan(ctx, "GamificationService.SubmitBatch")
	defer span.End()

	if len(req.Events) == 0 {
		return nil, biz.ErrInvalidData
	}
	tracing.AddSpanTags(ctx, map[string]interface{}{"batch_size": len(req.Events)})

	events := make([]biz.Event, len(req.Events))
	for i, ev := range req.Events {
		if ev != nil {
			events[i] = ev.event()
		}
	}

	results := s.events.SubmitBatch(ctx, CredentialsFromContext(ctx), events)
	reply := &SubmitBatchReply{Items: make([]*BatchItem, 0, len(results))}
	for _, r := range results {
		item := &BatchItem{Index: r.Index, Result: r.Result}
		if r.Err != nil {
			e := s.toTransportError(ctx, "SubmitBatch", r.Err)
			item.Result = nil
			item.Error = &BatchItemError{Code: e.Code, Reason: e.Reason, Message: e.Message}
			reply.Failed++
		} else {
			reply.Succeeded++
		}
		reply.Items = append(reply.Items, item)
	}
	return reply, nil
}

// SpendPoints 为调用者本人消费积分
func (s *GamificationService) SpendPoints(ctx context.Context, req *SpendPointsRequest) (*SpendPointsReply, error) {
	ctx, span := tracing.StartSpan(ctx, "GamificationService.SpendPoints")
	defer span.End()

	p, err := s.caller(ctx)
	if err != nil {
		return nil, s.toTransportError(ctx, "SpendPoints", err)
	}
	result, err := s.points.Spend(ctx, p.UserID, req.Action)
	if err != nil {
		return nil, s.toTransportError(ctx, "SpendPoints", err)
	}
	return &SpendPointsReply{Result: result}, nil
}

// RecoverStreak 用经验购买连胜恢复
func (s *GamificationService) RecoverStreak(ctx context.Context, _ *RecoverStreakRequest) (*RecoverStreakReply, error) {
	ctx, span := tracing.StartSpan(ctx, "GamificationService.RecoverStreak")
	defer span.End()

	p, err := s.caller(ctx)
	if err != nil {
		return nil, s.toTransportError(ctx, "RecoverStreak", err)
	}
	result, err := s.streaks.Recover(ctx, p.UserID, s.clock.Now())
	if err != nil {
		return nil, s.toTransportError(ctx, "RecoverStreak", err)
	}
	return &RecoverStreakReply{Result: result}, nil
}

func (s *GamificationService) GetSummary(ctx context.Context, _ *GetSummaryRequest) (*GetSummaryReply, error) {
	ctx, span := tracing.StartSpan(ctx, "GamificationService.GetSummary")
	defer span.End()

	p, err := s.caller(ctx)
	if err != nil {
		return nil, s.toTransportError(ctx, "GetSummary", err)
	}
	summary, err := s.events.Summary(ctx, p.UserID)
	if err != nil {
		return nil, s.toTransportError(ctx, "GetSummary", err)
	}
	return &GetSummaryReply{Summary: summary}, nil
}

// ListBadges 列出全部徽章及获得状态，未获得的隐藏徽章会被遮蔽
func (s *GamificationService) ListBadges(ctx context.Context, _ *ListBadgesRequest) (*ListBadgesReply, error) {
	ctx, span := tracing.StartSpan(ctx, "GamificationService.ListBadges")
	defer span.End()

	p, err := s.caller(ctx)
	if err != nil {
		return nil, s.toTransportError(ctx, "ListBadges", err)
	}
	badges, err := s.badges.ListBadges(ctx, p.UserID)
	if err != nil {
		return nil, s.toTransportError(ctx, "ListBadges", err)
	}
	return &ListBadgesReply{Badges: badges}, nil
}

func (s *GamificationService) PointsHistory(ctx context.Context, req *PageRequest) (*PointsHistoryReply, error) {
	ctx, span := tracing.StartSpan(ctx, "GamificationService.PointsHistory")
	defer span.End()

	p, err := s.caller(ctx)
	if err != nil {
		return nil, s.toTransportError(ctx, "PointsHistory", err)
	}
	page, size := normalizePage(req.Page, req.PageSize)
	entries, total, err := s.points.History(ctx, p.UserID, page, size)
	if err != nil {
		return nil, s.toTransportError(ctx, "PointsHistory", err)
	}
	return &PointsHistoryReply{Entries: entries, Total: total, Page: page, PageSize: size}, nil
}

func (s *GamificationService) XPHistory(ctx context.Context, req *PageRequest) (*XPHistoryReply, error) {
	ctx, span := tracing.StartSpan(ctx, "GamificationService.XPHistory")
	defer span.End()

	p, err := s.caller(ctx)
	if err != nil {
		return nil, s.toTransportError(ctx, "XPHistory", err)
	}
	page, size := normalizePage(req.Page, req.PageSize)
	entries, total, err := s.events.XPHistory(ctx, p.UserID, page, size)
	if err != nil {
		return nil, s.toTransportError(ctx, "XPHistory", err)
	}
	return &XPHistoryReply{Entries: entries, Total: total, Page: page, PageSize: size}, nil
}

// Leaderboard 经验排行榜，需要登录但不限定用户
func (s *GamificationService) Leaderboard(ctx context.Context, req *LeaderboardRequest) (*LeaderboardReply, error) {
	ctx, span := tracing.StartSpan(ctx, "GamificationService.Leaderboard")
	defer span.End()

	if _, err := s.caller(ctx); err != nil {
		return nil, s.toTransportError(ctx, "Leaderboard", err)
	}
	limit := req.Limit
	if limit < 1 {
		limit = defaultLeaderboardLimit
	}
	if limit > maxLeaderboardLimit {
		limit = maxLeaderboardLimit
	}
	entries, err := s.events.Leaderboard(ctx, limit)
	if err != nil {
		return nil, s.toTransportError(ctx, "Leaderboard", err)
	}
	return &LeaderboardReply{Entries: entries}, nil
}

// ListLevels 预定义等级表，不需要登录
func (s *GamificationService) ListLevels(_ context.Context, _ *ListLevelsRequest) (*ListLevelsReply, error) {
	return &ListLevelsReply{Levels: biz.Levels(), MaxLevel: biz.MaxLevel}, nil
}
