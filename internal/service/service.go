package service

import (
	"context"
	"strconv"
	"strings"

	"gamification/internal/biz"
	"gamification/internal/pkg/tracing"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/transport"
	"github.com/google/wire"
)

// ProviderSet is service providers.
var ProviderSet = wire.NewSet(NewGamificationService)

const (
	defaultPageSize         = 20
	maxPageSize             = 100
	defaultLeaderboardLimit = 10
	maxLeaderboardLimit     = 100
)

// GamificationService 对外暴露事件提交、积分消费、查询与管理接口
type GamificationService struct {
	gateway  *biz.AuthGateway
	events   *biz.EventManager
	points   *biz.PointsUsecase
	streaks  *biz.StreakUsecase
	badges   *biz.BadgeEvaluator
	settings *biz.SettingsUsecase
	clock    biz.Clock
	log      *log.Helper
}

// NewGamificationService 创建 GamificationService 实例
func NewGamificationService(
	gateway *biz.AuthGateway,
	events *biz.EventManager,
	points *biz.PointsUsecase,
	streaks *biz.StreakUsecase,
	badges *biz.BadgeEvaluator,
	settings *biz.SettingsUsecase,
	clock biz.Clock,
	logger log.Logger,
) *GamificationService {
	return &GamificationService{
		gateway:  gateway,
		events:   events,
		points:   points,
		streaks:  streaks,
		badges:   badges,
		settings: settings,
		clock:    clock,
		log:      log.NewHelper(logger),
	}
}

// Authenticate 供 websocket 握手等非 kratos 路由复用同一套会话校验
func (s *GamificationService) Authenticate(ctx context.Context, token string) (*biz.Principal, error) {
	return s.gateway.Authenticate(ctx, biz.Credentials{Token: token})
}

// CredentialsFromContext 从 Authorization 头中取出 Bearer 令牌
func CredentialsFromContext(ctx context.Context) biz.Credentials {
	tr, ok := transport.FromServerContext(ctx)
	if !ok {
		return biz.Credentials{}
	}
	return biz.Credentials{Token: BearerToken(tr.RequestHeader().Get("Authorization"))}
}

// BearerToken 解析 "Bearer <token>"，scheme 不区分大小写
func BearerToken(header string) string {
	header = strings.TrimSpace(header)
	const scheme = "bearer "
	if len(header) <= len(scheme) || !strings.EqualFold(header[:len(scheme)], scheme) {
		return ""
	}
	return strings.TrimSpace(header[len(scheme):])
}

// caller 校验会话并返回调用者
func (s *GamificationService) caller(ctx context.Context) (*biz.Principal, error) {
	p, err := s.gateway.Authenticate(ctx, CredentialsFromContext(ctx))
	if err != nil {
		return nil, err
	}
	tracing.AddSpanTags(ctx, map[string]interface{}{"caller_id": p.UserID})
	return p, nil
}

// admin 校验会话并要求 admin 角色
func (s *GamificationService) admin(ctx context.Context) (*biz.Principal, error) {
	p, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	if !p.HasRole(biz.RoleAdmin) {
		s.log.WithContext(ctx).Warnf("Admin route rejected, userID: %d", p.UserID)
		return nil, biz.ErrForbidden
	}
	return p, nil
}

func adminName(p *biz.Principal) string {
	return "user:" + strconv.FormatInt(p.UserID, 10)
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}
