package biz

import (
	"context"

	"github.com/go-kratos/kratos/v2/log"
)

// AuthGateway 事件入口的安全检查：认证、授权、限流、结构校验，顺序固定
type AuthGateway struct {
	auth    Authenticator
	limiter *RateLimiter
	catalog *BadgeCatalog
	log     *log.Helper
}

// NewAuthGateway 创建安全网关
func NewAuthGateway(auth Authenticator, limiter *RateLimiter, catalog *BadgeCatalog, logger log.Logger) *AuthGateway {
	return &AuthGateway{
		auth:    auth,
		limiter: limiter,
		catalog: catalog,
		log:     log.NewHelper(logger),
	}
}

// Authenticate 只做认证
func (g *AuthGateway) Authenticate(ctx context.Context, creds Credentials) (*Principal, error) {
	p, err := g.auth.Authenticate(ctx, creds)
	if err != nil {
		return nil, ErrUnauthorized
	}
	return p, nil
}

// Authorize 调用方只能操作自己的数据
func (g *AuthGateway) Authorize(ctx context.Context, p *Principal, userID int64) error {
	if p == nil || p.UserID != userID {
		g.log.WithContext(ctx).Warnf("Rejected cross-user request, target_user_id: %d", userID)
		return ErrForbidden
	}
	return nil
}

// Admit 四项检查全部通过才放行事件
func (g *AuthGateway) Admit(ctx context.Context, creds Credentials, ev Event) (*Principal, error) {
	p, err := g.Authenticate(ctx, creds)
	if err != nil {
		return nil, err
	}
	if err := g.Authorize(ctx, p, ev.Data.UserID); err != nil {
		return nil, err
	}
	if !KnownEventType(ev.Type) {
		return nil, invalidData("type", "unknown event type")
	}
	if err := g.limiter.Allow(ctx, p.UserID, ev.Type); err != nil {
		return nil, err
	}
	if err := ValidateEventData(ev, g.catalog); err != nil {
		g.log.WithContext(ctx).Infof("Rejected invalid event, user_id: %d, event_type: %s, error: %v", p.UserID, ev.Type, err)
		return nil, err
	}
	return p, nil
}
