package biz

import (
	"context"
	"os"
	"strconv"
	"time"

	"gamification/internal/conf"
	"gamification/internal/pkg/tracing"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/golang-jwt/jwt/v5"
)

// RoleAdmin 可以修改在线配置的角色
const RoleAdmin = "admin"

// Credentials 调用方提交的凭证
type Credentials struct {
	Token string
}

// Principal 认证后的调用方
type Principal struct {
	UserID int64
	Roles  []string
}

// HasRole 是否拥有角色
func (p *Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Authenticator 会话认证
type Authenticator interface {
	Authenticate(ctx context.Context, creds Credentials) (*Principal, error)
}

// AccessClaims 访问令牌声明，Subject 为用户 ID
type AccessClaims struct {
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// JWTAuthenticator HS256 访问令牌认证
type JWTAuthenticator struct {
	secret []byte
	log    *log.Helper
}

// NewJWTAuthenticator 密钥优先取配置，其次取环境变量 JWT_ACCESS_SECRET
func NewJWTAuthenticator(c *conf.Gamification, logger log.Logger) *JWTAuthenticator {
	secret := c.JwtSecret
	if secret == "" {
		secret = os.Getenv("JWT_ACCESS_SECRET")
	}
	return &JWTAuthenticator{
		secret: []byte(secret),
		log:    log.NewHelper(logger),
	}
}

// IssueToken 签发访问令牌
func (a *JWTAuthenticator) IssueToken(userID int64, roles []string, ttl time.Duration) (string, error) {
	if len(a.secret) == 0 {
		return "", ErrUnauthorized
	}
	now := time.Now()
	claims := &AccessClaims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Authenticate 校验访问令牌并解析出用户
func (a *JWTAuthenticator) Authenticate(ctx context.Context, creds Credentials) (*Principal, error) {
	ctx, span := tracing.StartSpan(ctx, "JWTAuthenticator.Authenticate")
	defer span.End()

	if creds.Token == "" {
		a.log.WithContext(ctx).Warn("Empty access token provided")
		return nil, ErrUnauthorized
	}
	if len(a.secret) == 0 {
		a.log.WithContext(ctx).Error("JWT secret is not configured")
		return nil, ErrUnauthorized
	}

	claims := &AccessClaims{}
	token, err := jwt.ParseWithClaims(creds.Token, claims, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		a.log.WithContext(ctx).Warnf("Failed to parse access token, error: %v", err)
		return nil, ErrUnauthorized
	}
	// 不接受永不过期的令牌
	if claims.ExpiresAt == nil {
		a.log.WithContext(ctx).Warn("Access token has no expiry")
		return nil, ErrUnauthorized
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		a.log.WithContext(ctx).Warn("Failed to parse user id from access token")
		return nil, ErrUnauthorized
	}
	return &Principal{UserID: userID, Roles: claims.Roles}, nil
}
