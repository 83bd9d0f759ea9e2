package biz

import "github.com/google/wire"

// ProviderSet is biz providers.
var ProviderSet = wire.NewSet(
	NewSystemClock,
	LoadBadgeCatalog,
	NewCacheLayer,
	NewSettingsUsecase,
	NewPointsUsecase,
	NewStreakUsecase,
	NewBadgeEvaluator,
	NewJWTAuthenticator,
	wire.Bind(new(Authenticator), new(*JWTAuthenticator)),
	NewRateLimiter,
	NewAuthGateway,
	NewEventManager,
)
