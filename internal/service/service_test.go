package service

import (
	"context"
	"encoding/json"
	"fmt"
	nethttp "net/http"
	"sync"
	"testing"
	"time"

	"gamification/internal/biz"
	"gamification/internal/conf"
	"gamification/internal/data"
	"gamification/internal/pkg/snowflake"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/transport"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type headerCarrier nethttp.Header

func (hc headerCarrier) Get(key string) string      { return nethttp.Header(hc).Get(key) }
func (hc headerCarrier) Set(key, value string)      { nethttp.Header(hc).Set(key, value) }
func (hc headerCarrier) Add(key, value string)      { nethttp.Header(hc).Add(key, value) }
func (hc headerCarrier) Values(key string) []string { return nethttp.Header(hc).Values(key) }
func (hc headerCarrier) Keys() []string {
	keys := make([]string, 0, len(hc))
	for k := range nethttp.Header(hc) {
		keys = append(keys, k)
	}
	return keys
}

type fakeTransport struct {
	header headerCarrier
}

func (t *fakeTransport) Kind() transport.Kind            { return transport.KindHTTP }
func (t *fakeTransport) Endpoint() string                { return "" }
func (t *fakeTransport) Operation() string               { return "" }
func (t *fakeTransport) RequestHeader() transport.Header { return t.header }
func (t *fakeTransport) ReplyHeader() transport.Header   { return headerCarrier{} }

func withToken(token string) context.Context {
	header := headerCarrier{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	return transport.NewServerContext(context.Background(), &fakeTransport{header: header})
}

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

type fixture struct {
	svc   *GamificationService
	auth  *biz.JWTAuthenticator
	admin string
}

func newFixture(t *testing.T) *fixture {
	logger := log.DefaultLogger
	d, cleanup, err := data.NewData(&conf.Data{Database: &conf.Data_Database{
		Driver:      "sqlite",
		Source:      fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
		TxTimeoutMs: 5000,
		TxRetries:   3,
		AutoMigrate: true,
	}}, logger)
	require.NoError(t, err)
	t.Cleanup(cleanup)

	c := &conf.Gamification{Timezone: "UTC", Workers: 2, JwtSecret: "test-secret"}
	clock := &fixedClock{now: time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)}
	ids, err := snowflake.NewGenerator(1, logger)
	require.NoError(t, err)

	tx := data.NewTransaction(d)
	devs := data.NewDeveloperRepository(d, logger)
	stats := data.NewStatsRepository(d, logger)
	xp := data.NewXPLedgerRepository(d, ids, logger)
	badges := data.NewBadgeRepository(d, ids, logger)
	cache := biz.NewCacheLayer(data.NewMemoryCache(100, clock.Now), c, logger)
	pub := biz.NewMultiPublisher()

	settings := biz.NewSettingsUsecase(data.NewSettingsRepository(d, logger), tx, cache, clock, logger)
	points := biz.NewPointsUsecase(tx, devs, data.NewPointsLedgerRepository(d, ids, logger), settings, cache, pub, clock, logger)
	streaks := biz.NewStreakUsecase(tx, devs, stats, xp, c, logger)
	catalog := biz.NewDefaultBadgeCatalog()
	evaluator := biz.NewBadgeEvaluator(catalog, tx, devs, stats, badges, xp, cache, c, logger)

	auth := biz.NewJWTAuthenticator(c, logger)
	local := data.NewMemoryRateLimitStore(clock.Now)
	gateway := biz.NewAuthGateway(auth, biz.NewRateLimiter(local, local, logger), catalog, logger)
	events := biz.NewEventManager(gateway, tx, devs, stats, xp, points, streaks, evaluator, settings, cache, pub, clock, c, logger)

	adminToken, err := auth.IssueToken(1000, []string{biz.RoleAdmin}, time.Hour)
	require.NoError(t, err)

	return &fixture{
		svc:   NewGamificationService(gateway, events, points, streaks, evaluator, settings, clock, logger),
		auth:  auth,
		admin: adminToken,
	}
}

// register 通过管理接口注册用户并签发令牌
func (f *fixture) register(t *testing.T, email string) (*biz.Developer, string) {
	reply, err := f.svc.RegisterDeveloper(withToken(f.admin), &RegisterDeveloperRequest{Email: email, DisplayName: "Dev"})
	require.NoError(t, err)
	token, err := f.auth.IssueToken(reply.Developer.ID, nil, time.Hour)
	require.NoError(t, err)
	return reply.Developer, token
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{name: "标准格式", header: "Bearer abc.def", want: "abc.def"},
		{name: "scheme 不区分大小写", header: "bearer abc", want: "abc"},
		{name: "多余空白", header: "  Bearer   abc  ", want: "abc"},
		{name: "其他 scheme", header: "Basic abc", want: ""},
		{name: "只有 scheme", header: "Bearer", want: ""},
		{name: "空", header: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BearerToken(tt.header))
		})
	}
}

func TestCredentialsFromContext(t *testing.T) {
	assert.Equal(t, biz.Credentials{Token: "tok"}, CredentialsFromContext(withToken("tok")))
	assert.Equal(t, biz.Credentials{}, CredentialsFromContext(context.Background()))
}

func TestGamificationService_SubmitEvent(t *testing.T) {
	f := newFixture(t)
	dev, token := f.register(t, "cv@example.com")
	other, _ := f.register(t, "other@example.com")

	tests := []struct {
		name       string
		token      string
		userID     int64
		wantReason string
	}{
		{name: "本人事件", token: token, userID: dev.ID},
		{name: "未登录", token: "", userID: dev.ID, wantReason: biz.ReasonUnauthorized},
		{name: "替他人提交", token: token, userID: other.ID, wantReason: biz.ReasonForbidden},
		{name: "令牌无效", token: "garbage", userID: dev.ID, wantReason: biz.ReasonUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply, err := f.svc.SubmitEvent(withToken(tt.token), &SubmitEventRequest{
				Type: biz.EventCVUploaded,
				Data: biz.EventData{UserID: tt.userID, CVID: "cv-" + tt.name},
			})

			if tt.wantReason != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantReason, errors.Reason(err))
				return
			}
			require.NoError(t, err)
			assert.Greater(t, reply.Result.XPAwarded, int64(0))
			assert.Contains(t, reply.Result.BadgesEarned, "first_cv")
		})
	}
}

func TestGamificationService_SubmitBatch(t *testing.T) {
	f := newFixture(t)
	dev, token := f.register(t, "batch@example.com")
	other, _ := f.register(t, "other@example.com")

	reply, err := f.svc.SubmitBatch(withToken(token), &SubmitBatchRequest{Events: []*SubmitEventRequest{
		{Type: biz.EventCVUploaded, Data: biz.EventData{UserID: dev.ID, CVID: "cv-1"}},
		{Type: biz.EventCVUploaded, Data: biz.EventData{UserID: other.ID, CVID: "cv-2"}},
		{Type: biz.EventSkillAdded, Data: biz.EventData{UserID: dev.ID, Skill: ""}},
	}})

	require.NoError(t, err)
	require.Len(t, reply.Items, 3)
	assert.Equal(t, 1, reply.Succeeded)
	assert.Equal(t, 2, reply.Failed)
	assert.NotNil(t, reply.Items[0].Result)
	require.NotNil(t, reply.Items[1].Error)
	assert.Equal(t, biz.ReasonForbidden, reply.Items[1].Error.Reason)
	assert.Equal(t, int32(403), reply.Items[1].Error.Code)
	require.NotNil(t, reply.Items[2].Error)
	assert.Equal(t, biz.ReasonInvalidData, reply.Items[2].Error.Reason)

	_, err = f.svc.SubmitBatch(withToken(token), &SubmitBatchRequest{})
	assert.Equal(t, biz.ReasonInvalidData, errors.Reason(err))
}

func TestGamificationService_MeRoutes(t *testing.T) {
	f := newFixture(t)
	dev, token := f.register(t, "me@example.com")
	ctx := withToken(token)

	_, err := f.svc.SubmitEvent(ctx, &SubmitEventRequest{Type: biz.EventCVUploaded, Data: biz.EventData{UserID: dev.ID, CVID: "cv-1"}})
	require.NoError(t, err)

	summary, err := f.svc.GetSummary(ctx, &GetSummaryRequest{})
	require.NoError(t, err)
	assert.Equal(t, dev.ID, summary.Summary.UserID)
	assert.GreaterOrEqual(t, summary.Summary.BadgeCount, int64(1))

	spend, err := f.svc.SpendPoints(ctx, &SpendPointsRequest{Action: biz.ActionCVAnalysis})
	require.NoError(t, err)
	assert.True(t, spend.Result.Approved)
	assert.Equal(t, int64(10), spend.Result.Cost)

	_, err = f.svc.SpendPoints(ctx, &SpendPointsRequest{Action: "TELEPORT"})
	assert.Equal(t, biz.ReasonUnknownAction, errors.Reason(err))

	history, err := f.svc.PointsHistory(ctx, &PageRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, history.Page)
	assert.Equal(t, defaultPageSize, history.PageSize)
	assert.GreaterOrEqual(t, history.Total, int64(1))

	xp, err := f.svc.XPHistory(ctx, &PageRequest{Page: 1, PageSize: 1000})
	require.NoError(t, err)
	assert.Equal(t, maxPageSize, xp.PageSize)
	assert.GreaterOrEqual(t, xp.Total, int64(2))

	badges, err := f.svc.ListBadges(ctx, &ListBadgesRequest{})
	require.NoError(t, err)
	earned := map[string]bool{}
	for _, b := range badges.Badges {
		earned[b.ID] = b.Earned
	}
	assert.True(t, earned["first_cv"])

	board, err := f.svc.Leaderboard(ctx, &LeaderboardRequest{})
	require.NoError(t, err)
	require.NotEmpty(t, board.Entries)
	assert.Equal(t, dev.ID, board.Entries[0].UserID)

	// 昨天没有活动，不能恢复连胜
	_, err = f.svc.RecoverStreak(ctx, &RecoverStreakRequest{})
	assert.Error(t, err)

	_, err = f.svc.GetSummary(withToken(""), &GetSummaryRequest{})
	assert.Equal(t, biz.ReasonUnauthorized, errors.Reason(err))
}

func TestGamificationService_AdminRoutes(t *testing.T) {
	f := newFixture(t)
	dev, token := f.register(t, "admin-target@example.com")
	adminCtx := withToken(f.admin)

	t.Run("普通用户不能访问", func(t *testing.T) {
		ctx := withToken(token)
		_, err := f.svc.UpdateSetting(ctx, &UpdateSettingRequest{Key: string(biz.SettingPointsCosts), Value: json.RawMessage(`{}`)})
		assert.Equal(t, biz.ReasonForbidden, errors.Reason(err))
		_, err = f.svc.RegisterDeveloper(ctx, &RegisterDeveloperRequest{Email: "x@example.com"})
		assert.Equal(t, biz.ReasonForbidden, errors.Reason(err))
		_, err = f.svc.AwardPoints(ctx, &AwardPointsRequest{ID: dev.ID})
		assert.Equal(t, biz.ReasonForbidden, errors.Reason(err))
	})

	t.Run("未知配置项", func(t *testing.T) {
		_, err := f.svc.UpdateSetting(adminCtx, &UpdateSettingRequest{Key: "nope", Value: json.RawMessage(`{}`)})
		assert.Equal(t, biz.ReasonUnknownSetting, errors.Reason(err))
	})

	t.Run("调整订阅等级", func(t *testing.T) {
		reply, err := f.svc.ChangeTier(adminCtx, &ChangeTierRequest{ID: dev.ID, Tier: biz.TierPro})
		require.NoError(t, err)
		assert.Equal(t, biz.TierPro, reply.Developer.SubscriptionTier)

		_, err = f.svc.ChangeTier(adminCtx, &ChangeTierRequest{ID: 999999, Tier: biz.TierPro})
		assert.Equal(t, biz.ReasonDeveloperNotFound, errors.Reason(err))
	})

	t.Run("重复注册", func(t *testing.T) {
		_, err := f.svc.RegisterDeveloper(adminCtx, &RegisterDeveloperRequest{Email: "admin-target@example.com"})
		assert.Equal(t, biz.ReasonDeveloperExists, errors.Reason(err))
	})
}

func TestToTransportError(t *testing.T) {
	svc := &GamificationService{log: log.NewHelper(log.DefaultLogger)}

	tests := []struct {
		name       string
		err        error
		wantCode   int32
		wantReason string
	}{
		{name: "业务错误原样返回", err: biz.NewRateLimitedError(30 * time.Second), wantCode: 429, wantReason: biz.ReasonRateLimited},
		{name: "包装过的业务错误", err: fmt.Errorf("wrap: %w", biz.ErrForbidden), wantCode: 403, wantReason: biz.ReasonForbidden},
		{name: "重复发放", err: biz.ErrDuplicateAward, wantCode: 409, wantReason: ReasonDuplicateAward},
		{name: "超时", err: context.DeadlineExceeded, wantCode: 504, wantReason: ReasonTimeout},
		{name: "未知错误不透出", err: fmt.Errorf("dial tcp 10.0.0.1:3306: refused"), wantCode: 500, wantReason: ReasonInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := svc.toTransportError(context.Background(), "Test", tt.err)
			assert.Equal(t, tt.wantCode, got.Code)
			assert.Equal(t, tt.wantReason, got.Reason)
			assert.NotContains(t, got.Message, "10.0.0.1")
		})
	}
}

func TestNewStandardErrorResponse(t *testing.T) {
	assert.Nil(t, NewStandardErrorResponse(nil))

	retryTests := []struct {
		name       string
		retryAfter time.Duration
		want       string
	}{
		{name: "整秒", retryAfter: 61 * time.Second, want: "61"},
		{name: "不足一秒向上取整", retryAfter: 60*time.Second + 200*time.Millisecond, want: "61"},
		{name: "至少一秒", retryAfter: 0, want: "1"},
	}
	for _, tt := range retryTests {
		t.Run(tt.name, func(t *testing.T) {
			resp := NewStandardErrorResponse(biz.NewRateLimitedError(tt.retryAfter))
			assert.Equal(t, 429, resp.Code)
			assert.Equal(t, biz.ReasonRateLimited, resp.Reason)
			assert.Equal(t, tt.want, resp.Metadata[biz.MetadataRetryAfter])
			assert.Equal(t, GetFriendlyErrorMessage(biz.ReasonRateLimited), resp.Message)
		})
	}

	resp := NewStandardErrorResponse(fmt.Errorf("boom"))
	assert.Equal(t, 500, resp.Code)
	assert.Equal(t, ReasonInternal, resp.Reason)
	assert.Empty(t, resp.Detail)

	assert.Equal(t, "操作失败，请稍后重试", GetFriendlyErrorMessage("CODEC"))
}
