package biz

import (
	"context"
	"os"
	"path"
	"sync"
	"time"

	"gamification/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/mock"
)

// 模拟 DeveloperRepository
type MockDeveloperRepository struct {
	mock.Mock
}

func (m *MockDeveloperRepository) Create(ctx context.Context, dev *Developer) error {
	args := m.Called(ctx, dev)
	return args.Error(0)
}

func (m *MockDeveloperRepository) Get(ctx context.Context, id int64) (*Developer, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Developer), args.Error(1)
}

func (m *MockDeveloperRepository) GetForUpdate(ctx context.Context, id int64) (*Developer, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Developer), args.Error(1)
}

func (m *MockDeveloperRepository) Save(ctx context.Context, dev *Developer) error {
	args := m.Called(ctx, dev)
	return args.Error(0)
}

func (m *MockDeveloperRepository) EarlyAdopterRank(ctx context.Context, dev *Developer) (int64, error) {
	args := m.Called(ctx, dev)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockDeveloperRepository) TopByXP(ctx context.Context, limit int) ([]*Developer, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]*Developer), args.Error(1)
}

// 模拟 StatsRepository
type MockStatsRepository struct {
	mock.Mock
}

func (m *MockStatsRepository) Get(ctx context.Context, userID int64) (*DeveloperStats, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*DeveloperStats), args.Error(1)
}

func (m *MockStatsRepository) Save(ctx context.Context, stats *DeveloperStats) error {
	args := m.Called(ctx, stats)
	return args.Error(0)
}

// 模拟 XPLedgerRepository
type MockXPLedgerRepository struct {
	mock.Mock
}

func (m *MockXPLedgerRepository) Append(ctx context.Context, entry *XPLedgerEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockXPLedgerRepository) Exists(ctx context.Context, userID int64, source XPSource, sourceID string) (bool, error) {
	args := m.Called(ctx, userID, source, sourceID)
	return args.Bool(0), args.Error(1)
}

func (m *MockXPLedgerRepository) ExistsSince(ctx context.Context, userID int64, source XPSource, sourceID string, since time.Time) (bool, error) {
	args := m.Called(ctx, userID, source, sourceID, since)
	return args.Bool(0), args.Error(1)
}

func (m *MockXPLedgerRepository) ListByUser(ctx context.Context, userID int64, page, pageSize int) ([]*XPLedgerEntry, int64, error) {
	args := m.Called(ctx, userID, page, pageSize)
	return args.Get(0).([]*XPLedgerEntry), args.Get(1).(int64), args.Error(2)
}

// 模拟 PointsLedgerRepository
type MockPointsLedgerRepository struct {
	mock.Mock
}

func (m *MockPointsLedgerRepository) Append(ctx context.Context, entry *PointsLedgerEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockPointsLedgerRepository) Exists(ctx context.Context, userID int64, source PointsSource, sourceID string) (bool, error) {
	args := m.Called(ctx, userID, source, sourceID)
	return args.Bool(0), args.Error(1)
}

func (m *MockPointsLedgerRepository) ListByUser(ctx context.Context, userID int64, page, pageSize int) ([]*PointsLedgerEntry, int64, error) {
	args := m.Called(ctx, userID, page, pageSize)
	return args.Get(0).([]*PointsLedgerEntry), args.Get(1).(int64), args.Error(2)
}

// 模拟 BadgeRepository
type MockBadgeRepository struct {
	mock.Mock
}

func (m *MockBadgeRepository) UpsertDefinition(ctx context.Context, def *BadgeDefinition) error {
	args := m.Called(ctx, def)
	return args.Error(0)
}

func (m *MockBadgeRepository) ListDefinitions(ctx context.Context) ([]*BadgeDefinition, error) {
	args := m.Called(ctx)
	return args.Get(0).([]*BadgeDefinition), args.Error(1)
}

func (m *MockBadgeRepository) ListByUser(ctx context.Context, userID int64) ([]*UserBadgeAward, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]*UserBadgeAward), args.Error(1)
}

func (m *MockBadgeRepository) Has(ctx context.Context, userID int64, badgeID string) (bool, error) {
	args := m.Called(ctx, userID, badgeID)
	return args.Bool(0), args.Error(1)
}

func (m *MockBadgeRepository) Award(ctx context.Context, award *UserBadgeAward) error {
	args := m.Called(ctx, award)
	return args.Error(0)
}

func (m *MockBadgeRepository) Count(ctx context.Context, userID int64) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

// 模拟 SettingsRepository
type MockSettingsRepository struct {
	mock.Mock
}

func (m *MockSettingsRepository) ListActive(ctx context.Context) ([]*ConfigurationSnapshot, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*ConfigurationSnapshot), args.Error(1)
}

func (m *MockSettingsRepository) GetActive(ctx context.Context, key SettingKey) (*ConfigurationSnapshot, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ConfigurationSnapshot), args.Error(1)
}

func (m *MockSettingsRepository) Deactivate(ctx context.Context, key SettingKey) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockSettingsRepository) Create(ctx context.Context, snap *ConfigurationSnapshot) error {
	args := m.Called(ctx, snap)
	return args.Error(0)
}

func (m *MockSettingsRepository) History(ctx context.Context, key SettingKey) ([]*ConfigurationSnapshot, error) {
	args := m.Called(ctx, key)
	return args.Get(0).([]*ConfigurationSnapshot), args.Error(1)
}

// 模拟 Publisher
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, update *GamificationUpdate) error {
	args := m.Called(ctx, update)
	return args.Error(0)
}

// directTx 直接执行回调的事务
type directTx struct{}

func (directTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// mapCache 进程内缓存
type mapCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMapCache() *mapCache {
	return &mapCache{data: map[string][]byte{}}
}

func (c *mapCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok
}

func (c *mapCache) SetEX(_ context.Context, key string, value []byte, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
}

func (c *mapCache) DeletePattern(_ context.Context, pattern string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.data {
		if ok, _ := path.Match(pattern, k); ok {
			delete(c.data, k)
		}
	}
}

// fixedClock 固定时间
type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

// 获取测试用logger
func getTestLogger() log.Logger {
	return log.NewStdLogger(os.Stdout)
}

func testGamificationConf() *conf.Gamification {
	return &conf.Gamification{
		Timezone:        "UTC",
		CacheTTLSeconds: 60,
		Workers:         2,
		JwtSecret:       "test-access-secret-key-for-unit-testing-only",
	}
}

func newTestCacheLayer() (*CacheLayer, *mapCache) {
	c := newMapCache()
	return NewCacheLayer(c, testGamificationConf(), getTestLogger()), c
}

// newDefaultSettings 存储中没有任何配置行
func newDefaultSettings() *SettingsUsecase {
	repo := new(MockSettingsRepository)
	repo.On("ListActive", mock.Anything).Return([]*ConfigurationSnapshot{}, nil)
	layer, _ := newTestCacheLayer()
	return NewSettingsUsecase(repo, directTx{}, layer, NewSystemClock(), getTestLogger())
}
