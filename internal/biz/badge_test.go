package biz

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// 2025-03-10 是周一
var monday = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func TestDefaultBadgeCatalog(t *testing.T) {
	catalog := NewDefaultBadgeCatalog()
	all := catalog.All()
	assert.Len(t, all, 36)

	seen := map[string]bool{}
	for _, def := range all {
		assert.False(t, seen[def.ID], "duplicate badge id %s", def.ID)
		seen[def.ID] = true
		assert.NotNil(t, def.Requirement, "badge %s", def.ID)
		assert.NotEmpty(t, def.Triggers, "badge %s", def.ID)
		for _, et := range def.Triggers {
			assert.True(t, KnownEventType(et), "badge %s trigger %s", def.ID, et)
		}
	}

	def, ok := catalog.Get("week_warrior")
	require.True(t, ok)
	assert.Equal(t, StreakLengthRequirement{Days: 7}, def.Requirement)
}

func TestNewBadgeCatalogIgnoresDuplicateIDs(t *testing.T) {
	catalog := NewBadgeCatalog([]*BadgeDefinition{
		{ID: "a", Name: "first"},
		{ID: "a", Name: "second"},
	})
	require.Len(t, catalog.All(), 1)
	def, _ := catalog.Get("a")
	assert.Equal(t, "first", def.Name)
}

func TestDecodeRequirement(t *testing.T) {
	r, err := DecodeRequirement(KindActivityHour, json.RawMessage(`{"from_hour":22,"to_hour":4}`))
	require.NoError(t, err)
	assert.Equal(t, ActivityHourRequirement{FromHour: 22, ToHour: 4}, r)

	kind, params, err := EncodeRequirement(r)
	require.NoError(t, err)
	assert.Equal(t, KindActivityHour, kind)
	assert.JSONEq(t, `{"from_hour":22,"to_hour":4}`, string(params))

	r, err = DecodeRequirement("moon_phase", json.RawMessage(`{"phase":"full"}`))
	require.NoError(t, err)
	unknown, ok := r.(UnknownRequirement)
	require.True(t, ok)
	assert.Equal(t, RequirementKind("moon_phase"), unknown.Kind())

	_, err = DecodeRequirement(KindStreakLength, json.RawMessage(`{"days":"seven"}`))
	assert.Error(t, err)
}

func TestEventBadgeIndex_Candidates(t *testing.T) {
	idx := NewEventBadgeIndex(NewDefaultBadgeCatalog())
	ids := func(defs []*BadgeDefinition) map[string]bool {
		out := map[string]bool{}
		for _, d := range defs {
			out[d.ID] = true
		}
		return out
	}

	tests := []struct {
		name    string
		event   EventType
		pc      PruneContext
		want    []string
		notWant []string
	}{
		{
			name:    "工作日剪掉周末徽章",
			event:   EventCVUploaded,
			pc:      PruneContext{At: monday, Level: 1, Streak: 0},
			want:    []string{"first_cv", "cv_collector", "night_owl"},
			notWant: []string{"weekend_warrior", "streak_starter", "first_application"},
		},
		{
			name:  "周末保留周末徽章",
			event: EventCVUploaded,
			pc:    PruneContext{At: monday.AddDate(0, 0, -1), Level: 1, Streak: 0},
			want:  []string{"weekend_warrior"},
		},
		{
			name:    "连胜不足时剪掉更长的连胜徽章",
			event:   EventDailyLogin,
			pc:      PruneContext{At: monday, Level: 1, Streak: 7},
			want:    []string{"streak_starter", "week_warrior", "early_adopter"},
			notWant: []string{"fortnight_focus", "streak_legend"},
		},
		{
			name:    "等级不足时剪掉高阶徽章",
			event:   EventApplicationSubmitted,
			pc:      PruneContext{At: monday, Level: 4},
			want:    []string{"first_application", "job_hunter"},
			notWant: []string{"application_machine"},
		},
		{
			name:  "未参与任何徽章的事件",
			event: EventType("UNKNOWN"),
			pc:    PruneContext{At: monday},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ids(idx.Candidates(tt.event, tt.pc))
			for _, id := range tt.want {
				assert.True(t, got[id], "expected candidate %s", id)
			}
			for _, id := range tt.notWant {
				assert.False(t, got[id], "unexpected candidate %s", id)
			}
		})
	}
	assert.Equal(t, 0, idx.Size(EventType("UNKNOWN")))
}

func TestHourInRange(t *testing.T) {
	assert.True(t, hourInRange(23, 22, 4))
	assert.True(t, hourInRange(2, 22, 4))
	assert.False(t, hourInRange(4, 22, 4))
	assert.True(t, hourInRange(6, 5, 8))
	assert.False(t, hourInRange(8, 5, 8))
}

type badgeMocks struct {
	devRepo *MockDeveloperRepository
	stats   *MockStatsRepository
	badges  *MockBadgeRepository
	xp      *MockXPLedgerRepository
}

func newBadgeEvaluatorForTest(catalog *BadgeCatalog) (*BadgeEvaluator, *badgeMocks) {
	m := &badgeMocks{
		devRepo: new(MockDeveloperRepository),
		stats:   new(MockStatsRepository),
		badges:  new(MockBadgeRepository),
		xp:      new(MockXPLedgerRepository),
	}
	layer, _ := newTestCacheLayer()
	e := NewBadgeEvaluator(catalog, directTx{}, m.devRepo, m.stats, m.badges, m.xp, layer, testGamificationConf(), getTestLogger())
	return e, m
}

func TestBadgeEvaluator_Evaluate(t *testing.T) {
	tests := []struct {
		name       string
		event      EventType
		stats      *DeveloperStats
		mockFn     func(m *badgeMocks, locked *Developer)
		wantBadges []string
		wantXP     int64
	}{
		{
			name:  "首次上传简历获得徽章",
			event: EventCVUploaded,
			stats: &DeveloperStats{UserID: 1, CVUploads: 1},
			mockFn: func(m *badgeMocks, locked *Developer) {
				m.badges.On("Has", mock.Anything, int64(1), "first_cv").Return(false, nil)
				m.badges.On("UpsertDefinition", mock.Anything, mock.Anything).Return(nil)
				m.badges.On("Award", mock.Anything, mock.MatchedBy(func(a *UserBadgeAward) bool { return a.BadgeID == "first_cv" })).Return(nil)
				m.xp.On("Append", mock.Anything, mock.MatchedBy(func(e *XPLedgerEntry) bool {
					return e.Source == XPSourceBadge && e.SourceID == "first_cv" && e.Amount == 25
				})).Return(nil)
				m.devRepo.On("Save", mock.Anything, locked).Return(nil)
			},
			wantBadges: []string{"first_cv"},
			wantXP:     25,
		},
		{
			name:  "并发下已被发放则跳过",
			event: EventCVUploaded,
			stats: &DeveloperStats{UserID: 1, CVUploads: 1},
			mockFn: func(m *badgeMocks, _ *Developer) {
				m.badges.On("Has", mock.Anything, int64(1), "first_cv").Return(true, nil)
			},
		},
		{
			name:   "隐藏徽章不会自动发放",
			event:  EventAchievementUnlocked,
			stats:  &DeveloperStats{UserID: 1, Achievements: 1},
			mockFn: func(*badgeMocks, *Developer) {},
		},
		{
			name:  "早期用户按注册名次判定",
			event: EventDailyLogin,
			stats: &DeveloperStats{UserID: 1},
			mockFn: func(m *badgeMocks, locked *Developer) {
				m.devRepo.On("EarlyAdopterRank", mock.Anything, mock.Anything).Return(int64(3), nil).Once()
				m.badges.On("Has", mock.Anything, int64(1), "early_adopter").Return(false, nil)
				m.badges.On("UpsertDefinition", mock.Anything, mock.Anything).Return(nil)
				m.badges.On("Award", mock.Anything, mock.Anything).Return(nil)
				m.xp.On("Append", mock.Anything, mock.Anything).Return(nil)
				m.devRepo.On("Save", mock.Anything, locked).Return(nil)
			},
			wantBadges: []string{"early_adopter"},
			wantXP:     100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, m := newBadgeEvaluatorForTest(NewDefaultBadgeCatalog())
			locked := &Developer{ID: 1, CurrentLevel: 1}
			m.devRepo.On("Get", mock.Anything, int64(1)).Return(&Developer{ID: 1, CurrentLevel: 1}, nil)
			m.devRepo.On("GetForUpdate", mock.Anything, int64(1)).Return(locked, nil).Maybe()
			m.badges.On("ListByUser", mock.Anything, int64(1)).Return([]*UserBadgeAward{}, nil)
			m.stats.On("Get", mock.Anything, int64(1)).Return(tt.stats, nil)
			tt.mockFn(m, locked)

			result, err := e.Evaluate(context.Background(), 1, EventContext{Type: tt.event, At: monday})
			require.NoError(t, err)

			var got []string
			for _, def := range result.Awarded {
				got = append(got, def.ID)
			}
			assert.Equal(t, tt.wantBadges, got)
			assert.Equal(t, tt.wantXP, result.XP)
			assert.Equal(t, tt.wantXP, locked.TotalXP)
			m.badges.AssertExpectations(t)
			m.xp.AssertExpectations(t)
		})
	}
}

func TestBadgeEvaluator_SkipsUnknownRequirement(t *testing.T) {
	catalog := NewBadgeCatalog([]*BadgeDefinition{
		{ID: "mystery", Name: "Mystery", XPReward: 10,
			Requirement: UnknownRequirement{RawKind: "moon_phase"}, Triggers: []EventType{EventCVUploaded}},
	})
	e, m := newBadgeEvaluatorForTest(catalog)
	m.devRepo.On("Get", mock.Anything, int64(1)).Return(&Developer{ID: 1, CurrentLevel: 1}, nil)
	m.badges.On("ListByUser", mock.Anything, int64(1)).Return([]*UserBadgeAward{}, nil)
	m.stats.On("Get", mock.Anything, int64(1)).Return(&DeveloperStats{UserID: 1}, nil)

	result, err := e.Evaluate(context.Background(), 1, EventContext{Type: EventCVUploaded, At: monday})

	require.NoError(t, err)
	assert.Empty(t, result.Awarded)
	m.badges.AssertNotCalled(t, "Award", mock.Anything, mock.Anything)
}

func TestBadgeEvaluator_ListBadgesMasksHidden(t *testing.T) {
	e, m := newBadgeEvaluatorForTest(NewDefaultBadgeCatalog())
	m.badges.On("ListByUser", mock.Anything, int64(1)).Return([]*UserBadgeAward{
		{UserID: 1, BadgeID: "first_cv", EarnedAt: monday},
	}, nil).Once()

	views, err := e.ListBadges(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, views, 36)

	byID := map[string]*BadgeView{}
	for _, v := range views {
		byID[v.ID] = v
	}
	assert.True(t, byID["first_cv"].Earned)
	assert.False(t, byID["cv_collector"].Earned)
	assert.Equal(t, "???", byID["secret_keeper"].Name)

	// 第二次读取命中缓存
	_, err = e.ListBadges(context.Background(), 1)
	require.NoError(t, err)
	m.badges.AssertNumberOfCalls(t, "ListByUser", 1)
}

func TestLoadBadgeCatalog(t *testing.T) {
	defaults := NewDefaultBadgeCatalog()

	t.Run("存储的定义覆盖内置定义并追加新徽章", func(t *testing.T) {
		repo := new(MockBadgeRepository)
		repo.On("ListDefinitions", mock.Anything).Return([]*BadgeDefinition{
			{ID: "first_cv", Name: "Renamed", XPReward: 40, Requirement: ActivityCountRequirement{Activity: ActivityCVUploads, Min: 1}, Triggers: []EventType{EventCVUploaded}},
			{ID: "custom_badge", Name: "Custom", XPReward: 10, Requirement: ActivityCountRequirement{Activity: ActivitySkillsAdded, Min: 3}, Triggers: []EventType{EventSkillAdded}},
			{ID: "mystery", Name: "Mystery", Requirement: UnknownRequirement{RawKind: "moon_phase"}},
		}, nil)

		catalog := LoadBadgeCatalog(repo, getTestLogger())

		assert.Len(t, catalog.All(), len(defaults.All())+2)
		def, ok := catalog.Get("first_cv")
		require.True(t, ok)
		assert.Equal(t, "Renamed", def.Name)
		assert.Equal(t, int64(40), def.XPReward)
		_, ok = catalog.Get("custom_badge")
		assert.True(t, ok)
		_, ok = catalog.Get("mystery")
		assert.True(t, ok)
		repo.AssertExpectations(t)
	})

	t.Run("读取失败时使用内置目录", func(t *testing.T) {
		repo := new(MockBadgeRepository)
		repo.On("ListDefinitions", mock.Anything).Return([]*BadgeDefinition(nil), errors.New("db down"))

		catalog := LoadBadgeCatalog(repo, getTestLogger())

		assert.Len(t, catalog.All(), len(defaults.All()))
		def, ok := catalog.Get("first_cv")
		require.True(t, ok)
		assert.Equal(t, int64(25), def.XPReward)
	})
}
