package biz

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestLevelForXP(t *testing.T) {
	tests := []struct {
		name    string
		totalXP int64
		want    int
	}{
		{name: "零经验为 1 级", totalXP: 0, want: 1},
		{name: "负数按 0 处理", totalXP: -10, want: 1},
		{name: "刚好达到 2 级", totalXP: 50, want: 2},
		{name: "差一点到 2 级", totalXP: 49, want: 1},
		{name: "预定义表最高级", totalXP: 4050, want: 10},
		{name: "外推区间边界", totalXP: 5000, want: 11},
		{name: "外推区间边界前一点", totalXP: 4999, want: 10},
		{name: "外推区间中段", totalXP: 20000, want: 21},
		{name: "满级封顶", totalXP: 10_000_000, want: MaxLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LevelForXP(tt.totalXP))
		})
	}
}

func TestXPForLevel(t *testing.T) {
	assert.Equal(t, int64(0), XPForLevel(0))
	assert.Equal(t, int64(0), XPForLevel(1))
	assert.Equal(t, int64(800), XPForLevel(5))
	assert.Equal(t, int64(5000), XPForLevel(11))
	assert.Equal(t, int64(99*99*50), XPForLevel(MaxLevel))
}

func TestLevelProgress(t *testing.T) {
	assert.InDelta(t, 0.0, LevelProgress(50, 2), 1e-9)
	assert.InDelta(t, 0.5, LevelProgress(125, 2), 1e-9)
	assert.Equal(t, 1.0, LevelProgress(10_000_000, MaxLevel))
}

func TestLevelTitle(t *testing.T) {
	assert.Equal(t, "Newcomer", LevelTitle(1))
	assert.Equal(t, "Visionary", LevelTitle(10))
	assert.Equal(t, "Legend", LevelTitle(42))
}

func TestStreakBonus(t *testing.T) {
	tests := []struct {
		streak int
		want   int64
	}{
		{streak: 0, want: 0},
		{streak: 2, want: 0},
		{streak: 3, want: 5},
		{streak: 10, want: 25},
		{streak: 20, want: 50},
		{streak: 365, want: 50},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StreakBonus(tt.streak), "streak %d", tt.streak)
	}
}

func TestMilestoneBonus(t *testing.T) {
	tests := []struct {
		streak int
		want   int64
	}{
		{streak: 7, want: 50},
		{streak: 14, want: 100},
		{streak: 21, want: 50},
		{streak: 30, want: 250},
		{streak: 50, want: 500},
		{streak: 100, want: 1000},
		{streak: 200, want: 1000},
		{streak: 8, want: 0},
		{streak: 0, want: 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MilestoneBonus(tt.streak), "streak %d", tt.streak)
	}
}

func TestTimeMultiplier(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time {
		v := now.Add(-d)
		return &v
	}

	tests := []struct {
		name string
		last *time.Time
		want float64
	}{
		{name: "没有历史活动", last: nil, want: 1.0},
		{name: "刚刚活动过", last: at(10 * time.Minute), want: 1.0},
		{name: "一小时后回归", last: at(time.Hour), want: 1.10},
		{name: "一天内回归", last: at(24 * time.Hour), want: 1.10},
		{name: "超过一天", last: at(25 * time.Hour), want: 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TimeMultiplier(tt.last, now))
		})
	}
}

func TestValidateAward(t *testing.T) {
	tests := []struct {
		name     string
		source   XPSource
		amount   int64
		sourceID string
		wantErr  error
	}{
		{name: "正常发放", source: XPSourceCVUpload, amount: 25, sourceID: "cv-1"},
		{name: "负数", source: XPSourceCVUpload, amount: -1, sourceID: "cv-1", wantErr: ErrInvalidAmount},
		{name: "超过上限", source: XPSourceCVUpload, amount: 61, sourceID: "cv-1", wantErr: ErrExceedsSourceMaximum},
		{name: "缺少 sourceId", source: XPSourceChallenge, amount: 75, wantErr: ErrMissingSourceID},
		{name: "恢复连胜只能扣减", source: XPSourceStreakRecovery, amount: 10, sourceID: "r", wantErr: ErrInvalidAmount},
		{name: "恢复连胜扣减上限", source: XPSourceStreakRecovery, amount: -501, sourceID: "r", wantErr: ErrExceedsSourceMaximum},
		{name: "恢复连胜扣减", source: XPSourceStreakRecovery, amount: -500, sourceID: "r"},
		{name: "管理员不受上限约束", source: XPSourceAdminOverride, amount: 1_000_000},
		{name: "未知来源", source: XPSource("BOGUS"), amount: 1, wantErr: ErrInvalidAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAward(tt.source, tt.amount, tt.sourceID)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestScaledXP(t *testing.T) {
	assert.Equal(t, int64(25), ScaledXP(25, 1.0, 1.0))
	assert.Equal(t, int64(28), ScaledXP(25, 1.1, 1.0))
	assert.Equal(t, int64(41), ScaledXP(25, 1.5, 1.1))
}

func TestNewXPLedgerEntryDedupeKey(t *testing.T) {
	now := time.Now()
	e := NewXPLedgerEntry(1, XPSourceCVUpload, 25, "cv-1", "", now)
	if assert.NotNil(t, e.DedupeKey) {
		assert.Equal(t, "CV_UPLOAD:cv-1", *e.DedupeKey)
	}
	assert.Nil(t, NewXPLedgerEntry(1, XPSourceStreakRecovery, -10, "r", "", now).DedupeKey)
}

func TestLevelProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	// 区间性质只在满级之前成立，满级之后等级封顶
	upper := XPForLevel(MaxLevel+1) - 1

	properties.Property("经验落在当前等级区间内", prop.ForAll(
		func(xp int64) bool {
			level := LevelForXP(xp)
			return XPForLevel(level) <= xp && xp < XPForLevel(level+1)
		},
		gen.Int64Range(0, upper),
	))

	properties.Property("满级之后等级封顶", prop.ForAll(
		func(xp int64) bool {
			return LevelForXP(xp) == MaxLevel && LevelProgress(xp, MaxLevel) == 1
		},
		gen.Int64Range(XPForLevel(MaxLevel), 1_000_000_000),
	))

	properties.Property("等级随经验单调不减", prop.ForAll(
		func(a, b int64) bool {
			if a > b {
				a, b = b, a
			}
			return LevelForXP(a) <= LevelForXP(b)
		},
		gen.Int64Range(0, upper),
		gen.Int64Range(0, upper),
	))

	properties.Property("进度在 0 到 1 之间", prop.ForAll(
		func(xp int64) bool {
			p := LevelProgress(xp, LevelForXP(xp))
			return p >= 0 && p <= 1
		},
		gen.Int64Range(0, upper),
	))

	properties.Property("连胜积分奖励不超过 50", prop.ForAll(
		func(streak int) bool {
			b := StreakBonus(streak)
			return b >= 0 && b <= 50
		},
		gen.IntRange(0, 10_000),
	))

	properties.TestingRun(t)
}
