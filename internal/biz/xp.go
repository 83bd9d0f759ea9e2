package biz

import (
	"context"
	"fmt"
	"math"
	"time"
)

// MaxLevel 等级上限
const MaxLevel = 100

// LevelDefinition 预定义等级
type LevelDefinition struct {
	Level      int    `json:"level"`
	RequiredXP int64  `json:"required_xp"`
	Title      string `json:"title"`
}

// levelTable 前十级，所需经验与外推公式 (level-1)^2*50 一致
var levelTable = []LevelDefinition{
	{Level: 1, RequiredXP: 0, Title: "Newcomer"},
	{Level: 2, RequiredXP: 50, Title: "Explorer"},
	{Level: 3, RequiredXP: 200, Title: "Apprentice"},
	{Level: 4, RequiredXP: 450, Title: "Contributor"},
	{Level: 5, RequiredXP: 800, Title: "Professional"},
	{Level: 6, RequiredXP: 1250, Title: "Specialist"},
	{Level: 7, RequiredXP: 1800, Title: "Expert"},
	{Level: 8, RequiredXP: 2450, Title: "Mentor"},
	{Level: 9, RequiredXP: 3200, Title: "Leader"},
	{Level: 10, RequiredXP: 4050, Title: "Visionary"},
}

const legendTitle = "Legend"

// XPForLevel 达到 level 所需的总经验
func XPForLevel(level int) int64 {
	if level <= 1 {
		return 0
	}
	if level <= len(levelTable) {
		return levelTable[level-1].RequiredXP
	}
	l := int64(level - 1)
	return l * l * 50
}

// LevelForXP 由总经验推导等级，超出预定义表后按 floor(sqrt(xp/50))+1 外推
func LevelForXP(totalXP int64) int {
	if totalXP <= 0 {
		return 1
	}
	last := levelTable[len(levelTable)-1]
	if totalXP < XPForLevel(last.Level+1) {
		level := 1
		for _, def := range levelTable {
			if totalXP >= def.RequiredXP {
				level = def.Level
			}
		}
		return level
	}

	level := int(math.Floor(math.Sqrt(float64(totalXP)/50))) + 1
	// 浮点开方在边界附近可能偏一位
	for level < MaxLevel && XPForLevel(level+1) <= totalXP {
		level++
	}
	for level > 1 && XPForLevel(level) > totalXP {
		level--
	}
	if level > MaxLevel {
		level = MaxLevel
	}
	return level
}

// LevelProgress 当前等级内的进度，满级为 1
func LevelProgress(totalXP int64, level int) float64 {
	if level >= MaxLevel {
		return 1
	}
	cur := XPForLevel(level)
	next := XPForLevel(level + 1)
	if next <= cur {
		return 1
	}
	p := float64(totalXP-cur) / float64(next-cur)
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}

// LevelTitle 等级称号
func LevelTitle(level int) string {
	if level < 1 {
		level = 1
	}
	if level <= len(levelTable) {
		return levelTable[level-1].Title
	}
	return legendTitle
}

// Levels 预定义等级表副本
func Levels() []LevelDefinition {
	out := make([]LevelDefinition, len(levelTable))
	copy(out, levelTable)
	return out
}

// StreakBonus 连胜积分奖励，连胜不足 3 天没有奖励，封顶 50
func StreakBonus(streak int) int64 {
	if streak < 3 {
		return 0
	}
	bonus := int64(streak/2) * 5
	if bonus > 50 {
		bonus = 50
	}
	return bonus
}

// TimeMultiplier 距上次活动 1 到 24 小时之间回归给 10% 加成
func TimeMultiplier(last *time.Time, now time.Time) float64 {
	if last == nil {
		return 1.0
	}
	gap := now.Sub(*last)
	if gap >= time.Hour && gap <= 24*time.Hour {
		return 1.10
	}
	return 1.0
}

// streakMilestones 按从大到小匹配，取第一个整除的里程碑
var streakMilestones = []struct {
	Days  int
	Bonus int64
}{
	{Days: 100, Bonus: 1000},
	{Days: 50, Bonus: 500},
	{Days: 30, Bonus: 250},
	{Days: 14, Bonus: 100},
	{Days: 7, Bonus: 50},
}

// MilestoneBonus 连胜里程碑经验，非里程碑返回 0
func MilestoneBonus(streak int) int64 {
	if streak <= 0 {
		return 0
	}
	for _, m := range streakMilestones {
		if streak%m.Days == 0 {
			return m.Bonus
		}
	}
	return 0
}

// XPSource 经验来源
type XPSource string

const (
	XPSourceCVUpload       XPSource = "CV_UPLOAD"
	XPSourceCVAnalysis     XPSource = "CV_ANALYSIS"
	XPSourceCVImprovement  XPSource = "CV_IMPROVEMENT"
	XPSourceApplication    XPSource = "APPLICATION"
	XPSourceProfileUpdate  XPSource = "PROFILE_UPDATE"
	XPSourceSkillAdded     XPSource = "SKILL_ADDED"
	XPSourceDailyLogin     XPSource = "DAILY_LOGIN"
	XPSourceChallenge      XPSource = "CHALLENGE"
	XPSourceAchievement    XPSource = "ACHIEVEMENT"
	XPSourceBadge          XPSource = "BADGE"
	XPSourceStreakBonus    XPSource = "STREAK_BONUS"
	XPSourceLevelUp        XPSource = "LEVEL_UP"
	XPSourceReferral       XPSource = "REFERRAL"
	XPSourceStreakRecovery XPSource = "STREAK_RECOVERY"
	XPSourceAdminOverride  XPSource = "ADMIN_OVERRIDE"
)

// XPSourcePolicy 来源的数额与去重规则
type XPSourcePolicy struct {
	DefaultXP        int64
	MaxXP            int64 // 0 表示不限
	RequiresSourceID bool
	Repeatable       bool
}

var xpSourcePolicies = map[XPSource]XPSourcePolicy{
	XPSourceCVUpload:       {DefaultXP: 25, MaxXP: 60, RequiresSourceID: true},
	XPSourceCVAnalysis:     {DefaultXP: 50, MaxXP: 120, RequiresSourceID: true},
	XPSourceCVImprovement:  {DefaultXP: 15, MaxXP: 40, RequiresSourceID: true},
	XPSourceApplication:    {DefaultXP: 20, MaxXP: 50, RequiresSourceID: true},
	XPSourceProfileUpdate:  {DefaultXP: 10, MaxXP: 25, RequiresSourceID: true},
	XPSourceSkillAdded:     {DefaultXP: 5, MaxXP: 15, RequiresSourceID: true},
	XPSourceDailyLogin:     {DefaultXP: 10, MaxXP: 25, RequiresSourceID: true},
	XPSourceChallenge:      {DefaultXP: 75, MaxXP: 200, RequiresSourceID: true},
	XPSourceAchievement:    {DefaultXP: 100, MaxXP: 500, RequiresSourceID: true},
	XPSourceBadge:          {DefaultXP: 0, MaxXP: 1000, RequiresSourceID: true},
	XPSourceStreakBonus:    {DefaultXP: 0, MaxXP: 1000, RequiresSourceID: true, Repeatable: true},
	XPSourceLevelUp:        {DefaultXP: 0, MaxXP: 0, RequiresSourceID: true},
	XPSourceReferral:       {DefaultXP: 50, MaxXP: 100, RequiresSourceID: true},
	XPSourceStreakRecovery: {DefaultXP: 0, MaxXP: 500, RequiresSourceID: true, Repeatable: true},
	XPSourceAdminOverride:  {Repeatable: true},
}

// SourcePolicy 查询来源规则
func SourcePolicy(source XPSource) (XPSourcePolicy, bool) {
	p, ok := xpSourcePolicies[source]
	return p, ok
}

// DefaultXPRewards 默认经验奖励表
func DefaultXPRewards() map[XPSource]int64 {
	out := make(map[XPSource]int64, len(xpSourcePolicies))
	for source, p := range xpSourcePolicies {
		if p.DefaultXP > 0 {
			out[source] = p.DefaultXP
		}
	}
	return out
}

// ValidateAward 校验单笔经验发放
func ValidateAward(source XPSource, amount int64, sourceID string) error {
	policy, ok := xpSourcePolicies[source]
	if !ok {
		return ErrInvalidAmount.WithMetadata(map[string]string{"source": string(source)})
	}
	if source == XPSourceStreakRecovery {
		if amount > 0 {
			return ErrInvalidAmount
		}
	} else if amount < 0 {
		return ErrInvalidAmount
	}
	if source != XPSourceAdminOverride {
		abs := amount
		if abs < 0 {
			abs = -abs
		}
		if abs > policy.MaxXP {
			return ErrExceedsSourceMaximum.WithMetadata(map[string]string{
				"source": string(source),
				"max":    fmt.Sprint(policy.MaxXP),
			})
		}
	}
	if policy.RequiresSourceID && sourceID == "" {
		return ErrMissingSourceID.WithMetadata(map[string]string{"source": string(source)})
	}
	return nil
}

// ScaledXP round(base * 订阅倍率 * 时间倍率)
func ScaledXP(base int64, tierMultiplier, timeMultiplier float64) int64 {
	return int64(math.Round(float64(base) * tierMultiplier * timeMultiplier))
}

// XPLedgerEntry 经验流水，只追加
type XPLedgerEntry struct {
	ID          int64     `gorm:"column:id;primaryKey;autoIncrement:false" json:"id"`
	UserID      int64     `gorm:"column:user_id;not null;index:idx_xp_user_created;uniqueIndex:uk_xp_dedupe" json:"user_id"`
	Amount      int64     `gorm:"column:amount;not null" json:"amount"`
	Source      XPSource  `gorm:"column:source;type:varchar(32);not null;index:idx_xp_source" json:"source"`
	SourceID    string    `gorm:"column:source_id;type:varchar(128);index:idx_xp_source" json:"source_id"`
	DedupeKey   *string   `gorm:"column:dedupe_key;type:varchar(192);uniqueIndex:uk_xp_dedupe" json:"-"`
	Description string    `gorm:"column:description;type:varchar(255)" json:"description"`
	CreatedAt   time.Time `gorm:"column:created_at;not null;index:idx_xp_user_created" json:"created_at"`
}

func (XPLedgerEntry) TableName() string {
	return "xp_ledger"
}

// NewXPLedgerEntry 不可重复的来源会带上去重键
func NewXPLedgerEntry(userID int64, source XPSource, amount int64, sourceID, description string, at time.Time) *XPLedgerEntry {
	entry := &XPLedgerEntry{
		UserID:      userID,
		Amount:      amount,
		Source:      source,
		SourceID:    sourceID,
		Description: description,
		CreatedAt:   at,
	}
	if p, ok := xpSourcePolicies[source]; ok && !p.Repeatable && sourceID != "" {
		key := string(source) + ":" + sourceID
		entry.DedupeKey = &key
	}
	return entry
}

// XPLedgerRepository 经验流水存储
type XPLedgerRepository interface {
	// Append 唯一约束冲突时返回 ErrDuplicateAward
	Append(ctx context.Context, entry *XPLedgerEntry) error
	Exists(ctx context.Context, userID int64, source XPSource, sourceID string) (bool, error)
	ExistsSince(ctx context.Context, userID int64, source XPSource, sourceID string, since time.Time) (bool, error)
	ListByUser(ctx context.Context, userID int64, page, pageSize int) ([]*XPLedgerEntry, int64, error)
}
