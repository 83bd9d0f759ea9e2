package biz

import (
	"context"
	"time"
)

// SubscriptionTier 订阅等级
type SubscriptionTier string

const (
	TierFree       SubscriptionTier = "FREE"
	TierBasic      SubscriptionTier = "BASIC"
	TierPro        SubscriptionTier = "PRO"
	TierEnterprise SubscriptionTier = "ENTERPRISE"
)

// ProfileSection 个人资料中参与完整度计算的板块
type ProfileSection string

const (
	SectionHeadline   ProfileSection = "headline"
	SectionBio        ProfileSection = "bio"
	SectionLocation   ProfileSection = "location"
	SectionGithub     ProfileSection = "github"
	SectionLinkedin   ProfileSection = "linkedin"
	SectionAvatar     ProfileSection = "avatar"
	SectionExperience ProfileSection = "experience"
	SectionEducation  ProfileSection = "education"
)

// profileSections 板块顺序即位图中的位序
var profileSections = []ProfileSection{
	SectionHeadline, SectionBio, SectionLocation, SectionGithub,
	SectionLinkedin, SectionAvatar, SectionExperience, SectionEducation,
}

func profileSectionBit(section ProfileSection) (int, bool) {
	for i, s := range profileSections {
		if s == section {
			return 1 << i, true
		}
	}
	return 0, false
}

// Developer 开发者聚合，只在单用户事务内修改
type Developer struct {
	ID               int64            `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Email            string           `gorm:"column:email;type:varchar(255);uniqueIndex" json:"email"`
	DisplayName      string           `gorm:"column:display_name;type:varchar(128)" json:"display_name"`
	ProfileSections  int              `gorm:"column:profile_sections;not null;default:0" json:"profile_sections"`
	TotalXP          int64            `gorm:"column:total_xp;not null;default:0;index" json:"total_xp"`
	CurrentLevel     int              `gorm:"column:current_level;not null;default:1" json:"current_level"`
	LevelProgress    float64          `gorm:"column:level_progress;not null;default:0" json:"level_progress"`
	Streak           int              `gorm:"column:streak;not null;default:0" json:"streak"`
	LongestStreak    int              `gorm:"column:longest_streak;not null;default:0" json:"longest_streak"`
	LastActivityDate *time.Time       `gorm:"column:last_activity_date" json:"last_activity_date,omitempty"`
	SubscriptionTier SubscriptionTier `gorm:"column:subscription_tier;type:varchar(32);not null;default:'FREE'" json:"subscription_tier"`
	PointsMonthly    int64            `gorm:"column:points_monthly;not null;default:0" json:"points_monthly"`
	PointsUsed       int64            `gorm:"column:points_used;not null;default:0" json:"points_used"`
	PointsEarned     int64            `gorm:"column:points_earned;not null;default:0" json:"points_earned"`
	CreatedAt        time.Time        `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time        `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Developer) TableName() string {
	return "developers"
}

// AvailablePoints 可用积分 = max(0, 月度额度 + 已赚取 - 已使用)
func (d *Developer) AvailablePoints() int64 {
	return AvailablePoints(d.PointsMonthly, d.PointsUsed, d.PointsEarned)
}

// HasSection 板块是否已填写
func (d *Developer) HasSection(section ProfileSection) bool {
	bit, ok := profileSectionBit(section)
	return ok && d.ProfileSections&bit != 0
}

// MarkSection 标记板块填写状态
func (d *Developer) MarkSection(section ProfileSection, filled bool) {
	bit, ok := profileSectionBit(section)
	if !ok {
		return
	}
	if filled {
		d.ProfileSections |= bit
	} else {
		d.ProfileSections &^= bit
	}
}

// ProfileCompleteness 资料完整度百分比
func (d *Developer) ProfileCompleteness() int {
	filled := 0
	for _, s := range profileSections {
		if d.HasSection(s) {
			filled++
		}
	}
	return filled * 100 / len(profileSections)
}

// applyXP 调整总经验并刷新等级缓存字段，返回调整前后的等级
func (d *Developer) applyXP(delta int64) (oldLevel, newLevel int) {
	oldLevel = d.CurrentLevel
	d.TotalXP += delta
	if d.TotalXP < 0 {
		d.TotalXP = 0
	}
	d.CurrentLevel = LevelForXP(d.TotalXP)
	d.LevelProgress = LevelProgress(d.TotalXP, d.CurrentLevel)
	return oldLevel, d.CurrentLevel
}

// Activity 行为计数器名称
type Activity string

const (
	ActivityNone              Activity = ""
	ActivityCVUploads         Activity = "cv_uploads"
	ActivityCVAnalyses        Activity = "cv_analyses"
	ActivityCVImprovements    Activity = "cv_improvements"
	ActivityApplications      Activity = "applications"
	ActivityProfileUpdates    Activity = "profile_updates"
	ActivitySkillsAdded       Activity = "skills_added"
	ActivityChallenges        Activity = "challenges_completed"
	ActivityAchievements      Activity = "achievements"
	ActivityActiveDays        Activity = "active_days"
	ActivityWeekendActivities Activity = "weekend_activities"
)

// DeveloperStats 徽章判定所需的行为计数
type DeveloperStats struct {
	UserID              int64     `gorm:"column:user_id;primaryKey" json:"user_id"`
	CVUploads           int64     `gorm:"column:cv_uploads;not null;default:0" json:"cv_uploads"`
	CVAnalyses          int64     `gorm:"column:cv_analyses;not null;default:0" json:"cv_analyses"`
	CVImprovements      int64     `gorm:"column:cv_improvements;not null;default:0" json:"cv_improvements"`
	Applications        int64     `gorm:"column:applications;not null;default:0" json:"applications"`
	ProfileUpdates      int64     `gorm:"column:profile_updates;not null;default:0" json:"profile_updates"`
	SkillsAdded         int64     `gorm:"column:skills_added;not null;default:0" json:"skills_added"`
	ChallengesCompleted int64     `gorm:"column:challenges_completed;not null;default:0" json:"challenges_completed"`
	Achievements        int64     `gorm:"column:achievements;not null;default:0" json:"achievements"`
	ActiveDays          int64     `gorm:"column:active_days;not null;default:0" json:"active_days"`
	WeekendActivities   int64     `gorm:"column:weekend_activities;not null;default:0" json:"weekend_activities"`
	BestCVScore         int       `gorm:"column:best_cv_score;not null;default:0" json:"best_cv_score"`
	UpdatedAt           time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (DeveloperStats) TableName() string {
	return "developer_stats"
}

// Count 按名称读取计数
func (s *DeveloperStats) Count(a Activity) int64 {
	switch a {
	case ActivityCVUploads:
		return s.CVUploads
	case ActivityCVAnalyses:
		return s.CVAnalyses
	case ActivityCVImprovements:
		return s.CVImprovements
	case ActivityApplications:
		return s.Applications
	case ActivityProfileUpdates:
		return s.ProfileUpdates
	case ActivitySkillsAdded:
		return s.SkillsAdded
	case ActivityChallenges:
		return s.ChallengesCompleted
	case ActivityAchievements:
		return s.Achievements
	case ActivityActiveDays:
		return s.ActiveDays
	case ActivityWeekendActivities:
		return s.WeekendActivities
	}
	return 0
}

// Incr 按名称累加计数
func (s *DeveloperStats) Incr(a Activity) {
	switch a {
	case ActivityCVUploads:
		s.CVUploads++
	case ActivityCVAnalyses:
		s.CVAnalyses++
	case ActivityCVImprovements:
		s.CVImprovements++
	case ActivityApplications:
		s.Applications++
	case ActivityProfileUpdates:
		s.ProfileUpdates++
	case ActivitySkillsAdded:
		s.SkillsAdded++
	case ActivityChallenges:
		s.ChallengesCompleted++
	case ActivityAchievements:
		s.Achievements++
	case ActivityActiveDays:
		s.ActiveDays++
	case ActivityWeekendActivities:
		s.WeekendActivities++
	}
}

// Transaction 单用户事务边界，fn 内的仓储调用必须使用传入的 ctx
type Transaction interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// DeveloperRepository 开发者聚合存储
type DeveloperRepository interface {
	Create(ctx context.Context, dev *Developer) error
	Get(ctx context.Context, id int64) (*Developer, error)
	// GetForUpdate 加行锁读取，必须在 InTx 内调用
	GetForUpdate(ctx context.Context, id int64) (*Developer, error)
	Save(ctx context.Context, dev *Developer) error
	// EarlyAdopterRank 按注册先后的名次，从 1 开始
	EarlyAdopterRank(ctx context.Context, dev *Developer) (int64, error)
	TopByXP(ctx context.Context, limit int) ([]*Developer, error)
}

// StatsRepository 行为计数存储
type StatsRepository interface {
	// Get 不存在时返回全零计数
	Get(ctx context.Context, userID int64) (*DeveloperStats, error)
	Save(ctx context.Context, stats *DeveloperStats) error
}

// Clock 可替换的时钟
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// NewSystemClock 返回系统时钟
func NewSystemClock() Clock {
	return systemClock{}
}

// calendarDay 取 t 在 loc 时区下的零点
func calendarDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

func dayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}
