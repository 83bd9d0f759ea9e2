package biz

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-kratos/kratos/v2/log"
)

// BadgeRarity 稀有度
type BadgeRarity string

const (
	RarityCommon    BadgeRarity = "COMMON"
	RarityRare      BadgeRarity = "RARE"
	RarityEpic      BadgeRarity = "EPIC"
	RarityLegendary BadgeRarity = "LEGENDARY"
)

// BadgeCategory 分类
type BadgeCategory string

const (
	CategoryProfile     BadgeCategory = "PROFILE"
	CategoryCV          BadgeCategory = "CV"
	CategoryApplication BadgeCategory = "APPLICATION"
	CategorySkills      BadgeCategory = "SKILLS"
	CategoryChallenge   BadgeCategory = "CHALLENGE"
	CategoryStreak      BadgeCategory = "STREAK"
	CategoryConsistency BadgeCategory = "CONSISTENCY"
	CategoryProgress    BadgeCategory = "PROGRESS"
	CategoryCommunity   BadgeCategory = "COMMUNITY"
	CategorySpecial     BadgeCategory = "SPECIAL"
)

// RequirementKind 条件类型
type RequirementKind string

const (
	KindProfileCompleteness  RequirementKind = "profile_completeness"
	KindActivityCount        RequirementKind = "activity_count"
	KindCVScore              RequirementKind = "cv_score"
	KindStreakLength         RequirementKind = "streak_length"
	KindLevelReached         RequirementKind = "level_reached"
	KindTotalXP              RequirementKind = "total_xp"
	KindEarlyAdopter         RequirementKind = "early_adopter"
	KindActivityHour         RequirementKind = "activity_hour"
	KindBadgeCount           RequirementKind = "badge_count"
	KindSuggestionsAccepted  RequirementKind = "suggestions_accepted"
	KindSuggestionsGenerated RequirementKind = "suggestions_generated"
	KindApplicationQuality   RequirementKind = "application_quality"
	KindBetaParticipation    RequirementKind = "beta_participation"
	KindFeedbackSubmitted    RequirementKind = "feedback_submitted"
)

// Requirement 徽章条件，封闭集合，只能是本包内定义的类型
type Requirement interface {
	Kind() RequirementKind
	requirement()
}

type ProfileCompletenessRequirement struct {
	MinPercent int `json:"min_percent"`
}

type ActivityCountRequirement struct {
	Activity Activity `json:"activity"`
	Min      int64    `json:"min"`
}

type CVScoreRequirement struct {
	MinScore int `json:"min_score"`
}

type StreakLengthRequirement struct {
	Days int `json:"days"`
}

type LevelReachedRequirement struct {
	Level int `json:"level"`
}

type TotalXPRequirement struct {
	Min int64 `json:"min"`
}

// EarlyAdopterRequirement 注册名次不超过 MaxRank
type EarlyAdopterRequirement struct {
	MaxRank int64 `json:"max_rank"`
}

// ActivityHourRequirement 事件发生的本地小时落在 [FromHour, ToHour)，FromHour > ToHour 时跨零点
type ActivityHourRequirement struct {
	FromHour int `json:"from_hour"`
	ToHour   int `json:"to_hour"`
}

type BadgeCountRequirement struct {
	Min int64 `json:"min"`
}

// 以下条件暂时没有数据来源，判定恒为不满足

type SuggestionsAcceptedRequirement struct {
	Min int64 `json:"min"`
}

type SuggestionsGeneratedRequirement struct {
	Min int64 `json:"min"`
}

type ApplicationQualityRequirement struct {
	MinScore int `json:"min_score"`
}

type BetaParticipationRequirement struct{}

type FeedbackSubmittedRequirement struct {
	Min int64 `json:"min"`
}

// UnknownRequirement 从存储读出的无法识别的条件
type UnknownRequirement struct {
	RawKind string          `json:"kind"`
	Params  json.RawMessage `json:"params,omitempty"`
}

func (ProfileCompletenessRequirement) Kind() RequirementKind  { return KindProfileCompleteness }
func (ActivityCountRequirement) Kind() RequirementKind        { return KindActivityCount }
func (CVScoreRequirement) Kind() RequirementKind              { return KindCVScore }
func (StreakLengthRequirement) Kind() RequirementKind         { return KindStreakLength }
func (LevelReachedRequirement) Kind() RequirementKind         { return KindLevelReached }
func (TotalXPRequirement) Kind() RequirementKind              { return KindTotalXP }
func (EarlyAdopterRequirement) Kind() RequirementKind         { return KindEarlyAdopter }
func (ActivityHourRequirement) Kind() RequirementKind         { return KindActivityHour }
func (BadgeCountRequirement) Kind() RequirementKind           { return KindBadgeCount }
func (SuggestionsAcceptedRequirement) Kind() RequirementKind  { return KindSuggestionsAccepted }
func (SuggestionsGeneratedRequirement) Kind() RequirementKind { return KindSuggestionsGenerated }
func (ApplicationQualityRequirement) Kind() RequirementKind   { return KindApplicationQuality }
func (BetaParticipationRequirement) Kind() RequirementKind    { return KindBetaParticipation }
func (FeedbackSubmittedRequirement) Kind() RequirementKind    { return KindFeedbackSubmitted }
func (r UnknownRequirement) Kind() RequirementKind            { return RequirementKind(r.RawKind) }

func (ProfileCompletenessRequirement) requirement()  {}
func (ActivityCountRequirement) requirement()        {}
func (CVScoreRequirement) requirement()              {}
func (StreakLengthRequirement) requirement()         {}
func (LevelReachedRequirement) requirement()         {}
func (TotalXPRequirement) requirement()              {}
func (EarlyAdopterRequirement) requirement()         {}
func (ActivityHourRequirement) requirement()         {}
func (BadgeCountRequirement) requirement()           {}
func (SuggestionsAcceptedRequirement) requirement()  {}
func (SuggestionsGeneratedRequirement) requirement() {}
func (ApplicationQualityRequirement) requirement()   {}
func (BetaParticipationRequirement) requirement()    {}
func (FeedbackSubmittedRequirement) requirement()    {}
func (UnknownRequirement) requirement()              {}

// EncodeRequirement 序列化为 kind + 参数，供存储使用
func EncodeRequirement(r Requirement) (RequirementKind, json.RawMessage, error) {
	if u, ok := r.(UnknownRequirement); ok {
		return u.Kind(), u.Params, nil
	}
	params, err := json.Marshal(r)
	if err != nil {
		return "", nil, err
	}
	return r.Kind(), params, nil
}

// DecodeRequirement 反序列化；无法识别的 kind 返回 UnknownRequirement
func DecodeRequirement(kind RequirementKind, params json.RawMessage) (Requirement, error) {
	var r Requirement
	switch kind {
	case KindProfileCompleteness:
		r = &ProfileCompletenessRequirement{}
	case KindActivityCount:
		r = &ActivityCountRequirement{}
	case KindCVScore:
		r = &CVScoreRequirement{}
	case KindStreakLength:
		r = &StreakLengthRequirement{}
	case KindLevelReached:
		r = &LevelReachedRequirement{}
	case KindTotalXP:
		r = &TotalXPRequirement{}
	case KindEarlyAdopter:
		r = &EarlyAdopterRequirement{}
	case KindActivityHour:
		r = &ActivityHourRequirement{}
	case KindBadgeCount:
		r = &BadgeCountRequirement{}
	case KindSuggestionsAccepted:
		r = &SuggestionsAcceptedRequirement{}
	case KindSuggestionsGenerated:
		r = &SuggestionsGeneratedRequirement{}
	case KindApplicationQuality:
		r = &ApplicationQualityRequirement{}
	case KindBetaParticipation:
		r = &BetaParticipationRequirement{}
	case KindFeedbackSubmitted:
		r = &FeedbackSubmittedRequirement{}
	default:
		return UnknownRequirement{RawKind: string(kind), Params: params}, nil
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, r); err != nil {
			return nil, err
		}
	}
	return derefRequirement(r), nil
}

func derefRequirement(r Requirement) Requirement {
	switch v := r.(type) {
	case *ProfileCompletenessRequirement:
		return *v
	case *ActivityCountRequirement:
		return *v
	case *CVScoreRequirement:
		return *v
	case *StreakLengthRequirement:
		return *v
	case *LevelReachedRequirement:
		return *v
	case *TotalXPRequirement:
		return *v
	case *EarlyAdopterRequirement:
		return *v
	case *ActivityHourRequirement:
		return *v
	case *BadgeCountRequirement:
		return *v
	case *SuggestionsAcceptedRequirement:
		return *v
	case *SuggestionsGeneratedRequirement:
		return *v
	case *ApplicationQualityRequirement:
		return *v
	case *BetaParticipationRequirement:
		return *v
	case *FeedbackSubmittedRequirement:
		return *v
	}
	return r
}

// BadgeDefinition 徽章定义
type BadgeDefinition struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Icon        string        `json:"icon"`
	Rarity      BadgeRarity   `json:"rarity"`
	Category    BadgeCategory `json:"category"`
	XPReward    int64         `json:"xp_reward"`
	Hidden      bool          `json:"hidden"`
	Requirement Requirement   `json:"-"`
	// Triggers 可能解锁该徽章的事件类型
	Triggers []EventType `json:"-"`
	// WeekendOnly 只在周末的事件上判定
	WeekendOnly bool `json:"-"`
	// MinLevel 低于该等级时跳过判定
	MinLevel int `json:"-"`
}

// UserBadgeAward 用户获得的徽章，(user_id, badge_id) 唯一
type UserBadgeAward struct {
	ID       int64     `gorm:"column:id;primaryKey;autoIncrement:false" json:"id"`
	UserID   int64     `gorm:"column:user_id;not null;uniqueIndex:uk_user_badge" json:"user_id"`
	BadgeID  string    `gorm:"column:badge_id;type:varchar(64);not null;uniqueIndex:uk_user_badge" json:"badge_id"`
	EarnedAt time.Time `gorm:"column:earned_at;not null" json:"earned_at"`
}

func (UserBadgeAward) TableName() string {
	return "user_badges"
}

// BadgeRepository 徽章存储
type BadgeRepository interface {
	UpsertDefinition(ctx context.Context, def *BadgeDefinition) error
	ListDefinitions(ctx context.Context) ([]*BadgeDefinition, error)
	ListByUser(ctx context.Context, userID int64) ([]*UserBadgeAward, error)
	Has(ctx context.Context, userID int64, badgeID string) (bool, error)
	// Award 唯一约束冲突时返回 ErrDuplicateAward
	Award(ctx context.Context, award *UserBadgeAward) error
	Count(ctx context.Context, userID int64) (int64, error)
}

// BadgeCatalog 不可变的徽章目录
type BadgeCatalog struct {
	ordered []*BadgeDefinition
	byID    map[string]*BadgeDefinition
}

// NewBadgeCatalog 由定义列表构建目录，ID 重复时后者被忽略
func NewBadgeCatalog(defs []*BadgeDefinition) *BadgeCatalog {
	c := &BadgeCatalog{byID: make(map[string]*BadgeDefinition, len(defs))}
	for _, d := range defs {
		if _, ok := c.byID[d.ID]; ok {
			continue
		}
		c.byID[d.ID] = d
		c.ordered = append(c.ordered, d)
	}
	return c
}

// NewDefaultBadgeCatalog 内置目录
func NewDefaultBadgeCatalog() *BadgeCatalog {
	return NewBadgeCatalog(defaultBadges())
}

// LoadBadgeCatalog 内置目录叠加存储中的定义，同 ID 以存储为准；存储不可用时只用内置目录
func LoadBadgeCatalog(repo BadgeRepository, logger log.Logger) *BadgeCatalog {
	helper := log.NewHelper(logger)
	defaults := NewDefaultBadgeCatalog()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stored, err := repo.ListDefinitions(ctx)
	if err != nil {
		helper.Warnf("Failed to load stored badge definitions, using built-in catalog: %v", err)
		return defaults
	}

	byID := make(map[string]*BadgeDefinition, len(stored))
	for _, d := range stored {
		if _, unknown := d.Requirement.(UnknownRequirement); unknown {
			helper.Warnf("Stored badge has unknown requirement kind and will never be awarded, badge_id: %s, kind: %s", d.ID, d.Requirement.Kind())
		}
		byID[d.ID] = d
	}
	merged := make([]*BadgeDefinition, 0, len(defaults.All())+len(stored))
	for _, d := range defaults.All() {
		if s, ok := byID[d.ID]; ok {
			merged = append(merged, s)
			delete(byID, d.ID)
			continue
		}
		merged = append(merged, d)
	}
	for _, d := range stored {
		if _, ok := byID[d.ID]; ok {
			merged = append(merged, d)
		}
	}
	helper.Infof("Badge catalog loaded, built_in: %d, stored: %d, total: %d", len(defaults.All()), len(stored), len(merged))
	return NewBadgeCatalog(merged)
}

func (c *BadgeCatalog) Get(id string) (*BadgeDefinition, bool) {
	d, ok := c.byID[id]
	return d, ok
}

func (c *BadgeCatalog) All() []*BadgeDefinition {
	return c.ordered
}

var activityEvents = []EventType{
	EventDailyLogin, EventCVUploaded, EventCVAnalysisCompleted, EventCVImprovementApplied,
	EventApplicationSubmitted, EventProfileSectionUpdated, EventSkillAdded, EventChallengeCompleted,
}

func withEvents(base []EventType, extra ...EventType) []EventType {
	out := make([]EventType, 0, len(base)+len(extra))
	out = append(out, base...)
	return append(out, extra...)
}

func defaultBadges() []*BadgeDefinition {
	streakTriggers := withEvents(activityEvents, EventStreakMilestone)
	xpTriggers := withEvents(activityEvents, EventBadgeEarned, EventAchievementUnlocked)

	return []*BadgeDefinition{
		// 个人资料
		{ID: "profile_starter", Name: "Profile Starter", Description: "Fill in half of your profile", Icon: "user", Rarity: RarityCommon, Category: CategoryProfile, XPReward: 25,
			Requirement: ProfileCompletenessRequirement{MinPercent: 50}, Triggers: []EventType{EventProfileSectionUpdated}},
		{ID: "profile_complete", Name: "All Set", Description: "Complete every profile section", Icon: "user-check", Rarity: RarityRare, Category: CategoryProfile, XPReward: 100,
			Requirement: ProfileCompletenessRequirement{MinPercent: 100}, Triggers: []EventType{EventProfileSectionUpdated}},

		// 简历
		{ID: "first_cv", Name: "First Draft", Description: "Upload your first CV", Icon: "file", Rarity: RarityCommon, Category: CategoryCV, XPReward: 25,
			Requirement: ActivityCountRequirement{Activity: ActivityCVUploads, Min: 1}, Triggers: []EventType{EventCVUploaded}},
		{ID: "cv_collector", Name: "Version Control", Description: "Upload 5 CVs", Icon: "files", Rarity: RarityRare, Category: CategoryCV, XPReward: 75,
			Requirement: ActivityCountRequirement{Activity: ActivityCVUploads, Min: 5}, Triggers: []EventType{EventCVUploaded}},
		{ID: "first_analysis", Name: "Second Opinion", Description: "Complete your first CV analysis", Icon: "search", Rarity: RarityCommon, Category: CategoryCV, XPReward: 25,
			Requirement: ActivityCountRequirement{Activity: ActivityCVAnalyses, Min: 1}, Triggers: []EventType{EventCVAnalysisCompleted}},
		{ID: "analysis_enthusiast", Name: "Analysis Enthusiast", Description: "Complete 10 CV analyses", Icon: "chart", Rarity: RarityRare, Category: CategoryCV, XPReward: 150,
			Requirement: ActivityCountRequirement{Activity: ActivityCVAnalyses, Min: 10}, Triggers: []EventType{EventCVAnalysisCompleted}},
		{ID: "cv_perfectionist", Name: "CV Perfectionist", Description: "Score 90 or more on a CV analysis", Icon: "star", Rarity: RarityEpic, Category: CategoryCV, XPReward: 200,
			Requirement: CVScoreRequirement{MinScore: 90}, Triggers: []EventType{EventCVAnalysisCompleted}},
		{ID: "cv_polisher", Name: "Polisher", Description: "Apply 10 CV improvements", Icon: "sparkles", Rarity: RarityRare, Category: CategoryCV, XPReward: 100,
			Requirement: ActivityCountRequirement{Activity: ActivityCVImprovements, Min: 10}, Triggers: []EventType{EventCVImprovementApplied}},

		// 求职
		{ID: "first_application", Name: "Out There", Description: "Submit your first application", Icon: "send", Rarity: RarityCommon, Category: CategoryApplication, XPReward: 25,
			Requirement: ActivityCountRequirement{Activity: ActivityApplications, Min: 1}, Triggers: []EventType{EventApplicationSubmitted}},
		{ID: "job_hunter", Name: "Job Hunter", Description: "Submit 10 applications", Icon: "briefcase", Rarity: RarityRare, Category: CategoryApplication, XPReward: 100,
			Requirement: ActivityCountRequirement{Activity: ActivityApplications, Min: 10}, Triggers: []EventType{EventApplicationSubmitted}},
		{ID: "application_machine", Name: "Application Machine", Description: "Submit 50 applications", Icon: "rocket", Rarity: RarityEpic, Category: CategoryApplication, XPReward: 300,
			Requirement: ActivityCountRequirement{Activity: ActivityApplications, Min: 50}, Triggers: []EventType{EventApplicationSubmitted}, MinLevel: 5},

		// 技能
		{ID: "skill_builder", Name: "Skill Builder", Description: "Add 5 skills", Icon: "tools", Rarity: RarityCommon, Category: CategorySkills, XPReward: 50,
			Requirement: ActivityCountRequirement{Activity: ActivitySkillsAdded, Min: 5}, Triggers: []EventType{EventSkillAdded}},
		{ID: "polymath", Name: "Polymath", Description: "Add 20 skills", Icon: "brain", Rarity: RarityRare, Category: CategorySkills, XPReward: 150,
			Requirement: ActivityCountRequirement{Activity: ActivitySkillsAdded, Min: 20}, Triggers: []EventType{EventSkillAdded}},

		// 挑战
		{ID: "challenger", Name: "Challenger", Description: "Complete your first challenge", Icon: "flag", Rarity: RarityCommon, Category: CategoryChallenge, XPReward: 50,
			Requirement: ActivityCountRequirement{Activity: ActivityChallenges, Min: 1}, Triggers: []EventType{EventChallengeCompleted}},
		{ID: "challenge_champion", Name: "Challenge Champion", Description: "Complete 10 challenges", Icon: "trophy", Rarity: RarityEpic, Category: CategoryChallenge, XPReward: 250,
			Requirement: ActivityCountRequirement{Activity: ActivityChallenges, Min: 10}, Triggers: []EventType{EventChallengeCompleted}, MinLevel: 3},

		// 连胜
		{ID: "streak_starter", Name: "Warming Up", Description: "Reach a 3 day streak", Icon: "flame", Rarity: RarityCommon, Category: CategoryStreak, XPReward: 25,
			Requirement: StreakLengthRequirement{Days: 3}, Triggers: streakTriggers},
		{ID: "week_warrior", Name: "Week Warrior", Description: "Reach a 7 day streak", Icon: "flame", Rarity: RarityCommon, Category: CategoryStreak, XPReward: 75,
			Requirement: StreakLengthRequirement{Days: 7}, Triggers: streakTriggers},
		{ID: "fortnight_focus", Name: "Fortnight Focus", Description: "Reach a 14 day streak", Icon: "flame", Rarity: RarityRare, Category: CategoryStreak, XPReward: 150,
			Requirement: StreakLengthRequirement{Days: 14}, Triggers: streakTriggers},
		{ID: "monthly_master", Name: "Monthly Master", Description: "Reach a 30 day streak", Icon: "calendar", Rarity: RarityEpic, Category: CategoryStreak, XPReward: 300,
			Requirement: StreakLengthRequirement{Days: 30}, Triggers: streakTriggers},
		{ID: "streak_legend", Name: "Unstoppable", Description: "Reach a 100 day streak", Icon: "crown", Rarity: RarityLegendary, Category: CategoryStreak, XPReward: 1000,
			Requirement: StreakLengthRequirement{Days: 100}, Triggers: streakTriggers},

		// 活跃习惯
		{ID: "weekend_warrior", Name: "Weekend Warrior", Description: "Be active on 4 weekend occasions", Icon: "sun", Rarity: RarityRare, Category: CategoryConsistency, XPReward: 75,
			Requirement: ActivityCountRequirement{Activity: ActivityWeekendActivities, Min: 4}, Triggers: activityEvents, WeekendOnly: true},
		{ID: "night_owl", Name: "Night Owl", Description: "Make progress after 10pm", Icon: "moon", Rarity: RarityCommon, Category: CategoryConsistency, XPReward: 50,
			Requirement: ActivityHourRequirement{FromHour: 22, ToHour: 4}, Triggers: activityEvents},
		{ID: "early_bird", Name: "Early Bird", Description: "Make progress before 8am", Icon: "sunrise", Rarity: RarityCommon, Category: CategoryConsistency, XPReward: 50,
			Requirement: ActivityHourRequirement{FromHour: 5, ToHour: 8}, Triggers: activityEvents},
		{ID: "regular", Name: "Regular", Description: "Be active on 30 different days", Icon: "check", Rarity: RarityRare, Category: CategoryConsistency, XPReward: 150,
			Requirement: ActivityCountRequirement{Activity: ActivityActiveDays, Min: 30}, Triggers: activityEvents},

		// 成长
		{ID: "rising_star", Name: "Rising Star", Description: "Reach level 5", Icon: "trending-up", Rarity: RarityRare, Category: CategoryProgress, XPReward: 100,
			Requirement: LevelReachedRequirement{Level: 5}, Triggers: []EventType{EventLevelUp}},
		{ID: "visionary", Name: "Visionary", Description: "Reach level 10", Icon: "eye", Rarity: RarityEpic, Category: CategoryProgress, XPReward: 300,
			Requirement: LevelReachedRequirement{Level: 10}, Triggers: []EventType{EventLevelUp}},
		{ID: "xp_hunter", Name: "XP Hunter", Description: "Earn 1000 XP", Icon: "zap", Rarity: RarityRare, Category: CategoryProgress, XPReward: 50,
			Requirement: TotalXPRequirement{Min: 1000}, Triggers: xpTriggers},
		{ID: "badge_collector", Name: "Collector", Description: "Earn 10 badges", Icon: "grid", Rarity: RarityEpic, Category: CategoryProgress, XPReward: 200,
			Requirement: BadgeCountRequirement{Min: 10}, Triggers: []EventType{EventBadgeEarned}},
		{ID: "achiever", Name: "Achiever", Description: "Unlock 5 achievements", Icon: "award", Rarity: RarityRare, Category: CategoryProgress, XPReward: 100,
			Requirement: ActivityCountRequirement{Activity: ActivityAchievements, Min: 5}, Triggers: []EventType{EventAchievementUnlocked}},

		// 社区与特殊
		{ID: "early_adopter", Name: "Early Adopter", Description: "One of the first 1000 members", Icon: "gift", Rarity: RarityLegendary, Category: CategorySpecial, XPReward: 100,
			Requirement: EarlyAdopterRequirement{MaxRank: 1000}, Triggers: []EventType{EventDailyLogin, EventProfileSectionUpdated}},
		{ID: "idea_generator", Name: "Idea Generator", Description: "Generate 10 improvement suggestions", Icon: "bulb", Rarity: RarityRare, Category: CategoryCommunity, XPReward: 75,
			Requirement: SuggestionsGeneratedRequirement{Min: 10}, Triggers: []EventType{EventCVImprovementApplied}},
		{ID: "suggestion_accepter", Name: "Open Minded", Description: "Accept 10 improvement suggestions", Icon: "thumbs-up", Rarity: RarityRare, Category: CategoryCommunity, XPReward: 75,
			Requirement: SuggestionsAcceptedRequirement{Min: 10}, Triggers: []EventType{EventCVImprovementApplied}},
		{ID: "quality_applicant", Name: "Quality Over Quantity", Description: "Submit an application rated 80 or more", Icon: "target", Rarity: RarityEpic, Category: CategoryApplication, XPReward: 150,
			Requirement: ApplicationQualityRequirement{MinScore: 80}, Triggers: []EventType{EventApplicationSubmitted}},
		{ID: "beta_tester", Name: "Beta Tester", Description: "Join a beta program", Icon: "flask", Rarity: RarityEpic, Category: CategoryCommunity, XPReward: 100,
			Requirement: BetaParticipationRequirement{}, Triggers: []EventType{EventAchievementUnlocked}},
		{ID: "feedback_champion", Name: "Feedback Champion", Description: "Submit 5 pieces of feedback", Icon: "message", Rarity: RarityRare, Category: CategoryCommunity, XPReward: 75,
			Requirement: FeedbackSubmittedRequirement{Min: 5}, Triggers: []EventType{EventAchievementUnlocked}},
		{ID: "secret_keeper", Name: "Secret Keeper", Description: "Found something hidden", Icon: "lock", Rarity: RarityLegendary, Category: CategorySpecial, XPReward: 250, Hidden: true,
			Requirement: ActivityCountRequirement{Activity: ActivityAchievements, Min: 1}, Triggers: []EventType{EventAchievementUnlocked}},
	}
}
