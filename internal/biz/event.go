package biz

import (
	"strings"
	"time"
	"unicode/utf8"
)

// EventType 产品侧上报的行为事件
type EventType string

const (
	EventCVUploaded            EventType = "CV_UPLOADED"
	EventCVAnalysisCompleted   EventType = "CV_ANALYSIS_COMPLETED"
	EventCVImprovementApplied  EventType = "CV_IMPROVEMENT_APPLIED"
	EventApplicationSubmitted  EventType = "APPLICATION_SUBMITTED"
	EventProfileSectionUpdated EventType = "PROFILE_SECTION_UPDATED"
	EventSkillAdded            EventType = "SKILL_ADDED"
	EventDailyLogin            EventType = "DAILY_LOGIN"
	EventAchievementUnlocked   EventType = "ACHIEVEMENT_UNLOCKED"
	EventLevelUp               EventType = "LEVEL_UP"
	EventStreakMilestone       EventType = "STREAK_MILESTONE"
	EventBadgeEarned           EventType = "BADGE_EARNED"
	EventChallengeCompleted    EventType = "CHALLENGE_COMPLETED"
)

const maxSkillLength = 64

// EventData 事件载荷，不同事件使用不同字段
type EventData struct {
	UserID        int64  `json:"userId"`
	CVID          string `json:"cvId,omitempty"`
	AnalysisID    string `json:"analysisId,omitempty"`
	Score         *int   `json:"score,omitempty"`
	ImprovementID string `json:"improvementId,omitempty"`
	ApplicationID string `json:"applicationId,omitempty"`
	Section       string `json:"section,omitempty"`
	// Cleared 为 true 表示清空了该板块
	Cleared       bool   `json:"cleared,omitempty"`
	Skill         string `json:"skill,omitempty"`
	AchievementID string `json:"achievementId,omitempty"`
	NewLevel      int    `json:"newLevel,omitempty"`
	Streak        int    `json:"streak,omitempty"`
	BadgeID       string `json:"badgeId,omitempty"`
	ChallengeID   string `json:"challengeId,omitempty"`
}

// Event 一次上报
type Event struct {
	Type EventType `json:"type"`
	Data EventData `json:"data"`
}

// RateLimitRule 固定窗口限流规则
type RateLimitRule struct {
	Max    int64
	Window time.Duration
}

// eventSpec 每种事件的奖励来源、去重键、统计项与限流规则
type eventSpec struct {
	source         XPSource
	sourceID       func(d EventData, day string) string
	activity       Activity
	streakEligible bool
	rule           RateLimitRule
	validate       func(d EventData, catalog *BadgeCatalog) error
}

var eventSpecs = map[EventType]eventSpec{
	EventCVUploaded: {
		source:         XPSourceCVUpload,
		sourceID:       func(d EventData, _ string) string { return d.CVID },
		activity:       ActivityCVUploads,
		streakEligible: true,
		rule:           RateLimitRule{Max: 5, Window: time.Minute},
		validate:       required("cvId", func(d EventData) string { return d.CVID }),
	},
	EventCVAnalysisCompleted: {
		source:         XPSourceCVAnalysis,
		sourceID:       func(d EventData, _ string) string { return d.AnalysisID },
		activity:       ActivityCVAnalyses,
		streakEligible: true,
		rule:           RateLimitRule{Max: 10, Window: time.Minute},
		validate: func(d EventData, c *BadgeCatalog) error {
			if err := required("analysisId", func(d EventData) string { return d.AnalysisID })(d, c); err != nil {
				return err
			}
			if d.Score != nil && (*d.Score < 0 || *d.Score > 100) {
				return invalidData("score", "score must be between 0 and 100")
			}
			return nil
		},
	},
	EventCVImprovementApplied: {
		source:         XPSourceCVImprovement,
		sourceID:       func(d EventData, _ string) string { return d.ImprovementID },
		activity:       ActivityCVImprovements,
		streakEligible: true,
		rule:           RateLimitRule{Max: 20, Window: time.Minute},
		validate:       required("improvementId", func(d EventData) string { return d.ImprovementID }),
	},
	EventApplicationSubmitted: {
		source:         XPSourceApplication,
		sourceID:       func(d EventData, _ string) string { return d.ApplicationID },
		activity:       ActivityApplications,
		streakEligible: true,
		rule:           RateLimitRule{Max: 10, Window: time.Minute},
		validate:       required("applicationId", func(d EventData) string { return d.ApplicationID }),
	},
	EventProfileSectionUpdated: {
		source:         XPSourceProfileUpdate,
		sourceID:       func(d EventData, day string) string { return d.Section + "_" + day },
		activity:       ActivityProfileUpdates,
		streakEligible: true,
		rule:           RateLimitRule{Max: 20, Window: time.Minute},
		validate: func(d EventData, _ *BadgeCatalog) error {
			if _, ok := profileSectionBit(ProfileSection(d.Section)); !ok {
				return invalidData("section", "unknown profile section")
			}
			return nil
		},
	},
	EventSkillAdded: {
		source:         XPSourceSkillAdded,
		sourceID:       func(d EventData, _ string) string { return strings.ToLower(strings.TrimSpace(d.Skill)) },
		activity:       ActivitySkillsAdded,
		streakEligible: true,
		rule:           RateLimitRule{Max: 30, Window: time.Minute},
		validate: func(d EventData, _ *BadgeCatalog) error {
			skill := strings.TrimSpace(d.Skill)
			if skill == "" {
				return invalidData("skill", "skill is required")
			}
			if utf8.RuneCountInString(skill) > maxSkillLength {
				return invalidData("skill", "skill is too long")
			}
			return nil
		},
	},
	EventDailyLogin: {
		source:         XPSourceDailyLogin,
		sourceID:       func(_ EventData, day string) string { return "login_" + day },
		streakEligible: true,
		rule:           RateLimitRule{Max: 1, Window: 24 * time.Hour},
		validate:       func(EventData, *BadgeCatalog) error { return nil },
	},
	EventAchievementUnlocked: {
		source:   XPSourceAchievement,
		sourceID: func(d EventData, _ string) string { return d.AchievementID },
		activity: ActivityAchievements,
		rule:     RateLimitRule{Max: 10, Window: time.Minute},
		validate: required("achievementId", func(d EventData) string { return d.AchievementID }),
	},
	EventLevelUp: {
		rule: RateLimitRule{Max: 5, Window: time.Minute},
		validate: func(d EventData, _ *BadgeCatalog) error {
			if d.NewLevel < 2 || d.NewLevel > MaxLevel {
				return invalidData("newLevel", "newLevel must be between 2 and 100")
			}
			return nil
		},
	},
	EventStreakMilestone: {
		rule: RateLimitRule{Max: 5, Window: time.Minute},
		validate: func(d EventData, _ *BadgeCatalog) error {
			if d.Streak < 1 {
				return invalidData("streak", "streak must be positive")
			}
			return nil
		},
	},
	EventBadgeEarned: {
		rule: RateLimitRule{Max: 20, Window: time.Minute},
		validate: func(d EventData, c *BadgeCatalog) error {
			if d.BadgeID == "" {
				return invalidData("badgeId", "badgeId is required")
			}
			if _, ok := c.Get(d.BadgeID); !ok {
				return invalidData("badgeId", "unknown badge")
			}
			return nil
		},
	},
	EventChallengeCompleted: {
		source:         XPSourceChallenge,
		sourceID:       func(d EventData, _ string) string { return d.ChallengeID },
		activity:       ActivityChallenges,
		streakEligible: true,
		rule:           RateLimitRule{Max: 10, Window: time.Minute},
		validate:       required("challengeId", func(d EventData) string { return d.ChallengeID }),
	},
}

func required(field string, get func(EventData) string) func(EventData, *BadgeCatalog) error {
	return func(d EventData, _ *BadgeCatalog) error {
		if strings.TrimSpace(get(d)) == "" {
			return invalidData(field, field+" is required")
		}
		return nil
	}
}

// KnownEventType 是否为已定义的事件类型
func KnownEventType(t EventType) bool {
	_, ok := eventSpecs[t]
	return ok
}

// IsStreakEligible 该事件是否计入连胜
func IsStreakEligible(t EventType) bool {
	return eventSpecs[t].streakEligible
}

// RateLimitRuleFor 事件类型的限流规则
func RateLimitRuleFor(t EventType) (RateLimitRule, bool) {
	spec, ok := eventSpecs[t]
	if !ok || spec.rule.Max <= 0 {
		return RateLimitRule{}, false
	}
	return spec.rule, true
}

// ValidateEventData 校验事件结构
func ValidateEventData(ev Event, catalog *BadgeCatalog) error {
	spec, ok := eventSpecs[ev.Type]
	if !ok {
		return invalidData("type", "unknown event type")
	}
	if ev.Data.UserID <= 0 {
		return invalidData("userId", "userId must be positive")
	}
	return spec.validate(ev.Data, catalog)
}
