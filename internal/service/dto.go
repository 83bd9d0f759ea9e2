package service

import (
	"encoding/json"

	"gamification/internal/biz"
)

// SubmitEventRequest 单条事件
type SubmitEventRequest struct {
	Type biz.EventType `json:"type"`
	Data biz.EventData `json:"data"`
}

func (r *SubmitEventRequest) event() biz.Event {
	return biz.Event{Type: r.Type, Data: r.Data}
}

type SubmitEventReply struct {
	Result *biz.EventResult `json:"result"`
}

// SubmitBatchRequest 批量事件，逐条处理，单条失败不影响其他事件
type SubmitBatchRequest struct {
	Events []*SubmitEventRequest `json:"events"`
}

type BatchItemError struct {
	Code    int32  `json:"code"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

type BatchItem struct {
	Index  int              `json:"index"`
	Result *biz.EventResult `json:"result,omitempty"`
	Error  *BatchItemError  `json:"error,omitempty"`
}

type SubmitBatchReply struct {
	Items     []*BatchItem `json:"items"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
}

type SpendPointsRequest struct {
	Action biz.SpendAction `json:"action"`
}

type SpendPointsReply struct {
	Result *biz.SpendResult `json:"result"`
}

type RecoverStreakRequest struct{}

type RecoverStreakReply struct {
	Result *biz.RecoveryResult `json:"result"`
}

type GetSummaryRequest struct{}

type GetSummaryReply struct {
	Summary *biz.Summary `json:"summary"`
}

type ListBadgesRequest struct{}

type ListBadgesReply struct {
	Badges []*biz.BadgeView `json:"badges"`
}

// PageRequest 分页参数，通过 query 传入
type PageRequest struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

type PointsHistoryReply struct {
	Entries  []*biz.PointsLedgerEntry `json:"entries"`
	Total    int64                    `json:"total"`
	Page     int                      `json:"page"`
	PageSize int                      `json:"page_size"`
}

type XPHistoryReply struct {
	Entries  []*biz.XPLedgerEntry `json:"entries"`
	Total    int64                `json:"total"`
	Page     int                  `json:"page"`
	PageSize int                  `json:"page_size"`
}

type LeaderboardRequest struct {
	Limit int `json:"limit"`
}

type LeaderboardReply struct {
	Entries []*biz.LeaderboardEntry `json:"entries"`
}

// UpdateSettingRequest key 来自路径，value 为任意 JSON
type UpdateSettingRequest struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

type SettingReply struct {
	Snapshot *biz.ConfigurationSnapshot `json:"snapshot"`
}

type SettingHistoryRequest struct {
	Key string `json:"key"`
}

type SettingHistoryReply struct {
	Snapshots []*biz.ConfigurationSnapshot `json:"snapshots"`
}

type RegisterDeveloperRequest struct {
	Email       string               `json:"email"`
	DisplayName string               `json:"display_name"`
	Tier        biz.SubscriptionTier `json:"tier"`
}

type DeveloperReply struct {
	Developer *biz.Developer `json:"developer"`
}

type ChangeTierRequest struct {
	ID   int64                `json:"id"`
	Tier biz.SubscriptionTier `json:"tier"`
}

type DeveloperIDRequest struct {
	ID int64 `json:"id"`
}

type AwardPointsRequest struct {
	ID          int64            `json:"id"`
	Source      biz.PointsSource `json:"source"`
	Amount      int64            `json:"amount"`
	SourceID    string           `json:"source_id"`
	Description string           `json:"description"`
}

// AwardPointsReply Duplicate 为 true 表示该 source_id 已经发放过
type AwardPointsReply struct {
	Entry     *biz.PointsLedgerEntry `json:"entry,omitempty"`
	Duplicate bool                   `json:"duplicate"`
}

type ListLevelsRequest struct{}

type ListLevelsReply struct {
	Levels   []biz.LevelDefinition `json:"levels"`
	MaxLevel int                   `json:"max_level"`
}
