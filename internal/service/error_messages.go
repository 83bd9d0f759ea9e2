package service

import (
	"gamification/internal/biz"
	"gamification/internal/pkg/tracing"

	"github.com/go-kratos/kratos/v2/errors"
)

// ErrorMessageMap 错误原因到友好提示的映射
var ErrorMessageMap = map[string]string{
	biz.ReasonUnauthorized:              "登录状态无效，请重新登录",
	biz.ReasonForbidden:                 "无权操作其他用户的数据",
	biz.ReasonRateLimited:               "操作过于频繁，请稍后再试",
	biz.ReasonInvalidData:               "请求数据格式不正确",
	biz.ReasonInvalidAmount:             "奖励数额不正确",
	biz.ReasonExceedsSourceMaximum:      "奖励超过该来源的上限",
	biz.ReasonMissingSourceID:           "缺少来源标识",
	biz.ReasonDeveloperNotFound:         "用户不存在",
	biz.ReasonDeveloperExists:           "该邮箱已被注册",
	biz.ReasonStreakRecoveryUnavailable: "当前无法恢复连续打卡",
	biz.ReasonInsufficientXP:            "经验值不足",
	biz.ReasonUnknownAction:             "不支持的积分消费项目",
	biz.ReasonUnknownSetting:            "不存在的配置项",

	ReasonDuplicateAward: "奖励已经发放过",
	ReasonTimeout:        "请求超时，请稍后重试",
	ReasonInternal:       "服务内部错误",
}

// GetFriendlyErrorMessage 获取用户友好的错误消息
func GetFriendlyErrorMessage(reason string) string {
	if message, exists := ErrorMessageMap[reason]; exists {
		return message
	}
	return "操作失败，请稍后重试"
}

// StandardErrorResponse 标准错误响应结构
type StandardErrorResponse struct {
	Code     int               `json:"code"`               // HTTP状态码
	Reason   string            `json:"reason"`             // 错误原因
	Message  string            `json:"message"`            // 用户友好的错误信息
	Detail   string            `json:"detail,omitempty"`   // 原始错误信息
	Metadata map[string]string `json:"metadata,omitempty"` // 重试时间、字段名、traceid 等
}

// NewStandardErrorResponse 创建标准错误响应
func NewStandardErrorResponse(err error) *StandardErrorResponse {
	if err == nil {
		return nil
	}

	e := errors.FromError(err)
	if e == nil || e.Reason == "" {
		resp := &StandardErrorResponse{
			Code:    500,
			Reason:  ReasonInternal,
			Message: GetFriendlyErrorMessage(ReasonInternal),
		}
		if e != nil {
			if traceID, spanID, ok := tracing.ExtractTraceInfoFromError(e); ok {
				resp.Metadata = map[string]string{tracing.MetadataTraceID: traceID, tracing.MetadataSpanID: spanID}
			}
		}
		return resp
	}

	return &StandardErrorResponse{
		Code:     int(e.Code),
		Reason:   e.Reason,
		Message:  GetFriendlyErrorMessage(e.Reason),
		Detail:   e.Message,
		Metadata: e.Metadata,
	}
}
