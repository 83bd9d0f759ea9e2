package biz

import (
	stderrors "errors"
	"strconv"
	"time"

	"github.com/go-kratos/kratos/v2/errors"
)

// 错误原因常量，作为 kratos 错误的 reason 对外暴露
const (
	ReasonUnauthorized              = "UNAUTHORIZED"
	ReasonForbidden                 = "FORBIDDEN"
	ReasonRateLimited               = "RATE_LIMITED"
	ReasonInvalidData               = "INVALID_DATA"
	ReasonInvalidAmount             = "INVALID_AMOUNT"
	ReasonExceedsSourceMaximum      = "EXCEEDS_SOURCE_MAXIMUM"
	ReasonMissingSourceID           = "MISSING_SOURCE_ID"
	ReasonDeveloperNotFound         = "DEVELOPER_NOT_FOUND"
	ReasonDeveloperExists           = "DEVELOPER_EXISTS"
	ReasonStreakRecoveryUnavailable = "STREAK_RECOVERY_UNAVAILABLE"
	ReasonInsufficientXP            = "INSUFFICIENT_XP"
	ReasonUnknownAction             = "UNKNOWN_ACTION"
	ReasonUnknownSetting            = "UNKNOWN_SETTING"

	// MetadataRetryAfter 限流错误中携带的重试秒数
	MetadataRetryAfter = "retry_after"
)

var (
	// ErrUnauthorized 没有有效会话
	ErrUnauthorized = errors.Unauthorized(ReasonUnauthorized, "no valid session")

	// ErrForbidden 会话有效，但目标用户不是调用者本人
	ErrForbidden = errors.Forbidden(ReasonForbidden, "caller may not act on this user")

	// ErrRateLimited 超过事件类型的窗口上限
	ErrRateLimited = errors.New(429, ReasonRateLimited, "too many events")

	// ErrInvalidData 事件结构校验失败
	ErrInvalidData = errors.BadRequest(ReasonInvalidData, "invalid event data")

	// ErrInvalidAmount 奖励数额为负或方向错误
	ErrInvalidAmount = errors.BadRequest(ReasonInvalidAmount, "invalid award amount")

	// ErrExceedsSourceMaximum 奖励超过来源上限
	ErrExceedsSourceMaximum = errors.BadRequest(ReasonExceedsSourceMaximum, "award exceeds source maximum")

	// ErrMissingSourceID 需要关联对象的来源缺少 sourceId
	ErrMissingSourceID = errors.BadRequest(ReasonMissingSourceID, "source id is required")

	// ErrDeveloperNotFound 用户聚合不存在
	ErrDeveloperNotFound = errors.NotFound(ReasonDeveloperNotFound, "developer not found")

	// ErrDeveloperExists 邮箱已被注册
	ErrDeveloperExists = errors.Conflict(ReasonDeveloperExists, "developer already exists")

	// ErrStreakRecoveryUnavailable 只有恰好断了一天才能购买连胜恢复
	ErrStreakRecoveryUnavailable = errors.Conflict(ReasonStreakRecoveryUnavailable, "streak recovery is not available")

	// ErrInsufficientXP 经验不足以支付连胜恢复
	ErrInsufficientXP = errors.Conflict(ReasonInsufficientXP, "not enough xp")

	// ErrUnknownAction 未定义的积分消费动作
	ErrUnknownAction = errors.BadRequest(ReasonUnknownAction, "unknown points action")

	// ErrUnknownSetting 未定义的配置键
	ErrUnknownSetting = errors.BadRequest(ReasonUnknownSetting, "unknown setting key")

	// ErrDuplicateAward 存储层唯一约束拦截了重复发放，业务上视为无操作
	ErrDuplicateAward = stderrors.New("duplicate award")
)

// NewRateLimitedError 构造携带重试时间的限流错误
func NewRateLimitedError(retryAfter time.Duration) *errors.Error {
	secs := int64((retryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return ErrRateLimited.WithMetadata(map[string]string{
		MetadataRetryAfter: strconv.FormatInt(secs, 10),
	})
}

// RetryAfter 从限流错误中取出重试等待时长
func RetryAfter(err error) (time.Duration, bool) {
	if !IsRateLimited(err) {
		return 0, false
	}
	e := errors.FromError(err)
	secs, convErr := strconv.ParseInt(e.Metadata[MetadataRetryAfter], 10, 64)
	if convErr != nil {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}

// IsSecurityError 认证、授权、限流与数据校验错误需要原样返回给调用方
func IsSecurityError(err error) bool {
	return errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrInvalidData)
}

func IsUnauthorized(err error) bool { return errors.Is(err, ErrUnauthorized) }
func IsForbidden(err error) bool    { return errors.Is(err, ErrForbidden) }
func IsRateLimited(err error) bool  { return errors.Is(err, ErrRateLimited) }
func IsInvalidData(err error) bool  { return errors.Is(err, ErrInvalidData) }

// invalidData 附带字段信息的数据校验错误
func invalidData(field, message string) *errors.Error {
	return errors.BadRequest(ReasonInvalidData, message).WithMetadata(map[string]string{"field": field})
}
