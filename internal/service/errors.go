package service

import (
	"context"
	stderrors "errors"

	"gamification/internal/biz"
	"gamification/internal/pkg/tracing"

	"github.com/go-kratos/kratos/v2/errors"
)

// 服务层自己的错误原因，业务错误原因见 biz/errors.go
const (
	ReasonInternal       = "INTERNAL_ERROR"
	ReasonTimeout        = "TIMEOUT"
	ReasonDuplicateAward = "DUPLICATE_AWARD"
)

// toTransportError 把业务错误转换为对外的 kratos 错误
// 已是 kratos 错误的原样返回，未知错误只记日志，不把内部信息透出
func (s *GamificationService) toTransportError(ctx context.Context, op string, err error) *errors.Error {
	var e *errors.Error
	if errors.As(err, &e) {
		if e.Code >= 500 {
			s.log.WithContext(ctx).Errorf("%s failed, %s", op, tracing.FormatErrorWithTrace(tracing.WrapErrorWithTrace(ctx, e)))
		} else {
			s.log.WithContext(ctx).Warnf("%s rejected, reason: %s", op, e.Reason)
		}
		return e
	}

	switch {
	case stderrors.Is(err, biz.ErrDuplicateAward):
		return errors.Conflict(ReasonDuplicateAward, "award already granted")
	case stderrors.Is(err, context.DeadlineExceeded):
		s.log.WithContext(ctx).Errorf("%s timed out: %v", op, err)
		return errors.GatewayTimeout(ReasonTimeout, "request timed out")
	case stderrors.Is(err, context.Canceled):
		return errors.ClientClosed(ReasonTimeout, "request canceled")
	}

	s.log.WithContext(ctx).Errorf("%s failed: %v", op, err)
	return tracing.NewErrorWithTrace(ctx, 500, ReasonInternal, "internal server error")
}
