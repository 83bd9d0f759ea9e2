package tracing

import (
	"context"
	"fmt"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/middleware"
)

const (
	MetadataTraceID = "traceid"
	MetadataSpanID  = "spanid"
)

// ErrorEnhancer 错误响应增强中间件
// HTTP 与 gRPC 共用，需放在 tracing.Server() 之后，保证 span 已经创建
func ErrorEnhancer() middleware.Middleware {
	return func(handler middleware.Handler) middleware.Handler {
		return func(ctx context.Context, req interface{}) (interface{}, error) {
			reply, err := handler(ctx, req)
			if err == nil {
				return reply, nil
			}
			RecordError(ctx, err)
			return reply, WrapErrorWithTrace(ctx, errors.FromError(err))
		}
	}
}

// ExtractTraceInfoFromError 从错误中提取追踪信息
func ExtractTraceInfoFromError(err error) (string, string, bool) {
	if err == nil {
		return "", "", false
	}
	e := errors.FromError(err)
	if e == nil {
		return "", "", false
	}

	traceID, traceIDExists := e.Metadata[MetadataTraceID]
	spanID, spanIDExists := e.Metadata[MetadataSpanID]
	if traceIDExists && spanIDExists {
		return traceID, spanID, true
	}
	return "", "", false
}

// FormatErrorWithTrace 格式化错误信息，包含追踪信息
func FormatErrorWithTrace(err error) string {
	if err == nil {
		return "no error"
	}

	traceID, spanID, hasTrace := ExtractTraceInfoFromError(err)
	if hasTrace {
		return fmt.Sprintf("error: %s, traceid: %s, spanid: %s", err.Error(), traceID, spanID)
	}
	return fmt.Sprintf("error: %s", err.Error())
}
