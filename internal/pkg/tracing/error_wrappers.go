package tracing

import (
	"context"
	"fmt"

	errors "github.com/go-kratos/kratos/v2/errors"
)

// WrapErrorWithTrace 为已有错误补上 traceid/spanid，已有的追踪信息保持不变
func WrapErrorWithTrace(ctx context.Context, err *errors.Error) *errors.Error {
	if err == nil {
		return nil
	}
	info := ExtractTraceInfo(ctx)
	if info.TraceID == "" {
		return err
	}

	metadata := make(map[string]string, len(err.Metadata)+2)
	for k, v := range err.Metadata {
		metadata[k] = v
	}
	if _, ok := metadata[MetadataTraceID]; !ok {
		metadata[MetadataTraceID] = info.TraceID
	}
	if _, ok := metadata[MetadataSpanID]; !ok {
		metadata[MetadataSpanID] = info.SpanID
	}
	return err.WithMetadata(metadata)
}

// NewErrorWithTrace 创建带追踪信息的错误
func NewErrorWithTrace(ctx context.Context, code int, reason, format string, args ...interface{}) *errors.Error {
	return WrapErrorWithTrace(ctx, errors.New(code, reason, fmt.Sprintf(format, args...)))
}
