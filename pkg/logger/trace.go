package logger

import (
	"context"
	"log/slog"
)

// traceKey 是上下文中存储 trace id 的键类型。
type traceKey struct{}

// WithTraceID 将请求级别的 trace id 写入上下文。
func WithTraceID(ctx context.Context, traceID string) context.Context {
	if traceID == "" {
		return ctx
	}
	return context.WithValue(ctx, traceKey{}, traceID)
}

// TraceID 返回上下文中的 trace id，未设置时返回 "-"。
func TraceID(ctx context.Context) string {
	if ctx == nil {
		return "-"
	}
	if id, ok := ctx.Value(traceKey{}).(string); ok && id != "" {
		return id
	}
	return "-"
}

// FromContext 返回带有 trace_id 字段的日志实例，保证同一请求的日志可以串联。
func FromContext(ctx context.Context) *slog.Logger {
	return L().With(slog.String("trace_id", TraceID(ctx)))
}

// AuditFromContext 返回带有 trace_id 字段的审计日志实例。
func AuditFromContext(ctx context.Context) *slog.Logger {
	return Audit().With(slog.String("trace_id", TraceID(ctx)))
}
