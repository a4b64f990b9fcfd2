package context

import (
	"context"
	"strings"
)

type ctxKey string

const (
	requestIDKey   ctxKey = "request_id"
	processorIDKey ctxKey = "processor_id"
	jobKey         ctxKey = "job"
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, strings.TrimSpace(requestID))
}

func RequestIDFromContext(ctx context.Context) string {
	return stringValue(ctx, requestIDKey)
}

// WithProcessorID tags the context with the payment processor (tenant) being served.
func WithProcessorID(ctx context.Context, processorID string) context.Context {
	return context.WithValue(ctx, processorIDKey, strings.TrimSpace(processorID))
}

func ProcessorIDFromContext(ctx context.Context) string {
	return stringValue(ctx, processorIDKey)
}

func WithJob(ctx context.Context, job string) context.Context {
	return context.WithValue(ctx, jobKey, strings.TrimSpace(job))
}

func JobFromContext(ctx context.Context) string {
	return stringValue(ctx, jobKey)
}

func stringValue(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
