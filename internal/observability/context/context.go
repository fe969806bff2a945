// Package context carries request-scoped observability identifiers.
package context

import (
	"context"
	"strings"

	"github.com/smallbiznis/payflow/pkg/telemetry/correlation"
)

type requestIDKey struct{}
type processorEventIDKey struct{}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}

// WithProcessorEventID tags the context with the webhook event being handled.
func WithProcessorEventID(ctx context.Context, eventID string) context.Context {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return ctx
	}
	return context.WithValue(ctx, processorEventIDKey{}, eventID)
}

func ProcessorEventIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(processorEventIDKey{}).(string); ok {
		return v
	}
	return ""
}

func CorrelationIDFromContext(ctx context.Context) string {
	return correlation.ExtractCorrelationID(ctx)
}
