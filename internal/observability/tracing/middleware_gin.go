package tracing

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/payflow/internal/observability/context"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Gin keys handlers set so the server span can describe the delivery.
const (
	KeyWebhookOutcome   = "webhook_outcome"
	KeyProcessorEventID = "processor_event_id"
	KeyPaymentID        = "payment_id"
)

const tracerName = "payflow/http"

// MiddlewareConfig controls server span enrichment.
type MiddlewareConfig struct {
	// TracerProvider defaults to the global provider.
	TracerProvider trace.TracerProvider
	// ErrorClassifier maps a handler error to (type, code) for span events.
	ErrorClassifier func(err error) (string, string)
}

// GinMiddleware opens one server span per request, named after the matched
// route, and annotates it with the webhook delivery fields handlers leave on
// the gin context. 5xx responses mark the span as failed; 4xx responses are
// recorded as a rejection event on an otherwise OK span.
func GinMiddleware(cfg MiddlewareConfig) gin.HandlerFunc {
	tp := cfg.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	tracer := tp.Tracer(tracerName)

	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := strings.ToUpper(c.Request.Method)

		ctx := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tracer.Start(ctx, method+" "+route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(SafeAttributes(
				attribute.String("http.request.method", method),
				attribute.String("http.route", route),
			)...),
		)
		defer span.End()

		if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
			span.SetAttributes(attribute.String("request_id", requestID))
		}
		if cid := obscontext.CorrelationIDFromContext(ctx); cid != "" {
			span.SetAttributes(attribute.String("correlation_id", cid))
		}

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(attribute.Int("http.response.status_code", status))
		span.SetAttributes(deliveryAttributes(c)...)

		switch {
		case status >= http.StatusInternalServerError:
			if lastErr := c.Errors.Last(); lastErr != nil {
				span.RecordError(SafeError(lastErr.Err))
			}
			span.SetStatus(codes.Error, http.StatusText(status))
		case status >= http.StatusBadRequest:
			span.AddEvent("request.rejected", trace.WithAttributes(rejectionAttributes(c, cfg.ErrorClassifier)...))
		}
	}
}

func deliveryAttributes(c *gin.Context) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	if v := strings.TrimSpace(c.GetString(KeyWebhookOutcome)); v != "" {
		attrs = append(attrs, attribute.String("webhook.outcome", v))
	}
	if v := strings.TrimSpace(c.GetString(KeyProcessorEventID)); v != "" {
		attrs = append(attrs, attribute.String("webhook.processor_event_id", v))
	}
	if v := strings.TrimSpace(c.GetString(KeyPaymentID)); v != "" {
		attrs = append(attrs, attribute.String("payment.id", v))
	}
	return SafeAttributes(attrs...)
}

func rejectionAttributes(c *gin.Context, classify func(error) (string, string)) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.Int("http.response.status_code", c.Writer.Status())}
	lastErr := c.Errors.Last()
	if lastErr == nil || classify == nil {
		return attrs
	}
	errType, errCode := classify(lastErr.Err)
	if errType != "" {
		attrs = append(attrs, attribute.String("error.type", errType))
	}
	if errCode != "" {
		attrs = append(attrs, attribute.String("error.code", errCode))
	}
	return attrs
}
