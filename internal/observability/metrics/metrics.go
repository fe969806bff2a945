package metrics

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

const (
	StoreReasonDeadlineExceeded     = "deadline_exceeded"
	StoreReasonLockTimeout          = "db_lock_timeout"
	StoreReasonSerializationFailure = "serialization_failure"
	StoreReasonDeadlock             = "deadlock"
	StoreReasonUniqueViolation      = "unique_violation"
	StoreReasonUnknown              = "unknown"
)

// Metrics exposes application-level instruments.
type Metrics struct {
	webhookEvents      metric.Int64Counter
	webhookDuration    metric.Float64Histogram
	transitions        metric.Int64Counter
	invalidTransitions metric.Int64Counter
	versionConflicts   metric.Int64Counter
	storeErrors        metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "payflow"
	}
	meter := provider.Meter(name)

	webhookEvents, err := meter.Int64Counter("payflow_webhook_events_total",
		metric.WithDescription("Webhook deliveries by event type and outcome."))
	if err != nil {
		return nil, err
	}
	webhookDuration, err := meter.Float64Histogram("payflow_webhook_processing_seconds",
		metric.WithDescription("Time from receipt to commit for a webhook delivery."),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	transitions, err := meter.Int64Counter("payflow_payment_transitions_total",
		metric.WithDescription("Committed payment state transitions."))
	if err != nil {
		return nil, err
	}
	invalidTransitions, err := meter.Int64Counter("payflow_payment_invalid_transitions_total",
		metric.WithDescription("Events claimed but refused by the payment state machine."))
	if err != nil {
		return nil, err
	}
	versionConflicts, err := meter.Int64Counter("payflow_payment_version_conflicts_total",
		metric.WithDescription("Optimistic concurrency conflicts on payment writes."))
	if err != nil {
		return nil, err
	}
	storeErrors, err := meter.Int64Counter("payflow_store_errors_total",
		metric.WithDescription("Store failures surfaced as retryable deliveries."))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		webhookEvents:      webhookEvents,
		webhookDuration:    webhookDuration,
		transitions:        transitions,
		invalidTransitions: invalidTransitions,
		versionConflicts:   versionConflicts,
		storeErrors:        storeErrors,
	}, nil
}

// RecordWebhook counts one delivery and its processing time.
func (m *Metrics) RecordWebhook(ctx context.Context, provider, eventType, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("provider", strings.TrimSpace(provider)),
		attribute.String("event_type", strings.TrimSpace(eventType)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.webhookEvents.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.webhookDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attrs...))
}

// RecordTransition counts a committed state change.
func (m *Metrics) RecordTransition(ctx context.Context, source, from, to string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("source", strings.TrimSpace(source)),
		attribute.String("from", strings.TrimSpace(from)),
		attribute.String("to", strings.TrimSpace(to)),
	)
	m.transitions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordInvalidTransition counts an event the state machine refused.
func (m *Metrics) RecordInvalidTransition(ctx context.Context, from, trigger string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("from", strings.TrimSpace(from)),
		attribute.String("trigger", strings.TrimSpace(trigger)),
	)
	m.invalidTransitions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordVersionConflict counts a stale write that had to be retried.
func (m *Metrics) RecordVersionConflict(ctx context.Context, source string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("source", strings.TrimSpace(source)))
	m.versionConflicts.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordStoreError counts a store failure by low-cardinality reason.
func (m *Metrics) RecordStoreError(ctx context.Context, operation string, err error) {
	if m == nil || err == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("operation", strings.TrimSpace(operation)),
		attribute.String("reason", ClassifyStoreReason(err)),
	)
	m.storeErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// ClassifyStoreReason maps a store error onto a fixed label set.
func ClassifyStoreReason(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return StoreReasonDeadlineExceeded
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return StoreReasonUniqueViolation
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "55P03":
			return StoreReasonLockTimeout
		case "40001":
			return StoreReasonSerializationFailure
		case "40P01":
			return StoreReasonDeadlock
		case "23505":
			return StoreReasonUniqueViolation
		}
	}
	return StoreReasonUnknown
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"provider":    {},
	"event_type":  {},
	"outcome":     {},
	"source":      {},
	"from":        {},
	"to":          {},
	"trigger":     {},
	"operation":   {},
	"reason":      {},
	"status_code": {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
