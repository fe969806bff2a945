package webhook

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payflow/internal/clock"
	"github.com/smallbiznis/payflow/internal/config"
	obscontext "github.com/smallbiznis/payflow/internal/observability/context"
	"github.com/smallbiznis/payflow/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/payflow/internal/observability/metrics"
	"github.com/smallbiznis/payflow/internal/payment/domain"
	"github.com/smallbiznis/payflow/internal/payment/statemachine"
	"github.com/smallbiznis/payflow/pkg/db"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const provider = "stripe"

// Outcome labels for deliveries that never reach the ledger.
const (
	outcomeSignatureInvalid = "signature_invalid"
	outcomeMalformed        = "malformed"
	outcomeRetry            = "retry"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       domain.Repository
	Ledger     domain.Ledger
	Verifier   domain.Verifier
	Router     domain.Router
	Config     *config.WebhookConfigHolder
	AckCache   AckCache            `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

// Service is the webhook processor. It is the only holder of
// domain.Repository, so it is the only code able to enter a terminal state.
type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       domain.Repository
	ledger     domain.Ledger
	verifier   domain.Verifier
	router     domain.Router
	cfg        *config.WebhookConfigHolder
	ackCache   AckCache
	obsMetrics *obsmetrics.Metrics
	tracer     trace.Tracer
}

func NewService(p Params) domain.WebhookService {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payment.webhook"),
		genID:      p.GenID,
		clock:      clk,
		repo:       p.Repo,
		ledger:     p.Ledger,
		verifier:   p.Verifier,
		router:     p.Router,
		cfg:        p.Config,
		ackCache:   p.AckCache,
		obsMetrics: p.ObsMetrics,
		tracer:     otel.Tracer("payflow/payment.webhook"),
	}
}

// applyResult is what one committed unit of work did.
type applyResult struct {
	result  domain.WebhookResult
	outcome string
}

// IngestWebhook verifies, routes and applies one processor delivery. A nil
// error means the delivery may be acknowledged. Signature and payload errors
// are permanent; ErrStoreUnavailable and ErrRetriesExhausted ask the
// processor to redeliver.
func (s *Service) IngestWebhook(ctx context.Context, payload []byte, headers http.Header) (domain.WebhookResult, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "payment.webhook.ingest", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	event, err := s.verifier.Verify(ctx, payload, headers)
	if err != nil {
		outcome := outcomeMalformed
		if errors.Is(err, domain.ErrSignatureInvalid) {
			outcome = outcomeSignatureInvalid
		}
		logger.WithContext(ctx, s.log).Warn("rejecting webhook delivery",
			zap.String("reason", outcome),
			zap.Int("payload_bytes", len(payload)),
		)
		span.SetStatus(codes.Error, outcome)
		s.obsMetrics.RecordWebhook(ctx, provider, "", outcome, time.Since(start))
		return domain.WebhookResult{}, err
	}

	ctx = obscontext.WithProcessorEventID(ctx, event.ProcessorEventID)
	log := logger.WithContext(ctx, s.log).With(zap.String("event_type", event.EventType))
	span.SetAttributes(
		attribute.String("processor_event_id", event.ProcessorEventID),
		attribute.String("event_type", event.EventType),
	)

	result := domain.WebhookResult{ProcessorEventID: event.ProcessorEventID}

	route, ok := s.router.Route(ctx, event)
	if !ok {
		result.Outcome = domain.WebhookOutcomeIgnored
		log.Debug("webhook event ignored")
		s.finish(ctx, span, event, result, start)
		return result, nil
	}
	span.SetAttributes(attribute.String("trigger", string(route.Trigger)))

	cfg := s.cfg.Get()
	if paymentID, hit := s.lookupAck(ctx, log, event.ProcessorEventID); hit {
		result.Outcome = domain.WebhookOutcomeDuplicate
		result.PaymentID = paymentID
		log.Debug("webhook event already acknowledged", zap.Int64("payment_id", int64(paymentID)))
		s.finish(ctx, span, event, result, start)
		return result, nil
	}

	storeCtx, cancel := context.WithTimeout(ctx, cfg.StoreTimeout)
	defer cancel()

	applied, err := s.apply(storeCtx, log, event, route, cfg.MaxConflictRetries)
	switch {
	case errors.Is(err, domain.ErrEventAlreadyProcessed):
		result = s.duplicateResult(ctx, event, cfg.StoreTimeout)
		log.Info("duplicate webhook delivery acknowledged", zap.Int64("payment_id", int64(result.PaymentID)))
		s.remember(ctx, log, event.ProcessorEventID, result.PaymentID, cfg.AckCacheTTL)
	case errors.Is(err, domain.ErrRetriesExhausted):
		log.Warn("version conflicts exhausted retries, asking for redelivery",
			zap.Int("max_retries", cfg.MaxConflictRetries),
		)
		span.SetStatus(codes.Error, "retries exhausted")
		s.obsMetrics.RecordWebhook(ctx, provider, event.EventType, outcomeRetry, time.Since(start))
		return result, err
	case err != nil:
		s.obsMetrics.RecordStoreError(ctx, "webhook.apply", err)
		if db.IsTransientErr(err) {
			log.Warn("transient store failure, asking for redelivery", zap.Error(err))
		} else {
			log.Error("store failure, asking for redelivery", zap.Error(err))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "store unavailable")
		s.obsMetrics.RecordWebhook(ctx, provider, event.EventType, outcomeRetry, time.Since(start))
		return result, fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	default:
		result = applied.result
		s.remember(ctx, log, event.ProcessorEventID, result.PaymentID, cfg.AckCacheTTL)
	}

	s.finish(ctx, span, event, result, start)
	return result, nil
}

// apply runs claim, load, transition and persist as one transaction. Any
// error rolls the claim back so a redelivery can try again.
func (s *Service) apply(ctx context.Context, log *zap.Logger, event *domain.NormalizedEvent, route domain.Route, maxRetries int) (applyResult, error) {
	now := s.clock.Now().UTC()
	record := &domain.ProcessedEvent{
		ID:                s.genID.Generate(),
		ProcessorEventID:  event.ProcessorEventID,
		EventType:         event.EventType,
		ProcessorIntentID: route.ProcessorIntentID,
		AppliedTransition: string(route.Trigger),
		Outcome:           domain.OutcomePending,
		OccurredAt:        occurredAt(event, now),
		ReceivedAt:        now,
		Payload:           datatypes.JSON(event.RawPayload),
	}

	var out applyResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		claimed, err := s.ledger.Claim(ctx, tx, record)
		if err != nil {
			return fmt.Errorf("claim event: %w", err)
		}
		if !claimed {
			return domain.ErrEventAlreadyProcessed
		}

		out, err = s.transition(ctx, tx, log, route, now, maxRetries)
		if err != nil {
			return err
		}

		var target *snowflake.ID
		if out.result.PaymentID != 0 {
			id := out.result.PaymentID
			target = &id
		}
		applied := string(route.Trigger)
		if out.outcome == domain.OutcomeApplied {
			applied = domain.Transition{From: out.result.From, To: out.result.To}.String()
		}
		if err := s.ledger.Complete(ctx, tx, record.ID, target, applied, out.outcome); err != nil {
			return fmt.Errorf("complete event: %w", err)
		}
		return nil
	})
	if err != nil {
		return applyResult{}, err
	}

	out.result.ProcessorEventID = event.ProcessorEventID
	if out.outcome == domain.OutcomeApplied {
		s.obsMetrics.RecordTransition(ctx, "webhook", string(out.result.From), string(out.result.To))
	}
	return out, nil
}

// transition loads the payment and writes the next state under the version
// guard, reloading on conflict up to maxRetries times. The claim stays held
// across retries, so this event cannot be applied twice.
func (s *Service) transition(ctx context.Context, tx *gorm.DB, log *zap.Logger, route domain.Route, now time.Time, maxRetries int) (applyResult, error) {
	for attempt := 0; ; attempt++ {
		payment, err := s.repo.FindByIntentID(ctx, tx, route.ProcessorIntentID)
		if err != nil {
			return applyResult{}, fmt.Errorf("load payment: %w", err)
		}
		if payment == nil {
			log.Warn("webhook event references unknown payment intent",
				zap.String("processor_intent_id", route.ProcessorIntentID),
			)
			return applyResult{
				result:  domain.WebhookResult{Outcome: domain.WebhookOutcomeOrphaned},
				outcome: domain.OutcomeOrphaned,
			}, nil
		}
		plog := logger.WithPayment(log, payment.ID.String(), payment.ProcessorIntentID)

		next, err := statemachine.AttemptTransition(payment.State, route.Trigger)
		if err != nil {
			if !errors.Is(err, domain.ErrInvalidTransition) && !errors.Is(err, domain.ErrInvalidState) {
				return applyResult{}, err
			}
			plog.Warn("webhook event refused by payment state machine",
				zap.String("state", string(payment.State)),
				zap.String("trigger", string(route.Trigger)),
				zap.Int64("version", payment.Version),
				zap.Error(err),
			)
			s.obsMetrics.RecordInvalidTransition(ctx, string(payment.State), string(route.Trigger))
			return applyResult{
				result: domain.WebhookResult{
					Outcome:   domain.WebhookOutcomeRejected,
					PaymentID: payment.ID,
					From:      payment.State,
					To:        payment.State,
					Rejection: err,
				},
				outcome: domain.OutcomeRejected,
			}, nil
		}

		err = s.repo.UpdateState(ctx, tx, domain.StateUpdate{
			ID:              payment.ID,
			ExpectedVersion: payment.Version,
			Next:            next,
			FailureReason:   failureReason(next, route.FailureReason),
			At:              now,
		})
		if errors.Is(err, domain.ErrConcurrentModification) {
			s.obsMetrics.RecordVersionConflict(ctx, "webhook")
			plog.Info("payment version moved, reloading",
				zap.Int64("expected_version", payment.Version),
				zap.Int("attempt", attempt+1),
			)
			if attempt >= maxRetries {
				return applyResult{}, domain.ErrRetriesExhausted
			}
			continue
		}
		if err != nil {
			return applyResult{}, fmt.Errorf("update payment: %w", err)
		}

		plog.Info("payment transition applied",
			zap.String("from", string(payment.State)),
			zap.String("to", string(next)),
			zap.Int64("version", payment.Version+1),
		)
		return applyResult{
			result: domain.WebhookResult{
				Outcome:   domain.WebhookOutcomeApplied,
				PaymentID: payment.ID,
				From:      payment.State,
				To:        next,
			},
			outcome: domain.OutcomeApplied,
		}, nil
	}
}

// duplicateResult reports the first delivery's effect. The ledger row is
// committed by now: a concurrent claim only loses after the winner commits.
// The lookup gets its own store deadline; the apply deadline may be spent.
func (s *Service) duplicateResult(ctx context.Context, event *domain.NormalizedEvent, timeout time.Duration) domain.WebhookResult {
	result := domain.WebhookResult{
		Outcome:          domain.WebhookOutcomeDuplicate,
		ProcessorEventID: event.ProcessorEventID,
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	row, err := s.ledger.FindByProcessorEventID(ctx, s.db, event.ProcessorEventID)
	if err != nil || row == nil {
		return result
	}
	if row.TargetPaymentID != nil {
		result.PaymentID = *row.TargetPaymentID
	}
	return result
}

func (s *Service) lookupAck(ctx context.Context, log *zap.Logger, processorEventID string) (snowflake.ID, bool) {
	if s.ackCache == nil {
		return 0, false
	}
	paymentID, hit, err := s.ackCache.Lookup(ctx, processorEventID)
	if err != nil {
		log.Debug("ack cache lookup failed", zap.Error(err))
		return 0, false
	}
	return paymentID, hit
}

func (s *Service) remember(ctx context.Context, log *zap.Logger, processorEventID string, paymentID snowflake.ID, ttl time.Duration) {
	if s.ackCache == nil {
		return
	}
	if err := s.ackCache.Remember(ctx, processorEventID, paymentID, ttl); err != nil {
		log.Debug("ack cache write failed", zap.Error(err))
	}
}

func (s *Service) finish(ctx context.Context, span trace.Span, event *domain.NormalizedEvent, result domain.WebhookResult, start time.Time) {
	span.SetAttributes(attribute.String("webhook.outcome", result.Outcome))
	s.obsMetrics.RecordWebhook(ctx, provider, event.EventType, result.Outcome, time.Since(start))
}

func failureReason(next domain.State, reason string) *string {
	if reason == "" {
		return nil
	}
	switch next {
	case domain.StateFailed, domain.StateCanceled:
		return &reason
	default:
		return nil
	}
}

func occurredAt(event *domain.NormalizedEvent, fallback time.Time) time.Time {
	if event.OccurredAt.IsZero() {
		return fallback
	}
	return event.OccurredAt.UTC()
}
