package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/go-playground/validator/v10"
	"github.com/smallbiznis/payflow/internal/clock"
	"github.com/smallbiznis/payflow/internal/config"
	"github.com/smallbiznis/payflow/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/payflow/internal/observability/metrics"
	"github.com/smallbiznis/payflow/internal/payment/domain"
	"github.com/smallbiznis/payflow/internal/payment/statemachine"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       domain.ClientRepository
	Config     *config.WebhookConfigHolder
	Initiator  domain.IntentInitiator `optional:"true"`
	ObsMetrics *obsmetrics.Metrics    `optional:"true"`
}

// Service is the client-facing payment API. It holds only the client
// repository, so it cannot write a terminal state.
type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       domain.ClientRepository
	cfg        *config.WebhookConfigHolder
	initiator  domain.IntentInitiator
	obsMetrics *obsmetrics.Metrics
	validate   *validator.Validate
}

func NewService(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payment.service"),
		genID:      p.GenID,
		clock:      clk,
		repo:       p.Repo,
		cfg:        p.Config,
		initiator:  p.Initiator,
		obsMetrics: p.ObsMetrics,
		validate:   validator.New(),
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreatePaymentRequest) (domain.Payment, error) {
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	req.ProcessorIntentID = strings.TrimSpace(req.ProcessorIntentID)
	if err := s.validateCreate(req); err != nil {
		return domain.Payment{}, err
	}

	id := s.genID.Generate()
	intentID := req.ProcessorIntentID
	if intentID == "" {
		if s.initiator == nil {
			return domain.Payment{}, domain.ErrMissingIntent
		}
		created, err := s.initiator.CreateIntent(ctx, id, req.Amount, req.Currency)
		if err != nil {
			s.log.Warn("failed to create processor intent", zap.Int64("payment_id", int64(id)), zap.Error(err))
			if errors.Is(err, domain.ErrIntentUnavailable) {
				return domain.Payment{}, err
			}
			return domain.Payment{}, fmt.Errorf("%w: %w", domain.ErrIntentUnavailable, err)
		}
		intentID = strings.TrimSpace(created)
		if intentID == "" {
			return domain.Payment{}, domain.ErrMissingIntent
		}
	}

	now := s.clock.Now().UTC()
	payment := domain.Payment{
		ID:                id,
		ProcessorIntentID: intentID,
		State:             domain.StateCreated,
		Amount:            req.Amount,
		Currency:          req.Currency,
		Version:           1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.repo.Insert(ctx, s.db, &payment); err != nil {
		if errors.Is(err, domain.ErrDuplicateIntent) {
			return domain.Payment{}, err
		}
		s.obsMetrics.RecordStoreError(ctx, "payment.create", err)
		return domain.Payment{}, fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}

	logger.WithPayment(logger.WithContext(ctx, s.log), payment.ID.String(), payment.ProcessorIntentID).
		Info("payment created", zap.Int64("amount", payment.Amount), zap.String("currency", payment.Currency))
	return payment, nil
}

func (s *Service) validateCreate(req domain.CreatePaymentRequest) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	for _, fe := range verrs {
		switch fe.Field() {
		case "Amount":
			return domain.ErrInvalidAmount
		case "Currency":
			return domain.ErrInvalidCurrency
		case "ProcessorIntentID":
			return domain.ErrMissingIntent
		}
	}
	return err
}

func (s *Service) Get(ctx context.Context, id string) (domain.Payment, error) {
	paymentID, err := parseID(id)
	if err != nil {
		return domain.Payment{}, err
	}
	payment, err := s.repo.FindByID(ctx, s.db, paymentID)
	if err != nil {
		return domain.Payment{}, fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	if payment == nil {
		return domain.Payment{}, domain.ErrPaymentNotFound
	}
	return *payment, nil
}

// ApplyClientTransition moves a payment into a pending state on the client's
// word. Repeating a transition that already landed returns the payment as-is.
func (s *Service) ApplyClientTransition(ctx context.Context, req domain.ClientTransitionRequest) (domain.Payment, error) {
	paymentID, err := parseID(req.PaymentID)
	if err != nil {
		return domain.Payment{}, err
	}
	target, ok := statemachine.ClientTarget(req.Trigger)
	if !ok {
		return domain.Payment{}, domain.ErrInvalidTransition
	}

	maxRetries := s.cfg.Get().MaxConflictRetries
	log := logger.WithContext(ctx, s.log)

	for attempt := 0; ; attempt++ {
		payment, err := s.repo.FindByID(ctx, s.db, paymentID)
		if err != nil {
			return domain.Payment{}, fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
		}
		if payment == nil {
			return domain.Payment{}, domain.ErrPaymentNotFound
		}
		if payment.State == target {
			return *payment, nil
		}

		next, err := statemachine.AttemptClientTransition(payment.State, req.Trigger)
		if err != nil {
			s.obsMetrics.RecordInvalidTransition(ctx, string(payment.State), string(req.Trigger))
			return domain.Payment{}, err
		}

		now := s.clock.Now().UTC()
		err = s.repo.UpdatePendingState(ctx, s.db, payment.ID, payment.Version, next, now)
		if errors.Is(err, domain.ErrConcurrentModification) {
			s.obsMetrics.RecordVersionConflict(ctx, "client")
			if attempt >= maxRetries {
				return domain.Payment{}, domain.ErrRetriesExhausted
			}
			continue
		}
		if err != nil {
			s.obsMetrics.RecordStoreError(ctx, "payment.client_transition", err)
			return domain.Payment{}, fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
		}

		s.obsMetrics.RecordTransition(ctx, "client", string(payment.State), string(next.State()))
		logger.WithPayment(log, payment.ID.String(), payment.ProcessorIntentID).Info("client transition applied",
			zap.String("from", string(payment.State)),
			zap.String("to", string(next.State())),
		)

		payment.State = next.State()
		payment.Version++
		payment.LastTransitionAt = &now
		payment.UpdatedAt = now
		return *payment, nil
	}
}

func parseID(id string) (snowflake.ID, error) {
	parsed, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || parsed <= 0 {
		return 0, domain.ErrInvalidID
	}
	return parsed, nil
}
