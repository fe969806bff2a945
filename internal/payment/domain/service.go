package domain

import (
	"context"
	"net/http"

	"github.com/bwmarrin/snowflake"
)

// Verifier authenticates a raw processor delivery and normalizes it.
type Verifier interface {
	Verify(ctx context.Context, payload []byte, headers http.Header) (*NormalizedEvent, error)
}

// Router maps a normalized event to a trigger. ok is false for events that
// must be acknowledged without effect.
type Router interface {
	Route(ctx context.Context, event *NormalizedEvent) (route Route, ok bool)
}

// IntentInitiator creates a processor payment intent for a new payment.
type IntentInitiator interface {
	CreateIntent(ctx context.Context, paymentID snowflake.ID, amount int64, currency string) (string, error)
}

// Webhook outcomes reported to callers and metrics.
const (
	WebhookOutcomeApplied   = "applied"
	WebhookOutcomeDuplicate = "duplicate"
	WebhookOutcomeIgnored   = "ignored"
	WebhookOutcomeRejected  = "rejected"
	WebhookOutcomeOrphaned  = "orphaned"
)

// WebhookResult describes what a delivery did.
type WebhookResult struct {
	Outcome          string
	ProcessorEventID string
	PaymentID        snowflake.ID
	From             State
	To               State

	// Rejection is set when the event was claimed but the state machine
	// refused it. The delivery is still acknowledged.
	Rejection error
}

// WebhookService ingests processor deliveries.
type WebhookService interface {
	IngestWebhook(ctx context.Context, payload []byte, headers http.Header) (WebhookResult, error)
}

type CreatePaymentRequest struct {
	Amount            int64  `validate:"gt=0"`
	Currency          string `validate:"required,len=3,alpha"`
	ProcessorIntentID string `validate:"omitempty,max=255"`
}

type ClientTransitionRequest struct {
	PaymentID string
	Trigger   ClientTrigger
}

// Service is the client-facing payment API. It never enters a terminal state.
type Service interface {
	Create(ctx context.Context, req CreatePaymentRequest) (Payment, error)
	Get(ctx context.Context, id string) (Payment, error)
	ApplyClientTransition(ctx context.Context, req ClientTransitionRequest) (Payment, error)
}
