package stripe

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/smallbiznis/payflow/internal/payment/domain"
	"github.com/stripe/stripe-go/v81/webhook"
)

const (
	SignatureHeader = "Stripe-Signature"

	DefaultTolerance = webhook.DefaultTolerance
)

type VerifierConfig struct {
	WebhookSecret string
	Tolerance     time.Duration
	// ToleranceSource, when set, is consulted on every delivery and wins over
	// Tolerance. Non-positive values fall back to Tolerance.
	ToleranceSource func() time.Duration
}

// Verifier authenticates Stripe deliveries with the endpoint signing secret.
type Verifier struct {
	secret          string
	tolerance       time.Duration
	toleranceSource func() time.Duration
}

func NewVerifier(cfg VerifierConfig) *Verifier {
	tolerance := cfg.Tolerance
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Verifier{
		secret:          strings.TrimSpace(cfg.WebhookSecret),
		tolerance:       tolerance,
		toleranceSource: cfg.ToleranceSource,
	}
}

func (v *Verifier) currentTolerance() time.Duration {
	if v.toleranceSource != nil {
		if tolerance := v.toleranceSource(); tolerance > 0 {
			return tolerance
		}
	}
	return v.tolerance
}

type stripeEvent struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Data    stripeEventData `json:"data"`
}

type stripeEventData struct {
	Object json.RawMessage `json:"object"`
}

type stripeObject struct {
	ID                 string              `json:"id"`
	Object             string              `json:"object"`
	Status             string              `json:"status"`
	PaymentIntent      json.RawMessage     `json:"payment_intent"`
	CancellationReason string              `json:"cancellation_reason"`
	LastPaymentError   *stripePaymentError `json:"last_payment_error"`
	Created            int64               `json:"created"`
}

type stripePaymentError struct {
	Code        string `json:"code"`
	DeclineCode string `json:"decline_code"`
	Message     string `json:"message"`
}

// Verify checks the signature before anything in the payload is trusted.
// An unset secret rejects every delivery.
func (v *Verifier) Verify(ctx context.Context, payload []byte, headers http.Header) (*domain.NormalizedEvent, error) {
	if v == nil || v.secret == "" {
		return nil, domain.ErrSignatureInvalid
	}
	sigHeader := strings.TrimSpace(headers.Get(SignatureHeader))
	if sigHeader == "" {
		return nil, domain.ErrSignatureInvalid
	}
	if err := webhook.ValidatePayloadWithTolerance(payload, sigHeader, v.secret, v.currentTolerance()); err != nil {
		return nil, domain.ErrSignatureInvalid
	}

	return Parse(payload)
}

// Parse normalizes an already-authenticated Stripe event payload.
func Parse(payload []byte) (*domain.NormalizedEvent, error) {
	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, domain.ErrMalformedPayload
	}
	event.ID = strings.TrimSpace(event.ID)
	event.Type = strings.TrimSpace(event.Type)
	if event.ID == "" || event.Type == "" {
		return nil, domain.ErrMalformedPayload
	}

	var object stripeObject
	if len(event.Data.Object) > 0 {
		if err := json.Unmarshal(event.Data.Object, &object); err != nil {
			return nil, domain.ErrMalformedPayload
		}
	}

	intentID := intentIDFromObject(object)
	if strings.HasPrefix(event.Type, "payment_intent.") {
		if object.Object != "" && object.Object != "payment_intent" {
			return nil, domain.ErrMalformedPayload
		}
		if intentID == "" {
			return nil, domain.ErrMalformedPayload
		}
	}

	return &domain.NormalizedEvent{
		ProcessorEventID:  event.ID,
		ProcessorIntentID: intentID,
		EventType:         event.Type,
		OccurredAt:        timestamp(event.Created, object.Created),
		ObjectStatus:      strings.TrimSpace(object.Status),
		FailureReason:     failureReason(event.Type, object),
		RawPayload:        payload,
	}, nil
}

func intentIDFromObject(object stripeObject) string {
	if object.Object == "payment_intent" || (object.Object == "" && strings.HasPrefix(object.ID, "pi_")) {
		return strings.TrimSpace(object.ID)
	}
	if len(object.PaymentIntent) == 0 {
		return ""
	}
	// payment_intent is either an id string or an expanded object.
	var id string
	if err := json.Unmarshal(object.PaymentIntent, &id); err == nil {
		return strings.TrimSpace(id)
	}
	var expanded struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(object.PaymentIntent, &expanded); err == nil {
		return strings.TrimSpace(expanded.ID)
	}
	return ""
}

func failureReason(eventType string, object stripeObject) string {
	switch eventType {
	case "payment_intent.canceled":
		return strings.TrimSpace(object.CancellationReason)
	}
	if object.LastPaymentError == nil {
		return ""
	}
	parts := make([]string, 0, 2)
	code := strings.TrimSpace(object.LastPaymentError.DeclineCode)
	if code == "" {
		code = strings.TrimSpace(object.LastPaymentError.Code)
	}
	if code != "" {
		parts = append(parts, code)
	}
	if msg := strings.TrimSpace(object.LastPaymentError.Message); msg != "" {
		parts = append(parts, msg)
	}
	return strings.Join(parts, ": ")
}

func timestamp(primary int64, fallback int64) time.Time {
	value := primary
	if value == 0 {
		value = fallback
	}
	if value == 0 {
		return time.Now().UTC()
	}
	return time.Unix(value, 0).UTC()
}
