package domain

import "errors"

var (
	ErrSignatureInvalid       = errors.New("signature_invalid")
	ErrMalformedPayload       = errors.New("malformed_payload")
	ErrInvalidTransition      = errors.New("invalid_transition")
	ErrEventAlreadyProcessed  = errors.New("event_already_processed")
	ErrConcurrentModification = errors.New("concurrent_modification")
	ErrStoreUnavailable       = errors.New("store_unavailable")
	ErrRetriesExhausted       = errors.New("retries_exhausted")
	ErrPaymentNotFound        = errors.New("payment_not_found")
	ErrInvalidState           = errors.New("invalid_state")
	ErrInvalidAmount          = errors.New("invalid_amount")
	ErrInvalidCurrency        = errors.New("invalid_currency")
	ErrInvalidID              = errors.New("invalid_id")
	ErrMissingIntent          = errors.New("missing_processor_intent")
	ErrDuplicateIntent        = errors.New("duplicate_processor_intent")
	ErrIntentUnavailable      = errors.New("intent_initiator_unavailable")
)

// TransitionError carries the rejected state/trigger pair. It matches
// ErrInvalidTransition with errors.Is.
type TransitionError struct {
	From    State
	Trigger Trigger
}

func (e *TransitionError) Error() string {
	return "invalid_transition: " + string(e.Trigger) + " from " + string(e.From)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}
