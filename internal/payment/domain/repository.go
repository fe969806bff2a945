package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// StateUpdate is a version-guarded state write.
type StateUpdate struct {
	ID              snowflake.ID
	ExpectedVersion int64
	Next            State
	FailureReason   *string
	At              time.Time
}

// PaymentReader loads payments.
type PaymentReader interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Payment, error)
	FindByIntentID(ctx context.Context, db *gorm.DB, intentID string) (*Payment, error)
}

// Repository is the full Payment Record Store. Only the webhook processor
// receives it; UpdateState may write terminal states.
type Repository interface {
	PaymentReader
	Insert(ctx context.Context, db *gorm.DB, payment *Payment) error
	UpdateState(ctx context.Context, db *gorm.DB, update StateUpdate) error
}

// ClientRepository is the narrower store handed to client-facing code.
// UpdatePendingState only accepts PendingRequiresAction or PendingProcessing
// and returns ErrInvalidTransition for anything else.
type ClientRepository interface {
	PaymentReader
	Insert(ctx context.Context, db *gorm.DB, payment *Payment) error
	UpdatePendingState(ctx context.Context, db *gorm.DB, id snowflake.ID, expectedVersion int64, next PendingState, at time.Time) error
}

// Ledger is the Processed-Event Ledger.
type Ledger interface {
	// Claim inserts a pending row for the event id. It reports false when a
	// row already exists. Must be called inside the unit of work that applies
	// the event so a rollback releases the claim.
	Claim(ctx context.Context, db *gorm.DB, event *ProcessedEvent) (bool, error)
	Complete(ctx context.Context, db *gorm.DB, id snowflake.ID, targetPaymentID *snowflake.ID, applied string, outcome string) error
	FindByProcessorEventID(ctx context.Context, db *gorm.DB, processorEventID string) (*ProcessedEvent, error)
}
