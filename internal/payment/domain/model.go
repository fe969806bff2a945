package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Payment is the aggregate whose lifecycle is reconciled against processor webhooks.
type Payment struct {
	ID                snowflake.ID `json:"id" gorm:"primaryKey"`
	ProcessorIntentID string       `json:"processor_intent_id" gorm:"type:text;not null;uniqueIndex"`
	State             State        `json:"state" gorm:"type:text;not null"`
	Amount            int64        `json:"amount" gorm:"not null"`
	Currency          string       `json:"currency" gorm:"type:text;not null"`
	Version           int64        `json:"version" gorm:"not null"`
	LastTransitionAt  *time.Time   `json:"last_transition_at"`
	FailureReason     *string      `json:"failure_reason"`
	CreatedAt         time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt         time.Time    `json:"updated_at" gorm:"not null"`
}

func (Payment) TableName() string { return "payments" }

// Ledger outcomes.
const (
	OutcomePending  = "pending"
	OutcomeApplied  = "applied"
	OutcomeRejected = "rejected"
	OutcomeOrphaned = "orphaned"
)

// ProcessedEvent is the dedup row for a processor event id. A committed row
// means the event's side effects (or its rejection) are durable.
type ProcessedEvent struct {
	ID                snowflake.ID   `json:"id" gorm:"primaryKey;autoIncrement:false"`
	ProcessorEventID  string         `json:"processor_event_id" gorm:"type:varchar(255);not null;uniqueIndex"`
	EventType         string         `json:"event_type" gorm:"type:text;not null"`
	ProcessorIntentID string         `json:"processor_intent_id" gorm:"type:text;not null"`
	TargetPaymentID   *snowflake.ID  `json:"target_payment_id" gorm:"index"`
	AppliedTransition string         `json:"applied_transition" gorm:"type:text;not null"`
	Outcome           string         `json:"outcome" gorm:"type:text;not null"`
	OccurredAt        time.Time      `json:"occurred_at" gorm:"not null"`
	ReceivedAt        time.Time      `json:"received_at" gorm:"not null"`
	Payload           datatypes.JSON `json:"payload" gorm:"type:jsonb"`
}

func (ProcessedEvent) TableName() string { return "processed_webhook_events" }
