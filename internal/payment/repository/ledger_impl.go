package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payflow/internal/payment/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ledger struct{}

func ProvideLedger() domain.Ledger {
	return &ledger{}
}

// claimOnConflict renders per dialect: ON CONFLICT ... DO NOTHING on
// postgres and sqlite, ON DUPLICATE KEY UPDATE id=id on mysql. Both leave
// RowsAffected at zero for an existing processor_event_id.
var claimOnConflict = clause.OnConflict{
	Columns:   []clause.Column{{Name: "processor_event_id"}},
	DoNothing: true,
}

// Claim relies on the unique processor_event_id index; the conflicting
// insert is a no-op and RowsAffected tells the callers apart.
func (l *ledger) Claim(ctx context.Context, db *gorm.DB, event *domain.ProcessedEvent) (bool, error) {
	res := db.WithContext(ctx).Clauses(claimOnConflict).Create(event)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (l *ledger) Complete(ctx context.Context, db *gorm.DB, id snowflake.ID, targetPaymentID *snowflake.ID, applied string, outcome string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE processed_webhook_events
		 SET target_payment_id = ?, applied_transition = ?, outcome = ?
		 WHERE id = ?`,
		targetPaymentID,
		applied,
		outcome,
		id,
	).Error
}

func (l *ledger) FindByProcessorEventID(ctx context.Context, db *gorm.DB, processorEventID string) (*domain.ProcessedEvent, error) {
	var item domain.ProcessedEvent
	err := db.WithContext(ctx).Raw(
		`SELECT id, processor_event_id, event_type, processor_intent_id,
			target_payment_id, applied_transition, outcome,
			occurred_at, received_at, payload
		 FROM processed_webhook_events
		 WHERE processor_event_id = ?
		 LIMIT 1`,
		processorEventID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}
