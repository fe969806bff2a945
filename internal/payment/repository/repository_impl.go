package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payflow/internal/payment/domain"
	"github.com/smallbiznis/payflow/pkg/db"
	"gorm.io/gorm"
)

const paymentColumns = `id, processor_intent_id, state, amount, currency, version,
	last_transition_at, failure_reason, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// ProvideClient exposes the same store through the narrower client interface.
func ProvideClient() domain.ClientRepository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, payment *domain.Payment) error {
	err := db.WithContext(ctx).Exec(
		`INSERT INTO payments (
			id, processor_intent_id, state, amount, currency, version,
			last_transition_at, failure_reason, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		payment.ID,
		payment.ProcessorIntentID,
		payment.State,
		payment.Amount,
		payment.Currency,
		payment.Version,
		payment.LastTransitionAt,
		payment.FailureReason,
		payment.CreatedAt,
		payment.UpdatedAt,
	).Error
	if isDuplicate(err) {
		return domain.ErrDuplicateIntent
	}
	return err
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Payment, error) {
	var item domain.Payment
	err := db.WithContext(ctx).Raw(
		`SELECT `+paymentColumns+`
		 FROM payments
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindByIntentID(ctx context.Context, db *gorm.DB, intentID string) (*domain.Payment, error) {
	var item domain.Payment
	err := db.WithContext(ctx).Raw(
		`SELECT `+paymentColumns+`
		 FROM payments
		 WHERE processor_intent_id = ?
		 LIMIT 1`,
		intentID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

// UpdateState writes the next state only if the row still carries the
// expected version. A miss is reported as ErrConcurrentModification.
func (r *repo) UpdateState(ctx context.Context, db *gorm.DB, update domain.StateUpdate) error {
	res := db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET state = ?,
			version = version + 1,
			failure_reason = COALESCE(?, failure_reason),
			last_transition_at = ?,
			updated_at = ?
		 WHERE id = ? AND version = ?`,
		update.Next,
		update.FailureReason,
		update.At,
		update.At,
		update.ID,
		update.ExpectedVersion,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrConcurrentModification
	}
	return nil
}

// UpdatePendingState is the client-facing write. Terminal rows never match,
// whatever version the caller holds, and the target must be non-terminal.
func (r *repo) UpdatePendingState(ctx context.Context, db *gorm.DB, id snowflake.ID, expectedVersion int64, next domain.PendingState, at time.Time) error {
	if !next.Valid() {
		return domain.ErrInvalidTransition
	}
	res := db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET state = ?,
			version = version + 1,
			last_transition_at = ?,
			updated_at = ?
		 WHERE id = ? AND version = ?
		   AND state NOT IN (?, ?, ?)
		   AND ? IN (?, ?)`,
		next.State(),
		at,
		at,
		id,
		expectedVersion,
		domain.StateSucceeded,
		domain.StateFailed,
		domain.StateCanceled,
		next.State(),
		domain.StateRequiresAction,
		domain.StateProcessing,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrConcurrentModification
	}
	return nil
}

func isDuplicate(err error) bool {
	return db.IsDuplicateKeyErr(err)
}
