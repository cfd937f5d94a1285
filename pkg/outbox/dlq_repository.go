package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lectern-edu/lectern-payments/pkg/db/models"
	"github.com/lectern-edu/lectern-payments/pkg/enums"
)

// DLQRepository stores outbox rows the publisher gave up on.
type DLQRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewDLQRepository(db *gorm.DB) *DLQRepository {
	return &DLQRepository{db: db, now: time.Now}
}

// Park snapshots event into outbox_dlq inside tx. The stored message is
// clipped to the same length as outbox_events.last_error.
func (r *DLQRepository) Park(tx *gorm.DB, event models.OutboxEvent, reason enums.DeadLetterReason, cause error) error {
	if tx == nil {
		return errTxRequired
	}
	if !reason.IsValid() {
		return errors.New("unknown dlq reason " + string(reason))
	}
	entry := models.OutboxDLQ{
		ID:            uuid.New(),
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		Reason:        reason,
		ErrorMessage:  clipError(cause),
		AttemptCount:  event.AttemptCount,
		FailedAt:      r.now().UTC(),
	}
	return tx.Create(&entry).Error
}

// ForAggregate lists parked rows for one aggregate, newest first.
func (r *DLQRepository) ForAggregate(ctx context.Context, aggregateID uuid.UUID) ([]models.OutboxDLQ, error) {
	var rows []models.OutboxDLQ
	err := r.db.WithContext(ctx).
		Where("aggregate_id = ?", aggregateID).
		Order("failed_at DESC").
		Find(&rows).Error
	return rows, err
}
