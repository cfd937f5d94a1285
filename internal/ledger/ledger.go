package ledger

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lectern-edu/lectern-payments/internal/repo"
	dbpkg "github.com/lectern-edu/lectern-payments/pkg/db"
	"github.com/lectern-edu/lectern-payments/pkg/db/models"
	"github.com/lectern-edu/lectern-payments/pkg/enums"
)

// ErrAlreadyProcessed is returned by Record when the event id is already in the ledger.
var ErrAlreadyProcessed = errors.New("event already processed")

// Entry is one processed gateway event.
type Entry struct {
	EventID   string
	EventType string
	PaymentID *uuid.UUID
	Outcome   enums.WebhookEventOutcome
}

// Ledger records processed webhook events. The event id is the primary key,
// so of two concurrent inserts exactly one commits.
type Ledger struct {
	base repo.Base
	now  func() time.Time
}

// New returns a ledger bound to the provided database.
func New(db *gorm.DB) *Ledger {
	return &Ledger{base: repo.NewBase(db), now: time.Now}
}

// Exists is a read-only fast path. Record inside the transition transaction is authoritative.
func (l *Ledger) Exists(ctx context.Context, eventID string) (bool, error) {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return false, nil
	}
	var count int64
	if err := l.base.DB(ctx).
		Model(&models.ProcessedEvent{}).
		Where("event_id = ?", eventID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Record inserts the entry through tx.
func (l *Ledger) Record(ctx context.Context, tx *gorm.DB, entry Entry) error {
	entry.EventID = strings.TrimSpace(entry.EventID)
	if entry.EventID == "" {
		return errors.New("event id is required")
	}
	if !entry.Outcome.IsValid() {
		return errors.New("invalid ledger outcome")
	}
	row := models.ProcessedEvent{
		EventID:   entry.EventID,
		EventType: entry.EventType,
		PaymentID: entry.PaymentID,
		Outcome:   entry.Outcome,
		AppliedAt: l.now().UTC(),
	}
	if err := l.base.Conn(ctx, tx).Create(&row).Error; err != nil {
		if dbpkg.IsUniqueViolation(err, "") {
			return ErrAlreadyProcessed
		}
		return err
	}
	return nil
}

// Resolve updates the outcome and payment of an entry recorded earlier in the same transaction.
func (l *Ledger) Resolve(ctx context.Context, tx *gorm.DB, eventID string, outcome enums.WebhookEventOutcome, paymentID *uuid.UUID) error {
	if !outcome.IsValid() {
		return errors.New("invalid ledger outcome")
	}
	updates := map[string]any{"outcome": outcome}
	if paymentID != nil {
		updates["payment_id"] = *paymentID
	}
	return l.base.Conn(ctx, tx).
		Model(&models.ProcessedEvent{}).
		Where("event_id = ?", eventID).
		Updates(updates).Error
}

// PruneBefore deletes entries applied before cutoff and reports how many were removed.
func (l *Ledger) PruneBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	result := l.base.Conn(ctx, tx).
		Where("applied_at < ?", cutoff.UTC()).
		Delete(&models.ProcessedEvent{})
	return result.RowsAffected, result.Error
}
