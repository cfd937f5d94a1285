package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/lectern-edu/lectern-payments/pkg/enums"
)

// ProcessedEvent is an idempotency ledger row for a gateway webhook event.
// EventID is the primary key so concurrent inserts of the same id collide.
type ProcessedEvent struct {
	EventID   string                    `gorm:"column:event_id;primaryKey"`
	EventType string                    `gorm:"column:event_type;not null;default:''"`
	PaymentID *uuid.UUID                `gorm:"column:payment_id;type:uuid"`
	Outcome   enums.WebhookEventOutcome `gorm:"column:outcome;type:webhook_event_outcome;not null"`
	AppliedAt time.Time                 `gorm:"column:applied_at;not null"`
}

func (ProcessedEvent) TableName() string { return "processed_events" }
