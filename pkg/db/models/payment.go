package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/lectern-edu/lectern-payments/pkg/enums"
)

// Payment is one attempt to collect money for an enrollment or purchase.
// It maps 1:1 to a gateway payment intent and is never deleted.
type Payment struct {
	ID               uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	OwnerID          uuid.UUID           `gorm:"column:owner_id;type:uuid;not null"`
	LinkedResourceID *uuid.UUID          `gorm:"column:linked_resource_id;type:uuid"`
	AmountCents      int64               `gorm:"column:amount_cents;not null"`
	Currency         enums.Currency      `gorm:"column:currency;type:char(3);not null"`
	Method           enums.PaymentMethod `gorm:"column:method;type:payment_method;not null;default:'card_gateway'"`
	Status           enums.PaymentStatus `gorm:"column:status;type:payment_status;not null;default:'pending'"`
	Description      string              `gorm:"column:description;not null;default:''"`
	ExternalIntentID string              `gorm:"column:external_intent_id;not null;uniqueIndex:ux_payments_external_intent_id"`
	ExternalChargeID *string             `gorm:"column:external_charge_id"`
	FailureReason    *string             `gorm:"column:failure_reason"`
	Version          int64               `gorm:"column:version;not null;default:0"`
	CreatedAt        time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (Payment) TableName() string { return "payments" }
