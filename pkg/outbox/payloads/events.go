package payloads

import (
	"time"

	"github.com/google/uuid"
)

// EnrollmentLinkRequestedEvent asks the enrollment service to confirm or
// cancel the resource a payment was made for.
type EnrollmentLinkRequestedEvent struct {
	PaymentID   uuid.UUID `json:"payment_id"`
	ResourceID  uuid.UUID `json:"resource_id"`
	OwnerID     uuid.UUID `json:"owner_id"`
	Reason      string    `json:"reason,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

// PaymentSettledEvent reports that a payment reached a terminal status.
type PaymentSettledEvent struct {
	PaymentID        uuid.UUID  `json:"payment_id"`
	OwnerID          uuid.UUID  `json:"owner_id"`
	LinkedResourceID *uuid.UUID `json:"linked_resource_id,omitempty"`
	AmountCents      int64      `json:"amount_cents"`
	Currency         string     `json:"currency"`
	Status           string     `json:"status"`
	ExternalIntentID string     `json:"external_intent_id"`
	ExternalChargeID *string    `json:"external_charge_id,omitempty"`
	FailureReason    *string    `json:"failure_reason,omitempty"`
	SettledAt        time.Time  `json:"settled_at"`
}
