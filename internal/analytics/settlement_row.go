package analytics

import (
	"time"

	"cloud.google.com/go/bigquery"

	"github.com/lectern-edu/lectern-payments/pkg/outbox/payloads"
)

// SettlementRow is one terminal payment outcome in the analytics table.
type SettlementRow struct {
	EventID          string
	EventType        string
	PaymentID        string
	OwnerID          string
	LinkedResourceID bigquery.NullString
	AmountCents      int64
	Currency         string
	Status           string
	ExternalIntentID string
	ExternalChargeID bigquery.NullString
	FailureReason    bigquery.NullString
	SettledAt        time.Time
	IngestedAt       time.Time
}

// NewSettlementRow flattens a settled-payment event into a row.
func NewSettlementRow(eventID, eventType string, evt payloads.PaymentSettledEvent) SettlementRow {
	row := SettlementRow{
		EventID:          eventID,
		EventType:        eventType,
		PaymentID:        evt.PaymentID.String(),
		OwnerID:          evt.OwnerID.String(),
		AmountCents:      evt.AmountCents,
		Currency:         evt.Currency,
		Status:           evt.Status,
		ExternalIntentID: evt.ExternalIntentID,
		ExternalChargeID: nullString(evt.ExternalChargeID),
		FailureReason:    nullString(evt.FailureReason),
		SettledAt:        evt.SettledAt.UTC(),
		IngestedAt:       time.Now().UTC(),
	}
	if evt.LinkedResourceID != nil {
		row.LinkedResourceID = bigquery.NullString{StringVal: evt.LinkedResourceID.String(), Valid: true}
	}
	return row
}

// Save implements bigquery.ValueSaver. The event id doubles as the insert id
// so redelivered outbox rows are deduplicated by the streaming API.
func (r *SettlementRow) Save() (map[string]bigquery.Value, string, error) {
	return map[string]bigquery.Value{
		"event_id":           r.EventID,
		"event_type":         r.EventType,
		"payment_id":         r.PaymentID,
		"owner_id":           r.OwnerID,
		"linked_resource_id": r.LinkedResourceID,
		"amount_cents":       r.AmountCents,
		"currency":           r.Currency,
		"status":             r.Status,
		"external_intent_id": r.ExternalIntentID,
		"external_charge_id": r.ExternalChargeID,
		"failure_reason":     r.FailureReason,
		"settled_at":         r.SettledAt,
		"ingested_at":        r.IngestedAt,
	}, r.EventID, nil
}

func nullString(v *string) bigquery.NullString {
	if v == nil || *v == "" {
		return bigquery.NullString{}
	}
	return bigquery.NullString{StringVal: *v, Valid: true}
}
