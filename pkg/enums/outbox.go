package enums

import "slices"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregatePayment    OutboxAggregateType = "payment"
	AggregateEnrollment OutboxAggregateType = "enrollment"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregatePayment,
	AggregateEnrollment,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	return slices.Contains(validAggregateTypes, a)
}


// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventPaymentSucceeded           OutboxEventType = "payment_succeeded"
	EventPaymentFailed              OutboxEventType = "payment_failed"
	EventEnrollmentConfirmRequested OutboxEventType = "enrollment_confirm_requested"
	EventEnrollmentCancelRequested  OutboxEventType = "enrollment_cancel_requested"
)

var validOutboxEventTypes = []OutboxEventType{
	EventPaymentSucceeded,
	EventPaymentFailed,
	EventEnrollmentConfirmRequested,
	EventEnrollmentCancelRequested,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	return slices.Contains(validOutboxEventTypes, e)
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return parse(validOutboxEventTypes, value, "event type")
}

// DeadLetterReason explains why a row was moved to outbox_dlq.
type DeadLetterReason string

const (
	DeadLetterMaxAttempts DeadLetterReason = "max_attempts"
	DeadLetterPermanent   DeadLetterReason = "non_retryable"
)

func (r DeadLetterReason) IsValid() bool {
	return r == DeadLetterMaxAttempts || r == DeadLetterPermanent
}
