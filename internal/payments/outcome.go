package payments

import (
	"github.com/lectern-edu/lectern-payments/internal/gateway"
	"github.com/lectern-edu/lectern-payments/pkg/db/models"
	"github.com/lectern-edu/lectern-payments/pkg/enums"
)

// Outcome is the lifecycle position of a payment. Exactly one of Pending,
// InFlight, Succeeded or Failed; terminal details live only on the terminal variants.
type Outcome interface {
	Status() enums.PaymentStatus
	isOutcome()
}

// Pending means the intent exists but the gateway has not reported progress.
type Pending struct{}

// InFlight means the gateway is processing the payment.
type InFlight struct{}

// Succeeded carries the gateway charge id, which may be empty if the gateway omitted it.
type Succeeded struct {
	ChargeID string
}

// Failed carries a human readable reason.
type Failed struct {
	Reason string
}

func (Pending) Status() enums.PaymentStatus   { return enums.PaymentStatusPending }
func (InFlight) Status() enums.PaymentStatus  { return enums.PaymentStatusProcessing }
func (Succeeded) Status() enums.PaymentStatus { return enums.PaymentStatusSucceeded }
func (Failed) Status() enums.PaymentStatus    { return enums.PaymentStatusFailed }

func (Pending) isOutcome()   {}
func (InFlight) isOutcome()  {}
func (Succeeded) isOutcome() {}
func (Failed) isOutcome()    {}

// OutcomeOf derives the outcome from a stored payment row.
func OutcomeOf(p *models.Payment) Outcome {
	if p == nil {
		return Pending{}
	}
	switch p.Status {
	case enums.PaymentStatusProcessing:
		return InFlight{}
	case enums.PaymentStatusSucceeded:
		return Succeeded{ChargeID: derefString(p.ExternalChargeID)}
	case enums.PaymentStatusFailed:
		reason := derefString(p.FailureReason)
		if reason == "" {
			reason = gateway.DefaultFailureReason
		}
		return Failed{Reason: reason}
	default:
		return Pending{}
	}
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
