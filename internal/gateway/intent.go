package gateway

import (
	"strings"

	"github.com/stripe/stripe-go/v84"

	"github.com/lectern-edu/lectern-payments/pkg/enums"
)

// IntentIDPrefix is the prefix the gateway uses for payment intent ids.
const IntentIDPrefix = "pi_"

// Intent is the gateway's view of a single payment attempt.
type Intent struct {
	ID                 string
	Status             string
	AmountMinor        int64
	Currency           string
	LatestChargeID     string
	LastErrorMessage   string
	CancellationReason string
	Metadata           map[string]string
}

// FailureReason returns the best available explanation for a failed intent.
func (i *Intent) FailureReason() string {
	if i == nil {
		return DefaultFailureReason
	}
	if msg := strings.TrimSpace(i.LastErrorMessage); msg != "" {
		return msg
	}
	if reason := strings.TrimSpace(i.CancellationReason); reason != "" {
		return reason
	}
	return DefaultFailureReason
}

// DefaultFailureReason is recorded when the gateway gives no explanation.
const DefaultFailureReason = "payment failed"

// ImpliedStatus maps the gateway's intent status onto a local payment status.
// ok is false for statuses that carry no local meaning (e.g. requires_action).
func (i *Intent) ImpliedStatus() (enums.PaymentStatus, bool) {
	if i == nil {
		return "", false
	}
	switch stripe.PaymentIntentStatus(i.Status) {
	case stripe.PaymentIntentStatusSucceeded:
		return enums.PaymentStatusSucceeded, true
	case stripe.PaymentIntentStatusProcessing:
		return enums.PaymentStatusProcessing, true
	case stripe.PaymentIntentStatusCanceled:
		return enums.PaymentStatusFailed, true
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		if i.LastErrorMessage != "" {
			return enums.PaymentStatusFailed, true
		}
	}
	return "", false
}

// IntentRequest describes a new payment intent.
type IntentRequest struct {
	AmountMinor    int64
	Currency       enums.Currency
	Description    string
	Metadata       map[string]string
	IdempotencyKey string
}

// CreatedIntent is what the gateway hands back at creation time.
// ClientSecret is a one-time value and must never be persisted.
type CreatedIntent struct {
	IntentID     string
	ClientSecret string
}

// IntentFromStripe converts a (possibly partial) Stripe payment intent.
func IntentFromStripe(pi *stripe.PaymentIntent) *Intent {
	if pi == nil {
		return nil
	}
	intent := &Intent{
		ID:                 pi.ID,
		Status:             string(pi.Status),
		AmountMinor:        pi.Amount,
		Currency:           strings.ToUpper(string(pi.Currency)),
		CancellationReason: string(pi.CancellationReason),
		Metadata:           pi.Metadata,
	}
	if pi.LatestCharge != nil {
		intent.LatestChargeID = pi.LatestCharge.ID
	}
	if pi.LastPaymentError != nil {
		intent.LastErrorMessage = pi.LastPaymentError.Msg
	}
	return intent
}

// IsIntentID reports whether id looks like a gateway intent id.
func IsIntentID(id string) bool {
	return len(id) > len(IntentIDPrefix) && strings.HasPrefix(id, IntentIDPrefix)
}
