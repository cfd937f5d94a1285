package enums

import (
	"slices"
	"strings"
)

// PaymentMethod describes how a payment is collected. Card payments through
// the hosted gateway are the only method today.
type PaymentMethod string

const PaymentMethodCardGateway PaymentMethod = "card_gateway"

// PaymentStatus tracks the lifecycle of a payment.
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusSucceeded  PaymentStatus = "succeeded"
	PaymentStatusFailed     PaymentStatus = "failed"
)

var paymentStatuses = []PaymentStatus{
	PaymentStatusPending,
	PaymentStatusProcessing,
	PaymentStatusSucceeded,
	PaymentStatusFailed,
}

func (p PaymentStatus) String() string { return string(p) }

func (p PaymentStatus) IsValid() bool { return slices.Contains(paymentStatuses, p) }

// IsTerminal reports whether no further transition can leave this status.
func (p PaymentStatus) IsTerminal() bool {
	return p == PaymentStatusSucceeded || p == PaymentStatusFailed
}

// ParsePaymentStatus is case-insensitive and ignores surrounding space.
func ParsePaymentStatus(value string) (PaymentStatus, error) {
	return parse(paymentStatuses, strings.ToLower(strings.TrimSpace(value)), "payment status")
}
