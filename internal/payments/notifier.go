package payments

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/lectern-edu/lectern-payments/pkg/db/models"
	"github.com/lectern-edu/lectern-payments/pkg/enums"
	"github.com/lectern-edu/lectern-payments/pkg/outbox"
	"github.com/lectern-edu/lectern-payments/pkg/outbox/payloads"
)

type outboxEmitter interface {
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// OutboxNotifier queues payment_succeeded / payment_failed events for downstream consumers.
type OutboxNotifier struct {
	emitter outboxEmitter
	now     func() time.Time
}

func NewOutboxNotifier(emitter outboxEmitter) *OutboxNotifier {
	return &OutboxNotifier{emitter: emitter, now: time.Now}
}

func (n *OutboxNotifier) PaymentSettled(ctx context.Context, tx *gorm.DB, payment *models.Payment) error {
	if n == nil || n.emitter == nil || payment == nil {
		return nil
	}
	var eventType enums.OutboxEventType
	switch payment.Status {
	case enums.PaymentStatusSucceeded:
		eventType = enums.EventPaymentSucceeded
	case enums.PaymentStatusFailed:
		eventType = enums.EventPaymentFailed
	default:
		return nil
	}

	settledAt := n.now().UTC()
	return n.emitter.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregatePayment,
		AggregateID:   payment.ID,
		OccurredAt:    settledAt,
		Data: payloads.PaymentSettledEvent{
			PaymentID:        payment.ID,
			OwnerID:          payment.OwnerID,
			LinkedResourceID: payment.LinkedResourceID,
			AmountCents:      payment.AmountCents,
			Currency:         payment.Currency.String(),
			Status:           payment.Status.String(),
			ExternalIntentID: payment.ExternalIntentID,
			ExternalChargeID: payment.ExternalChargeID,
			FailureReason:    payment.FailureReason,
			SettledAt:        settledAt,
		},
	})
}
