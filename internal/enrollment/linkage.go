package enrollment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lectern-edu/lectern-payments/internal/payments"
	"github.com/lectern-edu/lectern-payments/pkg/enums"
	"github.com/lectern-edu/lectern-payments/pkg/logger"
	"github.com/lectern-edu/lectern-payments/pkg/outbox"
	"github.com/lectern-edu/lectern-payments/pkg/outbox/payloads"
)

type emitter interface {
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// OutboxLinkage asks the enrollment service to confirm or release a seat by
// queuing outbox events in the caller's transaction. At most one event of each
// kind is queued per payment.
type OutboxLinkage struct {
	outbox emitter
	logg   *logger.Logger
	now    func() time.Time
}

func NewOutboxLinkage(outbox emitter, logg *logger.Logger) (*OutboxLinkage, error) {
	if outbox == nil {
		return nil, errors.New("outbox emitter required")
	}
	return &OutboxLinkage{outbox: outbox, logg: logg, now: time.Now}, nil
}

func (l *OutboxLinkage) Confirm(ctx context.Context, tx *gorm.DB, link payments.LinkRequest) error {
	return l.request(ctx, tx, enums.EventEnrollmentConfirmRequested, link)
}

func (l *OutboxLinkage) Cancel(ctx context.Context, tx *gorm.DB, link payments.LinkRequest) error {
	return l.request(ctx, tx, enums.EventEnrollmentCancelRequested, link)
}

func (l *OutboxLinkage) request(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, link payments.LinkRequest) error {
	if link.PaymentID == uuid.Nil || link.ResourceID == uuid.Nil || link.OwnerID == uuid.Nil {
		return errors.New("link requires payment, resource and owner")
	}
	requestedAt := l.now().UTC()
	err := l.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregatePayment,
		AggregateID:   link.PaymentID,
		OccurredAt:    requestedAt,
		Data: payloads.EnrollmentLinkRequestedEvent{
			PaymentID:   link.PaymentID,
			ResourceID:  link.ResourceID,
			OwnerID:     link.OwnerID,
			Reason:      link.Reason,
			RequestedAt: requestedAt,
		},
	})
	if err != nil {
		return err
	}
	if l.logg != nil {
		l.logg.Info(l.logg.WithFields(ctx, map[string]any{
			"payment_id":  link.PaymentID.String(),
			"resource_id": link.ResourceID.String(),
			"event_type":  eventType,
		}), "enrollment linkage requested")
	}
	return nil
}
