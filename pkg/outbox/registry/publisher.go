package registry

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/lectern-edu/lectern-payments/pkg/config"
	"github.com/lectern-edu/lectern-payments/pkg/db/models"
	"github.com/lectern-edu/lectern-payments/pkg/enums"
	"github.com/lectern-edu/lectern-payments/pkg/outbox"
	"github.com/lectern-edu/lectern-payments/pkg/outbox/payloads"
)

// Route binds an event type to its aggregate, destination topic and payload type.
type Route struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
	newPayload    func() any
}

// ResolvedEvent is a validated outbox row ready to publish.
type ResolvedEvent struct {
	Route    Route
	Envelope outbox.Envelope
	Payload  any
}

// PermanentError marks a row that can never be published and belongs in the DLQ.
type PermanentError struct {
	cause error
}

func (e *PermanentError) Error() string { return "permanent: " + e.cause.Error() }

func (e *PermanentError) Unwrap() error { return e.cause }

// Permanent wraps err so IsPermanent reports true for it.
func Permanent(err error) error {
	if err == nil {
		err = errors.New("unspecified failure")
	}
	return &PermanentError{cause: err}
}

func IsPermanent(err error) bool {
	var perm *PermanentError
	return errors.As(err, &perm)
}

// EventRegistry resolves outbox rows against the configured routes.
type EventRegistry struct {
	routes map[enums.OutboxEventType]Route
}

// NewEventRegistry routes settlement events to the payments topic and
// enrollment link requests to the enrollment topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	payments := strings.TrimSpace(cfg.PaymentsTopic)
	enrollment := strings.TrimSpace(cfg.EnrollmentTopic)
	switch {
	case payments == "":
		return nil, errors.New("payments topic is required")
	case enrollment == "":
		return nil, errors.New("enrollment topic is required")
	}

	settled := func() any { return &payloads.PaymentSettledEvent{} }
	link := func() any { return &payloads.EnrollmentLinkRequestedEvent{} }

	reg := &EventRegistry{routes: map[enums.OutboxEventType]Route{}}
	for eventType, route := range map[enums.OutboxEventType]Route{
		enums.EventPaymentSucceeded:           {Topic: payments, newPayload: settled},
		enums.EventPaymentFailed:              {Topic: payments, newPayload: settled},
		enums.EventEnrollmentConfirmRequested: {Topic: enrollment, newPayload: link},
		enums.EventEnrollmentCancelRequested:  {Topic: enrollment, newPayload: link},
	} {
		route.EventType = eventType
		route.AggregateType = enums.AggregatePayment
		reg.routes[eventType] = route
	}
	return reg, nil
}

// Resolve validates the row and decodes its typed payload. Every failure is
// permanent: retrying cannot fix a malformed row.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	route, ok := r.routes[event.EventType]
	switch {
	case !ok:
		return nil, Permanent(fmt.Errorf("no route for event type %q", event.EventType))
	case route.AggregateType != event.AggregateType:
		return nil, Permanent(fmt.Errorf("%s expects aggregate %s, row has %s", event.EventType, route.AggregateType, event.AggregateType))
	case event.AggregateID == uuid.Nil:
		return nil, Permanent(fmt.Errorf("%s row %s has no aggregate id", event.EventType, event.ID))
	}

	env, err := outbox.DecodeEnvelope(event.Payload)
	if err != nil {
		return nil, Permanent(err)
	}
	payload := route.newPayload()
	if err := env.DecodeData(payload); err != nil {
		return nil, Permanent(fmt.Errorf("decode %s data: %w", event.EventType, err))
	}
	return &ResolvedEvent{Route: route, Envelope: env, Payload: payload}, nil
}
