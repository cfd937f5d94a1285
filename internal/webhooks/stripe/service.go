package stripewebhook

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/lectern-edu/lectern-payments/internal/gateway"
	"github.com/lectern-edu/lectern-payments/internal/ledger"
	"github.com/lectern-edu/lectern-payments/internal/payments"
	"github.com/lectern-edu/lectern-payments/pkg/enums"
	pkgerrors "github.com/lectern-edu/lectern-payments/pkg/errors"
	"github.com/lectern-edu/lectern-payments/pkg/logger"
	"github.com/lectern-edu/lectern-payments/pkg/metrics"
)

const outcomeRejected = "rejected"

var eventTargets = map[string]enums.PaymentStatus{
	string(stripe.EventTypePaymentIntentSucceeded):     enums.PaymentStatusSucceeded,
	string(stripe.EventTypePaymentIntentPaymentFailed): enums.PaymentStatusFailed,
	string(stripe.EventTypePaymentIntentProcessing):    enums.PaymentStatusProcessing,
	"intent.succeeded":                                 enums.PaymentStatusSucceeded,
	"intent.failed":                                    enums.PaymentStatusFailed,
	"intent.processing":                                enums.PaymentStatusProcessing,
}

// Classify maps an event type to the payment status it implies.
func Classify(eventType string) (enums.PaymentStatus, bool) {
	status, ok := eventTargets[strings.TrimSpace(eventType)]
	return status, ok
}

type webhookGateway interface {
	VerifySignature(payload []byte, header string) error
	FetchIntent(ctx context.Context, intentID string) (*gateway.Intent, error)
}

type eventLedger interface {
	Exists(ctx context.Context, eventID string) (bool, error)
	Record(ctx context.Context, tx *gorm.DB, entry ledger.Entry) error
	Resolve(ctx context.Context, tx *gorm.DB, eventID string, outcome enums.WebhookEventOutcome, paymentID *uuid.UUID) error
}

type transitioner interface {
	Apply(ctx context.Context, tx *gorm.DB, lookup payments.Lookup, req payments.TransitionRequest) (*payments.TransitionResult, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Ack is the result of a handled delivery. Every Ack maps to a 2xx response.
type Ack struct {
	EventID   string
	Outcome   enums.WebhookEventOutcome
	PaymentID *uuid.UUID
	Status    enums.PaymentStatus
}

type ServiceParams struct {
	Gateway           webhookGateway
	Ledger            eventLedger
	Transitioner      transitioner
	TransactionRunner txRunner
	Extractors        []IntentExtractor
	Metrics           *metrics.WebhookMetrics
	Logger            *logger.Logger
}

// Service verifies, deduplicates and applies gateway webhook events.
type Service struct {
	gateway      webhookGateway
	ledger       eventLedger
	transitioner transitioner
	txRunner     txRunner
	extractors   []IntentExtractor
	metrics      *metrics.WebhookMetrics
	logg         *logger.Logger
	now          func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment gateway required")
	}
	if params.Ledger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "event ledger required")
	}
	if params.Transitioner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment transitioner required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	extractors := params.Extractors
	if len(extractors) == 0 {
		extractors = DefaultExtractors(params.Gateway)
	}
	return &Service{
		gateway:      params.Gateway,
		ledger:       params.Ledger,
		transitioner: params.Transitioner,
		txRunner:     params.TransactionRunner,
		extractors:   extractors,
		metrics:      params.Metrics,
		logg:         params.Logger,
		now:          time.Now,
	}, nil
}

// errDuplicate aborts the transition transaction when another delivery won the ledger insert.
var errDuplicate = errors.New("duplicate delivery")

// Handle processes one delivery. Only a bad signature or a transient failure
// returns an error; everything else is acknowledged.
func (s *Service) Handle(ctx context.Context, payload []byte, signatureHeader, eventID string) (*Ack, error) {
	start := s.now()

	if err := s.gateway.VerifySignature(payload, signatureHeader); err != nil {
		s.metrics.Observe(outcomeRejected, s.now().Sub(start))
		if !pkgerrors.IsCode(err, pkgerrors.CodeInvalidSignature) {
			err = pkgerrors.Wrap(pkgerrors.CodeInvalidSignature, err, "signature verification failed")
		}
		s.warn(ctx, "webhook signature rejected", nil)
		return nil, err
	}

	ev, parsed := decodeEvent(payload)
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		eventID = strings.TrimSpace(ev.ID)
	}
	if s.logg != nil && eventID != "" {
		ctx = s.logg.WithEventID(ctx, eventID)
	}

	ack, err := s.handle(ctx, ev, parsed, eventID)
	if err != nil {
		s.metrics.Observe("error", s.now().Sub(start))
		if s.logg != nil {
			s.logg.Error(s.logg.WithField(ctx, "event_type", ev.Type), "webhook handling failed", err)
		}
		return nil, err
	}
	s.metrics.Observe(string(ack.Outcome), s.now().Sub(start))
	if s.logg != nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"event_type": ev.Type,
			"outcome":    ack.Outcome,
		}), "webhook handled")
	}
	return ack, nil
}

func (s *Service) handle(ctx context.Context, ev *Event, parsed bool, eventID string) (*Ack, error) {
	if eventID != "" {
		exists, err := s.ledger.Exists(ctx, eventID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check event ledger")
		}
		if exists {
			return &Ack{EventID: eventID, Outcome: enums.WebhookOutcomeDuplicate}, nil
		}
	} else {
		s.warn(ctx, "webhook event has no id, processing without ledger entry", nil)
	}

	if !parsed {
		s.warn(ctx, "webhook payload is not a JSON object", nil)
		return s.recordOnly(ctx, eventID, ev.Type, enums.WebhookOutcomeUnparseable)
	}

	target, ok := Classify(ev.Type)
	if !ok {
		return s.recordOnly(ctx, eventID, ev.Type, enums.WebhookOutcomeIgnored)
	}

	intent, err := s.extract(ctx, ev)
	if err != nil {
		return nil, err
	}
	if intent == nil {
		s.warn(ctx, "payment intent could not be extracted from webhook", map[string]any{"event_type": ev.Type})
		return s.recordOnly(ctx, eventID, ev.Type, enums.WebhookOutcomeUnparseable)
	}

	return s.apply(ctx, eventID, ev.Type, target, intent)
}

// extract runs the strategy chain outside any transaction. First hit wins.
func (s *Service) extract(ctx context.Context, ev *Event) (*gateway.Intent, error) {
	for _, extractor := range s.extractors {
		intent, err := extractor.Extract(ctx, ev)
		if err != nil {
			return nil, err
		}
		if intent != nil {
			if s.logg != nil {
				s.logg.Debug(s.logg.WithFields(ctx, map[string]any{
					"extractor": extractor.Name(),
					"intent_id": intent.ID,
				}), "payment intent extracted")
			}
			return intent, nil
		}
	}
	return nil, nil
}

func (s *Service) apply(ctx context.Context, eventID, eventType string, target enums.PaymentStatus, intent *gateway.Intent) (*Ack, error) {
	ack := &Ack{EventID: eventID, Outcome: enums.WebhookOutcomeApplied}

	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		if eventID != "" {
			if err := s.ledger.Record(ctx, tx, ledger.Entry{EventID: eventID, EventType: eventType, Outcome: enums.WebhookOutcomeApplied}); err != nil {
				if errors.Is(err, ledger.ErrAlreadyProcessed) {
					return errDuplicate
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record webhook event")
			}
		}

		result, err := s.transitioner.Apply(ctx, tx, payments.ByExternalIntentID(intent.ID), payments.TransitionRequest{
			Target:        target,
			ChargeID:      intent.LatestChargeID,
			FailureReason: intent.FailureReason(),
		})
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.warn(ctx, "webhook intent matches no payment", map[string]any{"intent_id": intent.ID})
			ack.Outcome = enums.WebhookOutcomeUnmatched
			return s.resolve(ctx, tx, eventID, ack.Outcome, nil)
		}
		if err != nil {
			if pkgerrors.As(err) == nil {
				err = pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply payment transition")
			}
			return err
		}

		paymentID := result.Payment.ID
		ack.PaymentID = &paymentID
		ack.Status = result.Payment.Status
		if !result.Applied {
			ack.Outcome = enums.WebhookOutcomeIgnored
		}
		return s.resolve(ctx, tx, eventID, ack.Outcome, &paymentID)
	})
	if errors.Is(err, errDuplicate) {
		return &Ack{EventID: eventID, Outcome: enums.WebhookOutcomeDuplicate}, nil
	}
	if err != nil {
		return nil, err
	}
	return ack, nil
}

// recordOnly writes a ledger entry for an event that causes no state change.
func (s *Service) recordOnly(ctx context.Context, eventID, eventType string, outcome enums.WebhookEventOutcome) (*Ack, error) {
	ack := &Ack{EventID: eventID, Outcome: outcome}
	if eventID == "" {
		return ack, nil
	}
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		return s.ledger.Record(ctx, tx, ledger.Entry{EventID: eventID, EventType: eventType, Outcome: outcome})
	})
	if errors.Is(err, ledger.ErrAlreadyProcessed) {
		return &Ack{EventID: eventID, Outcome: enums.WebhookOutcomeDuplicate}, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record webhook event")
	}
	return ack, nil
}

func (s *Service) resolve(ctx context.Context, tx *gorm.DB, eventID string, outcome enums.WebhookEventOutcome, paymentID *uuid.UUID) error {
	if eventID == "" {
		return nil
	}
	if outcome == enums.WebhookOutcomeApplied && paymentID == nil {
		return nil
	}
	if err := s.ledger.Resolve(ctx, tx, eventID, outcome, paymentID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve webhook event")
	}
	return nil
}

func (s *Service) warn(ctx context.Context, msg string, fields map[string]any) {
	if s.logg == nil {
		return
	}
	if len(fields) > 0 {
		ctx = s.logg.WithFields(ctx, fields)
	}
	s.logg.Warn(ctx, msg)
}
