// Package relay drains committed outbox rows to Pub/Sub. Each batch is
// claimed with FOR UPDATE SKIP LOCKED inside one transaction, so several
// publisher replicas can run side by side without double-sending a row.
package relay

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"

	"github.com/lectern-edu/lectern-payments/pkg/config"
	"github.com/lectern-edu/lectern-payments/pkg/db/models"
	"github.com/lectern-edu/lectern-payments/pkg/enums"
	"github.com/lectern-edu/lectern-payments/pkg/logger"
	"github.com/lectern-edu/lectern-payments/pkg/outbox"
	"github.com/lectern-edu/lectern-payments/pkg/outbox/payloads"
	"github.com/lectern-edu/lectern-payments/pkg/outbox/registry"
	"github.com/lectern-edu/lectern-payments/pkg/pubsub"
)

const (
	maxIdleBackoff    = 10 * time.Second
	jitterWindow      = 250 * time.Millisecond
	settlementTimeout = 5 * time.Second
)

type TxRunner interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

// Publisher delivers one message and returns the broker's message id.
type Publisher interface {
	Ping(context.Context) error
	Publish(ctx context.Context, topic string, data []byte, attrs map[string]string) (string, error)
}

type Store interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type DeadLetters interface {
	Park(tx *gorm.DB, event models.OutboxEvent, reason enums.DeadLetterReason, cause error) error
}

type Resolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

// SettlementSink receives settled payments once they are on the wire. It is
// best effort and never holds back the outbox row.
type SettlementSink interface {
	RecordSettlement(ctx context.Context, eventID, eventType string, evt payloads.PaymentSettledEvent) error
}

type Params struct {
	Logger      *logger.Logger
	DB          TxRunner
	Publisher   Publisher
	Store       Store
	Resolver    Resolver
	DeadLetters DeadLetters
	Settlements SettlementSink
	Config      config.OutboxConfig
}

type Relay struct {
	logg        *logger.Logger
	db          TxRunner
	pub         Publisher
	store       Store
	resolver    Resolver
	dead        DeadLetters
	settlements SettlementSink

	batchSize      int
	maxAttempts    int
	pollInterval   time.Duration
	publishTimeout time.Duration
}

func New(p Params) (*Relay, error) {
	switch {
	case p.Logger == nil:
		return nil, errors.New("relay: logger is required")
	case p.DB == nil:
		return nil, errors.New("relay: database is required")
	case p.Publisher == nil:
		return nil, errors.New("relay: publisher is required")
	case p.Store == nil:
		return nil, errors.New("relay: outbox store is required")
	case p.Resolver == nil:
		return nil, errors.New("relay: event resolver is required")
	case p.DeadLetters == nil:
		return nil, errors.New("relay: dead letter store is required")
	}
	return &Relay{
		logg:           p.Logger,
		db:             p.DB,
		pub:            p.Publisher,
		store:          p.Store,
		resolver:       p.Resolver,
		dead:           p.DeadLetters,
		settlements:    p.Settlements,
		batchSize:      positive(p.Config.BatchSize, 50),
		maxAttempts:    positive(p.Config.MaxAttempts, 10),
		pollInterval:   positive(p.Config.PollInterval, 500*time.Millisecond),
		publishTimeout: positive(p.Config.PublishTimeout, 15*time.Second),
	}, nil
}

func positive[T int | time.Duration](v, fallback T) T {
	if v > 0 {
		return v
	}
	return fallback
}

// Run drains until ctx ends. A full batch is followed by another drain
// straight away; a failing drain backs off exponentially up to maxIdleBackoff.
func (r *Relay) Run(ctx context.Context) error {
	if err := r.db.Ping(ctx); err != nil {
		return fmt.Errorf("relay: database not ready: %w", err)
	}
	if err := r.pub.Ping(ctx); err != nil {
		return fmt.Errorf("relay: pubsub not ready: %w", err)
	}

	wait := r.pollInterval
	for {
		n, err := r.Drain(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		switch {
		case err != nil:
			r.logg.Error(ctx, "outbox drain failed", err)
			wait = min(wait*2, maxIdleBackoff)
		case n >= r.batchSize:
			wait = r.pollInterval
			continue
		default:
			wait = r.pollInterval
		}
		if err := sleep(ctx, wait+rand.N(jitterWindow)); err != nil {
			return err
		}
	}
}

// Drain claims one batch and settles every row in it. It returns the number
// of rows claimed. Only bookkeeping failures abort the batch; a failed
// publish is recorded on its row and the batch moves on.
func (r *Relay) Drain(ctx context.Context) (int, error) {
	var claimed int
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := r.store.FetchUnpublishedForPublish(tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return err
		}
		claimed = len(events)
		for _, ev := range events {
			if err := r.handle(ctx, tx, ev); err != nil {
				return err
			}
		}
		return nil
	})
	return claimed, err
}

func (r *Relay) handle(ctx context.Context, tx *gorm.DB, ev models.OutboxEvent) error {
	resolved, err := r.resolver.Resolve(ev)
	if err != nil {
		return r.deadLetter(r.logg.WithFields(ctx, logFields(ev, nil)), tx, ev, enums.DeadLetterPermanent, err)
	}
	ctx = r.logg.WithFields(ctx, logFields(ev, resolved))

	msgID, err := r.send(ctx, ev, resolved)
	attempt := ev.AttemptCount + 1
	switch {
	case err == nil:
		if err := r.store.MarkPublishedTx(tx, ev.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", ev.ID, err)
		}
		r.logg.Info(r.logg.WithField(ctx, "message_id", msgID), "outbox event published")
		r.forwardSettlement(ctx, ev, resolved)
		return nil
	case permanent(err):
		return r.deadLetter(ctx, tx, ev, enums.DeadLetterPermanent, err)
	case attempt >= r.maxAttempts:
		return r.deadLetter(ctx, tx, ev, enums.DeadLetterMaxAttempts,
			fmt.Errorf("gave up after %d attempts: %w", attempt, err))
	default:
		r.logg.Warn(r.logg.WithFields(ctx, map[string]any{"attempt": attempt, "error": err.Error()}), "outbox publish failed, will retry")
		if err := r.store.MarkFailedTx(tx, ev.ID, err); err != nil {
			return fmt.Errorf("mark failed %s: %w", ev.ID, err)
		}
		return nil
	}
}

func (r *Relay) send(ctx context.Context, ev models.OutboxEvent, resolved *registry.ResolvedEvent) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.publishTimeout)
	defer cancel()
	return r.pub.Publish(ctx, resolved.Route.Topic, ev.Payload, attributes(ev, resolved.Envelope))
}

// permanent reports failures that no amount of retrying will fix.
func permanent(err error) bool {
	if registry.IsPermanent(err) || errors.Is(err, pubsub.ErrUnknownTopic) {
		return true
	}
	switch status.Code(err) {
	case codes.InvalidArgument, codes.NotFound:
		return true
	}
	return false
}

// deadLetter copies the row into the DLQ and exhausts its attempts so it is
// never claimed again.
func (r *Relay) deadLetter(ctx context.Context, tx *gorm.DB, ev models.OutboxEvent, reason enums.DeadLetterReason, cause error) error {
	r.logg.Warn(r.logg.WithFields(ctx, map[string]any{
		"dlq_reason": string(reason),
		"error":      cause.Error(),
	}), "outbox event dead-lettered")
	if err := r.dead.Park(tx, ev, reason, cause); err != nil {
		return fmt.Errorf("park %s: %w", ev.ID, err)
	}
	if err := r.store.MarkTerminalTx(tx, ev.ID, cause, r.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", ev.ID, err)
	}
	return nil
}

func (r *Relay) forwardSettlement(ctx context.Context, ev models.OutboxEvent, resolved *registry.ResolvedEvent) {
	settled, ok := resolved.Payload.(*payloads.PaymentSettledEvent)
	if r.settlements == nil || !ok || settled == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, settlementTimeout)
	defer cancel()
	if err := r.settlements.RecordSettlement(ctx, resolved.Envelope.EventID, string(ev.EventType), *settled); err != nil {
		r.logg.Warn(r.logg.WithField(ctx, "error", err.Error()), "settlement analytics write failed")
	}
}

// attributes let subscribers route and dedupe on event_id without decoding
// the body.
func attributes(ev models.OutboxEvent, env outbox.Envelope) map[string]string {
	eventID := env.EventID
	if eventID == "" {
		eventID = ev.ID.String()
	}
	return map[string]string{
		"event_id":       eventID,
		"event_type":     string(ev.EventType),
		"aggregate_type": string(ev.AggregateType),
		"aggregate_id":   ev.AggregateID.String(),
		"schema_version": strconv.Itoa(env.Version),
		"created_at":     ev.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func logFields(ev models.OutboxEvent, resolved *registry.ResolvedEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":    ev.ID.String(),
		"event_type":   string(ev.EventType),
		"aggregate_id": ev.AggregateID.String(),
		"attempts":     ev.AttemptCount,
	}
	if resolved != nil {
		fields["topic"] = resolved.Route.Topic
		fields["event_id"] = resolved.Envelope.EventID
	}
	return fields
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
