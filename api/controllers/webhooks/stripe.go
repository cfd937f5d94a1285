package webhooks

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/lectern-edu/lectern-payments/api/responses"
	stripewebhook "github.com/lectern-edu/lectern-payments/internal/webhooks/stripe"
	"github.com/lectern-edu/lectern-payments/pkg/enums"
	pkgerrors "github.com/lectern-edu/lectern-payments/pkg/errors"
	"github.com/lectern-edu/lectern-payments/pkg/logger"
)

const (
	signatureHeader       = "Stripe-Signature"
	defaultEventIDHeader  = "Webhook-Event-Id"
	defaultMaxBodyBytes   = 64 << 10
	webhookServiceMissing = "webhook service unavailable"
)

// EventHandler processes one verified gateway delivery.
type EventHandler interface {
	Handle(ctx context.Context, payload []byte, signatureHeader, eventID string) (*stripewebhook.Ack, error)
}

// Options tune the gateway webhook endpoint.
type Options struct {
	MaxBodyBytes  int64
	EventIDHeader string
}

type ackResponse struct {
	EventID   string                    `json:"event_id,omitempty"`
	Outcome   enums.WebhookEventOutcome `json:"outcome"`
	PaymentID *uuid.UUID                `json:"payment_id,omitempty"`
	Status    enums.PaymentStatus       `json:"status,omitempty"`
}

// GatewayWebhook acknowledges gateway deliveries. Handled and no-op deliveries
// return 200 so the gateway stops retrying; signature failures return 400 and
// transient failures 5xx so it retries later. Oversized payloads are dropped
// with a 200 unparseable ack since redelivery cannot shrink them.
func GatewayWebhook(svc EventHandler, opts Options, logg *logger.Logger) http.HandlerFunc {
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}
	eventIDHeader := strings.TrimSpace(opts.EventIDHeader)
	if eventIDHeader == "" {
		eventIDHeader = defaultEventIDHeader
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, webhookServiceMissing))
			return
		}

		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				if logg != nil {
					logg.Warn(logg.WithField(ctx, "limit_bytes", tooLarge.Limit), "webhook.payload_too_large")
				}
				responses.WriteSuccess(w, ackResponse{Outcome: enums.WebhookOutcomeUnparseable})
				return
			}
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		eventID := strings.TrimSpace(r.Header.Get(eventIDHeader))
		if logg != nil && eventID != "" {
			ctx = logg.WithEventID(ctx, eventID)
		}

		ack, err := svc.Handle(ctx, payload, r.Header.Get(signatureHeader), eventID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, ackResponse{
			EventID:   ack.EventID,
			Outcome:   ack.Outcome,
			PaymentID: ack.PaymentID,
			Status:    ack.Status,
		})
	}
}
