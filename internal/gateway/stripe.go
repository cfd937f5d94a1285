package gateway

import (
	"context"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/paymentintent"
	"github.com/stripe/stripe-go/v84/webhook"

	pkgerrors "github.com/lectern-edu/lectern-payments/pkg/errors"
	"github.com/lectern-edu/lectern-payments/pkg/logger"
	"github.com/lectern-edu/lectern-payments/pkg/metrics"
	pkgstripe "github.com/lectern-edu/lectern-payments/pkg/stripe"
)

const (
	opCreateIntent = "create_intent"
	opFetchIntent  = "fetch_intent"
	opCancelIntent = "cancel_intent"

	cancelReasonAbandoned = "abandoned"
)

// intentAPI is the subset of the Stripe payment intent resource the gateway calls.
type intentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Cancel(id string, params *stripe.PaymentIntentCancelParams) (*stripe.PaymentIntent, error)
}

type stripeIntentAPI struct{}

func (stripeIntentAPI) New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	return paymentintent.New(params)
}

func (stripeIntentAPI) Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	return paymentintent.Get(id, params)
}

func (stripeIntentAPI) Cancel(id string, params *stripe.PaymentIntentCancelParams) (*stripe.PaymentIntent, error) {
	return paymentintent.Cancel(id, params)
}

// StripeGateway talks to Stripe PaymentIntents with a bounded budget per call.
type StripeGateway struct {
	api           intentAPI
	signingSecret string
	timeout       time.Duration
	metrics       *metrics.GatewayMetrics
	logg          *logger.Logger
	now           func() time.Time
}

// NewStripeGateway builds the production gateway from an initialized Stripe client.
func NewStripeGateway(client *pkgstripe.Client, gm *metrics.GatewayMetrics, logg *logger.Logger) (*StripeGateway, error) {
	if client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "stripe client required")
	}
	return newStripeGateway(stripeIntentAPI{}, client.SigningSecret(), client.Timeout(), gm, logg), nil
}

func newStripeGateway(api intentAPI, secret string, timeout time.Duration, gm *metrics.GatewayMetrics, logg *logger.Logger) *StripeGateway {
	return &StripeGateway{
		api:           api,
		signingSecret: secret,
		timeout:       timeout,
		metrics:       gm,
		logg:          logg,
		now:           time.Now,
	}
}

// CreateIntent opens a payment intent for the requested amount.
func (g *StripeGateway) CreateIntent(ctx context.Context, req IntentRequest) (*CreatedIntent, error) {
	if req.AmountMinor <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if !req.Currency.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported currency")
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.AmountMinor),
		Currency: stripe.String(req.Currency.Lower()),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if desc := strings.TrimSpace(req.Description); desc != "" {
		params.Description = stripe.String(desc)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	var pi *stripe.PaymentIntent
	err := g.call(ctx, opCreateIntent, func(callCtx context.Context) error {
		params.Context = callCtx
		var err error
		pi, err = g.api.New(params)
		return err
	})
	if err != nil {
		return nil, err
	}
	if pi == nil || pi.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeGatewayUnavailable, "gateway returned no intent")
	}
	return &CreatedIntent{IntentID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

// FetchIntent retrieves the current state of an intent by id.
func (g *StripeGateway) FetchIntent(ctx context.Context, intentID string) (*Intent, error) {
	intentID = strings.TrimSpace(intentID)
	if !IsIntentID(intentID) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid intent id")
	}

	params := &stripe.PaymentIntentParams{}
	params.AddExpand("latest_charge")

	var pi *stripe.PaymentIntent
	err := g.call(ctx, opFetchIntent, func(callCtx context.Context) error {
		params.Context = callCtx
		var err error
		pi, err = g.api.Get(intentID, params)
		return err
	})
	if err != nil {
		return nil, err
	}
	if pi == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "intent not found")
	}
	return IntentFromStripe(pi), nil
}

// CancelIntent abandons an intent. Used to roll back a creation whose local record failed.
func (g *StripeGateway) CancelIntent(ctx context.Context, intentID string) error {
	intentID = strings.TrimSpace(intentID)
	if !IsIntentID(intentID) {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid intent id")
	}
	params := &stripe.PaymentIntentCancelParams{
		CancellationReason: stripe.String(cancelReasonAbandoned),
	}
	return g.call(ctx, opCancelIntent, func(callCtx context.Context) error {
		params.Context = callCtx
		_, err := g.api.Cancel(intentID, params)
		return err
	})
}

// VerifySignature checks the Stripe-Signature header against the raw payload.
func (g *StripeGateway) VerifySignature(payload []byte, header string) error {
	if strings.TrimSpace(header) == "" {
		return pkgerrors.New(pkgerrors.CodeInvalidSignature, "missing signature header")
	}
	if err := webhook.ValidatePayload(payload, header, g.signingSecret); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInvalidSignature, err, "signature verification failed")
	}
	return nil
}

// call runs fn under the gateway timeout. The caller never waits past the
// deadline even when the underlying transport ignores cancellation.
func (g *StripeGateway) call(ctx context.Context, op string, fn func(context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := g.now()
	done := make(chan error, 1)
	go func() { done <- fn(callCtx) }()

	var err error
	select {
	case err = <-done:
	case <-callCtx.Done():
		err = callCtx.Err()
	}

	mapped := mapError(op, err)
	g.metrics.Observe(op, resultLabel(mapped), g.now().Sub(start))
	if mapped != nil && g.logg != nil {
		g.logg.Warn(g.logg.WithFields(ctx, map[string]any{"operation": op, "error": mapped.Error()}), "gateway call failed")
	}
	return mapped
}
