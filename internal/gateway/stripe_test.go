package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v84"

	"github.com/lectern-edu/lectern-payments/pkg/enums"
	pkgerrors "github.com/lectern-edu/lectern-payments/pkg/errors"
)

const testSecret = "whsec_test"

type stubIntentAPI struct {
	newFn    func(*stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	getFn    func(string, *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	cancelFn func(string, *stripe.PaymentIntentCancelParams) (*stripe.PaymentIntent, error)
}

func (s *stubIntentAPI) New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	return s.newFn(params)
}

func (s *stubIntentAPI) Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	return s.getFn(id, params)
}

func (s *stubIntentAPI) Cancel(id string, params *stripe.PaymentIntentCancelParams) (*stripe.PaymentIntent, error) {
	return s.cancelFn(id, params)
}

func TestCreateIntentBuildsParams(t *testing.T) {
	var captured *stripe.PaymentIntentParams
	api := &stubIntentAPI{newFn: func(p *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
		captured = p
		return &stripe.PaymentIntent{ID: "pi_123", ClientSecret: "pi_123_secret_abc"}, nil
	}}
	gw := newStripeGateway(api, testSecret, time.Second, nil, nil)

	created, err := gw.CreateIntent(context.Background(), IntentRequest{
		AmountMinor:    5000,
		Currency:       enums.CurrencyEUR,
		Description:    "Course fee",
		Metadata:       map[string]string{"payment_id": "p-1"},
		IdempotencyKey: "p-1",
	})
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}
	if created.IntentID != "pi_123" || created.ClientSecret != "pi_123_secret_abc" {
		t.Fatalf("unexpected created intent %+v", created)
	}
	if captured == nil || *captured.Amount != 5000 || *captured.Currency != "eur" {
		t.Fatalf("unexpected params %+v", captured)
	}
	if captured.Metadata["payment_id"] != "p-1" {
		t.Fatalf("metadata not forwarded: %+v", captured.Metadata)
	}
	if captured.IdempotencyKey == nil || *captured.IdempotencyKey != "p-1" {
		t.Fatalf("idempotency key not set")
	}
	if captured.Context == nil {
		t.Fatalf("expected call context on params")
	}
}

func TestCreateIntentRejectsInvalidInput(t *testing.T) {
	gw := newStripeGateway(&stubIntentAPI{}, testSecret, time.Second, nil, nil)
	if _, err := gw.CreateIntent(context.Background(), IntentRequest{AmountMinor: 0, Currency: enums.CurrencyUSD}); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := gw.CreateIntent(context.Background(), IntentRequest{AmountMinor: 10, Currency: "XXX"}); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCallTimesOut(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	api := &stubIntentAPI{getFn: func(string, *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
		<-release
		return nil, nil
	}}
	gw := newStripeGateway(api, testSecret, 20*time.Millisecond, nil, nil)

	start := time.Now()
	_, err := gw.FetchIntent(context.Background(), "pi_slow")
	if !pkgerrors.IsCode(err, pkgerrors.CodeGatewayTimeout) {
		t.Fatalf("expected gateway timeout, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("call did not respect its deadline")
	}
}

func TestFetchIntentMapsErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code pkgerrors.Code
	}{
		{name: "missing", err: &stripe.Error{Code: stripe.ErrorCodeResourceMissing, HTTPStatusCode: http.StatusNotFound}, code: pkgerrors.CodeNotFound},
		{name: "server", err: &stripe.Error{Type: stripe.ErrorTypeAPI, HTTPStatusCode: http.StatusBadGateway}, code: pkgerrors.CodeGatewayUnavailable},
		{name: "rate limited", err: &stripe.Error{HTTPStatusCode: http.StatusTooManyRequests}, code: pkgerrors.CodeGatewayUnavailable},
		{name: "transport", err: errors.New("connection reset"), code: pkgerrors.CodeGatewayUnavailable},
		{name: "deadline", err: fmt.Errorf("do: %w", context.DeadlineExceeded), code: pkgerrors.CodeGatewayTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &stubIntentAPI{getFn: func(string, *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
				return nil, tt.err
			}}
			gw := newStripeGateway(api, testSecret, time.Second, nil, nil)
			if _, err := gw.FetchIntent(context.Background(), "pi_1"); !pkgerrors.IsCode(err, tt.code) {
				t.Fatalf("expected %s, got %v", tt.code, err)
			}
		})
	}
}

func TestFetchIntentConvertsStripeIntent(t *testing.T) {
	api := &stubIntentAPI{getFn: func(id string, _ *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
		return &stripe.PaymentIntent{
			ID:               id,
			Status:           stripe.PaymentIntentStatusRequiresPaymentMethod,
			Amount:           1200,
			Currency:         stripe.CurrencyUSD,
			LatestCharge:     &stripe.Charge{ID: "ch_9"},
			LastPaymentError: &stripe.Error{Msg: "card declined"},
		}, nil
	}}
	gw := newStripeGateway(api, testSecret, time.Second, nil, nil)

	intent, err := gw.FetchIntent(context.Background(), "pi_42")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if intent.ID != "pi_42" || intent.LatestChargeID != "ch_9" || intent.Currency != "USD" {
		t.Fatalf("unexpected intent %+v", intent)
	}
	status, ok := intent.ImpliedStatus()
	if !ok || status != enums.PaymentStatusFailed {
		t.Fatalf("expected failed status, got %q ok=%v", status, ok)
	}
	if intent.FailureReason() != "card declined" {
		t.Fatalf("unexpected failure reason %q", intent.FailureReason())
	}
}

func TestFetchIntentRejectsMalformedID(t *testing.T) {
	gw := newStripeGateway(&stubIntentAPI{}, testSecret, time.Second, nil, nil)
	if _, err := gw.FetchIntent(context.Background(), "ch_123"); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCancelIntentSendsReason(t *testing.T) {
	var reason string
	api := &stubIntentAPI{cancelFn: func(id string, p *stripe.PaymentIntentCancelParams) (*stripe.PaymentIntent, error) {
		reason = *p.CancellationReason
		return &stripe.PaymentIntent{ID: id, Status: stripe.PaymentIntentStatusCanceled}, nil
	}}
	gw := newStripeGateway(api, testSecret, time.Second, nil, nil)
	if err := gw.CancelIntent(context.Background(), "pi_7"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if reason != "abandoned" {
		t.Fatalf("unexpected cancellation reason %q", reason)
	}
}

func TestVerifySignature(t *testing.T) {
	gw := newStripeGateway(&stubIntentAPI{}, testSecret, time.Second, nil, nil)
	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded"}`)

	if err := gw.VerifySignature(payload, signHeader(t, testSecret, payload, time.Now())); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}
	if err := gw.VerifySignature(payload, signHeader(t, "whsec_other", payload, time.Now())); !pkgerrors.IsCode(err, pkgerrors.CodeInvalidSignature) {
		t.Fatalf("expected invalid signature, got %v", err)
	}
	if err := gw.VerifySignature(payload, ""); !pkgerrors.IsCode(err, pkgerrors.CodeInvalidSignature) {
		t.Fatalf("expected invalid signature for empty header, got %v", err)
	}
	tampered := []byte(`{"id":"evt_1","type":"payment_intent.payment_failed"}`)
	if err := gw.VerifySignature(tampered, signHeader(t, testSecret, payload, time.Now())); !pkgerrors.IsCode(err, pkgerrors.CodeInvalidSignature) {
		t.Fatalf("expected tampered payload to fail, got %v", err)
	}
}

func TestIntentFailureReasonFallbacks(t *testing.T) {
	if got := (&Intent{CancellationReason: "abandoned"}).FailureReason(); got != "abandoned" {
		t.Fatalf("expected cancellation reason fallback, got %q", got)
	}
	if got := (&Intent{}).FailureReason(); got != DefaultFailureReason {
		t.Fatalf("expected default reason, got %q", got)
	}
	if _, ok := (&Intent{Status: "requires_action"}).ImpliedStatus(); ok {
		t.Fatalf("requires_action carries no local status")
	}
}

func signHeader(t *testing.T, secret string, payload []byte, at time.Time) string {
	t.Helper()
	ts := at.Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(fmt.Sprintf("%d.%s", ts, payload)))
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}
