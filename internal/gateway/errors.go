package gateway

import (
	"context"
	"errors"
	"net/http"

	"github.com/stripe/stripe-go/v84"

	pkgerrors "github.com/lectern-edu/lectern-payments/pkg/errors"
)

// mapError converts a raw gateway failure into the service error taxonomy.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return pkgerrors.Wrap(pkgerrors.CodeGatewayTimeout, err, op+" timed out")
	}
	if errors.Is(err, context.Canceled) {
		return pkgerrors.Wrap(pkgerrors.CodeGatewayUnavailable, err, op+" canceled")
	}

	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		switch {
		case stripeErr.Code == stripe.ErrorCodeResourceMissing || stripeErr.HTTPStatusCode == http.StatusNotFound:
			return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, op+": intent not found")
		case stripeErr.HTTPStatusCode == http.StatusTooManyRequests,
			stripeErr.HTTPStatusCode >= http.StatusInternalServerError,
			stripeErr.Type == stripe.ErrorTypeAPI:
			return pkgerrors.Wrap(pkgerrors.CodeGatewayUnavailable, err, op+" failed")
		case stripeErr.Type == stripe.ErrorTypeInvalidRequest || stripeErr.Type == stripe.ErrorTypeCard:
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, op+" rejected: "+stripeErr.Msg)
		}
	}
	return pkgerrors.Wrap(pkgerrors.CodeGatewayUnavailable, err, op+" failed")
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if typed := pkgerrors.As(err); typed != nil {
		return string(typed.Code())
	}
	return "error"
}
