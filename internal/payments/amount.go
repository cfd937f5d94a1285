package payments

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/lectern-edu/lectern-payments/pkg/enums"
	pkgerrors "github.com/lectern-edu/lectern-payments/pkg/errors"
)

var maxMinorUnits = decimal.NewFromInt(math.MaxInt64)

// ToMinorUnits converts a decimal amount into the currency's smallest unit.
// Amounts with more fractional digits than the currency allows are rejected, never rounded.
func ToMinorUnits(amount decimal.Decimal, currency enums.Currency) (int64, error) {
	if !currency.IsValid() {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "unsupported currency")
	}
	if !amount.IsPositive() {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "amount must be greater than zero")
	}
	minor := amount.Shift(currency.Exponent())
	if !minor.IsInteger() {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "amount has more decimal places than "+currency.String()+" allows")
	}
	if minor.GreaterThan(maxMinorUnits) {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "amount too large")
	}
	return minor.IntPart(), nil
}

// FormatAmount renders minor units as a fixed-point decimal string, e.g. 5000 EUR -> "50.00".
func FormatAmount(minor int64, currency enums.Currency) string {
	exp := currency.Exponent()
	return decimal.New(minor, -exp).StringFixed(exp)
}
