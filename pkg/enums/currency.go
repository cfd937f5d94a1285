package enums

import (
	"slices"
	"strings"
)

// Currency is an ISO 4217 code accepted for payments.
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
	CurrencyCAD Currency = "CAD"
	CurrencyAUD Currency = "AUD"
	CurrencyJPY Currency = "JPY"
	CurrencyKRW Currency = "KRW"
	CurrencyCHF Currency = "CHF"
	CurrencySEK Currency = "SEK"
	CurrencyNOK Currency = "NOK"
	CurrencyDKK Currency = "DKK"
	CurrencyMXN Currency = "MXN"
	CurrencyBRL Currency = "BRL"
)

var validCurrencies = []Currency{
	CurrencyUSD,
	CurrencyEUR,
	CurrencyGBP,
	CurrencyCAD,
	CurrencyAUD,
	CurrencyJPY,
	CurrencyKRW,
	CurrencyCHF,
	CurrencySEK,
	CurrencyNOK,
	CurrencyDKK,
	CurrencyMXN,
	CurrencyBRL,
}

// zero-decimal currencies charge in whole units.
var zeroDecimalCurrencies = map[Currency]struct{}{
	CurrencyJPY: {},
	CurrencyKRW: {},
}

func (c Currency) String() string {
	return string(c)
}

// IsValid reports whether the currency is recognized.
func (c Currency) IsValid() bool {
	return slices.Contains(validCurrencies, c)
}

// Exponent returns the number of minor-unit digits for the currency.
func (c Currency) Exponent() int32 {
	if _, ok := zeroDecimalCurrencies[c]; ok {
		return 0
	}
	return 2
}

// Lower returns the lowercase form gateways expect.
func (c Currency) Lower() string {
	return strings.ToLower(string(c))
}

// ParseCurrency converts a raw string into a Currency. Case is ignored.
func ParseCurrency(value string) (Currency, error) {
	return parse(validCurrencies, strings.ToUpper(strings.TrimSpace(value)), "currency")
}
