// README: Common money value object used across modules.
package types

import (
	"fmt"
	"math"
)

// Money is an exact amount in minor units (cents). Amounts never travel
// as raw floats across module boundaries; conversion from float happens
// once, through CentsFromDollars.
type Money struct {
	Amount   int64  `json:"amount_cents"`
	Currency string `json:"currency"`
}

const DefaultCurrency = "USD"

func USD(cents int64) Money {
	return Money{Amount: cents, Currency: DefaultCurrency}
}

// CentsFromDollars rounds a dollar amount to whole cents, half-up.
func CentsFromDollars(d float64) int64 {
	return int64(math.Round(d * 100))
}

func FromDollars(d float64) Money {
	return USD(CentsFromDollars(d))
}

func (m Money) Dollars() float64 {
	return float64(m.Amount) / 100
}

func (m Money) IsZero() bool {
	return m.Amount == 0
}

func (m Money) Add(o Money) Money {
	return Money{Amount: m.Amount + o.Amount, Currency: m.currencyOr(o.Currency)}
}

func (m Money) Sub(o Money) Money {
	return Money{Amount: m.Amount - o.Amount, Currency: m.currencyOr(o.Currency)}
}

func (m Money) MulInt(n int) Money {
	return Money{Amount: m.Amount * int64(n), Currency: m.Currency}
}

// Percent returns pct% of m, rounded half-up. Only defined for
// non-negative amounts and 0 <= pct <= 100.
func (m Money) Percent(pct int) Money {
	return Money{Amount: (m.Amount*int64(pct) + 50) / 100, Currency: m.Currency}
}

func (m Money) String() string {
	return fmt.Sprintf("%.2f %s", m.Dollars(), m.currencyOr(DefaultCurrency))
}

func (m Money) currencyOr(fallback string) string {
	if m.Currency != "" {
		return m.Currency
	}
	return fallback
}
