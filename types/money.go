// Package types provides common value types used across cyclebill.
package types

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits carried by every Money value.
const Scale = 2

// Money represents a monetary value in minor units (cents).
// All balance arithmetic is integer-only; rates go through decimal and are
// rounded back to cents.
//
// Examples:
//   - New(2000000, "cop") = 20000.00
//   - New(70000, "cop")   = 700.00
type Money struct {
	Amount   int64  `json:"amount"`   // Minor units, always Scale digits
	Currency string `json:"currency"` // ISO 4217 lowercase
}

// New creates a Money value from minor units.
func New(cents int64, currency string) Money {
	return Money{Amount: cents, Currency: strings.ToLower(currency)}
}

// Zero returns a zero Money value in the specified currency.
func Zero(currency string) Money { return New(0, currency) }

// FromDecimal converts a major-unit decimal (e.g. 700.005) into Money,
// rounding half away from zero to cents.
func FromDecimal(d decimal.Decimal, currency string) Money {
	cents := d.Shift(Scale).Round(0)
	return New(cents.IntPart(), currency)
}

// Parse parses a major-unit string such as "5000.00" into Money.
func Parse(s, currency string) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Money{}, fmt.Errorf("money: parse %q: %w", s, err)
	}
	if d.Exponent() < -Scale && !d.Equal(d.Round(Scale)) {
		return Money{}, fmt.Errorf("money: %q has more than %d fractional digits", s, Scale)
	}
	return FromDecimal(d, currency), nil
}

// Arithmetic operations

// Add adds two Money values. Panics if currencies don't match.
func (m Money) Add(other Money) Money {
	m.assertSameCurrency(other)
	return Money{Amount: m.Amount + other.Amount, Currency: m.Currency}
}

// Subtract subtracts another Money value. Panics if currencies don't match.
func (m Money) Subtract(other Money) Money {
	m.assertSameCurrency(other)
	return Money{Amount: m.Amount - other.Amount, Currency: m.Currency}
}

// MulRate multiplies the amount by a fractional rate (0.14 = 14%) and rounds
// the result to cents, half away from zero.
func (m Money) MulRate(rate decimal.Decimal) Money {
	product := decimal.NewFromInt(m.Amount).Mul(rate).Round(0)
	return Money{Amount: product.IntPart(), Currency: m.Currency}
}

// ClampZero returns m, or zero when m is negative.
func (m Money) ClampZero() Money {
	if m.Amount < 0 {
		return Zero(m.Currency)
	}
	return m
}

// Comparison methods

// IsZero returns true if the amount is zero.
func (m Money) IsZero() bool { return m.Amount == 0 }

// IsPositive returns true if the amount is greater than zero.
func (m Money) IsPositive() bool { return m.Amount > 0 }

// IsNegative returns true if the amount is less than zero.
func (m Money) IsNegative() bool { return m.Amount < 0 }

// Equal returns true if both Money values are equal (same amount and currency).
func (m Money) Equal(other Money) bool {
	return m.Amount == other.Amount && m.Currency == other.Currency
}

// SameCurrency reports whether both values share a currency.
func (m Money) SameCurrency(other Money) bool { return m.Currency == other.Currency }

// LessThan returns true if this Money is less than other. Panics if currencies don't match.
func (m Money) LessThan(other Money) bool {
	m.assertSameCurrency(other)
	return m.Amount < other.Amount
}

// GreaterThan returns true if this Money is greater than other. Panics if currencies don't match.
func (m Money) GreaterThan(other Money) bool {
	m.assertSameCurrency(other)
	return m.Amount > other.Amount
}

// Min returns the smaller of two Money values. Panics if currencies don't match.
func (m Money) Min(other Money) Money {
	m.assertSameCurrency(other)
	if m.Amount < other.Amount {
		return m
	}
	return other
}

// Formatting methods

// Decimal returns the value in major units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Amount, -Scale)
}

// FormatMajor returns the major unit string with exactly Scale fractional
// digits, e.g. "700.00". This is also the persisted NUMERIC representation.
func (m Money) FormatMajor() string {
	return m.Decimal().StringFixed(Scale)
}

// String returns a human-readable string such as "700.00 COP".
func (m Money) String() string {
	if m.Currency == "" {
		return m.FormatMajor()
	}
	return m.FormatMajor() + " " + strings.ToUpper(m.Currency)
}

// MarshalJSON implements json.Marshaler.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
		Display  string `json:"display"`
	}{
		Amount:   m.Amount,
		Currency: m.Currency,
		Display:  m.FormatMajor(),
	})
}

// assertSameCurrency panics if currencies don't match.
func (m Money) assertSameCurrency(other Money) {
	if m.Currency != other.Currency {
		panic(fmt.Sprintf("money: currency mismatch: %s != %s", m.Currency, other.Currency))
	}
}

// Sum calculates the sum of multiple Money values. All must have the same currency.
func Sum(currency string, values ...Money) Money {
	result := Zero(currency)
	for _, v := range values {
		result = result.Add(v)
	}
	return result
}
