// Package money provides a currency-tagged value in integer minor units.
// It wraps go-money for currency metadata and comparisons and shopspring/decimal
// for lossless conversion to and from decimal text.
package money

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Common currency codes (ISO-4217)
const (
	USD = "USD" // US Dollar
	EUR = "EUR" // Euro
	GBP = "GBP" // British Pound
	BRL = "BRL" // Brazilian Real
	JPY = "JPY" // Japanese Yen (no decimal places)
	CHF = "CHF" // Swiss Franc
)

var (
	ErrUnknownCurrency  = errors.New("unknown currency code")
	ErrCurrencyMismatch = errors.New("currency mismatch")
	ErrOutOfRange       = errors.New("amount out of range for currency")
)

// Money is a signed amount of minor units tied to a currency.
type Money struct {
	m *money.Money
}

// New creates a Money value from minor units and an ISO-4217 code.
func New(minorUnits int64, currencyCode string) *Money {
	return &Money{m: money.New(minorUnits, strings.ToUpper(currencyCode))}
}

// NewFromDecimal converts a major-unit decimal into Money, rounding half away
// from zero to the currency's minor unit. It fails with ErrOutOfRange when the
// minor units do not fit in an int64.
func NewFromDecimal(amount decimal.Decimal, currencyCode string) (*Money, error) {
	minor := amount.Shift(int32(Fraction(currencyCode))).Round(0).BigInt()
	if !minor.IsInt64() {
		return nil, fmt.Errorf("%w: %s %s", ErrOutOfRange, amount.String(), strings.ToUpper(currencyCode))
	}
	return New(minor.Int64(), currencyCode), nil
}

// Zero returns a zero Money value for the given currency
func Zero(currencyCode string) *Money {
	return New(0, currencyCode)
}

// IsKnownCurrency reports whether code is in the ISO-4217 table.
func IsKnownCurrency(code string) bool {
	if len(code) != 3 {
		return false
	}
	return money.GetCurrency(strings.ToUpper(code)) != nil
}

// Fraction returns the number of minor-unit digits for a currency, defaulting to 2.
func Fraction(currencyCode string) int {
	if c := money.GetCurrency(strings.ToUpper(currencyCode)); c != nil {
		return c.Fraction
	}
	return 2
}

// Amount returns the amount in minor units
func (m *Money) Amount() int64 {
	if m == nil || m.m == nil {
		return 0
	}
	return m.m.Amount()
}

// Currency returns the ISO-4217 currency code
func (m *Money) Currency() string {
	if m == nil || m.m == nil {
		return ""
	}
	return m.m.Currency().Code
}

func (m *Money) IsZero() bool {
	return m == nil || m.m == nil || m.m.IsZero()
}

func (m *Money) IsPositive() bool {
	return m != nil && m.m != nil && m.m.IsPositive()
}

func (m *Money) IsNegative() bool {
	return m != nil && m.m != nil && m.m.IsNegative()
}

// Negate returns the value with its sign flipped.
func (m *Money) Negate() *Money {
	if m == nil || m.m == nil {
		return nil
	}
	return &Money{m: m.m.Negative()}
}

// Equals reports whether both values have the same currency and amount.
func (m *Money) Equals(other *Money) bool {
	if m == nil || m.m == nil || other == nil || other.m == nil {
		return m.IsZero() && other.IsZero()
	}
	eq, err := m.m.Equals(other.m)
	return err == nil && eq
}

// SameCurrency reports whether both values share a currency.
func (m *Money) SameCurrency(other *Money) bool {
	if m == nil || m.m == nil || other == nil || other.m == nil {
		return false
	}
	return m.m.SameCurrency(other.m)
}

// AssertCurrency returns ErrCurrencyMismatch if m is not in currencyCode.
func (m *Money) AssertCurrency(currencyCode string) error {
	if !strings.EqualFold(m.Currency(), currencyCode) {
		return fmt.Errorf("%w: have %q, want %q", ErrCurrencyMismatch, m.Currency(), currencyCode)
	}
	return nil
}

// ToDecimal converts to major units, e.g. 123456 USD -> 1234.56.
func (m *Money) ToDecimal() decimal.Decimal {
	if m == nil || m.m == nil {
		return decimal.Zero
	}
	return decimal.New(m.m.Amount(), -int32(m.m.Currency().Fraction))
}

// String returns the amount as plain decimal text with the currency's precision.
func (m *Money) String() string {
	if m == nil || m.m == nil {
		return "0.00"
	}
	return m.ToDecimal().StringFixed(int32(m.m.Currency().Fraction))
}

// Display returns a formatted string for display (e.g., "$1,234.56")
func (m *Money) Display() string {
	if m == nil || m.m == nil {
		return ""
	}
	return m.m.Display()
}

type moneyJSON struct {
	Amount   int64  `json:"amount_minor"`
	Currency string `json:"currency"`
}

func (m *Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(moneyJSON{Amount: m.Amount(), Currency: m.Currency()})
}

func (m *Money) UnmarshalJSON(data []byte) error {
	var v moneyJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if !IsKnownCurrency(v.Currency) {
		return fmt.Errorf("%w: %q", ErrUnknownCurrency, v.Currency)
	}
	*m = *New(v.Amount, v.Currency)
	return nil
}
