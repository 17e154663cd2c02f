// Package normalizer turns raw statement cells into canonical values:
// exact minor-unit amounts, calendar dates and merchant names.
package normalizer

import (
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

var (
	ErrEmptyAmount    = errors.New("empty amount")
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrAmountOverflow = errors.New("amount out of range")
)

// Longer symbols first so "R$" is removed before "$".
var currencySymbols = []string{"R$", "US$", "A$", "C$", "$", "€", "£", "¥", "₹"}

var (
	currencyCodes = regexp.MustCompile(`(?i)(USD|EUR|GBP|BRL|CHF|JPY|CAD|AUD|INR)`)
	plainNumber   = regexp.MustCompile(`^(\d+(\.\d*)?|\.\d+)$`)
)

// ParseAmount converts free-form amount text into signed minor units (cents).
// Parentheses, a leading minus sign or a trailing minus mark a negative value.
// With european set, '.' groups thousands and ',' is the decimal separator.
// Fractions of a minor unit are rounded half away from zero.
func ParseAmount(raw string, european bool) (int64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, ErrEmptyAmount
	}

	for _, sym := range currencySymbols {
		s = strings.ReplaceAll(s, sym, "")
	}
	s = currencyCodes.ReplaceAllString(s, "")
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	if s == "" {
		return 0, ErrEmptyAmount
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}

	switch {
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	case strings.HasPrefix(s, "-"):
		if negative {
			return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
		}
		negative = true
		s = s[1:]
	case strings.HasPrefix(s, "−"): // U+2212
		if negative {
			return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
		}
		negative = true
		s = strings.TrimPrefix(s, "−")
	case strings.HasSuffix(s, "-"):
		if negative {
			return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
		}
		negative = true
		s = s[:len(s)-1]
	}

	s, ok := canonicalNumber(s, european)
	if !ok || !plainNumber.MatchString(s) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}

	s = strings.TrimSuffix(s, ".")
	if strings.HasPrefix(s, ".") {
		s = "0" + s
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}

	minor := d.Shift(2).Round(0).BigInt()
	if negative {
		minor.Neg(minor)
	}
	if !minor.IsInt64() {
		return 0, fmt.Errorf("%w: %q", ErrAmountOverflow, raw)
	}
	return minor.Int64(), nil
}

// canonicalNumber rewrites s with '.' as the only separator. Grouping marks
// ('.' or ',' opposite the decimal separator, and '\'') are accepted only left
// of the decimal separator and only between groups of three digits.
func canonicalNumber(s string, european bool) (string, bool) {
	decimalSep, groupSep := ".", ","
	if european {
		decimalSep, groupSep = ",", "."
	}
	if strings.Count(s, decimalSep) > 1 {
		return "", false
	}

	intPart, frac, hasFrac := strings.Cut(s, decimalSep)
	if strings.ContainsAny(frac, ".,'") {
		return "", false
	}

	groups := strings.FieldsFunc(intPart, func(r rune) bool {
		return string(r) == groupSep || r == '\''
	})
	if strings.ContainsAny(intPart, groupSep+"'") {
		if !validGroups(intPart, groups) {
			return "", false
		}
		intPart = strings.Join(groups, "")
	}

	if hasFrac {
		return intPart + "." + frac, true
	}
	return intPart, true
}

func validGroups(intPart string, groups []string) bool {
	// FieldsFunc drops empty fields, so a leading, trailing or doubled mark
	// shows up as a length mismatch.
	joined := 0
	for _, g := range groups {
		joined += len(g)
	}
	if len(groups) < 2 || joined+len(groups)-1 != len(intPart) {
		return false
	}
	if len(groups[0]) > 3 {
		return false
	}
	for _, g := range groups[1:] {
		if len(g) != 3 {
			return false
		}
	}
	return true
}

// NormalizeDebitCredit combines separate debit and credit cells into one signed amount.
// Debits are outflows and credits inflows regardless of the sign written in the cell.
// Empty cells count as zero.
func NormalizeDebitCredit(debit, credit string, european bool) (int64, error) {
	var out, in int64

	if strings.TrimSpace(debit) != "" {
		v, err := ParseAmount(debit, european)
		if err != nil {
			return 0, fmt.Errorf("debit: %w", err)
		}
		out = v
	}
	if strings.TrimSpace(credit) != "" {
		v, err := ParseAmount(credit, european)
		if err != nil {
			return 0, fmt.Errorf("credit: %w", err)
		}
		in = v
	}

	// -|debit| + |credit| computed in big.Int so |MinInt64| cannot wrap.
	total := new(big.Int).Abs(big.NewInt(in))
	total.Sub(total, new(big.Int).Abs(big.NewInt(out)))
	if !total.IsInt64() {
		return 0, ErrAmountOverflow
	}
	return total.Int64(), nil
}

// FormatMinorUnits renders minor units as plain two-decimal text, e.g. -5000 -> "-50.00".
func FormatMinorUnits(v int64) string {
	return decimal.New(v, -2).StringFixed(2)
}
