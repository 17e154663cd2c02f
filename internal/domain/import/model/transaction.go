package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/FACorreiaa/statement-import/pkg/money"
)

// ParsedTransaction is one successfully extracted statement row.
type ParsedTransaction struct {
	ID             uuid.UUID    `json:"id"`
	Date           time.Time    `json:"date"` // calendar date at UTC midnight
	Amount         *money.Money `json:"amount"`
	Merchant       string       `json:"merchant"`
	RawDescription string       `json:"raw_description"`
	Category       string       `json:"category,omitempty"` // raw category cell, if mapped
	Row            int          `json:"row"`                // 1-based data row
}

// MinorUnits returns the signed amount in minor units.
func (t ParsedTransaction) MinorUnits() int64 {
	return t.Amount.Amount()
}

// Fingerprint is the comparison key date|minor-units|merchant used by duplicate detection.
// It is never persisted.
func (t ParsedTransaction) Fingerprint() string {
	return Fingerprint(t.Date, t.MinorUnits(), t.Merchant)
}

// Fingerprint builds the duplicate comparison key from its parts.
func Fingerprint(date time.Time, minorUnits int64, merchant string) string {
	var b strings.Builder
	b.WriteString(date.Format(ISODateLayout))
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(minorUnits, 10))
	b.WriteByte('|')
	b.WriteString(strings.ToLower(strings.TrimSpace(merchant)))
	return b.String()
}

// ExistingTransaction is the minimal view of an already-stored transaction
// needed to score duplicates.
type ExistingTransaction struct {
	ID          uuid.UUID `json:"id"`
	Date        time.Time `json:"date"`
	AmountMinor int64     `json:"amount_minor"`
	Merchant    string    `json:"merchant"`
}

// CalendarDate truncates t to midnight UTC of its own calendar day.
func CalendarDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the absolute number of calendar days between a and b.
func DaysBetween(a, b time.Time) int {
	diff := CalendarDate(a).Sub(CalendarDate(b))
	days := int(diff.Hours() / 24)
	if days < 0 {
		return -days
	}
	return days
}

// ImportError describes a row that could not be extracted.
type ImportError struct {
	Row     int      `json:"row" csv:"row"`
	Column  string   `json:"column,omitempty" csv:"column"`
	Message string   `json:"message" csv:"message"`
	Raw     []string `json:"raw,omitempty" csv:"-"`
}

func (e ImportError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("row %d, column %s: %s", e.Row, e.Column, e.Message)
	}
	return fmt.Sprintf("row %d: %s", e.Row, e.Message)
}
