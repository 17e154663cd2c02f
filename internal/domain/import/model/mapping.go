// Package model holds the value types shared by the import pipeline:
// column mappings, parsed transactions, row errors, duplicate statuses and previews.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ISODateLayout is the fallback date layout when nothing better is known.
const ISODateLayout = "2006-01-02"

var ErrInvalidMapping = errors.New("invalid column mapping")

var delimiterNames = map[string]rune{
	"comma":     ',',
	"semicolon": ';',
	"tab":       '\t',
	"pipe":      '|',
}

// ParseDelimiter accepts a delimiter name ("comma", "semicolon", "tab", "pipe"),
// a single character, or the escape "\t".
func ParseDelimiter(s string) (rune, error) {
	if r, ok := delimiterNames[strings.ToLower(strings.TrimSpace(s))]; ok {
		return r, nil
	}
	if s == `\t` {
		return '\t', nil
	}
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError || size != len(s) {
		return 0, fmt.Errorf("%w: unknown delimiter %q", ErrInvalidMapping, s)
	}
	return r, nil
}

// ColumnMapping describes how the columns of a statement map to transaction fields.
// It is passed by value; nothing in the pipeline mutates a mapping after it is built.
//
// Exactly one amount source must be set: AmountColumn, or both DebitColumn and CreditColumn.
// For files without a header row, columns are addressed by 1-based position ("1", "2", ...).
type ColumnMapping struct {
	DateColumn        string `json:"date_column"`
	DescriptionColumn string `json:"description_column"`
	AmountColumn      string `json:"amount_column,omitempty"`
	DebitColumn       string `json:"debit_column,omitempty"`
	CreditColumn      string `json:"credit_column,omitempty"`
	CategoryColumn    string `json:"category_column,omitempty"`

	DateFormat     string `json:"date_format"` // Go time layout
	Delimiter      rune   `json:"delimiter"`
	HasHeader      bool   `json:"has_header"`
	SkipLines      int    `json:"skip_lines"`      // records before the header row
	EuropeanFormat bool   `json:"european_format"` // 1.234,56
}

// NewAmountMapping builds a mapping for statements with a single signed amount column.
func NewAmountMapping(dateCol, descCol, amountCol, dateFormat string, delimiter rune) (ColumnMapping, error) {
	m := ColumnMapping{
		DateColumn:        dateCol,
		DescriptionColumn: descCol,
		AmountColumn:      amountCol,
		DateFormat:        dateFormat,
		Delimiter:         delimiter,
		HasHeader:         true,
	}
	return m, m.Validate()
}

// NewDebitCreditMapping builds a mapping for statements with separate debit and credit columns.
func NewDebitCreditMapping(dateCol, descCol, debitCol, creditCol, dateFormat string, delimiter rune) (ColumnMapping, error) {
	m := ColumnMapping{
		DateColumn:        dateCol,
		DescriptionColumn: descCol,
		DebitColumn:       debitCol,
		CreditColumn:      creditCol,
		DateFormat:        dateFormat,
		Delimiter:         delimiter,
		HasHeader:         true,
	}
	return m, m.Validate()
}

// IsDoubleEntry reports whether amounts come from a debit/credit pair.
func (m ColumnMapping) IsDoubleEntry() bool {
	return m.AmountColumn == "" && m.DebitColumn != "" && m.CreditColumn != ""
}

// Validate checks the mapping invariants.
func (m ColumnMapping) Validate() error {
	if strings.TrimSpace(m.DateColumn) == "" {
		return fmt.Errorf("%w: date column is required", ErrInvalidMapping)
	}
	if strings.TrimSpace(m.DescriptionColumn) == "" {
		return fmt.Errorf("%w: description column is required", ErrInvalidMapping)
	}

	hasAmount := strings.TrimSpace(m.AmountColumn) != ""
	hasDebit := strings.TrimSpace(m.DebitColumn) != ""
	hasCredit := strings.TrimSpace(m.CreditColumn) != ""

	switch {
	case hasAmount && (hasDebit || hasCredit):
		return fmt.Errorf("%w: amount column and debit/credit columns are mutually exclusive", ErrInvalidMapping)
	case !hasAmount && hasDebit != hasCredit:
		return fmt.Errorf("%w: debit and credit columns must be set together", ErrInvalidMapping)
	case !hasAmount && !hasDebit:
		return fmt.Errorf("%w: an amount column or a debit/credit pair is required", ErrInvalidMapping)
	}

	if m.SkipLines < 0 {
		return fmt.Errorf("%w: skip lines cannot be negative", ErrInvalidMapping)
	}

	if !m.HasHeader {
		for _, col := range []string{m.DateColumn, m.DescriptionColumn, m.AmountColumn, m.DebitColumn, m.CreditColumn, m.CategoryColumn} {
			if col == "" {
				continue
			}
			if pos, err := strconv.Atoi(strings.TrimSpace(col)); err != nil || pos < 1 {
				return fmt.Errorf("%w: column %q must be a 1-based position when the file has no header", ErrInvalidMapping, col)
			}
		}
	}
	return nil
}

// WithDefaults fills the optional formatting fields left empty by a caller.
func (m ColumnMapping) WithDefaults() ColumnMapping {
	if m.DateFormat == "" {
		m.DateFormat = ISODateLayout
	}
	if m.Delimiter == 0 {
		m.Delimiter = ','
	}
	return m
}

type mappingJSON ColumnMapping

// MarshalJSON writes the delimiter as text, e.g. ";".
func (m ColumnMapping) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		mappingJSON
		Delimiter string `json:"delimiter"`
	}{mappingJSON: mappingJSON(m), Delimiter: delimiterText(m.Delimiter)})
}

// UnmarshalJSON accepts the delimiter as a character, a name or a code point.
// has_header defaults to true when absent.
func (m *ColumnMapping) UnmarshalJSON(data []byte) error {
	aux := struct {
		*mappingJSON
		Delimiter json.RawMessage `json:"delimiter"`
		HasHeader *bool           `json:"has_header"`
	}{mappingJSON: (*mappingJSON)(m)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	m.HasHeader = aux.HasHeader == nil || *aux.HasHeader
	m.Delimiter = 0
	if len(aux.Delimiter) == 0 || string(aux.Delimiter) == "null" {
		return nil
	}

	var code int32
	if err := json.Unmarshal(aux.Delimiter, &code); err == nil {
		m.Delimiter = code
		return nil
	}
	var text string
	if err := json.Unmarshal(aux.Delimiter, &text); err != nil {
		return fmt.Errorf("%w: delimiter must be a string or a code point", ErrInvalidMapping)
	}
	if text == "" {
		return nil
	}
	r, err := ParseDelimiter(text)
	if err != nil {
		return err
	}
	m.Delimiter = r
	return nil
}

func delimiterText(d rune) string {
	if d == 0 {
		return ""
	}
	return string(d)
}
