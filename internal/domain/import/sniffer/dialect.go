package sniffer

import (
	"strings"

	"github.com/FACorreiaa/statement-import/pkg/money"
)

// RegionalDialect represents inferred regional formatting for amounts and dates
type RegionalDialect struct {
	DecimalSeparator   rune    `json:"decimal_separator"`   // '.' (US) or ',' (EU)
	ThousandsSeparator rune    `json:"thousands_separator"` // ',' (US) or '.' (EU)
	DayFirst           bool    `json:"day_first"`           // a sampled date had a day > 12 in first position
	CurrencyHint       string  `json:"currency_hint,omitempty"`
	Confidence         float64 `json:"confidence"` // 0.0-1.0
	IsEuropeanFormat   bool    `json:"is_european_format"`
}

// ProbeDialect analyzes sample rows to infer the regional "dialect" of the file.
// It examines the amount column for decimal separators and the date column for
// day-first dates. When amounts give no verdict, a semicolon delimiter tips the
// file to European formatting.
func ProbeDialect(sampleRows [][]string, amountIdx, dateIdx int, delimiter rune) *RegionalDialect {
	dialect := &RegionalDialect{
		DecimalSeparator:   '.',
		ThousandsSeparator: ',',
		Confidence:         0.5,
	}

	europeanHints := 0
	usHints := 0

	for _, row := range sampleRows {
		if amountIdx >= 0 && amountIdx < len(row) {
			switch hint := analyzeAmountFormat(row[amountIdx]); {
			case hint > 0:
				europeanHints++
			case hint < 0:
				usHints++
			}
		}

		if dateIdx >= 0 && dateIdx < len(row) && analyzeDateFormat(row[dateIdx]) {
			dialect.DayFirst = true
		}

		for _, cell := range row {
			switch {
			case strings.Contains(cell, "€") || strings.Contains(cell, money.EUR):
				dialect.CurrencyHint = money.EUR
				europeanHints++
			case strings.Contains(cell, "R$") || strings.Contains(cell, money.BRL):
				dialect.CurrencyHint = money.BRL
				europeanHints++
			case strings.Contains(cell, "£") || strings.Contains(cell, money.GBP):
				dialect.CurrencyHint = money.GBP
				usHints++
			case strings.Contains(cell, "$"):
				if dialect.CurrencyHint == "" {
					dialect.CurrencyHint = money.USD
				}
				usHints++
			}
		}
	}

	switch {
	case europeanHints > usHints:
		dialect.setEuropean()
	case usHints > europeanHints:
		// defaults already describe the US convention
	case delimiter == ';':
		dialect.setEuropean()
	}

	if total := europeanHints + usHints; total > 0 {
		winning := max(europeanHints, usHints)
		dialect.Confidence = float64(winning) / float64(total)
	}
	return dialect
}

func (d *RegionalDialect) setEuropean() {
	d.DecimalSeparator = ','
	d.ThousandsSeparator = '.'
	d.IsEuropeanFormat = true
}

// analyzeAmountFormat returns: >0 for European, <0 for US, 0 for ambiguous
func analyzeAmountFormat(val string) int {
	cleaned := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' || r == ',' || r == '.' {
			return r
		}
		return -1
	}, val)
	if cleaned == "" {
		return 0
	}

	lastComma := strings.LastIndex(cleaned, ",")
	lastDot := strings.LastIndex(cleaned, ".")

	switch {
	case lastComma >= 0 && lastDot >= 0:
		// the rightmost separator is the decimal one
		if lastComma > lastDot {
			return 1
		}
		return -1
	case lastComma >= 0:
		if len(cleaned)-lastComma-1 <= 2 {
			return 1
		}
		return 0 // "1,234" reads as a US thousands separator too
	case lastDot >= 0:
		if len(cleaned)-lastDot-1 <= 2 {
			return -1
		}
		return 0
	}
	return 0
}

// analyzeDateFormat returns true if the date is definitely DD-first (day > 12)
func analyzeDateFormat(dateVal string) bool {
	parts := strings.FieldsFunc(dateVal, func(r rune) bool {
		return r == '/' || r == '-' || r == '.'
	})
	if len(parts) < 2 {
		return false
	}

	day := 0
	for _, c := range strings.TrimSpace(parts[0]) {
		if c < '0' || c > '9' {
			break
		}
		day = day*10 + int(c-'0')
	}
	return day > 12 && day <= 31
}
