package parser

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/statement-import/internal/domain/import/model"
	"github.com/FACorreiaa/statement-import/internal/domain/import/normalizer"
	"github.com/FACorreiaa/statement-import/pkg/money"
)

var (
	ErrHeaderNotFound  = errors.New("header row not found")
	ErrUnknownCurrency = errors.New("unknown currency")
)

// headerSearchWindow is how far past SkipLines the header row may sit.
const headerSearchWindow = 20

// Mode selects what happens to rows that fail extraction.
type Mode int

const (
	// ModeReporting records an ImportError for every failed row.
	ModeReporting Mode = iota
	// ModeSilent drops failed rows without a trace.
	ModeSilent
)

func (m Mode) String() string {
	if m == ModeSilent {
		return "silent"
	}
	return "reporting"
}

// RowResult is one of RowParsed, RowSkipped or RowFailed.
type RowResult interface {
	isRowResult()
}

type RowParsed struct {
	Transaction model.ParsedTransaction
}

// RowSkipped is a row that carries no transaction, e.g. a zero amount.
type RowSkipped struct {
	Row    int
	Reason string
}

type RowFailed struct {
	Error model.ImportError
}

func (RowParsed) isRowResult()  {}
func (RowSkipped) isRowResult() {}
func (RowFailed) isRowResult()  {}

// ColumnIndex holds field positions for each mapped column, -1 when absent.
type ColumnIndex struct {
	Date        int
	Description int
	Amount      int
	Debit       int
	Credit      int
	Category    int
}

// IndexColumns resolves the mapping's column names against headers.
// Names are matched case-insensitively; a numeric name is a 1-based position.
func IndexColumns(headers []string, m model.ColumnMapping) ColumnIndex {
	lookup := make(map[string]int, len(headers))
	for i, h := range headers {
		key := headerKey(h)
		if _, seen := lookup[key]; !seen {
			lookup[key] = i
		}
	}

	find := func(name string) int {
		if strings.TrimSpace(name) == "" {
			return -1
		}
		if i, ok := lookup[headerKey(name)]; ok {
			return i
		}
		if pos, err := strconv.Atoi(strings.TrimSpace(name)); err == nil && pos >= 1 {
			return pos - 1
		}
		return -1
	}

	return ColumnIndex{
		Date:        find(m.DateColumn),
		Description: find(m.DescriptionColumn),
		Amount:      find(m.AmountColumn),
		Debit:       find(m.DebitColumn),
		Credit:      find(m.CreditColumn),
		Category:    find(m.CategoryColumn),
	}
}

func headerKey(h string) string {
	h = strings.TrimPrefix(h, "\uFEFF")
	return strings.ToLower(strings.Join(strings.Fields(h), " "))
}

// LocateHeader finds the header record: the first record at or after SkipLines
// that names both the date and description columns.
func LocateHeader(records []Record, m model.ColumnMapping) (int, bool) {
	date, desc := headerKey(m.DateColumn), headerKey(m.DescriptionColumn)
	end := min(len(records), m.SkipLines+headerSearchWindow)
	for i := max(m.SkipLines, 0); i < end; i++ {
		var hasDate, hasDesc bool
		for _, f := range records[i].Fields {
			switch headerKey(f) {
			case date:
				hasDate = true
			case desc:
				hasDesc = true
			}
		}
		if hasDate && hasDesc {
			return i, true
		}
	}
	return 0, false
}

// ExtractRow converts one record into a transaction. row is the 1-based data row number.
func ExtractRow(fields []string, idx ColumnIndex, m model.ColumnMapping, currency string, row int) RowResult {
	fail := func(column, format string, args ...any) RowResult {
		raw := make([]string, len(fields))
		copy(raw, fields)
		return RowFailed{Error: model.ImportError{
			Row:     row,
			Column:  column,
			Message: fmt.Sprintf(format, args...),
			Raw:     raw,
		}}
	}
	cell := func(i int) (string, bool) {
		if i < 0 || i >= len(fields) {
			return "", false
		}
		return strings.TrimSpace(fields[i]), true
	}

	dateRaw, ok := cell(idx.Date)
	if !ok {
		return fail(m.DateColumn, "missing column")
	}
	if dateRaw == "" {
		return fail(m.DateColumn, "empty date")
	}
	date, err := normalizer.ParseDate(dateRaw, m.DateFormat)
	if err != nil {
		return fail(m.DateColumn, "invalid date %q", dateRaw)
	}

	descRaw, ok := cell(idx.Description)
	if !ok {
		return fail(m.DescriptionColumn, "missing column")
	}
	description := normalizer.CleanDescription(descRaw)
	if description == "" {
		return fail(m.DescriptionColumn, "empty description")
	}

	var minor int64
	if m.IsDoubleEntry() {
		debit, okDebit := cell(idx.Debit)
		credit, okCredit := cell(idx.Credit)
		if !okDebit && !okCredit {
			return fail(m.DebitColumn, "missing column")
		}
		minor, err = normalizer.NormalizeDebitCredit(debit, credit, m.EuropeanFormat)
		if err != nil {
			return fail(m.DebitColumn, "invalid amount: %v", err)
		}
	} else {
		amountRaw, ok := cell(idx.Amount)
		if !ok {
			return fail(m.AmountColumn, "missing column")
		}
		if amountRaw == "" {
			return fail(m.AmountColumn, "empty amount")
		}
		minor, err = normalizer.ParseAmount(amountRaw, m.EuropeanFormat)
		if err != nil {
			return fail(m.AmountColumn, "invalid amount %q", amountRaw)
		}
	}

	if minor == 0 {
		return RowSkipped{Row: row, Reason: "zero amount"}
	}

	amountColumn := m.AmountColumn
	if m.IsDoubleEntry() {
		amountColumn = m.DebitColumn
	}
	amount, err := money.NewFromDecimal(decimal.New(minor, -2), currency)
	if err != nil {
		return fail(amountColumn, "invalid amount: %v", err)
	}

	merchant := normalizer.NormalizeMerchant(description)
	if merchant == "" {
		merchant = description
	}

	category, _ := cell(idx.Category)

	return RowParsed{Transaction: model.ParsedTransaction{
		ID:             uuid.New(),
		Date:           date,
		Amount:         amount,
		Merchant:       merchant,
		RawDescription: description,
		Category:       normalizer.CleanDescription(category),
		Row:            row,
	}}
}

// Extraction is the outcome of extracting a whole file.
type Extraction struct {
	Headers      []string
	Transactions []model.ParsedTransaction
	Errors       []model.ImportError
	Skipped      int
	TotalRows    int
}

// Extract runs ExtractRow over every data record. Blank records and zero amounts
// are skipped; failures are reported or dropped according to mode.
func Extract(records []Record, m model.ColumnMapping, currency string, mode Mode) (*Extraction, error) {
	m = m.WithDefaults()
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if !money.IsKnownCurrency(currency) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCurrency, currency)
	}

	var (
		headers []string
		start   int
	)
	if m.HasHeader {
		h, ok := LocateHeader(records, m)
		if !ok {
			return nil, fmt.Errorf("%w: expected columns %q and %q", ErrHeaderNotFound, m.DateColumn, m.DescriptionColumn)
		}
		headers = records[h].Fields
		start = h + 1
	} else {
		width := 0
		for _, r := range records {
			width = max(width, len(r.Fields))
		}
		for i := 0; i < width; i++ {
			headers = append(headers, strconv.Itoa(i+1))
		}
		start = min(max(m.SkipLines, 0), len(records))
	}

	idx := IndexColumns(headers, m)
	out := &Extraction{
		Headers:      headers,
		Transactions: make([]model.ParsedTransaction, 0, len(records)-start),
	}

	row := 0
	for _, rec := range records[start:] {
		if rec.Err == nil && isBlankRow(rec.Fields) {
			continue
		}
		row++
		out.TotalRows++

		var result RowResult
		if rec.Err != nil {
			result = RowFailed{Error: model.ImportError{Row: row, Message: fmt.Sprintf("malformed row: %v", rec.Err)}}
		} else {
			result = ExtractRow(rec.Fields, idx, m, currency, row)
		}

		switch r := result.(type) {
		case RowParsed:
			out.Transactions = append(out.Transactions, r.Transaction)
		case RowSkipped:
			out.Skipped++
		case RowFailed:
			if mode == ModeReporting {
				out.Errors = append(out.Errors, r.Error)
			}
		}
	}
	return out, nil
}

func isBlankRow(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
