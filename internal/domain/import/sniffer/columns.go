package sniffer

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/FACorreiaa/statement-import/internal/domain/import/model"
)

// Column roles in the order they claim headers.
const (
	RoleDate        = "date"
	RoleDescription = "description"
	RoleAmount      = "amount"
	RoleDebit       = "debit"
	RoleCredit      = "credit"
	RoleCategory    = "category"
)

type rolePatterns struct {
	role     string
	patterns []*regexp.Regexp
}

// Header vocabulary seen in English, Portuguese, Spanish, German and Dutch bank exports.
// Within a role, earlier patterns take precedence over later ones.
var columnRoles = []rolePatterns{
	{RoleDate, compileAll(
		`^date$`,
		`^(transaction|trans|txn)[ ._-]?date$`,
		`^(posting|posted|post)[ ._-]?date$`,
		`^(value|booking|book)[ ._-]?date$`,
		`^(started|completed)[ ._-]?date$`,
		`^data$`,
		`^data[ ._-]?(mov\.?|movimento|lan[cç]amento|opera[cç][aã]o|valor)$`,
		`^fecha([ ._-]?(operaci[oó]n|valor))?$`,
		`^(buchungstag|datum)$`,
		`^.*\bdate\b.*$`,
	)},
	{RoleDescription, compileAll(
		`^description$`,
		`^(transaction|trans)[ ._-]?description$`,
		`^desc\.?$`,
		`^details?$`,
		`^(memo|narrative|payee|name)$`,
		`^merchant([ ._-]?name)?$`,
		`^descri[cç][aã]o$`,
		`^descritivo$`,
		`^(descripci[oó]n|concepto)$`,
		`^(omschrijving|verwendungszweck|buchungstext)$`,
		`^reference$`,
		`^.*\bdescription\b.*$`,
	)},
	{RoleAmount, compileAll(
		`^amount$`,
		`^(transaction|trans)[ ._-]?amount$`,
		`^amount[ ._-]*(\(\w+\)|[a-z]{3})$`,
		`^(value|valor|montante|importe|betrag|bedrag)$`,
		`^(valor|montante)[ ._-]*(\(\w+\)|[a-z]{3})$`,
	)},
	{RoleDebit, compileAll(
		`^debits?$`,
		`^debit[ ._-]?amount$`,
		`^(money|paid)[ ._-]?out$`,
		`^withdrawals?$`,
		`^d[eé]bito$`,
		`^(cargo|soll)$`,
		`^.*\bdebit\b.*$`,
	)},
	{RoleCredit, compileAll(
		`^credits?$`,
		`^credit[ ._-]?amount$`,
		`^(money|paid)[ ._-]?in$`,
		`^deposits?$`,
		`^cr[eé]dito$`,
		`^(abono|haben)$`,
		`^.*\bcredit\b.*$`,
	)},
	{RoleCategory, compileAll(
		`^categor(y|ia|ía)$`,
		`^(transaction[ ._-]?)?category$`,
		`^sub[ ._-]?category$`,
		`^.*\bcategor(y|ia|ía)\b.*$`,
	)},
}

func compileAll(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(`(?i)` + e)
	}
	return out
}

// ColumnSuggestions holds the header index claimed by each role, -1 when unclaimed.
type ColumnSuggestions struct {
	DateCol       int  `json:"date_col"`
	DescCol       int  `json:"desc_col"`
	AmountCol     int  `json:"amount_col"`
	DebitCol      int  `json:"debit_col"`
	CreditCol     int  `json:"credit_col"`
	CategoryCol   int  `json:"category_col"`
	IsDoubleEntry bool `json:"is_double_entry"`
}

// Matched returns how many roles found a column.
func (s *ColumnSuggestions) Matched() int {
	n := 0
	for _, idx := range []int{s.DateCol, s.DescCol, s.AmountCol, s.DebitCol, s.CreditCol, s.CategoryCol} {
		if idx >= 0 {
			n++
		}
	}
	return n
}

// SuggestColumns assigns header indices to roles. For each role the patterns are
// tried in priority order and the first unclaimed header matching a pattern wins.
func SuggestColumns(headers []string) *ColumnSuggestions {
	s := &ColumnSuggestions{
		DateCol:     -1,
		DescCol:     -1,
		AmountCol:   -1,
		DebitCol:    -1,
		CreditCol:   -1,
		CategoryCol: -1,
	}

	normalized := make([]string, len(headers))
	for i, h := range headers {
		normalized[i] = normalizeHeader(h)
	}
	claimed := make(map[int]bool, len(headers))

	for _, rp := range columnRoles {
		idx := matchRole(rp.patterns, normalized, claimed)
		if idx < 0 {
			continue
		}
		claimed[idx] = true

		switch rp.role {
		case RoleDate:
			s.DateCol = idx
		case RoleDescription:
			s.DescCol = idx
		case RoleAmount:
			s.AmountCol = idx
		case RoleDebit:
			s.DebitCol = idx
		case RoleCredit:
			s.CreditCol = idx
		case RoleCategory:
			s.CategoryCol = idx
		}
	}

	s.IsDoubleEntry = s.AmountCol == -1 && s.DebitCol != -1 && s.CreditCol != -1
	return s
}

func matchRole(patterns []*regexp.Regexp, headers []string, claimed map[int]bool) int {
	for _, re := range patterns {
		for i, h := range headers {
			if claimed[i] || h == "" {
				continue
			}
			if re.MatchString(h) {
				return i
			}
		}
	}
	return -1
}

func normalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\uFEFF")
	return strings.Join(strings.Fields(h), " ")
}

// InferMapping builds a ColumnMapping from header names. Date and description are
// mandatory; a single amount column is preferred over a debit/credit pair.
// The date format defaults to ISO and the delimiter to comma; Detect refines both.
func InferMapping(headers []string) (model.ColumnMapping, error) {
	s := SuggestColumns(headers)
	return s.mapping(headers)
}

func (s *ColumnSuggestions) mapping(headers []string) (model.ColumnMapping, error) {
	if s.DateCol < 0 {
		return model.ColumnMapping{}, ErrNoDateColumn
	}
	if s.DescCol < 0 {
		return model.ColumnMapping{}, ErrNoDescriptionColumn
	}

	name := func(idx int) string {
		if idx < 0 {
			return ""
		}
		return normalizeHeader(headers[idx])
	}

	m := model.ColumnMapping{
		DateColumn:        name(s.DateCol),
		DescriptionColumn: name(s.DescCol),
		CategoryColumn:    name(s.CategoryCol),
		DateFormat:        model.ISODateLayout,
		Delimiter:         ',',
		HasHeader:         true,
	}

	switch {
	case s.AmountCol >= 0:
		m.AmountColumn = name(s.AmountCol)
	case s.IsDoubleEntry:
		m.DebitColumn = name(s.DebitCol)
		m.CreditColumn = name(s.CreditCol)
	default:
		return model.ColumnMapping{}, ErrNoAmountColumn
	}

	if err := m.Validate(); err != nil {
		return model.ColumnMapping{}, fmt.Errorf("inferred mapping: %w", err)
	}
	return m, nil
}

// PositionalHeaders names the columns of a headerless file "1", "2", ...
func PositionalHeaders(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = strconv.Itoa(i + 1)
	}
	return out
}
