// Package fixtures generates realistic bank statements and transactions for tests and benchmarks.
package fixtures

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"

	"github.com/FACorreiaa/statement-import/internal/domain/import/model"
	"github.com/FACorreiaa/statement-import/internal/domain/import/normalizer"
	"github.com/FACorreiaa/statement-import/pkg/money"
)

var merchants = []string{
	"STARBUCKS", "AMAZON MKTPLACE", "UBER *TRIP", "NETFLIX.COM", "WHOLE FOODS",
	"SHELL OIL", "SPOTIFY", "PINGO DOCE", "CONTINENTE", "LIDL", "APPLE.COM/BILL",
}

// Generator produces statement data from a gofakeit source.
type Generator struct {
	faker *gofakeit.Faker
	start time.Time
}

// New creates a generator with a random seed.
func New() *Generator {
	return NewWithSeed(0)
}

// NewWithSeed creates a generator with a specific seed for reproducibility.
func NewWithSeed(seed int64) *Generator {
	return &Generator{
		faker: gofakeit.New(seed),
		start: time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
	}
}

// Row is one generated statement line.
type Row struct {
	Date        time.Time
	Description string
	AmountMinor int64
}

// Description returns a raw bank description with the noise real exports carry.
func (g *Generator) Description() string {
	base := g.faker.RandomString(merchants)
	switch g.faker.Number(0, 3) {
	case 0:
		return fmt.Sprintf("%s #%d", base, g.faker.Number(100, 9999))
	case 1:
		return fmt.Sprintf("%s %d", base, g.faker.Number(10000000, 99999999))
	case 2:
		return "POS " + base
	default:
		return base
	}
}

// Row generates a single non-zero row within the first year after the generator's start date.
func (g *Generator) Row() Row {
	amount := int64(g.faker.Number(1, 50000))
	if g.faker.Bool() {
		amount = -amount
	}
	return Row{
		Date:        g.start.AddDate(0, 0, g.faker.Number(0, 364)),
		Description: g.Description(),
		AmountMinor: amount,
	}
}

// Rows generates n rows.
func (g *Generator) Rows(n int) []Row {
	out := make([]Row, n)
	for i := range out {
		out[i] = g.Row()
	}
	return out
}

// CSV renders rows as a "Date,Description,Amount" statement with ISO dates.
func CSV(rows []Row) []byte {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"Date", "Description", "Amount"})
	for _, r := range rows {
		_ = w.Write([]string{r.Date.Format(model.ISODateLayout), r.Description, normalizer.FormatMinorUnits(r.AmountMinor)})
	}
	w.Flush()
	return buf.Bytes()
}

// EuropeanCSV renders rows with semicolons, day-first dates and decimal commas,
// split into Débito/Crédito columns.
func EuropeanCSV(rows []Row) []byte {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = ';'
	_ = w.Write([]string{"Data mov.", "Descrição", "Débito", "Crédito"})
	for _, r := range rows {
		text := strings.Replace(normalizer.FormatMinorUnits(abs(r.AmountMinor)), ".", ",", 1)
		debit, credit := "", text
		if r.AmountMinor < 0 {
			debit, credit = text, ""
		}
		_ = w.Write([]string{r.Date.Format("02-01-2006"), r.Description, debit, credit})
	}
	w.Flush()
	return buf.Bytes()
}

// Existing converts rows into stored transactions, as the existing-records source returns them.
func Existing(rows []Row) []model.ExistingTransaction {
	out := make([]model.ExistingTransaction, len(rows))
	for i, r := range rows {
		out[i] = model.ExistingTransaction{
			ID:          uuid.New(),
			Date:        r.Date,
			AmountMinor: r.AmountMinor,
			Merchant:    normalizer.NormalizeMerchant(r.Description),
		}
	}
	return out
}

// Parsed converts rows into parsed transactions in the given currency.
func Parsed(rows []Row, currency string) []model.ParsedTransaction {
	out := make([]model.ParsedTransaction, len(rows))
	for i, r := range rows {
		out[i] = model.ParsedTransaction{
			ID:             uuid.New(),
			Date:           r.Date,
			Amount:         money.New(r.AmountMinor, currency),
			Merchant:       normalizer.NormalizeMerchant(r.Description),
			RawDescription: r.Description,
			Row:            i + 1,
		}
	}
	return out
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
