package sniffer

import (
	_ "embed"
	"fmt"
	"slices"
	"strings"

	"github.com/gocarina/gocsv"

	"github.com/FACorreiaa/statement-import/internal/domain/import/model"
)

//go:embed presets.csv
var presetsCSV []byte

// BankPreset is a known export layout for one bank.
type BankPreset struct {
	Name     string              `json:"name"`
	Bank     string              `json:"bank"`
	Currency string              `json:"currency"`
	Mapping  model.ColumnMapping `json:"mapping"`
}

type presetRow struct {
	Name           string `csv:"name"`
	Bank           string `csv:"bank"`
	DateColumn     string `csv:"date_column"`
	DescColumn     string `csv:"description_column"`
	AmountColumn   string `csv:"amount_column"`
	DebitColumn    string `csv:"debit_column"`
	CreditColumn   string `csv:"credit_column"`
	CategoryColumn string `csv:"category_column"`
	DateFormat     string `csv:"date_format"`
	Delimiter      string `csv:"delimiter"`
	HasHeader      bool   `csv:"has_header"`
	SkipLines      int    `csv:"skip_lines"`
	EuropeanFormat bool   `csv:"european_format"`
	Currency       string `csv:"currency"`
}

// presets is built once from the embedded table and never modified.
var presets = mustLoadPresets(presetsCSV)

func mustLoadPresets(data []byte) map[string]BankPreset {
	out, err := loadPresets(data)
	if err != nil {
		panic(fmt.Sprintf("sniffer: load presets: %v", err))
	}
	return out
}

func loadPresets(data []byte) (map[string]BankPreset, error) {
	var rows []*presetRow
	if err := gocsv.UnmarshalBytes(data, &rows); err != nil {
		return nil, err
	}

	out := make(map[string]BankPreset, len(rows))
	for _, r := range rows {
		delim, err := model.ParseDelimiter(r.Delimiter)
		if err != nil {
			return nil, fmt.Errorf("preset %s: %w", r.Name, err)
		}
		m := model.ColumnMapping{
			DateColumn:        r.DateColumn,
			DescriptionColumn: r.DescColumn,
			AmountColumn:      r.AmountColumn,
			DebitColumn:       r.DebitColumn,
			CreditColumn:      r.CreditColumn,
			CategoryColumn:    r.CategoryColumn,
			DateFormat:        r.DateFormat,
			Delimiter:         delim,
			HasHeader:         r.HasHeader,
			SkipLines:         r.SkipLines,
			EuropeanFormat:    r.EuropeanFormat,
		}
		if err := m.Validate(); err != nil {
			return nil, fmt.Errorf("preset %s: %w", r.Name, err)
		}
		out[strings.ToLower(r.Name)] = BankPreset{
			Name:     r.Name,
			Bank:     r.Bank,
			Currency: r.Currency,
			Mapping:  m,
		}
	}
	return out, nil
}

// Preset looks up a bank preset by name, case-insensitively.
func Preset(name string) (BankPreset, bool) {
	p, ok := presets[strings.ToLower(strings.TrimSpace(name))]
	return p, ok
}

// PresetNames lists the available presets in alphabetical order.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Presets returns every preset in name order.
func Presets() []BankPreset {
	names := PresetNames()
	out := make([]BankPreset, len(names))
	for i, n := range names {
		out[i] = presets[n]
	}
	return out
}
