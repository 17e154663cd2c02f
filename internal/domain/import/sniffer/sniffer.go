// Package sniffer provides automatic detection of CSV/TSV file formats.
// It identifies delimiters, header rows, column roles and date layouts, and
// generates header fingerprints for bank recognition.
package sniffer

import (
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"io"
	"strings"
	"unicode"

	"github.com/FACorreiaa/statement-import/internal/domain/import/model"
)

var (
	ErrEmptyFile           = errors.New("file is empty")
	ErrNoHeadersFound      = errors.New("could not find data headers")
	ErrNoDateColumn        = errors.New("no date column found")
	ErrNoDescriptionColumn = errors.New("no description column found")
	ErrNoAmountColumn      = errors.New("no amount or debit/credit columns found")
)

const (
	// maxHeaderSearch bounds how many leading records may be bank metadata.
	maxHeaderSearch = 20
	sampleRowCount  = 5
	dateSampleCount = 20
)

// Detection is everything inferred about a statement before extraction.
type Detection struct {
	Mapping     model.ColumnMapping `json:"mapping"`
	Headers     []string            `json:"headers"`
	Fingerprint string              `json:"fingerprint"` // SHA256 of normalized headers
	SampleRows  [][]string          `json:"sample_rows"`
	Dialect     *RegionalDialect    `json:"dialect"`
	Suggestions *ColumnSuggestions  `json:"suggestions"`
}

// DetectOptions allows callers to override header row or delimiter detection.
type DetectOptions struct {
	// HeaderRowIndex is a 0-based record index for the header row. Set to -1 to auto-detect.
	HeaderRowIndex int
	// Delimiter overrides the detected delimiter when non-zero.
	Delimiter rune
}

// Detect analyzes decoded delimited text and infers a full ColumnMapping.
func Detect(data []byte) (*Detection, error) {
	return DetectWithOptions(data, nil)
}

// DetectWithOptions analyzes delimited text with optional overrides.
func DetectWithOptions(data []byte, opts *DetectOptions) (*Detection, error) {
	text := strings.TrimPrefix(string(data), "\uFEFF")
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyFile
	}

	delimiter := DetectDelimiter(text)
	if opts != nil && opts.Delimiter != 0 {
		delimiter = opts.Delimiter
	}

	records := readRecords(text, delimiter)
	if opts != nil && opts.HeaderRowIndex >= 0 {
		return detectAt(records, delimiter, opts.HeaderRowIndex)
	}
	return DetectRecords(records, delimiter)
}

// DetectRecords infers the mapping from already split records, e.g. a spreadsheet.
// The header is the first of the leading records that looks like a header and
// yields a usable mapping. When no leading record looks like a header at all,
// columns are inferred from their values and addressed by position.
func DetectRecords(records [][]string, delimiter rune) (*Detection, error) {
	if isBlank(records) {
		return nil, ErrEmptyFile
	}
	if delimiter == 0 {
		delimiter = ','
	}

	var (
		candidateErr  error
		candidateHits = -1
	)
	limit := min(len(records), maxHeaderSearch)
	for i := 0; i < limit; i++ {
		row := records[i]
		if nonBlankCells(row) < 2 || !LooksLikeHeader(row) {
			continue
		}
		s := SuggestColumns(row)
		if _, err := s.mapping(row); err != nil {
			if s.Matched() > candidateHits {
				candidateErr, candidateHits = err, s.Matched()
			}
			continue
		}
		return detectAt(records, delimiter, i)
	}

	if candidateErr != nil {
		return nil, candidateErr
	}
	return detectHeaderless(records, delimiter)
}

func detectAt(records [][]string, delimiter rune, headerIdx int) (*Detection, error) {
	if headerIdx >= len(records) {
		return nil, ErrNoHeadersFound
	}

	headers := make([]string, len(records[headerIdx]))
	for i, h := range records[headerIdx] {
		headers[i] = normalizeHeader(h)
	}

	suggestions := SuggestColumns(headers)
	mapping, err := suggestions.mapping(headers)
	if err != nil {
		return nil, err
	}
	mapping.Delimiter = delimiter
	mapping.SkipLines = headerIdx

	return finish(mapping, headers, suggestions, records[headerIdx+1:]), nil
}

// detectHeaderless assigns roles by content: the first column whose values are
// dates, the first remaining column whose values are amounts, and the remaining
// column carrying the most letters as description.
func detectHeaderless(records [][]string, delimiter rune) (*Detection, error) {
	rows := make([][]string, 0, maxHeaderSearch)
	width := 0
	for _, r := range records {
		if nonBlankCells(r) == 0 {
			continue
		}
		rows = append(rows, r)
		width = max(width, len(r))
		if len(rows) == maxHeaderSearch {
			break
		}
	}

	s := &ColumnSuggestions{DateCol: -1, DescCol: -1, AmountCol: -1, DebitCol: -1, CreditCol: -1, CategoryCol: -1}
	for col := 0; col < width; col++ {
		values := column(rows, col)
		isDate := shareOf(values, looksLikeDate) >= MinDateSuccessRate
		switch {
		case isDate && s.DateCol < 0:
			s.DateCol = col
		case !isDate && s.AmountCol < 0 && shareOf(values, looksLikeAmount) >= MinDateSuccessRate:
			s.AmountCol = col
		}
	}

	bestLetters := 0
	for col := 0; col < width; col++ {
		if col == s.DateCol || col == s.AmountCol {
			continue
		}
		letters := 0
		for _, v := range column(rows, col) {
			letters += countLetters(v)
		}
		if letters > bestLetters {
			s.DescCol, bestLetters = col, letters
		}
	}

	if s.DateCol < 0 || s.DescCol < 0 || s.AmountCol < 0 {
		return nil, ErrNoHeadersFound
	}

	headers := PositionalHeaders(width)
	mapping, err := s.mapping(headers)
	if err != nil {
		return nil, err
	}
	mapping.HasHeader = false
	mapping.Delimiter = delimiter

	return finish(mapping, headers, s, records), nil
}

func finish(mapping model.ColumnMapping, headers []string, s *ColumnSuggestions, dataRows [][]string) *Detection {
	samples := make([][]string, 0, sampleRowCount)
	dates := make([]string, 0, dateSampleCount)
	for _, row := range dataRows {
		if nonBlankCells(row) == 0 {
			continue
		}
		if len(samples) < sampleRowCount {
			samples = append(samples, row)
		}
		if s.DateCol < len(row) && len(dates) < dateSampleCount {
			dates = append(dates, row[s.DateCol])
		}
	}

	amountIdx := s.AmountCol
	if amountIdx < 0 {
		amountIdx = s.DebitCol
	}
	dialect := ProbeDialect(samples, amountIdx, s.DateCol, mapping.Delimiter)

	mapping.EuropeanFormat = dialect.IsEuropeanFormat
	mapping.DateFormat = DetectDateFormat(dates)
	if dialect.IsEuropeanFormat || dialect.DayFirst {
		mapping.DateFormat = preferDayFirst(mapping.DateFormat, dates)
	}

	return &Detection{
		Mapping:     mapping,
		Headers:     headers,
		Fingerprint: HeaderFingerprint(headers),
		SampleRows:  samples,
		Dialect:     dialect,
		Suggestions: s,
	}
}

// HeaderFingerprint creates a stable hash from header names so a saved mapping
// can be recognised the next time the same bank export is imported.
func HeaderFingerprint(headers []string) string {
	var normalized []string
	for _, h := range headers {
		clean := strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				return unicode.ToLower(r)
			}
			return -1
		}, h)
		if clean != "" {
			normalized = append(normalized, clean)
		}
	}

	hash := sha256.Sum256([]byte(strings.Join(normalized, "|")))
	return hex.EncodeToString(hash[:])
}

// readRecords keeps a nil entry for records the csv reader rejects, so indices
// line up with the extractor's view of the same text.
func readRecords(text string, delimiter rune) [][]string {
	reader := csv.NewReader(strings.NewReader(text))
	reader.Comma = delimiter
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	var records [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			records = append(records, nil)
			continue
		}
		records = append(records, record)
	}
	return records
}

func column(rows [][]string, col int) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		if col < len(r) {
			if v := strings.TrimSpace(r[col]); v != "" {
				out = append(out, v)
			}
		}
	}
	return out
}

func shareOf(values []string, pred func(string) bool) float64 {
	if len(values) == 0 {
		return 0
	}
	n := 0
	for _, v := range values {
		if pred(v) {
			n++
		}
	}
	return float64(n) / float64(len(values))
}

func countLetters(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			n++
		}
	}
	return n
}

func nonBlankCells(row []string) int {
	n := 0
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			n++
		}
	}
	return n
}

func isBlank(records [][]string) bool {
	for _, r := range records {
		if nonBlankCells(r) > 0 {
			return false
		}
	}
	return true
}
