package sniffer

import (
	"strings"
	"unicode"

	"github.com/FACorreiaa/statement-import/internal/domain/import/normalizer"
)

// Delimiters are counted in this order; a later candidate must beat an earlier one outright.
var Delimiters = []rune{',', ';', '\t', '|'}

const delimiterSampleLines = 5

// DetectDelimiter picks the candidate with the highest occurrence count, outside
// quoted fields, across the first five non-empty lines. Empty input yields a comma.
func DetectDelimiter(text string) rune {
	lines := make([]string, 0, delimiterSampleLines)
	for i, line := range strings.Split(text, "\n") {
		if line = cleanLine(line, i == 0); line != "" {
			lines = append(lines, line)
		}
		if len(lines) == delimiterSampleLines {
			break
		}
	}

	best, bestCount := ',', 0
	for _, d := range Delimiters {
		count := 0
		for _, line := range lines {
			count += countUnquoted(line, d)
		}
		if count > bestCount {
			best, bestCount = d, count
		}
	}
	return best
}

func countUnquoted(line string, d rune) int {
	count := 0
	inQuotes := false
	for _, r := range line {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case r == d && !inQuotes:
			count++
		}
	}
	return count
}

func cleanLine(line string, firstLine bool) string {
	line = strings.TrimRight(line, "\r")
	if firstLine {
		line = strings.TrimPrefix(line, "\uFEFF")
	}
	return strings.TrimSpace(line)
}

// LooksLikeHeader reports whether a row is plausibly a header: at least one cell
// with a letter and no cell that parses as a date or a monetary amount.
func LooksLikeHeader(row []string) bool {
	hasAlpha := false
	for _, cell := range row {
		c := strings.TrimSpace(cell)
		if c == "" {
			continue
		}
		if looksLikeDate(c) || looksLikeAmount(c) {
			return false
		}
		if strings.IndexFunc(c, unicode.IsLetter) >= 0 {
			hasAlpha = true
		}
	}
	return hasAlpha
}

func looksLikeAmount(s string) bool {
	if _, err := normalizer.ParseAmount(s, false); err == nil {
		return true
	}
	_, err := normalizer.ParseAmount(s, true)
	return err == nil
}
