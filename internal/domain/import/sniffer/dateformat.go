package sniffer

import (
	"strings"

	"github.com/FACorreiaa/statement-import/internal/domain/import/model"
	"github.com/FACorreiaa/statement-import/internal/domain/import/normalizer"
)

// DateLayouts are tried in this order; ISO first, then regional variants.
// Month-first wins over day-first when both parse, unless the file is known to be European.
var DateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"02/01/2006",
	"2006/01/02",
	"02.01.2006",
	"02-01-2006",
	"01-02-2006",
	"1/2/2006",
	"2/1/2006",
	"01/02/06",
	"02/01/06",
	"2 Jan 2006",
	"Jan 2, 2006",
	"2-Jan-2006",
	"20060102",
}

// MinDateSuccessRate is the share of samples a layout must parse to be accepted.
const MinDateSuccessRate = 0.8

// dayFirst maps month-first layouts to their day-first twin.
var dayFirst = map[string]string{
	"01/02/2006": "02/01/2006",
	"1/2/2006":   "2/1/2006",
	"01/02/06":   "02/01/06",
	"01-02-2006": "02-01-2006",
}

// DetectDateFormat returns the first layout that parses at least 80% of the
// non-empty samples, or ISO when none does.
func DetectDateFormat(samples []string) string {
	values := make([]string, 0, len(samples))
	for _, s := range samples {
		if s = strings.TrimSpace(s); s != "" {
			values = append(values, s)
		}
	}
	if len(values) == 0 {
		return model.ISODateLayout
	}

	for _, layout := range DateLayouts {
		if successRate(values, layout) >= MinDateSuccessRate {
			return layout
		}
	}
	return model.ISODateLayout
}

func successRate(values []string, layout string) float64 {
	ok := 0
	for _, v := range values {
		if _, err := normalizer.ParseDate(v, layout); err == nil {
			ok++
		}
	}
	return float64(ok) / float64(len(values))
}

// preferDayFirst swaps an ambiguous month-first layout for its day-first twin
// when the twin also clears the threshold.
func preferDayFirst(layout string, samples []string) string {
	twin, ok := dayFirst[layout]
	if !ok {
		return layout
	}
	values := make([]string, 0, len(samples))
	for _, s := range samples {
		if s = strings.TrimSpace(s); s != "" {
			values = append(values, s)
		}
	}
	if len(values) > 0 && successRate(values, twin) >= MinDateSuccessRate {
		return twin
	}
	return layout
}

func looksLikeDate(s string) bool {
	for _, layout := range DateLayouts {
		if _, err := normalizer.ParseDate(s, layout); err == nil {
			return true
		}
	}
	return false
}
