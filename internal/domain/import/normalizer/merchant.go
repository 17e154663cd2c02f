package normalizer

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	asteriskRun     = regexp.MustCompile(`\*+`)
	trailingTermNum = regexp.MustCompile(`\s*#\s*\d+\s*$`)
	referenceNum    = regexp.MustCompile(`\d{4,}`)
	trailingDigits  = regexp.MustCompile(`(\s+\d+)+\s*$`)
)

// NormalizeMerchant canonicalizes a statement description into a merchant name:
//
//	"STARBUCKS #4521"          -> "Starbucks"
//	"SQ *BLUE BOTTLE 12345678" -> "Sq Blue Bottle"
//	"AMAZON MKTPLACE  PMTS 7"  -> "Amazon Mktplace Pmts"
//
// The result is stable: NormalizeMerchant(NormalizeMerchant(s)) == NormalizeMerchant(s).
func NormalizeMerchant(description string) string {
	s := collapseSpaces(description)

	// Removing one token can expose another (e.g. "ACME 12 #3"), so repeat until nothing changes.
	for {
		next := asteriskRun.ReplaceAllString(s, " ")
		next = trailingTermNum.ReplaceAllString(next, "")
		next = referenceNum.ReplaceAllString(next, "")
		next = trailingDigits.ReplaceAllString(next, "")
		next = collapseSpaces(next)
		if next == s {
			break
		}
		s = next
	}

	return titleCase(s)
}

// CleanDescription trims and collapses whitespace, keeping the original wording for memos.
func CleanDescription(description string) string {
	return collapseSpaces(description)
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// titleCase upper-cases the first letter of each word and lower-cases the rest.
func titleCase(s string) string {
	words := strings.Fields(s)
	for i, word := range words {
		r, size := utf8.DecodeRuneInString(word)
		words[i] = string(unicode.ToUpper(r)) + strings.ToLower(word[size:])
	}
	return strings.Join(words, " ")
}
