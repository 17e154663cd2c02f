// Package dedupe scores parsed transactions against stored ones and against
// earlier rows of the same batch.
package dedupe

import (
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/FACorreiaa/statement-import/internal/domain/import/model"
)

const (
	dateWeight     = 0.4
	amountWeight   = 0.4
	merchantWeight = 0.2
)

// Policy tunes fuzzy matching.
type Policy struct {
	// DateToleranceDays is the widest day gap that still earns date credit.
	DateToleranceDays int
	// Threshold is the minimum score reported as a duplicate.
	Threshold float64
}

// DefaultPolicy matches within three days at a 0.75 score.
func DefaultPolicy() Policy {
	return Policy{DateToleranceDays: 3, Threshold: 0.75}
}

// Detector finds probable duplicates. The zero value uses DefaultPolicy.
type Detector struct {
	policy Policy
}

// NewDetector creates a detector with the given policy.
// Negative tolerances are treated as zero.
func NewDetector(p Policy) *Detector {
	if p.DateToleranceDays < 0 {
		p.DateToleranceDays = 0
	}
	return &Detector{policy: p}
}

// Policy returns the detector's policy.
func (d *Detector) Policy() Policy {
	if d == nil || (d.policy == Policy{}) {
		return DefaultPolicy()
	}
	return d.policy
}

// Index is a prepared view of existing transactions for repeated checks.
type Index struct {
	records []model.ExistingTransaction
	exact   map[string]uuid.UUID
}

// NewIndex prepares existing transactions. On exact-key collisions the
// first record wins.
func NewIndex(existing []model.ExistingTransaction) *Index {
	idx := &Index{
		records: existing,
		exact:   make(map[string]uuid.UUID, len(existing)),
	}
	for _, e := range existing {
		key := model.Fingerprint(e.Date, e.AmountMinor, e.Merchant)
		if _, ok := idx.exact[key]; !ok {
			idx.exact[key] = e.ID
		}
	}
	return idx
}

// Len returns the number of indexed records.
func (i *Index) Len() int { return len(i.records) }

// Check scores tx against existing. See CheckIndex.
func (d *Detector) Check(tx model.ParsedTransaction, existing []model.ExistingTransaction) model.DuplicateStatus {
	return d.CheckIndex(tx, NewIndex(existing))
}

// CheckIndex returns StatusDuplicate with confidence 1.0 on an exact
// (date, amount, case-insensitive merchant) match. Otherwise it returns the
// best fuzzy score when it reaches the threshold, and StatusNew below it.
// Ties keep the earliest existing record.
func (d *Detector) CheckIndex(tx model.ParsedTransaction, idx *Index) model.DuplicateStatus {
	if idx == nil || idx.Len() == 0 {
		return model.StatusNew{}
	}
	if id, ok := idx.exact[tx.Fingerprint()]; ok {
		return model.StatusDuplicate{Confidence: 1.0, MatchedID: id}
	}

	p := d.Policy()
	best, bestID := -1.0, uuid.Nil
	for _, e := range idx.records {
		s := score(tx, e, p.DateToleranceDays)
		if s > best {
			best, bestID = s, e.ID
		}
	}

	if best >= p.Threshold {
		return model.StatusDuplicate{Confidence: best, MatchedID: bestID}
	}
	return model.StatusNew{}
}

// Score returns the weighted fuzzy score of tx against e in [0,1].
func (d *Detector) Score(tx model.ParsedTransaction, e model.ExistingTransaction) float64 {
	return score(tx, e, d.Policy().DateToleranceDays)
}

func score(tx model.ParsedTransaction, e model.ExistingTransaction, tolerance int) float64 {
	var s float64

	days := model.DaysBetween(tx.Date, e.Date)
	switch {
	case tolerance == 0 && days == 0:
		s += dateWeight
	case tolerance > 0 && days <= tolerance:
		s += dateWeight * (1 - float64(days)/float64(tolerance))
	}

	if tx.MinorUnits() == e.AmountMinor {
		s += amountWeight
	}

	s += merchantWeight * Similarity(tx.Merchant, e.Merchant)
	return s
}

// Similarity is 1 - levenshtein/maxLen over lowercased, trimmed strings.
// Two empty strings are identical.
func Similarity(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))

	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 1.0
	}
	return 1 - float64(fuzzy.LevenshteinDistance(a, b))/float64(longest)
}
