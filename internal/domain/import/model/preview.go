package model

import (
	"encoding/json"

	"github.com/google/uuid"
)

// DuplicateStatus is either StatusNew or StatusDuplicate.
// Consumers switch on the concrete type; there is no other implementation.
type DuplicateStatus interface {
	isDuplicateStatus()
	Kind() string
}

// StatusNew marks a transaction that matches nothing already known.
type StatusNew struct{}

// StatusDuplicate marks a probable duplicate.
// WithinBatch is set when the match is an earlier row of the same import
// rather than a stored transaction.
type StatusDuplicate struct {
	Confidence  float64   `json:"confidence"`
	MatchedID   uuid.UUID `json:"matched_id"`
	WithinBatch bool      `json:"within_batch"`
}

func (StatusNew) isDuplicateStatus()       {}
func (StatusDuplicate) isDuplicateStatus() {}

func (StatusNew) Kind() string       { return "new" }
func (StatusDuplicate) Kind() string { return "duplicate" }

// IsDuplicate reports whether s is a StatusDuplicate.
func IsDuplicate(s DuplicateStatus) bool {
	_, ok := s.(StatusDuplicate)
	return ok
}

// ImportTransactionPreview is a parsed transaction awaiting user review.
type ImportTransactionPreview struct {
	Transaction ParsedTransaction `json:"transaction"`
	Status      DuplicateStatus   `json:"-"`
	Selected    bool              `json:"selected"`
	CategoryID  *uuid.UUID        `json:"category_id,omitempty"`
}

// NewTransactionPreview selects New transactions and leaves duplicates unselected.
func NewTransactionPreview(tx ParsedTransaction, status DuplicateStatus) ImportTransactionPreview {
	if status == nil {
		status = StatusNew{}
	}
	return ImportTransactionPreview{
		Transaction: tx,
		Status:      status,
		Selected:    !IsDuplicate(status),
	}
}

func (p ImportTransactionPreview) MarshalJSON() ([]byte, error) {
	type alias ImportTransactionPreview
	out := struct {
		alias
		Status    string           `json:"status"`
		Duplicate *StatusDuplicate `json:"duplicate,omitempty"`
	}{alias: alias(p), Status: StatusNew{}.Kind()}

	if d, ok := p.Status.(StatusDuplicate); ok {
		out.Status = d.Kind()
		out.Duplicate = &d
	}
	return json.Marshal(out)
}

// ImportPreview summarises one import attempt for review.
type ImportPreview struct {
	Transactions   []ImportTransactionPreview `json:"transactions"`
	Errors         []ImportError              `json:"errors"`
	NewCount       int                        `json:"new_count"`
	DuplicateCount int                        `json:"duplicate_count"`
	ErrorCount     int                        `json:"error_count"`
	SkippedCount   int                        `json:"skipped_count"` // zero-amount rows
}

// NewImportPreview builds the preview and its counts.
func NewImportPreview(previews []ImportTransactionPreview, errs []ImportError, skipped int) ImportPreview {
	p := ImportPreview{
		Transactions: previews,
		Errors:       errs,
		ErrorCount:   len(errs),
		SkippedCount: skipped,
	}
	for _, tp := range previews {
		if IsDuplicate(tp.Status) {
			p.DuplicateCount++
		} else {
			p.NewCount++
		}
	}
	return p
}
