package dedupe

import (
	"github.com/google/uuid"

	"github.com/FACorreiaa/statement-import/internal/domain/import/model"
)

// InternalDuplicates flags rows whose fingerprint already appeared earlier in
// the batch. The result is index-aligned with batch; first occurrences are
// StatusNew, repeats point at the first occurrence with WithinBatch set.
func InternalDuplicates(batch []model.ParsedTransaction) []model.DuplicateStatus {
	seen := make(map[string]uuid.UUID, len(batch))
	out := make([]model.DuplicateStatus, len(batch))
	for i, tx := range batch {
		key := tx.Fingerprint()
		if first, ok := seen[key]; ok {
			out[i] = model.StatusDuplicate{Confidence: 1.0, MatchedID: first, WithinBatch: true}
			continue
		}
		seen[key] = tx.ID
		out[i] = model.StatusNew{}
	}
	return out
}

// Merge combines the existing-records pass with the intra-batch pass.
// A match against stored data wins over a within-batch match.
func Merge(existing, internal []model.DuplicateStatus) []model.DuplicateStatus {
	out := make([]model.DuplicateStatus, len(existing))
	for i, s := range existing {
		switch {
		case model.IsDuplicate(s):
			out[i] = s
		case i < len(internal) && internal[i] != nil:
			out[i] = internal[i]
		default:
			out[i] = model.StatusNew{}
		}
	}
	return out
}
