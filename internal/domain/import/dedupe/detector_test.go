package dedupe

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/statement-import/internal/domain/import/fixtures"
	"github.com/FACorreiaa/statement-import/internal/domain/import/model"
	"github.com/FACorreiaa/statement-import/internal/domain/import/normalizer"
	"github.com/FACorreiaa/statement-import/pkg/money"
)

func day(d int) time.Time {
	return time.Date(2026, time.January, d, 0, 0, 0, 0, time.UTC)
}

func parsed(date time.Time, minor int64, description string) model.ParsedTransaction {
	return model.ParsedTransaction{
		ID:             uuid.New(),
		Date:           date,
		Amount:         money.New(minor, money.USD),
		Merchant:       normalizer.NormalizeMerchant(description),
		RawDescription: description,
	}
}

func existing(date time.Time, minor int64, merchant string) model.ExistingTransaction {
	return model.ExistingTransaction{ID: uuid.New(), Date: date, AmountMinor: minor, Merchant: merchant}
}

func TestDetector_Check(t *testing.T) {
	d := NewDetector(DefaultPolicy())

	t.Run("fuzzy match on a shifted day", func(t *testing.T) {
		stored := existing(day(10), -500, "Starbucks")
		tx := parsed(day(11), -500, "Starbucks #4521")

		status := d.Check(tx, []model.ExistingTransaction{stored})

		dup, ok := status.(model.StatusDuplicate)
		require.True(t, ok, "expected duplicate, got %T", status)
		assert.GreaterOrEqual(t, dup.Confidence, 0.75)
		assert.Less(t, dup.Confidence, 1.0)
		assert.InDelta(t, 0.4*(1-1.0/3)+0.4+0.2, dup.Confidence, 1e-9)
		assert.Equal(t, stored.ID, dup.MatchedID)
		assert.False(t, dup.WithinBatch)
	})

	t.Run("exact match short-circuits at 1.0", func(t *testing.T) {
		fuzzyBetter := existing(day(10), -500, "Starbucks")
		exact := existing(day(12), -500, "STARBUCKS")
		tx := parsed(day(12), -500, "Starbucks")

		status := d.Check(tx, []model.ExistingTransaction{fuzzyBetter, exact})

		dup, ok := status.(model.StatusDuplicate)
		require.True(t, ok)
		assert.Equal(t, 1.0, dup.Confidence)
		assert.Equal(t, exact.ID, dup.MatchedID)
	})

	t.Run("amount mismatch stays new", func(t *testing.T) {
		tx := parsed(day(10), -501, "Starbucks")
		status := d.Check(tx, []model.ExistingTransaction{existing(day(10), -500, "Starbucks")})
		assert.Equal(t, model.StatusNew{}, status)
	})

	t.Run("outside the date window stays new", func(t *testing.T) {
		tx := parsed(day(14), -500, "Starbucks")
		status := d.Check(tx, []model.ExistingTransaction{existing(day(10), -500, "Starbucks")})
		assert.Equal(t, model.StatusNew{}, status)
	})

	t.Run("no existing records", func(t *testing.T) {
		assert.Equal(t, model.StatusNew{}, d.Check(parsed(day(1), -1, "X"), nil))
	})

	t.Run("picks the highest score", func(t *testing.T) {
		far := existing(day(7), -500, "Starbucks")
		near := existing(day(9), -500, "Starbucks")
		tx := parsed(day(10), -500, "Starbucks Coffee")

		dup, ok := d.Check(tx, []model.ExistingTransaction{far, near}).(model.StatusDuplicate)
		require.True(t, ok)
		assert.Equal(t, near.ID, dup.MatchedID)
	})

	t.Run("ties keep the first record", func(t *testing.T) {
		a := existing(day(9), -500, "Starbucks")
		b := existing(day(11), -500, "Starbucks")
		tx := parsed(day(10), -500, "Starbucks Coffee")

		dup, ok := d.Check(tx, []model.ExistingTransaction{a, b}).(model.StatusDuplicate)
		require.True(t, ok)
		assert.Equal(t, a.ID, dup.MatchedID)
	})
}

func TestDetector_Policy(t *testing.T) {
	var zero Detector
	assert.Equal(t, DefaultPolicy(), zero.Policy())

	strict := NewDetector(Policy{DateToleranceDays: 0, Threshold: 0.9})
	tx := parsed(day(10), -500, "Starbucks")

	sameDay := existing(day(10), -500, "Starbuck")
	assert.InDelta(t, 0.4+0.4+0.2*(1-1.0/9), strict.Score(tx, sameDay), 1e-9)

	nextDay := existing(day(11), -500, "Starbucks")
	assert.InDelta(t, 0.6, strict.Score(tx, nextDay), 1e-9)
	assert.Equal(t, model.StatusNew{}, strict.Check(tx, []model.ExistingTransaction{nextDay}))
}

func TestScoreMonotonicInMerchantSimilarity(t *testing.T) {
	d := NewDetector(DefaultPolicy())
	tx := parsed(day(10), -500, "Starbucks")

	candidates := []string{"Zzzzzzzzz", "Stzzzzzzz", "Starzzzzz", "Starbuzzz", "Starbucks"}
	prev := -1.0
	for _, m := range candidates {
		s := d.Score(tx, existing(day(11), -500, m))
		assert.GreaterOrEqual(t, s, prev, "score dropped for %q", m)
		prev = s
	}
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"", "", 1.0},
		{"starbucks", "STARBUCKS", 1.0},
		{"abc", "", 0.0},
		{"kitten", "sitting", 1 - 3.0/7},
		{"café", "cafe", 0.75},
	}
	for _, tt := range tests {
		t.Run(tt.a+"|"+tt.b, func(t *testing.T) {
			assert.InDelta(t, tt.want, Similarity(tt.a, tt.b), 1e-9)
		})
	}
}

func TestInternalDuplicates(t *testing.T) {
	first := parsed(day(10), -500, "Starbucks #1")
	second := parsed(day(10), -500, "STARBUCKS #2")
	other := parsed(day(10), -700, "Starbucks")

	statuses := InternalDuplicates([]model.ParsedTransaction{first, other, second})
	require.Len(t, statuses, 3)

	assert.Equal(t, model.StatusNew{}, statuses[0])
	assert.Equal(t, model.StatusNew{}, statuses[1])
	dup, ok := statuses[2].(model.StatusDuplicate)
	require.True(t, ok)
	assert.True(t, dup.WithinBatch)
	assert.Equal(t, first.ID, dup.MatchedID)

	// neither row matches stored data, yet the repeat is still flagged
	d := NewDetector(DefaultPolicy())
	stored := []model.ExistingTransaction{existing(day(1), -100, "Rent")}
	external, err := d.CheckAll(context.Background(), []model.ParsedTransaction{first, other, second}, stored, 1)
	require.NoError(t, err)

	merged := Merge(external, statuses)
	assert.False(t, model.IsDuplicate(merged[0]))
	assert.True(t, model.IsDuplicate(merged[2]))
}

func TestMerge_StoredMatchWins(t *testing.T) {
	storedID := uuid.New()
	external := []model.DuplicateStatus{model.StatusDuplicate{Confidence: 0.8, MatchedID: storedID}}
	internal := []model.DuplicateStatus{model.StatusDuplicate{Confidence: 1, MatchedID: uuid.New(), WithinBatch: true}}

	merged := Merge(external, internal)
	assert.Equal(t, external[0], merged[0])
}

func TestCheckAll(t *testing.T) {
	gen := fixtures.NewWithSeed(7)
	rows := gen.Rows(500)
	txs := fixtures.Parsed(rows, money.USD)
	stored := fixtures.Existing(rows[:100])

	d := NewDetector(DefaultPolicy())

	t.Run("parallel matches sequential", func(t *testing.T) {
		parallel, err := d.CheckAll(context.Background(), txs, stored, 8)
		require.NoError(t, err)
		sequential, err := d.CheckAll(context.Background(), txs, stored, 1)
		require.NoError(t, err)

		assert.Equal(t, sequential, parallel)
		for i := range 100 {
			dup, ok := parallel[i].(model.StatusDuplicate)
			require.True(t, ok, "row %d", i)
			assert.Equal(t, 1.0, dup.Confidence)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := d.CheckAll(ctx, txs, stored, 4)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func BenchmarkCheckAll(b *testing.B) {
	gen := fixtures.NewWithSeed(1)
	txs := fixtures.Parsed(gen.Rows(1000), money.USD)
	stored := fixtures.Existing(gen.Rows(5000))
	d := NewDetector(DefaultPolicy())

	b.ReportAllocs()
	for b.Loop() {
		if _, err := d.CheckAll(context.Background(), txs, stored, 0); err != nil {
			b.Fatal(err)
		}
	}
}
