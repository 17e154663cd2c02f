package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/FACorreiaa/statement-import/internal/domain/import/dedupe"
	"github.com/FACorreiaa/statement-import/internal/domain/import/fixtures"
	"github.com/FACorreiaa/statement-import/internal/domain/import/model"
	"github.com/FACorreiaa/statement-import/internal/domain/import/parser"
	"github.com/FACorreiaa/statement-import/internal/domain/import/repository"
	"github.com/FACorreiaa/statement-import/internal/domain/import/sniffer"
	"github.com/FACorreiaa/statement-import/pkg/metrics"
)

var errBoom = errors.New("boom")

type fakeExisting struct {
	txs []model.ExistingTransaction
	err error
}

func (f *fakeExisting) ListAccountTransactions(_ context.Context, _ uuid.UUID) ([]model.ExistingTransaction, error) {
	return f.txs, f.err
}

type fakeSink struct {
	mu      sync.Mutex
	batches [][]*repository.Transaction
	err     error
}

func (f *fakeSink) BulkInsertTransactions(_ context.Context, txs []*repository.Transaction) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.batches = append(f.batches, txs)
	return len(txs), nil
}

type fakeMappings struct {
	byFingerprint map[string]*repository.BankMapping
	saved         []*repository.BankMapping
	err           error
}

func (f *fakeMappings) GetMappingByFingerprint(_ context.Context, fp string, _ *uuid.UUID) (*repository.BankMapping, error) {
	if f.err != nil {
		return nil, f.err
	}
	if m, ok := f.byFingerprint[fp]; ok {
		return m, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeMappings) SaveMapping(_ context.Context, m *repository.BankMapping) error {
	if f.err != nil {
		return f.err
	}
	m.ID = uuid.New()
	f.saved = append(f.saved, m)
	return nil
}

type fakeCategorizer struct {
	category uuid.UUID
	err      error
}

func (f *fakeCategorizer) SuggestCategories(_ context.Context, _ uuid.UUID, txs []model.ParsedTransaction) ([]*uuid.UUID, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]*uuid.UUID, len(txs))
	for i := range txs {
		if txs[i].Merchant == "Starbucks" {
			id := f.category
			out[i] = &id
		}
	}
	return out, nil
}

type fakeJobs struct {
	created  []*repository.ImportJob
	finished []*repository.ImportJob
}

func (f *fakeJobs) CreateImportJob(_ context.Context, job *repository.ImportJob) error {
	job.ID = uuid.New()
	f.created = append(f.created, job)
	return nil
}

func (f *fakeJobs) FinishImportJob(_ context.Context, job *repository.ImportJob) error {
	cp := *job
	f.finished = append(f.finished, &cp)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var fixedNow = time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)

const statementCSV = `Date,Description,Amount
2024-01-15,STARBUCKS #1234,-4.50
2024-01-16,ACME PAYROLL,2500.00
2024-01-17,WHOLE FOODS 00012345,-125.30
2024-01-17,WHOLE FOODS 00012345,-125.30
2024-01-18,Lunch,abc
`

type harness struct {
	svc      *ImportService
	existing *fakeExisting
	sink     *fakeSink
	jobs     *fakeJobs
	stored   uuid.UUID
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		existing: &fakeExisting{},
		sink:     &fakeSink{},
		jobs:     &fakeJobs{},
		stored:   uuid.New(),
	}
	h.existing.txs = []model.ExistingTransaction{{
		ID:          h.stored,
		Date:        time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		AmountMinor: -450,
		Merchant:    "Starbucks",
	}}
	h.svc = NewImportService(h.existing, h.sink, Options{Policy: dedupe.DefaultPolicy(), Workers: 1}, discardLogger()).
		WithJobRecorder(h.jobs).
		WithMetrics(metrics.New()).
		WithClock(func() time.Time { return fixedNow })
	return h
}

func request(data string) ImportRequest {
	return ImportRequest{
		AccountID: uuid.New(),
		FileName:  "statement.csv",
		Data:      []byte(data),
		Currency:  "usd",
	}
}

func TestImportService_Preview(t *testing.T) {
	t.Run("flags stored and within-batch duplicates", func(t *testing.T) {
		h := newHarness(t)

		session, err := h.svc.Preview(context.Background(), request(statementCSV))
		require.NoError(t, err)
		assert.Equal(t, StagePreviewing, session.Stage())
		assert.Equal(t, "USD", session.Currency)
		assert.Len(t, session.Fingerprint, 64)
		assert.Equal(t, fixedNow, session.CreatedAt)

		p := session.Preview()
		require.Len(t, p.Transactions, 4)
		assert.Equal(t, 2, p.NewCount)
		assert.Equal(t, 2, p.DuplicateCount)
		assert.Equal(t, 1, p.ErrorCount)
		assert.Equal(t, 5, p.Errors[0].Row)

		stored, ok := p.Transactions[0].Status.(model.StatusDuplicate)
		require.True(t, ok)
		assert.Equal(t, 1.0, stored.Confidence)
		assert.Equal(t, h.stored, stored.MatchedID)
		assert.False(t, stored.WithinBatch)

		batch, ok := p.Transactions[3].Status.(model.StatusDuplicate)
		require.True(t, ok)
		assert.True(t, batch.WithinBatch)
		assert.Equal(t, p.Transactions[2].Transaction.ID, batch.MatchedID)

		var selected []bool
		for _, tp := range p.Transactions {
			selected = append(selected, tp.Selected)
		}
		assert.Equal(t, []bool{false, true, true, false}, selected)
	})

	t.Run("detection failure ends the session", func(t *testing.T) {
		h := newHarness(t)

		session, err := h.svc.Preview(context.Background(), request("Date,Description,Balance\n2024-01-15,Coffee,100.00\n"))
		assert.ErrorIs(t, err, sniffer.ErrNoAmountColumn)
		require.NotNil(t, session)
		assert.Equal(t, StageFailed, session.Stage())
		assert.ErrorIs(t, session.Err(), sniffer.ErrNoAmountColumn)
		assert.Empty(t, session.Preview().Transactions)
	})

	t.Run("decoded mapping without has_header reads the header row", func(t *testing.T) {
		h := newHarness(t)
		var m model.ColumnMapping
		require.NoError(t, json.Unmarshal([]byte(`{"date_column":"Date","description_column":"Description","amount_column":"Amount"}`), &m))

		req := request("Date,Description,Amount\n2024-01-15,Coffee,-4.50\n2024-01-16,Tea,-3.00\n")
		req.Mapping = &m

		session, err := h.svc.Preview(context.Background(), req)
		require.NoError(t, err)
		p := session.Preview()
		assert.Len(t, p.Transactions, 2)
		assert.Zero(t, p.ErrorCount)
	})

	t.Run("headerless mapping with column names is rejected", func(t *testing.T) {
		h := newHarness(t)
		m := model.ColumnMapping{DateColumn: "Date", DescriptionColumn: "Description", AmountColumn: "Amount"}

		req := request("Date,Description,Amount\n2024-01-15,Coffee,-4.50\n")
		req.Mapping = &m

		session, err := h.svc.Preview(context.Background(), req)
		assert.ErrorIs(t, err, model.ErrInvalidMapping)
		assert.Equal(t, StageFailed, session.Stage())
	})

	t.Run("explicit mapping wins over detection", func(t *testing.T) {
		h := newHarness(t)
		m, err := model.NewAmountMapping("1", "2", "3", "02.01.2006", ';')
		require.NoError(t, err)
		m.HasHeader = false
		m.EuropeanFormat = true

		req := request("15.01.2024;Coffee;-4,50\n16.01.2024;Tea;-3,00\n")
		req.Mapping = &m

		session, err := h.svc.Preview(context.Background(), req)
		require.NoError(t, err)
		p := session.Preview()
		require.Len(t, p.Transactions, 2)
		assert.Equal(t, int64(-300), p.Transactions[1].Transaction.MinorUnits())
		assert.Empty(t, session.Fingerprint)
	})

	t.Run("preset supplies mapping and currency", func(t *testing.T) {
		h := newHarness(t)
		rows := fixtures.NewWithSeed(7).Rows(20)

		req := request(string(fixtures.EuropeanCSV(rows)))
		req.Currency = ""
		req.Preset = "cgd"

		session, err := h.svc.Preview(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, "EUR", session.Currency)
		p := session.Preview()
		assert.Len(t, p.Transactions, 20)
		assert.Zero(t, p.ErrorCount)
		assert.Equal(t, rows[0].AmountMinor, p.Transactions[0].Transaction.MinorUnits())
	})

	t.Run("unknown preset", func(t *testing.T) {
		h := newHarness(t)
		req := request(statementCSV)
		req.Preset = "no-such-bank"

		session, err := h.svc.Preview(context.Background(), req)
		assert.ErrorIs(t, err, ErrUnknownPreset)
		assert.Equal(t, StageFailed, session.Stage())
	})

	t.Run("saved mapping rescues an undetectable file", func(t *testing.T) {
		h := newHarness(t)
		saved, err := model.NewAmountMapping("When", "What", "HowMuch", "02.01.2006", ',')
		require.NoError(t, err)
		fp := sniffer.HeaderFingerprint([]string{"When", "What", "HowMuch"})
		h.svc.WithMappingStore(&fakeMappings{byFingerprint: map[string]*repository.BankMapping{
			fp: {ID: uuid.New(), Fingerprint: fp, Mapping: saved},
		}})

		session, err := h.svc.Preview(context.Background(), request("When,What,HowMuch\n15.01.2024,Coffee,-4.50\n"))
		require.NoError(t, err)
		assert.Equal(t, fp, session.Fingerprint)
		require.Len(t, session.Preview().Transactions, 1)
		assert.Equal(t, "What", session.Mapping.DescriptionColumn)
	})

	t.Run("mapping store errors surface", func(t *testing.T) {
		h := newHarness(t)
		h.svc.WithMappingStore(&fakeMappings{err: errBoom})

		_, err := h.svc.Preview(context.Background(), request(statementCSV))
		assert.ErrorIs(t, err, errBoom)
		assert.ErrorIs(t, err, ErrStoreUnavailable)
	})

	t.Run("existing source errors are wrapped", func(t *testing.T) {
		h := newHarness(t)
		h.existing.err = errBoom

		session, err := h.svc.Preview(context.Background(), request(statementCSV))
		assert.ErrorIs(t, err, errBoom)
		assert.ErrorIs(t, err, ErrStoreUnavailable)
		assert.Contains(t, err.Error(), "existing transactions")
		assert.Equal(t, StageFailed, session.Stage())
	})

	t.Run("cancelled context stops before reading existing records", func(t *testing.T) {
		h := newHarness(t)
		h.existing.err = errBoom
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := h.svc.Preview(ctx, request(statementCSV))
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("categories are suggested", func(t *testing.T) {
		h := newHarness(t)
		category := uuid.New()
		h.svc.WithCategorizer(&fakeCategorizer{category: category})

		session, err := h.svc.Preview(context.Background(), request(statementCSV))
		require.NoError(t, err)
		p := session.Preview()
		require.NotNil(t, p.Transactions[0].CategoryID)
		assert.Equal(t, category, *p.Transactions[0].CategoryID)
		assert.Nil(t, p.Transactions[1].CategoryID)
	})

	t.Run("categorizer errors do not fail the preview", func(t *testing.T) {
		h := newHarness(t)
		h.svc.WithCategorizer(&fakeCategorizer{err: errBoom})

		session, err := h.svc.Preview(context.Background(), request(statementCSV))
		require.NoError(t, err)
		assert.Nil(t, session.Preview().Transactions[0].CategoryID)
	})

	t.Run("reads xlsx workbooks", func(t *testing.T) {
		h := newHarness(t)

		f := excelize.NewFile()
		defer f.Close()
		require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]any{"Date", "Description", "Amount"}))
		require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]any{"2024-01-20", "NETFLIX.COM", "-15.99"}))
		buf, err := f.WriteToBuffer()
		require.NoError(t, err)

		req := request("")
		req.Data = buf.Bytes()

		session, err := h.svc.Preview(context.Background(), req)
		require.NoError(t, err)
		p := session.Preview()
		require.Len(t, p.Transactions, 1)
		assert.Equal(t, int64(-1599), p.Transactions[0].Transaction.MinorUnits())
	})

	t.Run("empty file", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.svc.Preview(context.Background(), request("\n  \n"))
		assert.ErrorIs(t, err, sniffer.ErrEmptyFile)
	})
}

func TestImportService_Commit(t *testing.T) {
	t.Run("persists the selected transactions in one batch", func(t *testing.T) {
		h := newHarness(t)
		session, err := h.svc.Preview(context.Background(), request(statementCSV))
		require.NoError(t, err)

		result, err := h.svc.Commit(context.Background(), session)
		require.NoError(t, err)

		assert.Equal(t, 2, result.Imported)
		assert.Equal(t, 2, result.Skipped)
		assert.Equal(t, 2, result.Duplicates)
		assert.Equal(t, 1, result.Failed)
		assert.Len(t, result.Errors, 1)
		require.NotNil(t, result.JobID)

		require.Len(t, h.sink.batches, 1)
		rec := h.sink.batches[0][0]
		assert.Equal(t, session.AccountID, rec.AccountID)
		assert.Equal(t, int64(250000), rec.AmountMinor)
		assert.Equal(t, "USD", rec.CurrencyCode)
		assert.Equal(t, "ACME PAYROLL", rec.Memo)
		assert.Equal(t, repository.StatusImported, rec.Status)
		assert.Equal(t, fixedNow, rec.CreatedAt)
		assert.Equal(t, result.JobID, rec.ImportID)

		assert.Equal(t, StageCommitted, session.Stage())
		assert.Equal(t, result, session.Result())

		require.Len(t, h.jobs.finished, 1)
		assert.Equal(t, repository.JobSucceeded, h.jobs.finished[0].Status)
		assert.Equal(t, 2, h.jobs.finished[0].RowsImported)
	})

	t.Run("a committed session cannot be committed or edited again", func(t *testing.T) {
		h := newHarness(t)
		session, err := h.svc.Preview(context.Background(), request(statementCSV))
		require.NoError(t, err)
		_, err = h.svc.Commit(context.Background(), session)
		require.NoError(t, err)

		_, err = h.svc.Commit(context.Background(), session)
		assert.ErrorIs(t, err, ErrNotPreviewing)
		assert.ErrorIs(t, session.SetSelected(session.Preview().Transactions[0].Transaction.ID, true), ErrNotPreviewing)
		assert.Len(t, h.sink.batches, 1)
	})

	t.Run("failed write keeps the preview for retry", func(t *testing.T) {
		h := newHarness(t)
		session, err := h.svc.Preview(context.Background(), request(statementCSV))
		require.NoError(t, err)
		before := session.Preview()

		h.sink.err = errBoom
		_, err = h.svc.Commit(context.Background(), session)
		assert.Equal(t, errBoom, err)
		assert.Equal(t, StagePreviewing, session.Stage())
		assert.Equal(t, before, session.Preview())
		require.Len(t, h.jobs.finished, 1)
		assert.Equal(t, repository.JobFailed, h.jobs.finished[0].Status)
		require.NotNil(t, h.jobs.finished[0].ErrorMessage)

		h.sink.err = nil
		result, err := h.svc.Commit(context.Background(), session)
		require.NoError(t, err)
		assert.Equal(t, 2, result.Imported)
		assert.Equal(t, StageCommitted, session.Stage())
	})

	t.Run("user selection and categories flow into the batch", func(t *testing.T) {
		h := newHarness(t)
		session, err := h.svc.Preview(context.Background(), request(statementCSV))
		require.NoError(t, err)

		p := session.Preview()
		category := uuid.New()
		require.NoError(t, session.SetSelected(p.Transactions[0].Transaction.ID, true))
		require.NoError(t, session.SetSelected(p.Transactions[1].Transaction.ID, false))
		require.NoError(t, session.SetCategory(p.Transactions[2].Transaction.ID, &category))
		assert.ErrorIs(t, session.SetSelected(uuid.New(), true), ErrTransactionNotFound)

		result, err := h.svc.Commit(context.Background(), session)
		require.NoError(t, err)
		assert.Equal(t, 2, result.Imported)
		assert.Equal(t, 2, result.Skipped)

		batch := h.sink.batches[0]
		assert.Equal(t, p.Transactions[0].Transaction.ID, batch[0].ID)
		assert.Equal(t, &category, batch[1].CategoryID)
	})

	t.Run("nothing selected writes nothing", func(t *testing.T) {
		h := newHarness(t)
		session, err := h.svc.Preview(context.Background(), request(statementCSV))
		require.NoError(t, err)
		for _, tp := range session.Preview().Transactions {
			require.NoError(t, session.SetSelected(tp.Transaction.ID, false))
		}

		result, err := h.svc.Commit(context.Background(), session)
		require.NoError(t, err)
		assert.Zero(t, result.Imported)
		assert.Equal(t, 4, result.Skipped)
		assert.Empty(t, h.sink.batches)
	})

	t.Run("cancelled context does not write", func(t *testing.T) {
		h := newHarness(t)
		session, err := h.svc.Preview(context.Background(), request(statementCSV))
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err = h.svc.Commit(ctx, session)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, h.sink.batches)
		assert.Equal(t, StagePreviewing, session.Stage())
	})
}

func TestImportService_AutoImport(t *testing.T) {
	h := newHarness(t)
	req := request(statementCSV)
	req.Mode = parser.ModeSilent

	result, err := h.svc.AutoImport(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Imported)
	assert.Zero(t, result.Failed)
}

func TestImportService_AutoImport_StoreErrors(t *testing.T) {
	t.Run("sink failure is marked as a store error", func(t *testing.T) {
		h := newHarness(t)
		h.sink.err = errBoom

		_, err := h.svc.AutoImport(context.Background(), request(statementCSV))
		assert.ErrorIs(t, err, errBoom)
		assert.ErrorIs(t, err, ErrStoreUnavailable)
	})

	t.Run("file problems are not store errors", func(t *testing.T) {
		h := newHarness(t)

		_, err := h.svc.AutoImport(context.Background(), request("Date,Description,Balance\n2024-01-15,Coffee,100.00\n"))
		assert.ErrorIs(t, err, sniffer.ErrNoAmountColumn)
		assert.NotErrorIs(t, err, ErrStoreUnavailable)
	})
}

func TestImportService_Analyze(t *testing.T) {
	t.Run("reports detection and saved mapping", func(t *testing.T) {
		h := newHarness(t)
		fp := sniffer.HeaderFingerprint([]string{"Date", "Description", "Amount"})
		saved := &repository.BankMapping{ID: uuid.New(), Fingerprint: fp}
		h.svc.WithMappingStore(&fakeMappings{byFingerprint: map[string]*repository.BankMapping{fp: saved}})

		result, err := h.svc.Analyze(context.Background(), nil, []byte(statementCSV), FormatAuto)
		require.NoError(t, err)
		assert.Equal(t, FormatCSV, result.Format)
		require.NotNil(t, result.Detection)
		assert.Equal(t, "Amount", result.Detection.Mapping.AmountColumn)
		assert.True(t, result.MappingFound)
		assert.True(t, result.CanAutoImport)
		assert.Same(t, saved, result.Mapping)
	})

	t.Run("no saved mapping", func(t *testing.T) {
		h := newHarness(t)
		h.svc.WithMappingStore(&fakeMappings{})

		result, err := h.svc.Analyze(context.Background(), nil, []byte(statementCSV), FormatCSV)
		require.NoError(t, err)
		assert.False(t, result.MappingFound)
		assert.Nil(t, result.Mapping)
	})

	t.Run("detection errors", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.svc.Analyze(context.Background(), nil, []byte("Date,Description,Balance\n2024-01-15,x,1\n"), FormatCSV)
		assert.ErrorIs(t, err, sniffer.ErrNoAmountColumn)
	})
}

func TestImportService_SaveMapping(t *testing.T) {
	m, err := model.NewAmountMapping("Date", "Description", "Amount", "", 0)
	require.NoError(t, err)

	t.Run("requires a store", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.svc.SaveMapping(context.Background(), nil, "fp", "Bank", m)
		assert.ErrorIs(t, err, ErrNoMappingStore)
	})

	t.Run("validates input", func(t *testing.T) {
		h := newHarness(t)
		h.svc.WithMappingStore(&fakeMappings{})

		_, err := h.svc.SaveMapping(context.Background(), nil, " ", "Bank", m)
		assert.ErrorIs(t, err, model.ErrInvalidMapping)

		_, err = h.svc.SaveMapping(context.Background(), nil, "fp", "Bank", model.ColumnMapping{DateColumn: "Date"})
		assert.ErrorIs(t, err, model.ErrInvalidMapping)
	})

	t.Run("stores defaults and bank name", func(t *testing.T) {
		h := newHarness(t)
		store := &fakeMappings{}
		h.svc.WithMappingStore(store)
		account := uuid.New()

		saved, err := h.svc.SaveMapping(context.Background(), &account, "fp", " Revolut ", m)
		require.NoError(t, err)
		require.Len(t, store.saved, 1)
		assert.Equal(t, &account, saved.AccountID)
		require.NotNil(t, saved.BankName)
		assert.Equal(t, "Revolut", *saved.BankName)
		assert.Equal(t, ',', saved.Mapping.Delimiter)
		assert.Equal(t, model.ISODateLayout, saved.Mapping.DateFormat)
	})

	t.Run("blank bank name is stored as null", func(t *testing.T) {
		h := newHarness(t)
		h.svc.WithMappingStore(&fakeMappings{})

		saved, err := h.svc.SaveMapping(context.Background(), nil, "fp", "", m)
		require.NoError(t, err)
		assert.Nil(t, saved.BankName)
	})
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
		err  bool
	}{
		{"", FormatAuto, false},
		{".CSV", FormatCSV, false},
		{"tsv", FormatCSV, false},
		{"xlsx", FormatXLSX, false},
		{"pdf", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.err {
				assert.ErrorIs(t, err, ErrUnknownFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSessionStore(t *testing.T) {
	m := metrics.New()
	store := NewSessionStore(time.Hour, m)
	now := fixedNow
	store.now = func() time.Time { return now }

	fresh := newSession(uuid.New(), "a.csv", fixedNow)
	stale := newSession(uuid.New(), "b.csv", fixedNow.Add(-2*time.Hour))
	store.Put(fresh)
	store.Put(stale)
	store.Put(fresh)
	assert.Equal(t, 2, store.Len())

	got, err := store.Get(fresh.ID)
	require.NoError(t, err)
	assert.Same(t, fresh, got)

	_, err = store.Get(stale.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Equal(t, 1, store.Len())

	now = now.Add(2 * time.Hour)
	assert.Equal(t, 1, store.Sweep())
	assert.Zero(t, store.Len())

	store.Put(fresh)
	store.Delete(fresh.ID)
	_, err = store.Get(fresh.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSession_ConcurrentEdits(t *testing.T) {
	h := newHarness(t)
	session, err := h.svc.Preview(context.Background(), request(statementCSV))
	require.NoError(t, err)
	ids := make([]uuid.UUID, 0)
	for _, tp := range session.Preview().Transactions {
		ids = append(ids, tp.Transaction.ID)
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = session.SetSelected(ids[i%len(ids)], i%2 == 0)
			_ = session.Preview()
		}(i)
	}
	wg.Wait()
	assert.Equal(t, StagePreviewing, session.Stage())
}

func TestStage_String(t *testing.T) {
	assert.Equal(t, "detecting", StageDetecting.String())
	assert.Equal(t, "previewing", StagePreviewing.String())
	assert.Equal(t, "committed", StageCommitted.String())
	assert.Equal(t, "failed", StageFailed.String())
	assert.Equal(t, "unknown", Stage(42).String())
}

func BenchmarkPreview(b *testing.B) {
	rows := fixtures.NewWithSeed(1).Rows(2000)
	data := fixtures.CSV(rows)
	existing := fixtures.Existing(rows[:1000])
	svc := NewImportService(&fakeExisting{txs: existing}, &fakeSink{}, Options{Policy: dedupe.DefaultPolicy()}, discardLogger())

	for b.Loop() {
		if _, err := svc.Preview(context.Background(), ImportRequest{
			AccountID: uuid.New(),
			Data:      bytes.Clone(data),
			Currency:  "EUR",
		}); err != nil {
			b.Fatal(err)
		}
	}
}
