// Package service provides the import orchestration logic.
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/statement-import/internal/domain/import/dedupe"
	"github.com/FACorreiaa/statement-import/internal/domain/import/model"
	"github.com/FACorreiaa/statement-import/internal/domain/import/parser"
	"github.com/FACorreiaa/statement-import/internal/domain/import/repository"
	"github.com/FACorreiaa/statement-import/internal/domain/import/sniffer"
	"github.com/FACorreiaa/statement-import/pkg/metrics"
)

var (
	ErrUnknownPreset  = errors.New("unknown bank preset")
	ErrNoMappingStore = errors.New("mapping store not configured")
	ErrUnknownFormat  = errors.New("unknown file format")

	// ErrStoreUnavailable marks failures of the backing store, as opposed to
	// problems with the file itself. Callers may retry these later.
	ErrStoreUnavailable = errors.New("store unavailable")
)

const tracerName = "github.com/FACorreiaa/statement-import/internal/domain/import/service"

// Format is the container format of an uploaded statement.
type Format string

const (
	FormatAuto Format = ""
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat maps a file extension or format name to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")) {
	case "", "auto":
		return FormatAuto, nil
	case "csv", "tsv", "txt":
		return FormatCSV, nil
	case "xlsx", "excel":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// ExistingSource reads the stored transactions of an account.
type ExistingSource interface {
	ListAccountTransactions(ctx context.Context, accountID uuid.UUID) ([]model.ExistingTransaction, error)
}

// TransactionSink persists a batch of finalized transactions.
type TransactionSink interface {
	BulkInsertTransactions(ctx context.Context, txs []*repository.Transaction) (int, error)
}

// MappingStore remembers column mappings by header fingerprint.
type MappingStore interface {
	GetMappingByFingerprint(ctx context.Context, fingerprint string, accountID *uuid.UUID) (*repository.BankMapping, error)
	SaveMapping(ctx context.Context, mapping *repository.BankMapping) error
}

// Categorizer suggests a category per transaction; entries may be nil.
type Categorizer interface {
	SuggestCategories(ctx context.Context, accountID uuid.UUID, txs []model.ParsedTransaction) ([]*uuid.UUID, error)
}

// Options tunes duplicate detection and extraction.
type Options struct {
	Policy          dedupe.Policy
	Workers         int
	DefaultCurrency string
}

// AnalyzeResult contains the result of analyzing an uploaded file
type AnalyzeResult struct {
	Format    Format             `json:"format"`
	Sheet     string             `json:"sheet,omitempty"`
	Detection *sniffer.Detection `json:"detection"`

	// Existing mapping found
	MappingFound bool                    `json:"mapping_found"`
	Mapping      *repository.BankMapping `json:"saved_mapping,omitempty"`

	CanAutoImport bool `json:"can_auto_import"`
}

// ImportRequest describes one file to preview.
// Mapping takes precedence over Preset; with neither, a saved mapping for the
// file's header fingerprint is used, then the detected one.
type ImportRequest struct {
	AccountID uuid.UUID
	FileName  string
	Data      []byte
	Format    Format
	Currency  string
	Mapping   *model.ColumnMapping
	Preset    string
	Mode      parser.Mode
}

// ImportResult contains the result of an import operation
type ImportResult struct {
	SessionID  uuid.UUID           `json:"session_id"`
	JobID      *uuid.UUID          `json:"job_id,omitempty"`
	Imported   int                 `json:"imported"`
	Skipped    int                 `json:"skipped"` // unselected transactions
	Duplicates int                 `json:"duplicates"`
	Failed     int                 `json:"failed"`
	Errors     []model.ImportError `json:"errors,omitempty"`
}

// ImportService orchestrates file analysis and import operations
type ImportService struct {
	existing    ExistingSource
	sink        TransactionSink
	mappings    MappingStore                   // Optional
	categorizer Categorizer                    // Optional
	jobs        repository.ImportJobRepository // Optional

	detector *dedupe.Detector
	opts     Options
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
	now      func() time.Time
}

// NewImportService creates a new import service
func NewImportService(existing ExistingSource, sink TransactionSink, opts Options, logger *slog.Logger) *ImportService {
	if opts.DefaultCurrency == "" {
		opts.DefaultCurrency = "EUR"
	}
	return &ImportService{
		existing: existing,
		sink:     sink,
		detector: dedupe.NewDetector(opts.Policy),
		opts:     opts,
		logger:   logger,
		tracer:   otel.Tracer(tracerName),
		now:      time.Now,
	}
}

// WithMappingStore enables saved mappings.
func (s *ImportService) WithMappingStore(store MappingStore) *ImportService {
	s.mappings = store
	return s
}

// WithCategorizer adds category suggestions to previews.
func (s *ImportService) WithCategorizer(c Categorizer) *ImportService {
	s.categorizer = c
	return s
}

// WithJobRecorder records every commit as an import job.
func (s *ImportService) WithJobRecorder(jobs repository.ImportJobRepository) *ImportService {
	s.jobs = jobs
	return s
}

// WithMetrics records pipeline metrics.
func (s *ImportService) WithMetrics(m *metrics.Metrics) *ImportService {
	s.metrics = m
	return s
}

// WithClock replaces time.Now, for tests.
func (s *ImportService) WithClock(now func() time.Time) *ImportService {
	s.now = now
	return s
}

// statement is a loaded file before a mapping is applied.
type statement struct {
	format Format
	sheet  string
	text   []byte          // decoded delimited text
	rows   []parser.Record // spreadsheet rows
}

func loadStatement(data []byte, format Format) (*statement, error) {
	if format == FormatAuto {
		format = FormatCSV
		if parser.IsExcel(data) {
			format = FormatXLSX
		}
	}

	switch format {
	case FormatCSV:
		text := parser.DecodeText(data)
		if len(bytes.TrimSpace(text)) == 0 {
			return nil, sniffer.ErrEmptyFile
		}
		return &statement{format: format, text: text}, nil
	case FormatXLSX:
		rows, sheet, err := parser.ReadExcelRecords(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		return &statement{format: format, sheet: sheet, rows: rows}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

func (st *statement) detect() (*sniffer.Detection, error) {
	if st.format == FormatXLSX {
		return sniffer.DetectRecords(parser.Rows(st.rows), ',')
	}
	return sniffer.Detect(st.text)
}

// headerFingerprint hashes the first non-blank record, for files the
// detector cannot map on its own.
func (st *statement) headerFingerprint() string {
	var rows [][]string
	if st.format == FormatXLSX {
		rows = parser.Rows(st.rows)
	} else {
		rows = parser.Rows(parser.ReadRecords(st.text, sniffer.DetectDelimiter(string(st.text))))
	}
	for _, r := range rows {
		for _, f := range r {
			if strings.TrimSpace(f) != "" {
				return sniffer.HeaderFingerprint(r)
			}
		}
	}
	return ""
}

func (st *statement) records(delimiter rune) []parser.Record {
	if st.format == FormatXLSX {
		return st.rows
	}
	return parser.ReadRecords(st.text, delimiter)
}

// Analyze detects the layout of a file and looks up a saved mapping for its headers.
func (s *ImportService) Analyze(ctx context.Context, accountID *uuid.UUID, data []byte, format Format) (*AnalyzeResult, error) {
	ctx, span := s.tracer.Start(ctx, "import.Analyze")
	defer span.End()
	defer s.metrics.ObserveStage("analyze", s.now())

	st, err := loadStatement(data, format)
	if err != nil {
		return nil, spanError(span, fmt.Errorf("failed to load file: %w", err))
	}
	result := &AnalyzeResult{Format: st.format, Sheet: st.sheet}
	detection, detectErr := st.detect()
	fingerprint := st.headerFingerprint()
	if detectErr == nil {
		result.Detection = detection
		fingerprint = detection.Fingerprint
	}

	saved, err := s.savedMapping(ctx, fingerprint, accountID)
	if err != nil {
		return nil, spanError(span, err)
	}
	if detectErr != nil && saved == nil {
		return nil, spanError(span, fmt.Errorf("failed to analyze file: %w", detectErr))
	}
	if saved != nil {
		result.MappingFound = true
		result.Mapping = saved
		result.CanAutoImport = true
	}

	span.SetAttributes(
		attribute.String("import.format", string(st.format)),
		attribute.Bool("import.mapping_found", result.MappingFound),
	)
	return result, nil
}

func (s *ImportService) savedMapping(ctx context.Context, fingerprint string, accountID *uuid.UUID) (*repository.BankMapping, error) {
	if s.mappings == nil || fingerprint == "" {
		return nil, nil
	}
	saved, err := s.mappings.GetMappingByFingerprint(ctx, fingerprint, accountID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lookup mapping: %w: %w", ErrStoreUnavailable, err)
	}
	return saved, nil
}

// Preview extracts and scores a file and returns a session awaiting review.
// On failure the returned session, when not nil, is in StageFailed.
func (s *ImportService) Preview(ctx context.Context, req ImportRequest) (*Session, error) {
	ctx, span := s.tracer.Start(ctx, "import.Preview", trace.WithAttributes(
		attribute.String("import.account_id", req.AccountID.String()),
		attribute.String("import.file_name", req.FileName),
	))
	defer span.End()
	start := s.now()

	session := newSession(req.AccountID, req.FileName, start)
	preview, err := s.preview(ctx, session, req)
	if err != nil {
		session.fail(err)
		s.metrics.Preview("error")
		s.logger.WarnContext(ctx, "import preview failed",
			slog.String("session_id", session.ID.String()),
			slog.String("file", req.FileName),
			slog.Any("error", err),
		)
		return session, spanError(span, err)
	}

	s.metrics.Preview("ok")
	s.metrics.ObserveStage("preview", start)
	span.SetAttributes(
		attribute.Int("import.new", preview.NewCount),
		attribute.Int("import.duplicates", preview.DuplicateCount),
		attribute.Int("import.errors", preview.ErrorCount),
	)
	s.logger.InfoContext(ctx, "import preview ready",
		slog.String("session_id", session.ID.String()),
		slog.String("file", req.FileName),
		slog.Int("new", preview.NewCount),
		slog.Int("duplicates", preview.DuplicateCount),
		slog.Int("errors", preview.ErrorCount),
		slog.Int("skipped", preview.SkippedCount),
	)
	return session, nil
}

func (s *ImportService) preview(ctx context.Context, session *Session, req ImportRequest) (model.ImportPreview, error) {
	st, err := loadStatement(req.Data, req.Format)
	if err != nil {
		return model.ImportPreview{}, fmt.Errorf("failed to load file: %w", err)
	}

	mapping, currency, fingerprint, err := s.resolveMapping(ctx, st, req)
	if err != nil {
		return model.ImportPreview{}, err
	}
	session.Currency = currency

	extractStart := s.now()
	extraction, err := parser.Extract(st.records(mapping.Delimiter), mapping, currency, req.Mode)
	if err != nil {
		return model.ImportPreview{}, fmt.Errorf("failed to extract transactions: %w", err)
	}
	s.metrics.ObserveStage("extract", extractStart)
	s.metrics.AddRows("parsed", len(extraction.Transactions))
	s.metrics.AddRows("skipped", extraction.Skipped)
	s.metrics.AddRows("failed", extraction.TotalRows-len(extraction.Transactions)-extraction.Skipped)

	if err := ctx.Err(); err != nil {
		return model.ImportPreview{}, err
	}
	existing, err := s.existing.ListAccountTransactions(ctx, req.AccountID)
	if err != nil {
		return model.ImportPreview{}, fmt.Errorf("failed to read existing transactions: %w: %w", ErrStoreUnavailable, err)
	}

	statuses, err := s.duplicates(ctx, extraction.Transactions, existing)
	if err != nil {
		return model.ImportPreview{}, err
	}

	previews := make([]model.ImportTransactionPreview, len(extraction.Transactions))
	for i, tx := range extraction.Transactions {
		previews[i] = model.NewTransactionPreview(tx, statuses[i])
	}
	s.suggestCategories(ctx, req.AccountID, extraction.Transactions, previews)

	preview := model.NewImportPreview(previews, extraction.Errors, extraction.Skipped)
	session.setPreview(mapping, fingerprint, preview)
	return preview, nil
}

// resolveMapping picks the mapping in order: explicit, preset, saved for the
// header fingerprint, detected. It also settles the currency.
func (s *ImportService) resolveMapping(ctx context.Context, st *statement, req ImportRequest) (model.ColumnMapping, string, string, error) {
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))

	var (
		mapping     model.ColumnMapping
		fingerprint string
	)
	switch {
	case req.Mapping != nil:
		mapping = *req.Mapping
	case req.Preset != "":
		preset, ok := sniffer.Preset(req.Preset)
		if !ok {
			return mapping, "", "", fmt.Errorf("%w: %q", ErrUnknownPreset, req.Preset)
		}
		mapping = preset.Mapping
		if currency == "" {
			currency = preset.Currency
		}
	default:
		detection, detectErr := st.detect()
		if detectErr == nil {
			fingerprint = detection.Fingerprint
			mapping = detection.Mapping
		} else {
			fingerprint = st.headerFingerprint()
		}

		saved, err := s.savedMapping(ctx, fingerprint, &req.AccountID)
		if err != nil {
			return mapping, "", "", err
		}
		if saved == nil && detectErr != nil {
			return mapping, "", "", fmt.Errorf("failed to detect file format: %w", detectErr)
		}
		if saved != nil {
			mapping = saved.Mapping
			s.logger.DebugContext(ctx, "using saved mapping",
				slog.String("fingerprint", fingerprint),
				slog.String("mapping_id", saved.ID.String()),
			)
		}
	}

	if currency == "" {
		currency = s.opts.DefaultCurrency
	}
	return mapping.WithDefaults(), currency, fingerprint, nil
}

func (s *ImportService) duplicates(ctx context.Context, txs []model.ParsedTransaction, existing []model.ExistingTransaction) ([]model.DuplicateStatus, error) {
	start := s.now()
	defer s.metrics.ObserveStage("dedupe", start)

	stored, err := s.detector.CheckAll(ctx, txs, existing, s.opts.Workers)
	if err != nil {
		return nil, err
	}
	internal := dedupe.InternalDuplicates(txs)

	var storedCount, batchCount int
	for i := range stored {
		switch {
		case model.IsDuplicate(stored[i]):
			storedCount++
		case model.IsDuplicate(internal[i]):
			batchCount++
		}
	}
	s.metrics.AddDuplicates("existing", storedCount)
	s.metrics.AddDuplicates("batch", batchCount)

	return dedupe.Merge(stored, internal), nil
}

func (s *ImportService) suggestCategories(ctx context.Context, accountID uuid.UUID, txs []model.ParsedTransaction, previews []model.ImportTransactionPreview) {
	if s.categorizer == nil || len(txs) == 0 {
		return
	}
	ids, err := s.categorizer.SuggestCategories(ctx, accountID, txs)
	if err != nil {
		s.logger.WarnContext(ctx, "category suggestion failed", slog.Any("error", err))
		return
	}
	for i := range previews {
		if i < len(ids) {
			previews[i].CategoryID = ids[i]
		}
	}
}

// Commit persists the selected transactions of a previewing session in one batch.
// A failed write returns the sink's error unchanged and leaves the session
// previewing so the commit can be retried.
func (s *ImportService) Commit(ctx context.Context, session *Session) (*ImportResult, error) {
	ctx, span := s.tracer.Start(ctx, "import.Commit", trace.WithAttributes(
		attribute.String("import.session_id", session.ID.String()),
	))
	defer span.End()
	start := s.now()

	preview, err := session.beginCommit()
	if err != nil {
		return nil, spanError(span, err)
	}

	result, err := s.commit(ctx, session, preview)
	session.endCommit(result)
	if err != nil {
		s.metrics.Commit("error")
		s.logger.ErrorContext(ctx, "import commit failed",
			slog.String("session_id", session.ID.String()),
			slog.Any("error", err),
		)
		return nil, spanError(span, err)
	}

	s.metrics.Commit("ok")
	s.metrics.ObserveStage("commit", start)
	span.SetAttributes(attribute.Int("import.imported", result.Imported))
	s.logger.InfoContext(ctx, "import committed",
		slog.String("session_id", session.ID.String()),
		slog.String("account_id", session.AccountID.String()),
		slog.Int("imported", result.Imported),
		slog.Int("skipped", result.Skipped),
		slog.Int("duplicates", result.Duplicates),
		slog.Int("failed", result.Failed),
	)
	return result, nil
}

func (s *ImportService) commit(ctx context.Context, session *Session, preview model.ImportPreview) (*ImportResult, error) {
	now := s.now()
	result := &ImportResult{
		SessionID:  session.ID,
		Duplicates: preview.DuplicateCount,
		Failed:     preview.ErrorCount,
		Errors:     preview.Errors,
	}

	var job *repository.ImportJob
	if s.jobs != nil {
		job = &repository.ImportJob{
			AccountID:  session.AccountID,
			FileName:   session.FileName,
			Status:     repository.JobRunning,
			RowsTotal:  len(preview.Transactions) + preview.ErrorCount + preview.SkippedCount,
			Duplicates: preview.DuplicateCount,
			RowsFailed: preview.ErrorCount,
			StartedAt:  now,
		}
		if err := s.jobs.CreateImportJob(ctx, job); err != nil {
			return nil, fmt.Errorf("failed to create import job: %w: %w", ErrStoreUnavailable, err)
		}
		result.JobID = &job.ID
	}

	records := make([]*repository.Transaction, 0, len(preview.Transactions))
	for _, p := range preview.Transactions {
		if !p.Selected {
			result.Skipped++
			continue
		}
		records = append(records, toRecord(session.AccountID, job, p, now))
	}

	if len(records) > 0 {
		if err := ctx.Err(); err != nil {
			s.finishJob(ctx, job, repository.JobFailed, result, err)
			return nil, err
		}
		imported, err := s.sink.BulkInsertTransactions(ctx, records)
		if err != nil {
			s.finishJob(ctx, job, repository.JobFailed, result, err)
			return nil, err
		}
		result.Imported = imported
	}

	s.finishJob(ctx, job, repository.JobSucceeded, result, nil)
	return result, nil
}

func toRecord(accountID uuid.UUID, job *repository.ImportJob, p model.ImportTransactionPreview, now time.Time) *repository.Transaction {
	tx := p.Transaction
	rec := &repository.Transaction{
		ID:           tx.ID,
		AccountID:    accountID,
		Date:         tx.Date,
		AmountMinor:  tx.MinorUnits(),
		CurrencyCode: tx.Amount.Currency(),
		MerchantName: tx.Merchant,
		Memo:         tx.RawDescription,
		CategoryID:   p.CategoryID,
		Status:       repository.StatusImported,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if job != nil {
		rec.ImportID = &job.ID
	}
	return rec
}

// finishJob closes the job record; failures here are logged, not returned.
func (s *ImportService) finishJob(ctx context.Context, job *repository.ImportJob, status repository.ImportJobStatus, result *ImportResult, cause error) {
	if job == nil {
		return
	}
	finished := s.now()
	job.Status = status
	job.RowsImported = result.Imported
	job.RowsSkipped = result.Skipped
	job.FinishedAt = &finished
	if cause != nil {
		msg := cause.Error()
		job.ErrorMessage = &msg
	}
	if err := s.jobs.FinishImportJob(context.WithoutCancel(ctx), job); err != nil {
		s.logger.WarnContext(ctx, "failed to finish import job",
			slog.String("job_id", job.ID.String()),
			slog.Any("error", err),
		)
	}
}

// SaveMapping remembers a mapping for files whose headers hash to fingerprint.
// A nil accountID saves a global template.
func (s *ImportService) SaveMapping(ctx context.Context, accountID *uuid.UUID, fingerprint, bankName string, mapping model.ColumnMapping) (*repository.BankMapping, error) {
	if s.mappings == nil {
		return nil, ErrNoMappingStore
	}
	if strings.TrimSpace(fingerprint) == "" {
		return nil, fmt.Errorf("%w: fingerprint is required", model.ErrInvalidMapping)
	}
	mapping = mapping.WithDefaults()
	if err := mapping.Validate(); err != nil {
		return nil, err
	}

	m := &repository.BankMapping{
		AccountID:   accountID,
		Fingerprint: fingerprint,
		Mapping:     mapping,
	}
	if bankName = strings.TrimSpace(bankName); bankName != "" {
		m.BankName = &bankName
	}
	if err := s.mappings.SaveMapping(ctx, m); err != nil {
		return nil, fmt.Errorf("failed to save mapping: %w", err)
	}
	return m, nil
}

// AutoImport previews a file and commits the default selection: every
// transaction not flagged as a duplicate.
func (s *ImportService) AutoImport(ctx context.Context, req ImportRequest) (*ImportResult, error) {
	session, err := s.Preview(ctx, req)
	if err != nil {
		return nil, err
	}
	result, err := s.Commit(ctx, session)
	if err != nil && !errors.Is(err, ErrStoreUnavailable) && ctx.Err() == nil {
		// The session is fresh, so anything Commit reports here came from the sink.
		return nil, fmt.Errorf("failed to write transactions: %w: %w", ErrStoreUnavailable, err)
	}
	return result, err
}

func spanError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
