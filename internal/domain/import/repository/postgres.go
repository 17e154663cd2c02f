package repository

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/FACorreiaa/statement-import/internal/domain/import/model"
)

// DBTX is the subset of pgxpool.Pool the repository needs.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// PostgresImportRepository implements ImportRepository using PostgreSQL
type PostgresImportRepository struct {
	db  DBTX
	now func() time.Time
}

// NewPostgresImportRepository creates a new PostgreSQL import repository
func NewPostgresImportRepository(db DBTX) *PostgresImportRepository {
	return &PostgresImportRepository{db: db, now: time.Now}
}

var transactionColumns = []string{
	"id", "account_id", "import_id", "date", "amount_minor", "currency_code",
	"merchant_name", "memo", "category_id", "status", "created_at", "updated_at",
}

// ListAccountTransactions returns the duplicate-detection view of every stored
// transaction of an account.
func (r *PostgresImportRepository) ListAccountTransactions(ctx context.Context, accountID uuid.UUID) ([]model.ExistingTransaction, error) {
	query := `
		SELECT id, date, amount_minor, merchant_name
		FROM transactions
		WHERE account_id = $1
		ORDER BY date, created_at`

	rows, err := r.db.Query(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var out []model.ExistingTransaction
	for rows.Next() {
		var e model.ExistingTransaction
		if err := rows.Scan(&e.ID, &e.Date, &e.AmountMinor, &e.Merchant); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		e.Date = model.CalendarDate(e.Date)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return out, nil
}

// BulkInsertTransactions stores txs with a single COPY. Missing ids and
// timestamps are filled in.
func (r *PostgresImportRepository) BulkInsertTransactions(ctx context.Context, txs []*Transaction) (int, error) {
	if len(txs) == 0 {
		return 0, nil
	}

	now := r.now().UTC()
	rows := make([][]any, len(txs))
	for i, t := range txs {
		if t.ID == uuid.Nil {
			t.ID = uuid.New()
		}
		if t.Status == "" {
			t.Status = StatusImported
		}
		if t.CreatedAt.IsZero() {
			t.CreatedAt = now
		}
		if t.UpdatedAt.IsZero() {
			t.UpdatedAt = t.CreatedAt
		}
		rows[i] = []any{
			t.ID, t.AccountID, t.ImportID, t.Date, t.AmountMinor, t.CurrencyCode,
			t.MerchantName, t.Memo, t.CategoryID, string(t.Status), t.CreatedAt, t.UpdatedAt,
		}
	}

	n, err := r.db.CopyFrom(ctx, pgx.Identifier{"transactions"}, transactionColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, fmt.Errorf("failed to insert transactions: %w", err)
	}
	return int(n), nil
}

// GetMappingByFingerprint prefers the account's own mapping over a global template.
func (r *PostgresImportRepository) GetMappingByFingerprint(ctx context.Context, fingerprint string, accountID *uuid.UUID) (*BankMapping, error) {
	query := `
		SELECT ` + mappingColumns + `
		FROM bank_mappings
		WHERE fingerprint = $1 AND (account_id = $2 OR account_id IS NULL)
		ORDER BY account_id NULLS LAST
		LIMIT 1`

	m, err := scanMapping(r.db.QueryRow(ctx, query, fingerprint, accountID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get mapping: %w", err)
	}
	return m, nil
}

// SaveMapping inserts a mapping or replaces the one stored for the same
// account and fingerprint.
func (r *PostgresImportRepository) SaveMapping(ctx context.Context, mapping *BankMapping) error {
	query := `
		INSERT INTO bank_mappings (
			account_id, fingerprint, bank_name, date_column, description_column,
			amount_column, debit_column, credit_column, category_column, date_format,
			delimiter, has_header, skip_lines, is_european_format
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (account_id, fingerprint) DO UPDATE SET
			bank_name = EXCLUDED.bank_name,
			date_column = EXCLUDED.date_column,
			description_column = EXCLUDED.description_column,
			amount_column = EXCLUDED.amount_column,
			debit_column = EXCLUDED.debit_column,
			credit_column = EXCLUDED.credit_column,
			category_column = EXCLUDED.category_column,
			date_format = EXCLUDED.date_format,
			delimiter = EXCLUDED.delimiter,
			has_header = EXCLUDED.has_header,
			skip_lines = EXCLUDED.skip_lines,
			is_european_format = EXCLUDED.is_european_format,
			updated_at = now()
		RETURNING id, created_at, updated_at`

	c := mapping.Mapping
	err := r.db.QueryRow(ctx, query,
		mapping.AccountID,
		mapping.Fingerprint,
		mapping.BankName,
		c.DateColumn,
		c.DescriptionColumn,
		c.AmountColumn,
		c.DebitColumn,
		c.CreditColumn,
		c.CategoryColumn,
		c.DateFormat,
		delimiterText(c.Delimiter),
		c.HasHeader,
		c.SkipLines,
		c.EuropeanFormat,
	).Scan(&mapping.ID, &mapping.CreatedAt, &mapping.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save mapping: %w", err)
	}
	return nil
}

// ListMappings returns the mappings saved for an account.
func (r *PostgresImportRepository) ListMappings(ctx context.Context, accountID uuid.UUID) ([]*BankMapping, error) {
	query := `
		SELECT ` + mappingColumns + `
		FROM bank_mappings
		WHERE account_id = $1
		ORDER BY updated_at DESC`

	rows, err := r.db.Query(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list mappings: %w", err)
	}
	defer rows.Close()

	var out []*BankMapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan mapping: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// CreateImportJob records the start of a commit.
func (r *PostgresImportRepository) CreateImportJob(ctx context.Context, job *ImportJob) error {
	query := `
		INSERT INTO import_jobs (id, account_id, file_name, status, rows_total, started_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.StartedAt.IsZero() {
		job.StartedAt = r.now().UTC()
	}
	if job.Status == "" {
		job.Status = JobRunning
	}

	if _, err := r.db.Exec(ctx, query, job.ID, job.AccountID, job.FileName, string(job.Status), job.RowsTotal, job.StartedAt); err != nil {
		return fmt.Errorf("failed to create import job: %w", err)
	}
	return nil
}

// FinishImportJob stores the final counts and status of a job.
func (r *PostgresImportRepository) FinishImportJob(ctx context.Context, job *ImportJob) error {
	query := `
		UPDATE import_jobs
		SET status = $2, rows_imported = $3, rows_skipped = $4, duplicates = $5,
			rows_failed = $6, error_message = $7, finished_at = $8
		WHERE id = $1`

	finished := r.now().UTC()
	job.FinishedAt = &finished

	tag, err := r.db.Exec(ctx, query,
		job.ID,
		string(job.Status),
		job.RowsImported,
		job.RowsSkipped,
		job.Duplicates,
		job.RowsFailed,
		job.ErrorMessage,
		finished,
	)
	if err != nil {
		return fmt.Errorf("failed to finish import job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const mappingColumns = `id, account_id, fingerprint, bank_name, date_column, description_column,
		amount_column, debit_column, credit_column, category_column, date_format,
		delimiter, has_header, skip_lines, is_european_format, created_at, updated_at`

func scanMapping(row pgx.Row) (*BankMapping, error) {
	var (
		m         BankMapping
		delimiter string
	)
	c := &m.Mapping
	err := row.Scan(
		&m.ID,
		&m.AccountID,
		&m.Fingerprint,
		&m.BankName,
		&c.DateColumn,
		&c.DescriptionColumn,
		&c.AmountColumn,
		&c.DebitColumn,
		&c.CreditColumn,
		&c.CategoryColumn,
		&c.DateFormat,
		&delimiter,
		&c.HasHeader,
		&c.SkipLines,
		&c.EuropeanFormat,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Delimiter, _ = utf8.DecodeRuneInString(delimiter)
	if c.Delimiter == utf8.RuneError {
		c.Delimiter = ','
	}
	return &m, nil
}

func delimiterText(d rune) string {
	if d == 0 {
		return ","
	}
	return string(d)
}
