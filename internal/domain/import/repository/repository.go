// Package repository provides data access for import-related entities.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/FACorreiaa/statement-import/internal/domain/import/model"
	"github.com/FACorreiaa/statement-import/pkg/money"
)

var ErrNotFound = errors.New("not found")

// TransactionStatus is the lifecycle state of a stored transaction.
type TransactionStatus string

const (
	StatusImported TransactionStatus = "imported"
	StatusReviewed TransactionStatus = "reviewed"
)

// Transaction is a finalized transaction as persisted.
type Transaction struct {
	ID           uuid.UUID         `db:"id"`
	AccountID    uuid.UUID         `db:"account_id"`
	ImportID     *uuid.UUID        `db:"import_id"`
	Date         time.Time         `db:"date"`
	AmountMinor  int64             `db:"amount_minor"` // negative for outflows
	CurrencyCode string            `db:"currency_code"`
	MerchantName string            `db:"merchant_name"`
	Memo         string            `db:"memo"` // raw bank description
	CategoryID   *uuid.UUID        `db:"category_id"`
	Status       TransactionStatus `db:"status"`
	CreatedAt    time.Time         `db:"created_at"`
	UpdatedAt    time.Time         `db:"updated_at"`
}

// Money returns the transaction amount as a money value.
func (t *Transaction) Money() *money.Money {
	return money.New(t.AmountMinor, t.CurrencyCode)
}

// BankMapping is a column mapping remembered for a header fingerprint.
type BankMapping struct {
	ID          uuid.UUID  `db:"id"`
	AccountID   *uuid.UUID `db:"account_id"` // NULL = global template
	Fingerprint string     `db:"fingerprint"`
	BankName    *string    `db:"bank_name"`
	Mapping     model.ColumnMapping
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// ImportJobStatus is the outcome of a committed import.
type ImportJobStatus string

const (
	JobRunning   ImportJobStatus = "running"
	JobSucceeded ImportJobStatus = "succeeded"
	JobFailed    ImportJobStatus = "failed"
)

// ImportJob records one committed import.
type ImportJob struct {
	ID           uuid.UUID       `db:"id"`
	AccountID    uuid.UUID       `db:"account_id"`
	FileName     string          `db:"file_name"`
	Status       ImportJobStatus `db:"status"`
	RowsTotal    int             `db:"rows_total"`
	RowsImported int             `db:"rows_imported"`
	RowsSkipped  int             `db:"rows_skipped"`
	Duplicates   int             `db:"duplicates"`
	RowsFailed   int             `db:"rows_failed"`
	ErrorMessage *string         `db:"error_message"`
	StartedAt    time.Time       `db:"started_at"`
	FinishedAt   *time.Time      `db:"finished_at"`
}

// TransactionRepository reads existing transactions and stores imported ones.
type TransactionRepository interface {
	ListAccountTransactions(ctx context.Context, accountID uuid.UUID) ([]model.ExistingTransaction, error)
	BulkInsertTransactions(ctx context.Context, txs []*Transaction) (int, error)
}

// MappingRepository remembers column mappings by header fingerprint.
type MappingRepository interface {
	GetMappingByFingerprint(ctx context.Context, fingerprint string, accountID *uuid.UUID) (*BankMapping, error)
	SaveMapping(ctx context.Context, mapping *BankMapping) error
	ListMappings(ctx context.Context, accountID uuid.UUID) ([]*BankMapping, error)
}

// ImportJobRepository keeps the history of committed imports.
type ImportJobRepository interface {
	CreateImportJob(ctx context.Context, job *ImportJob) error
	FinishImportJob(ctx context.Context, job *ImportJob) error
}

// ImportRepository defines data access operations for imports
type ImportRepository interface {
	TransactionRepository
	MappingRepository
	ImportJobRepository
}
