package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/statement-import/internal/domain/import/model"
)

var fixedNow = time.Date(2026, 1, 20, 9, 30, 0, 0, time.UTC)

func newMockRepo(t *testing.T) (*PostgresImportRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	repo := NewPostgresImportRepository(mock)
	repo.now = func() time.Time { return fixedNow }
	return repo, mock
}

func TestListAccountTransactions(t *testing.T) {
	repo, mock := newMockRepo(t)
	accountID := uuid.New()
	id := uuid.New()

	mock.ExpectQuery(`SELECT id, date, amount_minor, merchant_name`).
		WithArgs(accountID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "date", "amount_minor", "merchant_name"}).
			AddRow(id, time.Date(2026, 1, 10, 15, 0, 0, 0, time.UTC), int64(-500), "Starbucks"))

	got, err := repo.ListAccountTransactions(context.Background(), accountID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, model.ExistingTransaction{
		ID:          id,
		Date:        time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC),
		AmountMinor: -500,
		Merchant:    "Starbucks",
	}, got[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListAccountTransactions_Error(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(`SELECT id, date`).WillReturnError(errors.New("connection reset"))

	_, err := repo.ListAccountTransactions(context.Background(), uuid.New())
	assert.ErrorContains(t, err, "failed to list transactions")
}

func TestBulkInsertTransactions(t *testing.T) {
	t.Run("copies all rows in one call", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		accountID := uuid.New()
		txs := []*Transaction{
			{AccountID: accountID, Date: fixedNow, AmountMinor: -450, CurrencyCode: "EUR", MerchantName: "Starbucks"},
			{AccountID: accountID, Date: fixedNow, AmountMinor: 500000, CurrencyCode: "EUR", MerchantName: "Acme Payroll"},
		}

		mock.ExpectCopyFrom(pgx.Identifier{"transactions"}, transactionColumns).WillReturnResult(2)

		n, err := repo.BulkInsertTransactions(context.Background(), txs)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		for _, tx := range txs {
			assert.NotEqual(t, uuid.Nil, tx.ID)
			assert.Equal(t, StatusImported, tx.Status)
			assert.Equal(t, fixedNow, tx.CreatedAt)
		}
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty batch is a no-op", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		n, err := repo.BulkInsertTransactions(context.Background(), nil)
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("surfaces copy errors", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectCopyFrom(pgx.Identifier{"transactions"}, transactionColumns).
			WillReturnError(errors.New("unique violation"))

		_, err := repo.BulkInsertTransactions(context.Background(), []*Transaction{{AccountID: uuid.New()}})
		assert.ErrorContains(t, err, "unique violation")
	})
}

func mappingRow(id uuid.UUID, accountID *uuid.UUID, delimiter string) *pgxmock.Rows {
	bank := "CGD"
	return pgxmock.NewRows([]string{
		"id", "account_id", "fingerprint", "bank_name", "date_column", "description_column",
		"amount_column", "debit_column", "credit_column", "category_column", "date_format",
		"delimiter", "has_header", "skip_lines", "is_european_format", "created_at", "updated_at",
	}).AddRow(
		id, accountID, "abc123", &bank, "Data mov.", "Descrição",
		"", "Débito", "Crédito", "", "02-01-2006",
		delimiter, true, 6, true, fixedNow, fixedNow,
	)
}

func TestGetMappingByFingerprint(t *testing.T) {
	repo, mock := newMockRepo(t)
	accountID := uuid.New()
	id := uuid.New()

	mock.ExpectQuery(`SELECT id, account_id, fingerprint`).
		WithArgs("abc123", &accountID).
		WillReturnRows(mappingRow(id, &accountID, ";"))

	m, err := repo.GetMappingByFingerprint(context.Background(), "abc123", &accountID)
	require.NoError(t, err)
	assert.Equal(t, id, m.ID)
	assert.Equal(t, ';', m.Mapping.Delimiter)
	assert.True(t, m.Mapping.IsDoubleEntry())
	assert.True(t, m.Mapping.EuropeanFormat)
	assert.Equal(t, 6, m.Mapping.SkipLines)
	assert.NoError(t, m.Mapping.Validate())
}

func TestGetMappingByFingerprint_NotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(`SELECT id, account_id, fingerprint`).
		WithArgs("missing", (*uuid.UUID)(nil)).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetMappingByFingerprint(context.Background(), "missing", nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveMapping(t *testing.T) {
	repo, mock := newMockRepo(t)
	accountID := uuid.New()
	id := uuid.New()
	mapping, err := model.NewAmountMapping("Date", "Description", "Amount", model.ISODateLayout, '\t')
	require.NoError(t, err)

	bm := &BankMapping{AccountID: &accountID, Fingerprint: "fp", Mapping: mapping}

	mock.ExpectQuery(`INSERT INTO bank_mappings`).
		WithArgs(&accountID, "fp", (*string)(nil), "Date", "Description", "Amount", "", "", "",
			model.ISODateLayout, "\t", true, 0, false).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(id, fixedNow, fixedNow))

	require.NoError(t, repo.SaveMapping(context.Background(), bm))
	assert.Equal(t, id, bm.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListMappings(t *testing.T) {
	repo, mock := newMockRepo(t)
	accountID := uuid.New()

	mock.ExpectQuery(`SELECT id, account_id, fingerprint`).
		WithArgs(accountID).
		WillReturnRows(mappingRow(uuid.New(), &accountID, ""))

	list, err := repo.ListMappings(context.Background(), accountID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, ',', list[0].Mapping.Delimiter)
}

func TestImportJobs(t *testing.T) {
	repo, mock := newMockRepo(t)
	job := &ImportJob{AccountID: uuid.New(), FileName: "statement.csv", RowsTotal: 10}

	mock.ExpectExec(`INSERT INTO import_jobs`).
		WithArgs(pgxmock.AnyArg(), job.AccountID, "statement.csv", "running", 10, fixedNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, repo.CreateImportJob(context.Background(), job))
	assert.NotEqual(t, uuid.Nil, job.ID)

	job.Status = JobSucceeded
	job.RowsImported = 8
	job.Duplicates = 1
	job.RowsFailed = 1
	mock.ExpectExec(`UPDATE import_jobs`).
		WithArgs(job.ID, "succeeded", 8, 0, 1, 1, (*string)(nil), fixedNow).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, repo.FinishImportJob(context.Background(), job))
	require.NotNil(t, job.FinishedAt)

	mock.ExpectExec(`UPDATE import_jobs`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	assert.ErrorIs(t, repo.FinishImportJob(context.Background(), job), ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := Migrations.ReadDir(MigrationsDir)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, "00001_import_schema.sql", entries[0].Name())
}
