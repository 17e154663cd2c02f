package categorization

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrRuleNotFound = errors.New("category rule not found")
	ErrNoRuleStore  = errors.New("no rule store configured")
	ErrEmptyPattern = errors.New("pattern is required")
)

// DBTX is the subset of pgxpool.Pool the repository needs.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository loads and stores category rules.
type Repository struct {
	db DBTX
}

// NewRepository creates a new categorization repository
func NewRepository(db DBTX) *Repository {
	return &Repository{db: db}
}

// ListRules returns the account's rules followed by the shared ones, highest priority first.
func (r *Repository) ListRules(ctx context.Context, accountID uuid.UUID) ([]Rule, error) {
	query := `
		SELECT id, account_id, pattern, clean_name, category, category_id, priority
		FROM category_rules
		WHERE account_id = $1 OR account_id IS NULL
		ORDER BY CASE WHEN account_id IS NULL THEN 1 ELSE 0 END, priority DESC
	`

	rows, err := r.db.Query(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query category rules: %w", err)
	}
	defer rows.Close()

	var rules []Rule
	for rows.Next() {
		var rule Rule
		if err := rows.Scan(
			&rule.ID,
			&rule.AccountID,
			&rule.Pattern,
			&rule.CleanName,
			&rule.Category,
			&rule.CategoryID,
			&rule.Priority,
		); err != nil {
			return nil, fmt.Errorf("failed to scan category rule: %w", err)
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// CreateRule inserts a rule, or updates the existing rule with the same
// account and pattern. rule.ID is set from the stored row.
func (r *Repository) CreateRule(ctx context.Context, rule *Rule) error {
	query := `
		INSERT INTO category_rules (account_id, pattern, clean_name, category, category_id, priority)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (account_id, pattern) DO UPDATE SET
			clean_name = EXCLUDED.clean_name,
			category = EXCLUDED.category,
			category_id = EXCLUDED.category_id,
			priority = EXCLUDED.priority
		RETURNING id
	`

	err := r.db.QueryRow(ctx, query,
		rule.AccountID,
		rule.Pattern,
		rule.CleanName,
		rule.Category,
		rule.CategoryID,
		rule.Priority,
	).Scan(&rule.ID)
	if err != nil {
		return fmt.Errorf("failed to save category rule: %w", err)
	}
	return nil
}

// DeleteRule removes an account rule.
func (r *Repository) DeleteRule(ctx context.Context, accountID, ruleID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM category_rules WHERE id = $1 AND account_id = $2`, ruleID, accountID)
	if err != nil {
		return fmt.Errorf("failed to delete category rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRuleNotFound
	}
	return nil
}

