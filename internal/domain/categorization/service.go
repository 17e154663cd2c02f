package categorization

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/FACorreiaa/statement-import/internal/domain/import/model"
)

// RuleStore is where account-specific rules live.
type RuleStore interface {
	ListRules(ctx context.Context, accountID uuid.UUID) ([]Rule, error)
	CreateRule(ctx context.Context, rule *Rule) error
}

// Suggestion is the category proposed for one transaction.
type Suggestion struct {
	CategoryID *uuid.UUID
	Category   string
	CleanName  string
	RuleID     *uuid.UUID
	Fuzzy      bool
}

type matchers struct {
	engine *Engine
	fuzzy  *FuzzyMatcher
}

// Service suggests categories for imported transactions.
type Service struct {
	store          RuleStore // optional
	logger         *slog.Logger
	fuzzyThreshold int

	cacheMu sync.RWMutex
	cache   map[uuid.UUID]*matchers
	system  *matchers
}

// NewService creates a new categorization service. store may be nil, in
// which case only the built-in rules are used.
func NewService(store RuleStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultRules()
	return &Service{
		store:          store,
		logger:         logger,
		fuzzyThreshold: DefaultFuzzyThreshold,
		cache:          make(map[uuid.UUID]*matchers),
		system:         &matchers{engine: NewEngine(defaults), fuzzy: NewFuzzyMatcher(defaults)},
	}
}

// Categorize suggests a category for each transaction, index-aligned with txs.
// Keyword rules on the raw description win, then fuzzy matching on the
// merchant, then the statement's own category cell. Rule lookup failures
// fall back to the built-in rules.
func (s *Service) Categorize(ctx context.Context, accountID uuid.UUID, txs []model.ParsedTransaction) []*Suggestion {
	m := s.matchersFor(ctx, accountID)

	descriptions := make([]string, len(txs))
	for i, tx := range txs {
		descriptions[i] = tx.RawDescription + " " + tx.Merchant
	}
	hits := m.engine.MatchBatch(descriptions)

	out := make([]*Suggestion, len(txs))
	for i, tx := range txs {
		if hit := hits[i]; hit != nil {
			out[i] = suggestionFrom(*hit, false)
			continue
		}
		if f := m.fuzzy.Match(tx.Merchant, s.fuzzyThreshold); f != nil {
			out[i] = suggestionFrom(f.MatchResult, true)
			continue
		}
		if name := strings.TrimSpace(tx.Category); name != "" {
			id := CategoryIDFor(name)
			out[i] = &Suggestion{CategoryID: &id, Category: name}
		}
	}
	return out
}

// SuggestCategories returns only the category ids of Categorize.
func (s *Service) SuggestCategories(ctx context.Context, accountID uuid.UUID, txs []model.ParsedTransaction) ([]*uuid.UUID, error) {
	suggestions := s.Categorize(ctx, accountID, txs)
	ids := make([]*uuid.UUID, len(suggestions))
	for i, sg := range suggestions {
		if sg != nil {
			ids[i] = sg.CategoryID
		}
	}
	return ids, nil
}

// CreateRule stores an account rule and drops the account's cached matchers.
func (s *Service) CreateRule(ctx context.Context, accountID uuid.UUID, pattern, cleanName, category string) (*Rule, error) {
	if s.store == nil {
		return nil, ErrNoRuleStore
	}
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return nil, ErrEmptyPattern
	}

	rule := &Rule{
		AccountID: &accountID,
		Pattern:   pattern,
		CleanName: cleanName,
		Category:  category,
	}
	rule.CategoryID = rule.categoryID()

	if err := s.store.CreateRule(ctx, rule); err != nil {
		return nil, err
	}
	s.Invalidate(accountID)
	return rule, nil
}

// Invalidate drops cached matchers for an account.
func (s *Service) Invalidate(accountID uuid.UUID) {
	s.cacheMu.Lock()
	delete(s.cache, accountID)
	s.cacheMu.Unlock()
}

func (s *Service) matchersFor(ctx context.Context, accountID uuid.UUID) *matchers {
	if s.store == nil {
		return s.system
	}

	s.cacheMu.RLock()
	m, ok := s.cache[accountID]
	s.cacheMu.RUnlock()
	if ok {
		return m
	}

	stored, err := s.store.ListRules(ctx, accountID)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to load category rules, using defaults",
			slog.String("account_id", accountID.String()),
			slog.Any("error", err))
		return s.system
	}

	rules := append(DefaultRules(), stored...)
	m = &matchers{engine: NewEngine(rules), fuzzy: NewFuzzyMatcher(rules)}

	s.cacheMu.Lock()
	s.cache[accountID] = m
	s.cacheMu.Unlock()
	return m
}

func suggestionFrom(m MatchResult, fuzzy bool) *Suggestion {
	ruleID := m.RuleID
	return &Suggestion{
		CategoryID: m.CategoryID,
		Category:   m.Category,
		CleanName:  m.CleanName,
		RuleID:     &ruleID,
		Fuzzy:      fuzzy,
	}
}
