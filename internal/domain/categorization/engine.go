package categorization

import (
	"strings"
	"sync"

	"github.com/cloudflare/ahocorasick"
	"github.com/google/uuid"
)

// accountPriority lifts account rules above every built-in rule.
const accountPriority = 1000

// MatchResult is a rule that matched a description.
type MatchResult struct {
	Pattern    string
	CleanName  string
	Category   string
	CategoryID *uuid.UUID
	RuleID     uuid.UUID
	Priority   int
	IsSystem   bool
}

// Engine matches descriptions against all rule keywords in one pass using Aho-Corasick.
type Engine struct {
	matcher  *ahocorasick.Matcher
	patterns []string        // unique uppercased patterns, in matcher order
	metadata [][]MatchResult // every rule sharing a pattern
	mu       sync.RWMutex
}

// NewEngine creates an engine from rules.
func NewEngine(rules []Rule) *Engine {
	e := &Engine{}
	e.Build(rules)
	return e
}

// Build replaces the engine's rules. Rules sharing a pattern are grouped.
func (e *Engine) Build(rules []Rule) {
	patternToIndex := make(map[string]int, len(rules))
	patterns := make([]string, 0, len(rules))
	metadata := make([][]MatchResult, 0, len(rules))

	for _, r := range rules {
		clean := strings.ToUpper(strings.TrimSpace(strings.Trim(r.Pattern, "%")))
		if clean == "" {
			continue
		}

		priority := r.Priority
		if !r.IsSystem() {
			priority += accountPriority
		}
		result := MatchResult{
			Pattern:    r.Pattern,
			CleanName:  r.CleanName,
			Category:   r.Category,
			CategoryID: r.categoryID(),
			RuleID:     r.ID,
			Priority:   priority,
			IsSystem:   r.IsSystem(),
		}

		if idx, ok := patternToIndex[clean]; ok {
			metadata[idx] = append(metadata[idx], result)
			continue
		}
		patternToIndex[clean] = len(patterns)
		patterns = append(patterns, clean)
		metadata = append(metadata, []MatchResult{result})
	}

	var matcher *ahocorasick.Matcher
	if len(patterns) > 0 {
		matcher = ahocorasick.NewStringMatcher(patterns)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.matcher = matcher
	e.patterns = patterns
	e.metadata = metadata
}

// Match returns the highest-priority rule found in description, or nil.
func (e *Engine) Match(description string) *MatchResult {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.match(description)
}

// MatchBatch matches many descriptions under one lock.
func (e *Engine) MatchBatch(descriptions []string) []*MatchResult {
	e.mu.RLock()
	defer e.mu.RUnlock()

	results := make([]*MatchResult, len(descriptions))
	for i, d := range descriptions {
		results[i] = e.match(d)
	}
	return results
}

func (e *Engine) match(description string) *MatchResult {
	if e.matcher == nil {
		return nil
	}

	hits := e.matcher.Match([]byte(strings.ToUpper(description)))
	var best *MatchResult
	for _, idx := range hits {
		if idx < 0 || idx >= len(e.metadata) {
			continue
		}
		for i := range e.metadata[idx] {
			m := e.metadata[idx][i]
			if best == nil || m.Priority > best.Priority {
				best = &m
			}
		}
	}
	return best
}

// PatternCount returns the number of unique patterns loaded.
func (e *Engine) PatternCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.patterns)
}

// IsEmpty reports whether the engine has no patterns.
func (e *Engine) IsEmpty() bool {
	return e.PatternCount() == 0
}
