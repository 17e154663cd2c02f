package categorization

import (
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// DefaultFuzzyThreshold is the minimum score (0-100) for a fuzzy suggestion.
const DefaultFuzzyThreshold = 80

// FuzzyMatchResult is a rule whose merchant name resembles the input.
type FuzzyMatchResult struct {
	MatchResult
	Score    int // 0-100, 100 is identical
	Distance int // Levenshtein distance
}

// FuzzyMatcher catches merchant names the keyword engine misses,
// e.g. "Starbuks" or "Pingo Doc".
type FuzzyMatcher struct {
	mu       sync.RWMutex
	patterns []fuzzyPattern
}

type fuzzyPattern struct {
	normalized string
	result     MatchResult
}

// NewFuzzyMatcher creates a matcher over the clean names of rules.
func NewFuzzyMatcher(rules []Rule) *FuzzyMatcher {
	fm := &FuzzyMatcher{}
	fm.Build(rules)
	return fm
}

// Build replaces the matcher's rules. Each clean name is kept once,
// the highest-priority rule wins.
func (fm *FuzzyMatcher) Build(rules []Rule) {
	byName := make(map[string]int)
	patterns := make([]fuzzyPattern, 0, len(rules))

	for _, r := range rules {
		name := strings.ToUpper(strings.TrimSpace(r.CleanName))
		if name == "" {
			continue
		}
		priority := r.Priority
		if !r.IsSystem() {
			priority += accountPriority
		}
		p := fuzzyPattern{
			normalized: name,
			result: MatchResult{
				Pattern:    r.Pattern,
				CleanName:  r.CleanName,
				Category:   r.Category,
				CategoryID: r.categoryID(),
				RuleID:     r.ID,
				Priority:   priority,
				IsSystem:   r.IsSystem(),
			},
		}
		if i, ok := byName[name]; ok {
			if priority > patterns[i].result.Priority {
				patterns[i] = p
			}
			continue
		}
		byName[name] = len(patterns)
		patterns = append(patterns, p)
	}

	fm.mu.Lock()
	defer fm.mu.Unlock()
	fm.patterns = patterns
}

// Match returns the best match scoring at least threshold, or nil.
func (fm *FuzzyMatcher) Match(merchant string, threshold int) *FuzzyMatchResult {
	matches := fm.MatchAll(merchant, threshold)
	if len(matches) == 0 {
		return nil
	}
	return &matches[0]
}

// MatchAll returns every match scoring at least threshold, best first.
// Equal scores are ordered by rule priority.
func (fm *FuzzyMatcher) MatchAll(merchant string, threshold int) []FuzzyMatchResult {
	fm.mu.RLock()
	defer fm.mu.RUnlock()

	input := strings.ToUpper(strings.TrimSpace(merchant))
	if input == "" {
		return nil
	}

	var results []FuzzyMatchResult
	for _, p := range fm.patterns {
		score, distance := fuzzyScore(input, p.normalized)
		if score < threshold {
			continue
		}
		results = append(results, FuzzyMatchResult{
			MatchResult: p.result,
			Score:       score,
			Distance:    distance,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Priority > results[j].Priority
	})
	return results
}

// PatternCount returns the number of merchant names in the matcher.
func (fm *FuzzyMatcher) PatternCount() int {
	fm.mu.RLock()
	defer fm.mu.RUnlock()
	return len(fm.patterns)
}

// fuzzyScore scores two uppercased strings 0-100 from their edit distance.
// A whole-word prefix ("STARBUCKS COFFEE" vs "STARBUCKS") scores at least 85.
func fuzzyScore(s1, s2 string) (int, int) {
	distance := fuzzy.LevenshteinDistance(s1, s2)
	if s1 == s2 {
		return 100, 0
	}

	longest := max(utf8.RuneCountInString(s1), utf8.RuneCountInString(s2))
	score := 100 * (longest - distance) / longest

	if strings.HasPrefix(s1, s2+" ") || strings.HasPrefix(s2, s1+" ") {
		score = max(score, 85)
	}
	return score, distance
}
