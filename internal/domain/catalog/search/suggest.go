package search

import (
	"sort"
	"strings"
	"sync"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/FACorreiaa/cbhpm-tables/internal/domain/catalog/repository"
)

// Suggestion is a procedure whose description resembles a search term.
type Suggestion struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	Distance    int    `json:"distance"`
}

// Suggester ranks descriptions by closeness to a term. It is used when the
// full-text index finds nothing, typically for misspelled terms.
type Suggester struct {
	mu           sync.RWMutex
	codes        []string
	descriptions []string
	words        [][]string
}

// NewSuggester builds a suggester over procedures.
func NewSuggester(procedures []repository.Procedure) *Suggester {
	s := &Suggester{
		codes:        make([]string, 0, len(procedures)),
		descriptions: make([]string, 0, len(procedures)),
		words:        make([][]string, 0, len(procedures)),
	}
	for _, p := range procedures {
		s.codes = append(s.codes, p.Code)
		s.descriptions = append(s.descriptions, p.Description)
		s.words = append(s.words, strings.Fields(strings.ToLower(p.Description)))
	}
	return s
}

// Suggest returns up to limit procedures. Descriptions containing the term's
// characters in order come first, closest first; then descriptions with a
// word within a small edit distance of the term.
func (s *Suggester) Suggest(term string, limit int) []Suggestion {
	s.mu.RLock()
	defer s.mu.RUnlock()

	term = strings.TrimSpace(term)
	if term == "" {
		return nil
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	ranks := fuzzy.RankFindNormalizedFold(term, s.descriptions)
	sort.Sort(ranks)

	out := make([]Suggestion, 0, limit)
	seen := make(map[int]struct{}, limit)
	for _, r := range ranks {
		if len(out) == limit {
			return out
		}
		seen[r.OriginalIndex] = struct{}{}
		out = append(out, Suggestion{
			Code:        s.codes[r.OriginalIndex],
			Description: r.Target,
			Distance:    r.Distance,
		})
	}

	lower := strings.ToLower(term)
	maxDistance := max(1, len([]rune(lower))/4)

	var near []Suggestion
	for i, words := range s.words {
		if _, ok := seen[i]; ok {
			continue
		}
		best := -1
		for _, w := range words {
			d := fuzzy.LevenshteinDistance(lower, w)
			if best < 0 || d < best {
				best = d
			}
		}
		if best >= 0 && best <= maxDistance {
			near = append(near, Suggestion{Code: s.codes[i], Description: s.descriptions[i], Distance: best})
		}
	}
	sort.SliceStable(near, func(i, j int) bool {
		return near[i].Distance < near[j].Distance
	})

	for _, sg := range near {
		if len(out) == limit {
			break
		}
		out = append(out, sg)
	}
	return out
}

// Len returns the number of descriptions known to the suggester.
func (s *Suggester) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.descriptions)
}
