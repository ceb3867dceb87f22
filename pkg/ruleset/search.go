package ruleset

import (
	"sort"
	"strings"
	"unicode"
)

// snippetContext is the number of characters kept on each side of a content
// match.
const snippetContext = 50

// ellipsis marks a snippet boundary that cut through the content.
const ellipsis = "..."

// SearchField names the entity field a query matched.
type SearchField string

const (
	FieldID      SearchField = "id"
	FieldTitle   SearchField = "title"
	FieldContent SearchField = "content"
)

// SearchWeights assigns a score to each matched field. Scores are summed when
// several fields of the same entity match.
type SearchWeights struct {
	ID      int `json:"id" yaml:"id" mapstructure:"id"`
	Title   int `json:"title" yaml:"title" mapstructure:"title"`
	Content int `json:"content" yaml:"content" mapstructure:"content"`
}

// DefaultSearchWeights ranks identifier matches highest, then titles, then
// content.
func DefaultSearchWeights() SearchWeights {
	return SearchWeights{ID: 10, Title: 5, Content: 1}
}

// FieldMatch describes one field that matched a query.
type FieldMatch struct {
	Field SearchField `json:"field"`

	// Snippet is the surrounding text for content matches.
	Snippet string `json:"snippet,omitempty"`
}

// SearchResult is one ranked search hit.
type SearchResult struct {
	Entity  *Entity      `json:"entity"`
	Score   int          `json:"score"`
	Matches []FieldMatch `json:"matches"`
}

// Search performs a trimmed, case-insensitive substring search over
// identifier, title and content. Results are ordered by descending score and
// ties keep source order. A blank query returns no results.
func (s *Selector) Search(query string) []SearchResult {
	results := make([]SearchResult, 0)
	if !s.HasData() {
		return results
	}

	query = strings.TrimSpace(query)
	if query == "" {
		return results
	}
	queryLower := strings.ToLower(query)

	for _, entity := range s.dataset.Sections {
		score := 0
		var matches []FieldMatch

		if strings.Contains(strings.ToLower(entity.ID), queryLower) ||
			strings.Contains(strings.ToLower(entity.Label), queryLower) {
			score += s.weights.ID
			matches = append(matches, FieldMatch{Field: FieldID})
		}

		if strings.Contains(strings.ToLower(entity.Title), queryLower) {
			score += s.weights.Title
			matches = append(matches, FieldMatch{Field: FieldTitle})
		}

		if snippet, ok := extractSnippet(entity.Content, query, snippetContext); ok {
			score += s.weights.Content
			matches = append(matches, FieldMatch{Field: FieldContent, Snippet: snippet})
		}

		if len(matches) > 0 {
			results = append(results, SearchResult{
				Entity:  entity,
				Score:   score,
				Matches: matches,
			})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	return results
}

// extractSnippet finds the first case-insensitive occurrence of query in text
// and returns it with up to contextChars characters on each side. Cut
// boundaries are marked with an ellipsis.
func extractSnippet(text, query string, contextChars int) (string, bool) {
	textRunes := []rune(text)
	queryRunes := []rune(query)

	idx := indexFold(textRunes, queryRunes)
	if idx == -1 {
		return "", false
	}

	start := max(idx-contextChars, 0)
	end := min(idx+len(queryRunes)+contextChars, len(textRunes))

	snippet := strings.TrimSpace(string(textRunes[start:end]))
	snippet = strings.Join(strings.Fields(snippet), " ")
	if start > 0 {
		snippet = ellipsis + snippet
	}
	if end < len(textRunes) {
		snippet += ellipsis
	}
	return snippet, true
}

// indexFold returns the rune offset of the first case-insensitive occurrence
// of needle in haystack, or -1.
func indexFold(haystack, needle []rune) int {
	if len(needle) == 0 || len(needle) > len(haystack) {
		return -1
	}

outer:
	for i := 0; i+len(needle) <= len(haystack); i++ {
		for j, r := range needle {
			if unicode.ToLower(haystack[i+j]) != unicode.ToLower(r) {
				continue outer
			}
		}
		return i
	}
	return -1
}
