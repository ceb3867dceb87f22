package extract

import (
	"regexp"
	"sort"
	"strings"
)

// idPattern matches an identifier of the same shape as entity ids.
const idPattern = `\d{3}(?:\.\d+(?:\.[a-z](?:\.\d+(?:\.[a-z])?)?)?)?`

// ReferenceMatch is a candidate reference found by a matcher.
type ReferenceMatch struct {
	// ID is the referenced identifier.
	ID string

	// Offset is the byte offset of the identifier in the text.
	Offset int
}

// ReferenceMatcher finds candidate references in a text. Matchers are
// independent; the extractor merges and de-duplicates their output.
type ReferenceMatcher func(text string) []ReferenceMatch

// PatternMatcher builds a matcher from a regular expression whose first
// capture group is the referenced identifier.
func PatternMatcher(pattern *regexp.Regexp) ReferenceMatcher {
	return func(text string) []ReferenceMatch {
		var matches []ReferenceMatch
		for _, m := range pattern.FindAllStringSubmatchIndex(text, -1) {
			if len(m) < 4 || m[2] == -1 {
				continue
			}
			id := strings.ToLower(strings.TrimSuffix(text[m[2]:m[3]], "."))
			matches = append(matches, ReferenceMatch{ID: id, Offset: m[2]})
		}
		return matches
	}
}

// DefaultMatchers returns the built-in citation styles: "rule <id>",
// "see <id>" and "(<id>)".
func DefaultMatchers() []ReferenceMatcher {
	return []ReferenceMatcher{
		PatternMatcher(regexp.MustCompile(`(?i)\brules?\s+(` + idPattern + `)\b\.?`)),
		PatternMatcher(regexp.MustCompile(`(?i)\bsee\s+(` + idPattern + `)\b\.?`)),
		PatternMatcher(regexp.MustCompile(`(?i)\((` + idPattern + `)\)`)),
	}
}

// ReferenceExtractor detects cross-references in rule text.
type ReferenceExtractor struct {
	matchers []ReferenceMatcher
}

// NewReferenceExtractor creates an extractor with the given matchers, or the
// default matchers when none are given.
func NewReferenceExtractor(matchers ...ReferenceMatcher) *ReferenceExtractor {
	if len(matchers) == 0 {
		matchers = DefaultMatchers()
	}
	return &ReferenceExtractor{matchers: matchers}
}

// AddMatcher registers an additional citation style.
func (e *ReferenceExtractor) AddMatcher(matcher ReferenceMatcher) {
	e.matchers = append(e.matchers, matcher)
}

// Extract returns the identifiers referenced by text in order of first
// appearance, without duplicates and without selfID.
func (e *ReferenceExtractor) Extract(selfID, text string) []string {
	refs := make([]string, 0)
	if text == "" {
		return refs
	}

	var all []ReferenceMatch
	for _, matcher := range e.matchers {
		all = append(all, matcher(text)...)
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Offset < all[j].Offset
	})

	seen := map[string]bool{selfID: true}
	for _, match := range all {
		if match.ID == "" || seen[match.ID] {
			continue
		}
		seen[match.ID] = true
		refs = append(refs, match.ID)
	}
	return refs
}
