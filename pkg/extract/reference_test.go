package extract

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReferenceExtractorDefaultPatterns(t *testing.T) {
	extractor := NewReferenceExtractor()

	tests := []struct {
		name   string
		selfID string
		text   string
		want   []string
	}{
		{"rule form", "100.2", "See rule 100.1.", []string{"100.1"}},
		{"plural rules", "100.2", "Rules 300.2 and 300.3 apply.", []string{"300.2"}},
		{"see form", "200", "see 103.1.a.", []string{"103.1.a"}},
		{"parenthesized", "200", "Tokens are not units (300.1.a).", []string{"300.1.a"}},
		{"case insensitive", "200", "RULE 100.1 and SEE 100.2", []string{"100.1", "100.2"}},
		{"no trailing period", "200", "as described in rule 100.1 above", []string{"100.1"}},
		{"deep id", "200", "rule 103.12.c.4.d applies", []string{"103.12.c.4.d"}},
		{"dedup keeps first appearance", "200", "See 300.3. Then rule 100.1, then (300.3).", []string{"300.3", "100.1"}},
		{"merged by offset", "200", "(300.1) before rule 100.1", []string{"300.1", "100.1"}},
		{"self excluded", "100.1", "This rule 100.1 refers to itself and rule 100.2.", []string{"100.2"}},
		{"dangling kept", "100", "see 999.9", []string{"999.9"}},
		{"bare number ignored", "100", "Roll 100 dice on page 101.", []string{}},
		{"rule word inside other word", "100", "overrule 100.1", []string{}},
		{"empty text", "100", "", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractor.Extract(tt.selfID, tt.text)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReferenceExtractorAddMatcher(t *testing.T) {
	extractor := NewReferenceExtractor()
	extractor.AddMatcher(PatternMatcher(regexp.MustCompile(`§\s*(` + idPattern + `)`)))

	got := extractor.Extract("100", "Per § 300.2, see rule 100.1.")
	assert.Equal(t, []string{"300.2", "100.1"}, got)
}

func TestReferenceExtractorCustomMatchersOnly(t *testing.T) {
	arrow := func(text string) []ReferenceMatch {
		if text == "-> 500.1" {
			return []ReferenceMatch{{ID: "500.1", Offset: 3}}
		}
		return nil
	}

	extractor := NewReferenceExtractor(arrow)
	assert.Equal(t, []string{"500.1"}, extractor.Extract("100", "-> 500.1"))
	assert.Empty(t, extractor.Extract("100", "rule 100.1"))
}
