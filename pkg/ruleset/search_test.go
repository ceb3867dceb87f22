package ruleset

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchTitleMatch(t *testing.T) {
	results := NewSelector(combatDataset()).Search("initiative")

	require.Len(t, results, 1)
	assert.Equal(t, "100.1", results[0].Entity.ID)
	assert.Equal(t, 6, results[0].Score)
	require.Len(t, results[0].Matches, 2)
	assert.Equal(t, FieldTitle, results[0].Matches[0].Field)
	assert.Equal(t, FieldContent, results[0].Matches[1].Field)
	assert.Equal(t, "Initiative Determines turn order.", results[0].Matches[1].Snippet)
}

func TestSearchQueryNormalization(t *testing.T) {
	selector := NewSelector(combatDataset())

	tests := []struct {
		query string
		want  []string
	}{
		{"", []string{}},
		{"   ", []string{}},
		{"  INITIATIVE ", []string{"100.1"}},
		{"dragons", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got := []string{}
			for _, r := range selector.Search(tt.query) {
				got = append(got, r.Entity.ID)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSearchRanking(t *testing.T) {
	results := NewSelector(combatDataset()).Search("100.1")

	require.Len(t, results, 2)
	assert.Equal(t, "100.1", results[0].Entity.ID)
	assert.Equal(t, 10, results[0].Score)
	assert.Equal(t, "100.2", results[1].Entity.ID)
	assert.Equal(t, 1, results[1].Score, "content mention only")
}

func TestSearchTiesKeepSourceOrder(t *testing.T) {
	results := NewSelector(combatDataset()).Search("100")

	got := []string{}
	for _, r := range results {
		got = append(got, r.Entity.ID)
	}
	// 100.2 also mentions 100.1 in its content; the others tie on id.
	assert.Equal(t, []string{"100.2", "100", "100.1"}, got)
}

func TestSearchCustomWeights(t *testing.T) {
	selector := NewSelector(combatDataset()).WithWeights(SearchWeights{ID: 1, Title: 1, Content: 100})

	results := selector.Search("100.1")
	require.Len(t, results, 2)
	assert.Equal(t, "100.2", results[0].Entity.ID)
}

func TestExtractSnippet(t *testing.T) {
	text := strings.Repeat("a", 80) + " Target word " + strings.Repeat("b", 80)

	snippet, ok := extractSnippet(text, "target", 10)
	require.True(t, ok)
	assert.Equal(t, "...aaaaaaaaa Target word bbbb...", snippet)

	_, ok = extractSnippet(text, "missing", 10)
	assert.False(t, ok)

	snippet, ok = extractSnippet("Short text", "short", 50)
	require.True(t, ok)
	assert.Equal(t, "Short text", snippet)
}

func TestIndexFoldUnicode(t *testing.T) {
	assert.Equal(t, 4, indexFold([]rune("Die Übung"), []rune("übung")))
	assert.Equal(t, -1, indexFold([]rune("abc"), []rune("")))
	assert.Equal(t, -1, indexFold([]rune("ab"), []rune("abc")))
}

func TestSearchIsCaseInsensitive(t *testing.T) {
	selector := NewSelector(combatDataset())

	upper := selector.Search("Combat")
	lower := selector.Search("combat")
	require.NotEmpty(t, lower)
	assert.Equal(t, lower, upper)
}
