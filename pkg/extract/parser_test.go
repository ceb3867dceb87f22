package extract

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coolbeans/rulebook/pkg/ruleset"
)

const combatRules = "100. Combat\n\n100.1. Initiative\nDetermines turn order.\n\n100.2. Attack Resolution\nSee rule 100.1."

func parseCombat(t *testing.T) *ruleset.Dataset {
	t.Helper()
	result, err := NewParser().ParseString(combatRules)
	require.NoError(t, err)
	return result.Dataset
}

func TestParseCombatScenario(t *testing.T) {
	dataset := parseCombat(t)
	require.Len(t, dataset.Sections, 3)

	combat := dataset.Index["100"]
	require.NotNil(t, combat)
	assert.Equal(t, 0, combat.Level)
	assert.Equal(t, "", combat.ParentID)
	assert.Equal(t, []string{"100.1", "100.2"}, combat.Children)
	assert.Equal(t, "Combat", combat.Title)
	assert.Equal(t, "100.", combat.Label)

	initiative := dataset.Index["100.1"]
	require.NotNil(t, initiative)
	assert.Equal(t, 1, initiative.Level)
	assert.Equal(t, "100", initiative.ParentID)
	assert.Empty(t, initiative.CrossRefs)
	assert.Equal(t, "Initiative\nDetermines turn order.", initiative.Content)
	assert.Equal(t, "Initiative", initiative.Title)

	attack := dataset.Index["100.2"]
	require.NotNil(t, attack)
	assert.Equal(t, 1, attack.Level)
	assert.Equal(t, "100", attack.ParentID)
	assert.Equal(t, []string{"100.1"}, attack.CrossRefs)

	assert.Empty(t, dataset.Anomalies)
}

func TestParseReferencedByScenario(t *testing.T) {
	selector := ruleset.NewSelector(parseCombat(t))

	referrers := selector.ReferencedBy("100.1")
	require.Len(t, referrers, 1)
	assert.Equal(t, "100.2", referrers[0].ID)
}

func TestParseSearchScenario(t *testing.T) {
	results := ruleset.NewSelector(parseCombat(t)).Search("initiative")

	require.Len(t, results, 1)
	assert.Equal(t, "100.1", results[0].Entity.ID)

	fields := []ruleset.SearchField{}
	for _, m := range results[0].Matches {
		fields = append(fields, m.Field)
	}
	assert.Contains(t, fields, ruleset.FieldTitle)
}

func TestParseVersionAndMetadata(t *testing.T) {
	updated := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	parser := NewParserWithOptions(Options{Version: "2024-03", LastUpdated: updated})

	result, err := parser.ParseString(combatRules)
	require.NoError(t, err)

	assert.Equal(t, "2024-03", result.Dataset.Version)
	assert.Equal(t, "2024-03-01T12:00:00Z", result.Dataset.LastUpdated)
	assert.Len(t, result.Dataset.SourceChecksum, 64)
	for _, entity := range result.Dataset.Sections {
		assert.Equal(t, "2024-03", entity.DatasetVersion)
	}
}

func TestParseDefaultVersionFromChecksum(t *testing.T) {
	first, err := NewParser().ParseString(combatRules)
	require.NoError(t, err)
	second, err := NewParser().ParseString(strings.ReplaceAll(combatRules, "\n", "\r\n"))
	require.NoError(t, err)

	assert.Len(t, first.Dataset.Version, 12)
	assert.True(t, strings.HasPrefix(first.Dataset.SourceChecksum, first.Dataset.Version))
	assert.Equal(t, first.Dataset.SourceChecksum, second.Dataset.SourceChecksum, "line endings are normalized first")
}

func TestParseLineEndings(t *testing.T) {
	for name, text := range map[string]string{
		"crlf": strings.ReplaceAll(combatRules, "\n", "\r\n"),
		"cr":   strings.ReplaceAll(combatRules, "\n", "\r"),
	} {
		t.Run(name, func(t *testing.T) {
			result, err := NewParser().ParseString(text)
			require.NoError(t, err)
			assert.Equal(t, "Initiative\nDetermines turn order.", result.Dataset.Index["100.1"].Content)
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		text string
		want error
	}{
		{"empty", "", ErrEmptySource},
		{"whitespace", " \n\t\n", ErrEmptySource},
		{"no labels", "Just a preamble.\nNothing numbered.", ErrNoLabels},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := NewParser().ParseString(tt.text)
			assert.Nil(t, result)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestParseStatistics(t *testing.T) {
	result, err := NewParser().ParseString("Preamble line\n\n" + combatRules)
	require.NoError(t, err)

	stats := result.Stats
	assert.Equal(t, 9, stats.Lines)
	assert.Equal(t, 3, stats.LabelledLines)
	assert.Equal(t, 3, stats.ContinuationLines)
	assert.Equal(t, 3, stats.BlankLines)
	assert.Equal(t, 1, stats.PreambleLines)
	assert.Equal(t, 3, stats.Entities)
	assert.Equal(t, 1, stats.CrossRefs)
	assert.Zero(t, stats.Anomalies)
}

func TestParseSampleRulebook(t *testing.T) {
	result, err := NewParser().ParseFile(filepath.Join("testdata", "sample_rules.txt"))
	require.NoError(t, err)
	dataset := result.Dataset

	assert.Equal(t, 16, dataset.Len())
	assert.Equal(t, 3, result.Stats.PreambleLines)

	selector := ruleset.NewSelector(dataset)
	sectionIDs := []string{}
	for _, s := range selector.TopLevelSections() {
		sectionIDs = append(sectionIDs, s.ID)
	}
	assert.Equal(t, []string{"100", "200", "300"}, sectionIDs)

	deepest, ok := selector.ByID("300.1.a.1.b")
	require.True(t, ok)
	assert.Equal(t, 4, deepest.Level)
	assert.Equal(t, "300.1.a.1", deepest.ParentID)

	attack, ok := selector.ByID("300.2")
	require.True(t, ok)
	assert.Equal(t, []string{"300.3", "102.2"}, attack.CrossRefs)
	assert.Contains(t, attack.Content, "\n\nCompare the result")

	assert.Equal(t, []string{"300.2", "999.1"}, dataset.Index["300.3"].CrossRefs)
	assert.Equal(t, []string{"300.1.a"}, dataset.Index["300.1.b"].CrossRefs)

	fallbacks := 0
	for _, a := range dataset.Anomalies {
		if a.Kind == ruleset.AnomalyHundredBlockFallback {
			fallbacks++
		}
	}
	assert.Equal(t, 2, fallbacks, "101 and 102 hang off section 100")
	assert.Equal(t, "100", dataset.Index["102"].ParentID)

	stats := dataset.Statistics()
	assert.Equal(t, 1, stats.Dangling)
	assert.Equal(t, 4, stats.MaxLevel)
}

func TestParseDatasetInvariants(t *testing.T) {
	result, err := NewParser().ParseFile(filepath.Join("testdata", "sample_rules.txt"))
	require.NoError(t, err)
	dataset := result.Dataset

	seen := map[string]bool{}
	for _, entity := range dataset.Sections {
		assert.False(t, seen[entity.ID], "duplicate id %s", entity.ID)
		seen[entity.ID] = true

		assert.Same(t, entity, dataset.Index[entity.ID])
		assert.NotContains(t, entity.CrossRefs, entity.ID)

		if entity.ParentID == "" {
			assert.Equal(t, 0, entity.Level)
			continue
		}
		parent, ok := dataset.Index[entity.ParentID]
		require.True(t, ok, "parent of %s", entity.ID)
		assert.Contains(t, parent.Children, entity.ID)
	}

	for _, entity := range dataset.Sections {
		for _, childID := range entity.Children {
			assert.Equal(t, entity.ID, dataset.Index[childID].ParentID)
		}
	}
	assert.Len(t, dataset.Index, len(dataset.Sections))
}

func TestParseFileNotFound(t *testing.T) {
	_, err := NewParser().ParseFile(filepath.Join(t.TempDir(), "missing.txt"))
	assert.ErrorIs(t, err, ErrSourceNotFound)
}

func TestParseFilesConcurrently(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for i, text := range []string{combatRules, "200. Movement\n\n200.1. Walking", "300. Magic"} {
		path := filepath.Join(dir, "rules"+string(rune('a'+i))+".txt")
		require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
		paths = append(paths, path)
	}

	results, err := NewParser().ParseFiles(context.Background(), paths, 2)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, 3, results[0].Dataset.Len())
	assert.Equal(t, 2, results[1].Dataset.Len())
	assert.Equal(t, 1, results[2].Dataset.Len())
	assert.Equal(t, paths[1], results[1].Source)
}

func TestParseFilesStopsOnError(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.txt")
	require.NoError(t, os.WriteFile(good, []byte(combatRules), 0o644))

	_, err := NewParser().ParseFiles(context.Background(), []string{good, filepath.Join(dir, "missing.txt")}, 0)
	assert.ErrorIs(t, err, ErrSourceNotFound)
}

func TestFetcherFeedsLoader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.txt")
	require.NoError(t, os.WriteFile(path, []byte(combatRules), 0o644))

	loader := ruleset.NewLoader(NewParser().Fetcher(path))
	_, err := loader.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ruleset.StateReady, loader.State())
	assert.Len(t, loader.Selector().TopLevelSections(), 1)
}
