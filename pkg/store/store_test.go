package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coolbeans/rulebook/pkg/extract"
	"github.com/coolbeans/rulebook/pkg/ruleset"
)

const combatRules = `100. Combat

100.1. Initiative
Determines turn order.

100.2. Attack Resolution
See rule 100.1.

200. Movement

201. Terrain
Difficult terrain halves movement (see 100.2).

305.1. Stray rule`

func parseDataset(t *testing.T) *ruleset.Dataset {
	t.Helper()
	result, err := extract.NewParserWithOptions(extract.Options{Version: "test-1"}).ParseString(combatRules)
	require.NoError(t, err)
	return result.Dataset
}

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "rules.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSaveAndLoadDataset(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	original := parseDataset(t)

	require.NoError(t, db.SaveDataset(ctx, original))

	loaded, err := db.LoadDataset(ctx)
	require.NoError(t, err)

	assert.Equal(t, original.Version, loaded.Version)
	assert.Equal(t, original.LastUpdated, loaded.LastUpdated)
	assert.Equal(t, original.SourceChecksum, loaded.SourceChecksum)
	assert.Equal(t, original.Anomalies, loaded.Anomalies)
	require.Len(t, loaded.Sections, len(original.Sections))

	for i, entity := range original.Sections {
		assert.Equal(t, entity, loaded.Sections[i], "entity %s", entity.ID)
	}
	assert.Len(t, loaded.Index, len(loaded.Sections))
}

func TestSaveReplacesPreviousDataset(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	require.NoError(t, db.SaveDataset(ctx, parseDataset(t)))

	result, err := extract.NewParser().ParseString("400. Magic\n\n400.1. Casting")
	require.NoError(t, err)
	require.NoError(t, db.SaveDataset(ctx, result.Dataset))

	loaded, err := db.LoadDataset(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Len())

	hits, err := db.SearchFTS(ctx, "combat", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSaveEmptyDataset(t *testing.T) {
	err := openTestDB(t).SaveDataset(context.Background(), &ruleset.Dataset{})
	assert.True(t, errors.Is(err, ruleset.ErrEmptySnapshot))
}

func TestLoadFromEmptyDatabase(t *testing.T) {
	_, err := openTestDB(t).LoadDataset(context.Background())
	assert.ErrorIs(t, err, ruleset.ErrEmptySnapshot)
}

func TestSearchFTS(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	require.NoError(t, db.SaveDataset(ctx, parseDataset(t)))

	hits, err := db.SearchFTS(ctx, "initiative", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "100.1", hits[0].ID)
	assert.Equal(t, "Initiative", hits[0].Title)

	hits, err = db.SearchFTS(ctx, "terr", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "201", hits[0].ID)
	assert.Contains(t, hits[0].Snippet, "[")

	hits, err = db.SearchFTS(ctx, "   ", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = db.SearchFTS(ctx, `"quoted`, 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestReferencedBy(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	require.NoError(t, db.SaveDataset(ctx, parseDataset(t)))

	ids, err := db.ReferencedBy(ctx, "100.1")
	require.NoError(t, err)
	assert.Equal(t, []string{"100.2"}, ids)

	ids, err = db.ReferencedBy(ctx, "999")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestFetcherFeedsLoader(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	require.NoError(t, db.SaveDataset(ctx, parseDataset(t)))

	loader := ruleset.NewLoader(db.Fetcher())
	_, err := loader.Load(ctx)
	require.NoError(t, err)

	selector := loader.Selector()
	entity, ok := selector.ByID("201")
	require.True(t, ok)
	assert.Equal(t, "200", entity.ParentID)
	assert.Len(t, selector.ReferencedBy("100.2"), 1)
}

func TestOpenInMemory(t *testing.T) {
	db, err := Open(":memory:")
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.SaveDataset(context.Background(), parseDataset(t)))
	anomalies, err := db.Anomalies(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, anomalies)
}
