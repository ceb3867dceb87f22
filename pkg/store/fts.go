package store

import (
	"context"
	"fmt"
	"strings"
)

// defaultFTSLimit caps SearchFTS results when no limit is given.
const defaultFTSLimit = 20

// FTSResult is a full-text search hit.
type FTSResult struct {
	ID      string  `json:"id"`
	Title   string  `json:"title"`
	Level   int     `json:"level"`
	Snippet string  `json:"snippet"`
	Rank    float64 `json:"rank"` // BM25, lower is better
}

// SearchFTS runs a ranked full-text query over ids, titles and content.
// Each whitespace-separated term is matched as a prefix; all terms must
// match. A blank query returns no results.
func (db *DB) SearchFTS(ctx context.Context, query string, limit int) ([]FTSResult, error) {
	results := make([]FTSResult, 0)

	ftsQuery := buildFTSQuery(query)
	if ftsQuery == "" {
		return results, nil
	}
	if limit <= 0 {
		limit = defaultFTSLimit
	}

	rows, err := db.conn.QueryContext(ctx, `
		SELECT
			e.id, e.title, e.level,
			snippet(entities_fts, 2, '[', ']', '...', 12),
			bm25(entities_fts, 10.0, 5.0, 1.0) AS rank
		FROM entities_fts f
		JOIN entities e ON f.rowid = e.rowid
		WHERE entities_fts MATCH ?
		ORDER BY rank, e.position
		LIMIT ?
	`, ftsQuery, limit)
	if err != nil {
		return nil, fmt.Errorf("full-text search failed: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r FTSResult
		if err := rows.Scan(&r.ID, &r.Title, &r.Level, &r.Snippet, &r.Rank); err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// ReferencedBy returns the ids of entities citing id, in source order.
func (db *DB) ReferencedBy(ctx context.Context, id string) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT r.source_id
		FROM cross_refs r
		JOIN entities e ON e.id = r.source_id
		WHERE r.target_id = ?
		ORDER BY e.position
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query references: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var source string
		if err := rows.Scan(&source); err != nil {
			return nil, err
		}
		ids = append(ids, source)
	}
	return ids, rows.Err()
}

// buildFTSQuery quotes every term as an FTS5 string and marks it as a
// prefix query.
func buildFTSQuery(query string) string {
	terms := strings.Fields(query)
	quoted := make([]string, 0, len(terms))
	for _, term := range terms {
		quoted = append(quoted, `"`+strings.ReplaceAll(term, `"`, `""`)+`"*`)
	}
	return strings.Join(quoted, " ")
}
