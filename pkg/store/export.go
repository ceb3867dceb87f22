package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/coolbeans/rulebook/pkg/ruleset"
)

// Metadata keys in dataset_meta.
const (
	metaVersion        = "version"
	metaLastUpdated    = "last_updated"
	metaSourceChecksum = "source_checksum"
)

// SaveDataset replaces the stored dataset with dataset.
func (db *DB) SaveDataset(ctx context.Context, dataset *ruleset.Dataset) error {
	if dataset.Len() == 0 {
		return ruleset.ErrEmptySnapshot
	}

	err := db.WithTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"dataset_meta", "cross_refs", "anomalies", "entities"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}

		meta := map[string]string{
			metaVersion:        dataset.Version,
			metaLastUpdated:    dataset.LastUpdated,
			metaSourceChecksum: dataset.SourceChecksum,
		}
		for key, value := range meta {
			if _, err := tx.ExecContext(ctx, "INSERT INTO dataset_meta (key, value) VALUES (?, ?)", key, value); err != nil {
				return fmt.Errorf("failed to write metadata %s: %w", key, err)
			}
		}

		entityStmt, err := tx.PrepareContext(ctx, `
			INSERT INTO entities (id, label, title, content, level, parent_id, position, dataset_version)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare entity statement: %w", err)
		}
		defer entityStmt.Close()

		refStmt, err := tx.PrepareContext(ctx, `
			INSERT OR IGNORE INTO cross_refs (source_id, target_id, position) VALUES (?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare reference statement: %w", err)
		}
		defer refStmt.Close()

		for position, entity := range dataset.Sections {
			var parentID sql.NullString
			if entity.ParentID != "" {
				parentID = sql.NullString{String: entity.ParentID, Valid: true}
			}
			if _, err := entityStmt.ExecContext(ctx,
				entity.ID, entity.Label, entity.Title, entity.Content,
				entity.Level, parentID, position, entity.DatasetVersion,
			); err != nil {
				return fmt.Errorf("failed to insert entity %s: %w", entity.ID, err)
			}

			for refPosition, target := range entity.CrossRefs {
				if _, err := refStmt.ExecContext(ctx, entity.ID, target, refPosition); err != nil {
					return fmt.Errorf("failed to insert reference %s -> %s: %w", entity.ID, target, err)
				}
			}
		}

		for _, anomaly := range dataset.Anomalies {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO anomalies (kind, entity_id, parent_id, line, message) VALUES (?, ?, ?, ?, ?)
			`, string(anomaly.Kind), anomaly.ID, anomaly.ParentID, anomaly.Line, anomaly.Message); err != nil {
				return fmt.Errorf("failed to insert anomaly for %s: %w", anomaly.ID, err)
			}
		}

		if _, err := tx.ExecContext(ctx, "INSERT INTO entities_fts(entities_fts) VALUES('rebuild')"); err != nil {
			return fmt.Errorf("failed to rebuild FTS: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Info().
		Str("path", db.dbPath).
		Str("version", dataset.Version).
		Int("entities", dataset.Len()).
		Msg("dataset exported")
	return nil
}

// LoadDataset reads the stored dataset back. Children are rebuilt from the
// stored parent links in source order.
func (db *DB) LoadDataset(ctx context.Context) (*ruleset.Dataset, error) {
	dataset := &ruleset.Dataset{}

	metaRows, err := db.conn.QueryContext(ctx, "SELECT key, value FROM dataset_meta")
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}
	for metaRows.Next() {
		var key, value string
		if err := metaRows.Scan(&key, &value); err != nil {
			metaRows.Close()
			return nil, fmt.Errorf("failed to scan metadata: %w", err)
		}
		switch key {
		case metaVersion:
			dataset.Version = value
		case metaLastUpdated:
			dataset.LastUpdated = value
		case metaSourceChecksum:
			dataset.SourceChecksum = value
		}
	}
	metaRows.Close()
	if err := metaRows.Err(); err != nil {
		return nil, err
	}

	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, label, title, content, level, parent_id, dataset_version
		FROM entities ORDER BY position
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to read entities: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]*ruleset.Entity)
	for rows.Next() {
		entity := &ruleset.Entity{Children: []string{}, CrossRefs: []string{}}
		var parentID sql.NullString
		if err := rows.Scan(&entity.ID, &entity.Label, &entity.Title, &entity.Content,
			&entity.Level, &parentID, &entity.DatasetVersion); err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		entity.ParentID = parentID.String
		dataset.Sections = append(dataset.Sections, entity)
		byID[entity.ID] = entity
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(dataset.Sections) == 0 {
		return nil, ruleset.ErrEmptySnapshot
	}

	for _, entity := range dataset.Sections {
		if parent, ok := byID[entity.ParentID]; ok {
			parent.Children = append(parent.Children, entity.ID)
		}
	}

	if err := db.loadCrossRefs(ctx, byID); err != nil {
		return nil, err
	}
	anomalies, err := db.Anomalies(ctx)
	if err != nil {
		return nil, err
	}
	dataset.Anomalies = anomalies

	dataset.EnsureIndex()
	return dataset, nil
}

func (db *DB) loadCrossRefs(ctx context.Context, byID map[string]*ruleset.Entity) error {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT source_id, target_id FROM cross_refs ORDER BY source_id, position")
	if err != nil {
		return fmt.Errorf("failed to read references: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var source, target string
		if err := rows.Scan(&source, &target); err != nil {
			return fmt.Errorf("failed to scan reference: %w", err)
		}
		if entity, ok := byID[source]; ok {
			entity.CrossRefs = append(entity.CrossRefs, target)
		}
	}
	return rows.Err()
}

// Anomalies returns the stored audit records in insertion order.
func (db *DB) Anomalies(ctx context.Context) ([]ruleset.Anomaly, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT kind, entity_id, parent_id, line, message FROM anomalies ORDER BY seq")
	if err != nil {
		return nil, fmt.Errorf("failed to read anomalies: %w", err)
	}
	defer rows.Close()

	var anomalies []ruleset.Anomaly
	for rows.Next() {
		var anomaly ruleset.Anomaly
		var kind string
		var parentID sql.NullString
		var line sql.NullInt64
		if err := rows.Scan(&kind, &anomaly.ID, &parentID, &line, &anomaly.Message); err != nil {
			return nil, fmt.Errorf("failed to scan anomaly: %w", err)
		}
		anomaly.Kind = ruleset.AnomalyKind(kind)
		anomaly.ParentID = parentID.String
		anomaly.Line = int(line.Int64)
		anomalies = append(anomalies, anomaly)
	}
	return anomalies, rows.Err()
}

// Fetcher returns a loader fetch function reading from this database.
func (db *DB) Fetcher() ruleset.FetchFunc {
	return db.LoadDataset
}
