// Package ruleset provides the indexed rule hierarchy model and the read-only
// selectors consumers use to query it.
package ruleset

import (
	"slices"
	"time"
)

// Entity is one node in the rule hierarchy: a section, rule, sub-rule or
// nested detail.
type Entity struct {
	// ID is the dotted label without trailing punctuation (e.g., "103.1.a").
	ID string `json:"id"`

	// Label is the display form including the trailing period (e.g., "103.1.a.").
	Label string `json:"label"`

	// Title is the first line of Content.
	Title string `json:"title"`

	// Content is the full assembled text, continuation lines joined with "\n".
	Content string `json:"content"`

	// Level is the hierarchy depth; 0 is a top-level section.
	Level int `json:"level"`

	// ParentID is the immediate container. Empty only for roots.
	ParentID string `json:"parentId,omitempty"`

	// Children lists immediate descendants in source order.
	Children []string `json:"children"`

	// CrossRefs lists referenced identifiers in order of first appearance.
	CrossRefs []string `json:"crossRefs"`

	// DatasetVersion is the version tag of the source text.
	DatasetVersion string `json:"datasetVersion"`
}

// IsRoot reports whether the entity has no parent.
func (e *Entity) IsRoot() bool {
	return e.ParentID == ""
}

// IsLeaf reports whether the entity has no children.
func (e *Entity) IsLeaf() bool {
	return len(e.Children) == 0
}

// References reports whether the entity's text cites the given id.
func (e *Entity) References(id string) bool {
	return slices.Contains(e.CrossRefs, id)
}

// AnomalyKind classifies a hierarchy irregularity recorded for later audit.
type AnomalyKind string

const (
	// AnomalyHundredBlockFallback marks a parent found through the enclosing
	// hundred-block rather than label truncation.
	AnomalyHundredBlockFallback AnomalyKind = "hundred_block_fallback"

	// AnomalyLevelSkip marks a child whose level is not parent level + 1.
	AnomalyLevelSkip AnomalyKind = "level_skip"

	// AnomalyOrphanRoot marks a non-section label with no resolvable parent.
	AnomalyOrphanRoot AnomalyKind = "orphan_root"

	// AnomalyParentAfterChild marks a parent that appears after its child in
	// the source text.
	AnomalyParentAfterChild AnomalyKind = "parent_after_child"

	// AnomalyDuplicateID marks a repeated label; the later entity is dropped.
	AnomalyDuplicateID AnomalyKind = "duplicate_id"
)

// Anomaly is an audit record produced while building the hierarchy.
type Anomaly struct {
	Kind     AnomalyKind `json:"kind"`
	ID       string      `json:"id"`
	ParentID string      `json:"parentId,omitempty"`
	Line     int         `json:"line,omitempty"`
	Message  string      `json:"message"`
}

// Dataset is the serialized and loaded whole.
type Dataset struct {
	Version        string             `json:"version"`
	LastUpdated    string             `json:"lastUpdated"`
	SourceChecksum string             `json:"sourceChecksum,omitempty"`
	Sections       []*Entity          `json:"sections"`
	Index          map[string]*Entity `json:"index"`
	Anomalies      []Anomaly          `json:"anomalies,omitempty"`
}

// NewDataset creates a dataset over sections with a freshly built index.
func NewDataset(version string, lastUpdated time.Time, sections []*Entity) *Dataset {
	return &Dataset{
		Version:     version,
		LastUpdated: lastUpdated.UTC().Format(time.RFC3339),
		Sections:    sections,
		Index:       BuildIndex(sections),
	}
}

// Len returns the number of entities.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Sections)
}

// Stats holds counts describing a dataset.
type Stats struct {
	Entities  int         `json:"entities"`
	Sections  int         `json:"sections"`
	ByLevel   map[int]int `json:"by_level"`
	CrossRefs int         `json:"cross_refs"`
	Dangling  int         `json:"dangling_refs"`
	Anomalies int         `json:"anomalies"`
	MaxLevel  int         `json:"max_level"`
	LeafCount int         `json:"leaf_count"`
}

// Statistics returns statistics about the dataset.
func (d *Dataset) Statistics() Stats {
	stats := Stats{ByLevel: make(map[int]int)}
	if d == nil {
		return stats
	}

	index := d.Index
	if len(index) == 0 {
		index = BuildIndex(d.Sections)
	}

	stats.Entities = len(d.Sections)
	stats.Anomalies = len(d.Anomalies)
	for _, entity := range d.Sections {
		stats.ByLevel[entity.Level]++
		if entity.Level == 0 {
			stats.Sections++
		}
		if entity.Level > stats.MaxLevel {
			stats.MaxLevel = entity.Level
		}
		if entity.IsLeaf() {
			stats.LeafCount++
		}
		stats.CrossRefs += len(entity.CrossRefs)
		for _, ref := range entity.CrossRefs {
			if _, ok := index[ref]; !ok {
				stats.Dangling++
			}
		}
	}
	return stats
}
