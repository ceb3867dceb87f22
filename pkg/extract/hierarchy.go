package extract

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/coolbeans/rulebook/pkg/ruleset"
)

// HierarchyBuilder resolves parent and child links between drafts.
//
// It works in two passes: the first collects the complete label set, the
// second resolves every parent against it. Source order therefore does not
// need to list ancestors first; when it does not, the irregularity is
// recorded as an anomaly.
type HierarchyBuilder struct {
	sectionDivisor int
}

// NewHierarchyBuilder creates a builder that falls back to blocks of
// sectionDivisor when label truncation finds no parent.
func NewHierarchyBuilder(sectionDivisor int) *HierarchyBuilder {
	if sectionDivisor <= 0 {
		sectionDivisor = DefaultSectionDivisor
	}
	return &HierarchyBuilder{sectionDivisor: sectionDivisor}
}

// Build links the drafts and returns the entities in source order together
// with the anomalies found. Later duplicates of an id are dropped.
func (b *HierarchyBuilder) Build(drafts []*Draft) ([]*ruleset.Entity, []ruleset.Anomaly) {
	anomalies := make([]ruleset.Anomaly, 0)

	// Pass 1: unique entities and their source positions.
	entities := make([]*ruleset.Entity, 0, len(drafts))
	lines := make([]int, 0, len(drafts))
	byID := make(map[string]*ruleset.Entity, len(drafts))
	position := make(map[string]int, len(drafts))
	for _, draft := range drafts {
		id := draft.Entity.ID
		if _, dup := byID[id]; dup {
			anomalies = append(anomalies, ruleset.Anomaly{
				Kind:    ruleset.AnomalyDuplicateID,
				ID:      id,
				Line:    draft.Line,
				Message: fmt.Sprintf("label %s repeated at line %d; later entry dropped", draft.Entity.Label, draft.Line),
			})
			continue
		}
		byID[id] = draft.Entity
		position[id] = len(entities)
		entities = append(entities, draft.Entity)
		lines = append(lines, draft.Line)
	}

	// Pass 2: parent resolution against the complete label set.
	for i, entity := range entities {
		parentID, viaBlock := b.resolveParent(entity.ID, byID)

		if parentID == "" {
			if entity.Level != 0 {
				anomalies = append(anomalies, ruleset.Anomaly{
					Kind:    ruleset.AnomalyOrphanRoot,
					ID:      entity.ID,
					Line:    lines[i],
					Message: fmt.Sprintf("no parent found for %s; treated as a root", entity.ID),
				})
			}
			entity.Level = 0
			entity.ParentID = ""
			continue
		}

		entity.ParentID = parentID

		if viaBlock {
			anomalies = append(anomalies, ruleset.Anomaly{
				Kind:     ruleset.AnomalyHundredBlockFallback,
				ID:       entity.ID,
				ParentID: parentID,
				Line:     lines[i],
				Message:  fmt.Sprintf("parent of %s resolved through enclosing block %s", entity.ID, parentID),
			})
		}
		if position[parentID] > i {
			anomalies = append(anomalies, ruleset.Anomaly{
				Kind:     ruleset.AnomalyParentAfterChild,
				ID:       entity.ID,
				ParentID: parentID,
				Line:     lines[i],
				Message:  fmt.Sprintf("parent %s appears after %s in the source", parentID, entity.ID),
			})
		}
	}

	// Children in source order, and level checks once every root is final.
	for i, entity := range entities {
		if entity.ParentID == "" {
			continue
		}
		parent := byID[entity.ParentID]
		parent.Children = append(parent.Children, entity.ID)

		if entity.Level != parent.Level+1 {
			anomalies = append(anomalies, ruleset.Anomaly{
				Kind:     ruleset.AnomalyLevelSkip,
				ID:       entity.ID,
				ParentID: parent.ID,
				Line:     lines[i],
				Message:  fmt.Sprintf("level %d under parent %s at level %d", entity.Level, parent.ID, parent.Level),
			})
		}
	}

	if len(anomalies) > 0 {
		log.Debug().Int("anomalies", len(anomalies)).Msg("hierarchy built with anomalies")
	}

	return entities, anomalies
}

// resolveParent tries every proper prefix of id, longest first, then the
// enclosing block. viaBlock reports whether the block fallback was used.
func (b *HierarchyBuilder) resolveParent(id string, known map[string]*ruleset.Entity) (parentID string, viaBlock bool) {
	label, err := ParseLabel(id)
	if err != nil {
		log.Warn().Err(err).Str("id", id).Msg("unparseable label, treating as root")
		return "", false
	}

	for _, prefix := range label.Prefixes() {
		if _, ok := known[prefix]; ok {
			return prefix, false
		}
	}

	if block, ok := label.Block(b.sectionDivisor); ok && block != id {
		if _, exists := known[block]; exists {
			return block, true
		}
	}

	return "", false
}
