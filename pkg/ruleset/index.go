package ruleset

import (
	"github.com/rs/zerolog/log"
)

// BuildIndex maps each entity's id to the entity itself.
func BuildIndex(sections []*Entity) map[string]*Entity {
	index := make(map[string]*Entity, len(sections))
	for _, entity := range sections {
		if entity == nil {
			continue
		}
		index[entity.ID] = entity
	}
	return index
}

// EnsureIndex makes Index a bijection with Sections. An empty or inconsistent
// index is rebuilt from Sections; a consistent one is relinked so that index
// entries and sections share the same pointers. It reports whether a rebuild
// happened.
func (d *Dataset) EnsureIndex() bool {
	if d == nil {
		return false
	}

	if len(d.Index) == 0 || len(d.Index) != len(d.Sections) {
		if len(d.Index) > 0 {
			log.Warn().
				Int("index_entries", len(d.Index)).
				Int("sections", len(d.Sections)).
				Msg("index size does not match sections, rebuilding")
		}
		d.Index = BuildIndex(d.Sections)
		return true
	}

	relinked := make(map[string]*Entity, len(d.Sections))
	for _, entity := range d.Sections {
		if entity == nil {
			continue
		}
		if _, ok := d.Index[entity.ID]; !ok {
			log.Warn().Str("id", entity.ID).Msg("section missing from index, rebuilding")
			d.Index = BuildIndex(d.Sections)
			return true
		}
		relinked[entity.ID] = entity
	}
	d.Index = relinked
	return false
}
