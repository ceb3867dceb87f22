package ruleset

// Selector is the read-only query surface over a loaded dataset. It never
// exposes the underlying collections and never fails: unknown ids and a
// missing dataset yield empty or absent results.
//
// A Selector is safe for concurrent use because the dataset is not mutated
// after load.
type Selector struct {
	dataset *Dataset
	weights SearchWeights
}

// NewSelector creates a selector over the dataset, rebuilding its index when
// needed. A nil dataset produces a selector that reports no data.
func NewSelector(dataset *Dataset) *Selector {
	dataset.EnsureIndex()
	return &Selector{
		dataset: dataset,
		weights: DefaultSearchWeights(),
	}
}

// WithWeights returns a copy of the selector that ranks search results with
// the given field weights.
func (s *Selector) WithWeights(weights SearchWeights) *Selector {
	if s == nil {
		return nil
	}
	return &Selector{dataset: s.dataset, weights: weights}
}

// HasData reports whether the selector is backed by a dataset.
func (s *Selector) HasData() bool {
	return s != nil && s.dataset != nil
}

// Version returns the dataset version, or "" when there is no data.
func (s *Selector) Version() string {
	if !s.HasData() {
		return ""
	}
	return s.dataset.Version
}

// TopLevelSections returns every level-0 entity in source order.
func (s *Selector) TopLevelSections() []*Entity {
	if !s.HasData() {
		return []*Entity{}
	}

	sections := make([]*Entity, 0)
	for _, entity := range s.dataset.Sections {
		if entity.Level == 0 {
			sections = append(sections, entity)
		}
	}
	return sections
}

// ByID looks up an entity by identifier.
func (s *Selector) ByID(id string) (*Entity, bool) {
	if !s.HasData() {
		return nil, false
	}
	entity, ok := s.dataset.Index[id]
	return entity, ok
}

// Children resolves the entity's child ids through the index, dropping any id
// that does not resolve.
func (s *Selector) Children(id string) []*Entity {
	entity, ok := s.ByID(id)
	if !ok {
		return []*Entity{}
	}

	children := make([]*Entity, 0, len(entity.Children))
	for _, childID := range entity.Children {
		if child, ok := s.dataset.Index[childID]; ok {
			children = append(children, child)
		}
	}
	return children
}

// Parent returns the entity's immediate container.
func (s *Selector) Parent(id string) (*Entity, bool) {
	entity, ok := s.ByID(id)
	if !ok || entity.IsRoot() {
		return nil, false
	}
	return s.ByID(entity.ParentID)
}

// Ancestors returns the chain of containers from the root down to the
// entity's parent.
func (s *Selector) Ancestors(id string) []*Entity {
	var chain []*Entity
	seen := map[string]bool{id: true}
	current := id
	for {
		parent, ok := s.Parent(current)
		if !ok || seen[parent.ID] {
			break
		}
		seen[parent.ID] = true
		chain = append([]*Entity{parent}, chain...)
		current = parent.ID
	}
	if chain == nil {
		return []*Entity{}
	}
	return chain
}

// ReferencedBy returns every entity whose cross-references contain id, in
// source order. The scan is intentionally uncached.
func (s *Selector) ReferencedBy(id string) []*Entity {
	if !s.HasData() {
		return []*Entity{}
	}

	referrers := make([]*Entity, 0)
	for _, entity := range s.dataset.Sections {
		if entity.References(id) {
			referrers = append(referrers, entity)
		}
	}
	return referrers
}

// ResolveRefs returns the entities the given entity cites, skipping dangling
// references.
func (s *Selector) ResolveRefs(id string) []*Entity {
	entity, ok := s.ByID(id)
	if !ok {
		return []*Entity{}
	}

	resolved := make([]*Entity, 0, len(entity.CrossRefs))
	for _, ref := range entity.CrossRefs {
		if target, ok := s.dataset.Index[ref]; ok {
			resolved = append(resolved, target)
		}
	}
	return resolved
}

// Statistics returns dataset statistics, or zero values when there is no data.
func (s *Selector) Statistics() Stats {
	if !s.HasData() {
		return Stats{ByLevel: make(map[int]int)}
	}
	return s.dataset.Statistics()
}
