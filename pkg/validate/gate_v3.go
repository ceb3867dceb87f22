package validate

import (
	"fmt"
	"slices"
	"time"

	"github.com/coolbeans/rulebook/pkg/ruleset"
)

// HierarchyGate (V3) validates parent/child links, levels and the index.
type HierarchyGate struct{}

// NewHierarchyGate creates a new V3 hierarchy validation gate.
func NewHierarchyGate() *HierarchyGate {
	return &HierarchyGate{}
}

// Name returns "V3".
func (hierarchyGate *HierarchyGate) Name() string { return "V3" }

// Thresholds returns the default thresholds for hierarchy metrics.
func (hierarchyGate *HierarchyGate) Thresholds() map[string]float64 {
	return map[string]float64{
		"index_consistency": 1.0,
		"parent_linkage":    1.0,
		"level_consistency": 0.90,
		"anomaly_free":      0.80,
	}
}

// Run checks the dataset invariants: a bijective index, parents that list
// their children, and child levels one below their parent.
func (hierarchyGate *HierarchyGate) Run(ctx *ValidationContext) *GateResult {
	startTime := time.Now()
	gateResult := newGateResult(hierarchyGate)

	if ctx.Dataset == nil || ctx.Dataset.Len() == 0 {
		gateResult.Metrics["index_consistency"] = 0.0
		gateResult.Metrics["parent_linkage"] = 0.0
		gateResult.Metrics["level_consistency"] = 0.0
		gateResult.Metrics["anomaly_free"] = 0.0
		evaluateMetrics(gateResult, ctx.Config, hierarchyGate)
		gateResult.Duration = time.Since(startTime)
		return gateResult
	}

	dataset := ctx.Dataset
	gateResult.Metrics["index_consistency"] = boolMetric(indexConsistent(dataset))

	index := dataset.Index
	if len(index) == 0 {
		index = ruleset.BuildIndex(dataset.Sections)
	}

	childCount := 0
	linked := 0
	levelled := 0
	for _, entity := range dataset.Sections {
		if entity.ParentID == "" {
			continue
		}
		childCount++
		parent, ok := index[entity.ParentID]
		if !ok {
			gateResult.Warnings = append(gateResult.Warnings, GateWarning{
				Metric:  "parent_linkage",
				Message: fmt.Sprintf("%s has unknown parent %s", entity.ID, entity.ParentID),
			})
			continue
		}
		if slices.Contains(parent.Children, entity.ID) {
			linked++
		}
		if entity.Level == parent.Level+1 {
			levelled++
		}
	}

	gateResult.Metrics["parent_linkage"] = ratio(linked, childCount)
	gateResult.Metrics["level_consistency"] = ratio(levelled, childCount)
	gateResult.Metrics["anomaly_free"] = 1.0 - min(1.0, ratio(len(dataset.Anomalies), dataset.Len()))

	evaluateMetrics(gateResult, ctx.Config, hierarchyGate)
	gateResult.Duration = time.Since(startTime)
	return gateResult
}

// indexConsistent reports whether the index is a bijection with the
// sections by id. An absent index counts as consistent because it is
// rebuilt on load.
func indexConsistent(dataset *ruleset.Dataset) bool {
	if len(dataset.Index) == 0 {
		return true
	}
	if len(dataset.Index) != len(dataset.Sections) {
		return false
	}
	for _, entity := range dataset.Sections {
		indexed, ok := dataset.Index[entity.ID]
		if !ok || indexed.ID != entity.ID {
			return false
		}
	}
	return true
}
