package validate

import (
	"time"
)

// StructureGate (V1) validates the shape of the parsed entities.
type StructureGate struct{}

// NewStructureGate creates a new V1 structure validation gate.
func NewStructureGate() *StructureGate {
	return &StructureGate{}
}

// Name returns "V1".
func (structureGate *StructureGate) Name() string { return "V1" }

// Thresholds returns the default thresholds for structure metrics.
func (structureGate *StructureGate) Thresholds() map[string]float64 {
	return map[string]float64{
		"has_entities":     1.0,
		"has_sections":     1.0,
		"title_coverage":   0.90,
		"labelled_density": 0.20,
	}
}

// Run checks that parsing produced sections, titled entities and a
// reasonable share of labelled lines.
func (structureGate *StructureGate) Run(ctx *ValidationContext) *GateResult {
	startTime := time.Now()
	gateResult := newGateResult(structureGate)

	if ctx.Dataset == nil || ctx.Dataset.Len() == 0 {
		gateResult.Metrics["has_entities"] = 0.0
		gateResult.Metrics["has_sections"] = 0.0
		gateResult.Metrics["title_coverage"] = 0.0
		gateResult.Metrics["labelled_density"] = 0.0
		evaluateMetrics(gateResult, ctx.Config, structureGate)
		gateResult.Duration = time.Since(startTime)
		return gateResult
	}

	sectionCount := 0
	titledCount := 0
	for _, entity := range ctx.Dataset.Sections {
		if entity.Level == 0 {
			sectionCount++
		}
		if entity.Title != "" {
			titledCount++
		}
	}

	gateResult.Metrics["has_entities"] = 1.0
	gateResult.Metrics["has_sections"] = boolMetric(sectionCount > 0)
	gateResult.Metrics["title_coverage"] = ratio(titledCount, ctx.Dataset.Len())

	// labelled_density: labelled lines over non-blank lines. Prose-heavy
	// sources score low here, which usually means labels were missed.
	if ctx.Stats != nil {
		nonBlank := ctx.Stats.LabelledLines + ctx.Stats.ContinuationLines
		gateResult.Metrics["labelled_density"] = min(1.0, ratio(ctx.Stats.LabelledLines, nonBlank)*2)
	} else {
		gateResult.Metrics["labelled_density"] = 1.0
	}

	evaluateMetrics(gateResult, ctx.Config, structureGate)
	gateResult.Duration = time.Since(startTime)
	return gateResult
}
