package validate

import (
	"fmt"
	"time"

	"github.com/coolbeans/rulebook/pkg/ruleset"
)

// maxReportedDangling caps the dangling references listed as warnings.
const maxReportedDangling = 10

// ReferenceGate (V2) validates cross-references.
type ReferenceGate struct{}

// NewReferenceGate creates a new V2 reference validation gate.
func NewReferenceGate() *ReferenceGate {
	return &ReferenceGate{}
}

// Name returns "V2".
func (referenceGate *ReferenceGate) Name() string { return "V2" }

// Thresholds returns the default thresholds for reference metrics.
func (referenceGate *ReferenceGate) Thresholds() map[string]float64 {
	return map[string]float64{
		"reference_resolution": 0.90,
		"self_reference_free":  1.0,
	}
}

// Run measures how many cross-references resolve to an entity. Dangling
// references are legal but listed as warnings.
func (referenceGate *ReferenceGate) Run(ctx *ValidationContext) *GateResult {
	startTime := time.Now()
	gateResult := newGateResult(referenceGate)

	if ctx.Dataset == nil {
		gateResult.Metrics["reference_resolution"] = 0.0
		gateResult.Metrics["self_reference_free"] = 0.0
		evaluateMetrics(gateResult, ctx.Config, referenceGate)
		gateResult.Duration = time.Since(startTime)
		return gateResult
	}

	index := ctx.Dataset.Index
	if len(index) == 0 {
		index = ruleset.BuildIndex(ctx.Dataset.Sections)
	}

	totalRefs := 0
	resolvedRefs := 0
	selfRefs := 0
	dangling := make([]string, 0)
	for _, entity := range ctx.Dataset.Sections {
		for _, ref := range entity.CrossRefs {
			totalRefs++
			if ref == entity.ID {
				selfRefs++
			}
			if _, ok := index[ref]; ok {
				resolvedRefs++
			} else {
				dangling = append(dangling, fmt.Sprintf("%s -> %s", entity.ID, ref))
			}
		}
	}

	gateResult.Metrics["reference_resolution"] = ratio(resolvedRefs, totalRefs)
	gateResult.Metrics["self_reference_free"] = boolMetric(selfRefs == 0)

	for i, edge := range dangling {
		if i == maxReportedDangling {
			gateResult.Warnings = append(gateResult.Warnings, GateWarning{
				Metric:  "reference_resolution",
				Message: fmt.Sprintf("%d more dangling references", len(dangling)-maxReportedDangling),
			})
			break
		}
		gateResult.Warnings = append(gateResult.Warnings, GateWarning{
			Metric:  "reference_resolution",
			Message: "dangling reference " + edge,
		})
	}

	evaluateMetrics(gateResult, ctx.Config, referenceGate)
	gateResult.Duration = time.Since(startTime)
	return gateResult
}
