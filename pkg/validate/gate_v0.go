package validate

import (
	"time"
)

// maxSourceSizeBytes is the largest rules source expected (10 MB).
const maxSourceSizeBytes = 10 * 1024 * 1024

// SourceGate (V0) validates the rules source before parsing.
type SourceGate struct{}

// NewSourceGate creates a new V0 source validation gate.
func NewSourceGate() *SourceGate {
	return &SourceGate{}
}

// Name returns "V0".
func (sourceGate *SourceGate) Name() string { return "V0" }

// Thresholds returns the default thresholds for source metrics.
func (sourceGate *SourceGate) Thresholds() map[string]float64 {
	return map[string]float64{
		"source_readable":  1.0,
		"source_not_empty": 1.0,
		"source_size":      1.0,
	}
}

// Run validates the source is named, non-empty and within size limits.
func (sourceGate *SourceGate) Run(ctx *ValidationContext) *GateResult {
	startTime := time.Now()
	gateResult := newGateResult(sourceGate)

	gateResult.Metrics["source_readable"] = boolMetric(ctx.SourcePath != "")
	gateResult.Metrics["source_not_empty"] = boolMetric(ctx.SourceSize > 0)
	gateResult.Metrics["source_size"] = boolMetric(ctx.SourceSize > 0 && ctx.SourceSize <= maxSourceSizeBytes)

	if ctx.SourceSize > maxSourceSizeBytes {
		gateResult.Warnings = append(gateResult.Warnings, GateWarning{
			Metric:  "source_size",
			Message: "source exceeds 10 MB size limit",
			Value:   float64(ctx.SourceSize),
		})
	}

	evaluateMetrics(gateResult, ctx.Config, sourceGate)
	gateResult.Duration = time.Since(startTime)
	return gateResult
}
