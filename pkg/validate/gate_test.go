package validate

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coolbeans/rulebook/pkg/extract"
	"github.com/coolbeans/rulebook/pkg/ruleset"
)

var _ ValidationGate = (*SourceGate)(nil)
var _ ValidationGate = (*StructureGate)(nil)
var _ ValidationGate = (*ReferenceGate)(nil)
var _ ValidationGate = (*HierarchyGate)(nil)

const combatRules = "100. Combat\n\n100.1. Initiative\nDetermines turn order.\n\n100.2. Attack Resolution\nSee rule 100.1."

func parseContext(t *testing.T, text string, config *ValidationConfig) *ValidationContext {
	t.Helper()
	result, err := extract.NewParser().ParseString(text)
	require.NoError(t, err)
	result.Source = "rules.txt"
	return NewValidationContext(result, int64(len(text)), config)
}

func defaultPipeline(config *ValidationConfig) *GatePipeline {
	pipeline := NewGatePipeline(config)
	pipeline.RegisterDefaultGates()
	return pipeline
}

func TestPipelineCleanDatasetPasses(t *testing.T) {
	ctx := parseContext(t, combatRules, nil)
	report := defaultPipeline(nil).Run(ctx)

	assert.True(t, report.OverallPass, report.String())
	assert.Equal(t, 4, report.GatesPassed)
	assert.Zero(t, report.GatesFailed)
	assert.InDelta(t, 1.0, report.TotalScore, 1e-9)
	assert.Empty(t, report.Anomalies)

	for _, result := range report.Results {
		assert.Empty(t, result.Warnings, "gate %s", result.Gate)
	}
}

func TestSourceGate(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		size   int64
		passed bool
	}{
		{"valid", "rules.txt", 1024, true},
		{"no path", "", 1024, false},
		{"empty", "rules.txt", 0, false},
		{"too large", "rules.txt", maxSourceSizeBytes + 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := &ValidationContext{SourcePath: tt.path, SourceSize: tt.size, Config: DefaultValidationConfig()}
			result := NewSourceGate().Run(ctx)
			assert.Equal(t, tt.passed, result.Passed)
		})
	}
}

func TestStructureGateWithoutDataset(t *testing.T) {
	result := NewStructureGate().Run(&ValidationContext{})
	assert.False(t, result.Passed)
	assert.Zero(t, result.Metrics["has_entities"])
}

func TestReferenceGateDanglingReferences(t *testing.T) {
	ctx := parseContext(t, combatRules+"\n\n100.3. Ranged\nSee rule 999.9.", nil)

	result := NewReferenceGate().Run(ctx)
	assert.False(t, result.Passed)
	assert.InDelta(t, 0.5, result.Metrics["reference_resolution"], 1e-9)
	require.NotEmpty(t, result.Warnings)
	assert.Contains(t, result.Warnings[0].Message, "100.3 -> 999.9")
}

func TestReferenceGateThresholdOverride(t *testing.T) {
	config := DefaultValidationConfig()
	config.Thresholds["V2.reference_resolution"] = 0.4
	ctx := parseContext(t, combatRules+"\n\n100.3. Ranged\nSee rule 999.9.", config)

	result := NewReferenceGate().Run(ctx)
	assert.True(t, result.Passed)
	assert.Empty(t, result.Errors)
}

func TestHierarchyGateFlagsAnomalies(t *testing.T) {
	ctx := parseContext(t, "100. Combat\n\n205.1. Stray rule", nil)

	result := NewHierarchyGate().Run(ctx)
	assert.False(t, result.Passed)
	assert.InDelta(t, 0.5, result.Metrics["anomaly_free"], 1e-9)
	assert.Equal(t, 1.0, result.Metrics["index_consistency"])
}

func TestHierarchyGateInconsistentIndex(t *testing.T) {
	ctx := parseContext(t, combatRules, nil)
	delete(ctx.Dataset.Index, "100.2")

	result := NewHierarchyGate().Run(ctx)
	assert.Equal(t, 0.0, result.Metrics["index_consistency"])
	assert.False(t, result.Passed)
}

func TestHierarchyGateEmptyIndexIsConsistent(t *testing.T) {
	ctx := parseContext(t, combatRules, nil)
	ctx.Dataset.Index = map[string]*ruleset.Entity{}

	result := NewHierarchyGate().Run(ctx)
	assert.True(t, result.Passed)
}

func TestPipelineStrictModeHalts(t *testing.T) {
	config := DefaultValidationConfig()
	config.StrictMode = true

	report := defaultPipeline(config).Run(&ValidationContext{})
	assert.False(t, report.OverallPass)
	assert.Equal(t, "V0", report.HaltedAt)
	assert.Len(t, report.Results, 1)
}

func TestPipelineFailOnWarn(t *testing.T) {
	config := DefaultValidationConfig()
	config.FailOnWarn = true
	config.Thresholds["V2.reference_resolution"] = 0.4
	ctx := parseContext(t, combatRules+"\n\n100.3. Ranged\nSee rule 999.9.", config)

	report := defaultPipeline(config).Run(ctx)
	assert.False(t, report.OverallPass)
	assert.Equal(t, "V2", report.HaltedAt)
}

func TestPipelineSkipGates(t *testing.T) {
	config := DefaultValidationConfig()
	config.SkipGates = []string{"v0", "V2"}

	report := defaultPipeline(config).Run(parseContext(t, combatRules, config))
	assert.Equal(t, 2, report.GatesSkipped)
	assert.Equal(t, 2, report.GatesPassed)
	assert.True(t, report.Results[0].Skipped)
}

func TestRunGate(t *testing.T) {
	pipeline := defaultPipeline(nil)
	ctx := parseContext(t, combatRules, nil)

	result := pipeline.RunGate("V3", ctx)
	require.NotNil(t, result)
	assert.Equal(t, "V3", result.Gate)
	assert.Nil(t, pipeline.RunGate("V9", ctx))
}

func TestReportFormats(t *testing.T) {
	ctx := parseContext(t, "100. Combat\n\n205.1. Stray rule", nil)
	report := defaultPipeline(nil).Run(ctx)

	text := report.String()
	assert.Contains(t, text, "[FAIL] Gate V3")
	assert.Contains(t, text, "orphan_root")
	assert.Contains(t, text, "Status: FAIL")

	markdown := report.ToMarkdown()
	assert.True(t, strings.HasPrefix(markdown, "# Gate Validation Report `FAIL`"))
	assert.Contains(t, markdown, "## Anomalies")

	data, err := report.ToJSON()
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, false, decoded["overall_pass"])
}
