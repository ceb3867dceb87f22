package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseThresholds(t *testing.T) {
	thresholds, err := parseThresholds(map[string]string{
		"V2.reference_resolution": "0.95",
		"V3.anomaly_free":         "0",
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{
		"V2.reference_resolution": 0.95,
		"V3.anomaly_free":         0,
	}, thresholds)

	for _, raw := range []map[string]string{
		{"reference_resolution": "0.9"},
		{"V2.reference_resolution": "high"},
		{"V2.reference_resolution": "1.5"},
	} {
		_, err := parseThresholds(raw)
		assert.Error(t, err, "%v", raw)
	}
}

func TestSnapshotPathFor(t *testing.T) {
	assert.Equal(t, "out.json", snapshotPathFor("rules/core.txt", "out.json", false))
	assert.Equal(t, filepath.Join("snapshots", "core.json"), snapshotPathFor("rules/core.txt", "snapshots", true))
	assert.Equal(t, filepath.Join("snapshots", "expansion.rules.json"), snapshotPathFor("expansion.rules.md", "snapshots", true))
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "short", truncateString("short", 10))
	assert.Equal(t, "abcdefg...", truncateString("abcdefghijklmnop", 10))
}
