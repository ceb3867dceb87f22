package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLabel(t *testing.T) {
	tests := []struct {
		input  string
		parts  []string
		number int
	}{
		{"100", []string{"100"}, 100},
		{"100.", []string{"100"}, 100},
		{"103.1", []string{"103", "1"}, 103},
		{"103.1.a.", []string{"103", "1", "a"}, 103},
		{"103.12.C.4.d", []string{"103", "12", "c", "4", "d"}, 103},
		{"007.2", []string{"007", "2"}, 7},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			label, err := ParseLabel(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.parts, label.Parts)
			assert.Equal(t, tt.number, label.Number)
		})
	}
}

func TestParseLabelRejectsMalformed(t *testing.T) {
	for _, input := range []string{"", ".", "a", "100.a", "100.1.2", "100.1.a.b", "100..1", "100.1.ab"} {
		t.Run(input, func(t *testing.T) {
			_, err := ParseLabel(input)
			assert.Error(t, err)
		})
	}
}

func TestLabelAccessors(t *testing.T) {
	label, err := ParseLabel("103.1.a.2")
	require.NoError(t, err)

	assert.Equal(t, "103.1.a.2", label.ID())
	assert.Equal(t, "103.1.a.2.", label.Display())
	assert.Equal(t, 3, label.Depth())
	assert.Equal(t, []string{"103.1.a", "103.1", "103"}, label.Prefixes())
}

func TestLabelBlock(t *testing.T) {
	tests := []struct {
		input   string
		divisor int
		block   string
		ok      bool
	}{
		{"101", 100, "100", true},
		{"199", 100, "100", true},
		{"100", 100, "", false},
		{"101.1", 100, "100", true},
		{"100.1", 100, "100", true},
		{"007", 100, "000", true},
		{"155", 50, "150", true},
		{"101", 0, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			label, err := ParseLabel(tt.input)
			require.NoError(t, err)

			block, ok := label.Block(tt.divisor)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.block, block)
		})
	}
}
