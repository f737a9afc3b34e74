package canon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBedrooms(t *testing.T) {
	tests := []struct {
		raw  string
		want *int
	}{
		{"T3", intPtr(3)},
		{"Room in T2", intPtr(2)},
		{"T0", intPtr(0)},
		{"4 quartos", intPtr(4)},
		{"T25", nil},
		{"Estúdio", nil},
		{"", nil},
	}
	for _, tt := range tests {
		got := ParseBedrooms(tt.raw)
		if tt.want == nil {
			assert.Nil(t, got, "ParseBedrooms(%q)", tt.raw)
			continue
		}
		require.NotNil(t, got, "ParseBedrooms(%q)", tt.raw)
		assert.Equal(t, *tt.want, *got, "ParseBedrooms(%q)", tt.raw)
	}
}

func TestParseArea(t *testing.T) {
	tests := []struct {
		raw  string
		want *float64
	}{
		{"85 m²", floatPtr(85)},
		{"85,5 m²", floatPtr(85.5)},
		{"120.25m2", floatPtr(120.25)},
		{"10 m²", floatPtr(10)},
		{"500 m²", floatPtr(500)},
		{"9 m²", nil},
		{"501 m²", nil},
		{"1.200 m²", nil},
		{"", nil},
	}
	for _, tt := range tests {
		got := ParseArea(tt.raw)
		if tt.want == nil {
			assert.Nil(t, got, "ParseArea(%q)", tt.raw)
			continue
		}
		require.NotNil(t, got, "ParseArea(%q)", tt.raw)
		assert.InDelta(t, *tt.want, *got, 1e-9, "ParseArea(%q)", tt.raw)
	}
}

func intPtr(i int) *int           { return &i }
func floatPtr(f float64) *float64 { return &f }
