package validator

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/halcyon-systems/halcyon/internal/platform"
	"github.com/halcyon-systems/halcyon/pkg/types"
)

func TestMatches_StateIsCaseInsensitive(t *testing.T) {
	desired := types.DesiredState{State: "ON"}
	assert.True(t, matches(desired, platform.StateSample{State: "on"}))
	assert.True(t, matches(desired, platform.StateSample{State: "On"}))
	assert.False(t, matches(desired, platform.StateSample{State: "off"}))
}

func TestMatches_OnlyDesiredAttributesChecked(t *testing.T) {
	desired := types.DesiredState{
		State:      "on",
		Attributes: map[string]interface{}{"color_mode": "brightness"},
	}
	sample := platform.StateSample{
		State: "on",
		Attributes: map[string]interface{}{
			"color_mode": "brightness",
			"friendly":   "Kitchen",
		},
	}
	assert.True(t, matches(desired, sample), "extra observed attributes are ignored")
}

func TestMatches_MissingAttributeFails(t *testing.T) {
	desired := types.DesiredState{
		State:      "on",
		Attributes: map[string]interface{}{"brightness": 200},
	}
	assert.False(t, matches(desired, platform.StateSample{State: "on"}))
}

func TestAttributeMatches_NumericTolerance(t *testing.T) {
	tests := []struct {
		name string
		want interface{}
		got  interface{}
		ok   bool
	}{
		{"within 5 percent", 200, 210.0, true},
		{"just outside 5 percent", 200, 210.5, false},
		{"floor admits small drift", 10, 11.0, true},
		{"floor boundary exceeded", 10, 11.5, false},
		{"exact", 0, 0.0, true},
		{"zero uses floor", 0, 1.0, true},
		{"zero beyond floor", 0, 2.0, false},
		{"negative magnitude", -100, -104.0, true},
		{"json number", json.Number("200"), 205.0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.ok, attributeMatches(tt.want, tt.got))
		})
	}
}

func TestAttributeMatches_NonNumericUsesStringEquality(t *testing.T) {
	assert.True(t, attributeMatches("warm_white", "warm_white"))
	assert.False(t, attributeMatches("warm_white", "cool_white"))
	assert.True(t, attributeMatches(true, true))
	// A numeric desired against a non-numeric observation falls back to
	// string comparison and fails.
	assert.False(t, attributeMatches(200, "bright"))
}

func TestPatternConfidence(t *testing.T) {
	assert.InDelta(t, 0.5, patternConfidence(0), 1e-9)
	assert.InDelta(t, 0.6, patternConfidence(1), 1e-9)
	assert.InDelta(t, 0.9, patternConfidence(4), 1e-9)
	assert.Equal(t, 1.0, patternConfidence(5))
	assert.Equal(t, 1.0, patternConfidence(50))
}
