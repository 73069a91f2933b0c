package validator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/halcyon-systems/halcyon/internal/platform"
	"github.com/halcyon-systems/halcyon/pkg/types"
)

// numericRelativeTolerance and numericFloor bound how far a numeric
// attribute may drift from its desired value and still count as achieved:
// within 5% of the desired magnitude, never tighter than 1.0 absolute.
const (
	numericRelativeTolerance = 0.05
	numericFloor             = 1.0
)

// matches reports whether an observed sample satisfies a desired state.
// State strings compare case-insensitively; only the attributes the desired
// state names are checked.
func matches(desired types.DesiredState, sample platform.StateSample) bool {
	if !strings.EqualFold(desired.State, sample.State) {
		return false
	}
	for key, want := range desired.Attributes {
		got, ok := sample.Attributes[key]
		if !ok {
			return false
		}
		if !attributeMatches(want, got) {
			return false
		}
	}
	return true
}

// attributeMatches compares one attribute value. Numeric pairs match within
// the relative tolerance; anything else must render to the same string.
func attributeMatches(want, got interface{}) bool {
	wantNum, wantOK := toFloat(want)
	gotNum, gotOK := toFloat(got)
	if wantOK && gotOK {
		tolerance := abs(wantNum) * numericRelativeTolerance
		if tolerance < numericFloor {
			tolerance = numericFloor
		}
		return abs(wantNum-gotNum) <= tolerance
	}
	return fmt.Sprintf("%v", want) == fmt.Sprintf("%v", got)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
