// Package healer implements the three remediation tiers of the cascade:
// entity-level service retry, device-level reconnect/reboot/rediscover, and
// integration-level config entry reload.
package healer

import (
	"encoding/json"

	"github.com/halcyon-systems/halcyon/pkg/types"
)

// Candidate is one alternative invocation to try after plain retries
// exhaust. An empty Service reuses the original call's service.
type Candidate struct {
	Service string
	Data    map[string]interface{}
}

// CandidateFunc computes an ordered list of safe parameter variants from the
// original invocation. Pure: never mutates the input call.
type CandidateFunc func(call types.ServiceCall) []Candidate

// candidateRegistry maps "domain.service" to its variant generator. Domains
// without an entry have no safe alternatives and fail the strategy
// immediately.
var candidateRegistry = map[string]CandidateFunc{
	"light.turn_on":            lightBrightnessCandidates,
	"climate.set_temperature":  climateTemperatureCandidates,
	"cover.set_cover_position": coverPositionCandidates,
	"cover.open_cover":         coverStopCandidate,
	"cover.close_cover":        coverStopCandidate,
}

// Alternatives returns the candidate invocations for a recorded service
// call, or nil when the domain has no known safe variants.
func Alternatives(call types.ServiceCall) []Candidate {
	fn, ok := candidateRegistry[call.Domain+"."+call.Service]
	if !ok {
		return nil
	}
	return fn(call)
}

func cloneData(data map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}

// lightBrightnessCandidates steps through brightness percentages. Without a
// prior brightness the only safe variant is full on.
func lightBrightnessCandidates(call types.ServiceCall) []Candidate {
	levels := []int{50, 75, 100}
	if _, ok := numericValue(call.Data["brightness_pct"]); !ok {
		if _, ok := numericValue(call.Data["brightness"]); !ok {
			levels = []int{100}
		}
	}
	var out []Candidate
	for _, pct := range levels {
		data := cloneData(call.Data)
		delete(data, "brightness")
		data["brightness_pct"] = pct
		out = append(out, Candidate{Data: data})
	}
	return out
}

// climateTemperatureCandidates nudges the setpoint one degree either way.
func climateTemperatureCandidates(call types.ServiceCall) []Candidate {
	temp, ok := numericValue(call.Data["temperature"])
	if !ok {
		return nil
	}
	var out []Candidate
	for _, delta := range []float64{1, -1} {
		data := cloneData(call.Data)
		data["temperature"] = temp + delta
		out = append(out, Candidate{Data: data})
	}
	return out
}

// coverPositionCandidates tries the fully-closed, middle, and fully-open
// positions in order.
func coverPositionCandidates(call types.ServiceCall) []Candidate {
	var out []Candidate
	for _, pos := range []int{0, 50, 100} {
		data := cloneData(call.Data)
		data["position"] = pos
		out = append(out, Candidate{Data: data})
	}
	return out
}

// coverStopCandidate substitutes stop_cover for a stuck open/close.
func coverStopCandidate(call types.ServiceCall) []Candidate {
	data := cloneData(call.Data)
	delete(data, "position")
	return []Candidate{{Service: "stop_cover", Data: data}}
}

// numericValue coerces JSON-decoded numbers to float64.
func numericValue(v interface{}) (float64, bool) {
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
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}
