package healer

import (
	"strings"

	"github.com/halcyon-systems/halcyon/internal/platform"
	"github.com/halcyon-systems/halcyon/pkg/types"
)

// familyHints maps lowercase substrings of a device's integration,
// manufacturer, or model to a transport family. Integration name wins when
// several fields match.
var familyHints = []struct {
	needle string
	family types.DeviceFamily
}{
	{"zha", types.FamilyZigbee},
	{"zigbee", types.FamilyZigbee},
	{"deconz", types.FamilyZigbee},
	{"zwave", types.FamilyZWave},
	{"z-wave", types.FamilyZWave},
	{"z_wave", types.FamilyZWave},
	{"tuya", types.FamilyCloud},
	{"smartthings", types.FamilyCloud},
	{"cloud", types.FamilyCloud},
	{"esphome", types.FamilyWifi},
	{"shelly", types.FamilyWifi},
	{"tasmota", types.FamilyWifi},
	{"tplink", types.FamilyWifi},
	{"wifi", types.FamilyWifi},
	{"wled", types.FamilyWifi},
}

// InferFamily classifies a registry device by transport, checking the
// integration name first and falling back to manufacturer and model text.
func InferFamily(entry *platform.DeviceEntry) types.DeviceFamily {
	if entry == nil {
		return types.FamilyUnknown
	}
	for _, field := range []string{entry.Integration, entry.Manufacturer, entry.Model} {
		if field == "" {
			continue
		}
		lower := strings.ToLower(field)
		for _, hint := range familyHints {
			if strings.Contains(lower, hint.needle) {
				return hint.family
			}
		}
	}
	return types.FamilyUnknown
}
