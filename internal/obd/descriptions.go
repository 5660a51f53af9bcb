// internal/obd/descriptions.go
package obd

import "strings"

// vehicleCodes carries descriptions for the codes this vehicle family
// actually throws, mostly transmission thermal and charging faults. Codes
// outside the table fall back to a generic per-system description.
var vehicleCodes = map[string]string{
	"P0128": "Coolant Thermostat Below Regulating Temperature",
	"P0217": "Engine Coolant Over Temperature Condition",
	"P0218": "Transmission Fluid Over Temperature Condition",
	"P0562": "System Voltage Low",
	"P0563": "System Voltage High",
	"P0711": "Transmission Fluid Temperature Sensor Performance",
	"P0713": "Transmission Fluid Temperature Sensor Circuit High",
	"P0714": "Transmission Fluid Temperature Sensor Intermittent",
	"P0944": "Loss of Hydraulic Pump Prime",
	"P1797": "Manual Shift Overheat",
	"P1C4F": "DPF Regeneration Failure",
	"P2172": "High Airflow / Vacuum Leak Detected",
	"P2173": "High Airflow / Vacuum Leak Detected (Slow Accumulation)",
	"P2610": "ECM/PCM Internal Engine Off Timer Performance",
}

// maxDescriptionLen bounds the description attached to events and API
// payloads.
const maxDescriptionLen = 40

// Describe returns a human-readable description for a trouble code,
// truncated to a display-friendly length.
func Describe(code string) string {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if desc, ok := vehicleCodes[normalized]; ok {
		return truncate(desc, maxDescriptionLen)
	}
	return genericDescription(normalized)
}

// genericDescription names the system a code belongs to when the specific
// fault is unknown.
func genericDescription(code string) string {
	if code == "" {
		return "Unknown Code"
	}
	switch code[0] {
	case 'P':
		return "Powertrain Fault " + code
	case 'C':
		return "Chassis Fault " + code
	case 'B':
		return "Body Fault " + code
	case 'U':
		return "Network Fault " + code
	default:
		return "Unknown Code " + code
	}
}

// truncate shortens s to max runes with a trailing ellipsis marker.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
