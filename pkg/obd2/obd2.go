// pkg/obd2/obd2.go
// Package obd2 provides the byte-level arithmetic of the OBD-II diagnostic
// protocol: service identifiers, the standard current-data formulas and the
// two-byte trouble-code codec. It is pure computation with no I/O and no
// dependency on the rest of the service, so external tooling can reuse it.
package obd2

// Diagnostic service identifiers.
const (
	ServiceCurrentData    byte = 0x01 // Mode 01, live data by PID
	ServiceStoredCodes    byte = 0x03 // Mode 03, read stored trouble codes
	ServiceClearCodes     byte = 0x04 // Mode 04, clear codes and freeze frames
	ServiceReadIdentifier byte = 0x22 // UDS ReadDataByIdentifier

	// ServiceNegative marks a refusal frame: 0x7F, original service, reason.
	ServiceNegative byte = 0x7F
)

// Current-data parameter identifiers polled by diagnostic dashboards.
const (
	PIDSupported    byte = 0x00
	PIDCoolantTemp  byte = 0x05
	PIDEngineRPM    byte = 0x0C
	PIDVehicleSpeed byte = 0x0D
)

// PositiveReply returns the service byte a module answers with: the request
// service plus 0x40.
func PositiveReply(service byte) byte {
	return service + 0x40
}

// RPM converts the two-byte engine speed payload to revolutions per minute:
// (256*A + B) / 4.
func RPM(a, b byte) float64 {
	return float64(uint16(a)<<8|uint16(b)) / 4
}

// CoolantTemp converts the one-byte coolant temperature payload to °C: A - 40.
func CoolantTemp(a byte) float64 {
	return float64(a) - 40
}

// Speed converts the one-byte vehicle speed payload to km/h.
func Speed(a byte) float64 {
	return float64(a)
}

// NRCName translates the common UDS negative response codes into their
// standard names. Unlisted codes map to "unknownReason".
func NRCName(code byte) string {
	switch code {
	case 0x10:
		return "generalReject"
	case 0x11:
		return "serviceNotSupported"
	case 0x12:
		return "subFunctionNotSupported"
	case 0x13:
		return "incorrectMessageLength"
	case 0x22:
		return "conditionsNotCorrect"
	case 0x31:
		return "requestOutOfRange"
	case 0x33:
		return "securityAccessDenied"
	case 0x78:
		return "responsePending"
	default:
		return "unknownReason"
	}
}
