// internal/obd/dtc.go
package obd

import (
	"errors"
	"fmt"
	"strings"

	"obd-service/internal/model"
	"obd-service/pkg/obd2"
)

// DecodeDTCPair decodes one two-byte trouble code. The all-zero pair is
// padding, not a code.
func DecodeDTCPair(a, b byte) (model.DiagnosticCode, bool) {
	code, ok := obd2.DecodeDTC(a, b)
	if !ok {
		return model.DiagnosticCode{}, false
	}
	return model.DiagnosticCode{
		Code: code,
		Raw:  [2]byte{a, b},
	}, true
}

// isPaddingPair reports filler pairs some adapters append to round out a frame.
func isPaddingPair(a, b byte) bool {
	return (a == 0x00 && b == 0x00) || (a == 0xAA && b == 0xAA) || (a == 0xFF && b == 0xFF)
}

// ParseDtcs finds the stored-codes reply marker (0x43) and decodes the byte
// pairs after it. A literal NO DATA reply means no stored codes and yields
// an empty list, not an error. Duplicate codes across frames collapse.
func ParseDtcs(lines []string) ([]model.DiagnosticCode, error) {
	if err := sentinelIn(lines); err != nil {
		if errors.Is(err, ErrNoData) {
			return []model.DiagnosticCode{}, nil
		}
		return nil, err
	}
	if err := negativeIn(lines); err != nil {
		return nil, err
	}

	marker := fmt.Sprintf("%02X", obd2.PositiveReply(obd2.ServiceStoredCodes))

	var raw []byte
	found := false
	for _, line := range lines {
		payload, _ := hexPayload(line)
		if payload == "" {
			continue
		}
		if !found {
			idx := strings.Index(payload, marker)
			if idx < 0 {
				continue
			}
			found = true
			raw = append(raw, decodeHex(payload[idx+len(marker):])...)
			continue
		}
		raw = append(raw, decodeHex(payload)...)
	}

	if !found {
		return nil, fmt.Errorf("stored codes: %w", ErrMarkerNotFound)
	}

	// An odd byte count means the first byte is the CAN count prefix.
	if len(raw)%2 == 1 {
		raw = raw[1:]
	}

	seen := make(map[string]bool)
	codes := []model.DiagnosticCode{}
	for i := 0; i+1 < len(raw); i += 2 {
		a, b := raw[i], raw[i+1]
		if isPaddingPair(a, b) {
			continue
		}
		code, ok := DecodeDTCPair(a, b)
		if !ok || seen[code.Code] {
			continue
		}
		seen[code.Code] = true
		codes = append(codes, code)
	}

	return codes, nil
}

// ParseClearAck verifies the clear-codes acknowledgment: either the 0x44
// service reply or a literal OK.
func ParseClearAck(lines []string) error {
	if err := sentinelIn(lines); err != nil {
		return err
	}
	if err := negativeIn(lines); err != nil {
		return err
	}

	marker := fmt.Sprintf("%02X", obd2.PositiveReply(obd2.ServiceClearCodes))
	for _, line := range lines {
		if strings.Contains(line, "OK") {
			return nil
		}
		payload, _ := hexPayload(line)
		if payload != "" && strings.HasPrefix(payload, marker) {
			return nil
		}
	}
	return fmt.Errorf("clear codes: %w", ErrMarkerNotFound)
}
