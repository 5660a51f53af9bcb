// pkg/obd2/dtc.go
package obd2

import (
	"fmt"
	"strings"
)

// dtcSystems maps the top two bits of a trouble-code pair to the system
// letter: powertrain, chassis, body, network.
var dtcSystems = [4]byte{'P', 'C', 'B', 'U'}

const hexDigits = "0123456789ABCDEF"

// DecodeDTC converts a raw two-byte trouble-code pair into its display form,
// e.g. {0x07, 0x13} -> "P0713". The all-zero pair is list padding, not a
// code, and reports ok=false.
func DecodeDTC(a, b byte) (string, bool) {
	if a == 0 && b == 0 {
		return "", false
	}
	code := []byte{
		dtcSystems[a>>6],
		hexDigits[(a>>4)&0x03],
		hexDigits[a&0x0F],
		hexDigits[b>>4],
		hexDigits[b&0x0F],
	}
	return string(code), true
}

// EncodeDTC converts a display-form trouble code back into its two-byte wire
// pair. It is the exact inverse of DecodeDTC over the valid code space.
func EncodeDTC(code string) ([2]byte, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 5 {
		return [2]byte{}, fmt.Errorf("trouble code %q: want 5 characters", code)
	}

	var system byte
	switch code[0] {
	case 'P':
		system = 0
	case 'C':
		system = 1
	case 'B':
		system = 2
	case 'U':
		system = 3
	default:
		return [2]byte{}, fmt.Errorf("trouble code %q: unknown system letter %q", code, code[0])
	}

	if code[1] < '0' || code[1] > '3' {
		return [2]byte{}, fmt.Errorf("trouble code %q: second character must be 0-3", code)
	}

	nibbles := make([]byte, 0, 3)
	for _, c := range code[2:] {
		idx := strings.IndexByte(hexDigits, byte(c))
		if idx < 0 {
			return [2]byte{}, fmt.Errorf("trouble code %q: %q is not a hex digit", code, c)
		}
		nibbles = append(nibbles, byte(idx))
	}

	var pair [2]byte
	pair[0] = system<<6 | (code[1]-'0')<<4 | nibbles[0]
	pair[1] = nibbles[1]<<4 | nibbles[2]
	return pair, nil
}
