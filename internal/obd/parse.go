// internal/obd/parse.go
package obd

import (
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"obd-service/pkg/obd2"
)

// frameIndexPattern matches the line-index prefix the adapter prints on
// segmented multi-frame output ("0:", "1:", ...).
var frameIndexPattern = regexp.MustCompile(`^[0-9A-F]+:\s*`)

// CleanLine strips the prompt character and surrounding whitespace and
// uppercases hex text. It does not drop noise tokens; callers decide what a
// sentinel means for their request.
func CleanLine(line string) string {
	cleaned := strings.ReplaceAll(line, ">", "")
	cleaned = strings.TrimSpace(cleaned)
	return strings.ToUpper(cleaned)
}

// CleanLines cleans every line and drops empties, echo of the issued command
// and the adapter's search chatter.
func CleanLines(lines []string, echoed string) []string {
	echoedNorm := despace(strings.ToUpper(echoed))
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		cleaned := CleanLine(line)
		if cleaned == "" {
			continue
		}
		if echoedNorm != "" && despace(cleaned) == echoedNorm {
			continue
		}
		if IsNoise(cleaned) {
			continue
		}
		out = append(out, cleaned)
	}
	return out
}

// IsNoise reports adapter chatter that carries no payload.
func IsNoise(line string) bool {
	return strings.HasPrefix(line, "SEARCHING")
}

// SentinelError maps the literal adapter reply strings onto the protocol
// error taxonomy. It returns nil for lines that are not sentinels.
func SentinelError(line string) error {
	upper := strings.ToUpper(strings.TrimSpace(line))
	switch {
	case strings.Contains(upper, "NO DATA"):
		return ErrNoData
	case strings.Contains(upper, "BUS ERROR"), strings.Contains(upper, "CAN ERROR"):
		return ErrBusError
	case strings.Contains(upper, "STOPPED"):
		return ErrStopped
	case strings.Contains(upper, "UNABLE TO CONNECT"):
		return ErrUnableToConnect
	case upper == "ERROR", upper == "?":
		return ErrAdapterError
	default:
		return nil
	}
}

// despace removes every space in s.
func despace(s string) string {
	return strings.ReplaceAll(s, " ", "")
}

// hexPayload reduces a cleaned line to its despaced hex text, or "" when the
// line contains anything that is not hex. Frame-index prefixes are removed
// first; stripped reports whether one was present.
func hexPayload(line string) (payload string, stripped bool) {
	work := line
	if frameIndexPattern.MatchString(work) {
		work = frameIndexPattern.ReplaceAllString(work, "")
		stripped = true
	}
	work = despace(work)
	if work == "" || len(work)%2 != 0 {
		return "", stripped
	}
	for _, r := range work {
		if !strings.ContainsRune("0123456789ABCDEF", r) {
			return "", stripped
		}
	}
	return work, stripped
}

// decodeHex turns despaced hex text into bytes. Text is pre-validated by
// hexPayload.
func decodeHex(text string) []byte {
	data, err := hex.DecodeString(text)
	if err != nil {
		return nil
	}
	return data
}

// negativeIn scans cleaned lines for a 0x7F refusal frame.
func negativeIn(lines []string) error {
	for _, line := range lines {
		payload, _ := hexPayload(line)
		if payload == "" {
			continue
		}
		data := decodeHex(payload)
		if len(data) >= 3 && data[0] == obd2.ServiceNegative {
			return &NegativeResponseError{Service: data[1], Code: data[2]}
		}
	}
	return nil
}

// sentinelIn scans cleaned lines for a literal error reply.
func sentinelIn(lines []string) error {
	for _, line := range lines {
		if err := SentinelError(line); err != nil {
			return err
		}
	}
	return nil
}

// ParsePidResponse finds the current-data reply marker (0x41 followed by the
// requested PID) and returns the bytes after it. Negative frames and
// sentinel replies surface as errors, never as silent misses.
func ParsePidResponse(lines []string, pid byte) ([]byte, error) {
	if err := sentinelIn(lines); err != nil {
		return nil, err
	}
	if err := negativeIn(lines); err != nil {
		return nil, err
	}

	marker := fmt.Sprintf("%02X%02X", obd2.PositiveReply(obd2.ServiceCurrentData), pid)
	for _, line := range lines {
		payload, _ := hexPayload(line)
		if payload == "" {
			continue
		}
		idx := strings.Index(payload, marker)
		if idx < 0 {
			continue
		}
		rest := payload[idx+len(marker):]
		data := decodeHex(rest)
		if len(data) == 0 {
			return nil, &MalformedError{Reason: "marker with empty payload", Raw: line}
		}
		return data, nil
	}

	return nil, fmt.Errorf("pid %02X: %w", pid, ErrMarkerNotFound)
}

// ParseIdentifierResponse finds the read-by-identifier reply marker (0x62
// followed by the two identifier bytes) and concatenates the payload across
// lines. Segmented output comes either with "N:" line indexes or as raw
// frames whose continuation lines lead with a consecutive-frame byte; both
// shapes are handled.
func ParseIdentifierResponse(lines []string, did uint16) ([]byte, error) {
	if err := sentinelIn(lines); err != nil {
		return nil, err
	}
	if err := negativeIn(lines); err != nil {
		return nil, err
	}

	marker := fmt.Sprintf("%02X%02X%02X", obd2.PositiveReply(obd2.ServiceReadIdentifier), byte(did>>8), byte(did))

	var (
		payload []byte
		found   bool
		rawMode bool
	)

	for _, line := range lines {
		hexText, indexed := hexPayload(line)
		if hexText == "" {
			continue
		}

		if !found {
			idx := strings.Index(hexText, marker)
			if idx < 0 {
				continue
			}
			found = true
			// A first-frame byte (0x1X + length, two bytes before the
			// marker) means raw segmented framing; continuation lines then
			// carry a leading consecutive-frame byte that is not payload.
			rawMode = !indexed && idx >= 4 && hexText[idx-4] == '1'
			payload = append(payload, decodeHex(hexText[idx+len(marker):])...)
			continue
		}

		data := decodeHex(hexText)
		if rawMode && len(data) > 0 && data[0]>>4 == 0x2 {
			data = data[1:]
		}
		payload = append(payload, data...)
	}

	if !found {
		return nil, fmt.Errorf("identifier %04X: %w", did, ErrMarkerNotFound)
	}
	if len(payload) == 0 {
		return nil, &MalformedError{Reason: "identifier marker with empty payload"}
	}
	return payload, nil
}

// ParseVoltage extracts the decimal number preceding the trailing volt
// marker of an ATRV reply. Values outside the 5-20 V supply-rail window are
// treated as garbled reads.
func ParseVoltage(text string) (float64, error) {
	cleaned := CleanLine(text)
	if err := SentinelError(cleaned); err != nil {
		return 0, err
	}

	cleaned = strings.TrimSuffix(cleaned, "V")
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return 0, &MalformedError{Reason: "empty voltage reply", Raw: text}
	}

	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, &MalformedError{Reason: "voltage not numeric", Raw: text}
	}
	if value < 5 || value > 20 {
		return 0, &MalformedError{Reason: "voltage outside supply range", Raw: text}
	}
	return value, nil
}
