// internal/obd/parse_test.go
package obd

import (
	"errors"
	"testing"

	"obd-service/pkg/obd2"
)

func TestCleanLines(t *testing.T) {
	lines := []string{"010C", "SEARCHING...", "41 0C 1A F8", ">", ""}
	cleaned := CleanLines(lines, "010C")

	if len(cleaned) != 1 {
		t.Fatalf("expected 1 line, got %d: %v", len(cleaned), cleaned)
	}
	if cleaned[0] != "41 0C 1A F8" {
		t.Fatalf("unexpected line: %q", cleaned[0])
	}
}

func TestParsePidResponse(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
		pid   byte
		want  []byte
	}{
		{
			name:  "plain reply",
			lines: []string{"41 0C 1A F8"},
			pid:   obd2.PIDEngineRPM,
			want:  []byte{0x1A, 0xF8},
		},
		{
			name:  "spaces off",
			lines: []string{"410C1AF8"},
			pid:   obd2.PIDEngineRPM,
			want:  []byte{0x1A, 0xF8},
		},
		{
			name:  "headers on",
			lines: []string{"7E8 04 41 05 7B"},
			pid:   obd2.PIDCoolantTemp,
			want:  []byte{0x7B},
		},
		{
			name:  "marker on second line",
			lines: []string{"BUS INIT", "41 0D 3C"},
			pid:   obd2.PIDVehicleSpeed,
			want:  []byte{0x3C},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePidResponse(tt.lines, tt.pid)
			if err != nil {
				t.Fatalf("ParsePidResponse err=%v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("byte %d: got %02X, want %02X", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestParsePidResponseErrors(t *testing.T) {
	if _, err := ParsePidResponse([]string{"NO DATA"}, obd2.PIDEngineRPM); !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}

	if _, err := ParsePidResponse([]string{"BUS ERROR"}, obd2.PIDEngineRPM); !errors.Is(err, ErrBusError) {
		t.Fatalf("expected ErrBusError, got %v", err)
	}

	if _, err := ParsePidResponse([]string{"41 0D 3C"}, obd2.PIDEngineRPM); !errors.Is(err, ErrMarkerNotFound) {
		t.Fatalf("expected ErrMarkerNotFound, got %v", err)
	}

	_, err := ParsePidResponse([]string{"7F 01 12"}, obd2.PIDEngineRPM)
	var neg *NegativeResponseError
	if !errors.As(err, &neg) {
		t.Fatalf("expected NegativeResponseError, got %v", err)
	}
	if neg.Service != 0x01 || neg.Code != 0x12 {
		t.Fatalf("unexpected negative response: %+v", neg)
	}
}

func TestParseIdentifierResponseSingleLine(t *testing.T) {
	got, err := ParseIdentifierResponse([]string{"62 1E 1C 0D 80"}, 0x1E1C)
	if err != nil {
		t.Fatalf("ParseIdentifierResponse err=%v", err)
	}
	if len(got) != 2 || got[0] != 0x0D || got[1] != 0x80 {
		t.Fatalf("unexpected payload: %v", got)
	}
}

func TestParseIdentifierResponseIndexedFrames(t *testing.T) {
	lines := []string{
		"014",
		"0: 62 1E 1C AA BB",
		"1: CC DD EE FF 11 22",
		"2: 33 44 55 00 00 00",
	}

	got, err := ParseIdentifierResponse(lines, 0x1E1C)
	if err != nil {
		t.Fatalf("ParseIdentifierResponse err=%v", err)
	}

	want := []byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF, 0x11, 0x22, 0x33, 0x44, 0x55, 0x00, 0x00, 0x00}
	if len(got) != len(want) {
		t.Fatalf("payload length %d, want %d (%v)", len(got), len(want), got)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("byte %d: got %02X, want %02X", i, got[i], want[i])
		}
	}
}

func TestParseIdentifierResponseRawFrames(t *testing.T) {
	lines := []string{
		"10 0A 62 1E 1C 01 02 03",
		"21 04 05 06 07 08 09 0A",
	}

	got, err := ParseIdentifierResponse(lines, 0x1E1C)
	if err != nil {
		t.Fatalf("ParseIdentifierResponse err=%v", err)
	}

	want := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0A}
	if len(got) != len(want) {
		t.Fatalf("payload length %d, want %d (%v)", len(got), len(want), got)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("byte %d: got %02X, want %02X", i, got[i], want[i])
		}
	}
}

func TestParseIdentifierResponseNegative(t *testing.T) {
	_, err := ParseIdentifierResponse([]string{"7F 22 31"}, 0x1E1C)

	var neg *NegativeResponseError
	if !errors.As(err, &neg) {
		t.Fatalf("expected NegativeResponseError, got %v", err)
	}
	if neg.Service != 0x22 || neg.Code != 0x31 {
		t.Fatalf("unexpected negative response: %+v", neg)
	}
}

func TestParseVoltage(t *testing.T) {
	tests := []struct {
		text    string
		want    float64
		wantErr bool
	}{
		{"12.6V", 12.6, false},
		{"14.2V", 14.2, false},
		{"11.5", 11.5, false},
		{"99.9V", 0, true},
		{"garbage", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseVoltage(tt.text)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("ParseVoltage(%q): expected error", tt.text)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseVoltage(%q) err=%v", tt.text, err)
		}
		if got != tt.want {
			t.Fatalf("ParseVoltage(%q)=%v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestSentinelError(t *testing.T) {
	if err := SentinelError("UNABLE TO CONNECT"); !errors.Is(err, ErrUnableToConnect) {
		t.Fatalf("expected ErrUnableToConnect, got %v", err)
	}
	if err := SentinelError("STOPPED"); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
	if err := SentinelError("41 0C 1A F8"); err != nil {
		t.Fatalf("expected nil for data line, got %v", err)
	}
}
