// internal/obd/decode_test.go
package obd

import (
	"testing"

	"obd-service/internal/model"
)

func TestDecodeRPM(t *testing.T) {
	got, err := DecodeRPM([]byte{0x1A, 0xF8})
	if err != nil {
		t.Fatalf("DecodeRPM err=%v", err)
	}
	if got != 1726 {
		t.Fatalf("DecodeRPM=%v, want 1726", got)
	}

	if _, err := DecodeRPM([]byte{0x1A}); err == nil {
		t.Fatalf("expected error for short payload")
	}
}

func TestDecodeCoolant(t *testing.T) {
	got, err := DecodeCoolant([]byte{0x7B})
	if err != nil {
		t.Fatalf("DecodeCoolant err=%v", err)
	}
	if got != 83 {
		t.Fatalf("DecodeCoolant=%v, want 83", got)
	}
}

func TestDecodeSpeed(t *testing.T) {
	got, err := DecodeSpeed([]byte{0x3C})
	if err != nil {
		t.Fatalf("DecodeSpeed err=%v", err)
	}
	if got != 60 {
		t.Fatalf("DecodeSpeed=%v, want 60", got)
	}
}

func TestDecodeWithFormula(t *testing.T) {
	tests := []struct {
		formula model.DecodeFormula
		data    []byte
		want    float64
	}{
		{model.FormulaLinear16Over64, []byte{0x0D, 0x80}, 54},
		{model.FormulaLinear16Over10Minus40, []byte{0x03, 0xE8}, 60},
		{model.FormulaByteMinus40, []byte{0x64}, 60},
		{model.FormulaSigned8Scaled, []byte{0xF6}, -10},
	}

	for _, tt := range tests {
		got, err := DecodeWithFormula(tt.formula, tt.data)
		if err != nil {
			t.Fatalf("DecodeWithFormula(%s) err=%v", tt.formula, err)
		}
		if got != tt.want {
			t.Fatalf("DecodeWithFormula(%s)=%v, want %v", tt.formula, got, tt.want)
		}
	}
}

func TestDecodeWithFormulaErrors(t *testing.T) {
	if _, err := DecodeWithFormula(model.FormulaLinear16Over64, []byte{0x0D}); err == nil {
		t.Fatalf("expected error for short payload")
	}
	if _, err := DecodeWithFormula(model.DecodeFormula("bogus"), []byte{0x01, 0x02}); err == nil {
		t.Fatalf("expected error for unknown formula")
	}
}
