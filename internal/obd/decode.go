// internal/obd/decode.go
package obd

import (
	"fmt"

	"obd-service/internal/model"
	"obd-service/pkg/obd2"
)

// Standard current-data decoders. Length checks live here so the public
// formula helpers can stay plain arithmetic.

// DecodeRPM turns a two-byte engine speed payload into revolutions per
// minute.
func DecodeRPM(data []byte) (float64, error) {
	if len(data) < 2 {
		return 0, &MalformedError{Reason: "rpm payload shorter than 2 bytes"}
	}
	return obd2.RPM(data[0], data[1]), nil
}

// DecodeCoolant turns a one-byte coolant temperature payload into °C.
func DecodeCoolant(data []byte) (float64, error) {
	if len(data) < 1 {
		return 0, &MalformedError{Reason: "coolant payload empty"}
	}
	return obd2.CoolantTemp(data[0]), nil
}

// DecodeSpeed turns a one-byte vehicle speed payload into km/h.
func DecodeSpeed(data []byte) (float64, error) {
	if len(data) < 1 {
		return 0, &MalformedError{Reason: "speed payload empty"}
	}
	return obd2.Speed(data[0]), nil
}

// formulaTable dispatches the closed set of candidate decode formulas.
var formulaTable = map[model.DecodeFormula]func([]byte) (float64, error){
	model.FormulaLinear16Over64: func(data []byte) (float64, error) {
		if len(data) < 2 {
			return 0, &MalformedError{Reason: "formula needs 2 bytes"}
		}
		return float64(uint16(data[0])<<8|uint16(data[1])) / 64, nil
	},
	model.FormulaLinear16Over10Minus40: func(data []byte) (float64, error) {
		if len(data) < 2 {
			return 0, &MalformedError{Reason: "formula needs 2 bytes"}
		}
		return float64(uint16(data[0])<<8|uint16(data[1]))/10 - 40, nil
	},
	model.FormulaByteMinus40: func(data []byte) (float64, error) {
		if len(data) < 1 {
			return 0, &MalformedError{Reason: "formula needs 1 byte"}
		}
		return float64(data[0]) - 40, nil
	},
	model.FormulaSigned8Scaled: func(data []byte) (float64, error) {
		if len(data) < 1 {
			return 0, &MalformedError{Reason: "formula needs 1 byte"}
		}
		return float64(int8(data[0])), nil
	},
}

// DecodeWithFormula evaluates a candidate's tagged decode formula against an
// identifier payload.
func DecodeWithFormula(formula model.DecodeFormula, data []byte) (float64, error) {
	fn, ok := formulaTable[formula]
	if !ok {
		return 0, fmt.Errorf("unknown decode formula %q", formula)
	}
	return fn(data)
}
