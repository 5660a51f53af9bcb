// internal/model/candidate.go
package model

import "time"

// DecodeFormula tags how a candidate's identifier payload is turned into a
// temperature. The set is closed; the dispatch table lives in the obd package.
type DecodeFormula string

const (
	// FormulaLinear16Over64 decodes two bytes as (256*A + B) / 64.
	FormulaLinear16Over64 DecodeFormula = "linear16-over-64"
	// FormulaLinear16Over10Minus40 decodes two bytes as (256*A + B)/10 - 40.
	FormulaLinear16Over10Minus40 DecodeFormula = "linear16-over-10-minus-40"
	// FormulaByteMinus40 decodes a single byte as A - 40.
	FormulaByteMinus40 DecodeFormula = "byte-minus-40"
	// FormulaSigned8Scaled decodes a single byte as a signed 8-bit value.
	FormulaSigned8Scaled DecodeFormula = "signed8-scaled"
)

// Valid reports whether f is a member of the closed formula set.
func (f DecodeFormula) Valid() bool {
	switch f {
	case FormulaLinear16Over64, FormulaLinear16Over10Minus40, FormulaByteMinus40, FormulaSigned8Scaled:
		return true
	}
	return false
}

// Candidate is one hypothesized transmission-temperature source: which module
// to address, which data identifier to read and how to decode the payload.
// Candidates are immutable and come from a static table whose order encodes
// decreasing prior probability.
type Candidate struct {
	Name     string        `json:"name" yaml:"name"`
	Header   string        `json:"header" yaml:"header"`
	DID      uint16        `json:"did" yaml:"did"`
	Formula  DecodeFormula `json:"formula" yaml:"formula"`
	MinValid float64       `json:"min_valid" yaml:"min_valid"`
	MaxValid float64       `json:"max_valid" yaml:"max_valid"`
}

// InRange reports whether v falls inside the candidate's plausible band.
func (c Candidate) InRange(v float64) bool {
	return v >= c.MinValid && v <= c.MaxValid
}

// WorkingCandidate is the single candidate a scan confirmed. It is set at
// most once per connection session and cleared only by an explicit rescan or
// a full disconnect.
type WorkingCandidate struct {
	Candidate   Candidate `json:"candidate"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}
