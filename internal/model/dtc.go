// internal/model/dtc.go
package model

// DiagnosticCode is one decoded diagnostic trouble code, e.g. "P0123".
// Raw keeps the two wire bytes the code was derived from.
type DiagnosticCode struct {
	Code string  `json:"code"`
	Raw  [2]byte `json:"-"`
}

// Category returns the system letter: P (powertrain), C (chassis),
// B (body) or U (network).
func (d DiagnosticCode) Category() byte {
	if d.Code == "" {
		return 0
	}
	return d.Code[0]
}

// String returns the printable code.
func (d DiagnosticCode) String() string {
	return d.Code
}
