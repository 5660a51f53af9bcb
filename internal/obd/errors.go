// internal/obd/errors.go
package obd

import (
	"errors"
	"fmt"

	"obd-service/pkg/obd2"
)

// Sentinel errors for the literal adapter reply strings. All of them count
// as protocol-level failures toward the reconnect supervisor.
var (
	ErrNoData          = errors.New("no data")
	ErrBusError        = errors.New("bus error")
	ErrStopped         = errors.New("stopped")
	ErrUnableToConnect = errors.New("unable to connect")
	ErrAdapterError    = errors.New("adapter error")
	ErrMarkerNotFound  = errors.New("response marker not found")
)

// MalformedError reports a reply that was received but could not be decoded.
type MalformedError struct {
	Reason string
	Raw    string
}

func (e *MalformedError) Error() string {
	if e.Raw != "" {
		return fmt.Sprintf("malformed response: %s (%q)", e.Reason, e.Raw)
	}
	return fmt.Sprintf("malformed response: %s", e.Reason)
}

// NegativeResponseError is a 0x7F frame: the module refused the request and
// named a reason code.
type NegativeResponseError struct {
	Service byte
	Code    byte
}

func (e *NegativeResponseError) Error() string {
	return fmt.Sprintf("negative response to service %02X: %s (0x%02X)",
		e.Service, obd2.NRCName(e.Code), e.Code)
}

// IsNegativeResponse reports whether err is (or wraps) a 0x7F frame.
func IsNegativeResponse(err error) bool {
	var neg *NegativeResponseError
	return errors.As(err, &neg)
}

// IsProtocolError reports whether err is a protocol-level failure: the link
// delivered a reply but the vehicle side refused, garbled or withheld it.
// Transport failures (open, write, read timeout) are not protocol errors and
// point at the port rather than the vehicle.
func IsProtocolError(err error) bool {
	if err == nil {
		return false
	}
	for _, sentinel := range []error{ErrNoData, ErrBusError, ErrStopped, ErrUnableToConnect, ErrAdapterError, ErrMarkerNotFound} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	var malformed *MalformedError
	if errors.As(err, &malformed) {
		return true
	}
	return IsNegativeResponse(err)
}
