// internal/transport/transport.go
package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Transport owns a byte-oriented channel to the diagnostic adapter. It has
// no protocol knowledge: it writes command bytes and collects the reply up
// to a terminator. Errors propagate verbatim; retry policy lives upstream.
type Transport interface {
	// Connection lifecycle
	Open(ctx context.Context) error
	Close() error
	IsOpen() bool

	// Data communication
	Write(ctx context.Context, data []byte) error
	ReadUntil(ctx context.Context, terminator byte, timeout time.Duration) (RawResponse, error)

	// Transport information
	Kind() string
	Stats() TransportStats
}

// RawResponse is the reply collected by one ReadUntil call: the raw text,
// its line split, round-trip time and byte count. The terminator itself is
// excluded.
type RawResponse struct {
	Raw     string        `json:"raw"`
	Lines   []string      `json:"lines"`
	Elapsed time.Duration `json:"elapsed"`
	Bytes   int           `json:"bytes"`
}

// SplitLines builds the line view of raw adapter output. Adapters terminate
// lines with CR, optionally CRLF; empty lines carry no information.
func SplitLines(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == '\r' || r == '\n'
	})
	lines := make([]string, 0, len(fields))
	for _, f := range fields {
		if trimmed := strings.TrimSpace(f); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	return lines
}

// TransportStats provides link-level statistics
type TransportStats struct {
	BytesWritten   int64         `json:"bytes_written"`
	BytesRead      int64         `json:"bytes_read"`
	OperationCount int64         `json:"operation_count"`
	ErrorCount     int64         `json:"error_count"`
	LastActivity   time.Time     `json:"last_activity"`
	AverageLatency time.Duration `json:"average_latency"`
	IsConnected    bool          `json:"is_connected"`
}

// Sentinel errors for the transport layer. Wrap sites add port context.
var (
	// ErrTimeout reports that the terminator did not arrive in time. The
	// partial response collected so far is still returned alongside it.
	ErrTimeout = errors.New("read timeout")
	// ErrNotOpen reports use of a transport whose handle is not open.
	ErrNotOpen = errors.New("transport not open")
)

// IsTimeout reports whether err is (or wraps) a read timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// OpenError wraps a failure to acquire the underlying port, keeping the port
// name for reconnect decisions (a missing port cools down longer than a busy
// one).
type OpenError struct {
	Port string
	Err  error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("failed to open port %s: %v", e.Port, e.Err)
}

func (e *OpenError) Unwrap() error {
	return e.Err
}
