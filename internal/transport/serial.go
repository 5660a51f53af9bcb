// internal/transport/serial.go
package transport

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"obd-service/internal/config"
)

// pollSlice is the per-Read timeout on the port. ReadUntil loops on short
// reads so the caller's deadline and context stay responsive.
const pollSlice = 100 * time.Millisecond

// SerialTransport implements Transport over a physical serial port
type SerialTransport struct {
	config *config.SerialConfig
	port   serial.Port
	logger *zap.Logger
	mutex  sync.RWMutex
	isOpen bool
	stats  TransportStats
}

// NewSerialTransport creates a serial transport for the configured port
func NewSerialTransport(cfg *config.SerialConfig, logger *zap.Logger) *SerialTransport {
	return &SerialTransport{
		config: cfg,
		logger: logger.With(
			zap.String("transport", "serial"),
			zap.String("port", cfg.Port),
		),
	}
}

// Open opens the serial port
func (st *SerialTransport) Open(ctx context.Context) error {
	st.mutex.Lock()
	defer st.mutex.Unlock()

	if st.isOpen {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	st.logger.Info("Opening serial port",
		zap.Int("baud_rate", st.config.BaudRate),
	)

	mode := &serial.Mode{
		BaudRate: st.config.BaudRate,
		DataBits: st.config.DataBits,
		StopBits: serial.StopBits(st.config.StopBits),
	}

	switch st.config.Parity {
	case "odd":
		mode.Parity = serial.OddParity
	case "even":
		mode.Parity = serial.EvenParity
	default:
		mode.Parity = serial.NoParity
	}

	port, err := serial.Open(st.config.Port, mode)
	if err != nil {
		st.logger.Error("Failed to open serial port", zap.Error(err))
		return &OpenError{Port: st.config.Port, Err: err}
	}

	if err := port.SetReadTimeout(pollSlice); err != nil {
		port.Close()
		return &OpenError{Port: st.config.Port, Err: fmt.Errorf("failed to set read timeout: %w", err)}
	}

	st.port = port
	st.isOpen = true
	st.stats.IsConnected = true
	st.stats.LastActivity = time.Now()

	st.logger.Info("Serial port opened successfully")
	return nil
}

// Close releases the port handle. The handle is cleared even when the
// underlying close reports an error, so a failed close never wedges the
// transport in a half-open state.
func (st *SerialTransport) Close() error {
	st.mutex.Lock()
	defer st.mutex.Unlock()

	if !st.isOpen || st.port == nil {
		return nil
	}

	err := st.port.Close()
	st.port = nil
	st.isOpen = false
	st.stats.IsConnected = false

	if err != nil {
		st.logger.Error("Failed to close serial port", zap.Error(err))
		return fmt.Errorf("failed to close serial port: %w", err)
	}

	st.logger.Info("Serial port closed")
	return nil
}

// IsOpen returns whether the port handle is held
func (st *SerialTransport) IsOpen() bool {
	st.mutex.RLock()
	defer st.mutex.RUnlock()
	return st.isOpen && st.port != nil
}

// Write writes data to the serial port
func (st *SerialTransport) Write(ctx context.Context, data []byte) error {
	st.mutex.Lock()
	defer st.mutex.Unlock()

	if !st.isOpen || st.port == nil {
		return ErrNotOpen
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	start := time.Now()
	n, err := st.port.Write(data)
	if err != nil {
		st.stats.ErrorCount++
		st.logger.Error("Serial write failed", zap.Error(err))
		return fmt.Errorf("failed to write to serial port: %w", err)
	}

	if n != len(data) {
		st.stats.ErrorCount++
		return fmt.Errorf("incomplete write: wrote %d of %d bytes", n, len(data))
	}

	st.stats.BytesWritten += int64(len(data))
	st.stats.OperationCount++
	st.stats.LastActivity = time.Now()
	st.updateAverageLatency(time.Since(start))

	return nil
}

// ReadUntil accumulates port output until the terminator byte arrives or the
// timeout expires. On timeout the partial response is returned together with
// ErrTimeout so callers can still inspect whatever the adapter sent. The
// mutex is not held across the read loop; Stats and Close stay responsive
// while a read is in flight.
func (st *SerialTransport) ReadUntil(ctx context.Context, terminator byte, timeout time.Duration) (RawResponse, error) {
	st.mutex.RLock()
	port := st.port
	open := st.isOpen
	st.mutex.RUnlock()

	if !open || port == nil {
		return RawResponse{}, ErrNotOpen
	}

	var (
		builder  strings.Builder
		buf      = make([]byte, 64)
		start    = time.Now()
		deadline = start.Add(timeout)
	)

	for {
		select {
		case <-ctx.Done():
			return st.finishRead(builder.String(), start, true), ctx.Err()
		default:
		}

		if time.Now().After(deadline) {
			resp := st.finishRead(builder.String(), start, true)
			return resp, fmt.Errorf("no terminator within %s: %w", timeout, ErrTimeout)
		}

		n, err := port.Read(buf)
		if err != nil {
			resp := st.finishRead(builder.String(), start, true)
			return resp, fmt.Errorf("failed to read from serial port: %w", err)
		}

		// n == 0 means the poll slice elapsed without data
		for i := 0; i < n; i++ {
			if buf[i] == terminator {
				return st.finishRead(builder.String(), start, false), nil
			}
			builder.WriteByte(buf[i])
		}
	}
}

// finishRead builds the RawResponse and settles byte accounting.
func (st *SerialTransport) finishRead(raw string, start time.Time, failed bool) RawResponse {
	st.mutex.Lock()
	st.stats.BytesRead += int64(len(raw))
	st.stats.LastActivity = time.Now()
	if failed {
		st.stats.ErrorCount++
	} else {
		st.stats.OperationCount++
	}
	st.mutex.Unlock()

	return RawResponse{
		Raw:     raw,
		Lines:   SplitLines(raw),
		Elapsed: time.Since(start),
		Bytes:   len(raw),
	}
}

// Kind returns the transport kind
func (st *SerialTransport) Kind() string {
	return "serial"
}

// Stats returns a copy of the link statistics
func (st *SerialTransport) Stats() TransportStats {
	st.mutex.RLock()
	defer st.mutex.RUnlock()
	return st.stats
}

// updateAverageLatency updates the running average latency
func (st *SerialTransport) updateAverageLatency(newLatency time.Duration) {
	if st.stats.AverageLatency == 0 {
		st.stats.AverageLatency = newLatency
	} else {
		st.stats.AverageLatency = (st.stats.AverageLatency + newLatency) / 2
	}
}
