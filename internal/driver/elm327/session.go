// internal/driver/elm327/session.go
package elm327

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"obd-service/internal/model"
	"obd-service/internal/obd"
	"obd-service/internal/transport"
	"obd-service/internal/utils"
	"obd-service/pkg/obd2"
)

// promptTerminator ends every adapter response.
const promptTerminator = '>'

// TraceFunc receives every raw line crossing the link. Direction is "tx" for
// commands and "rx" for response lines.
type TraceFunc func(direction, text string)

// Session owns one transport and speaks the ELM327 dialect over it: the
// ordered initialization sequence, protocol probing, header selection and the
// typed diagnostic requests. At most one exchange is in flight; callers from
// outside the engine loop serialize on the session mutex.
type Session struct {
	transport transport.Transport
	logger    *utils.AdapterLogger
	mutex     sync.Mutex

	currentHeader string
	forced        bool
	initialized   bool
	traceFn       TraceFunc
}

// NewSession creates a session over an opened or not-yet-opened transport.
func NewSession(t transport.Transport, logger *utils.AdapterLogger) *Session {
	return &Session{
		transport:     t,
		logger:        logger,
		currentHeader: FunctionalHeader,
	}
}

// SetTraceFunc installs the raw line hook. Pass nil to disable tracing.
func (s *Session) SetTraceFunc(fn TraceFunc) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.traceFn = fn
}

// Open opens the underlying transport.
func (s *Session) Open(ctx context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if err := s.transport.Open(ctx); err != nil {
		return fmt.Errorf("failed to open %s transport: %w", s.transport.Kind(), err)
	}
	s.currentHeader = FunctionalHeader
	s.forced = false
	s.initialized = false
	return nil
}

// Close closes the underlying transport.
func (s *Session) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.initialized = false
	return s.transport.Close()
}

// IsOpen reports whether the underlying transport is open.
func (s *Session) IsOpen() bool {
	return s.transport.IsOpen()
}

// IsInitialized reports whether the setup sequence has completed since the
// last open.
func (s *Session) IsInitialized() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.initialized
}

// ProtocolForced reports whether the probe had to force 29-bit extended CAN.
func (s *Session) ProtocolForced() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.forced
}

// CurrentHeader returns the request header currently selected on the adapter.
func (s *Session) CurrentHeader() string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.currentHeader
}

// TransportStats exposes link statistics for the status surface.
func (s *Session) TransportStats() transport.TransportStats {
	return s.transport.Stats()
}

// TransportKind returns the kind of the underlying transport.
func (s *Session) TransportKind() string {
	return s.transport.Kind()
}

// Initialize runs the ordered setup sequence. The reset restores factory
// defaults including echo, so every reply up to echo-off may carry the
// command text back. Each reply is validated before the next command is
// sent; a failed step aborts the sequence.
func (s *Session) Initialize(ctx context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.initialized = false
	s.forced = false

	for _, step := range initSequence() {
		lines, err := s.exchangeLocked(ctx, step.Request)
		reply := strings.Join(lines, " ")
		if err == nil {
			err = validateInitReply(step, reply)
		}
		s.logger.LogInitStep(step.Name, reply, err)
		if err != nil {
			if _, ok := err.(*InitStepError); ok {
				return err
			}
			return &InitStepError{Step: step.Name, Response: reply, Err: err}
		}
	}

	// The reset reverted any previous ATSH selection.
	s.currentHeader = FunctionalHeader
	s.initialized = true
	return nil
}

// validateInitReply checks one setup reply. Most commands answer OK; the
// reset answers with the version banner.
func validateInitReply(step initStep, reply string) error {
	if step.ExpectBanner {
		if strings.Contains(reply, "ELM327") {
			return nil
		}
		return &InitStepError{Step: step.Name, Response: reply}
	}
	if strings.Contains(reply, "OK") {
		return nil
	}
	return &InitStepError{Step: step.Name, Response: reply}
}

// ProbeProtocol verifies the vehicle answers on the auto-negotiated protocol
// by reading the coolant PID. When that fails it forces 29-bit extended CAN
// and retries once. The returned flag reports whether the forced protocol is
// now active.
func (s *Session) ProbeProtocol(ctx context.Context) (bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, err := s.requestPIDLocked(ctx, obd2.PIDCoolantTemp, probeTimeout); err == nil {
		return false, nil
	}

	request := CommandRequest{Text: AT_COMMANDS.PROTOCOL_CAN_29B, Timeout: atCommandTimeout, SettleDelay: interCommandDelay}
	lines, err := s.exchangeLocked(ctx, request)
	if err != nil {
		return false, fmt.Errorf("failed to force extended CAN: %w", err)
	}
	if !strings.Contains(strings.Join(lines, " "), "OK") {
		return false, fmt.Errorf("adapter rejected protocol switch: %q", strings.Join(lines, " "))
	}

	if _, err := s.requestPIDLocked(ctx, obd2.PIDCoolantTemp, probeTimeout); err != nil {
		return false, fmt.Errorf("probe failed on forced protocol: %w", err)
	}
	s.forced = true
	return true, nil
}

// RequestPID reads one Mode 01 PID on the functional header and returns the
// payload bytes after the reply marker.
func (s *Session) RequestPID(ctx context.Context, pid byte) ([]byte, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.requestPIDLocked(ctx, pid, busRequestTimeout)
}

func (s *Session) requestPIDLocked(ctx context.Context, pid byte, timeout time.Duration) ([]byte, error) {
	if err := s.ensureHeaderLocked(ctx, FunctionalHeader); err != nil {
		return nil, err
	}

	command := PidCommand(pid)
	lines, err := s.exchangeLocked(ctx, CommandRequest{Text: command, Timeout: timeout})
	if err != nil {
		return nil, err
	}
	return obd.ParsePidResponse(lines, pid)
}

// RequestIdentifier reads a Mode 22 data identifier from one module. The
// request header is switched before the read and left in place; the next
// broadcast request restores the functional header.
func (s *Session) RequestIdentifier(ctx context.Context, header string, did uint16) ([]byte, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if err := s.ensureHeaderLocked(ctx, header); err != nil {
		return nil, err
	}

	command := IdentifierCommand(did)
	lines, err := s.exchangeLocked(ctx, CommandRequest{Text: command, Timeout: busRequestTimeout})
	if err != nil {
		return nil, err
	}
	return obd.ParseIdentifierResponse(lines, did)
}

// RequestDTCs reads stored trouble codes from every responding module.
func (s *Session) RequestDTCs(ctx context.Context) ([]model.DiagnosticCode, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if err := s.ensureHeaderLocked(ctx, FunctionalHeader); err != nil {
		return nil, err
	}

	lines, err := s.exchangeLocked(ctx, CommandRequest{Text: ReadCodesCommand, Timeout: busRequestTimeout})
	if err != nil {
		return nil, err
	}
	return obd.ParseDtcs(lines)
}

// ClearDTCs erases stored codes and freeze frames. The caller is responsible
// for confirmation; this method only talks to the bus.
func (s *Session) ClearDTCs(ctx context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if err := s.ensureHeaderLocked(ctx, FunctionalHeader); err != nil {
		return err
	}

	lines, err := s.exchangeLocked(ctx, CommandRequest{Text: ClearCodesCommand, Timeout: busRequestTimeout})
	if err != nil {
		return err
	}
	return obd.ParseClearAck(lines)
}

// QueryVoltage reads the adapter supply voltage. This is answered by the
// adapter itself and works without a vehicle protocol.
func (s *Session) QueryVoltage(ctx context.Context) (float64, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	lines, err := s.exchangeLocked(ctx, CommandRequest{Text: AT_COMMANDS.READ_VOLTAGE, Timeout: atCommandTimeout})
	if err != nil {
		return 0, err
	}
	for _, line := range lines {
		if value, err := obd.ParseVoltage(line); err == nil {
			return value, nil
		}
	}
	return 0, &obd.MalformedError{Reason: "no voltage in reply", Raw: strings.Join(lines, " ")}
}

// ensureHeaderLocked switches the adapter request header when it differs
// from the one currently selected.
func (s *Session) ensureHeaderLocked(ctx context.Context, header string) error {
	if s.currentHeader == header {
		return nil
	}

	request := CommandRequest{Text: HeaderCommand(header), Timeout: atCommandTimeout}
	lines, err := s.exchangeLocked(ctx, request)
	if err != nil {
		return fmt.Errorf("failed to select header %s: %w", header, err)
	}
	if !strings.Contains(strings.Join(lines, " "), "OK") {
		return fmt.Errorf("adapter rejected header %s: %q", header, strings.Join(lines, " "))
	}
	s.currentHeader = header
	return nil
}

// exchangeLocked performs one command/response round trip: write the command
// with its carriage return, read until the prompt, clean the echo and noise
// out of the reply. The session mutex must be held.
func (s *Session) exchangeLocked(ctx context.Context, req CommandRequest) ([]string, error) {
	if !s.transport.IsOpen() {
		return nil, transport.ErrNotOpen
	}

	start := time.Now()
	s.trace("tx", req.Text)

	if err := s.transport.Write(ctx, []byte(req.Text+"\r")); err != nil {
		s.logger.LogExchange(req.Text, 0, time.Since(start), err)
		return nil, fmt.Errorf("failed to send %s: %w", req.Text, err)
	}

	raw, err := s.transport.ReadUntil(ctx, promptTerminator, req.Timeout)
	for _, line := range raw.Lines {
		s.trace("rx", line)
	}
	if err != nil {
		s.logger.LogExchange(req.Text, len(raw.Lines), time.Since(start), err)
		return nil, fmt.Errorf("no reply to %s: %w", req.Text, err)
	}

	lines := obd.CleanLines(raw.Lines, req.Text)
	s.logger.LogExchange(req.Text, len(lines), time.Since(start), nil)

	if req.SettleDelay > 0 {
		if err := sleepContext(ctx, req.SettleDelay); err != nil {
			return lines, err
		}
	}
	return lines, nil
}

// trace forwards one raw line to the installed hook.
func (s *Session) trace(direction, text string) {
	if s.traceFn != nil {
		s.traceFn(direction, text)
	}
}

// sleepContext waits for d or until the context is cancelled.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
