// internal/engine/supervisor.go
package engine

import (
	"fmt"
	"time"

	"obd-service/internal/config"
	"obd-service/internal/model"
	"obd-service/internal/utils"
)

// Transition is one traversed edge of the connection state machine.
type Transition struct {
	From   model.ConnectionState
	To     model.ConnectionState
	Reason string
}

// ReconnectSupervisor owns the connection state machine and the consecutive
// failure counter. The engine goroutine is its only writer; every edge comes
// back as a Transition so the caller can publish exactly one event per edge.
//
// Failure accounting: any transport or protocol error increments the
// counter, any successfully parsed value resets it. Crossing the configured
// threshold while connected degrades the session once; twice the threshold
// without a single success forces the transport closed and re-enters the
// connect path after a cooldown.
type ReconnectSupervisor struct {
	state       model.ConnectionState
	failures    int
	lastSuccess time.Time
	nextAttempt time.Time

	threshold        int
	reconnectDelay   time.Duration
	protocolCooldown time.Duration
	portCooldown     time.Duration

	logger *utils.EngineLogger
}

// NewReconnectSupervisor starts the machine in Disconnected with the first
// connect attempt allowed immediately.
func NewReconnectSupervisor(cfg *config.EngineConfig, logger *utils.EngineLogger) *ReconnectSupervisor {
	return &ReconnectSupervisor{
		state:            model.StateDisconnected,
		threshold:        cfg.FailureThreshold,
		reconnectDelay:   cfg.ReconnectDelay,
		protocolCooldown: cfg.ProtocolCooldown,
		portCooldown:     cfg.PortCooldown,
		logger:           logger,
	}
}

// State returns the current connection state.
func (s *ReconnectSupervisor) State() model.ConnectionState {
	return s.state
}

// Failures returns the consecutive failure count.
func (s *ReconnectSupervisor) Failures() int {
	return s.failures
}

// LastSuccess returns when the last value was successfully parsed.
func (s *ReconnectSupervisor) LastSuccess() time.Time {
	return s.lastSuccess
}

// StartConnecting leaves Disconnected once the backoff window has passed.
func (s *ReconnectSupervisor) StartConnecting(now time.Time) (Transition, bool) {
	if s.state != model.StateDisconnected || now.Before(s.nextAttempt) {
		return Transition{}, false
	}
	return s.to(model.StateConnecting, "opening transport"), true
}

// ConnectNow clears any pending backoff so the next Disconnected step may
// attempt to connect immediately.
func (s *ReconnectSupervisor) ConnectNow() {
	s.nextAttempt = time.Time{}
}

// TransportOpened advances Connecting to Initializing.
func (s *ReconnectSupervisor) TransportOpened() Transition {
	return s.to(model.StateInitializing, "transport open")
}

// OpenFailed returns to Disconnected and schedules the next attempt after
// the reconnect delay.
func (s *ReconnectSupervisor) OpenFailed(now time.Time, err error) Transition {
	s.nextAttempt = now.Add(s.reconnectDelay)
	return s.to(model.StateDisconnected, "open failed: "+err.Error())
}

// InitSucceeded advances Initializing to ProtocolProbe.
func (s *ReconnectSupervisor) InitSucceeded() Transition {
	return s.to(model.StateProtocolProbe, "adapter initialized")
}

// InitFailed returns to Disconnected and schedules the next attempt.
func (s *ReconnectSupervisor) InitFailed(now time.Time, err error) Transition {
	s.nextAttempt = now.Add(s.reconnectDelay)
	return s.to(model.StateDisconnected, "init failed: "+err.Error())
}

// ProbeSucceeded enters Connected with a clean failure counter.
func (s *ReconnectSupervisor) ProbeSucceeded(forced bool) Transition {
	s.failures = 0
	reason := "protocol negotiated"
	if forced {
		reason = "protocol forced after auto negotiation failed"
	}
	return s.to(model.StateConnected, reason)
}

// ProbeFailed returns to Disconnected and schedules the next attempt.
func (s *ReconnectSupervisor) ProbeFailed(now time.Time, err error) Transition {
	s.nextAttempt = now.Add(s.reconnectDelay)
	return s.to(model.StateDisconnected, "probe failed: "+err.Error())
}

// RecordSuccess resets the failure counter. While Degraded it also returns
// the recovery edge back to Connected.
func (s *ReconnectSupervisor) RecordSuccess(now time.Time) (Transition, bool) {
	s.failures = 0
	s.lastSuccess = now
	if s.state == model.StateDegraded {
		return s.to(model.StateConnected, "request succeeded"), true
	}
	return Transition{}, false
}

// RecordFailure bumps the counter. Crossing the threshold while Connected
// returns the Degraded edge; once Degraded, further failures return no edge,
// so the caller publishes the degradation exactly once.
func (s *ReconnectSupervisor) RecordFailure() (Transition, bool) {
	s.failures++
	if s.state == model.StateConnected && s.failures >= s.threshold {
		return s.to(model.StateDegraded, fmt.Sprintf("%d consecutive failures", s.failures)), true
	}
	return Transition{}, false
}

// ShouldForceClose reports whether a Degraded session has used up its grace:
// twice the failure threshold without a single success.
func (s *ReconnectSupervisor) ShouldForceClose() bool {
	return s.state == model.StateDegraded && s.failures >= 2*s.threshold
}

// ForceClosed applies the Degraded to Disconnected edge after the caller has
// closed the transport. portGone selects the longer cooldown used when the
// device node itself disappeared rather than the vehicle going silent.
func (s *ReconnectSupervisor) ForceClosed(now time.Time, portGone bool) Transition {
	cooldown := s.protocolCooldown
	reason := "closed after persistent protocol failures"
	if portGone {
		cooldown = s.portCooldown
		reason = "closed after port loss"
	}
	s.nextAttempt = now.Add(cooldown)
	return s.to(model.StateDisconnected, reason)
}

// Stopped forces Disconnected from any state on an explicit stop. Already
// disconnected machines report no edge.
func (s *ReconnectSupervisor) Stopped() (Transition, bool) {
	if s.state == model.StateDisconnected {
		return Transition{}, false
	}
	return s.to(model.StateDisconnected, "stopped"), true
}

func (s *ReconnectSupervisor) to(target model.ConnectionState, reason string) Transition {
	tr := Transition{From: s.state, To: target, Reason: reason}
	s.state = target
	if s.logger != nil {
		s.logger.LogStateChange(string(tr.From), string(tr.To), reason)
	}
	return tr
}
