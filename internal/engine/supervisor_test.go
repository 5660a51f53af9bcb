// internal/engine/supervisor_test.go
package engine

import (
	"errors"
	"testing"
	"time"

	"obd-service/internal/config"
	"obd-service/internal/model"
)

func testEngineConfig() *config.EngineConfig {
	return &config.EngineConfig{
		TickInterval:     20 * time.Millisecond,
		MinRequestGap:    50 * time.Millisecond,
		FailureThreshold: 15,
		ReconnectDelay:   3 * time.Second,
		ProtocolCooldown: 2 * time.Second,
		PortCooldown:     5 * time.Second,
		ClearRescanDelay: 2 * time.Second,
		ScanOnConnect:    true,
		CommandQueueSize: 16,
	}
}

func connectedSupervisor(t *testing.T, now time.Time) *ReconnectSupervisor {
	t.Helper()
	s := NewReconnectSupervisor(testEngineConfig(), nil)
	if _, ok := s.StartConnecting(now); !ok {
		t.Fatal("fresh supervisor refused to start connecting")
	}
	s.TransportOpened()
	s.InitSucceeded()
	s.ProbeSucceeded(false)
	if s.State() != model.StateConnected {
		t.Fatalf("expected CONNECTED, got %s", s.State())
	}
	return s
}

func TestHappyPathWalksLegalEdges(t *testing.T) {
	now := time.Now()
	s := NewReconnectSupervisor(testEngineConfig(), nil)

	transitions := []Transition{}
	tr, ok := s.StartConnecting(now)
	if !ok {
		t.Fatal("expected immediate first connect attempt")
	}
	transitions = append(transitions, tr, s.TransportOpened(), s.InitSucceeded(), s.ProbeSucceeded(false))

	wantStates := []model.ConnectionState{
		model.StateConnecting,
		model.StateInitializing,
		model.StateProtocolProbe,
		model.StateConnected,
	}
	for i, tr := range transitions {
		if tr.To != wantStates[i] {
			t.Fatalf("edge %d: got %s -> %s, want -> %s", i, tr.From, tr.To, wantStates[i])
		}
		if !tr.From.CanTransitionTo(tr.To) {
			t.Fatalf("edge %d: %s -> %s is not part of the state machine", i, tr.From, tr.To)
		}
	}
}

func TestDegradeFiresExactlyOnceAtThreshold(t *testing.T) {
	now := time.Now()
	s := connectedSupervisor(t, now)

	for i := 1; i <= 14; i++ {
		if tr, ok := s.RecordFailure(); ok {
			t.Fatalf("failure %d already produced edge %s -> %s", i, tr.From, tr.To)
		}
	}

	tr, ok := s.RecordFailure()
	if !ok {
		t.Fatal("15th consecutive failure produced no edge")
	}
	if tr.From != model.StateConnected || tr.To != model.StateDegraded {
		t.Fatalf("unexpected edge %s -> %s", tr.From, tr.To)
	}

	if _, ok := s.RecordFailure(); ok {
		t.Fatal("16th failure produced a second degradation edge")
	}
	if s.State() != model.StateDegraded {
		t.Fatalf("expected DEGRADED, got %s", s.State())
	}
}

func TestAnySuccessResetsCounter(t *testing.T) {
	now := time.Now()
	s := connectedSupervisor(t, now)

	for i := 0; i < 14; i++ {
		s.RecordFailure()
	}
	if _, ok := s.RecordSuccess(now); ok {
		t.Fatal("success while connected should not produce an edge")
	}
	if s.Failures() != 0 {
		t.Fatalf("expected counter reset, got %d", s.Failures())
	}

	// The streak starts over: 14 more failures stay below the threshold.
	for i := 0; i < 14; i++ {
		if _, ok := s.RecordFailure(); ok {
			t.Fatal("degraded before a fresh streak reached the threshold")
		}
	}
	if _, ok := s.RecordFailure(); !ok {
		t.Fatal("fresh streak of 15 failures did not degrade")
	}
}

func TestDegradedRecoversOnSuccess(t *testing.T) {
	now := time.Now()
	s := connectedSupervisor(t, now)

	for i := 0; i < 15; i++ {
		s.RecordFailure()
	}
	tr, ok := s.RecordSuccess(now)
	if !ok {
		t.Fatal("success while degraded produced no recovery edge")
	}
	if tr.From != model.StateDegraded || tr.To != model.StateConnected {
		t.Fatalf("unexpected edge %s -> %s", tr.From, tr.To)
	}
	if s.Failures() != 0 {
		t.Fatalf("expected counter reset, got %d", s.Failures())
	}
}

func TestForceCloseAfterGraceExhausted(t *testing.T) {
	now := time.Now()
	s := connectedSupervisor(t, now)

	for i := 0; i < 29; i++ {
		s.RecordFailure()
	}
	if s.ShouldForceClose() {
		t.Fatal("force close before twice the threshold")
	}
	s.RecordFailure()
	if !s.ShouldForceClose() {
		t.Fatal("expected force close at twice the threshold")
	}

	tr := s.ForceClosed(now, false)
	if tr.From != model.StateDegraded || tr.To != model.StateDisconnected {
		t.Fatalf("unexpected edge %s -> %s", tr.From, tr.To)
	}

	// Protocol-level cooldown is 2s.
	if _, ok := s.StartConnecting(now.Add(time.Second)); ok {
		t.Fatal("reconnect attempted during protocol cooldown")
	}
	if _, ok := s.StartConnecting(now.Add(2 * time.Second)); !ok {
		t.Fatal("reconnect blocked after protocol cooldown elapsed")
	}
}

func TestPortLossUsesLongerCooldown(t *testing.T) {
	now := time.Now()
	s := connectedSupervisor(t, now)

	for i := 0; i < 30; i++ {
		s.RecordFailure()
	}
	s.ForceClosed(now, true)

	if _, ok := s.StartConnecting(now.Add(4 * time.Second)); ok {
		t.Fatal("reconnect attempted during port cooldown")
	}
	if _, ok := s.StartConnecting(now.Add(5 * time.Second)); !ok {
		t.Fatal("reconnect blocked after port cooldown elapsed")
	}
}

func TestOpenFailureBacksOff(t *testing.T) {
	now := time.Now()
	s := NewReconnectSupervisor(testEngineConfig(), nil)

	if _, ok := s.StartConnecting(now); !ok {
		t.Fatal("first attempt refused")
	}
	tr := s.OpenFailed(now, errors.New("no such device"))
	if tr.To != model.StateDisconnected {
		t.Fatalf("unexpected edge %s -> %s", tr.From, tr.To)
	}

	if _, ok := s.StartConnecting(now.Add(time.Second)); ok {
		t.Fatal("retry attempted before the reconnect delay")
	}
	if _, ok := s.StartConnecting(now.Add(3 * time.Second)); !ok {
		t.Fatal("retry blocked after the reconnect delay")
	}
}

func TestStopIsTerminalAndIdempotent(t *testing.T) {
	now := time.Now()
	s := connectedSupervisor(t, now)

	tr, ok := s.Stopped()
	if !ok {
		t.Fatal("stop from connected produced no edge")
	}
	if tr.To != model.StateDisconnected {
		t.Fatalf("unexpected edge %s -> %s", tr.From, tr.To)
	}

	if _, ok := s.Stopped(); ok {
		t.Fatal("second stop produced another edge")
	}
}

func TestStopAllowedMidHandshake(t *testing.T) {
	now := time.Now()
	s := NewReconnectSupervisor(testEngineConfig(), nil)
	s.StartConnecting(now)
	s.TransportOpened()

	tr, ok := s.Stopped()
	if !ok || tr.From != model.StateInitializing || tr.To != model.StateDisconnected {
		t.Fatalf("stop mid-handshake: ok=%v edge %s -> %s", ok, tr.From, tr.To)
	}
}
