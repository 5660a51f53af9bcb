// internal/engine/engine_test.go
package engine

import (
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"obd-service/internal/bus"
	"obd-service/internal/config"
	"obd-service/internal/driver/elm327"
	"obd-service/internal/model"
	"obd-service/internal/transport"
	"obd-service/internal/utils"
)

// testLoopConfig shrinks every interval so a full connect-poll-degrade cycle
// fits in a few seconds of test time. The failure threshold keeps its real
// value because the degradation edge is pinned to it.
func testLoopConfig() *config.Config {
	return &config.Config{
		Engine: config.EngineConfig{
			TickInterval:     5 * time.Millisecond,
			MinRequestGap:    time.Millisecond,
			FailureThreshold: 15,
			ReconnectDelay:   30 * time.Millisecond,
			ProtocolCooldown: 30 * time.Millisecond,
			PortCooldown:     60 * time.Millisecond,
			ClearRescanDelay: 20 * time.Millisecond,
			ScanOnConnect:    true,
			CommandQueueSize: 16,
		},
		Poll: config.PollConfig{
			RPMPeriod:       5 * time.Millisecond,
			SpeedPeriod:     10 * time.Millisecond,
			CoolantPeriod:   15 * time.Millisecond,
			VoltagePeriod:   15 * time.Millisecond,
			TransTempPeriod: 15 * time.Millisecond,
			DTCPeriod:       30 * time.Millisecond,
		},
	}
}

// eventRecorder drains one bus subscription into a slice as events arrive,
// so tests can assert on the published sequence.
type eventRecorder struct {
	sub    *bus.Subscription
	mu     sync.Mutex
	events []model.Event
	stop   chan struct{}
	done   chan struct{}
}

func newEventRecorder(eventBus *bus.EventBus) *eventRecorder {
	r := &eventRecorder{
		sub:  eventBus.Subscribe("test-recorder"),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go r.pump()
	return r
}

func (r *eventRecorder) pump() {
	defer close(r.done)
	for {
		select {
		case <-r.stop:
			r.append(r.sub.Drain())
			return
		case <-r.sub.Ready():
			r.append(r.sub.Drain())
		}
	}
}

func (r *eventRecorder) append(events []model.Event) {
	if len(events) == 0 {
		return
	}
	r.mu.Lock()
	r.events = append(r.events, events...)
	r.mu.Unlock()
}

func (r *eventRecorder) Close() {
	close(r.stop)
	<-r.done
}

func (r *eventRecorder) snapshot() []model.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Event, len(r.events))
	copy(out, r.events)
	return out
}

// states returns the ConnectionChanged target states in publish order.
func (r *eventRecorder) states() []model.ConnectionState {
	var out []model.ConnectionState
	for _, event := range r.snapshot() {
		if data, ok := event.Data.(model.ConnectionChangedData); ok {
			out = append(out, data.State)
		}
	}
	return out
}

func (r *eventRecorder) countState(state model.ConnectionState) int {
	n := 0
	for _, s := range r.states() {
		if s == state {
			n++
		}
	}
	return n
}

// lastMetricIn returns the most recent value published for one metric.
func lastMetricIn(events []model.Event, metric model.Metric) (model.MetricValue, bool) {
	var value model.MetricValue
	found := false
	for _, event := range events {
		if mv, ok := event.Data.(model.MetricValue); ok && mv.Metric == metric {
			value = mv
			found = true
		}
	}
	return value, found
}

// lastDTCCountIn returns the code count of the most recent trouble-code event.
func lastDTCCountIn(events []model.Event) (int, bool) {
	count, found := 0, false
	for _, event := range events {
		if data, ok := event.Data.(model.DTCListData); ok {
			count = data.Count
			found = true
		}
	}
	return count, found
}

func (r *eventRecorder) waitFor(t *testing.T, timeout time.Duration, what string, pred func([]model.Event) bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if pred(r.snapshot()) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func newEngineFixture(t *testing.T, cfg *config.Config) (*DiagnosticEngine, *transport.SimTransport, *eventRecorder) {
	t.Helper()

	sim := transport.NewSimTransport(zap.NewNop())
	session := elm327.NewSession(sim, utils.NewAdapterLogger(zap.NewNop(), "sim"))
	eventBus := bus.NewEventBus(zap.NewNop())
	recorder := newEventRecorder(eventBus)
	eng := NewDiagnosticEngine(cfg, session, eventBus, config.DefaultCandidates(), utils.NewEngineLogger(zap.NewNop()))

	t.Cleanup(func() {
		eng.Stop()
		recorder.Close()
		eventBus.Close()
	})
	return eng, sim, recorder
}

func waitConnected(t *testing.T, eng *DiagnosticEngine) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if eng.Status().State == model.StateConnected {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("engine never reached connected, state %s", eng.Status().State)
}

func waitScanCompleted(t *testing.T, recorder *eventRecorder) {
	t.Helper()
	recorder.waitFor(t, 10*time.Second, "scan completion", func(events []model.Event) bool {
		for _, event := range events {
			if event.Type == model.EventScanCompleted {
				return true
			}
		}
		return false
	})
}

func TestEngineConnectsAndPolls(t *testing.T) {
	eng, _, recorder := newEngineFixture(t, testLoopConfig())

	if err := eng.Start(); err != nil {
		t.Fatalf("failed to start engine: %v", err)
	}
	waitConnected(t, eng)

	// The connect path walks its states in order.
	want := []model.ConnectionState{
		model.StateConnecting,
		model.StateInitializing,
		model.StateProtocolProbe,
		model.StateConnected,
	}
	got := recorder.states()
	idx := 0
	for _, state := range got {
		if idx < len(want) && state == want[idx] {
			idx++
		}
	}
	if idx != len(want) {
		t.Errorf("lifecycle states %v do not contain %v in order", got, want)
	}

	// Discovery confirms the first candidate and reports it.
	waitScanCompleted(t, recorder)
	for _, event := range recorder.snapshot() {
		if data, ok := event.Data.(model.ScanCompletedData); ok {
			if !data.Found || data.Candidate == nil {
				t.Fatalf("scan should have confirmed a candidate: %+v", data)
			}
			if data.Candidate.Candidate.Name != "tcm-fluid-temp-16bit" {
				t.Errorf("scan confirmed %s, want tcm-fluid-temp-16bit", data.Candidate.Candidate.Name)
			}
		}
	}

	// Every metric flows with the emulated vehicle's values.
	expected := map[model.Metric]float64{
		model.MetricRPM:       1726,
		model.MetricCoolant:   83,
		model.MetricSpeed:     60,
		model.MetricVoltage:   14.2,
		model.MetricTransTemp: 54,
	}
	for metric, value := range expected {
		recorder.waitFor(t, 10*time.Second, string(metric)+" update", func(events []model.Event) bool {
			mv, ok := lastMetricIn(events, metric)
			return ok && mv.Value == value
		})
	}

	// No stored codes on the emulated vehicle.
	recorder.waitFor(t, 10*time.Second, "trouble code list", func(events []model.Event) bool {
		count, ok := lastDTCCountIn(events)
		return ok && count == 0
	})

	status := eng.Status()
	if !status.Running {
		t.Error("status should report running")
	}
	if status.Transport != "sim" {
		t.Errorf("status transport = %s, want sim", status.Transport)
	}
	if !status.ScanCompleted {
		t.Error("status should report the scan completed")
	}
	if status.WorkingCandidate == nil {
		t.Error("status should carry the working candidate")
	}
}

func TestEngineDegradesOnceAtThresholdAndRecovers(t *testing.T) {
	cfg := testLoopConfig()
	eng, sim, recorder := newEngineFixture(t, cfg)

	if err := eng.Start(); err != nil {
		t.Fatalf("failed to start engine: %v", err)
	}
	waitConnected(t, eng)
	waitScanCompleted(t, recorder)

	// One more failure than the threshold: the edge must still fire exactly
	// once.
	sim.FailReads(cfg.Engine.FailureThreshold + 1)

	recorder.waitFor(t, 10*time.Second, "degradation", func([]model.Event) bool {
		return recorder.countState(model.StateDegraded) >= 1
	})

	// The first successful request after the dead reads recovers the session.
	recorder.waitFor(t, 10*time.Second, "recovery", func([]model.Event) bool {
		states := recorder.states()
		for i, state := range states {
			if state == model.StateDegraded {
				for _, later := range states[i+1:] {
					if later == model.StateConnected {
						return true
					}
				}
			}
		}
		return false
	})

	if n := recorder.countState(model.StateDegraded); n != 1 {
		t.Errorf("degraded %d times, want exactly once", n)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) && eng.Status().Failures != 0 {
		time.Sleep(10 * time.Millisecond)
	}
	if failures := eng.Status().Failures; failures != 0 {
		t.Errorf("failure counter = %d after recovery, want 0", failures)
	}
}

func TestClearCodesWithoutTokenNeverReachesTheVehicle(t *testing.T) {
	eng, sim, recorder := newEngineFixture(t, testLoopConfig())
	sim.SetStoredDTCs([][2]byte{{0x01, 0x23}})

	if err := eng.Start(); err != nil {
		t.Fatalf("failed to start engine: %v", err)
	}
	waitConnected(t, eng)

	recorder.waitFor(t, 10*time.Second, "stored code list", func(events []model.Event) bool {
		count, ok := lastDTCCountIn(events)
		return ok && count == 1
	})

	cmd := model.NewCommand(model.CommandClearCodes)
	if err := eng.Enqueue(cmd); err != nil {
		t.Fatalf("failed to enqueue clear: %v", err)
	}

	recorder.waitFor(t, 5*time.Second, "safety violation", func(events []model.Event) bool {
		for _, event := range events {
			if data, ok := event.Data.(model.SafetyViolationData); ok && data.CommandID == cmd.ID {
				return true
			}
		}
		return false
	})

	for _, sent := range sim.SentCommands() {
		if sent == "04" {
			t.Fatal("unconfirmed clear reached the vehicle")
		}
	}
	if count, ok := lastDTCCountIn(recorder.snapshot()); !ok || count != 1 {
		t.Errorf("stored codes should survive a refused clear, count=%d", count)
	}
}

func TestClearCodesWithTokenClearsAndRefreshes(t *testing.T) {
	eng, sim, recorder := newEngineFixture(t, testLoopConfig())
	sim.SetStoredDTCs([][2]byte{{0x01, 0x23}, {0x17, 0x97}})

	if err := eng.Start(); err != nil {
		t.Fatalf("failed to start engine: %v", err)
	}
	waitConnected(t, eng)

	recorder.waitFor(t, 10*time.Second, "stored code list", func(events []model.Event) bool {
		count, ok := lastDTCCountIn(events)
		return ok && count == 2
	})

	cmd := model.NewCommand(model.CommandClearCodes)
	cmd.ConfirmToken = model.ClearCodesConfirmToken
	if err := eng.Enqueue(cmd); err != nil {
		t.Fatalf("failed to enqueue clear: %v", err)
	}

	// The pulled-forward refresh confirms the emptied list.
	recorder.waitFor(t, 10*time.Second, "emptied code list", func(events []model.Event) bool {
		count, ok := lastDTCCountIn(events)
		return ok && count == 0
	})

	cleared := false
	for _, sent := range sim.SentCommands() {
		if sent == "04" {
			cleared = true
		}
	}
	if !cleared {
		t.Error("confirmed clear never reached the vehicle")
	}
	for _, event := range recorder.snapshot() {
		if event.Type == model.EventSafetyViolation {
			t.Error("confirmed clear raised a safety violation")
		}
	}
}

func TestStopIsIdempotentAndClosesTransportOnce(t *testing.T) {
	eng, sim, recorder := newEngineFixture(t, testLoopConfig())

	if err := eng.Start(); err != nil {
		t.Fatalf("failed to start engine: %v", err)
	}
	waitConnected(t, eng)

	eng.Stop()
	if eng.Running() {
		t.Fatal("engine still running after stop")
	}
	eng.Stop()

	if got := sim.CloseCalls(); got != 1 {
		t.Errorf("transport closed %d times, want 1", got)
	}
	if err := eng.Enqueue(model.NewCommand(model.CommandScan)); !errors.Is(err, ErrEngineStopped) {
		t.Errorf("enqueue on stopped engine returned %v, want ErrEngineStopped", err)
	}

	states := recorder.states()
	if len(states) == 0 || states[len(states)-1] != model.StateDisconnected {
		t.Errorf("last published state %v, want Disconnected", states)
	}

	// A restart re-enters the connect path.
	if err := eng.Start(); err != nil {
		t.Fatalf("failed to restart engine: %v", err)
	}
	waitConnected(t, eng)
}

func TestStartRefusesRunningEngine(t *testing.T) {
	eng, _, _ := newEngineFixture(t, testLoopConfig())

	if err := eng.Enqueue(model.NewCommand(model.CommandScan)); !errors.Is(err, ErrEngineStopped) {
		t.Fatalf("enqueue before start returned %v, want ErrEngineStopped", err)
	}
	if err := eng.Start(); err != nil {
		t.Fatalf("failed to start engine: %v", err)
	}
	if err := eng.Start(); !errors.Is(err, ErrEngineRunning) {
		t.Errorf("second start returned %v, want ErrEngineRunning", err)
	}
}

func TestOpenFailureKeepsRetrying(t *testing.T) {
	eng, sim, recorder := newEngineFixture(t, testLoopConfig())
	sim.SetOpenError(errors.New("device busy"))

	if err := eng.Start(); err != nil {
		t.Fatalf("failed to start engine: %v", err)
	}

	recorder.waitFor(t, 5*time.Second, "repeated connect attempts", func([]model.Event) bool {
		return recorder.countState(model.StateConnecting) >= 2
	})
	if state := eng.Status().State; state == model.StateConnected {
		t.Fatal("engine connected through a failing port")
	}

	sim.SetOpenError(nil)
	waitConnected(t, eng)
}

func TestManualRescanReplacesWorkingCandidate(t *testing.T) {
	eng, sim, recorder := newEngineFixture(t, testLoopConfig())

	if err := eng.Start(); err != nil {
		t.Fatalf("failed to start engine: %v", err)
	}
	waitConnected(t, eng)
	waitScanCompleted(t, recorder)

	// The first source disappears, a second one appears.
	sim.ClearDID("7E1", 0x1E1C)
	sim.SetDID("7E1", 0x049D, []byte{0x5E})

	if err := eng.Enqueue(model.NewCommand(model.CommandScan)); err != nil {
		t.Fatalf("failed to enqueue scan: %v", err)
	}

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		status := eng.Status()
		if status.WorkingCandidate != nil && status.WorkingCandidate.Candidate.Name == "tcm-pan-temp-byte" {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("rescan never confirmed the replacement candidate, status %+v", eng.Status().WorkingCandidate)
}

func TestDebugTogglePublishesRawTrace(t *testing.T) {
	eng, _, recorder := newEngineFixture(t, testLoopConfig())

	if err := eng.Start(); err != nil {
		t.Fatalf("failed to start engine: %v", err)
	}
	waitConnected(t, eng)

	on := model.NewCommand(model.CommandSetDebug)
	on.Debug = true
	if err := eng.Enqueue(on); err != nil {
		t.Fatalf("failed to enqueue debug toggle: %v", err)
	}

	recorder.waitFor(t, 5*time.Second, "raw trace lines", func(events []model.Event) bool {
		for _, event := range events {
			if data, ok := event.Data.(model.RawTraceData); ok {
				if data.Direction != "TX" && data.Direction != "RX" {
					t.Fatalf("trace direction %q, want TX or RX", data.Direction)
				}
				return true
			}
		}
		return false
	})

	off := model.NewCommand(model.CommandSetDebug)
	if err := eng.Enqueue(off); err != nil {
		t.Fatalf("failed to enqueue debug toggle: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) && eng.Status().Debug {
		time.Sleep(10 * time.Millisecond)
	}
	if eng.Status().Debug {
		t.Error("debug still reported enabled after toggle off")
	}
}
