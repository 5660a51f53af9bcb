// internal/service/engine_service_test.go
package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"obd-service/internal/bus"
	"obd-service/internal/config"
	"obd-service/internal/driver/elm327"
	"obd-service/internal/engine"
	"obd-service/internal/model"
	"obd-service/internal/repository"
	"obd-service/internal/transport"
	"obd-service/internal/utils"
)

func testServiceConfig() *config.Config {
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
		App: config.AppConfig{Name: "obd-service", Version: "test"},
	}
}

func newServiceFixture(t *testing.T) (*EngineService, *transport.SimTransport) {
	t.Helper()

	cfg := testServiceConfig()
	sim := transport.NewSimTransport(zap.NewNop())
	session := elm327.NewSession(sim, utils.NewAdapterLogger(zap.NewNop(), "sim"))
	eventBus := bus.NewEventBus(zap.NewNop())
	eng := engine.NewDiagnosticEngine(cfg, session, eventBus, config.DefaultCandidates(), utils.NewEngineLogger(zap.NewNop()))
	repo := repository.NewStateRepository(zap.NewNop())
	svc := NewEngineService(eng, repo, eventBus, cfg, zap.NewNop())

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.Shutdown(ctx)
		eventBus.Close()
	})
	return svc, sim
}

func waitStatus(t *testing.T, svc *EngineService, what string, pred func(EngineStatusView) bool) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if pred(svc.Status()) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s, status %+v", what, svc.Status())
}

func TestServiceFeedsStateRepository(t *testing.T) {
	svc, sim := newServiceFixture(t)
	sim.SetStoredDTCs([][2]byte{{0x01, 0x23}})

	if err := svc.Start(); err != nil {
		t.Fatalf("failed to start service: %v", err)
	}

	// The repository snapshot must follow the engine through connect and
	// the first scan without the test ever touching the bus directly.
	waitStatus(t, svc, "connected snapshot", func(status EngineStatusView) bool {
		return status.Connection.State == model.StateConnected && status.ScanCompleted
	})
	waitStatus(t, svc, "metric snapshots", func(EngineStatusView) bool {
		return len(svc.Metrics()) >= 4
	})

	rpm, ok := svc.Metric(model.MetricRPM)
	if !ok || rpm.Value != 1726 {
		t.Errorf("Metric(RPM) = %.0f ok=%v, want 1726 true", rpm.Value, ok)
	}

	waitStatus(t, svc, "stored code report", func(EngineStatusView) bool {
		return svc.TroubleCodes().Count == 1
	})
	report := svc.TroubleCodes()
	if report.Codes[0].Code != "P0123" {
		t.Errorf("first code = %s, want P0123", report.Codes[0].Code)
	}
	if report.Codes[0].Description == "" {
		t.Error("stored code carried no description")
	}

	scan, ok := svc.LastScan()
	if !ok || !scan.Found {
		t.Fatalf("LastScan() = %+v ok=%v, want a confirmed scan", scan, ok)
	}
	if scan.Candidate == nil || scan.Candidate.Candidate.Name != "tcm-fluid-temp-16bit" {
		t.Errorf("scan candidate = %+v", scan.Candidate)
	}

	if got := len(svc.Candidates()); got != 5 {
		t.Errorf("Candidates() returned %d entries, want 5", got)
	}
}

func TestClearCodesRefusedWithoutToken(t *testing.T) {
	svc, sim := newServiceFixture(t)
	if err := svc.Start(); err != nil {
		t.Fatalf("failed to start service: %v", err)
	}
	waitStatus(t, svc, "connection", func(status EngineStatusView) bool {
		return status.Connection.State == model.StateConnected
	})
	before := len(sim.SentCommands())

	if _, err := svc.ClearCodes(""); !errors.Is(err, ErrConfirmationRequired) {
		t.Fatalf("ClearCodes(\"\") error = %v, want ErrConfirmationRequired", err)
	}
	if _, err := svc.ClearCodes("yes really"); !errors.Is(err, ErrConfirmationRequired) {
		t.Fatalf("ClearCodes with wrong token error = %v, want ErrConfirmationRequired", err)
	}

	// Nothing may have been queued, so no clear request reaches the wire.
	time.Sleep(50 * time.Millisecond)
	for _, sent := range sim.SentCommands()[before:] {
		if sent == "04" {
			t.Fatal("refused clear-codes request still reached the adapter")
		}
	}
}

func TestClearCodesRefusedWhileOffline(t *testing.T) {
	svc, _ := newServiceFixture(t)
	// Service not started: the repository still reports DISCONNECTED.
	if _, err := svc.ClearCodes(model.ClearCodesConfirmToken); !errors.Is(err, ErrVehicleOffline) {
		t.Fatalf("ClearCodes while offline error = %v, want ErrVehicleOffline", err)
	}
}

func TestClearCodesWithTokenReachesVehicle(t *testing.T) {
	svc, sim := newServiceFixture(t)
	sim.SetStoredDTCs([][2]byte{{0x01, 0x23}})
	if err := svc.Start(); err != nil {
		t.Fatalf("failed to start service: %v", err)
	}
	waitStatus(t, svc, "stored codes", func(EngineStatusView) bool {
		return svc.TroubleCodes().Count == 1
	})

	receipt, err := svc.ClearCodes(model.ClearCodesConfirmToken)
	if err != nil {
		t.Fatalf("ClearCodes with token failed: %v", err)
	}
	if receipt.Type != model.CommandClearCodes {
		t.Errorf("receipt type = %s", receipt.Type)
	}

	waitStatus(t, svc, "cleared codes", func(EngineStatusView) bool {
		return svc.TroubleCodes().Count == 0
	})
}

func TestShutdownRecordsFinalDisconnect(t *testing.T) {
	svc, _ := newServiceFixture(t)
	if err := svc.Start(); err != nil {
		t.Fatalf("failed to start service: %v", err)
	}
	waitStatus(t, svc, "connection", func(status EngineStatusView) bool {
		return status.Connection.State == model.StateConnected
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := svc.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}

	// The pump drains the stop edge before exiting, so the snapshot ends
	// on DISCONNECTED.
	if got := svc.Status().Connection.State; got != model.StateDisconnected {
		t.Errorf("state after shutdown = %s, want DISCONNECTED", got)
	}
	if svc.Status().Running {
		t.Error("engine still reports running after shutdown")
	}
}

func TestStartEngineAfterStopRestartsLoop(t *testing.T) {
	svc, _ := newServiceFixture(t)
	if err := svc.Start(); err != nil {
		t.Fatalf("failed to start service: %v", err)
	}
	waitStatus(t, svc, "connection", func(status EngineStatusView) bool {
		return status.Connection.State == model.StateConnected
	})

	svc.StopEngine()
	if svc.Status().Running {
		t.Fatal("engine reports running after StopEngine")
	}

	if err := svc.StartEngine(); err != nil {
		t.Fatalf("StartEngine failed: %v", err)
	}
	waitStatus(t, svc, "reconnection", func(status EngineStatusView) bool {
		return status.Connection.State == model.StateConnected
	})

	// Restarting a running engine is not an error, it only forces an
	// immediate reconnect attempt.
	if err := svc.StartEngine(); err != nil {
		t.Fatalf("StartEngine on running engine failed: %v", err)
	}
}
