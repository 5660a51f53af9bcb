// internal/repository/state_repository_test.go
package repository

import (
	"testing"

	"go.uber.org/zap"

	"obd-service/internal/model"
)

func newTestRepository() StateRepository {
	return NewStateRepository(zap.NewNop())
}

func TestMetricsKeepLatestValueInStableOrder(t *testing.T) {
	repo := newTestRepository()

	repo.ApplyEvent(model.NewEvent(model.EventMetricUpdated, model.MetricValue{
		Metric: model.MetricSpeed, Value: 60, Unit: "km/h",
	}))
	repo.ApplyEvent(model.NewEvent(model.EventMetricUpdated, model.MetricValue{
		Metric: model.MetricRPM, Value: 800, Unit: "rpm",
	}))
	repo.ApplyEvent(model.NewEvent(model.EventMetricUpdated, model.MetricValue{
		Metric: model.MetricRPM, Value: 1726, Unit: "rpm",
	}))

	values := repo.Metrics()
	if len(values) != 2 {
		t.Fatalf("Metrics() returned %d values, want 2", len(values))
	}
	if values[0].Metric != model.MetricRPM || values[0].Value != 1726 {
		t.Errorf("first metric = %s %.0f, want RPM 1726", values[0].Metric, values[0].Value)
	}
	if values[1].Metric != model.MetricSpeed || values[1].Value != 60 {
		t.Errorf("second metric = %s %.0f, want SPEED 60", values[1].Metric, values[1].Value)
	}

	rpm, ok := repo.Metric(model.MetricRPM)
	if !ok || rpm.Value != 1726 {
		t.Errorf("Metric(RPM) = %.0f ok=%v, want 1726 true", rpm.Value, ok)
	}
	if _, ok := repo.Metric(model.MetricCoolant); ok {
		t.Error("Metric(COOLANT) reported a value that was never applied")
	}
}

func TestConnectionTracksLastEdge(t *testing.T) {
	repo := newTestRepository()

	if got := repo.Connection().State; got != model.StateDisconnected {
		t.Fatalf("initial state = %s, want DISCONNECTED", got)
	}

	repo.ApplyEvent(model.NewEvent(model.EventConnectionChanged, model.ConnectionChangedData{
		State: model.StateConnecting, Previous: model.StateDisconnected, Reason: "starting connection attempt",
	}))
	edge := model.NewEvent(model.EventConnectionChanged, model.ConnectionChangedData{
		State: model.StateConnected, Previous: model.StateProtocolProbe, Reason: "protocol confirmed",
	})
	repo.ApplyEvent(edge)

	conn := repo.Connection()
	if conn.State != model.StateConnected {
		t.Errorf("state = %s, want CONNECTED", conn.State)
	}
	if conn.Previous != model.StateProtocolProbe {
		t.Errorf("previous = %s, want PROTOCOL_PROBE", conn.Previous)
	}
	if conn.Reason != "protocol confirmed" {
		t.Errorf("reason = %q", conn.Reason)
	}
	if !conn.ChangedAt.Equal(edge.Timestamp) {
		t.Errorf("changed_at = %v, want event timestamp %v", conn.ChangedAt, edge.Timestamp)
	}
}

func TestTroubleCodeSnapshotFollowsLastList(t *testing.T) {
	repo := newTestRepository()

	repo.ApplyEvent(model.NewEvent(model.EventDTCListUpdated, model.DTCListData{
		Codes: []model.DiagnosticCode{{Code: "P0123"}, {Code: "P1797"}},
		Count: 2,
	}))
	repo.ApplyEvent(model.NewEvent(model.EventDTCListUpdated, model.DTCListData{
		Codes: nil,
		Count: 0,
	}))

	dtcs := repo.TroubleCodes()
	if dtcs.Count != 0 || len(dtcs.Codes) != 0 {
		t.Errorf("snapshot = %d codes (count %d), want empty after clear", len(dtcs.Codes), dtcs.Count)
	}
	if dtcs.UpdatedAt.IsZero() {
		t.Error("UpdatedAt not stamped")
	}
}

func TestWarningsPublishWithScanCompletion(t *testing.T) {
	repo := newTestRepository()

	warning := model.CandidateWarningData{
		Candidate: model.Candidate{Name: "tcm-fluid-temp-16bit"},
		Value:     54,
		Reason:    "reading within 1.5°C of coolant, may mirror that sensor",
	}
	repo.ApplyEvent(model.NewEvent(model.EventCandidateWarning, warning))

	// Warnings stay pending until the scan that raised them completes.
	if got := repo.Warnings(); len(got) != 0 {
		t.Fatalf("Warnings() before completion = %d entries, want 0", len(got))
	}
	if _, ok := repo.LastScan(); ok {
		t.Fatal("LastScan() reported a scan before any completed")
	}

	working := &model.WorkingCandidate{Candidate: model.Candidate{Name: "tcm-fluid-temp-16bit"}}
	repo.ApplyEvent(model.NewEvent(model.EventScanCompleted, model.ScanCompletedData{
		Found: true, Candidate: working, Tried: 1,
	}))

	scan, ok := repo.LastScan()
	if !ok || !scan.Found || scan.Tried != 1 {
		t.Fatalf("LastScan() = %+v ok=%v, want found after 1 try", scan, ok)
	}
	if scan.Candidate == nil || scan.Candidate.Candidate.Name != "tcm-fluid-temp-16bit" {
		t.Errorf("scan candidate = %+v", scan.Candidate)
	}
	warnings := repo.Warnings()
	if len(warnings) != 1 || warnings[0].Reason != warning.Reason {
		t.Fatalf("Warnings() after completion = %+v, want the pending warning", warnings)
	}

	// A later scan without warnings replaces the previous list.
	repo.ApplyEvent(model.NewEvent(model.EventScanCompleted, model.ScanCompletedData{
		Found: false, Tried: 5,
	}))
	if got := repo.Warnings(); len(got) != 0 {
		t.Errorf("Warnings() after clean rescan = %d entries, want 0", len(got))
	}
	scan, _ = repo.LastScan()
	if scan.Found || scan.Tried != 5 {
		t.Errorf("LastScan() after rescan = %+v, want not found after 5 tries", scan)
	}
}

func TestNonStateEventsLeaveSnapshotUntouched(t *testing.T) {
	repo := newTestRepository()
	repo.ApplyEvent(model.NewEvent(model.EventMetricUpdated, model.MetricValue{
		Metric: model.MetricVoltage, Value: 14.2, Unit: "V",
	}))

	repo.ApplyEvent(model.NewEvent(model.EventRawTrace, model.RawTraceData{Direction: "TX", Text: "010C"}))
	repo.ApplyEvent(model.NewEvent(model.EventSafetyViolation, model.SafetyViolationData{
		Reason: "clear codes requires the confirmation token",
	}))
	// A payload of the wrong shape must not panic or corrupt state.
	repo.ApplyEvent(model.NewEvent(model.EventMetricUpdated, "not a metric"))

	values := repo.Metrics()
	if len(values) != 1 || values[0].Metric != model.MetricVoltage {
		t.Errorf("Metrics() = %+v, want only the voltage reading", values)
	}
}

func TestResetClearsEverySnapshot(t *testing.T) {
	repo := newTestRepository()
	repo.ApplyEvent(model.NewEvent(model.EventConnectionChanged, model.ConnectionChangedData{
		State: model.StateConnected, Previous: model.StateProtocolProbe,
	}))
	repo.ApplyEvent(model.NewEvent(model.EventMetricUpdated, model.MetricValue{
		Metric: model.MetricRPM, Value: 1726,
	}))
	repo.ApplyEvent(model.NewEvent(model.EventDTCListUpdated, model.DTCListData{
		Codes: []model.DiagnosticCode{{Code: "P0700"}}, Count: 1,
	}))
	repo.ApplyEvent(model.NewEvent(model.EventScanCompleted, model.ScanCompletedData{Found: false, Tried: 5}))

	repo.Reset()

	if got := repo.Connection().State; got != model.StateDisconnected {
		t.Errorf("state after reset = %s, want DISCONNECTED", got)
	}
	if got := repo.Metrics(); len(got) != 0 {
		t.Errorf("metrics after reset = %d entries, want 0", len(got))
	}
	if got := repo.TroubleCodes(); got.Count != 0 {
		t.Errorf("dtc count after reset = %d, want 0", got.Count)
	}
	if _, ok := repo.LastScan(); ok {
		t.Error("LastScan() still set after reset")
	}
}
