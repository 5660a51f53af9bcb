// internal/engine/scheduler_test.go
package engine

import (
	"testing"
	"time"

	"obd-service/internal/config"
	"obd-service/internal/model"
)

func testPollConfig() *config.PollConfig {
	return &config.PollConfig{
		RPMPeriod:       250 * time.Millisecond,
		SpeedPeriod:     500 * time.Millisecond,
		CoolantPeriod:   time.Second,
		VoltagePeriod:   time.Second,
		TransTempPeriod: time.Second,
		DTCPeriod:       12 * time.Second,
	}
}

func newTestScheduler(now time.Time) *PollScheduler {
	s := NewPollScheduler(testPollConfig(), 50*time.Millisecond)
	s.Reset(now)
	return s
}

func mustNext(t *testing.T, s *PollScheduler, now time.Time, want model.Metric) {
	t.Helper()
	got, ok := s.NextDue(now)
	if !ok {
		t.Fatalf("expected %s due at %v, nothing due", want, now)
	}
	if got != want {
		t.Fatalf("expected %s at %v, got %s", want, now, got)
	}
}

func mustIdle(t *testing.T, s *PollScheduler, now time.Time) {
	t.Helper()
	if got, ok := s.NextDue(now); ok {
		t.Fatalf("expected nothing due at %v, got %s", now, got)
	}
}

// With everything due at once the fast band goes first, but the medium
// metrics are served on the following opportunities instead of starving.
func TestEqualDueTimesFallBackToBand(t *testing.T) {
	t0 := time.Now()
	s := newTestScheduler(t0)

	mustNext(t, s, t0, model.MetricRPM)
	mustNext(t, s, t0.Add(50*time.Millisecond), model.MetricCoolant)
	mustNext(t, s, t0.Add(100*time.Millisecond), model.MetricSpeed)
	mustNext(t, s, t0.Add(150*time.Millisecond), model.MetricVoltage)
}

// An earlier due time beats a higher priority band; the band only decides
// ties.
func TestEarliestDueWinsOverBand(t *testing.T) {
	t0 := time.Now()
	s := newTestScheduler(t0)

	mustNext(t, s, t0, model.MetricRPM)

	// Coolant has been due since t0, RPM only since t0+250ms.
	mustNext(t, s, t0.Add(300*time.Millisecond), model.MetricCoolant)
}

func TestMinimumRequestGap(t *testing.T) {
	t0 := time.Now()
	s := newTestScheduler(t0)

	mustNext(t, s, t0, model.MetricRPM)
	mustIdle(t, s, t0.Add(10*time.Millisecond))
	mustNext(t, s, t0.Add(50*time.Millisecond), model.MetricCoolant)
}

func TestSelectionAdvancesCadence(t *testing.T) {
	t0 := time.Now()
	s := newTestScheduler(t0)

	mustNext(t, s, t0, model.MetricRPM)
	mustNext(t, s, t0.Add(50*time.Millisecond), model.MetricCoolant)
	mustNext(t, s, t0.Add(100*time.Millisecond), model.MetricSpeed)
	mustNext(t, s, t0.Add(150*time.Millisecond), model.MetricVoltage)

	// Everything has been issued; the next cadence to come due is RPM at
	// t0+250ms.
	mustIdle(t, s, t0.Add(200*time.Millisecond))
	mustNext(t, s, t0.Add(250*time.Millisecond), model.MetricRPM)
}

// A loop that stalled serves each overdue cadence once and reschedules from
// now, rather than bursting to catch up on missed slots.
func TestMissedSlotsAreSkippedNotBurst(t *testing.T) {
	t0 := time.Now()
	s := newTestScheduler(t0)

	mustNext(t, s, t0, model.MetricRPM)
	mustNext(t, s, t0.Add(50*time.Millisecond), model.MetricCoolant)
	mustNext(t, s, t0.Add(100*time.Millisecond), model.MetricSpeed)
	mustNext(t, s, t0.Add(150*time.Millisecond), model.MetricVoltage)

	// Stall for five seconds: RPM missed ~19 slots but is selected once,
	// then everything else in due order.
	late := t0.Add(5 * time.Second)
	mustNext(t, s, late, model.MetricRPM)
	mustNext(t, s, late.Add(50*time.Millisecond), model.MetricSpeed)
	mustNext(t, s, late.Add(100*time.Millisecond), model.MetricCoolant)
	mustNext(t, s, late.Add(150*time.Millisecond), model.MetricVoltage)
	mustIdle(t, s, late.Add(200*time.Millisecond))
}

func TestTransTempWaitsForCandidate(t *testing.T) {
	t0 := time.Now()
	s := newTestScheduler(t0)

	now := t0
	for i := 0; i < 40; i++ {
		if got, ok := s.NextDue(now); ok && got == model.MetricTransTemp {
			t.Fatalf("trans temp scheduled before a candidate was confirmed")
		}
		now = now.Add(50 * time.Millisecond)
	}

	s.EnableTransTemp(true, now)
	found := false
	for i := 0; i < 40; i++ {
		if got, ok := s.NextDue(now); ok && got == model.MetricTransTemp {
			found = true
			break
		}
		now = now.Add(50 * time.Millisecond)
	}
	if !found {
		t.Fatal("trans temp never scheduled after candidate was confirmed")
	}

	s.EnableTransTemp(false, now)
	for i := 0; i < 40; i++ {
		if got, ok := s.NextDue(now); ok && got == model.MetricTransTemp {
			t.Fatalf("trans temp scheduled after cadence was closed")
		}
		now = now.Add(50 * time.Millisecond)
	}
}

func TestDTCWaitsForFirstScan(t *testing.T) {
	t0 := time.Now()
	s := newTestScheduler(t0)

	now := t0
	for i := 0; i < 40; i++ {
		if got, ok := s.NextDue(now); ok && got == model.MetricDTCList {
			t.Fatalf("trouble codes polled before the first scan completed")
		}
		now = now.Add(50 * time.Millisecond)
	}

	s.EnableDTC(true, now)
	found := false
	for i := 0; i < 40; i++ {
		if got, ok := s.NextDue(now); ok && got == model.MetricDTCList {
			found = true
			break
		}
		now = now.Add(50 * time.Millisecond)
	}
	if !found {
		t.Fatal("trouble codes never polled after first scan")
	}
}

func TestDTCRefreshPullsCadenceForward(t *testing.T) {
	t0 := time.Now()
	s := newTestScheduler(t0)
	s.EnableDTC(true, t0)

	mustNext(t, s, t0, model.MetricRPM)
	mustNext(t, s, t0.Add(50*time.Millisecond), model.MetricCoolant)
	mustNext(t, s, t0.Add(100*time.Millisecond), model.MetricSpeed)
	mustNext(t, s, t0.Add(150*time.Millisecond), model.MetricVoltage)
	mustNext(t, s, t0.Add(200*time.Millisecond), model.MetricDTCList)

	// Without the refresh the next trouble-code poll sits 12s out.
	refreshAt := t0.Add(2200 * time.Millisecond)
	s.ScheduleDTCRefresh(refreshAt)

	var dtcAt time.Time
	for now := t0.Add(250 * time.Millisecond); now.Before(t0.Add(4 * time.Second)); now = now.Add(50 * time.Millisecond) {
		if got, ok := s.NextDue(now); ok && got == model.MetricDTCList {
			dtcAt = now
			break
		}
	}

	if dtcAt.IsZero() {
		t.Fatal("refresh never scheduled a trouble-code poll")
	}
	if dtcAt.Before(refreshAt) {
		t.Fatalf("trouble-code poll ran %v early", refreshAt.Sub(dtcAt))
	}
	if dtcAt.After(refreshAt.Add(500 * time.Millisecond)) {
		t.Fatalf("trouble-code poll not pulled forward, ran at +%v", dtcAt.Sub(t0))
	}
}

func TestResetRestartsAllCadences(t *testing.T) {
	t0 := time.Now()
	s := newTestScheduler(t0)

	mustNext(t, s, t0, model.MetricRPM)
	mustNext(t, s, t0.Add(50*time.Millisecond), model.MetricCoolant)

	t1 := t0.Add(time.Minute)
	s.Reset(t1)
	mustNext(t, s, t1, model.MetricRPM)
	mustNext(t, s, t1.Add(50*time.Millisecond), model.MetricCoolant)
}
