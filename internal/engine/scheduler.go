// internal/engine/scheduler.go
package engine

import (
	"time"

	"obd-service/internal/config"
	"obd-service/internal/model"
)

// pollEntry tracks one metric's cadence.
type pollEntry struct {
	metric  model.Metric
	period  time.Duration
	band    model.PriorityBand
	nextDue time.Time
	enabled bool
}

// PollScheduler decides which metric the engine requests next. Every metric
// carries its own period; among entries that are due, the earliest due time
// wins and equal due times fall back to the priority band, then to the fixed
// metric order. A selected entry is immediately rescheduled from now, so a
// loop that fell behind skips missed slots instead of bursting.
//
// The scheduler is owned by the engine goroutine and is not safe for
// concurrent use.
type PollScheduler struct {
	entries    []*pollEntry
	minGap     time.Duration
	lastIssued time.Time
}

// NewPollScheduler builds cadences from the configured poll periods. The
// transmission-temperature cadence stays closed until a working candidate is
// confirmed, and trouble-code polling until the first scan has completed.
func NewPollScheduler(poll *config.PollConfig, minGap time.Duration) *PollScheduler {
	periods := map[model.Metric]time.Duration{
		model.MetricRPM:       poll.RPMPeriod,
		model.MetricCoolant:   poll.CoolantPeriod,
		model.MetricSpeed:     poll.SpeedPeriod,
		model.MetricVoltage:   poll.VoltagePeriod,
		model.MetricTransTemp: poll.TransTempPeriod,
		model.MetricDTCList:   poll.DTCPeriod,
	}

	s := &PollScheduler{minGap: minGap}
	for _, metric := range model.AllMetrics {
		s.entries = append(s.entries, &pollEntry{
			metric:  metric,
			period:  periods[metric],
			band:    metric.Band(),
			enabled: metric != model.MetricTransTemp && metric != model.MetricDTCList,
		})
	}
	return s
}

// Reset restarts every cadence at now. Called when a connection is
// established so the first readings arrive promptly.
func (s *PollScheduler) Reset(now time.Time) {
	s.lastIssued = time.Time{}
	for _, e := range s.entries {
		e.nextDue = now
	}
}

// NextDue returns the metric to request now and advances its cadence. It
// returns false when nothing is due yet or the minimum inter-request gap has
// not elapsed since the previous selection.
func (s *PollScheduler) NextDue(now time.Time) (model.Metric, bool) {
	if !s.lastIssued.IsZero() && now.Sub(s.lastIssued) < s.minGap {
		return "", false
	}

	var best *pollEntry
	for _, e := range s.entries {
		if !e.enabled || e.nextDue.After(now) {
			continue
		}
		if best == nil ||
			e.nextDue.Before(best.nextDue) ||
			(e.nextDue.Equal(best.nextDue) && e.band < best.band) {
			best = e
		}
	}
	if best == nil {
		return "", false
	}

	best.nextDue = now.Add(best.period)
	s.lastIssued = now
	return best.metric, true
}

// EnableTransTemp opens or closes the transmission-temperature cadence. A
// newly opened cadence is due immediately.
func (s *PollScheduler) EnableTransTemp(enabled bool, now time.Time) {
	s.setEnabled(model.MetricTransTemp, enabled, now)
}

// EnableDTC opens or closes trouble-code polling.
func (s *PollScheduler) EnableDTC(enabled bool, now time.Time) {
	s.setEnabled(model.MetricDTCList, enabled, now)
}

// ScheduleDTCRefresh pulls the next trouble-code poll forward to at, used
// after a clear so the emptied list is confirmed quickly. The cadence is
// opened if it was still closed; an already earlier due time is kept.
func (s *PollScheduler) ScheduleDTCRefresh(at time.Time) {
	e := s.entry(model.MetricDTCList)
	if !e.enabled || at.Before(e.nextDue) {
		e.nextDue = at
	}
	e.enabled = true
}

// Snapshot reports every cadence for the status API.
func (s *PollScheduler) Snapshot() []PollStatus {
	out := make([]PollStatus, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, PollStatus{
			Metric:  e.metric,
			Band:    e.band.String(),
			Period:  e.period.String(),
			Enabled: e.enabled,
		})
	}
	return out
}

// PollStatus describes one cadence in status responses.
type PollStatus struct {
	Metric  model.Metric `json:"metric"`
	Band    string       `json:"band"`
	Period  string       `json:"period"`
	Enabled bool         `json:"enabled"`
}

func (s *PollScheduler) setEnabled(metric model.Metric, enabled bool, now time.Time) {
	e := s.entry(metric)
	if enabled && !e.enabled {
		e.nextDue = now
	}
	e.enabled = enabled
}

func (s *PollScheduler) entry(metric model.Metric) *pollEntry {
	for _, e := range s.entries {
		if e.metric == metric {
			return e
		}
	}
	// AllMetrics covers every metric, so this is unreachable.
	panic("unknown metric " + string(metric))
}
