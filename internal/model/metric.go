// internal/model/metric.go
package model

import "time"

// Metric identifies one polled vehicle signal.
type Metric string

const (
	MetricRPM       Metric = "RPM"
	MetricCoolant   Metric = "COOLANT"
	MetricSpeed     Metric = "SPEED"
	MetricVoltage   Metric = "VOLTAGE"
	MetricTransTemp Metric = "TRANS_TEMP"
	MetricDTCList   Metric = "DTC_LIST"
)

// AllMetrics lists every metric the engine knows how to poll.
var AllMetrics = []Metric{
	MetricRPM,
	MetricCoolant,
	MetricSpeed,
	MetricVoltage,
	MetricTransTemp,
	MetricDTCList,
}

// PriorityBand ranks metrics when several are due in the same tick.
type PriorityBand int

const (
	BandFast PriorityBand = iota
	BandMedium
	BandSlow
)

// String returns the band name.
func (b PriorityBand) String() string {
	switch b {
	case BandFast:
		return "FAST"
	case BandMedium:
		return "MEDIUM"
	case BandSlow:
		return "SLOW"
	default:
		return "UNKNOWN"
	}
}

// Band returns the scheduling priority band for the metric.
func (m Metric) Band() PriorityBand {
	switch m {
	case MetricRPM:
		return BandFast
	case MetricSpeed, MetricCoolant, MetricVoltage, MetricTransTemp:
		return BandMedium
	case MetricDTCList:
		return BandSlow
	default:
		return BandSlow
	}
}

// Unit returns the unit string attached to MetricUpdated events.
func (m Metric) Unit() string {
	switch m {
	case MetricRPM:
		return "rpm"
	case MetricCoolant, MetricTransTemp:
		return "°C"
	case MetricSpeed:
		return "km/h"
	case MetricVoltage:
		return "V"
	default:
		return ""
	}
}

// MetricValue is one decoded reading.
type MetricValue struct {
	Metric    Metric    `json:"metric"`
	Value     float64   `json:"value"`
	Unit      string    `json:"unit"`
	Timestamp time.Time `json:"timestamp"`
}
