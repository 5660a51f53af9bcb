// internal/model/event.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event
type EventType string

const (
	EventConnectionChanged EventType = "CONNECTION_CHANGED"
	EventMetricUpdated     EventType = "METRIC_UPDATED"
	EventDTCListUpdated    EventType = "DTC_LIST_UPDATED"
	EventRawTrace          EventType = "RAW_TRACE"
	EventCandidateWarning  EventType = "CANDIDATE_WARNING"
	EventSafetyViolation   EventType = "SAFETY_VIOLATION"
	EventScanCompleted     EventType = "SCAN_COMPLETED"
)

// Event is one outward engine notification. Data holds the typed payload for
// the event type (ConnectionChangedData, MetricValue, ...).
type Event struct {
	ID        uuid.UUID   `json:"id"`
	Type      EventType   `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
	Source    string      `json:"source"`
}

// ConnectionChangedData carries a state transition and a short human-readable
// reason ("init step ATE0 failed", "15 consecutive failures").
type ConnectionChangedData struct {
	State    ConnectionState `json:"state"`
	Previous ConnectionState `json:"previous"`
	Reason   string          `json:"reason"`
}

// DTCListData carries the currently stored trouble codes.
type DTCListData struct {
	Codes []DiagnosticCode `json:"codes"`
	Count int              `json:"count"`
}

// RawTraceData carries one raw wire exchange, emitted only in debug mode.
type RawTraceData struct {
	Direction string `json:"direction"` // TX or RX
	Text      string `json:"text"`
}

// CandidateWarningData flags a discovery result that passed its range check
// but resembles an unrelated signal (e.g. mirrors the coolant reading).
type CandidateWarningData struct {
	Candidate Candidate `json:"candidate"`
	Value     float64   `json:"value"`
	Reason    string    `json:"reason"`
}

// SafetyViolationData reports a refused command, such as clear-codes without
// its confirmation token.
type SafetyViolationData struct {
	CommandID uuid.UUID   `json:"command_id"`
	Command   CommandType `json:"command"`
	Reason    string      `json:"reason"`
}

// ScanCompletedData reports the outcome of a candidate scan.
type ScanCompletedData struct {
	Found     bool              `json:"found"`
	Candidate *WorkingCandidate `json:"candidate,omitempty"`
	Tried     int               `json:"tried"`
}

// NewEvent builds an event stamped with a fresh ID and the current time.
func NewEvent(t EventType, data interface{}) Event {
	return Event{
		ID:        uuid.New(),
		Type:      t,
		Data:      data,
		Timestamp: time.Now(),
		Source:    "diagnostic-engine",
	}
}

// CoalesceKey groups events that supersede each other. Subscribers that fall
// behind keep only the newest event per key; events with distinct keys are
// never dropped in favor of one another.
func (e Event) CoalesceKey() string {
	if e.Type == EventMetricUpdated {
		if mv, ok := e.Data.(MetricValue); ok {
			return string(e.Type) + ":" + string(mv.Metric)
		}
	}
	return string(e.Type)
}
