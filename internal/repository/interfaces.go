// internal/repository/interfaces.go
package repository

import (
	"time"

	"obd-service/internal/model"
)

// StateRepository is the read model the HTTP layer serves: the last known
// value of everything the engine publishes. A bus subscriber feeds it; it
// holds no history and talks to no storage backend.
type StateRepository interface {
	// ApplyEvent folds one engine event into the snapshot. Unknown event
	// types are ignored.
	ApplyEvent(event model.Event)

	// Connection returns the most recent connection edge.
	Connection() ConnectionSnapshot

	// Metrics returns the last known value per metric in stable order.
	Metrics() []model.MetricValue

	// Metric returns the last known value of one metric.
	Metric(metric model.Metric) (model.MetricValue, bool)

	// TroubleCodes returns the last published stored-code list.
	TroubleCodes() TroubleCodeSnapshot

	// LastScan returns the outcome of the most recent candidate scan.
	LastScan() (ScanSnapshot, bool)

	// Warnings returns the candidate warnings raised by the last scan.
	Warnings() []model.CandidateWarningData

	// Reset drops every snapshot, used when the engine is restarted.
	Reset()
}

// ConnectionSnapshot is the last traversed connection edge.
type ConnectionSnapshot struct {
	State     model.ConnectionState `json:"state"`
	Previous  model.ConnectionState `json:"previous"`
	Reason    string                `json:"reason"`
	ChangedAt time.Time             `json:"changed_at"`
}

// TroubleCodeSnapshot is the last published stored-code list.
type TroubleCodeSnapshot struct {
	Codes     []model.DiagnosticCode `json:"codes"`
	Count     int                    `json:"count"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// ScanSnapshot is the outcome of the most recent candidate scan.
type ScanSnapshot struct {
	Found       bool                    `json:"found"`
	Candidate   *model.WorkingCandidate `json:"candidate,omitempty"`
	Tried       int                     `json:"tried"`
	CompletedAt time.Time               `json:"completed_at"`
}
