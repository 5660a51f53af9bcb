// internal/repository/state_repository.go
package repository

import (
	"sync"

	"go.uber.org/zap"

	"obd-service/internal/model"
)

// stateRepository implements StateRepository interface
type stateRepository struct {
	mu     sync.RWMutex
	logger *zap.Logger

	connection      ConnectionSnapshot
	metrics         map[model.Metric]model.MetricValue
	dtcs            TroubleCodeSnapshot
	scan            *ScanSnapshot
	warnings        []model.CandidateWarningData
	pendingWarnings []model.CandidateWarningData
}

// NewStateRepository creates an empty in-memory state repository
func NewStateRepository(logger *zap.Logger) StateRepository {
	return &stateRepository{
		logger: logger,
		connection: ConnectionSnapshot{
			State:    model.StateDisconnected,
			Previous: model.StateDisconnected,
		},
		metrics: make(map[model.Metric]model.MetricValue),
	}
}

// ApplyEvent folds one engine event into the snapshot
func (r *stateRepository) ApplyEvent(event model.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch event.Type {
	case model.EventConnectionChanged:
		data, ok := event.Data.(model.ConnectionChangedData)
		if !ok {
			r.logger.Warn("Connection event with unexpected payload",
				zap.String("event_id", event.ID.String()))
			return
		}
		r.connection = ConnectionSnapshot{
			State:     data.State,
			Previous:  data.Previous,
			Reason:    data.Reason,
			ChangedAt: event.Timestamp,
		}

	case model.EventMetricUpdated:
		value, ok := event.Data.(model.MetricValue)
		if !ok {
			r.logger.Warn("Metric event with unexpected payload",
				zap.String("event_id", event.ID.String()))
			return
		}
		r.metrics[value.Metric] = value

	case model.EventDTCListUpdated:
		data, ok := event.Data.(model.DTCListData)
		if !ok {
			r.logger.Warn("DTC event with unexpected payload",
				zap.String("event_id", event.ID.String()))
			return
		}
		r.dtcs = TroubleCodeSnapshot{
			Codes:     data.Codes,
			Count:     data.Count,
			UpdatedAt: event.Timestamp,
		}

	case model.EventCandidateWarning:
		data, ok := event.Data.(model.CandidateWarningData)
		if !ok {
			return
		}
		// Warnings accumulate during a scan and are published with its
		// completion, so a finished scan never shows a half-filled list.
		r.pendingWarnings = append(r.pendingWarnings, data)

	case model.EventScanCompleted:
		data, ok := event.Data.(model.ScanCompletedData)
		if !ok {
			return
		}
		r.scan = &ScanSnapshot{
			Found:       data.Found,
			Candidate:   data.Candidate,
			Tried:       data.Tried,
			CompletedAt: event.Timestamp,
		}
		r.warnings = r.pendingWarnings
		r.pendingWarnings = nil

	default:
		// RAW_TRACE and SAFETY_VIOLATION carry no durable state.
	}
}

// Connection returns the most recent connection edge
func (r *stateRepository) Connection() ConnectionSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.connection
}

// Metrics returns the last known value per metric in stable order
func (r *stateRepository) Metrics() []model.MetricValue {
	r.mu.RLock()
	defer r.mu.RUnlock()

	values := make([]model.MetricValue, 0, len(r.metrics))
	for _, metric := range model.AllMetrics {
		if value, ok := r.metrics[metric]; ok {
			values = append(values, value)
		}
	}
	return values
}

// Metric returns the last known value of one metric
func (r *stateRepository) Metric(metric model.Metric) (model.MetricValue, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	value, ok := r.metrics[metric]
	return value, ok
}

// TroubleCodes returns the last published stored-code list
func (r *stateRepository) TroubleCodes() TroubleCodeSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dtcs
}

// LastScan returns the outcome of the most recent candidate scan
func (r *stateRepository) LastScan() (ScanSnapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.scan == nil {
		return ScanSnapshot{}, false
	}
	return *r.scan, true
}

// Warnings returns the candidate warnings raised by the last scan
func (r *stateRepository) Warnings() []model.CandidateWarningData {
	r.mu.RLock()
	defer r.mu.RUnlock()
	warnings := make([]model.CandidateWarningData, len(r.warnings))
	copy(warnings, r.warnings)
	return warnings
}

// Reset drops every snapshot
func (r *stateRepository) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connection = ConnectionSnapshot{
		State:    model.StateDisconnected,
		Previous: model.StateDisconnected,
	}
	r.metrics = make(map[model.Metric]model.MetricValue)
	r.dtcs = TroubleCodeSnapshot{}
	r.scan = nil
	r.warnings = nil
	r.pendingWarnings = nil
}
