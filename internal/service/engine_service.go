// internal/service/engine_service.go
package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"obd-service/internal/bus"
	"obd-service/internal/config"
	"obd-service/internal/engine"
	"obd-service/internal/model"
	"obd-service/internal/obd"
	"obd-service/internal/repository"
	"obd-service/internal/utils"
)

var (
	// ErrConfirmationRequired rejects a clear-codes request that arrived
	// without the confirmation token. The refused command never reaches
	// the engine queue.
	ErrConfirmationRequired = errors.New("clear codes requires the confirmation token")

	// ErrVehicleOffline rejects a vehicle-side command while no vehicle
	// connection is established.
	ErrVehicleOffline = errors.New("vehicle connection is not established")
)

// EngineService orchestrates the diagnostic engine: it starts and stops the
// loop, forwards commands onto the engine queue, and keeps the state
// repository fed from the event bus so read endpoints never touch the engine
// goroutine.
type EngineService struct {
	engine   *engine.DiagnosticEngine
	repo     repository.StateRepository
	eventBus *bus.EventBus
	config   *config.Config
	logger   *utils.ServiceLogger

	mu           sync.Mutex
	subscription *bus.Subscription
	pumpStop     chan struct{}
	pumpDone     chan struct{}
}

// NewEngineService creates a new engine service instance
func NewEngineService(
	diagnosticEngine *engine.DiagnosticEngine,
	repo repository.StateRepository,
	eventBus *bus.EventBus,
	cfg *config.Config,
	logger *zap.Logger,
) *EngineService {
	return &EngineService{
		engine:   diagnosticEngine,
		repo:     repo,
		eventBus: eventBus,
		config:   cfg,
		logger:   utils.NewServiceLogger(logger, "engine-service"),
	}
}

// Start subscribes the state repository to the event bus and launches the
// diagnostic loop.
func (es *EngineService) Start() error {
	es.mu.Lock()
	if es.pumpStop != nil {
		es.mu.Unlock()
		return engine.ErrEngineRunning
	}
	sub := es.eventBus.Subscribe("state-repository")
	stop := make(chan struct{})
	done := make(chan struct{})
	es.subscription, es.pumpStop, es.pumpDone = sub, stop, done
	es.mu.Unlock()

	go es.pumpEvents(sub, stop, done)

	if err := es.engine.Start(); err != nil {
		es.stopPump(context.Background())
		return err
	}

	es.logger.LogServiceStart(es.config.App.Version, nil)
	return nil
}

// Shutdown stops the diagnostic loop and waits for the last published events
// to land in the state repository. Shutting down twice is a no-op.
func (es *EngineService) Shutdown(ctx context.Context) error {
	es.engine.Stop()

	if err := es.stopPump(ctx); err != nil {
		return err
	}
	es.logger.LogServiceStop("shutdown requested")
	return nil
}

// stopPump signals the pump goroutine, waits for it to apply what is still
// queued, and releases the subscription.
func (es *EngineService) stopPump(ctx context.Context) error {
	es.mu.Lock()
	sub, stop, done := es.subscription, es.pumpStop, es.pumpDone
	es.subscription, es.pumpStop, es.pumpDone = nil, nil, nil
	es.mu.Unlock()
	if stop == nil {
		return nil
	}

	close(stop)
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	es.eventBus.Unsubscribe(sub)
	return nil
}

// pumpEvents drains the bus subscription into the state repository until
// stopped, then applies whatever is still queued.
func (es *EngineService) pumpEvents(sub *bus.Subscription, stop, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			for _, event := range sub.Drain() {
				es.repo.ApplyEvent(event)
			}
			return
		case <-sub.Ready():
			for _, event := range sub.Drain() {
				es.repo.ApplyEvent(event)
			}
		}
	}
}

// Status merges the live engine status with the last connection edge.
func (es *EngineService) Status() EngineStatusView {
	return EngineStatusView{
		EngineStatus: es.engine.Status(),
		Connection:   es.repo.Connection(),
	}
}

// Metrics returns the last known value of every polled metric.
func (es *EngineService) Metrics() []model.MetricValue {
	return es.repo.Metrics()
}

// Metric returns the last known value of one metric.
func (es *EngineService) Metric(metric model.Metric) (model.MetricValue, bool) {
	return es.repo.Metric(metric)
}

// TroubleCodes returns the last stored-code list with human-readable
// descriptions attached.
func (es *EngineService) TroubleCodes() TroubleCodeReport {
	snapshot := es.repo.TroubleCodes()
	report := TroubleCodeReport{
		Codes:     make([]TroubleCodeView, 0, len(snapshot.Codes)),
		Count:     snapshot.Count,
		UpdatedAt: snapshot.UpdatedAt,
	}
	for _, code := range snapshot.Codes {
		report.Codes = append(report.Codes, TroubleCodeView{
			Code:        code.Code,
			Description: obd.Describe(code.Code),
		})
	}
	return report
}

// LastScan returns the outcome of the most recent candidate scan along with
// the warnings it raised.
func (es *EngineService) LastScan() (ScanReport, bool) {
	scan, ok := es.repo.LastScan()
	if !ok {
		return ScanReport{}, false
	}
	return ScanReport{
		ScanSnapshot: scan,
		Warnings:     es.repo.Warnings(),
	}, true
}

// Candidates returns the transmission temperature candidate table in probe
// order.
func (es *EngineService) Candidates() []model.Candidate {
	return es.engine.Candidates()
}

// TriggerScan queues a transmission temperature rescan.
func (es *EngineService) TriggerScan() (CommandReceipt, error) {
	cmd := model.NewCommand(model.CommandScan)
	if err := es.engine.Enqueue(cmd); err != nil {
		return CommandReceipt{}, err
	}
	es.logger.Info("Candidate rescan requested",
		zap.String("command_id", cmd.ID.String()),
	)
	return newCommandReceipt(cmd), nil
}

// ClearCodes queues a clear-codes command. The confirmation token is checked
// here and again inside the engine loop; a request without it is refused
// before anything is queued.
func (es *EngineService) ClearCodes(token string) (CommandReceipt, error) {
	if token != model.ClearCodesConfirmToken {
		es.logger.Warn("Refusing clear-codes request without confirmation token")
		return CommandReceipt{}, ErrConfirmationRequired
	}
	if !es.repo.Connection().State.IsOnline() {
		return CommandReceipt{}, ErrVehicleOffline
	}

	cmd := model.NewCommand(model.CommandClearCodes)
	cmd.ConfirmToken = token
	if err := es.engine.Enqueue(cmd); err != nil {
		return CommandReceipt{}, err
	}
	es.logger.Info("Clear stored codes requested",
		zap.String("command_id", cmd.ID.String()),
	)
	return newCommandReceipt(cmd), nil
}

// SetDebug toggles raw wire tracing on the engine.
func (es *EngineService) SetDebug(enabled bool) (CommandReceipt, error) {
	cmd := model.NewCommand(model.CommandSetDebug)
	cmd.Debug = enabled
	if err := es.engine.Enqueue(cmd); err != nil {
		return CommandReceipt{}, err
	}
	return newCommandReceipt(cmd), nil
}

// StartEngine launches the diagnostic loop, or schedules an immediate
// reconnect attempt when it is already running.
func (es *EngineService) StartEngine() error {
	if es.engine.Running() {
		cmd := model.NewCommand(model.CommandStart)
		return es.engine.Enqueue(cmd)
	}

	// Stale snapshots from the previous run would otherwise survive the
	// restart.
	es.repo.Reset()
	if err := es.engine.Start(); err != nil {
		return err
	}
	es.logger.Info("Diagnostic engine restarted")
	return nil
}

// StopEngine stops the diagnostic loop and waits for the transport to close.
// Stopping an already stopped engine is a no-op.
func (es *EngineService) StopEngine() {
	es.engine.Stop()
}

// Data Transfer Objects

// EngineStatusView combines the engine's own status with the last connection
// edge recorded by the state repository.
type EngineStatusView struct {
	engine.EngineStatus
	Connection repository.ConnectionSnapshot `json:"connection"`
}

// TroubleCodeView is one stored code with its description.
type TroubleCodeView struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// TroubleCodeReport is the decorated stored-code list.
type TroubleCodeReport struct {
	Codes     []TroubleCodeView `json:"codes"`
	Count     int               `json:"count"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// ScanReport is the last scan outcome together with its warnings.
type ScanReport struct {
	repository.ScanSnapshot
	Warnings []model.CandidateWarningData `json:"warnings"`
}

// CommandReceipt acknowledges a queued engine command.
type CommandReceipt struct {
	CommandID uuid.UUID         `json:"command_id"`
	Type      model.CommandType `json:"type"`
	IssuedAt  time.Time         `json:"issued_at"`
}

func newCommandReceipt(cmd model.EngineCommand) CommandReceipt {
	return CommandReceipt{
		CommandID: cmd.ID,
		Type:      cmd.Type,
		IssuedAt:  cmd.IssuedAt,
	}
}
