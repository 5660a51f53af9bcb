// internal/engine/engine.go
package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"obd-service/internal/bus"
	"obd-service/internal/config"
	"obd-service/internal/driver/elm327"
	"obd-service/internal/model"
	"obd-service/internal/obd"
	"obd-service/internal/transport"
	"obd-service/internal/utils"
	"obd-service/pkg/obd2"
)

var (
	// ErrEngineRunning is returned when Start is called on a running engine.
	ErrEngineRunning = errors.New("engine is already running")
	// ErrEngineStopped is returned when a command is enqueued while the
	// engine loop is not running.
	ErrEngineStopped = errors.New("engine is not running")
	// ErrQueueFull is returned when the inward command queue is saturated.
	ErrQueueFull = errors.New("engine command queue is full")
)

// DiagnosticEngine is the single worker that owns the adapter session and
// all mutable polling state. One goroutine runs the loop; everything outside
// talks to it through the bounded command queue going in and the event bus
// coming out. The loop advances the connection state machine one step per
// tick, asks the scheduler for the next due metric while online and feeds
// every request outcome into the failure accounting.
type DiagnosticEngine struct {
	cfg        *config.Config
	session    *elm327.Session
	bus        *bus.EventBus
	scheduler  *PollScheduler
	supervisor *ReconnectSupervisor
	scanner    *CandidateScanner
	candidates []model.Candidate
	logger     *utils.EngineLogger

	commands chan model.EngineCommand

	// Loop-owned polling state, touched only from the run goroutine.
	working     *model.WorkingCandidate
	pendingScan bool
	lastCoolant float64
	hasCoolant  bool

	// mu guards the lifecycle fields and the published status mirror.
	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	status  EngineStatus
	debug   bool
}

// EngineStatus is a point-in-time snapshot of the loop for the status API.
type EngineStatus struct {
	Running          bool                    `json:"running"`
	State            model.ConnectionState   `json:"state"`
	Failures         int                     `json:"consecutive_failures"`
	LastSuccess      time.Time               `json:"last_success,omitempty"`
	Transport        string                  `json:"transport"`
	ProtocolForced   bool                    `json:"protocol_forced"`
	Debug            bool                    `json:"debug"`
	ScanCompleted    bool                    `json:"scan_completed"`
	WorkingCandidate *model.WorkingCandidate `json:"working_candidate,omitempty"`
	QueueDepth       int                     `json:"queue_depth"`
	Polls            []PollStatus            `json:"polls"`
}

// NewDiagnosticEngine wires the loop around an adapter session and an event
// bus. The engine does not own the bus; callers close it after Stop.
func NewDiagnosticEngine(cfg *config.Config, session *elm327.Session, eventBus *bus.EventBus, candidates []model.Candidate, logger *utils.EngineLogger) *DiagnosticEngine {
	e := &DiagnosticEngine{
		cfg:        cfg,
		session:    session,
		bus:        eventBus,
		scheduler:  NewPollScheduler(&cfg.Poll, cfg.Engine.MinRequestGap),
		supervisor: NewReconnectSupervisor(&cfg.Engine, logger),
		scanner:    NewCandidateScanner(session, logger),
		candidates: candidates,
		logger:     logger,
		commands:   make(chan model.EngineCommand, cfg.Engine.CommandQueueSize),
		debug:      cfg.Engine.Debug,
	}
	e.status = EngineStatus{State: model.StateDisconnected, Transport: session.TransportKind()}
	return e
}

// Start launches the engine loop. The loop begins Disconnected and connects
// on its first tick. Starting a running engine is an error.
func (e *DiagnosticEngine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return ErrEngineRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.done = make(chan struct{})
	e.running = true
	e.supervisor.ConnectNow()

	go e.run(ctx, cancel, e.done)
	return nil
}

// Stop shuts the loop down and waits for it to exit. The transport is closed
// at most once; stopping a stopped engine is a no-op.
func (e *DiagnosticEngine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	cancel, done := e.cancel, e.done
	e.mu.Unlock()

	cancel()
	<-done
}

// Done returns a channel closed when the current loop run has exited. Before
// the first Start it returns a closed channel.
func (e *DiagnosticEngine) Done() <-chan struct{} {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.done == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return e.done
}

// Running reports whether the loop goroutine is alive.
func (e *DiagnosticEngine) Running() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// Enqueue places a command on the inward queue without blocking. Commands
// are executed inside the loop on its next tick.
func (e *DiagnosticEngine) Enqueue(cmd model.EngineCommand) error {
	e.mu.RLock()
	running := e.running
	e.mu.RUnlock()
	if !running {
		return ErrEngineStopped
	}

	select {
	case e.commands <- cmd:
		return nil
	default:
		return ErrQueueFull
	}
}

// Status returns the latest published loop snapshot.
func (e *DiagnosticEngine) Status() EngineStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()

	status := e.status
	status.Running = e.running
	status.Debug = e.debug
	status.QueueDepth = len(e.commands)
	status.ProtocolForced = e.session.ProtocolForced()
	return status
}

// Candidates returns the scan table the engine was built with.
func (e *DiagnosticEngine) Candidates() []model.Candidate {
	out := make([]model.Candidate, len(e.candidates))
	copy(out, e.candidates)
	return out
}

// run is the engine loop. It is the only goroutine that touches the session,
// the scheduler and the supervisor.
func (e *DiagnosticEngine) run(ctx context.Context, cancel context.CancelFunc, done chan struct{}) {
	defer close(done)
	defer cancel()
	defer e.teardown()

	e.applyDebug(e.isDebug())
	e.logger.Info("Diagnostic engine started",
		zap.String("transport", e.session.TransportKind()),
		zap.Duration("tick_interval", e.cfg.Engine.TickInterval),
		zap.Int("candidates", len(e.candidates)),
	)

	ticker := time.NewTicker(e.cfg.Engine.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if stop := e.drainCommands(ctx); stop {
				return
			}
			e.step(ctx)
			e.syncStatus()
		}
	}
}

// teardown runs on every loop exit path: one Stopped edge if the machine was
// not already Disconnected, one transport close if it was open.
func (e *DiagnosticEngine) teardown() {
	e.session.SetTraceFunc(nil)

	if tr, ok := e.supervisor.Stopped(); ok {
		e.publishTransition(tr)
	}
	if e.session.IsOpen() {
		if err := e.session.Close(); err != nil {
			e.logger.Warn("Failed to close transport on stop", zap.Error(err))
		}
	}
	e.syncStatus()

	e.mu.Lock()
	e.running = false
	e.mu.Unlock()

	e.logger.Info("Diagnostic engine stopped")
}

// drainCommands executes every queued command. It reports true when a stop
// command was seen; the caller exits the loop without touching the queue
// again.
func (e *DiagnosticEngine) drainCommands(ctx context.Context) bool {
	for {
		select {
		case cmd := <-e.commands:
			if stop := e.execute(ctx, cmd); stop {
				return true
			}
		default:
			return false
		}
	}
}

// execute runs one inward command inside the loop.
func (e *DiagnosticEngine) execute(ctx context.Context, cmd model.EngineCommand) bool {
	switch cmd.Type {
	case model.CommandStop:
		e.logger.Info("Stop command received", zap.String("command_id", cmd.ID.String()))
		return true

	case model.CommandStart:
		// The loop is already alive; treat start as "connect now".
		e.supervisor.ConnectNow()

	case model.CommandScan:
		e.executeScanCommand(ctx, cmd)

	case model.CommandClearCodes:
		e.executeClearCommand(ctx, cmd)

	case model.CommandSetDebug:
		e.setDebug(cmd.Debug)

	default:
		e.logger.Warn("Ignoring unknown engine command", zap.String("type", string(cmd.Type)))
	}
	return false
}

func (e *DiagnosticEngine) executeScanCommand(ctx context.Context, cmd model.EngineCommand) {
	if !e.supervisor.State().IsOnline() {
		e.pendingScan = true
		e.logger.Info("Scan deferred until connected", zap.String("command_id", cmd.ID.String()))
		return
	}
	e.runScan(ctx)
}

// executeClearCommand guards the only write operation on the vehicle. A
// missing confirmation token raises a SafetyViolation event and nothing is
// sent; service-layer validation should have refused the command already.
func (e *DiagnosticEngine) executeClearCommand(ctx context.Context, cmd model.EngineCommand) {
	if cmd.ConfirmToken != model.ClearCodesConfirmToken {
		e.logger.Warn("Refusing clear-codes without confirmation token",
			zap.String("command_id", cmd.ID.String()))
		e.publish(model.NewEvent(model.EventSafetyViolation, model.SafetyViolationData{
			CommandID: cmd.ID,
			Command:   cmd.Type,
			Reason:    "clear codes requires the confirmation token",
		}))
		return
	}

	if !e.supervisor.State().IsOnline() {
		e.logger.Warn("Ignoring clear-codes while offline",
			zap.String("state", string(e.supervisor.State())))
		return
	}

	start := time.Now()
	err := e.session.ClearDTCs(ctx)
	e.logger.LogPoll("clear_codes", 0, time.Since(start), err)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		e.recordFailure(err)
		return
	}

	e.recordSuccess(time.Now())
	e.scheduler.ScheduleDTCRefresh(time.Now().Add(e.cfg.Engine.ClearRescanDelay))
	e.logger.Info("Stored trouble codes cleared",
		zap.Duration("refresh_in", e.cfg.Engine.ClearRescanDelay))
}

// step advances the loop by one tick: one state machine edge while offline,
// one scheduled request while online.
func (e *DiagnosticEngine) step(ctx context.Context) {
	now := time.Now()

	switch e.supervisor.State() {
	case model.StateDisconnected:
		if tr, ok := e.supervisor.StartConnecting(now); ok {
			e.publishTransition(tr)
		}

	case model.StateConnecting:
		if err := e.session.Open(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			e.logger.Warn("Transport open failed", zap.Error(err))
			e.publishTransition(e.supervisor.OpenFailed(time.Now(), err))
			return
		}
		e.publishTransition(e.supervisor.TransportOpened())

	case model.StateInitializing:
		if err := e.session.Initialize(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			e.logger.Warn("Adapter initialization failed", zap.Error(err))
			e.closeQuietly()
			e.publishTransition(e.supervisor.InitFailed(time.Now(), err))
			return
		}
		e.publishTransition(e.supervisor.InitSucceeded())

	case model.StateProtocolProbe:
		forced, err := e.session.ProbeProtocol(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			e.logger.Warn("Protocol probe failed", zap.Error(err))
			e.closeQuietly()
			e.publishTransition(e.supervisor.ProbeFailed(time.Now(), err))
			return
		}
		e.publishTransition(e.supervisor.ProbeSucceeded(forced))
		e.onConnected(time.Now())

	case model.StateConnected, model.StateDegraded:
		e.pollStep(ctx, now)
	}
}

// onConnected resets per-connection state. A reconnect may face a different
// vehicle, so the working candidate from the previous session is discarded
// and discovery runs again when scan-on-connect is enabled.
func (e *DiagnosticEngine) onConnected(now time.Time) {
	e.scheduler.Reset(now)
	e.setWorking(nil)
	e.setScanDone(false)
	e.hasCoolant = false
	e.pendingScan = e.cfg.Engine.ScanOnConnect || e.pendingScan
}

// pollStep runs one online tick: a pending candidate scan takes the tick,
// otherwise the next due metric is requested.
func (e *DiagnosticEngine) pollStep(ctx context.Context, now time.Time) {
	if e.pendingScan {
		e.pendingScan = false
		e.runScan(ctx)
		return
	}

	metric, ok := e.scheduler.NextDue(now)
	if !ok {
		return
	}

	if metric == model.MetricDTCList {
		e.pollDTCs(ctx)
		return
	}
	e.pollValue(ctx, metric)
}

// pollValue requests one scalar metric and publishes it on success.
func (e *DiagnosticEngine) pollValue(ctx context.Context, metric model.Metric) {
	start := time.Now()
	value, err := e.readValue(ctx, metric)
	e.logger.LogPoll(string(metric), value, time.Since(start), err)

	if err != nil {
		if ctx.Err() != nil {
			return
		}
		e.recordFailure(err)
		return
	}
	e.recordSuccess(time.Now())

	if metric == model.MetricCoolant {
		e.lastCoolant = value
		e.hasCoolant = true
	}
	if metric == model.MetricTransTemp && e.working != nil && !e.working.Candidate.InRange(value) {
		// Parsed fine but implausible; keep the counter reset, skip the event.
		e.logger.Debug("Discarding implausible transmission temperature",
			zap.Float64("value", value))
		return
	}

	e.publish(model.NewEvent(model.EventMetricUpdated, model.MetricValue{
		Metric:    metric,
		Value:     value,
		Unit:      metric.Unit(),
		Timestamp: time.Now(),
	}))
}

// readValue issues the request matching one scalar metric.
func (e *DiagnosticEngine) readValue(ctx context.Context, metric model.Metric) (float64, error) {
	switch metric {
	case model.MetricRPM:
		payload, err := e.session.RequestPID(ctx, obd2.PIDEngineRPM)
		if err != nil {
			return 0, err
		}
		return obd.DecodeRPM(payload)

	case model.MetricCoolant:
		payload, err := e.session.RequestPID(ctx, obd2.PIDCoolantTemp)
		if err != nil {
			return 0, err
		}
		return obd.DecodeCoolant(payload)

	case model.MetricSpeed:
		payload, err := e.session.RequestPID(ctx, obd2.PIDVehicleSpeed)
		if err != nil {
			return 0, err
		}
		return obd.DecodeSpeed(payload)

	case model.MetricVoltage:
		return e.session.QueryVoltage(ctx)

	case model.MetricTransTemp:
		if e.working == nil {
			return 0, &obd.MalformedError{Reason: "no working candidate"}
		}
		cand := e.working.Candidate
		payload, err := e.session.RequestIdentifier(ctx, cand.Header, cand.DID)
		if err != nil {
			return 0, err
		}
		return obd.DecodeWithFormula(cand.Formula, payload)
	}
	return 0, &obd.MalformedError{Reason: "unpollable metric " + string(metric)}
}

// pollDTCs reads the stored trouble codes and publishes the list. The list
// event is published on every successful poll; subscribers coalesce.
func (e *DiagnosticEngine) pollDTCs(ctx context.Context) {
	start := time.Now()
	codes, err := e.session.RequestDTCs(ctx)
	e.logger.LogPoll(string(model.MetricDTCList), float64(len(codes)), time.Since(start), err)

	if err != nil {
		if ctx.Err() != nil {
			return
		}
		e.recordFailure(err)
		return
	}
	e.recordSuccess(time.Now())

	e.publish(model.NewEvent(model.EventDTCListUpdated, model.DTCListData{
		Codes: codes,
		Count: len(codes),
	}))
}

// runScan walks the candidate table, replays each probe into the failure
// accounting and opens the transmission-temperature and trouble-code
// cadences. A scan with no pass still completes: trouble-code polling starts
// either way.
func (e *DiagnosticEngine) runScan(ctx context.Context) {
	var lastCoolant *float64
	if e.hasCoolant {
		value := e.lastCoolant
		lastCoolant = &value
	}

	outcome := e.scanner.Scan(ctx, e.candidates, lastCoolant)
	if ctx.Err() != nil {
		return
	}

	now := time.Now()
	for _, probe := range outcome.Probes {
		var rangeErr *CandidateValidationError
		switch {
		case probe.Err == nil:
			e.recordSuccess(now)
		case errors.As(probe.Err, &rangeErr):
			// The read and decode succeeded; only the plausibility band
			// rejected it.
			e.recordSuccess(now)
		default:
			e.recordFailure(probe.Err)
		}
	}

	for _, warning := range outcome.Warnings {
		e.publish(model.NewEvent(model.EventCandidateWarning, warning))
	}

	e.setWorking(outcome.Working)
	e.setScanDone(true)
	e.scheduler.EnableTransTemp(outcome.Working != nil, now)
	e.scheduler.EnableDTC(true, now)

	e.publish(model.NewEvent(model.EventScanCompleted, model.ScanCompletedData{
		Found:     outcome.Working != nil,
		Candidate: outcome.Working,
		Tried:     outcome.Tried,
	}))
}

// recordSuccess resets the failure counter and publishes the recovery edge
// when it closes a degradation.
func (e *DiagnosticEngine) recordSuccess(now time.Time) {
	if tr, ok := e.supervisor.RecordSuccess(now); ok {
		e.publishTransition(tr)
	}
}

// recordFailure feeds one failed request into the supervisor, publishes the
// degradation edge when the threshold is crossed and force-closes the
// transport once a degraded session has used up its grace.
func (e *DiagnosticEngine) recordFailure(err error) {
	if tr, ok := e.supervisor.RecordFailure(); ok {
		e.logger.Warn("Connection degraded",
			zap.Int("failures", e.supervisor.Failures()),
			zap.Error(err),
		)
		e.publishTransition(tr)
	}

	if !e.supervisor.ShouldForceClose() {
		return
	}

	portGone := !errors.Is(err, transport.ErrTimeout) && !obd.IsProtocolError(err)
	e.logger.Warn("Force closing transport",
		zap.Int("failures", e.supervisor.Failures()),
		zap.Bool("port_gone", portGone),
		zap.Error(err),
	)
	e.closeQuietly()
	e.publishTransition(e.supervisor.ForceClosed(time.Now(), portGone))
}

func (e *DiagnosticEngine) closeQuietly() {
	if !e.session.IsOpen() {
		return
	}
	if err := e.session.Close(); err != nil {
		e.logger.Warn("Failed to close transport", zap.Error(err))
	}
}

// setDebug toggles raw wire tracing. The trace hook publishes every line as
// a RawTrace event; with debug off the hook is removed entirely so the hot
// path pays nothing.
func (e *DiagnosticEngine) setDebug(enabled bool) {
	e.mu.Lock()
	e.debug = enabled
	e.mu.Unlock()

	e.applyDebug(enabled)
	e.logger.Info("Debug tracing toggled", zap.Bool("enabled", enabled))
}

func (e *DiagnosticEngine) applyDebug(enabled bool) {
	if !enabled {
		e.session.SetTraceFunc(nil)
		return
	}
	e.session.SetTraceFunc(func(direction, text string) {
		e.publish(model.NewEvent(model.EventRawTrace, model.RawTraceData{
			Direction: strings.ToUpper(direction),
			Text:      text,
		}))
	})
}

func (e *DiagnosticEngine) isDebug() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.debug
}

func (e *DiagnosticEngine) setWorking(working *model.WorkingCandidate) {
	e.working = working
	e.mu.Lock()
	e.status.WorkingCandidate = working
	e.mu.Unlock()
}

func (e *DiagnosticEngine) setScanDone(done bool) {
	e.mu.Lock()
	e.status.ScanCompleted = done
	e.mu.Unlock()
}

// syncStatus mirrors the loop-owned state into the snapshot served by
// Status. Runs once per tick.
func (e *DiagnosticEngine) syncStatus() {
	polls := e.scheduler.Snapshot()

	e.mu.Lock()
	e.status.State = e.supervisor.State()
	e.status.Failures = e.supervisor.Failures()
	e.status.LastSuccess = e.supervisor.LastSuccess()
	e.status.Polls = polls
	e.mu.Unlock()
}

func (e *DiagnosticEngine) publishTransition(tr Transition) {
	e.publish(model.NewEvent(model.EventConnectionChanged, model.ConnectionChangedData{
		State:    tr.To,
		Previous: tr.From,
		Reason:   tr.Reason,
	}))
	e.syncStatus()
}

func (e *DiagnosticEngine) publish(event model.Event) {
	e.bus.Publish(event)
}
