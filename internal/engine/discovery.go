// internal/engine/discovery.go
package engine

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"obd-service/internal/driver/elm327"
	"obd-service/internal/model"
	"obd-service/internal/obd"
	"obd-service/internal/utils"
)

// coolantMirrorTolerance is how close a candidate reading may sit to the
// last coolant temperature before it is flagged as a suspected mirror of
// that signal. Mirroring is a warning, not a rejection: on a cold vehicle
// both temperatures legitimately track each other.
const coolantMirrorTolerance = 1.5

// CandidateValidationError reports a candidate whose payload decoded fine
// but fell outside its plausible range. The read itself succeeded, so it
// does not count toward the connection failure streak.
type CandidateValidationError struct {
	Candidate string
	Value     float64
	Min, Max  float64
}

func (e *CandidateValidationError) Error() string {
	return fmt.Sprintf("candidate %s: value %.1f outside plausible range [%.1f, %.1f]",
		e.Candidate, e.Value, e.Min, e.Max)
}

// ProbeResult is one candidate attempt during a scan, kept so the engine can
// replay the pass/fail sequence into its failure accounting.
type ProbeResult struct {
	Candidate model.Candidate
	Value     float64
	Err       error
}

// ScanOutcome is the result of one scan over the candidate table.
type ScanOutcome struct {
	Working  *model.WorkingCandidate
	Tried    int
	Probes   []ProbeResult
	Warnings []model.CandidateWarningData
}

// CandidateScanner walks the ordered transmission-temperature candidate
// table and confirms the first entry whose identifier read decodes to an
// in-range value. Table order encodes decreasing prior probability, so the
// first pass wins and later candidates are never consulted.
type CandidateScanner struct {
	session *elm327.Session
	logger  *utils.EngineLogger
}

// NewCandidateScanner creates a scanner for the given adapter session.
func NewCandidateScanner(session *elm327.Session, logger *utils.EngineLogger) *CandidateScanner {
	return &CandidateScanner{session: session, logger: logger}
}

// Scan probes candidates in table order until one confirms. Failures of
// individual candidates only skip the entry; lastCoolant, when known, is
// compared against the confirmed value to flag suspected coolant mirrors.
func (cs *CandidateScanner) Scan(ctx context.Context, candidates []model.Candidate, lastCoolant *float64) ScanOutcome {
	var outcome ScanOutcome

	for _, cand := range candidates {
		if ctx.Err() != nil {
			break
		}
		outcome.Tried++

		value, err := cs.probe(ctx, cand)
		if err != nil {
			outcome.Probes = append(outcome.Probes, ProbeResult{Candidate: cand, Err: err})
			if cs.logger != nil {
				cs.logger.Debug("Candidate probe failed",
					zap.String("candidate", cand.Name),
					zap.String("header", cand.Header),
					zap.Error(err),
				)
			}
			continue
		}

		outcome.Probes = append(outcome.Probes, ProbeResult{Candidate: cand, Value: value})

		if lastCoolant != nil && math.Abs(value-*lastCoolant) <= coolantMirrorTolerance {
			outcome.Warnings = append(outcome.Warnings, model.CandidateWarningData{
				Candidate: cand,
				Value:     value,
				Reason:    fmt.Sprintf("reading within %.1f°C of coolant, may mirror that sensor", coolantMirrorTolerance),
			})
		}

		outcome.Working = &model.WorkingCandidate{
			Candidate:   cand,
			ConfirmedAt: time.Now(),
		}
		if cs.logger != nil {
			cs.logger.Info("Transmission temperature candidate confirmed",
				zap.String("candidate", cand.Name),
				zap.String("header", cand.Header),
				zap.Float64("value", value),
				zap.Int("tried", outcome.Tried),
			)
		}
		break
	}

	return outcome
}

func (cs *CandidateScanner) probe(ctx context.Context, cand model.Candidate) (float64, error) {
	payload, err := cs.session.RequestIdentifier(ctx, cand.Header, cand.DID)
	if err != nil {
		return 0, err
	}

	value, err := obd.DecodeWithFormula(cand.Formula, payload)
	if err != nil {
		return 0, err
	}

	if !cand.InRange(value) {
		return 0, &CandidateValidationError{
			Candidate: cand.Name,
			Value:     value,
			Min:       cand.MinValid,
			Max:       cand.MaxValid,
		}
	}
	return value, nil
}
