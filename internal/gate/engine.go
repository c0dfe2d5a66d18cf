package gate

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/randalmurphal/popeye/internal/pipeline"
)

// EvalContext carries per-evaluation inputs the engine cannot compute itself.
// Constitution verification touches the filesystem, so the orchestrator does
// it and hands the result in; the engine stays pure.
type EvalContext struct {
	ConstitutionValid  bool
	ConstitutionReason string
}

// OKContext is the EvalContext for a verified constitution.
func OKContext() EvalContext {
	return EvalContext{ConstitutionValid: true}
}

// Engine evaluates phase gates against pipeline state. It performs no I/O
// and never mutates the state it reads.
type Engine struct {
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// NewEngine creates a gate engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate computes the gate result for a phase. Pass means zero blockers:
// every required artifact exists in the right phase, every required check
// passed, the consensus score (if required) meets the threshold, and the
// constitution has not drifted.
func (e *Engine) Evaluate(phase pipeline.Phase, state *pipeline.State, ec EvalContext) pipeline.GateResult {
	result := pipeline.GateResult{
		Phase:            phase,
		Blockers:         []string{},
		MissingArtifacts: []string{},
		FailedChecks:     []string{},
		Timestamp:        time.Now().UTC(),
	}

	def, ok := DefinitionFor(phase)
	if !ok {
		result.Blockers = append(result.Blockers, fmt.Sprintf("no gate definition for phase %s", phase))
		return result
	}

	if !ec.ConstitutionValid && ec.ConstitutionReason != "" {
		result.Blockers = append(result.Blockers, ec.ConstitutionReason)
	}

	for _, t := range def.RequiredArtifacts {
		if !state.HasArtifactInPhase(t, phase) {
			result.MissingArtifacts = append(result.MissingArtifacts, string(t))
			result.Blockers = append(result.Blockers,
				fmt.Sprintf("missing required artifact %s in phase %s", t, phase))
		}
	}
	for _, t := range def.RequiredAnywhere {
		if _, ok := state.LatestArtifact(t); !ok {
			result.MissingArtifacts = append(result.MissingArtifacts, string(t))
			result.Blockers = append(result.Blockers,
				fmt.Sprintf("missing required artifact %s (any phase)", t))
		}
	}

	for _, ct := range def.RequiredChecks {
		check, found := state.CheckResult(phase, ct)
		switch {
		case !found:
			result.FailedChecks = append(result.FailedChecks, string(ct))
			result.Blockers = append(result.Blockers,
				fmt.Sprintf("required check %s has no result in phase %s", ct, phase))
		case check.Status != pipeline.CheckPass:
			result.FailedChecks = append(result.FailedChecks, string(ct))
			result.Blockers = append(result.Blockers,
				fmt.Sprintf("required check %s is %s (exit code %d)", ct, check.Status, check.ExitCode))
		}
	}

	if def.HasConsensus() {
		e.evaluateConsensus(phase, state, def, &result)
	}

	result.Pass = len(result.Blockers) == 0
	e.logger.Debug("gate evaluated",
		"phase", phase, "pass", result.Pass, "blockers", len(result.Blockers))
	return result
}

// evaluateConsensus blocks unless a consensus artifact exists in this phase
// and the handler-recorded weighted score meets the threshold. The engine
// never recomputes the score; the consensus-phase handler owns it.
func (e *Engine) evaluateConsensus(phase pipeline.Phase, state *pipeline.State, def Definition, result *pipeline.GateResult) {
	if !state.HasArtifactInPhase(pipeline.TypeConsensus, phase) {
		result.MissingArtifacts = append(result.MissingArtifacts, string(pipeline.TypeConsensus))
		result.Blockers = append(result.Blockers,
			fmt.Sprintf("missing consensus artifact in phase %s", phase))
		return
	}

	prior, ok := state.GateResults[phase]
	if !ok || prior.Score == nil {
		result.Blockers = append(result.Blockers,
			fmt.Sprintf("no consensus score recorded for phase %s", phase))
		return
	}

	result.Score = prior.Score
	result.ConsensusScore = prior.ConsensusScore
	if *prior.Score < def.ConsensusThreshold {
		result.Blockers = append(result.Blockers,
			fmt.Sprintf("consensus score %.2f below threshold %.2f", *prior.Score, def.ConsensusThreshold))
	}
}

// NextPhase returns the phase that follows current in the linear sequence.
// Terminal and out-of-band phases have no linear successor.
func (e *Engine) NextPhase(current pipeline.Phase) (pipeline.Phase, bool) {
	idx := current.LinearIndex()
	if idx < 0 || idx+1 >= len(pipeline.LinearSequence()) {
		return "", false
	}
	return pipeline.LinearSequence()[idx+1], true
}

// CanTransition reports whether from may hand off to to: to must appear in
// from's allowed transitions and from's gate must pass.
func (e *Engine) CanTransition(from, to pipeline.Phase, state *pipeline.State, ec EvalContext) bool {
	def, ok := DefinitionFor(from)
	if !ok {
		return false
	}
	allowed := false
	for _, p := range def.AllowedTransitions {
		if p == to {
			allowed = true
			break
		}
	}
	if !allowed {
		return false
	}
	return e.Evaluate(from, state, ec).Pass
}
