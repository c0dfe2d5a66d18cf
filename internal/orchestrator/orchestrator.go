package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tidwall/gjson"

	"github.com/randalmurphal/popeye/internal/artifact"
	"github.com/randalmurphal/popeye/internal/checks"
	"github.com/randalmurphal/popeye/internal/config"
	"github.com/randalmurphal/popeye/internal/consensus"
	"github.com/randalmurphal/popeye/internal/constitution"
	pipelineerrors "github.com/randalmurphal/popeye/internal/errors"
	"github.com/randalmurphal/popeye/internal/events"
	"github.com/randalmurphal/popeye/internal/gate"
	"github.com/randalmurphal/popeye/internal/journal"
	"github.com/randalmurphal/popeye/internal/pipeline"
	"github.com/randalmurphal/popeye/internal/provider"
	"github.com/randalmurphal/popeye/internal/skills"
)

// maxLoopIterations is a hard safety bound on the main loop. The recovery
// budget bounds failure cycles; this bound catches routing bugs.
const maxLoopIterations = 500

// Orchestrator owns the main pipeline loop for one project.
type Orchestrator struct {
	projectDir string
	cfg        *config.Config

	engine    *gate.Engine
	artifacts *artifact.Manager
	skills    *skills.Loader
	consensus *consensus.Runner
	checks    *checks.Runner

	author    provider.Provider
	executor  Executor
	publisher events.Publisher
	journal   *journal.Journal
	logger    *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

// WithPublisher sets the event publisher.
func WithPublisher(p events.Publisher) Option {
	return func(o *Orchestrator) {
		o.publisher = p
	}
}

// WithAuthor sets the authoring provider used by document-producing roles.
func WithAuthor(p provider.Provider) Option {
	return func(o *Orchestrator) {
		o.author = p
	}
}

// WithExecutor sets the external implementation executor.
func WithExecutor(e Executor) Option {
	return func(o *Orchestrator) {
		o.executor = e
	}
}

// WithJournal sets the run journal.
func WithJournal(j *journal.Journal) Option {
	return func(o *Orchestrator) {
		o.journal = j
	}
}

// New creates an orchestrator for projectDir. The registry supplies reviewer
// and arbitrator providers for consensus rounds.
func New(projectDir string, cfg *config.Config, registry *provider.Registry, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		projectDir: projectDir,
		cfg:        cfg,
		publisher:  events.NewNopPublisher(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}

	o.engine = gate.NewEngine(gate.WithLogger(o.logger))
	o.artifacts = artifact.NewManager(projectDir, artifact.WithLogger(o.logger))
	o.skills = skills.NewLoader(projectDir)

	var consensusOpts []consensus.Option
	consensusOpts = append(consensusOpts, consensus.WithLogger(o.logger))
	if cfg.Arbitrator != nil {
		consensusOpts = append(consensusOpts, consensus.WithArbitrator(*cfg.Arbitrator))
	}
	o.consensus = consensus.NewRunner(registry, cfg.Reviewers, cfg.Rules(), consensusOpts...)

	var checkOpts []checks.Option
	checkOpts = append(checkOpts, checks.WithLogger(o.logger))
	if cfg.Checks.TimeoutMS > 0 {
		checkOpts = append(checkOpts, checks.WithTimeout(time.Duration(cfg.Checks.TimeoutMS)*time.Millisecond))
	}
	o.checks = checks.NewRunner(projectDir, checkOpts...)

	return o
}

// Result is the outcome of a full pipeline run.
type Result struct {
	Success            bool
	FinalPhase         pipeline.Phase
	Artifacts          []pipeline.ArtifactEntry
	RecoveryIterations int
	Err                error
}

// Run drives the pipeline from its persisted state (or a fresh one) to a
// terminal phase. The state is saved atomically after every transition.
func (o *Orchestrator) Run(ctx context.Context) (Result, error) {
	state, err := pipeline.LoadState(o.projectDir)
	if err != nil {
		state = pipeline.NewState()
	}
	state.MaxRecoveryIterations = o.cfg.Recovery.MaxIterations
	state.ActiveRoles = o.cfg.Roles()
	if o.cfg.SessionGuidance != "" {
		state.SessionGuidance = o.cfg.SessionGuidance
	}

	pc := &PhaseContext{
		ProjectDir: o.projectDir,
		State:      state,
		Config:     o.cfg,
		Skills:     o.skills,
		Artifacts:  o.artifacts,
		Gates:      o.engine,
		Consensus:  o.consensus,
		Checks:     o.checks,
		Author:     o.author,
		Executor:   o.executor,
		Events:     o.publisher,
		Logger:     o.logger,
	}

	for i := 0; !state.PipelinePhase.Terminal(); i++ {
		if i >= maxLoopIterations {
			return o.result(state, fmt.Errorf("pipeline exceeded %d iterations", maxLoopIterations)),
				fmt.Errorf("pipeline exceeded %d iterations", maxLoopIterations)
		}

		phase := state.PipelinePhase
		o.publisher.Publish(events.New(events.TypePhaseStarted, phase, ""))
		o.logger.Info("phase started", "phase", phase)

		res := o.safeRun(ctx, phase, pc)

		status := constitution.Verify(state, o.projectDir)
		ec := gate.EvalContext{ConstitutionValid: status.Valid, ConstitutionReason: status.Reason}
		evaluated := o.engine.Evaluate(phase, state, ec)
		if !res.Success {
			evaluated.Blockers = append(evaluated.Blockers, fmt.Sprintf("phase handler failed: %v", res.Err))
			evaluated.Pass = false
		}
		merged := mergeGateResult(state.GateResults[phase], evaluated)
		state.GateResults[phase] = merged

		pass := merged.Pass
		ev := events.New(events.TypeGateEvaluated, phase, res.Message)
		ev.Pass = &pass
		o.publisher.Publish(ev)
		if o.journal != nil {
			if err := o.journal.RecordGate(merged); err != nil {
				o.logger.Warn("journal gate record failed", "error", err)
			}
		}

		var next pipeline.Phase
		if merged.Pass {
			next = o.nextOnPass(phase, state)
		} else {
			next = o.nextOnFail(phase, state, merged)
		}

		if o.journal != nil {
			if err := o.journal.RecordTransition(phase, next, state.RecoveryCount); err != nil {
				o.logger.Warn("journal transition record failed", "error", err)
			}
		}
		o.logger.Info("phase completed", "phase", phase, "pass", merged.Pass, "next", next)
		o.publisher.Publish(events.New(events.TypePhaseCompleted, phase, string(next)))

		state.PipelinePhase = next
		if err := state.Save(o.projectDir); err != nil {
			return o.result(state, err), err
		}
	}

	// Terminal handlers run once, best-effort.
	final := state.PipelinePhase
	if res := o.safeRun(ctx, final, pc); !res.Success {
		o.logger.Warn("terminal handler failed", "phase", final, "error", res.Err)
	}
	if err := state.Save(o.projectDir); err != nil {
		o.logger.Warn("final state persist failed", "error", err)
	}

	if final == pipeline.PhaseDone {
		o.publisher.Publish(events.New(events.TypePipelineDone, final, ""))
		return o.result(state, nil), nil
	}
	o.publisher.Publish(events.New(events.TypePipelineStuck, final, ""))
	err = fmt.Errorf("pipeline stuck after %d recovery iterations (failed phase %s)",
		state.RecoveryCount, state.FailedPhase)
	return o.result(state, err), nil
}

func (o *Orchestrator) result(state *pipeline.State, err error) Result {
	return Result{
		Success:            state.PipelinePhase == pipeline.PhaseDone,
		FinalPhase:         state.PipelinePhase,
		Artifacts:          state.Artifacts,
		RecoveryIterations: state.RecoveryCount,
		Err:                err,
	}
}

// safeRun dispatches to the phase handler, converting panics into handler
// failures. Handlers never crash the loop.
func (o *Orchestrator) safeRun(ctx context.Context, phase pipeline.Phase, pc *PhaseContext) (res PhaseResult) {
	defer func() {
		if r := recover(); r != nil {
			res = failure(phase, pipelineerrors.ErrHandlerFailed(string(phase), fmt.Errorf("panic: %v", r)))
		}
	}()

	h, ok := HandlerFor(phase)
	if !ok {
		return failure(phase, fmt.Errorf("no handler for phase %s", phase))
	}
	return h(ctx, pc)
}

// nextOnPass picks the next phase after a passing gate: an approved change
// request wins after REVIEW/AUDIT, the recovery loop honors its rewind
// target, everything else advances linearly.
func (o *Orchestrator) nextOnPass(phase pipeline.Phase, state *pipeline.State) pipeline.Phase {
	if phase == pipeline.PhaseReview || phase == pipeline.PhaseAudit {
		if i := state.FirstProposedChange(); i >= 0 {
			cr := &state.PendingChangeRequests[i]
			cr.Status = pipeline.CRApproved
			o.logger.Info("change request approved", "cr_id", cr.CRID, "target", cr.TargetPhase)
			o.publisher.Publish(events.New(events.TypeChangeRequest, phase,
				fmt.Sprintf("approved %s, routing to %s", cr.CRID, cr.TargetPhase)))
			return cr.TargetPhase
		}
	}

	if phase == pipeline.PhaseRecoveryLoop {
		target := o.rewindTarget(state)
		o.publisher.Publish(events.New(events.TypeRewind, phase, string(target)))
		if o.journal != nil {
			if err := o.journal.RecordRecovery(state.FailedPhase, target, state.RecoveryCount); err != nil {
				o.logger.Warn("journal recovery record failed", "error", err)
			}
		}
		state.FailedPhase = ""
		return target
	}

	next, ok := o.engine.NextPhase(phase)
	if !ok {
		return pipeline.PhaseDone
	}
	return next
}

// rewindTarget reads the latest RCA report's rewind target; without one the
// previously failed phase is retried.
func (o *Orchestrator) rewindTarget(state *pipeline.State) pipeline.Phase {
	fallback := state.FailedPhase
	if fallback == "" {
		fallback = pipeline.PhaseIntake
	}

	entry, ok := latestJSONInPhase(state, pipeline.TypeRCAReport, pipeline.PhaseRecoveryLoop)
	if !ok {
		return fallback
	}
	data, err := o.artifacts.ReadArtifact(entry)
	if err != nil {
		o.logger.Warn("rca report unreadable, retrying failed phase", "error", err)
		return fallback
	}
	target := pipeline.Phase(gjson.GetBytes(data, "requires_phase_rewind_to").String())
	if !target.Valid() || target.Terminal() {
		return fallback
	}
	return target
}

// nextOnFail routes a failing gate: to STUCK once the recovery budget is
// spent, otherwise into the recovery loop. A failing recovery loop is
// terminal by definition.
func (o *Orchestrator) nextOnFail(phase pipeline.Phase, state *pipeline.State, merged pipeline.GateResult) pipeline.Phase {
	if phase == pipeline.PhaseRecoveryLoop {
		o.logger.Error("recovery loop failed its own gate", "blockers", merged.Blockers)
		return pipeline.PhaseStuck
	}
	state.FailedPhase = phase
	if state.RecoveryCount >= state.MaxRecoveryIterations {
		o.logger.Error("recovery budget exhausted", "phase", phase, "iterations", state.RecoveryCount)
		return pipeline.PhaseStuck
	}

	state.RecoveryCount++
	o.publisher.Publish(events.New(events.TypeRecoveryStarted, phase,
		fmt.Sprintf("iteration %d of %d", state.RecoveryCount, state.MaxRecoveryIterations)))
	return pipeline.PhaseRecoveryLoop
}

// mergeGateResult merges a fresh evaluation over the stored entry, preserving
// the handler-written consensus scores.
func mergeGateResult(prev, next pipeline.GateResult) pipeline.GateResult {
	if next.Score == nil {
		next.Score = prev.Score
	}
	if next.ConsensusScore == nil {
		next.ConsensusScore = prev.ConsensusScore
	}
	return next
}

// latestJSONInPhase finds the most recent JSON artifact of a type in a phase.
func latestJSONInPhase(state *pipeline.State, t pipeline.ArtifactType, p pipeline.Phase) (pipeline.ArtifactEntry, bool) {
	for i := len(state.Artifacts) - 1; i >= 0; i-- {
		e := state.Artifacts[i]
		if e.Type == t && e.Phase == p && e.ContentType == pipeline.ContentJSON {
			return e, true
		}
	}
	return pipeline.ArtifactEntry{}, false
}
