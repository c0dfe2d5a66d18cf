// Package orchestrator drives the pipeline: it dispatches phase handlers,
// verifies the constitution, evaluates gates, routes failures through the
// recovery loop, and honors approved change requests after review and audit.
package orchestrator

import (
	"context"
	"log/slog"

	"github.com/randalmurphal/popeye/internal/artifact"
	"github.com/randalmurphal/popeye/internal/checks"
	"github.com/randalmurphal/popeye/internal/config"
	"github.com/randalmurphal/popeye/internal/consensus"
	"github.com/randalmurphal/popeye/internal/events"
	"github.com/randalmurphal/popeye/internal/gate"
	"github.com/randalmurphal/popeye/internal/pipeline"
	"github.com/randalmurphal/popeye/internal/provider"
	"github.com/randalmurphal/popeye/internal/skills"
)

// Executor performs implementation work against the project tree. It is an
// external collaborator; the IMPLEMENTATION handler injects the active roles'
// constraints through the system prompt.
type Executor interface {
	Execute(ctx context.Context, projectDir, systemPrompt string) error
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, projectDir, systemPrompt string) error

// Execute implements Executor.
func (f ExecutorFunc) Execute(ctx context.Context, projectDir, systemPrompt string) error {
	return f(ctx, projectDir, systemPrompt)
}

// PhaseContext is the environment a phase handler runs in. Handlers mutate
// State sequentially; the orchestrator persists it after every transition.
type PhaseContext struct {
	ProjectDir string
	State      *pipeline.State
	Config     *config.Config

	Skills    *skills.Loader
	Artifacts *artifact.Manager
	Gates     *gate.Engine
	Consensus *consensus.Runner
	Checks    *checks.Runner

	// Author is the optional reasoning provider used by authoring roles.
	// Without one, handlers fall back to deterministic template documents.
	Author   provider.Provider
	Executor Executor

	Events events.Publisher
	Logger *slog.Logger
}

// PhaseResult is what a handler reports back to the main loop.
type PhaseResult struct {
	Phase     pipeline.Phase
	Success   bool
	Artifacts []string
	Message   string
	Err       error
}

// Handler runs one phase to completion.
type Handler func(ctx context.Context, pc *PhaseContext) PhaseResult

// record appends entries to the pipeline state and announces them. Every
// handler calls this for every artifact it creates before returning.
func (pc *PhaseContext) record(entries ...pipeline.ArtifactEntry) []string {
	pc.State.RecordArtifacts(entries...)
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
		ev := events.New(events.TypeArtifactStored, e.Phase, string(e.Type))
		ev.Artifact = e.ID
		pc.Events.Publish(ev)
	}
	return ids
}

// author produces a document through the authoring provider under a role's
// skill. The fallback document is used when no provider is configured or the
// call fails; authoring is best-effort, governance is not.
func (pc *PhaseContext) author(ctx context.Context, role pipeline.Role, prompt, fallback string) string {
	if pc.Author == nil {
		return fallback
	}
	def, err := pc.Skills.Load(role)
	if err != nil {
		pc.Logger.Warn("skill unavailable, using fallback document", "role", role, "error", err)
		return fallback
	}
	out, err := pc.Author.Complete(ctx, provider.Request{
		Prompt:       prompt,
		SystemPrompt: def.SystemPrompt,
	})
	if err != nil || out == "" {
		pc.Logger.Warn("authoring call failed, using fallback document", "role", role, "error", err)
		return fallback
	}
	return out
}

// failure builds a failed result for a phase.
func failure(phase pipeline.Phase, err error) PhaseResult {
	return PhaseResult{Phase: phase, Success: false, Err: err}
}
