package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/randalmurphal/popeye/internal/constitution"
	"github.com/randalmurphal/popeye/internal/pipeline"
	"github.com/randalmurphal/popeye/internal/snapshot"
)

// handlers is the closed dispatch table, one handler per phase.
var handlers = map[pipeline.Phase]Handler{
	pipeline.PhaseIntake:                handleIntake,
	pipeline.PhaseConsensusMasterPlan:   handleConsensus,
	pipeline.PhaseArchitecture:          handleArchitecture,
	pipeline.PhaseConsensusArchitecture: handleConsensus,
	pipeline.PhaseRolePlanning:          handleRolePlanning,
	pipeline.PhaseConsensusRolePlans:    handleConsensus,
	pipeline.PhaseImplementation:        handleImplementation,
	pipeline.PhaseQAValidation:          handleQAValidation,
	pipeline.PhaseReview:                handleReview,
	pipeline.PhaseAudit:                 handleAudit,
	pipeline.PhaseProductionGate:        handleProductionGate,
	pipeline.PhaseDone:                  handleDone,
	pipeline.PhaseRecoveryLoop:          handleRecovery,
	pipeline.PhaseStuck:                 handleStuck,
}

// HandlerFor returns the handler for a phase.
func HandlerFor(p pipeline.Phase) (Handler, bool) {
	h, ok := handlers[p]
	return h, ok
}

// handleIntake establishes the governed baseline: the master plan, the hashed
// constitution, the initial repo snapshot, and the resolved command set.
func handleIntake(ctx context.Context, pc *PhaseContext) PhaseResult {
	phase := pipeline.PhaseIntake
	var ids []string

	planInput := "Produce the master plan for this project: goals, scope boundaries, deliverables, and participating roles."
	if pc.State.SessionGuidance != "" {
		planInput = pc.State.SessionGuidance + "\n\n" + planInput
	}
	plan := pc.author(ctx, pipeline.RoleDispatcher, planInput, defaultMasterPlan(pc.State))

	planEntry, err := pc.Artifacts.CreateAndStoreText(pipeline.TypeMasterPlan, plan, phase, "")
	if err != nil {
		return failure(phase, err)
	}
	ids = append(ids, pc.record(planEntry)...)

	constEntry, err := constitution.CreateArtifact(pc.ProjectDir, pc.Artifacts, pc.State)
	if err != nil {
		return failure(phase, err)
	}
	ids = append(ids, pc.record(constEntry)...)

	snap, err := snapshot.Generate(pc.ProjectDir)
	if err != nil {
		return failure(phase, err)
	}
	snapEntry, err := pc.Artifacts.CreateAndStoreJSON(pipeline.TypeRepoSnapshot, snap, phase, "")
	if err != nil {
		return failure(phase, err)
	}
	ids = append(ids, pc.record(snapEntry)...)
	pc.State.LatestRepoSnapshot = snap

	cmds := snapshot.Resolve(snap, snapshot.Overrides(pc.Config.Commands))
	cmdEntry, err := pc.Artifacts.CreateAndStoreJSON(pipeline.TypeResolvedCommands, cmds, phase, "")
	if err != nil {
		return failure(phase, err)
	}
	ids = append(ids, pc.record(cmdEntry)...)
	pc.State.ResolvedCommands = cmds

	return PhaseResult{
		Phase:     phase,
		Success:   true,
		Artifacts: ids,
		Message:   fmt.Sprintf("intake complete: %d languages, package manager %q", len(snap.LanguagesDetected), snap.PackageManager),
	}
}

// handleArchitecture produces the architecture document from the approved
// master plan and the current snapshot.
func handleArchitecture(ctx context.Context, pc *PhaseContext) PhaseResult {
	phase := pipeline.PhaseArchitecture

	planEntry, ok := pc.State.LatestArtifact(pipeline.TypeMasterPlan)
	if !ok {
		return failure(phase, fmt.Errorf("no master plan available"))
	}

	prompt := fmt.Sprintf("Derive the technical architecture from master plan %s. Current tree: %s",
		planEntry.ID, treeSummary(pc.State))
	doc := pc.author(ctx, pipeline.RoleArchitect, prompt, defaultArchitecture(planEntry, pc.State))

	entry, err := pc.Artifacts.CreateAndStoreText(pipeline.TypeArchitecture, doc, phase, "")
	if err != nil {
		return failure(phase, err)
	}
	return PhaseResult{
		Phase:     phase,
		Success:   true,
		Artifacts: pc.record(entry),
		Message:   "architecture document produced",
	}
}

// handleRolePlanning produces one role plan per active role, each carrying
// tasks, dependencies, and acceptance criteria.
func handleRolePlanning(ctx context.Context, pc *PhaseContext) PhaseResult {
	phase := pipeline.PhaseRolePlanning
	var ids []string

	roles := pc.State.ActiveRoles
	if len(roles) == 0 {
		roles = pipeline.AllRoles()
	}

	archEntry, _ := pc.State.LatestArtifact(pipeline.TypeArchitecture)
	for _, role := range roles {
		def, err := pc.Skills.Load(role)
		if err != nil {
			return failure(phase, err)
		}

		prompt := fmt.Sprintf("Produce your role plan against architecture %s: tasks, dependencies on other roles, acceptance criteria.", archEntry.ID)
		doc := pc.author(ctx, role, prompt, defaultRolePlan(role, def.RequiredOutputs, def.DependsOn))

		entry, err := pc.Artifacts.CreateAndStoreText(pipeline.TypeRolePlan, doc, phase, "")
		if err != nil {
			return failure(phase, err)
		}
		ids = append(ids, pc.record(entry)...)
	}

	return PhaseResult{
		Phase:     phase,
		Success:   true,
		Artifacts: ids,
		Message:   fmt.Sprintf("%d role plans produced", len(ids)),
	}
}

func treeSummary(state *pipeline.State) string {
	if state.LatestRepoSnapshot == nil {
		return "no snapshot"
	}
	return state.LatestRepoSnapshot.TreeSummary
}

func defaultMasterPlan(state *pipeline.State) string {
	var b strings.Builder
	b.WriteString("# Master Plan\n\n## Goals\n\nDeliver the project described by the working tree.\n")
	if state.SessionGuidance != "" {
		b.WriteString("\n## Session Guidance\n\n" + state.SessionGuidance + "\n")
	}
	b.WriteString("\n## Participating Roles\n\n")
	roles := state.ActiveRoles
	if len(roles) == 0 {
		roles = pipeline.AllRoles()
	}
	for _, r := range roles {
		b.WriteString("- " + string(r) + "\n")
	}
	return b.String()
}

func defaultArchitecture(plan pipeline.ArtifactEntry, state *pipeline.State) string {
	return fmt.Sprintf("# Architecture\n\nDerived from master plan %s.\n\n## Current Tree\n\n%s\n\n## Components\n\nComponents follow the approved plan; each traces to a stated goal.\n",
		plan.ID, treeSummary(state))
}

func defaultRolePlan(role pipeline.Role, outputs []string, deps []pipeline.Role) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Role Plan: %s\n\n## Tasks\n\n", role)
	for _, out := range outputs {
		fmt.Fprintf(&b, "- Produce %s\n", out)
	}
	if len(deps) > 0 {
		b.WriteString("\n## Dependencies\n\n")
		for _, d := range deps {
			b.WriteString("- " + string(d) + "\n")
		}
	}
	b.WriteString("\n## Acceptance Criteria\n\n- Declared outputs exist and pass their gate checks.\n")
	return b.String()
}
