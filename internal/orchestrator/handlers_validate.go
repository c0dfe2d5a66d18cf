package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/randalmurphal/popeye/internal/checks"
	"github.com/randalmurphal/popeye/internal/events"
	"github.com/randalmurphal/popeye/internal/packet"
	"github.com/randalmurphal/popeye/internal/pipeline"
	"github.com/randalmurphal/popeye/internal/snapshot"
)

// reviewLineDeltaLimit is the line-count drift beyond which REVIEW raises a
// scope change request.
const reviewLineDeltaLimit = 1000

// implementationRoles are the roles whose constraints feed the executor.
var implementationRoles = map[pipeline.Role]bool{
	pipeline.RoleBackendProgrammer:  true,
	pipeline.RoleFrontendProgrammer: true,
	pipeline.RoleWebsiteProgrammer:  true,
	pipeline.RoleDBExpert:           true,
}

// handleImplementation hands the project tree to the external executor with
// the active implementation roles' constraints injected, runs the build
// check, and records a post-implementation snapshot.
func handleImplementation(ctx context.Context, pc *PhaseContext) PhaseResult {
	phase := pipeline.PhaseImplementation
	var ids []string

	if pc.Executor != nil {
		prompt, err := implementationPrompt(pc)
		if err != nil {
			return failure(phase, err)
		}
		if err := pc.Executor.Execute(ctx, pc.ProjectDir, prompt); err != nil {
			return failure(phase, fmt.Errorf("executor: %w", err))
		}
	}

	buildCmd := ""
	if pc.State.ResolvedCommands != nil {
		buildCmd = pc.State.ResolvedCommands.Build
	}
	outcome := pc.Checks.RunCheck(ctx, pipeline.CheckBuild, buildCmd)
	results, entries, err := checks.StoreResults(pc.Artifacts, phase, []checks.Outcome{outcome})
	if err != nil {
		return failure(phase, err)
	}
	ids = append(ids, pc.record(entries...)...)
	pc.State.SetChecks(phase, results)

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

	return PhaseResult{
		Phase:     phase,
		Success:   true,
		Artifacts: ids,
		Message:   fmt.Sprintf("implementation complete, build %s", results[0].Status),
	}
}

// implementationPrompt composes the executor system prompt from the active
// implementation roles' skills and constraints.
func implementationPrompt(pc *PhaseContext) (string, error) {
	roles := pc.State.ActiveRoles
	if len(roles) == 0 {
		roles = pipeline.AllRoles()
	}

	var b strings.Builder
	for _, role := range roles {
		if !implementationRoles[role] {
			continue
		}
		def, err := pc.Skills.Load(role)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "## %s\n\n%s\n", role, def.SystemPrompt)
		for _, c := range def.Constraints {
			b.WriteString("- " + c + "\n")
		}
		b.WriteString("\n")
	}
	return b.String(), nil
}

// handleQAValidation runs the test check and stores the validation summary.
func handleQAValidation(ctx context.Context, pc *PhaseContext) PhaseResult {
	phase := pipeline.PhaseQAValidation
	var ids []string

	testCmd := ""
	if pc.State.ResolvedCommands != nil {
		testCmd = pc.State.ResolvedCommands.Test
	}
	outcome := pc.Checks.RunCheck(ctx, pipeline.CheckTest, testCmd)
	results, entries, err := checks.StoreResults(pc.Artifacts, phase, []checks.Outcome{outcome})
	if err != nil {
		return failure(phase, err)
	}
	ids = append(ids, pc.record(entries...)...)
	pc.State.SetChecks(phase, results)

	summary := fmt.Sprintf("# QA Validation\n\n| Check | Status | Exit code |\n|---|---|---|\n| test | %s | %d |\n",
		results[0].Status, results[0].ExitCode)
	if results[0].StderrSummary != "" {
		summary += "\n## Stderr\n\n```\n" + results[0].StderrSummary + "\n```\n"
	}
	entry, err := pc.Artifacts.CreateAndStoreText(pipeline.TypeQAValidation, summary, phase, "")
	if err != nil {
		return failure(phase, err)
	}
	ids = append(ids, pc.record(entry)...)

	return PhaseResult{
		Phase:     phase,
		Success:   true,
		Artifacts: ids,
		Message:   fmt.Sprintf("qa validation complete, test %s", results[0].Status),
	}
}

// handleReview diffs the current snapshot against the pre-implementation
// baseline. Config
// drift raises a config change request; a large line delta raises a scope
// change request. The decision itself is recorded either way.
func handleReview(ctx context.Context, pc *PhaseContext) PhaseResult {
	phase := pipeline.PhaseReview
	var ids []string

	baseline, err := baselineSnapshot(pc)
	if err != nil {
		return failure(phase, err)
	}
	current := pc.State.LatestRepoSnapshot
	if current == nil {
		return failure(phase, fmt.Errorf("no current repo snapshot"))
	}

	var notes []string
	if configsChanged(baseline, current) && !hasChangeOfType(pc.State, packet.ChangeConfig) {
		cr := packet.NewChangeRequest(phase, pipeline.RoleReviewer, packet.ChangeConfig,
			"Configuration files changed during implementation",
			"Config drift invalidates the validated command set and must be re-checked",
			packet.ImpactAnalysis{
				AffectedPhases: []pipeline.Phase{pipeline.PhaseQAValidation},
				RiskLevel:      packet.RiskMedium,
			})
		crIDs, err := storeChangeRequest(pc, cr)
		if err != nil {
			return failure(phase, err)
		}
		ids = append(ids, crIDs...)
		notes = append(notes, fmt.Sprintf("config drift detected; change request %s raised", cr.CRID))
	}

	delta := current.TotalLines - baseline.TotalLines
	if delta < 0 {
		delta = -delta
	}
	if delta > reviewLineDeltaLimit && !hasChangeOfType(pc.State, packet.ChangeScope) {
		cr := packet.NewChangeRequest(phase, pipeline.RoleReviewer, packet.ChangeScope,
			fmt.Sprintf("Implementation changed %d lines, beyond the reviewed scope", delta),
			"Large drift from the approved plan requires a fresh master plan review",
			packet.ImpactAnalysis{
				AffectedPhases: []pipeline.Phase{pipeline.PhaseConsensusMasterPlan},
				RiskLevel:      packet.RiskHigh,
			})
		crIDs, err := storeChangeRequest(pc, cr)
		if err != nil {
			return failure(phase, err)
		}
		ids = append(ids, crIDs...)
		notes = append(notes, fmt.Sprintf("line delta %d exceeds %d; change request %s raised", delta, reviewLineDeltaLimit, cr.CRID))
	}

	if len(notes) == 0 {
		notes = append(notes, "no drift beyond tolerance; proceeding to audit")
	}
	decision := "# Review Decision\n\n"
	for _, n := range notes {
		decision += "- " + n + "\n"
	}
	entry, err := pc.Artifacts.CreateAndStoreText(pipeline.TypeReviewDecision, decision, phase, "")
	if err != nil {
		return failure(phase, err)
	}
	ids = append(ids, pc.record(entry)...)

	return PhaseResult{
		Phase:     phase,
		Success:   true,
		Artifacts: ids,
		Message:   strings.Join(notes, "; "),
	}
}

// baselineSnapshot reads the snapshot frozen when the role plans were
// approved, falling back to the intake snapshot for states persisted before
// role-plan consensus captured one.
func baselineSnapshot(pc *PhaseContext) (*snapshot.RepoSnapshot, error) {
	entry, ok := pc.State.LatestArtifactInPhase(pipeline.TypeRepoSnapshot, pipeline.PhaseConsensusRolePlans)
	if !ok {
		entry, ok = pc.State.LatestArtifactInPhase(pipeline.TypeRepoSnapshot, pipeline.PhaseIntake)
	}
	if !ok {
		return nil, fmt.Errorf("no baseline repo snapshot")
	}
	data, err := pc.Artifacts.ReadArtifact(entry)
	if err != nil {
		return nil, err
	}
	var snap snapshot.RepoSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse baseline snapshot: %w", err)
	}
	return &snap, nil
}

// hasChangeOfType reports whether a change request of this type was already
// raised during the run. Review runs again after CR routing; the same drift
// must not spawn a second request.
func hasChangeOfType(state *pipeline.State, ct packet.ChangeType) bool {
	for _, cr := range state.PendingChangeRequests {
		if cr.ChangeType == string(ct) {
			return true
		}
	}
	return false
}

// configsChanged compares the config file sets of two snapshots.
func configsChanged(a, b *snapshot.RepoSnapshot) bool {
	if len(a.ConfigFiles) != len(b.ConfigFiles) {
		return true
	}
	seen := make(map[string]bool, len(a.ConfigFiles))
	for _, f := range a.ConfigFiles {
		seen[f] = true
	}
	for _, f := range b.ConfigFiles {
		if !seen[f] {
			return true
		}
	}
	return false
}

// storeChangeRequest persists a change request as a markdown artifact and
// pushes its compact record onto the pending list.
func storeChangeRequest(pc *PhaseContext, cr packet.ChangeRequest) ([]string, error) {
	entry, err := pc.Artifacts.CreateAndStoreText(pipeline.TypeChangeRequest, cr.Markdown(), cr.OriginPhase, "")
	if err != nil {
		return nil, err
	}
	ids := pc.record(entry)
	pc.State.PendingChangeRequests = append(pc.State.PendingChangeRequests, cr.ToPending())
	pc.Events.Publish(events.New(events.TypeChangeRequest, cr.OriginPhase, string(cr.ChangeType)))
	return ids, nil
}
