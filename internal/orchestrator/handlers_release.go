package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/randalmurphal/popeye/internal/checks"
	"github.com/randalmurphal/popeye/internal/packet"
	"github.com/randalmurphal/popeye/internal/pipeline"
	"github.com/randalmurphal/popeye/internal/snapshot"
)

// handleAudit invokes the auditor skill, parses its findings, and stores the
// audit report in both JSON and markdown form. Blocking architectural or
// security findings raise change requests.
func handleAudit(ctx context.Context, pc *PhaseContext) PhaseResult {
	phase := pipeline.PhaseAudit
	var ids []string

	findings := auditFindings(ctx, pc)
	report := packet.BuildAuditReport(pc.State.LatestRepoSnapshot, findings)

	jsonEntry, err := pc.Artifacts.CreateAndStoreJSON(pipeline.TypeAuditReport, report, phase, "")
	if err != nil {
		return failure(phase, err)
	}
	mdEntry, err := pc.Artifacts.CreateAndStoreText(pipeline.TypeAuditReport, report.Markdown(), phase, jsonEntry.GroupID)
	if err != nil {
		return failure(phase, err)
	}
	ids = append(ids, pc.record(jsonEntry, mdEntry)...)

	for _, f := range findings {
		if !f.Blocking || (f.Category != "architecture" && f.Category != "security") {
			continue
		}
		if hasChangeOfType(pc.State, packet.ChangeArchitecture) {
			break
		}
		cr := packet.NewChangeRequest(phase, pipeline.RoleAuditor, packet.ChangeArchitecture,
			f.Description,
			fmt.Sprintf("Blocking %s finding (%s) requires architecture re-review", f.Category, f.Severity),
			packet.ImpactAnalysis{
				AffectedPhases: []pipeline.Phase{pipeline.PhaseConsensusArchitecture},
				RiskLevel:      packet.RiskHigh,
			})
		crIDs, err := storeChangeRequest(pc, cr)
		if err != nil {
			return failure(phase, err)
		}
		ids = append(ids, crIDs...)
	}

	if report.RecoveryRequired {
		return PhaseResult{
			Phase:     phase,
			Success:   false,
			Artifacts: ids,
			Message:   fmt.Sprintf("audit FAIL: risk score %d, blocking P0/P1 findings present", report.SystemRiskScore),
			Err:       fmt.Errorf("audit requires recovery: risk score %d", report.SystemRiskScore),
		}
	}
	return PhaseResult{
		Phase:     phase,
		Success:   true,
		Artifacts: ids,
		Message:   fmt.Sprintf("audit %s: risk score %d, %d findings", report.OverallStatus, report.SystemRiskScore, len(findings)),
	}
}

// auditFindings asks the auditor skill for structured findings. Unparseable
// or absent output yields zero findings; the audit still runs.
func auditFindings(ctx context.Context, pc *PhaseContext) []packet.Finding {
	raw := pc.author(ctx, pipeline.RoleAuditor,
		fmt.Sprintf("Audit the project. Tree: %s. Return ONLY a JSON array of findings, each "+
			`{"severity": "P0".."P3", "category": "...", "description": "...", "blocking": bool}.`,
			treeSummary(pc.State)),
		"[]")

	var findings []packet.Finding
	if err := json.Unmarshal([]byte(raw), &findings); err == nil {
		return findings
	}
	var wrapper struct {
		Findings []packet.Finding `json:"findings"`
	}
	if err := json.Unmarshal([]byte(raw), &wrapper); err == nil {
		return wrapper.Findings
	}
	pc.Logger.Warn("auditor output unparseable, recording zero findings")
	return nil
}

// handleProductionGate runs the full check battery and records the readiness
// verdict. The gate itself blocks on the required checks; the verdict
// document records everything that ran.
func handleProductionGate(ctx context.Context, pc *PhaseContext) PhaseResult {
	phase := pipeline.PhaseProductionGate
	var ids []string

	cmds := pc.State.ResolvedCommands
	if cmds == nil {
		cmds = &snapshot.ResolvedCommands{}
	}

	outcomes := pc.Checks.RunAllChecks(ctx, cmds)

	_, phResult := pc.Checks.RunPlaceholderScan()
	outcomes = append(outcomes, checks.Outcome{Result: phResult})
	outcomes = append(outcomes, checks.Outcome{Result: pc.Checks.RunEnvCheck()})
	outcomes = append(outcomes, checks.Outcome{Result: runStart(ctx, pc, cmds.Start)})

	results, entries, err := checks.StoreResults(pc.Artifacts, phase, outcomes)
	if err != nil {
		return failure(phase, err)
	}
	ids = append(ids, pc.record(entries...)...)
	pc.State.SetChecks(phase, results)

	verdict := readinessVerdict(results)
	entry, err := pc.Artifacts.CreateAndStoreText(pipeline.TypeProductionReadiness, verdict, phase, "")
	if err != nil {
		return failure(phase, err)
	}
	ids = append(ids, pc.record(entry)...)

	return PhaseResult{
		Phase:     phase,
		Success:   true,
		Artifacts: ids,
		Message:   fmt.Sprintf("production checks complete: %d results", len(results)),
	}
}

// runStart executes the start check under the configured timeout. No start
// command means skip.
func runStart(ctx context.Context, pc *PhaseContext, command string) pipeline.GateCheckResult {
	if command == "" {
		return pipeline.GateCheckResult{
			CheckType: pipeline.CheckStart,
			Status:    pipeline.CheckSkip,
			Timestamp: time.Now().UTC(),
		}
	}
	timeout := checks.DefaultStartTimeout
	if pc.Config.Checks.StartTimeoutMS > 0 {
		timeout = time.Duration(pc.Config.Checks.StartTimeoutMS) * time.Millisecond
	}
	return pc.Checks.RunStartCheck(ctx, command, timeout)
}

// readinessVerdict renders the production readiness document.
func readinessVerdict(results []pipeline.GateCheckResult) string {
	var b strings.Builder
	b.WriteString("# Production Readiness\n\n| Check | Status | Exit code |\n|---|---|---|\n")
	failed := 0
	for _, r := range results {
		fmt.Fprintf(&b, "| %s | %s | %d |\n", r.CheckType, r.Status, r.ExitCode)
		if r.Status == pipeline.CheckFail {
			failed++
		}
	}
	if failed == 0 {
		b.WriteString("\n**Verdict:** READY\n")
	} else {
		fmt.Fprintf(&b, "\n**Verdict:** NOT READY (%d failing checks)\n", failed)
	}
	return b.String()
}

// handleRecovery produces the root-cause analysis for the failed phase, in
// both JSON and markdown form, carrying the rewind target.
func handleRecovery(ctx context.Context, pc *PhaseContext) PhaseResult {
	phase := pipeline.PhaseRecoveryLoop

	failed := pc.State.FailedPhase
	if failed == "" {
		return failure(phase, fmt.Errorf("recovery loop entered without a failed phase"))
	}

	rca := packet.BuildRCA(failed, pc.State.GateResults[failed])
	if def, err := pc.Skills.Load(pipeline.RoleDebugger); err == nil && len(def.Constraints) > 0 {
		rca.Prevention = def.Constraints[0]
	}

	jsonEntry, err := pc.Artifacts.CreateAndStoreJSON(pipeline.TypeRCAReport, rca, phase, "")
	if err != nil {
		return failure(phase, err)
	}
	mdEntry, err := pc.Artifacts.CreateAndStoreText(pipeline.TypeRCAReport, rca.Markdown(), phase, jsonEntry.GroupID)
	if err != nil {
		return failure(phase, err)
	}
	ids := pc.record(jsonEntry, mdEntry)

	return PhaseResult{
		Phase:     phase,
		Success:   true,
		Artifacts: ids,
		Message:   fmt.Sprintf("rca complete for %s, rewind to %s", failed, rca.RequiresPhaseRewindTo),
	}
}

// handleDone emits the release artifacts and rewrites the docs index.
func handleDone(ctx context.Context, pc *PhaseContext) PhaseResult {
	phase := pipeline.PhaseDone
	var ids []string

	docs := []struct {
		t        pipeline.ArtifactType
		prompt   string
		fallback string
	}{
		{pipeline.TypeReleaseNotes, "Write the release notes for this delivery.", defaultReleaseNotes(pc.State)},
		{pipeline.TypeDeployment, "Write the deployment runbook for this delivery.", "# Deployment\n\nDeploy using the resolved build and start commands recorded at intake.\n"},
		{pipeline.TypeRollback, "Write the rollback procedure for this delivery.", "# Rollback\n\nRevert to the previous release and re-run the production checks.\n"},
	}
	for _, d := range docs {
		content := pc.author(ctx, pipeline.RoleReleaseManager, d.prompt, d.fallback)
		entry, err := pc.Artifacts.CreateAndStoreText(d.t, content, phase, "")
		if err != nil {
			return failure(phase, err)
		}
		ids = append(ids, pc.record(entry)...)
	}

	if err := pc.Artifacts.UpdateIndex(pc.State.Artifacts); err != nil {
		return failure(phase, err)
	}
	return PhaseResult{
		Phase:     phase,
		Success:   true,
		Artifacts: ids,
		Message:   "release artifacts emitted",
	}
}

func defaultReleaseNotes(state *pipeline.State) string {
	var b strings.Builder
	b.WriteString("# Release Notes\n\n## Delivered Artifacts\n\n")
	for _, t := range []pipeline.ArtifactType{pipeline.TypeMasterPlan, pipeline.TypeArchitecture, pipeline.TypeAuditReport} {
		if e, ok := state.LatestArtifact(t); ok {
			fmt.Fprintf(&b, "- %s (%s)\n", t, e.ID)
		}
	}
	fmt.Fprintf(&b, "\nRecovery iterations: %d\n", state.RecoveryCount)
	return b.String()
}

// handleStuck documents the terminal failure state.
func handleStuck(ctx context.Context, pc *PhaseContext) PhaseResult {
	phase := pipeline.PhaseStuck

	var b strings.Builder
	b.WriteString("# Stuck Report\n\n")
	fmt.Fprintf(&b, "**Failed phase:** %s\n\n**Recovery iterations:** %d of %d\n",
		pc.State.FailedPhase, pc.State.RecoveryCount, pc.State.MaxRecoveryIterations)
	if gr, ok := pc.State.GateResults[pc.State.FailedPhase]; ok && len(gr.Blockers) > 0 {
		b.WriteString("\n## Last Blockers\n\n")
		for _, blocker := range gr.Blockers {
			b.WriteString("- " + blocker + "\n")
		}
	}

	entry, err := pc.Artifacts.CreateAndStoreText(pipeline.TypeStuckReport, b.String(), phase, "")
	if err != nil {
		return failure(phase, err)
	}
	return PhaseResult{
		Phase:     phase,
		Success:   true,
		Artifacts: pc.record(entry),
		Message:   "stuck report emitted",
	}
}
