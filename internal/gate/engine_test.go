package gate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/popeye/internal/pipeline"
)

func entry(t pipeline.ArtifactType, phase pipeline.Phase) pipeline.ArtifactEntry {
	return pipeline.ArtifactEntry{
		ID:        "id-" + string(t) + "-" + string(phase),
		Type:      t,
		Phase:     phase,
		Version:   1,
		Timestamp: time.Now().UTC(),
	}
}

func passingCheck(ct pipeline.CheckType) pipeline.GateCheckResult {
	return pipeline.GateCheckResult{CheckType: ct, Status: pipeline.CheckPass}
}

func TestIntakeGatePasses(t *testing.T) {
	e := NewEngine()
	s := pipeline.NewState()
	s.RecordArtifacts(
		entry(pipeline.TypeMasterPlan, pipeline.PhaseIntake),
		entry(pipeline.TypeRepoSnapshot, pipeline.PhaseIntake),
		entry(pipeline.TypeConstitution, pipeline.PhaseIntake),
	)

	result := e.Evaluate(pipeline.PhaseIntake, s, OKContext())
	assert.True(t, result.Pass)
	assert.Empty(t, result.Blockers)
}

func TestIntakeGateBlocksOnMissingArtifacts(t *testing.T) {
	e := NewEngine()
	s := pipeline.NewState()
	s.RecordArtifacts(entry(pipeline.TypeMasterPlan, pipeline.PhaseIntake))

	result := e.Evaluate(pipeline.PhaseIntake, s, OKContext())
	assert.False(t, result.Pass)
	assert.Contains(t, result.MissingArtifacts, "repo_snapshot")
	assert.Contains(t, result.MissingArtifacts, "constitution")
}

func TestArtifactPhaseMustMatch(t *testing.T) {
	e := NewEngine()
	s := pipeline.NewState()
	// Right type, wrong phase: does not satisfy the gate.
	s.RecordArtifacts(entry(pipeline.TypeMasterPlan, pipeline.PhaseArchitecture))

	result := e.Evaluate(pipeline.PhaseIntake, s, OKContext())
	assert.False(t, result.Pass)
	assert.Contains(t, result.MissingArtifacts, "master_plan")
}

func TestConstitutionDriftBlocksEveryGate(t *testing.T) {
	e := NewEngine()
	s := pipeline.NewState()
	s.RecordArtifacts(
		entry(pipeline.TypeMasterPlan, pipeline.PhaseIntake),
		entry(pipeline.TypeRepoSnapshot, pipeline.PhaseIntake),
		entry(pipeline.TypeConstitution, pipeline.PhaseIntake),
	)

	ec := EvalContext{ConstitutionValid: false, ConstitutionReason: "constitution modified since intake"}
	result := e.Evaluate(pipeline.PhaseIntake, s, ec)
	assert.False(t, result.Pass)
	require.Len(t, result.Blockers, 1)
	assert.Contains(t, result.Blockers[0], "modified")
}

func TestConsensusGate(t *testing.T) {
	e := NewEngine()
	phase := pipeline.PhaseConsensusMasterPlan

	t.Run("missing consensus artifact blocks", func(t *testing.T) {
		s := pipeline.NewState()
		result := e.Evaluate(phase, s, OKContext())
		assert.False(t, result.Pass)
		assert.Contains(t, result.MissingArtifacts, "consensus")
	})

	t.Run("no recorded score blocks", func(t *testing.T) {
		s := pipeline.NewState()
		s.RecordArtifacts(entry(pipeline.TypeConsensus, phase))
		result := e.Evaluate(phase, s, OKContext())
		assert.False(t, result.Pass)
	})

	t.Run("score below threshold blocks", func(t *testing.T) {
		s := pipeline.NewState()
		s.RecordArtifacts(entry(pipeline.TypeConsensus, phase))
		score := 0.5
		s.GateResults[phase] = pipeline.GateResult{Phase: phase, Score: &score}
		result := e.Evaluate(phase, s, OKContext())
		assert.False(t, result.Pass)
		require.Len(t, result.Blockers, 1)
		assert.Contains(t, result.Blockers[0], "below threshold")
	})

	t.Run("score at threshold passes and is preserved", func(t *testing.T) {
		s := pipeline.NewState()
		s.RecordArtifacts(entry(pipeline.TypeConsensus, phase))
		weighted, simple := 1.0, 1.0
		s.GateResults[phase] = pipeline.GateResult{Phase: phase, Score: &weighted, ConsensusScore: &simple}
		result := e.Evaluate(phase, s, OKContext())
		assert.True(t, result.Pass)
		require.NotNil(t, result.Score)
		assert.Equal(t, 1.0, *result.Score)
		require.NotNil(t, result.ConsensusScore)
	})
}

func TestCheckRequirements(t *testing.T) {
	e := NewEngine()
	s := pipeline.NewState()
	s.RecordArtifacts(
		entry(pipeline.TypeQAValidation, pipeline.PhaseQAValidation),
	)

	result := e.Evaluate(pipeline.PhaseQAValidation, s, OKContext())
	assert.False(t, result.Pass)
	assert.Contains(t, result.FailedChecks, "test")

	s.SetChecks(pipeline.PhaseQAValidation, []pipeline.GateCheckResult{
		{CheckType: pipeline.CheckTest, Status: pipeline.CheckFail, ExitCode: 1},
	})
	result = e.Evaluate(pipeline.PhaseQAValidation, s, OKContext())
	assert.False(t, result.Pass)
	assert.Contains(t, result.Blockers[0], "exit code 1")

	s.SetChecks(pipeline.PhaseQAValidation, []pipeline.GateCheckResult{passingCheck(pipeline.CheckTest)})
	result = e.Evaluate(pipeline.PhaseQAValidation, s, OKContext())
	assert.True(t, result.Pass)
}

func TestSkippedCheckBlocks(t *testing.T) {
	e := NewEngine()
	s := pipeline.NewState()
	s.RecordArtifacts(entry(pipeline.TypeQAValidation, pipeline.PhaseQAValidation))
	s.SetChecks(pipeline.PhaseQAValidation, []pipeline.GateCheckResult{
		{CheckType: pipeline.CheckTest, Status: pipeline.CheckSkip},
	})

	result := e.Evaluate(pipeline.PhaseQAValidation, s, OKContext())
	assert.False(t, result.Pass)
}

func TestImplementationGatePassesWithoutBuildCommand(t *testing.T) {
	e := NewEngine()
	s := pipeline.NewState()
	s.SetChecks(pipeline.PhaseImplementation, []pipeline.GateCheckResult{
		{CheckType: pipeline.CheckBuild, Status: pipeline.CheckSkip},
	})

	result := e.Evaluate(pipeline.PhaseImplementation, s, OKContext())
	assert.True(t, result.Pass, "a project with no resolvable build command must still reach QA")
}

func TestProductionGateRequiresAuditReportAnywhere(t *testing.T) {
	e := NewEngine()
	s := pipeline.NewState()
	s.RecordArtifacts(entry(pipeline.TypeProductionReadiness, pipeline.PhaseProductionGate))
	s.SetChecks(pipeline.PhaseProductionGate, []pipeline.GateCheckResult{
		passingCheck(pipeline.CheckBuild),
		passingCheck(pipeline.CheckTest),
		passingCheck(pipeline.CheckLint),
		passingCheck(pipeline.CheckTypecheck),
	})

	result := e.Evaluate(pipeline.PhaseProductionGate, s, OKContext())
	assert.False(t, result.Pass)
	assert.Contains(t, result.MissingArtifacts, "audit_report")

	// An audit report from any earlier phase satisfies the requirement.
	s.RecordArtifacts(entry(pipeline.TypeAuditReport, pipeline.PhaseAudit))
	result = e.Evaluate(pipeline.PhaseProductionGate, s, OKContext())
	assert.True(t, result.Pass)
}

func TestNextPhase(t *testing.T) {
	e := NewEngine()

	next, ok := e.NextPhase(pipeline.PhaseIntake)
	require.True(t, ok)
	assert.Equal(t, pipeline.PhaseConsensusMasterPlan, next)

	next, ok = e.NextPhase(pipeline.PhaseProductionGate)
	require.True(t, ok)
	assert.Equal(t, pipeline.PhaseDone, next)

	_, ok = e.NextPhase(pipeline.PhaseDone)
	assert.False(t, ok)

	_, ok = e.NextPhase(pipeline.PhaseRecoveryLoop)
	assert.False(t, ok)
}

func TestCanTransition(t *testing.T) {
	e := NewEngine()
	s := pipeline.NewState()
	s.RecordArtifacts(
		entry(pipeline.TypeMasterPlan, pipeline.PhaseIntake),
		entry(pipeline.TypeRepoSnapshot, pipeline.PhaseIntake),
		entry(pipeline.TypeConstitution, pipeline.PhaseIntake),
	)

	assert.True(t, e.CanTransition(pipeline.PhaseIntake, pipeline.PhaseConsensusMasterPlan, s, OKContext()))
	// Not in the allowed list.
	assert.False(t, e.CanTransition(pipeline.PhaseIntake, pipeline.PhaseImplementation, s, OKContext()))
	// Allowed target, but the gate fails.
	empty := pipeline.NewState()
	assert.False(t, e.CanTransition(pipeline.PhaseIntake, pipeline.PhaseConsensusMasterPlan, empty, OKContext()))
}

func TestRecoveryLoopAllowsAllNonTerminalTargets(t *testing.T) {
	def, ok := DefinitionFor(pipeline.PhaseRecoveryLoop)
	require.True(t, ok)

	targets := make(map[pipeline.Phase]bool)
	for _, p := range def.AllowedTransitions {
		targets[p] = true
	}
	for _, p := range pipeline.AllPhases() {
		if p.Terminal() {
			assert.False(t, targets[p], "terminal phase %s must not be a recovery target", p)
			continue
		}
		assert.True(t, targets[p], "non-terminal phase %s must be a recovery target", p)
	}
}

func TestEveryPhaseHasDefinition(t *testing.T) {
	for _, p := range pipeline.AllPhases() {
		_, ok := DefinitionFor(p)
		assert.True(t, ok, "phase %s has no gate definition", p)
	}
}
