package orchestrator

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/popeye/internal/config"
	"github.com/randalmurphal/popeye/internal/consensus"
	"github.com/randalmurphal/popeye/internal/constitution"
	"github.com/randalmurphal/popeye/internal/pipeline"
	"github.com/randalmurphal/popeye/internal/provider"
)

const approveVote = `{"vote":"APPROVE","confidence":1.0,"blocking_issues":[],"suggestions":[]}`
const rejectVote = `{"vote":"REJECT","confidence":1.0,"blocking_issues":["plan is unacceptable"],"suggestions":[]}`

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testRegistry(vote string) *provider.Registry {
	reg := provider.NewRegistry()
	reg.Register(provider.Key{Provider: "test", Model: "reviewer"},
		provider.Func(func(ctx context.Context, req provider.Request) (string, error) {
			return vote, nil
		}))
	return reg
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Reviewers = []consensus.Reviewer{
		{ID: "r1", Provider: "test", Model: "reviewer"},
		{ID: "r2", Provider: "test", Model: "reviewer"},
	}
	cfg.Commands = map[string]string{
		"build":     "true",
		"test":      "true",
		"lint":      "true",
		"typecheck": "true",
	}
	cfg.ActiveRoles = []string{"DISPATCHER", "ARCHITECT", "BACKEND_PROGRAMMER", "QA_TESTER"}
	return cfg
}

func TestRunHappyPath(t *testing.T) {
	dir := t.TempDir()
	orch := New(dir, testConfig(), testRegistry(approveVote), WithLogger(quietLogger()))

	res, err := orch.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, pipeline.PhaseDone, res.FinalPhase)
	assert.Equal(t, 0, res.RecoveryIterations)
	assert.NoError(t, res.Err)

	types := artifactTypes(res.Artifacts)
	for _, want := range []pipeline.ArtifactType{
		pipeline.TypeMasterPlan, pipeline.TypeConstitution, pipeline.TypeRepoSnapshot,
		pipeline.TypeArchitecture, pipeline.TypeRolePlan, pipeline.TypeConsensus,
		pipeline.TypeQAValidation, pipeline.TypeReviewDecision, pipeline.TypeAuditReport,
		pipeline.TypeProductionReadiness, pipeline.TypeReleaseNotes,
		pipeline.TypeDeployment, pipeline.TypeRollback,
	} {
		assert.True(t, types[want], "missing artifact type %s", want)
	}

	// State persisted at DONE.
	state, err := pipeline.LoadState(dir)
	require.NoError(t, err)
	assert.Equal(t, pipeline.PhaseDone, state.PipelinePhase)
}

func TestRunOneShotRecovery(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig()
	// Fails once, then passes on every later run.
	cfg.Commands["test"] = "test -f qa_ok || { touch qa_ok; exit 1; }"

	orch := New(dir, cfg, testRegistry(approveVote), WithLogger(quietLogger()))
	res, err := orch.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, pipeline.PhaseDone, res.FinalPhase)
	assert.Equal(t, 1, res.RecoveryIterations)
	assert.True(t, artifactTypes(res.Artifacts)[pipeline.TypeRCAReport])
}

func TestRunStuckAfterBudget(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig()
	cfg.Commands["test"] = "false"
	cfg.Recovery.MaxIterations = 2

	orch := New(dir, cfg, testRegistry(approveVote), WithLogger(quietLogger()))
	res, err := orch.Run(context.Background())
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.Equal(t, pipeline.PhaseStuck, res.FinalPhase)
	assert.Equal(t, 2, res.RecoveryIterations)
	assert.Error(t, res.Err)
	assert.True(t, artifactTypes(res.Artifacts)[pipeline.TypeStuckReport])
}

func TestRunConsensusRejectionExhaustsBudget(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig()
	cfg.Recovery.MaxIterations = 1

	orch := New(dir, cfg, testRegistry(rejectVote), WithLogger(quietLogger()))
	res, err := orch.Run(context.Background())
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.Equal(t, pipeline.PhaseStuck, res.FinalPhase)

	state, err := pipeline.LoadState(dir)
	require.NoError(t, err)
	gr := state.GateResults[pipeline.PhaseConsensusMasterPlan]
	require.NotNil(t, gr.Score)
	assert.Equal(t, 0.0, *gr.Score)
}

func TestRunConfigDriftRaisesChangeRequest(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig()

	// The executor introduces a new config file, so REVIEW sees config drift.
	executor := ExecutorFunc(func(ctx context.Context, projectDir, systemPrompt string) error {
		return os.WriteFile(filepath.Join(projectDir, "package.json"), []byte(`{"name":"demo"}`), 0644)
	})

	orch := New(dir, cfg, testRegistry(approveVote),
		WithLogger(quietLogger()), WithExecutor(executor))
	res, err := orch.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, pipeline.PhaseDone, res.FinalPhase)
	assert.True(t, artifactTypes(res.Artifacts)[pipeline.TypeChangeRequest])

	state, err := pipeline.LoadState(dir)
	require.NoError(t, err)
	require.Len(t, state.PendingChangeRequests, 1)
	cr := state.PendingChangeRequests[0]
	assert.Equal(t, "config", cr.ChangeType)
	assert.Equal(t, pipeline.PhaseQAValidation, cr.TargetPhase)
	assert.Equal(t, pipeline.CRApproved, cr.Status)
}

func TestRunReviewBaselineFollowsApprovedPlans(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig()

	// A large file lands during planning, before implementation starts. It is
	// part of the scope the role plans were approved against, so REVIEW must
	// not count it as implementation drift.
	var plant sync.Once
	reg := provider.NewRegistry()
	reg.Register(provider.Key{Provider: "test", Model: "reviewer"},
		provider.Func(func(ctx context.Context, req provider.Request) (string, error) {
			var plantErr error
			plant.Do(func() {
				lines := strings.Repeat("console.log('x')\n", 1500)
				plantErr = os.WriteFile(filepath.Join(dir, "main.js"), []byte(lines), 0644)
			})
			return approveVote, plantErr
		}))

	orch := New(dir, cfg, reg, WithLogger(quietLogger()))
	res, err := orch.Run(context.Background())
	require.NoError(t, err)

	require.True(t, res.Success)
	assert.False(t, artifactTypes(res.Artifacts)[pipeline.TypeChangeRequest])

	state, err := pipeline.LoadState(dir)
	require.NoError(t, err)
	_, ok := state.LatestArtifactInPhase(pipeline.TypeRepoSnapshot, pipeline.PhaseConsensusRolePlans)
	assert.True(t, ok, "role-plan consensus must freeze the review baseline")
}

func TestRunConstitutionTamperBlocksEveryGate(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig()
	cfg.Recovery.MaxIterations = 1

	// Tampering happens mid-run, after the intake hash was recorded.
	executor := ExecutorFunc(func(ctx context.Context, projectDir, systemPrompt string) error {
		path := constitution.Path(projectDir)
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return os.WriteFile(path, append(data, []byte("\ntampered\n")...), 0644)
	})

	orch := New(dir, cfg, testRegistry(approveVote),
		WithLogger(quietLogger()), WithExecutor(executor))
	res, err := orch.Run(context.Background())
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.Equal(t, pipeline.PhaseStuck, res.FinalPhase)

	state, err := pipeline.LoadState(dir)
	require.NoError(t, err)
	gr := state.GateResults[pipeline.PhaseImplementation]
	require.NotEmpty(t, gr.Blockers)
	assert.True(t, blockersContain(gr.Blockers, "modified"))
}

func TestRunResumesFromPersistedState(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig()

	orch := New(dir, cfg, testRegistry(approveVote), WithLogger(quietLogger()))
	res, err := orch.Run(context.Background())
	require.NoError(t, err)
	require.True(t, res.Success)

	// A second run starts at the terminal phase and returns immediately.
	res2, err := orch.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, pipeline.PhaseDone, res2.FinalPhase)
}

func blockersContain(blockers []string, substr string) bool {
	for _, b := range blockers {
		if strings.Contains(b, substr) {
			return true
		}
	}
	return false
}

func artifactTypes(entries []pipeline.ArtifactEntry) map[pipeline.ArtifactType]bool {
	out := make(map[pipeline.ArtifactType]bool)
	for _, e := range entries {
		out[e.Type] = true
	}
	return out
}
