package consensus

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/popeye/internal/gate"
	"github.com/randalmurphal/popeye/internal/packet"
	"github.com/randalmurphal/popeye/internal/pipeline"
	"github.com/randalmurphal/popeye/internal/provider"
)

func approveVote(id string, confidence float64) ReviewerVote {
	return ReviewerVote{ReviewerID: id, Vote: VoteApprove, Confidence: confidence}
}

func rejectVote(id string, confidence float64) ReviewerVote {
	return ReviewerVote{ReviewerID: id, Vote: VoteReject, Confidence: confidence}
}

var defaultRules = Rules{Threshold: 0.95, Quorum: 2, MinReviewers: 2}

func TestAggregateUnanimousApprove(t *testing.T) {
	result := Aggregate([]ReviewerVote{approveVote("r1", 1.0), approveVote("r2", 1.0)}, defaultRules)

	assert.True(t, result.Approved)
	assert.Equal(t, 1.0, result.Score)
	assert.Equal(t, 1.0, result.WeightedScore)
	assert.Equal(t, 2, result.ParticipatingReviewers)
}

func TestAggregateSplitVote(t *testing.T) {
	result := Aggregate([]ReviewerVote{approveVote("r1", 1.0), rejectVote("r2", 1.0)}, defaultRules)

	assert.False(t, result.Approved)
	assert.Equal(t, 0.5, result.Score)
	assert.Equal(t, 0.5, result.WeightedScore)
}

func TestAggregateConditionalWeights(t *testing.T) {
	votes := []ReviewerVote{
		approveVote("r1", 0.8),
		{ReviewerID: "r2", Vote: VoteConditional, Confidence: 0.4},
	}
	result := Aggregate(votes, defaultRules)

	// (1.0*0.8 + 0.5*0.4) / (0.8 + 0.4)
	assert.InDelta(t, 0.8333, result.WeightedScore, 0.001)
	assert.Equal(t, 0.5, result.Score)
}

func TestAggregateBlockingIssueVeto(t *testing.T) {
	votes := []ReviewerVote{
		approveVote("r1", 1.0),
		{ReviewerID: "r2", Vote: VoteApprove, Confidence: 1.0, BlockingIssues: []string{"secrets committed"}},
	}
	result := Aggregate(votes, defaultRules)

	assert.Equal(t, 0.0, result.WeightedScore)
	// The simple score is untouched by the veto.
	assert.Equal(t, 1.0, result.Score)
	assert.False(t, result.Approved, "a vetoed round is never approved")
}

func TestAggregateQuorum(t *testing.T) {
	result := Aggregate([]ReviewerVote{approveVote("r1", 1.0)}, defaultRules)
	assert.False(t, result.Approved, "a single vote cannot reach a quorum of 2")
	assert.Equal(t, 1.0, result.Score)
}

func TestBuildPacketStatuses(t *testing.T) {
	t.Run("approved", func(t *testing.T) {
		pkt := BuildPacket("p1", "CONSENSUS_MASTER_PLAN",
			[]ReviewerVote{approveVote("r1", 1.0), approveVote("r2", 1.0)}, defaultRules, nil)
		assert.Equal(t, StatusApproved, pkt.FinalStatus)
		assert.Equal(t, 1.0, pkt.Result.WeightedScore)
	})

	t.Run("rejected", func(t *testing.T) {
		pkt := BuildPacket("p1", "CONSENSUS_MASTER_PLAN",
			[]ReviewerVote{approveVote("r1", 1.0), rejectVote("r2", 1.0)}, defaultRules, nil)
		assert.Equal(t, StatusRejected, pkt.FinalStatus)
		assert.Equal(t, 0.5, pkt.Result.Score)
	})

	t.Run("vetoed despite unanimous approval", func(t *testing.T) {
		votes := []ReviewerVote{
			approveVote("r1", 1.0),
			approveVote("r2", 1.0),
			{ReviewerID: "r3", Vote: VoteApprove, Confidence: 1.0, BlockingIssues: []string{"secrets committed"}},
		}
		pkt := BuildPacket("p1", "CONSENSUS_MASTER_PLAN", votes, defaultRules, nil)
		assert.Equal(t, StatusRejected, pkt.FinalStatus)
		assert.False(t, pkt.Result.Approved)
		assert.Equal(t, 1.0, pkt.Result.Score)
		assert.Equal(t, 0.0, pkt.Result.WeightedScore)
	})

	t.Run("arbitrated", func(t *testing.T) {
		arb := &ArbitratorResult{Decision: VoteApprove, Reasoning: "plan risk is acceptable"}
		pkt := BuildPacket("p1", "CONSENSUS_MASTER_PLAN",
			[]ReviewerVote{approveVote("r1", 1.0), rejectVote("r2", 1.0)}, defaultRules, arb)
		assert.Equal(t, StatusArbitrated, pkt.FinalStatus)
		require.NotNil(t, pkt.ArbitratorResult)
	})
}

func TestParseVote(t *testing.T) {
	t.Run("plain json", func(t *testing.T) {
		v, err := ParseVote(`{"vote":"APPROVE","confidence":0.9,"blocking_issues":[],"suggestions":["tighten criteria"]}`)
		require.NoError(t, err)
		assert.Equal(t, VoteApprove, v.Vote)
		assert.Equal(t, 0.9, v.Confidence)
		assert.Empty(t, v.BlockingIssues)
		assert.Equal(t, []string{"tighten criteria"}, v.Suggestions)
	})

	t.Run("json wrapped in prose and fences", func(t *testing.T) {
		raw := "Here is my assessment:\n```json\n{\"vote\": \"reject\", \"confidence\": 0.7, \"blocking_issues\": [\"no rollback plan\"]}\n```\nThanks."
		v, err := ParseVote(raw)
		require.NoError(t, err)
		assert.Equal(t, VoteReject, v.Vote)
		assert.Equal(t, []string{"no rollback plan"}, v.BlockingIssues)
	})

	t.Run("confidence clamped", func(t *testing.T) {
		v, err := ParseVote(`{"vote":"APPROVE","confidence":3.5}`)
		require.NoError(t, err)
		assert.Equal(t, 1.0, v.Confidence)
	})

	t.Run("missing vote", func(t *testing.T) {
		_, err := ParseVote(`{"confidence":0.5}`)
		assert.Error(t, err)
	})

	t.Run("no json", func(t *testing.T) {
		_, err := ParseVote("I approve of this plan.")
		assert.Error(t, err)
	})

	t.Run("unknown vote value", func(t *testing.T) {
		_, err := ParseVote(`{"vote":"MAYBE"}`)
		assert.Error(t, err)
	})
}

func TestPromptCarriesPacketFields(t *testing.T) {
	plan := packet.NewPlan(pipeline.PhaseConsensusArchitecture, pipeline.RoleArchitect).
		AcceptWhen("all services stateless").
		Constrain("no new databases").
		Ask("is the cache layer justified?").
		Build()

	prompt := BuildReviewPrompt(plan)
	assert.Contains(t, prompt, "CONSENSUS_ARCHITECTURE")
	assert.Contains(t, prompt, "ARCHITECT")
	assert.Contains(t, prompt, "all services stateless")
	assert.Contains(t, prompt, "no new databases")
	assert.Contains(t, prompt, "cache layer")
	assert.NotEmpty(t, PromptHash(prompt))
}

func stubProvider(response string, err error) provider.Provider {
	return provider.Func(func(ctx context.Context, req provider.Request) (string, error) {
		return response, err
	})
}

func registryWith(t *testing.T, responses map[string]provider.Provider) *provider.Registry {
	t.Helper()
	reg := provider.NewRegistry()
	for model, p := range responses {
		reg.Register(provider.Key{Provider: "stub", Model: model}, p)
	}
	return reg
}

func twoReviewers() []Reviewer {
	return []Reviewer{
		{ID: "r1", Provider: "stub", Model: "m1"},
		{ID: "r2", Provider: "stub", Model: "m2"},
	}
}

func consensusGate(t *testing.T) gate.Definition {
	t.Helper()
	def, ok := gate.DefinitionFor(pipeline.PhaseConsensusMasterPlan)
	require.True(t, ok)
	return def
}

func TestRunApprovedRound(t *testing.T) {
	reg := registryWith(t, map[string]provider.Provider{
		"m1": stubProvider(`{"vote":"APPROVE","confidence":1.0}`, nil),
		"m2": stubProvider(`{"vote":"APPROVE","confidence":1.0}`, nil),
	})
	r := NewRunner(reg, twoReviewers(), defaultRules)
	plan := packet.NewPlan(pipeline.PhaseConsensusMasterPlan, pipeline.RoleDispatcher).Build()

	pkt, err := r.Run(context.Background(), plan, consensusGate(t))
	require.NoError(t, err)

	assert.Equal(t, StatusApproved, pkt.FinalStatus)
	assert.Equal(t, 1.0, pkt.Result.WeightedScore)
	require.Len(t, pkt.Votes, 2)
	// Reviewer order is stable regardless of completion order.
	assert.Equal(t, "r1", pkt.Votes[0].ReviewerID)
	assert.Equal(t, "r2", pkt.Votes[1].ReviewerID)
	assert.NotEmpty(t, pkt.Votes[0].PromptHash)
	assert.Equal(t, pkt.Votes[0].PromptHash, pkt.Votes[1].PromptHash)
}

func TestRunReviewerFailureBecomesSyntheticReject(t *testing.T) {
	reg := registryWith(t, map[string]provider.Provider{
		"m1": stubProvider(`{"vote":"APPROVE","confidence":1.0}`, nil),
		"m2": stubProvider("", errors.New("model unavailable")),
	})
	r := NewRunner(reg, twoReviewers(), defaultRules)
	plan := packet.NewPlan(pipeline.PhaseConsensusMasterPlan, pipeline.RoleDispatcher).Build()

	pkt, err := r.Run(context.Background(), plan, consensusGate(t))
	require.NoError(t, err)

	assert.Equal(t, StatusRejected, pkt.FinalStatus)
	assert.Equal(t, VoteReject, pkt.Votes[1].Vote)
	require.NotEmpty(t, pkt.Votes[1].BlockingIssues)
	assert.True(t, strings.Contains(pkt.Votes[1].BlockingIssues[0], "r2"))
	// The synthetic reject carries a blocking issue, so the veto applies.
	assert.Equal(t, 0.0, pkt.Result.WeightedScore)
}

func TestRunMalformedVoteBecomesSyntheticReject(t *testing.T) {
	reg := registryWith(t, map[string]provider.Provider{
		"m1": stubProvider(`{"vote":"APPROVE","confidence":1.0}`, nil),
		"m2": stubProvider("sounds good to me!", nil),
	})
	r := NewRunner(reg, twoReviewers(), defaultRules)
	plan := packet.NewPlan(pipeline.PhaseConsensusMasterPlan, pipeline.RoleDispatcher).Build()

	pkt, err := r.Run(context.Background(), plan, consensusGate(t))
	require.NoError(t, err)
	assert.Equal(t, VoteReject, pkt.Votes[1].Vote)
}

func TestRunArbitration(t *testing.T) {
	reg := registryWith(t, map[string]provider.Provider{
		"m1":  stubProvider(`{"vote":"APPROVE","confidence":1.0}`, nil),
		"m2":  stubProvider(`{"vote":"REJECT","confidence":0.6}`, nil),
		"arb": stubProvider(`{"vote":"APPROVE","confidence":0.9,"suggestions":["risk acceptable"]}`, nil),
	})
	r := NewRunner(reg, twoReviewers(), defaultRules,
		WithArbitrator(Arbitrator{Provider: "stub", Model: "arb"}))
	plan := packet.NewPlan(pipeline.PhaseConsensusMasterPlan, pipeline.RoleDispatcher).Build()

	pkt, err := r.Run(context.Background(), plan, consensusGate(t))
	require.NoError(t, err)

	assert.Equal(t, StatusArbitrated, pkt.FinalStatus)
	require.NotNil(t, pkt.ArbitratorResult)
	assert.Equal(t, VoteApprove, pkt.ArbitratorResult.Decision)
	assert.Equal(t, "risk acceptable", pkt.ArbitratorResult.Reasoning)
}

func TestRunVetoedRoundReachesArbitrator(t *testing.T) {
	reg := registryWith(t, map[string]provider.Provider{
		"m1":  stubProvider(`{"vote":"APPROVE","confidence":1.0}`, nil),
		"m2":  stubProvider(`{"vote":"APPROVE","confidence":1.0,"blocking_issues":["secrets committed"]}`, nil),
		"arb": stubProvider(`{"vote":"REJECT","confidence":0.9,"suggestions":["blocking issue stands"]}`, nil),
	})
	r := NewRunner(reg, twoReviewers(), defaultRules,
		WithArbitrator(Arbitrator{Provider: "stub", Model: "arb"}))
	plan := packet.NewPlan(pipeline.PhaseConsensusMasterPlan, pipeline.RoleDispatcher).Build()

	pkt, err := r.Run(context.Background(), plan, consensusGate(t))
	require.NoError(t, err)

	require.NotNil(t, pkt.ArbitratorResult, "unanimous approval with a blocking issue still disputes the round")
	assert.Equal(t, StatusArbitrated, pkt.FinalStatus)
	assert.Equal(t, 1.0, pkt.Result.Score)
	assert.Equal(t, 0.0, pkt.Result.WeightedScore)
}

func TestRunNoReviewers(t *testing.T) {
	r := NewRunner(provider.NewRegistry(), nil, defaultRules)
	plan := packet.NewPlan(pipeline.PhaseConsensusMasterPlan, pipeline.RoleDispatcher).Build()

	_, err := r.Run(context.Background(), plan, consensusGate(t))
	assert.Error(t, err)
}

func TestRunBelowQuorum(t *testing.T) {
	reg := registryWith(t, map[string]provider.Provider{
		"m1": stubProvider(`{"vote":"APPROVE","confidence":1.0}`, nil),
	})
	r := NewRunner(reg, []Reviewer{{ID: "r1", Provider: "stub", Model: "m1"}}, defaultRules)
	plan := packet.NewPlan(pipeline.PhaseConsensusMasterPlan, pipeline.RoleDispatcher).Build()

	_, err := r.Run(context.Background(), plan, consensusGate(t))
	assert.Error(t, err, "fewer reviewers than the gate minimum must refuse to run")
}
