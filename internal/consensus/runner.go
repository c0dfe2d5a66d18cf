package consensus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	pipelineerrors "github.com/randalmurphal/popeye/internal/errors"
	"github.com/randalmurphal/popeye/internal/gate"
	"github.com/randalmurphal/popeye/internal/packet"
	"github.com/randalmurphal/popeye/internal/provider"
)

// DefaultReviewerTimeout bounds a single reviewer call.
const DefaultReviewerTimeout = 3 * time.Minute

// Runner fans a plan packet out to independent reviewers and aggregates
// their votes into a consensus packet.
type Runner struct {
	registry   *provider.Registry
	reviewers  []Reviewer
	arbitrator *Arbitrator
	rules      Rules
	timeout    time.Duration
	logger     *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithArbitrator configures the optional arbitration provider.
func WithArbitrator(a Arbitrator) Option {
	return func(r *Runner) {
		r.arbitrator = &a
	}
}

// WithReviewerTimeout overrides the per-reviewer timeout.
func WithReviewerTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = l
	}
}

// NewRunner creates a consensus runner.
func NewRunner(registry *provider.Registry, reviewers []Reviewer, rules Rules, opts ...Option) *Runner {
	r := &Runner{
		registry:  registry,
		reviewers: reviewers,
		rules:     rules,
		timeout:   DefaultReviewerTimeout,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes a structured consensus round over a plan packet. The gate
// definition supplies the quorum floor; reviewer failures become synthetic
// REJECT votes, never errors. Arbitration runs when the round does not
// approve and an arbitrator is configured.
func (r *Runner) Run(ctx context.Context, plan packet.PlanPacket, def gate.Definition) (Packet, error) {
	rules := r.rules
	if def.MinReviewers > rules.MinReviewers {
		rules.MinReviewers = def.MinReviewers
	}
	if rules.Quorum < rules.MinReviewers {
		rules.Quorum = rules.MinReviewers
	}
	if def.ConsensusThreshold > 0 && rules.Threshold == 0 {
		rules.Threshold = def.ConsensusThreshold
	}

	if len(r.reviewers) == 0 {
		return Packet{}, pipelineerrors.ErrNoReviewers()
	}
	if len(r.reviewers) < rules.MinReviewers {
		return Packet{}, fmt.Errorf("consensus needs at least %d reviewers, have %d",
			rules.MinReviewers, len(r.reviewers))
	}

	prompt := BuildReviewPrompt(plan)
	hash := PromptHash(prompt)

	votes := make([]ReviewerVote, len(r.reviewers))
	g, gctx := errgroup.WithContext(ctx)
	for i, rev := range r.reviewers {
		g.Go(func() error {
			votes[i] = r.collectVote(gctx, rev, prompt, hash)
			return nil
		})
	}
	_ = g.Wait()

	var arb *ArbitratorResult
	if result := Aggregate(votes, rules); !result.Approved && r.arbitrator != nil {
		arb = r.arbitrate(ctx, plan, votes)
	}

	pkt := BuildPacket(plan.PacketID, string(plan.Phase), votes, rules, arb)
	r.logger.Info("consensus round completed",
		"phase", plan.Phase,
		"votes", len(votes),
		"score", pkt.Result.Score,
		"weighted_score", pkt.Result.WeightedScore,
		"final_status", pkt.FinalStatus)
	return pkt, nil
}

// collectVote calls one reviewer and parses its vote. Any failure yields a
// synthetic REJECT naming the failure as a blocking issue.
func (r *Runner) collectVote(ctx context.Context, rev Reviewer, prompt, hash string) ReviewerVote {
	vote := ReviewerVote{
		ReviewerID:     rev.ID,
		Provider:       rev.Provider,
		Model:          rev.Model,
		Temperature:    rev.Temperature,
		PromptHash:     hash,
		BlockingIssues: []string{},
		Suggestions:    []string{},
		EvidenceRefs:   []string{},
	}

	parsed, err := r.callReviewer(ctx, rev, prompt)
	if err != nil {
		r.logger.Warn("reviewer failed; recording synthetic reject",
			"reviewer", rev.ID, "error", err)
		vote.Vote = VoteReject
		vote.Confidence = 1.0
		vote.BlockingIssues = []string{fmt.Sprintf("reviewer %s failed: %v", rev.ID, err)}
		return vote
	}

	vote.Vote = parsed.Vote
	vote.Confidence = parsed.Confidence
	vote.BlockingIssues = parsed.BlockingIssues
	vote.Suggestions = parsed.Suggestions
	return vote
}

// callReviewer performs the provider call under the per-reviewer timeout.
func (r *Runner) callReviewer(ctx context.Context, rev Reviewer, prompt string) (parsedVote, error) {
	p, err := r.registry.Lookup(provider.Key{Provider: rev.Provider, Model: rev.Model})
	if err != nil {
		return parsedVote{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	raw, err := p.Complete(ctx, provider.Request{
		Prompt:       prompt,
		SystemPrompt: rev.SystemPrompt,
		Temperature:  rev.Temperature,
	})
	if err != nil {
		return parsedVote{}, pipelineerrors.ErrReviewerFailure(rev.ID, err)
	}
	return ParseVote(raw)
}

// arbitrate invokes the arbitrator with the full set of votes. Arbitration
// failure is non-fatal: the round stays REJECTED.
func (r *Runner) arbitrate(ctx context.Context, plan packet.PlanPacket, votes []ReviewerVote) *ArbitratorResult {
	p, err := r.registry.Lookup(provider.Key{Provider: r.arbitrator.Provider, Model: r.arbitrator.Model})
	if err != nil {
		r.logger.Warn("arbitrator unavailable", "error", err)
		return nil
	}

	votesJSON, err := json.MarshalIndent(votes, "", "  ")
	if err != nil {
		return nil
	}
	prompt := fmt.Sprintf(`Reviewers disagreed on a %s phase plan. Their votes:

%s

Weigh the votes and render a final decision. Return ONLY a JSON object:
{"vote": "APPROVE" | "CONDITIONAL" | "REJECT", "confidence": <0..1>, "blocking_issues": [], "suggestions": [<your reasoning>]}
`, plan.Phase, votesJSON)

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	raw, err := p.Complete(ctx, provider.Request{
		Prompt:       prompt,
		SystemPrompt: r.arbitrator.SystemPrompt,
	})
	if err != nil {
		r.logger.Warn("arbitration call failed", "error", err)
		return nil
	}
	parsed, err := ParseVote(raw)
	if err != nil {
		r.logger.Warn("arbitration output unparseable", "error", err)
		return nil
	}

	reasoning := ""
	if len(parsed.Suggestions) > 0 {
		reasoning = parsed.Suggestions[0]
	}
	return &ArbitratorResult{
		Provider:  r.arbitrator.Provider,
		Model:     r.arbitrator.Model,
		Decision:  parsed.Vote,
		Reasoning: reasoning,
		Timestamp: time.Now().UTC(),
	}
}
