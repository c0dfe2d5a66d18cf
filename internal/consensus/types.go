// Package consensus implements the multi-reviewer vote subsystem: parallel
// reviewer fan-out over a plan packet, structured vote parsing, weighted
// aggregation with a blocking-issue veto, and optional arbitration.
package consensus

import (
	"time"
)

// VoteValue is a reviewer's verdict.
type VoteValue string

const (
	VoteApprove     VoteValue = "APPROVE"
	VoteConditional VoteValue = "CONDITIONAL"
	VoteReject      VoteValue = "REJECT"
)

// Weight returns the vote's aggregation weight.
func (v VoteValue) Weight() float64 {
	switch v {
	case VoteApprove:
		return 1.0
	case VoteConditional:
		return 0.5
	}
	return 0.0
}

// ReviewerVote is one reviewer's structured vote. Votes are produced once
// per reviewer per round and never modified.
type ReviewerVote struct {
	ReviewerID     string    `json:"reviewer_id"`
	Provider       string    `json:"provider"`
	Model          string    `json:"model"`
	Temperature    float64   `json:"temperature"`
	PromptHash     string    `json:"prompt_hash"`
	Vote           VoteValue `json:"vote"`
	Confidence     float64   `json:"confidence"`
	BlockingIssues []string  `json:"blocking_issues"`
	Suggestions    []string  `json:"suggestions"`
	EvidenceRefs   []string  `json:"evidence_refs"`
}

// Rules govern a consensus round.
type Rules struct {
	Threshold    float64 `json:"threshold"`
	Quorum       int     `json:"quorum"`
	MinReviewers int     `json:"min_reviewers"`
}

// Result is the aggregated verdict.
type Result struct {
	Approved               bool    `json:"approved"`
	Score                  float64 `json:"score"`          // approve-count / total
	WeightedScore          float64 `json:"weighted_score"` // confidence-weighted, veto-aware
	ParticipatingReviewers int     `json:"participating_reviewers"`
}

// ArbitratorResult is the arbitrator's decision on a disputed round.
type ArbitratorResult struct {
	Provider  string    `json:"provider"`
	Model     string    `json:"model"`
	Decision  VoteValue `json:"decision"`
	Reasoning string    `json:"reasoning"`
	Timestamp time.Time `json:"timestamp"`
}

// Final statuses of a consensus round.
const (
	StatusApproved   = "APPROVED"
	StatusRejected   = "REJECTED"
	StatusArbitrated = "ARBITRATED"
)

// Packet is the aggregated record of a consensus round, stored by the phase
// handler as a JSON artifact.
type Packet struct {
	PlanPacketID     string            `json:"plan_packet_id"`
	Phase            string            `json:"phase"`
	Timestamp        time.Time         `json:"timestamp"`
	Votes            []ReviewerVote    `json:"votes"`
	Rules            Rules             `json:"rules"`
	Result           Result            `json:"result"`
	ArbitratorResult *ArbitratorResult `json:"arbitrator_result,omitempty"`
	FinalStatus      string            `json:"final_status"`
}

// Reviewer configures one independent reviewer.
type Reviewer struct {
	ID           string  `json:"id" yaml:"id"`
	Provider     string  `json:"provider" yaml:"provider"`
	Model        string  `json:"model" yaml:"model"`
	Temperature  float64 `json:"temperature" yaml:"temperature"`
	SystemPrompt string  `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty"`
}

// Arbitrator configures the optional arbitration provider.
type Arbitrator struct {
	Provider     string `json:"provider" yaml:"provider"`
	Model        string `json:"model" yaml:"model"`
	SystemPrompt string `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty"`
}
