package consensus

import (
	"time"
)

// Aggregate computes the round result from votes. The simple score is the
// approve fraction; the weighted score is Σ(w·confidence)/Σ(confidence) with
// w(APPROVE)=1.0, w(CONDITIONAL)=0.5, w(REJECT)=0.0. Any vote carrying a
// blocking issue vetoes the round: the weighted score drops to zero and the
// round is never approved, though the simple score still reflects the raw
// approve fraction. Approval otherwise requires the simple score to meet the
// threshold and the round to reach quorum.
func Aggregate(votes []ReviewerVote, rules Rules) Result {
	result := Result{ParticipatingReviewers: len(votes)}
	if len(votes) == 0 {
		return result
	}

	approves := 0
	weightedSum := 0.0
	confidenceSum := 0.0
	vetoed := false
	for _, v := range votes {
		if v.Vote == VoteApprove {
			approves++
		}
		weightedSum += v.Vote.Weight() * v.Confidence
		confidenceSum += v.Confidence
		if len(v.BlockingIssues) > 0 {
			vetoed = true
		}
	}

	result.Score = float64(approves) / float64(len(votes))
	if confidenceSum > 0 {
		result.WeightedScore = weightedSum / confidenceSum
	}
	if vetoed {
		result.WeightedScore = 0
	}

	result.Approved = result.Score >= rules.Threshold && len(votes) >= rules.Quorum && !vetoed
	return result
}

// BuildPacket assembles the consensus packet for a round. Pure: arbitration,
// if any, happened before this call.
func BuildPacket(planPacketID, phase string, votes []ReviewerVote, rules Rules, arb *ArbitratorResult) Packet {
	result := Aggregate(votes, rules)

	status := StatusRejected
	switch {
	case arb != nil:
		status = StatusArbitrated
	case result.Approved:
		status = StatusApproved
	}

	return Packet{
		PlanPacketID:     planPacketID,
		Phase:            phase,
		Timestamp:        time.Now().UTC(),
		Votes:            votes,
		Rules:            rules,
		Result:           result,
		ArbitratorResult: arb,
		FinalStatus:      status,
	}
}
