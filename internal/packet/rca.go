package packet

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/randalmurphal/popeye/internal/pipeline"
)

// RCAPacket is the root-cause-analysis record the recovery loop produces,
// one per recovery iteration.
type RCAPacket struct {
	RCAID             string         `json:"rca_id"`
	Timestamp         time.Time      `json:"timestamp"`
	IncidentSummary   string         `json:"incident_summary"`
	Symptoms          []string       `json:"symptoms"`
	RootCause         string         `json:"root_cause"`
	ResponsibleLayer  string         `json:"responsible_layer"`
	OriginPhase       pipeline.Phase `json:"origin_phase"`
	GovernanceGap     string         `json:"governance_gap,omitempty"`
	CorrectiveActions []string       `json:"corrective_actions"`
	Prevention        string         `json:"prevention,omitempty"`

	RequiresPhaseRewindTo pipeline.Phase   `json:"requires_phase_rewind_to,omitempty"`
	RequiresConsensusOn   []pipeline.Phase `json:"requires_consensus_on,omitempty"`
}

// RewindTarget maps a failed phase to the phase recovery rewinds to. Late
// pipeline failures rewind to implementation; a failed consensus round
// rewinds to the planning phase it was reviewing; everything else retries
// the failed phase itself.
func RewindTarget(failed pipeline.Phase) pipeline.Phase {
	switch failed {
	case pipeline.PhaseProductionGate, pipeline.PhaseAudit, pipeline.PhaseQAValidation:
		return pipeline.PhaseImplementation
	case pipeline.PhaseConsensusMasterPlan:
		return pipeline.PhaseIntake
	case pipeline.PhaseConsensusArchitecture:
		return pipeline.PhaseArchitecture
	case pipeline.PhaseConsensusRolePlans:
		return pipeline.PhaseRolePlanning
	}
	return failed
}

// BuildRCA assembles an RCA packet for a failed phase from its gate result.
func BuildRCA(failed pipeline.Phase, gateResult pipeline.GateResult) RCAPacket {
	rca := RCAPacket{
		RCAID:           uuid.NewString(),
		Timestamp:       time.Now().UTC(),
		IncidentSummary: fmt.Sprintf("phase %s failed its gate with %d blocker(s)", failed, len(gateResult.Blockers)),
		Symptoms:        append([]string{}, gateResult.Blockers...),
		OriginPhase:     failed,
	}

	switch {
	case len(gateResult.FailedChecks) > 0:
		rca.RootCause = fmt.Sprintf("failing checks: %v", gateResult.FailedChecks)
		rca.ResponsibleLayer = "implementation"
	case len(gateResult.MissingArtifacts) > 0:
		rca.RootCause = fmt.Sprintf("missing artifacts: %v", gateResult.MissingArtifacts)
		rca.ResponsibleLayer = "phase handler"
	default:
		rca.RootCause = "gate blocked without failed checks or missing artifacts"
		rca.ResponsibleLayer = "governance"
	}

	rca.RequiresPhaseRewindTo = RewindTarget(failed)
	rca.CorrectiveActions = []string{
		fmt.Sprintf("rewind to %s and address the blockers", rca.RequiresPhaseRewindTo),
	}
	if failed.Consensus() {
		rca.RequiresConsensusOn = []pipeline.Phase{failed}
		rca.GovernanceGap = "plan failed independent review; the planning input needs revision"
	}
	return rca
}

// Markdown renders the packet for the human-readable incident artifact.
func (r RCAPacket) Markdown() string {
	out := fmt.Sprintf("# Root Cause Analysis\n\n**Incident:** %s\n\n**Origin phase:** %s\n\n**Root cause:** %s\n\n**Responsible layer:** %s\n",
		r.IncidentSummary, r.OriginPhase, r.RootCause, r.ResponsibleLayer)
	if len(r.Symptoms) > 0 {
		out += "\n## Symptoms\n\n"
		for _, s := range r.Symptoms {
			out += "- " + s + "\n"
		}
	}
	if len(r.CorrectiveActions) > 0 {
		out += "\n## Corrective Actions\n\n"
		for _, a := range r.CorrectiveActions {
			out += "- " + a + "\n"
		}
	}
	if r.RequiresPhaseRewindTo != "" {
		out += fmt.Sprintf("\n**Rewind to:** %s\n", r.RequiresPhaseRewindTo)
	}
	return out
}
