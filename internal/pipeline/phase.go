// Package pipeline defines the phase model and the persisted pipeline state
// shared by the gate engine, the artifact manager, and the orchestrator.
package pipeline

// Phase identifies a pipeline phase.
type Phase string

const (
	// Linear sequence
	PhaseIntake                Phase = "INTAKE"
	PhaseConsensusMasterPlan   Phase = "CONSENSUS_MASTER_PLAN"
	PhaseArchitecture          Phase = "ARCHITECTURE"
	PhaseConsensusArchitecture Phase = "CONSENSUS_ARCHITECTURE"
	PhaseRolePlanning          Phase = "ROLE_PLANNING"
	PhaseConsensusRolePlans    Phase = "CONSENSUS_ROLE_PLANS"
	PhaseImplementation        Phase = "IMPLEMENTATION"
	PhaseQAValidation          Phase = "QA_VALIDATION"
	PhaseReview                Phase = "REVIEW"
	PhaseAudit                 Phase = "AUDIT"
	PhaseProductionGate        Phase = "PRODUCTION_GATE"
	PhaseDone                  Phase = "DONE"

	// Out-of-band
	PhaseRecoveryLoop Phase = "RECOVERY_LOOP"
	PhaseStuck        Phase = "STUCK"
)

// linearSequence is the forward path from intake to completion.
var linearSequence = []Phase{
	PhaseIntake,
	PhaseConsensusMasterPlan,
	PhaseArchitecture,
	PhaseConsensusArchitecture,
	PhaseRolePlanning,
	PhaseConsensusRolePlans,
	PhaseImplementation,
	PhaseQAValidation,
	PhaseReview,
	PhaseAudit,
	PhaseProductionGate,
	PhaseDone,
}

// LinearSequence returns the ordered linear phase sequence.
func LinearSequence() []Phase {
	seq := make([]Phase, len(linearSequence))
	copy(seq, linearSequence)
	return seq
}

// AllPhases returns every phase, linear and out-of-band.
func AllPhases() []Phase {
	return append(LinearSequence(), PhaseRecoveryLoop, PhaseStuck)
}

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	for _, known := range AllPhases() {
		if p == known {
			return true
		}
	}
	return false
}

// Terminal reports whether p is a terminal phase. DONE and STUCK never
// transition to another phase.
func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseStuck
}

// Consensus reports whether p is one of the consensus review phases.
func (p Phase) Consensus() bool {
	switch p {
	case PhaseConsensusMasterPlan, PhaseConsensusArchitecture, PhaseConsensusRolePlans:
		return true
	}
	return false
}

// LinearIndex returns the position of p in the linear sequence, or -1 for
// out-of-band phases.
func (p Phase) LinearIndex() int {
	for i, phase := range linearSequence {
		if phase == p {
			return i
		}
	}
	return -1
}
