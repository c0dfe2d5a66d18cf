// Package gate implements the pure phase-gate engine: per-phase definitions
// of required artifacts, required checks, and consensus thresholds, plus a
// side-effect-free evaluator over the pipeline state.
package gate

import (
	"github.com/randalmurphal/popeye/internal/pipeline"
)

// DefaultConsensusThreshold is the weighted score a consensus phase must
// reach before its gate opens.
const DefaultConsensusThreshold = 0.95

// DefaultMinReviewers is the quorum a consensus round must reach. Enforced
// by the consensus runner; carried on the definition so the runner and the
// gate read from the same table.
const DefaultMinReviewers = 2

// Definition describes one phase's gate.
type Definition struct {
	Phase pipeline.Phase

	// RequiredArtifacts must exist in pipeline.artifacts with a matching
	// phase. RequiredAnywhere artifacts may have been produced in any phase.
	RequiredArtifacts []pipeline.ArtifactType
	RequiredAnywhere  []pipeline.ArtifactType

	// RequiredChecks must be present in pipeline.gateChecks[phase] with
	// status pass.
	RequiredChecks []pipeline.CheckType

	// ConsensusThreshold, when non-zero, requires a consensus artifact in
	// this phase whose weighted score meets the threshold.
	ConsensusThreshold float64
	MinReviewers       int

	// AllowedTransitions lists the phases this one may hand off to on a
	// passing gate. FailTransition is where a failing gate routes.
	AllowedTransitions []pipeline.Phase
	FailTransition     pipeline.Phase
}

// HasConsensus reports whether this gate carries a consensus requirement.
func (d Definition) HasConsensus() bool {
	return d.ConsensusThreshold > 0
}

// definitions is the closed gate table, one entry per phase.
var definitions = map[pipeline.Phase]Definition{
	pipeline.PhaseIntake: {
		Phase: pipeline.PhaseIntake,
		RequiredArtifacts: []pipeline.ArtifactType{
			pipeline.TypeMasterPlan,
			pipeline.TypeRepoSnapshot,
			pipeline.TypeConstitution,
		},
		AllowedTransitions: []pipeline.Phase{pipeline.PhaseConsensusMasterPlan},
		FailTransition:     pipeline.PhaseRecoveryLoop,
	},
	pipeline.PhaseConsensusMasterPlan: {
		Phase:              pipeline.PhaseConsensusMasterPlan,
		RequiredArtifacts:  []pipeline.ArtifactType{pipeline.TypeConsensus},
		ConsensusThreshold: DefaultConsensusThreshold,
		MinReviewers:       DefaultMinReviewers,
		AllowedTransitions: []pipeline.Phase{pipeline.PhaseArchitecture},
		FailTransition:     pipeline.PhaseRecoveryLoop,
	},
	pipeline.PhaseArchitecture: {
		Phase:              pipeline.PhaseArchitecture,
		RequiredArtifacts:  []pipeline.ArtifactType{pipeline.TypeArchitecture},
		AllowedTransitions: []pipeline.Phase{pipeline.PhaseConsensusArchitecture},
		FailTransition:     pipeline.PhaseRecoveryLoop,
	},
	pipeline.PhaseConsensusArchitecture: {
		Phase:              pipeline.PhaseConsensusArchitecture,
		RequiredArtifacts:  []pipeline.ArtifactType{pipeline.TypeConsensus},
		ConsensusThreshold: DefaultConsensusThreshold,
		MinReviewers:       DefaultMinReviewers,
		AllowedTransitions: []pipeline.Phase{pipeline.PhaseRolePlanning},
		FailTransition:     pipeline.PhaseRecoveryLoop,
	},
	pipeline.PhaseRolePlanning: {
		Phase:              pipeline.PhaseRolePlanning,
		RequiredArtifacts:  []pipeline.ArtifactType{pipeline.TypeRolePlan},
		AllowedTransitions: []pipeline.Phase{pipeline.PhaseConsensusRolePlans},
		FailTransition:     pipeline.PhaseRecoveryLoop,
	},
	pipeline.PhaseConsensusRolePlans: {
		Phase:              pipeline.PhaseConsensusRolePlans,
		RequiredArtifacts:  []pipeline.ArtifactType{pipeline.TypeConsensus},
		ConsensusThreshold: DefaultConsensusThreshold,
		MinReviewers:       DefaultMinReviewers,
		AllowedTransitions: []pipeline.Phase{pipeline.PhaseImplementation},
		FailTransition:     pipeline.PhaseRecoveryLoop,
	},
	pipeline.PhaseImplementation: {
		// The handler records a build check for the record, but the gate does
		// not require it: projects without a build command would otherwise
		// never leave this phase. A broken build surfaces at PRODUCTION_GATE.
		Phase:              pipeline.PhaseImplementation,
		AllowedTransitions: []pipeline.Phase{pipeline.PhaseQAValidation},
		FailTransition:     pipeline.PhaseRecoveryLoop,
	},
	pipeline.PhaseQAValidation: {
		Phase:              pipeline.PhaseQAValidation,
		RequiredArtifacts:  []pipeline.ArtifactType{pipeline.TypeQAValidation},
		RequiredChecks:     []pipeline.CheckType{pipeline.CheckTest},
		AllowedTransitions: []pipeline.Phase{pipeline.PhaseReview},
		FailTransition:     pipeline.PhaseRecoveryLoop,
	},
	pipeline.PhaseReview: {
		Phase:             pipeline.PhaseReview,
		RequiredArtifacts: []pipeline.ArtifactType{pipeline.TypeReviewDecision},
		AllowedTransitions: []pipeline.Phase{
			pipeline.PhaseAudit,
			// Approved change requests may route back to a consensus phase
			// or to validation.
			pipeline.PhaseConsensusMasterPlan,
			pipeline.PhaseConsensusArchitecture,
			pipeline.PhaseConsensusRolePlans,
			pipeline.PhaseQAValidation,
		},
		FailTransition: pipeline.PhaseRecoveryLoop,
	},
	pipeline.PhaseAudit: {
		Phase:             pipeline.PhaseAudit,
		RequiredArtifacts: []pipeline.ArtifactType{pipeline.TypeAuditReport},
		AllowedTransitions: []pipeline.Phase{
			pipeline.PhaseProductionGate,
			pipeline.PhaseConsensusMasterPlan,
			pipeline.PhaseConsensusArchitecture,
			pipeline.PhaseConsensusRolePlans,
			pipeline.PhaseQAValidation,
		},
		FailTransition: pipeline.PhaseRecoveryLoop,
	},
	pipeline.PhaseProductionGate: {
		Phase:             pipeline.PhaseProductionGate,
		RequiredArtifacts: []pipeline.ArtifactType{pipeline.TypeProductionReadiness},
		RequiredAnywhere:  []pipeline.ArtifactType{pipeline.TypeAuditReport},
		RequiredChecks: []pipeline.CheckType{
			pipeline.CheckBuild,
			pipeline.CheckTest,
			pipeline.CheckLint,
			pipeline.CheckTypecheck,
		},
		AllowedTransitions: []pipeline.Phase{pipeline.PhaseDone},
		FailTransition:     pipeline.PhaseRecoveryLoop,
	},
	pipeline.PhaseDone: {
		Phase: pipeline.PhaseDone,
		RequiredArtifacts: []pipeline.ArtifactType{
			pipeline.TypeReleaseNotes,
			pipeline.TypeDeployment,
			pipeline.TypeRollback,
		},
	},
	pipeline.PhaseRecoveryLoop: {
		Phase:             pipeline.PhaseRecoveryLoop,
		RequiredArtifacts: []pipeline.ArtifactType{pipeline.TypeRCAReport},
		AllowedTransitions: []pipeline.Phase{
			pipeline.PhaseIntake,
			pipeline.PhaseConsensusMasterPlan,
			pipeline.PhaseArchitecture,
			pipeline.PhaseConsensusArchitecture,
			pipeline.PhaseRolePlanning,
			pipeline.PhaseConsensusRolePlans,
			pipeline.PhaseImplementation,
			pipeline.PhaseQAValidation,
			pipeline.PhaseReview,
			pipeline.PhaseAudit,
			pipeline.PhaseProductionGate,
			pipeline.PhaseRecoveryLoop,
		},
		FailTransition: pipeline.PhaseStuck,
	},
	pipeline.PhaseStuck: {
		Phase: pipeline.PhaseStuck,
	},
}

// DefinitionFor returns the gate definition for a phase and whether one
// exists.
func DefinitionFor(p pipeline.Phase) (Definition, bool) {
	d, ok := definitions[p]
	return d, ok
}
