// Package packet builds the structured documents exchanged between phases:
// plan packets submitted to consensus, RCA packets from the recovery loop,
// audit reports, and change requests.
package packet

import (
	"time"

	"github.com/google/uuid"

	"github.com/randalmurphal/popeye/internal/pipeline"
)

// PlanPacket is the document a planning phase submits for consensus review.
type PlanPacket struct {
	PacketID    string         `json:"packet_id"`
	Timestamp   time.Time      `json:"timestamp"`
	Phase       pipeline.Phase `json:"phase"`
	SubmittedBy pipeline.Role  `json:"submitted_by"`
	Version     int            `json:"version"`

	MasterPlan   *pipeline.ArtifactRef `json:"master_plan,omitempty"`
	Constitution *pipeline.ArtifactRef `json:"constitution,omitempty"`
	RepoSnapshot *pipeline.ArtifactRef `json:"repo_snapshot,omitempty"`

	ProposedArtifacts    []pipeline.ArtifactRef `json:"proposed_artifacts"`
	AcceptanceCriteria   []string               `json:"acceptance_criteria"`
	ArtifactDependencies []string               `json:"artifact_dependencies"`
	Constraints          []string               `json:"constraints"`
	OpenQuestions        []string               `json:"open_questions"`
}

// PlanBuilder assembles a plan packet incrementally.
type PlanBuilder struct {
	packet PlanPacket
}

// NewPlan starts a plan packet for a phase, attributed to a role.
func NewPlan(phase pipeline.Phase, submittedBy pipeline.Role) *PlanBuilder {
	return &PlanBuilder{
		packet: PlanPacket{
			PacketID:             uuid.NewString(),
			Timestamp:            time.Now().UTC(),
			Phase:                phase,
			SubmittedBy:          submittedBy,
			Version:              1,
			ProposedArtifacts:    []pipeline.ArtifactRef{},
			AcceptanceCriteria:   []string{},
			ArtifactDependencies: []string{},
			Constraints:          []string{},
			OpenQuestions:        []string{},
		},
	}
}

// WithMasterPlan sets the master plan reference.
func (b *PlanBuilder) WithMasterPlan(ref pipeline.ArtifactRef) *PlanBuilder {
	b.packet.MasterPlan = &ref
	return b
}

// WithConstitution sets the constitution reference.
func (b *PlanBuilder) WithConstitution(ref pipeline.ArtifactRef) *PlanBuilder {
	b.packet.Constitution = &ref
	return b
}

// WithRepoSnapshot sets the repo snapshot reference.
func (b *PlanBuilder) WithRepoSnapshot(ref pipeline.ArtifactRef) *PlanBuilder {
	b.packet.RepoSnapshot = &ref
	return b
}

// Propose adds artifacts under review.
func (b *PlanBuilder) Propose(refs ...pipeline.ArtifactRef) *PlanBuilder {
	b.packet.ProposedArtifacts = append(b.packet.ProposedArtifacts, refs...)
	return b
}

// AcceptWhen adds acceptance criteria.
func (b *PlanBuilder) AcceptWhen(criteria ...string) *PlanBuilder {
	b.packet.AcceptanceCriteria = append(b.packet.AcceptanceCriteria, criteria...)
	return b
}

// DependsOn adds artifact dependencies.
func (b *PlanBuilder) DependsOn(deps ...string) *PlanBuilder {
	b.packet.ArtifactDependencies = append(b.packet.ArtifactDependencies, deps...)
	return b
}

// Constrain adds declared constraints.
func (b *PlanBuilder) Constrain(constraints ...string) *PlanBuilder {
	b.packet.Constraints = append(b.packet.Constraints, constraints...)
	return b
}

// Ask adds open questions for reviewers.
func (b *PlanBuilder) Ask(questions ...string) *PlanBuilder {
	b.packet.OpenQuestions = append(b.packet.OpenQuestions, questions...)
	return b
}

// Build returns the assembled packet.
func (b *PlanBuilder) Build() PlanPacket {
	return b.packet
}
