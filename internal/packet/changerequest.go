package packet

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/randalmurphal/popeye/internal/pipeline"
)

// ChangeType classifies what a change request touches.
type ChangeType string

const (
	ChangeScope        ChangeType = "scope"
	ChangeArchitecture ChangeType = "architecture"
	ChangeDependency   ChangeType = "dependency"
	ChangeConfig       ChangeType = "config"
	ChangeRequirement  ChangeType = "requirement"
)

// RiskLevel grades a change request's impact.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// ImpactAnalysis describes what a change request touches.
type ImpactAnalysis struct {
	AffectedArtifacts []string         `json:"affected_artifacts"`
	AffectedPhases    []pipeline.Phase `json:"affected_phases"`
	RiskLevel         RiskLevel        `json:"risk_level"`
}

// ChangeRequest is the full change-request document stored as an artifact.
// The pipeline state carries only the compact PendingChange record.
type ChangeRequest struct {
	CRID           string         `json:"cr_id"`
	Timestamp      time.Time      `json:"timestamp"`
	OriginPhase    pipeline.Phase `json:"origin_phase"`
	RequestedBy    pipeline.Role  `json:"requested_by"`
	ChangeType     ChangeType     `json:"change_type"`
	Description    string         `json:"description"`
	Justification  string         `json:"justification"`
	ImpactAnalysis ImpactAnalysis `json:"impact_analysis"`
	Status         string         `json:"status"` // proposed, approved, rejected
}

// NewChangeRequest creates a proposed change request.
func NewChangeRequest(origin pipeline.Phase, requestedBy pipeline.Role, ct ChangeType, description, justification string, impact ImpactAnalysis) ChangeRequest {
	return ChangeRequest{
		CRID:           uuid.NewString(),
		Timestamp:      time.Now().UTC(),
		OriginPhase:    origin,
		RequestedBy:    requestedBy,
		ChangeType:     ct,
		Description:    description,
		Justification:  justification,
		ImpactAnalysis: impact,
		Status:         pipeline.CRProposed,
	}
}

// RouteChangeRequest maps a change type to the phase that must re-review.
// Total: unknown types route to the master plan review.
func RouteChangeRequest(ct ChangeType) pipeline.Phase {
	switch ct {
	case ChangeScope, ChangeRequirement:
		return pipeline.PhaseConsensusMasterPlan
	case ChangeArchitecture:
		return pipeline.PhaseConsensusArchitecture
	case ChangeDependency:
		return pipeline.PhaseConsensusRolePlans
	case ChangeConfig:
		return pipeline.PhaseQAValidation
	}
	return pipeline.PhaseConsensusMasterPlan
}

// ToPending builds the compact record carried on the pipeline state.
func (cr ChangeRequest) ToPending() pipeline.PendingChange {
	return pipeline.PendingChange{
		CRID:        cr.CRID,
		ChangeType:  string(cr.ChangeType),
		TargetPhase: RouteChangeRequest(cr.ChangeType),
		Status:      cr.Status,
	}
}

// Markdown renders the change request for the journal artifact.
func (cr ChangeRequest) Markdown() string {
	out := fmt.Sprintf("# Change Request %s\n\n**Type:** %s\n\n**Origin:** %s\n\n**Requested by:** %s\n\n**Status:** %s\n\n## Description\n\n%s\n\n## Justification\n\n%s\n",
		cr.CRID, cr.ChangeType, cr.OriginPhase, cr.RequestedBy, cr.Status, cr.Description, cr.Justification)
	out += fmt.Sprintf("\n## Impact\n\n**Risk:** %s\n", cr.ImpactAnalysis.RiskLevel)
	for _, a := range cr.ImpactAnalysis.AffectedArtifacts {
		out += "- artifact: " + a + "\n"
	}
	for _, p := range cr.ImpactAnalysis.AffectedPhases {
		out += "- phase: " + string(p) + "\n"
	}
	return out
}
