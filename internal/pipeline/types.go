package pipeline

import "time"

// ArtifactType classifies a stored artifact. The set is closed.
type ArtifactType string

const (
	TypeMasterPlan          ArtifactType = "master_plan"
	TypeArchitecture        ArtifactType = "architecture"
	TypeRolePlan            ArtifactType = "role_plan"
	TypeConsensus           ArtifactType = "consensus"
	TypeArbitration         ArtifactType = "arbitration"
	TypeAuditReport         ArtifactType = "audit_report"
	TypeRCAReport           ArtifactType = "rca_report"
	TypeProductionReadiness ArtifactType = "production_readiness"
	TypeReleaseNotes        ArtifactType = "release_notes"
	TypeDeployment          ArtifactType = "deployment"
	TypeRollback            ArtifactType = "rollback"
	TypeRepoSnapshot        ArtifactType = "repo_snapshot"
	TypeBuildCheck          ArtifactType = "build_check"
	TypeTestCheck           ArtifactType = "test_check"
	TypeLintCheck           ArtifactType = "lint_check"
	TypeTypecheckCheck      ArtifactType = "typecheck_check"
	TypePlaceholderScan     ArtifactType = "placeholder_scan"
	TypeQAValidation        ArtifactType = "qa_validation"
	TypeReviewDecision      ArtifactType = "review_decision"
	TypeStuckReport         ArtifactType = "stuck_report"
	TypeJournalistTrace     ArtifactType = "journalist_trace"
	TypeResolvedCommands    ArtifactType = "resolved_commands"
	TypeConstitution        ArtifactType = "constitution"
	TypeChangeRequest       ArtifactType = "change_request"
	TypeAdditionalContext   ArtifactType = "additional_context"
)

// AllArtifactTypes returns every known artifact type.
func AllArtifactTypes() []ArtifactType {
	return []ArtifactType{
		TypeMasterPlan, TypeArchitecture, TypeRolePlan, TypeConsensus,
		TypeArbitration, TypeAuditReport, TypeRCAReport, TypeProductionReadiness,
		TypeReleaseNotes, TypeDeployment, TypeRollback, TypeRepoSnapshot,
		TypeBuildCheck, TypeTestCheck, TypeLintCheck, TypeTypecheckCheck,
		TypePlaceholderScan, TypeQAValidation, TypeReviewDecision, TypeStuckReport,
		TypeJournalistTrace, TypeResolvedCommands, TypeConstitution,
		TypeChangeRequest, TypeAdditionalContext,
	}
}

// Valid reports whether t is a known artifact type.
func (t ArtifactType) Valid() bool {
	for _, known := range AllArtifactTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// ContentType is the payload encoding of an artifact.
type ContentType string

const (
	ContentMarkdown ContentType = "markdown"
	ContentJSON     ContentType = "json"
)

// Ext returns the file extension for the content type.
func (c ContentType) Ext() string {
	if c == ContentJSON {
		return "json"
	}
	return "md"
}

// ArtifactEntry is the unit of storage: a write-once, content-addressed
// document chained to its predecessors through group_id/previous_id.
type ArtifactEntry struct {
	ID          string       `json:"id"`
	Type        ArtifactType `json:"type"`
	Phase       Phase        `json:"phase"`
	Version     int          `json:"version"`
	Path        string       `json:"path"` // repo-relative
	SHA256      string       `json:"sha256"`
	Timestamp   time.Time    `json:"timestamp"`
	Immutable   bool         `json:"immutable"`
	ContentType ContentType  `json:"content_type"`
	GroupID     string       `json:"group_id"`
	PreviousID  string       `json:"previous_id,omitempty"`
}

// ArtifactRef is a weak reference carried inside packets. It refers to an
// artifact without owning it.
type ArtifactRef struct {
	ArtifactID string       `json:"artifact_id"`
	Path       string       `json:"path"`
	SHA256     string       `json:"sha256"`
	Version    int          `json:"version"`
	Type       ArtifactType `json:"type"`
}

// CheckType identifies a gate check.
type CheckType string

const (
	CheckBuild           CheckType = "build"
	CheckTest            CheckType = "test"
	CheckLint            CheckType = "lint"
	CheckTypecheck       CheckType = "typecheck"
	CheckMigration       CheckType = "migration"
	CheckPlaceholderScan CheckType = "placeholder_scan"
	CheckStart           CheckType = "start"
	CheckEnv             CheckType = "env_check"
)

// CheckStatus is the outcome of a gate check.
type CheckStatus string

const (
	CheckPass CheckStatus = "pass"
	CheckFail CheckStatus = "fail"
	CheckSkip CheckStatus = "skip"
)

// GateCheckResult records a single check execution.
type GateCheckResult struct {
	CheckType      CheckType   `json:"check_type"`
	Status         CheckStatus `json:"status"`
	Command        string      `json:"command,omitempty"`
	ExitCode       int         `json:"exit_code"`
	StdoutArtifact string      `json:"stdout_artifact,omitempty"`
	StderrSummary  string      `json:"stderr_summary,omitempty"`
	DurationMS     int64       `json:"duration_ms"`
	Timestamp      time.Time   `json:"timestamp"`
}

// GateResult is the outcome of evaluating a phase gate. Score and
// ConsensusScore are written by consensus-phase handlers (weighted and simple
// score respectively) and must survive re-evaluation by the engine.
type GateResult struct {
	Phase            Phase     `json:"phase"`
	Pass             bool      `json:"pass"`
	Score            *float64  `json:"score,omitempty"`
	Blockers         []string  `json:"blockers"`
	MissingArtifacts []string  `json:"missingArtifacts"`
	FailedChecks     []string  `json:"failedChecks"`
	ConsensusScore   *float64  `json:"consensusScore,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// PendingChange is the compact pending change-request record carried on the
// pipeline state. The full ChangeRequest document lives in the artifact store.
type PendingChange struct {
	CRID        string `json:"cr_id"`
	ChangeType  string `json:"change_type"`
	TargetPhase Phase  `json:"target_phase"`
	Status      string `json:"status"` // proposed, approved, rejected
}

// Pending change statuses.
const (
	CRProposed = "proposed"
	CRApproved = "approved"
	CRRejected = "rejected"
)
