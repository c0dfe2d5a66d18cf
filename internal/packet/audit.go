package packet

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/randalmurphal/popeye/internal/snapshot"
)

// Severity classifies an audit finding.
type Severity string

const (
	SeverityP0 Severity = "P0"
	SeverityP1 Severity = "P1"
	SeverityP2 Severity = "P2"
	SeverityP3 Severity = "P3"
)

// severityWeights drive the system risk score.
var severityWeights = map[Severity]int{
	SeverityP0: 40,
	SeverityP1: 20,
	SeverityP2: 8,
	SeverityP3: 2,
}

// Weight returns the risk weight of a severity, zero for unknown values.
func (s Severity) Weight() int {
	return severityWeights[s]
}

// Finding is one audit observation.
type Finding struct {
	Severity    Severity `json:"severity"`
	Category    string   `json:"category"`
	Description string   `json:"description"`
	Blocking    bool     `json:"blocking"`
}

// AuditReport aggregates findings into a release verdict.
type AuditReport struct {
	AuditID          string                 `json:"audit_id"`
	Timestamp        time.Time              `json:"timestamp"`
	RepoSnapshot     *snapshot.RepoSnapshot `json:"repo_snapshot,omitempty"`
	Findings         []Finding              `json:"findings"`
	OverallStatus    string                 `json:"overall_status"` // PASS or FAIL
	SystemRiskScore  int                    `json:"system_risk_score"`
	RecoveryRequired bool                   `json:"recovery_required"`
}

// BuildAuditReport derives the verdict from findings: any blocking finding
// fails; the risk score is the capped sum of severity weights; recovery is
// required when a blocking P0 or P1 finding exists.
func BuildAuditReport(snap *snapshot.RepoSnapshot, findings []Finding) AuditReport {
	report := AuditReport{
		AuditID:       uuid.NewString(),
		Timestamp:     time.Now().UTC(),
		RepoSnapshot:  snap,
		Findings:      findings,
		OverallStatus: "PASS",
	}
	if report.Findings == nil {
		report.Findings = []Finding{}
	}

	score := 0
	for _, f := range findings {
		score += f.Severity.Weight()
		if f.Blocking {
			report.OverallStatus = "FAIL"
			if f.Severity == SeverityP0 || f.Severity == SeverityP1 {
				report.RecoveryRequired = true
			}
		}
	}
	if score > 100 {
		score = 100
	}
	report.SystemRiskScore = score
	return report
}

// Markdown renders the report for the human-readable audit artifact.
func (r AuditReport) Markdown() string {
	out := fmt.Sprintf("# Audit Report\n\n**Status:** %s\n\n**System risk score:** %d/100\n",
		r.OverallStatus, r.SystemRiskScore)
	if r.RecoveryRequired {
		out += "\n**Recovery required:** blocking P0/P1 findings present.\n"
	}
	if len(r.Findings) == 0 {
		out += "\nNo findings.\n"
		return out
	}
	out += "\n## Findings\n\n"
	for _, f := range r.Findings {
		marker := ""
		if f.Blocking {
			marker = " (blocking)"
		}
		out += fmt.Sprintf("- **%s%s** [%s] %s\n", f.Severity, marker, f.Category, f.Description)
	}
	return out
}
