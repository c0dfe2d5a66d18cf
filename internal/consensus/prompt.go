package consensus

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/randalmurphal/popeye/internal/packet"
)

// BuildReviewPrompt renders one plan packet into the prompt every reviewer
// of the round receives. Reviewers never see each other's outputs, so the
// prompt carries only the packet.
func BuildReviewPrompt(p packet.PlanPacket) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are reviewing a plan submitted for the %s phase by the %s role.\n\n", p.Phase, p.SubmittedBy)

	if len(p.ProposedArtifacts) > 0 {
		b.WriteString("## Proposed Artifacts\n\n")
		for _, ref := range p.ProposedArtifacts {
			fmt.Fprintf(&b, "- %s v%d (%s)\n", ref.Type, ref.Version, ref.Path)
		}
		b.WriteString("\n")
	}
	if len(p.AcceptanceCriteria) > 0 {
		b.WriteString("## Acceptance Criteria\n\n")
		for _, c := range p.AcceptanceCriteria {
			b.WriteString("- " + c + "\n")
		}
		b.WriteString("\n")
	}
	if len(p.Constraints) > 0 {
		b.WriteString("## Constraints\n\n")
		for _, c := range p.Constraints {
			b.WriteString("- " + c + "\n")
		}
		b.WriteString("\n")
	}
	if len(p.OpenQuestions) > 0 {
		b.WriteString("## Open Questions\n\n")
		for _, q := range p.OpenQuestions {
			b.WriteString("- " + q + "\n")
		}
		b.WriteString("\n")
	}

	b.WriteString(`Return ONLY a JSON object with this exact shape:
{
  "vote": "APPROVE" | "CONDITIONAL" | "REJECT",
  "confidence": <number between 0 and 1>,
  "blocking_issues": [<strings; empty unless something must block approval>],
  "suggestions": [<strings>]
}
`)
	return b.String()
}

// PromptHash returns the hex SHA-256 of a prompt, captured per vote for
// reproducibility.
func PromptHash(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])
}
