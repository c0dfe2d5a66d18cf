// Package skills provides role skill definitions: built-in defaults merged
// with optional per-role override files from the project's skills directory.
package skills

import (
	"github.com/randalmurphal/popeye/internal/pipeline"
)

// Definition describes how a role behaves: the system prompt handed to its
// reasoning provider, the outputs it must produce, its constraints, and the
// roles whose output it depends on.
type Definition struct {
	Role            pipeline.Role `yaml:"role" json:"role"`
	Version         string        `yaml:"version" json:"version"`
	SystemPrompt    string        `yaml:"system_prompt" json:"system_prompt"`
	RequiredOutputs []string      `yaml:"required_outputs" json:"required_outputs"`
	Constraints     []string      `yaml:"constraints" json:"constraints"`
	DependsOn       []pipeline.Role `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`
}

// defaults holds the built-in definition per role.
var defaults = map[pipeline.Role]Definition{
	pipeline.RoleDispatcher: {
		Role:    pipeline.RoleDispatcher,
		Version: "1.0",
		SystemPrompt: "You are the dispatcher. Read the project idea and produce a master plan: " +
			"goals, scope boundaries, deliverables, and the roles that must participate.",
		RequiredOutputs: []string{"master_plan"},
		Constraints:     []string{"State explicit non-goals", "Name every participating role"},
	},
	pipeline.RoleArchitect: {
		Role:    pipeline.RoleArchitect,
		Version: "1.0",
		SystemPrompt: "You are the architect. Derive a concrete technical architecture from the " +
			"approved master plan: components, data flow, storage, and interfaces.",
		RequiredOutputs: []string{"architecture"},
		Constraints:     []string{"Every component must trace to a master plan goal"},
		DependsOn:       []pipeline.Role{pipeline.RoleDispatcher},
	},
	pipeline.RoleDBExpert: {
		Role:    pipeline.RoleDBExpert,
		Version: "1.0",
		SystemPrompt: "You are the database expert. Design schemas, migrations, and data access " +
			"paths that satisfy the architecture.",
		RequiredOutputs: []string{"role_plan"},
		Constraints:     []string{"Migrations must be reversible"},
		DependsOn:       []pipeline.Role{pipeline.RoleArchitect},
	},
	pipeline.RoleBackendProgrammer: {
		Role:    pipeline.RoleBackendProgrammer,
		Version: "1.0",
		SystemPrompt: "You are the backend programmer. Implement server-side components per the " +
			"architecture and your role plan.",
		RequiredOutputs: []string{"role_plan"},
		Constraints:     []string{"Only touch backend paths", "No frontend or website files"},
		DependsOn:       []pipeline.Role{pipeline.RoleArchitect, pipeline.RoleDBExpert},
	},
	pipeline.RoleFrontendProgrammer: {
		Role:    pipeline.RoleFrontendProgrammer,
		Version: "1.0",
		SystemPrompt: "You are the frontend programmer. Implement application UI components per " +
			"the architecture and your role plan.",
		RequiredOutputs: []string{"role_plan"},
		Constraints:     []string{"Only touch frontend paths"},
		DependsOn:       []pipeline.Role{pipeline.RoleArchitect, pipeline.RoleUIUXSpecialist},
	},
	pipeline.RoleWebsiteProgrammer: {
		Role:    pipeline.RoleWebsiteProgrammer,
		Version: "1.0",
		SystemPrompt: "You are the website programmer. Build public-facing site pages and content " +
			"surfaces per the plan.",
		RequiredOutputs: []string{"role_plan"},
		Constraints:     []string{"No placeholder text in shipped pages"},
		DependsOn:       []pipeline.Role{pipeline.RoleMarketingExpert},
	},
	pipeline.RoleQATester: {
		Role:    pipeline.RoleQATester,
		Version: "1.0",
		SystemPrompt: "You are the QA tester. Validate the implementation against acceptance " +
			"criteria and report a structured verdict.",
		RequiredOutputs: []string{"qa_validation"},
		Constraints:     []string{"Every acceptance criterion gets an explicit pass or fail"},
	},
	pipeline.RoleReviewer: {
		Role:    pipeline.RoleReviewer,
		Version: "1.0",
		SystemPrompt: "You are an independent reviewer. Assess the submitted plan packet and " +
			"return a structured vote with confidence and blocking issues.",
		RequiredOutputs: []string{"review_decision"},
		Constraints:     []string{"Vote strictly on the packet contents"},
	},
	pipeline.RoleArbitrator: {
		Role:    pipeline.RoleArbitrator,
		Version: "1.0",
		SystemPrompt: "You are the arbitrator. Given a disputed consensus round, weigh the votes " +
			"and render a final decision with reasoning.",
		RequiredOutputs: []string{"arbitration"},
		Constraints:     []string{"Address every blocking issue raised by reviewers"},
	},
	pipeline.RoleDebugger: {
		Role:    pipeline.RoleDebugger,
		Version: "1.0",
		SystemPrompt: "You are the debugger. Analyze the failed phase and produce a root cause " +
			"analysis with a concrete remediation plan and rewind target.",
		RequiredOutputs: []string{"rca_report"},
		Constraints:     []string{"Name the failing gate blockers verbatim"},
	},
	pipeline.RoleAuditor: {
		Role:    pipeline.RoleAuditor,
		Version: "1.0",
		SystemPrompt: "You are the auditor. Examine the implementation for security, correctness, " +
			"and architectural conformance; classify findings by severity.",
		RequiredOutputs: []string{"audit_report"},
		Constraints:     []string{"Severity must be one of P0, P1, P2, P3"},
	},
	pipeline.RoleJournalist: {
		Role:    pipeline.RoleJournalist,
		Version: "1.0",
		SystemPrompt: "You are the journalist. Keep the decision journal: record what changed, " +
			"why, and who decided.",
		RequiredOutputs: []string{"journalist_trace"},
	},
	pipeline.RoleReleaseManager: {
		Role:    pipeline.RoleReleaseManager,
		Version: "1.0",
		SystemPrompt: "You are the release manager. Produce release notes, a deployment runbook, " +
			"and a rollback plan.",
		RequiredOutputs: []string{"release_notes", "deployment", "rollback"},
		Constraints:     []string{"Rollback steps must not depend on the new release working"},
	},
	pipeline.RoleMarketingExpert: {
		Role:    pipeline.RoleMarketingExpert,
		Version: "1.0",
		SystemPrompt: "You are the marketing expert. Define positioning, messaging, and content " +
			"requirements for public surfaces.",
		RequiredOutputs: []string{"role_plan"},
	},
	pipeline.RoleSocialExpert: {
		Role:    pipeline.RoleSocialExpert,
		Version: "1.0",
		SystemPrompt: "You are the social expert. Plan announcement and engagement content for " +
			"the release.",
		RequiredOutputs: []string{"role_plan"},
		DependsOn:       []pipeline.Role{pipeline.RoleMarketingExpert},
	},
	pipeline.RoleUIUXSpecialist: {
		Role:    pipeline.RoleUIUXSpecialist,
		Version: "1.0",
		SystemPrompt: "You are the UI/UX specialist. Define flows, layouts, and interaction " +
			"patterns the frontend implements.",
		RequiredOutputs: []string{"role_plan"},
		DependsOn:       []pipeline.Role{pipeline.RoleArchitect},
	},
}

// DefaultDefinition returns the built-in definition for a role and whether
// one exists.
func DefaultDefinition(role pipeline.Role) (Definition, bool) {
	d, ok := defaults[role]
	return d, ok
}
