package pipeline

// Role identifies a governance role. The set is closed: every artifact and
// packet attributes its authorship to one of these.
type Role string

const (
	RoleDispatcher         Role = "DISPATCHER"
	RoleArchitect          Role = "ARCHITECT"
	RoleDBExpert           Role = "DB_EXPERT"
	RoleBackendProgrammer  Role = "BACKEND_PROGRAMMER"
	RoleFrontendProgrammer Role = "FRONTEND_PROGRAMMER"
	RoleWebsiteProgrammer  Role = "WEBSITE_PROGRAMMER"
	RoleQATester           Role = "QA_TESTER"
	RoleReviewer           Role = "REVIEWER"
	RoleArbitrator         Role = "ARBITRATOR"
	RoleDebugger           Role = "DEBUGGER"
	RoleAuditor            Role = "AUDITOR"
	RoleJournalist         Role = "JOURNALIST"
	RoleReleaseManager     Role = "RELEASE_MANAGER"
	RoleMarketingExpert    Role = "MARKETING_EXPERT"
	RoleSocialExpert       Role = "SOCIAL_EXPERT"
	RoleUIUXSpecialist     Role = "UI_UX_SPECIALIST"
)

// AllRoles returns every known role.
func AllRoles() []Role {
	return []Role{
		RoleDispatcher,
		RoleArchitect,
		RoleDBExpert,
		RoleBackendProgrammer,
		RoleFrontendProgrammer,
		RoleWebsiteProgrammer,
		RoleQATester,
		RoleReviewer,
		RoleArbitrator,
		RoleDebugger,
		RoleAuditor,
		RoleJournalist,
		RoleReleaseManager,
		RoleMarketingExpert,
		RoleSocialExpert,
		RoleUIUXSpecialist,
	}
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	for _, known := range AllRoles() {
		if r == known {
			return true
		}
	}
	return false
}
