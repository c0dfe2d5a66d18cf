// Package snapshot builds structured descriptions of a project working tree
// and derives canonical build/test/lint commands from them.
package snapshot

// RepoSnapshot is a point-in-time structured description of the project tree.
// It drives command resolution and drift detection between phases.
type RepoSnapshot struct {
	SnapshotID        string            `json:"snapshot_id"`
	Timestamp         string            `json:"timestamp"`
	TreeSummary       string            `json:"tree_summary"`
	ConfigFiles       []string          `json:"config_files"`
	LanguagesDetected []string          `json:"languages_detected"`
	PackageManager    string            `json:"package_manager,omitempty"`
	Scripts           map[string]string `json:"scripts"`
	TestFramework     string            `json:"test_framework,omitempty"`
	BuildTool         string            `json:"build_tool,omitempty"`
	EnvFiles          []string          `json:"env_files"`
	MigrationsPresent bool              `json:"migrations_present"`
	PortsEntrypoints  []string          `json:"ports_entrypoints"`
	TotalFiles        int               `json:"total_files"`
	TotalLines        int               `json:"total_lines"`
}

// ResolvedCommands holds the canonical commands derived from a snapshot.
// Empty fields mean the project has no such step.
type ResolvedCommands struct {
	Build        string `json:"build,omitempty"`
	Test         string `json:"test,omitempty"`
	Lint         string `json:"lint,omitempty"`
	Typecheck    string `json:"typecheck,omitempty"`
	Migration    string `json:"migration,omitempty"`
	Start        string `json:"start,omitempty"`
	ResolvedFrom string `json:"resolved_from,omitempty"` // manifest that drove the choice
}

// Get returns the command for a check-type name, empty when unknown.
func (c ResolvedCommands) Get(name string) string {
	switch name {
	case "build":
		return c.Build
	case "test":
		return c.Test
	case "lint":
		return c.Lint
	case "typecheck":
		return c.Typecheck
	case "migration":
		return c.Migration
	case "start":
		return c.Start
	}
	return ""
}
