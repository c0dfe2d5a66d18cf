package snapshot

import (
	"fmt"
	"strings"
)

// Overrides replace derived commands verbatim, keyed by check-type name
// (build, test, lint, typecheck, migration, start).
type Overrides map[string]string

// Resolve derives canonical commands from a snapshot. Node projects front
// script names with the detected package manager; python projects use the
// pytest/ruff/mypy toolchain; mixed projects prefer node for frontend checks
// and python for the backend test step.
func Resolve(snap *RepoSnapshot, overrides Overrides) *ResolvedCommands {
	cmds := &ResolvedCommands{}

	hasNode := snap.PackageManager == "npm" || snap.PackageManager == "pnpm" || snap.PackageManager == "yarn"
	hasPython := contains(snap.LanguagesDetected, "python")
	hasTypescript := contains(snap.LanguagesDetected, "typescript")

	switch {
	case hasNode:
		resolveNode(snap, cmds, hasTypescript)
		cmds.ResolvedFrom = "package.json"
		if hasPython {
			// Mixed tree: the backend test step comes from python.
			cmds.Test = "pytest tests/"
			cmds.ResolvedFrom = "package.json+pyproject"
		}
	case hasPython:
		cmds.Build = "python -m build"
		cmds.Test = "pytest tests/"
		cmds.Lint = "ruff check ."
		cmds.Typecheck = "mypy src/"
		cmds.ResolvedFrom = "pyproject"
	}

	cmds.Migration = resolveMigration(snap)

	for name, cmd := range overrides {
		if cmd == "" {
			continue
		}
		applyOverride(cmds, name, cmd)
	}
	return cmds
}

// resolveNode derives node commands from manifest script names.
func resolveNode(snap *RepoSnapshot, cmds *ResolvedCommands, hasTypescript bool) {
	run := func(script string) string {
		return fmt.Sprintf("%s run %s", snap.PackageManager, script)
	}

	for _, name := range []string{"build", "test", "lint", "typecheck", "start", "dev"} {
		if _, ok := snap.Scripts[name]; !ok {
			continue
		}
		switch name {
		case "build":
			cmds.Build = run(name)
		case "test":
			cmds.Test = run(name)
		case "lint":
			cmds.Lint = run(name)
		case "typecheck":
			cmds.Typecheck = run(name)
		case "start":
			cmds.Start = run(name)
		case "dev":
			if cmds.Start == "" {
				cmds.Start = run(name)
			}
		}
	}

	if cmds.Typecheck == "" && hasTypescript {
		cmds.Typecheck = "tsc --noEmit"
	}
}

// resolveMigration picks the migration command from the detected setup.
func resolveMigration(snap *RepoSnapshot) string {
	if !snap.MigrationsPresent {
		return ""
	}
	for _, cf := range snap.ConfigFiles {
		if strings.HasSuffix(cf, "schema.prisma") {
			return "prisma migrate deploy"
		}
		if strings.HasSuffix(cf, "alembic.ini") {
			return "alembic upgrade head"
		}
	}
	// Generic migrations directory with no recognized tool.
	return ""
}

// applyOverride replaces a single derived command.
func applyOverride(cmds *ResolvedCommands, name, cmd string) {
	switch name {
	case "build":
		cmds.Build = cmd
	case "test":
		cmds.Test = cmd
	case "lint":
		cmds.Lint = cmd
	case "typecheck":
		cmds.Typecheck = cmd
	case "migration":
		cmds.Migration = cmd
	case "start":
		cmds.Start = cmd
	}
}
