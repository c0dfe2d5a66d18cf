package snapshot

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// skipDirs are directories the walk never descends into.
var skipDirs = map[string]bool{
	"node_modules": true,
	".git":         true,
	"vendor":       true,
	"dist":         true,
	"build":        true,
	".next":        true,
	"__pycache__":  true,
	".venv":        true,
	"venv":         true,
	"docs":         true,
	".popeye":      true,
}

// knownConfigFiles are well-known project configuration filenames.
var knownConfigFiles = map[string]bool{
	"package.json":       true,
	"tsconfig.json":      true,
	"pyproject.toml":     true,
	"setup.py":           true,
	"requirements.txt":   true,
	"go.mod":             true,
	"Cargo.toml":         true,
	"Makefile":           true,
	"Dockerfile":         true,
	"docker-compose.yml": true,
	"vite.config.ts":     true,
	"vite.config.js":     true,
	"next.config.js":     true,
	"next.config.mjs":    true,
	"webpack.config.js":  true,
	"jest.config.js":     true,
	"pytest.ini":         true,
	"tox.ini":            true,
	"alembic.ini":        true,
	"schema.prisma":      true,
	".eslintrc.json":     true,
	"eslint.config.js":   true,
	"ruff.toml":          true,
}

// languageExts maps file extensions to language names.
var languageExts = map[string]string{
	".ts":  "typescript",
	".tsx": "typescript",
	".js":  "javascript",
	".jsx": "javascript",
	".py":  "python",
	".go":  "go",
	".rs":  "rust",
	".rb":  "ruby",
	".java": "java",
}

// countLineExts are extensions whose lines count toward total_lines.
var countLineExts = map[string]bool{
	".ts": true, ".tsx": true, ".js": true, ".jsx": true,
	".py": true, ".go": true, ".rs": true, ".rb": true, ".java": true,
}

// portPattern matches common listen-port declarations in source.
var portPattern = regexp.MustCompile(`(?i)(listen|port)\s*[(=:]\s*["']?(\d{4,5})`)

// Generate walks projectDir and builds a RepoSnapshot: config files,
// languages, package manager, scripts, test framework, build tool, env
// files, migrations, ports and entrypoints, file and line totals.
func Generate(projectDir string) (*RepoSnapshot, error) {
	snap := &RepoSnapshot{
		SnapshotID:       uuid.NewString(),
		Timestamp:        time.Now().UTC().Format(time.RFC3339),
		ConfigFiles:      []string{},
		Scripts:          map[string]string{},
		EnvFiles:         []string{},
		PortsEntrypoints: []string{},
	}

	languages := make(map[string]bool)
	var topDirs []string

	err := filepath.WalkDir(projectDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, relErr := filepath.Rel(projectDir, path)
		if relErr != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if skipDirs[d.Name()] || strings.HasPrefix(d.Name(), ".") && d.Name() != "." {
				return filepath.SkipDir
			}
			if !strings.Contains(rel, "/") {
				topDirs = append(topDirs, rel)
			}
			return nil
		}

		name := d.Name()
		snap.TotalFiles++

		if knownConfigFiles[name] {
			snap.ConfigFiles = append(snap.ConfigFiles, rel)
		}
		if name == ".env" || name == ".env.example" || strings.HasPrefix(name, ".env.") {
			snap.EnvFiles = append(snap.EnvFiles, rel)
		}

		ext := filepath.Ext(name)
		if lang, ok := languageExts[ext]; ok {
			languages[lang] = true
		}
		if countLineExts[ext] {
			lines, ports := scanSource(path, rel)
			snap.TotalLines += lines
			snap.PortsEntrypoints = append(snap.PortsEntrypoints, ports...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", projectDir, err)
	}

	for lang := range languages {
		snap.LanguagesDetected = append(snap.LanguagesDetected, lang)
	}
	sort.Strings(snap.LanguagesDetected)
	sort.Strings(snap.ConfigFiles)
	sort.Strings(snap.EnvFiles)
	sort.Strings(topDirs)
	snap.TreeSummary = summarizeTree(topDirs, snap.TotalFiles)

	snap.PackageManager = detectPackageManager(projectDir)
	snap.Scripts = readManifestScripts(projectDir)
	snap.TestFramework = detectTestFramework(projectDir, snap)
	snap.BuildTool = detectBuildTool(snap)
	snap.MigrationsPresent = detectMigrations(projectDir)

	return snap, nil
}

// scanSource counts lines and collects port/entrypoint hits in one pass.
func scanSource(abs, rel string) (lines int, ports []string) {
	f, err := os.Open(abs)
	if err != nil {
		return 0, nil
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines++
		if m := portPattern.FindStringSubmatch(scanner.Text()); m != nil {
			ports = append(ports, fmt.Sprintf("%s (port %s)", rel, m[2]))
		}
	}
	return lines, ports
}

// summarizeTree renders a short top-level listing.
func summarizeTree(topDirs []string, totalFiles int) string {
	if len(topDirs) == 0 {
		return fmt.Sprintf("%d files, no subdirectories", totalFiles)
	}
	return fmt.Sprintf("%d files under %s", totalFiles, strings.Join(topDirs, ", "))
}

// detectPackageManager picks the node package manager by lockfile presence.
func detectPackageManager(projectDir string) string {
	switch {
	case fileExists(projectDir, "pnpm-lock.yaml"):
		return "pnpm"
	case fileExists(projectDir, "yarn.lock"):
		return "yarn"
	case fileExists(projectDir, "package-lock.json"), fileExists(projectDir, "package.json"):
		return "npm"
	case fileExists(projectDir, "poetry.lock"):
		return "poetry"
	case fileExists(projectDir, "requirements.txt"), fileExists(projectDir, "pyproject.toml"):
		return "pip"
	}
	return ""
}

// readManifestScripts extracts the scripts block from package.json.
func readManifestScripts(projectDir string) map[string]string {
	scripts := map[string]string{}
	data, err := os.ReadFile(filepath.Join(projectDir, "package.json"))
	if err != nil {
		return scripts
	}
	var manifest struct {
		Scripts map[string]string `json:"scripts"`
	}
	if err := json.Unmarshal(data, &manifest); err != nil {
		return scripts
	}
	if manifest.Scripts != nil {
		scripts = manifest.Scripts
	}
	return scripts
}

// detectTestFramework infers the test framework from configs and deps.
func detectTestFramework(projectDir string, snap *RepoSnapshot) string {
	switch {
	case fileExists(projectDir, "pytest.ini"), fileExists(projectDir, "conftest.py"):
		return "pytest"
	case fileExists(projectDir, "jest.config.js"), fileExists(projectDir, "jest.config.ts"):
		return "jest"
	case fileExists(projectDir, "vitest.config.ts"), fileExists(projectDir, "vitest.config.js"):
		return "vitest"
	}
	if cmd, ok := snap.Scripts["test"]; ok {
		for _, fw := range []string{"vitest", "jest", "mocha", "pytest", "playwright"} {
			if strings.Contains(cmd, fw) {
				return fw
			}
		}
	}
	if contains(snap.LanguagesDetected, "python") {
		return "pytest"
	}
	return ""
}

// detectBuildTool infers the build tool from configs.
func detectBuildTool(snap *RepoSnapshot) string {
	for _, cf := range snap.ConfigFiles {
		base := filepath.Base(cf)
		switch {
		case strings.HasPrefix(base, "vite.config"):
			return "vite"
		case strings.HasPrefix(base, "next.config"):
			return "next"
		case strings.HasPrefix(base, "webpack.config"):
			return "webpack"
		case base == "Makefile":
			return "make"
		}
	}
	if contains(snap.LanguagesDetected, "python") {
		return "python-build"
	}
	return ""
}

// detectMigrations reports whether a known migration setup is present.
func detectMigrations(projectDir string) bool {
	return fileExists(projectDir, "prisma/schema.prisma") ||
		fileExists(projectDir, "alembic.ini") ||
		dirExists(projectDir, "migrations") ||
		dirExists(projectDir, "alembic")
}

func fileExists(dir string, rel string) bool {
	info, err := os.Stat(filepath.Join(dir, filepath.FromSlash(rel)))
	return err == nil && !info.IsDir()
}

func dirExists(dir string, rel string) bool {
	info, err := os.Stat(filepath.Join(dir, filepath.FromSlash(rel)))
	return err == nil && info.IsDir()
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
