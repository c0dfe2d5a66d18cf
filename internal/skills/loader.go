package skills

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/randalmurphal/popeye/internal/pipeline"
)

// SkillsDir is the project-relative directory holding the constitution and
// per-role override files.
const SkillsDir = "skills"

// preamble is the optional key-value header of an override file, delimited
// by --- lines at the top.
type preamble struct {
	Version         string   `yaml:"version"`
	RequiredOutputs []string `yaml:"required_outputs"`
	Constraints     []string `yaml:"constraints"`
}

// Loader resolves skill definitions: built-in defaults merged with override
// files named skills/{ROLE}.md. Loaded skills are cached by role.
type Loader struct {
	projectDir string

	mu    sync.Mutex
	cache map[pipeline.Role]Definition
}

// NewLoader creates a skill loader for projectDir.
func NewLoader(projectDir string) *Loader {
	return &Loader{
		projectDir: projectDir,
		cache:      make(map[pipeline.Role]Definition),
	}
}

// Load returns the effective definition for a role: the built-in default
// with any override file applied field-by-field, override wins.
func (l *Loader) Load(role pipeline.Role) (Definition, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if def, ok := l.cache[role]; ok {
		return def, nil
	}

	def, ok := DefaultDefinition(role)
	if !ok {
		return Definition{}, fmt.Errorf("unknown role %s", role)
	}

	path := filepath.Join(l.projectDir, SkillsDir, string(role)+".md")
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return Definition{}, fmt.Errorf("read skill override %s: %w", path, err)
		}
		l.cache[role] = def
		return def, nil
	}

	override, err := parseOverride(string(data))
	if err != nil {
		return Definition{}, fmt.Errorf("parse skill override %s: %w", path, err)
	}
	def = merge(def, override)
	l.cache[role] = def
	return def, nil
}

// ClearCache empties the loader cache.
func (l *Loader) ClearCache() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cache = make(map[pipeline.Role]Definition)
}

// parseOverride splits an override file into its optional preamble and body.
// Without a preamble, the whole file is the system prompt.
func parseOverride(content string) (Definition, error) {
	var def Definition

	body := content
	if strings.HasPrefix(content, "---") {
		rest := strings.TrimPrefix(content, "---")
		if idx := strings.Index(rest, "\n---"); idx >= 0 {
			var p preamble
			if err := yaml.Unmarshal([]byte(rest[:idx]), &p); err != nil {
				return Definition{}, fmt.Errorf("parse preamble: %w", err)
			}
			def.Version = p.Version
			def.RequiredOutputs = p.RequiredOutputs
			def.Constraints = p.Constraints

			body = rest[idx+len("\n---"):]
			body = strings.TrimPrefix(body, "\n")
		}
	}

	def.SystemPrompt = strings.TrimSpace(body)
	return def, nil
}

// merge applies override onto base, field by field; non-zero override
// fields win.
func merge(base, override Definition) Definition {
	out := base
	if override.Version != "" {
		out.Version = override.Version
	}
	if override.SystemPrompt != "" {
		out.SystemPrompt = override.SystemPrompt
	}
	if len(override.RequiredOutputs) > 0 {
		out.RequiredOutputs = override.RequiredOutputs
	}
	if len(override.Constraints) > 0 {
		out.Constraints = override.Constraints
	}
	if len(override.DependsOn) > 0 {
		out.DependsOn = override.DependsOn
	}
	return out
}
