package skills

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/popeye/internal/pipeline"
)

func writeOverride(t *testing.T, dir string, role pipeline.Role, content string) {
	t.Helper()
	skillsDir := filepath.Join(dir, SkillsDir)
	require.NoError(t, os.MkdirAll(skillsDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(skillsDir, string(role)+".md"), []byte(content), 0644))
}

func TestLoadDefaults(t *testing.T) {
	l := NewLoader(t.TempDir())

	def, err := l.Load(pipeline.RoleDebugger)
	require.NoError(t, err)
	assert.Equal(t, pipeline.RoleDebugger, def.Role)
	assert.Contains(t, def.RequiredOutputs, "rca_report")
	assert.NotEmpty(t, def.SystemPrompt)
}

func TestEveryRoleHasDefault(t *testing.T) {
	l := NewLoader(t.TempDir())
	for _, role := range pipeline.AllRoles() {
		def, err := l.Load(role)
		require.NoError(t, err, "role %s", role)
		assert.Equal(t, role, def.Role)
		assert.NotEmpty(t, def.SystemPrompt, "role %s", role)
		assert.NotEmpty(t, def.RequiredOutputs, "role %s", role)
	}
}

func TestUnknownRole(t *testing.T) {
	l := NewLoader(t.TempDir())
	_, err := l.Load(pipeline.Role("INTERN"))
	assert.Error(t, err)
}

func TestOverrideWithPreamble(t *testing.T) {
	dir := t.TempDir()
	writeOverride(t, dir, pipeline.RoleAuditor, `---
version: "2.3"
required_outputs:
  - audit_report
  - change_request
constraints:
  - "Flag every use of eval"
---
Audit with extra attention to injection vectors.`)

	def, err := NewLoader(dir).Load(pipeline.RoleAuditor)
	require.NoError(t, err)

	assert.Equal(t, "2.3", def.Version)
	assert.Equal(t, []string{"audit_report", "change_request"}, def.RequiredOutputs)
	assert.Equal(t, []string{"Flag every use of eval"}, def.Constraints)
	assert.Equal(t, "Audit with extra attention to injection vectors.", def.SystemPrompt)
	// Untouched fields keep their defaults.
	assert.Equal(t, pipeline.RoleAuditor, def.Role)
}

func TestOverrideWithoutPreamble(t *testing.T) {
	dir := t.TempDir()
	writeOverride(t, dir, pipeline.RoleReviewer, "Review with a focus on API stability.\n")

	def, err := NewLoader(dir).Load(pipeline.RoleReviewer)
	require.NoError(t, err)

	assert.Equal(t, "Review with a focus on API stability.", def.SystemPrompt)
	// Default fields survive when the preamble is absent.
	base, _ := DefaultDefinition(pipeline.RoleReviewer)
	assert.Equal(t, base.Version, def.Version)
	assert.Equal(t, base.RequiredOutputs, def.RequiredOutputs)
}

func TestOverrideWithBadPreamble(t *testing.T) {
	dir := t.TempDir()
	writeOverride(t, dir, pipeline.RoleReviewer, "---\nversion: [broken\n---\nbody")

	_, err := NewLoader(dir).Load(pipeline.RoleReviewer)
	assert.Error(t, err)
}

func TestCache(t *testing.T) {
	dir := t.TempDir()
	l := NewLoader(dir)

	def1, err := l.Load(pipeline.RoleArchitect)
	require.NoError(t, err)

	// An override written after the first load is invisible until the cache
	// is cleared.
	writeOverride(t, dir, pipeline.RoleArchitect, "New architect prompt.")
	def2, err := l.Load(pipeline.RoleArchitect)
	require.NoError(t, err)
	assert.Equal(t, def1.SystemPrompt, def2.SystemPrompt)

	l.ClearCache()
	def3, err := l.Load(pipeline.RoleArchitect)
	require.NoError(t, err)
	assert.Equal(t, "New architect prompt.", def3.SystemPrompt)
}
