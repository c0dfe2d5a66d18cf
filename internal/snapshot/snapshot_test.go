package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	abs := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0755))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0644))
}

func nodeProject(t *testing.T) string {
	dir := t.TempDir()
	writeFile(t, dir, "package.json", `{
  "name": "web",
  "scripts": {
    "build": "vite build",
    "test": "vitest run",
    "lint": "eslint .",
    "dev": "vite"
  }
}`)
	writeFile(t, dir, "package-lock.json", "{}")
	writeFile(t, dir, "tsconfig.json", "{}")
	writeFile(t, dir, "vite.config.ts", "export default {}\n")
	writeFile(t, dir, "src/main.ts", "const app = listen(3000)\nexport {}\n")
	writeFile(t, dir, ".env.example", "DB_URL=\n")
	return dir
}

func pythonProject(t *testing.T) string {
	dir := t.TempDir()
	writeFile(t, dir, "pyproject.toml", "[project]\nname = \"svc\"\n")
	writeFile(t, dir, "alembic.ini", "[alembic]\n")
	writeFile(t, dir, "src/app.py", "print('hi')\n")
	writeFile(t, dir, "alembic/env.py", "pass\n")
	return dir
}

func TestGenerateNodeProject(t *testing.T) {
	dir := nodeProject(t)

	snap, err := Generate(dir)
	require.NoError(t, err)

	assert.NotEmpty(t, snap.SnapshotID)
	assert.Contains(t, snap.ConfigFiles, "package.json")
	assert.Contains(t, snap.ConfigFiles, "tsconfig.json")
	assert.Contains(t, snap.LanguagesDetected, "typescript")
	assert.Equal(t, "npm", snap.PackageManager)
	assert.Equal(t, "vite build", snap.Scripts["build"])
	assert.Equal(t, "vitest", snap.TestFramework)
	assert.Equal(t, "vite", snap.BuildTool)
	assert.Contains(t, snap.EnvFiles, ".env.example")
	assert.False(t, snap.MigrationsPresent)
	assert.Greater(t, snap.TotalFiles, 0)
	assert.Greater(t, snap.TotalLines, 0)
	require.Len(t, snap.PortsEntrypoints, 1)
	assert.Contains(t, snap.PortsEntrypoints[0], "3000")
}

func TestGeneratePythonProject(t *testing.T) {
	dir := pythonProject(t)

	snap, err := Generate(dir)
	require.NoError(t, err)

	assert.Contains(t, snap.LanguagesDetected, "python")
	assert.Equal(t, "pip", snap.PackageManager)
	assert.Equal(t, "pytest", snap.TestFramework)
	assert.True(t, snap.MigrationsPresent)
}

func TestGenerateSkipsVendorTrees(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "src/main.ts", "export {}\n")
	writeFile(t, dir, "node_modules/dep/index.js", "module.exports = {}\n")
	writeFile(t, dir, "docs/notes.md", "notes\n")

	snap, err := Generate(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.TotalFiles)
}

func TestResolveNodeCommands(t *testing.T) {
	snap, err := Generate(nodeProject(t))
	require.NoError(t, err)

	cmds := Resolve(snap, nil)
	assert.Equal(t, "npm run build", cmds.Build)
	assert.Equal(t, "npm run test", cmds.Test)
	assert.Equal(t, "npm run lint", cmds.Lint)
	// No typecheck script, but TypeScript detected.
	assert.Equal(t, "tsc --noEmit", cmds.Typecheck)
	// dev script backs the start command when start is absent.
	assert.Equal(t, "npm run dev", cmds.Start)
	assert.Equal(t, "package.json", cmds.ResolvedFrom)
}

func TestResolvePythonCommands(t *testing.T) {
	snap, err := Generate(pythonProject(t))
	require.NoError(t, err)

	cmds := Resolve(snap, nil)
	assert.Equal(t, "python -m build", cmds.Build)
	assert.Equal(t, "pytest tests/", cmds.Test)
	assert.Equal(t, "ruff check .", cmds.Lint)
	assert.Equal(t, "mypy src/", cmds.Typecheck)
	assert.Equal(t, "alembic upgrade head", cmds.Migration)
}

func TestResolveMixedProject(t *testing.T) {
	dir := nodeProject(t)
	writeFile(t, dir, "backend/app.py", "print('hi')\n")

	snap, err := Generate(dir)
	require.NoError(t, err)
	cmds := Resolve(snap, nil)

	// Frontend checks come from node, the test step from python.
	assert.Equal(t, "npm run build", cmds.Build)
	assert.Equal(t, "pytest tests/", cmds.Test)
}

func TestResolvePrismaMigration(t *testing.T) {
	dir := nodeProject(t)
	writeFile(t, dir, "prisma/schema.prisma", "datasource db {}\n")

	snap, err := Generate(dir)
	require.NoError(t, err)
	cmds := Resolve(snap, nil)
	assert.Equal(t, "prisma migrate deploy", cmds.Migration)
}

func TestResolveOverrides(t *testing.T) {
	snap, err := Generate(nodeProject(t))
	require.NoError(t, err)

	cmds := Resolve(snap, Overrides{
		"build": "make build",
		"test":  "make check",
	})
	assert.Equal(t, "make build", cmds.Build)
	assert.Equal(t, "make check", cmds.Test)
	assert.Equal(t, "npm run lint", cmds.Lint)
}

func TestResolvedCommandsGet(t *testing.T) {
	cmds := ResolvedCommands{Build: "b", Test: "t", Migration: "m"}
	assert.Equal(t, "b", cmds.Get("build"))
	assert.Equal(t, "t", cmds.Get("test"))
	assert.Equal(t, "m", cmds.Get("migration"))
	assert.Empty(t, cmds.Get("unknown"))
}
