package artifact

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/popeye/internal/pipeline"
)

func newTestManager(t *testing.T) (*Manager, string) {
	t.Helper()
	dir := t.TempDir()
	return NewManager(dir), dir
}

func TestCreateAndStoreText(t *testing.T) {
	m, dir := newTestManager(t)

	entry, err := m.CreateAndStoreText(pipeline.TypeMasterPlan, "# Plan\n", pipeline.PhaseIntake, "")
	require.NoError(t, err)

	assert.Equal(t, pipeline.TypeMasterPlan, entry.Type)
	assert.Equal(t, pipeline.PhaseIntake, entry.Phase)
	assert.Equal(t, 1, entry.Version)
	assert.True(t, entry.Immutable)
	assert.Equal(t, pipeline.ContentMarkdown, entry.ContentType)
	assert.NotEmpty(t, entry.GroupID)
	assert.Empty(t, entry.PreviousID)

	data, err := os.ReadFile(filepath.Join(dir, entry.Path))
	require.NoError(t, err)
	assert.Equal(t, "# Plan\n", string(data))
	assert.Equal(t, HashBytes(data), entry.SHA256)
}

func TestFileNameFormat(t *testing.T) {
	m, _ := newTestManager(t)

	entry, err := m.CreateAndStoreJSON(pipeline.TypeConsensus, map[string]int{"votes": 3}, pipeline.PhaseConsensusMasterPlan, "")
	require.NoError(t, err)

	name := filepath.Base(entry.Path)
	assert.True(t, ValidFileName(name), "filename %q should match the canonical format", name)
	assert.Equal(t, "consensus", filepath.Base(filepath.Dir(entry.Path)))
}

func TestGroupVersionChain(t *testing.T) {
	m, _ := newTestManager(t)

	v1, err := m.CreateAndStoreText(pipeline.TypeArchitecture, "v1", pipeline.PhaseArchitecture, "")
	require.NoError(t, err)

	v2, err := m.CreateAndStoreText(pipeline.TypeArchitecture, "v2", pipeline.PhaseArchitecture, v1.GroupID)
	require.NoError(t, err)

	v3, err := m.CreateAndStoreText(pipeline.TypeArchitecture, "v3", pipeline.PhaseArchitecture, v1.GroupID)
	require.NoError(t, err)

	assert.Equal(t, 1, v1.Version)
	assert.Equal(t, 2, v2.Version)
	assert.Equal(t, 3, v3.Version)
	assert.Equal(t, v1.ID, v2.PreviousID)
	assert.Equal(t, v2.ID, v3.PreviousID)
	assert.Equal(t, v1.GroupID, v3.GroupID)
}

func TestListArtifactsByType(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.CreateAndStoreText(pipeline.TypeMasterPlan, "plan", pipeline.PhaseIntake, "")
	require.NoError(t, err)
	_, err = m.CreateAndStoreText(pipeline.TypeArchitecture, "arch", pipeline.PhaseArchitecture, "")
	require.NoError(t, err)

	plans, err := m.ListArtifacts(pipeline.TypeMasterPlan)
	require.NoError(t, err)
	assert.Len(t, plans, 1)

	all, err := m.ListArtifacts("")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestListSkipsMalformedSidecars(t *testing.T) {
	m, dir := newTestManager(t)

	_, err := m.CreateAndStoreText(pipeline.TypeMasterPlan, "plan", pipeline.PhaseIntake, "")
	require.NoError(t, err)

	// Drop a corrupt sidecar into the metadata directory.
	corrupt := filepath.Join(dir, DocsDir, MetaDir, "bogus.json")
	require.NoError(t, os.WriteFile(corrupt, []byte("{not json"), 0644))

	entries, err := m.ListArtifacts("")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestListIgnoresOrphanPayloads(t *testing.T) {
	m, dir := newTestManager(t)
	require.NoError(t, m.EnsureDocsStructure())

	// A payload file without a sidecar must not appear in enumeration.
	orphan := filepath.Join(dir, DocsDir, "master-plan", "master_plan_deadbeef_v1_2026-01-01.md")
	require.NoError(t, os.WriteFile(orphan, []byte("orphan"), 0644))

	entries, err := m.ListArtifacts("")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestGetLatestArtifact(t *testing.T) {
	m, _ := newTestManager(t)

	latest, err := m.GetLatestArtifact(pipeline.TypeMasterPlan)
	require.NoError(t, err)
	assert.Nil(t, latest)

	first, err := m.CreateAndStoreText(pipeline.TypeMasterPlan, "first", pipeline.PhaseIntake, "")
	require.NoError(t, err)
	second, err := m.CreateAndStoreText(pipeline.TypeMasterPlan, "second", pipeline.PhaseIntake, first.GroupID)
	require.NoError(t, err)

	latest, err = m.GetLatestArtifact(pipeline.TypeMasterPlan)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, second.ID, latest.ID)
}

func TestVerifyArtifact(t *testing.T) {
	m, dir := newTestManager(t)

	entry, err := m.CreateAndStoreText(pipeline.TypeReleaseNotes, "notes", pipeline.PhaseDone, "")
	require.NoError(t, err)
	assert.True(t, m.VerifyArtifact(entry))

	// Tampering with the payload must fail verification.
	require.NoError(t, os.WriteFile(filepath.Join(dir, entry.Path), []byte("tampered"), 0644))
	assert.False(t, m.VerifyArtifact(entry))

	// A missing file fails too.
	require.NoError(t, os.Remove(filepath.Join(dir, entry.Path)))
	assert.False(t, m.VerifyArtifact(entry))
}

func TestToArtifactRef(t *testing.T) {
	m, _ := newTestManager(t)

	entry, err := m.CreateAndStoreText(pipeline.TypeMasterPlan, "plan", pipeline.PhaseIntake, "")
	require.NoError(t, err)

	ref := ToArtifactRef(entry)
	assert.Equal(t, entry.ID, ref.ArtifactID)
	assert.Equal(t, entry.Path, ref.Path)
	assert.Equal(t, entry.SHA256, ref.SHA256)
	assert.Equal(t, entry.Version, ref.Version)
	assert.Equal(t, entry.Type, ref.Type)
}

func TestUpdateIndex(t *testing.T) {
	m, dir := newTestManager(t)

	entry, err := m.CreateAndStoreText(pipeline.TypeMasterPlan, "plan", pipeline.PhaseIntake, "")
	require.NoError(t, err)

	require.NoError(t, m.UpdateIndex([]pipeline.ArtifactEntry{entry}))

	data, err := os.ReadFile(filepath.Join(dir, DocsDir, IndexFile))
	require.NoError(t, err)
	assert.Contains(t, string(data), "master_plan")
	assert.Contains(t, string(data), entry.Path)
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "a1b2c3d4", ShortID("a1b2c3d4-0000-0000-0000-000000000000"))
}
