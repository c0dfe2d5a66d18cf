// Package artifact implements the immutable, versioned, content-addressed
// artifact store. Payloads live under docs/ in fixed per-type subdirectories;
// one JSON metadata sidecar per artifact lives under docs/.artifacts/.
// Artifacts are write-once: replacement appends a new version to the same
// group chain, linked through previous_id.
package artifact

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/randalmurphal/popeye/internal/pipeline"
	"github.com/randalmurphal/popeye/internal/util"
)

// Manager stores and enumerates artifacts for a single project.
type Manager struct {
	projectDir string
	logger     *slog.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = l
	}
}

// NewManager creates an artifact manager rooted at projectDir.
func NewManager(projectDir string, opts ...ManagerOption) *Manager {
	m := &Manager{
		projectDir: projectDir,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// docsPath returns an absolute path under the docs tree.
func (m *Manager) docsPath(parts ...string) string {
	return filepath.Join(append([]string{m.projectDir, DocsDir}, parts...)...)
}

// metaPath returns the sidecar path for an artifact ID.
func (m *Manager) metaPath(id string) string {
	return m.docsPath(MetaDir, id+".json")
}

// EnsureDocsStructure creates the fixed docs/ subtree.
func (m *Manager) EnsureDocsStructure() error {
	dirs := map[string]bool{MetaDir: true}
	for _, sub := range typeSubdirs {
		dirs[sub] = true
	}
	for dir := range dirs {
		if err := os.MkdirAll(m.docsPath(dir), 0755); err != nil {
			return fmt.Errorf("create docs dir %s: %w", dir, err)
		}
	}
	return nil
}

// CreateAndStoreText stores a markdown artifact and returns its entry.
// groupID may be empty to start a fresh version chain.
func (m *Manager) CreateAndStoreText(t pipeline.ArtifactType, markdown string, phase pipeline.Phase, groupID string) (pipeline.ArtifactEntry, error) {
	return m.store(t, []byte(markdown), pipeline.ContentMarkdown, phase, groupID)
}

// CreateAndStoreJSON marshals v with indentation, stores it as a JSON
// artifact, and returns its entry.
func (m *Manager) CreateAndStoreJSON(t pipeline.ArtifactType, v any, phase pipeline.Phase, groupID string) (pipeline.ArtifactEntry, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return pipeline.ArtifactEntry{}, fmt.Errorf("marshal %s artifact: %w", t, err)
	}
	return m.store(t, data, pipeline.ContentJSON, phase, groupID)
}

// store writes the payload file first, then the metadata sidecar. The
// restart path tolerates orphan payload files: enumeration reads sidecars
// only, so a crash between the two writes leaves no visible partial state.
func (m *Manager) store(t pipeline.ArtifactType, data []byte, ct pipeline.ContentType, phase pipeline.Phase, groupID string) (pipeline.ArtifactEntry, error) {
	if err := m.EnsureDocsStructure(); err != nil {
		return pipeline.ArtifactEntry{}, err
	}

	entry := pipeline.ArtifactEntry{
		ID:          uuid.NewString(),
		Type:        t,
		Phase:       phase,
		Version:     1,
		SHA256:      HashBytes(data),
		Timestamp:   time.Now().UTC(),
		Immutable:   true,
		ContentType: ct,
		GroupID:     groupID,
	}

	if entry.GroupID == "" {
		entry.GroupID = uuid.NewString()
	} else {
		// Continue the group chain: version = 1 + max existing, previous_id
		// points at the latest entry in the group.
		prev, err := m.latestInGroup(entry.GroupID)
		if err != nil {
			return pipeline.ArtifactEntry{}, err
		}
		if prev != nil {
			entry.Version = prev.Version + 1
			entry.PreviousID = prev.ID
		}
	}

	name := FileName(t, entry.ID, entry.Version, entry.Timestamp, ct)
	entry.Path = relPath(t, name)

	abs := filepath.Join(m.projectDir, entry.Path)
	if err := os.WriteFile(abs, data, 0644); err != nil {
		return pipeline.ArtifactEntry{}, fmt.Errorf("write artifact %s: %w", entry.Path, err)
	}
	if err := util.AtomicWriteJSON(m.metaPath(entry.ID), entry, 0644); err != nil {
		return pipeline.ArtifactEntry{}, fmt.Errorf("write artifact metadata %s: %w", entry.ID, err)
	}

	m.logger.Debug("artifact stored",
		"type", t, "phase", phase, "version", entry.Version, "path", entry.Path)
	return entry, nil
}

// ListArtifacts enumerates stored artifacts by reading metadata sidecars,
// optionally filtered by type, sorted by timestamp ascending. Malformed
// sidecars are silently skipped.
func (m *Manager) ListArtifacts(t pipeline.ArtifactType) ([]pipeline.ArtifactEntry, error) {
	dir := m.docsPath(MetaDir)
	files, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read artifact metadata dir: %w", err)
	}

	var entries []pipeline.ArtifactEntry
	for _, f := range files {
		if f.IsDir() || filepath.Ext(f.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, f.Name()))
		if err != nil {
			continue
		}
		var e pipeline.ArtifactEntry
		if err := json.Unmarshal(data, &e); err != nil || e.ID == "" {
			continue
		}
		if t != "" && e.Type != t {
			continue
		}
		entries = append(entries, e)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Timestamp.Equal(entries[j].Timestamp) {
			return entries[i].Version < entries[j].Version
		}
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
	return entries, nil
}

// GetLatestArtifact returns the most recent artifact of the given type,
// or nil when none exists.
func (m *Manager) GetLatestArtifact(t pipeline.ArtifactType) (*pipeline.ArtifactEntry, error) {
	entries, err := m.ListArtifacts(t)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	latest := entries[len(entries)-1]
	return &latest, nil
}

// latestInGroup returns the highest-versioned entry in a group, or nil.
func (m *Manager) latestInGroup(groupID string) (*pipeline.ArtifactEntry, error) {
	entries, err := m.ListArtifacts("")
	if err != nil {
		return nil, err
	}
	var latest *pipeline.ArtifactEntry
	for i := range entries {
		e := entries[i]
		if e.GroupID != groupID {
			continue
		}
		if latest == nil || e.Version > latest.Version {
			latest = &e
		}
	}
	return latest, nil
}

// VerifyArtifact re-reads the payload file and compares its hash against the
// entry's recorded sha256.
func (m *Manager) VerifyArtifact(entry pipeline.ArtifactEntry) bool {
	sum, err := HashFile(filepath.Join(m.projectDir, entry.Path))
	if err != nil {
		return false
	}
	return sum == entry.SHA256
}

// ReadArtifact returns the payload bytes for an entry.
func (m *Manager) ReadArtifact(entry pipeline.ArtifactEntry) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(m.projectDir, entry.Path))
	if err != nil {
		return nil, fmt.Errorf("read artifact %s: %w", entry.Path, err)
	}
	return data, nil
}

// ToArtifactRef builds the weak reference carried inside packets.
func ToArtifactRef(entry pipeline.ArtifactEntry) pipeline.ArtifactRef {
	return pipeline.ArtifactRef{
		ArtifactID: entry.ID,
		Path:       entry.Path,
		SHA256:     entry.SHA256,
		Version:    entry.Version,
		Type:       entry.Type,
	}
}
