package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/randalmurphal/popeye/internal/snapshot"
	"github.com/randalmurphal/popeye/internal/util"
)

const (
	// StateDir is the per-project directory popeye keeps its state in.
	StateDir = ".popeye"
	// StateFileName is the filename of the persisted pipeline state.
	StateFileName = "pipeline.json"
	// DefaultMaxRecoveryIterations bounds the recovery loop before STUCK.
	DefaultMaxRecoveryIterations = 5
)

// State is the mutable, persisted pipeline state. It is mutated sequentially
// by the orchestrator and the current phase handler; no concurrent mutation
// is permitted outside the running handler.
type State struct {
	PipelinePhase         Phase                       `json:"pipelinePhase"`
	Artifacts             []ArtifactEntry             `json:"artifacts"`
	RecoveryCount         int                         `json:"recoveryCount"`
	MaxRecoveryIterations int                         `json:"maxRecoveryIterations"`
	GateResults           map[Phase]GateResult        `json:"gateResults"`
	GateChecks            map[Phase][]GateCheckResult `json:"gateChecks"`
	ActiveRoles           []Role                      `json:"activeRoles"`
	ConstitutionHash      string                      `json:"constitutionHash"`
	LatestRepoSnapshot    *snapshot.RepoSnapshot      `json:"latestRepoSnapshot,omitempty"`
	ResolvedCommands      *snapshot.ResolvedCommands  `json:"resolvedCommands,omitempty"`
	FailedPhase           Phase                       `json:"failedPhase,omitempty"`
	PendingChangeRequests []PendingChange             `json:"pendingChangeRequests"`
	SessionGuidance       string                      `json:"sessionGuidance,omitempty"`
}

// NewState returns a fresh state positioned at INTAKE.
func NewState() *State {
	return &State{
		PipelinePhase:         PhaseIntake,
		Artifacts:             []ArtifactEntry{},
		MaxRecoveryIterations: DefaultMaxRecoveryIterations,
		GateResults:           make(map[Phase]GateResult),
		GateChecks:            make(map[Phase][]GateCheckResult),
		PendingChangeRequests: []PendingChange{},
	}
}

// StatePath returns the state file location for a project directory.
func StatePath(projectDir string) string {
	return filepath.Join(projectDir, StateDir, StateFileName)
}

// LoadState reads and validates the persisted state for a project.
// A document that fails shape validation is refused; callers decide whether
// to initialize a fresh state instead.
func LoadState(projectDir string) (*State, error) {
	path := StatePath(projectDir)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("pipeline state not found at %s", path)
		}
		return nil, fmt.Errorf("read pipeline state: %w", err)
	}

	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse pipeline state: %w", err)
	}
	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline state: %w", err)
	}

	if s.GateResults == nil {
		s.GateResults = make(map[Phase]GateResult)
	}
	if s.GateChecks == nil {
		s.GateChecks = make(map[Phase][]GateCheckResult)
	}
	return &s, nil
}

// Save persists the state atomically (write tempfile + rename).
func (s *State) Save(projectDir string) error {
	if err := util.AtomicWriteJSON(StatePath(projectDir), s, 0644); err != nil {
		return fmt.Errorf("persist pipeline state: %w", err)
	}
	return nil
}

// validate checks the document shape. Unknown phases, invalid artifact
// entries, or a nonsensical recovery budget refuse the load.
func (s *State) validate() error {
	if !s.PipelinePhase.Valid() {
		return fmt.Errorf("unknown phase %q", s.PipelinePhase)
	}
	if s.MaxRecoveryIterations <= 0 {
		return fmt.Errorf("maxRecoveryIterations must be positive, got %d", s.MaxRecoveryIterations)
	}
	if s.FailedPhase != "" && !s.FailedPhase.Valid() {
		return fmt.Errorf("unknown failed phase %q", s.FailedPhase)
	}
	for i, a := range s.Artifacts {
		if a.ID == "" {
			return fmt.Errorf("artifact %d: missing id", i)
		}
		if !a.Type.Valid() {
			return fmt.Errorf("artifact %d: unknown type %q", i, a.Type)
		}
		if a.Version < 1 {
			return fmt.Errorf("artifact %d: version must be >= 1, got %d", i, a.Version)
		}
	}
	for _, cr := range s.PendingChangeRequests {
		if cr.CRID == "" {
			return fmt.Errorf("pending change request missing cr_id")
		}
	}
	return nil
}

// RecordArtifacts appends entries to the state's artifact list. Handlers call
// this for every artifact they create before returning.
func (s *State) RecordArtifacts(entries ...ArtifactEntry) {
	s.Artifacts = append(s.Artifacts, entries...)
}

// ArtifactsOfType returns the state's artifacts of the given type, in
// recording order.
func (s *State) ArtifactsOfType(t ArtifactType) []ArtifactEntry {
	var out []ArtifactEntry
	for _, a := range s.Artifacts {
		if a.Type == t {
			out = append(out, a)
		}
	}
	return out
}

// LatestArtifact returns the most recently recorded artifact of the given
// type, and whether one exists.
func (s *State) LatestArtifact(t ArtifactType) (ArtifactEntry, bool) {
	for i := len(s.Artifacts) - 1; i >= 0; i-- {
		if s.Artifacts[i].Type == t {
			return s.Artifacts[i], true
		}
	}
	return ArtifactEntry{}, false
}

// LatestArtifactInPhase returns the most recent artifact of the given type
// that was produced in the given phase.
func (s *State) LatestArtifactInPhase(t ArtifactType, p Phase) (ArtifactEntry, bool) {
	for i := len(s.Artifacts) - 1; i >= 0; i-- {
		if s.Artifacts[i].Type == t && s.Artifacts[i].Phase == p {
			return s.Artifacts[i], true
		}
	}
	return ArtifactEntry{}, false
}

// HasArtifactInPhase reports whether an artifact of type t produced in phase
// p exists.
func (s *State) HasArtifactInPhase(t ArtifactType, p Phase) bool {
	_, ok := s.LatestArtifactInPhase(t, p)
	return ok
}

// SetChecks replaces the recorded check results for a phase.
func (s *State) SetChecks(p Phase, results []GateCheckResult) {
	if s.GateChecks == nil {
		s.GateChecks = make(map[Phase][]GateCheckResult)
	}
	s.GateChecks[p] = results
}

// CheckResult returns the recorded result for a check type in a phase.
func (s *State) CheckResult(p Phase, ct CheckType) (GateCheckResult, bool) {
	for _, r := range s.GateChecks[p] {
		if r.CheckType == ct {
			return r, true
		}
	}
	return GateCheckResult{}, false
}

// FirstProposedChange returns the index of the first pending change request
// with status proposed, or -1.
func (s *State) FirstProposedChange() int {
	for i, cr := range s.PendingChangeRequests {
		if cr.Status == CRProposed {
			return i
		}
	}
	return -1
}
