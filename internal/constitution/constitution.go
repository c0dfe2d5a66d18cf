// Package constitution implements the governance document integrity check:
// the constitution file is hashed at intake, stored as an immutable artifact,
// and verified against the recorded hash before every gate evaluation.
package constitution

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/randalmurphal/popeye/internal/artifact"
	"github.com/randalmurphal/popeye/internal/pipeline"
	"github.com/randalmurphal/popeye/internal/skills"
	"github.com/randalmurphal/popeye/internal/util"
)

// FileName is the constitution's filename under the skills directory.
const FileName = "POPEYE_CONSTITUTION.md"

// defaultConstitution seeds projects that have no constitution yet.
const defaultConstitution = `# Project Constitution

This document governs the pipeline. It is hashed at intake; any change to
this file after intake blocks every subsequent gate until restored.

## Principles

1. Every phase boundary is a gate. No phase advances with open blockers.
2. Artifacts are write-once. Corrections create new versions, never edits.
3. Plan-like phases require independent reviewer consensus before work begins.
4. Failures route through root cause analysis before any rework.
5. Findings with severity P0 or P1 block release until resolved.

## Roles

Each role acts only within its declared constraints and produces only its
declared outputs. Cross-role changes go through a change request.
`

// Path returns the constitution file location for a project.
func Path(projectDir string) string {
	return filepath.Join(projectDir, skills.SkillsDir, FileName)
}

// Hash returns the SHA-256 of the constitution file, or empty string when
// the file is missing.
func Hash(projectDir string) (string, error) {
	sum, err := artifact.HashFile(Path(projectDir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("hash constitution: %w", err)
	}
	return sum, nil
}

// CreateArtifact stores the constitution as an immutable INTAKE artifact and
// records its hash on the state. A missing file is seeded with the default
// document first.
func CreateArtifact(projectDir string, mgr *artifact.Manager, state *pipeline.State) (pipeline.ArtifactEntry, error) {
	path := Path(projectDir)
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return pipeline.ArtifactEntry{}, fmt.Errorf("read constitution: %w", err)
		}
		data = []byte(defaultConstitution)
		if err := util.AtomicWriteFile(path, data, 0644); err != nil {
			return pipeline.ArtifactEntry{}, fmt.Errorf("seed constitution: %w", err)
		}
	}

	entry, err := mgr.CreateAndStoreText(pipeline.TypeConstitution, string(data), pipeline.PhaseIntake, "")
	if err != nil {
		return pipeline.ArtifactEntry{}, err
	}
	state.ConstitutionHash = artifact.HashBytes(data)
	return entry, nil
}

// Status is the outcome of a verification.
type Status struct {
	Valid  bool
	Reason string
}

// Verify checks the constitution file against the hash recorded at intake.
// An empty recorded hash means intake has not run; verification is skipped.
func Verify(state *pipeline.State, projectDir string) Status {
	if state.ConstitutionHash == "" {
		return Status{Valid: true}
	}

	current, err := Hash(projectDir)
	if err != nil {
		return Status{Valid: false, Reason: fmt.Sprintf("constitution unreadable: %v", err)}
	}
	if current == "" {
		return Status{Valid: false, Reason: "constitution file deleted since intake"}
	}
	if current != state.ConstitutionHash {
		return Status{Valid: false, Reason: "constitution modified since intake; restore the original document"}
	}
	return Status{Valid: true}
}
