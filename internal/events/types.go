// Package events provides in-process pub/sub for pipeline progress.
// The orchestrator publishes phase transitions, gate results, artifact
// creation, and recovery activity; CLI and callers subscribe.
package events

import (
	"time"

	"github.com/randalmurphal/popeye/internal/pipeline"
)

// Type identifies an event kind.
type Type string

const (
	TypePhaseStarted    Type = "phase_started"
	TypePhaseCompleted  Type = "phase_completed"
	TypeGateEvaluated   Type = "gate_evaluated"
	TypeArtifactStored  Type = "artifact_stored"
	TypeRecoveryStarted Type = "recovery_started"
	TypeRewind          Type = "rewind"
	TypeChangeRequest   Type = "change_request"
	TypePipelineDone    Type = "pipeline_done"
	TypePipelineStuck   Type = "pipeline_stuck"
)

// Event is one pipeline progress notification.
type Event struct {
	Type      Type           `json:"type"`
	Phase     pipeline.Phase `json:"phase"`
	Message   string         `json:"message,omitempty"`
	Pass      *bool          `json:"pass,omitempty"`
	Artifact  string         `json:"artifact,omitempty"` // artifact ID when relevant
	Timestamp time.Time      `json:"timestamp"`
}

// New creates an event stamped now.
func New(t Type, phase pipeline.Phase, message string) Event {
	return Event{
		Type:      t,
		Phase:     phase,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
}
