// Package errors provides structured error types for popeye.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Code represents a unique error code.
type Code string

// Error codes for the pipeline core.
const (
	// Check runner errors
	CodeCommandRejected Code = "COMMAND_REJECTED"
	CodeCommandFailed   Code = "COMMAND_FAILED"

	// Artifact store errors
	CodeArtifactIntegrity Code = "ARTIFACT_INTEGRITY"
	CodeArtifactStore     Code = "ARTIFACT_STORE"

	// State errors
	CodeSchemaViolation Code = "SCHEMA_VIOLATION"
	CodeStatePersist    Code = "STATE_PERSIST"

	// Consensus errors
	CodeReviewerFailure Code = "REVIEWER_FAILURE"
	CodeNoReviewers     Code = "NO_REVIEWERS"

	// Governance errors
	CodeConstitutionDrift Code = "CONSTITUTION_DRIFT"

	// Orchestration errors
	CodeHandlerFailed Code = "HANDLER_FAILED"
	CodeUnknownPhase  Code = "UNKNOWN_PHASE"
)

// PipelineError is the structured error type for popeye.
type PipelineError struct {
	Code  Code   `json:"code"`
	What  string `json:"what"`
	Why   string `json:"why,omitempty"`
	Fix   string `json:"fix,omitempty"`
	Cause error  `json:"-"`
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	var b strings.Builder
	b.WriteString(e.What)
	if e.Why != "" {
		b.WriteString(": ")
		b.WriteString(e.Why)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a PipelineError with the same code.
func (e *PipelineError) Is(target error) bool {
	t, ok := target.(*PipelineError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// UserMessage returns a user-friendly message for CLI output.
func (e *PipelineError) UserMessage() string {
	var b strings.Builder
	b.WriteString("Error: ")
	b.WriteString(e.What)
	if e.Why != "" {
		b.WriteString("\n\nWhy: ")
		b.WriteString(e.Why)
	}
	if e.Fix != "" {
		b.WriteString("\n\nFix: ")
		b.WriteString(e.Fix)
	}
	return b.String()
}

// WithCause returns a copy of the error with the given cause.
func (e *PipelineError) WithCause(err error) *PipelineError {
	return &PipelineError{
		Code:  e.Code,
		What:  e.What,
		Why:   e.Why,
		Fix:   e.Fix,
		Cause: err,
	}
}

// --- Error constructors ---

// ErrCommandRejected returns an error for a command refused by the sanitizer.
func ErrCommandRejected(command, pattern string) *PipelineError {
	return &PipelineError{
		Code: CodeCommandRejected,
		What: "command rejected by sanitizer",
		Why:  fmt.Sprintf("%q matched deny pattern %q", command, pattern),
		Fix:  "Override the resolved command in .popeye/config.yaml with a safe invocation",
	}
}

// ErrCommandFailed returns an error for a non-zero exit or timeout.
func ErrCommandFailed(checkType string, exitCode int) *PipelineError {
	return &PipelineError{
		Code: CodeCommandFailed,
		What: fmt.Sprintf("%s check failed", checkType),
		Why:  fmt.Sprintf("command exited with code %d", exitCode),
		Fix:  "Inspect the stored check artifact for captured output",
	}
}

// ErrArtifactIntegrity returns an error for a hash mismatch or missing file.
func ErrArtifactIntegrity(id, path string) *PipelineError {
	return &PipelineError{
		Code: CodeArtifactIntegrity,
		What: fmt.Sprintf("artifact %s failed integrity verification", id),
		Why:  fmt.Sprintf("the file at %s is missing or no longer matches its recorded sha256", path),
		Fix:  "Artifacts are write-once; restore the file from version control or re-run the producing phase",
	}
}

// ErrSchemaViolation returns an error for a persisted document that fails
// its shape check.
func ErrSchemaViolation(what string, cause error) *PipelineError {
	return &PipelineError{
		Code:  CodeSchemaViolation,
		What:  fmt.Sprintf("%s failed schema validation", what),
		Why:   "The persisted document does not match the expected shape",
		Fix:   "Remove the corrupt document to let popeye initialize a fresh one",
		Cause: cause,
	}
}

// ErrReviewerFailure returns an error for a reviewer that produced no vote.
func ErrReviewerFailure(reviewerID string, cause error) *PipelineError {
	return &PipelineError{
		Code:  CodeReviewerFailure,
		What:  fmt.Sprintf("reviewer %s produced no usable vote", reviewerID),
		Why:   "The reviewer call failed or returned malformed JSON",
		Fix:   "The vote is recorded as a synthetic REJECT; check provider credentials and model availability",
		Cause: cause,
	}
}

// ErrConstitutionDrift returns an error for a tampered governance document.
func ErrConstitutionDrift(reason string) *PipelineError {
	return &PipelineError{
		Code: CodeConstitutionDrift,
		What: "constitution integrity check failed",
		Why:  reason,
		Fix:  "Restore skills/POPEYE_CONSTITUTION.md to the bytes captured at INTAKE, or restart the pipeline",
	}
}

// ErrHandlerFailed wraps an unexpected phase-handler failure.
func ErrHandlerFailed(phase string, cause error) *PipelineError {
	return &PipelineError{
		Code:  CodeHandlerFailed,
		What:  fmt.Sprintf("phase %s handler failed", phase),
		Cause: cause,
	}
}

// ErrNoReviewers returns an error when consensus runs without reviewers.
func ErrNoReviewers() *PipelineError {
	return &PipelineError{
		Code: CodeNoReviewers,
		What: "no reviewers configured for consensus",
		Fix:  "Add reviewer entries under 'reviewers' in .popeye/config.yaml",
	}
}

// AsPipelineError attempts to convert an error to a PipelineError.
// Returns nil if the error is not one.
func AsPipelineError(err error) *PipelineError {
	var pe *PipelineError
	if stderrors.As(err, &pe) {
		return pe
	}
	return nil
}

// Wrap wraps a generic error into a PipelineError with unknown code.
func Wrap(err error, what string) *PipelineError {
	return &PipelineError{
		Code:  Code("UNKNOWN"),
		What:  what,
		Cause: err,
	}
}
