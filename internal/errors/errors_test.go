package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPipelineErrorMessage(t *testing.T) {
	err := ErrCommandRejected("sudo rm -rf /", `\bsudo\b`)
	assert.Contains(t, err.Error(), "rejected")
	assert.Contains(t, err.Error(), "sudo rm -rf /")
}

func TestPipelineErrorUnwrap(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := ErrReviewerFailure("rev-1", cause)

	assert.Equal(t, cause, stderrors.Unwrap(err))
	assert.ErrorIs(t, err, cause)
}

func TestPipelineErrorIsMatchesByCode(t *testing.T) {
	a := ErrConstitutionDrift("hash mismatch")
	b := ErrConstitutionDrift("file missing")

	assert.ErrorIs(t, a, b)
	assert.NotErrorIs(t, a, ErrNoReviewers())
}

func TestAsPipelineError(t *testing.T) {
	inner := ErrSchemaViolation("pipeline state", fmt.Errorf("bad phase"))
	wrapped := fmt.Errorf("load: %w", inner)

	got := AsPipelineError(wrapped)
	assert.NotNil(t, got)
	assert.Equal(t, CodeSchemaViolation, got.Code)

	assert.Nil(t, AsPipelineError(fmt.Errorf("plain")))
}

func TestUserMessageIncludesFix(t *testing.T) {
	err := ErrNoReviewers()
	msg := err.UserMessage()
	assert.Contains(t, msg, "Fix:")
	assert.Contains(t, msg, "reviewers")
}
