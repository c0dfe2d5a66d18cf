package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "popeye")
}

func TestStatusWithoutState(t *testing.T) {
	_, err := execute(t, "status", "-C", t.TempDir())
	assert.Error(t, err)
}

func TestVerifyEmptyProject(t *testing.T) {
	out, err := execute(t, "verify", "-C", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "0 verified, 0 failed")
}
