package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExitErrorCodes(t *testing.T) {
	failure := NewExitError(ExitFailure, "scenarios failed")
	assert.Equal(t, ExitFailure, GetExitCode(failure))
	assert.Equal(t, "scenarios failed", failure.Error())

	cmdErr := WrapExitError(ExitCommandError, "open journal", errors.New("no such file"))
	assert.Equal(t, ExitCommandError, GetExitCode(cmdErr))
	assert.Equal(t, "open journal: no such file", cmdErr.Error())
	assert.EqualError(t, errors.Unwrap(cmdErr), "no such file")
}

func TestExitErrorWrappedExtraction(t *testing.T) {
	inner := NewExitError(ExitCommandError, "bad path")
	wrapped := fmt.Errorf("running command: %w", inner)
	assert.Equal(t, ExitCommandError, GetExitCode(wrapped))

	// Non-ExitError defaults to failure
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
}

func TestFormatterSuccessJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, f.Success(map[string]string{"key": "getPost({})"}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Nil(t, resp.Error)
}

func TestFormatterErrorText(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "text", Writer: buf, Verbose: true}

	require.NoError(t, f.Error("E005", "journal not found", "details here"))

	out := buf.String()
	assert.Contains(t, out, "Error [E005]: journal not found")
	assert.Contains(t, out, "Details: details here")
}

func TestFormatterErrorJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, f.Error("E001", "boom", nil))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E001", resp.Error.Code)
	assert.Equal(t, "boom", resp.Error.Message)
}

func TestVerboseLogRouting(t *testing.T) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}

	// Verbose off: nothing is written
	f := &OutputFormatter{Format: "text", Writer: out, ErrWriter: errOut}
	f.VerboseLog("hidden %d", 1)
	assert.Empty(t, out.String())
	assert.Empty(t, errOut.String())

	// Verbose on: diagnostics go to ErrWriter, not Writer
	f.Verbose = true
	f.VerboseLog("visible %d", 2)
	assert.Empty(t, out.String())
	assert.Equal(t, "visible 2\n", errOut.String())
}
