package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runValidateCommand(t *testing.T, format, dir string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{dir})
	err := cmd.Execute()
	return buf.String(), err
}

func TestValidateValidDefinitions(t *testing.T) {
	out, err := runValidateCommand(t, "text", filepath.Join("testdata", "defs"))
	require.NoError(t, err)
	assert.Contains(t, out, "✓ All definitions valid")
	assert.Contains(t, out, "3 endpoint(s)")
}

func TestValidateValidDefinitionsJSON(t *testing.T) {
	out, err := runValidateCommand(t, "json", filepath.Join("testdata", "defs"))
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestValidateNonExistentDirectory(t *testing.T) {
	out, err := runValidateCommand(t, "text", "/nonexistent/directory/path")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeNotFound)
	assert.Contains(t, out, "not found")
}

func TestValidateEmptyDirectory(t *testing.T) {
	out, err := runValidateCommand(t, "text", t.TempDir())
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeNoFiles)
	assert.Contains(t, out, "no CUE files found")
}

func TestValidateInvalidDefinition(t *testing.T) {
	tmpDir := t.TempDir()

	// Bad kind and an unrooted path: both rules fire
	bad := `
package defs

endpoint: badOne: {
	kind: "subscription"
	path: "posts"
}
`
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "bad.cue"), []byte(bad), 0644))

	out, err := runValidateCommand(t, "text", tmpDir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "validation failed")
	assert.Contains(t, out, "Validation failed")
	assert.Contains(t, out, "E102")
	assert.Contains(t, out, "E104")
}

func TestValidateDuplicateNamesAcrossFiles(t *testing.T) {
	tmpDir := t.TempDir()

	a := `
package defs

endpoint: getPost: {
	kind: "query"
	path: "/posts/{id}"
}
`
	// Same package, different file: CUE unifies the two getPost structs,
	// so a conflicting kind surfaces as a build error rather than a
	// duplicate definition.
	b := `
package defs

endpoint: getPost: {
	kind: "mutation"
	path: "/posts/{id}"
}
`
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "a.cue"), []byte(a), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "b.cue"), []byte(b), 0644))

	_, err := runValidateCommand(t, "text", tmpDir)
	require.Error(t, err)
}

func TestValidateInvalidDefinitionJSON(t *testing.T) {
	tmpDir := t.TempDir()

	bad := `
package defs

endpoint: badOne: {
	kind: "query"
	path: "/posts"
	staleAfter: "-5s"
}
`
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "bad.cue"), []byte(bad), 0644))

	out, err := runValidateCommand(t, "json", tmpDir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E105", resp.Error.Code)
}
