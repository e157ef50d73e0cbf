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

func runTestCommand(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewTestCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestTestRunsScenariosWithGolden(t *testing.T) {
	out, err := runTestCommand(t, "text", filepath.Join("testdata", "scenarios"))
	require.NoError(t, err)

	assert.Contains(t, out, "✓ dedup_shared_dispatch")
	assert.Contains(t, out, "Test Summary: 1 passed, 0 failed, 1 total")
	assert.Contains(t, out, "✓ All scenarios passed")
}

func TestTestJSONOutput(t *testing.T) {
	out, err := runTestCommand(t, "json", filepath.Join("testdata", "scenarios"))
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)

	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(1), data["passed"])
	assert.Equal(t, float64(0), data["failed"])
}

func TestTestUpdateThenCompare(t *testing.T) {
	// Copy the scenario into a fresh directory without a golden file,
	// regenerate, then verify the regenerated golden passes comparison.
	tmpDir := t.TempDir()
	src := filepath.Join("testdata", "scenarios", "dedup_shared_dispatch.yaml")
	data, err := os.ReadFile(src)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "dedup.yaml"), data, 0644))

	out, err := runTestCommand(t, "text", tmpDir, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "golden updated")

	golden := filepath.Join(tmpDir, "golden", "dedup.golden")
	content, err := os.ReadFile(golden)
	require.NoError(t, err)
	assert.Contains(t, string(content), "type=dispatch_started")
	assert.Contains(t, string(content), "type=duplicate_suppressed")

	out, err = runTestCommand(t, "text", tmpDir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ All scenarios passed")
}

func TestTestGoldenMismatchFails(t *testing.T) {
	tmpDir := t.TempDir()
	src := filepath.Join("testdata", "scenarios", "dedup_shared_dispatch.yaml")
	data, err := os.ReadFile(src)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "dedup.yaml"), data, 0644))

	require.NoError(t, os.MkdirAll(filepath.Join(tmpDir, "golden"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "golden", "dedup.golden"), []byte("stale trace\n"), 0644))

	out, err := runTestCommand(t, "text", tmpDir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ dedup_shared_dispatch")
	assert.Contains(t, out, "does not match golden file")
}

func TestTestMalformedScenarioFails(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "bad.yaml"), []byte("name: incomplete\n"), 0644))

	out, err := runTestCommand(t, "text", tmpDir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Load error")
}

func TestTestFilter(t *testing.T) {
	out, err := runTestCommand(t, "text", filepath.Join("testdata", "scenarios"), "--filter", "no-such-*")
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")
}

func TestTestNonExistentDirectory(t *testing.T) {
	_, err := runTestCommand(t, "text", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
