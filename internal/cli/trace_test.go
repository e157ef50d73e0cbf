package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quiverlabs/quiver/journal"
)

// seedJournal writes a small dispatch history and returns the db path.
func seedJournal(t *testing.T) string {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "trace.db")

	store, err := journal.Open(dbPath)
	require.NoError(t, err)
	defer store.Close()

	at := time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)
	events := []journal.Event{
		{Seq: 1, At: at, Type: journal.EventDispatchStarted, Endpoint: "getPost", Kind: "query",
			Key: `getPost({"id":1})`, KeyHash: "hash-1", RequestID: "req-1"},
		{Seq: 2, At: at, Type: journal.EventDuplicateSuppressed, Endpoint: "getPost", Kind: "query",
			Key: `getPost({"id":1})`, KeyHash: "hash-1", RequestID: "req-1"},
		{Seq: 3, At: at.Add(5 * time.Millisecond), Type: journal.EventDispatchSettled, Endpoint: "getPost", Kind: "query",
			Key: `getPost({"id":1})`, KeyHash: "hash-1", RequestID: "req-1", Status: "fulfilled", DurationMS: 5},
		{Seq: 4, At: at.Add(time.Second), Type: journal.EventDispatchStarted, Endpoint: "listPosts", Kind: "query",
			Key: "listPosts()", KeyHash: "hash-2", RequestID: "req-2"},
		{Seq: 5, At: at.Add(2 * time.Second), Type: journal.EventDispatchSettled, Endpoint: "listPosts", Kind: "query",
			Key: "listPosts()", KeyHash: "hash-2", RequestID: "req-2", Status: "rejected", Error: "boom", DurationMS: 1000},
	}
	for _, ev := range events {
		require.NoError(t, store.Record(ev))
	}
	return dbPath
}

func runTraceCommand(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewTraceCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestTraceMissingDatabaseFlag(t *testing.T) {
	_, err := runTraceCommand(t, "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}

func TestTraceTimeline(t *testing.T) {
	dbPath := seedJournal(t)

	out, err := runTraceCommand(t, "text", "--db", dbPath)
	require.NoError(t, err)

	assert.Contains(t, out, "=== Timeline ===")
	assert.Contains(t, out, `[1] dispatch_started getPost({"id":1})`)
	assert.Contains(t, out, `[3] dispatch_settled getPost({"id":1}) fulfilled (5ms)`)
	assert.Contains(t, out, "[5] dispatch_settled listPosts() rejected (1000ms)")
	assert.Contains(t, out, "Total Events:  5")
	assert.Contains(t, out, "Dispatches:    2")
	assert.Contains(t, out, "Settlements:   2")
	assert.Contains(t, out, "Suppressed:    1")
}

func TestTraceEndpointFilter(t *testing.T) {
	dbPath := seedJournal(t)

	out, err := runTraceCommand(t, "text", "--db", dbPath, "--endpoint", "listPosts")
	require.NoError(t, err)

	assert.NotContains(t, out, "getPost")
	assert.Contains(t, out, "listPosts()")
	assert.Contains(t, out, "Total Events:  2")
}

func TestTraceTypeAndLimitFilters(t *testing.T) {
	dbPath := seedJournal(t)

	out, err := runTraceCommand(t, "text", "--db", dbPath,
		"--type", "dispatch_started", "--limit", "1")
	require.NoError(t, err)

	assert.Contains(t, out, "[1] dispatch_started")
	assert.Contains(t, out, "Total Events:  1")
}

func TestTraceJSONOutput(t *testing.T) {
	dbPath := seedJournal(t)

	out, err := runTraceCommand(t, "json", "--db", dbPath, "--key-hash", "hash-2")
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)

	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	timeline, ok := data["timeline"].([]interface{})
	require.True(t, ok)
	require.Len(t, timeline, 2)

	first, ok := timeline[0].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "listPosts()", first["key"])
	assert.Equal(t, "req-2", first["request_id"])
}

func TestTraceEmptyJournal(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "empty.db")
	store, err := journal.Open(dbPath)
	require.NoError(t, err)
	store.Close()

	out, err := runTraceCommand(t, "text", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "(no events)")
	assert.Contains(t, out, "Total Events:  0")
}

func TestTraceVerboseShowsErrorText(t *testing.T) {
	dbPath := seedJournal(t)

	buf := &bytes.Buffer{}
	cmd := NewTraceCommand(&RootOptions{Format: "text", Verbose: true})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--db", dbPath, "--endpoint", "listPosts"})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, buf.String(), "error: boom")
	assert.Contains(t, buf.String(), "request_id: req-2")
}
