package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quiverlabs/quiver/journal"
)

func runInvokeCommand(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewInvokeCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestInvokeFulfilled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/posts/1", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": 1, "title": "hello"}`))
	}))
	defer srv.Close()

	out, err := runInvokeCommand(t, "text",
		filepath.Join("testdata", "defs"), "getPost",
		"--base-url", srv.URL,
		"--args", `{"id": 1}`,
	)
	require.NoError(t, err)

	assert.Contains(t, out, "✓ getPost fulfilled")
	assert.Contains(t, out, `"title":"hello"`)
	assert.Contains(t, out, `key: getPost({"id":1})`)
}

func TestInvokeRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	out, err := runInvokeCommand(t, "text",
		filepath.Join("testdata", "defs"), "getPost",
		"--base-url", srv.URL,
		"--args", `{"id": 1}`,
	)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ getPost rejected")
	assert.Contains(t, out, "error:")
}

func TestInvokeJSONOutput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[1, 2, 3]`))
	}))
	defer srv.Close()

	out, err := runInvokeCommand(t, "json",
		filepath.Join("testdata", "defs"), "listPosts",
		"--base-url", srv.URL,
		"--args", "",
	)
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)

	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "fulfilled", data["status"])
	assert.Equal(t, "listPosts()", data["key"])
	assert.Equal(t, []interface{}{float64(1), float64(2), float64(3)}, data["data"])
}

func TestInvokeUnknownEndpoint(t *testing.T) {
	out, err := runInvokeCommand(t, "text",
		filepath.Join("testdata", "defs"), "nope",
		"--base-url", "http://localhost:1",
	)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, `endpoint "nope" not found`)
}

func TestInvokeBadDefsDir(t *testing.T) {
	_, err := runInvokeCommand(t, "text",
		"/nonexistent/defs", "getPost",
		"--base-url", "http://localhost:1",
	)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestInvokeMissingBaseURL(t *testing.T) {
	_, err := runInvokeCommand(t, "text", filepath.Join("testdata", "defs"), "getPost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}

func TestInvokeWritesJournal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok": true}`))
	}))
	defer srv.Close()

	dbPath := filepath.Join(t.TempDir(), "quiver.db")
	_, err := runInvokeCommand(t, "text",
		filepath.Join("testdata", "defs"), "getPost",
		"--base-url", srv.URL,
		"--args", `{"id": 7}`,
		"--db", dbPath,
	)
	require.NoError(t, err)

	store, err := journal.Open(dbPath)
	require.NoError(t, err)
	defer store.Close()

	events, err := store.List(context.Background(), journal.Filter{Endpoint: "getPost"})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, journal.EventDispatchStarted, events[0].Type)
	assert.Equal(t, journal.EventDispatchSettled, events[1].Type)
	assert.Equal(t, "fulfilled", events[1].Status)
}
