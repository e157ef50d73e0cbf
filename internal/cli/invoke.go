package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/quiverlabs/quiver"
	"github.com/quiverlabs/quiver/argval"
	"github.com/quiverlabs/quiver/compiler"
	"github.com/quiverlabs/quiver/httpquery"
	"github.com/quiverlabs/quiver/journal"
)

// InvokeOptions holds flags for the invoke command.
type InvokeOptions struct {
	*RootOptions
	Args     string
	BaseURL  string
	Timeout  time.Duration
	Database string
}

// InvokeResult holds the settled snapshot of a one-shot invocation.
type InvokeResult struct {
	Endpoint   string          `json:"endpoint"`
	Key        string          `json:"key"`
	Status     string          `json:"status"`
	RequestID  string          `json:"request_id"`
	DurationMS int64           `json:"duration_ms"`
	Data       json.RawMessage `json:"data,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// NewInvokeCommand creates the invoke command.
func NewInvokeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InvokeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "invoke <defs-dir> <endpoint>",
		Short: "Invoke one endpoint through the engine",
		Long: `Register the endpoint definitions, dispatch a single initiation
through the HTTP base query, await settlement, and print the snapshot.

The argument value is given as JSON; pass --args "" to dispatch without
an argument. With --db the dispatch journal is written to SQLite for
later inspection with quiver trace.

Exit codes:
  0 - Entry settled fulfilled
  1 - Entry settled rejected
  2 - Command error (bad definitions, unknown endpoint, timeout)

Examples:
  quiver invoke ./defs getPost --base-url https://api.example.com --args '{"id": 1}'
  quiver invoke ./defs createPost --base-url https://api.example.com --args '{"title": "hi"}' --db ./quiver.db`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInvoke(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Args, "args", "{}", "argument value as JSON (empty string for no argument)")
	cmd.Flags().StringVar(&opts.BaseURL, "base-url", "", "base URL for the HTTP base query (required)")
	_ = cmd.MarkFlagRequired("base-url")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 30*time.Second, "request and await timeout")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite dispatch journal (optional)")

	return cmd
}

func runInvoke(opts *InvokeOptions, defsDir, endpoint string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	loadResult, loadErrors := LoadDefinitions(defsDir, LoadModeFailFast)
	if len(loadErrors) > 0 {
		var loadErr *LoadError
		if errors.As(loadErrors[0], &loadErr) {
			_ = formatter.Error(loadErr.Code, loadErr.Message, nil)
			return NewExitError(ExitCommandError, loadErr.Error())
		}
		_ = formatter.Error(ErrCodeGeneric, loadErrors[0].Error(), nil)
		return NewExitError(ExitCommandError, loadErrors[0].Error())
	}

	found := false
	for _, def := range loadResult.Definitions {
		if def.Name == endpoint {
			found = true
			break
		}
	}
	if !found {
		msg := fmt.Sprintf("endpoint %q not found in %s", endpoint, defsDir)
		_ = formatter.Error(ErrCodeGeneric, msg, nil)
		return NewExitError(ExitCommandError, msg)
	}

	var arg argval.Value
	if opts.Args != "" {
		v, err := argval.FromJSON([]byte(opts.Args))
		if err != nil {
			msg := fmt.Sprintf("invalid args JSON: %v", err)
			_ = formatter.Error(ErrCodeGeneric, msg, nil)
			return NewExitError(ExitCommandError, msg)
		}
		arg = v
	}

	clientOpts := []quiver.Option{}
	if opts.Database != "" {
		store, err := journal.Open(opts.Database)
		if err != nil {
			_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("open journal: %v", err), nil)
			return WrapExitError(ExitCommandError, "open journal", err)
		}
		defer store.Close()
		clientOpts = append(clientOpts, quiver.WithJournal(store))
	}

	hq := httpquery.New(httpquery.Config{
		BaseURL: opts.BaseURL,
		Timeout: opts.Timeout,
	})
	defer hq.Close()

	client := quiver.New(hq.Run, clientOpts...)
	defer client.Close()

	if err := compiler.Register(client, loadResult.Definitions); err != nil {
		_ = formatter.Error(ErrCodeGeneric, fmt.Sprintf("register definitions: %v", err), nil)
		return WrapExitError(ExitCommandError, "register definitions", err)
	}

	formatter.VerboseLog("Registered %d endpoint(s); dispatching %s", len(loadResult.Definitions), endpoint)

	handle, err := client.Initiate(endpoint, arg)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, fmt.Sprintf("initiate: %v", err), nil)
		return WrapExitError(ExitCommandError, "initiate", err)
	}
	defer handle.Unsubscribe()

	ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
	defer cancel()

	snap, err := handle.Await(ctx)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, fmt.Sprintf("await settlement: %v", err), nil)
		return WrapExitError(ExitCommandError, "await settlement", err)
	}

	result := InvokeResult{
		Endpoint:  snap.Endpoint,
		Key:       snap.Key.String(),
		Status:    string(snap.Status),
		RequestID: snap.RequestID,
	}
	if !snap.SettledAt.IsZero() {
		result.DurationMS = snap.SettledAt.Sub(snap.StartedAt).Milliseconds()
	}
	if snap.Data != nil {
		data, err := argval.MarshalValue(snap.Data)
		if err != nil {
			return WrapExitError(ExitCommandError, "encode data", err)
		}
		result.Data = data
	}
	if snap.Err != nil {
		result.Error = snap.Err.Error()
	}

	return outputInvokeResult(formatter, result)
}

// outputInvokeResult prints the settled snapshot and maps the status to
// an exit code.
func outputInvokeResult(formatter *OutputFormatter, result InvokeResult) error {
	rejected := result.Status == string(quiver.StatusRejected)

	if formatter.Format == "json" {
		response := CLIResponse{Status: "ok", Data: result}
		if rejected {
			response.Status = "error"
			response.Error = &CLIError{Code: "E_REJECTED", Message: result.Error}
		}
		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}
	} else {
		w := formatter.Writer
		if rejected {
			fmt.Fprintf(w, "✗ %s rejected (%dms)\n", result.Endpoint, result.DurationMS)
			fmt.Fprintf(w, "  error: %s\n", result.Error)
		} else {
			fmt.Fprintf(w, "✓ %s %s (%dms)\n", result.Endpoint, result.Status, result.DurationMS)
			if result.Data != nil {
				fmt.Fprintf(w, "  data: %s\n", result.Data)
			}
		}
		fmt.Fprintf(w, "  key: %s\n", result.Key)
		fmt.Fprintf(w, "  request_id: %s\n", result.RequestID)
	}

	if rejected {
		return NewExitError(ExitFailure, fmt.Sprintf("%s rejected: %s", result.Endpoint, result.Error))
	}
	return nil
}
