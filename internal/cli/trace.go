package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/quiverlabs/quiver/journal"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Endpoint string // optional - filter to one endpoint
	Type     string // optional - filter to one event type
	KeyHash  string // optional - filter to one cache key
	Limit    int    // optional - cap the number of rows
}

// TraceEvent is one journal row rendered for output.
type TraceEvent struct {
	Seq        int64  `json:"seq"`
	At         string `json:"at"`
	Type       string `json:"type"`
	Endpoint   string `json:"endpoint"`
	Kind       string `json:"kind,omitempty"`
	Key        string `json:"key"`
	RequestID  string `json:"request_id,omitempty"`
	Status     string `json:"status,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`
}

// TraceStats summarizes the returned timeline by event type.
type TraceStats struct {
	TotalEvents   int `json:"total_events"`
	Dispatches    int `json:"dispatches"`
	Settlements   int `json:"settlements"`
	Suppressed    int `json:"suppressed"`
	StaleDrops    int `json:"stale_drops"`
	Invalidations int `json:"invalidations"`
	Evictions     int `json:"evictions"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Timeline []TraceEvent `json:"timeline"`
	Stats    TraceStats   `json:"stats"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Query the dispatch journal",
		Long: `Query lifecycle events from a SQLite dispatch journal.

Shows the dispatch timeline: starts, settlements, suppressed
duplicates, stale drops, invalidations, and evictions, in emission
order, plus summary counts.

Examples:
  quiver trace --db ./quiver.db
  quiver trace --db ./quiver.db --endpoint getPost
  quiver trace --db ./quiver.db --type dispatch_settled --limit 20
  quiver trace --db ./quiver.db --key-hash 3f1a... --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite dispatch journal (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Endpoint, "endpoint", "", "filter to one endpoint name")
	cmd.Flags().StringVar(&opts.Type, "type", "", "filter to one event type")
	cmd.Flags().StringVar(&opts.KeyHash, "key-hash", "", "filter to one cache key hash")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "cap the number of rows (0 = no cap)")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	store, err := journal.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer store.Close()

	events, err := store.List(ctx, journal.Filter{
		Endpoint: opts.Endpoint,
		Type:     journal.EventType(opts.Type),
		KeyHash:  opts.KeyHash,
		Limit:    opts.Limit,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to query journal", err)
	}

	result := TraceResult{Timeline: make([]TraceEvent, 0, len(events))}
	for _, ev := range events {
		result.Timeline = append(result.Timeline, TraceEvent{
			Seq:        ev.Seq,
			At:         ev.At.UTC().Format(time.RFC3339Nano),
			Type:       string(ev.Type),
			Endpoint:   ev.Endpoint,
			Kind:       ev.Kind,
			Key:        ev.Key,
			RequestID:  ev.RequestID,
			Status:     ev.Status,
			Error:      ev.Error,
			DurationMS: ev.DurationMS,
		})
		result.Stats.TotalEvents++
		switch ev.Type {
		case journal.EventDispatchStarted:
			result.Stats.Dispatches++
		case journal.EventDispatchSettled:
			result.Stats.Settlements++
		case journal.EventDuplicateSuppressed:
			result.Stats.Suppressed++
		case journal.EventStaleDropped:
			result.Stats.StaleDrops++
		case journal.EventEntryInvalidated:
			result.Stats.Invalidations++
		case journal.EventEntryEvicted:
			result.Stats.Evictions++
		}
	}

	if opts.Format == "json" {
		return outputTraceJSON(cmd, result)
	}
	return outputTraceText(cmd, result, opts.Verbose)
}

// outputTraceJSON outputs the trace result as JSON.
func outputTraceJSON(cmd *cobra.Command, result TraceResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(response)
}

// outputTraceText outputs the trace result as text.
func outputTraceText(cmd *cobra.Command, result TraceResult, verbose bool) error {
	w := cmd.OutOrStdout()

	fmt.Fprintln(w, "=== Timeline ===")
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "  (no events)")
	} else {
		for _, ev := range result.Timeline {
			fmt.Fprintf(w, "  [%d] %s %s", ev.Seq, ev.Type, ev.Key)
			if ev.Status != "" {
				fmt.Fprintf(w, " %s (%dms)", ev.Status, ev.DurationMS)
			}
			fmt.Fprintln(w)
			if verbose {
				if ev.RequestID != "" {
					fmt.Fprintf(w, "       request_id: %s\n", ev.RequestID)
				}
				fmt.Fprintf(w, "       at: %s\n", ev.At)
				if ev.Error != "" {
					fmt.Fprintf(w, "       error: %s\n", ev.Error)
				}
			}
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Total Events:  %d\n", result.Stats.TotalEvents)
	fmt.Fprintf(w, "  Dispatches:    %d\n", result.Stats.Dispatches)
	fmt.Fprintf(w, "  Settlements:   %d\n", result.Stats.Settlements)
	fmt.Fprintf(w, "  Suppressed:    %d\n", result.Stats.Suppressed)
	fmt.Fprintf(w, "  Stale Drops:   %d\n", result.Stats.StaleDrops)
	fmt.Fprintf(w, "  Invalidations: %d\n", result.Stats.Invalidations)
	fmt.Fprintf(w, "  Evictions:     %d\n", result.Stats.Evictions)

	return nil
}
