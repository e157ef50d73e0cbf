package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quiverlabs/quiver/argval"
)

// KeyResult holds the derived cache key for one endpoint and argument
// value.
type KeyResult struct {
	Endpoint string `json:"endpoint"`
	Canon    string `json:"canon"`
	Key      string `json:"key"`
	Hash     string `json:"hash"`
}

// NewKeyCommand creates the key command.
func NewKeyCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key <endpoint> [args-json]",
		Short: "Print the canonical cache key for an argument value",
		Long: `Derive the cache key an endpoint and argument value map to.

The argument value is given as JSON; omit it for endpoints dispatched
without arguments. Object key order never affects the key, so reordered
spellings of the same value print identically:

  quiver key getPost '{"id": 1}'
  quiver key getUser '{"name": "Bob", "page": 2}'
  quiver key listPosts`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			argJSON := ""
			if len(args) == 2 {
				argJSON = args[1]
			}
			return runKey(rootOpts, args[0], argJSON, cmd)
		},
	}

	return cmd
}

func runKey(opts *RootOptions, endpoint, argJSON string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	// Same name rule the engine enforces at definition time
	if endpoint == "" || strings.ContainsAny(endpoint, "() \t\n") {
		msg := fmt.Sprintf("endpoint name %q must not contain parentheses or whitespace", endpoint)
		_ = formatter.Error(ErrCodeGeneric, msg, nil)
		return NewExitError(ExitCommandError, msg)
	}

	var arg argval.Value
	if argJSON != "" {
		v, err := argval.FromJSON([]byte(argJSON))
		if err != nil {
			msg := fmt.Sprintf("invalid args JSON: %v", err)
			_ = formatter.Error(ErrCodeGeneric, msg, nil)
			return NewExitError(ExitCommandError, msg)
		}
		arg = v
	}

	key, err := argval.ForEndpoint(endpoint, arg)
	if err != nil {
		msg := fmt.Sprintf("derive key: %v", err)
		_ = formatter.Error(ErrCodeGeneric, msg, nil)
		return NewExitError(ExitCommandError, msg)
	}

	result := KeyResult{
		Endpoint: key.Endpoint,
		Canon:    key.Canon,
		Key:      key.String(),
		Hash:     key.Hash(),
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "key:  %s\n", result.Key)
	fmt.Fprintf(w, "hash: %s\n", result.Hash)
	return nil
}
