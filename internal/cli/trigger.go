package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/alecycle/internal/ir"
)

// TriggerOptions holds flags for the trigger command.
type TriggerOptions struct {
	*RootOptions
	Addr    string
	Timeout time.Duration
}

// TriggerResult is the JSON payload of a fired trigger.
type TriggerResult struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

func (r TriggerResult) writeText(w io.Writer) {
	fmt.Fprintf(w, "✓ Triggered %s\n", r.Name)
}

// NewTriggerCommand creates the trigger command.
func NewTriggerCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TriggerOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trigger <name>",
		Short: "Fire a named HTTP trigger on a running engine",
		Long: `Fire every trigger registered as urn:havis:ale:trigger:http:<name>
on a running engine.

Example:
  alecycle trigger door-open
  alecycle trigger door-open --addr http://10.0.0.5:8080`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrigger(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "http://127.0.0.1:8080", "engine base URL")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 5*time.Second, "request timeout")

	return cmd
}

func runTrigger(opts *TriggerOptions, name string, cmd *cobra.Command) error {
	out := newOutput(opts.RootOptions, cmd)

	if err := ir.ValidName(name); err != nil {
		out.Problem(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid trigger name", err)
	}

	target := strings.TrimSuffix(opts.Addr, "/") + "/triggers/" + url.PathEscape(name)
	out.Debugf("POST %s", target)

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, nil)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid address", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		out.Problem(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "engine unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return out.Result(TriggerResult{Name: name, URL: target})
	}

	// Error bodies are {"code": ..., "message": ...}.
	var body struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Code == "" {
		body.Code = ErrCodeGeneric
		body.Message = resp.Status
	}
	out.Problem(body.Code, body.Message, map[string]int{"status": resp.StatusCode})
	return NewExitError(ExitFailure, fmt.Sprintf("trigger %s rejected: %s", name, body.Message))
}
