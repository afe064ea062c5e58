package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// Process exit statuses.
const (
	ExitSuccess      = 0 // command succeeded
	ExitFailure      = 1 // invalid definitions, failed scenarios, rejected trigger, engine error
	ExitCommandError = 2 // bad arguments, paths or configuration
)

// ExitError carries a process exit status out of a command's RunE.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// NewExitError returns an ExitError without a cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError returns an ExitError caused by err.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode maps a command error to the process exit status. Errors
// that carry no status exit with ExitFailure.
func GetExitCode(err error) int {
	var exit *ExitError
	switch {
	case err == nil:
		return ExitSuccess
	case errors.As(err, &exit):
		return exit.Code
	default:
		return ExitFailure
	}
}

// Envelope is the JSON document every command prints with --format json.
type Envelope struct {
	Status string   `json:"status"` // "ok" | "error"
	Data   any      `json:"data,omitempty"`
	Error  *Problem `json:"error,omitempty"`
}

// Problem is the error part of an Envelope. Code is one of the E0xx load
// codes, a compiler code or an engine error code.
type Problem struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// texter is implemented by command results that have a text rendering.
type texter interface {
	writeText(w io.Writer)
}

// Output renders command results in the format chosen by --format.
// Diagnostics from --verbose go to a separate writer so they never mix
// with JSON on stdout.
type Output struct {
	json    bool
	verbose bool
	w       io.Writer
	diag    io.Writer
}

// newOutput binds the root flags to the command's writers.
func newOutput(opts *RootOptions, cmd *cobra.Command) *Output {
	return &Output{
		json:    opts.Format == "json",
		verbose: opts.Verbose,
		w:       cmd.OutOrStdout(),
		diag:    cmd.ErrOrStderr(),
	}
}

// Result prints a successful result.
func (o *Output) Result(v any) error {
	return o.Report(v, nil)
}

// Report prints v, marked failed when p is set. In text mode v renders
// itself if it can and p is left to v.
func (o *Output) Report(v any, p *Problem) error {
	if o.json {
		env := Envelope{Status: "ok", Data: v, Error: p}
		if p != nil {
			env.Status = "error"
		}
		enc := json.NewEncoder(o.w)
		enc.SetIndent("", "  ")
		return enc.Encode(env)
	}

	if t, ok := v.(texter); ok {
		t.writeText(o.w)
		return nil
	}
	_, err := fmt.Fprintln(o.w, v)
	return err
}

// Problem prints a failure that has no result to go with it.
func (o *Output) Problem(code, message string, details any) {
	if o.json {
		_ = json.NewEncoder(o.w).Encode(Envelope{
			Status: "error",
			Error:  &Problem{Code: code, Message: message, Details: details},
		})
		return
	}
	fmt.Fprintf(o.w, "Error [%s]: %s\n", code, message)
	if o.verbose && details != nil {
		fmt.Fprintf(o.w, "Details: %v\n", details)
	}
}

// Debugf prints a diagnostic line when --verbose is set.
func (o *Output) Debugf(format string, args ...any) {
	if o.verbose {
		fmt.Fprintf(o.diag, format+"\n", args...)
	}
}
