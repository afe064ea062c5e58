package cli

import (
	"errors"
	"fmt"
	"io"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/token"
	"github.com/spf13/cobra"

	"github.com/roach88/alecycle/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid       bool                       `json:"valid"`
	EventCycles int                        `json:"event_cycles"`
	PortCycles  int                        `json:"port_cycles"`
	Errors      []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <specs-dir>",
		Short: "Validate cycle definitions",
		Long: `Validate CUE event_cycle and port_cycle definitions.

Compiles every definition in the directory and checks names, readers,
reports, pins, boundary times and trigger URIs. All errors are reported,
not just the first.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, specsDir string, cmd *cobra.Command) error {
	out := newOutput(opts, cmd)

	// The loader only supplies the CUE value here; validateAll compiles
	// every definition itself so all errors are collected.
	loadResult, loadErrors := LoadSpecs(specsDir, LoadModeFailFast)
	if loadResult == nil && len(loadErrors) > 0 {
		var loadErr *LoadError
		if errors.As(loadErrors[0], &loadErr) {
			return loadFailed(out, loadErr.Code, loadErr.Message)
		}
		return loadFailed(out, ErrCodeGeneric, loadErrors[0].Error())
	}

	out.Debugf("Found %d CUE file(s) in %s", loadResult.FileCount, specsDir)

	result := validateAll(loadResult.CUEValue, out)
	if result.Valid {
		return out.Result(result)
	}

	first := result.Errors[0]
	if err := out.Report(result, &Problem{Code: first.Code, Message: first.Message}); err != nil {
		return err
	}
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(result.Errors)))
}

// validateAll compiles and validates every definition in the CUE value.
func validateAll(value cue.Value, out *Output) ValidationResult {
	var result ValidationResult

	n, errs := validateFamily(value, "event_cycle", compiler.CompileEventCycle, out)
	result.EventCycles = n
	result.Errors = append(result.Errors, errs...)

	n, errs = validateFamily(value, "port_cycle", compiler.CompilePortCycle, out)
	result.PortCycles = n
	result.Errors = append(result.Errors, errs...)

	if result.EventCycles == 0 && result.PortCycles == 0 && len(result.Errors) == 0 {
		result.Errors = append(result.Errors, compiler.ValidationError{
			Field:   "specs",
			Message: "no event_cycle or port_cycle definitions found in specs",
			Code:    ErrCodeGeneric,
		})
	}
	result.Valid = len(result.Errors) == 0
	return result
}

// validateFamily validates the definitions under one top-level path and
// returns how many there were.
func validateFamily[T any](value cue.Value, path string, compile func(cue.Value) (*T, error), out *Output) (int, []compiler.ValidationError) {
	v := value.LookupPath(cue.ParsePath(path))
	if !v.Exists() {
		return 0, nil
	}
	iter, err := v.Fields()
	if err != nil {
		return 0, []compiler.ValidationError{{Field: path, Message: err.Error(), Code: ErrCodeGeneric}}
	}

	var count int
	var allErrors []compiler.ValidationError
	for iter.Next() {
		count++
		name := iter.Label()
		out.Debugf("Validating %s: %s", path, name)

		def, compileErr := compile(iter.Value())
		if compileErr != nil {
			var cErr *compiler.CompileError
			if errors.As(compileErr, &cErr) {
				allErrors = append(allErrors, compiler.ValidationError{
					Field:   path + "." + name + "." + cErr.Field,
					Message: cErr.Message,
					Code:    MapFieldToErrorCode(cErr.Field),
					Line:    getLineFromCuePos(cErr.Pos),
				})
			} else {
				allErrors = append(allErrors, compiler.ValidationError{
					Field:   path + "." + name,
					Message: compileErr.Error(),
					Code:    ErrCodeGeneric,
				})
			}
			continue
		}

		allErrors = append(allErrors, compiler.Validate(def)...)
	}
	return count, allErrors
}

// getLineFromCuePos extracts line number from a token.Pos.
func getLineFromCuePos(pos token.Pos) int {
	if pos.IsValid() {
		return pos.Line()
	}
	return 0
}

// writeText prints the summary of a valid run, or every error with its
// line.
func (r ValidationResult) writeText(w io.Writer) {
	if r.Valid {
		fmt.Fprintf(w, "✓ All specs valid (%d event cycle(s), %d port cycle(s))\n", r.EventCycles, r.PortCycles)
		return
	}
	fmt.Fprintln(w, "✗ Validation failed")
	fmt.Fprintln(w)
	for _, err := range r.Errors {
		if err.Line > 0 {
			fmt.Fprintf(w, "line %d\n", err.Line)
		}
		fmt.Fprintf(w, "  %s: %s: %s\n\n", err.Code, err.Field, err.Message)
	}
}

// loadFailed reports a specs directory that could not be loaded at all.
func loadFailed(out *Output, code, message string) error {
	out.Problem(code, message, nil)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// ValidateSpecsDir validates all definitions in a directory.
// This is a helper function for external callers.
func ValidateSpecsDir(specsDir string) ([]compiler.ValidationError, error) {
	loadResult, loadErrors := LoadSpecs(specsDir, LoadModeFailFast)
	if loadResult == nil && len(loadErrors) > 0 {
		return nil, loadErrors[0]
	}

	silent := &Output{w: io.Discard, diag: io.Discard}
	return validateAll(loadResult.CUEValue, silent).Errors, nil
}
