package compiler

import (
	"fmt"
	"time"

	"github.com/roach88/alecycle/internal/ir"
	"github.com/roach88/alecycle/internal/trigger"
)

// Validation error codes (E100-E199)
const (
	// General validation errors (E100)
	ErrUnsupportedIRType = "E100" // unsupported IR type for validation

	// Definition errors (E101-E109)
	ErrInvalidName       = "E101" // definition or report name invalid
	ErrNoReaders         = "E102" // at least one logical reader required
	ErrNoReports         = "E103" // at least one report required
	ErrDuplicateName     = "E104" // duplicate report name
	ErrInvalidReportSet  = "E105" // report set not CURRENT/ADDITIONS/DELETIONS
	ErrInvalidPrimaryKey = "E106" // unknown primary key field
	ErrInvalidPin        = "E107" // pin type or id invalid
	ErrInvalidReaderName = "E108" // empty or duplicate logical reader

	// Boundary errors (E110-E119)
	ErrInvalidTime       = "E110" // negative value or unsupported unit
	ErrNoStopCondition   = "E111" // boundary defines no stop condition
	ErrInvalidTriggerURI = "E112" // start/stop trigger URI does not parse
	ErrWrongCycleKind    = "E113" // condition not supported by this cycle kind
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate validates compiled definitions against schema rules.
// Returns all errors found (does not fail-fast).
// Supports EventCycle and PortCycle.
func Validate(v any) []ValidationError {
	switch d := v.(type) {
	case *EventCycle:
		return validateEventCycle(d)
	case EventCycle:
		return validateEventCycle(&d)
	case *PortCycle:
		return validatePortCycle(d)
	case PortCycle:
		return validatePortCycle(&d)
	default:
		return []ValidationError{{
			Field:   "type",
			Message: fmt.Sprintf("unsupported IR type: %T", v),
			Code:    ErrUnsupportedIRType,
		}}
	}
}

func validateEventCycle(ec *EventCycle) []ValidationError {
	line := ec.Pos.Line()
	errs := validateName(ec.Name, line)
	errs = append(errs, validateReaders(ec.Spec.LogicalReaders, line)...)
	errs = append(errs, validateBoundary(ec.Spec.Boundary, true, line)...)

	if len(ec.Spec.Reports) == 0 {
		errs = append(errs, ValidationError{
			Field:   "reports",
			Message: "at least one report is required",
			Code:    ErrNoReports,
			Line:    line,
		})
	}
	names := make(map[string]bool)
	for i, r := range ec.Spec.Reports {
		field := fmt.Sprintf("reports[%d]", i)
		errs = append(errs, validateReportName(r.Name, field, names, line)...)
		if !ir.ValidReportSets[r.Set] {
			errs = append(errs, ValidationError{
				Field:   field + ".set",
				Message: fmt.Sprintf("invalid report set %q", r.Set),
				Code:    ErrInvalidReportSet,
				Line:    line,
			})
		}
	}

	if err := ir.ValidatePrimaryKeyFields(ec.Spec.PrimaryKeyFields); err != nil {
		errs = append(errs, ValidationError{
			Field:   "primary_key_fields",
			Message: err.Error(),
			Code:    ErrInvalidPrimaryKey,
			Line:    line,
		})
	}
	return errs
}

func validatePortCycle(pc *PortCycle) []ValidationError {
	line := pc.Pos.Line()
	errs := validateName(pc.Name, line)
	errs = append(errs, validateReaders(pc.Spec.LogicalReaders, line)...)
	errs = append(errs, validateBoundary(pc.Spec.Boundary, false, line)...)

	if len(pc.Spec.Reports) == 0 {
		errs = append(errs, ValidationError{
			Field:   "reports",
			Message: "at least one report is required",
			Code:    ErrNoReports,
			Line:    line,
		})
	}
	names := make(map[string]bool)
	for i, r := range pc.Spec.Reports {
		field := fmt.Sprintf("reports[%d]", i)
		errs = append(errs, validateReportName(r.Name, field, names, line)...)
		for j, pin := range r.Pins {
			if pin.Type != ir.PinInput && pin.Type != ir.PinOutput {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("%s.pins[%d].type", field, j),
					Message: fmt.Sprintf("invalid pin type %q", pin.Type),
					Code:    ErrInvalidPin,
					Line:    line,
				})
			}
			if pin.ID < ir.AnyPin {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("%s.pins[%d].id", field, j),
					Message: fmt.Sprintf("invalid pin id %d", pin.ID),
					Code:    ErrInvalidPin,
					Line:    line,
				})
			}
		}
	}
	return errs
}

func validateName(name string, line int) []ValidationError {
	if err := ir.ValidName(name); err != nil {
		return []ValidationError{{
			Field:   "name",
			Message: err.Error(),
			Code:    ErrInvalidName,
			Line:    line,
		}}
	}
	return nil
}

func validateReaders(readers []string, line int) []ValidationError {
	if len(readers) == 0 {
		return []ValidationError{{
			Field:   "logical_readers",
			Message: "at least one logical reader is required",
			Code:    ErrNoReaders,
			Line:    line,
		}}
	}
	var errs []ValidationError
	seen := make(map[string]bool)
	for i, r := range readers {
		field := fmt.Sprintf("logical_readers[%d]", i)
		switch {
		case r == "":
			errs = append(errs, ValidationError{
				Field:   field,
				Message: "reader name must be non-empty",
				Code:    ErrInvalidReaderName,
				Line:    line,
			})
		case seen[r]:
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("duplicate logical reader %q", r),
				Code:    ErrInvalidReaderName,
				Line:    line,
			})
		}
		seen[r] = true
	}
	return errs
}

func validateReportName(name, field string, seen map[string]bool, line int) []ValidationError {
	var errs []ValidationError
	if name == "" {
		errs = append(errs, ValidationError{
			Field:   field + ".name",
			Message: "report name must be non-empty",
			Code:    ErrInvalidName,
			Line:    line,
		})
	}
	if seen[name] {
		errs = append(errs, ValidationError{
			Field:   field + ".name",
			Message: fmt.Sprintf("duplicate report name: %q", name),
			Code:    ErrDuplicateName,
			Line:    line,
		})
	}
	seen[name] = true
	return errs
}

// validateBoundary mirrors the checks a cycle performs at definition time
// so a definitions directory can be checked without a running engine.
// Trigger URIs are parsed against the host clock; only syntax and ranges
// are checked, not whether a port trigger's reader exists.
func validateBoundary(b ir.BoundarySpec, event bool, line int) []ValidationError {
	var errs []ValidationError

	times := []struct {
		field string
		t     *ir.Time
	}{
		{"boundary.repeat_period", b.RepeatPeriod},
		{"boundary.duration", b.Duration},
		{"boundary.stable_set_interval", b.StableSetInterval},
		{"boundary.no_new_events_interval", b.NoNewEventsInterval},
	}
	spans := make(map[string]time.Duration, len(times))
	for _, f := range times {
		d, err := f.t.Parse(f.field)
		if err != nil {
			errs = append(errs, ValidationError{
				Field:   f.field,
				Message: err.Error(),
				Code:    ErrInvalidTime,
				Line:    line,
			})
			continue
		}
		spans[f.field] = d
	}

	if spans["boundary.stable_set_interval"] > 0 && !event {
		errs = append(errs, ValidationError{
			Field:   "boundary.stable_set_interval",
			Message: "only supported by event cycles",
			Code:    ErrWrongCycleKind,
			Line:    line,
		})
	}
	if spans["boundary.no_new_events_interval"] > 0 && event {
		errs = append(errs, ValidationError{
			Field:   "boundary.no_new_events_interval",
			Message: "only supported by port cycles",
			Code:    ErrWrongCycleKind,
			Line:    line,
		})
	}

	hasStop := spans["boundary.duration"] > 0 ||
		spans["boundary.stable_set_interval"] > 0 ||
		spans["boundary.no_new_events_interval"] > 0 ||
		b.WhenDataAvailable ||
		len(b.StopTriggers) > 0
	if !hasStop {
		errs = append(errs, ValidationError{
			Field:   "boundary",
			Message: "boundary defines no stop condition",
			Code:    ErrNoStopCondition,
			Line:    line,
		})
	}

	now := time.Now()
	for _, set := range []struct {
		field string
		uris  []string
	}{
		{"boundary.start_triggers", b.StartTriggers},
		{"boundary.stop_triggers", b.StopTriggers},
	} {
		for i, uri := range set.uris {
			field := fmt.Sprintf("%s[%d]", set.field, i)
			if _, err := trigger.Parse(uri, now); err != nil {
				errs = append(errs, ValidationError{
					Field:   field,
					Message: err.Error(),
					Code:    ErrInvalidTriggerURI,
					Line:    line,
				})
			}
		}
	}
	return errs
}
