package harness

import (
	"fmt"
	"slices"
	"strings"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, event := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s %s/%s", event.Seq, event.Cycle, event.Initiation, event.Termination)
		for _, rs := range event.Reports {
			fmt.Fprintf(&buf, " %s=%v%v", rs.Name, rs.EPCs, rs.Events)
		}
		buf.WriteByte('\n')
	}

	return buf.String()
}

// cycleEvents returns the trace events of one cycle.
func cycleEvents(trace []TraceEvent, cycle string) []TraceEvent {
	var out []TraceEvent
	for _, ev := range trace {
		if ev.Cycle == cycle {
			out = append(out, ev)
		}
	}
	return out
}

// assertReportCount checks how many reports a cycle delivered.
func assertReportCount(trace []TraceEvent, assertion Assertion) error {
	got := len(cycleEvents(trace, assertion.Cycle))
	if got == assertion.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertReportCount,
		Expected: fmt.Sprintf("%d report(s) from %s", assertion.Count, assertion.Cycle),
		Actual:   fmt.Sprintf("%d report(s)", got),
		Trace:    trace,
	}
}

// assertReportContains checks that some delivery of the cycle lists the
// EPC or event URI in the named report.
func assertReportContains(trace []TraceEvent, assertion Assertion) error {
	for _, ev := range cycleEvents(trace, assertion.Cycle) {
		for _, rs := range ev.Reports {
			if rs.Name != assertion.Report {
				continue
			}
			if assertion.EPC != "" && slices.Contains(rs.EPCs, assertion.EPC) {
				return nil
			}
			if assertion.Event != "" && slices.Contains(rs.Events, assertion.Event) {
				return nil
			}
		}
	}

	want := "epc " + assertion.EPC
	if assertion.Event != "" {
		want = "event " + assertion.Event
	}
	return &AssertionError{
		Type:     AssertReportContains,
		Expected: fmt.Sprintf("%s in report %s of %s", want, assertion.Report, assertion.Cycle),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertReportEmpty checks that no delivery of the cycle lists anything
// in the named report.
func assertReportEmpty(trace []TraceEvent, assertion Assertion) error {
	for _, ev := range cycleEvents(trace, assertion.Cycle) {
		for _, rs := range ev.Reports {
			if rs.Name == assertion.Report && (len(rs.EPCs) > 0 || len(rs.Events) > 0) {
				return &AssertionError{
					Type:     AssertReportEmpty,
					Expected: fmt.Sprintf("report %s of %s to be empty", assertion.Report, assertion.Cycle),
					Actual:   fmt.Sprintf("seq %d lists %d tag(s), %d event(s)", ev.Seq, len(rs.EPCs), len(rs.Events)),
					Trace:    trace,
				}
			}
		}
	}
	return nil
}

// assertTermination checks that every delivery of the cycle ended with
// the condition. A cycle that delivered nothing fails.
func assertTermination(trace []TraceEvent, assertion Assertion) error {
	events := cycleEvents(trace, assertion.Cycle)
	if len(events) == 0 {
		return &AssertionError{
			Type:     AssertTermination,
			Expected: fmt.Sprintf("%s termination of %s", assertion.Condition, assertion.Cycle),
			Actual:   "no reports delivered",
			Trace:    trace,
		}
	}
	for _, ev := range events {
		if ev.Termination != assertion.Condition {
			return &AssertionError{
				Type:     AssertTermination,
				Expected: fmt.Sprintf("%s termination of %s", assertion.Condition, assertion.Cycle),
				Actual:   fmt.Sprintf("seq %d terminated by %s", ev.Seq, ev.Termination),
				Trace:    trace,
			}
		}
	}
	return nil
}

// EvaluateAssertions runs all assertions against the result's trace and
// returns the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertReportCount:
			err = assertReportCount(result.Trace, assertion)
		case AssertReportContains:
			err = assertReportContains(result.Trace, assertion)
		case AssertReportEmpty:
			err = assertReportEmpty(result.Trace, assertion)
		case AssertTermination:
			err = assertTermination(result.Trace, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
