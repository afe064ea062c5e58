package harness

import (
	"slices"

	"github.com/roach88/alecycle/internal/ir"
)

// TraceEvent is one report delivery recorded during a scenario run. Only
// deterministic fields are kept: dates, durations and cycle ids vary
// between runs and would break golden comparison.
type TraceEvent struct {
	Seq         int              `json:"seq"`
	Cycle       string           `json:"cycle"`
	Initiation  string           `json:"initiation"`
	Termination string           `json:"termination"`
	Reports     []ReportSnapshot `json:"reports"`
}

// ReportSnapshot is the deterministic content of one named report.
type ReportSnapshot struct {
	Name   string   `json:"name"`
	Count  *int     `json:"count,omitempty"`
	EPCs   []string `json:"epcs,omitempty"`   // sorted
	Events []string `json:"events,omitempty"` // sorted event URIs
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass indicates overall test success.
	// True if every step ran and every assertion held.
	Pass bool `json:"pass"`

	// Trace holds every delivered report in delivery order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains step and assertion failures.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// snapshot reduces delivered reports to a trace event.
func snapshot(seq int, cycle string, reps *ir.Reports) TraceEvent {
	ev := TraceEvent{
		Seq:         seq,
		Cycle:       cycle,
		Initiation:  string(reps.InitiationCondition),
		Termination: string(reps.TerminationCondition),
		Reports:     make([]ReportSnapshot, 0, len(reps.Reports)),
	}
	for _, rep := range reps.Reports {
		rs := ReportSnapshot{Name: rep.Name, Count: rep.Count}
		for _, t := range rep.Tags {
			rs.EPCs = append(rs.EPCs, t.Tag.EPC)
		}
		for _, e := range rep.Events {
			rs.Events = append(rs.Events, e.URI)
		}
		slices.Sort(rs.EPCs)
		slices.Sort(rs.Events)
		ev.Reports = append(ev.Reports, rs)
	}
	return ev
}

// toCanonicalMap converts a trace event for ir.MarshalCanonical, which
// only handles primitives, string slices, maps and slices of any.
func (e TraceEvent) toCanonicalMap() map[string]any {
	reports := make([]any, len(e.Reports))
	for i, rs := range e.Reports {
		m := map[string]any{"name": rs.Name}
		if rs.Count != nil {
			m["count"] = *rs.Count
		}
		if len(rs.EPCs) > 0 {
			m["epcs"] = rs.EPCs
		}
		if len(rs.Events) > 0 {
			m["events"] = rs.Events
		}
		reports[i] = m
	}
	return map[string]any{
		"seq":         e.Seq,
		"cycle":       e.Cycle,
		"initiation":  e.Initiation,
		"termination": e.Termination,
		"reports":     reports,
	}
}
