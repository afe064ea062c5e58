package report

import (
	"github.com/roach88/alecycle/internal/cycle"
	"github.com/roach88/alecycle/internal/ir"
)

// PortBuilder builds port-cycle reports.
type PortBuilder struct {
	spec ir.PCSpec
}

// NewPortBuilder creates a builder for spec.
func NewPortBuilder(spec ir.PCSpec) *PortBuilder {
	return &PortBuilder{spec: spec}
}

// Build implements cycle.Builder.
func (b *PortBuilder) Build(info *cycle.ReportsInfo) (*ir.Reports, bool) {
	out := info.Header()
	if b.spec.IncludeSpecInReports {
		spec := b.spec
		out.PCSpec = &spec
	}

	records := info.Present.Events()
	for _, rs := range b.spec.Reports {
		rep := ir.Report{Name: rs.Name}
		for _, r := range records {
			if !wantsPin(rs.Pins, r.Event.Pin) {
				continue
			}
			rep.Events = append(rep.Events, ir.EventEntry{
				URI:     r.Event.URI,
				Reader:  r.Event.Reader,
				Pin:     r.Event.Pin,
				State:   r.Event.State,
				Time:    r.FirstSeen,
				Count:   r.Count,
				Results: r.Event.Results(),
			})
		}
		if len(rep.Events) == 0 && !rs.ReportIfEmpty {
			continue
		}
		out.Reports = append(out.Reports, rep)
	}
	return out, len(out.Reports) > 0
}

// PinsOf returns the union of pins the reports of spec filter on, or nil
// when any report wants every pin.
func PinsOf(spec ir.PCSpec) []ir.Pin {
	var pins []ir.Pin
	for _, rs := range spec.Reports {
		if len(rs.Pins) == 0 {
			return nil
		}
		pins = append(pins, rs.Pins...)
	}
	return pins
}

func wantsPin(pins []ir.Pin, p ir.Pin) bool {
	if len(pins) == 0 {
		return true
	}
	for _, d := range pins {
		if d.Matches(p) {
			return true
		}
	}
	return false
}
