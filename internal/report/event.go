package report

import (
	"slices"
	"strings"
	"sync"

	"github.com/roach88/alecycle/internal/cycle"
	"github.com/roach88/alecycle/internal/ir"
)

// EventBuilder builds event-cycle reports.
//
// Builders are used by a single delivery worker, but ReportOnlyOnChange
// state is guarded anyway so a builder can be shared.
type EventBuilder struct {
	spec ir.ECSpec

	mu   sync.Mutex
	last map[string]string // report name -> fingerprint of last delivered content
}

// NewEventBuilder creates a builder for spec.
func NewEventBuilder(spec ir.ECSpec) *EventBuilder {
	return &EventBuilder{spec: spec, last: make(map[string]string)}
}

// Build implements cycle.Builder.
func (b *EventBuilder) Build(info *cycle.ReportsInfo) (*ir.Reports, bool) {
	out := info.Header()
	if b.spec.IncludeSpecInReports {
		spec := b.spec
		out.ECSpec = &spec
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, rs := range b.spec.Reports {
		records := selectSet(rs.Set, info.Present, info.Past)

		if rs.ReportOnlyOnChange {
			fp := fingerprint(records)
			if prev, ok := b.last[rs.Name]; ok && prev == fp {
				continue
			}
			b.last[rs.Name] = fp
		}
		if len(records) == 0 && !rs.ReportIfEmpty {
			continue
		}

		rep := ir.Report{Name: rs.Name}
		for _, r := range records {
			rep.Tags = append(rep.Tags, ir.TagEntry{
				Tag:       r.Tag,
				Readers:   slices.Clone(r.Readers),
				Sightings: r.Count(),
				FirstSeen: r.FirstSeen,
				LastSeen:  r.LastSeen,
			})
		}
		if rs.IncludeCount {
			n := len(records)
			rep.Count = &n
		}
		out.Reports = append(out.Reports, rep)
	}
	return out, len(out.Reports) > 0
}

// selectSet returns the records a report set lists.
func selectSet(set ir.ReportSet, present, past *cycle.Data) []*cycle.TagRecord {
	switch set {
	case ir.ReportSetAdditions:
		return difference(present, past)
	case ir.ReportSetDeletions:
		return difference(past, present)
	default:
		return present.Tags()
	}
}

// difference returns the records of a whose key is absent from b.
func difference(a, b *cycle.Data) []*cycle.TagRecord {
	var out []*cycle.TagRecord
	for _, r := range a.Tags() {
		if _, ok := b.Tag(r.Key); !ok {
			out = append(out, r)
		}
	}
	return out
}

func fingerprint(records []*cycle.TagRecord) string {
	keys := make([]string, 0, len(records))
	for _, r := range records {
		keys = append(keys, string(r.Key))
	}
	slices.Sort(keys)
	return strings.Join(keys, ",")
}
