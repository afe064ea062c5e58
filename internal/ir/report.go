package ir

import "time"

// Reports is the payload delivered to subscribers at the end of a boundary.
//
// A report produced for an UNDEFINE termination carries metadata only.
type Reports struct {
	SpecName             string               `json:"spec_name"`
	Date                 time.Time            `json:"date"`
	TotalMilliseconds    int64                `json:"total_milliseconds"`
	InitiationCondition  InitiationCondition  `json:"initiation_condition"`
	InitiationTrigger    string               `json:"initiation_trigger,omitempty"`
	TerminationCondition TerminationCondition `json:"termination_condition"`
	TerminationTrigger   string               `json:"termination_trigger,omitempty"`
	Reports              []Report             `json:"reports,omitempty"`
	ECSpec               *ECSpec              `json:"ec_spec,omitempty"`
	PCSpec               *PCSpec              `json:"pc_spec,omitempty"`
}

// Empty reports whether no report lists any tag or event.
func (r *Reports) Empty() bool {
	for _, rep := range r.Reports {
		if len(rep.Tags) > 0 || len(rep.Events) > 0 {
			return false
		}
	}
	return true
}

// Report is one named report of a Reports payload.
type Report struct {
	Name   string       `json:"name"`
	Count  *int         `json:"count,omitempty"`
	Tags   []TagEntry   `json:"tags,omitempty"`
	Events []EventEntry `json:"events,omitempty"`
}

// TagEntry is one logical tag in a report.
type TagEntry struct {
	Tag       Tag       `json:"tag"`
	Readers   []string  `json:"readers"`
	Sightings int       `json:"sightings"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// EventEntry is one port event in a report.
type EventEntry struct {
	URI     string       `json:"uri"`
	Reader  string       `json:"reader"`
	Pin     Pin          `json:"pin"`
	State   byte         `json:"state"`
	Time    time.Time    `json:"time"`
	Count   int          `json:"count"`
	Results []PortResult `json:"results,omitempty"`
}
