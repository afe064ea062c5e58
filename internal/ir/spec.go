package ir

// BoundarySpec configures when a cycle's boundaries start and end.
//
// Stop conditions are Duration, StableSetInterval, NoNewEventsInterval,
// WhenDataAvailable and StopTriggers. RepeatPeriod is not a stop condition.
type BoundarySpec struct {
	StartTriggers       []string `json:"start_triggers,omitempty"`
	StopTriggers        []string `json:"stop_triggers,omitempty"`
	RepeatPeriod        *Time    `json:"repeat_period,omitempty"`
	Duration            *Time    `json:"duration,omitempty"`
	StableSetInterval   *Time    `json:"stable_set_interval,omitempty"`
	NoNewEventsInterval *Time    `json:"no_new_events_interval,omitempty"`
	WhenDataAvailable   bool     `json:"when_data_available,omitempty"`
}

// ReportSet selects which tags an event-cycle report lists.
type ReportSet string

const (
	ReportSetCurrent   ReportSet = "CURRENT"
	ReportSetAdditions ReportSet = "ADDITIONS"
	ReportSetDeletions ReportSet = "DELETIONS"
)

// ValidReportSets defines allowed report sets.
var ValidReportSets = map[ReportSet]bool{
	ReportSetCurrent:   true,
	ReportSetAdditions: true,
	ReportSetDeletions: true,
}

// ECReportSpec describes one report of an event cycle.
type ECReportSpec struct {
	Name               string    `json:"name"`
	Set                ReportSet `json:"set"`
	ReportIfEmpty      bool      `json:"report_if_empty,omitempty"`
	ReportOnlyOnChange bool      `json:"report_only_on_change,omitempty"`
	IncludeCount       bool      `json:"include_count,omitempty"`
}

// ECSpec is a parsed event-cycle definition.
type ECSpec struct {
	LogicalReaders       []string       `json:"logical_readers"`
	Boundary             BoundarySpec   `json:"boundary"`
	Reports              []ECReportSpec `json:"reports"`
	PrimaryKeyFields     []string       `json:"primary_key_fields,omitempty"`
	IncludeSpecInReports bool           `json:"include_spec_in_reports,omitempty"`
}

// PCReportSpec describes one report of a port cycle. An empty Pins list
// reports every event.
type PCReportSpec struct {
	Name          string `json:"name"`
	ReportIfEmpty bool   `json:"report_if_empty,omitempty"`
	Pins          []Pin  `json:"pins,omitempty"`
}

// PCSpec is a parsed port-cycle definition.
type PCSpec struct {
	LogicalReaders       []string       `json:"logical_readers"`
	Boundary             BoundarySpec   `json:"boundary"`
	Reports              []PCReportSpec `json:"reports"`
	IncludeSpecInReports bool           `json:"include_spec_in_reports,omitempty"`
}
