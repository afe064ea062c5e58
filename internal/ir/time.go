package ir

import "time"

// UnitMS is the only time unit definitions may use.
const UnitMS = "MS"

// Time is a non-negative span in a definition, e.g. a boundary duration.
type Time struct {
	Value int64  `json:"value"`
	Unit  string `json:"unit"`
}

// MS is shorthand for a Time in milliseconds.
func MS(v int64) *Time {
	return &Time{Value: v, Unit: UnitMS}
}

// Duration converts t to a time.Duration. A nil Time is zero.
func (t *Time) Duration() time.Duration {
	if t == nil {
		return 0
	}
	return time.Duration(t.Value) * time.Millisecond
}

// Parse validates t and returns its duration. field names the definition
// field for the error message. A nil Time parses to zero.
func (t *Time) Parse(field string) (time.Duration, error) {
	if t == nil {
		return 0, nil
	}
	unit := t.Unit
	if unit == "" {
		unit = UnitMS
	}
	if unit != UnitMS {
		return 0, NewValidationError("%s: unsupported time unit %q", field, t.Unit)
	}
	if t.Value < 0 {
		return 0, NewValidationError("%s: value %d must not be negative", field, t.Value)
	}
	return time.Duration(t.Value) * time.Millisecond, nil
}

// InitiationCondition is why a boundary started.
type InitiationCondition string

const (
	InitiationRequested    InitiationCondition = "REQUESTED"
	InitiationTrigger      InitiationCondition = "TRIGGER"
	InitiationRepeatPeriod InitiationCondition = "REPEAT_PERIOD"
	InitiationUndefine     InitiationCondition = "UNDEFINE"
)

// TerminationCondition is why a boundary ended.
type TerminationCondition string

const (
	TerminationTrigger       TerminationCondition = "TRIGGER"
	TerminationDuration      TerminationCondition = "DURATION"
	TerminationStableSet     TerminationCondition = "STABLE_SET"
	TerminationNoNewEvents   TerminationCondition = "NO_NEW_EVENTS"
	TerminationDataAvailable TerminationCondition = "DATA_AVAILABLE"
	TerminationUnrequest     TerminationCondition = "UNREQUEST"
	TerminationUndefine      TerminationCondition = "UNDEFINE"
)
