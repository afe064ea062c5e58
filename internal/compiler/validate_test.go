package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/alecycle/internal/ir"
)

func validEventCycle() *EventCycle {
	return &EventCycle{
		Name: "dock",
		Spec: ir.ECSpec{
			LogicalReaders: []string{"r1"},
			Boundary:       ir.BoundarySpec{Duration: ir.MS(100)},
			Reports:        []ir.ECReportSpec{{Name: "all", Set: ir.ReportSetCurrent}},
		},
	}
}

func codes(errs []ValidationError) []string {
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		out = append(out, e.Code)
	}
	return out
}

func TestValidateEventCycleValid(t *testing.T) {
	assert.Empty(t, Validate(validEventCycle()))
	assert.Empty(t, Validate(*validEventCycle()), "by value")
}

func TestValidateEventCycle(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*EventCycle)
		code   string
	}{
		{"empty name", func(ec *EventCycle) { ec.Name = "" }, ErrInvalidName},
		{"reserved char in name", func(ec *EventCycle) { ec.Name = "a/b" }, ErrInvalidName},
		{"no readers", func(ec *EventCycle) { ec.Spec.LogicalReaders = nil }, ErrNoReaders},
		{"duplicate reader", func(ec *EventCycle) { ec.Spec.LogicalReaders = []string{"r1", "r1"} }, ErrInvalidReaderName},
		{"no reports", func(ec *EventCycle) { ec.Spec.Reports = nil }, ErrNoReports},
		{"duplicate report", func(ec *EventCycle) {
			ec.Spec.Reports = append(ec.Spec.Reports, ir.ECReportSpec{Name: "all", Set: ir.ReportSetAdditions})
		}, ErrDuplicateName},
		{"bad set", func(ec *EventCycle) { ec.Spec.Reports[0].Set = "EVERYTHING" }, ErrInvalidReportSet},
		{"bad primary key", func(ec *EventCycle) { ec.Spec.PrimaryKeyFields = []string{"rssi"} }, ErrInvalidPrimaryKey},
		{"negative duration", func(ec *EventCycle) { ec.Spec.Boundary.RepeatPeriod = ir.MS(-1) }, ErrInvalidTime},
		{"no stop condition", func(ec *EventCycle) { ec.Spec.Boundary.Duration = nil }, ErrNoStopCondition},
		{"port-only condition", func(ec *EventCycle) { ec.Spec.Boundary.NoNewEventsInterval = ir.MS(50) }, ErrWrongCycleKind},
		{"bad trigger", func(ec *EventCycle) {
			ec.Spec.Boundary.StartTriggers = []string{"urn:epcglobal:ale:trigger:rtc:0.0"}
		}, ErrInvalidTriggerURI},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ec := validEventCycle()
			tt.mutate(ec)
			errs := Validate(ec)
			require.Len(t, errs, 1, "errors: %v", errs)
			assert.Equal(t, tt.code, errs[0].Code)
		})
	}
}

func TestValidatePortCycle(t *testing.T) {
	pc := &PortCycle{
		Name: "gate",
		Spec: ir.PCSpec{
			LogicalReaders: []string{"g1"},
			Boundary: ir.BoundarySpec{
				StableSetInterval: ir.MS(10),
				StopTriggers:      []string{"urn:havis:ale:trigger:port:g1.in"},
			},
			Reports: []ir.PCReportSpec{{
				Name: "in",
				Pins: []ir.Pin{{Type: "SIDEWAYS", ID: 1}, {Type: ir.PinInput, ID: -2}},
			}},
		},
	}

	errs := Validate(pc)
	assert.Equal(t, []string{ErrWrongCycleKind, ErrInvalidPin, ErrInvalidPin}, codes(errs))
}

func TestValidateCollectsAllErrors(t *testing.T) {
	ec := &EventCycle{Spec: ir.ECSpec{Reports: []ir.ECReportSpec{{Set: "X"}}}}

	errs := Validate(ec)
	assert.Equal(t, []string{
		ErrInvalidName,
		ErrNoReaders,
		ErrNoStopCondition,
		ErrInvalidName,
		ErrInvalidReportSet,
	}, codes(errs))
}

func TestValidateUnsupportedType(t *testing.T) {
	errs := Validate("not a definition")
	require.Len(t, errs, 1)
	assert.Equal(t, ErrUnsupportedIRType, errs[0].Code)
}

func TestValidationErrorFormat(t *testing.T) {
	err := ValidationError{Field: "reports", Message: "at least one report is required", Code: ErrNoReports}
	assert.Equal(t, "[E103] reports: at least one report is required", err.Error())

	err.Line = 7
	assert.Equal(t, "[E103] line 7: reports: at least one report is required", err.Error())
}
