package compiler

import (
	"fmt"
	"strconv"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/alecycle/internal/ir"
)

// EventCycle is a named event-cycle definition compiled from CUE.
type EventCycle struct {
	Name string
	Spec ir.ECSpec
	Pos  token.Pos
}

// PortCycle is a named port-cycle definition compiled from CUE.
type PortCycle struct {
	Name string
	Spec ir.PCSpec
	Pos  token.Pos
}

// CompileEventCycle parses a CUE value into an EventCycle.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the definition struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`event_cycle: dock: { ... }`)
//	ec, err := CompileEventCycle(v.LookupPath(cue.ParsePath("event_cycle.dock")))
func CompileEventCycle(v cue.Value) (*EventCycle, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	ec := &EventCycle{Name: labelOf(v), Pos: v.Pos()}

	readers, err := parseReaders(v)
	if err != nil {
		return nil, err
	}
	ec.Spec.LogicalReaders = readers

	ec.Spec.Boundary, err = parseBoundary(v)
	if err != nil {
		return nil, err
	}

	reportsVal, err := requireList(v, "reports")
	if err != nil {
		return nil, err
	}
	iter, err := reportsVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		r, err := parseECReport(iter.Value())
		if err != nil {
			return nil, err
		}
		ec.Spec.Reports = append(ec.Spec.Reports, r)
	}
	if len(ec.Spec.Reports) == 0 {
		return nil, &CompileError{
			Field:   "reports",
			Message: "at least one report is required",
			Pos:     reportsVal.Pos(),
		}
	}

	// Primary key fields are optional; the default groups by EPC.
	if pk := v.LookupPath(cue.ParsePath("primary_key_fields")); pk.Exists() {
		fields, err := stringList(pk)
		if err != nil {
			return nil, err
		}
		ec.Spec.PrimaryKeyFields = fields
	}

	ec.Spec.IncludeSpecInReports, err = optionalBool(v, "include_spec_in_reports")
	if err != nil {
		return nil, err
	}

	return ec, nil
}

// CompilePortCycle parses a CUE value into a PortCycle.
func CompilePortCycle(v cue.Value) (*PortCycle, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	pc := &PortCycle{Name: labelOf(v), Pos: v.Pos()}

	readers, err := parseReaders(v)
	if err != nil {
		return nil, err
	}
	pc.Spec.LogicalReaders = readers

	pc.Spec.Boundary, err = parseBoundary(v)
	if err != nil {
		return nil, err
	}

	reportsVal, err := requireList(v, "reports")
	if err != nil {
		return nil, err
	}
	iter, err := reportsVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		r, err := parsePCReport(iter.Value())
		if err != nil {
			return nil, err
		}
		pc.Spec.Reports = append(pc.Spec.Reports, r)
	}
	if len(pc.Spec.Reports) == 0 {
		return nil, &CompileError{
			Field:   "reports",
			Message: "at least one report is required",
			Pos:     reportsVal.Pos(),
		}
	}

	pc.Spec.IncludeSpecInReports, err = optionalBool(v, "include_spec_in_reports")
	if err != nil {
		return nil, err
	}

	return pc, nil
}

// labelOf returns the last path selector of v, unquoted.
func labelOf(v cue.Value) string {
	sels := v.Path().Selectors()
	if len(sels) == 0 {
		return ""
	}
	label := sels[len(sels)-1].String()
	if strings.HasPrefix(label, `"`) {
		if s, err := strconv.Unquote(label); err == nil {
			return s
		}
	}
	return label
}

func parseReaders(v cue.Value) ([]string, error) {
	val, err := requireList(v, "logical_readers")
	if err != nil {
		return nil, err
	}
	readers, err := stringList(val)
	if err != nil {
		return nil, err
	}
	if len(readers) == 0 {
		return nil, &CompileError{
			Field:   "logical_readers",
			Message: "at least one logical reader is required",
			Pos:     val.Pos(),
		}
	}
	return readers, nil
}

// parseBoundary extracts the boundary struct. A missing boundary is an
// error: every cycle needs at least one stop condition.
func parseBoundary(v cue.Value) (ir.BoundarySpec, error) {
	var b ir.BoundarySpec

	bv := v.LookupPath(cue.ParsePath("boundary"))
	if !bv.Exists() {
		return b, &CompileError{
			Field:   "boundary",
			Message: "boundary is required",
			Pos:     v.Pos(),
		}
	}

	var err error
	if st := bv.LookupPath(cue.ParsePath("start_triggers")); st.Exists() {
		if b.StartTriggers, err = stringList(st); err != nil {
			return b, err
		}
	}
	if st := bv.LookupPath(cue.ParsePath("stop_triggers")); st.Exists() {
		if b.StopTriggers, err = stringList(st); err != nil {
			return b, err
		}
	}

	for _, f := range []struct {
		name string
		dst  **ir.Time
	}{
		{"repeat_period", &b.RepeatPeriod},
		{"duration", &b.Duration},
		{"stable_set_interval", &b.StableSetInterval},
		{"no_new_events_interval", &b.NoNewEventsInterval},
	} {
		tv := bv.LookupPath(cue.ParsePath(f.name))
		if !tv.Exists() {
			continue
		}
		t, err := parseTime(tv, "boundary."+f.name)
		if err != nil {
			return b, err
		}
		*f.dst = t
	}

	b.WhenDataAvailable, err = optionalBool(bv, "when_data_available")
	if err != nil {
		return b, err
	}
	return b, nil
}

// parseTime accepts either a plain integer (milliseconds) or a struct
// { value: int, unit: "MS" }.
func parseTime(v cue.Value, field string) (*ir.Time, error) {
	switch v.IncompleteKind() {
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.MS(n), nil
	case cue.StructKind:
		valueVal := v.LookupPath(cue.ParsePath("value"))
		if !valueVal.Exists() {
			return nil, &CompileError{Field: field, Message: "value is required", Pos: v.Pos()}
		}
		n, err := valueVal.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		t := &ir.Time{Value: n, Unit: ir.UnitMS}
		if uv := v.LookupPath(cue.ParsePath("unit")); uv.Exists() {
			unit, err := uv.String()
			if err != nil {
				return nil, formatCUEError(err)
			}
			t.Unit = unit
		}
		return t, nil
	case cue.FloatKind, cue.NumberKind:
		return nil, &CompileError{
			Field:   field,
			Message: "time values must be integers (milliseconds)",
			Pos:     v.Pos(),
		}
	default:
		return nil, &CompileError{
			Field:   field,
			Message: fmt.Sprintf("unsupported time kind: %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

func parseECReport(v cue.Value) (ir.ECReportSpec, error) {
	var r ir.ECReportSpec

	name, err := requireString(v, "name")
	if err != nil {
		return r, err
	}
	r.Name = name

	r.Set = ir.ReportSetCurrent
	if sv := v.LookupPath(cue.ParsePath("set")); sv.Exists() {
		set, err := sv.String()
		if err != nil {
			return r, formatCUEError(err)
		}
		r.Set = ir.ReportSet(set)
	}

	if r.ReportIfEmpty, err = optionalBool(v, "report_if_empty"); err != nil {
		return r, err
	}
	if r.ReportOnlyOnChange, err = optionalBool(v, "report_only_on_change"); err != nil {
		return r, err
	}
	if r.IncludeCount, err = optionalBool(v, "include_count"); err != nil {
		return r, err
	}
	return r, nil
}

func parsePCReport(v cue.Value) (ir.PCReportSpec, error) {
	var r ir.PCReportSpec

	name, err := requireString(v, "name")
	if err != nil {
		return r, err
	}
	r.Name = name

	if r.ReportIfEmpty, err = optionalBool(v, "report_if_empty"); err != nil {
		return r, err
	}

	pv := v.LookupPath(cue.ParsePath("pins"))
	if !pv.Exists() {
		return r, nil
	}
	iter, err := pv.List()
	if err != nil {
		return r, formatCUEError(err)
	}
	for iter.Next() {
		pin, err := parsePin(iter.Value())
		if err != nil {
			return r, err
		}
		r.Pins = append(r.Pins, pin)
	}
	return r, nil
}

// parsePin reads { type: "INPUT"|"OUTPUT", id?: int }. A missing id
// matches every pin of that type.
func parsePin(v cue.Value) (ir.Pin, error) {
	pin := ir.Pin{ID: ir.AnyPin}

	typ, err := requireString(v, "type")
	if err != nil {
		return pin, err
	}
	pin.Type = ir.PinType(typ)

	if iv := v.LookupPath(cue.ParsePath("id")); iv.Exists() {
		n, err := iv.Int64()
		if err != nil {
			return pin, formatCUEError(err)
		}
		pin.ID = int(n)
	}
	return pin, nil
}

func requireList(v cue.Value, field string) (cue.Value, error) {
	lv := v.LookupPath(cue.ParsePath(field))
	if !lv.Exists() {
		return lv, &CompileError{
			Field:   field,
			Message: field + " is required",
			Pos:     v.Pos(),
		}
	}
	if lv.IncompleteKind() != cue.ListKind {
		return lv, &CompileError{
			Field:   field,
			Message: "must be a list",
			Pos:     lv.Pos(),
		}
	}
	return lv, nil
}

func requireString(v cue.Value, field string) (string, error) {
	sv := v.LookupPath(cue.ParsePath(field))
	if !sv.Exists() {
		return "", &CompileError{
			Field:   field,
			Message: field + " is required",
			Pos:     v.Pos(),
		}
	}
	s, err := sv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func optionalBool(v cue.Value, field string) (bool, error) {
	bv := v.LookupPath(cue.ParsePath(field))
	if !bv.Exists() {
		return false, nil
	}
	b, err := bv.Bool()
	if err != nil {
		return false, formatCUEError(err)
	}
	return b, nil
}

func stringList(v cue.Value) ([]string, error) {
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	out := []string{}
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, s)
	}
	return out, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// First error with a position wins.
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
