package trigger

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/alecycle/internal/ir"
)

// URI grammar constants.
const (
	SchemeEPCglobal = "epcglobal"
	SchemeHavis     = "havis"

	TypeRTC  = "rtc"
	TypeHTTP = "http"
	TypePort = "port"

	// DayMillis is the length of a day in milliseconds.
	DayMillis int64 = 86_400_000
)

// Kind is the parsed variant of a trigger URI.
type Kind int

const (
	KindRTC Kind = iota + 1
	KindHTTP
	KindPort
)

// Spec is a parsed trigger URI.
type Spec struct {
	URI  string
	Kind Kind

	// RTC: period and UTC-normalized offset in milliseconds.
	Period int64
	Offset int64

	// HTTP: symbolic name.
	Name string

	// Port: target reader, pin descriptor and optional expected state.
	Reader string
	Pin    ir.Pin
	State  *byte
}

// Parse parses a trigger URI. local supplies the offset used when an RTC
// URI has no timezone (the host's local offset in production).
//
// Any unknown scheme/type or malformed parameter yields a validation error
// whose message embeds the uri.
func Parse(uri string, local time.Time) (*Spec, error) {
	// urn:<scheme>:ale:trigger:<type>:<params>
	parts := strings.SplitN(uri, ":", 6)
	if len(parts) != 6 || parts[0] != "urn" || parts[2] != "ale" || parts[3] != "trigger" {
		return nil, ir.NewURIError(uri, "expected urn:<scheme>:ale:trigger:<type>:<params>")
	}
	scheme, typ, params := parts[1], parts[4], parts[5]

	switch {
	case scheme == SchemeEPCglobal && typ == TypeRTC:
		return parseRTC(uri, params, local)
	case scheme == SchemeHavis && typ == TypeHTTP:
		return parseHTTP(uri, params)
	case scheme == SchemeHavis && typ == TypePort:
		return parsePort(uri, params)
	default:
		return nil, ir.NewURIError(uri, fmt.Sprintf("unsupported trigger type %s:%s", scheme, typ))
	}
}

// parseRTC parses <period>.<offset>[.<timezone>].
func parseRTC(uri, params string, local time.Time) (*Spec, error) {
	fields := strings.SplitN(params, ".", 3)
	if len(fields) < 2 {
		return nil, ir.NewURIError(uri, "expected <period>.<offset>[.<timezone>]")
	}
	period, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil || period < 1 || period > DayMillis {
		return nil, ir.NewURIError(uri, fmt.Sprintf("period %q must be 1..%d", fields[0], DayMillis))
	}
	offset, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil || offset < 0 || offset > period {
		return nil, ir.NewURIError(uri, fmt.Sprintf("offset %q must be 0..%d", fields[1], period))
	}

	_, zoneSeconds := local.Zone()
	if len(fields) == 3 {
		zoneSeconds, err = parseZone(fields[2])
		if err != nil {
			return nil, ir.NewURIError(uri, err.Error())
		}
	}

	return &Spec{
		URI:    uri,
		Kind:   KindRTC,
		Period: period,
		Offset: floorMod(offset-int64(zoneSeconds)*1000, period),
	}, nil
}

// parseZone parses "Z" or "±hh:mm" into seconds east of UTC.
func parseZone(z string) (int, error) {
	if z == "Z" {
		return 0, nil
	}
	if len(z) != 6 || (z[0] != '+' && z[0] != '-') || z[3] != ':' {
		return 0, fmt.Errorf("timezone %q must be Z or ±hh:mm", z)
	}
	hh, err1 := strconv.Atoi(z[1:3])
	mm, err2 := strconv.Atoi(z[4:6])
	if err1 != nil || err2 != nil || hh > 23 || mm > 59 {
		return 0, fmt.Errorf("timezone %q must be Z or ±hh:mm", z)
	}
	secs := hh*3600 + mm*60
	if z[0] == '-' {
		secs = -secs
	}
	return secs, nil
}

// parseHTTP parses <name>.
func parseHTTP(uri, name string) (*Spec, error) {
	if err := ir.ValidName(name); err != nil {
		return nil, ir.NewURIError(uri, err.Error())
	}
	return &Spec{URI: uri, Kind: KindHTTP, Name: name}, nil
}

// parsePort parses <reader>.<in|out>[.<id>][.<state>].
func parsePort(uri, params string) (*Spec, error) {
	fields := strings.Split(params, ".")
	if len(fields) < 2 || len(fields) > 4 {
		return nil, ir.NewURIError(uri, "expected <reader>.<in|out>[.<id>][.<state>]")
	}
	if err := ir.ValidName(fields[0]); err != nil {
		return nil, ir.NewURIError(uri, err.Error())
	}

	spec := &Spec{URI: uri, Kind: KindPort, Reader: fields[0], Pin: ir.Pin{ID: ir.AnyPin}}
	switch fields[1] {
	case "in":
		spec.Pin.Type = ir.PinInput
	case "out":
		spec.Pin.Type = ir.PinOutput
	default:
		return nil, ir.NewURIError(uri, fmt.Sprintf("direction %q must be in or out", fields[1]))
	}

	if len(fields) >= 3 {
		id, err := strconv.Atoi(fields[2])
		if err != nil || id < ir.AnyPin {
			return nil, ir.NewURIError(uri, fmt.Sprintf("pin id %q must be an integer >= -1", fields[2]))
		}
		spec.Pin.ID = id
	}
	if len(fields) == 4 {
		st, err := strconv.ParseUint(fields[3], 10, 8)
		if err != nil || st > 1 {
			return nil, ir.NewURIError(uri, fmt.Sprintf("state %q must be 0 or 1", fields[3]))
		}
		b := byte(st)
		spec.State = &b
	}
	return spec, nil
}

// floorMod returns a mod m in [0, m).
func floorMod(a, m int64) int64 {
	r := a % m
	if r < 0 {
		r += m
	}
	return r
}
