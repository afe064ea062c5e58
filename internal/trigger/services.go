package trigger

import (
	"github.com/roach88/alecycle/internal/ir"
	"github.com/roach88/alecycle/internal/reader"
)

// Services bundles the per-variant registries. A single value is shared by
// every cycle of a process.
type Services struct {
	Clock Clock
	RTC   *RTCService
	Port  *PortService
	HTTP  *HTTPService
}

// NewServices creates the registries. Port triggers resolve readers
// through readers; clock drives the RTC scheduler (nil means the host
// clock).
func NewServices(readers reader.Manager, clock Clock) *Services {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Services{
		Clock: clock,
		RTC:   NewRTCService(clock),
		Port:  NewPortService(readers),
		HTTP:  NewHTTPService(),
	}
}

// Validate checks uri without registering anything.
func (s *Services) Validate(uri string) error {
	_, err := Parse(uri, s.Clock.Now())
	return err
}

// New parses uri and registers a trigger firing cb on behalf of
// creatorID. The trigger stays registered until Dispose.
func (s *Services) New(creatorID, uri string, cb Callback) (Trigger, error) {
	spec, err := Parse(uri, s.Clock.Now())
	if err != nil {
		return nil, err
	}

	switch spec.Kind {
	case KindRTC:
		t := &RTCTrigger{base: newBase(creatorID, uri, cb), svc: s.RTC, period: spec.Period, offset: spec.Offset}
		s.RTC.Add(t)
		return t, nil
	case KindHTTP:
		t := &HTTPTrigger{base: newBase(creatorID, uri, cb), svc: s.HTTP, name: spec.Name}
		s.HTTP.Add(t)
		return t, nil
	case KindPort:
		t := &PortTrigger{base: newBase(creatorID, uri, cb), svc: s.Port, reader: spec.Reader, pin: spec.Pin, state: spec.State}
		if err := s.Port.Add(t); err != nil {
			return nil, err
		}
		return t, nil
	default:
		return nil, ir.NewURIError(uri, "unsupported trigger type")
	}
}

func newBase(creatorID, uri string, cb Callback) base {
	return base{uri: uri, creatorID: creatorID, callback: cb}
}

// Close stops the RTC scheduler and tears down port observations.
func (s *Services) Close() {
	s.RTC.Close()
	s.Port.Close()
}
