package cycle

import (
	"time"

	"github.com/roach88/alecycle/internal/ir"
)

// Kind selects what a cycle collects.
type Kind int

const (
	// KindEvent collects tag sightings.
	KindEvent Kind = iota + 1
	// KindPort collects port events.
	KindPort
)

func (k Kind) String() string {
	switch k {
	case KindEvent:
		return "event"
	case KindPort:
		return "port"
	default:
		return "unknown"
	}
}

// window is the boundary state a quiescence strategy inspects.
type window struct {
	start     time.Time
	lastNew   time.Time // last time a new key entered the collection
	firstData time.Time // zero until the collection is non-empty
}

// quiescence decides when a boundary has gone quiet.
type quiescence interface {
	condition() ir.TerminationCondition
	// due returns when the boundary ends given w. Zero means not armed.
	due(w window) time.Time
}

// stableSet ends the boundary once no new tag has appeared for interval.
type stableSet struct{ interval time.Duration }

func (q stableSet) condition() ir.TerminationCondition { return ir.TerminationStableSet }
func (q stableSet) due(w window) time.Time             { return w.lastNew.Add(q.interval) }

// noNewEvents ends the boundary once no new event has appeared for interval.
type noNewEvents struct{ interval time.Duration }

func (q noNewEvents) condition() ir.TerminationCondition { return ir.TerminationNoNewEvents }
func (q noNewEvents) due(w window) time.Time             { return w.lastNew.Add(q.interval) }

// dataAvailable ends the boundary one reader cycle after the first item.
type dataAvailable struct{ readerCycle time.Duration }

func (q dataAvailable) condition() ir.TerminationCondition { return ir.TerminationDataAvailable }
func (q dataAvailable) due(w window) time.Time {
	if w.firstData.IsZero() {
		return time.Time{}
	}
	return w.firstData.Add(q.readerCycle)
}

// boundary is a parsed ir.BoundarySpec.
type boundary struct {
	start      []string
	stop       []string
	repeat     time.Duration
	duration   time.Duration
	quiescence []quiescence
}

// fastPath reports whether consecutive boundaries follow each other
// without an idle gap, so the reader operation stays enabled across them.
func (b *boundary) fastPath() bool {
	if b.repeat > 0 {
		return b.repeat == b.duration
	}
	return len(b.start) == 0
}

// parseBoundary validates spec for a cycle of kind k.
func parseBoundary(k Kind, spec ir.BoundarySpec, readerCycle time.Duration) (*boundary, error) {
	b := &boundary{
		start: append([]string(nil), spec.StartTriggers...),
		stop:  append([]string(nil), spec.StopTriggers...),
	}

	var err error
	if b.repeat, err = spec.RepeatPeriod.Parse("repeatPeriod"); err != nil {
		return nil, err
	}
	if b.duration, err = spec.Duration.Parse("duration"); err != nil {
		return nil, err
	}
	stable, err := spec.StableSetInterval.Parse("stableSetInterval")
	if err != nil {
		return nil, err
	}
	quiet, err := spec.NoNewEventsInterval.Parse("noNewEventsInterval")
	if err != nil {
		return nil, err
	}

	if stable > 0 {
		if k != KindEvent {
			return nil, ir.NewValidationError("stableSetInterval is only supported by event cycles")
		}
		b.quiescence = append(b.quiescence, stableSet{interval: stable})
	}
	if quiet > 0 {
		if k != KindPort {
			return nil, ir.NewValidationError("noNewEventsInterval is only supported by port cycles")
		}
		b.quiescence = append(b.quiescence, noNewEvents{interval: quiet})
	}
	if spec.WhenDataAvailable {
		if readerCycle <= 0 {
			readerCycle = DefaultReaderCycle
		}
		b.quiescence = append(b.quiescence, dataAvailable{readerCycle: readerCycle})
	}

	if b.duration == 0 && len(b.quiescence) == 0 && len(b.stop) == 0 {
		return nil, ir.NewValidationError("boundary defines no stop condition")
	}
	return b, nil
}
