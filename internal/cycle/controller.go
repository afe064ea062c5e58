package cycle

import "github.com/roach88/alecycle/internal/ir"

// Controller is a subscriber of a cycle.
//
// For every snapshot a controller is captured in, the cycle calls Inc
// before queuing it and then exactly one of Enqueue (deliver) or Dec
// (suppressed). Balancing Inc after delivery is the controller's own
// bookkeeping.
type Controller interface {
	Inc()
	Dec()
	Enqueue(r *ir.Reports)
	Dispose()
	Active() bool
	SetActive(active bool)
}

// Builder turns a snapshot into a report. It returns false when nothing
// should be delivered, e.g. every report is empty and none is requested
// when empty.
type Builder interface {
	Build(info *ReportsInfo) (*ir.Reports, bool)
}

// headerBuilder delivers metadata only.
type headerBuilder struct{}

func (headerBuilder) Build(info *ReportsInfo) (*ir.Reports, bool) { return info.Header(), true }
