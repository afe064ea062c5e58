package cycle

import (
	"time"

	"github.com/roach88/alecycle/internal/ir"
)

// ReportsInfo is the snapshot of one boundary crossing. It is created once
// by the runner and never mutated after it is queued.
type ReportsInfo struct {
	CycleID string
	Name    string
	Kind    Kind

	// Subscribers are the controllers the report goes to.
	Subscribers []Controller

	// Present is the collection of the boundary; Past that of the
	// boundary before it (empty for the first one).
	Present *Data
	Past    *Data

	Start             time.Time
	TotalMilliseconds int64

	Initiation         ir.InitiationCondition
	InitiationTrigger  string
	Termination        ir.TerminationCondition
	TerminationTrigger string
}

// Header returns a body-less report carrying the snapshot's metadata.
func (i *ReportsInfo) Header() *ir.Reports {
	return &ir.Reports{
		SpecName:             i.Name,
		Date:                 i.Start,
		TotalMilliseconds:    i.TotalMilliseconds,
		InitiationCondition:  i.Initiation,
		InitiationTrigger:    i.InitiationTrigger,
		TerminationCondition: i.Termination,
		TerminationTrigger:   i.TerminationTrigger,
	}
}
