package testutil

import (
	"sync"
	"time"

	"github.com/roach88/alecycle/internal/ir"
)

// Recorder is a subscriber controller that records what it is sent.
//
// It balances every Inc with either Dec or Enqueue, so InFlight returns to
// zero once every snapshot it was counted on has been handled.
type Recorder struct {
	mu       sync.Mutex
	reports  []*ir.Reports
	inFlight int
	incs     int
	decs     int
	active   bool
	disposed int
	ch       chan *ir.Reports
}

// NewRecorder creates an inactive recorder.
func NewRecorder() *Recorder {
	return &Recorder{ch: make(chan *ir.Reports, 64)}
}

// Inc implements the controller contract.
func (r *Recorder) Inc() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inFlight++
	r.incs++
}

// Dec implements the controller contract.
func (r *Recorder) Dec() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inFlight--
	r.decs++
}

// Enqueue records rep.
func (r *Recorder) Enqueue(rep *ir.Reports) {
	r.mu.Lock()
	r.reports = append(r.reports, rep)
	r.inFlight--
	r.mu.Unlock()

	select {
	case r.ch <- rep:
	default:
	}
}

// Dispose counts disposals.
func (r *Recorder) Dispose() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disposed++
}

// Active implements the controller contract.
func (r *Recorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// SetActive implements the controller contract.
func (r *Recorder) SetActive(active bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = active
}

// Reports returns the recorded reports in delivery order.
func (r *Recorder) Reports() []*ir.Reports {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*ir.Reports, len(r.reports))
	copy(out, r.reports)
	return out
}

// Len returns the number of recorded reports.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reports)
}

// InFlight returns Inc calls not yet balanced by Dec or Enqueue.
func (r *Recorder) InFlight() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inFlight
}

// Suppressed returns how many snapshots were balanced with Dec.
func (r *Recorder) Suppressed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.decs
}

// Disposed reports whether Dispose was called.
func (r *Recorder) Disposed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.disposed > 0
}

// Next waits up to timeout for the next delivered report.
func (r *Recorder) Next(timeout time.Duration) (*ir.Reports, bool) {
	select {
	case rep := <-r.ch:
		return rep, true
	case <-time.After(timeout):
		return nil, false
	}
}
