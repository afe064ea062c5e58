package cycle

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/alecycle/internal/ir"
)

// completionPoll is how often pending port events are checked.
const completionPoll = 10 * time.Millisecond

// worker is the single consumer of a cycle's snapshot queue.
type worker struct {
	cycleID string
	name    string
	queue   *snapshotQueue
	builder Builder
	timeout time.Duration
	done    chan struct{}
}

func newWorker(cycleID, name string, builder Builder, timeout time.Duration) *worker {
	if builder == nil {
		builder = headerBuilder{}
	}
	return &worker{
		cycleID: cycleID,
		name:    name,
		queue:   newSnapshotQueue(),
		builder: builder,
		timeout: timeout,
		done:    make(chan struct{}),
	}
}

// enqueue counts the snapshot on every subscriber, then queues it.
// Returns false, with the counts undone, if the worker is closed.
func (w *worker) enqueue(info *ReportsInfo) bool {
	for _, s := range info.Subscribers {
		s.Inc()
	}
	if w.queue.Enqueue(info) {
		return true
	}
	for _, s := range info.Subscribers {
		s.Dec()
	}
	return false
}

// run drains the queue until it is closed and empty.
func (w *worker) run() {
	defer close(w.done)

	for {
		if info, ok := w.queue.TryDequeue(); ok {
			w.process(info)
			continue
		}
		if w.queue.Drained() {
			return
		}
		<-w.queue.Wait()
	}
}

// close stops accepting snapshots and waits for the queue to drain.
func (w *worker) close() {
	w.queue.Close()
	<-w.done
}

func (w *worker) process(info *ReportsInfo) {
	var (
		reports *ir.Reports
		deliver bool
	)
	if info.Termination == ir.TerminationUndefine {
		reports, deliver = info.Header(), true
	} else {
		w.awaitCompletion(info)
		reports, deliver = w.build(info)
	}

	for _, s := range info.Subscribers {
		if !deliver {
			s.Dec()
			slog.Debug("report suppressed",
				"cycle", w.name,
				"id", w.cycleID,
				"event", "report_suppressed",
			)
			continue
		}
		w.deliver(s, reports)
	}
}

// awaitCompletion polls until every port event of the snapshot has its
// results, or the completion timeout elapses.
func (w *worker) awaitCompletion(info *ReportsInfo) {
	if info.Present.Len() == 0 || len(info.Present.Pending()) == 0 {
		return
	}
	deadline := time.Now().Add(w.timeout)
	for time.Now().Before(deadline) {
		time.Sleep(completionPoll)
		if len(info.Present.Pending()) == 0 {
			return
		}
	}
	slog.Warn("port events incomplete at report time",
		"cycle", w.name,
		"pending", len(info.Present.Pending()),
		"event", "completion_timeout",
	)
}

// build runs the builder. A panicking builder suppresses the report.
func (w *worker) build(info *ReportsInfo) (r *ir.Reports, ok bool) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("report build failed",
				"cycle", w.name,
				"panic", fmt.Sprint(p),
				"event", "build_failed",
			)
			r, ok = nil, false
		}
	}()
	return w.builder.Build(info)
}

// deliver hands r to s. A panicking controller is balanced with Dec and
// does not affect the other subscribers.
func (w *worker) deliver(s Controller, r *ir.Reports) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("report delivery failed",
				"cycle", w.name,
				"panic", fmt.Sprint(p),
				"event", "delivery_failed",
			)
			s.Dec()
		}
	}()
	s.Enqueue(r)
}
