package cycle

import (
	"log/slog"
	"time"

	"github.com/roach88/alecycle/internal/ir"
)

// run is the boundary loop. It exits on dispose, or after the first
// boundary of a volatile cycle.
func (c *Cycle) run() {
	defer close(c.runnerDone)

	enabled := false
	defer func() {
		if enabled {
			c.setEnabled(false)
		}
	}()

	var next time.Time // start of the next repeat period; zero if none
	for {
		initiation, initiationURI, ok := c.awaitStart(&next)
		if !ok {
			return
		}
		if !enabled {
			c.setEnabled(true)
			enabled = true
		}

		info, listeners, keep := c.collect(initiation, initiationURI)

		if len(info.Subscribers) > 0 {
			c.worker.enqueue(info)
		}
		// Listeners are one-shot: released after being counted on the
		// snapshot, so they self-dispose once it is delivered.
		for _, l := range listeners {
			l.SetActive(false)
		}

		slog.Debug("boundary end",
			"cycle", c.cfg.Name,
			"id", c.id,
			"initiation", string(info.Initiation),
			"termination", string(info.Termination),
			"total_ms", info.TotalMilliseconds,
			"items", info.Present.Len(),
			"subscribers", len(info.Subscribers),
			"event", "boundary_end",
		)

		if c.boundary.repeat > 0 {
			next = info.Start.Add(c.boundary.repeat)
		} else {
			next = time.Time{}
		}
		if !keep {
			c.setEnabled(false)
			enabled = false
		}

		if c.cfg.Volatile {
			go c.Dispose()
			return
		}
		if info.Termination == ir.TerminationUndefine {
			return
		}
	}
}

// awaitStart blocks until a start condition holds and activates the cycle.
// Returns false when the cycle is disposed first.
func (c *Cycle) awaitStart(next *time.Time) (ir.InitiationCondition, string, bool) {
	for {
		c.mu.Lock()
		if c.disposed {
			c.busy = false
			c.mu.Unlock()
			return "", "", false
		}
		requested := c.requestedLocked()
		if !requested {
			*next = time.Time{}
			c.pendingStart = ""
		}

		now := time.Now()
		var (
			cond     ir.InitiationCondition
			uri      string
			deadline time.Time
		)
		switch {
		case !requested:
		case c.pendingStart != "":
			cond, uri = ir.InitiationTrigger, c.pendingStart
		case !next.IsZero():
			if now.Before(*next) {
				deadline = *next
			} else {
				cond = ir.InitiationRepeatPeriod
			}
		case len(c.boundary.start) == 0:
			cond = ir.InitiationRequested
		}

		if cond != "" {
			c.pendingStart = ""
			c.pendingStop = ""
			c.active = true
			c.busy = true
			c.win = window{start: now, lastNew: now}
			c.mu.Unlock()
			slog.Debug("boundary start",
				"cycle", c.cfg.Name,
				"id", c.id,
				"initiation", string(cond),
				"trigger", uri,
				"event", "boundary_start",
			)
			return cond, uri, true
		}
		c.busy = !deadline.IsZero()
		c.mu.Unlock()

		c.await(deadline)
	}
}

// collect blocks until the boundary ends, then deactivates the cycle,
// rotates the collection and returns the snapshot with the listeners it
// captured. keep reports whether the reader operations stay enabled for a
// back-to-back boundary.
func (c *Cycle) collect(initiation ir.InitiationCondition, initiationURI string) (*ReportsInfo, []Controller, bool) {
	for {
		c.mu.Lock()
		now := time.Now()
		start := c.win.start
		var (
			term     ir.TerminationCondition
			uri      string
			deadline time.Time
		)
		switch {
		case c.disposed:
			term = ir.TerminationUndefine
		case !c.requestedLocked():
			term = ir.TerminationUnrequest
		case c.pendingStop != "":
			term, uri = ir.TerminationTrigger, c.pendingStop
		case c.boundary.duration > 0 && now.Sub(start) >= c.boundary.duration:
			term = ir.TerminationDuration
		default:
			if c.boundary.duration > 0 {
				deadline = start.Add(c.boundary.duration)
			}
			for _, q := range c.boundary.quiescence {
				due := q.due(c.win)
				if due.IsZero() {
					continue
				}
				if !now.Before(due) {
					term = q.condition()
					break
				}
				if deadline.IsZero() || due.Before(deadline) {
					deadline = due
				}
			}
		}

		if term == "" {
			c.mu.Unlock()
			c.await(deadline)
			continue
		}

		listeners := c.listeners
		info := c.endBoundaryLocked(now, initiation, initiationURI, term, uri)
		keep := c.boundary.fastPath() && !c.disposed && !c.cfg.Volatile && c.requestedLocked()
		c.mu.Unlock()
		return info, listeners, keep
	}
}

// endBoundaryLocked deactivates the cycle and builds the snapshot.
// Listeners are captured and removed.
func (c *Cycle) endBoundaryLocked(now time.Time, initiation ir.InitiationCondition, initiationURI string,
	term ir.TerminationCondition, termURI string) *ReportsInfo {
	present, previous := c.present, c.past
	c.past, c.present = present, NewData()

	subs := make([]Controller, 0, len(c.subscribers)+len(c.listeners))
	subs = append(subs, c.subscribers...)
	subs = append(subs, c.listeners...)

	info := &ReportsInfo{
		CycleID:            c.id,
		Name:               c.cfg.Name,
		Kind:               c.cfg.Kind,
		Subscribers:        subs,
		Present:            present,
		Past:               previous,
		Start:              c.win.start,
		TotalMilliseconds:  now.Sub(c.win.start).Milliseconds(),
		Initiation:         initiation,
		InitiationTrigger:  initiationURI,
		Termination:        term,
		TerminationTrigger: termURI,
	}

	c.listeners = nil
	c.active = false
	c.pendingStop = ""
	if term == ir.TerminationUndefine && len(subs) > 0 {
		c.undefineSent = true
	}
	return info
}

// await blocks until deadline (zero means no deadline), a wake signal or
// dispose.
func (c *Cycle) await(deadline time.Time) {
	if deadline.IsZero() {
		select {
		case <-c.done:
		case <-c.wake:
		}
		return
	}
	d := time.Until(deadline)
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-c.done:
	case <-c.wake:
	case <-timer.C:
	}
}

// setEnabled enables or disables the cycle's operation on every reader.
func (c *Cycle) setEnabled(on bool) {
	for _, a := range c.attachments {
		var err error
		if on {
			err = a.handle.Enable(a.op)
		} else {
			err = a.handle.Disable(a.op)
		}
		if err != nil {
			slog.Warn("toggle reader operation",
				"cycle", c.cfg.Name,
				"reader", a.handle.Name(),
				"enable", on,
				"error", err,
				"event", "operation_toggle_failed",
			)
		}
	}
}
