package trigger

import (
	"log/slog"
	"sync"
	"time"
)

// NextDelay returns the milliseconds from elapsed (milliseconds since UTC
// midnight) until the next fire time of an RTC schedule. Fire times lie on
// offset + k*period within a day; the grid restarts at each midnight, so a
// fire that would cross midnight is moved to the next day's offset.
func NextDelay(period, offset, elapsed int64) int64 {
	d := period - floorMod(elapsed-offset, period)
	if elapsed+d >= DayMillis {
		return DayMillis - elapsed + offset
	}
	return d
}

// NextFire returns the first fire time of an RTC spec strictly after now.
func NextFire(spec *Spec, now time.Time) time.Time {
	d := NextDelay(spec.Period, spec.Offset, elapsedInDay(now))
	return now.Add(time.Duration(d) * time.Millisecond)
}

// elapsedInDay returns the milliseconds since UTC midnight.
func elapsedInDay(t time.Time) int64 {
	return floorMod(t.UnixMilli(), DayMillis)
}

// RTCTrigger fires on a wall-clock schedule.
type RTCTrigger struct {
	base
	svc    *RTCService
	period int64
	offset int64
}

// Period returns the schedule period in milliseconds.
func (t *RTCTrigger) Period() int64 { return t.period }

// Offset returns the UTC-normalized offset in milliseconds.
func (t *RTCTrigger) Offset() int64 { return t.offset }

// Invoke implements Trigger.
func (t *RTCTrigger) Invoke() bool { return t.invoke(t) }

// Dispose implements Trigger.
func (t *RTCTrigger) Dispose() {
	t.once.Do(func() { t.svc.Remove(t) })
}

type rtcEntry struct {
	t    *RTCTrigger
	next time.Time
}

// RTCService schedules RTC triggers on a single goroutine.
//
// The goroutine starts with the first trigger and stops when the last one
// is removed. Triggers due at the same instant that share a Key are
// invoked once.
type RTCService struct {
	clock Clock

	mu      sync.Mutex
	entries []*rtcEntry
	running bool
	wake    chan struct{}
	stop    chan struct{}

	wg sync.WaitGroup
}

// NewRTCService creates an idle scheduler.
func NewRTCService(clock Clock) *RTCService {
	if clock == nil {
		clock = SystemClock{}
	}
	return &RTCService{
		clock: clock,
		wake:  make(chan struct{}, 1),
	}
}

// Add schedules t.
func (s *RTCService) Add(t *RTCTrigger) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now().Truncate(time.Millisecond)
	next := now.Add(time.Duration(NextDelay(t.period, t.offset, elapsedInDay(now))) * time.Millisecond)
	s.entries = append(s.entries, &rtcEntry{t: t, next: next})

	if !s.running {
		s.running = true
		s.stop = make(chan struct{})
		s.wg.Add(1)
		go s.run(s.stop)
		slog.Debug("rtc scheduler started", "event", "rtc_start")
		return
	}
	s.signal()
}

// Remove unschedules t. Removing an unknown trigger is a no-op.
func (s *RTCService) Remove(t *RTCTrigger) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, e := range s.entries {
		if e.t == t {
			s.entries = append(s.entries[:i:i], s.entries[i+1:]...)
			break
		}
	}
	if len(s.entries) == 0 && s.running {
		s.running = false
		close(s.stop)
		slog.Debug("rtc scheduler stopped", "event", "rtc_stop")
		return
	}
	s.signal()
}

// Next returns the next scheduled fire time of t.
func (s *RTCService) Next(t *RTCTrigger) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.t == t {
			return e.next, true
		}
	}
	return time.Time{}, false
}

// Len returns the number of scheduled triggers.
func (s *RTCService) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Close unschedules everything and waits for the goroutine to exit.
func (s *RTCService) Close() {
	s.mu.Lock()
	s.entries = nil
	if s.running {
		s.running = false
		close(s.stop)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *RTCService) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *RTCService) run(stop <-chan struct{}) {
	defer s.wg.Done()

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		due, wait := s.collectDue()
		if len(due) > 0 {
			invokeAll(due)
		}

		timer.Reset(wait)
		select {
		case <-stop:
			return
		case <-s.wake:
		case <-timer.C:
		}
	}
}

// collectDue reschedules and returns the triggers whose fire time has
// passed, and the wait until the earliest remaining fire time.
func (s *RTCService) collectDue() ([]*RTCTrigger, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	var due []*RTCTrigger
	wait := time.Hour
	for _, e := range s.entries {
		if !now.Before(e.next) {
			due = append(due, e.t)
			ms := now.Truncate(time.Millisecond)
			e.next = ms.Add(time.Duration(NextDelay(e.t.period, e.t.offset, elapsedInDay(ms))) * time.Millisecond)
		}
		if d := e.next.Sub(now); d < wait {
			wait = d
		}
	}
	if wait < 0 {
		wait = 0
	}
	return due, wait
}
