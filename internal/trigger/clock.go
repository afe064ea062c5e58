package trigger

import "time"

// Clock supplies wall-clock time to the RTC scheduler.
// Tests substitute a manual clock to pin the time of day.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the host clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// ZoneClock reads the host clock in a fixed location. RTC URIs without a
// timezone take their offset from it.
type ZoneClock struct {
	Location *time.Location
}

// Now returns time.Now() in c.Location.
func (c ZoneClock) Now() time.Time { return time.Now().In(c.Location) }
