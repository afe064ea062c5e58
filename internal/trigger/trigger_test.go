package trigger

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/alecycle/internal/ir"
	"github.com/roach88/alecycle/internal/reader"
	"github.com/roach88/alecycle/internal/testutil"
)

func counter(n *atomic.Int32) Callback {
	return func(Trigger) bool {
		n.Add(1)
		return true
	}
}

func TestNextDelay(t *testing.T) {
	tests := []struct {
		name                    string
		period, offset, elapsed int64
		want                    int64
	}{
		{"midnight on grid", 1000, 0, 0, 1000},
		{"before offset", 1000, 250, 100, 150},
		{"on offset", 1000, 250, 250, 1000},
		{"after offset", 1000, 250, 900, 350},
		{"grid wraps at midnight", 25_200_000, 0, 82_000_000, 4_400_000},
		{"wrap lands on next day offset", 25_200_000, 1000, 82_000_000, 4_401_000},
		{"daily period", DayMillis, 3_600_000, 7_200_000, DayMillis - 7_200_000 + 3_600_000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NextDelay(tt.period, tt.offset, tt.elapsed))
		})
	}
}

func TestNextDelay_AlwaysPositiveAndOnGrid(t *testing.T) {
	for _, period := range []int64{1, 7, 1000, 3_600_000, 25_200_000, DayMillis} {
		offset := period / 3
		for elapsed := int64(0); elapsed < DayMillis; elapsed += 997_331 {
			d := NextDelay(period, offset, elapsed)
			require.Positive(t, d, "period=%d elapsed=%d", period, elapsed)
			fire := elapsed + d
			if fire >= DayMillis {
				assert.Equal(t, offset, fire-DayMillis, "period=%d elapsed=%d", period, elapsed)
			} else {
				assert.Equal(t, offset%period, fire%period, "period=%d elapsed=%d", period, elapsed)
			}
		}
	}
}

func TestNextFire(t *testing.T) {
	spec, err := Parse("urn:epcglobal:ale:trigger:rtc:3600000.900000.Z", time.Time{})
	require.NoError(t, err)

	now := time.Date(2024, 3, 1, 10, 20, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 3, 1, 11, 15, 0, 0, time.UTC), NextFire(spec, now))

	onGrid := time.Date(2024, 3, 1, 11, 15, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 3, 1, 12, 15, 0, 0, time.UTC), NextFire(spec, onGrid))
}

func TestParse_RTC(t *testing.T) {
	utc := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	spec, err := Parse("urn:epcglobal:ale:trigger:rtc:60000.500.Z", utc)
	require.NoError(t, err)
	assert.Equal(t, KindRTC, spec.Kind)
	assert.Equal(t, int64(60000), spec.Period)
	assert.Equal(t, int64(500), spec.Offset)

	spec, err = Parse("urn:epcglobal:ale:trigger:rtc:86400000.0.+01:00", utc)
	require.NoError(t, err)
	assert.Equal(t, int64(82_800_000), spec.Offset, "local midnight at +01:00 is 23:00 UTC")

	spec, err = Parse("urn:epcglobal:ale:trigger:rtc:86400000.0.-02:30", utc)
	require.NoError(t, err)
	assert.Equal(t, int64(9_000_000), spec.Offset)

	local := time.Date(2026, 1, 1, 0, 0, 0, 0, time.FixedZone("X", 2*3600))
	spec, err = Parse("urn:epcglobal:ale:trigger:rtc:86400000.0", local)
	require.NoError(t, err)
	assert.Equal(t, int64(79_200_000), spec.Offset, "missing timezone uses the local offset")

	spec, err = Parse("urn:epcglobal:ale:trigger:rtc:1000.1000.Z", utc)
	require.NoError(t, err, "offset equal to period is accepted")
	assert.Equal(t, int64(0), spec.Offset)
}

func TestZoneClock_DefaultsRTCOffset(t *testing.T) {
	svc := NewServices(reader.NewMemory(), ZoneClock{Location: time.FixedZone("X", -5*3600)})
	t.Cleanup(svc.Close)

	tr, err := svc.New("c1", "urn:epcglobal:ale:trigger:rtc:86400000.0", func(Trigger) bool { return true })
	require.NoError(t, err)
	defer tr.Dispose()

	rtc, ok := tr.(*RTCTrigger)
	require.True(t, ok)
	assert.Equal(t, int64(18_000_000), rtc.Offset(), "local midnight at -05:00 is 05:00 UTC")
}

func TestParse_Port(t *testing.T) {
	spec, err := Parse("urn:havis:ale:trigger:port:r1.in", time.Now())
	require.NoError(t, err)
	assert.Equal(t, KindPort, spec.Kind)
	assert.Equal(t, "r1", spec.Reader)
	assert.Equal(t, ir.Pin{Type: ir.PinInput, ID: ir.AnyPin}, spec.Pin)
	assert.Nil(t, spec.State)

	spec, err = Parse("urn:havis:ale:trigger:port:r1.out.3.1", time.Now())
	require.NoError(t, err)
	assert.Equal(t, ir.Pin{Type: ir.PinOutput, ID: 3}, spec.Pin)
	require.NotNil(t, spec.State)
	assert.Equal(t, byte(1), *spec.State)

	spec, err = Parse("urn:havis:ale:trigger:port:r1.in.-1.0", time.Now())
	require.NoError(t, err)
	assert.Equal(t, ir.AnyPin, spec.Pin.ID)
	require.NotNil(t, spec.State)
	assert.Equal(t, byte(0), *spec.State)
}

func TestParse_HTTP(t *testing.T) {
	spec, err := Parse("urn:havis:ale:trigger:http:door", time.Now())
	require.NoError(t, err)
	assert.Equal(t, KindHTTP, spec.Kind)
	assert.Equal(t, "door", spec.Name)
}

func TestParse_Invalid(t *testing.T) {
	uris := []string{
		"",
		"foo",
		"urn:havis:ale:trigger:gpio:x",
		"urn:epcglobal:ale:trigger:http:door",
		"urn:epcglobal:ale:trigger:rtc:0.0",
		"urn:epcglobal:ale:trigger:rtc:86400001.0",
		"urn:epcglobal:ale:trigger:rtc:1000.1001",
		"urn:epcglobal:ale:trigger:rtc:1000.-1",
		"urn:epcglobal:ale:trigger:rtc:1000",
		"urn:epcglobal:ale:trigger:rtc:1000.0.+25:00",
		"urn:epcglobal:ale:trigger:rtc:1000.0.0100",
		"urn:havis:ale:trigger:http:",
		"urn:havis:ale:trigger:http:a/b",
		"urn:havis:ale:trigger:http:a:b",
		"urn:havis:ale:trigger:port:r1",
		"urn:havis:ale:trigger:port:r1.up",
		"urn:havis:ale:trigger:port:r1.in.-2",
		"urn:havis:ale:trigger:port:r1.in.1.2",
		"urn:havis:ale:trigger:port:r1.in.1.1.1",
	}
	for _, uri := range uris {
		t.Run(uri, func(t *testing.T) {
			_, err := Parse(uri, time.Now())
			require.Error(t, err)
			assert.True(t, ir.IsValidation(err), "got %v", err)
			assert.Contains(t, err.Error(), uri)
		})
	}
}

func TestHTTP_DeduplicatesByKey(t *testing.T) {
	s := NewServices(nil, nil)
	defer s.Close()

	var same, other atomic.Int32
	uri := "urn:havis:ale:trigger:http:door"

	t1, err := s.New("cycle-1", uri, counter(&same))
	require.NoError(t, err)
	t2, err := s.New("cycle-1", uri, counter(&same))
	require.NoError(t, err)
	t3, err := s.New("cycle-2", uri, counter(&other))
	require.NoError(t, err)

	assert.True(t, s.HTTP.Handle("door"))
	assert.Equal(t, int32(1), same.Load(), "equal keys fire once")
	assert.Equal(t, int32(1), other.Load())

	assert.False(t, s.HTTP.Handle("gate"))
	assert.Equal(t, []string{"door"}, s.HTTP.Names())

	t1.Dispose()
	t1.Dispose()
	assert.True(t, s.HTTP.Handle("door"), "t2 is still registered")
	assert.Equal(t, int32(2), same.Load())

	t2.Dispose()
	t3.Dispose()
	assert.False(t, s.HTTP.Handle("door"))
	assert.Empty(t, s.HTTP.Names())
}

func TestHTTP_PanickingCallback(t *testing.T) {
	s := NewServices(nil, nil)
	defer s.Close()

	var n atomic.Int32
	_, err := s.New("a", "urn:havis:ale:trigger:http:x", func(Trigger) bool { panic("boom") })
	require.NoError(t, err)
	_, err = s.New("b", "urn:havis:ale:trigger:http:x", counter(&n))
	require.NoError(t, err)

	assert.NotPanics(t, func() { s.HTTP.Handle("x") })
	assert.Equal(t, int32(1), n.Load(), "other triggers still fire")
}

func TestPort_ObservesReader(t *testing.T) {
	mem := reader.NewMemory()
	require.NoError(t, mem.Define("r1"))
	s := NewServices(mem, nil)
	defer s.Close()

	var high, anyPin atomic.Int32
	th, err := s.New("c1", "urn:havis:ale:trigger:port:r1.in.1.1", counter(&high))
	require.NoError(t, err)
	ta, err := s.New("c2", "urn:havis:ale:trigger:port:r1.in", counter(&anyPin))
	require.NoError(t, err)

	assert.Equal(t, 1, mem.LockCount("r1"), "one observation per reader")
	assert.Equal(t, 1, mem.Operations("r1"))

	mem.EmitPort("r1", ir.PortObservation{Pin: ir.Pin{Type: ir.PinInput, ID: 1}, State: 1})
	mem.EmitPort("r1", ir.PortObservation{Pin: ir.Pin{Type: ir.PinInput, ID: 1}, State: 0})
	mem.EmitPort("r1", ir.PortObservation{Pin: ir.Pin{Type: ir.PinInput, ID: 2}, State: 1})
	mem.EmitPort("r1", ir.PortObservation{Pin: ir.Pin{Type: ir.PinOutput, ID: 1}, State: 1})

	assert.Equal(t, int32(1), high.Load())
	assert.Equal(t, int32(3), anyPin.Load())

	th.Dispose()
	assert.Equal(t, 1, mem.LockCount("r1"))
	ta.Dispose()
	assert.Equal(t, 0, mem.LockCount("r1"))
	assert.Equal(t, 0, mem.Operations("r1"))
	assert.Equal(t, 0, s.Port.Len())
}

func TestPort_UnknownReaderLeavesNothing(t *testing.T) {
	mem := reader.NewMemory()
	s := NewServices(mem, nil)
	defer s.Close()

	_, err := s.New("c1", "urn:havis:ale:trigger:port:ghost.in", func(Trigger) bool { return true })
	require.Error(t, err)
	assert.True(t, ir.IsResource(err))
	assert.Equal(t, 0, s.Port.Len())
}

func TestRTC_NextUsesClock(t *testing.T) {
	clock := testutil.NewManualClock(time.Date(2026, 1, 1, 0, 0, 0, 100*int(time.Millisecond), time.UTC))
	s := NewServices(nil, clock)
	defer s.Close()

	tr, err := s.New("c1", "urn:epcglobal:ale:trigger:rtc:1000.250.Z", func(Trigger) bool { return true })
	require.NoError(t, err)

	rtc := tr.(*RTCTrigger)
	next, ok := s.RTC.Next(rtc)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 250*int(time.Millisecond), time.UTC), next)

	tr.Dispose()
	_, ok = s.RTC.Next(rtc)
	assert.False(t, ok)
	assert.Equal(t, 0, s.RTC.Len())
}

// tick moves the clock and wakes the scheduler so it re-reads it.
func tick(s *Services, clock *testutil.ManualClock, d time.Duration) {
	clock.Advance(d)
	s.RTC.signal()
}

func TestRTC_GridRestartsAtMidnight(t *testing.T) {
	clock := testutil.NewManualClock(time.Date(2026, 1, 1, 22, 0, 0, 0, time.UTC))
	s := NewServices(nil, clock)
	defer s.Close()

	// 7h grid: 00:00, 07:00, 14:00, 21:00. 21:00 + 7h crosses midnight.
	var n atomic.Int32
	tr, err := s.New("c1", "urn:epcglobal:ale:trigger:rtc:25200000.0.Z", counter(&n))
	require.NoError(t, err)
	rtc := tr.(*RTCTrigger)

	next, ok := s.RTC.Next(rtc)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), next)

	tick(s, clock, 2*time.Hour)
	require.Eventually(t, func() bool { return n.Load() == 1 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool {
		next, _ := s.RTC.Next(rtc)
		return next.Equal(time.Date(2026, 1, 2, 7, 0, 0, 0, time.UTC))
	}, time.Second, time.Millisecond)

	tick(s, clock, 7*time.Hour)
	require.Eventually(t, func() bool { return n.Load() == 2 }, time.Second, time.Millisecond)

	// Woken again without the clock moving: nothing is due.
	s.RTC.signal()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(2), n.Load())
}

func TestRTC_DeduplicatesSamePass(t *testing.T) {
	clock := testutil.NewManualClock(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	s := NewServices(nil, clock)
	defer s.Close()

	const uri = "urn:epcglobal:ale:trigger:rtc:100.0.Z"
	var same, other atomic.Int32
	for _, creator := range []string{"c1", "c1"} {
		_, err := s.New(creator, uri, counter(&same))
		require.NoError(t, err)
	}
	_, err := s.New("c2", uri, counter(&other))
	require.NoError(t, err)
	require.Equal(t, 3, s.RTC.Len())

	for pass := int32(1); pass <= 5; pass++ {
		tick(s, clock, 100*time.Millisecond)
		require.Eventually(t, func() bool { return other.Load() == pass }, time.Second, time.Millisecond, "pass %d", pass)
		require.Eventually(t, func() bool { return same.Load() == pass }, time.Second, time.Millisecond, "pass %d", pass)
	}
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, other.Load(), same.Load(), "triggers sharing a creator and URI fire once per pass")
}

func TestRTC_FiresPeriodically(t *testing.T) {
	s := NewServices(nil, nil)
	defer s.Close()

	var n atomic.Int32
	tr, err := s.New("c1", "urn:epcglobal:ale:trigger:rtc:20.0.Z", counter(&n))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return n.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)

	tr.Dispose()
	time.Sleep(30 * time.Millisecond)
	stopped := n.Load()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, stopped, n.Load(), "no fires after dispose")
}

func TestRTC_RestartsAfterLastRemoved(t *testing.T) {
	s := NewServices(nil, nil)
	defer s.Close()

	var n atomic.Int32
	tr, err := s.New("c1", "urn:epcglobal:ale:trigger:rtc:10.0.Z", counter(&n))
	require.NoError(t, err)
	tr.Dispose()

	_, err = s.New("c1", "urn:epcglobal:ale:trigger:rtc:10.0.Z", counter(&n))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return n.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
}
