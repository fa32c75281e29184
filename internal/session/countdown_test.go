package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/provafacil/simulado-backend/internal/session"
)

// fakeClock is a settable clock shared by countdown and store tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

const (
	examDuration     = 19800 * time.Second
	warningThreshold = 1800 * time.Second
)

func TestCountdownRecomputesFromStart(t *testing.T) {
	start := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)
	clock := newFakeClock(start)
	cd := session.NewCountdown(clock, examDuration, warningThreshold)

	tick := cd.At(start, start)
	if tick.Remaining != examDuration {
		t.Fatalf("remaining = %v, want %v", tick.Remaining, examDuration)
	}
	if tick.Formatted != "05:30:00" {
		t.Fatalf("formatted = %q, want 05:30:00", tick.Formatted)
	}
	if tick.Warning || tick.Expired {
		t.Fatalf("fresh countdown should be neither warning nor expired: %+v", tick)
	}

	// However the ticks were scheduled, a full elapsed duration reads zero.
	tick = cd.At(start, start.Add(examDuration))
	if tick.Remaining != 0 || !tick.Expired {
		t.Fatalf("expired countdown = %+v", tick)
	}
	if tick.Formatted != "00:00:00" {
		t.Fatalf("formatted = %q, want 00:00:00", tick.Formatted)
	}

	// Clock far past the deadline (device slept): remaining clamps at zero.
	tick = cd.At(start, start.Add(examDuration+3*time.Hour))
	if tick.Remaining != 0 || !tick.Expired {
		t.Fatalf("long-overdue countdown = %+v", tick)
	}
}

func TestCountdownWarningThreshold(t *testing.T) {
	start := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)
	cd := session.NewCountdown(newFakeClock(start), examDuration, warningThreshold)

	justBefore := cd.At(start, start.Add(examDuration-warningThreshold-time.Second))
	if justBefore.Warning {
		t.Fatalf("warning fired with %v remaining", justBefore.Remaining)
	}
	atThreshold := cd.At(start, start.Add(examDuration-warningThreshold))
	if !atThreshold.Warning {
		t.Fatalf("warning not set with %v remaining", atThreshold.Remaining)
	}
}

func TestCountdownRunExpiresOnce(t *testing.T) {
	start := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)
	clock := newFakeClock(start.Add(examDuration)) // already expired
	cd := session.NewCountdown(clock, examDuration, warningThreshold)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ticks := make(chan session.Tick, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		cd.Run(ctx, start, func(t session.Tick) {
			select {
			case ticks <- t:
			default:
			}
		})
	}()

	first := <-ticks
	if !first.Expired {
		t.Fatalf("first tick after deadline not expired: %+v", first)
	}

	// The next tick arrives a second later and must not re-fire the edge.
	select {
	case second := <-ticks:
		if second.Expired {
			t.Fatalf("expiry edge fired twice")
		}
		if second.Remaining != 0 {
			t.Fatalf("post-expiry remaining = %v, want 0", second.Remaining)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("no tick after expiry; ticker appears stopped")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Run did not stop on cancellation")
	}
}

func TestFormatClockZeroPads(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want string
	}{
		{0, "00:00:00"},
		{59 * time.Second, "00:00:59"},
		{61 * time.Minute, "01:01:00"},
		{examDuration, "05:30:00"},
		{-time.Minute, "00:00:00"},
	}
	for _, tc := range cases {
		if got := session.FormatClock(tc.d); got != tc.want {
			t.Errorf("FormatClock(%v) = %q, want %q", tc.d, got, tc.want)
		}
	}
}
