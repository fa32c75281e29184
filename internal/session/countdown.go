package session

import (
	"context"
	"fmt"
	"time"
)

// Tick is the countdown's output for one cadence step.
type Tick struct {
	// Remaining is the time left, clamped at zero.
	Remaining time.Duration
	// Formatted is Remaining rendered as zero-padded HH:MM:SS.
	Formatted string
	// Warning is set once Remaining drops to the warning threshold.
	Warning bool
	// Expired fires exactly once, on the first tick where Remaining reaches
	// zero. Later ticks at zero report Expired=false so consumers cannot
	// accidentally resubmit on every tick.
	Expired bool
}

// Countdown derives remaining attempt time from a fixed start timestamp and a
// fixed duration. Remaining is recomputed fresh from startedAt on every tick
// rather than decremented, so device sleep or scheduling stalls cannot
// desynchronize it: on resume the correct value is immediately visible.
type Countdown struct {
	clock     Clock
	duration  time.Duration
	threshold time.Duration
	interval  time.Duration
}

// NewCountdown creates a countdown with a 1-second tick cadence.
func NewCountdown(clock Clock, duration, warningThreshold time.Duration) *Countdown {
	return &Countdown{
		clock:     clock,
		duration:  duration,
		threshold: warningThreshold,
		interval:  time.Second,
	}
}

// At computes the tick for the given instants. Pure: Expired here means
// "remaining is zero" (state, not edge); Run converts it to a one-shot edge.
func (c *Countdown) At(startedAt, now time.Time) Tick {
	remaining := c.duration - now.Sub(startedAt)
	if remaining < 0 {
		remaining = 0
	}
	return Tick{
		Remaining: remaining,
		Formatted: FormatClock(remaining),
		Warning:   remaining <= c.threshold,
		Expired:   remaining == 0,
	}
}

// Run delivers ticks at the countdown cadence until ctx is cancelled. The
// first tick is delivered immediately. Ticks keep coming after expiry (with
// Expired=false) so a consumer whose expiry handling failed can retry.
// Run returns only when ctx is done; the ticker is always released.
func (c *Countdown) Run(ctx context.Context, startedAt time.Time, onTick func(Tick)) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	fired := false
	emit := func() {
		t := c.At(startedAt, c.clock.Now())
		if t.Expired {
			if fired {
				t.Expired = false
			}
			fired = true
		}
		onTick(t)
	}

	emit()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			emit()
		}
	}
}

// FormatClock renders a duration as zero-padded HH:MM:SS.
func FormatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}
