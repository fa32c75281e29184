package session

import "time"

// Clock supplies wall-clock reads. Injected so the countdown and store can be
// tested without real time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the real wall clock.
func SystemClock() Clock { return systemClock{} }
