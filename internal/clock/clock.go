// Package clock abstracts time sources so temporal logic (debounce
// timers, retry backoff, sliding windows) can be tested without real
// sleeping.
package clock

import "time"

// Timer is a scheduled callback that can be stopped.
type Timer interface {
	// Stop cancels the timer. Returns false if it already fired.
	Stop() bool
}

// Clock provides current time and deferred execution.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
	// After returns a channel that delivers the time after d.
	After(d time.Duration) <-chan time.Time
	// AfterFunc schedules f to run after d.
	AfterFunc(d time.Duration, f func()) Timer
}

// Real returns a Clock backed by the time package.
func Real() Clock {
	return realClock{}
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
