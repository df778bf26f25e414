// Package clock abstracts wall time for the supervisor.
//
// Every poll, cooldown and watchdog countdown in the node goes through a
// Clock so that tests can drive hours of simulated retries in microseconds.
//
// Usage:
//
//	clk := clock.Real()
//	clk.Sleep(500 * time.Millisecond)
//
//	fake := clock.NewFake(time.Unix(0, 0))
//	fake.Sleep(20 * time.Second) // returns immediately, time moves forward
package clock

import "time"

// Clock is the time source used by supervisor components.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Sleep blocks the caller for d.
	Sleep(d time.Duration)

	// AfterFunc calls f once d has elapsed.
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a single-shot countdown created by AfterFunc.
type Timer interface {
	// Stop prevents the timer from firing. Reports whether it was active.
	Stop() bool

	// Reset restarts the countdown with a new duration.
	Reset(d time.Duration) bool
}

type realClock struct{}

// Real returns a Clock backed by package time.
func Real() Clock { return realClock{} }

func (realClock) Now() time.Time        { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
