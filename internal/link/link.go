package link

import (
	"context"
	"net"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-node/internal/clock"
)

// Default poll budgets. 30 x 500ms matches a typical association time on a
// congested 2.4GHz band.
const (
	DefaultPollAttempts = 30
	DefaultPollInterval = 500 * time.Millisecond

	DefaultAddressPollAttempts = 20
)

// Manager is the link capability the supervisor drives.
type Manager interface {
	// Acquire brings the interface up. It blocks for at most the configured
	// poll budget and returns ErrTimeout or ErrRejected on failure.
	Acquire(ctx context.Context) (*Handle, error)

	// IsUp reports whether the interface currently has connectivity.
	IsUp() bool

	// HardwareAddress returns the interface's MAC address, or nil if the
	// driver has not reported one yet.
	HardwareAddress() net.HardwareAddr

	// Events returns the disconnect latch.
	Events() *Latch

	// Kind names the implementation ("wifi" or "ethernet") for logs.
	Kind() string
}

// Feeder is fed once on every successful acquisition.
type Feeder interface {
	Feed()
}

// Logger defines the logging interface for link managers.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// PollPolicy bounds a wait: the condition is checked up to Attempts+1 times
// with Interval between checks.
type PollPolicy struct {
	Attempts int
	Interval time.Duration
}

// DefaultPollPolicy returns the 30 x 500ms association budget.
func DefaultPollPolicy() PollPolicy {
	return PollPolicy{Attempts: DefaultPollAttempts, Interval: DefaultPollInterval}
}

// Budget returns the longest time a poll with this policy can take.
func (p PollPolicy) Budget() time.Duration {
	return time.Duration(p.Attempts) * p.Interval
}

// Poll waits until cond returns true.
//
// It returns ErrRejected as soon as latch fires, ErrTimeout once the attempt
// budget is spent, or the context error if ctx is cancelled.
func (p PollPolicy) Poll(ctx context.Context, clk clock.Clock, latch *Latch, cond func() bool) error {
	for attempt := 0; ; attempt++ {
		if cond() {
			return nil
		}
		if latch != nil && latch.Fired() {
			return ErrRejected
		}
		if attempt >= p.Attempts {
			return ErrTimeout
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		clk.Sleep(p.Interval)
	}
}

// Latch records unsolicited disconnect events from the driver.
//
// The driver's event callback may run on any goroutine; the supervisor reads
// the latch between steps.
type Latch struct {
	fired atomic.Bool
	count atomic.Uint64
}

// Fired reports whether a disconnect was seen since the last acquisition
// attempt started.
func (l *Latch) Fired() bool {
	return l.fired.Load()
}

// Count returns the total number of disconnect events observed.
func (l *Latch) Count() uint64 {
	return l.count.Load()
}

func (l *Latch) set() {
	l.count.Add(1)
	l.fired.Store(true)
}

func (l *Latch) clear() {
	l.fired.Store(false)
}

// Handle is returned by a successful Acquire.
type Handle struct {
	mgr     Manager
	address string
}

// IsUp reports whether the link is still usable: the driver reports
// connectivity and no disconnect event has been latched.
func (h *Handle) IsUp() bool {
	return h.mgr.IsUp() && !h.mgr.Events().Fired()
}

// Address returns the network address acquired for this link.
func (h *Handle) Address() string {
	return h.address
}

// Checker reports whether a manager's link is usable without holding a
// Handle. It is safe to build before the first acquisition.
type Checker struct {
	Manager Manager
}

// IsUp reports whether the driver has connectivity and no disconnect has
// been latched since the last acquisition attempt.
func (c Checker) IsUp() bool {
	return c.Manager.IsUp() && !c.Manager.Events().Fired()
}
