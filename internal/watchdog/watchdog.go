// Package watchdog provides the liveness deadline that resets the node when
// network activity stops.
//
// The deadline is armed once and can only be pushed back by Feed. There is
// no way to read the remaining time or to cancel an expiry: when the window
// passes without a feed, the platform reset runs.
package watchdog

import (
	"errors"
	"time"
)

// DefaultTimeout is the liveness window.
const DefaultTimeout = 60 * time.Second

var (
	// ErrAlreadyArmed is returned when Arm is called twice.
	ErrAlreadyArmed = errors.New("watchdog: already armed")

	// ErrInvalidTimeout is returned for non-positive timeouts.
	ErrInvalidTimeout = errors.New("watchdog: timeout must be positive")

	// ErrUnsupported is returned by OpenDevice on platforms without a
	// kernel watchdog interface.
	ErrUnsupported = errors.New("watchdog: device watchdog not supported on this platform")
)

// Timer is the liveness deadline.
type Timer interface {
	Arm(timeout time.Duration) error
	Feed()
}

// Logger defines the logging interface for the watchdog.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
