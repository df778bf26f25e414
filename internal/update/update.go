// Package update gates the firmware-update listener on proven connectivity.
//
// The Arbiter registers the listener the first time the link is observed up
// and only when an update secret is configured. After that it polls the
// listener on every supervisor iteration. Listener activity (start and
// progress) counts as liveness and feeds the watchdog; end and error events
// are only logged.
package update

import (
	"sync/atomic"
)

// Hooks are the listener's event callbacks. All are optional.
type Hooks struct {
	OnStart    func()
	OnProgress func(done, total int64)
	OnEnd      func()
	OnError    func(err error)
}

// Listener is the firmware-update transport.
type Listener interface {
	Configure(hostname, secret string)
	Begin() error
	Service()
	SetHooks(h Hooks)
}

// Expander expands a hostname template with the device identity.
type Expander interface {
	Expand(tmpl string) (string, error)
}

// Feeder is fed on listener activity.
type Feeder interface {
	Feed()
}

// Logger defines the logging interface for the arbiter.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config holds the update listener settings.
type Config struct {
	// HostnameTemplate may contain %s, replaced with the identity tail.
	HostnameTemplate string

	// Secret authenticates update uploads. Empty disables the listener.
	Secret string
}

// Arbiter decides when the update listener runs.
type Arbiter struct {
	listener Listener
	expander Expander
	cfg      Config
	feeder   Feeder
	logger   Logger

	observed bool
	active   atomic.Bool
	hostname string

	updates atomic.Uint64
}

// NewArbiter creates an arbiter. listener may be nil, in which case the
// arbiter never activates.
func NewArbiter(listener Listener, expander Expander, cfg Config, feeder Feeder) *Arbiter {
	a := &Arbiter{
		listener: listener,
		expander: expander,
		cfg:      cfg,
		feeder:   feeder,
		logger:   noopLogger{},
	}
	if listener != nil {
		listener.SetHooks(Hooks{
			OnStart:    a.onStart,
			OnProgress: a.onProgress,
			OnEnd:      a.onEnd,
			OnError:    a.onError,
		})
	}
	return a
}

// SetLogger sets the logger.
func (a *Arbiter) SetLogger(logger Logger) {
	if logger != nil {
		a.logger = logger
	}
}

// ObserveLink is called with the link state on every supervisor
// iteration. The first up observation configures the listener and, if a
// secret is set, begins it. Later calls do nothing.
func (a *Arbiter) ObserveLink(up bool) {
	if a.observed || !up || a.listener == nil {
		return
	}

	hostname, err := a.expander.Expand(a.cfg.HostnameTemplate)
	if err != nil {
		a.logger.Warn("update hostname unavailable, will retry", "error", err)
		return
	}
	a.observed = true
	a.hostname = hostname
	a.listener.Configure(hostname, a.cfg.Secret)

	if a.cfg.Secret == "" {
		a.logger.Info("update listener disabled, no secret configured")
		return
	}
	if err := a.listener.Begin(); err != nil {
		a.logger.Error("update listener failed to start", "error", err)
		return
	}
	a.active.Store(true)
	a.logger.Info("update listener started", "hostname", hostname)
}

// Service polls the listener when it is active.
func (a *Arbiter) Service() {
	if a.active.Load() {
		a.listener.Service()
	}
}

// Active reports whether the listener has begun.
func (a *Arbiter) Active() bool {
	return a.active.Load()
}

// Hostname returns the hostname the listener was configured with.
func (a *Arbiter) Hostname() string {
	return a.hostname
}

// Updates returns the number of completed updates.
func (a *Arbiter) Updates() uint64 {
	return a.updates.Load()
}

func (a *Arbiter) onStart() {
	a.feed()
	a.logger.Info("update started")
}

func (a *Arbiter) onProgress(done, total int64) {
	a.feed()
	a.logger.Debug("update progress", "done", done, "total", total)
}

func (a *Arbiter) onEnd() {
	a.updates.Add(1)
	a.logger.Info("update finished")
}

func (a *Arbiter) onError(err error) {
	a.logger.Error("update failed", "error", err)
}

func (a *Arbiter) feed() {
	if a.feeder != nil {
		a.feeder.Feed()
	}
}
