package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-node/internal/clock"
	"github.com/nerrad567/gray-logic-node/internal/identity"
	"github.com/nerrad567/gray-logic-node/internal/link"
	"github.com/nerrad567/gray-logic-node/internal/session"
	"github.com/nerrad567/gray-logic-node/internal/status"
	"github.com/nerrad567/gray-logic-node/internal/update"
	"github.com/nerrad567/gray-logic-node/internal/watchdog"
)

// DefaultIdleInterval is the pause between loop iterations.
const DefaultIdleInterval = 10 * time.Millisecond

// Config holds the supervisor settings.
type Config struct {
	// WatchdogTimeout is the liveness window armed by Boot.
	WatchdogTimeout time.Duration

	// IdleInterval is slept between iterations by Run.
	IdleInterval time.Duration

	// Name is the device name template reported in snapshots, e.g.
	// "node-%s". Empty reports the bare address tail.
	Name string

	// Connected runs at most once per iteration, only while the session is
	// up. It runs on the supervisor goroutine and must return promptly.
	Connected func()
}

// Dependencies groups the components driven by the supervisor.
type Dependencies struct {
	Clock    clock.Clock
	Link     link.Manager
	Session  *session.Manager
	Arbiter  *update.Arbiter
	Reporter *status.Reporter
	Watchdog watchdog.Timer
	Identity *identity.Resolver
}

// Logger defines the logging interface for the supervisor.
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

// Snapshot is a point-in-time view of the supervisor for diagnostics.
type Snapshot struct {
	State       status.State `json:"-"`
	StateName   string       `json:"state"`
	Status      string       `json:"status"`
	Color       uint32       `json:"color"`
	Device      string       `json:"device,omitempty"`
	Address     string       `json:"address,omitempty"`
	Since       time.Time    `json:"since"`
	Iterations  uint64       `json:"iterations"`
	InitFailed  bool         `json:"init_failed"`
	Disconnects uint64       `json:"disconnects"`
}

// Context is the supervisor's global state.
type Context struct {
	cfg       Config
	clock     clock.Clock
	link      link.Manager
	session   *session.Manager
	arbiter   *update.Arbiter
	reporter  *status.Reporter
	watchdog  watchdog.Timer
	identity  *identity.Resolver
	logger    Logger
	observers []Observer

	handle  *link.Handle
	booted  bool
	started bool

	state      atomic.Int32
	since      atomic.Int64
	iterations atomic.Uint64
	address    atomic.Pointer[string]
	device     atomic.Pointer[string]
}

// New creates a supervisor in LinkDown.
func New(cfg Config, deps Dependencies) *Context {
	if cfg.WatchdogTimeout <= 0 {
		cfg.WatchdogTimeout = watchdog.DefaultTimeout
	}
	if cfg.IdleInterval <= 0 {
		cfg.IdleInterval = DefaultIdleInterval
	}
	c := &Context{
		cfg:      cfg,
		clock:    deps.Clock,
		link:     deps.Link,
		session:  deps.Session,
		arbiter:  deps.Arbiter,
		reporter: deps.Reporter,
		watchdog: deps.Watchdog,
		identity: deps.Identity,
		logger:   noopLogger{},
	}
	c.state.Store(int32(status.LinkDown))
	c.since.Store(deps.Clock.Now().UnixNano())
	return c
}

// SetLogger sets the logger.
func (c *Context) SetLogger(logger Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// AddObserver registers o for transitions. Call before Start.
func (c *Context) AddObserver(o Observer) {
	c.observers = append(c.observers, o)
}

// SetConnected replaces the connected hook. Call before Run.
func (c *Context) SetConnected(fn func()) {
	c.cfg.Connected = fn
}

// Boot arms the watchdog and shows the boot colour. It runs before
// application setup, so setup itself must finish within one window.
func (c *Context) Boot() error {
	if c.booted {
		return nil
	}
	if err := c.watchdog.Arm(c.cfg.WatchdogTimeout); err != nil {
		return err
	}
	c.booted = true
	c.reporter.Set(status.Cyan)
	return nil
}

// Start shows Red ahead of the first link attempt. It boots first if Boot
// has not been called.
func (c *Context) Start() error {
	if c.started {
		return nil
	}
	if err := c.Boot(); err != nil {
		return err
	}
	c.started = true
	c.reporter.Report(status.LinkDown)
	c.logger.Info("supervisor started",
		"link", c.link.Kind(),
		"watchdog_timeout", c.cfg.WatchdogTimeout,
	)
	return nil
}

// Run calls Step until ctx is cancelled.
func (c *Context) Run(ctx context.Context) error {
	if err := c.Start(); err != nil {
		return err
	}
	for ctx.Err() == nil {
		c.Step(ctx)
		c.clock.Sleep(c.cfg.IdleInterval)
	}
	c.logger.Info("supervisor stopped", "state", c.State().String())
	return nil
}

// Step performs one iteration of the state machine and reports the
// resulting state through the status reporter.
func (c *Context) Step(ctx context.Context) status.State {
	c.iterations.Add(1)

	if c.State() != status.LinkDown && (c.handle == nil || !c.handle.IsUp()) {
		c.linkLost("disconnect event")
	}
	c.arbiter.ObserveLink(c.State() != status.LinkDown)

	if c.State() == status.LinkDown {
		c.acquire(ctx)
		return c.report()
	}

	c.arbiter.Service()

	if !c.session.Connected() {
		if c.State() == status.SessionUp {
			c.transition(status.LinkUpSessionDown, "session lost")
		}
		if !c.connect(ctx) {
			return c.report()
		}
	}

	if err := c.session.Pump(ctx); err != nil {
		c.logger.Warn("session pump failed", "error", err)
		c.session.Drop()
		c.transition(status.LinkUpSessionDown, "session lost")
		return c.report()
	}

	if c.cfg.Connected != nil {
		c.cfg.Connected()
	}
	return c.report()
}

func (c *Context) acquire(ctx context.Context) {
	handle, err := c.link.Acquire(ctx)
	if err != nil {
		c.logger.Warn("link acquisition failed", "link", c.link.Kind(), "error", err)
		return
	}
	c.handle = handle
	addr := handle.Address()
	c.address.Store(&addr)
	c.resolveIdentity()

	c.logger.Info("link up", "link", c.link.Kind(), "address", addr)
	c.transition(status.LinkUpSessionDown, "link acquired")
	c.arbiter.ObserveLink(true)
}

// connect makes at most one connect attempt and reports whether the session
// is up afterwards.
func (c *Context) connect(ctx context.Context) bool {
	err := c.session.EnsureConnected(ctx)
	switch {
	case err == nil:
		c.transition(status.SessionUp, "session established")
		return true
	case errors.Is(err, session.ErrCooldown):
		return false
	case errors.Is(err, session.ErrLinkLost):
		c.linkLost("link lost during session backoff")
		return false
	default:
		c.logger.Warn("session connect failed", "error", err)
		return false
	}
}

func (c *Context) linkLost(reason string) {
	c.session.Drop()
	c.handle = nil
	empty := ""
	c.address.Store(&empty)
	c.logger.Warn("link down", "link", c.link.Kind(), "reason", reason)
	c.transition(status.LinkDown, reason)
}

func (c *Context) resolveIdentity() {
	if c.identity == nil || c.device.Load() != nil {
		return
	}
	id, err := c.identity.Identity()
	if err != nil {
		c.logger.Warn("device identity unavailable", "error", err)
		return
	}
	name := id.Tail
	if c.cfg.Name != "" {
		if name, err = c.identity.Expand(c.cfg.Name); err != nil {
			c.logger.Warn("device name unavailable", "error", err)
			return
		}
	}
	c.device.Store(&name)
	c.logger.Info("device identity resolved", "device", name, "tail", id.Tail, "address", id.Address.String())
}

func (c *Context) transition(to status.State, reason string) {
	from := c.State()
	if from == to {
		return
	}
	now := c.clock.Now()
	c.state.Store(int32(to))
	c.since.Store(now.UnixNano())
	c.logger.Info("state transition", "from", from.String(), "to", to.String(), "reason", reason)

	t := Transition{From: from, To: to, At: now, Reason: reason}
	for _, o := range c.observers {
		o.ObserveTransition(t)
	}
}

func (c *Context) report() status.State {
	s := c.State()
	c.reporter.Report(s)
	return s
}

// State returns the current supervisor state.
func (c *Context) State() status.State {
	return status.State(c.state.Load())
}

// ReportInitFailure replaces the presence payload with statusText and stops
// inbound messages from feeding the watchdog, so the node resets after one
// window and retries initialization.
func (c *Context) ReportInitFailure(statusText string) {
	c.logger.Error("initialization failure reported", "status", statusText)
	c.session.ReportInitFailure(statusText)
}

// Snapshot returns the diagnostic view. Safe from any goroutine.
func (c *Context) Snapshot() Snapshot {
	s := c.State()
	snap := Snapshot{
		State:       s,
		StateName:   s.String(),
		Status:      c.reporter.Current().String(),
		Color:       c.reporter.Packed(),
		Since:       time.Unix(0, c.since.Load()).UTC(),
		Iterations:  c.iterations.Load(),
		InitFailed:  c.session.InitFailed(),
		Disconnects: c.link.Events().Count(),
	}
	if addr := c.address.Load(); addr != nil {
		snap.Address = *addr
	}
	if dev := c.device.Load(); dev != nil {
		snap.Device = *dev
	}
	return snap
}
