package session

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-node/internal/clock"
)

// Defaults for the reconnect policy.
const (
	DefaultCooldown   = 20 * time.Second
	DefaultWaitSlices = 50
	DefaultWaitSlice  = 100 * time.Millisecond

	DefaultWillPayload     = "offline"
	DefaultPresencePayload = "online"

	willQoS = 1
)

// Config holds the session settings. Templates may contain %s.
type Config struct {
	ClientIDTemplate string
	Username         string
	Password         string

	WillTopicTemplate string
	WillPayload       string
	PresencePayload   string
	Retained          bool

	// LivenessTopicTemplate is subscribed after connect. Empty disables it.
	LivenessTopicTemplate string

	Cooldown   time.Duration
	WaitSlices int
	WaitSlice  time.Duration

	// Handler receives every inbound message after the watchdog is fed.
	Handler Handler
}

// Expander expands %s templates with the device identity.
type Expander interface {
	Expand(tmpl string) (string, error)
}

// Feeder is fed on connect and on every inbound message.
type Feeder interface {
	Feed()
}

// Servicer is polled during the post-failure wait.
type Servicer interface {
	Service()
}

// LinkChecker reports whether the link is still up.
type LinkChecker interface {
	IsUp() bool
}

// Logger defines the logging interface for the session manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Stats counts session activity.
type Stats struct {
	Attempts uint64
	Failures uint64
	Messages uint64
}

// Manager owns the broker session. EnsureConnected and Pump must be called
// from a single goroutine.
type Manager struct {
	transport Transport
	cfg       Config
	clock     clock.Clock
	expander  Expander
	feeder    Feeder
	servicer  Servicer
	link      LinkChecker
	logger    Logger

	attempted   bool
	lastAttempt time.Time

	initFailure   atomic.Bool
	presence      atomic.Pointer[string]
	presenceDirty atomic.Bool
	willTopic     string

	attempts atomic.Uint64
	failures atomic.Uint64
	messages atomic.Uint64
}

// Dependencies groups the collaborators of a Manager.
type Dependencies struct {
	Transport Transport
	Clock     clock.Clock
	Expander  Expander
	Feeder    Feeder
	Servicer  Servicer
	Link      LinkChecker
}

// NewManager creates a session manager. Zero policy values take defaults.
func NewManager(cfg Config, deps Dependencies) *Manager {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if cfg.WaitSlices <= 0 {
		cfg.WaitSlices = DefaultWaitSlices
	}
	if cfg.WaitSlice <= 0 {
		cfg.WaitSlice = DefaultWaitSlice
	}
	if cfg.WillPayload == "" {
		cfg.WillPayload = DefaultWillPayload
	}
	if cfg.PresencePayload == "" {
		cfg.PresencePayload = DefaultPresencePayload
	}

	m := &Manager{
		transport: deps.Transport,
		cfg:       cfg,
		clock:     deps.Clock,
		expander:  deps.Expander,
		feeder:    deps.Feeder,
		servicer:  deps.Servicer,
		link:      deps.Link,
		logger:    noopLogger{},
	}
	presence := cfg.PresencePayload
	m.presence.Store(&presence)
	return m
}

// SetLogger sets the logger.
func (m *Manager) SetLogger(logger Logger) {
	if logger != nil {
		m.logger = logger
	}
}

// Connected reports whether the transport has an open session.
func (m *Manager) Connected() bool {
	return m.transport.Connected()
}

// EnsureConnected returns nil if a session is open. Otherwise it makes one
// connect attempt if the cooldown has elapsed, and returns ErrCooldown if
// it has not.
func (m *Manager) EnsureConnected(ctx context.Context) error {
	if m.transport.Connected() {
		return nil
	}

	now := m.clock.Now()
	if m.attempted && now.Sub(m.lastAttempt) < m.cfg.Cooldown {
		return ErrCooldown
	}
	m.attempted = true
	m.lastAttempt = now
	m.attempts.Add(1)

	opts, err := m.connectOptions()
	if err != nil {
		m.failures.Add(1)
		return fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}

	m.logger.Debug("connecting to broker", "client_id", opts.ClientID)
	if err := m.transport.Connect(opts); err != nil {
		m.failures.Add(1)
		m.logger.Warn("broker connect failed", "error", err, "client_id", opts.ClientID)
		if werr := m.waitAfterFailure(ctx); werr != nil {
			return fmt.Errorf("%w: %w", werr, err)
		}
		return fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}

	if m.feeder != nil {
		m.feeder.Feed()
	}
	m.willTopic = opts.WillTopic
	m.presenceDirty.Store(false)
	m.afterConnect()
	m.logger.Info("broker session established", "client_id", opts.ClientID)
	return nil
}

func (m *Manager) connectOptions() (ConnectOptions, error) {
	clientID, err := m.expander.Expand(m.cfg.ClientIDTemplate)
	if err != nil {
		return ConnectOptions{}, fmt.Errorf("expanding client id: %w", err)
	}
	willTopic, err := m.expander.Expand(m.cfg.WillTopicTemplate)
	if err != nil {
		return ConnectOptions{}, fmt.Errorf("expanding will topic: %w", err)
	}
	return ConnectOptions{
		ClientID:     clientID,
		Username:     m.cfg.Username,
		Password:     m.cfg.Password,
		WillTopic:    willTopic,
		WillPayload:  []byte(m.cfg.WillPayload),
		WillQoS:      willQoS,
		WillRetained: true,
	}, nil
}

func (m *Manager) afterConnect() {
	if m.cfg.LivenessTopicTemplate != "" {
		topic, err := m.expander.Expand(m.cfg.LivenessTopicTemplate)
		if err == nil {
			err = m.transport.Subscribe(topic, m.dispatch)
		}
		if err != nil {
			m.logger.Warn("liveness subscription failed", "error", err)
		}
	}
	m.publishPresence()
}

func (m *Manager) publishPresence() {
	if m.willTopic == "" {
		return
	}
	payload := *m.presence.Load()
	if err := m.transport.Publish(m.willTopic, []byte(payload), m.cfg.Retained); err != nil {
		m.logger.Warn("presence publish failed", "error", err, "topic", m.willTopic)
	}
}

// waitAfterFailure services the update listener in short slices, giving
// up early if the link drops.
func (m *Manager) waitAfterFailure(ctx context.Context) error {
	for i := 0; i < m.cfg.WaitSlices; i++ {
		if m.servicer != nil {
			m.servicer.Service()
		}
		if m.link != nil && !m.link.IsUp() {
			return ErrLinkLost
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		m.clock.Sleep(m.cfg.WaitSlice)
	}
	return nil
}

// Pump dispatches queued inbound messages.
func (m *Manager) Pump(_ context.Context) error {
	if !m.transport.Connected() {
		return fmt.Errorf("%w: %w", ErrPumpFailed, ErrNotConnected)
	}
	if _, err := m.transport.Pump(); err != nil {
		return fmt.Errorf("%w: %w", ErrPumpFailed, err)
	}
	if m.presenceDirty.CompareAndSwap(true, false) {
		m.publishPresence()
	}
	return nil
}

// Drop closes the session so the next EnsureConnected starts afresh.
func (m *Manager) Drop() {
	if m.transport.Connected() {
		m.transport.Disconnect()
		m.logger.Info("broker session dropped")
	}
}

// ReportInitFailure replaces the presence payload with status and stops
// inbound messages from feeding the watchdog. If a session is open the new
// status is published on the next Pump. Safe to call from any goroutine.
func (m *Manager) ReportInitFailure(status string) {
	m.presence.Store(&status)
	m.initFailure.Store(true)
	m.presenceDirty.Store(true)
}

// InitFailed reports whether an initialization failure was reported.
func (m *Manager) InitFailed() bool {
	return m.initFailure.Load()
}

// Presence returns the payload published on connect.
func (m *Manager) Presence() string {
	return *m.presence.Load()
}

// Stats returns activity counters.
func (m *Manager) Stats() Stats {
	return Stats{
		Attempts: m.attempts.Load(),
		Failures: m.failures.Load(),
		Messages: m.messages.Load(),
	}
}

func (m *Manager) dispatch(msg Message) {
	m.messages.Add(1)
	if !m.initFailure.Load() && m.feeder != nil {
		m.feeder.Feed()
	}
	if m.cfg.Handler != nil {
		m.cfg.Handler(msg)
	}
}
