package mqtt

import (
	"crypto/tls"
	"fmt"
	"sync"
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-node/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-node/internal/session"
)

// Transport is a session.Transport backed by paho.
//
// Thread Safety:
//   - Connect, Subscribe, Publish, Pump and Disconnect are meant for the
//     supervisor goroutine.
//   - Connected, Dropped and the paho callbacks are safe from any goroutine.
type Transport struct {
	cfg       config.MQTTConfig
	tlsConfig *tls.Config
	newClient func(*pahomqtt.ClientOptions) pahomqtt.Client

	mu     sync.Mutex
	client pahomqtt.Client
	will   session.ConnectOptions

	connected atomic.Bool
	inbox     chan inbound
	dropped   atomic.Uint64

	// logger for error/panic logging (optional, set via SetLogger).
	logger   Logger
	loggerMu sync.RWMutex
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

type inbound struct {
	msg     session.Message
	handler session.Handler
}

// New creates a transport. It loads the CA bundle but does not connect.
func New(cfg config.MQTTConfig) (*Transport, error) {
	tlsConfig, err := loadTLSConfig(cfg.Broker)
	if err != nil {
		return nil, err
	}
	size := cfg.InboxSize
	if size <= 0 {
		size = defaultInboxSize
	}
	return &Transport{
		cfg:       cfg,
		tlsConfig: tlsConfig,
		newClient: pahomqtt.NewClient,
		inbox:     make(chan inbound, size),
	}, nil
}

// Connect opens a new session, replacing any previous client.
func (t *Transport) Connect(opts session.ConnectOptions) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.client != nil {
		t.client.Disconnect(0)
		t.client = nil
	}
	t.connected.Store(false)

	o := buildClientOptions(t.cfg, t.tlsConfig, opts)
	o.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		t.connected.Store(false)
		if logger := t.getLogger(); logger != nil {
			logger.Warn("MQTT connection lost", "error", err)
		}
	})

	client := t.newClient(o)
	token := client.Connect()
	if !token.WaitTimeout(o.ConnectTimeout + defaultPublishTimeout) {
		client.Disconnect(0)
		return fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, o.ConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	t.client = client
	t.will = opts
	t.connected.Store(true)
	return nil
}

// Connected reports whether the session is open.
func (t *Transport) Connected() bool {
	t.mu.Lock()
	client := t.client
	t.mu.Unlock()
	return client != nil && t.connected.Load() && client.IsConnected()
}

// Disconnect closes the session without publishing, so the broker keeps
// or delivers the will.
func (t *Transport) Disconnect() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client != nil {
		t.client.Disconnect(defaultDisconnectQuiesce)
		t.client = nil
	}
	t.connected.Store(false)
}

// Close publishes the will payload as a graceful offline status and
// disconnects.
func (t *Transport) Close() error {
	if t.Connected() {
		t.mu.Lock()
		will := t.will
		t.mu.Unlock()
		if will.WillTopic != "" {
			if err := t.Publish(will.WillTopic, will.WillPayload, will.WillRetained); err != nil {
				if logger := t.getLogger(); logger != nil {
					logger.Warn("publishing offline status on close", "error", err)
				}
			}
		}
	}
	t.Disconnect()
	return nil
}

// Dropped returns the number of inbound messages dropped on a full queue.
func (t *Transport) Dropped() uint64 {
	return t.dropped.Load()
}

// SetLogger sets a logger for error and panic logging.
// If not set, errors in handlers are silently ignored.
func (t *Transport) SetLogger(logger Logger) {
	t.loggerMu.Lock()
	t.logger = logger
	t.loggerMu.Unlock()
}

// getLogger returns the current logger (may be nil).
func (t *Transport) getLogger() Logger {
	t.loggerMu.RLock()
	defer t.loggerMu.RUnlock()
	return t.logger
}

func (t *Transport) currentClient() (pahomqtt.Client, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client == nil || !t.connected.Load() || !t.client.IsConnected() {
		return nil, ErrNotConnected
	}
	return t.client, nil
}

var _ session.Transport = (*Transport)(nil)
