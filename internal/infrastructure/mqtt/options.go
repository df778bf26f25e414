package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-node/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-node/internal/session"
)

// Connection constants.
const (
	// defaultConnectTimeout applies when the config leaves it unset.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout is the maximum time to wait for publish acknowledgment.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 250 // milliseconds

	// defaultKeepAlive applies when the config leaves it unset.
	defaultKeepAlive = 30 * time.Second

	// defaultInboxSize applies when the config leaves it unset.
	defaultInboxSize = 64

	// maxPayloadSize guards against oversized publications.
	maxPayloadSize = 256 << 10

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// loadTLSConfig builds the TLS configuration, or nil when TLS is off.
func loadTLSConfig(cfg config.MQTTBrokerConfig) (*tls.Config, error) {
	if !cfg.TLS {
		return nil, nil //nolint:nilnil // nil config means plain TCP
	}

	tlsConfig := &tls.Config{
		MinVersion: tlsMinVersion,
		ServerName: cfg.Host,
	}
	if cfg.CAFile == "" {
		return tlsConfig, nil
	}

	pem, err := os.ReadFile(cfg.CAFile)
	if err != nil {
		return nil, fmt.Errorf("%w: reading CA file: %w", ErrTLSConfig, err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("%w: no certificates in %s", ErrTLSConfig, cfg.CAFile)
	}
	tlsConfig.RootCAs = pool
	return tlsConfig, nil
}

// buildClientOptions creates paho options for one connect attempt.
//
// Reconnection is disabled; the session manager owns retry policy.
func buildClientOptions(cfg config.MQTTConfig, tlsConfig *tls.Config, opts session.ConnectOptions) *pahomqtt.ClientOptions {
	o := pahomqtt.NewClientOptions()

	scheme := "tcp"
	if tlsConfig != nil {
		scheme = "ssl"
	}
	o.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port))
	o.SetClientID(opts.ClientID)

	if opts.Username != "" {
		o.SetUsername(opts.Username)
		o.SetPassword(opts.Password)
	}

	o.SetCleanSession(true)
	o.SetAutoReconnect(false)
	o.SetConnectRetry(false)

	connectTimeout := cfg.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = defaultConnectTimeout
	}
	o.SetConnectTimeout(connectTimeout)

	keepAlive := cfg.KeepAlive
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}
	o.SetKeepAlive(keepAlive)

	if opts.WillTopic != "" {
		o.SetBinaryWill(opts.WillTopic, opts.WillPayload, opts.WillQoS, opts.WillRetained)
	}

	if tlsConfig != nil {
		o.SetTLSConfig(tlsConfig)
	}

	return o
}
