package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Link types.
const (
	LinkWiFi     = "wifi"
	LinkEthernet = "ethernet"
)

// Config is the root configuration structure for a Gray Logic node.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Device      DeviceConfig      `yaml:"device"`
	Link        LinkConfig        `yaml:"link"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	Update      UpdateConfig      `yaml:"update"`
	Watchdog    WatchdogConfig    `yaml:"watchdog"`
	Supervisor  SupervisorConfig  `yaml:"supervisor"`
	Database    DatabaseConfig    `yaml:"database"`
	InfluxDB    InfluxDBConfig    `yaml:"influxdb"`
	Diagnostics DiagnosticsConfig `yaml:"diagnostics"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// DeviceConfig contains node identification settings.
type DeviceConfig struct {
	// Name is the device name reported by diagnostics and recorded in the
	// journal. It may contain %s.
	Name string `yaml:"name"`

	// Indicator selects the status light: "log" or "none".
	Indicator string `yaml:"indicator"`
}

// LinkConfig contains network interface settings.
type LinkConfig struct {
	// Type is "wifi" or "ethernet".
	Type string `yaml:"type"`

	// Interface is the OS interface name (e.g. "wlan0", "eth0").
	Interface string `yaml:"interface"`

	SSID       string `yaml:"ssid"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	Enterprise bool   `yaml:"enterprise"`

	// Scan enables access point ranking and BSSID pinning.
	Scan bool `yaml:"scan"`

	Poll        PollConfig `yaml:"poll"`
	AddressPoll PollConfig `yaml:"address_poll"`

	// NMCLI is the path to the NetworkManager CLI used for Wi-Fi.
	NMCLI string `yaml:"nmcli"`
}

// PollConfig bounds a wait loop.
type PollConfig struct {
	Attempts int           `yaml:"attempts"`
	Interval time.Duration `yaml:"interval"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`

	// LastWillTopic carries both the will and the presence payload. May
	// contain %s.
	LastWillTopic   string `yaml:"last_will_topic"`
	WillPayload     string `yaml:"will_payload"`
	PresencePayload string `yaml:"presence_payload"`
	Retained        bool   `yaml:"retained"`

	// LivenessTopic is subscribed after connect; every message on it feeds
	// the watchdog. Empty disables the subscription.
	LivenessTopic string `yaml:"liveness_topic"`

	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	KeepAlive      time.Duration `yaml:"keep_alive"`
	InboxSize      int           `yaml:"inbox_size"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	TLS  bool   `yaml:"tls"`

	// CAFile is a PEM bundle used as the only trusted roots.
	CAFile string `yaml:"ca_file"`

	// ClientID may contain %s.
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains the bounded reconnect policy.
type MQTTReconnectConfig struct {
	// Cooldown is the minimum time between connect attempts.
	Cooldown time.Duration `yaml:"cooldown"`

	// WaitSlices and WaitSlice shape the wait after a failed attempt.
	WaitSlices int           `yaml:"wait_slices"`
	WaitSlice  time.Duration `yaml:"wait_slice"`
}

// UpdateConfig contains firmware update listener settings.
type UpdateConfig struct {
	// Hostname may contain %s.
	Hostname string `yaml:"hostname"`

	// Secret signs update tokens. Empty disables the listener.
	Secret string `yaml:"secret"`

	Listen    string `yaml:"listen"`
	ImagePath string `yaml:"image_path"`

	// MaxImageSize is the largest accepted upload in bytes.
	MaxImageSize int64 `yaml:"max_image_size"`
}

// WatchdogConfig contains liveness watchdog settings.
type WatchdogConfig struct {
	Timeout time.Duration `yaml:"timeout"`

	// Device is a kernel watchdog path such as /dev/watchdog. Empty uses
	// the software watchdog, which exits the process on expiry.
	Device string `yaml:"device"`
}

// SupervisorConfig contains supervisor loop settings.
type SupervisorConfig struct {
	// IdleInterval is slept between loop iterations.
	IdleInterval time.Duration `yaml:"idle_interval"`
}

// DatabaseConfig contains SQLite journal settings.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// DiagnosticsConfig contains the local diagnostics HTTP server settings.
type DiagnosticsConfig struct {
	Enabled   bool             `yaml:"enabled"`
	Host      string           `yaml:"host"`
	Port      int              `yaml:"port"`
	Timeouts  APITimeoutConfig `yaml:"timeouts"`
	WebSocket WebSocketConfig  `yaml:"websocket"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains status stream settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYLOGIC_NODE_SECTION_KEY
// For example: GRAYLOGIC_NODE_LINK_PASSWORD, GRAYLOGIC_NODE_MQTT_HOST
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			Name:      "node-%s",
			Indicator: "log",
		},
		Link: LinkConfig{
			Type:        LinkWiFi,
			Interface:   "wlan0",
			Scan:        true,
			Poll:        PollConfig{Attempts: 30, Interval: 500 * time.Millisecond},
			AddressPoll: PollConfig{Attempts: 20, Interval: 500 * time.Millisecond},
			NMCLI:       "/usr/bin/nmcli",
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     8883,
				TLS:      true,
				ClientID: "node-%s",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				Cooldown:   20 * time.Second,
				WaitSlices: 50,
				WaitSlice:  100 * time.Millisecond,
			},
			LastWillTopic:   "graylogic/node/node-%s/status",
			WillPayload:     "offline",
			PresencePayload: "online",
			Retained:        true,
			LivenessTopic:   "unix_time/unix_time",
			ConnectTimeout:  10 * time.Second,
			KeepAlive:       30 * time.Second,
			InboxSize:       64,
		},
		Update: UpdateConfig{
			Hostname:     "node-%s",
			Listen:       ":3232",
			ImagePath:    "./data/firmware.bin",
			MaxImageSize: 16 << 20,
		},
		Watchdog: WatchdogConfig{
			Timeout: 60 * time.Second,
		},
		Supervisor: SupervisorConfig{
			IdleInterval: 10 * time.Millisecond,
		},
		Database: DatabaseConfig{
			Enabled:     true,
			Path:        "./data/node.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Diagnostics: DiagnosticsConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8090,
			Timeouts: APITimeoutConfig{
				Read:  10,
				Write: 10,
				Idle:  60,
			},
			WebSocket: WebSocketConfig{
				MaxMessageSize: 1024,
				PingInterval:   30,
				PongTimeout:    10,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GRAYLOGIC_NODE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Link
	if v := os.Getenv("GRAYLOGIC_NODE_LINK_SSID"); v != "" {
		cfg.Link.SSID = v
	}
	if v := os.Getenv("GRAYLOGIC_NODE_LINK_USERNAME"); v != "" {
		cfg.Link.Username = v
	}
	if v := os.Getenv("GRAYLOGIC_NODE_LINK_PASSWORD"); v != "" {
		cfg.Link.Password = v
	}

	// MQTT
	if v := os.Getenv("GRAYLOGIC_NODE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_NODE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GRAYLOGIC_NODE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Update secret (keep out of the config file)
	if v := os.Getenv("GRAYLOGIC_NODE_UPDATE_SECRET"); v != "" {
		cfg.Update.Secret = v
	}

	// Database
	if v := os.Getenv("GRAYLOGIC_NODE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// InfluxDB
	if v := os.Getenv("GRAYLOGIC_NODE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("GRAYLOGIC_NODE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	// Link validation
	switch c.Link.Type {
	case LinkWiFi:
		if c.Link.SSID == "" {
			errs = append(errs, "link.ssid is required for wifi (set GRAYLOGIC_NODE_LINK_SSID)")
		}
		if c.Link.Enterprise && c.Link.Username == "" {
			errs = append(errs, "link.username is required for enterprise wifi")
		}
	case LinkEthernet:
	default:
		errs = append(errs, `link.type must be "wifi" or "ethernet"`)
	}
	if c.Link.Interface == "" {
		errs = append(errs, "link.interface is required")
	}
	if c.Link.Poll.Attempts < 1 || c.Link.Poll.Interval <= 0 {
		errs = append(errs, "link.poll needs positive attempts and interval")
	}
	if c.Link.AddressPoll.Attempts < 1 || c.Link.AddressPoll.Interval <= 0 {
		errs = append(errs, "link.address_poll needs positive attempts and interval")
	}

	// MQTT validation
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.Broker.ClientID == "" {
		errs = append(errs, "mqtt.broker.client_id is required")
	}
	if c.MQTT.Broker.CAFile != "" && !c.MQTT.Broker.TLS {
		errs = append(errs, "mqtt.broker.ca_file requires mqtt.broker.tls")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.LastWillTopic == "" {
		errs = append(errs, "mqtt.last_will_topic is required")
	}
	if c.MQTT.Reconnect.Cooldown <= 0 {
		errs = append(errs, "mqtt.reconnect.cooldown must be positive")
	}
	if c.MQTT.Reconnect.WaitSlices < 0 || c.MQTT.Reconnect.WaitSlice < 0 {
		errs = append(errs, "mqtt.reconnect wait must not be negative")
	}

	// Update validation
	if c.Update.Secret != "" {
		if c.Update.Listen == "" {
			errs = append(errs, "update.listen is required when update.secret is set")
		}
		if c.Update.ImagePath == "" {
			errs = append(errs, "update.image_path is required when update.secret is set")
		}
		if c.Update.MaxImageSize <= 0 {
			errs = append(errs, "update.max_image_size must be positive")
		}
	}

	// Watchdog validation
	if c.Watchdog.Timeout < time.Second {
		errs = append(errs, "watchdog.timeout must be at least 1s")
	}

	// Database validation
	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	// Diagnostics validation
	if c.Diagnostics.Enabled && (c.Diagnostics.Port < 1 || c.Diagnostics.Port > 65535) {
		errs = append(errs, "diagnostics.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the diagnostics read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.Diagnostics.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the diagnostics write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.Diagnostics.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the diagnostics idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.Diagnostics.Timeouts.Idle) * time.Second
}
