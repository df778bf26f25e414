package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
link:
  type: wifi
  interface: wlan1
  ssid: plant-net
  poll:
    attempts: 10
    interval: 250ms
mqtt:
  broker:
    host: broker.local
    port: 8883
    tls: true
    ca_file: /etc/graylogic/ca.pem
    client_id: "sensor-%s"
  last_will_topic: "sensors/sensor-%s/status"
  reconnect:
    cooldown: 30s
database:
  path: /tmp/node.db
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Link.SSID != "plant-net" || cfg.Link.Interface != "wlan1" {
		t.Errorf("Link = %+v", cfg.Link)
	}
	if cfg.Link.Poll.Attempts != 10 || cfg.Link.Poll.Interval != 250*time.Millisecond {
		t.Errorf("Link.Poll = %+v", cfg.Link.Poll)
	}
	if cfg.Link.AddressPoll.Attempts != 20 {
		t.Errorf("Link.AddressPoll.Attempts = %d, want default 20", cfg.Link.AddressPoll.Attempts)
	}
	if cfg.MQTT.Broker.ClientID != "sensor-%s" {
		t.Errorf("MQTT.Broker.ClientID = %q", cfg.MQTT.Broker.ClientID)
	}
	if cfg.MQTT.Reconnect.Cooldown != 30*time.Second {
		t.Errorf("MQTT.Reconnect.Cooldown = %v, want 30s", cfg.MQTT.Reconnect.Cooldown)
	}
	if cfg.MQTT.Reconnect.WaitSlices != 50 {
		t.Errorf("MQTT.Reconnect.WaitSlices = %d, want default 50", cfg.MQTT.Reconnect.WaitSlices)
	}
	if cfg.Database.Path != "/tmp/node.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	_, err := Load(writeConfig(t, "link:\n  type: zigbee\n"))
	if err == nil {
		t.Fatal("Load() expected validation error for unknown link type, got nil")
	}
	if !strings.Contains(err.Error(), "link.type") {
		t.Errorf("error = %v, want mention of link.type", err)
	}
}

func validConfig() *Config {
	cfg := defaultConfig()
	cfg.Link.SSID = "plant-net"
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid wifi",
			mutate: func(*Config) {},
		},
		{
			name: "valid ethernet without ssid",
			mutate: func(c *Config) {
				c.Link.Type = LinkEthernet
				c.Link.Interface = "eth0"
				c.Link.SSID = ""
			},
		},
		{
			name:    "wifi missing ssid",
			mutate:  func(c *Config) { c.Link.SSID = "" },
			wantErr: "link.ssid",
		},
		{
			name:    "enterprise without username",
			mutate:  func(c *Config) { c.Link.Enterprise = true },
			wantErr: "link.username",
		},
		{
			name:    "unknown link type",
			mutate:  func(c *Config) { c.Link.Type = "lora" },
			wantErr: "link.type",
		},
		{
			name:    "zero poll",
			mutate:  func(c *Config) { c.Link.Poll = PollConfig{} },
			wantErr: "link.poll",
		},
		{
			name:    "invalid QoS",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: "mqtt.qos",
		},
		{
			name:    "invalid port high",
			mutate:  func(c *Config) { c.MQTT.Broker.Port = 70000 },
			wantErr: "mqtt.broker.port",
		},
		{
			name: "ca file without tls",
			mutate: func(c *Config) {
				c.MQTT.Broker.TLS = false
				c.MQTT.Broker.CAFile = "/etc/ca.pem"
			},
			wantErr: "ca_file",
		},
		{
			name:    "missing will topic",
			mutate:  func(c *Config) { c.MQTT.LastWillTopic = "" },
			wantErr: "last_will_topic",
		},
		{
			name:    "zero cooldown",
			mutate:  func(c *Config) { c.MQTT.Reconnect.Cooldown = 0 },
			wantErr: "cooldown",
		},
		{
			name:    "update secret without listen address",
			mutate:  func(c *Config) { c.Update.Secret = "s"; c.Update.Listen = "" },
			wantErr: "update.listen",
		},
		{
			name:    "update secret without image limit",
			mutate:  func(c *Config) { c.Update.Secret = "s"; c.Update.MaxImageSize = 0 },
			wantErr: "update.max_image_size",
		},
		{
			name:    "short watchdog",
			mutate:  func(c *Config) { c.Watchdog.Timeout = time.Millisecond },
			wantErr: "watchdog.timeout",
		},
		{
			name:    "database enabled without path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: "database.path",
		},
		{
			name:    "influx enabled without url",
			mutate:  func(c *Config) { c.InfluxDB.Enabled = true },
			wantErr: "influxdb.url",
		},
		{
			name:    "diagnostics port",
			mutate:  func(c *Config) { c.Diagnostics.Port = 0 },
			wantErr: "diagnostics.port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_ValidateCollectsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Link.SSID = ""
	cfg.MQTT.QoS = 5
	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() = nil")
	}
	for _, want := range []string{"link.ssid", "mqtt.qos"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		Diagnostics: DiagnosticsConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}
	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}
	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("GRAYLOGIC_NODE_LINK_SSID", "env-ssid")
	t.Setenv("GRAYLOGIC_NODE_LINK_USERNAME", "env-user")
	t.Setenv("GRAYLOGIC_NODE_LINK_PASSWORD", "env-wifi-pass")
	t.Setenv("GRAYLOGIC_NODE_MQTT_HOST", "mqtt.example.com")
	t.Setenv("GRAYLOGIC_NODE_MQTT_USERNAME", "testuser")
	t.Setenv("GRAYLOGIC_NODE_MQTT_PASSWORD", "testpass")
	t.Setenv("GRAYLOGIC_NODE_UPDATE_SECRET", "ota-secret")
	t.Setenv("GRAYLOGIC_NODE_DATABASE_PATH", "/custom/path.db")
	t.Setenv("GRAYLOGIC_NODE_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("GRAYLOGIC_NODE_LOG_LEVEL", "debug")

	applyEnvOverrides(cfg)

	checks := []struct {
		name, got, want string
	}{
		{"Link.SSID", cfg.Link.SSID, "env-ssid"},
		{"Link.Username", cfg.Link.Username, "env-user"},
		{"Link.Password", cfg.Link.Password, "env-wifi-pass"},
		{"MQTT.Broker.Host", cfg.MQTT.Broker.Host, "mqtt.example.com"},
		{"MQTT.Auth.Username", cfg.MQTT.Auth.Username, "testuser"},
		{"MQTT.Auth.Password", cfg.MQTT.Auth.Password, "testpass"},
		{"Update.Secret", cfg.Update.Secret, "ota-secret"},
		{"Database.Path", cfg.Database.Path, "/custom/path.db"},
		{"InfluxDB.Token", cfg.InfluxDB.Token, "secret-token"},
		{"Logging.Level", cfg.Logging.Level, "debug"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %q, want %q", c.name, c.got, c.want)
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Link.Poll.Attempts != 30 || cfg.Link.Poll.Interval != 500*time.Millisecond {
		t.Errorf("default poll = %+v, want 30 x 500ms", cfg.Link.Poll)
	}
	if cfg.MQTT.Reconnect.Cooldown != 20*time.Second {
		t.Errorf("default cooldown = %v, want 20s", cfg.MQTT.Reconnect.Cooldown)
	}
	if cfg.Watchdog.Timeout != 60*time.Second {
		t.Errorf("default watchdog = %v, want 60s", cfg.Watchdog.Timeout)
	}
	if cfg.MQTT.WillPayload != "offline" || cfg.MQTT.PresencePayload != "online" {
		t.Errorf("default will/presence = %q/%q", cfg.MQTT.WillPayload, cfg.MQTT.PresencePayload)
	}
	if cfg.Update.Secret != "" {
		t.Error("update listener should be disabled by default")
	}
}
