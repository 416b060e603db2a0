package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the doorbell relay.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Database  DatabaseConfig  `yaml:"database"`
	History   HistoryConfig   `yaml:"history"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Security  SecurityConfig  `yaml:"security"`
	Logging   LoggingConfig   `yaml:"logging"`

	// TestMode enables the sensor simulation endpoints.
	TestMode bool `yaml:"test_mode"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker  MQTTBrokerConfig  `yaml:"broker"`
	Auth    MQTTAuthConfig    `yaml:"auth"`
	Session MQTTSessionConfig `yaml:"session"`
	QoS     int               `yaml:"qos"`
	Retry   MQTTRetryConfig   `yaml:"retry"`
	Topics  MQTTTopicsConfig  `yaml:"topics"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTSessionConfig contains per-connection session settings.
type MQTTSessionConfig struct {
	// KeepAlive is the keepalive interval in seconds.
	KeepAlive int `yaml:"keepalive"`

	// ConnectTimeout is the connect attempt timeout in seconds.
	ConnectTimeout int `yaml:"connect_timeout"`

	CleanSession bool `yaml:"clean_session"`

	// AutoReconnect hands reconnection to the MQTT library. When false the
	// relay runs its own bounded retry policy instead.
	AutoReconnect bool `yaml:"auto_reconnect"`
}

// MQTTRetryConfig contains the bounded manual retry policy settings.
type MQTTRetryConfig struct {
	DelayMS     int `yaml:"delay_ms"`
	MaxAttempts int `yaml:"max_attempts"`
}

// MQTTTopicsConfig contains the sensor topic namespace.
type MQTTTopicsConfig struct {
	// Filter is the subscription filter covering every sensor topic.
	Filter string `yaml:"filter"`

	// Control is the control channel prefix (keepalive / offline reports).
	Control string `yaml:"control"`

	// Data is the exact data channel topic (trigger events).
	Data string `yaml:"data"`

	// Status is an optional topic for the relay's own presence (LWT).
	Status string `yaml:"status"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// HistoryConfig contains event history settings.
type HistoryConfig struct {
	Enabled       bool `yaml:"enabled"`
	RetentionDays int  `yaml:"retention_days"`
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

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains JWT bearer token settings.
// An empty secret disables authentication on the API.
type JWTConfig struct {
	Secret string `yaml:"secret"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// minJWTSecretLength is the minimum accepted length for a configured JWT secret.
const minJWTSecretLength = 32

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: DOORBELL_SECTION_KEY
// For example: DOORBELL_MQTT_HOST, DOORBELL_DATABASE_PATH
func Load(path string) (*Config, error) {
	cfg := Default()

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

// Default returns a Config with the reference defaults.
func Default() *Config {
	return &Config{
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "doorbell-relay",
			},
			Session: MQTTSessionConfig{
				KeepAlive:      60,
				ConnectTimeout: 3,
				CleanSession:   true,
				AutoReconnect:  false,
			},
			QoS: 1,
			Retry: MQTTRetryConfig{
				DelayMS:     3000,
				MaxAttempts: 3,
			},
			Topics: MQTTTopicsConfig{
				Filter:  "proximity/#",
				Control: "proximity/control",
				Data:    "proximity/data",
			},
		},
		Database: DatabaseConfig{
			Path:        "./data/doorbell.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		History: HistoryConfig{
			Enabled:       true,
			RetentionDays: 30,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	// MQTT
	if v := os.Getenv("DOORBELL_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("DOORBELL_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("DOORBELL_MQTT_CLIENT_ID"); v != "" {
		cfg.MQTT.Broker.ClientID = v
	}
	if v := os.Getenv("DOORBELL_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("DOORBELL_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Database
	if v := os.Getenv("DOORBELL_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// API
	if v := os.Getenv("DOORBELL_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("DOORBELL_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Security
	if v := os.Getenv("DOORBELL_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}

	// Logging
	if v := os.Getenv("DOORBELL_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for missing or out-of-range values.
// Every problem is collected and reported in a single error.
func (c *Config) Validate() error {
	var errs []string

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
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Retry.DelayMS <= 0 {
		errs = append(errs, "mqtt.retry.delay_ms must be positive")
	}
	if c.MQTT.Retry.MaxAttempts < 1 {
		errs = append(errs, "mqtt.retry.max_attempts must be at least 1")
	}
	if c.MQTT.Topics.Filter == "" {
		errs = append(errs, "mqtt.topics.filter is required")
	}
	if c.MQTT.Topics.Control == "" {
		errs = append(errs, "mqtt.topics.control is required")
	}
	if c.MQTT.Topics.Data == "" {
		errs = append(errs, "mqtt.topics.data is required")
	}

	// Database validation (only needed when history is recorded)
	if c.History.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when history is enabled")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// Security validation: authentication is optional, but a configured
	// secret must be long enough to resist brute force.
	if c.Security.JWT.Secret != "" && len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// RetryDelay returns the manual retry check delay as a Duration.
func (c MQTTConfig) RetryDelay() time.Duration {
	return time.Duration(c.Retry.DelayMS) * time.Millisecond
}

// KeepAliveInterval returns the MQTT keepalive interval as a Duration.
func (c MQTTConfig) KeepAliveInterval() time.Duration {
	return time.Duration(c.Session.KeepAlive) * time.Second
}

// ConnectTimeout returns the MQTT connect attempt timeout as a Duration.
func (c MQTTConfig) ConnectTimeout() time.Duration {
	return time.Duration(c.Session.ConnectTimeout) * time.Second
}

// Addr returns the broker address as host:port.
func (c MQTTBrokerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// HistoryRetention returns the history retention horizon as a Duration.
func (c *Config) HistoryRetention() time.Duration {
	return time.Duration(c.History.RetentionDays) * 24 * time.Hour
}
