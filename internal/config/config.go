// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the status HTTP server listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseURL is the Postgres DSN; empty runs the node cache without persistence.
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	// MQTTBrokerHost is the broker hostname (default mqtt.bayme.sh).
	MQTTBrokerHost string `mapstructure:"MQTT_BROKER_HOST"`
	// MQTTBrokerPort is the broker TCP port, 1-65535 (default 1883).
	MQTTBrokerPort int `mapstructure:"MQTT_BROKER_PORT"`
	// MQTTUsername and MQTTPassword default to the public Meshtastic credentials.
	MQTTUsername string `mapstructure:"MQTT_USERNAME"`
	MQTTPassword string `mapstructure:"MQTT_PASSWORD"`
	// MQTTTopic is the subscription filter (default "#").
	MQTTTopic string `mapstructure:"MQTT_TOPIC"`

	// ShortnameRegex admits nodes whose shortname matches it (default BB[0-9][0-9]).
	ShortnameRegex string `mapstructure:"SHORTNAME_REGEX"`

	// DecryptionKey1..3 are base64 channel keys tried in order against
	// encrypted packets. Empty slots are skipped.
	DecryptionKey1     string `mapstructure:"DECRYPTION_KEY_1"`
	DecryptionKey1Desc string `mapstructure:"DECRYPTION_KEY_1_DESC"`
	DecryptionKey2     string `mapstructure:"DECRYPTION_KEY_2"`
	DecryptionKey2Desc string `mapstructure:"DECRYPTION_KEY_2_DESC"`
	DecryptionKey3     string `mapstructure:"DECRYPTION_KEY_3"`
	DecryptionKey3Desc string `mapstructure:"DECRYPTION_KEY_3_DESC"`

	// LogLevel is one of debug, info, warn, error (default info).
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// KafkaBrokers is a comma-separated broker list; empty disables node
	// update events.
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// NodeEventsTopic is the Kafka topic for node update events.
	NodeEventsTopic string `mapstructure:"NODE_EVENTS_TOPIC"`
	// KafkaGroupID is the consumer group ID for the events worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`

	// OTLPEndpoint is the OTLP gRPC metrics endpoint; empty disables export.
	OTLPEndpoint string `mapstructure:"OTLP_ENDPOINT"`

	// SelfPingURL is fetched periodically to keep free-tier hosts awake;
	// empty disables the pinger.
	SelfPingURL string `mapstructure:"SELF_PING_URL"`
	// SelfPingInterval is the ping period (e.g. "10m").
	SelfPingInterval string `mapstructure:"SELF_PING_INTERVAL"`
}

// KeySpec is one configured channel key, still base64-encoded.
type KeySpec struct {
	Base64      string
	Description string
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("MQTT_BROKER_HOST", "mqtt.bayme.sh")
	v.SetDefault("MQTT_BROKER_PORT", 1883)
	v.SetDefault("MQTT_USERNAME", "meshdev")
	v.SetDefault("MQTT_PASSWORD", "large4cats")
	v.SetDefault("MQTT_TOPIC", "#")
	v.SetDefault("SHORTNAME_REGEX", "BB[0-9][0-9]")
	v.SetDefault("DECRYPTION_KEY_1", "1PG7OiApB1nwvP+rz05pAQ==")
	v.SetDefault("DECRYPTION_KEY_1_DESC", "Meshtastic default channel key")
	v.SetDefault("DECRYPTION_KEY_2", "AQ==")
	v.SetDefault("DECRYPTION_KEY_2_DESC", "Legacy one-byte key")
	v.SetDefault("DECRYPTION_KEY_3", "")
	v.SetDefault("DECRYPTION_KEY_3_DESC", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("NODE_EVENTS_TOPIC", "mesh-node-updates")
	v.SetDefault("KAFKA_GROUP_ID", "mesh-events-worker")
	v.SetDefault("OTLP_ENDPOINT", "")
	v.SetDefault("SELF_PING_URL", "")
	v.SetDefault("SELF_PING_INTERVAL", "10m")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	if cfg.MQTTBrokerHost == "" {
		return nil, errors.New("config: MQTT_BROKER_HOST must be set")
	}
	if cfg.MQTTBrokerPort < 1 || cfg.MQTTBrokerPort > 65535 {
		return nil, fmt.Errorf("config: MQTT_BROKER_PORT must be between 1 and 65535, got %d", cfg.MQTTBrokerPort)
	}
	if cfg.DecryptionKey1 == "" && cfg.DecryptionKey2 == "" && cfg.DecryptionKey3 == "" {
		return nil, errors.New("config: at least one DECRYPTION_KEY_n must be set")
	}

	return &cfg, nil
}

// BrokerURL returns the paho broker address, e.g. tcp://mqtt.bayme.sh:1883.
func (c *Config) BrokerURL() string {
	return fmt.Sprintf("tcp://%s:%d", c.MQTTBrokerHost, c.MQTTBrokerPort)
}

// DecryptionKeys returns the configured key slots in trial order, skipping
// empty slots.
func (c *Config) DecryptionKeys() []KeySpec {
	slots := []KeySpec{
		{Base64: c.DecryptionKey1, Description: c.DecryptionKey1Desc},
		{Base64: c.DecryptionKey2, Description: c.DecryptionKey2Desc},
		{Base64: c.DecryptionKey3, Description: c.DecryptionKey3Desc},
	}
	out := make([]KeySpec, 0, len(slots))
	for _, s := range slots {
		if s.Base64 != "" {
			out = append(out, s)
		}
	}
	return out
}

// SlogLevel maps LOG_LEVEL to a slog.Level. Unknown values fall back to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if node events are enabled (non-empty list) and to create the producer.
func (c *Config) KafkaBrokersList() []string {
	if c == nil || c.KafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.KafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// PingInterval parses SelfPingInterval as a time.Duration. Returns 10m if
// unset or invalid.
func (c *Config) PingInterval() time.Duration {
	d, err := time.ParseDuration(c.SelfPingInterval)
	if err != nil || d <= 0 {
		return 10 * time.Minute
	}
	return d
}
