package config

import (
	"log/slog"
	"os"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg == nil {
		t.Fatal("Load returned nil config")
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":8080")
	}
	if cfg.MQTTBrokerHost != "mqtt.bayme.sh" {
		t.Errorf("MQTTBrokerHost = %q, want %q", cfg.MQTTBrokerHost, "mqtt.bayme.sh")
	}
	if cfg.MQTTBrokerPort != 1883 {
		t.Errorf("MQTTBrokerPort = %d, want 1883", cfg.MQTTBrokerPort)
	}
	if cfg.MQTTUsername != "meshdev" {
		t.Errorf("MQTTUsername = %q, want %q", cfg.MQTTUsername, "meshdev")
	}
	if cfg.MQTTPassword != "large4cats" {
		t.Errorf("MQTTPassword = %q, want %q", cfg.MQTTPassword, "large4cats")
	}
	if cfg.MQTTTopic != "#" {
		t.Errorf("MQTTTopic = %q, want %q", cfg.MQTTTopic, "#")
	}
	if cfg.ShortnameRegex != "BB[0-9][0-9]" {
		t.Errorf("ShortnameRegex = %q, want %q", cfg.ShortnameRegex, "BB[0-9][0-9]")
	}
	if cfg.DecryptionKey1 != "1PG7OiApB1nwvP+rz05pAQ==" {
		t.Errorf("DecryptionKey1 = %q, want default channel key", cfg.DecryptionKey1)
	}
	if cfg.NodeEventsTopic != "mesh-node-updates" {
		t.Errorf("NodeEventsTopic = %q, want %q", cfg.NodeEventsTopic, "mesh-node-updates")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
}

func TestLoad_EnvVarOverride(t *testing.T) {
	os.Clearenv()
	os.Setenv("HTTP_ADDR", ":9090")
	os.Setenv("MQTT_BROKER_HOST", "broker.example.com")
	os.Setenv("MQTT_BROKER_PORT", "8883")
	os.Setenv("SHORTNAME_REGEX", "XY[0-9][0-9]")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":9090")
	}
	if cfg.MQTTBrokerHost != "broker.example.com" {
		t.Errorf("MQTTBrokerHost = %q, want %q", cfg.MQTTBrokerHost, "broker.example.com")
	}
	if cfg.MQTTBrokerPort != 8883 {
		t.Errorf("MQTTBrokerPort = %d, want 8883", cfg.MQTTBrokerPort)
	}
	if cfg.ShortnameRegex != "XY[0-9][0-9]" {
		t.Errorf("ShortnameRegex = %q, want %q", cfg.ShortnameRegex, "XY[0-9][0-9]")
	}
}

func TestLoad_PortRange(t *testing.T) {
	testCases := []struct {
		name  string
		value string
		err   bool
	}{
		{"valid min", "1", false},
		{"valid max", "65535", false},
		{"default port", "1883", false},
		{"zero", "0", true},
		{"negative", "-1", true},
		{"too high", "65536", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			os.Clearenv()
			os.Setenv("MQTT_BROKER_PORT", tc.value)

			_, err := Load()
			if tc.err && err == nil {
				t.Fatal("Load should return error")
			}
			if !tc.err && err != nil {
				t.Fatalf("Load: %v", err)
			}
		})
	}
}

func TestLoad_RequiresAtLeastOneKey(t *testing.T) {
	os.Clearenv()
	os.Setenv("DECRYPTION_KEY_1", "")
	os.Setenv("DECRYPTION_KEY_2", "")
	os.Setenv("DECRYPTION_KEY_3", "")

	cfg, err := Load()
	if err == nil {
		t.Fatal("Load should return error when no decryption keys are set")
	}
	if cfg != nil {
		t.Error("Load should return nil config on error")
	}
}

func TestBrokerURL(t *testing.T) {
	cfg := &Config{MQTTBrokerHost: "mqtt.bayme.sh", MQTTBrokerPort: 1883}
	if got := cfg.BrokerURL(); got != "tcp://mqtt.bayme.sh:1883" {
		t.Errorf("BrokerURL = %q, want %q", got, "tcp://mqtt.bayme.sh:1883")
	}
}

func TestDecryptionKeys_SkipsEmptySlots(t *testing.T) {
	cfg := &Config{
		DecryptionKey1:     "1PG7OiApB1nwvP+rz05pAQ==",
		DecryptionKey1Desc: "default",
		DecryptionKey3:     "AQ==",
		DecryptionKey3Desc: "one byte",
	}
	keys := cfg.DecryptionKeys()
	if len(keys) != 2 {
		t.Fatalf("len(keys) = %d, want 2", len(keys))
	}
	if keys[0].Base64 != "1PG7OiApB1nwvP+rz05pAQ==" || keys[0].Description != "default" {
		t.Errorf("keys[0] = %+v, want slot 1 first", keys[0])
	}
	if keys[1].Base64 != "AQ==" {
		t.Errorf("keys[1].Base64 = %q, want %q", keys[1].Base64, "AQ==")
	}
}

func TestSlogLevel(t *testing.T) {
	testCases := []struct {
		value string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
		{"nonsense", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tc := range testCases {
		cfg := &Config{LogLevel: tc.value}
		if got := cfg.SlogLevel(); got != tc.want {
			t.Errorf("SlogLevel(%q) = %v, want %v", tc.value, got, tc.want)
		}
	}
}

func TestKafkaBrokersList(t *testing.T) {
	cfg := &Config{KafkaBrokers: "localhost:9092, kafka2:9092 ,"}
	got := cfg.KafkaBrokersList()
	if len(got) != 2 || got[0] != "localhost:9092" || got[1] != "kafka2:9092" {
		t.Errorf("KafkaBrokersList = %v, want [localhost:9092 kafka2:9092]", got)
	}

	empty := &Config{}
	if got := empty.KafkaBrokersList(); got != nil {
		t.Errorf("KafkaBrokersList on empty config = %v, want nil", got)
	}
}

func TestPingInterval(t *testing.T) {
	cfg := &Config{SelfPingInterval: "5m"}
	if got := cfg.PingInterval(); got != 5*time.Minute {
		t.Errorf("PingInterval = %v, want 5m", got)
	}
	cfg = &Config{SelfPingInterval: "invalid"}
	if got := cfg.PingInterval(); got != 10*time.Minute {
		t.Errorf("PingInterval = %v, want 10m (default)", got)
	}
}
