package config

import (
	"os"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range allEnvKeys {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if cfg.ReadTimeout != 5*time.Second {
		t.Errorf("ReadTimeout = %v, want 5s", cfg.ReadTimeout)
	}
	if cfg.WriteTimeout != 10*time.Second {
		t.Errorf("WriteTimeout = %v, want 10s", cfg.WriteTimeout)
	}
	if cfg.IdleTimeout != 60*time.Second {
		t.Errorf("IdleTimeout = %v, want 60s", cfg.IdleTimeout)
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 10s", cfg.ShutdownTimeout)
	}
	if cfg.JournalDir != "" {
		t.Errorf("JournalDir = %q, want empty", cfg.JournalDir)
	}
	if cfg.PublishEnabled() {
		t.Error("publishing should be disabled without brokers")
	}
	if cfg.Kafka.Topic != "auction-rounds" {
		t.Errorf("Kafka.Topic = %q, want auction-rounds", cfg.Kafka.Topic)
	}
	if cfg.Kafka.PublishTimeout != 5*time.Second {
		t.Errorf("Kafka.PublishTimeout = %v, want 5s", cfg.Kafka.PublishTimeout)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("READ_TIMEOUT", "2s")
	t.Setenv("WRITE_TIMEOUT", "5s")
	t.Setenv("IDLE_TIMEOUT", "30s")
	t.Setenv("SHUTDOWN_TIMEOUT", "15s")
	t.Setenv("JOURNAL_DIR", "/var/lib/callauction")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")
	t.Setenv("KAFKA_TOPIC", "rounds")
	t.Setenv("KAFKA_PUBLISH_TIMEOUT", "750ms")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Port)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}
	if cfg.ShutdownTimeout != 15*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 15s", cfg.ShutdownTimeout)
	}
	if cfg.JournalDir != "/var/lib/callauction" {
		t.Errorf("JournalDir = %q", cfg.JournalDir)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "kafka-2:9092" {
		t.Errorf("Kafka.Brokers = %v", cfg.Kafka.Brokers)
	}
	if !cfg.PublishEnabled() {
		t.Error("publishing should be enabled with brokers")
	}
	if cfg.Kafka.Topic != "rounds" {
		t.Errorf("Kafka.Topic = %q, want rounds", cfg.Kafka.Topic)
	}
	if cfg.Kafka.PublishTimeout != 750*time.Millisecond {
		t.Errorf("Kafka.PublishTimeout = %v, want 750ms", cfg.Kafka.PublishTimeout)
	}
}

func TestLoad_InvalidPort(t *testing.T) {
	for _, port := range []string{"not-a-number", "0", "70000"} {
		t.Run(port, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("PORT", port)

			if _, err := Load(); err == nil {
				t.Fatalf("expected error for PORT %q", port)
			}
		})
	}
}

func TestLoad_InvalidLogLevel(t *testing.T) {
	clearEnv(t)
	t.Setenv("LOG_LEVEL", "verbose")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for invalid LOG_LEVEL")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	for _, key := range durationEnvKeys {
		for _, val := range []string{"not-a-duration", "-1s"} {
			t.Run(key+"="+val, func(t *testing.T) {
				clearEnv(t)
				t.Setenv(key, val)

				if _, err := Load(); err == nil {
					t.Fatalf("expected error for %s=%q", key, val)
				}
			})
		}
	}
}

func TestValidate_BrokersRequireTopic(t *testing.T) {
	cfg := &Config{
		Port:            8080,
		LogLevel:        "info",
		ReadTimeout:     time.Second,
		WriteTimeout:    time.Second,
		IdleTimeout:     time.Second,
		ShutdownTimeout: time.Second,
		Kafka: KafkaConfig{
			Brokers:        []string{"localhost:9092"},
			PublishTimeout: time.Second,
		},
	}
	if err := cfg.validate(); err == nil {
		t.Fatal("expected error for brokers without a topic")
	}

	cfg.Kafka.Topic = "rounds"
	if err := cfg.validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
