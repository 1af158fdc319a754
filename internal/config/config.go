package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all runtime configuration for the call auction service.
type Config struct {
	Port            int           `env:"PORT" envDefault:"8080"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	IdleTimeout     time.Duration `env:"IDLE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// JournalDir is where active orders are persisted. Empty keeps books
	// in memory only.
	JournalDir string `env:"JOURNAL_DIR"`

	Kafka KafkaConfig `envPrefix:"KAFKA_"`
}

// KafkaConfig configures the round publisher. With no brokers, rounds
// are not published.
type KafkaConfig struct {
	Brokers        []string      `env:"BROKERS" envSeparator:","`
	Topic          string        `env:"TOPIC" envDefault:"auction-rounds"`
	PublishTimeout time.Duration `env:"PUBLISH_TIMEOUT" envDefault:"5s"`
}

// Load reads configuration from a .env file if present and from
// environment variables, applies defaults, and validates values. It
// returns an error for any invalid value.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT: %d, must be between 1 and 65535", c.Port)
	}
	if !isValidLogLevel(c.LogLevel) {
		return fmt.Errorf("invalid LOG_LEVEL: %q, must be one of: debug, info, warn, error", c.LogLevel)
	}
	for _, d := range []struct {
		key string
		val time.Duration
	}{
		{"READ_TIMEOUT", c.ReadTimeout},
		{"WRITE_TIMEOUT", c.WriteTimeout},
		{"IDLE_TIMEOUT", c.IdleTimeout},
		{"SHUTDOWN_TIMEOUT", c.ShutdownTimeout},
		{"KAFKA_PUBLISH_TIMEOUT", c.Kafka.PublishTimeout},
	} {
		if d.val <= 0 {
			return fmt.Errorf("invalid %s: %v, must be positive", d.key, d.val)
		}
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return fmt.Errorf("invalid KAFKA_TOPIC: must be set when KAFKA_BROKERS is")
	}
	return nil
}

// PublishEnabled reports whether rounds should be sent to Kafka.
func (c *Config) PublishEnabled() bool {
	return len(c.Kafka.Brokers) > 0
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}
