package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Port                  int    `env:"PORT" envDefault:"8080"`
	DatabaseURL           string `env:"DATABASE_URL,required"`
	RedisURL              string `env:"REDIS_URL,required"`
	APIKey                string `env:"API_KEY"`
	SessionStoreDir       string `env:"SESSION_STORE_DIR" envDefault:"./sessions"`
	ReconnectDelaySeconds int    `env:"RECONNECT_DELAY_SECONDS" envDefault:"5"`
	DispatchPollSeconds   int    `env:"DISPATCH_POLL_SECONDS" envDefault:"30"`
	PendingAgeSeconds     int    `env:"PENDING_AGE_SECONDS" envDefault:"60"`
	DispatchConcurrency   int    `env:"DISPATCH_CONCURRENCY" envDefault:"8"`
	MessageRetentionHours int    `env:"MESSAGE_RETENTION_HOURS" envDefault:"168"`
	LogLevel              string `env:"LOG_LEVEL" envDefault:"info"`
}

func (c *Config) ReconnectDelay() time.Duration {
	return time.Duration(c.ReconnectDelaySeconds) * time.Second
}

func (c *Config) DispatchPollInterval() time.Duration {
	return time.Duration(c.DispatchPollSeconds) * time.Second
}

func (c *Config) PendingAge() time.Duration {
	return time.Duration(c.PendingAgeSeconds) * time.Second
}

func (c *Config) MessageRetention() time.Duration {
	return time.Duration(c.MessageRetentionHours) * time.Hour
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) Validate() error {
	if c.ReconnectDelaySeconds <= 0 {
		return fmt.Errorf("RECONNECT_DELAY_SECONDS must be > 0")
	}
	if c.DispatchPollSeconds <= 0 {
		return fmt.Errorf("DISPATCH_POLL_SECONDS must be > 0")
	}
	if c.DispatchConcurrency <= 0 {
		return fmt.Errorf("DISPATCH_CONCURRENCY must be > 0")
	}
	if c.APIKey == "" {
		log.Warn().Msg("API_KEY is empty: mutating endpoints are unauthenticated")
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
