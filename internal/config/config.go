package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Webhook  WebhookConfig  `mapstructure:"webhook" validate:"required"`
	Dispatch DispatchConfig `mapstructure:"dispatch"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required,url"`
}

// WebhookConfig contains settings for outbound webhook delivery.
type WebhookConfig struct {
	// SigningSecret is the process-wide fallback used to sign payloads for
	// subscriptions that do not carry their own secret.
	SigningSecret string `mapstructure:"signing_secret" validate:"required,min=16"`

	// RequestTimeout bounds each outbound HTTP delivery attempt.
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"required"`

	// MaxAttempts is the default retry ceiling for failed deliveries.
	MaxAttempts int `mapstructure:"max_attempts" validate:"required,gte=1"`
}

// DispatchConfig contains settings for the task dispatch loop.
type DispatchConfig struct {
	// WorkerCount determines how many concurrent workers claim and run tasks.
	WorkerCount int `mapstructure:"worker_count" validate:"gte=0"`

	// PollInterval is how often the dispatcher checks for ready tasks when
	// the previous poll came back empty.
	PollInterval time.Duration `mapstructure:"poll_interval"`

	// BatchSize caps how many ready tasks a single poll fetches.
	BatchSize int `mapstructure:"batch_size" validate:"gte=0"`
}
