// Package config loads and validates the application configuration from
// the environment.
package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"    validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database"  validate:"required"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Queue     QueueConfig     `mapstructure:"queue"     validate:"required"`
	Providers ProvidersConfig `mapstructure:"providers"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required,url"`
}

// AuthConfig configures the external auth gateway integration. When
// Enabled is false every route behaves as public.
type AuthConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// GatewayURL is the base URL of the auth gateway service.
	GatewayURL string `mapstructure:"gateway_url" validate:"required_if=Enabled true,omitempty,url"`

	// ServiceName identifies this service in permission checks forwarded
	// to the gateway.
	ServiceName string `mapstructure:"service_name" validate:"required"`
}

// QueueConfig tunes the asynchronous executor.
type QueueConfig struct {
	// Workers is the number of concurrent executor workers, which bounds
	// in-flight provider invocations.
	Workers int `mapstructure:"workers" validate:"required,gt=0"`

	// Size is the in-memory queue buffer size.
	Size int `mapstructure:"size" validate:"required,gt=0"`

	// TaskTimeout bounds a single provider invocation.
	TaskTimeout time.Duration `mapstructure:"task_timeout" validate:"required"`

	// MaxAttempts is the total invocation attempts for transient provider
	// failures (1 means no retries).
	MaxAttempts int `mapstructure:"max_attempts" validate:"required,gt=0"`

	// RetryBase is the first retry delay; subsequent delays double.
	RetryBase time.Duration `mapstructure:"retry_base" validate:"required"`

	// StaleAge is how long a task may sit in processing before the reaper
	// fails it as timed out.
	StaleAge time.Duration `mapstructure:"stale_age" validate:"required"`

	// ReapInterval is how often the reaper scans for stale tasks.
	ReapInterval time.Duration `mapstructure:"reap_interval" validate:"required"`
}

// ProviderConfig holds the per-provider endpoint and credential settings.
// An empty APIKey disables the provider.
type ProviderConfig struct {
	APIKey  string   `mapstructure:"api_key"`
	BaseURL string   `mapstructure:"base_url" validate:"omitempty,url"`
	Models  []string `mapstructure:"models"`
}

// ProvidersConfig groups the settings for every supported provider.
type ProvidersConfig struct {
	Aliyun   ProviderConfig `mapstructure:"aliyun"`
	DeepSeek ProviderConfig `mapstructure:"deepseek"`
	Gemini   ProviderConfig `mapstructure:"gemini"`
}
