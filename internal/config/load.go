package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load reads configuration from environment variables with the MODELGATE_
// prefix (nested keys joined by underscores, e.g. MODELGATE_SERVER_PORT),
// applies defaults, and validates the result.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("database.url", "")
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.gateway_url", "")
	v.SetDefault("auth.service_name", "modelgate")
	v.SetDefault("queue.workers", 4)
	v.SetDefault("queue.size", 100)
	v.SetDefault("queue.task_timeout", "60s")
	v.SetDefault("queue.max_attempts", 3)
	v.SetDefault("queue.retry_base", "500ms")
	v.SetDefault("queue.stale_age", "10m")
	v.SetDefault("queue.reap_interval", "1m")
	for _, p := range []string{"aliyun", "deepseek", "gemini"} {
		v.SetDefault("providers."+p+".api_key", "")
		v.SetDefault("providers."+p+".base_url", "")
		v.SetDefault("providers."+p+".models", nil)
	}

	v.SetEnvPrefix("MODELGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}
