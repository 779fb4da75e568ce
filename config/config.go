/*
Package config loads runtime configuration for the statement engine.

SOURCES (later wins):
  1. Built-in defaults
  2. Optional YAML file (--config, or ./config.yaml when present)
  3. .env file in the working directory (loaded into the environment)
  4. BILLING_* environment variables, e.g. BILLING_SERVER_PORT=9000

Nested keys map to env vars with "." replaced by "_":
  auth.jwt_secret -> BILLING_AUTH_JWT_SECRET
*/
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

type AuthConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	JWTSecret string `mapstructure:"jwt_secret"`
	JWTIssuer string `mapstructure:"jwt_issuer"`
	APIKey    string `mapstructure:"api_key"`
}

type RateLimitConfig struct {
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

type SchedulerConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	CheckInterval time.Duration `mapstructure:"check_interval"`
	SystemUserID  string        `mapstructure:"system_user_id"`
}

type MailerConfig struct {
	Kind         string        `mapstructure:"kind"` // log, webhook
	WebhookURL   string        `mapstructure:"webhook_url"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxPerSecond float64       `mapstructure:"max_per_second"` // webhook sends; 0 is unlimited
}

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Timezone  string          `mapstructure:"timezone"`
	Log       LogConfig       `mapstructure:"log"`
	Auth      AuthConfig      `mapstructure:"auth"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Mailer    MailerConfig    `mapstructure:"mailer"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("database.path", "./data/billing.db")
	v.SetDefault("timezone", "America/Los_Angeles")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("auth.enabled", true)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.jwt_issuer", "")
	v.SetDefault("auth.api_key", "")
	v.SetDefault("rate_limit.requests", 10)
	v.SetDefault("rate_limit.window", 10*time.Minute)
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.check_interval", time.Hour)
	v.SetDefault("scheduler.system_user_id", "system")
	v.SetDefault("mailer.kind", "log")
	v.SetDefault("mailer.webhook_url", "")
	v.SetDefault("mailer.timeout", 10*time.Second)
	v.SetDefault("mailer.max_per_second", 5.0)
}

// Load reads configuration from path (optional) and the environment.
func Load(path string) (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("BILLING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	var problems []string
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, "server.port must be between 1 and 65535")
	}
	if c.Database.Path == "" {
		problems = append(problems, "database.path is required")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil || c.Timezone == "" {
		problems = append(problems, fmt.Sprintf("timezone %q is not a valid IANA zone", c.Timezone))
	}
	if c.Auth.Enabled {
		if c.Auth.JWTSecret == "" {
			problems = append(problems, "auth.jwt_secret is required when auth is enabled")
		}
		if c.Auth.APIKey == "" {
			problems = append(problems, "auth.api_key is required when auth is enabled")
		}
	}
	if c.RateLimit.Requests <= 0 {
		problems = append(problems, "rate_limit.requests must be positive")
	}
	if c.RateLimit.Window <= 0 {
		problems = append(problems, "rate_limit.window must be positive")
	}
	if c.Scheduler.CheckInterval <= 0 {
		problems = append(problems, "scheduler.check_interval must be positive")
	}
	if c.Mailer.MaxPerSecond < 0 {
		problems = append(problems, "mailer.max_per_second must not be negative")
	}
	switch c.Mailer.Kind {
	case "log":
	case "webhook":
		if c.Mailer.WebhookURL == "" {
			problems = append(problems, "mailer.webhook_url is required for the webhook mailer")
		}
	default:
		problems = append(problems, fmt.Sprintf("mailer.kind %q must be log or webhook", c.Mailer.Kind))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}
