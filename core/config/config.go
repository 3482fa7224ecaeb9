package config

import (
	"fmt"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Env  string `mapstructure:"env"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type AppConfig struct {
	// BaseURL is the externally reachable URL used to construct webhook
	// callback and OAuth redirect URLs.
	BaseURL         string `mapstructure:"base_url"`
	DefaultTimezone string `mapstructure:"default_timezone"`
	JWTSecret       string `mapstructure:"jwt_secret"`
	SlackWebhookURL string `mapstructure:"slack_webhook_url"`
}

// ProviderConfig holds per-provider OAuth credentials and the optional
// webhook signing secret. An empty WebhookSecret means inbound webhooks for
// that provider are accepted unverified (degraded-trust mode, logged).
type ProviderConfig struct {
	ClientID      string `mapstructure:"client_id"`
	ClientSecret  string `mapstructure:"client_secret"`
	WebhookSecret string `mapstructure:"webhook_secret"`
}

type SyncConfig struct {
	WindowPastDays   int `mapstructure:"window_past_days"`
	WindowFutureDays int `mapstructure:"window_future_days"`
	MaxRetries       int `mapstructure:"max_retries"`
	// ProviderWinsWithoutRevision controls the reconciliation tie-break when a
	// provider omits a revision/etag: true means the provider value always
	// overwrites locally stored provider-sourced fields.
	ProviderWinsWithoutRevision bool `mapstructure:"provider_wins_without_revision"`
}

type Config struct {
	Server    ServerConfig   `mapstructure:"server"`
	Database  DatabaseConfig `mapstructure:"database"`
	Redis     RedisConfig    `mapstructure:"redis"`
	App       AppConfig      `mapstructure:"app"`
	Google    ProviderConfig `mapstructure:"google"`
	Microsoft ProviderConfig `mapstructure:"microsoft"`
	Calendly  ProviderConfig `mapstructure:"calendly"`
	Sync      SyncConfig     `mapstructure:"sync"`
}

var (
	instance *Config
	mu       sync.RWMutex
)

// Load reads .env (if present) and environment variables into a validated
// Config. It is called once from the process entry point.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.port", 7070)
	v.SetDefault("server.env", "development")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("app.default_timezone", "UTC")
	v.SetDefault("sync.window_past_days", 30)
	v.SetDefault("sync.window_future_days", 90)
	v.SetDefault("sync.max_retries", 3)
	v.SetDefault("sync.provider_wins_without_revision", true)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	mu.Lock()
	instance = &cfg
	mu.Unlock()
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.App.BaseURL == "" {
		return fmt.Errorf("config: app.base_url is required")
	}
	if c.App.DefaultTimezone == "" {
		return fmt.Errorf("config: app.default_timezone is required")
	}
	if c.Sync.MaxRetries < 0 {
		return fmt.Errorf("config: sync.max_retries must be >= 0")
	}
	return nil
}

// Provider returns the credentials block for a provider name, matching the
// CalendarIntegration provider enum.
func (c *Config) Provider(name string) (ProviderConfig, bool) {
	switch name {
	case "google_calendar":
		return c.Google, true
	case "microsoft_outlook":
		return c.Microsoft, true
	case "calendly":
		return c.Calendly, true
	}
	return ProviderConfig{}, false
}

func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return instance
}

// GetSafe returns the config and whether it has been loaded.
func GetSafe() (*Config, bool) {
	mu.RLock()
	defer mu.RUnlock()
	return instance, instance != nil
}

// Set replaces the process config. Used by tests.
func Set(cfg *Config) {
	mu.Lock()
	instance = cfg
	mu.Unlock()
}
