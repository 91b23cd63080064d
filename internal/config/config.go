// Package config defines the sudarshan configuration and its validation.
package config

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Config is the root configuration. Fields are populated from a TOML file
// and then optionally overridden by SUDARSHAN_* environment variables.
type Config struct {
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
	Log      LogConfig      `toml:"log"`
	Dhan     DhanConfig     `toml:"dhan"`
	Feed     FeedConfig     `toml:"feed"`
	Fusion   FusionConfig   `toml:"fusion"`
	Server   ServerConfig   `toml:"server"`
	Redis    RedisConfig    `toml:"redis"`
	Postgres PostgresConfig `toml:"postgres"`
	Notify   NotifyConfig   `toml:"notify"`
}

// LogConfig controls the optional rotating log file. Stdout logging is
// always on.
type LogConfig struct {
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
}

// DhanConfig holds broker credentials and the feed endpoint.
type DhanConfig struct {
	ClientID    string `toml:"client_id"`
	AccessToken string `toml:"access_token"`
	FeedURL     string `toml:"feed_url"`
	AuthType    int    `toml:"auth_type"`
}

// HasCredentials reports whether both the client id and token are set.
func (d DhanConfig) HasCredentials() bool {
	return d.ClientID != "" && d.AccessToken != ""
}

// FeedConfig tunes the upstream connection and downstream relay.
type FeedConfig struct {
	AutoStart      bool               `toml:"auto_start"`
	RequestCode    int                `toml:"request_code"`
	BatchSize      int                `toml:"batch_size"`
	BatchPacing    duration           `toml:"batch_pacing"`
	ReconnectDelay duration           `toml:"reconnect_delay"`
	RelayBuffer    int                `toml:"relay_buffer"`
	Instruments    []InstrumentConfig `toml:"instruments"`
}

// InstrumentConfig is one instrument subscribed at startup.
type InstrumentConfig struct {
	Segment string `toml:"segment"`
	ID      string `toml:"id"`
}

// FusionConfig holds request defaults for the fusion engine.
type FusionConfig struct {
	MinConfirms int                `toml:"min_confirms"`
	Weights     map[string]float64 `toml:"weights"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// APIKey is the shared secret; empty disables auth.
	APIKey     string   `toml:"api_key"`
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool     `toml:"enabled"`
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	TLSEnabled bool     `toml:"tls_enabled"`
	PriceTTL   duration `toml:"price_ttl"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	MaxConns      int    `toml:"max_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
	// Cooldown suppresses an unchanged verdict for this long; 0 disables.
	Cooldown duration `toml:"cooldown"`
}

// duration wraps time.Duration so TOML can carry strings like "3s".
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with the stock values.
func Defaults() Config {
	return Config{
		Mode:     "server",
		LogLevel: "info",
		Log: LogConfig{
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 14,
			Compress:   true,
		},
		Dhan: DhanConfig{
			FeedURL:  "wss://api-feed.dhan.co",
			AuthType: 2,
		},
		Feed: FeedConfig{
			RequestCode:    15,
			BatchSize:      100,
			BatchPacing:    duration{50 * time.Millisecond},
			ReconnectDelay: duration{3 * time.Second},
			RelayBuffer:    1024,
		},
		Fusion: FusionConfig{
			MinConfirms: 3,
			Weights: map[string]float64{
				"price":     1.0,
				"oi":        1.0,
				"greeks":    0.8,
				"volume":    0.7,
				"sentiment": 0.5,
			},
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:8501"},
			RateLimit:   60,
			RateWindow:  duration{time.Minute},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			PriceTTL: duration{24 * time.Hour},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "sudarshan",
			User:          "sudarshan",
			SSLMode:       "disable",
			MaxConns:      5,
			RunMigrations: true,
		},
		Notify: NotifyConfig{
			Events:   []string{"verdict"},
			Cooldown: duration{5 * time.Minute},
		},
	}
}

var validModes = map[string]bool{
	"server": true,
	"feed":   true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validSegments = map[string]bool{
	"IDX_I":        true,
	"NSE_EQ":       true,
	"NSE_FNO":      true,
	"NSE_CURRENCY": true,
	"BSE_EQ":       true,
	"BSE_FNO":      true,
	"BSE_CURRENCY": true,
	"MCX_COMM":     true,
}

// Validate checks every section and returns one error listing all problems.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, feed)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Dhan
	if c.Dhan.FeedURL == "" {
		errs = append(errs, "dhan: feed_url must not be empty")
	}
	if strings.EqualFold(c.Mode, "feed") && !c.Dhan.HasCredentials() {
		errs = append(errs, "dhan: client_id and access_token are required for mode feed")
	}

	// Feed
	if c.Feed.BatchSize < 1 || c.Feed.BatchSize > 100 {
		errs = append(errs, fmt.Sprintf("feed: batch_size must be 1-100, got %d", c.Feed.BatchSize))
	}
	if c.Feed.BatchPacing.Duration < 0 {
		errs = append(errs, "feed: batch_pacing must not be negative")
	}
	if c.Feed.ReconnectDelay.Duration <= 0 {
		errs = append(errs, "feed: reconnect_delay must be > 0")
	}
	if c.Feed.RelayBuffer < 1 {
		errs = append(errs, "feed: relay_buffer must be >= 1")
	}
	for i, inst := range c.Feed.Instruments {
		if !validSegments[inst.Segment] {
			errs = append(errs, fmt.Sprintf("feed: instruments[%d]: unknown segment %q", i, inst.Segment))
		}
		if strings.TrimSpace(inst.ID) == "" {
			errs = append(errs, fmt.Sprintf("feed: instruments[%d]: id must not be empty", i))
		}
	}

	// Fusion
	if c.Fusion.MinConfirms < 1 {
		errs = append(errs, "fusion: min_confirms must be >= 1")
	}
	for name, w := range c.Fusion.Weights {
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			errs = append(errs, fmt.Sprintf("fusion: weight %q must be a finite non-negative number", name))
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
		if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
			errs = append(errs, "server: rate_window must be > 0 when rate_limit is set")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.MaxConns < 1 {
			errs = append(errs, "postgres: max_conns must be >= 1")
		}
	}

	// Notify
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}
	if c.Notify.Cooldown.Duration < 0 {
		errs = append(errs, "notify: cooldown must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
