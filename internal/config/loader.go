package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load merges the TOML file at path over Defaults, loads .env if present,
// and applies environment overrides. An empty path skips the file. The
// result is not validated; call Validate.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return nil, fmt.Errorf("config: load %s: %w", path, err)
		}
		// A [fusion.weights] table replaces the defaults rather than merging
		// into them.
		if md.IsDefined("fusion", "weights") {
			var only struct {
				Fusion struct {
					Weights map[string]float64 `toml:"weights"`
				} `toml:"fusion"`
			}
			if _, err := toml.DecodeFile(path, &only); err != nil {
				return nil, fmt.Errorf("config: load %s: %w", path, err)
			}
			cfg.Fusion.Weights = only.Fusion.Weights
		}
	}

	// .env is optional.
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// applyEnvOverrides lets operators inject secrets at deploy time. The bare
// DHAN_* and WEBHOOK_SECRET names are read first so SUDARSHAN_* wins.
func applyEnvOverrides(cfg *Config) {
	// ── Aliases ──
	setStr(&cfg.Dhan.ClientID, "DHAN_CLIENT_ID")
	setStr(&cfg.Dhan.AccessToken, "DHAN_ACCESS_TOKEN")
	setStr(&cfg.Server.APIKey, "WEBHOOK_SECRET")

	// ── Dhan ──
	setStr(&cfg.Dhan.ClientID, "SUDARSHAN_DHAN_CLIENT_ID")
	setStr(&cfg.Dhan.AccessToken, "SUDARSHAN_DHAN_ACCESS_TOKEN")
	setStr(&cfg.Dhan.FeedURL, "SUDARSHAN_DHAN_FEED_URL")
	setInt(&cfg.Dhan.AuthType, "SUDARSHAN_DHAN_AUTH_TYPE")

	// ── Feed ──
	setBool(&cfg.Feed.AutoStart, "SUDARSHAN_FEED_AUTO_START")
	setInt(&cfg.Feed.RequestCode, "SUDARSHAN_FEED_REQUEST_CODE")
	setInt(&cfg.Feed.BatchSize, "SUDARSHAN_FEED_BATCH_SIZE")
	setDuration(&cfg.Feed.BatchPacing, "SUDARSHAN_FEED_BATCH_PACING")
	setDuration(&cfg.Feed.ReconnectDelay, "SUDARSHAN_FEED_RECONNECT_DELAY")
	setInt(&cfg.Feed.RelayBuffer, "SUDARSHAN_FEED_RELAY_BUFFER")

	// ── Fusion ──
	setInt(&cfg.Fusion.MinConfirms, "SUDARSHAN_FUSION_MIN_CONFIRMS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "SUDARSHAN_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "SUDARSHAN_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "SUDARSHAN_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "SUDARSHAN_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "SUDARSHAN_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "SUDARSHAN_SERVER_RATE_WINDOW")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "SUDARSHAN_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "SUDARSHAN_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SUDARSHAN_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SUDARSHAN_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "SUDARSHAN_REDIS_POOL_SIZE")
	setBool(&cfg.Redis.TLSEnabled, "SUDARSHAN_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.PriceTTL, "SUDARSHAN_REDIS_PRICE_TTL")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "SUDARSHAN_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "SUDARSHAN_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "SUDARSHAN_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "SUDARSHAN_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "SUDARSHAN_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "SUDARSHAN_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "SUDARSHAN_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "SUDARSHAN_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.MaxConns, "SUDARSHAN_POSTGRES_MAX_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "SUDARSHAN_POSTGRES_RUN_MIGRATIONS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "SUDARSHAN_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "SUDARSHAN_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "SUDARSHAN_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "SUDARSHAN_NOTIFY_EVENTS")
	setDuration(&cfg.Notify.Cooldown, "SUDARSHAN_NOTIFY_COOLDOWN")

	// ── Log ──
	setStr(&cfg.Log.File, "SUDARSHAN_LOG_FILE")

	// ── Top-level ──
	setStr(&cfg.Mode, "SUDARSHAN_MODE")
	setStr(&cfg.LogLevel, "SUDARSHAN_LOG_LEVEL")
}

// Typed env-var helpers. Each only mutates the target when the variable is
// present, non-empty and parses.

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
