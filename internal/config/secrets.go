package config

import (
	"maps"
	"slices"
)

// RedactedConfig returns a copy of cfg with secrets replaced by "***", safe
// to log or print. Slices and maps are copied so the result can be mutated
// freely.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.Dhan.AccessToken)
	redact(&out.Server.APIKey)
	redact(&out.Redis.Password)
	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	out.Feed.Instruments = slices.Clone(cfg.Feed.Instruments)
	out.Server.CORSOrigins = slices.Clone(cfg.Server.CORSOrigins)
	out.Notify.Events = slices.Clone(cfg.Notify.Events)
	out.Fusion.Weights = maps.Clone(cfg.Fusion.Weights)
	return out
}

const redacted = "***"

func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
