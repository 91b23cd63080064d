package domain

import (
	"context"
	"time"
)

// PriceCache provides fast access to the latest traded prices, keyed by
// Tick.Key().
type PriceCache interface {
	SetPrice(ctx context.Context, key string, price float64, ts time.Time) error
	GetPrice(ctx context.Context, key string) (float64, time.Time, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// Pub/sub channel names.
const (
	ChannelTicks    = "ticks"
	ChannelVerdicts = "verdicts"
)

// SignalBus provides pub/sub fan-out to other processes.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}
