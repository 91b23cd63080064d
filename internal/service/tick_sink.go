package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/sudarshan/internal/domain"
	"github.com/alanyoungcy/sudarshan/internal/feed"
)

// TickSink mirrors relay ticks into the shared cache: every tick is
// published on domain.ChannelTicks and traded prices are stored in the
// price cache under the tick key.
type TickSink struct {
	relay  *feed.Relay
	bus    domain.SignalBus
	prices domain.PriceCache
	logger *slog.Logger
}

// NewTickSink creates a sink. Either of bus or prices may be nil.
func NewTickSink(relay *feed.Relay, bus domain.SignalBus, prices domain.PriceCache, logger *slog.Logger) *TickSink {
	return &TickSink{
		relay:  relay,
		bus:    bus,
		prices: prices,
		logger: logger.With(slog.String("component", "tick_sink")),
	}
}

// Run consumes the relay until ctx is done or the relay closes.
func (s *TickSink) Run(ctx context.Context) error {
	for tick := range s.relay.Subscribe(ctx) {
		s.handle(ctx, tick)
	}
	return nil
}

func (s *TickSink) handle(ctx context.Context, tick domain.Tick) {
	if s.bus != nil {
		payload, err := json.Marshal(tick)
		if err == nil {
			err = s.bus.Publish(ctx, domain.ChannelTicks, payload)
		}
		if err != nil {
			s.logger.DebugContext(ctx, "publish tick failed",
				slog.String("key", tick.Key()),
				slog.String("error", err.Error()),
			)
		}
	}

	if s.prices != nil && tick.Kind != domain.TickKindOI && finite(tick.LTP) {
		ts := time.Now()
		if tick.LastTradeTime != 0 {
			ts = time.Unix(int64(tick.LastTradeTime), 0)
		}
		price := decimal.NewFromFloat32(tick.LTP).InexactFloat64()
		if err := s.prices.SetPrice(ctx, tick.Key(), price, ts); err != nil {
			s.logger.DebugContext(ctx, "cache price failed",
				slog.String("key", tick.Key()),
				slog.String("error", err.Error()),
			)
		}
	}
}

func finite(v float32) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
