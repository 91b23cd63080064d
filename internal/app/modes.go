package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/sudarshan/internal/domain"
	"github.com/alanyoungcy/sudarshan/internal/feed"
	"github.com/alanyoungcy/sudarshan/internal/fusion"
	"github.com/alanyoungcy/sudarshan/internal/platform/dhan"
	"github.com/alanyoungcy/sudarshan/internal/server"
	"github.com/alanyoungcy/sudarshan/internal/server/handler"
	"github.com/alanyoungcy/sudarshan/internal/server/ws"
	"github.com/alanyoungcy/sudarshan/internal/service"
)

// statsInterval is how often feed mode logs its counters.
const statsInterval = 30 * time.Second

// core holds the services every mode builds.
type core struct {
	relay  *feed.Relay
	feed   *feed.Service
	fusion *service.FusionService
}

func (a *App) buildCore(ctx context.Context, deps *Dependencies) *core {
	relay := feed.NewRelay(a.cfg.Feed.RelayBuffer)

	feedSvc := feed.NewService(feed.Config{
		FeedURL: a.cfg.Dhan.FeedURL,
		Credentials: dhan.Credentials{
			ClientID:    a.cfg.Dhan.ClientID,
			AccessToken: a.cfg.Dhan.AccessToken,
		},
		AuthType:       a.cfg.Dhan.AuthType,
		RequestCode:    a.cfg.Feed.RequestCode,
		BatchSize:      a.cfg.Feed.BatchSize,
		BatchPacing:    a.cfg.Feed.BatchPacing.Duration,
		ReconnectDelay: a.cfg.Feed.ReconnectDelay.Duration,
	}, feed.NewRegistry(), relay, a.logger)

	subs := make([]domain.Subscription, 0, len(a.cfg.Feed.Instruments))
	for _, inst := range a.cfg.Feed.Instruments {
		subs = append(subs, domain.Subscription{Segment: inst.Segment, SecurityID: inst.ID})
	}
	if len(subs) > 0 {
		added := feedSvc.Subscribe(subs...)
		a.logger.InfoContext(ctx, "configured instruments registered", slog.Int("count", len(added)))
	}

	fusionDeps := service.FusionDeps{
		Store: deps.VerdictStore,
		Bus:   deps.SignalBus,
	}
	if deps.Notifier.Enabled() {
		fusionDeps.Notifier = deps.Notifier
	}
	fusionSvc := service.NewFusionService(
		fusion.NewOrchestrator(nil, a.logger),
		service.FusionDefaults{
			Weights:     domain.Weights(a.cfg.Fusion.Weights).Clone(),
			MinConfirms: a.cfg.Fusion.MinConfirms,
		},
		fusionDeps,
		a.logger,
	)

	return &core{relay: relay, feed: feedSvc, fusion: fusionSvc}
}

// startTickSink mirrors relay ticks into Redis when it is enabled.
func (a *App) startTickSink(ctx context.Context, g *errgroup.Group, deps *Dependencies, c *core) {
	if deps.SignalBus == nil && deps.PriceCache == nil {
		return
	}
	sink := service.NewTickSink(c.relay, deps.SignalBus, deps.PriceCache, a.logger)
	g.Go(func() error {
		return sink.Run(ctx)
	})
}

// ServerMode serves the HTTP API and WebSocket hub. The feed starts on the
// first subscribe or stream request, or at startup when feed.auto_start is
// set.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	c := a.buildCore(ctx, deps)

	if a.cfg.Feed.AutoStart {
		if err := c.feed.EnsureRunning(); err != nil {
			if !errors.Is(err, domain.ErrMissingCredentials) {
				return fmt.Errorf("server mode: %w", err)
			}
			a.logger.WarnContext(ctx, "feed auto start skipped: credentials not configured")
		}
	}

	g.Go(func() error {
		<-ctx.Done()
		c.feed.Stop()
		c.relay.Close()
		return nil
	})

	a.startTickSink(ctx, g, deps, c)

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, c)
	}

	return g.Wait()
}

// FeedMode runs the upstream feed headless, mirroring ticks into Redis and
// logging counters periodically.
func (a *App) FeedMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting feed mode")

	g, ctx := errgroup.WithContext(ctx)
	c := a.buildCore(ctx, deps)

	g.Go(func() error {
		defer c.relay.Close()
		if err := c.feed.Run(ctx); err != nil {
			return fmt.Errorf("feed mode: %w", err)
		}
		return nil
	})

	a.startTickSink(ctx, g, deps, c)

	g.Go(func() error {
		ticker := time.NewTicker(statsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				st := c.feed.Stats()
				a.logger.InfoContext(ctx, "feed stats",
					slog.String("state", string(c.feed.State())),
					slog.Uint64("frames", st.Frames),
					slog.Uint64("ticks", st.Ticks),
					slog.Uint64("decode_errors", st.DecodeErrors),
					slog.Uint64("reconnects", st.Reconnects),
					slog.Uint64("relay_dropped", c.relay.Dropped()),
				)
			}
		}
	})

	return g.Wait()
}

// startHTTPServer adds the HTTP server and WebSocket hub goroutines to g.
// The server shuts down gracefully when ctx is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, c *core) {
	hub := ws.NewHub(c.relay, func() map[string]any {
		return map[string]any{
			"mode":       a.cfg.Mode,
			"feed_state": c.feed.State(),
		}
	}, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	handlers := server.Handlers{
		Health: handler.NewHealthHandler(a.logger),
		SelfTest: handler.NewSelfTestHandler(handler.SelfTestInfo{
			Mode:            a.cfg.Mode,
			ClientIDPresent: a.cfg.Dhan.ClientID != "",
			TokenPresent:    a.cfg.Dhan.AccessToken != "",
			Redis:           a.cfg.Redis.Enabled,
			Postgres:        a.cfg.Postgres.Enabled,
			Notify:          deps.Notifier.Enabled(),
		}),
		Status: handler.NewStatusHandler(a.cfg.Mode, c.feed, c.relay, hub.Clients),
		Live:   handler.NewLiveHandler(c.feed, c.relay, deps.PriceCache, a.logger),
		Fusion: handler.NewFusionHandler(c.fusion, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		Limiter:     deps.RateLimiter,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, hub, a.logger)

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
