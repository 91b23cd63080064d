package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/sudarshan/internal/domain"
	"github.com/alanyoungcy/sudarshan/internal/platform/dhan"
)

// State is the lifecycle state of the upstream connection.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateStopped      State = "stopped"
)

// Config holds the connection settings for Service.
type Config struct {
	FeedURL     string
	Credentials dhan.Credentials
	AuthType    int

	RequestCode    int
	BatchSize      int
	BatchPacing    time.Duration
	ReconnectDelay time.Duration
}

// Stats are monotonically increasing counters since the service was created.
type Stats struct {
	Frames       uint64 `json:"frames"`
	Ticks        uint64 `json:"ticks"`
	DecodeErrors uint64 `json:"decode_errors"`
	Reconnects   uint64 `json:"reconnects"`
}

// Service owns the single upstream feed connection. It keeps the registry
// subscribed across reconnects and republishes decoded ticks on the relay.
type Service struct {
	cfg      Config
	registry *Registry
	relay    *Relay
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}
	conn    *dhan.Conn
	connCtx context.Context

	state atomic.Value

	frames     atomic.Uint64
	ticks      atomic.Uint64
	decodeErrs atomic.Uint64
	reconnects atomic.Uint64
}

// NewService creates a feed service. Nothing connects until EnsureRunning.
func NewService(cfg Config, registry *Registry, relay *Relay, logger *slog.Logger) *Service {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 3 * time.Second
	}
	if cfg.RequestCode == 0 {
		cfg.RequestCode = dhan.RequestSubscribeTicker
	}
	if cfg.AuthType == 0 {
		cfg.AuthType = 2
	}
	s := &Service{
		cfg:      cfg,
		registry: registry,
		relay:    relay,
		logger:   logger.With(slog.String("component", "feed_service")),
	}
	s.state.Store(StateDisconnected)
	return s
}

// EnsureRunning starts the connection loop if it is not already running.
// It fails fast with domain.ErrMissingCredentials when the client id or
// access token is empty.
func (s *Service) EnsureRunning() error {
	if s.cfg.Credentials.ClientID == "" || s.cfg.Credentials.AccessToken == "" {
		return fmt.Errorf("feed: ensure running: %w", domain.ErrMissingCredentials)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return fmt.Errorf("feed: ensure running: %w", domain.ErrFeedStopped)
	}
	if s.running {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.running = true
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)

	s.logger.Info("feed loop started", slog.Int("subscriptions", s.registry.Len()))
	return nil
}

// Run starts the loop and blocks until ctx is done, then stops the service.
// It suits an errgroup member.
func (s *Service) Run(ctx context.Context) error {
	if err := s.EnsureRunning(); err != nil {
		return err
	}
	<-ctx.Done()
	s.Stop()
	return nil
}

// Subscribe registers subs and, when a connection is live, sends the newly
// added pairs on it straight away. It returns the pairs that were new. The
// send is bound to the connection, not the caller, so a caller that goes
// away mid-batch cannot leave registered pairs unsent.
func (s *Service) Subscribe(subs ...domain.Subscription) []domain.Subscription {
	added := s.registry.AddAll(subs)
	if len(added) == 0 {
		return nil
	}

	s.mu.Lock()
	conn, ctx := s.conn, s.connCtx
	s.mu.Unlock()
	if conn == nil {
		return added
	}
	if err := conn.Subscribe(ctx, added); err != nil {
		// The read loop will notice a dead socket and resubscribe everything.
		s.logger.Warn("live subscribe failed",
			slog.Int("instruments", len(added)),
			slog.String("error", err.Error()),
		)
	}
	return added
}

// Subscriptions returns the registered instruments in insertion order.
func (s *Service) Subscriptions() []domain.Subscription {
	return s.registry.List()
}

// Relay returns the relay that decoded ticks are published on.
func (s *Service) Relay() *Relay {
	return s.relay
}

// State returns the current connection state.
func (s *Service) State() State {
	return s.state.Load().(State)
}

// Stats returns a snapshot of the service counters.
func (s *Service) Stats() Stats {
	return Stats{
		Frames:       s.frames.Load(),
		Ticks:        s.ticks.Load(),
		DecodeErrors: s.decodeErrs.Load(),
		Reconnects:   s.reconnects.Load(),
	}
}

// Stop cancels the loop, closes the upstream socket and waits for the loop
// to exit. The service cannot be restarted.
func (s *Service) Stop() {
	s.mu.Lock()
	s.stopped = true
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	s.state.Store(StateStopped)
	s.logger.Info("feed stopped")
}

func (s *Service) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			s.reconnects.Add(1)
		}
		err := s.runConnection(ctx)
		s.state.Store(StateDisconnected)
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("feed disconnected, reconnecting",
			slog.String("error", errString(err)),
			slog.Duration("delay", s.cfg.ReconnectDelay),
		)

		t := time.NewTimer(s.cfg.ReconnectDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

func (s *Service) runConnection(ctx context.Context) error {
	url, err := dhan.FeedURL(s.cfg.FeedURL, s.cfg.Credentials, s.cfg.AuthType)
	if err != nil {
		return err
	}

	s.state.Store(StateConnecting)
	conn, err := dhan.Dial(ctx, url, dhan.ConnOptions{
		RequestCode: s.cfg.RequestCode,
		BatchSize:   s.cfg.BatchSize,
		BatchPacing: s.cfg.BatchPacing,
	})
	if err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	defer conn.Close()

	// Publish the connection before snapshotting the registry so a
	// concurrent Subscribe either lands in the snapshot or is sent live.
	s.mu.Lock()
	s.conn, s.connCtx = conn, ctx
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.conn, s.connCtx = nil, nil
		s.mu.Unlock()
	}()

	s.state.Store(StateConnected)
	list := s.registry.List()
	if err := conn.Subscribe(ctx, list); err != nil {
		return err
	}
	s.logger.Info("feed connected", slog.Int("subscriptions", len(list)))

	for {
		mt, data, err := conn.ReadFrame()
		if err != nil {
			return err
		}
		s.handleFrame(mt, data)
	}
}

func (s *Service) handleFrame(messageType int, data []byte) {
	s.frames.Add(1)

	switch messageType {
	case websocket.BinaryMessage:
		tick, err := dhan.Decode(data)
		if errors.Is(err, dhan.ErrUnknownPacket) {
			return
		}
		if err != nil {
			s.decodeErrs.Add(1)
			s.logger.Debug("discarding frame", slog.Int("bytes", len(data)), slog.String("error", err.Error()))
			return
		}
		s.relay.Publish(tick)
		s.ticks.Add(1)
	case websocket.TextMessage:
		s.logger.Debug("feed text message", slog.String("message", string(data)))
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
