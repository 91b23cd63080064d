package handler

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/sudarshan/internal/domain"
	"github.com/alanyoungcy/sudarshan/internal/feed"
)

// FeedStatus is the part of the feed service the status endpoint reads.
type FeedStatus interface {
	State() feed.State
	Stats() feed.Stats
	Subscriptions() []domain.Subscription
}

// RelayStatus reports relay fan-out counters.
type RelayStatus interface {
	Subscribers() int
	Dropped() uint64
}

// StatusHandler serves the backend status for dashboards.
type StatusHandler struct {
	mode      string
	feed      FeedStatus
	relay     RelayStatus
	clients   func() int
	startedAt time.Time
}

// NewStatusHandler creates a StatusHandler. clients may be nil when no
// WebSocket hub is mounted.
func NewStatusHandler(mode string, fs FeedStatus, relay RelayStatus, clients func() int) *StatusHandler {
	return &StatusHandler{
		mode:      mode,
		feed:      fs,
		relay:     relay,
		clients:   clients,
		startedAt: time.Now().UTC(),
	}
}

// GetStatus responds with the feed state, counters and relay fan-out.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	wsClients := 0
	if h.clients != nil {
		wsClients = h.clients()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":           h.mode,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"feed": map[string]any{
			"state":         h.feed.State(),
			"stats":         h.feed.Stats(),
			"subscriptions": len(h.feed.Subscriptions()),
		},
		"relay": map[string]any{
			"subscribers": h.relay.Subscribers(),
			"dropped":     h.relay.Dropped(),
		},
		"ws_clients": wsClients,
	})
}
