package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alanyoungcy/sudarshan/internal/domain"
)

// keepAliveInterval is how often an idle SSE stream sends a comment line so
// proxies do not close it.
const keepAliveInterval = 15 * time.Second

// LiveFeed defines what the live handler needs from the feed service.
type LiveFeed interface {
	EnsureRunning() error
	Subscribe(subs ...domain.Subscription) []domain.Subscription
	Subscriptions() []domain.Subscription
}

// TickSource hands out relay subscriptions.
type TickSource interface {
	Subscribe(ctx context.Context) <-chan domain.Tick
}

// LiveHandler serves the live feed endpoints.
type LiveHandler struct {
	feed   LiveFeed
	ticks  TickSource
	prices domain.PriceCache // nil when Redis is disabled
	logger *slog.Logger
}

// NewLiveHandler creates a LiveHandler. prices may be nil.
func NewLiveHandler(feed LiveFeed, ticks TickSource, prices domain.PriceCache, logger *slog.Logger) *LiveHandler {
	return &LiveHandler{
		feed:   feed,
		ticks:  ticks,
		prices: prices,
		logger: logHandler(logger, "live"),
	}
}

// HasPrices reports whether the last-price endpoint can be served.
func (h *LiveHandler) HasPrices() bool {
	return h.prices != nil
}

type subscribeRequest struct {
	Instruments []domain.Subscription `json:"instruments"`
}

// Subscribe adds instruments to the feed and makes sure it is running.
// POST /api/live/subscribe
func (h *LiveHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Instruments) == 0 {
		writeError(w, http.StatusBadRequest, "instruments[] required")
		return
	}

	subs := make([]domain.Subscription, 0, len(req.Instruments))
	for _, it := range req.Instruments {
		sub, err := it.Normalize()
		if err != nil {
			writeError(w, http.StatusBadRequest, "segment and id required")
			return
		}
		subs = append(subs, sub)
	}

	added := h.feed.Subscribe(subs...)

	if err := h.feed.EnsureRunning(); err != nil {
		if errors.Is(err, domain.ErrMissingCredentials) {
			writeError(w, http.StatusServiceUnavailable, "feed credentials not configured")
			return
		}
		h.logger.ErrorContext(r.Context(), "ensure running failed", slog.String("error", err.Error()))
		writeError(w, http.StatusServiceUnavailable, "feed unavailable")
		return
	}

	h.logger.InfoContext(r.Context(), "instruments subscribed",
		slog.Int("requested", len(subs)),
		slog.Int("added", len(added)),
	)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"count":  len(h.feed.Subscriptions()),
	})
}

// ListSubscriptions returns every registered instrument.
// GET /api/live/subs
func (h *LiveHandler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"data":   h.feed.Subscriptions(),
	})
}

// Stream pushes every relayed tick as a server-sent event.
// GET /api/live/stream
func (h *LiveHandler) Stream(w http.ResponseWriter, r *http.Request) {
	if err := h.feed.EnsureRunning(); err != nil {
		if errors.Is(err, domain.ErrMissingCredentials) {
			writeError(w, http.StatusServiceUnavailable, "feed credentials not configured")
			return
		}
		writeError(w, http.StatusServiceUnavailable, "feed unavailable")
		return
	}

	rc := http.NewResponseController(w)
	// The stream outlives the server write timeout.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		h.logger.DebugContext(r.Context(), "clear write deadline", slog.String("error", err.Error()))
	}

	ctx := r.Context()
	ticks := h.ticks.Subscribe(ctx)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		h.logger.WarnContext(r.Context(), "streaming unsupported", slog.String("error", err.Error()))
		return
	}

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case tick, ok := <-ticks:
			if !ok {
				return
			}
			data, err := json.Marshal(tick)
			if err != nil {
				continue
			}
			if _, err := w.Write([]byte("data: " + string(data) + "\n\n")); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		case <-keepAlive.C:
			if _, err := w.Write([]byte(": keep-alive\n\n")); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

// LastPrice returns the cached last traded price of one instrument.
// GET /api/live/ltp?segment=NSE_FNO&id=49081
func (h *LiveHandler) LastPrice(w http.ResponseWriter, r *http.Request) {
	if h.prices == nil {
		writeError(w, http.StatusNotFound, "price cache disabled")
		return
	}
	q := r.URL.Query()
	segment, id := strings.TrimSpace(q.Get("segment")), strings.TrimSpace(q.Get("id"))
	if segment == "" || id == "" {
		writeError(w, http.StatusBadRequest, "segment and id required")
		return
	}

	key := segment + ":" + id
	ltp, ts, err := h.prices.GetPrice(r.Context(), key)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no price for "+key)
			return
		}
		h.logger.ErrorContext(r.Context(), "get price failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to read price")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"segment":     segment,
		"security_id": id,
		"ltp":         ltp,
		"updated_at":  ts.UTC().Format(time.RFC3339),
	})
}
