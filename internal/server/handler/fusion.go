package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/sudarshan/internal/domain"
	"github.com/alanyoungcy/sudarshan/internal/service"
)

// FusionService defines the methods the fusion handler requires from the
// service layer.
type FusionService interface {
	Analyze(ctx context.Context, req domain.AnalyzeRequest) (domain.AnalyzeResult, error)
	History(ctx context.Context, limit int) ([]domain.AnalysisRecord, error)
	Defaults() service.FusionDefaults
	HasHistory() bool
}

// FusionHandler serves the fusion endpoints.
type FusionHandler struct {
	fusion FusionService
	logger *slog.Logger
}

// NewFusionHandler creates a FusionHandler.
func NewFusionHandler(fusion FusionService, logger *slog.Logger) *FusionHandler {
	return &FusionHandler{
		fusion: fusion,
		logger: logHandler(logger, "fusion"),
	}
}

// HasHistory reports whether analyses are persisted.
func (h *FusionHandler) HasHistory() bool {
	return h.fusion.HasHistory()
}

type analyzeResponse struct {
	OK bool `json:"ok"`
	domain.AnalyzeResult
}

// Analyze runs all blades over the request inputs and fuses the signals.
// POST /api/fusion/analyze
func (h *FusionHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req domain.AnalyzeRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.fusion.Analyze(r.Context(), req)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "analyze failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "analysis failed")
		return
	}

	writeJSON(w, http.StatusOK, analyzeResponse{OK: true, AnalyzeResult: res})
}

// GetConfig returns the defaults applied to requests that omit them.
// GET /api/fusion/config
func (h *FusionHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	d := h.fusion.Defaults()
	writeJSON(w, http.StatusOK, map[string]any{
		"weights":      d.Weights,
		"min_confirms": d.MinConfirms,
		"blades":       domain.BladeNames,
	})
}

type historyItem struct {
	ID          string                        `json:"id"`
	MinConfirms int                           `json:"min_confirms"`
	Weights     domain.Weights                `json:"weights"`
	Signals     map[string]domain.Signal      `json:"signals"`
	Score       float64                       `json:"score"`
	Confirms    int                           `json:"confirms"`
	Verdict     domain.Signal                 `json:"verdict"`
	Detail      map[string]domain.BladeResult `json:"detail"`
	CreatedAt   string                        `json:"created_at"`
}

// History lists recent analyses, newest first.
// GET /api/fusion/history?limit=50
func (h *FusionHandler) History(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 50, 500)

	recs, err := h.fusion.History(r.Context(), limit)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "history disabled")
			return
		}
		h.logger.ErrorContext(r.Context(), "list history failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list history")
		return
	}

	items := make([]historyItem, 0, len(recs))
	for _, rec := range recs {
		items = append(items, historyItem{
			ID:          rec.ID,
			MinConfirms: rec.MinConfirms,
			Weights:     rec.Weights,
			Signals:     rec.Signals,
			Score:       rec.Score,
			Confirms:    rec.Confirms,
			Verdict:     rec.Verdict,
			Detail:      rec.Detail,
			CreatedAt:   rec.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"analyses": items,
		"limit":    limit,
	})
}
