package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/sudarshan/internal/domain"
	"github.com/alanyoungcy/sudarshan/internal/fusion"
)

// VerdictNotifier delivers non-neutral verdicts to operators.
type VerdictNotifier interface {
	NotifyVerdict(ctx context.Context, res domain.AnalyzeResult) error
}

// FusionDefaults are applied to requests that leave fields unset.
type FusionDefaults struct {
	Weights     domain.Weights
	MinConfirms int
}

// FusionDeps are the optional sinks for analysis results. Nil fields are
// skipped.
type FusionDeps struct {
	Store    domain.VerdictStore
	Bus      domain.SignalBus
	Notifier VerdictNotifier
}

// FusionService runs analyses with configured defaults and fans the
// results out to storage, pub/sub and notifications.
type FusionService struct {
	orch     *fusion.Orchestrator
	defaults FusionDefaults
	deps     FusionDeps
	now      func() time.Time
	logger   *slog.Logger
}

// NewFusionService creates a FusionService.
func NewFusionService(orch *fusion.Orchestrator, defaults FusionDefaults, deps FusionDeps, logger *slog.Logger) *FusionService {
	if defaults.Weights == nil {
		defaults.Weights = domain.DefaultWeights()
	}
	if defaults.MinConfirms <= 0 {
		defaults.MinConfirms = fusion.DefaultMinConfirms
	}
	return &FusionService{
		orch:     orch,
		defaults: defaults,
		deps:     deps,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "fusion_service")),
	}
}

// Defaults returns a copy of the request defaults.
func (s *FusionService) Defaults() FusionDefaults {
	return FusionDefaults{
		Weights:     s.defaults.Weights.Clone(),
		MinConfirms: s.defaults.MinConfirms,
	}
}

// HasHistory reports whether results are persisted.
func (s *FusionService) HasHistory() bool {
	return s.deps.Store != nil
}

// Analyze evaluates req. Omitted weights take the configured defaults as a
// whole; a non-positive min_confirms takes the configured minimum. Sink
// failures are logged and never fail the analysis.
func (s *FusionService) Analyze(ctx context.Context, req domain.AnalyzeRequest) (domain.AnalyzeResult, error) {
	if req.Weights == nil {
		req.Weights = s.defaults.Weights.Clone()
	}
	if req.MinConfirms <= 0 {
		req.MinConfirms = s.defaults.MinConfirms
	}

	res, err := s.orch.Analyze(ctx, req)
	if err != nil {
		return domain.AnalyzeResult{}, fmt.Errorf("fusion_service: %w", err)
	}
	res.ID = uuid.NewString()

	s.logger.InfoContext(ctx, "analysis complete",
		slog.String("id", res.ID),
		slog.String("verdict", string(res.Verdict)),
		slog.Float64("score", res.Score),
		slog.Int("confirms", res.Confirms),
	)

	if s.deps.Store != nil {
		rec := domain.AnalysisRecord{
			ID:          res.ID,
			MinConfirms: req.MinConfirms,
			Weights:     req.Weights,
			Signals:     res.Signals,
			Score:       res.Score,
			Confirms:    res.Confirms,
			Verdict:     res.Verdict,
			Detail:      res.Detail,
			CreatedAt:   s.now().UTC(),
		}
		if err := s.deps.Store.Save(ctx, rec); err != nil {
			s.logger.WarnContext(ctx, "persist analysis failed",
				slog.String("id", res.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if s.deps.Bus != nil {
		payload, err := json.Marshal(res)
		if err == nil {
			err = s.deps.Bus.Publish(ctx, domain.ChannelVerdicts, payload)
		}
		if err != nil {
			s.logger.WarnContext(ctx, "publish verdict failed",
				slog.String("id", res.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if s.deps.Notifier != nil && res.Verdict != domain.SignalNeutral {
		if err := s.deps.Notifier.NotifyVerdict(ctx, res); err != nil {
			s.logger.WarnContext(ctx, "verdict notification failed",
				slog.String("id", res.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	return res, nil
}

// History returns up to limit persisted analyses, newest first. It returns
// domain.ErrNotFound when no store is wired.
func (s *FusionService) History(ctx context.Context, limit int) ([]domain.AnalysisRecord, error) {
	if s.deps.Store == nil {
		return nil, domain.ErrNotFound
	}
	recs, err := s.deps.Store.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("fusion_service: history: %w", err)
	}
	return recs, nil
}
