package fusion

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/sudarshan/internal/domain"
)

// Orchestrator evaluates every blade against one request and fuses the
// results.
type Orchestrator struct {
	blades []Blade
	logger *slog.Logger
}

// NewOrchestrator creates an orchestrator over blades. A nil slice uses
// DefaultBlades.
func NewOrchestrator(blades []Blade, logger *slog.Logger) *Orchestrator {
	if blades == nil {
		blades = DefaultBlades()
	}
	return &Orchestrator{
		blades: blades,
		logger: logger.With(slog.String("component", "fusion")),
	}
}

// Blades returns the blade names in evaluation order.
func (o *Orchestrator) Blades() []string {
	names := make([]string, len(o.blades))
	for i, b := range o.blades {
		names[i] = b.Name()
	}
	return names
}

// Analyze runs all blades concurrently and fuses their signals. Nil weights
// fall back to domain.DefaultWeights and a non-positive MinConfirms to
// DefaultMinConfirms. The only error is ctx ending before the blades finish.
func (o *Orchestrator) Analyze(ctx context.Context, req domain.AnalyzeRequest) (domain.AnalyzeResult, error) {
	weights := req.Weights
	if weights == nil {
		weights = domain.DefaultWeights()
	}
	minConfirms := req.MinConfirms
	if minConfirms <= 0 {
		minConfirms = DefaultMinConfirms
	}

	results := make([]domain.BladeResult, len(o.blades))
	g, gctx := errgroup.WithContext(ctx)
	for i, b := range o.blades {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = o.evaluate(b, req.Inputs[b.Name()])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.AnalyzeResult{}, fmt.Errorf("fusion: analyze: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return domain.AnalyzeResult{}, fmt.Errorf("fusion: analyze: %w", err)
	}

	out := domain.AnalyzeResult{
		Signals: make(map[string]domain.Signal, len(o.blades)),
		Detail:  make(map[string]domain.BladeResult, len(o.blades)),
	}
	for i, b := range o.blades {
		out.Signals[b.Name()] = results[i].Signal
		out.Detail[b.Name()] = results[i]
	}

	fused := Fuse(out.Signals, weights, minConfirms)
	out.Score = fused.Score
	out.Confirms = fused.Confirms
	out.Verdict = fused.Verdict
	return out, nil
}

// evaluate runs one blade, turning a panic or an out-of-vocabulary signal
// into neutral.
func (o *Orchestrator) evaluate(b Blade, in domain.BladeInput) (res domain.BladeResult) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("blade panicked",
				slog.String("blade", b.Name()),
				slog.Any("panic", r),
			)
			res = domain.BladeResult{Signal: domain.SignalNeutral}
		}
	}()

	res = b.Evaluate(in)
	if res.Signal.Direction() == 0 {
		res.Signal = domain.SignalNeutral
	}
	return res
}
