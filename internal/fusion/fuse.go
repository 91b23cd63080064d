package fusion

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/sudarshan/internal/domain"
)

// DefaultMinConfirms is the confirmation threshold used when a request does
// not set one.
const DefaultMinConfirms = 3

// Fuse combines blade signals into one verdict.
//
// The score is the weighted sum of blade directions, added up exactly in
// decimal so 0.1+0.2-0.3 is zero and a tiny weight still moves the sign.
// Blades missing from weights, and negative or non-finite weights,
// contribute nothing to the score.
// Confirms counts blades pointing the same way as the score, so a zero
// score never confirms. The verdict is directional only when the score is
// non-zero and confirms reaches minConfirms.
func Fuse(signals map[string]domain.Signal, weights domain.Weights, minConfirms int) domain.FusionResult {
	names := make([]string, 0, len(signals))
	for name := range signals {
		names = append(names, name)
	}
	sort.Strings(names)

	sum := decimal.Zero
	for _, name := range names {
		w := decimal.NewFromFloat(weightOf(weights, name))
		sum = sum.Add(w.Mul(decimal.NewFromInt(int64(signals[name].Direction()))))
	}

	dir := sum.Sign()
	confirms := 0
	if dir != 0 {
		for _, name := range names {
			if signals[name].Direction() == dir {
				confirms++
			}
		}
	}

	verdict := domain.SignalNeutral
	if dir != 0 && confirms >= minConfirms {
		if dir > 0 {
			verdict = domain.SignalBullish
		} else {
			verdict = domain.SignalBearish
		}
	}

	return domain.FusionResult{
		Score:    sum.InexactFloat64(),
		Confirms: confirms,
		Verdict:  verdict,
	}
}

func weightOf(w domain.Weights, name string) float64 {
	v, ok := w[name]
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}
