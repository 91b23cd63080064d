package fusion

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/sudarshan/internal/domain"
)

// Blade converts one domain-specific observation into a signal. Evaluate
// must not panic and must treat nil or malformed input as neutral.
type Blade interface {
	Name() string
	Evaluate(in domain.BladeInput) domain.BladeResult
}

// DefaultBlades returns the five stock blades in canonical order.
func DefaultBlades() []Blade {
	return []Blade{
		PriceBlade{},
		OIBlade{},
		GreeksBlade{},
		VolumeBlade{},
		SentimentBlade{},
	}
}

// PriceBlade reads {trend}.
type PriceBlade struct{}

func (PriceBlade) Name() string { return domain.BladePrice }

func (PriceBlade) Evaluate(in domain.BladeInput) domain.BladeResult {
	trend := lowerString(in, "trend")
	sig := asSignal(trend)
	return domain.BladeResult{
		Signal: sig,
		Score:  float64(sig.Direction()),
		Detail: map[string]any{"trend": trend},
	}
}

// OIBlade reads {signal}. Besides the plain signal words it understands the
// open-interest buildup vocabulary.
type OIBlade struct{}

var oiBuildup = map[string]float64{
	"long_buildup":   1.0,
	"short_covering": 0.7,
	"short_buildup":  -1.0,
	"long_unwinding": -0.7,
}

func (OIBlade) Name() string { return domain.BladeOI }

func (OIBlade) Evaluate(in domain.BladeInput) domain.BladeResult {
	raw := lowerString(in, "signal")
	res := domain.BladeResult{
		Signal: asSignal(raw),
		Detail: map[string]any{"signal": raw},
	}
	res.Score = float64(res.Signal.Direction())

	if score, ok := oiBuildup[raw]; ok {
		res.Score = score
		if score > 0 {
			res.Signal = domain.SignalBullish
		} else {
			res.Signal = domain.SignalBearish
		}
	}
	return res
}

// GreeksBlade reads {delta_bias}, or derives the bias from {delta_atm} when
// no bias is given. Its score is a 0..1 buyer-friendliness rating combining
// the bias with theta risk.
type GreeksBlade struct{}

const (
	deltaLongAt  = 0.55
	deltaShortAt = 0.45
	ivpHigh      = 70
)

func (GreeksBlade) Name() string { return domain.BladeGreeks }

func (GreeksBlade) Evaluate(in domain.BladeInput) domain.BladeResult {
	bias := lowerString(in, "delta_bias")
	if bias == "" {
		if delta, ok := number(in, "delta_atm"); ok {
			switch {
			case delta >= deltaLongAt:
				bias = "long"
			case delta <= deltaShortAt:
				bias = "short"
			default:
				bias = "neutral"
			}
		}
	}

	sig := domain.SignalNeutral
	switch bias {
	case "long", "call", "positive":
		sig = domain.SignalBullish
	case "short", "put", "negative":
		sig = domain.SignalBearish
	}

	ivp, ok := number(in, "iv_percentile")
	if !ok {
		ivp = 30
	}
	thetaRisk := "low"
	switch {
	case boolean(in, "theta_decay_fast"):
		thetaRisk = "high"
	case ivp > ivpHigh:
		thetaRisk = "medium"
	}

	score := 0.5 + 0.2*float64(sig.Direction())
	switch thetaRisk {
	case "low":
		score += 0.2
	case "high":
		score -= 0.2
	}
	score = round3(math.Max(0, math.Min(1, score)))

	return domain.BladeResult{
		Signal: sig,
		Score:  score,
		Detail: map[string]any{
			"delta_bias": bias,
			"theta_risk": thetaRisk,
			"score":      score,
		},
	}
}

// VolumeBlade reads {volume_spike, confirmation}. Only a confirmed spike is
// bullish; an unconfirmed spike stays neutral with a reduced score.
type VolumeBlade struct{}

func (VolumeBlade) Name() string { return domain.BladeVolume }

func (VolumeBlade) Evaluate(in domain.BladeInput) domain.BladeResult {
	spike := boolean(in, "volume_spike")
	confirm := boolean(in, "confirmation")

	res := domain.BladeResult{
		Signal: domain.SignalNeutral,
		Detail: map[string]any{"volume_spike": spike, "confirmation": confirm},
	}
	switch {
	case spike && confirm:
		res.Signal = domain.SignalBullish
		res.Score = 1.0
	case spike:
		res.Score = 0.4
	}
	return res
}

// SentimentBlade reads {sentiment}.
type SentimentBlade struct{}

func (SentimentBlade) Name() string { return domain.BladeSentiment }

func (SentimentBlade) Evaluate(in domain.BladeInput) domain.BladeResult {
	raw := lowerString(in, "sentiment")
	sig := asSignal(raw)
	return domain.BladeResult{
		Signal: sig,
		Score:  0.7 * float64(sig.Direction()),
		Detail: map[string]any{"sentiment": raw},
	}
}

func asSignal(s string) domain.Signal {
	switch domain.Signal(s) {
	case domain.SignalBullish, domain.SignalBearish:
		return domain.Signal(s)
	default:
		return domain.SignalNeutral
	}
}

func lowerString(in domain.BladeInput, key string) string {
	s, ok := in[key].(string)
	if !ok {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(s))
}

// number accepts any JSON-ish numeric form, including numeric strings.
func number(in domain.BladeInput, key string) (float64, bool) {
	var f float64
	switch v := in[key].(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case json.Number:
		n, err := v.Float64()
		if err != nil {
			return 0, false
		}
		f = n
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		f = n
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// boolean is true only for a JSON true or the string "true".
func boolean(in domain.BladeInput, key string) bool {
	switch v := in[key].(type) {
	case bool:
		return v
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		return err == nil && b
	default:
		return false
	}
}

func round3(f float64) float64 {
	return decimal.NewFromFloat(f).Round(3).InexactFloat64()
}
