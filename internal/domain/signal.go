package domain

import (
	"encoding/json"
	"time"
)

// Signal is the normalized direction a blade or the fusion verdict reports.
type Signal string

const (
	SignalBullish Signal = "bullish"
	SignalBearish Signal = "bearish"
	SignalNeutral Signal = "neutral"
)

// Direction maps a signal onto +1, -1 or 0. Anything unrecognised is 0.
func (s Signal) Direction() int {
	switch s {
	case SignalBullish:
		return 1
	case SignalBearish:
		return -1
	default:
		return 0
	}
}

// Blade names, in the canonical evaluation order.
const (
	BladePrice     = "price"
	BladeOI        = "oi"
	BladeGreeks    = "greeks"
	BladeVolume    = "volume"
	BladeSentiment = "sentiment"
)

// BladeNames lists every blade in canonical order.
var BladeNames = []string{BladePrice, BladeOI, BladeGreeks, BladeVolume, BladeSentiment}

// BladeInput is the raw per-blade observation taken from an analyze request.
// It stays loosely typed so a malformed field degrades the blade to neutral
// instead of failing the whole request at decode time.
type BladeInput map[string]any

// BladeResult is what a single blade produces.
type BladeResult struct {
	Signal Signal         `json:"signal"`
	Score  float64        `json:"score"`
	Detail map[string]any `json:"detail,omitempty"`
}

// Weights maps blade name to a non-negative weight.
type Weights map[string]float64

// DefaultWeights returns a fresh copy of the stock blade weights.
func DefaultWeights() Weights {
	return Weights{
		BladePrice:     1.0,
		BladeOI:        1.0,
		BladeGreeks:    0.8,
		BladeVolume:    0.7,
		BladeSentiment: 0.5,
	}
}

// Clone returns a copy safe to mutate.
func (w Weights) Clone() Weights {
	if w == nil {
		return nil
	}
	out := make(Weights, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}

// FusionResult is the aggregate of all blade signals.
// Verdict is neutral whenever Confirms < the requested minimum.
type FusionResult struct {
	Score    float64 `json:"score"`
	Confirms int     `json:"confirms"`
	Verdict  Signal  `json:"verdict"`
}

// AnalyzeRequest is the fusion entrypoint input.
type AnalyzeRequest struct {
	Weights     Weights               `json:"weights,omitempty"`
	MinConfirms int                   `json:"min_confirms,omitempty"`
	Inputs      map[string]BladeInput `json:"inputs"`
}

// UnmarshalJSON decodes each blade input on its own so a malformed one
// (a string where an object belongs) becomes a nil input instead of failing
// the whole request.
func (r *AnalyzeRequest) UnmarshalJSON(data []byte) error {
	var raw struct {
		Weights     Weights                    `json:"weights"`
		MinConfirms int                        `json:"min_confirms"`
		Inputs      map[string]json.RawMessage `json:"inputs"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.Weights = raw.Weights
	r.MinConfirms = raw.MinConfirms
	r.Inputs = make(map[string]BladeInput, len(raw.Inputs))
	for name, msg := range raw.Inputs {
		var in BladeInput
		if json.Unmarshal(msg, &in) != nil {
			in = nil
		}
		r.Inputs[name] = in
	}
	return nil
}

// AnalyzeResult is the fusion entrypoint output.
type AnalyzeResult struct {
	ID       string                 `json:"id,omitempty"`
	Signals  map[string]Signal      `json:"signals"`
	Score    float64                `json:"score"`
	Confirms int                    `json:"confirms"`
	Verdict  Signal                 `json:"verdict"`
	Detail   map[string]BladeResult `json:"detail"`
}

// AnalysisRecord is a persisted analysis outcome.
type AnalysisRecord struct {
	ID          string
	MinConfirms int
	Weights     Weights
	Signals     map[string]Signal
	Score       float64
	Confirms    int
	Verdict     Signal
	Detail      map[string]BladeResult
	CreatedAt   time.Time
}
