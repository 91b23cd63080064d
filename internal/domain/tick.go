package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// TickKind identifies the packet family a Tick was decoded from.
type TickKind string

const (
	TickKindTicker TickKind = "ticker"
	TickKindQuote  TickKind = "quote"
	TickKindOI     TickKind = "oi"
)

// Tick is one decoded market-data event from the broker feed. Only the
// fields belonging to Kind are meaningful; the rest stay zero.
type Tick struct {
	Kind       TickKind
	Segment    string
	SecurityID uint32

	LTP           float32
	LastQuantity  int16
	LastTradeTime uint32 // epoch seconds
	ATP           float32
	Volume        uint32
	SellQuantity  uint32
	BuyQuantity   uint32
	Open          float32
	Close         float32
	High          float32
	Low           float32

	OI uint32
}

// Key returns the "<segment>:<security_id>" identity used by caches.
func (t Tick) Key() string {
	return t.Segment + ":" + strconv.FormatUint(uint64(t.SecurityID), 10)
}

// price renders a float32 wire price as its shortest exact decimal so
// 1600.45 does not come out as 1600.449951171875. decimal marshals as a
// quoted string, so the digits are handed to encoding/json as a Number.
// NaN and Inf have no JSON form and render as 0.
func price(v float32) json.Number {
	f := float64(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "0"
	}
	return json.Number(decimal.NewFromFloat32(v).String())
}

type tickerJSON struct {
	Type          TickKind    `json:"type"`
	Segment       string      `json:"segment"`
	SecurityID    string      `json:"security_id"`
	LTP           json.Number `json:"ltp"`
	LastTradeTime uint32      `json:"last_trade_time"`
}

type quoteJSON struct {
	Type          TickKind    `json:"type"`
	Segment       string      `json:"segment"`
	SecurityID    string      `json:"security_id"`
	LTP           json.Number `json:"ltp"`
	LastQuantity  int16       `json:"last_quantity"`
	LastTradeTime uint32      `json:"last_trade_time"`
	ATP           json.Number `json:"atp"`
	Volume        uint32      `json:"volume"`
	SellQuantity  uint32      `json:"sell_quantity"`
	BuyQuantity   uint32      `json:"buy_quantity"`
	Open          json.Number `json:"open"`
	Close         json.Number `json:"close"`
	High          json.Number `json:"high"`
	Low           json.Number `json:"low"`
}

type oiJSON struct {
	Type       TickKind `json:"type"`
	Segment    string   `json:"segment"`
	SecurityID string   `json:"security_id"`
	OI         uint32   `json:"oi"`
}

// MarshalJSON emits the kind-specific downstream shape.
func (t Tick) MarshalJSON() ([]byte, error) {
	id := strconv.FormatUint(uint64(t.SecurityID), 10)
	switch t.Kind {
	case TickKindQuote:
		return json.Marshal(quoteJSON{
			Type:          t.Kind,
			Segment:       t.Segment,
			SecurityID:    id,
			LTP:           price(t.LTP),
			LastQuantity:  t.LastQuantity,
			LastTradeTime: t.LastTradeTime,
			ATP:           price(t.ATP),
			Volume:        t.Volume,
			SellQuantity:  t.SellQuantity,
			BuyQuantity:   t.BuyQuantity,
			Open:          price(t.Open),
			Close:         price(t.Close),
			High:          price(t.High),
			Low:           price(t.Low),
		})
	case TickKindOI:
		return json.Marshal(oiJSON{
			Type:       t.Kind,
			Segment:    t.Segment,
			SecurityID: id,
			OI:         t.OI,
		})
	default:
		return json.Marshal(tickerJSON{
			Type:          TickKindTicker,
			Segment:       t.Segment,
			SecurityID:    id,
			LTP:           price(t.LTP),
			LastTradeTime: t.LastTradeTime,
		})
	}
}

// Subscription is one (segment, security id) pair requested from the feed.
type Subscription struct {
	Segment    string `json:"segment"`
	SecurityID string `json:"id"`
}

// Normalize trims surrounding whitespace and rejects a pair with an empty
// segment or id.
func (s Subscription) Normalize() (Subscription, error) {
	out := Subscription{
		Segment:    strings.TrimSpace(s.Segment),
		SecurityID: strings.TrimSpace(s.SecurityID),
	}
	if out.Segment == "" || out.SecurityID == "" {
		return Subscription{}, fmt.Errorf("%w: segment and id required", ErrInvalidInstrument)
	}
	return out, nil
}
