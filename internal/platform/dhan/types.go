package dhan

import "github.com/alanyoungcy/sudarshan/internal/domain"

// Feed request codes from the broker's annexure.
const (
	RequestDisconnect      = 12
	RequestSubscribeTicker = 15
	RequestSubscribeQuote  = 17
	RequestSubscribeFull   = 21
)

// MaxInstrumentsPerMessage is the upstream cap on one subscribe message.
const MaxInstrumentsPerMessage = 100

// Instrument is one entry in a subscribe message.
type Instrument struct {
	ExchangeSegment string `json:"ExchangeSegment"`
	SecurityID      string `json:"SecurityId"`
}

// SubscribeRequest is the JSON control message sent on the feed socket.
type SubscribeRequest struct {
	RequestCode     int          `json:"RequestCode"`
	InstrumentCount int          `json:"InstrumentCount"`
	InstrumentList  []Instrument `json:"InstrumentList"`
}

// BuildSubscribeBatches splits subs into messages of at most batchSize
// instruments, preserving order. batchSize outside 1..100 is clamped to 100.
func BuildSubscribeBatches(subs []domain.Subscription, requestCode, batchSize int) []SubscribeRequest {
	if batchSize <= 0 || batchSize > MaxInstrumentsPerMessage {
		batchSize = MaxInstrumentsPerMessage
	}
	var out []SubscribeRequest
	for start := 0; start < len(subs); start += batchSize {
		end := start + batchSize
		if end > len(subs) {
			end = len(subs)
		}
		list := make([]Instrument, 0, end-start)
		for _, s := range subs[start:end] {
			list = append(list, Instrument{ExchangeSegment: s.Segment, SecurityID: s.SecurityID})
		}
		out = append(out, SubscribeRequest{
			RequestCode:     requestCode,
			InstrumentCount: len(list),
			InstrumentList:  list,
		})
	}
	return out
}
