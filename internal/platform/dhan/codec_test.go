package dhan

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/alanyoungcy/sudarshan/internal/domain"
)

// frame builds a binary packet: 8-byte header followed by payload.
func frame(typ, seg byte, id uint32, payload []byte) []byte {
	b := make([]byte, headerLen, headerLen+len(payload))
	b[0] = typ
	binary.BigEndian.PutUint16(b[1:3], uint16(headerLen+len(payload)))
	b[3] = seg
	binary.BigEndian.PutUint32(b[4:8], id)
	return append(b, payload...)
}

type payload []byte

func (p payload) f32(v float32) payload {
	return binary.BigEndian.AppendUint32(p, math.Float32bits(v))
}

func (p payload) u32(v uint32) payload { return binary.BigEndian.AppendUint32(p, v) }

func (p payload) i16(v int16) payload { return binary.BigEndian.AppendUint16(p, uint16(v)) }

func TestDecodeTicker(t *testing.T) {
	f := frame(PacketTicker, 3, 49081, payload{}.f32(1600.45).u32(1717000000))
	if len(f) != 16 {
		t.Fatalf("ticker frame length = %d, want 16", len(f))
	}

	tick, err := Decode(f)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if tick.Kind != domain.TickKindTicker {
		t.Errorf("kind = %q, want ticker", tick.Kind)
	}
	if tick.Segment != "NSE_FNO" || tick.SecurityID != 49081 {
		t.Errorf("identity = %s/%d, want NSE_FNO/49081", tick.Segment, tick.SecurityID)
	}
	if tick.LTP != float32(1600.45) {
		t.Errorf("ltp = %v, want 1600.45", tick.LTP)
	}
	if tick.LastTradeTime != 1717000000 {
		t.Errorf("ltt = %d, want 1717000000", tick.LastTradeTime)
	}

	out, err := json.Marshal(tick)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"type":"ticker","segment":"NSE_FNO","security_id":"49081","ltp":1600.45,"last_trade_time":1717000000}`
	if string(out) != want {
		t.Errorf("json = %s\nwant   %s", out, want)
	}
}

func TestDecodeQuote(t *testing.T) {
	p := payload{}.
		f32(250.5).
		i16(-3).
		u32(1717000001).
		f32(249.75).
		u32(120000).
		u32(5000).
		u32(7000).
		f32(245).
		f32(244.5).
		f32(252.25).
		f32(243)
	f := frame(PacketQuote, 1, 2885, p)
	if len(f) != 50 {
		t.Fatalf("quote frame length = %d, want 50", len(f))
	}

	tick, err := Decode(f)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := domain.Tick{
		Kind:          domain.TickKindQuote,
		Segment:       "NSE_EQ",
		SecurityID:    2885,
		LTP:           250.5,
		LastQuantity:  -3,
		LastTradeTime: 1717000001,
		ATP:           249.75,
		Volume:        120000,
		SellQuantity:  5000,
		BuyQuantity:   7000,
		Open:          245,
		Close:         244.5,
		High:          252.25,
		Low:           243,
	}
	if tick != want {
		t.Errorf("tick = %+v\nwant   %+v", tick, want)
	}
}

func TestDecodeOI(t *testing.T) {
	// OI payload is 4 bytes but the protocol requires at least 13.
	f := append(frame(PacketOI, 4, 77, payload{}.u32(987654)), 0)

	tick, err := Decode(f)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if tick.Kind != domain.TickKindOI || tick.OI != 987654 || tick.Segment != "BSE_FNO" {
		t.Errorf("tick = %+v", tick)
	}

	out, _ := json.Marshal(tick)
	want := `{"type":"oi","segment":"BSE_FNO","security_id":"77","oi":987654}`
	if string(out) != want {
		t.Errorf("json = %s, want %s", out, want)
	}
}

func TestDecodeErrors(t *testing.T) {
	cases := []struct {
		name  string
		frame []byte
		want  error
	}{
		{"empty", nil, ErrTruncated},
		{"ticker short", frame(PacketTicker, 1, 1, payload{}.f32(1).u32(2))[:15], ErrTruncated},
		{"quote short", frame(PacketQuote, 1, 1, payload{}.f32(1).u32(2)), ErrTruncated},
		{"oi 12 bytes", frame(PacketOI, 1, 1, payload{}.u32(5)), ErrTruncated},
		{"unknown type", frame(50, 1, 1, payload{}.u32(0).u32(0)), ErrUnknownPacket},
		{"header only unknown", []byte{6}, ErrUnknownPacket},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(tc.frame)
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestSegmentFallback(t *testing.T) {
	tick, err := Decode(frame(PacketTicker, 9, 10, payload{}.f32(1).u32(2)))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if tick.Segment != "9" {
		t.Errorf("segment = %q, want \"9\"", tick.Segment)
	}
	if got := SegmentName(5); got != "MCX_COMM" {
		t.Errorf("SegmentName(5) = %q", got)
	}
}

func TestParseHeader(t *testing.T) {
	h, err := ParseHeader(frame(41, 2, 500, nil))
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	if h.Type != 41 || h.Length != 8 || h.Segment != 2 || h.SecurityID != 500 {
		t.Errorf("header = %+v", h)
	}
	if _, err := ParseHeader([]byte{2, 0, 16}); !errors.Is(err, ErrTruncated) {
		t.Errorf("short header err = %v, want ErrTruncated", err)
	}
}
