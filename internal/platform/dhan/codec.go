package dhan

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/alanyoungcy/sudarshan/internal/domain"
)

// Packet type codes carried in byte 0 of every binary frame.
const (
	PacketTicker byte = 2
	PacketQuote  byte = 4
	PacketOI     byte = 5
)

// headerLen is the fixed response header. The broker's packet tables number
// bytes from 1, so "LTP at byte 9" is the first payload byte at index 8.
const headerLen = 8

// Minimum frame sizes per packet type.
const (
	tickerLen = 16
	quoteLen  = 50
	oiLen     = 13
)

var (
	// ErrTruncated means the frame is shorter than its packet type requires.
	ErrTruncated = errors.New("dhan: truncated frame")

	// ErrUnknownPacket means the packet type is not one the codec decodes.
	// Callers skip such frames silently.
	ErrUnknownPacket = errors.New("dhan: unknown packet type")
)

var segments = map[byte]string{
	1: "NSE_EQ",
	2: "BSE_EQ",
	3: "NSE_FNO",
	4: "BSE_FNO",
	5: "MCX_COMM",
}

// SegmentName maps a wire segment code to its name. Unknown codes come back
// as their decimal string.
func SegmentName(code byte) string {
	if name, ok := segments[code]; ok {
		return name
	}
	return strconv.Itoa(int(code))
}

// Header is the common 8-byte prefix of every binary frame.
type Header struct {
	Type       byte
	Length     uint16 // declared by the server, informational only
	Segment    byte
	SecurityID uint32
}

// ParseHeader reads the frame header.
func ParseHeader(frame []byte) (Header, error) {
	r := reader{buf: frame}
	var h Header
	var err error
	if h.Type, err = r.u8(); err != nil {
		return Header{}, err
	}
	if h.Length, err = r.u16(); err != nil {
		return Header{}, err
	}
	if h.Segment, err = r.u8(); err != nil {
		return Header{}, err
	}
	if h.SecurityID, err = r.u32(); err != nil {
		return Header{}, err
	}
	return h, nil
}

// Decode turns one binary frame into a Tick. It returns ErrUnknownPacket for
// packet types it does not handle and ErrTruncated (wrapped) for frames that
// are too short.
func Decode(frame []byte) (domain.Tick, error) {
	if len(frame) == 0 {
		return domain.Tick{}, fmt.Errorf("%w: empty frame", ErrTruncated)
	}

	var minLen int
	switch frame[0] {
	case PacketTicker:
		minLen = tickerLen
	case PacketQuote:
		minLen = quoteLen
	case PacketOI:
		minLen = oiLen
	default:
		return domain.Tick{}, fmt.Errorf("%w: %d", ErrUnknownPacket, frame[0])
	}
	if len(frame) < minLen {
		return domain.Tick{}, fmt.Errorf("%w: type %d needs %d bytes, got %d",
			ErrTruncated, frame[0], minLen, len(frame))
	}

	h, err := ParseHeader(frame)
	if err != nil {
		return domain.Tick{}, err
	}
	tick := domain.Tick{
		Segment:    SegmentName(h.Segment),
		SecurityID: h.SecurityID,
	}

	r := reader{buf: frame, off: headerLen}
	switch h.Type {
	case PacketTicker:
		tick.Kind = domain.TickKindTicker
		err = r.decodeTicker(&tick)
	case PacketQuote:
		tick.Kind = domain.TickKindQuote
		err = r.decodeQuote(&tick)
	case PacketOI:
		tick.Kind = domain.TickKindOI
		tick.OI, err = r.u32()
	}
	if err != nil {
		return domain.Tick{}, fmt.Errorf("type %d: %w", h.Type, err)
	}
	return tick, nil
}

func (r *reader) decodeTicker(t *domain.Tick) error {
	var err error
	if t.LTP, err = r.f32(); err != nil {
		return err
	}
	t.LastTradeTime, err = r.u32()
	return err
}

func (r *reader) decodeQuote(t *domain.Tick) error {
	var err error
	if t.LTP, err = r.f32(); err != nil {
		return err
	}
	if t.LastQuantity, err = r.i16(); err != nil {
		return err
	}
	if t.LastTradeTime, err = r.u32(); err != nil {
		return err
	}
	if t.ATP, err = r.f32(); err != nil {
		return err
	}
	if t.Volume, err = r.u32(); err != nil {
		return err
	}
	if t.SellQuantity, err = r.u32(); err != nil {
		return err
	}
	if t.BuyQuantity, err = r.u32(); err != nil {
		return err
	}
	if t.Open, err = r.f32(); err != nil {
		return err
	}
	if t.Close, err = r.f32(); err != nil {
		return err
	}
	if t.High, err = r.f32(); err != nil {
		return err
	}
	t.Low, err = r.f32()
	return err
}

// reader is a big-endian cursor that checks the remaining length before
// every field.
type reader struct {
	buf []byte
	off int
}

func (r *reader) take(n int) ([]byte, error) {
	if len(r.buf)-r.off < n {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d, have %d",
			ErrTruncated, n, r.off, len(r.buf)-r.off)
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *reader) u8() (byte, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *reader) u16() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (r *reader) i16() (int16, error) {
	v, err := r.u16()
	return int16(v), err
}

func (r *reader) u32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *reader) f32() (float32, error) {
	v, err := r.u32()
	return math.Float32frombits(v), err
}
