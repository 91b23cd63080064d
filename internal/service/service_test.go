package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/sudarshan/internal/domain"
	"github.com/alanyoungcy/sudarshan/internal/feed"
	"github.com/alanyoungcy/sudarshan/internal/fusion"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type memStore struct {
	mu   sync.Mutex
	recs []domain.AnalysisRecord
	err  error
}

func (m *memStore) Save(_ context.Context, rec domain.AnalysisRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.recs = append(m.recs, rec)
	return nil
}

func (m *memStore) ListRecent(_ context.Context, limit int) ([]domain.AnalysisRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit > len(m.recs) {
		limit = len(m.recs)
	}
	return append([]domain.AnalysisRecord(nil), m.recs[:limit]...), nil
}

type memBus struct {
	mu   sync.Mutex
	msgs map[string][][]byte
}

func (b *memBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.msgs == nil {
		b.msgs = make(map[string][][]byte)
	}
	b.msgs[channel] = append(b.msgs[channel], payload)
	return nil
}

func (b *memBus) count(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.msgs[channel])
}

type memPrices struct {
	mu     sync.Mutex
	prices map[string]float64
}

func (p *memPrices) SetPrice(_ context.Context, key string, price float64, _ time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.prices == nil {
		p.prices = make(map[string]float64)
	}
	p.prices[key] = price
	return nil
}

func (p *memPrices) GetPrice(_ context.Context, key string) (float64, time.Time, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.prices[key]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	return v, time.Time{}, nil
}

type recordingNotifier struct {
	got []domain.AnalyzeResult
}

func (n *recordingNotifier) NotifyVerdict(_ context.Context, res domain.AnalyzeResult) error {
	n.got = append(n.got, res)
	return nil
}

func bullishRequest() domain.AnalyzeRequest {
	return domain.AnalyzeRequest{
		Inputs: map[string]domain.BladeInput{
			"price":  {"trend": "bullish"},
			"oi":     {"signal": "bullish"},
			"greeks": {"delta_bias": "long"},
		},
	}
}

func TestFusionServiceAppliesDefaults(t *testing.T) {
	store := &memStore{}
	bus := &memBus{}
	notifier := &recordingNotifier{}
	svc := NewFusionService(
		fusion.NewOrchestrator(nil, quietLogger()),
		FusionDefaults{Weights: domain.Weights{"price": 1, "oi": 1, "greeks": 1}, MinConfirms: 3},
		FusionDeps{Store: store, Bus: bus, Notifier: notifier},
		quietLogger(),
	)

	res, err := svc.Analyze(context.Background(), bullishRequest())
	if err != nil {
		t.Fatal(err)
	}
	if res.Score != 3 || res.Verdict != domain.SignalBullish {
		t.Fatalf("result = %+v, want configured weights applied", res)
	}
	if res.ID == "" {
		t.Fatal("missing id")
	}
	if len(store.recs) != 1 || store.recs[0].ID != res.ID || store.recs[0].MinConfirms != 3 {
		t.Fatalf("stored = %+v", store.recs)
	}
	if bus.count(domain.ChannelVerdicts) != 1 {
		t.Fatal("verdict not published")
	}
	if len(notifier.got) != 1 {
		t.Fatal("bullish verdict not notified")
	}

	var published domain.AnalyzeResult
	if err := json.Unmarshal(bus.msgs[domain.ChannelVerdicts][0], &published); err != nil || published.ID != res.ID {
		t.Fatalf("published = %+v err = %v", published, err)
	}
}

func TestFusionServiceNeutralNotNotified(t *testing.T) {
	notifier := &recordingNotifier{}
	svc := NewFusionService(fusion.NewOrchestrator(nil, quietLogger()), FusionDefaults{}, FusionDeps{Notifier: notifier}, quietLogger())

	req := bullishRequest()
	req.MinConfirms = 4
	res, err := svc.Analyze(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if res.Verdict != domain.SignalNeutral {
		t.Fatalf("verdict = %s", res.Verdict)
	}
	if len(notifier.got) != 0 {
		t.Fatal("neutral verdict was notified")
	}
}

func TestFusionServiceStoreFailureDoesNotFail(t *testing.T) {
	store := &memStore{err: errors.New("db down")}
	svc := NewFusionService(fusion.NewOrchestrator(nil, quietLogger()), FusionDefaults{}, FusionDeps{Store: store}, quietLogger())
	if _, err := svc.Analyze(context.Background(), bullishRequest()); err != nil {
		t.Fatalf("Analyze = %v", err)
	}
}

func TestFusionServiceHistory(t *testing.T) {
	svc := NewFusionService(fusion.NewOrchestrator(nil, quietLogger()), FusionDefaults{}, FusionDeps{}, quietLogger())
	if _, err := svc.History(context.Background(), 10); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("History without store = %v", err)
	}
	if svc.HasHistory() {
		t.Fatal("HasHistory without store")
	}
	d := svc.Defaults()
	if d.MinConfirms != fusion.DefaultMinConfirms || d.Weights["volume"] != 0.7 {
		t.Fatalf("defaults = %+v", d)
	}
}

func TestTickSink(t *testing.T) {
	relay := feed.NewRelay(16)
	bus := &memBus{}
	prices := &memPrices{}
	sink := NewTickSink(relay, bus, prices, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sink.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for relay.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("sink never subscribed")
		}
		time.Sleep(time.Millisecond)
	}

	relay.Publish(domain.Tick{Kind: domain.TickKindTicker, Segment: "NSE_FNO", SecurityID: 49081, LTP: 1600.45, LastTradeTime: 1717000000})
	relay.Publish(domain.Tick{Kind: domain.TickKindOI, Segment: "NSE_FNO", SecurityID: 49081, OI: 10})

	for bus.count(domain.ChannelTicks) < 2 {
		if time.Now().After(deadline) {
			t.Fatal("ticks not published")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done

	got, _, err := prices.GetPrice(context.Background(), "NSE_FNO:49081")
	if err != nil || got != 1600.45 {
		t.Fatalf("cached price = %v err = %v, want 1600.45", got, err)
	}
}
