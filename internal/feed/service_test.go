package feed

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/sudarshan/internal/domain"
	"github.com/alanyoungcy/sudarshan/internal/platform/dhan"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func tickerFrame(id uint32, ltp float32) []byte {
	b := make([]byte, 16)
	b[0] = dhan.PacketTicker
	binary.BigEndian.PutUint16(b[1:3], 16)
	b[3] = 3
	binary.BigEndian.PutUint32(b[4:8], id)
	binary.BigEndian.PutUint32(b[8:12], math.Float32bits(ltp))
	binary.BigEndian.PutUint32(b[12:16], 1717000000)
	return b
}

// fakeUpstream is a broker stand-in that records every subscribe message per
// connection and lets the test push frames or drop the socket.
type fakeUpstream struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns []*websocket.Conn
	reqs  [][]dhan.SubscribeRequest
	query []string

	connected chan int
	received  chan struct{}
}

func newFakeUpstream(t *testing.T) *fakeUpstream {
	f := &fakeUpstream{
		connected: make(chan int, 8),
		received:  make(chan struct{}, 64),
	}
	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeUpstream) url() string {
	return "ws" + strings.TrimPrefix(f.srv.URL, "http")
}

func (f *fakeUpstream) handle(w http.ResponseWriter, r *http.Request) {
	ws, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	f.mu.Lock()
	idx := len(f.conns)
	f.conns = append(f.conns, ws)
	f.reqs = append(f.reqs, nil)
	f.query = append(f.query, r.URL.RawQuery)
	f.mu.Unlock()
	f.connected <- idx

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var req dhan.SubscribeRequest
		if json.Unmarshal(data, &req) != nil {
			continue
		}
		f.mu.Lock()
		f.reqs[idx] = append(f.reqs[idx], req)
		f.mu.Unlock()
		f.received <- struct{}{}
	}
}

func (f *fakeUpstream) conn(idx int) *websocket.Conn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conns[idx]
}

func (f *fakeUpstream) instruments(idx int) []dhan.Instrument {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []dhan.Instrument
	for _, r := range f.reqs[idx] {
		out = append(out, r.InstrumentList...)
	}
	return out
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func newTestService(url string) *Service {
	return NewService(Config{
		FeedURL:        url,
		Credentials:    dhan.Credentials{ClientID: "1100", AccessToken: "tok"},
		BatchSize:      2,
		BatchPacing:    time.Millisecond,
		ReconnectDelay: 20 * time.Millisecond,
	}, NewRegistry(), NewRelay(64), discardLogger())
}

func TestEnsureRunningMissingCredentials(t *testing.T) {
	svc := NewService(Config{FeedURL: "ws://127.0.0.1:1"}, NewRegistry(), NewRelay(0), discardLogger())
	err := svc.EnsureRunning()
	if !errors.Is(err, domain.ErrMissingCredentials) {
		t.Fatalf("err = %v, want ErrMissingCredentials", err)
	}
	if svc.State() != StateDisconnected {
		t.Fatalf("state = %s", svc.State())
	}
}

func TestServicePublishesTicksAndResubscribes(t *testing.T) {
	up := newFakeUpstream(t)
	svc := newTestService(up.url())
	defer svc.Stop()

	a := domain.Subscription{Segment: "NSE_FNO", SecurityID: "49081"}
	b := domain.Subscription{Segment: "NSE_FNO", SecurityID: "49082"}
	c := domain.Subscription{Segment: "NSE_EQ", SecurityID: "2885"}
	svc.Subscribe(a, b, c)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ticks := svc.Relay().Subscribe(ctx)

	if err := svc.EnsureRunning(); err != nil {
		t.Fatalf("EnsureRunning: %v", err)
	}
	if err := svc.EnsureRunning(); err != nil {
		t.Fatalf("second EnsureRunning: %v", err)
	}

	first := <-up.connected
	waitFor(t, "initial subscription", func() bool { return len(up.instruments(first)) == 3 })
	if !strings.Contains(up.query[first], "clientId=1100") || !strings.Contains(up.query[first], "token=tok") {
		t.Errorf("query = %s", up.query[first])
	}
	waitFor(t, "connected state", func() bool { return svc.State() == StateConnected })

	// Batches of two: 2 + 1.
	up.mu.Lock()
	nreq := len(up.reqs[first])
	up.mu.Unlock()
	if nreq != 2 {
		t.Errorf("subscribe messages = %d, want 2", nreq)
	}

	// A live subscription goes out immediately on the open socket.
	d := domain.Subscription{Segment: "BSE_EQ", SecurityID: "500325"}
	if added := svc.Subscribe(d, a); len(added) != 1 {
		t.Fatalf("added = %v, want only the new pair", added)
	}
	waitFor(t, "live subscription", func() bool { return len(up.instruments(first)) == 4 })

	if err := up.conn(first).WriteMessage(websocket.BinaryMessage, tickerFrame(49081, 1600.45)); err != nil {
		t.Fatal(err)
	}
	select {
	case tick := <-ticks:
		if tick.SecurityID != 49081 || tick.LTP != float32(1600.45) || tick.Segment != "NSE_FNO" {
			t.Fatalf("tick = %+v", tick)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no tick on relay")
	}

	// Garbage and unknown packets are discarded without killing the socket.
	up.conn(first).WriteMessage(websocket.BinaryMessage, []byte{2, 0, 3})
	up.conn(first).WriteMessage(websocket.BinaryMessage, []byte{50, 0, 10, 0, 0, 0, 0, 0, 0, 0})
	up.conn(first).WriteMessage(websocket.TextMessage, []byte("hello"))
	waitFor(t, "decode error counted", func() bool { return svc.Stats().DecodeErrors == 1 })

	// Dropping the socket triggers a reconnect that resends the full list.
	up.conn(first).Close()
	var second int
	select {
	case second = <-up.connected:
	case <-time.After(5 * time.Second):
		t.Fatal("service did not reconnect")
	}
	waitFor(t, "resubscription", func() bool { return len(up.instruments(second)) == 4 })

	got := up.instruments(second)
	want := []string{"49081", "49082", "2885", "500325"}
	for i, inst := range got {
		if inst.SecurityID != want[i] {
			t.Errorf("resubscribe[%d] = %s, want %s", i, inst.SecurityID, want[i])
		}
	}

	st := svc.Stats()
	if st.Reconnects < 1 || st.Ticks != 1 {
		t.Errorf("stats = %+v", st)
	}
}

func TestServiceStop(t *testing.T) {
	up := newFakeUpstream(t)
	svc := newTestService(up.url())

	if err := svc.EnsureRunning(); err != nil {
		t.Fatal(err)
	}
	<-up.connected
	waitFor(t, "connected state", func() bool { return svc.State() == StateConnected })

	svc.Stop()
	if svc.State() != StateStopped {
		t.Fatalf("state = %s, want stopped", svc.State())
	}
	if err := svc.EnsureRunning(); !errors.Is(err, domain.ErrFeedStopped) {
		t.Fatalf("EnsureRunning after Stop = %v", err)
	}
	svc.Stop()
}

func TestServiceRunStopsOnCancel(t *testing.T) {
	up := newFakeUpstream(t)
	svc := newTestService(up.url())

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- svc.Run(ctx) }()
	<-up.connected
	cancel()

	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("Run = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
	if svc.State() != StateStopped {
		t.Fatalf("state = %s", svc.State())
	}
}

func TestServiceLiveSubscribeSendsEveryBatch(t *testing.T) {
	up := newFakeUpstream(t)
	svc := NewService(Config{
		FeedURL:        up.url(),
		Credentials:    dhan.Credentials{ClientID: "1100", AccessToken: "tok"},
		BatchSize:      1,
		BatchPacing:    20 * time.Millisecond,
		ReconnectDelay: 20 * time.Millisecond,
	}, NewRegistry(), NewRelay(4), discardLogger())
	defer svc.Stop()

	if err := svc.EnsureRunning(); err != nil {
		t.Fatal(err)
	}
	idx := <-up.connected
	waitFor(t, "connected state", func() bool { return svc.State() == StateConnected })

	added := svc.Subscribe(
		domain.Subscription{Segment: "NSE_EQ", SecurityID: "1"},
		domain.Subscription{Segment: "NSE_EQ", SecurityID: "2"},
		domain.Subscription{Segment: "NSE_EQ", SecurityID: "3"},
	)
	if len(added) != 3 {
		t.Fatalf("added = %v", added)
	}

	waitFor(t, "all live batches", func() bool { return len(up.instruments(idx)) == 3 })
	if got := up.instruments(idx)[2].SecurityID; got != "3" {
		t.Fatalf("last instrument = %s, want 3", got)
	}
}
