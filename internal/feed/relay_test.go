package feed

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/alanyoungcy/sudarshan/internal/domain"
)

func tickN(n uint32) domain.Tick {
	return domain.Tick{Kind: domain.TickKindTicker, Segment: "NSE_FNO", SecurityID: n}
}

func TestRelayDeliversInOrder(t *testing.T) {
	r := NewRelay(16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := r.Subscribe(ctx)
	b := r.Subscribe(ctx)
	for i := uint32(1); i <= 3; i++ {
		r.Publish(tickN(i))
	}

	for name, ch := range map[string]<-chan domain.Tick{"a": a, "b": b} {
		for i := uint32(1); i <= 3; i++ {
			got := <-ch
			if got.SecurityID != i {
				t.Fatalf("%s: got id %d, want %d", name, got.SecurityID, i)
			}
		}
	}
}

func TestRelayDropsOldestWhenFull(t *testing.T) {
	r := NewRelay(2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := r.Subscribe(ctx)
	for i := uint32(1); i <= 5; i++ {
		r.Publish(tickN(i))
	}
	if r.Dropped() != 3 {
		t.Fatalf("Dropped = %d, want 3", r.Dropped())
	}
	if got := (<-ch).SecurityID; got != 4 {
		t.Fatalf("first queued = %d, want 4", got)
	}
	if got := (<-ch).SecurityID; got != 5 {
		t.Fatalf("second queued = %d, want 5", got)
	}
}

func TestRelayUnsubscribeOnCancel(t *testing.T) {
	r := NewRelay(4)
	ctx, cancel := context.WithCancel(context.Background())
	ch := r.Subscribe(ctx)
	if r.Subscribers() != 1 {
		t.Fatalf("Subscribers = %d", r.Subscribers())
	}
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
	if r.Subscribers() != 0 {
		t.Fatalf("Subscribers = %d after cancel", r.Subscribers())
	}
	r.Publish(tickN(1))
}

func TestRelayClose(t *testing.T) {
	r := NewRelay(4)
	ch := r.Subscribe(context.Background())
	r.Close()
	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel after Close")
	}
	late := r.Subscribe(context.Background())
	if _, ok := <-late; ok {
		t.Fatal("subscription after Close should be closed")
	}
	r.Publish(tickN(1))
	r.Close()
}

func TestRelayLateSubscriberSeesOnlyNewTicks(t *testing.T) {
	r := NewRelay(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r.Publish(tickN(1))
	ch := r.Subscribe(ctx)
	r.Publish(tickN(2))
	if got := (<-ch).SecurityID; got != 2 {
		t.Fatalf("got %d, want 2", got)
	}
}

func TestRelayCloseReleasesUncancelledSubscribers(t *testing.T) {
	const n = 100
	before := runtime.NumGoroutine()

	r := NewRelay(1)
	for i := 0; i < n; i++ {
		r.Subscribe(context.Background())
	}
	r.Close()

	deadline := time.Now().Add(3 * time.Second)
	for runtime.NumGoroutine() > before+n/2 {
		if time.Now().After(deadline) {
			t.Fatalf("goroutines = %d after Close, started from %d", runtime.NumGoroutine(), before)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
