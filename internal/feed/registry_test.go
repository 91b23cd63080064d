package feed

import (
	"reflect"
	"sync"
	"testing"

	"github.com/alanyoungcy/sudarshan/internal/domain"
)

func TestRegistryDeduplicatesInOrder(t *testing.T) {
	r := NewRegistry()
	a := domain.Subscription{Segment: "NSE_FNO", SecurityID: "49081"}
	b := domain.Subscription{Segment: "NSE_EQ", SecurityID: "2885"}

	if !r.Add(a) {
		t.Fatal("first Add should report new")
	}
	if r.Add(a) {
		t.Fatal("duplicate Add should report existing")
	}

	added := r.AddAll([]domain.Subscription{a, b, b})
	if !reflect.DeepEqual(added, []domain.Subscription{b}) {
		t.Fatalf("AddAll added = %v, want [b]", added)
	}
	if got := r.List(); !reflect.DeepEqual(got, []domain.Subscription{a, b}) {
		t.Fatalf("List = %v", got)
	}
	if r.Len() != 2 {
		t.Fatalf("Len = %d, want 2", r.Len())
	}
}

func TestRegistryListIsCopy(t *testing.T) {
	r := NewRegistry()
	r.Add(domain.Subscription{Segment: "NSE_EQ", SecurityID: "1"})
	l := r.List()
	l[0].SecurityID = "changed"
	if r.List()[0].SecurityID != "1" {
		t.Fatal("List exposed internal slice")
	}
}

func TestRegistryConcurrentAdd(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.AddAll([]domain.Subscription{
				{Segment: "NSE_FNO", SecurityID: "1"},
				{Segment: "NSE_FNO", SecurityID: "2"},
			})
		}()
	}
	wg.Wait()
	if r.Len() != 2 {
		t.Fatalf("Len = %d, want 2", r.Len())
	}
}
