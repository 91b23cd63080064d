package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestTickJSON(t *testing.T) {
	tests := []struct {
		name string
		tick Tick
		want string
	}{
		{
			name: "ticker",
			tick: Tick{Kind: TickKindTicker, Segment: "NSE_FNO", SecurityID: 49081, LTP: 1600.45, LastTradeTime: 1700000000},
			want: `{"type":"ticker","segment":"NSE_FNO","security_id":"49081","ltp":1600.45,"last_trade_time":1700000000}`,
		},
		{
			name: "oi",
			tick: Tick{Kind: TickKindOI, Segment: "MCX_COMM", SecurityID: 7, OI: 55},
			want: `{"type":"oi","segment":"MCX_COMM","security_id":"7","oi":55}`,
		},
		{
			name: "quote",
			tick: Tick{
				Kind: TickKindQuote, Segment: "NSE_EQ", SecurityID: 11536,
				LTP: 101.5, LastQuantity: -3, LastTradeTime: 9, ATP: 100.25, Volume: 1000,
				SellQuantity: 20, BuyQuantity: 30, Open: 99, Close: 98.5, High: 102, Low: 97.75,
			},
			want: `{"type":"quote","segment":"NSE_EQ","security_id":"11536","ltp":101.5,"last_quantity":-3,` +
				`"last_trade_time":9,"atp":100.25,"volume":1000,"sell_quantity":20,"buy_quantity":30,` +
				`"open":99,"close":98.5,"high":102,"low":97.75}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := json.Marshal(tt.tick)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			if string(got) != tt.want {
				t.Fatalf("got  %s\nwant %s", got, tt.want)
			}
		})
	}
}

func TestTickKey(t *testing.T) {
	tick := Tick{Segment: "BSE_FNO", SecurityID: 123}
	if got := tick.Key(); got != "BSE_FNO:123" {
		t.Fatalf("Key() = %q", got)
	}
}

func TestAnalyzeRequestUnmarshalDegradesInputs(t *testing.T) {
	body := `{"weights":{"price":2},"min_confirms":2,"inputs":{"price":{"trend":"bullish"},"oi":"bad","greeks":null,"volume":[1,2]}}`

	var req AnalyzeRequest
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if req.MinConfirms != 2 || req.Weights["price"] != 2 {
		t.Fatalf("header fields = %+v", req)
	}
	if req.Inputs["price"]["trend"] != "bullish" {
		t.Fatalf("price input = %v", req.Inputs["price"])
	}
	for _, name := range []string{"oi", "greeks", "volume"} {
		in, ok := req.Inputs[name]
		if !ok || in != nil {
			t.Fatalf("%s input = %v (present %v), want nil", name, in, ok)
		}
	}

	if err := json.Unmarshal([]byte(`{"inputs":`), &req); err == nil {
		t.Fatal("truncated body decoded without error")
	}
}

func TestSignalDirection(t *testing.T) {
	tests := map[Signal]int{SignalBullish: 1, SignalBearish: -1, SignalNeutral: 0, "sideways": 0}
	for sig, want := range tests {
		if got := sig.Direction(); got != want {
			t.Errorf("%q.Direction() = %d, want %d", sig, got, want)
		}
	}
}

func TestSubscriptionNormalize(t *testing.T) {
	got, err := Subscription{Segment: " NSE_FNO ", SecurityID: "49081\n"}.Normalize()
	if err != nil || got != (Subscription{Segment: "NSE_FNO", SecurityID: "49081"}) {
		t.Fatalf("Normalize() = %+v, %v", got, err)
	}
	for _, bad := range []Subscription{{Segment: "NSE_FNO"}, {SecurityID: "1"}, {Segment: " ", SecurityID: " "}} {
		if _, err := bad.Normalize(); !errors.Is(err, ErrInvalidInstrument) {
			t.Errorf("Normalize(%+v) err = %v, want ErrInvalidInstrument", bad, err)
		}
	}
}
