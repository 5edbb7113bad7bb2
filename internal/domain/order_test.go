package domain

import (
	"encoding/json"
	"testing"
)

func TestSideMarshalsAsWireString(t *testing.T) {
	raw, err := json.Marshal(Buy)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(raw) != `"buy"` {
		t.Fatalf(`expected "buy", got %s`, raw)
	}

	raw, err = json.Marshal(Sell)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(raw) != `"sell"` {
		t.Fatalf(`expected "sell", got %s`, raw)
	}
}

func TestSideUnmarshalsFromWireString(t *testing.T) {
	var s Side
	if err := json.Unmarshal([]byte(`"sell"`), &s); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if s != Sell {
		t.Fatalf("expected Sell, got %v", s)
	}
}

func TestSideUnmarshalRejectsUnknownValue(t *testing.T) {
	var s Side
	if err := json.Unmarshal([]byte(`"sideways"`), &s); err == nil {
		t.Fatalf("expected error for invalid side")
	}
}

func TestOrderRoundTripsSideThroughJSON(t *testing.T) {
	o := Order{OrderID: "ORD-1", Symbol: "BTC-USDT", Side: Sell}
	raw, err := json.Marshal(o)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got Order
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Side != Sell {
		t.Fatalf("expected Sell after round trip, got %v", got.Side)
	}
}
