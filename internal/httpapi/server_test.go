package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/ngoyal88/matching-engine/internal/broadcast"
	"github.com/ngoyal88/matching-engine/internal/domain"
	"github.com/ngoyal88/matching-engine/internal/engine"
	"github.com/ngoyal88/matching-engine/internal/tradering"
	"github.com/ngoyal88/matching-engine/internal/wal"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()
	w, err := wal.Open(wal.Config{Path: filepath.Join(dir, "wal.jsonl")})
	if err != nil {
		t.Fatalf("open wal: %v", err)
	}
	bq := broadcast.New(2, nil)
	eng := engine.New(w, bq, domain.DefaultFeeSchedule(), tradering.NewRegistry(100), nil)
	t.Cleanup(func() {
		bq.Stop()
		w.Stop()
	})
	return New(eng, nil, nil)
}

func TestSubmitOrderRejectsMalformedBody(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/orders", bytes.NewBufferString("not json"))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestSubmitOrderRejectsInvalidSide(t *testing.T) {
	s := newTestServer(t)
	body, _ := json.Marshal(map[string]any{
		"symbol": "BTC-USDT", "side": "sideways", "order_type": "limit", "quantity": 1.0, "price": 100.0,
	})
	req := httptest.NewRequest(http.MethodPost, "/orders", bytes.NewBuffer(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestSubmitOrderSucceedsAndReturnsOpenStatus(t *testing.T) {
	s := newTestServer(t)
	body, _ := json.Marshal(map[string]any{
		"symbol": "BTC-USDT", "side": "buy", "order_type": "limit", "quantity": 1.5, "price": 100.25, "user_id": "alice",
	})
	req := httptest.NewRequest(http.MethodPost, "/orders", bytes.NewBuffer(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var result engine.SubmitResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if result.Status != domain.StatusOpen {
		t.Fatalf("expected open, got %v", result.Status)
	}
	if result.Order.Quantity != 1_500_000 {
		t.Fatalf("expected scaled quantity 1500000, got %d", result.Order.Quantity)
	}
	if result.Order.Price != 10025 {
		t.Fatalf("expected scaled price 10025, got %d", result.Order.Price)
	}
}

func TestCancelUnknownOrderReturns404(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodDelete, "/orders/NOPE", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHealthEndpointReportsOK(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestSymbolsEndpointListsActiveBooks(t *testing.T) {
	s := newTestServer(t)
	body, _ := json.Marshal(map[string]any{
		"symbol": "ETH-USDT", "side": "sell", "order_type": "limit", "quantity": 1.0, "price": 50.0,
	})
	req := httptest.NewRequest(http.MethodPost, "/orders", bytes.NewBuffer(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("setup submit failed: %d", rec.Code)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/symbols", nil)
	rec2 := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec2, req2)

	var resp map[string][]string
	if err := json.Unmarshal(rec2.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp["symbols"]) != 1 || resp["symbols"][0] != "ETH-USDT" {
		t.Fatalf("expected [ETH-USDT], got %v", resp["symbols"])
	}
}
