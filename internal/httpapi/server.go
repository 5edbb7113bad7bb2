// Package httpapi implements the request boundary: the REST contract of
// spec.md §6 over gorilla/mux plus rs/cors. It does not serve the
// WebSocket upgrade route (cmd/server mounts wshub.Hub on its own
// listener); the hub is used here only for /health's client count.
//
// Grounded on uhyunpark-hyperlicked/pkg/api/server.go (mux subrouter
// setup, respondJSON/respondError helpers, cors.New wiring) adapted from
// its perp-exchange domain to this spec's order/orderbook/trades/stats
// surface.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/ngoyal88/matching-engine/internal/domain"
	"github.com/ngoyal88/matching-engine/internal/engine"
	"github.com/ngoyal88/matching-engine/internal/wshub"
)

// Server holds the HTTP router wired against the engine.
type Server struct {
	router *mux.Router
	eng    *engine.Engine
	hub    *wshub.Hub
	logger *zap.Logger
}

// New builds the router and registers every spec.md §6 route.
func New(eng *engine.Engine, hub *wshub.Hub, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{router: mux.NewRouter(), eng: eng, hub: hub, logger: logger}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/orders", s.handleSubmitOrder).Methods(http.MethodPost)
	s.router.HandleFunc("/orders/stop", s.handleSubmitStopOrder).Methods(http.MethodPost)
	s.router.HandleFunc("/orders/{id}", s.handleCancelOrder).Methods(http.MethodDelete)
	s.router.HandleFunc("/orderbook/{symbol}", s.handleOrderbook).Methods(http.MethodGet)
	s.router.HandleFunc("/trades/{symbol}", s.handleTrades).Methods(http.MethodGet)
	s.router.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/symbols", s.handleSymbols).Methods(http.MethodGet)
}

// Handler returns the CORS-wrapped router ready for http.ListenAndServe.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: false,
	})
	return c.Handler(s.router)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func respondError(w http.ResponseWriter, status int, errMsg, message string) {
	respondJSON(w, status, errorResponse{Error: errMsg, Message: message})
}

type submitOrderRequest struct {
	Symbol   string  `json:"symbol"`
	Side     string  `json:"side"`
	Type     string  `json:"order_type"`
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price"`
	UserID   string  `json:"user_id"`
}

func (s *Server) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req submitOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	side, ok := domain.ParseSide(req.Side)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid side", req.Side)
		return
	}
	otype, ok := domain.ParseOrderType(req.Type)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid order_type", req.Type)
		return
	}
	if req.Symbol == "" || req.Quantity <= 0 {
		respondError(w, http.StatusBadRequest, "invalid order", "symbol and positive quantity required")
		return
	}

	qty := toScaled(req.Quantity, domain.QuantityScale)
	price := toScaled(req.Price, domain.PriceScale)

	result, err := s.eng.SubmitOrder(req.Symbol, side, otype, price, qty, req.UserID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "submit failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, result)
}

type submitStopOrderRequest struct {
	Symbol       string  `json:"symbol"`
	Side         string  `json:"side"`
	StopType     string  `json:"stop_type"`
	Quantity     float64 `json:"quantity"`
	TriggerPrice float64 `json:"trigger_price"`
	LimitPrice   float64 `json:"limit_price"`
	TrailAmount  float64 `json:"trail_amount"`
	UserID       string  `json:"user_id"`
}

func (s *Server) handleSubmitStopOrder(w http.ResponseWriter, r *http.Request) {
	var req submitStopOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	side, ok := domain.ParseSide(req.Side)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid side", req.Side)
		return
	}
	stopType, ok := domain.ParseStopType(req.StopType)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid stop_type", req.StopType)
		return
	}
	if req.Symbol == "" || req.Quantity <= 0 {
		respondError(w, http.StatusBadRequest, "invalid stop order", "symbol and positive quantity required")
		return
	}

	stopOrder := &domain.StopOrder{
		Symbol:       req.Symbol,
		Side:         side,
		Quantity:     toScaled(req.Quantity, domain.QuantityScale),
		UserID:       req.UserID,
		StopType:     stopType,
		TriggerPrice: toScaled(req.TriggerPrice, domain.PriceScale),
		LimitPrice:   toScaled(req.LimitPrice, domain.PriceScale),
		TrailAmount:  toScaled(req.TrailAmount, domain.PriceScale),
	}
	if err := s.eng.SubmitStopOrder(stopOrder); err != nil {
		respondError(w, http.StatusInternalServerError, "submit failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"stop_order_id": stopOrder.OrderID,
		"order":         stopOrder,
	})
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	result, found := s.eng.CancelOrder(id)
	if !found {
		respondError(w, http.StatusNotFound, "unknown order_id", id)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleOrderbook(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	depth := queryInt(r, "depth", 10)
	respondJSON(w, http.StatusOK, s.eng.OrderbookSnapshot(symbol, depth))
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	limit := queryInt(r, "limit", 100)
	trades := s.eng.RecentTrades(symbol, limit)
	respondJSON(w, http.StatusOK, map[string]any{"trades": trades})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.eng.Stats())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	wsClients := 0
	if s.hub != nil {
		wsClients = s.hub.ClientCount()
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"ws_clients": wsClients,
	})
}

func (s *Server) handleSymbols(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"symbols": s.eng.Symbols()})
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return def
	}
	return v
}

// toScaled converts a wire-format float into the fixed-scale integer
// representation (SPEC_FULL.md §3: "internally scaled to integers").
func toScaled(v float64, scale int64) int64 {
	return int64(v*float64(scale) + 0.5)
}
