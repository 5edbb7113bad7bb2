// Package engine is the per-request orchestration glue: validate, log,
// match, log trades, enqueue broadcast, respond (spec.md §4.5). It owns
// the process-wide registries (books, stop managers, reverse index) and
// is the only caller of orderbook.Book, stopmanager.Manager, wal.WAL and
// broadcast.Queue.
//
// Grounded on the teacher's service/order_service.go ("the ONLY write
// entry point into the system", constructor-injected collaborators, no
// globals), generalized from its single fixed book to per-symbol
// registries guarded by a lookup-only global mutex per spec.md §5.
package engine

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ngoyal88/matching-engine/internal/broadcast"
	"github.com/ngoyal88/matching-engine/internal/domain"
	"github.com/ngoyal88/matching-engine/internal/orderbook"
	"github.com/ngoyal88/matching-engine/internal/snapshot"
	"github.com/ngoyal88/matching-engine/internal/stopmanager"
	"github.com/ngoyal88/matching-engine/internal/tradering"
	"github.com/ngoyal88/matching-engine/internal/wal"
)

// SubmitResult is the response shape for POST /orders (spec.md §6).
type SubmitResult struct {
	Order            *domain.Order  `json:"order"`
	Status           domain.OrderStatus `json:"status"`
	Trades           []domain.Trade `json:"trades"`
	FilledQuantity   int64          `json:"filled_quantity"`
	RemainingQuantity int64         `json:"remaining_quantity"`
}

// Engine is the process-wide orchestrator. All exported methods are safe
// for concurrent use.
type Engine struct {
	log *wal.WAL
	bq  *broadcast.Queue
	fees domain.FeeSchedule
	logger *zap.Logger

	regMu        sync.Mutex // global registry mutex: map lookups only, per spec.md §5
	books        map[string]*orderbook.Book
	stopManagers map[string]*stopmanager.Manager
	orderToSymbol map[string]string

	tradeID *orderbook.TradeIDGen

	totalOrders atomic.Uint64
	totalTrades atomic.Uint64

	// walOrdinal is the absolute count of records ever written to the WAL
	// FILE (across process restarts), as opposed to wal.WAL.TotalEntries,
	// which resets to 0 on every Open and only counts this process's
	// appends. Recover seeds it from the replayed record count; every
	// successful append after that increments it by one. CaptureState
	// persists it as snapshot.State.WALSeq so a later Recover's skipBefore
	// indexes the same absolute record list wal.Replay produces.
	walOrdinal atomic.Uint64

	trades *tradering.Registry
}

// New constructs an Engine with its order and trade counters at zero;
// Recover resumes them after WAL replay.
func New(log *wal.WAL, bq *broadcast.Queue, fees domain.FeeSchedule, trades *tradering.Registry, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		log:           log,
		bq:            bq,
		fees:          fees,
		logger:        logger,
		books:         make(map[string]*orderbook.Book),
		stopManagers:  make(map[string]*stopmanager.Manager),
		orderToSymbol: make(map[string]string),
		tradeID:       orderbook.NewTradeIDGenerator(0),
		trades:        trades,
	}
}

// bookFor returns (creating if necessary) the book and stop manager for
// symbol. Registry mutex is held only for the map operation, per spec.md
// §5's locking discipline — never across matching.
func (e *Engine) bookFor(symbol string) (*orderbook.Book, *stopmanager.Manager) {
	e.regMu.Lock()
	defer e.regMu.Unlock()
	b, ok := e.books[symbol]
	if !ok {
		b = orderbook.NewBook(symbol, e.fees, e.tradeID)
		e.books[symbol] = b
	}
	sm, ok := e.stopManagers[symbol]
	if !ok {
		sm = stopmanager.NewManager()
		e.stopManagers[symbol] = sm
	}
	return b, sm
}

func (e *Engine) recordReverseIndex(orderID, symbol string) {
	e.regMu.Lock()
	e.orderToSymbol[orderID] = symbol
	e.regMu.Unlock()
}

func (e *Engine) lookupSymbol(orderID string) (string, bool) {
	e.regMu.Lock()
	defer e.regMu.Unlock()
	s, ok := e.orderToSymbol[orderID]
	return s, ok
}

func (e *Engine) eraseReverseIndex(orderID string) {
	e.regMu.Lock()
	delete(e.orderToSymbol, orderID)
	e.regMu.Unlock()
}

func (e *Engine) nextOrderID() string {
	n := e.totalOrders.Add(1)
	return fmt.Sprintf("ORD-%d", n)
}

func (e *Engine) nextStopOrderID() string {
	n := e.totalOrders.Add(1)
	return fmt.Sprintf("STO-%d", n)
}

// SubmitOrder implements spec.md §4.5 steps 1-11 for a single order,
// including recursive re-injection of triggered stop orders (step 9,
// Open Question 1 resolved: wired).
func (e *Engine) SubmitOrder(symbol string, side domain.Side, otype domain.OrderType, price, quantity int64, userID string) (*SubmitResult, error) {
	order := &domain.Order{
		OrderID:   e.nextOrderID(),
		Symbol:    symbol,
		UserID:    userID,
		Type:      otype,
		Side:      side,
		Quantity:  quantity,
		Remaining: quantity,
		Price:     price,
		Timestamp: time.Now().UnixNano(),
	}
	trades, err := e.submit(order)
	if err != nil {
		return nil, err
	}
	return e.buildResult(order, trades), nil
}

// submit is the shared core used both for directly-submitted orders and
// for synthetic orders materialized from a triggered stop (spec.md §4.5
// step 9): it always matches and logs trades, but only logs the `order`
// WAL event for non-synthetic orders (they are derivable on replay).
func (e *Engine) submit(order *domain.Order) ([]domain.Trade, error) {
	if !order.Synthetic {
		if err := e.log.AppendOrder(order); err != nil {
			e.logger.Warn("wal append order failed", zap.Error(err))
		} else {
			e.walOrdinal.Add(1)
		}
	}

	book, stopMgr := e.bookFor(order.Symbol)
	e.recordReverseIndex(order.OrderID, order.Symbol)

	trades := book.AddOrder(order)

	for i := range trades {
		t := &trades[i]
		if err := e.log.AppendTrade(t); err != nil {
			e.logger.Warn("wal append trade failed", zap.Error(err))
		} else {
			e.walOrdinal.Add(1)
		}
		e.totalTrades.Add(1)
		if e.trades != nil {
			e.trades.Push(t)
		}
		e.bq.PushTrade(broadcast.TradeEvent{
			TradeID:       t.TradeID,
			Symbol:        t.Symbol,
			Price:         t.Price,
			Quantity:      t.Quantity,
			AggressorSide: t.AggressorSide.String(),
			MakerOrderID:  t.MakerOrderID,
			TakerOrderID:  t.TakerOrderID,
			MakerFee:      t.MakerFee,
			TakerFee:      t.TakerFee,
			Timestamp:     t.TimestampISO,
		})
	}

	if len(trades) > 0 {
		e.pushBookUpdate(order.Symbol, book)

		lastPrice, _ := book.LastTradePrice()
		stopMgr.UpdateTrailing(lastPrice)
		triggered := stopMgr.CheckTriggers(lastPrice, time.Now().UnixNano())
		for _, synth := range triggered {
			if _, err := e.submit(synth); err != nil {
				e.logger.Warn("triggered stop re-injection failed", zap.Error(err))
			}
		}
	}

	return trades, nil
}

func (e *Engine) pushBookUpdate(symbol string, book *orderbook.Book) {
	bids := book.TopBids(10)
	asks := book.TopAsks(10)
	e.bq.PushBookUpdate(broadcast.OrderbookEvent{
		Symbol:    symbol,
		Bids:      toBroadcastLevels(bids),
		Asks:      toBroadcastLevels(asks),
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func toBroadcastLevels(levels []orderbook.LevelSnapshot) []broadcast.BookLevel {
	out := make([]broadcast.BookLevel, len(levels))
	for i, l := range levels {
		out[i] = broadcast.BookLevel{Price: l.Price, Quantity: l.Quantity}
	}
	return out
}

// buildResult computes filled_quantity/status per spec.md §4.5 step 10.
func (e *Engine) buildResult(order *domain.Order, trades []domain.Trade) *SubmitResult {
	filled := order.Quantity - order.Remaining
	var status domain.OrderStatus
	switch order.Type {
	case domain.Limit:
		switch {
		case order.Remaining == 0:
			status = domain.StatusFilled
		case filled > 0:
			status = domain.StatusPartiallyFilled
		default:
			status = domain.StatusOpen
		}
	case domain.Market:
		switch {
		case order.Remaining == 0:
			status = domain.StatusFilled
		case filled > 0:
			status = domain.StatusPartiallyFilled
		default:
			status = domain.StatusCancelled
		}
	case domain.IOC:
		switch {
		case order.Remaining == 0:
			status = domain.StatusFilled
		case filled > 0:
			status = domain.StatusPartiallyFilled
		default:
			status = domain.StatusCancelled
		}
	case domain.FOK:
		if order.Remaining == 0 {
			status = domain.StatusFilled
		} else {
			status = domain.StatusCancelled
		}
	}
	return &SubmitResult{
		Order:             order,
		Status:            status,
		Trades:            trades,
		FilledQuantity:    filled,
		RemainingQuantity: order.Remaining,
	}
}

// SubmitStopOrder registers a dormant conditional order (spec.md §6 POST
// /orders/stop).
func (e *Engine) SubmitStopOrder(s *domain.StopOrder) error {
	s.OrderID = e.nextStopOrderID()
	s.CreatedAt = time.Now().UnixNano()

	if err := e.log.AppendStopOrder(s); err != nil {
		e.logger.Warn("wal append stop order failed", zap.Error(err))
	} else {
		e.walOrdinal.Add(1)
	}
	_, stopMgr := e.bookFor(s.Symbol)
	e.recordReverseIndex(s.OrderID, s.Symbol)
	stopMgr.Add(s)
	return nil
}

// CancelResult is the response shape for DELETE /orders/{id}.
type CancelResult struct {
	Cancelled bool   `json:"cancelled"`
	OrderID   string `json:"order_id"`
	Symbol    string `json:"symbol"`
}

// CancelOrder implements spec.md §4.5 "For cancellation".
func (e *Engine) CancelOrder(orderID string) (*CancelResult, bool) {
	symbol, ok := e.lookupSymbol(orderID)
	if !ok {
		return nil, false
	}
	book, stopMgr := e.bookFor(symbol)

	cancelledBook := book.CancelOrder(orderID)
	cancelledStop := stopMgr.Cancel(orderID)
	cancelled := cancelledBook || cancelledStop

	if cancelled {
		if err := e.log.AppendCancel(orderID, domain.CancelReasonUserRequested); err != nil {
			e.logger.Warn("wal append cancel failed", zap.Error(err))
		} else {
			e.walOrdinal.Add(1)
		}
		e.eraseReverseIndex(orderID)
		e.pushBookUpdate(symbol, book)
	}

	return &CancelResult{Cancelled: cancelled, OrderID: orderID, Symbol: symbol}, true
}

// OrderbookSnapshot is the response shape for GET /orderbook/{symbol}.
type OrderbookSnapshot struct {
	Symbol   string                    `json:"symbol"`
	Bids     []orderbook.LevelSnapshot `json:"bids"`
	Asks     []orderbook.LevelSnapshot `json:"asks"`
	BestBid  int64                     `json:"best_bid"`
	BestAsk  int64                     `json:"best_ask"`
	Spread   int64                     `json:"spread"`
}

// OrderbookSnapshot returns the top-N book view for symbol.
func (e *Engine) OrderbookSnapshot(symbol string, depth int) OrderbookSnapshot {
	book, _ := e.bookFor(symbol)
	bestBid, bestAsk, bidOK, askOK := book.BestBidAsk()
	var spread int64
	if bidOK && askOK {
		spread = bestAsk - bestBid
	}
	return OrderbookSnapshot{
		Symbol:  symbol,
		Bids:    book.TopBids(depth),
		Asks:    book.TopAsks(depth),
		BestBid: bestBid,
		BestAsk: bestAsk,
		Spread:  spread,
	}
}

// RecentTrades returns up to limit recent trades for symbol from the
// in-memory ring (SPEC_FULL.md §4.6 supplement), never touching the WAL.
func (e *Engine) RecentTrades(symbol string, limit int) []*domain.Trade {
	if e.trades == nil {
		return nil
	}
	return e.trades.Recent(symbol, limit)
}

// Symbols returns every symbol with a registered book, for GET /symbols.
func (e *Engine) Symbols() []string {
	e.regMu.Lock()
	defer e.regMu.Unlock()
	out := make([]string, 0, len(e.books))
	for s := range e.books {
		out = append(out, s)
	}
	return out
}

// Stats is the response shape for GET /stats.
type Stats struct {
	TotalOrders   uint64                       `json:"total_orders"`
	TotalTrades   uint64                       `json:"total_trades"`
	WALEntries    uint64                       `json:"wal_total_entries"`
	WALPending    int64                        `json:"wal_pending_writes"`
	BroadcastDepth int                         `json:"broadcast_queue_depth"`
	TopOfBook     map[string]OrderbookSnapshot `json:"top_of_book"`
}

// Stats reports engine-wide counters and per-symbol top-of-book.
func (e *Engine) Stats() Stats {
	e.regMu.Lock()
	symbols := make([]string, 0, len(e.books))
	for s := range e.books {
		symbols = append(symbols, s)
	}
	e.regMu.Unlock()

	tob := make(map[string]OrderbookSnapshot, len(symbols))
	for _, s := range symbols {
		tob[s] = e.OrderbookSnapshot(s, 1)
	}
	return Stats{
		TotalOrders:    e.totalOrders.Load(),
		TotalTrades:    e.totalTrades.Load(),
		WALEntries:     e.log.TotalEntries(),
		WALPending:     e.log.PendingWrites(),
		BroadcastDepth: e.bq.Depth(),
		TopOfBook:      tob,
	}
}

// CaptureState implements snapshot.Source for the Snapshotter.
func (e *Engine) CaptureState() snapshot.State {
	e.regMu.Lock()
	symbols := make([]string, 0, len(e.books))
	for s := range e.books {
		symbols = append(symbols, s)
	}
	e.regMu.Unlock()

	st := snapshot.State{
		Orders:     make(map[string][]*domain.Order, len(symbols)),
		StopOrders: make(map[string][]*domain.StopOrder, len(symbols)),
		OrderSeq:   e.totalOrders.Load(),
		TradeSeq:   e.tradeID.Current(),
	}
	for _, s := range symbols {
		book, stopMgr := e.bookFor(s)
		st.Orders[s] = book.AllRestingOrders()
		st.StopOrders[s] = stopMgr.AllStopOrders()
	}
	st.WALSeq = e.walOrdinal.Load()
	return st
}
