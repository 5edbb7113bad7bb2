// Package orderbook implements the per-symbol price-time priority limit
// order book: matching, resting, cancellation and top-of-book snapshots.
// Grounded on the teacher's orderbook/order_book.go (RBTree-backed price
// levels) and price_level.go (intrusive FIFO), generalized from the
// teacher's fixed-width benchmark fields to spec.md's string order ids,
// string symbols, and full order-type set (limit/market/ioc/fok).
package orderbook

import (
	"sync"
	"time"

	"github.com/ngoyal88/matching-engine/internal/domain"
)

// indexEntry is what spec.md §3 calls order_index: order_id -> (price, side).
type indexEntry struct {
	price int64
	side  domain.Side
}

// Book is a single symbol's order book. All exported methods are safe for
// concurrent use; per spec.md §5 the per-book mutex is held for the full
// duration of AddOrder/CancelOrder/snapshots, serializing matching for this
// symbol while distinct symbols proceed in parallel.
type Book struct {
	Symbol string

	mu   sync.Mutex
	bids *levelTree // keyed by price; best = MaxLevel
	asks *levelTree // keyed by price; best = MinLevel
	idx  map[string]indexEntry

	fees    domain.FeeSchedule
	tradeID *TradeIDGen

	lastTradePrice int64
	hasTraded      bool
}

// TradeIDGen is a process-wide monotonic counter shared by every Book, so
// trade_id is globally unique across symbols (spec.md §3).
type TradeIDGen struct {
	mu  sync.Mutex
	cur uint64
}

func NewTradeIDGenerator(start uint64) *TradeIDGen {
	return &TradeIDGen{cur: start}
}

func (g *TradeIDGen) next() uint64 {
	g.mu.Lock()
	g.cur++
	v := g.cur
	g.mu.Unlock()
	return v
}

// Current reports the highest trade id issued so far (used by Recovery to
// resume the sequence after replay).
func (g *TradeIDGen) Current() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cur
}

// Reset fast-forwards the generator, used only right after WAL replay.
func (g *TradeIDGen) Reset(v uint64) {
	g.mu.Lock()
	if v > g.cur {
		g.cur = v
	}
	g.mu.Unlock()
}

func NewBook(symbol string, fees domain.FeeSchedule, tradeID *TradeIDGen) *Book {
	return &Book{
		Symbol:  symbol,
		bids:    newLevelTree(),
		asks:    newLevelTree(),
		idx:     make(map[string]indexEntry),
		fees:    fees,
		tradeID: tradeID,
	}
}

// LastTradePrice returns the last traded price and whether any trade has
// occurred yet on this book.
func (b *Book) LastTradePrice() (int64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastTradePrice, b.hasTraded
}

// AddOrder matches the incoming order against the book, resting any
// unfilled remainder per its order type's rules, per spec.md §4.1's
// matching algorithm. It mutates order.Remaining and returns the ordered
// sequence of resulting trades.
func (b *Book) AddOrder(order *domain.Order) []domain.Trade {
	b.mu.Lock()
	defer b.mu.Unlock()

	if order.Type == domain.FOK {
		if !b.fokFillable(order) {
			return nil
		}
	}

	trades := b.match(order)

	switch order.Type {
	case domain.Limit:
		if order.Remaining > 0 {
			b.rest(order)
		}
	case domain.Market, domain.IOC, domain.FOK:
		// never rests; any remainder is simply discarded
	}

	return trades
}

// fokFillable walks the opposite side read-only, summing available
// quantity under the price gate, without mutating anything — spec.md
// §4.1 "FOK pre-check" / §9 Open Question 3: the pre-check MUST be
// mutation-free so a failed FOK leaves the book byte-identical.
func (b *Book) fokFillable(order *domain.Order) bool {
	var available int64
	visit := func(level *PriceLevel) bool {
		if !b.priceGateOK(order, level.Price) {
			return false
		}
		available += level.TotalQty
		return available < order.Quantity
	}
	if order.Side == domain.Buy {
		b.asks.ForEachAscending(visit)
	} else {
		b.bids.ForEachDescending(visit)
	}
	return available >= order.Quantity
}

// priceGateOK implements spec.md §4.1 step 2: market orders skip the gate;
// limit/ioc/fok stop walking once the opposite level crosses their limit.
func (b *Book) priceGateOK(order *domain.Order, levelPrice int64) bool {
	if order.Type == domain.Market {
		return true
	}
	if order.Side == domain.Buy {
		return levelPrice <= order.Price
	}
	return levelPrice >= order.Price
}

func (b *Book) match(taker *domain.Order) []domain.Trade {
	var trades []domain.Trade
	opposite := b.asks
	if taker.Side == domain.Sell {
		opposite = b.bids
	}

	for taker.Remaining > 0 {
		var level *PriceLevel
		if taker.Side == domain.Buy {
			level = opposite.MinLevel()
		} else {
			level = opposite.MaxLevel()
		}
		if level == nil {
			break
		}
		if !b.priceGateOK(taker, level.Price) {
			break
		}

		for taker.Remaining > 0 && !level.empty() {
			maker := level.head
			qty := taker.Remaining
			if maker.order.Remaining < qty {
				qty = maker.order.Remaining
			}

			trade := domain.Trade{
				TradeID:       b.tradeID.next(),
				Symbol:        b.Symbol,
				Price:         level.Price,
				Quantity:      qty,
				AggressorSide: taker.Side,
				MakerOrderID:  maker.order.OrderID,
				TakerOrderID:  taker.OrderID,
				TimestampISO:  time.Now().UTC().Format(time.RFC3339Nano),
			}
			trade.MakerFee, trade.TakerFee = b.fees.Compute(level.Price, qty)

			taker.Remaining -= qty
			maker.order.Remaining -= qty
			// Reflects this trade's matched qty against the level immediately;
			// unlink below only removes maker's (by-then-zero) remainder from
			// TotalQty on full fill, so there is no double decrement.
			level.TotalQty -= qty

			b.lastTradePrice = level.Price
			b.hasTraded = true

			trades = append(trades, trade)

			if maker.order.Remaining == 0 {
				level.unlink(maker)
				delete(b.idx, maker.order.OrderID)
			}
		}

		if level.empty() {
			opposite.Delete(level.Price)
		}
	}

	return trades
}

func (b *Book) rest(order *domain.Order) {
	var level *PriceLevel
	if order.Side == domain.Buy {
		level = b.bids.Upsert(order.Price)
	} else {
		level = b.asks.Upsert(order.Price)
	}
	level.enqueue(&restingOrder{order: order})
	b.idx[order.OrderID] = indexEntry{price: order.Price, side: order.Side}
}

// LoadResting inserts an already-resting order during recovery, bypassing
// matching entirely (spec.md §4.6 step 3: "a replay-specific entry point
// that skips matching"). Caller guarantees this order cannot cross the
// currently-loaded book.
func (b *Book) LoadResting(order *domain.Order) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rest(order)
}

// CancelOrder removes a resting order by id. Returns false if unknown —
// never an error (spec.md §4.1 "Failure semantics").
func (b *Book) CancelOrder(orderID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.idx[orderID]
	if !ok {
		return false
	}

	tree := b.asks
	if entry.side == domain.Buy {
		tree = b.bids
	}
	level := tree.Find(entry.price)
	if level == nil {
		delete(b.idx, orderID)
		return false
	}
	node := level.findByID(orderID)
	if node == nil {
		delete(b.idx, orderID)
		return false
	}
	level.unlink(node)
	delete(b.idx, orderID)
	if level.empty() {
		tree.Delete(entry.price)
	}
	return true
}

// LevelSnapshot is one aggregated price level in a top-of-book view.
type LevelSnapshot struct {
	Price    int64 `json:"price"`
	Quantity int64 `json:"quantity"`
}

// TopBids returns up to n bid levels, best (highest price) first.
func (b *Book) TopBids(n int) []LevelSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return topN(b.bids.ForEachDescending, n)
}

// TopAsks returns up to n ask levels, best (lowest price) first.
func (b *Book) TopAsks(n int) []LevelSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return topN(b.asks.ForEachAscending, n)
}

func topN(walk func(func(*PriceLevel) bool), n int) []LevelSnapshot {
	out := make([]LevelSnapshot, 0, n)
	walk(func(level *PriceLevel) bool {
		out = append(out, LevelSnapshot{Price: level.Price, Quantity: level.TotalQty})
		return len(out) < n
	})
	return out
}

// AllRestingOrders returns every resting order on both sides, in no
// particular order. Used by the Snapshotter to capture book state; never
// called on the matching hot path.
func (b *Book) AllRestingOrders() []*domain.Order {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []*domain.Order
	collect := func(level *PriceLevel) bool {
		for n := level.head; n != nil; n = n.next {
			out = append(out, n.order)
		}
		return true
	}
	b.bids.ForEachDescending(collect)
	b.asks.ForEachAscending(collect)
	return out
}

// BestBidAsk returns the current top of book; ok is false on an empty side.
func (b *Book) BestBidAsk() (bestBid, bestAsk int64, bidOK, askOK bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if lvl := b.bids.MaxLevel(); lvl != nil {
		bestBid, bidOK = lvl.Price, true
	}
	if lvl := b.asks.MinLevel(); lvl != nil {
		bestAsk, askOK = lvl.Price, true
	}
	return
}
