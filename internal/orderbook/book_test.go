package orderbook

import (
	"testing"

	"github.com/ngoyal88/matching-engine/internal/domain"
)

func newTestBook() *Book {
	return NewBook("BTC-USDT", domain.DefaultFeeSchedule(), NewTradeIDGenerator(0))
}

func limitOrder(id string, side domain.Side, qty, price int64) *domain.Order {
	return &domain.Order{
		OrderID:   id,
		Symbol:    "BTC-USDT",
		Type:      domain.Limit,
		Side:      side,
		Quantity:  qty,
		Remaining: qty,
		Price:     price,
	}
}

// S1 — Simple limit cross.
func TestSimpleLimitCross(t *testing.T) {
	b := newTestBook()
	s1 := limitOrder("S1", domain.Sell, 1_000_000, 1_000_000)
	if trades := b.AddOrder(s1); len(trades) != 0 {
		t.Fatalf("expected no trades resting S1, got %d", len(trades))
	}

	b1 := limitOrder("B1", domain.Buy, 500_000, 1_100_000)
	trades := b.AddOrder(b1)
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
	tr := trades[0]
	if tr.Price != 1_000_000 || tr.Quantity != 500_000 || tr.MakerOrderID != "S1" || tr.TakerOrderID != "B1" {
		t.Fatalf("unexpected trade: %+v", tr)
	}

	asks := b.TopAsks(10)
	if len(asks) != 1 || asks[0].Price != 1_000_000 || asks[0].Quantity != 500_000 {
		t.Fatalf("unexpected ask book: %+v", asks)
	}
	if bids := b.TopBids(10); len(bids) != 0 {
		t.Fatalf("expected empty bids, got %+v", bids)
	}
}

// S2 — Market sweeps two levels at the same price, FIFO within the level.
func TestMarketSweepsTwoLevels(t *testing.T) {
	b := newTestBook()
	b.AddOrder(limitOrder("S1", domain.Sell, 300_000, 1_000_000))
	b.AddOrder(limitOrder("S2", domain.Sell, 300_000, 1_000_000))

	mkt := &domain.Order{OrderID: "B1", Symbol: "BTC-USDT", Type: domain.Market, Side: domain.Buy, Quantity: 500_000, Remaining: 500_000}
	trades := b.AddOrder(mkt)
	if len(trades) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(trades))
	}
	if trades[0].MakerOrderID != "S1" || trades[1].MakerOrderID != "S2" {
		t.Fatalf("expected FIFO S1 before S2, got %+v", trades)
	}
	total := trades[0].Quantity + trades[1].Quantity
	if total != 500_000 {
		t.Fatalf("expected total fill 500000, got %d", total)
	}
	asks := b.TopAsks(10)
	if len(asks) != 1 || asks[0].Quantity != 100_000 {
		t.Fatalf("expected S2 remainder 100000, got %+v", asks)
	}
	if mkt.Remaining != 0 {
		t.Fatalf("market order should be fully filled, remaining=%d", mkt.Remaining)
	}
}

// S3 — FOK insufficient liquidity: no trades, book unchanged.
func TestFOKInsufficientLeavesBookUntouched(t *testing.T) {
	b := newTestBook()
	b.AddOrder(limitOrder("S1", domain.Sell, 300_000, 1_000_000))

	fok := &domain.Order{OrderID: "B1", Symbol: "BTC-USDT", Type: domain.FOK, Side: domain.Buy, Quantity: 500_000, Remaining: 500_000, Price: 1_100_000}
	trades := b.AddOrder(fok)
	if len(trades) != 0 {
		t.Fatalf("expected no trades, got %d", len(trades))
	}
	if fok.Remaining != 500_000 {
		t.Fatalf("FOK remaining must be untouched on rejection, got %d", fok.Remaining)
	}
	asks := b.TopAsks(10)
	if len(asks) != 1 || asks[0].Quantity != 300_000 {
		t.Fatalf("book must be unchanged, got %+v", asks)
	}
}

// S4 — IOC partial fill, remainder discarded (never rests).
func TestIOCPartialNeverRests(t *testing.T) {
	b := newTestBook()
	b.AddOrder(limitOrder("S1", domain.Sell, 300_000, 1_000_000))

	ioc := &domain.Order{OrderID: "B1", Symbol: "BTC-USDT", Type: domain.IOC, Side: domain.Buy, Quantity: 500_000, Remaining: 500_000, Price: 1_100_000}
	trades := b.AddOrder(ioc)
	if len(trades) != 1 || trades[0].Quantity != 300_000 {
		t.Fatalf("expected one 300000 trade, got %+v", trades)
	}
	if ioc.Remaining != 200_000 {
		t.Fatalf("expected 200000 unfilled (discarded), got %d", ioc.Remaining)
	}
	if bids := b.TopBids(10); len(bids) != 0 {
		t.Fatalf("IOC must never rest, got %+v", bids)
	}
}

// S5 — Cancel.
func TestCancelRestingOrder(t *testing.T) {
	b := newTestBook()
	b.AddOrder(limitOrder("B1", domain.Buy, 1_000_000, 900_000))

	if !b.CancelOrder("B1") {
		t.Fatalf("expected cancel to succeed")
	}
	if b.CancelOrder("B1") {
		t.Fatalf("expected second cancel of same id to return false")
	}
	if bids := b.TopBids(10); len(bids) != 0 {
		t.Fatalf("expected empty bids after cancel, got %+v", bids)
	}
}

// Cancelling one of several resting orders at a level must deflate
// TotalQty by exactly the cancelled remainder, not leave it overstated.
func TestCancelDecrementsLevelTotalQty(t *testing.T) {
	b := newTestBook()
	b.AddOrder(limitOrder("S1", domain.Sell, 300_000, 1_000_000))
	b.AddOrder(limitOrder("S2", domain.Sell, 200_000, 1_000_000))

	if !b.CancelOrder("S1") {
		t.Fatalf("expected cancel to succeed")
	}

	asks := b.TopAsks(10)
	if len(asks) != 1 || asks[0].Quantity != 200_000 {
		t.Fatalf("expected level quantity 200000 after cancelling S1, got %+v", asks)
	}
}

// A FOK precheck must reflect real depth after a cancel: cancelling
// liquidity that FOK would have needed must make it correctly unfillable,
// leaving no partial trade behind (spec §8 invariant 2, §9 Open Question 3).
func TestFOKPrecheckReflectsCancelledLiquidity(t *testing.T) {
	b := newTestBook()
	b.AddOrder(limitOrder("S1", domain.Sell, 300_000, 1_000_000))
	b.AddOrder(limitOrder("S2", domain.Sell, 300_000, 1_000_000))

	if !b.CancelOrder("S1") {
		t.Fatalf("expected cancel to succeed")
	}

	fok := &domain.Order{OrderID: "B1", Symbol: "BTC-USDT", Type: domain.FOK, Side: domain.Buy, Quantity: 500_000, Remaining: 500_000, Price: 1_100_000}
	trades := b.AddOrder(fok)
	if len(trades) != 0 {
		t.Fatalf("expected FOK rejection after liquidity was cancelled, got %d trades", len(trades))
	}
	if fok.Remaining != 500_000 {
		t.Fatalf("rejected FOK must be untouched, got remaining=%d", fok.Remaining)
	}
	asks := b.TopAsks(10)
	if len(asks) != 1 || asks[0].Quantity != 300_000 {
		t.Fatalf("book must be unchanged by the rejected FOK, got %+v", asks)
	}
}

// Invariant: sum(trade.quantity) + remaining == input quantity, for limit orders.
func TestQuantityConservationInvariant(t *testing.T) {
	b := newTestBook()
	b.AddOrder(limitOrder("S1", domain.Sell, 700_000, 1_000_000))

	buy := limitOrder("B1", domain.Buy, 1_000_000, 1_000_000)
	trades := b.AddOrder(buy)
	var filled int64
	for _, tr := range trades {
		filled += tr.Quantity
	}
	if filled+buy.Remaining != buy.Quantity {
		t.Fatalf("conservation violated: filled=%d remaining=%d quantity=%d", filled, buy.Remaining, buy.Quantity)
	}
}

// Invariant: best bid < best ask for limit-only order flow.
func TestNoCrossedBook(t *testing.T) {
	b := newTestBook()
	b.AddOrder(limitOrder("S1", domain.Sell, 100_000, 1_100_000))
	b.AddOrder(limitOrder("B1", domain.Buy, 100_000, 1_000_000))

	bestBid, bestAsk, bidOK, askOK := b.BestBidAsk()
	if bidOK && askOK && bestBid >= bestAsk {
		t.Fatalf("crossed book: bid=%d ask=%d", bestBid, bestAsk)
	}
}

// Invariant: fee totals equal notional * (maker_bps+taker_bps) / 10^4.
func TestFeeTotals(t *testing.T) {
	b := newTestBook()
	b.AddOrder(limitOrder("S1", domain.Sell, 500_000, 1_000_000))
	trades := b.AddOrder(limitOrder("B1", domain.Buy, 500_000, 1_000_000))

	var gotFees, wantFees int64
	fees := domain.DefaultFeeSchedule()
	for _, tr := range trades {
		gotFees += tr.MakerFee + tr.TakerFee
		notional := domain.Notional(tr.Price, tr.Quantity)
		wantFees += notional * (fees.MakerBps + fees.TakerBps) / 10_000
	}
	if gotFees != wantFees {
		t.Fatalf("fee mismatch: got %d want %d", gotFees, wantFees)
	}
}
