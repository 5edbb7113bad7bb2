// Package domain holds the wire-level and book-level value types shared by
// every component of the matching engine: orders, stop orders and trades.
package domain

import (
	"encoding/json"
	"fmt"
)

// Scale factors fixing the integer representation of money and quantity.
// price scale is cents (10^2); quantity scale is microunits (10^6).
const (
	PriceScale    int64 = 100
	QuantityScale int64 = 1_000_000
	notionalScale       = PriceScale * QuantityScale
)

// Notional returns (price * quantity) / 10^8, truncating.
func Notional(price, quantity int64) int64 {
	return (price * quantity) / notionalScale
}

type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Buy {
		return "buy"
	}
	return "sell"
}

func ParseSide(s string) (Side, bool) {
	switch s {
	case "buy":
		return Buy, true
	case "sell":
		return Sell, true
	default:
		return 0, false
	}
}

// MarshalJSON emits Side as its wire string ("buy"/"sell") rather than the
// underlying int, matching the broadcast path (engine.go's TradeEvent) and
// spec.md §6's string-sided REST contract.
func (s Side) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON accepts the wire string form emitted by MarshalJSON.
func (s *Side) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	side, ok := ParseSide(str)
	if !ok {
		return fmt.Errorf("domain: invalid side %q", str)
	}
	*s = side
	return nil
}

type OrderType int

const (
	Limit OrderType = iota
	Market
	IOC
	FOK
)

func (t OrderType) String() string {
	switch t {
	case Limit:
		return "limit"
	case Market:
		return "market"
	case IOC:
		return "ioc"
	case FOK:
		return "fok"
	default:
		return "unknown"
	}
}

func ParseOrderType(s string) (OrderType, bool) {
	switch s {
	case "limit":
		return Limit, true
	case "market":
		return Market, true
	case "ioc":
		return IOC, true
	case "fok":
		return FOK, true
	default:
		return 0, false
	}
}

// OrderStatus is the caller-visible result of a submission, per spec.md
// §4.5 step 10.
type OrderStatus string

const (
	StatusOpen             OrderStatus = "open"
	StatusFilled           OrderStatus = "filled"
	StatusPartiallyFilled  OrderStatus = "partially_filled"
	StatusCancelled        OrderStatus = "cancelled"
)

// Cancel reasons carried on a WAL `cancel` event, per SPEC_FULL.md §3.
const (
	CancelReasonUserRequested = "user_requested"
	CancelReasonIOCUnfilled   = "ioc_unfilled"
	CancelReasonFOKRejected   = "fok_rejected"
	CancelReasonStopReplaced  = "stop_replaced"
)

// Order is a live or resting order. A resting order always has
// Type == Limit and Remaining > 0 (spec.md §3 invariant).
type Order struct {
	OrderID   string    `json:"order_id"`
	Symbol    string    `json:"symbol"`
	UserID    string    `json:"user_id,omitempty"`
	Type      OrderType `json:"order_type"`
	Side      Side      `json:"side"`
	Quantity  int64     `json:"quantity"`
	Remaining int64     `json:"remaining_quantity"`
	Price     int64     `json:"price"`
	Timestamp int64     `json:"timestamp"`

	// Synthetic marks an order materialized by a triggered stop order
	// rather than submitted directly; it is never logged as a WAL
	// `order` event (its resulting trades still are).
	Synthetic bool `json:"-"`
}

type StopType int

const (
	StopLoss StopType = iota
	StopLimit
	TakeProfit
	TrailingStop
)

func (t StopType) String() string {
	switch t {
	case StopLoss:
		return "stop_loss"
	case StopLimit:
		return "stop_limit"
	case TakeProfit:
		return "take_profit"
	case TrailingStop:
		return "trailing_stop"
	default:
		return "unknown"
	}
}

func ParseStopType(s string) (StopType, bool) {
	switch s {
	case "stop_loss":
		return StopLoss, true
	case "stop_limit":
		return StopLimit, true
	case "take_profit":
		return TakeProfit, true
	case "trailing_stop":
		return TrailingStop, true
	default:
		return 0, false
	}
}

// StopOrder is a dormant order materialized once the trigger condition is
// satisfied (spec.md §4.2).
type StopOrder struct {
	OrderID      string   `json:"order_id"`
	Symbol       string   `json:"symbol"`
	Side         Side     `json:"side"`
	Quantity     int64    `json:"quantity"`
	CreatedAt    int64    `json:"created_at"`
	UserID       string   `json:"user_id"`
	StopType     StopType `json:"stop_type"`
	TriggerPrice int64    `json:"trigger_price"`
	LimitPrice   int64    `json:"limit_price"`
	TrailAmount  int64    `json:"trail_amount"`
	BestPrice    int64    `json:"best_price"`

	// bestPriceSet distinguishes "never traded since registration" from
	// "best_price == 0", per SPEC_FULL.md §4.2's trailing-activation rule.
	bestPriceSet bool
}

// HasBestPrice reports whether a trailing stop has observed at least one
// trade since registration.
func (s *StopOrder) HasBestPrice() bool { return s.bestPriceSet }

// SetBestPrice records an observed trade price for a trailing stop.
func (s *StopOrder) SetBestPrice(p int64) {
	s.BestPrice = p
	s.bestPriceSet = true
}

// Materialize produces the concrete Order a triggered stop order becomes,
// per spec.md §4.2 "Materialization".
func (s *StopOrder) Materialize(ts int64) *Order {
	o := &Order{
		OrderID:   s.OrderID,
		Symbol:    s.Symbol,
		UserID:    s.UserID,
		Side:      s.Side,
		Quantity:  s.Quantity,
		Remaining: s.Quantity,
		Timestamp: ts,
		Synthetic: true,
	}
	switch s.StopType {
	case StopLimit:
		o.Type = Limit
		o.Price = s.LimitPrice
	default: // stop_loss, take_profit, trailing_stop materialize as market
		o.Type = Market
		o.Price = 0
	}
	return o
}

// Trade is a value produced by a single match between a maker and a taker.
type Trade struct {
	TradeID       uint64 `json:"trade_id"`
	Symbol        string `json:"symbol"`
	Price         int64  `json:"price"`
	Quantity      int64  `json:"quantity"`
	AggressorSide Side   `json:"aggressor_side"`
	MakerOrderID  string `json:"maker_order_id"`
	TakerOrderID  string `json:"taker_order_id"`
	MakerFee      int64  `json:"maker_fee"`
	TakerFee      int64  `json:"taker_fee"`
	TimestampISO  string `json:"timestamp_iso"`
}

// FeeSchedule computes maker/taker fees for a trade, per spec.md §4.1.
// Default bps: maker=10, taker=20, truncating integer division.
type FeeSchedule struct {
	MakerBps int64
	TakerBps int64
}

func DefaultFeeSchedule() FeeSchedule {
	return FeeSchedule{MakerBps: 10, TakerBps: 20}
}

func (f FeeSchedule) Compute(price, quantity int64) (makerFee, takerFee int64) {
	notional := Notional(price, quantity)
	makerFee = notional * f.MakerBps / 10_000
	takerFee = notional * f.TakerBps / 10_000
	return makerFee, takerFee
}
