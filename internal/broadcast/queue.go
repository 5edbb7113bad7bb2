// Package broadcast decouples matching latency from observer fan-out, per
// spec.md §4.4: a single mutex+condvar-guarded FIFO drained by a worker
// pool, one message at a time, dispatched to every registered ObserverSink.
//
// Grounded on the teacher's wal mutex/condvar discipline (wal/core_wal.go)
// generalized from a single-consumer writer loop to an N-worker pool, and
// on the pack's broadcaster idiom (jobs/broadcaster/broadcaster.go) for the
// notion of a sink-agnostic fan-out stage.
package broadcast

import (
	"runtime"
	"sync"

	"go.uber.org/zap"
)

// TradeEvent is the wire shape of a broadcast trade message (spec.md §6).
type TradeEvent struct {
	TradeID       uint64 `json:"trade_id"`
	Symbol        string `json:"symbol"`
	Price         int64  `json:"price"`
	Quantity      int64  `json:"quantity"`
	AggressorSide string `json:"aggressor_side"`
	MakerOrderID  string `json:"maker_order_id"`
	TakerOrderID  string `json:"taker_order_id"`
	MakerFee      int64  `json:"maker_fee"`
	TakerFee      int64  `json:"taker_fee"`
	Timestamp     string `json:"timestamp"`
}

// BookLevel is one aggregated price level in a book-update message.
type BookLevel struct {
	Price    int64 `json:"price"`
	Quantity int64 `json:"quantity"`
}

// OrderbookEvent is the wire shape of a broadcast top-of-book message.
type OrderbookEvent struct {
	Symbol    string      `json:"symbol"`
	Bids      []BookLevel `json:"bids"`
	Asks      []BookLevel `json:"asks"`
	Timestamp string      `json:"timestamp"`
}

// ObserverSink is the opaque downstream capability spec.md §9 calls out:
// "replace [the PIMPL pointer] with an interface abstraction". The
// WebSocket hub and the Kafka sink both implement it; the engine and the
// BroadcastQueue are unaware of which concrete transport is behind it.
type ObserverSink interface {
	BroadcastTrade(TradeEvent)
	BroadcastOrderbookUpdate(OrderbookEvent)
}

type messageKind int

const (
	kindTrade messageKind = iota
	kindBook
)

type message struct {
	kind  messageKind
	trade TradeEvent
	book  OrderbookEvent
}

// Queue is the unbounded fan-out pipeline. Push calls are O(1) excluding
// allocation; dispatch happens off a worker pool so a slow observer never
// back-pressures the matching path.
type Queue struct {
	mu       sync.Mutex
	cond     *sync.Cond
	items    []message
	stopping bool
	wg       sync.WaitGroup
	sinks    []ObserverSink
	logger   *zap.Logger
}

// New starts a worker pool (default hardware concurrency, minimum 4) that
// pops one message at a time and fans it out to every sink.
func New(workers int, logger *zap.Logger, sinks ...ObserverSink) *Queue {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers < 4 {
		workers = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	q := &Queue{sinks: sinks, logger: logger}
	q.cond = sync.NewCond(&q.mu)
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	return q
}

// AddSink registers an additional observer sink (e.g. once the Kafka
// outbox finishes warming up).
func (q *Queue) AddSink(s ObserverSink) {
	q.mu.Lock()
	q.sinks = append(q.sinks, s)
	q.mu.Unlock()
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		for len(q.items) == 0 && !q.stopping {
			q.cond.Wait()
		}
		if len(q.items) == 0 && q.stopping {
			q.mu.Unlock()
			return
		}
		msg := q.items[0]
		q.items = q.items[1:]
		sinks := q.sinks
		q.mu.Unlock()

		// Dispatch outside the lock: spec.md §4.4 step 3. Ordering
		// between workers is intentionally not synchronized — this is
		// the accepted relaxation of spec.md §4.4 / §9 Open Question 4;
		// observers rely on per-event timestamps, not delivery order.
		for _, sink := range sinks {
			switch msg.kind {
			case kindTrade:
				sink.BroadcastTrade(msg.trade)
			case kindBook:
				sink.BroadcastOrderbookUpdate(msg.book)
			}
		}
	}
}

func (q *Queue) push(m message) {
	q.mu.Lock()
	q.items = append(q.items, m)
	q.mu.Unlock()
	q.cond.Signal()
}

// PushTrade enqueues a trade broadcast.
func (q *Queue) PushTrade(t TradeEvent) { q.push(message{kind: kindTrade, trade: t}) }

// PushBookUpdate enqueues a top-of-book broadcast.
func (q *Queue) PushBookUpdate(b OrderbookEvent) { q.push(message{kind: kindBook, book: b}) }

// Depth reports the current backlog, for /stats.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Stop lets workers drain outstanding messages, then returns once every
// worker has exited (spec.md §4.4 "Shutdown").
func (q *Queue) Stop() {
	q.mu.Lock()
	q.stopping = true
	q.mu.Unlock()
	q.cond.Broadcast()
	q.wg.Wait()
}
