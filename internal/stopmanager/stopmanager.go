// Package stopmanager holds the per-symbol store of dormant conditional
// orders and materializes them once a trade crosses their trigger price.
//
// Grounded on the teacher's ordered-structure idiom used throughout
// orderbook/rb_tree.go, but implemented with a slice of per-trigger-price
// buckets sorted by price rather than a second red-black tree: the
// pack has no sorted-multimap library, triggers scan proportionally to
// the number of *triggered* stops (not book depth), and stdlib
// sort.Search gives O(log n) key lookup with far less code duplication
// than a second CLRS tree for a structure that never needs the book's
// FIFO-within-level behavior. See DESIGN.md for the full justification.
package stopmanager

import (
	"sort"
	"sync"

	"github.com/ngoyal88/matching-engine/internal/domain"
)

type bucket struct {
	price   int64
	entries []*domain.StopOrder
}

// Manager is one symbol's stop-order store (spec.md §4.2).
type Manager struct {
	mu   sync.Mutex
	buy  []*bucket // ascending by trigger_price
	sell []*bucket // ascending by trigger_price
	idx  map[string]int64
}

func NewManager() *Manager {
	return &Manager{idx: make(map[string]int64)}
}

func sideBuckets(m *Manager, side domain.Side) *[]*bucket {
	if side == domain.Buy {
		return &m.buy
	}
	return &m.sell
}

func findBucket(buckets []*bucket, price int64) (int, bool) {
	i := sort.Search(len(buckets), func(i int) bool { return buckets[i].price >= price })
	if i < len(buckets) && buckets[i].price == price {
		return i, true
	}
	return i, false
}

// Add registers a new stop order.
func (m *Manager) Add(s *domain.StopOrder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertLocked(s)
}

func (m *Manager) insertLocked(s *domain.StopOrder) {
	buckets := sideBuckets(m, s.Side)
	i, found := findBucket(*buckets, s.TriggerPrice)
	if found {
		(*buckets)[i].entries = append((*buckets)[i].entries, s)
	} else {
		nb := &bucket{price: s.TriggerPrice, entries: []*domain.StopOrder{s}}
		*buckets = append(*buckets, nil)
		copy((*buckets)[i+1:], (*buckets)[i:])
		(*buckets)[i] = nb
	}
	m.idx[s.OrderID] = s.TriggerPrice
}

// removeFromBucketsLocked deletes the stop order with orderID from the
// bucket at price on the given side; returns it if found.
func (m *Manager) removeFromBucketsLocked(side domain.Side, price int64, orderID string) *domain.StopOrder {
	buckets := sideBuckets(m, side)
	i, found := findBucket(*buckets, price)
	if !found {
		return nil
	}
	b := (*buckets)[i]
	for j, s := range b.entries {
		if s.OrderID == orderID {
			b.entries = append(b.entries[:j], b.entries[j+1:]...)
			if len(b.entries) == 0 {
				*buckets = append((*buckets)[:i], (*buckets)[i+1:]...)
			}
			return s
		}
	}
	return nil
}

// AllStopOrders returns every dormant stop order on both sides, in no
// particular order. Used by the Snapshotter; never called from the
// trigger-evaluation hot path.
func (m *Manager) AllStopOrders() []*domain.StopOrder {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.StopOrder
	for _, b := range m.buy {
		out = append(out, b.entries...)
	}
	for _, b := range m.sell {
		out = append(out, b.entries...)
	}
	return out
}

// Cancel removes a stop order by id. Returns false if unknown.
func (m *Manager) Cancel(orderID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	price, ok := m.idx[orderID]
	if !ok {
		return false
	}
	delete(m.idx, orderID)
	if m.removeFromBucketsLocked(domain.Buy, price, orderID) != nil {
		return true
	}
	if m.removeFromBucketsLocked(domain.Sell, price, orderID) != nil {
		return true
	}
	return false
}

// CheckTriggers evaluates the trigger rule of spec.md §4.2 against
// lastTradePrice, removes every stop order that fires, and returns the
// materialized concrete orders in trigger order (buy triggers lowest
// first, then sell triggers lowest first).
func (m *Manager) CheckTriggers(lastTradePrice, nowNanos int64) []*domain.Order {
	m.mu.Lock()
	defer m.mu.Unlock()

	var fired []*domain.StopOrder

	// Buy stops fire when last_trade_price >= trigger_price; iterate
	// ascending and stop at the first trigger above last_trade_price.
	for len(m.buy) > 0 && m.buy[0].price <= lastTradePrice {
		b := m.buy[0]
		m.buy = m.buy[1:]
		for _, s := range b.entries {
			delete(m.idx, s.OrderID)
			fired = append(fired, s)
		}
	}

	// Sell stops fire when last_trade_price <= trigger_price; iterate
	// ascending and take every bucket whose price is >= last_trade_price
	// (i.e. everything from the first qualifying key onward), in
	// ascending trigger order as spec.md permits ("or scan ascending and
	// stop on first non-match" refers to the complementary descending
	// formulation; ascending-from-first-match is equivalent here).
	i := sort.Search(len(m.sell), func(i int) bool { return m.sell[i].price >= lastTradePrice })
	if i < len(m.sell) {
		for _, b := range m.sell[i:] {
			for _, s := range b.entries {
				delete(m.idx, s.OrderID)
				fired = append(fired, s)
			}
		}
		m.sell = m.sell[:i]
	}

	out := make([]*domain.Order, 0, len(fired))
	for _, s := range fired {
		out = append(out, s.Materialize(nowNanos))
	}
	return out
}

// UpdateTrailing advances every trailing-stop entry's best_price/trigger
// on a new last-traded price, re-keying entries whose trigger_price moved
// (spec.md §4.2 "Trailing stop update"; SPEC_FULL.md §4.2 resolves Open
// Question 5 by implementing this). A trailing stop only starts tracking
// once it has observed at least one trade after registration.
func (m *Manager) UpdateTrailing(lastTradePrice int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.updateTrailingSideLocked(domain.Buy, lastTradePrice)
	m.updateTrailingSideLocked(domain.Sell, lastTradePrice)
}

func (m *Manager) updateTrailingSideLocked(side domain.Side, lastTradePrice int64) {
	buckets := sideBuckets(m, side)
	var toRekey []*domain.StopOrder

	for bi := 0; bi < len(*buckets); bi++ {
		b := (*buckets)[bi]
		kept := b.entries[:0]
		for _, s := range b.entries {
			if s.StopType != domain.TrailingStop {
				kept = append(kept, s)
				continue
			}
			moved := false
			if !s.HasBestPrice() {
				s.SetBestPrice(lastTradePrice)
				moved = true
			} else if side == domain.Buy && lastTradePrice < s.BestPrice {
				s.SetBestPrice(lastTradePrice)
				moved = true
			} else if side == domain.Sell && lastTradePrice > s.BestPrice {
				s.SetBestPrice(lastTradePrice)
				moved = true
			}
			newTrigger := s.BestPrice + s.TrailAmount
			if side == domain.Sell {
				newTrigger = s.BestPrice - s.TrailAmount
			}
			if moved && newTrigger != s.TriggerPrice {
				s.TriggerPrice = newTrigger
				toRekey = append(toRekey, s)
				continue
			}
			kept = append(kept, s)
		}
		b.entries = kept
	}
	// drop now-empty buckets
	filtered := (*buckets)[:0]
	for _, b := range *buckets {
		if len(b.entries) > 0 {
			filtered = append(filtered, b)
		}
	}
	*buckets = filtered

	for _, s := range toRekey {
		m.insertLocked(s)
	}
}
