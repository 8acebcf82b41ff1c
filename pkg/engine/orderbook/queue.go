package orderbook

import "container/heap"

// MaxStalledIndices bounds how many stale (duplicate or emptied) price
// entries the underlying heap tolerates before a compaction pass rebuilds
// it. A price level is pushed onto the heap once per "existence"; if a
// level empties and is later recreated at the same price, the heap gains a
// second stale entry for that price until compaction runs.
const MaxStalledIndices = 10

// OrderQueueInitCapacity sizes the initial level map, matching
// engine/src/order_book.rs's ORDER_QUEUE_INIT_CAPACITY.
const OrderQueueInitCapacity = 500

type priceHeap interface {
	heap.Interface
	Peek() (uint64, bool)
}

type priceLevel struct {
	price  uint64
	orders []*Order // FIFO: index 0 is the oldest, highest-priority order
}

// OrderQueue holds one side (bid or ask) of a book: a price-ordered heap of
// distinct price levels, each a FIFO queue of orders, plus a secondary
// index for O(1) order lookup by OrderID.
type OrderQueue struct {
	side       Side
	ph         priceHeap
	levels     map[uint64]*priceLevel
	index      map[uint64]uint64 // OrderID -> price
	stalled    int
}

func newOrderQueue(side Side) *OrderQueue {
	var ph priceHeap
	if side == Bid {
		h := make(MaxPriceHeap, 0, OrderQueueInitCapacity)
		ph = &h
	} else {
		h := make(MinPriceHeap, 0, OrderQueueInitCapacity)
		ph = &h
	}
	return &OrderQueue{
		side:   side,
		ph:     ph,
		levels: make(map[uint64]*priceLevel, OrderQueueInitCapacity),
		index:  make(map[uint64]uint64, OrderQueueInitCapacity),
	}
}

// Has reports whether orderID is currently resting in the queue.
func (q *OrderQueue) Has(orderID uint64) bool {
	_, ok := q.index[orderID]
	return ok
}

// Insert adds o to its price level, creating the level (and pushing a new
// heap entry) if needed. Returns false if orderID is already resting.
func (q *OrderQueue) Insert(o *Order) bool {
	if q.Has(o.OrderID) {
		return false
	}
	lvl, exists := q.levels[o.Price]
	if !exists {
		lvl = &priceLevel{price: o.Price}
		q.levels[o.Price] = lvl
		heap.Push(q.ph, o.Price)
	}
	lvl.orders = append(lvl.orders, o)
	q.index[o.OrderID] = o.Price
	return true
}

// Cancel removes orderID from the queue entirely. Returns the removed order
// and true on success.
func (q *OrderQueue) Cancel(orderID uint64) (*Order, bool) {
	price, ok := q.index[orderID]
	if !ok {
		return nil, false
	}
	lvl := q.levels[price]
	var removed *Order
	kept := lvl.orders[:0:0]
	for _, o := range lvl.orders {
		if o.OrderID == orderID {
			removed = o
			continue
		}
		kept = append(kept, o)
	}
	lvl.orders = kept
	delete(q.index, orderID)
	if len(lvl.orders) == 0 {
		delete(q.levels, price)
		q.stalled++
	}
	q.compactIfStalled()
	return removed, removed != nil
}

// Update replaces orderID's price/quantity/timestamp, re-homing it to a new
// price level if the price changed. Returns the prior order and true on
// success.
func (q *OrderQueue) Update(orderID uint64, newPrice, newQuantity, newTimestamp uint64) (*Order, bool) {
	removed, ok := q.Cancel(orderID)
	if !ok {
		return nil, false
	}
	updated := removed.clone()
	updated.Price = newPrice
	updated.Quantity = newQuantity
	updated.Timestamp = newTimestamp
	q.Insert(updated)
	return removed, true
}

// BestPrice returns the best (highest bid / lowest ask) live price level,
// discarding any stale heap entries encountered along the way.
func (q *OrderQueue) BestPrice() (uint64, bool) {
	for {
		p, ok := q.ph.Peek()
		if !ok {
			return 0, false
		}
		if _, live := q.levels[p]; live {
			return p, true
		}
		heap.Pop(q.ph)
		q.stalled++
	}
}

// Front returns the oldest order resting at the best price level, without
// removing it.
func (q *OrderQueue) Front() (*Order, bool) {
	p, ok := q.BestPrice()
	if !ok {
		return nil, false
	}
	lvl := q.levels[p]
	if len(lvl.orders) == 0 {
		return nil, false
	}
	return lvl.orders[0], true
}

// PopFront removes and returns the oldest order at the best price level.
func (q *OrderQueue) PopFront() (*Order, bool) {
	p, ok := q.BestPrice()
	if !ok {
		return nil, false
	}
	lvl := q.levels[p]
	o := lvl.orders[0]
	lvl.orders = lvl.orders[1:]
	delete(q.index, o.OrderID)
	if len(lvl.orders) == 0 {
		delete(q.levels, p)
		q.stalled++
	}
	q.compactIfStalled()
	return o, true
}

// ReduceFront decrements the quantity of the oldest order at the best price
// level in place (used when a maker is only partially filled).
func (q *OrderQueue) ReduceFront(by uint64) {
	p, ok := q.BestPrice()
	if !ok {
		return
	}
	lvl := q.levels[p]
	lvl.orders[0].Quantity -= by
}

// orders returns every resting order across all price levels, in no
// particular order, for catch-up snapshotting.
func (q *OrderQueue) orders() []*Order {
	out := make([]*Order, 0, len(q.index))
	for _, lvl := range q.levels {
		out = append(out, lvl.orders...)
	}
	return out
}

// compactIfStalled rebuilds the heap from the live level set once the
// accumulated stale/duplicate entry count crosses MaxStalledIndices.
func (q *OrderQueue) compactIfStalled() {
	if q.stalled < MaxStalledIndices {
		return
	}
	fresh := make([]uint64, 0, len(q.levels))
	for p := range q.levels {
		fresh = append(fresh, p)
	}
	switch h := q.ph.(type) {
	case *MaxPriceHeap:
		*h = fresh
	case *MinPriceHeap:
		*h = fresh
	}
	heap.Init(q.ph)
	q.stalled = 0
}
