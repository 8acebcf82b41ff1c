package orderbook

// Orderbook is a single base/quote market's bid and ask queues plus the
// matching kernel that crosses incoming orders against resting liquidity.
// Grounded on engine/src/order_book.rs's Orderbook/process_order structure,
// generalized from its Rust types to the Request/ProcessingResult shape in
// types.go.
type Orderbook struct {
	BaseAsset  uint64
	QuoteAsset uint64

	bids *OrderQueue
	asks *OrderQueue
	seq  *sequenceGenerator
}

// New creates an empty orderbook for the given asset pair.
func New(baseAsset, quoteAsset uint64) *Orderbook {
	return &Orderbook{
		BaseAsset:  baseAsset,
		QuoteAsset: quoteAsset,
		bids:       newOrderQueue(Bid),
		asks:       newOrderQueue(Ask),
		seq:        newSequenceGenerator(),
	}
}

func (ob *Orderbook) queueFor(side Side) *OrderQueue {
	if side == Bid {
		return ob.bids
	}
	return ob.asks
}

func (ob *Orderbook) oppositeOf(side Side) *OrderQueue {
	if side == Bid {
		return ob.asks
	}
	return ob.bids
}

// Process dispatches req to the matching kernel or the order-management
// paths (update/cancel), mirroring order_book.rs's process_order dispatch.
func (ob *Orderbook) Process(req Request) ProcessingResult {
	switch req.Kind {
	case RequestMarket:
		return ob.processMarketOrder(req)
	case RequestLimit:
		return ob.processLimitOrder(req)
	case RequestUpdate:
		return ob.processUpdate(req)
	case RequestCancel:
		return ob.processCancel(req)
	default:
		return ProcessingResult{fail(Failed{Kind: FailedValidation, OrderID: req.OrderID, Reason: "unknown request kind"})}
	}
}

func (ob *Orderbook) duplicateOrderID(id uint64) bool {
	return ob.bids.Has(id) || ob.asks.Has(id)
}

func (ob *Orderbook) processLimitOrder(req Request) ProcessingResult {
	if req.Quantity == 0 || req.Price == 0 {
		return ProcessingResult{fail(Failed{Kind: FailedValidation, OrderID: req.OrderID, Reason: "quantity and price must be nonzero"})}
	}
	if ob.duplicateOrderID(req.OrderID) {
		return ProcessingResult{fail(Failed{Kind: FailedDuplicateOrderID, OrderID: req.OrderID, Reason: "order id already resting"})}
	}

	taker := &Order{
		OrderID:    req.OrderID,
		BaseAsset:  req.BaseAsset,
		QuoteAsset: req.QuoteAsset,
		Side:       req.Side,
		Price:      req.Price,
		Quantity:   req.Quantity,
		Timestamp:  req.Timestamp,
	}
	ob.seq.Next()

	steps := ProcessingResult{ok(Success{
		Kind:      Accepted,
		OrderID:   req.OrderID,
		Side:      req.Side,
		OrderType: Limit,
		Price:     req.Price,
		Quantity:  req.Quantity,
		Timestamp: req.Timestamp,
	})}

	matchSteps, remaining := ob.matchAgainst(taker, Limit)
	steps = append(steps, matchSteps...)
	if remaining > 0 {
		rest := taker.clone()
		rest.Quantity = remaining
		ob.queueFor(req.Side).Insert(rest)
	}
	return steps
}

func (ob *Orderbook) processMarketOrder(req Request) ProcessingResult {
	if req.Quantity == 0 {
		return ProcessingResult{fail(Failed{Kind: FailedValidation, OrderID: req.OrderID, Reason: "quantity must be nonzero"})}
	}

	taker := &Order{
		OrderID:    req.OrderID,
		BaseAsset:  req.BaseAsset,
		QuoteAsset: req.QuoteAsset,
		Side:       req.Side,
		Quantity:   req.Quantity,
		Timestamp:  req.Timestamp,
	}
	ob.seq.Next()

	steps := ProcessingResult{ok(Success{
		Kind:      Accepted,
		OrderID:   req.OrderID,
		Side:      req.Side,
		OrderType: Market,
		Quantity:  req.Quantity,
		Timestamp: req.Timestamp,
	})}

	matchSteps, remaining := ob.matchAgainst(taker, Market)
	steps = append(steps, matchSteps...)
	if remaining > 0 {
		steps = append(steps, fail(Failed{
			Kind:    FailedNoMatch,
			OrderID: req.OrderID,
			Reason:  "insufficient resting liquidity to fill market order",
		}))
	}
	return steps
}

func (ob *Orderbook) processUpdate(req Request) ProcessingResult {
	if req.Quantity == 0 || req.Price == 0 {
		return ProcessingResult{fail(Failed{Kind: FailedValidation, OrderID: req.OrderID, Reason: "quantity and price must be nonzero"})}
	}
	q := ob.queueFor(req.Side)
	_, found := q.Update(req.OrderID, req.Price, req.Quantity, req.Timestamp)
	if !found {
		return ProcessingResult{fail(Failed{Kind: FailedOrderNotFound, OrderID: req.OrderID, Reason: "order not resting"})}
	}
	return ProcessingResult{ok(Success{
		Kind:      Updated,
		OrderID:   req.OrderID,
		Side:      req.Side,
		OrderType: Limit,
		Price:     req.Price,
		Quantity:  req.Quantity,
		Timestamp: req.Timestamp,
	})}
}

func (ob *Orderbook) processCancel(req Request) ProcessingResult {
	q := ob.queueFor(req.Side)
	removed, found := q.Cancel(req.OrderID)
	if !found {
		return ProcessingResult{fail(Failed{Kind: FailedOrderNotFound, OrderID: req.OrderID, Reason: "order not resting"})}
	}
	return ProcessingResult{ok(Success{
		Kind:      Cancelled,
		OrderID:   req.OrderID,
		Side:      removed.Side,
		OrderType: Limit,
		Price:     removed.Price,
		Quantity:  removed.Quantity,
		Timestamp: req.Timestamp,
	})}
}

// crosses reports whether taker (at takerPrice, on takerSide) is willing to
// trade against a resting order at makerPrice. Market orders cross
// unconditionally.
func crosses(takerSide Side, orderType OrderType, takerPrice, makerPrice uint64) bool {
	if orderType == Market {
		return true
	}
	if takerSide == Bid {
		return takerPrice >= makerPrice
	}
	return takerPrice <= makerPrice
}

// matchAgainst walks the opposite side's best price levels, emitting Success
// steps for every match, until either taker is exhausted or the book no
// longer crosses taker's limit (always true for market orders, until
// liquidity runs out). Returns the emitted steps and taker's unfilled
// remainder.
//
// Emission order per match follows engine/src/order_book.rs's
// order_matching kernel: when the match quantity is less than the maker's
// resting quantity, taker fills before the maker's partial fill is
// reported; when it is greater, the maker's fill is reported after the
// taker's partial fill; when exactly equal, taker fills before maker.
func (ob *Orderbook) matchAgainst(taker *Order, orderType OrderType) (ProcessingResult, uint64) {
	opposite := ob.oppositeOf(taker.Side)
	var steps ProcessingResult
	remaining := taker.Quantity

	for remaining > 0 {
		maker, found := opposite.Front()
		if !found {
			break
		}
		if !crosses(taker.Side, orderType, taker.Price, maker.Price) {
			break
		}

		switch {
		case remaining < maker.Quantity:
			steps = append(steps,
				ok(Success{Kind: Filled, OrderID: taker.OrderID, Side: taker.Side, OrderType: orderType, Price: maker.Price, Quantity: remaining, Timestamp: taker.Timestamp}),
				ok(Success{Kind: PartiallyFilled, OrderID: maker.OrderID, Side: maker.Side, OrderType: Limit, Price: maker.Price, Quantity: remaining, Timestamp: maker.Timestamp}),
			)
			opposite.ReduceFront(remaining)
			remaining = 0

		case remaining > maker.Quantity:
			filled := maker.Quantity
			steps = append(steps,
				ok(Success{Kind: PartiallyFilled, OrderID: taker.OrderID, Side: taker.Side, OrderType: orderType, Price: maker.Price, Quantity: filled, Timestamp: taker.Timestamp}),
				ok(Success{Kind: Filled, OrderID: maker.OrderID, Side: maker.Side, OrderType: Limit, Price: maker.Price, Quantity: filled, Timestamp: maker.Timestamp}),
			)
			opposite.PopFront()
			remaining -= filled

		default:
			steps = append(steps,
				ok(Success{Kind: Filled, OrderID: taker.OrderID, Side: taker.Side, OrderType: orderType, Price: maker.Price, Quantity: remaining, Timestamp: taker.Timestamp}),
				ok(Success{Kind: Filled, OrderID: maker.OrderID, Side: maker.Side, OrderType: Limit, Price: maker.Price, Quantity: maker.Quantity, Timestamp: maker.Timestamp}),
			)
			opposite.PopFront()
			remaining = 0
		}
	}

	return steps, remaining
}

// BestBid returns the current best bid price, if any.
func (ob *Orderbook) BestBid() (uint64, bool) { return ob.bids.BestPrice() }

// BestAsk returns the current best ask price, if any.
func (ob *Orderbook) BestAsk() (uint64, bool) { return ob.asks.BestPrice() }

// Snapshot returns every resting order on both sides of the book, exported
// for gob-encoding by callers assembling a catch-up state (the queues'
// heap/index bookkeeping is deliberately not part of the snapshot: Restore
// rebuilds it fresh via ordinary Insert calls).
func (ob *Orderbook) Snapshot() []*Order {
	out := ob.bids.orders()
	return append(out, ob.asks.orders()...)
}

// Restore re-inserts a snapshot produced by Snapshot into an empty book.
func (ob *Orderbook) Restore(orders []*Order) {
	for _, o := range orders {
		ob.queueFor(o.Side).Insert(o)
	}
}
