package spot

import (
	coreerrors "github.com/fermi-network/fermi/pkg/errors"
	"github.com/fermi-network/fermi/pkg/engine/orderbook"
	"github.com/fermi-network/fermi/pkg/types"
)

// Request type discriminants dispatched by Handle when
// TargetController == ControllerSpot.
const (
	RequestLimitOrder  int32 = 0
	RequestMarketOrder int32 = 1
	RequestUpdateOrder int32 = 2
	RequestCancelOrder int32 = 3
)

type LimitOrderRequest struct {
	BaseAsset  uint64         `json:"base_asset"`
	QuoteAsset uint64         `json:"quote_asset"`
	Side       orderbook.Side `json:"side"`
	Price      uint64         `json:"price"`
	Quantity   uint64         `json:"quantity"`
	OrderID    uint64         `json:"order_id"`
}

type MarketOrderRequest struct {
	BaseAsset  uint64         `json:"base_asset"`
	QuoteAsset uint64         `json:"quote_asset"`
	Side       orderbook.Side `json:"side"`
	Quantity   uint64         `json:"quantity"`
	OrderID    uint64         `json:"order_id"`
}

type UpdateOrderRequest struct {
	BaseAsset  uint64         `json:"base_asset"`
	QuoteAsset uint64         `json:"quote_asset"`
	Side       orderbook.Side `json:"side"`
	OrderID    uint64         `json:"order_id"`
	Price      uint64         `json:"price"`
	Quantity   uint64         `json:"quantity"`
}

type CancelOrderRequest struct {
	BaseAsset  uint64         `json:"base_asset"`
	QuoteAsset uint64         `json:"quote_asset"`
	Side       orderbook.Side `json:"side"`
	OrderID    uint64         `json:"order_id"`
}

// OrderStepEvent mirrors one Ok/Err step of an orderbook.ProcessingResult.
type OrderStepEvent struct {
	OrderID  uint64 `json:"order_id"`
	Kind     string `json:"kind"`
	Price    uint64 `json:"price,omitempty"`
	Quantity uint64 `json:"quantity,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// Handle dispatches a spot-targeted transaction to the matching operation.
func (c *Controller) Handle(tx types.Transaction) ([]types.Event, error) {
	switch tx.RequestType {
	case RequestLimitOrder:
		var req LimitOrderRequest
		if err := types.DecodeRequest(tx.RequestBytes, &req); err != nil {
			return nil, err
		}
		return c.LimitOrder(tx.Sender, req)
	case RequestMarketOrder:
		var req MarketOrderRequest
		if err := types.DecodeRequest(tx.RequestBytes, &req); err != nil {
			return nil, err
		}
		return c.MarketOrder(tx.Sender, req)
	case RequestUpdateOrder:
		var req UpdateOrderRequest
		if err := types.DecodeRequest(tx.RequestBytes, &req); err != nil {
			return nil, err
		}
		return c.UpdateOrder(tx.Sender, req)
	case RequestCancelOrder:
		var req CancelOrderRequest
		if err := types.DecodeRequest(tx.RequestBytes, &req); err != nil {
			return nil, err
		}
		return c.CancelOrder(tx.Sender, req)
	default:
		return nil, coreerrors.New(coreerrors.InvalidRequestType)
	}
}

func escrowAmount(side orderbook.Side, price, quantity uint64) uint64 {
	if side == orderbook.Bid {
		return price * quantity
	}
	return quantity
}

func escrowAsset(side orderbook.Side, base, quote uint64) uint64 {
	if side == orderbook.Bid {
		return quote
	}
	return base
}

// LimitOrder escrows P*Q (Bid, quote) or Q (Ask, base) from sender into the
// controller's account, then submits the order to the (base, quote) book,
// settling every resulting fill against the escrow of both sides.
func (c *Controller) LimitOrder(sender types.Address, req LimitOrderRequest) ([]types.Event, error) {
	if req.Quantity == 0 || req.Price == 0 {
		return nil, coreerrors.New(coreerrors.OrderRequest)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.escrows[req.OrderID]; exists {
		return nil, coreerrors.New(coreerrors.OrderRequest)
	}

	amount := escrowAmount(req.Side, req.Price, req.Quantity)
	asset := escrowAsset(req.Side, req.BaseAsset, req.QuoteAsset)
	if err := c.bank.Transfer(sender, ControllerAccount, asset, amount); err != nil {
		return nil, err
	}

	taker := &escrow{Owner: sender, Side: req.Side, Price: req.Price, RemainingQty: req.Quantity}

	ob := c.bookFor(req.BaseAsset, req.QuoteAsset)
	steps := ob.Process(orderbook.Request{
		Kind: orderbook.RequestLimit, Side: req.Side, Price: req.Price, Quantity: req.Quantity, OrderID: req.OrderID,
	})

	return c.settle(steps, req.OrderID, taker, req.BaseAsset, req.QuoteAsset)
}

// MarketOrder matches immediately against the book without pre-escrow:
// each fill is settled with a direct bank transfer at match time, since a
// market order carries no limit price to escrow against.
func (c *Controller) MarketOrder(sender types.Address, req MarketOrderRequest) ([]types.Event, error) {
	if req.Quantity == 0 {
		return nil, coreerrors.New(coreerrors.OrderRequest)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	taker := &escrow{Owner: sender, Side: req.Side, RemainingQty: req.Quantity}

	ob := c.bookFor(req.BaseAsset, req.QuoteAsset)
	steps := ob.Process(orderbook.Request{
		Kind: orderbook.RequestMarket, Side: req.Side, Quantity: req.Quantity, OrderID: req.OrderID,
	})

	return c.settleMarket(steps, req.OrderID, taker, req.BaseAsset, req.QuoteAsset)
}

// UpdateOrder releases the order's current escrow in full, re-escrows at
// the new price/quantity, and re-homes it in the book. On failure to find
// the order, the fresh escrow (if any was taken) is rolled back.
func (c *Controller) UpdateOrder(sender types.Address, req UpdateOrderRequest) ([]types.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.escrows[req.OrderID]
	if !ok || rec.Owner != sender {
		return nil, coreerrors.New(coreerrors.OrderRequest)
	}

	oldAsset, oldAmount := rec.asset(req.BaseAsset, req.QuoteAsset)
	if err := c.bank.Transfer(ControllerAccount, sender, oldAsset, oldAmount); err != nil {
		return nil, err
	}
	delete(c.escrows, req.OrderID)

	newAmount := escrowAmount(req.Side, req.Price, req.Quantity)
	newAsset := escrowAsset(req.Side, req.BaseAsset, req.QuoteAsset)
	if err := c.bank.Transfer(sender, ControllerAccount, newAsset, newAmount); err != nil {
		// roll back the release above so the order keeps its original escrow
		_ = c.bank.Transfer(sender, ControllerAccount, oldAsset, oldAmount)
		c.escrows[req.OrderID] = rec
		return nil, err
	}

	ob := c.bookFor(req.BaseAsset, req.QuoteAsset)
	steps := ob.Process(orderbook.Request{
		Kind: orderbook.RequestUpdate, Side: req.Side, Price: req.Price, Quantity: req.Quantity, OrderID: req.OrderID,
	})
	if len(steps) == 1 && steps[0].Err != nil {
		_ = c.bank.Transfer(ControllerAccount, sender, newAsset, newAmount)
		return nil, nil
	}

	c.escrows[req.OrderID] = &escrow{Owner: sender, Side: req.Side, Price: req.Price, RemainingQty: req.Quantity}
	return eventsFromSteps(steps), nil
}

// CancelOrder releases the order's remaining escrow in full back to its
// owner.
func (c *Controller) CancelOrder(sender types.Address, req CancelOrderRequest) ([]types.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.escrows[req.OrderID]
	if !ok || rec.Owner != sender {
		return nil, coreerrors.New(coreerrors.OrderRequest)
	}

	ob := c.bookFor(req.BaseAsset, req.QuoteAsset)
	steps := ob.Process(orderbook.Request{Kind: orderbook.RequestCancel, Side: req.Side, OrderID: req.OrderID})
	if len(steps) == 1 && steps[0].Err != nil {
		return nil, coreerrors.New(coreerrors.OrderRequest)
	}

	asset, amount := rec.asset(req.BaseAsset, req.QuoteAsset)
	delete(c.escrows, req.OrderID)
	if err := c.bank.Transfer(ControllerAccount, sender, asset, amount); err != nil {
		return nil, err
	}
	return eventsFromSteps(steps), nil
}

// settle applies a limit order's ProcessingResult: the taker's escrow
// record absorbs refunds and credits as each fill applies, and is persisted
// only at the end, and only if quantity remains to rest in the book. The
// Accepted step itself reports the order's full original quantity (it is
// emitted before matching runs) so it is not a reliable signal of what's
// left to escrow once fills have been applied.
func (c *Controller) settle(steps orderbook.ProcessingResult, orderID uint64, taker *escrow, base, quote uint64) ([]types.Event, error) {
	for _, step := range steps {
		if step.Err != nil {
			continue
		}
		s := step.Ok
		if s.Kind != orderbook.Filled && s.Kind != orderbook.PartiallyFilled {
			continue
		}
		if s.OrderID == orderID {
			if err := c.settleTakerFill(taker, base, quote, s.Price, s.Quantity); err != nil {
				return nil, err
			}
		} else if err := c.settleMakerFill(s.OrderID, base, quote, s.Price, s.Quantity, s.Kind == orderbook.Filled); err != nil {
			return nil, err
		}
	}
	if taker.RemainingQty > 0 {
		c.escrows[orderID] = taker
	}
	return eventsFromSteps(steps), nil
}

// settleMarket is settle's counterpart for orders with no pre-escrow: the
// taker's leg is funded directly out of its bank balance at match time.
func (c *Controller) settleMarket(steps orderbook.ProcessingResult, orderID uint64, taker *escrow, base, quote uint64) ([]types.Event, error) {
	for _, step := range steps {
		if step.Err != nil {
			continue
		}
		s := step.Ok
		if s.Kind != orderbook.Filled && s.Kind != orderbook.PartiallyFilled {
			continue
		}
		if s.OrderID == orderID {
			if taker.Side == orderbook.Bid {
				if err := c.bank.Transfer(taker.Owner, ControllerAccount, quote, s.Price*s.Quantity); err != nil {
					return nil, err
				}
				if err := c.bank.Transfer(ControllerAccount, taker.Owner, base, s.Quantity); err != nil {
					return nil, err
				}
			} else {
				if err := c.bank.Transfer(taker.Owner, ControllerAccount, base, s.Quantity); err != nil {
					return nil, err
				}
				if err := c.bank.Transfer(ControllerAccount, taker.Owner, quote, s.Price*s.Quantity); err != nil {
					return nil, err
				}
			}
		} else if err := c.settleMakerFill(s.OrderID, base, quote, s.Price, s.Quantity, s.Kind == orderbook.Filled); err != nil {
			return nil, err
		}
	}
	return eventsFromSteps(steps), nil
}

// settleTakerFill settles a limit-order taker's fill: it refunds the
// taker's price improvement (Bid side only, since an Ask taker escrowed base
// units, whose amount does not depend on price) and credits the asset it
// bought.
func (c *Controller) settleTakerFill(taker *escrow, base, quote, matchPrice, quantity uint64) error {
	if taker.Side == orderbook.Bid {
		if matchPrice < taker.Price {
			if err := c.bank.Transfer(ControllerAccount, taker.Owner, quote, (taker.Price-matchPrice)*quantity); err != nil {
				return err
			}
		}
		if err := c.bank.Transfer(ControllerAccount, taker.Owner, base, quantity); err != nil {
			return err
		}
	} else {
		if err := c.bank.Transfer(ControllerAccount, taker.Owner, quote, matchPrice*quantity); err != nil {
			return err
		}
	}
	taker.RemainingQty -= quantity
	return nil
}

// settleMakerFill credits a resting maker order's counter-asset and debits
// its escrow, removing the escrow record entirely once the maker is fully
// filled.
func (c *Controller) settleMakerFill(orderID, base, quote, matchPrice, quantity uint64, fullyFilled bool) error {
	rec, ok := c.escrows[orderID]
	if !ok {
		return coreerrors.New(coreerrors.OrderRequest)
	}
	if rec.Side == orderbook.Bid {
		if err := c.bank.Transfer(ControllerAccount, rec.Owner, base, quantity); err != nil {
			return err
		}
	} else if err := c.bank.Transfer(ControllerAccount, rec.Owner, quote, matchPrice*quantity); err != nil {
		return err
	}
	rec.RemainingQty -= quantity
	if fullyFilled {
		delete(c.escrows, orderID)
	}
	return nil
}

func eventsFromSteps(steps orderbook.ProcessingResult) []types.Event {
	events := make([]types.Event, 0, len(steps))
	for _, step := range steps {
		var ev OrderStepEvent
		if step.Ok != nil {
			ev = OrderStepEvent{OrderID: step.Ok.OrderID, Kind: step.Ok.Kind.String(), Price: step.Ok.Price, Quantity: step.Ok.Quantity}
		} else {
			ev = OrderStepEvent{OrderID: step.Err.OrderID, Kind: step.Err.Kind.String(), Reason: step.Err.Reason}
		}
		encoded, err := types.NewEvent("OrderStep", ev)
		if err != nil {
			continue
		}
		events = append(events, encoded)
	}
	return events
}
