package futures

import (
	"github.com/fermi-network/fermi/pkg/engine/orderbook"
	coreerrors "github.com/fermi-network/fermi/pkg/errors"
	"github.com/fermi-network/fermi/pkg/types"
)

func orderRequestError() error {
	return coreerrors.New(coreerrors.OrderRequest)
}

// combineCollateralData merges two same-side condensed orders into one,
// taking the quantity-weighted average price.
func combineCollateralData(a, b CondensedOrder) CondensedOrder {
	totalQty := a.Quantity + b.Quantity
	price := uint64(0)
	if totalQty > 0 {
		price = (a.Price*a.Quantity + b.Price*b.Quantity) / totalQty
	}
	return CondensedOrder{Side: a.Side, Quantity: totalQty, Price: price, BaseAssetID: a.BaseAssetID}
}

// combinePositions merges an existing position with the effect of a new
// fill: same-side fills grow the position at a VWAP'd price; opposite-side
// fills reduce, flip, or (on exact offset) close it out (nil).
func combinePositions(old FuturesPosition, next FuturesPosition) *FuturesPosition {
	if old.Side == next.Side {
		totalQty := old.Quantity + next.Quantity
		old.AveragePrice = (old.AveragePrice*old.Quantity + next.AveragePrice*next.Quantity) / totalQty
		old.Quantity = totalQty
		return &old
	}
	switch {
	case old.Quantity > next.Quantity:
		old.Quantity -= next.Quantity
		return &old
	case old.Quantity < next.Quantity:
		old.Quantity = next.Quantity - old.Quantity
		old.AveragePrice = next.AveragePrice
		old.Side = next.Side
		return &old
	default:
		return nil
	}
}

// condenseOrders collapses an account's resting orders in one market into a
// single effective bid and a single effective ask.
func condenseOrders(openOrders []FuturesOrder, baseAssetID uint64) (bids, asks CondensedOrder) {
	bids = CondensedOrder{Side: orderbook.Bid, BaseAssetID: baseAssetID}
	asks = CondensedOrder{Side: orderbook.Ask, BaseAssetID: baseAssetID}
	for _, o := range openOrders {
		c := condensedOrderFrom(o, baseAssetID)
		if o.Side == orderbook.Bid {
			bids = combineCollateralData(c, bids)
		} else {
			asks = combineCollateralData(c, asks)
		}
	}
	return bids, asks
}

// computeRealizedPnL returns the signed PnL realized by applying a fill at
// price against oldPosition, producing resultant (nil if fully closed).
// Positive for a long (Bid) position when price rose, and symmetrically for
// a short (Ask) position when price fell.
func computeRealizedPnL(old FuturesPosition, resultant *FuturesPosition, price uint64) int64 {
	oldQty := int64(old.Quantity)
	oldPrice := int64(old.AveragePrice)
	p := int64(price)
	priceDiff := p - oldPrice

	multiplier := int64(1)
	if old.Side != orderbook.Bid {
		multiplier = -1
	}

	if resultant != nil {
		if resultant.Side != old.Side {
			// The fill closed the whole old position and opened the other side.
			return multiplier * oldQty * priceDiff
		}
		if resultant.Quantity > old.Quantity {
			return 0
		}
		resultQty := int64(resultant.Quantity)
		return multiplier * priceDiff * (oldQty - resultQty)
	}
	return multiplier * oldQty * priceDiff
}

// accountMarketReqCollateral computes the worst-case collateral required in
// one market: the position's notional at the oracle price, plus the
// notional of whichever side's resting orders would make the position
// worse if they all filled, each divided by max leverage. With no open
// position, it is the larger of the two sides' notional (since either could
// become the account's first position).
func accountMarketReqCollateral(market *FuturesMarket, position *FuturesPosition, bids, asks CondensedOrder) uint64 {
	var req uint64
	if position != nil {
		req += position.Quantity * market.OraclePrice / market.MaxLeverage
		if position.Side == orderbook.Bid {
			req += bids.Price*bids.Quantity/market.MaxLeverage + 1
		} else {
			req += asks.Price*asks.Quantity/market.MaxLeverage + 1
		}
		return req
	}
	consumed := asks.Price * asks.Quantity
	if bidNotional := bids.Price * bids.Quantity; bidNotional > consumed {
		consumed = bidNotional
	}
	return consumed/market.MaxLeverage + 1
}

// getAccountTotalReqCollateral sums account's worst-case collateral
// requirement across every market in marketplace, optionally folding in a
// not-yet-placed order (orderData) as if it were already resting.
func getAccountTotalReqCollateral(mp *Marketplace, account types.Address, orderData *CondensedOrder) uint64 {
	data := CondensedOrder{Side: orderbook.Bid}
	if orderData != nil {
		data = *orderData
	}

	var total uint64
	for _, market := range mp.Markets {
		if acct, ok := market.Accounts[account]; ok {
			bids, asks := condenseOrders(acct.OpenOrders, market.BaseAssetID)
			if data.BaseAssetID == market.BaseAssetID && data.Quantity+bids.Quantity > 0 {
				if data.Side == orderbook.Bid {
					denom := data.Quantity + bids.Quantity
					bids.Price = (data.Price*data.Quantity + bids.Price*bids.Quantity) / denom
					bids.Quantity += data.Quantity
				} else {
					denom := data.Quantity + asks.Quantity
					asks.Price = (data.Price*data.Quantity + asks.Price*asks.Quantity) / denom
					asks.Quantity += data.Quantity
				}
			}
			total += accountMarketReqCollateral(market, acct.Position, bids, asks)
		} else if orderData != nil && data.BaseAssetID == market.BaseAssetID {
			empty := CondensedOrder{BaseAssetID: data.BaseAssetID}
			if data.Side == orderbook.Bid {
				empty.Side = orderbook.Ask
				total += accountMarketReqCollateral(market, nil, data, empty)
			} else {
				empty.Side = orderbook.Bid
				total += accountMarketReqCollateral(market, nil, empty, data)
			}
		}
	}
	return total
}

// getAccountUnrealizedPnL sums mark-to-market PnL across every position
// account holds in marketplace, valued at each market's oracle price.
func getAccountUnrealizedPnL(mp *Marketplace, account types.Address) int64 {
	var pnl int64
	for _, market := range mp.Markets {
		acct, ok := market.Accounts[account]
		if !ok || acct.Position == nil {
			continue
		}
		pos := acct.Position
		markPrice := int64(market.OraclePrice)
		avgPrice := int64(pos.AveragePrice)
		qty := int64(pos.Quantity)
		if pos.Side == orderbook.Bid {
			pnl += (markPrice - avgPrice) * qty
		} else {
			pnl += (avgPrice - markPrice) * qty
		}
	}
	return pnl
}

// getAccountStateByMarket collects account's open orders and position in
// every market of marketplace it has touched.
func getAccountStateByMarket(mp *Marketplace, account types.Address) AccountStateByMarket {
	var out AccountStateByMarket
	for _, market := range mp.Markets {
		acct, ok := market.Accounts[account]
		if !ok {
			continue
		}
		out = append(out, AccountStateEntry{
			BaseAssetID: market.BaseAssetID,
			OpenOrders:  acct.OpenOrders,
			Position:    acct.Position,
		})
	}
	return out
}

// getMarketplaceState snapshots every market in marketplace for read-only
// catch-up queries.
func getMarketplaceState(mp *Marketplace) MarketplaceState {
	state := MarketplaceState{QuoteAssetID: mp.QuoteAssetID}
	for _, m := range mp.Markets {
		state.Markets = append(state.Markets, m)
	}
	return state
}
