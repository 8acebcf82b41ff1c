// Package futures implements cross-margined perpetual futures marketplaces:
// admin-created markets, account deposits, and margined limit orders against
// a per-market order book. Grounded on
// original_source/rust-gdex/controller/src/futures/{controller.rs,types.rs,utils.rs}.
package futures

import (
	"sync"

	"github.com/fermi-network/fermi/pkg/engine/orderbook"
	"github.com/fermi-network/fermi/pkg/types"
)

// DefaultMaxLeverage is the max_leverage newly created markets start at.
const DefaultMaxLeverage uint64 = 20

// FuturesOrder mirrors one account's resting order for collateral
// accounting purposes (a shadow of the order sitting in the order book).
type FuturesOrder struct {
	OrderID  uint64          `json:"order_id"`
	Side     orderbook.Side  `json:"side"`
	Price    uint64          `json:"price"`
	Quantity uint64          `json:"quantity"`
}

// FuturesPosition is an account's net position in one market.
type FuturesPosition struct {
	Side         orderbook.Side `json:"side"`
	Quantity     uint64         `json:"quantity"`
	AveragePrice uint64         `json:"average_price"`
}

// FuturesAccount is one account's per-market bookkeeping: its resting
// orders and current position.
type FuturesAccount struct {
	OpenOrders []FuturesOrder   `json:"open_orders"`
	Position   *FuturesPosition `json:"position"`
}

// CondensedOrder collapses a stack of same-side resting orders into one
// effective order (weighted-average price) for worst-case collateral math.
type CondensedOrder struct {
	Side        orderbook.Side `json:"side"`
	Quantity    uint64         `json:"quantity"`
	Price       uint64         `json:"price"`
	BaseAssetID uint64         `json:"base_asset_id"`
}

func condensedOrderFrom(o FuturesOrder, baseAssetID uint64) CondensedOrder {
	return CondensedOrder{Side: o.Side, Quantity: o.Quantity, Price: o.Price, BaseAssetID: baseAssetID}
}

// FuturesMarket is one base/quote perpetual market inside a marketplace.
type FuturesMarket struct {
	OpenInterest    uint64
	LastTradedPrice uint64
	OraclePrice     uint64
	MaxLeverage     uint64
	BaseAssetID     uint64
	QuoteAssetID    uint64
	Accounts        map[types.Address]*FuturesAccount
	OrderToAccount  map[uint64]types.Address
	Book            *orderbook.Orderbook
}

func newFuturesMarket(baseAssetID, quoteAssetID uint64) *FuturesMarket {
	return &FuturesMarket{
		MaxLeverage:    DefaultMaxLeverage,
		BaseAssetID:    baseAssetID,
		QuoteAssetID:   quoteAssetID,
		Accounts:       make(map[types.Address]*FuturesAccount),
		OrderToAccount: make(map[uint64]types.Address),
		Book:           orderbook.New(baseAssetID, quoteAssetID),
	}
}

func (m *FuturesMarket) account(addr types.Address) *FuturesAccount {
	a, ok := m.Accounts[addr]
	if !ok {
		a = &FuturesAccount{}
		m.Accounts[addr] = a
	}
	return a
}

// setOrder registers a freshly accepted order id's owner. Order ids must be
// unique within a market, matching the original's monotonic-id assumption.
func (m *FuturesMarket) setOrder(orderID uint64, account types.Address) error {
	if _, exists := m.OrderToAccount[orderID]; exists {
		return orderRequestError()
	}
	m.OrderToAccount[orderID] = account
	return nil
}

// Marketplace is a collection of futures markets sharing one quote asset
// and one admin-controlled clock/oracle feed, plus a shared deposit ledger.
type Marketplace struct {
	mu           sync.RWMutex
	Deposits     map[types.Address]int64
	QuoteAssetID uint64
	LatestTime   uint64
	Markets      map[uint64]*FuturesMarket // keyed by base asset id
}

func newMarketplace(quoteAssetID uint64) *Marketplace {
	return &Marketplace{
		Deposits:     make(map[types.Address]int64),
		QuoteAssetID: quoteAssetID,
		Markets:      make(map[uint64]*FuturesMarket),
	}
}

// AccountStateByMarket reports one account's open orders and position per
// market it has touched, used by catch-up / read-only queries.
type AccountStateByMarket []AccountStateEntry

// AccountStateEntry is one market's slice of AccountStateByMarket.
type AccountStateEntry struct {
	BaseAssetID uint64           `json:"base_asset_id"`
	OpenOrders  []FuturesOrder   `json:"open_orders"`
	Position    *FuturesPosition `json:"position"`
}

// MarketplaceState is a read-only snapshot of a marketplace's markets.
type MarketplaceState struct {
	QuoteAssetID uint64           `json:"quote_asset_id"`
	Markets      []*FuturesMarket `json:"markets"`
}
