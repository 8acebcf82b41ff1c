package futures

import (
	"bytes"
	"encoding/gob"

	"github.com/fermi-network/fermi/pkg/engine/orderbook"
	coreerrors "github.com/fermi-network/fermi/pkg/errors"
	"github.com/fermi-network/fermi/pkg/types"
)

// marketSnapshot is FuturesMarket's gob-serializable form: Book's resting
// orders replace the live *orderbook.Orderbook.
type marketSnapshot struct {
	OpenInterest    uint64
	LastTradedPrice uint64
	OraclePrice     uint64
	MaxLeverage     uint64
	BaseAssetID     uint64
	QuoteAssetID    uint64
	Accounts        map[types.Address]*FuturesAccount
	OrderToAccount  map[uint64]types.Address
	Orders          []*orderbook.Order
}

// marketplaceSnapshot is Marketplace's gob-serializable form.
type marketplaceSnapshot struct {
	Deposits     map[types.Address]int64
	QuoteAssetID uint64
	LatestTime   uint64
	Markets      map[uint64]marketSnapshot
}

type catchupSnapshot struct {
	Marketplaces map[types.Address]marketplaceSnapshot
}

// CatchupState snapshots every marketplace this controller manages,
// including each market's resting order book, for distribution to
// catching-up validators.
func (c *Controller) CatchupState() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := catchupSnapshot{Marketplaces: make(map[types.Address]marketplaceSnapshot, len(c.marketplaces))}
	for admin, mp := range c.marketplaces {
		mp.mu.RLock()
		mpSnap := marketplaceSnapshot{
			Deposits:     mp.Deposits,
			QuoteAssetID: mp.QuoteAssetID,
			LatestTime:   mp.LatestTime,
			Markets:      make(map[uint64]marketSnapshot, len(mp.Markets)),
		}
		for baseAssetID, m := range mp.Markets {
			mpSnap.Markets[baseAssetID] = marketSnapshot{
				OpenInterest: m.OpenInterest, LastTradedPrice: m.LastTradedPrice, OraclePrice: m.OraclePrice,
				MaxLeverage: m.MaxLeverage, BaseAssetID: m.BaseAssetID, QuoteAssetID: m.QuoteAssetID,
				Accounts: m.Accounts, OrderToAccount: m.OrderToAccount, Orders: m.Book.Snapshot(),
			}
		}
		mp.mu.RUnlock()
		snap.Marketplaces[admin] = mpSnap
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return nil, coreerrors.Wrap(coreerrors.Serialization, err)
	}
	return buf.Bytes(), nil
}

// LoadCatchupState restores controller state from a snapshot produced by
// CatchupState. The controller must be empty (a freshly constructed
// Controller, as during catch-up replay).
func (c *Controller) LoadCatchupState(data []byte) error {
	var snap catchupSnapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snap); err != nil {
		return coreerrors.Wrap(coreerrors.Deserialization, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.marketplaces = make(map[types.Address]*Marketplace, len(snap.Marketplaces))
	for admin, mpSnap := range snap.Marketplaces {
		mp := newMarketplace(mpSnap.QuoteAssetID)
		mp.LatestTime = mpSnap.LatestTime
		if mpSnap.Deposits != nil {
			mp.Deposits = mpSnap.Deposits
		}
		for baseAssetID, mSnap := range mpSnap.Markets {
			market := newFuturesMarket(mSnap.BaseAssetID, mSnap.QuoteAssetID)
			market.OpenInterest = mSnap.OpenInterest
			market.LastTradedPrice = mSnap.LastTradedPrice
			market.OraclePrice = mSnap.OraclePrice
			market.MaxLeverage = mSnap.MaxLeverage
			if mSnap.Accounts != nil {
				market.Accounts = mSnap.Accounts
			}
			if mSnap.OrderToAccount != nil {
				market.OrderToAccount = mSnap.OrderToAccount
			}
			market.Book.Restore(mSnap.Orders)
			mp.Markets[baseAssetID] = market
		}
		c.marketplaces[admin] = mp
	}
	return nil
}
