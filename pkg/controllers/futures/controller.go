package futures

import (
	"sync"

	"github.com/fermi-network/fermi/pkg/controllers/bank"
	"github.com/fermi-network/fermi/pkg/engine/orderbook"
	coreerrors "github.com/fermi-network/fermi/pkg/errors"
	"github.com/fermi-network/fermi/pkg/types"
)

// Request type discriminants dispatched by Handle when
// TargetController == ControllerFutures.
const (
	RequestCreateMarketplace  int32 = 0
	RequestCreateMarket       int32 = 1
	RequestUpdateMarketParams int32 = 2
	RequestUpdateTime         int32 = 3
	RequestUpdatePrices       int32 = 4
	RequestAccountDeposit     int32 = 5
	RequestAccountWithdrawal  int32 = 6
	RequestFuturesLimitOrder  int32 = 7
)

// ControllerAccount is this controller's own bank-escrow address.
var ControllerAccount = types.Address{0xFF, 0x04}

// Controller is the futures state machine: every admin-created marketplace
// plus the bank escrow they deposit into.
type Controller struct {
	mu           sync.RWMutex
	bank         *bank.Controller
	marketplaces map[types.Address]*Marketplace
}

// New returns a futures controller escrowing collateral into bankController.
func New(bankController *bank.Controller) *Controller {
	return &Controller{bank: bankController, marketplaces: make(map[types.Address]*Marketplace)}
}

// InitializeControllerAccount opens this controller's bank escrow account.
func (c *Controller) InitializeControllerAccount() error {
	return c.bank.CreateAccount(ControllerAccount)
}

// --- request payloads (controller-scoped, JSON-encoded in request_bytes) ---

type CreateMarketplaceRequest struct {
	QuoteAssetID uint64 `json:"quote_asset_id"`
}

type CreateMarketRequest struct {
	BaseAssetID uint64 `json:"base_asset_id"`
}

type UpdateMarketParamsRequest struct {
	BaseAssetID uint64 `json:"base_asset_id"`
	MaxLeverage uint64 `json:"max_leverage"`
}

type UpdateTimeRequest struct {
	LatestTime uint64 `json:"latest_time"`
}

type UpdatePricesRequest struct {
	LatestPrices []uint64 `json:"latest_prices"`
}

type AccountDepositRequest struct {
	MarketAdmin types.Address `json:"market_admin"`
	Quantity    uint64        `json:"quantity"`
}

type AccountWithdrawalRequest struct {
	MarketAdmin types.Address `json:"market_admin"`
	Quantity    uint64        `json:"quantity"`
}

type FuturesLimitOrderRequest struct {
	MarketAdmin types.Address  `json:"market_admin"`
	BaseAssetID uint64         `json:"base_asset_id"`
	OrderID     uint64         `json:"order_id"`
	Side        orderbook.Side `json:"side"`
	Price       uint64         `json:"price"`
	Quantity    uint64         `json:"quantity"`
}

// Handle dispatches a futures-targeted transaction to the matching
// operation, mirroring handle_consensus_transaction's match arms.
func (c *Controller) Handle(tx types.Transaction) ([]types.Event, error) {
	sender := tx.Sender
	switch tx.RequestType {
	case RequestCreateMarketplace:
		var req CreateMarketplaceRequest
		if err := types.DecodeRequest(tx.RequestBytes, &req); err != nil {
			return nil, err
		}
		return nil, c.CreateMarketplace(sender, req)
	case RequestCreateMarket:
		var req CreateMarketRequest
		if err := types.DecodeRequest(tx.RequestBytes, &req); err != nil {
			return nil, err
		}
		return nil, c.CreateMarket(sender, req)
	case RequestUpdateMarketParams:
		var req UpdateMarketParamsRequest
		if err := types.DecodeRequest(tx.RequestBytes, &req); err != nil {
			return nil, err
		}
		return nil, c.UpdateMarketParams(sender, req)
	case RequestUpdateTime:
		var req UpdateTimeRequest
		if err := types.DecodeRequest(tx.RequestBytes, &req); err != nil {
			return nil, err
		}
		return nil, c.UpdateTime(sender, req)
	case RequestUpdatePrices:
		var req UpdatePricesRequest
		if err := types.DecodeRequest(tx.RequestBytes, &req); err != nil {
			return nil, err
		}
		return nil, c.UpdatePrices(sender, req)
	case RequestAccountDeposit:
		var req AccountDepositRequest
		if err := types.DecodeRequest(tx.RequestBytes, &req); err != nil {
			return nil, err
		}
		return nil, c.AccountDeposit(sender, req)
	case RequestAccountWithdrawal:
		var req AccountWithdrawalRequest
		if err := types.DecodeRequest(tx.RequestBytes, &req); err != nil {
			return nil, err
		}
		return nil, c.AccountWithdraw(sender, req)
	case RequestFuturesLimitOrder:
		var req FuturesLimitOrderRequest
		if err := types.DecodeRequest(tx.RequestBytes, &req); err != nil {
			return nil, err
		}
		return c.FuturesLimitOrder(sender, req)
	default:
		return nil, coreerrors.New(coreerrors.InvalidRequestType)
	}
}

// CreateMarketplace registers sender as the admin of a new marketplace
// quoted in req.QuoteAssetID. Fails MarketplaceExistence on duplicate admin,
// or FuturesInitialization if sender is this controller's own account.
func (c *Controller) CreateMarketplace(admin types.Address, req CreateMarketplaceRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.marketplaces[admin]; exists {
		return coreerrors.New(coreerrors.MarketplaceExistence)
	}
	if admin == ControllerAccount {
		return coreerrors.New(coreerrors.FuturesInitialization)
	}
	c.marketplaces[admin] = newMarketplace(req.QuoteAssetID)
	return nil
}

// CreateMarket opens a new base-asset market inside admin's marketplace.
// Fails MarketExistence on duplicate base asset.
func (c *Controller) CreateMarket(admin types.Address, req CreateMarketRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	mp, ok := c.marketplaces[admin]
	if !ok {
		return coreerrors.New(coreerrors.MarketplaceExistence)
	}
	if _, exists := mp.Markets[req.BaseAssetID]; exists {
		return coreerrors.New(coreerrors.MarketExistence)
	}
	mp.Markets[req.BaseAssetID] = newFuturesMarket(req.BaseAssetID, mp.QuoteAssetID)
	return nil
}

// UpdateMarketParams raises (never lowers) a market's max leverage.
func (c *Controller) UpdateMarketParams(admin types.Address, req UpdateMarketParamsRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	mp, ok := c.marketplaces[admin]
	if !ok {
		return coreerrors.New(coreerrors.MarketplaceExistence)
	}
	market, ok := mp.Markets[req.BaseAssetID]
	if !ok {
		return coreerrors.New(coreerrors.MarketExistence)
	}
	if market.MaxLeverage > req.MaxLeverage {
		return coreerrors.New(coreerrors.FuturesUpdate)
	}
	market.MaxLeverage = req.MaxLeverage
	return nil
}

// UpdateTime advances a marketplace's admin-fed clock.
func (c *Controller) UpdateTime(admin types.Address, req UpdateTimeRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	mp, ok := c.marketplaces[admin]
	if !ok {
		return coreerrors.New(coreerrors.MarketplaceExistence)
	}
	mp.LatestTime = req.LatestTime
	return nil
}

// UpdatePrices feeds one oracle price per market into admin's marketplace,
// in iteration order over the marketplace's market set. Fails MarketPrices
// if the price count does not match the number of markets in admin's
// marketplace.
func (c *Controller) UpdatePrices(admin types.Address, req UpdatePricesRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	mp, ok := c.marketplaces[admin]
	if !ok {
		return coreerrors.New(coreerrors.MarketplaceExistence)
	}
	if len(req.LatestPrices) != len(mp.Markets) {
		return coreerrors.New(coreerrors.MarketPrices)
	}
	counter := 0
	for _, market := range mp.Markets {
		market.OraclePrice = req.LatestPrices[counter]
		counter++
	}
	return nil
}

// AccountDeposit escrows req.Quantity of admin's marketplace's quote asset
// from sender into the controller's bank account and increments sender's
// marketplace deposit ledger.
func (c *Controller) AccountDeposit(sender types.Address, req AccountDepositRequest) error {
	c.mu.RLock()
	mp, ok := c.marketplaces[req.MarketAdmin]
	c.mu.RUnlock()
	if !ok {
		return coreerrors.New(coreerrors.MarketplaceExistence)
	}

	if err := c.bank.Transfer(sender, ControllerAccount, mp.QuoteAssetID, req.Quantity); err != nil {
		return err
	}

	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.Deposits[sender] += int64(req.Quantity)
	return nil
}

// AccountWithdraw releases req.Quantity of collateral back to sender,
// failing FuturesWithdrawal if doing so would leave the account under its
// total required collateral across every market.
func (c *Controller) AccountWithdraw(sender types.Address, req AccountWithdrawalRequest) error {
	c.mu.RLock()
	mp, ok := c.marketplaces[req.MarketAdmin]
	c.mu.RUnlock()
	if !ok {
		return coreerrors.New(coreerrors.MarketplaceExistence)
	}

	mp.mu.Lock()
	reqCollateral := int64(getAccountTotalReqCollateral(mp, sender, nil))
	unrealizedPnL := getAccountUnrealizedPnL(mp, sender)
	deposit, ok := mp.Deposits[sender]
	if !ok {
		mp.mu.Unlock()
		return coreerrors.New(coreerrors.AccountLookup)
	}
	quantity := int64(req.Quantity)
	if deposit+unrealizedPnL-reqCollateral < quantity {
		mp.mu.Unlock()
		return coreerrors.New(coreerrors.FuturesWithdrawal)
	}
	mp.mu.Unlock()

	if err := c.bank.Transfer(ControllerAccount, sender, mp.QuoteAssetID, req.Quantity); err != nil {
		return err
	}

	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.Deposits[sender] -= quantity
	return nil
}

// FuturesLimitOrder validates sender's worst-case collateral for the
// incoming order against deposit + unrealized PnL, then submits it to the
// market's order book and applies every resulting fill/acceptance to
// per-account state.
func (c *Controller) FuturesLimitOrder(sender types.Address, req FuturesLimitOrderRequest) ([]types.Event, error) {
	c.mu.RLock()
	mp, ok := c.marketplaces[req.MarketAdmin]
	c.mu.RUnlock()
	if !ok {
		return nil, coreerrors.New(coreerrors.MarketplaceExistence)
	}

	mp.mu.Lock()
	defer mp.mu.Unlock()

	incoming := CondensedOrder{Side: req.Side, Quantity: req.Quantity, Price: req.Price, BaseAssetID: req.BaseAssetID}
	reqCollateral := int64(getAccountTotalReqCollateral(mp, sender, &incoming))
	unrealizedPnL := getAccountUnrealizedPnL(mp, sender)
	deposit, ok := mp.Deposits[sender]
	if !ok {
		return nil, coreerrors.New(coreerrors.AccountLookup)
	}
	if deposit+unrealizedPnL < reqCollateral {
		return nil, coreerrors.New(coreerrors.InsufficientCollateral)
	}

	market, ok := mp.Markets[req.BaseAssetID]
	if !ok {
		return nil, coreerrors.New(coreerrors.MarketExistence)
	}

	if err := market.setOrder(req.OrderID, sender); err != nil {
		return nil, err
	}

	steps := market.Book.Process(orderbook.Request{
		Kind:     orderbook.RequestLimit,
		Side:     req.Side,
		Price:    req.Price,
		Quantity: req.Quantity,
		OrderID:  req.OrderID,
	})

	var events []types.Event
	for _, step := range steps {
		if step.Err != nil {
			continue
		}
		s := step.Ok
		var owner types.Address
		if s.OrderID == req.OrderID {
			owner = sender
		} else if a, ok := market.OrderToAccount[s.OrderID]; ok {
			owner = a
		} else {
			continue
		}

		switch s.Kind {
		case orderbook.Accepted:
			market.updateStateOnLimitOrderCreation(owner, s.OrderID, s.Side, s.Price, s.Quantity)
		case orderbook.Filled, orderbook.PartiallyFilled:
			market.updateStateOnFill(mp, owner, s.OrderID, s.Side, s.Price, s.Quantity)
		}
	}
	return events, nil
}

// GetMarketplaceState returns a read-only snapshot of admin's marketplace.
func (c *Controller) GetMarketplaceState(admin types.Address) (MarketplaceState, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	mp, ok := c.marketplaces[admin]
	if !ok {
		return MarketplaceState{}, coreerrors.New(coreerrors.MarketplaceExistence)
	}
	mp.mu.RLock()
	defer mp.mu.RUnlock()
	return getMarketplaceState(mp), nil
}

// GetAccountStateByMarket returns account's open orders and position across
// every market of admin's marketplace.
func (c *Controller) GetAccountStateByMarket(admin, account types.Address) (AccountStateByMarket, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	mp, ok := c.marketplaces[admin]
	if !ok {
		return nil, coreerrors.New(coreerrors.MarketplaceExistence)
	}
	mp.mu.RLock()
	defer mp.mu.RUnlock()
	return getAccountStateByMarket(mp, account), nil
}

// GetAccountTotalReqCollateral returns account's total worst-case required
// collateral across admin's marketplace.
func (c *Controller) GetAccountTotalReqCollateral(admin, account types.Address) (uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	mp, ok := c.marketplaces[admin]
	if !ok {
		return 0, coreerrors.New(coreerrors.MarketplaceExistence)
	}
	mp.mu.RLock()
	defer mp.mu.RUnlock()
	return getAccountTotalReqCollateral(mp, account, nil), nil
}

// GetAccountUnrealizedPnL returns account's mark-to-market PnL across
// admin's marketplace.
func (c *Controller) GetAccountUnrealizedPnL(admin, account types.Address) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	mp, ok := c.marketplaces[admin]
	if !ok {
		return 0, coreerrors.New(coreerrors.MarketplaceExistence)
	}
	mp.mu.RLock()
	defer mp.mu.RUnlock()
	return getAccountUnrealizedPnL(mp, account), nil
}

// GetAccountAvailableDeposit returns account's deposit net of its total
// required collateral in admin's marketplace.
func (c *Controller) GetAccountAvailableDeposit(admin, account types.Address) (int64, error) {
	c.mu.RLock()
	mp, ok := c.marketplaces[admin]
	c.mu.RUnlock()
	if !ok {
		return 0, coreerrors.New(coreerrors.MarketplaceExistence)
	}
	mp.mu.RLock()
	defer mp.mu.RUnlock()
	deposit, ok := mp.Deposits[account]
	if !ok {
		return 0, coreerrors.New(coreerrors.AccountLookup)
	}
	return deposit - int64(getAccountTotalReqCollateral(mp, account, nil)), nil
}

// updateStateOnLimitOrderCreation records a newly accepted resting order
// against account's per-market bookkeeping.
func (m *FuturesMarket) updateStateOnLimitOrderCreation(account types.Address, orderID uint64, side orderbook.Side, price, quantity uint64) {
	acct := m.account(account)
	acct.OpenOrders = append(acct.OpenOrders, FuturesOrder{OrderID: orderID, Side: side, Price: price, Quantity: quantity})
}

// updateStateOnFill applies one matched fill to account's position, realized
// PnL (credited to its marketplace deposit), open interest, and open-order
// bookkeeping. Grounded on OrderBookWrapper::update_state_on_fill.
func (m *FuturesMarket) updateStateOnFill(mp *Marketplace, account types.Address, orderID uint64, side orderbook.Side, price, quantity uint64) {
	acct := m.account(account)
	m.LastTradedPrice = price

	newPosition := FuturesPosition{Side: side, Quantity: quantity, AveragePrice: price}

	if acct.Position != nil {
		old := *acct.Position
		resultant := combinePositions(old, newPosition)
		if resultant != nil && resultant.Quantity > old.Quantity {
			m.OpenInterest += newPosition.Quantity / 2
		} else {
			m.OpenInterest -= newPosition.Quantity / 2
		}
		mp.Deposits[account] += computeRealizedPnL(old, resultant, price)
		acct.Position = resultant
	} else {
		m.OpenInterest += newPosition.Quantity
		acct.Position = &newPosition
	}

	for i, o := range acct.OpenOrders {
		if o.OrderID == orderID {
			acct.OpenOrders[i].Quantity -= quantity
			if acct.OpenOrders[i].Quantity == 0 {
				acct.OpenOrders = append(acct.OpenOrders[:i], acct.OpenOrders[i+1:]...)
			}
			break
		}
	}
}
