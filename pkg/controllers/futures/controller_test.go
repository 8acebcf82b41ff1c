package futures

import (
	"testing"

	"github.com/fermi-network/fermi/pkg/controllers/bank"
	"github.com/fermi-network/fermi/pkg/engine/orderbook"
	coreerrors "github.com/fermi-network/fermi/pkg/errors"
	"github.com/fermi-network/fermi/pkg/types"
)

func addr(b byte) types.Address {
	var a types.Address
	a[19] = b
	return a
}

func newHarness(t *testing.T) (*bank.Controller, *Controller, types.Address) {
	t.Helper()
	bc := bank.New()
	fc := New(bc)
	if err := fc.InitializeControllerAccount(); err != nil {
		t.Fatalf("initialize controller account: %v", err)
	}
	admin := addr(0xAD)
	if err := bc.CreateAsset(admin); err != nil { // asset 0: quote
		t.Fatalf("create quote asset: %v", err)
	}
	if err := bc.CreateAsset(admin); err != nil { // asset 1: base
		t.Fatalf("create base asset: %v", err)
	}
	if err := fc.CreateMarketplace(admin, CreateMarketplaceRequest{QuoteAssetID: 0}); err != nil {
		t.Fatalf("create marketplace: %v", err)
	}
	if err := fc.CreateMarket(admin, CreateMarketRequest{BaseAssetID: 1}); err != nil {
		t.Fatalf("create market: %v", err)
	}
	return bc, fc, admin
}

func fundAndDeposit(t *testing.T, bc *bank.Controller, fc *Controller, admin, user types.Address, quantity uint64) {
	t.Helper()
	if err := bc.Transfer(admin, user, 0, quantity); err != nil {
		t.Fatalf("fund user: %v", err)
	}
	if err := fc.AccountDeposit(user, AccountDepositRequest{MarketAdmin: admin, Quantity: quantity}); err != nil {
		t.Fatalf("deposit: %v", err)
	}
}

func TestCreateMarketplaceRejectsDuplicateAdmin(t *testing.T) {
	_, fc, admin := newHarness(t)
	if err := fc.CreateMarketplace(admin, CreateMarketplaceRequest{QuoteAssetID: 0}); !coreerrors.Is(err, coreerrors.MarketplaceExistence) {
		t.Fatalf("expected MarketplaceExistence, got %v", err)
	}
}

func TestCreateMarketRejectsDuplicateBaseAsset(t *testing.T) {
	_, fc, admin := newHarness(t)
	if err := fc.CreateMarket(admin, CreateMarketRequest{BaseAssetID: 1}); !coreerrors.Is(err, coreerrors.MarketExistence) {
		t.Fatalf("expected MarketExistence, got %v", err)
	}
}

func TestUpdateMarketParamsCannotLowerLeverage(t *testing.T) {
	_, fc, admin := newHarness(t)
	if err := fc.UpdateMarketParams(admin, UpdateMarketParamsRequest{BaseAssetID: 1, MaxLeverage: DefaultMaxLeverage - 1}); !coreerrors.Is(err, coreerrors.FuturesUpdate) {
		t.Fatalf("expected FuturesUpdate, got %v", err)
	}
	if err := fc.UpdateMarketParams(admin, UpdateMarketParamsRequest{BaseAssetID: 1, MaxLeverage: DefaultMaxLeverage + 1}); err != nil {
		t.Fatalf("raising leverage should succeed: %v", err)
	}
}

func TestAccountDepositIncrementsLedger(t *testing.T) {
	bc, fc, admin := newHarness(t)
	user := addr(1)
	fundAndDeposit(t, bc, fc, admin, user, 1000)
	fundAndDeposit(t, bc, fc, admin, user, 500)

	avail, err := fc.GetAccountAvailableDeposit(admin, user)
	if err != nil {
		t.Fatalf("available deposit: %v", err)
	}
	if avail != 1500 {
		t.Fatalf("expected deposit ledger to accumulate to 1500, got %d", avail)
	}
}

func TestFuturesLimitOrderRequiresCollateral(t *testing.T) {
	_, fc, admin := newHarness(t)
	user := addr(1)
	// no deposit on file at all
	_, err := fc.FuturesLimitOrder(user, FuturesLimitOrderRequest{
		MarketAdmin: admin, BaseAssetID: 1, OrderID: 1, Side: orderbook.Bid, Price: 100, Quantity: 10,
	})
	if !coreerrors.Is(err, coreerrors.AccountLookup) {
		t.Fatalf("expected AccountLookup for undeposited account, got %v", err)
	}
}

func TestFuturesLimitOrderMatchesAndUpdatesPositions(t *testing.T) {
	bc, fc, admin := newHarness(t)
	maker := addr(1)
	taker := addr(2)
	fundAndDeposit(t, bc, fc, admin, maker, 100_000)
	fundAndDeposit(t, bc, fc, admin, taker, 100_000)

	if err := fc.UpdatePrices(admin, UpdatePricesRequest{LatestPrices: []uint64{100}}); err != nil {
		t.Fatalf("update prices: %v", err)
	}

	if _, err := fc.FuturesLimitOrder(maker, FuturesLimitOrderRequest{
		MarketAdmin: admin, BaseAssetID: 1, OrderID: 1, Side: orderbook.Ask, Price: 100, Quantity: 5,
	}); err != nil {
		t.Fatalf("maker order: %v", err)
	}

	if _, err := fc.FuturesLimitOrder(taker, FuturesLimitOrderRequest{
		MarketAdmin: admin, BaseAssetID: 1, OrderID: 2, Side: orderbook.Bid, Price: 100, Quantity: 5,
	}); err != nil {
		t.Fatalf("taker order: %v", err)
	}

	state, err := fc.GetAccountStateByMarket(admin, taker)
	if err != nil {
		t.Fatalf("account state: %v", err)
	}
	if len(state) != 1 || state[0].Position == nil || state[0].Position.Quantity != 5 {
		t.Fatalf("expected taker to hold a 5-quantity position, got %+v", state)
	}
	if state[0].Position.Side != orderbook.Bid {
		t.Fatalf("expected taker position side Bid, got %v", state[0].Position.Side)
	}
}

func TestAccountWithdrawRespectsRequiredCollateral(t *testing.T) {
	bc, fc, admin := newHarness(t)
	user := addr(1)
	fundAndDeposit(t, bc, fc, admin, user, 1000)

	if err := fc.AccountWithdraw(user, AccountWithdrawalRequest{MarketAdmin: admin, Quantity: 1000}); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	avail, err := fc.GetAccountAvailableDeposit(admin, user)
	if err != nil || avail != 0 {
		t.Fatalf("expected zero deposit remaining, got %d %v", avail, err)
	}
	if err := fc.AccountWithdraw(user, AccountWithdrawalRequest{MarketAdmin: admin, Quantity: 1}); !coreerrors.Is(err, coreerrors.FuturesWithdrawal) {
		t.Fatalf("expected FuturesWithdrawal on over-withdraw, got %v", err)
	}
}

func TestCatchupStateRoundTrip(t *testing.T) {
	bc, fc, admin := newHarness(t)
	maker := addr(1)
	fundAndDeposit(t, bc, fc, admin, maker, 100_000)

	if _, err := fc.FuturesLimitOrder(maker, FuturesLimitOrderRequest{
		MarketAdmin: admin, BaseAssetID: 1, OrderID: 1, Side: orderbook.Ask, Price: 100, Quantity: 5,
	}); err != nil {
		t.Fatalf("maker order: %v", err)
	}

	snap, err := fc.CatchupState()
	if err != nil {
		t.Fatalf("catchup state: %v", err)
	}

	restored := New(bc)
	if err := restored.LoadCatchupState(snap); err != nil {
		t.Fatalf("load catchup state: %v", err)
	}

	avail, err := restored.GetAccountAvailableDeposit(admin, maker)
	if err != nil {
		t.Fatalf("available deposit after restore: %v", err)
	}
	// 100000 deposited, minus 100*5/20+1 = 26 collateral held for the resting ask.
	if avail != 99_974 {
		t.Fatalf("expected available deposit 99974 after restore, got %d", avail)
	}

	mp, ok := restored.marketplaces[admin]
	if !ok {
		t.Fatalf("expected marketplace restored")
	}
	if _, found := mp.Markets[1].Book.BestAsk(); !found {
		t.Fatalf("expected restored market to have the resting ask")
	}
}
