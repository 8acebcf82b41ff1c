package spot

import (
	"testing"

	"github.com/fermi-network/fermi/pkg/controllers/bank"
	"github.com/fermi-network/fermi/pkg/engine/orderbook"
	coreerrors "github.com/fermi-network/fermi/pkg/errors"
	"github.com/fermi-network/fermi/pkg/types"
)

const (
	quoteAsset = 0
	baseAsset  = 1
)

func addr(b byte) types.Address {
	var a types.Address
	a[19] = b
	return a
}

func newHarness(t *testing.T) (*bank.Controller, *Controller, types.Address) {
	t.Helper()
	bc := bank.New()
	admin := addr(0xAD)
	if err := bc.CreateAsset(admin); err != nil { // asset 0: quote
		t.Fatalf("create quote asset: %v", err)
	}
	if err := bc.CreateAsset(admin); err != nil { // asset 1: base
		t.Fatalf("create base asset: %v", err)
	}
	sc := New(bc)
	if err := sc.InitializeControllerAccount(); err != nil {
		t.Fatalf("initialize controller account: %v", err)
	}
	return bc, sc, admin
}

func fund(t *testing.T, bc *bank.Controller, admin, user types.Address, assetID, quantity uint64) {
	t.Helper()
	// Only asset 0 opens a missing receiver account on transfer.
	if !bc.CheckAccountExists(user) {
		if err := bc.CreateAccount(user); err != nil {
			t.Fatalf("create user account: %v", err)
		}
	}
	if err := bc.Transfer(admin, user, assetID, quantity); err != nil {
		t.Fatalf("fund user: %v", err)
	}
}

func balance(t *testing.T, bc *bank.Controller, user types.Address, assetID uint64) uint64 {
	t.Helper()
	bal, err := bc.GetBalance(user, assetID)
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	return bal
}

func TestLimitOrderEscrowsOnPlacement(t *testing.T) {
	bc, sc, admin := newHarness(t)
	bidder := addr(1)
	fund(t, bc, admin, bidder, quoteAsset, 10_000)

	if _, err := sc.LimitOrder(bidder, LimitOrderRequest{
		BaseAsset: baseAsset, QuoteAsset: quoteAsset, Side: orderbook.Bid, Price: 100, Quantity: 10, OrderID: 1,
	}); err != nil {
		t.Fatalf("limit order: %v", err)
	}

	if bal := balance(t, bc, bidder, quoteAsset); bal != 9_000 {
		t.Fatalf("expected 1000 escrowed, balance = %d", bal)
	}
	if bal := balance(t, bc, ControllerAccount, quoteAsset); bal != 1_000 {
		t.Fatalf("expected controller to hold 1000 escrow, got %d", bal)
	}
}

func TestLimitOrderMatchRefundsTakerPriceImprovement(t *testing.T) {
	bc, sc, admin := newHarness(t)
	maker := addr(1)
	taker := addr(2)
	fund(t, bc, admin, maker, baseAsset, 100)
	fund(t, bc, admin, taker, quoteAsset, 10_000)

	// Maker asks 5 units at price 90.
	if _, err := sc.LimitOrder(maker, LimitOrderRequest{
		BaseAsset: baseAsset, QuoteAsset: quoteAsset, Side: orderbook.Ask, Price: 90, Quantity: 5, OrderID: 1,
	}); err != nil {
		t.Fatalf("maker order: %v", err)
	}

	// Taker bids 5 units at price 100: crosses, fills at the maker's price 90.
	if _, err := sc.LimitOrder(taker, LimitOrderRequest{
		BaseAsset: baseAsset, QuoteAsset: quoteAsset, Side: orderbook.Bid, Price: 100, Quantity: 5, OrderID: 2,
	}); err != nil {
		t.Fatalf("taker order: %v", err)
	}

	// Taker escrowed 500 (5*100), matched at 90: refund (100-90)*5 = 50, credit 5 base.
	if bal := balance(t, bc, taker, quoteAsset); bal != 10_000-500+50 {
		t.Fatalf("expected taker quote balance %d, got %d", 10_000-500+50, bal)
	}
	if bal := balance(t, bc, taker, baseAsset); bal != 5 {
		t.Fatalf("expected taker to hold 5 base units, got %d", bal)
	}

	// Maker settles at its own resting price: credited 5*90 quote, no refund.
	if bal := balance(t, bc, maker, quoteAsset); bal != 450 {
		t.Fatalf("expected maker quote balance 450, got %d", bal)
	}
	if bal := balance(t, bc, maker, baseAsset); bal != 95 {
		t.Fatalf("expected maker base balance 95, got %d", bal)
	}

	if bal := balance(t, bc, ControllerAccount, quoteAsset); bal != 0 {
		t.Fatalf("expected controller escrow fully released, got %d", bal)
	}
	if bal := balance(t, bc, ControllerAccount, baseAsset); bal != 0 {
		t.Fatalf("expected controller base escrow fully released, got %d", bal)
	}
}

func TestLimitOrderPartialFillKeepsRemainderEscrowed(t *testing.T) {
	bc, sc, admin := newHarness(t)
	maker := addr(1)
	taker := addr(2)
	fund(t, bc, admin, maker, baseAsset, 100)
	fund(t, bc, admin, taker, quoteAsset, 10_000)

	if _, err := sc.LimitOrder(maker, LimitOrderRequest{
		BaseAsset: baseAsset, QuoteAsset: quoteAsset, Side: orderbook.Ask, Price: 100, Quantity: 3, OrderID: 1,
	}); err != nil {
		t.Fatalf("maker order: %v", err)
	}

	if _, err := sc.LimitOrder(taker, LimitOrderRequest{
		BaseAsset: baseAsset, QuoteAsset: quoteAsset, Side: orderbook.Bid, Price: 100, Quantity: 10, OrderID: 2,
	}); err != nil {
		t.Fatalf("taker order: %v", err)
	}

	rec, ok := sc.escrows[2]
	if !ok {
		t.Fatalf("expected taker's unfilled remainder to stay escrowed")
	}
	if rec.RemainingQty != 7 {
		t.Fatalf("expected 7 units still resting, got %d", rec.RemainingQty)
	}
	if bal := balance(t, bc, ControllerAccount, quoteAsset); bal != 700 {
		t.Fatalf("expected 700 quote still escrowed for the resting remainder, got %d", bal)
	}
}

func TestCancelOrderReleasesEscrow(t *testing.T) {
	bc, sc, admin := newHarness(t)
	bidder := addr(1)
	fund(t, bc, admin, bidder, quoteAsset, 10_000)

	if _, err := sc.LimitOrder(bidder, LimitOrderRequest{
		BaseAsset: baseAsset, QuoteAsset: quoteAsset, Side: orderbook.Bid, Price: 100, Quantity: 10, OrderID: 1,
	}); err != nil {
		t.Fatalf("limit order: %v", err)
	}

	if _, err := sc.CancelOrder(bidder, CancelOrderRequest{
		BaseAsset: baseAsset, QuoteAsset: quoteAsset, Side: orderbook.Bid, OrderID: 1,
	}); err != nil {
		t.Fatalf("cancel order: %v", err)
	}

	if bal := balance(t, bc, bidder, quoteAsset); bal != 10_000 {
		t.Fatalf("expected full refund on cancel, got %d", bal)
	}
	if _, ok := sc.escrows[1]; ok {
		t.Fatalf("expected escrow record removed on cancel")
	}
}

func TestCancelOrderRejectsWrongOwner(t *testing.T) {
	bc, sc, admin := newHarness(t)
	bidder := addr(1)
	other := addr(2)
	fund(t, bc, admin, bidder, quoteAsset, 10_000)

	if _, err := sc.LimitOrder(bidder, LimitOrderRequest{
		BaseAsset: baseAsset, QuoteAsset: quoteAsset, Side: orderbook.Bid, Price: 100, Quantity: 10, OrderID: 1,
	}); err != nil {
		t.Fatalf("limit order: %v", err)
	}

	if _, err := sc.CancelOrder(other, CancelOrderRequest{
		BaseAsset: baseAsset, QuoteAsset: quoteAsset, Side: orderbook.Bid, OrderID: 1,
	}); !coreerrors.Is(err, coreerrors.OrderRequest) {
		t.Fatalf("expected OrderRequest for wrong owner, got %v", err)
	}
}

func TestUpdateOrderReEscrowsAtNewPrice(t *testing.T) {
	bc, sc, admin := newHarness(t)
	bidder := addr(1)
	fund(t, bc, admin, bidder, quoteAsset, 10_000)

	if _, err := sc.LimitOrder(bidder, LimitOrderRequest{
		BaseAsset: baseAsset, QuoteAsset: quoteAsset, Side: orderbook.Bid, Price: 100, Quantity: 10, OrderID: 1,
	}); err != nil {
		t.Fatalf("limit order: %v", err)
	}

	if _, err := sc.UpdateOrder(bidder, UpdateOrderRequest{
		BaseAsset: baseAsset, QuoteAsset: quoteAsset, Side: orderbook.Bid, OrderID: 1, Price: 120, Quantity: 10,
	}); err != nil {
		t.Fatalf("update order: %v", err)
	}

	if bal := balance(t, bc, bidder, quoteAsset); bal != 10_000-1_200 {
		t.Fatalf("expected re-escrow at new price, balance = %d", bal)
	}
	if rec, ok := sc.escrows[1]; !ok || rec.Price != 120 {
		t.Fatalf("expected escrow record updated to new price, got %+v", rec)
	}
}

func TestMarketOrderNoMatchSettlesNothing(t *testing.T) {
	bc, sc, admin := newHarness(t)
	taker := addr(1)
	fund(t, bc, admin, taker, quoteAsset, 10_000)

	events, err := sc.MarketOrder(taker, MarketOrderRequest{
		BaseAsset: baseAsset, QuoteAsset: quoteAsset, Side: orderbook.Bid, Quantity: 5, OrderID: 1,
	})
	if err != nil {
		t.Fatalf("market order: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected Accepted and NoMatch step events, got %d", len(events))
	}
	if bal := balance(t, bc, taker, quoteAsset); bal != 10_000 {
		t.Fatalf("expected no funds moved on an unmatched market order, got %d", bal)
	}
}

func TestMarketOrderMatchesAndDebitsTakerDirectly(t *testing.T) {
	bc, sc, admin := newHarness(t)
	maker := addr(1)
	taker := addr(2)
	fund(t, bc, admin, maker, baseAsset, 100)
	fund(t, bc, admin, taker, quoteAsset, 10_000)

	if _, err := sc.LimitOrder(maker, LimitOrderRequest{
		BaseAsset: baseAsset, QuoteAsset: quoteAsset, Side: orderbook.Ask, Price: 100, Quantity: 5, OrderID: 1,
	}); err != nil {
		t.Fatalf("maker order: %v", err)
	}

	if _, err := sc.MarketOrder(taker, MarketOrderRequest{
		BaseAsset: baseAsset, QuoteAsset: quoteAsset, Side: orderbook.Bid, Quantity: 5, OrderID: 2,
	}); err != nil {
		t.Fatalf("market order: %v", err)
	}

	if bal := balance(t, bc, taker, quoteAsset); bal != 10_000-500 {
		t.Fatalf("expected taker debited 500 quote, got %d", bal)
	}
	if bal := balance(t, bc, taker, baseAsset); bal != 5 {
		t.Fatalf("expected taker credited 5 base, got %d", bal)
	}
}

func TestLimitOrderInsufficientBalanceFails(t *testing.T) {
	bc, sc, admin := newHarness(t)
	bidder := addr(1)
	fund(t, bc, admin, bidder, quoteAsset, 50) // far short of 100*10 = 1000 required

	if _, err := sc.LimitOrder(bidder, LimitOrderRequest{
		BaseAsset: baseAsset, QuoteAsset: quoteAsset, Side: orderbook.Bid, Price: 100, Quantity: 10, OrderID: 1,
	}); !coreerrors.Is(err, coreerrors.PaymentRequest) {
		t.Fatalf("expected PaymentRequest on insufficient balance, got %v", err)
	}
}

func TestCatchupStateRoundTrip(t *testing.T) {
	bc, sc, admin := newHarness(t)
	bidder := addr(1)
	fund(t, bc, admin, bidder, quoteAsset, 10_000)

	if _, err := sc.LimitOrder(bidder, LimitOrderRequest{
		BaseAsset: baseAsset, QuoteAsset: quoteAsset, Side: orderbook.Bid, Price: 100, Quantity: 10, OrderID: 1,
	}); err != nil {
		t.Fatalf("limit order: %v", err)
	}

	snap, err := sc.CatchupState()
	if err != nil {
		t.Fatalf("catchup state: %v", err)
	}

	restored := New(bc)
	if err := restored.LoadCatchupState(snap); err != nil {
		t.Fatalf("load catchup state: %v", err)
	}

	rec, ok := restored.escrows[1]
	if !ok || rec.RemainingQty != 10 || rec.Price != 100 {
		t.Fatalf("expected restored escrow for order 1, got %+v", rec)
	}
	if _, found := restored.bookFor(baseAsset, quoteAsset).BestBid(); !found {
		t.Fatalf("expected restored book to have the resting bid")
	}
}

func TestLimitOrderRejectsDuplicateOrderID(t *testing.T) {
	bc, sc, admin := newHarness(t)
	bidder := addr(1)
	fund(t, bc, admin, bidder, quoteAsset, 10_000)

	if _, err := sc.LimitOrder(bidder, LimitOrderRequest{
		BaseAsset: baseAsset, QuoteAsset: quoteAsset, Side: orderbook.Bid, Price: 100, Quantity: 5, OrderID: 1,
	}); err != nil {
		t.Fatalf("first order: %v", err)
	}
	if _, err := sc.LimitOrder(bidder, LimitOrderRequest{
		BaseAsset: baseAsset, QuoteAsset: quoteAsset, Side: orderbook.Bid, Price: 100, Quantity: 5, OrderID: 1,
	}); !coreerrors.Is(err, coreerrors.OrderRequest) {
		t.Fatalf("expected OrderRequest on duplicate order id, got %v", err)
	}
}
