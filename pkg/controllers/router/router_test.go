package router

import (
	"testing"

	"github.com/fermi-network/fermi/pkg/controllers/bank"
	"github.com/fermi-network/fermi/pkg/controllers/futures"
	"github.com/fermi-network/fermi/pkg/controllers/spot"
	"github.com/fermi-network/fermi/pkg/controllers/stake"
	coreerrors "github.com/fermi-network/fermi/pkg/errors"
	"github.com/fermi-network/fermi/pkg/types"
)

func addr(b byte) types.Address {
	var a types.Address
	a[19] = b
	return a
}

func newHarness(t *testing.T) (*Router, *bank.Controller, types.Address) {
	t.Helper()
	bc := bank.New()
	sc := stake.New(bc)
	sp := spot.New(bc)
	fc := futures.New(bc)
	r := New(bc, sc, sp, fc)
	if err := r.InitializeControllerAccounts(); err != nil {
		t.Fatalf("initialize controller accounts: %v", err)
	}

	admin := addr(0xAD)
	if err := bc.CreateAsset(admin); err != nil { // asset 0: quote
		t.Fatalf("create quote asset: %v", err)
	}
	if err := bc.CreateAsset(admin); err != nil { // asset 1: base
		t.Fatalf("create base asset: %v", err)
	}
	return r, bc, admin
}

func tx(target types.ControllerType, requestType int32, sender types.Address, payload any) types.Transaction {
	b, err := types.EncodeRequest(payload)
	if err != nil {
		panic(err)
	}
	return types.Transaction{TargetController: target, RequestType: requestType, Sender: sender, RequestBytes: b}
}

func TestHandleDispatchesToBankController(t *testing.T) {
	r, bc, admin := newHarness(t)
	receiver := addr(1)

	_, err := r.Handle(tx(types.ControllerBank, bank.RequestPayment, admin, bank.PaymentRequest{
		Receiver: receiver, AssetID: 0, Quantity: 500,
	}))
	if err != nil {
		t.Fatalf("handle payment: %v", err)
	}

	bal, err := bc.GetBalance(receiver, 0)
	if err != nil || bal != 500 {
		t.Fatalf("expected receiver balance 500, got %d %v", bal, err)
	}
}

func TestHandleUnknownControllerFailsDeserialization(t *testing.T) {
	r, _, admin := newHarness(t)
	badTx := tx(types.ControllerType(99), 0, admin, struct{}{})
	if _, err := r.Handle(badTx); !coreerrors.Is(err, coreerrors.Deserialization) {
		t.Fatalf("expected Deserialization for unknown controller id, got %v", err)
	}
}

func TestHandleDiscardsEventsOnFailure(t *testing.T) {
	r, _, admin := newHarness(t)
	unfunded := addr(7)

	// A spot limit order the sender cannot afford must fail, and must not
	// leave any event behind for a subsequent successful call to inherit.
	if _, err := r.Handle(tx(types.ControllerSpot, spot.RequestLimitOrder, unfunded, spot.LimitOrderRequest{
		BaseAsset: 1, QuoteAsset: 0, Side: 0, Price: 100, Quantity: 10, OrderID: 1,
	})); err == nil {
		t.Fatalf("expected insufficient-balance failure")
	}

	// A successful payment right after should emit exactly its own event,
	// not anything left behind by the failed call above.
	evs, err := r.Handle(tx(types.ControllerBank, bank.RequestPayment, admin, bank.PaymentRequest{
		Receiver: addr(8), AssetID: 0, Quantity: 1,
	}))
	if err != nil {
		t.Fatalf("handle payment: %v", err)
	}
	if len(evs) != 1 {
		t.Fatalf("expected exactly the successful payment's own event, got %d", len(evs))
	}
}

func TestStakeRemainsUnreachableThroughRouter(t *testing.T) {
	r, _, admin := newHarness(t)
	if _, err := r.Handle(tx(types.ControllerStake, 0, admin, struct{}{})); !coreerrors.Is(err, coreerrors.InvalidRequestType) {
		t.Fatalf("expected InvalidRequestType, got %v", err)
	}
}

func TestCollectCatchupStateOnlyOnFrequencyBoundary(t *testing.T) {
	r, _, _ := newHarness(t)

	if _, collected, err := r.CollectCatchupState(1); err != nil || collected {
		t.Fatalf("expected no collection off the frequency boundary, collected=%v err=%v", collected, err)
	}

	snap, collected, err := r.CollectCatchupState(CatchupStateFrequency)
	if err != nil || !collected || len(snap) == 0 {
		t.Fatalf("expected a non-empty snapshot at the frequency boundary, collected=%v err=%v", collected, err)
	}
}

func TestLoadCatchupStateRoundTrip(t *testing.T) {
	r, bc, admin := newHarness(t)
	receiver := addr(2)
	if _, err := r.Handle(tx(types.ControllerBank, bank.RequestPayment, admin, bank.PaymentRequest{
		Receiver: receiver, AssetID: 0, Quantity: 250,
	})); err != nil {
		t.Fatalf("handle payment: %v", err)
	}

	snap, collected, err := r.CollectCatchupState(CatchupStateFrequency)
	if err != nil || !collected {
		t.Fatalf("collect catchup state: collected=%v err=%v", collected, err)
	}

	bc2 := bank.New()
	sc2 := stake.New(bc2)
	sp2 := spot.New(bc2)
	fc2 := futures.New(bc2)
	r2 := New(bc2, sc2, sp2, fc2)
	if err := r2.LoadCatchupState(snap); err != nil {
		t.Fatalf("load catchup state: %v", err)
	}

	bal, err := bc2.GetBalance(receiver, 0)
	if err != nil || bal != 250 {
		t.Fatalf("expected restored receiver balance 250, got %d %v", bal, err)
	}
}
