// Package spot implements escrowed spot trading: one order book per
// (base, quote) market, with resources escrowed into the controller's bank
// account before matching and released or settled as fills occur.
// Grounded on spec.md §4.5, following the escrow-then-settle idiom of
// pkg/app/core/apply_signed_tx.go in the teacher repo, generalized to the
// full escrow/refund accounting spec.md prescribes.
package spot

import (
	"sync"

	"github.com/fermi-network/fermi/pkg/engine/orderbook"
	"github.com/fermi-network/fermi/pkg/types"
)

// ControllerAccount is this controller's own bank-escrow address.
var ControllerAccount = types.Address{0xFF, 0x02}

type marketKey struct {
	base, quote uint64
}

// escrow tracks the still-held collateral behind one resting or in-flight
// order: Bid orders escrow Price*RemainingQty in quote; Ask orders escrow
// RemainingQty in base.
type escrow struct {
	Owner         types.Address
	Side          orderbook.Side
	Price         uint64
	RemainingQty  uint64
}

func (e *escrow) asset(baseAsset, quoteAsset uint64) (assetID uint64, amount uint64) {
	if e.Side == orderbook.Bid {
		return quoteAsset, e.Price * e.RemainingQty
	}
	return baseAsset, e.RemainingQty
}

// Controller is the spot trading state machine: one order book and one
// escrow ledger per market.
type Controller struct {
	mu      sync.Mutex
	bank    bankTransferer
	books   map[marketKey]*orderbook.Orderbook
	escrows map[uint64]*escrow // order id -> escrow
}

// bankTransferer is the subset of bank.Controller this package depends on,
// kept narrow so tests can substitute a fake ledger.
type bankTransferer interface {
	Transfer(sender, receiver types.Address, assetID, quantity uint64) error
	CreateAccount(addr types.Address) error
}

// InitializeControllerAccount opens this controller's bank account, which
// must exist before any non-primary-asset escrow can target it.
func (c *Controller) InitializeControllerAccount() error {
	return c.bank.CreateAccount(ControllerAccount)
}

// New returns a spot controller escrowing collateral into bankController.
func New(bankController bankTransferer) *Controller {
	return &Controller{
		bank:    bankController,
		books:   make(map[marketKey]*orderbook.Orderbook),
		escrows: make(map[uint64]*escrow),
	}
}

func (c *Controller) bookFor(base, quote uint64) *orderbook.Orderbook {
	key := marketKey{base, quote}
	ob, ok := c.books[key]
	if !ok {
		ob = orderbook.New(base, quote)
		c.books[key] = ob
	}
	return ob
}
