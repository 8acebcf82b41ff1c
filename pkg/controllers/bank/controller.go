// Package bank implements asset creation, balances, and transfers: the
// ledger every other controller escrows against. Grounded on
// original_source/rust-gdex/controller/src/bank/controller.rs.
package bank

import (
	"bytes"
	"encoding/gob"
	"sync"

	coreerrors "github.com/fermi-network/fermi/pkg/errors"
	"github.com/fermi-network/fermi/pkg/types"
)

// CreatedAssetBalance is minted to the caller of CreateAsset, matching the
// 10 billion unit / 6 decimal convention the original notes (e.g. ALGO).
const CreatedAssetBalance uint64 = 10_000_000_000_000_000

// Request type discriminants this controller dispatches on, carried in
// Transaction.RequestType when TargetController == ControllerBank.
const (
	RequestCreateAsset int32 = 0
	RequestPayment     int32 = 1
)

type modifier int

const (
	increment modifier = iota
	decrement
)

// Asset is a created token: its id and the account that minted it.
type Asset struct {
	AssetID     uint64        `json:"asset_id"`
	OwnerPubkey types.Address `json:"owner_pubkey"`
}

// Account holds one address's per-asset balances.
type Account struct {
	Owner    types.Address    `json:"owner"`
	Balances map[uint64]uint64 `json:"balances"`
}

func newAccount(owner types.Address) *Account {
	return &Account{Owner: owner, Balances: make(map[uint64]uint64)}
}

func (a *Account) balance(assetID uint64) uint64 {
	return a.Balances[assetID]
}

// Controller is the bank state machine: asset registry plus per-account
// balances. Every other controller escrows or mints through it.
type Controller struct {
	mu       sync.RWMutex
	accounts map[types.Address]*Account
	assets   map[uint64]Asset
	nAssets  uint64
}

// New returns an empty bank controller.
func New() *Controller {
	return &Controller{
		accounts: make(map[types.Address]*Account),
		assets:   make(map[uint64]Asset),
	}
}

// PaymentRequest is the controller-scoped payload of RequestPayment.
type PaymentRequest struct {
	Receiver types.Address `json:"receiver"`
	AssetID  uint64        `json:"asset_id"`
	Quantity uint64        `json:"quantity"`
}

// CreateAssetRequest is the (empty) controller-scoped payload of
// RequestCreateAsset.
type CreateAssetRequest struct{}

// PaymentSuccess is emitted on a successful transfer.
type PaymentSuccess struct {
	Sender   types.Address `json:"sender"`
	Receiver types.Address `json:"receiver"`
	AssetID  uint64        `json:"asset_id"`
	Quantity uint64        `json:"quantity"`
}

// Handle dispatches a bank-targeted transaction to create_asset or
// transfer, mirroring handle_consensus_transaction's match arms.
func (c *Controller) Handle(tx types.Transaction) ([]types.Event, error) {
	switch tx.RequestType {
	case RequestCreateAsset:
		if err := c.CreateAsset(tx.Sender); err != nil {
			return nil, err
		}
		return nil, nil
	case RequestPayment:
		var req PaymentRequest
		if err := types.DecodeRequest(tx.RequestBytes, &req); err != nil {
			return nil, err
		}
		if err := c.Transfer(tx.Sender, req.Receiver, req.AssetID, req.Quantity); err != nil {
			return nil, err
		}
		ev, err := types.NewEvent("PaymentSuccess", PaymentSuccess{
			Sender: tx.Sender, Receiver: req.Receiver, AssetID: req.AssetID, Quantity: req.Quantity,
		})
		if err != nil {
			return nil, err
		}
		return []types.Event{ev}, nil
	default:
		return nil, coreerrors.New(coreerrors.InvalidRequestType)
	}
}

// CheckAccountExists reports whether addr has a bank account.
func (c *Controller) CheckAccountExists(addr types.Address) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.accounts[addr]
	return ok
}

// CreateAccount opens a zero-balance bank account for addr. Fails
// AccountCreation on duplicate.
func (c *Controller) CreateAccount(addr types.Address) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.createAccountLocked(addr)
}

func (c *Controller) createAccountLocked(addr types.Address) error {
	if _, ok := c.accounts[addr]; ok {
		return coreerrors.New(coreerrors.AccountCreation)
	}
	c.accounts[addr] = newAccount(addr)
	return nil
}

// GetBalance returns addr's balance of assetID. Fails AccountLookup if the
// account does not exist.
func (c *Controller) GetBalance(addr types.Address, assetID uint64) (uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	acct, ok := c.accounts[addr]
	if !ok {
		return 0, coreerrors.New(coreerrors.AccountLookup)
	}
	return acct.balance(assetID), nil
}

func (c *Controller) updateBalanceLocked(addr types.Address, assetID, quantity uint64, m modifier) error {
	acct, ok := c.accounts[addr]
	if !ok {
		return coreerrors.New(coreerrors.AccountLookup)
	}
	current := acct.balance(assetID)
	if m == decrement {
		if quantity > current {
			return coreerrors.New(coreerrors.PaymentRequest)
		}
		acct.Balances[assetID] = current - quantity
		return nil
	}
	acct.Balances[assetID] = current + quantity
	return nil
}

// Transfer moves quantity of assetID from sender to receiver. Asset 0 is
// the primary asset: sending it to a never-before-seen receiver implicitly
// opens their account, matching genesis bootstrap semantics; any other
// asset requires the receiver to already have an account.
func (c *Controller) Transfer(sender, receiver types.Address, assetID, quantity uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	senderAcct, ok := c.accounts[sender]
	if !ok {
		return coreerrors.New(coreerrors.AccountLookup)
	}
	if senderAcct.balance(assetID) < quantity {
		return coreerrors.New(coreerrors.PaymentRequest)
	}

	if _, ok := c.accounts[receiver]; !ok {
		if assetID == 0 {
			if err := c.createAccountLocked(receiver); err != nil {
				return err
			}
		} else {
			return coreerrors.New(coreerrors.AccountLookup)
		}
	}

	if err := c.updateBalanceLocked(sender, assetID, quantity, decrement); err != nil {
		return err
	}
	return c.updateBalanceLocked(receiver, assetID, quantity, increment)
}

// CreateAsset mints CreatedAssetBalance of a freshly allocated asset id to
// owner. At genesis (n_assets == 0) the owner's account is auto-created;
// afterwards the owner must already hold a bank account.
func (c *Controller) CreateAsset(owner types.Address) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.nAssets == 0 {
		if _, ok := c.accounts[owner]; !ok {
			if err := c.createAccountLocked(owner); err != nil {
				return err
			}
		}
	}
	if _, ok := c.accounts[owner]; !ok {
		return coreerrors.New(coreerrors.AccountCreation)
	}

	assetID := c.nAssets
	c.assets[assetID] = Asset{AssetID: assetID, OwnerPubkey: owner}
	if err := c.updateBalanceLocked(owner, assetID, CreatedAssetBalance, increment); err != nil {
		return err
	}
	c.nAssets++
	return nil
}

// GetAsset looks up a created asset by id. Fails AssetLookup if unknown.
func (c *Controller) GetAsset(assetID uint64) (Asset, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.assets[assetID]
	if !ok {
		return Asset{}, coreerrors.New(coreerrors.AssetLookup)
	}
	return a, nil
}

// NumAssets returns the count of assets created so far.
func (c *Controller) NumAssets() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.nAssets
}

// catchupSnapshot is the gob-serializable form of the controller's state,
// mirroring create_catchup_state's bincode snapshot of the whole struct.
type catchupSnapshot struct {
	Accounts map[types.Address]*Account
	Assets   map[uint64]Asset
	NAssets  uint64
}

// CatchupState snapshots the full controller state for distribution to
// catching-up validators.
func (c *Controller) CatchupState() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var buf bytes.Buffer
	snap := catchupSnapshot{Accounts: c.accounts, Assets: c.assets, NAssets: c.nAssets}
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return nil, coreerrors.Wrap(coreerrors.Serialization, err)
	}
	return buf.Bytes(), nil
}

// LoadCatchupState restores controller state from a snapshot produced by
// CatchupState.
func (c *Controller) LoadCatchupState(data []byte) error {
	var snap catchupSnapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snap); err != nil {
		return coreerrors.Wrap(coreerrors.Deserialization, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if snap.Accounts == nil {
		snap.Accounts = make(map[types.Address]*Account)
	}
	if snap.Assets == nil {
		snap.Assets = make(map[uint64]Asset)
	}
	c.accounts = snap.Accounts
	c.assets = snap.Assets
	c.nAssets = snap.NAssets
	return nil
}
