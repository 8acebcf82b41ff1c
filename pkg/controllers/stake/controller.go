// Package stake manages validator staking against the bank ledger.
// Grounded on original_source/rust-gdex/controller/src/stake/controller.rs.
package stake

import (
	"bytes"
	"encoding/gob"
	"sync"

	"github.com/fermi-network/fermi/pkg/controllers/bank"
	coreerrors "github.com/fermi-network/fermi/pkg/errors"
	"github.com/fermi-network/fermi/pkg/types"
)

// PrimaryAssetID is the chain's native staking asset.
const PrimaryAssetID uint64 = 0

// ControllerAccount is the bank-account address this controller escrows
// staked funds into. In the original this was a vanity pubkey; here it is
// a fixed reserved address (0xFF, 0x01, then zero bytes).
var ControllerAccount = types.Address{0xFF, 0x01}

// Account tracks one staker's total.
type Account struct {
	Owner  types.Address `json:"owner"`
	Staked uint64        `json:"staked"`
}

// Controller is the stake state machine. It has no router-dispatched
// request type: like the original, stake/unstake are invoked directly by
// validator bootstrap logic rather than routed from a signed transaction.
type Controller struct {
	mu       sync.RWMutex
	bank     *bank.Controller
	accounts map[types.Address]*Account
	total    uint64
}

// New returns a stake controller escrowing into bankController's ledger.
func New(bankController *bank.Controller) *Controller {
	return &Controller{
		bank:     bankController,
		accounts: make(map[types.Address]*Account),
	}
}

// InitializeControllerAccount opens this controller's bank account, which
// must exist before any stake/unstake transfer can target it.
func (c *Controller) InitializeControllerAccount() error {
	return c.bank.CreateAccount(ControllerAccount)
}

// Handle always fails InvalidRequestType: stake/unstake are not reachable
// through the signed-transaction router in the original implementation,
// only invoked directly by trusted validator-set management code.
func (c *Controller) Handle(_ types.Transaction) ([]types.Event, error) {
	return nil, coreerrors.New(coreerrors.InvalidRequestType)
}

func (c *Controller) createAccountLocked(addr types.Address) error {
	if _, ok := c.accounts[addr]; ok {
		return coreerrors.New(coreerrors.AccountCreation)
	}
	c.accounts[addr] = &Account{Owner: addr}
	return nil
}

// CreateAccount opens a zero-stake account for addr.
func (c *Controller) CreateAccount(addr types.Address) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.createAccountLocked(addr)
}

// GetStaked returns addr's staked total. Fails AccountLookup if unknown.
func (c *Controller) GetStaked(addr types.Address) (uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	acct, ok := c.accounts[addr]
	if !ok {
		return 0, coreerrors.New(coreerrors.AccountLookup)
	}
	return acct.Staked, nil
}

// Stake moves amount of the primary asset from addr into the controller's
// bank account and credits addr's stake total, opening the stake account on
// first use.
func (c *Controller) Stake(addr types.Address, amount uint64) error {
	if err := c.bank.Transfer(addr, ControllerAccount, PrimaryAssetID, amount); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.total += amount
	if acct, ok := c.accounts[addr]; ok {
		acct.Staked += amount
		return nil
	}
	c.accounts[addr] = &Account{Owner: addr, Staked: amount}
	return nil
}

// Unstake reverses Stake: returns amount from the controller's bank account
// to addr and debits addr's stake total.
func (c *Controller) Unstake(addr types.Address, amount uint64) error {
	c.mu.Lock()
	c.total -= amount
	c.mu.Unlock()

	if err := c.bank.Transfer(ControllerAccount, addr, PrimaryAssetID, amount); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	acct, ok := c.accounts[addr]
	if !ok {
		return coreerrors.New(coreerrors.AccountLookup)
	}
	acct.Staked -= amount
	return nil
}

// Accounts returns a snapshot copy of all stake accounts.
func (c *Controller) Accounts() map[types.Address]Account {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[types.Address]Account, len(c.accounts))
	for k, v := range c.accounts {
		out[k] = *v
	}
	return out
}

// TotalStaked returns the running total across all accounts.
func (c *Controller) TotalStaked() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.total
}

type catchupSnapshot struct {
	Accounts map[types.Address]*Account
	Total    uint64
}

// CatchupState snapshots the full controller state for distribution to
// catching-up validators.
func (c *Controller) CatchupState() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var buf bytes.Buffer
	snap := catchupSnapshot{Accounts: c.accounts, Total: c.total}
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
	c.accounts = snap.Accounts
	c.total = snap.Total
	return nil
}
