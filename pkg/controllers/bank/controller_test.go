package bank

import (
	"testing"

	coreerrors "github.com/fermi-network/fermi/pkg/errors"
	"github.com/fermi-network/fermi/pkg/types"
)

func addr(b byte) types.Address {
	var a types.Address
	a[19] = b
	return a
}

func TestCreateAndCheckAccounts(t *testing.T) {
	c := New()
	user := addr(1)
	if c.CheckAccountExists(user) {
		t.Fatalf("account should not exist yet")
	}
	if err := c.CreateAccount(user); err != nil {
		t.Fatalf("create account: %v", err)
	}
	if !c.CheckAccountExists(user) {
		t.Fatalf("account must exist")
	}
	if err := c.CreateAccount(user); !coreerrors.Is(err, coreerrors.AccountCreation) {
		t.Fatalf("expected AccountCreation on duplicate, got %v", err)
	}

	user1 := addr(2)
	if err := c.CreateAccount(user1); err != nil {
		t.Fatalf("create account1: %v", err)
	}
	if bal, err := c.GetBalance(user, 0); err != nil || bal != 0 {
		t.Fatalf("expected zero balance, got %d %v", bal, err)
	}

	unknown := addr(3)
	if _, err := c.GetBalance(unknown, 0); !coreerrors.Is(err, coreerrors.AccountLookup) {
		t.Fatalf("expected AccountLookup for unknown account, got %v", err)
	}
}

func TestCreateAssetAndTransfer(t *testing.T) {
	c := New()
	user := addr(1)
	if c.CheckAccountExists(user) {
		t.Fatalf("account should not exist")
	}
	if err := c.CreateAsset(user); err != nil {
		t.Fatalf("create asset: %v", err)
	}
	if !c.CheckAccountExists(user) {
		t.Fatalf("account should have been auto-created at genesis")
	}
	asset, err := c.GetAsset(0)
	if err != nil || asset.AssetID != 0 {
		t.Fatalf("expected asset 0, got %+v %v", asset, err)
	}
	if bal, _ := c.GetBalance(user, 0); bal != CreatedAssetBalance {
		t.Fatalf("expected CreatedAssetBalance, got %d", bal)
	}
	if c.NumAssets() != 1 {
		t.Fatalf("expected 1 asset, got %d", c.NumAssets())
	}

	user1 := addr(2)
	if err := c.CreateAsset(user1); !coreerrors.Is(err, coreerrors.AccountCreation) {
		t.Fatalf("expected AccountCreation for post-genesis asset creation by unknown account, got %v", err)
	}

	if err := c.CreateAsset(user); err != nil {
		t.Fatalf("create asset 2: %v", err)
	}
	if c.NumAssets() != 2 {
		t.Fatalf("expected 2 assets, got %d", c.NumAssets())
	}
}

func TestTransferInsufficientBalance(t *testing.T) {
	c := New()
	sender := addr(1)
	if err := c.CreateAsset(sender); err != nil {
		t.Fatalf("create asset: %v", err)
	}
	receiver := addr(2)
	if err := c.CreateAccount(receiver); err != nil {
		t.Fatalf("create account: %v", err)
	}
	if err := c.Transfer(sender, receiver, 0, CreatedAssetBalance+1); !coreerrors.Is(err, coreerrors.PaymentRequest) {
		t.Fatalf("expected PaymentRequest, got %v", err)
	}
	if err := c.Transfer(sender, receiver, 0, 10); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if bal, _ := c.GetBalance(receiver, 0); bal != 10 {
		t.Fatalf("expected receiver balance 10, got %d", bal)
	}
}

func TestTransferAssetZeroAutoCreatesReceiver(t *testing.T) {
	c := New()
	sender := addr(1)
	if err := c.CreateAsset(sender); err != nil {
		t.Fatalf("create asset: %v", err)
	}
	receiver := addr(2)
	if err := c.Transfer(sender, receiver, 0, 5); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if !c.CheckAccountExists(receiver) {
		t.Fatalf("receiver should be auto-created on asset 0 transfer")
	}
}

func TestTransferNonZeroAssetRequiresExistingReceiver(t *testing.T) {
	c := New()
	sender := addr(1)
	if err := c.CreateAsset(sender); err != nil {
		t.Fatalf("create asset: %v", err)
	}
	if err := c.CreateAsset(sender); err != nil {
		t.Fatalf("create asset 2: %v", err)
	}
	receiver := addr(2)
	if err := c.Transfer(sender, receiver, 1, 5); !coreerrors.Is(err, coreerrors.AccountLookup) {
		t.Fatalf("expected AccountLookup, got %v", err)
	}
}

func TestCatchupStateRoundTrip(t *testing.T) {
	c := New()
	for i := byte(1); i <= 5; i++ {
		// Only the genesis asset auto-opens its owner's account.
		if err := c.CreateAccount(addr(i)); err != nil {
			t.Fatalf("create account %d: %v", i, err)
		}
		if err := c.CreateAsset(addr(i)); err != nil {
			t.Fatalf("create asset %d: %v", i, err)
		}
	}
	snap, err := c.CatchupState()
	if err != nil {
		t.Fatalf("catchup state: %v", err)
	}

	restored := New()
	if err := restored.LoadCatchupState(snap); err != nil {
		t.Fatalf("load catchup state: %v", err)
	}
	if restored.NumAssets() != c.NumAssets() {
		t.Fatalf("expected %d assets after restore, got %d", c.NumAssets(), restored.NumAssets())
	}
	if bal, err := restored.GetBalance(addr(1), 0); err != nil || bal != CreatedAssetBalance {
		t.Fatalf("expected restored balance, got %d %v", bal, err)
	}
}
