package validator

import (
	"testing"
	"time"

	"github.com/fermi-network/fermi/pkg/consensus"
	"github.com/fermi-network/fermi/pkg/crypto"
	"github.com/fermi-network/fermi/pkg/types"
)

func TestBridgeSubmitPrepareAndCommitRoundTrip(t *testing.T) {
	st, _, bc, admin := newHarness(t)
	signer, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	if err := bc.CreateAccount(signer.Address()); err != nil {
		t.Fatalf("create signer account: %v", err)
	}
	if err := bc.CreateAsset(signer.Address()); err != nil { // asset 1, funded to signer
		t.Fatalf("create asset for signer: %v", err)
	}

	var genesis types.Digest
	st.SeedBlockDigest(genesis)

	bridge := NewBridge(st, NewMempool())
	stx := signedPayment(t, signer, genesis, admin, 1, 250)
	if err := bridge.Submit(stx); err != nil {
		t.Fatalf("submit: %v", err)
	}

	parent := consensus.Block{}
	payload := bridge.PreparePayload(parent, 1)
	if len(payload) == 0 {
		t.Fatalf("expected non-empty proposal payload")
	}

	proposed := consensus.Block{Height: 1, View: 1, Payload: payload, Time: time.Now()}
	appHash := bridge.OnCommit(proposed)
	if appHash == (consensus.Hash{}) {
		t.Fatalf("expected non-zero AppHash after committing a real transaction")
	}

	if st.BlockNumber() != 1 {
		t.Fatalf("expected validator to have sealed block 1, got %d", st.BlockNumber())
	}
	bal, err := bc.GetBalance(admin, 1)
	if err != nil || bal != 250 {
		t.Fatalf("expected receiver balance 250, got %d %v", bal, err)
	}
}

func TestBridgePrepareDrainsMempoolFIFO(t *testing.T) {
	st, _, bc, admin := newHarness(t)
	signer, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	if err := bc.CreateAccount(signer.Address()); err != nil {
		t.Fatalf("create signer account: %v", err)
	}
	if err := bc.CreateAsset(signer.Address()); err != nil {
		t.Fatalf("create asset: %v", err)
	}

	var genesis types.Digest
	st.SeedBlockDigest(genesis)
	bridge := NewBridge(st, NewMempool())

	for i := 0; i < 3; i++ {
		stx := signedPayment(t, signer, genesis, admin, 1, 10)
		if err := bridge.Submit(stx); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	if bridge.mempool.Len() != 3 {
		t.Fatalf("expected 3 pending txs, got %d", bridge.mempool.Len())
	}

	payload := bridge.PreparePayload(consensus.Block{}, 1)
	if bridge.mempool.Len() != 0 {
		t.Fatalf("expected mempool drained after PreparePayload, got %d remaining", bridge.mempool.Len())
	}

	txs, err := decodeTxFrame(payload)
	if err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	if len(txs) != 3 {
		t.Fatalf("expected 3 transactions in payload, got %d", len(txs))
	}
}
