// Command sign-order builds, signs, and verifies a single spot limit-order
// transaction using the canonical Transaction envelope, as a worked example
// of what a wallet or trading client must do before submitting to a node's
// /api/v1/transactions endpoint.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fermi-network/fermi/pkg/controllers/spot"
	"github.com/fermi-network/fermi/pkg/crypto"
	"github.com/fermi-network/fermi/pkg/engine/orderbook"
	"github.com/fermi-network/fermi/pkg/types"
)

func main() {
	fmt.Println("Generating new keypair...")
	signer, err := crypto.GenerateKey()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Address: %s\n", signer.Address().Hex())
	fmt.Printf("Private Key: %s (KEEP SECRET!)\n\n", signer.PrivateKeyHex())

	req := spot.LimitOrderRequest{
		BaseAsset:  1,
		QuoteAsset: 0,
		Side:       orderbook.Bid,
		Price:      50_000,
		Quantity:   100,
		OrderID:    1,
	}
	payload, err := types.EncodeRequest(req)
	if err != nil {
		fmt.Printf("Error encoding request: %v\n", err)
		os.Exit(1)
	}

	tx := types.Transaction{
		Sender:           signer.Address(),
		TargetController: types.ControllerSpot,
		RequestType:      spot.RequestLimitOrder,
		RecentBlockHash:  types.Digest{}, // fetch the latest block digest from a node before submitting
		RequestBytes:     payload,
	}
	digest := tx.Digest()

	signature, err := signer.Sign(digest.Bytes())
	if err != nil {
		fmt.Printf("Error signing: %v\n", err)
		os.Exit(1)
	}
	stx := types.SignedTransaction{Transaction: tx, Signature: signature}

	fmt.Println("Order Details:")
	fmt.Printf("  Base asset: %d\n", req.BaseAsset)
	fmt.Printf("  Quote asset: %d\n", req.QuoteAsset)
	fmt.Printf("  Side: %d\n", req.Side)
	fmt.Printf("  Price: %d\n", req.Price)
	fmt.Printf("  Quantity: %d\n\n", req.Quantity)

	fmt.Println("Verifying signature...")
	if !crypto.VerifySignature(tx.Sender, digest.Bytes(), signature) {
		fmt.Println("✗ Signature INVALID")
		os.Exit(1)
	}
	fmt.Println("✓ Signature VALID")

	wire, err := json.MarshalIndent(stx, "", "  ")
	if err != nil {
		fmt.Printf("Error marshaling JSON: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\nSigned Transaction (JSON):")
	fmt.Println(string(wire))
}
