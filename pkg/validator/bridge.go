package validator

import (
	"encoding/binary"

	"github.com/fermi-network/fermi/pkg/consensus"
	"github.com/fermi-network/fermi/pkg/types"
)

// maxProposalBytes bounds how much of the mempool a single proposal
// drains, matching the teacher's abci.Bridge.PreparePayload MaxTxBytes.
const maxProposalBytes = 1 << 24

// Bridge adapts a validator State to consensus.AppHook, the narrow
// interface the HotStuff engine uses to pull pending transactions into a
// block and to execute a proposed block deterministically before voting.
// It is the typed, router-backed counterpart of the teacher's
// pkg/abci.Bridge, which shuttled opaque []byte transactions between the
// engine and an ABCI-shaped Application.
type Bridge struct {
	state   *State
	mempool *Mempool

	// OnSealed, if set, is called synchronously after every block this
	// validator seals — the typed counterpart of the teacher's
	// app.OnTrade/engine.OnBlockCommit callbacks, used to push block
	// updates out to pkg/api's WebSocket hub.
	OnSealed func(types.Block)
}

func NewBridge(state *State, mempool *Mempool) *Bridge {
	return &Bridge{state: state, mempool: mempool}
}

// PendingCount returns the number of transactions currently queued for
// the next proposal.
func (b *Bridge) PendingCount() int {
	return b.mempool.Len()
}

// Submit accepts a transaction from the outside world: it runs the
// pre-consensus ingress checks and, on success, enqueues it for the next
// proposal this validator or a peer leader builds.
func (b *Bridge) Submit(stx types.SignedTransaction) error {
	if err := b.state.HandlePreConsensusTransaction(stx); err != nil {
		return err
	}
	b.mempool.Push(stx)
	return nil
}

// PreparePayload drains the mempool into a length-prefixed frame of
// serialized signed transactions, the consensus.Block.Payload the engine
// broadcasts to followers.
func (b *Bridge) PreparePayload(_ consensus.Block, _ consensus.Height) []byte {
	txs := b.mempool.SelectForProposal(maxProposalBytes)
	return encodeTxFrame(txs)
}

// OnCommit executes every transaction in a proposed block's payload
// through the router, then seals the block into the critical_path_store.
// Every validator calls this deterministically before voting (see
// consensus.Engine.onPropose), so by the time votes are exchanged every
// honest validator has already produced and persisted the same block.
//
// The committed block's own consensus hash stands in for the certificate
// digest SealBlock expects: no Certificate exists yet at this point in the
// HotStuff round (it is only formed after votes are collected), and the
// block hash already uniquely identifies what this round will certify.
func (b *Bridge) OnCommit(committed consensus.Block) consensus.Hash {
	txs, err := decodeTxFrame(committed.Payload)
	if err != nil {
		return consensus.Hash{}
	}
	for _, stx := range txs {
		b.state.ExecuteTransaction(stx)
	}

	certDigest := types.Digest(consensus.HashOfBlock(committed))
	sealed, err := b.state.SealBlock(certDigest, committed.Time.UnixMilli())
	if err != nil {
		return consensus.Hash{}
	}
	if b.OnSealed != nil {
		b.OnSealed(sealed)
	}
	return consensus.Hash(sealed.Digest())
}

func encodeTxFrame(txs []types.SignedTransaction) []byte {
	var out []byte
	for _, stx := range txs {
		b, err := stx.Serialize()
		if err != nil {
			continue
		}
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b)))
		out = append(out, lenBuf[:]...)
		out = append(out, b...)
	}
	return out
}

func decodeTxFrame(payload []byte) ([]types.SignedTransaction, error) {
	var out []types.SignedTransaction
	for len(payload) > 0 {
		if len(payload) < 4 {
			break
		}
		n := binary.BigEndian.Uint32(payload[:4])
		payload = payload[4:]
		if uint32(len(payload)) < n {
			break
		}
		stx, err := types.DeserializeSignedTransaction(payload[:n])
		if err != nil {
			return nil, err
		}
		out = append(out, stx)
		payload = payload[n:]
	}
	return out, nil
}
