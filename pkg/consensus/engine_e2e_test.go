package consensus_test

import (
	"context"
	"testing"
	"time"

	"github.com/fermi-network/fermi/pkg/consensus"
	"github.com/fermi-network/fermi/pkg/crypto"
	"github.com/fermi-network/fermi/pkg/p2p"
	"github.com/fermi-network/fermi/pkg/storage"
	"github.com/fermi-network/fermi/pkg/util"
)

// nopHook is the smallest possible AppHook: it proposes a fixed payload and
// hashes the committed block's fields together, enough to exercise the
// HotStuff round trip without depending on any execution layer.
type nopHook struct {
	proposed []byte
}

func (h *nopHook) PreparePayload(parent consensus.Block, next consensus.Height) []byte {
	return h.proposed
}
func (h *nopHook) OnCommit(committed consensus.Block) consensus.Hash {
	return consensus.HashOfBlock(committed)
}

// TestFourValidators is an in-memory simulation of 4 validators running
// HotStuff consensus to the minimum viable BFT quorum (N=4, f=1, 2f+1=3
// votes needed).
func TestFourValidators(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ids := []consensus.NodeID{"val1", "val2", "val3", "val4"}

	engines := make([]*consensus.Engine, 4)
	networks := make([]*p2p.Libp2pNet, 4)

	for i, id := range ids {
		hook := &nopHook{}
		if i == 0 {
			hook.proposed = []byte("tx1")
		}

		state := &consensus.State{
			Q:       consensus.Quorum{N: 4, T: 1},
			SelfID:  id,
			Blocks:  make(map[consensus.Hash]consensus.Block),
			Genesis: consensus.GenesisBlock(),
		}
		safety := consensus.NewSafety(state)
		pm := consensus.NewPacemaker(
			consensus.PacemakerTimers{Ppc: 50 * time.Millisecond, Delta: 50 * time.Millisecond},
			util.RealClock{},
			state,
		)

		net, err := p2p.NewLibp2pNet(ctx, p2p.Libp2pConfig{
			ListenAddr: "",
			Bootstrap:  []string{},
			SelfID:     id,
			Quorum:     state.Q,
			Logger:     nil,
		})
		if err != nil {
			t.Fatalf("val%d: libp2p init failed: %v", i+1, err)
		}
		networks[i] = net

		elec := consensus.RoundRobinElector{IDs: []consensus.NodeID{"val1"}}
		signer := crypto.DummySigner{}

		engine := consensus.NewEngine(state, safety, pm, hook, net, elec, signer)
		engine.Store = storage.NewInMemoryBlockStore()
		engines[i] = engine
	}

	for i := 0; i < 4; i++ {
		for j := i + 1; j < 4; j++ {
			networks[i].Host().Peerstore().AddAddrs(networks[j].Host().ID(), networks[j].Host().Addrs(), time.Hour)
			networks[j].Host().Peerstore().AddAddrs(networks[i].Host().ID(), networks[i].Host().Addrs(), time.Hour)

			if err := networks[i].Host().Connect(ctx, networks[j].Host().Peerstore().PeerInfo(networks[j].Host().ID())); err != nil {
				t.Logf("warn: connecting val%d <-> val%d: %v", i+1, j+1, err)
			}
		}
	}

	time.Sleep(200 * time.Millisecond)

	for i := 0; i < 4; i++ {
		i := i
		go func() {
			if err := engines[i].Run(ctx); err != nil && ctx.Err() == nil {
				t.Logf("val%d: engine error: %v", i+1, err)
			}
		}()
	}

	deadline := time.After(5 * time.Second)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

loop:
	for {
		select {
		case <-deadline:
			t.Fatal("timeout waiting for consensus")
		case <-ticker.C:
			allReady := true
			for _, e := range engines {
				if e.State.Height < 1 {
					allReady = false
					break
				}
			}
			if allReady {
				cancel()
				time.Sleep(100 * time.Millisecond)
				break loop
			}
		}
	}

	for i, engine := range engines {
		if engine.State.Height < 1 {
			t.Errorf("val%d: expected height>=1, got %d", i+1, engine.State.Height)
		}
	}

	var commitHash consensus.Hash
	for i := 0; i < 4; i++ {
		h, ok := engines[i].Store.GetCommitted()
		if !ok {
			t.Errorf("val%d: no committed block", i+1)
			continue
		}
		if i == 0 {
			commitHash = h
		} else if h != commitHash {
			t.Errorf("val%d: committed hash mismatch: got %x, want %x", i+1, h[:8], commitHash[:8])
		}
	}
}
