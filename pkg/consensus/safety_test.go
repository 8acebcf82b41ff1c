package consensus

import (
	"testing"
	"time"
)

func TestSafetyCanVote(t *testing.T) {
	st := &State{
		Q:       Quorum{N: 4, T: 1},
		SelfID:  NodeID("val1"),
		Blocks:  make(map[Hash]Block),
		Genesis: GenesisBlock(),
	}
	sf := NewSafety(st)

	blk := Block{Height: 1, View: 10, Time: time.Now()}
	h := HashOfBlock(blk)
	c10 := Certificate{View: 10, H: h}
	sf.UpdateLock(c10, blk)

	if sf.CanVote(Propose{HighCert: Certificate{View: 9}}) {
		t.Fatalf("expected CanVote=false for highcert=9 vs locked=10")
	}
	if !sf.CanVote(Propose{HighCert: Certificate{View: 10}}) {
		t.Fatalf("expected CanVote=true for highcert=10")
	}
	if !sf.CanVote(Propose{HighCert: Certificate{View: 11}}) {
		t.Fatalf("expected CanVote=true for highcert=11")
	}
}
