package events

import (
	"testing"

	"github.com/fermi-network/fermi/pkg/types"
)

func TestDrainReturnsEmittedEventsAndClearsBuffer(t *testing.T) {
	m := New()
	m.Reset()
	m.Emit(types.Event{Kind: "A"}, types.Event{Kind: "B"})

	got := m.Drain()
	if len(got) != 2 || got[0].Kind != "A" || got[1].Kind != "B" {
		t.Fatalf("unexpected drained events: %+v", got)
	}

	if got := m.Drain(); len(got) != 0 {
		t.Fatalf("expected empty buffer after drain, got %+v", got)
	}
}

func TestResetDiscardsPartiallyEmittedEvents(t *testing.T) {
	m := New()
	m.Emit(types.Event{Kind: "Leftover"})
	m.Reset()
	m.Emit(types.Event{Kind: "Fresh"})

	got := m.Drain()
	if len(got) != 1 || got[0].Kind != "Fresh" {
		t.Fatalf("expected only the post-reset event to survive, got %+v", got)
	}
}
