// Package events implements the per-transaction event accumulator described
// in spec.md §4.7. Grounded on
// original_source/fermi-tenex-rs/controller/src/router.rs's
// event_manager.reset()/.emit() call sites framing
// handle_consensus_transaction.
package events

import "github.com/fermi-network/fermi/pkg/types"

// Manager buffers the events emitted while handling one transaction. It is
// not safe for concurrent use: the router that owns it must serialize
// transaction handling, matching the original's single Mutex-guarded
// EventManager.
type Manager struct {
	buf []types.Event
}

// New returns an empty Manager.
func New() *Manager {
	return &Manager{}
}

// Reset discards whatever is currently buffered. The router calls this at
// the start of every transaction: a handler that fails partway through may
// have already called Emit, and those events must not survive into the next
// transaction's result.
func (m *Manager) Reset() {
	m.buf = m.buf[:0]
}

// Emit appends events produced by a controller's handler.
func (m *Manager) Emit(evs ...types.Event) {
	m.buf = append(m.buf, evs...)
}

// Drain returns everything buffered since the last Reset and clears the
// buffer, matching the original's emit()-takes-ownership semantics.
func (m *Manager) Drain() []types.Event {
	out := m.buf
	m.buf = nil
	return out
}
