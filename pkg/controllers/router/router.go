// Package router implements the single entry point for signed
// transactions: typed dispatch by (target_controller, request_type),
// discard-on-failure event accumulation, and periodic catch-up state
// collection. Grounded on
// original_source/fermi-tenex-rs/controller/src/router.rs.
package router

import (
	"bytes"
	"encoding/gob"

	"github.com/fermi-network/fermi/pkg/controllers/bank"
	"github.com/fermi-network/fermi/pkg/controllers/events"
	"github.com/fermi-network/fermi/pkg/controllers/futures"
	"github.com/fermi-network/fermi/pkg/controllers/spot"
	"github.com/fermi-network/fermi/pkg/controllers/stake"
	coreerrors "github.com/fermi-network/fermi/pkg/errors"
	"github.com/fermi-network/fermi/pkg/types"
)

// CatchupStateFrequency is the block interval at which the router collects
// a full catch-up snapshot from every controller, matching router.rs's
// CATCHUP_STATE_FREQUENCY.
const CatchupStateFrequency uint64 = 100

// controllerHandler is the subset every per-controller type satisfies:
// decode the controller-scoped request, apply it, emit events.
type controllerHandler interface {
	Handle(tx types.Transaction) ([]types.Event, error)
}

// catchupSource is implemented by any controller capable of snapshotting
// its own state for catch-up distribution.
type catchupSource interface {
	CatchupState() ([]byte, error)
}

// Router is the top-level dispatcher wiring every controller together. It
// owns no transaction-specific state itself beyond the event accumulator:
// all durable state lives in the controllers it wraps.
type Router struct {
	events *events.Manager

	Bank    *bank.Controller
	Stake   *stake.Controller
	Spot    *spot.Controller
	Futures *futures.Controller

	// CatchupStateFrequency overrides the package default (CatchupStateFrequency
	// const) for this router, so a node can tune the snapshot interval via
	// params.Config without touching the package-level default other callers
	// (e.g. tests) rely on.
	CatchupStateFrequency uint64
}

// New wires a Router over already-constructed controllers. Bank must be
// constructed first since Stake, Spot, and Futures all escrow into it.
func New(bankController *bank.Controller, stakeController *stake.Controller, spotController *spot.Controller, futuresController *futures.Controller) *Router {
	return &Router{
		events:                events.New(),
		Bank:                  bankController,
		Stake:                 stakeController,
		Spot:                  spotController,
		Futures:               futuresController,
		CatchupStateFrequency: CatchupStateFrequency,
	}
}

// InitializeControllerAccounts opens every controller's own escrow account.
// Mirrors ControllerRouter::initialize_controller_accounts, panicking in
// the original on failure; here the caller decides how to treat the error
// since a bootstrap failure belongs to the node's startup sequence, not
// the router's steady-state contract.
func (r *Router) InitializeControllerAccounts() error {
	if err := r.Stake.InitializeControllerAccount(); err != nil {
		return err
	}
	if err := r.Spot.InitializeControllerAccount(); err != nil {
		return err
	}
	if err := r.Futures.InitializeControllerAccount(); err != nil {
		return err
	}
	return nil
}

func (r *Router) controllerFor(t types.ControllerType) (controllerHandler, bool) {
	switch t {
	case types.ControllerBank:
		return r.Bank, true
	case types.ControllerStake:
		return r.Stake, true
	case types.ControllerSpot:
		return r.Spot, true
	case types.ControllerFutures:
		return r.Futures, true
	default:
		// ControllerConsensus carries no transaction-dispatched request
		// type in this implementation: validator-set changes are driven
		// by the consensus layer directly, not by routed transactions.
		return nil, false
	}
}

// Handle implements spec.md §4.8's four steps: reset the event manager,
// decode target_controller, dispatch to the selected controller, and on
// success return the accumulated events — on failure, discard them and
// propagate the error. Atomicity is the dispatched controller's own
// responsibility (each controller either mutates only after every
// precondition has passed, or fails before any mutation).
func (r *Router) Handle(tx types.Transaction) ([]types.Event, error) {
	r.events.Reset()

	target, err := types.ControllerTypeFromI32(int32(tx.TargetController))
	if err != nil {
		return nil, err
	}

	handler, ok := r.controllerFor(target)
	if !ok {
		return nil, coreerrors.New(coreerrors.InvalidRequestType)
	}

	evs, err := handler.Handle(tx)
	if err != nil {
		r.events.Reset()
		return nil, err
	}

	r.events.Emit(evs...)
	return r.events.Drain(), nil
}

// catchupSnapshot bundles every controller's CatchupState blob, matching
// router.rs's Vec<CatchupState> assembled in non_critical_process_end_of_block.
type catchupSnapshot struct {
	Bank    []byte
	Stake   []byte
	Spot    []byte
	Futures []byte
}

// CollectCatchupState returns a combined snapshot of every controller's
// state, gob-encoded, when blockNumber falls on a CatchupStateFrequency
// boundary; collected is false on every other block.
//
// router.rs's non_critical_process_end_of_block additionally walks every
// controller calling its own non_critical_process_end_of_block hook (and,
// due to what reads as a copy-paste slip, calls consensus_controller's
// hook twice while never touching spot's a second time relative to its
// neighbors) — none of bank/stake/spot/futures define a meaningful
// per-block hook beyond the catch-up snapshot collected here, so that
// call sequence is not reproduced; only the snapshot-collection logic
// (and its one genuine side effect) is carried over, deduplicated.
func (r *Router) CollectCatchupState(blockNumber uint64) ([]byte, bool, error) {
	if blockNumber%r.CatchupStateFrequency != 0 {
		return nil, false, nil
	}

	snap := catchupSnapshot{}
	var err error
	if snap.Bank, err = r.Bank.CatchupState(); err != nil {
		return nil, false, err
	}
	if snap.Stake, err = r.Stake.CatchupState(); err != nil {
		return nil, false, err
	}
	if snap.Spot, err = r.Spot.CatchupState(); err != nil {
		return nil, false, err
	}
	if snap.Futures, err = r.Futures.CatchupState(); err != nil {
		return nil, false, err
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return nil, false, coreerrors.Wrap(coreerrors.Serialization, err)
	}
	return buf.Bytes(), true, nil
}

// LoadCatchupState restores every controller from a combined snapshot
// produced by CollectCatchupState.
func (r *Router) LoadCatchupState(data []byte) error {
	var snap catchupSnapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snap); err != nil {
		return coreerrors.Wrap(coreerrors.Deserialization, err)
	}
	if err := r.Bank.LoadCatchupState(snap.Bank); err != nil {
		return err
	}
	if err := r.Stake.LoadCatchupState(snap.Stake); err != nil {
		return err
	}
	if err := r.Spot.LoadCatchupState(snap.Spot); err != nil {
		return err
	}
	return r.Futures.LoadCatchupState(snap.Futures)
}

var _ catchupSource = (*bank.Controller)(nil)
