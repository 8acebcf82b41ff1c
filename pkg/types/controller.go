package types

import coreerrors "github.com/fermi-network/fermi/pkg/errors"

// ControllerType identifies the state-transition controller a transaction
// targets. Values match original_source/fermi-tenex-rs/controller/src/
// router.rs's ControllerType enum exactly.
type ControllerType int32

const (
	ControllerBank      ControllerType = 0
	ControllerStake     ControllerType = 1
	ControllerSpot      ControllerType = 2
	ControllerConsensus ControllerType = 3
	ControllerFutures   ControllerType = 4
)

func (c ControllerType) String() string {
	switch c {
	case ControllerBank:
		return "bank"
	case ControllerStake:
		return "stake"
	case ControllerSpot:
		return "spot"
	case ControllerConsensus:
		return "consensus"
	case ControllerFutures:
		return "futures"
	default:
		return "unknown"
	}
}

// ControllerTypeFromI32 validates and converts a wire-level controller id.
func ControllerTypeFromI32(v int32) (ControllerType, error) {
	switch ControllerType(v) {
	case ControllerBank, ControllerStake, ControllerSpot, ControllerConsensus, ControllerFutures:
		return ControllerType(v), nil
	default:
		return 0, coreerrors.New(coreerrors.Deserialization)
	}
}
