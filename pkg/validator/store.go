package validator

import "github.com/fermi-network/fermi/pkg/types"

// BlockStore is the validator's critical_path_store (spec.md §4.9): the
// block_store, block_info_store, and last_block_info_store triple, which
// WriteBlock must update atomically. pkg/storage.PebbleStore implements
// this over Pebble; tests substitute an in-memory fake.
type BlockStore interface {
	// WriteBlock atomically persists block, its BlockInfo, and advances
	// last_block_info_store to point at the new block.
	WriteBlock(block types.Block, info types.BlockInfo) error
	// LastBlockInfo reports the most recently sealed block, false if none.
	LastBlockInfo() (types.BlockInfo, bool, error)
	// BlockInfo loads the catch-up summary for a specific block number.
	BlockInfo(n types.BlockNumber) (types.BlockInfo, bool, error)
	// Block loads the full persisted block for a specific block number.
	Block(n types.BlockNumber) (types.Block, bool, error)
}
