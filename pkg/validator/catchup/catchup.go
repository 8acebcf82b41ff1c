// Package catchup implements the replay engine spec.md §4.11 describes:
// given a read-only view of a peer's sealed blocks, fetch everything the
// local store is missing and write it in, chunked to bound memory.
package catchup

import (
	"context"

	coreerrors "github.com/fermi-network/fermi/pkg/errors"
	"github.com/fermi-network/fermi/pkg/types"
)

// DefaultChunkSize bounds how many blocks Sync fetches and writes before
// reassessing context cancellation, per spec.md §4.11's "chunking
// (default 1000) bounds memory".
const DefaultChunkSize = 1000

// RemoteSource is the read-only interface a peer validator exposes for
// catch-up (spec.md §4.11/§6).
type RemoteSource interface {
	LatestBlockInfo(ctx context.Context) (types.BlockInfo, error)
	BlockInfo(ctx context.Context, n types.BlockNumber) (types.BlockInfo, error)
	Block(ctx context.Context, n types.BlockNumber) (types.Block, error)
}

// LocalStore is the subset of the validator's critical_path_store the
// engine needs: where it resumes from, and where it writes replayed
// blocks.
type LocalStore interface {
	LastBlockInfo() (types.BlockInfo, bool, error)
	WriteBlock(block types.Block, info types.BlockInfo) error
}

// Engine replays blocks from a remote peer into a local store.
type Engine struct {
	remote    RemoteSource
	local     LocalStore
	chunkSize int
}

// New returns an Engine using DefaultChunkSize; override with
// WithChunkSize.
func New(remote RemoteSource, local LocalStore) *Engine {
	return &Engine{remote: remote, local: local, chunkSize: DefaultChunkSize}
}

// WithChunkSize overrides the replay chunk size.
func (e *Engine) WithChunkSize(n int) *Engine {
	e.chunkSize = n
	return e
}

// Sync replays every block the remote has sealed beyond the local
// store's last block, verifying each block's digest against its
// BlockInfo before writing it in (spec.md §4.11: "Verification requires
// block_info.block_digest == block.block_digest"). It returns the
// highest block number successfully written, which equals the remote's
// latest on full success.
func (e *Engine) Sync(ctx context.Context) (types.BlockNumber, error) {
	last, ok, err := e.local.LastBlockInfo()
	if err != nil {
		return 0, err
	}
	next := types.BlockNumber(1)
	if ok {
		next = last.BlockNumber + 1
	}

	target, err := e.remote.LatestBlockInfo(ctx)
	if err != nil {
		return 0, err
	}

	written := next - 1
	for next <= target.BlockNumber {
		end := next + types.BlockNumber(e.chunkSize) - 1
		if end > target.BlockNumber {
			end = target.BlockNumber
		}

		for n := next; n <= end; n++ {
			if err := ctx.Err(); err != nil {
				return written, err
			}

			info, err := e.remote.BlockInfo(ctx, n)
			if err != nil {
				return written, err
			}
			block, err := e.remote.Block(ctx, n)
			if err != nil {
				return written, err
			}
			if block.Digest() != info.BlockDigest {
				return written, coreerrors.New(coreerrors.BlockValidation)
			}
			if err := e.local.WriteBlock(block, info); err != nil {
				return written, err
			}
			written = n
		}
		next = end + 1
	}
	return written, nil
}
