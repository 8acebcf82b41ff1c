package storage

import (
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/fermi-network/fermi/pkg/consensus"
	coreerrors "github.com/fermi-network/fermi/pkg/errors"
	"github.com/fermi-network/fermi/pkg/types"
)

type PebbleStore struct {
	db *pebble.DB
}

func NewPebbleStore(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &PebbleStore{db: db}, nil
}
func (s *PebbleStore) Close() error { return s.db.Close() }

// keys: b:<32-byte-hash>, c:<8-byte-view>, cm (committed hash)
func kBlock(h consensus.Hash) []byte { return append([]byte("b:"), h[:]...) }
func kCert(v consensus.View) []byte  { return append([]byte("c:"), viewKey(v)...) }
func kCommitted() []byte             { return []byte("cm") }

func (s *PebbleStore) SaveBlock(b consensus.Block) {
	key := kBlock(consensus.HashOfBlock(b))
	val, err := encodeGob(b)
	if err != nil {
		panic(fmt.Errorf("encode block: %w", err))
	}
	if err := s.db.Set(key, val, pebble.Sync); err != nil {
		panic(err)
	}
}

func (s *PebbleStore) GetBlock(h consensus.Hash) (consensus.Block, bool) {
	val, closer, err := s.db.Get(kBlock(h))
	if err != nil {
		if err == pebble.ErrNotFound {
			return consensus.Block{}, false
		}
		panic(err)
	}
	defer closer.Close()
	var out consensus.Block
	if err := decodeGob(val, &out); err != nil {
		panic(err)
	}
	return out, true
}

func (s *PebbleStore) SaveCert(c consensus.Certificate) {
	val, err := encodeGob(c)
	if err != nil {
		panic(fmt.Errorf("encode cert: %w", err))
	}
	if err := s.db.Set(kCert(c.View), val, pebble.Sync); err != nil {
		panic(err)
	}
}

func (s *PebbleStore) GetCert(v consensus.View) (consensus.Certificate, bool) {
	val, closer, err := s.db.Get(kCert(v))
	if err != nil {
		if err == pebble.ErrNotFound {
			return consensus.Certificate{}, false
		}
		panic(err)
	}
	defer closer.Close()
	var out consensus.Certificate
	if err := decodeGob(val, &out); err != nil {
		panic(err)
	}
	return out, true
}

func (s *PebbleStore) SetCommitted(h consensus.Hash) {
	if err := s.db.Set(kCommitted(), h[:], pebble.Sync); err != nil {
		panic(err)
	}
}

func (s *PebbleStore) GetCommitted() (consensus.Hash, bool) {
	val, closer, err := s.db.Get(kCommitted())
	if err != nil {
		if err == pebble.ErrNotFound {
			return consensus.Hash{}, false
		}
		panic(err)
	}
	defer closer.Close()
	var out consensus.Hash
	copy(out[:], val)
	return out, true
}

var _ consensus.BlockStore = (*PebbleStore)(nil)

// ============================================================================
// Critical path store (spec §4.9): block_store, block_info_store, and
// last_block_info_store, written atomically per block.
// ============================================================================

// WriteBlock atomically persists block, its BlockInfo, and advances
// last_block_info_store to point at it — the three writes spec.md §4.9
// requires to land together.
func (s *PebbleStore) WriteBlock(block types.Block, info types.BlockInfo) error {
	blockData, err := encodeGob(block)
	if err != nil {
		return coreerrors.Wrap(coreerrors.Serialization, err)
	}
	infoData, err := encodeGob(info)
	if err != nil {
		return coreerrors.Wrap(coreerrors.Serialization, err)
	}

	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(blockRecordKey(block.BlockNumber), blockData, nil); err != nil {
		return coreerrors.Wrap(coreerrors.PendingBlock, err)
	}
	if err := batch.Set(blockInfoKey(info.BlockNumber), infoData, nil); err != nil {
		return coreerrors.Wrap(coreerrors.PendingBlock, err)
	}
	if err := batch.Set(lastBlockInfoKey(), infoData, nil); err != nil {
		return coreerrors.Wrap(coreerrors.PendingBlock, err)
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return coreerrors.Wrap(coreerrors.PendingBlock, err)
	}
	return nil
}

// Block loads the persisted block for blockNumber.
func (s *PebbleStore) Block(n types.BlockNumber) (types.Block, bool, error) {
	val, closer, err := s.db.Get(blockRecordKey(n))
	if err == pebble.ErrNotFound {
		return types.Block{}, false, nil
	}
	if err != nil {
		return types.Block{}, false, coreerrors.Wrap(coreerrors.PendingBlock, err)
	}
	defer closer.Close()
	var out types.Block
	if err := decodeGob(val, &out); err != nil {
		return types.Block{}, false, coreerrors.Wrap(coreerrors.Deserialization, err)
	}
	return out, true, nil
}

// BlockInfo loads the lightweight catch-up summary for blockNumber.
func (s *PebbleStore) BlockInfo(n types.BlockNumber) (types.BlockInfo, bool, error) {
	val, closer, err := s.db.Get(blockInfoKey(n))
	if err == pebble.ErrNotFound {
		return types.BlockInfo{}, false, nil
	}
	if err != nil {
		return types.BlockInfo{}, false, coreerrors.Wrap(coreerrors.PendingBlock, err)
	}
	defer closer.Close()
	var out types.BlockInfo
	if err := decodeGob(val, &out); err != nil {
		return types.BlockInfo{}, false, coreerrors.Wrap(coreerrors.Deserialization, err)
	}
	return out, true, nil
}

// LastBlockInfo loads last_block_info_store's single entry, false if no
// block has ever been sealed.
func (s *PebbleStore) LastBlockInfo() (types.BlockInfo, bool, error) {
	val, closer, err := s.db.Get(lastBlockInfoKey())
	if err == pebble.ErrNotFound {
		return types.BlockInfo{}, false, nil
	}
	if err != nil {
		return types.BlockInfo{}, false, coreerrors.Wrap(coreerrors.PendingBlock, err)
	}
	defer closer.Close()
	var out types.BlockInfo
	if err := decodeGob(val, &out); err != nil {
		return types.BlockInfo{}, false, coreerrors.Wrap(coreerrors.Deserialization, err)
	}
	return out, true, nil
}
