package storage

import (
	"encoding/binary"

	"github.com/fermi-network/fermi/pkg/types"
)

// Critical-path-store key schema for Pebble storage. Uses different
// prefixes than the consensus keys in pebble_store.go (b:, c:, cm) to avoid
// collisions:
//
//	blk:<8-byte-block-number> → Block
//	bi:<8-byte-block-number>  → BlockInfo
//	last-bi                   → BlockInfo (last_block_info_store)

const (
	prefixBlockRecord = "blk:"
	prefixBlockInfo   = "bi:"
)

func blockNumberBytes(n types.BlockNumber) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(n))
	return b[:]
}

func blockRecordKey(n types.BlockNumber) []byte {
	return append([]byte(prefixBlockRecord), blockNumberBytes(n)...)
}

func blockInfoKey(n types.BlockNumber) []byte {
	return append([]byte(prefixBlockInfo), blockNumberBytes(n)...)
}

func lastBlockInfoKey() []byte {
	return []byte("last-bi")
}
