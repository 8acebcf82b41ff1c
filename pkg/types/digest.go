package types

import (
	"encoding/binary"

	"golang.org/x/crypto/blake2b"
)

// Digest is a 32-byte blake2b-256 hash, used for transaction identity,
// block hashing, and de-duplication.
type Digest [32]byte

func (d Digest) Bytes() []byte { return d[:] }

// Version identifies the wire-format version of a Transaction.
type Version struct {
	Major uint32
	Minor uint32
	Patch uint32
}

// canonicalAppend writes v's big-endian bytes to buf and returns the result.
// Used to build the fixed-width portion of the canonical transaction
// encoding without involving a map-ordering-sensitive serializer.
func canonicalAppendU32(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}

func canonicalAppendU64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}

func canonicalAppendI32(buf []byte, v int32) []byte {
	return canonicalAppendU32(buf, uint32(v))
}

// Blake2b256 computes the normative transaction/block digest.
func Blake2b256(b []byte) Digest {
	return blake2b.Sum256(b)
}
