package types

import "github.com/ethereum/go-ethereum/common"

// Address is the fixed-width sender/owner identifier used throughout the
// core. It is backed by go-ethereum's 20-byte address type: the teacher's
// idiomatic realization of a "fixed-length-byte-string external signature
// primitive" (see DESIGN.md for why secp256k1/common.Address stands in for
// the spec's generic EdDSA-class description).
type Address = common.Address

// ZeroAddress is the empty/unset sender sentinel.
var ZeroAddress = common.Address{}
