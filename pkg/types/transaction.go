package types

import (
	"encoding/json"

	coreerrors "github.com/fermi-network/fermi/pkg/errors"
)

// Transaction is the canonical, signable request envelope. Its layout
// matches spec.md §6's wire format field for field; request_bytes carries
// a controller-scoped, JSON-encoded payload (see DESIGN.md's stdlib
// justification for why JSON rather than a binary schema language is used
// here, matching the teacher's transaction/types.go idiom).
type Transaction struct {
	Version           Version        `json:"version"`
	Sender            Address        `json:"sender"`
	TargetController  ControllerType `json:"target_controller"`
	RequestType       int32          `json:"request_type"`
	RecentBlockHash   Digest         `json:"recent_block_hash"`
	Gas               uint64         `json:"gas"`
	RequestBytes      []byte         `json:"request_bytes"`
}

// SignedTransaction pairs a Transaction with its signature over the
// transaction's canonical digest.
type SignedTransaction struct {
	Transaction Transaction `json:"transaction"`
	Signature   []byte      `json:"signature"`
}

// CanonicalBytes produces the fixed-width, map-ordering-independent
// encoding of t used for digesting and signing. Field order matches the
// struct definition above, matching spec.md §6.
func (t Transaction) CanonicalBytes() []byte {
	buf := make([]byte, 0, 64+len(t.RequestBytes))
	buf = canonicalAppendU32(buf, t.Version.Major)
	buf = canonicalAppendU32(buf, t.Version.Minor)
	buf = canonicalAppendU32(buf, t.Version.Patch)
	buf = append(buf, t.Sender.Bytes()...)
	buf = canonicalAppendI32(buf, int32(t.TargetController))
	buf = canonicalAppendI32(buf, t.RequestType)
	buf = append(buf, t.RecentBlockHash.Bytes()...)
	buf = canonicalAppendU64(buf, t.Gas)
	buf = append(buf, t.RequestBytes...)
	return buf
}

// Digest returns blake2b_256(canonical(t)), the normative transaction
// identity used for signing and de-duplication.
func (t Transaction) Digest() Digest {
	return Blake2b256(t.CanonicalBytes())
}

// EncodeRequest canonically encodes a controller-scoped request payload.
// Kept as a single choke point so every controller encodes requests the
// same way.
func EncodeRequest(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, coreerrors.Wrap(coreerrors.Serialization, err)
	}
	return b, nil
}

// DecodeRequest decodes a controller-scoped request payload.
func DecodeRequest(b []byte, v any) error {
	if err := json.Unmarshal(b, v); err != nil {
		return coreerrors.Wrap(coreerrors.Deserialization, err)
	}
	return nil
}

// Serialize encodes the full signed transaction for wire transport.
func (s SignedTransaction) Serialize() ([]byte, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, coreerrors.Wrap(coreerrors.Serialization, err)
	}
	return b, nil
}

// DeserializeSignedTransaction decodes a wire-transported signed transaction.
func DeserializeSignedTransaction(b []byte) (SignedTransaction, error) {
	var s SignedTransaction
	if err := json.Unmarshal(b, &s); err != nil {
		return SignedTransaction{}, coreerrors.Wrap(coreerrors.Deserialization, err)
	}
	return s, nil
}
