// Package errors defines the error-kind taxonomy shared by every
// controller and the validator state machine.
package errors

import "fmt"

// Kind is a language-neutral error category. Controllers map precondition
// failures onto one of these; the router propagates the kind unchanged so
// callers can switch on it without string matching.
type Kind string

const (
	AccountCreation       Kind = "AccountCreation"
	AccountLookup         Kind = "AccountLookup"
	AssetLookup           Kind = "AssetLookup"
	PaymentRequest        Kind = "PaymentRequest"
	Signature             Kind = "Signature"
	Deserialization       Kind = "Deserialization"
	Serialization         Kind = "Serialization"
	InvalidAddress        Kind = "InvalidAddress"
	InvalidRequestType    Kind = "InvalidRequestType"
	OrderRequest          Kind = "OrderRequest"
	BlockValidation       Kind = "BlockValidation"
	PendingBlock          Kind = "PendingBlock"
	MarketplaceExistence  Kind = "MarketplaceExistence"
	MarketExistence       Kind = "MarketExistence"
	FuturesInitialization Kind = "FuturesInitialization"
	FuturesUpdate         Kind = "FuturesUpdate"
	FuturesWithdrawal     Kind = "FuturesWithdrawal"
	MarketPrices          Kind = "MarketPrices"
	InsufficientCollateral Kind = "InsufficientCollateral"
	Conversion            Kind = "Conversion"
	Duplicate             Kind = "Duplicate"
)

// CoreError wraps a taxonomy Kind with an optional underlying cause.
type CoreError struct {
	Kind  Kind
	Cause error
}

func (e *CoreError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
	}
	return string(e.Kind)
}

func (e *CoreError) Unwrap() error { return e.Cause }

// New builds a bare CoreError carrying only a Kind.
func New(k Kind) error {
	return &CoreError{Kind: k}
}

// Wrap attaches a Kind to an underlying cause.
func Wrap(k Kind, cause error) error {
	return &CoreError{Kind: k, Cause: cause}
}

// Is reports whether err carries the given Kind, following the wrap chain.
func Is(err error, k Kind) bool {
	for err != nil {
		if ce, ok := err.(*CoreError); ok && ce.Kind == k {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// KindOf extracts the Kind from err, if it is a CoreError.
func KindOf(err error) (Kind, bool) {
	ce, ok := err.(*CoreError)
	if !ok {
		return "", false
	}
	return ce.Kind, true
}
