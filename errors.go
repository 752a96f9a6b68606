package nameregistry

import "errors"

var (
	// ErrOutOfSpace is returned when a data write exceeds the allocated region.
	ErrOutOfSpace = errors.New("nameregistry: out of space")

	// ErrInvalidHeader is returned when persisted record bytes cannot be decoded.
	ErrInvalidHeader = errors.New("nameregistry: invalid header")

	// ErrDecode is returned when wire bytes cannot be decoded.
	ErrDecode = errors.New("nameregistry: decode error")

	// ErrUnauthorized is returned when a required authorization proof is missing.
	ErrUnauthorized = errors.New("nameregistry: unauthorized")

	// ErrAddressMismatch is returned when a declared address does not match the derived address.
	ErrAddressMismatch = errors.New("nameregistry: address mismatch")

	// ErrAccountMismatch is returned when the wrong account is supplied for a declared role.
	ErrAccountMismatch = errors.New("nameregistry: account mismatch")

	// ErrAlreadyInitialized is returned when creating a record that already exists.
	ErrAlreadyInitialized = errors.New("nameregistry: record already exists")

	// ErrNotInitialized is returned when a record does not exist.
	ErrNotInitialized = errors.New("nameregistry: record does not exist")

	// ErrInvalidArgument is returned when a request is malformed before any state is read.
	ErrInvalidArgument = errors.New("nameregistry: invalid argument")

	// ErrInsufficientFunds is returned when an account cannot cover a transfer.
	ErrInsufficientFunds = errors.New("nameregistry: insufficient funds")

	// ErrSeedsExhausted is returned when no nonce yields an off-curve address.
	ErrSeedsExhausted = errors.New("nameregistry: no viable nonce for derived address")
)

// errorKinds maps sentinel errors to stable labels, in match priority order.
var errorKinds = []struct {
	err  error
	kind string
}{
	{ErrOutOfSpace, "out_of_space"},
	{ErrInvalidHeader, "invalid_header"},
	{ErrDecode, "decode_error"},
	{ErrUnauthorized, "unauthorized"},
	{ErrAddressMismatch, "address_mismatch"},
	{ErrAccountMismatch, "account_mismatch"},
	{ErrAlreadyInitialized, "already_initialized"},
	{ErrNotInitialized, "not_initialized"},
	{ErrInvalidArgument, "invalid_argument"},
	{ErrInsufficientFunds, "insufficient_funds"},
	{ErrSeedsExhausted, "seeds_exhausted"},
}

// ErrorKind returns a stable short label for err, suitable for metrics and
// API responses. Nil yields "ok"; errors outside the taxonomy yield "internal".
func ErrorKind(err error) string {
	if err == nil {
		return "ok"
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "internal"
}

// ErrorForKind returns the sentinel error labelled kind by ErrorKind, or nil
// when kind is not part of the taxonomy.
func ErrorForKind(kind string) error {
	for _, k := range errorKinds {
		if k.kind == kind {
			return k.err
		}
	}
	return nil
}
