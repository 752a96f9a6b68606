// Package nameregistry implements the addressing scheme and record layout of a
// hierarchical name registry stored in a key-value ledger.
package nameregistry

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// AddressSize is the size of a ledger address in bytes.
const AddressSize = 32

// hashPrefix is mixed into every hashed name so registry hashes never collide
// with plain BLAKE3 digests of the same bytes.
const hashPrefix = "name-registry:"

// Address identifies a ledger account. Addresses on the ed25519 curve are
// public keys; derived record addresses are off-curve and cannot sign.
type Address [AddressSize]byte

// String returns the hex-encoded representation of the address.
func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

// ShortString returns a shortened hex representation for display.
func (a Address) ShortString() string {
	return hex.EncodeToString(a[:8])
}

// IsZero returns true if the address is all zeros.
func (a Address) IsZero() bool {
	return a == Address{}
}

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	if len(text) != AddressSize*2 {
		return fmt.Errorf("invalid address length: expected %d hex chars, got %d", AddressSize*2, len(text))
	}
	_, err := hex.Decode(a[:], text)
	return err
}

// ParseAddress parses a hex-encoded address string.
func ParseAddress(s string) (Address, error) {
	var a Address
	if err := a.UnmarshalText([]byte(s)); err != nil {
		return Address{}, err
	}
	return a, nil
}

// AddressFromBytes copies b into an Address. b must be exactly AddressSize bytes.
func AddressFromBytes(b []byte) (Address, error) {
	if len(b) != AddressSize {
		return Address{}, fmt.Errorf("invalid address length: expected %d bytes, got %d", AddressSize, len(b))
	}
	var a Address
	copy(a[:], b)
	return a, nil
}

// OptionalAddress is an address that may be absent. The zero address is the
// persisted "none" marker, so Some with the zero address is None.
type OptionalAddress struct {
	addr Address
	set  bool
}

// Some wraps a present address.
func Some(a Address) OptionalAddress {
	if a.IsZero() {
		return OptionalAddress{}
	}
	return OptionalAddress{addr: a, set: true}
}

// None returns an absent address.
func None() OptionalAddress {
	return OptionalAddress{}
}

// Get returns the address and whether it is present.
func (o OptionalAddress) Get() (Address, bool) {
	return o.addr, o.set
}

// IsSome reports whether the address is present.
func (o OptionalAddress) IsSome() bool {
	return o.set
}

// OrZero returns the address, or the zero address when absent.
func (o OptionalAddress) OrZero() Address {
	return o.addr
}

// Equal reports whether o is present and holds a.
func (o OptionalAddress) Equal(a Address) bool {
	return o.set && o.addr == a
}

// String returns the hex address or "none".
func (o OptionalAddress) String() string {
	if !o.set {
		return "none"
	}
	return o.addr.String()
}

// HashName computes the hashed_name used to derive a record address from a
// human-readable name.
func HashName(name string) []byte {
	h := blake3.New()
	_, _ = h.Write([]byte(hashPrefix))
	_, _ = h.Write([]byte(name))
	return h.Sum(nil)
}
