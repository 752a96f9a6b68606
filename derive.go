package nameregistry

import (
	"fmt"

	"filippo.io/edwards25519"
	"github.com/zeebo/blake3"
)

const (
	// MaxHashedNameSize bounds the hashed_name seed.
	MaxHashedNameSize = 32

	derivedAddressMarker = "ProgramDerivedAddress"
)

// Deriver computes record addresses for a registry program.
type Deriver struct {
	ProgramID Address
}

// NewDeriver creates a Deriver for the given program.
func NewDeriver(programID Address) *Deriver {
	return &Deriver{ProgramID: programID}
}

// Seeds returns hashed_name || class || parent, with absent addresses written
// as zeros.
func Seeds(hashedName []byte, class, parent OptionalAddress) []byte {
	seeds := make([]byte, 0, len(hashedName)+2*AddressSize+1)
	seeds = append(seeds, hashedName...)
	c := class.OrZero()
	seeds = append(seeds, c[:]...)
	p := parent.OrZero()
	seeds = append(seeds, p[:]...)
	return seeds
}

// Derive returns the record address for (hashedName, class, parent) and the
// exact seed bytes, winning nonce included, that reproduce it via Verify.
// Nonces are probed from 255 down to 0.
func (d *Deriver) Derive(hashedName []byte, class, parent OptionalAddress) (Address, []byte, error) {
	if len(hashedName) == 0 || len(hashedName) > MaxHashedNameSize {
		return Address{}, nil, fmt.Errorf("%w: hashed name must be 1..%d bytes, got %d",
			ErrInvalidArgument, MaxHashedNameSize, len(hashedName))
	}

	seeds := Seeds(hashedName, class, parent)
	seeds = append(seeds, 0)
	for nonce := 255; nonce >= 0; nonce-- {
		seeds[len(seeds)-1] = byte(nonce)
		addr := d.candidate(seeds)
		if !IsOnCurve(addr) {
			return addr, seeds, nil
		}
	}
	return Address{}, nil, ErrSeedsExhausted
}

// Verify reports whether seeds (as returned by Derive) produce addr.
func (d *Deriver) Verify(seeds []byte, addr Address) bool {
	candidate := d.candidate(seeds)
	return candidate == addr && !IsOnCurve(candidate)
}

func (d *Deriver) candidate(seeds []byte) Address {
	h := blake3.New()
	_, _ = h.Write(seeds)
	_, _ = h.Write(d.ProgramID[:])
	_, _ = h.Write([]byte(derivedAddressMarker))
	var a Address
	h.Sum(a[:0])
	return a
}

// IsOnCurve reports whether a decodes as an ed25519 point, i.e. whether some
// private key could sign for it.
func IsOnCurve(a Address) bool {
	_, err := new(edwards25519.Point).SetBytes(a[:])
	return err == nil
}
