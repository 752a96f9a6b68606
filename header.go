package nameregistry

import "fmt"

// Record storage layout:
//
//	|-------------|-------------|-------------|-------------------|
//	| parent_name | owner       | class       | data              |
//	|-------------|-------------|-------------|-------------------|
//	| 32 bytes    | 32 bytes    | 32 bytes    | fixed at creation |
//	|-------------|-------------|-------------|-------------------|
//
// A zero parent_name or class means none.
const (
	HeaderSize = 3 * AddressSize

	headerParentStart = 0
	headerParentEnd   = headerParentStart + AddressSize
	headerOwnerStart  = headerParentEnd
	headerOwnerEnd    = headerOwnerStart + AddressSize
	headerClassStart  = headerOwnerEnd
	headerClassEnd    = headerClassStart + AddressSize
)

// RecordHeader prefixes every name record.
type RecordHeader struct {
	ParentName OptionalAddress
	Owner      Address
	Class      OptionalAddress
}

// IsInitialized reports whether the header belongs to a live record.
func (h RecordHeader) IsInitialized() bool {
	return !h.Owner.IsZero()
}

// Encode returns the fixed-layout encoding of h.
func (h RecordHeader) Encode() [HeaderSize]byte {
	var buf [HeaderSize]byte
	h.PutInto(buf[:])
	return buf
}

// PutInto writes the header into the first HeaderSize bytes of dst, which
// must be at least that long.
func (h RecordHeader) PutInto(dst []byte) {
	parent := h.ParentName.OrZero()
	class := h.Class.OrZero()
	copy(dst[headerParentStart:headerParentEnd], parent[:])
	copy(dst[headerOwnerStart:headerOwnerEnd], h.Owner[:])
	copy(dst[headerClassStart:headerClassEnd], class[:])
}

// DecodeHeader decodes the header from the start of record storage.
func DecodeHeader(b []byte) (RecordHeader, error) {
	if len(b) < HeaderSize {
		return RecordHeader{}, fmt.Errorf("%w: need %d bytes, got %d", ErrInvalidHeader, HeaderSize, len(b))
	}

	var parent, owner, class Address
	copy(parent[:], b[headerParentStart:headerParentEnd])
	copy(owner[:], b[headerOwnerStart:headerOwnerEnd])
	copy(class[:], b[headerClassStart:headerClassEnd])

	return RecordHeader{
		ParentName: Some(parent),
		Owner:      owner,
		Class:      Some(class),
	}, nil
}
