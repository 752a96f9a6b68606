// Package instruction defines the registry operations, their wire encoding,
// and builders that attach the account list each operation expects.
package instruction

import (
	"encoding/binary"
	"fmt"

	nameregistry "github.com/wolfeidau/name-registry"
)

// Tag discriminates operation variants on the wire. Tags are never reused.
type Tag uint8

const (
	TagCreate   Tag = 0
	TagUpdate   Tag = 1
	TagTransfer Tag = 2
	TagDelete   Tag = 3
)

// MarshalText implements encoding.TextMarshaler.
func (t Tag) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Tag) UnmarshalText(text []byte) error {
	for _, c := range []Tag{TagCreate, TagUpdate, TagTransfer, TagDelete} {
		if c.String() == string(text) {
			*t = c
			return nil
		}
	}
	return fmt.Errorf("%w: unknown operation %q", nameregistry.ErrDecode, text)
}

// String returns the operation name for the tag.
func (t Tag) String() string {
	switch t {
	case TagCreate:
		return "create"
	case TagUpdate:
		return "update"
	case TagTransfer:
		return "transfer"
	case TagDelete:
		return "delete"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// Payload is one of Create, Update, Transfer or Delete.
type Payload interface {
	Tag() Tag
	appendTo(dst []byte) []byte
}

// Create allocates and funds a new name record.
type Create struct {
	HashedName []byte
	Lamports   uint64
	Space      uint32
}

// Update overwrites part of a record's data region.
type Update struct {
	Offset uint32
	Data   []byte
}

// Transfer assigns a new owner.
type Transfer struct {
	NewOwner nameregistry.Address
}

// Delete closes a record and refunds its deposit.
type Delete struct{}

func (Create) Tag() Tag   { return TagCreate }
func (Update) Tag() Tag   { return TagUpdate }
func (Transfer) Tag() Tag { return TagTransfer }
func (Delete) Tag() Tag   { return TagDelete }

// Wire layout, all integers little-endian:
//
//	Create:   tag | u32 len | hashed_name | u64 lamports | u32 space
//	Update:   tag | u32 offset | u32 len | data
//	Transfer: tag | 32 byte new_owner
//	Delete:   tag

func (c Create) appendTo(dst []byte) []byte {
	dst = appendBytes(dst, c.HashedName)
	dst = binary.LittleEndian.AppendUint64(dst, c.Lamports)
	return binary.LittleEndian.AppendUint32(dst, c.Space)
}

func (u Update) appendTo(dst []byte) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, u.Offset)
	return appendBytes(dst, u.Data)
}

func (t Transfer) appendTo(dst []byte) []byte {
	return append(dst, t.NewOwner[:]...)
}

func (Delete) appendTo(dst []byte) []byte {
	return dst
}

func appendBytes(dst, b []byte) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(b))) //nolint:gosec // payload sizes are bounded by the transport
	return append(dst, b...)
}

// Encode serializes p with its discriminant tag.
func Encode(p Payload) []byte {
	return p.appendTo([]byte{byte(p.Tag())})
}

// Decode parses bytes produced by Encode. Unknown tags, truncated input and
// trailing bytes are rejected with nameregistry.ErrDecode.
// Empty and nil byte fields encode identically and decode as nil.
func Decode(b []byte) (Payload, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: empty instruction", nameregistry.ErrDecode)
	}

	r := &reader{buf: b[1:]}
	var p Payload
	switch Tag(b[0]) {
	case TagCreate:
		var c Create
		c.HashedName = r.bytes()
		c.Lamports = r.uint64()
		c.Space = r.uint32()
		p = c
	case TagUpdate:
		var u Update
		u.Offset = r.uint32()
		u.Data = r.bytes()
		p = u
	case TagTransfer:
		var t Transfer
		t.NewOwner = r.address()
		p = t
	case TagDelete:
		p = Delete{}
	default:
		return nil, fmt.Errorf("%w: unknown instruction tag %d", nameregistry.ErrDecode, b[0])
	}

	if r.err != nil {
		return nil, fmt.Errorf("%w: %s: %w", nameregistry.ErrDecode, Tag(b[0]), r.err)
	}
	if len(r.buf) != 0 {
		return nil, fmt.Errorf("%w: %s: %d trailing bytes", nameregistry.ErrDecode, Tag(b[0]), len(r.buf))
	}
	return p, nil
}

// reader consumes fixed-width fields, latching the first error.
type reader struct {
	buf []byte
	err error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if len(r.buf) < n {
		r.err = fmt.Errorf("need %d bytes, have %d", n, len(r.buf))
		return nil
	}
	b := r.buf[:n]
	r.buf = r.buf[n:]
	return b
}

func (r *reader) uint32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *reader) uint64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *reader) bytes() []byte {
	n := r.uint32()
	if r.err != nil {
		return nil
	}
	if uint64(n) > uint64(len(r.buf)) {
		r.err = fmt.Errorf("length prefix %d exceeds remaining %d bytes", n, len(r.buf))
		return nil
	}
	if n == 0 {
		return nil
	}
	b := r.take(int(n))
	return append([]byte{}, b...)
}

func (r *reader) address() nameregistry.Address {
	var a nameregistry.Address
	copy(a[:], r.take(nameregistry.AddressSize))
	return a
}
