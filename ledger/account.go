package ledger

import (
	"encoding/binary"
	"fmt"

	nameregistry "github.com/wolfeidau/name-registry"
)

// Account is a ledger entry.
//
// Encoded as:
//
//	|----------|----------|------|
//	| lamports | owner    | data |
//	|----------|----------|------|
//	| 8 bytes  | 32 bytes | rest |
//	|----------|----------|------|
type Account struct {
	Lamports uint64
	// Owner is the program allowed to modify Data. Zero for plain system accounts.
	Owner nameregistry.Address
	Data  []byte
}

const accountPrefixSize = 8 + nameregistry.AddressSize

func (a *Account) encode() []byte {
	buf := make([]byte, accountPrefixSize+len(a.Data))
	binary.BigEndian.PutUint64(buf[:8], a.Lamports)
	copy(buf[8:accountPrefixSize], a.Owner[:])
	copy(buf[accountPrefixSize:], a.Data)
	return buf
}

// decodeAccount copies b, which bbolt only guarantees for the life of the transaction.
func decodeAccount(b []byte) (*Account, error) {
	if len(b) < accountPrefixSize {
		return nil, fmt.Errorf("ledger: corrupt account: %d bytes", len(b))
	}
	a := &Account{
		Lamports: binary.BigEndian.Uint64(b[:8]),
		Data:     make([]byte, len(b)-accountPrefixSize),
	}
	copy(a.Owner[:], b[8:accountPrefixSize])
	copy(a.Data, b[accountPrefixSize:])
	return a, nil
}
