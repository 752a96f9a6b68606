// Package transaction carries a registry instruction together with the
// ed25519 signatures that prove its signer accounts.
package transaction

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	nameregistry "github.com/wolfeidau/name-registry"
	"github.com/wolfeidau/name-registry/instruction"
)

const (
	// CurrentVersion is the envelope schema version written by Marshal.
	CurrentVersion = 1

	// MaxTransactionSize bounds an encoded transaction.
	MaxTransactionSize = 64 * 1024
)

var (
	// ErrMissingSignature is returned when a signer account lacks a valid signature.
	// It matches nameregistry.ErrUnauthorized.
	ErrMissingSignature = fmt.Errorf("transaction: missing or invalid signature: %w", nameregistry.ErrUnauthorized)

	// ErrMissingKey is returned by Sign when no key is supplied for a signer account.
	ErrMissingKey = errors.New("transaction: no key for signer")

	// ErrTooLarge is returned when an encoded transaction exceeds MaxTransactionSize.
	ErrTooLarge = errors.New("transaction: exceeds maximum size")
)

// Envelope fields.
const (
	fieldVersion   protowire.Number = 1
	fieldMessage   protowire.Number = 2
	fieldSignature protowire.Number = 3
)

// Message fields.
const (
	fieldProgramID protowire.Number = 1
	fieldAccount   protowire.Number = 2
	fieldData      protowire.Number = 3
)

// Account meta fields.
const (
	fieldAddress  protowire.Number = 1
	fieldSigner   protowire.Number = 2
	fieldWritable protowire.Number = 3
)

// Transaction is an instruction plus one signature per signer account, in
// account order.
type Transaction struct {
	Instruction *instruction.Instruction
	Signatures  [][]byte
}

// New wraps ix in an unsigned transaction.
func New(ix *instruction.Instruction) *Transaction {
	return &Transaction{Instruction: ix}
}

// Message returns the bytes that signers sign.
func (t *Transaction) Message() []byte {
	return encodeMessage(t.Instruction)
}

// Sign signs the message with the key matching each signer account.
func (t *Transaction) Sign(keys ...ed25519.PrivateKey) error {
	byAddr := make(map[nameregistry.Address]ed25519.PrivateKey, len(keys))
	for _, k := range keys {
		pub, ok := k.Public().(ed25519.PublicKey)
		if !ok {
			continue
		}
		a, err := nameregistry.AddressFromBytes(pub)
		if err != nil {
			return err
		}
		byAddr[a] = k
	}

	msg := t.Message()
	sigs := make([][]byte, 0, len(keys))
	for _, m := range t.Instruction.Accounts {
		if !m.IsSigner {
			continue
		}
		k, ok := byAddr[m.Address]
		if !ok {
			return fmt.Errorf("%w: %s", ErrMissingKey, m.Address.ShortString())
		}
		sigs = append(sigs, ed25519.Sign(k, msg))
	}
	t.Signatures = sigs
	return nil
}

// Verify checks every signature against its signer account and returns the
// instruction whose signer flags are now proven. Any declared signer without a
// valid signature rejects the whole transaction.
func (t *Transaction) Verify() (*instruction.Instruction, error) {
	msg := t.Message()
	next := 0
	for i, m := range t.Instruction.Accounts {
		if !m.IsSigner {
			continue
		}
		if next >= len(t.Signatures) {
			return nil, fmt.Errorf("%w: account %d (%s)", ErrMissingSignature, i, m.Address.ShortString())
		}
		sig := t.Signatures[next]
		next++
		if len(sig) != ed25519.SignatureSize || !ed25519.Verify(ed25519.PublicKey(m.Address[:]), msg, sig) {
			return nil, fmt.Errorf("%w: account %d (%s)", ErrMissingSignature, i, m.Address.ShortString())
		}
	}
	if next != len(t.Signatures) {
		return nil, fmt.Errorf("%w: %d signatures for %d signers", nameregistry.ErrInvalidArgument, len(t.Signatures), next)
	}

	ix := *t.Instruction
	ix.Accounts = append([]instruction.AccountMeta(nil), t.Instruction.Accounts...)
	return &ix, nil
}

// Marshal encodes the transaction in protobuf wire format.
func (t *Transaction) Marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldVersion, protowire.VarintType)
	b = protowire.AppendVarint(b, CurrentVersion)
	b = protowire.AppendTag(b, fieldMessage, protowire.BytesType)
	b = protowire.AppendBytes(b, t.Message())
	for _, sig := range t.Signatures {
		b = protowire.AppendTag(b, fieldSignature, protowire.BytesType)
		b = protowire.AppendBytes(b, sig)
	}
	return b
}

// Unmarshal decodes bytes produced by Marshal. Unknown fields are skipped.
func Unmarshal(b []byte) (*Transaction, error) {
	if len(b) > MaxTransactionSize {
		return nil, ErrTooLarge
	}

	var (
		version uint64
		msg     []byte
		hasMsg  bool
		t       Transaction
	)
	err := eachField(b, func(num protowire.Number, typ protowire.Type, v []byte, n uint64) error {
		switch {
		case num == fieldVersion && typ == protowire.VarintType:
			version = n
		case num == fieldMessage && typ == protowire.BytesType:
			msg, hasMsg = v, true
		case num == fieldSignature && typ == protowire.BytesType:
			t.Signatures = append(t.Signatures, append([]byte(nil), v...))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if version != CurrentVersion {
		return nil, fmt.Errorf("%w: unsupported transaction version %d", nameregistry.ErrDecode, version)
	}
	if !hasMsg {
		return nil, fmt.Errorf("%w: transaction has no message", nameregistry.ErrDecode)
	}

	t.Instruction, err = decodeMessage(msg)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func encodeMessage(ix *instruction.Instruction) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldProgramID, protowire.BytesType)
	b = protowire.AppendBytes(b, ix.ProgramID[:])
	for _, m := range ix.Accounts {
		var mb []byte
		mb = protowire.AppendTag(mb, fieldAddress, protowire.BytesType)
		mb = protowire.AppendBytes(mb, m.Address[:])
		mb = protowire.AppendTag(mb, fieldSigner, protowire.VarintType)
		mb = protowire.AppendVarint(mb, protowire.EncodeBool(m.IsSigner))
		mb = protowire.AppendTag(mb, fieldWritable, protowire.VarintType)
		mb = protowire.AppendVarint(mb, protowire.EncodeBool(m.IsWritable))

		b = protowire.AppendTag(b, fieldAccount, protowire.BytesType)
		b = protowire.AppendBytes(b, mb)
	}
	b = protowire.AppendTag(b, fieldData, protowire.BytesType)
	return protowire.AppendBytes(b, ix.Data)
}

func decodeMessage(b []byte) (*instruction.Instruction, error) {
	ix := &instruction.Instruction{Data: []byte{}}
	var hasProgram bool
	err := eachField(b, func(num protowire.Number, typ protowire.Type, v []byte, _ uint64) error {
		if typ != protowire.BytesType {
			return nil
		}
		switch num {
		case fieldProgramID:
			a, err := addressField("program id", v)
			if err != nil {
				return err
			}
			ix.ProgramID, hasProgram = a, true
		case fieldAccount:
			m, err := decodeAccountMeta(v)
			if err != nil {
				return err
			}
			ix.Accounts = append(ix.Accounts, m)
		case fieldData:
			ix.Data = append([]byte{}, v...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !hasProgram {
		return nil, fmt.Errorf("%w: message has no program id", nameregistry.ErrDecode)
	}
	return ix, nil
}

func decodeAccountMeta(b []byte) (instruction.AccountMeta, error) {
	var (
		m       instruction.AccountMeta
		hasAddr bool
	)
	err := eachField(b, func(num protowire.Number, typ protowire.Type, v []byte, n uint64) error {
		switch {
		case num == fieldAddress && typ == protowire.BytesType:
			a, err := addressField("account", v)
			if err != nil {
				return err
			}
			m.Address, hasAddr = a, true
		case num == fieldSigner && typ == protowire.VarintType:
			m.IsSigner = protowire.DecodeBool(n)
		case num == fieldWritable && typ == protowire.VarintType:
			m.IsWritable = protowire.DecodeBool(n)
		}
		return nil
	})
	if err != nil {
		return m, err
	}
	if !hasAddr {
		return m, fmt.Errorf("%w: account meta has no address", nameregistry.ErrDecode)
	}
	return m, nil
}

func addressField(name string, v []byte) (nameregistry.Address, error) {
	a, err := nameregistry.AddressFromBytes(v)
	if err != nil {
		return a, fmt.Errorf("%w: %s: %w", nameregistry.ErrDecode, name, err)
	}
	return a, nil
}

// eachField walks the top-level fields of b. Bytes fields are passed as v,
// varint fields as n. Other wire types are skipped.
func eachField(b []byte, fn func(num protowire.Number, typ protowire.Type, v []byte, n uint64) error) error {
	for len(b) > 0 {
		num, typ, tagLen := protowire.ConsumeTag(b)
		if tagLen < 0 {
			return fmt.Errorf("%w: %w", nameregistry.ErrDecode, protowire.ParseError(tagLen))
		}
		b = b[tagLen:]

		var (
			v      []byte
			n      uint64
			valLen int
		)
		switch typ {
		case protowire.BytesType:
			v, valLen = protowire.ConsumeBytes(b)
		case protowire.VarintType:
			n, valLen = protowire.ConsumeVarint(b)
		default:
			valLen = protowire.ConsumeFieldValue(num, typ, b)
		}
		if valLen < 0 {
			return fmt.Errorf("%w: field %d: %w", nameregistry.ErrDecode, num, protowire.ParseError(valLen))
		}
		b = b[valLen:]

		if err := fn(num, typ, v, n); err != nil {
			return err
		}
	}
	return nil
}
