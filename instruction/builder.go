package instruction

import (
	"fmt"

	nameregistry "github.com/wolfeidau/name-registry"
)

// AccountMeta describes one account passed with an instruction. After the
// transaction layer verifies signatures, IsSigner means a valid
// authorization proof accompanied the request.
type AccountMeta struct {
	Address    nameregistry.Address
	IsSigner   bool
	IsWritable bool
}

// Instruction is an encoded payload addressed to the registry program along
// with its ordered account list.
type Instruction struct {
	ProgramID nameregistry.Address
	Accounts  []AccountMeta
	Data      []byte
}

// Accounts lay out per operation:
//
//	Create:   funder (signer, writable), record (writable), owner,
//	          [class (signer)], [parent, parent owner (signer)]
//	Update:   record (writable), authority (signer), [parent]
//	Transfer: record (writable), owner (signer), [class (signer)] or [parent owner, parent]
//	Delete:   record (writable), owner (signer), refund target (writable)

// ParentAuthority names a parent record and its current owner.
type ParentAuthority struct {
	Parent      nameregistry.Address
	ParentOwner nameregistry.Address
}

// CreateAccounts are the accounts for a Create.
type CreateAccounts struct {
	Funder nameregistry.Address
	Record nameregistry.Address
	Owner  nameregistry.Address
	Class  nameregistry.OptionalAddress
	Parent *ParentAuthority
}

// NewCreate builds a Create instruction.
func NewCreate(programID nameregistry.Address, c Create, accts CreateAccounts) (*Instruction, error) {
	if err := required(role{"funder", accts.Funder}, role{"record", accts.Record}, role{"owner", accts.Owner}); err != nil {
		return nil, err
	}
	if len(c.HashedName) == 0 || len(c.HashedName) > nameregistry.MaxHashedNameSize {
		return nil, fmt.Errorf("%w: hashed name must be 1..%d bytes", nameregistry.ErrInvalidArgument, nameregistry.MaxHashedNameSize)
	}

	metas := []AccountMeta{
		{Address: accts.Funder, IsSigner: true, IsWritable: true},
		{Address: accts.Record, IsWritable: true},
		{Address: accts.Owner},
	}
	if class, ok := accts.Class.Get(); ok {
		metas = append(metas, AccountMeta{Address: class, IsSigner: true})
	}
	if p := accts.Parent; p != nil {
		if err := required(role{"parent", p.Parent}, role{"parent owner", p.ParentOwner}); err != nil {
			return nil, err
		}
		metas = append(metas,
			AccountMeta{Address: p.Parent},
			AccountMeta{Address: p.ParentOwner, IsSigner: true},
		)
	}
	return build(programID, c, metas), nil
}

// UpdateAccounts is implemented by UpdateByOwner, UpdateByClass and UpdateByParent.
type UpdateAccounts interface {
	updateMetas() ([]AccountMeta, error)
}

// UpdateByOwner authorizes an update with the record owner's proof.
type UpdateByOwner struct {
	Record nameregistry.Address
	Owner  nameregistry.Address
}

// UpdateByClass authorizes an update with the class authority's proof.
type UpdateByClass struct {
	Record nameregistry.Address
	Class  nameregistry.Address
}

// UpdateByParent authorizes an update with the parent record owner's proof.
type UpdateByParent struct {
	Record      nameregistry.Address
	ParentOwner nameregistry.Address
	Parent      nameregistry.Address
}

func (a UpdateByOwner) updateMetas() ([]AccountMeta, error) {
	if err := required(role{"record", a.Record}, role{"owner", a.Owner}); err != nil {
		return nil, err
	}
	return []AccountMeta{
		{Address: a.Record, IsWritable: true},
		{Address: a.Owner, IsSigner: true},
	}, nil
}

func (a UpdateByClass) updateMetas() ([]AccountMeta, error) {
	if err := required(role{"record", a.Record}, role{"class", a.Class}); err != nil {
		return nil, err
	}
	return []AccountMeta{
		{Address: a.Record, IsWritable: true},
		{Address: a.Class, IsSigner: true},
	}, nil
}

func (a UpdateByParent) updateMetas() ([]AccountMeta, error) {
	if err := required(role{"record", a.Record}, role{"parent owner", a.ParentOwner}, role{"parent", a.Parent}); err != nil {
		return nil, err
	}
	return []AccountMeta{
		{Address: a.Record, IsWritable: true},
		{Address: a.ParentOwner, IsSigner: true},
		{Address: a.Parent},
	}, nil
}

// NewUpdate builds an Update instruction.
func NewUpdate(programID nameregistry.Address, u Update, accts UpdateAccounts) (*Instruction, error) {
	metas, err := accts.updateMetas()
	if err != nil {
		return nil, err
	}
	return build(programID, u, metas), nil
}

// TransferAccounts is implemented by TransferByOwner, TransferWithClass and TransferWithParent.
type TransferAccounts interface {
	transferMetas() ([]AccountMeta, error)
}

// TransferByOwner is a transfer of a record without a class authority.
type TransferByOwner struct {
	Record nameregistry.Address
	Owner  nameregistry.Address
}

// TransferWithClass is a transfer co-signed by the record's class authority.
type TransferWithClass struct {
	Record nameregistry.Address
	Owner  nameregistry.Address
	Class  nameregistry.Address
}

// TransferWithParent is a transfer that names the parent record and its
// owner. The parent owner is not asked to sign.
type TransferWithParent struct {
	Record      nameregistry.Address
	Owner       nameregistry.Address
	ParentOwner nameregistry.Address
	Parent      nameregistry.Address
}

func (a TransferByOwner) transferMetas() ([]AccountMeta, error) {
	if err := required(role{"record", a.Record}, role{"owner", a.Owner}); err != nil {
		return nil, err
	}
	return []AccountMeta{
		{Address: a.Record, IsWritable: true},
		{Address: a.Owner, IsSigner: true},
	}, nil
}

func (a TransferWithClass) transferMetas() ([]AccountMeta, error) {
	if err := required(role{"record", a.Record}, role{"owner", a.Owner}, role{"class", a.Class}); err != nil {
		return nil, err
	}
	return []AccountMeta{
		{Address: a.Record, IsWritable: true},
		{Address: a.Owner, IsSigner: true},
		{Address: a.Class, IsSigner: true},
	}, nil
}

func (a TransferWithParent) transferMetas() ([]AccountMeta, error) {
	if err := required(role{"record", a.Record}, role{"owner", a.Owner}, role{"parent owner", a.ParentOwner}, role{"parent", a.Parent}); err != nil {
		return nil, err
	}
	return []AccountMeta{
		{Address: a.Record, IsWritable: true},
		{Address: a.Owner, IsSigner: true},
		{Address: a.ParentOwner},
		{Address: a.Parent},
	}, nil
}

// NewTransfer builds a Transfer instruction.
func NewTransfer(programID nameregistry.Address, t Transfer, accts TransferAccounts) (*Instruction, error) {
	if t.NewOwner.IsZero() {
		return nil, fmt.Errorf("%w: new owner is required", nameregistry.ErrInvalidArgument)
	}
	metas, err := accts.transferMetas()
	if err != nil {
		return nil, err
	}
	return build(programID, t, metas), nil
}

// DeleteAccounts are the accounts for a Delete.
type DeleteAccounts struct {
	Record       nameregistry.Address
	Owner        nameregistry.Address
	RefundTarget nameregistry.Address
}

// NewDelete builds a Delete instruction.
func NewDelete(programID nameregistry.Address, accts DeleteAccounts) (*Instruction, error) {
	if err := required(role{"record", accts.Record}, role{"owner", accts.Owner}, role{"refund target", accts.RefundTarget}); err != nil {
		return nil, err
	}
	metas := []AccountMeta{
		{Address: accts.Record, IsWritable: true},
		{Address: accts.Owner, IsSigner: true},
		{Address: accts.RefundTarget, IsWritable: true},
	}
	return build(programID, Delete{}, metas), nil
}

func build(programID nameregistry.Address, p Payload, metas []AccountMeta) *Instruction {
	return &Instruction{
		ProgramID: programID,
		Accounts:  metas,
		Data:      Encode(p),
	}
}

type role struct {
	name string
	addr nameregistry.Address
}

func required(roles ...role) error {
	for _, r := range roles {
		if r.addr.IsZero() {
			return fmt.Errorf("%w: %s account is required", nameregistry.ErrInvalidArgument, r.name)
		}
	}
	return nil
}
