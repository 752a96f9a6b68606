package registry

import (
	"fmt"

	nameregistry "github.com/wolfeidau/name-registry"
	"github.com/wolfeidau/name-registry/instruction"
)

// HeaderFunc loads the header of the initialized record at an address.
type HeaderFunc func(nameregistry.Address) (nameregistry.RecordHeader, error)

// Account is an account bound to a role. Proven is true when a verified
// authorization proof for Address accompanied the request.
type Account struct {
	Address  nameregistry.Address
	Proven   bool
	Writable bool
}

func accountFromMeta(m instruction.AccountMeta) Account {
	return Account{Address: m.Address, Proven: m.IsSigner, Writable: m.IsWritable}
}

// provenAs reports whether a carries a proof for addr.
func (a Account) provenAs(addr nameregistry.Address) bool {
	return a.Proven && a.Address == addr
}

// CreateRequest is a Create bound to its accounts.
type CreateRequest struct {
	Payload     instruction.Create
	Funder      Account
	Record      Account
	Owner       Account
	Class       *Account
	Parent      *Account
	ParentOwner *Account
}

// UpdateRequest is an Update bound to its accounts. Authority is whichever
// account the caller presented as owner, class or parent owner.
type UpdateRequest struct {
	Payload   instruction.Update
	Record    Account
	Authority Account
	Parent    *Account
}

// TransferRequest is a Transfer bound to its accounts.
type TransferRequest struct {
	Payload     instruction.Transfer
	Record      Account
	Owner       Account
	Class       *Account
	ParentOwner *Account
	Parent      *Account
}

// DeleteRequest is a Delete bound to its accounts.
type DeleteRequest struct {
	Record       Account
	Owner        Account
	RefundTarget Account
}

// UpdateCase identifies which role authorized an Update.
type UpdateCase int

const (
	UpdateByOwner UpdateCase = iota + 1
	UpdateByClass
	UpdateByParent
)

func (c UpdateCase) String() string {
	switch c {
	case UpdateByOwner:
		return "owner"
	case UpdateByClass:
		return "class"
	case UpdateByParent:
		return "parent"
	default:
		return "none"
	}
}

// Engine decides whether an operation is allowed. It holds no state between
// calls and never mutates the ledger.
type Engine struct {
	deriver *nameregistry.Deriver
}

// NewEngine creates an Engine for records of the given program.
func NewEngine(programID nameregistry.Address) *Engine {
	return &Engine{deriver: nameregistry.NewDeriver(programID)}
}

// AuthorizeCreate checks proofs, the parent relationship and the target
// address. The owner does not have to sign.
func (e *Engine) AuthorizeCreate(req CreateRequest, headers HeaderFunc) error {
	if !req.Funder.Proven {
		return fmt.Errorf("%w: funder %s did not sign", nameregistry.ErrUnauthorized, req.Funder.Address.ShortString())
	}
	if req.Class != nil && !req.Class.Proven {
		return fmt.Errorf("%w: class %s did not sign", nameregistry.ErrUnauthorized, req.Class.Address.ShortString())
	}
	if req.Parent != nil && (req.ParentOwner == nil || !req.ParentOwner.Proven) {
		return fmt.Errorf("%w: parent owner did not sign", nameregistry.ErrUnauthorized)
	}
	if req.Owner.Address.IsZero() {
		return fmt.Errorf("%w: owner cannot be the zero address", nameregistry.ErrInvalidArgument)
	}
	if !req.Funder.Writable || !req.Record.Writable {
		return fmt.Errorf("%w: funder and record must be writable", nameregistry.ErrAccountMismatch)
	}
	if req.Funder.Address == req.Record.Address {
		return fmt.Errorf("%w: funder cannot fund itself as the record", nameregistry.ErrAccountMismatch)
	}

	class, parent := req.classAddress(), req.parentAddress()
	if req.Parent != nil {
		parentHdr, err := headers(req.Parent.Address)
		if err != nil {
			return fmt.Errorf("loading parent: %w", err)
		}
		if parentHdr.Owner != req.ParentOwner.Address {
			return fmt.Errorf("%w: %s does not own parent %s", nameregistry.ErrAccountMismatch,
				req.ParentOwner.Address.ShortString(), req.Parent.Address.ShortString())
		}
	}

	derived, _, err := e.deriver.Derive(req.Payload.HashedName, class, parent)
	if err != nil {
		return err
	}
	if derived != req.Record.Address {
		return fmt.Errorf("%w: record %s, derived %s", nameregistry.ErrAddressMismatch,
			req.Record.Address.ShortString(), derived.ShortString())
	}
	return nil
}

func (r CreateRequest) classAddress() nameregistry.OptionalAddress {
	if r.Class == nil {
		return nameregistry.None()
	}
	return nameregistry.Some(r.Class.Address)
}

func (r CreateRequest) parentAddress() nameregistry.OptionalAddress {
	if r.Parent == nil {
		return nameregistry.None()
	}
	return nameregistry.Some(r.Parent.Address)
}

// Header returns the header a successful Create writes.
func (r CreateRequest) Header() nameregistry.RecordHeader {
	return nameregistry.RecordHeader{
		ParentName: r.parentAddress(),
		Owner:      r.Owner.Address,
		Class:      r.classAddress(),
	}
}

// AuthorizeUpdate evaluates the owner, class and parent cases in that order
// and returns the first one satisfied. When none holds the error is
// ErrUnauthorized, whatever else is wrong with the accounts; a parent that
// does not match the header is reported alongside it.
func (e *Engine) AuthorizeUpdate(hdr nameregistry.RecordHeader, req UpdateRequest, headers HeaderFunc) (UpdateCase, error) {
	authority, err := e.updateCase(hdr, req, headers)
	if err != nil {
		return 0, err
	}
	if !req.Record.Writable {
		return 0, fmt.Errorf("%w: record must be writable", nameregistry.ErrAccountMismatch)
	}
	return authority, nil
}

func (e *Engine) updateCase(hdr nameregistry.RecordHeader, req UpdateRequest, headers HeaderFunc) (UpdateCase, error) {
	if req.Authority.provenAs(hdr.Owner) {
		return UpdateByOwner, nil
	}
	if class, ok := hdr.Class.Get(); ok && req.Authority.provenAs(class) {
		return UpdateByClass, nil
	}
	if req.Parent != nil {
		if !hdr.ParentName.Equal(req.Parent.Address) {
			return 0, fmt.Errorf("%w: %w: %s is not the record's parent", nameregistry.ErrUnauthorized,
				nameregistry.ErrAddressMismatch, req.Parent.Address.ShortString())
		}
		// A parent that no longer loads leaves the parent case unsatisfied.
		if parentHdr, err := headers(req.Parent.Address); err == nil && req.Authority.provenAs(parentHdr.Owner) {
			return UpdateByParent, nil
		}
	}
	return 0, fmt.Errorf("%w: no owner, class or parent owner proof for update", nameregistry.ErrUnauthorized)
}

// AuthorizeTransfer requires the owner's proof, plus the class authority's
// proof when the record has a class. When the parent accounts are supplied
// they must match the record's parent and that parent's owner, but the
// parent owner is not required to sign.
func (e *Engine) AuthorizeTransfer(hdr nameregistry.RecordHeader, req TransferRequest, headers HeaderFunc) error {
	if !req.Owner.provenAs(hdr.Owner) {
		return fmt.Errorf("%w: owner proof required for transfer", nameregistry.ErrUnauthorized)
	}
	if class, ok := hdr.Class.Get(); ok {
		if req.Class == nil || !req.Class.provenAs(class) {
			return fmt.Errorf("%w: class %s must co-sign transfer", nameregistry.ErrUnauthorized, class.ShortString())
		}
	} else if req.Class != nil {
		return fmt.Errorf("%w: record has no class authority", nameregistry.ErrAccountMismatch)
	}

	if !req.Record.Writable {
		return fmt.Errorf("%w: record must be writable", nameregistry.ErrAccountMismatch)
	}
	if req.Parent != nil {
		if !hdr.ParentName.Equal(req.Parent.Address) {
			return fmt.Errorf("%w: %s is not the record's parent", nameregistry.ErrAddressMismatch, req.Parent.Address.ShortString())
		}
		parentHdr, err := headers(req.Parent.Address)
		if err != nil {
			return fmt.Errorf("loading parent: %w", err)
		}
		if req.ParentOwner == nil || req.ParentOwner.Address != parentHdr.Owner {
			return fmt.Errorf("%w: parent owner does not match parent record", nameregistry.ErrAccountMismatch)
		}
	}
	return nil
}

// AuthorizeDelete requires the owner's proof.
func (e *Engine) AuthorizeDelete(hdr nameregistry.RecordHeader, req DeleteRequest) error {
	if !req.Owner.provenAs(hdr.Owner) {
		return fmt.Errorf("%w: owner proof required for delete", nameregistry.ErrUnauthorized)
	}
	if !req.Record.Writable || !req.RefundTarget.Writable {
		return fmt.Errorf("%w: record and refund target must be writable", nameregistry.ErrAccountMismatch)
	}
	if req.RefundTarget.Address == req.Record.Address {
		return fmt.Errorf("%w: refund target cannot be the record", nameregistry.ErrAccountMismatch)
	}
	return nil
}
