package registry

import (
	"fmt"

	nameregistry "github.com/wolfeidau/name-registry"
	"github.com/wolfeidau/name-registry/instruction"
)

// The account list shape selects the case for each operation. Every shape
// has a distinct length, so no placeholder accounts are needed:
//
//	Create:   3 plain, 4 +class, 5 +parent/parent owner, 6 +class +parent/parent owner
//	Update:   2 owner or class, 3 parent owner + parent
//	Transfer: 2 owner, 3 owner + class, 4 owner + parent owner + parent
//	Delete:   3

func bindCreate(p instruction.Create, metas []instruction.AccountMeta) (CreateRequest, error) {
	req := CreateRequest{Payload: p}
	switch len(metas) {
	case 3, 4, 5, 6:
	default:
		return req, accountCountError("create", len(metas), "3 to 6")
	}

	req.Funder = accountFromMeta(metas[0])
	req.Record = accountFromMeta(metas[1])
	req.Owner = accountFromMeta(metas[2])

	rest := metas[3:]
	if len(rest) == 1 || len(rest) == 3 {
		class := accountFromMeta(rest[0])
		req.Class = &class
		rest = rest[1:]
	}
	if len(rest) == 2 {
		parent := accountFromMeta(rest[0])
		parentOwner := accountFromMeta(rest[1])
		req.Parent = &parent
		req.ParentOwner = &parentOwner
	}
	return req, nil
}

func bindUpdate(p instruction.Update, metas []instruction.AccountMeta) (UpdateRequest, error) {
	req := UpdateRequest{Payload: p}
	switch len(metas) {
	case 2:
	case 3:
		parent := accountFromMeta(metas[2])
		req.Parent = &parent
	default:
		return req, accountCountError("update", len(metas), "2 or 3")
	}
	req.Record = accountFromMeta(metas[0])
	req.Authority = accountFromMeta(metas[1])
	return req, nil
}

func bindTransfer(p instruction.Transfer, metas []instruction.AccountMeta) (TransferRequest, error) {
	req := TransferRequest{Payload: p}
	switch len(metas) {
	case 2:
	case 3:
		class := accountFromMeta(metas[2])
		req.Class = &class
	case 4:
		parentOwner := accountFromMeta(metas[2])
		parent := accountFromMeta(metas[3])
		req.ParentOwner = &parentOwner
		req.Parent = &parent
	default:
		return req, accountCountError("transfer", len(metas), "2 to 4")
	}
	req.Record = accountFromMeta(metas[0])
	req.Owner = accountFromMeta(metas[1])
	return req, nil
}

func bindDelete(metas []instruction.AccountMeta) (DeleteRequest, error) {
	if len(metas) != 3 {
		return DeleteRequest{}, accountCountError("delete", len(metas), "3")
	}
	return DeleteRequest{
		Record:       accountFromMeta(metas[0]),
		Owner:        accountFromMeta(metas[1]),
		RefundTarget: accountFromMeta(metas[2]),
	}, nil
}

func accountCountError(op string, got int, want string) error {
	return fmt.Errorf("%w: %s expects %s accounts, got %d", nameregistry.ErrAccountMismatch, op, want, got)
}
