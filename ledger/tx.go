package ledger

import (
	"fmt"
	"math"

	"go.etcd.io/bbolt"

	nameregistry "github.com/wolfeidau/name-registry"
)

// Tx is a ledger transaction. It is only valid inside the View or Update
// callback that produced it.
type Tx struct {
	tx *bbolt.Tx
}

// Writable reports whether the transaction can mutate the ledger.
func (t *Tx) Writable() bool {
	return t.tx.Writable()
}

// Account returns a copy of the account at addr, or ErrNotFound.
func (t *Tx) Account(addr nameregistry.Address) (*Account, error) {
	v := t.tx.Bucket(bucketAccounts).Get(addr[:])
	if v == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, addr.ShortString())
	}
	return decodeAccount(v)
}

// PutAccount stores acct at addr, replacing any existing account.
func (t *Tx) PutAccount(addr nameregistry.Address, acct *Account) error {
	if err := t.tx.Bucket(bucketAccounts).Put(addr[:], acct.encode()); err != nil {
		return fmt.Errorf("putting account: %w", err)
	}
	return nil
}

// DeleteAccount removes the account at addr. Missing accounts are ignored.
func (t *Tx) DeleteAccount(addr nameregistry.Address) error {
	if err := t.tx.Bucket(bucketAccounts).Delete(addr[:]); err != nil {
		return fmt.Errorf("deleting account: %w", err)
	}
	return nil
}

// Credit adds lamports to addr, creating a system account when absent.
func (t *Tx) Credit(addr nameregistry.Address, lamports uint64) error {
	acct, err := t.loadOrEmpty(addr)
	if err != nil {
		return err
	}
	if acct.Lamports > math.MaxUint64-lamports {
		return fmt.Errorf("ledger: balance overflow for %s", addr.ShortString())
	}
	acct.Lamports += lamports
	return t.PutAccount(addr, acct)
}

// Transfer moves lamports between accounts. A source left with no lamports
// and no data is removed.
func (t *Tx) Transfer(from, to nameregistry.Address, lamports uint64) error {
	if from == to {
		return nil
	}
	src, err := t.Account(from)
	if err != nil {
		return err
	}
	if src.Lamports < lamports {
		return fmt.Errorf("%w: %s has %d, needs %d",
			nameregistry.ErrInsufficientFunds, from.ShortString(), src.Lamports, lamports)
	}
	src.Lamports -= lamports

	if src.Lamports == 0 && len(src.Data) == 0 {
		if err := t.DeleteAccount(from); err != nil {
			return err
		}
	} else if err := t.PutAccount(from, src); err != nil {
		return err
	}
	return t.Credit(to, lamports)
}

func (t *Tx) loadOrEmpty(addr nameregistry.Address) (*Account, error) {
	v := t.tx.Bucket(bucketAccounts).Get(addr[:])
	if v == nil {
		return &Account{}, nil
	}
	return decodeAccount(v)
}
