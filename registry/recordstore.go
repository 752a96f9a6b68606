package registry

import (
	"errors"
	"fmt"

	nameregistry "github.com/wolfeidau/name-registry"
	"github.com/wolfeidau/name-registry/ledger"
)

// Record is a name record loaded from the ledger.
type Record struct {
	Address  nameregistry.Address
	Header   nameregistry.RecordHeader
	Data     []byte // data region after the header; its length is fixed at creation
	Lamports uint64
}

// RecordStore reads and writes name records inside a ledger transaction.
type RecordStore struct {
	programID nameregistry.Address
}

// NewRecordStore creates a RecordStore for records owned by programID.
func NewRecordStore(programID nameregistry.Address) *RecordStore {
	return &RecordStore{programID: programID}
}

// Load returns the initialized record at addr. Missing or uninitialized
// storage yields ErrNotInitialized.
func (s *RecordStore) Load(tx *ledger.Tx, addr nameregistry.Address) (*Record, error) {
	acct, err := tx.Account(addr)
	if errors.Is(err, ledger.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", nameregistry.ErrNotInitialized, addr.ShortString())
	}
	if err != nil {
		return nil, err
	}
	if len(acct.Data) == 0 {
		return nil, fmt.Errorf("%w: %s", nameregistry.ErrNotInitialized, addr.ShortString())
	}
	if acct.Owner != s.programID {
		return nil, fmt.Errorf("%w: %s is not owned by the registry", nameregistry.ErrAccountMismatch, addr.ShortString())
	}

	hdr, err := nameregistry.DecodeHeader(acct.Data)
	if err != nil {
		return nil, fmt.Errorf("record %s: %w", addr.ShortString(), err)
	}
	if !hdr.IsInitialized() {
		return nil, fmt.Errorf("%w: %s", nameregistry.ErrNotInitialized, addr.ShortString())
	}

	return &Record{
		Address:  addr,
		Header:   hdr,
		Data:     acct.Data[nameregistry.HeaderSize:],
		Lamports: acct.Lamports,
	}, nil
}

// Header returns the header of the initialized record at addr.
func (s *RecordStore) Header(tx *ledger.Tx, addr nameregistry.Address) (nameregistry.RecordHeader, error) {
	rec, err := s.Load(tx, addr)
	if err != nil {
		return nameregistry.RecordHeader{}, err
	}
	return rec.Header, nil
}

// CheckVacant fails with ErrAlreadyInitialized when addr already holds
// storage. A plain pre-funded account with no data counts as vacant.
func (s *RecordStore) CheckVacant(tx *ledger.Tx, addr nameregistry.Address) error {
	acct, err := tx.Account(addr)
	if errors.Is(err, ledger.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(acct.Data) > 0 || !acct.Owner.IsZero() {
		return fmt.Errorf("%w: %s", nameregistry.ErrAlreadyInitialized, addr.ShortString())
	}
	return nil
}

// Allocate moves lamports from funder to addr and assigns HeaderSize+space
// bytes of zeroed storage owned by the registry, headed by hdr.
func (s *RecordStore) Allocate(tx *ledger.Tx, addr, funder nameregistry.Address, hdr nameregistry.RecordHeader, space uint32, lamports uint64) (*Record, error) {
	if err := tx.Transfer(funder, addr, lamports); err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return nil, fmt.Errorf("funding record: %w: funder %s has no account",
				nameregistry.ErrInsufficientFunds, funder.ShortString())
		}
		return nil, fmt.Errorf("funding record: %w", err)
	}

	acct, err := tx.Account(addr)
	if errors.Is(err, ledger.ErrNotFound) {
		// Zero deposit and no prior balance.
		acct = &ledger.Account{}
	} else if err != nil {
		return nil, err
	}

	acct.Owner = s.programID
	acct.Data = make([]byte, nameregistry.HeaderSize+int(space))
	hdr.PutInto(acct.Data)
	if err := tx.PutAccount(addr, acct); err != nil {
		return nil, err
	}

	return &Record{
		Address:  addr,
		Header:   hdr,
		Data:     acct.Data[nameregistry.HeaderSize:],
		Lamports: acct.Lamports,
	}, nil
}

// CheckBounds fails with ErrOutOfSpace unless [offset, offset+n) lies within
// the record's data region.
func CheckBounds(rec *Record, offset uint32, n int) error {
	end := uint64(offset) + uint64(n)
	if end > uint64(len(rec.Data)) {
		return fmt.Errorf("%w: write [%d, %d) exceeds data region of %d bytes",
			nameregistry.ErrOutOfSpace, offset, end, len(rec.Data))
	}
	return nil
}

// WriteData copies data into the record's data region at offset and persists it.
func (s *RecordStore) WriteData(tx *ledger.Tx, rec *Record, offset uint32, data []byte) error {
	if err := CheckBounds(rec, offset, len(data)); err != nil {
		return err
	}
	copy(rec.Data[offset:], data)
	return s.store(tx, rec)
}

// WriteHeader persists rec.Header.
func (s *RecordStore) WriteHeader(tx *ledger.Tx, rec *Record) error {
	return s.store(tx, rec)
}

// Close zeroes the record, removes its storage and moves its whole balance
// to refund.
func (s *RecordStore) Close(tx *ledger.Tx, rec *Record, refund nameregistry.Address) error {
	rec.Header = nameregistry.RecordHeader{}
	clear(rec.Data)

	if err := tx.DeleteAccount(rec.Address); err != nil {
		return err
	}
	if rec.Lamports == 0 {
		return nil
	}
	return tx.Credit(refund, rec.Lamports)
}

func (s *RecordStore) store(tx *ledger.Tx, rec *Record) error {
	data := make([]byte, nameregistry.HeaderSize+len(rec.Data))
	rec.Header.PutInto(data)
	copy(data[nameregistry.HeaderSize:], rec.Data)
	return tx.PutAccount(rec.Address, &ledger.Account{
		Lamports: rec.Lamports,
		Owner:    s.programID,
		Data:     data,
	})
}
