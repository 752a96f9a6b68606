// Package registry applies name registry instructions to the ledger: it binds
// accounts to roles, authorizes the operation against the record header and
// only then mutates record storage.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	nameregistry "github.com/wolfeidau/name-registry"
	"github.com/wolfeidau/name-registry/instruction"
	"github.com/wolfeidau/name-registry/ledger"
	"github.com/wolfeidau/name-registry/telemetry"
)

// Result describes an applied instruction.
type Result struct {
	Operation instruction.Tag      `json:"operation"`
	Record    nameregistry.Address `json:"record"`
	// Authority is the role that authorized an update ("owner", "class" or "parent").
	Authority string `json:"authority,omitempty"`
}

// Processor executes registry instructions.
type Processor struct {
	programID nameregistry.Address
	ledger    *ledger.Ledger
	engine    *Engine
	store     *RecordStore
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Processor.
type Option func(*Processor)

// WithLogger sets the logger for the processor.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

// NewProcessor creates a Processor for programID backed by l.
func NewProcessor(l *ledger.Ledger, programID nameregistry.Address, opts ...Option) *Processor {
	p := &Processor{
		programID: programID,
		ledger:    l,
		engine:    NewEngine(programID),
		store:     NewRecordStore(programID),
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProgramID returns the program the processor executes for.
func (p *Processor) ProgramID() nameregistry.Address {
	return p.programID
}

// Process decodes ix, authorizes it and applies it in one ledger
// transaction. Account signer flags must already reflect verified proofs.
// On error nothing is written.
func (p *Processor) Process(ctx context.Context, ix *instruction.Instruction) (*Result, error) {
	start := p.now()
	op := "unknown"

	res, err := p.process(ctx, ix, &op)

	kind := nameregistry.ErrorKind(err)
	telemetry.RecordInstruction(ctx, op, kind, p.now().Sub(start))
	telemetry.TagInstruction(ctx, op, kind)
	if err != nil {
		p.logger.Info("instruction rejected", "op", op, "kind", kind, "error", err)
		return nil, err
	}
	p.logger.Debug("instruction applied", "op", op, "record", res.Record.String(), "authority", res.Authority)
	return res, nil
}

func (p *Processor) process(ctx context.Context, ix *instruction.Instruction, op *string) (*Result, error) {
	if ix.ProgramID != p.programID {
		return nil, fmt.Errorf("%w: instruction for program %s", nameregistry.ErrAccountMismatch, ix.ProgramID.ShortString())
	}
	payload, err := instruction.Decode(ix.Data)
	if err != nil {
		return nil, err
	}
	*op = payload.Tag().String()

	var res *Result
	err = p.ledger.Update(ctx, func(tx *ledger.Tx) error {
		var err error
		switch pl := payload.(type) {
		case instruction.Create:
			res, err = p.create(tx, pl, ix.Accounts)
		case instruction.Update:
			res, err = p.update(tx, pl, ix.Accounts)
		case instruction.Transfer:
			res, err = p.transfer(tx, pl, ix.Accounts)
		case instruction.Delete:
			res, err = p.delete(tx, ix.Accounts)
		default:
			err = fmt.Errorf("%w: unsupported payload %T", nameregistry.ErrDecode, payload)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", *op, err)
	}
	return res, nil
}

func (p *Processor) headers(tx *ledger.Tx) HeaderFunc {
	return func(addr nameregistry.Address) (nameregistry.RecordHeader, error) {
		return p.store.Header(tx, addr)
	}
}

func (p *Processor) create(tx *ledger.Tx, pl instruction.Create, metas []instruction.AccountMeta) (*Result, error) {
	req, err := bindCreate(pl, metas)
	if err != nil {
		return nil, err
	}
	if err := p.engine.AuthorizeCreate(req, p.headers(tx)); err != nil {
		return nil, err
	}
	if err := p.store.CheckVacant(tx, req.Record.Address); err != nil {
		return nil, err
	}

	rec, err := p.store.Allocate(tx, req.Record.Address, req.Funder.Address, req.Header(), pl.Space, pl.Lamports)
	if err != nil {
		return nil, err
	}
	return &Result{Operation: instruction.TagCreate, Record: rec.Address}, nil
}

func (p *Processor) update(tx *ledger.Tx, pl instruction.Update, metas []instruction.AccountMeta) (*Result, error) {
	req, err := bindUpdate(pl, metas)
	if err != nil {
		return nil, err
	}
	rec, err := p.store.Load(tx, req.Record.Address)
	if err != nil {
		return nil, err
	}
	authority, err := p.engine.AuthorizeUpdate(rec.Header, req, p.headers(tx))
	if err != nil {
		return nil, err
	}
	if err := CheckBounds(rec, pl.Offset, len(pl.Data)); err != nil {
		return nil, err
	}

	if err := p.store.WriteData(tx, rec, pl.Offset, pl.Data); err != nil {
		return nil, err
	}
	return &Result{Operation: instruction.TagUpdate, Record: rec.Address, Authority: authority.String()}, nil
}

func (p *Processor) transfer(tx *ledger.Tx, pl instruction.Transfer, metas []instruction.AccountMeta) (*Result, error) {
	req, err := bindTransfer(pl, metas)
	if err != nil {
		return nil, err
	}
	rec, err := p.store.Load(tx, req.Record.Address)
	if err != nil {
		return nil, err
	}
	if err := p.engine.AuthorizeTransfer(rec.Header, req, p.headers(tx)); err != nil {
		return nil, err
	}
	if pl.NewOwner.IsZero() {
		return nil, fmt.Errorf("%w: new owner cannot be the zero address", nameregistry.ErrInvalidArgument)
	}

	rec.Header.Owner = pl.NewOwner
	if err := p.store.WriteHeader(tx, rec); err != nil {
		return nil, err
	}
	return &Result{Operation: instruction.TagTransfer, Record: rec.Address}, nil
}

func (p *Processor) delete(tx *ledger.Tx, metas []instruction.AccountMeta) (*Result, error) {
	req, err := bindDelete(metas)
	if err != nil {
		return nil, err
	}
	rec, err := p.store.Load(tx, req.Record.Address)
	if err != nil {
		return nil, err
	}
	if err := p.engine.AuthorizeDelete(rec.Header, req); err != nil {
		return nil, err
	}

	if err := p.store.Close(tx, rec, req.RefundTarget.Address); err != nil {
		return nil, err
	}
	return &Result{Operation: instruction.TagDelete, Record: rec.Address}, nil
}

// Record returns the record at addr as currently committed.
func (p *Processor) Record(ctx context.Context, addr nameregistry.Address) (*Record, error) {
	var rec *Record
	err := p.ledger.View(ctx, func(tx *ledger.Tx) error {
		var err error
		rec, err = p.store.Load(tx, addr)
		return err
	})
	return rec, err
}
