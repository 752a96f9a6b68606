// Package ledger provides the account storage the registry runs against,
// using bbolt. All mutations run inside a single serialized read-write
// transaction that either commits fully or not at all.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.etcd.io/bbolt"

	nameregistry "github.com/wolfeidau/name-registry"
)

// ErrNotFound is returned when an account does not exist.
var ErrNotFound = errors.New("ledger: account not found")

// Ledger is a bbolt-backed account store.
type Ledger struct {
	db     *bbolt.DB
	logger *slog.Logger
	noSync bool // disables fsync per transaction (for testing only)
}

// Option configures a Ledger instance.
type Option func(*Ledger)

// WithLogger sets the logger for the ledger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
	}
}

// WithNoSync disables fsync per transaction.
// WARNING: This improves write performance but risks data loss on crash.
// Use only for testing or benchmarking, never in production.
func WithNoSync(noSync bool) Option {
	return func(l *Ledger) {
		l.noSync = noSync
	}
}

// New creates a new Ledger with options. Call Open before use.
func New(opts ...Option) *Ledger {
	l := &Ledger{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Open opens the ledger database at the given path.
func (l *Ledger) Open(path string) error {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{
		Timeout: 1 * time.Second,
		NoSync:  l.noSync,
	})
	if err != nil {
		return fmt.Errorf("opening ledger: %w", err)
	}
	l.db = db

	if err := l.createBuckets(); err != nil {
		_ = db.Close()
		return err
	}

	l.logger.Debug("opened ledger", "path", path, "noSync", l.noSync)
	return nil
}

func (l *Ledger) createBuckets() error {
	return l.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketAccounts, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("creating bucket %s: %w", name, err)
			}
		}
		meta := tx.Bucket(bucketMeta)
		if v := meta.Get(keySchemaVersion); v == nil {
			return meta.Put(keySchemaVersion, encodeUint64(schemaVersion))
		} else if got := decodeUint64(v); got != schemaVersion {
			return fmt.Errorf("unsupported ledger schema version %d", got)
		}
		return nil
	})
}

// Close closes the database and releases resources.
func (l *Ledger) Close() error {
	if l.db == nil {
		return nil
	}
	l.logger.Debug("closing ledger")
	return l.db.Close()
}

// View runs fn in a read-only transaction.
func (l *Ledger) View(ctx context.Context, fn func(*Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return l.db.View(func(btx *bbolt.Tx) error {
		return fn(&Tx{tx: btx})
	})
}

// Update runs fn in a read-write transaction. Writes made by fn are
// committed only if fn returns nil. Update calls are serialized.
func (l *Ledger) Update(ctx context.Context, fn func(*Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return l.db.Update(func(btx *bbolt.Tx) error {
		return fn(&Tx{tx: btx})
	})
}

// Account returns a copy of the account at addr.
func (l *Ledger) Account(ctx context.Context, addr nameregistry.Address) (*Account, error) {
	var acct *Account
	err := l.View(ctx, func(tx *Tx) error {
		var err error
		acct, err = tx.Account(addr)
		return err
	})
	return acct, err
}

// Fund credits lamports to addr, creating a system account if needed.
func (l *Ledger) Fund(ctx context.Context, addr nameregistry.Address, lamports uint64) error {
	return l.Update(ctx, func(tx *Tx) error {
		return tx.Credit(addr, lamports)
	})
}

// ApplyGenesis funds each address that does not exist yet. Existing accounts
// are left untouched so restarts are idempotent.
func (l *Ledger) ApplyGenesis(ctx context.Context, balances map[nameregistry.Address]uint64) error {
	return l.Update(ctx, func(tx *Tx) error {
		for addr, lamports := range balances {
			if _, err := tx.Account(addr); err == nil {
				continue
			} else if !errors.Is(err, ErrNotFound) {
				return err
			}
			if err := tx.Credit(addr, lamports); err != nil {
				return fmt.Errorf("genesis %s: %w", addr.ShortString(), err)
			}
			l.logger.Info("genesis account funded", "address", addr.String(), "lamports", lamports)
		}
		return nil
	})
}

// Stats summarizes ledger contents.
type Stats struct {
	Accounts      int    `json:"accounts"`
	TotalLamports uint64 `json:"total_lamports"`
	TotalBytes    int64  `json:"total_bytes"`
}

// Stats scans all accounts.
func (l *Ledger) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	err := l.View(ctx, func(tx *Tx) error {
		return tx.tx.Bucket(bucketAccounts).ForEach(func(_, v []byte) error {
			acct, err := decodeAccount(v)
			if err != nil {
				return err
			}
			s.Accounts++
			s.TotalLamports += acct.Lamports
			s.TotalBytes += int64(len(acct.Data))
			return nil
		})
	})
	return s, err
}
