package ledger

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	nameregistry "github.com/wolfeidau/name-registry"
)

func newTestLedger(t *testing.T, opts ...Option) *Ledger {
	t.Helper()
	l := New(append([]Option{WithNoSync(true)}, opts...)...)
	require.NoError(t, l.Open(filepath.Join(t.TempDir(), "ledger.db")))
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func addr(b byte) nameregistry.Address {
	var a nameregistry.Address
	for i := range a {
		a[i] = b
	}
	return a
}

func TestLedger_AccountOperations(t *testing.T) {
	ctx := context.Background()

	t.Run("PutAccount and Account round-trip", func(t *testing.T) {
		l := newTestLedger(t)
		want := &Account{Lamports: 42, Owner: addr(9), Data: []byte{1, 2, 3}}

		require.NoError(t, l.Update(ctx, func(tx *Tx) error {
			return tx.PutAccount(addr(1), want)
		}))

		got, err := l.Account(ctx, addr(1))
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("Account returns ErrNotFound for missing address", func(t *testing.T) {
		l := newTestLedger(t)
		_, err := l.Account(ctx, addr(1))
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("DeleteAccount removes entry", func(t *testing.T) {
		l := newTestLedger(t)
		require.NoError(t, l.Fund(ctx, addr(1), 10))
		require.NoError(t, l.Update(ctx, func(tx *Tx) error {
			return tx.DeleteAccount(addr(1))
		}))
		_, err := l.Account(ctx, addr(1))
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("failed Update rolls back", func(t *testing.T) {
		l := newTestLedger(t)
		boom := errors.New("boom")

		err := l.Update(ctx, func(tx *Tx) error {
			if err := tx.Credit(addr(1), 100); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)

		_, err = l.Account(ctx, addr(1))
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("cancelled context", func(t *testing.T) {
		l := newTestLedger(t)
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		require.ErrorIs(t, l.Fund(cctx, addr(1), 1), context.Canceled)
	})
}

func TestLedger_Transfer(t *testing.T) {
	ctx := context.Background()

	t.Run("moves lamports", func(t *testing.T) {
		l := newTestLedger(t)
		require.NoError(t, l.Fund(ctx, addr(1), 100))

		require.NoError(t, l.Update(ctx, func(tx *Tx) error {
			return tx.Transfer(addr(1), addr(2), 30)
		}))

		src, err := l.Account(ctx, addr(1))
		require.NoError(t, err)
		assert.EqualValues(t, 70, src.Lamports)

		dst, err := l.Account(ctx, addr(2))
		require.NoError(t, err)
		assert.EqualValues(t, 30, dst.Lamports)
	})

	t.Run("drained system account is removed", func(t *testing.T) {
		l := newTestLedger(t)
		require.NoError(t, l.Fund(ctx, addr(1), 10))
		require.NoError(t, l.Update(ctx, func(tx *Tx) error {
			return tx.Transfer(addr(1), addr(2), 10)
		}))
		_, err := l.Account(ctx, addr(1))
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("insufficient funds", func(t *testing.T) {
		l := newTestLedger(t)
		require.NoError(t, l.Fund(ctx, addr(1), 10))
		err := l.Update(ctx, func(tx *Tx) error {
			return tx.Transfer(addr(1), addr(2), 11)
		})
		require.ErrorIs(t, err, nameregistry.ErrInsufficientFunds)
	})

	t.Run("missing source", func(t *testing.T) {
		l := newTestLedger(t)
		err := l.Update(ctx, func(tx *Tx) error {
			return tx.Transfer(addr(1), addr(2), 1)
		})
		require.ErrorIs(t, err, ErrNotFound)
	})
}

func TestLedger_Genesis(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	balances := map[nameregistry.Address]uint64{addr(1): 100, addr(2): 200}
	require.NoError(t, l.ApplyGenesis(ctx, balances))

	require.NoError(t, l.Update(ctx, func(tx *Tx) error {
		return tx.Transfer(addr(1), addr(3), 50)
	}))

	// Re-applying must not refund spent balances.
	require.NoError(t, l.ApplyGenesis(ctx, balances))

	a1, err := l.Account(ctx, addr(1))
	require.NoError(t, err)
	assert.EqualValues(t, 50, a1.Lamports)

	stats, err := l.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Accounts)
	assert.EqualValues(t, 300, stats.TotalLamports)
}

func TestLedger_ConcurrentCredits(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	const workers = 8
	const perWorker = 25

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perWorker {
				assert.NoError(t, l.Fund(ctx, addr(1), 1))
			}
		}()
	}
	wg.Wait()

	acct, err := l.Account(ctx, addr(1))
	require.NoError(t, err)
	assert.EqualValues(t, workers*perWorker, acct.Lamports)
}

func TestLedger_SnapshotRestore(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	require.NoError(t, l.Fund(ctx, addr(1), 77))
	require.NoError(t, l.Update(ctx, func(tx *Tx) error {
		return tx.PutAccount(addr(2), &Account{Lamports: 5, Owner: addr(9), Data: []byte("record")})
	}))

	var buf bytes.Buffer
	n, err := l.Snapshot(ctx, &buf)
	require.NoError(t, err)
	require.Positive(t, n)

	path := filepath.Join(t.TempDir(), "restored.db")
	restored, err := Restore(bytes.NewReader(buf.Bytes()), path)
	require.NoError(t, err)
	assert.Equal(t, n, restored)

	r := New(WithNoSync(true))
	require.NoError(t, r.Open(path))
	t.Cleanup(func() { _ = r.Close() })

	a2, err := r.Account(ctx, addr(2))
	require.NoError(t, err)
	assert.Equal(t, []byte("record"), a2.Data)

	_, err = Restore(bytes.NewReader(buf.Bytes()), path)
	require.ErrorIs(t, err, ErrSnapshotTarget)
}
