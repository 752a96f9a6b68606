package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
	"go.etcd.io/bbolt"
)

// ErrSnapshotTarget is returned when Restore would overwrite an existing file.
var ErrSnapshotTarget = errors.New("ledger: restore target already exists")

// Snapshot writes a zstd-compressed, consistent copy of the ledger database
// to w. Writers are not blocked while the snapshot runs.
func (l *Ledger) Snapshot(ctx context.Context, w io.Writer) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return 0, fmt.Errorf("creating zstd encoder: %w", err)
	}

	var n int64
	err = l.db.View(func(tx *bbolt.Tx) error {
		var werr error
		n, werr = tx.WriteTo(enc)
		return werr
	})
	if err != nil {
		_ = enc.Close()
		return n, fmt.Errorf("writing snapshot: %w", err)
	}
	if err := enc.Close(); err != nil {
		return n, fmt.Errorf("flushing snapshot: %w", err)
	}

	l.logger.Info("ledger snapshot written", "bytes", n)
	return n, nil
}

// Restore decompresses a snapshot produced by Snapshot into a new database
// file at path. The file must not already exist.
func Restore(r io.Reader, path string) (int64, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return 0, fmt.Errorf("creating zstd decoder: %w", err)
	}
	defer dec.Close()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return 0, fmt.Errorf("%w: %s", ErrSnapshotTarget, path)
		}
		return 0, fmt.Errorf("creating restore target: %w", err)
	}

	n, err := io.Copy(f, dec)
	if err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return n, fmt.Errorf("restoring snapshot: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return n, fmt.Errorf("syncing restore target: %w", err)
	}
	return n, f.Close()
}
