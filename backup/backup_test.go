package backup

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	nameregistry "github.com/wolfeidau/name-registry"
	"github.com/wolfeidau/name-registry/ledger"
)

type fakeSource struct {
	data string
	err  error
}

func (f *fakeSource) Snapshot(_ context.Context, w io.Writer) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	n, err := io.WriteString(w, f.data)
	return int64(n), err
}

func newTestManager(t *testing.T, src Snapshotter, cfg Config) (*Manager, *time.Time) {
	t.Helper()
	if cfg.Dir == "" {
		cfg.Dir = filepath.Join(t.TempDir(), "backups")
	}
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	m, err := NewManager(src, cfg)
	require.NoError(t, err)

	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }
	return m, &clock
}

func TestNewManager_Validation(t *testing.T) {
	_, err := NewManager(&fakeSource{}, Config{})
	require.Error(t, err)

	_, err = NewManager(&fakeSource{}, Config{Dir: t.TempDir(), Keep: -1})
	require.Error(t, err)
}

func TestRunOnce_WritesSnapshot(t *testing.T) {
	m, _ := newTestManager(t, &fakeSource{data: "snapshot-bytes"}, Config{})

	result := m.RunOnce(context.Background())
	require.Zero(t, result.Errors)
	require.EqualValues(t, len("snapshot-bytes"), result.Bytes)
	require.Equal(t, "ledger-20260301T120000.000Z.zst", filepath.Base(result.Path))

	data, err := os.ReadFile(result.Path)
	require.NoError(t, err)
	require.Equal(t, "snapshot-bytes", string(data))

	// No temp files left behind.
	entries, err := os.ReadDir(m.config.Dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestRunOnce_SourceError(t *testing.T) {
	m, _ := newTestManager(t, &fakeSource{err: errors.New("disk on fire")}, Config{})

	result := m.RunOnce(context.Background())
	require.Equal(t, 1, result.Errors)
	require.Empty(t, result.Path)

	paths, err := m.Snapshots()
	require.NoError(t, err)
	require.Empty(t, paths)

	entries, err := os.ReadDir(m.config.Dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestRunOnce_KeepNewest(t *testing.T) {
	m, clock := newTestManager(t, &fakeSource{data: "x"}, Config{Keep: 2})

	var written []string
	for range 4 {
		written = append(written, m.RunOnce(context.Background()).Path)
		*clock = clock.Add(time.Minute)
	}

	paths, err := m.Snapshots()
	require.NoError(t, err)
	require.Equal(t, written[2:], paths)
}

func TestRunOnce_MaxAge(t *testing.T) {
	m, clock := newTestManager(t, &fakeSource{data: "x"}, Config{MaxAge: 90 * time.Minute})

	first := m.RunOnce(context.Background()).Path
	*clock = clock.Add(time.Hour)
	second := m.RunOnce(context.Background()).Path
	*clock = clock.Add(time.Hour)

	result := m.RunOnce(context.Background())
	require.Equal(t, 1, result.Pruned)

	paths, err := m.Snapshots()
	require.NoError(t, err)
	require.NotContains(t, paths, first)
	require.Equal(t, []string{second, result.Path}, paths)
}

func TestSnapshots_IgnoresForeignFiles(t *testing.T) {
	m, _ := newTestManager(t, &fakeSource{data: "x"}, Config{Keep: 1})
	require.NoError(t, os.MkdirAll(m.config.Dir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(m.config.Dir, "notes.txt"), []byte("keep me"), 0o600))

	m.RunOnce(context.Background())

	_, err := os.Stat(filepath.Join(m.config.Dir, "notes.txt"))
	require.NoError(t, err)
}

func TestStartStop(t *testing.T) {
	m, _ := newTestManager(t, &fakeSource{data: "x"}, Config{Interval: time.Hour})

	m.Start(context.Background())
	require.Eventually(t, func() bool {
		paths, _ := m.Snapshots()
		return len(paths) == 1
	}, 5*time.Second, 10*time.Millisecond)

	m.Stop()
	m.Stop()
	m.Start(context.Background()) // no-op once stopped
}

func TestRunOnce_LedgerRoundTrip(t *testing.T) {
	ctx := context.Background()
	l := ledger.New(ledger.WithNoSync(true))
	require.NoError(t, l.Open(filepath.Join(t.TempDir(), "ledger.db")))
	defer l.Close()

	addr := nameregistry.Address{0x07}
	require.NoError(t, l.Fund(ctx, addr, 1234))

	m, _ := newTestManager(t, l, Config{})
	result := m.RunOnce(ctx)
	require.Zero(t, result.Errors)

	f, err := os.Open(result.Path)
	require.NoError(t, err)
	defer f.Close()

	restoredPath := filepath.Join(t.TempDir(), "restored.db")
	_, err = ledger.Restore(f, restoredPath)
	require.NoError(t, err)

	restored := ledger.New(ledger.WithNoSync(true))
	require.NoError(t, restored.Open(restoredPath))
	defer restored.Close()

	acct, err := restored.Account(ctx, addr)
	require.NoError(t, err)
	require.EqualValues(t, 1234, acct.Lamports)
}
