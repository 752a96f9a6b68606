// Package backup writes periodic compressed ledger snapshots to a directory
// and prunes old ones.
package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	filePrefix = "ledger-"
	fileSuffix = ".zst"

	// timestamps sort lexically in this layout
	timeLayout = "20060102T150405.000Z"
)

// Snapshotter streams a consistent ledger snapshot.
type Snapshotter interface {
	Snapshot(ctx context.Context, w io.Writer) (int64, error)
}

// Config holds backup configuration.
type Config struct {
	// Dir receives snapshot files. It is created if missing.
	Dir string

	// Interval between snapshots. Default is 1 hour.
	Interval time.Duration

	// Keep is how many snapshots to retain. Zero keeps all of them.
	Keep int

	// MaxAge removes snapshots older than this. Zero disables age pruning.
	MaxAge time.Duration

	Logger *slog.Logger
}

// Manager takes snapshots on a schedule.
type Manager struct {
	config Config
	source Snapshotter
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	running bool
	stopped bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewManager creates a backup manager for source.
func NewManager(source Snapshotter, cfg Config) (*Manager, error) {
	if cfg.Dir == "" {
		return nil, errors.New("backup: directory is required")
	}
	if cfg.Keep < 0 {
		return nil, fmt.Errorf("backup: keep must not be negative, got %d", cfg.Keep)
	}
	if cfg.Interval == 0 {
		cfg.Interval = time.Hour
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Manager{
		config: cfg,
		source: source,
		logger: cfg.Logger,
		now:    time.Now,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}, nil
}

// Start begins background snapshots. The first one is taken immediately.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped || m.running {
		return
	}
	m.running = true

	go m.run(ctx)
}

// Stop stops background snapshots and waits for an in-flight one to finish.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running || m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	m.mu.Unlock()

	close(m.stopCh)
	<-m.doneCh
}

func (m *Manager) run(ctx context.Context) {
	defer close(m.doneCh)

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	m.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.RunOnce(ctx)
		}
	}
}

// Result describes one backup run.
type Result struct {
	Path     string
	Bytes    int64
	Pruned   int
	Errors   int
	Duration time.Duration
}

// RunOnce takes a snapshot and prunes old ones.
func (m *Manager) RunOnce(ctx context.Context) *Result {
	start := m.now()
	result := &Result{}

	path, n, err := m.write(ctx, start)
	if err != nil {
		m.logger.Error("ledger backup failed", "error", err)
		result.Errors++
	} else {
		result.Path, result.Bytes = path, n
	}

	pruned, errs := m.prune(start)
	result.Pruned += pruned
	result.Errors += errs
	result.Duration = m.now().Sub(start)

	m.logger.Info("ledger backup complete",
		"path", result.Path,
		"bytes", result.Bytes,
		"pruned", result.Pruned,
		"errors", result.Errors,
		"duration", result.Duration,
	)
	return result
}

// write streams a snapshot into a temp file and renames it into place so a
// partial file never carries the snapshot name.
func (m *Manager) write(ctx context.Context, at time.Time) (string, int64, error) {
	if err := os.MkdirAll(m.config.Dir, 0o750); err != nil {
		return "", 0, fmt.Errorf("creating backup dir: %w", err)
	}

	tmp, err := os.CreateTemp(m.config.Dir, ".snapshot-*")
	if err != nil {
		return "", 0, fmt.Errorf("creating temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	n, err := m.source.Snapshot(ctx, tmp)
	if err != nil {
		_ = tmp.Close()
		return "", n, err
	}
	if err := tmp.Close(); err != nil {
		return "", n, fmt.Errorf("closing temp file: %w", err)
	}

	path := filepath.Join(m.config.Dir, filePrefix+at.UTC().Format(timeLayout)+fileSuffix)
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", n, fmt.Errorf("renaming snapshot: %w", err)
	}
	return path, n, nil
}

// Snapshots lists snapshot files in Dir, oldest first.
func (m *Manager) Snapshots() ([]string, error) {
	entries, err := os.ReadDir(m.config.Dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), filePrefix) || !strings.HasSuffix(e.Name(), fileSuffix) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	paths := make([]string, len(names))
	for i, n := range names {
		paths[i] = filepath.Join(m.config.Dir, n)
	}
	return paths, nil
}

func (m *Manager) prune(now time.Time) (pruned, errs int) {
	paths, err := m.Snapshots()
	if err != nil {
		m.logger.Warn("listing backups", "error", err)
		return 0, 1
	}

	var remove []string
	if m.config.MaxAge > 0 {
		cutoff := now.Add(-m.config.MaxAge)
		kept := paths[:0:0]
		for _, p := range paths {
			if t, ok := snapshotTime(p); ok && t.Before(cutoff) {
				remove = append(remove, p)
				continue
			}
			kept = append(kept, p)
		}
		paths = kept
	}
	if m.config.Keep > 0 && len(paths) > m.config.Keep {
		remove = append(remove, paths[:len(paths)-m.config.Keep]...)
	}

	for _, p := range remove {
		if err := os.Remove(p); err != nil {
			m.logger.Warn("removing old backup", "path", p, "error", err)
			errs++
			continue
		}
		pruned++
		m.logger.Debug("removed old backup", "path", p)
	}
	return pruned, errs
}

func snapshotTime(path string) (time.Time, bool) {
	name := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(path), filePrefix), fileSuffix)
	t, err := time.Parse(timeLayout, name)
	return t, err == nil
}
