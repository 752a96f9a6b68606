// Command registryd runs the name registry daemon and its maintenance tasks.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/lmittmann/tint"

	nameregistry "github.com/wolfeidau/name-registry"
	"github.com/wolfeidau/name-registry/backup"
	"github.com/wolfeidau/name-registry/client"
	"github.com/wolfeidau/name-registry/config"
	"github.com/wolfeidau/name-registry/ledger"
	"github.com/wolfeidau/name-registry/registry"
	"github.com/wolfeidau/name-registry/server"
	"github.com/wolfeidau/name-registry/telemetry"
)

var version = "dev"

// Globals are flags shared by every command.
type Globals struct {
	LogLevel  string           `help:"Log level (debug, info, warn, error). Overrides the config file."`
	LogFormat string           `help:"Log format (text, json). Overrides the config file."`
	Version   kong.VersionFlag `help:"Print version and exit."`
}

type cli struct {
	Globals

	Serve    serveCmd    `cmd:"" default:"1" help:"Run the registry daemon."`
	Snapshot snapshotCmd `cmd:"" help:"Download a compressed ledger snapshot from a running daemon."`
	Restore  restoreCmd  `cmd:"" help:"Restore a snapshot into a new ledger file."`
	Derive   deriveCmd   `cmd:"" help:"Print the record address for a name."`
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var c cli
	parser, err := kong.New(&c,
		kong.Name("registryd"),
		kong.Description("A hierarchical name registry over an account ledger."),
		kong.UsageOnError(),
		kong.Vars{
			"version":         version,
			"default_url":     client.DefaultBaseURL,
			"default_program": config.DefaultProgramID,
		},
	)
	if err != nil {
		return err
	}

	kctx, err := parser.Parse(args)
	if err != nil {
		return err
	}
	return kctx.Run(&c.Globals)
}

// newLogger builds a colourised tint handler for text output and a JSON handler otherwise.
func newLogger(level slog.Level, format string) *slog.Logger {
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	default:
		handler = tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: time.TimeOnly,
		})
	}
	return slog.New(handler)
}

type serveCmd struct {
	Config         string `help:"Path to a YAML config file." short:"c" type:"existingfile"`
	Listen         string `help:"Address to listen on."`
	Ledger         string `help:"Ledger database path."`
	MaxConnections int    `help:"Maximum concurrent connections, 0 for unlimited." default:"-1"`
	AdminToken     string `help:"Bearer token enabling the admin endpoints." env:"REGISTRY_ADMIN_TOKEN"`
	OTLPEndpoint   string `help:"OTLP gRPC endpoint for metric export." name:"otlp-endpoint"`
}

func (s *serveCmd) load(g *Globals) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if s.Config != "" {
		var err error
		if cfg, err = config.LoadFromPath(s.Config); err != nil {
			return nil, err
		}
	}

	if s.Listen != "" {
		cfg.Listen = s.Listen
	}
	if s.Ledger != "" {
		cfg.Ledger.Path = s.Ledger
	}
	if s.MaxConnections >= 0 {
		cfg.MaxConnections = s.MaxConnections
	}
	if s.AdminToken != "" {
		cfg.AdminToken = s.AdminToken
	}
	if s.OTLPEndpoint != "" {
		cfg.Metrics.OTLPEndpoint = s.OTLPEndpoint
	}
	if g.LogLevel != "" {
		cfg.Log.Level = g.LogLevel
	}
	if g.LogFormat != "" {
		cfg.Log.Format = g.LogFormat
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (s *serveCmd) Run(g *Globals) error {
	cfg, err := s.load(g)
	if err != nil {
		return err
	}

	level, _ := cfg.LogLevel()
	logger := newLogger(level, cfg.Log.Format)
	slog.SetDefault(logger)

	programID, _ := cfg.ProgramAddress()
	genesis, _ := cfg.GenesisBalances()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownMetrics, err := telemetry.InitMetrics(ctx, telemetry.MetricsConfig{
		ServiceName:      "name-registry",
		ServiceVersion:   version,
		OTLPEndpoint:     cfg.Metrics.OTLPEndpoint,
		EnablePrometheus: cfg.Metrics.Prometheus,
		FlushInterval:    cfg.Metrics.FlushInterval,
	})
	if err != nil {
		return fmt.Errorf("initializing metrics: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(flushCtx); err != nil {
			logger.Warn("flushing metrics", "error", err)
		}
	}()

	l := ledger.New(ledger.WithLogger(logger), ledger.WithNoSync(cfg.Ledger.NoSync))
	if err := l.Open(cfg.Ledger.Path); err != nil {
		return err
	}
	defer func() {
		if err := l.Close(); err != nil {
			logger.Error("closing ledger", "error", err)
		}
	}()

	if err := l.ApplyGenesis(ctx, genesis); err != nil {
		return fmt.Errorf("applying genesis: %w", err)
	}

	if cfg.Backup.Dir != "" {
		backups, err := backup.NewManager(l, backup.Config{
			Dir:      cfg.Backup.Dir,
			Interval: cfg.Backup.Interval,
			Keep:     cfg.Backup.Keep,
			MaxAge:   cfg.Backup.MaxAge,
			Logger:   logger,
		})
		if err != nil {
			return err
		}
		backups.Start(ctx)
		defer backups.Stop()
	}

	processor := registry.NewProcessor(l, programID, registry.WithLogger(logger))
	srv, err := server.New(server.Config{
		Address:        cfg.Listen,
		MaxConnections: cfg.MaxConnections,
		AdminToken:     cfg.AdminToken,
		Logger:         logger,
	}, l, processor)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	logger.Info("registry started",
		"version", version,
		"ledger", cfg.Ledger.Path,
		"admin", cfg.AdminToken != "",
	)

	select {
	case <-ctx.Done():
		logger.Info("received signal, shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

type snapshotCmd struct {
	Server string `help:"Daemon base URL." default:"${default_url}"`
	Token  string `help:"Admin bearer token." env:"REGISTRY_ADMIN_TOKEN" required:""`
	Output string `arg:"" help:"File to write the snapshot to. Must not exist." type:"path"`
}

func (s *snapshotCmd) Run(g *Globals) error {
	logger := newLogger(slog.LevelInfo, g.LogFormat)

	f, err := os.OpenFile(s.Output, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("creating %s: %w", s.Output, err)
	}

	c := client.New(client.WithBaseURL(s.Server), client.WithAdminToken(s.Token))
	n, err := c.Snapshot(context.Background(), f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(s.Output)
		return fmt.Errorf("downloading snapshot: %w", err)
	}

	logger.Info("snapshot written", "path", s.Output, "bytes", n)
	return nil
}

type restoreCmd struct {
	Input  string `arg:"" help:"Snapshot file." type:"existingfile"`
	Ledger string `arg:"" help:"Ledger database to create. Must not exist." type:"path"`
}

func (r *restoreCmd) Run(g *Globals) error {
	logger := newLogger(slog.LevelInfo, g.LogFormat)

	f, err := os.Open(r.Input)
	if err != nil {
		return err
	}
	defer f.Close()

	n, err := ledger.Restore(f, r.Ledger)
	if errors.Is(err, ledger.ErrSnapshotTarget) {
		return fmt.Errorf("%s already exists, refusing to overwrite", r.Ledger)
	}
	if err != nil {
		return err
	}

	logger.Info("ledger restored", "path", r.Ledger, "bytes", n)
	return nil
}

type deriveCmd struct {
	Name      string `arg:"" help:"Plain name to hash."`
	Class     string `help:"Hex class authority address."`
	Parent    string `help:"Hex parent record address."`
	ProgramID string `help:"Hex program id." default:"${default_program}"`
}

func (d *deriveCmd) Run(_ *Globals) error {
	programID, err := nameregistry.ParseAddress(d.ProgramID)
	if err != nil {
		return fmt.Errorf("program id: %w", err)
	}
	class, err := optionalAddress(d.Class)
	if err != nil {
		return fmt.Errorf("class: %w", err)
	}
	parent, err := optionalAddress(d.Parent)
	if err != nil {
		return fmt.Errorf("parent: %w", err)
	}

	addr, seeds, err := nameregistry.NewDeriver(programID).Derive(nameregistry.HashName(d.Name), class, parent)
	if err != nil {
		return err
	}
	fmt.Printf("address %s\nnonce   %d\n", addr, seeds[len(seeds)-1])
	return nil
}

func optionalAddress(s string) (nameregistry.OptionalAddress, error) {
	if s == "" {
		return nameregistry.None(), nil
	}
	a, err := nameregistry.ParseAddress(s)
	if err != nil {
		return nameregistry.None(), err
	}
	return nameregistry.Some(a), nil
}
