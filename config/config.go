// Package config loads the registry daemon configuration from YAML.
//
// Values missing from the file are filled with defaults, and command line
// flags override both.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	nameregistry "github.com/wolfeidau/name-registry"
)

// DefaultProgramID is the program id used when none is configured.
const DefaultProgramID = "4e616d6552656769737472793131313131313131313131313131313131313131"

// Config is the daemon configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen"`

	// ProgramID is the hex registry program id that owns record storage.
	ProgramID string `yaml:"program_id"`

	// MaxConnections caps concurrent HTTP connections. Zero means unlimited.
	MaxConnections int `yaml:"max_connections"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// AdminToken enables the /v1/admin/ endpoints behind Bearer auth.
	// It can also be set with REGISTRY_ADMIN_TOKEN.
	AdminToken string `yaml:"admin_token"`

	Ledger  LedgerConfig  `yaml:"ledger"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
	Backup  BackupConfig  `yaml:"backup"`

	// Genesis maps hex addresses to starting balances. Accounts that already
	// exist are left untouched.
	Genesis map[string]uint64 `yaml:"genesis"`
}

// LedgerConfig configures the ledger database.
type LedgerConfig struct {
	Path   string `yaml:"path"`
	NoSync bool   `yaml:"no_sync"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// MetricsConfig configures metric export.
type MetricsConfig struct {
	Prometheus    bool          `yaml:"prometheus"`
	OTLPEndpoint  string        `yaml:"otlp_endpoint"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// BackupConfig configures scheduled ledger snapshots. Backups are disabled
// when Dir is empty.
type BackupConfig struct {
	Dir      string        `yaml:"dir"`
	Interval time.Duration `yaml:"interval"`
	Keep     int           `yaml:"keep"`
	MaxAge   time.Duration `yaml:"max_age"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	c := &Config{}
	c.applyDefaults()
	c.Metrics.Prometheus = true
	return c
}

// LoadFromPath reads and parses the YAML file at path and applies defaults.
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// applyDefaults fills in missing values with defaults
func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = ":8080"
	}
	if c.ProgramID == "" {
		c.ProgramID = DefaultProgramID
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
	if c.Ledger.Path == "" {
		c.Ledger.Path = "./registry.db"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Metrics.FlushInterval == 0 {
		c.Metrics.FlushInterval = 10 * time.Second
	}
	if c.Backup.Interval == 0 {
		c.Backup.Interval = time.Hour
	}
}

// Validate reports every invalid field.
func (c *Config) Validate() error {
	var errs []error
	if _, err := c.ProgramAddress(); err != nil {
		errs = append(errs, err)
	}
	if c.MaxConnections < 0 {
		errs = append(errs, fmt.Errorf("max_connections must not be negative, got %d", c.MaxConnections))
	}
	if c.Backup.Keep < 0 {
		errs = append(errs, fmt.Errorf("backup.keep must not be negative, got %d", c.Backup.Keep))
	}
	if _, err := c.LogLevel(); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("invalid log format: %s", c.Log.Format))
	}
	if _, err := c.GenesisBalances(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ProgramAddress parses ProgramID.
func (c *Config) ProgramAddress() (nameregistry.Address, error) {
	a, err := nameregistry.ParseAddress(c.ProgramID)
	if err != nil {
		return a, fmt.Errorf("program_id: %w", err)
	}
	if a.IsZero() {
		return a, errors.New("program_id must not be zero")
	}
	return a, nil
}

// LogLevel parses Log.Level.
func (c *Config) LogLevel() (slog.Level, error) {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level: %s", c.Log.Level)
	}
}

// GenesisBalances parses the Genesis addresses.
func (c *Config) GenesisBalances() (map[nameregistry.Address]uint64, error) {
	out := make(map[nameregistry.Address]uint64, len(c.Genesis))
	for k, v := range c.Genesis {
		a, err := nameregistry.ParseAddress(k)
		if err != nil {
			return nil, fmt.Errorf("genesis %q: %w", k, err)
		}
		out[a] = v
	}
	return out, nil
}
