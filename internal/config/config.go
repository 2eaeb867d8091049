// Package config holds the settings used to open a store from the command
// line or a TOML file.
package config

import (
	"strings"
	"time"

	"github.com/pelletier/go-toml"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ansell/openrdf-sesame-sub028/internal/storage"
	"github.com/ansell/openrdf-sesame-sub028/pkg/errors"
	"github.com/ansell/openrdf-sesame-sub028/pkg/logger"
	"github.com/ansell/openrdf-sesame-sub028/pkg/store"
)

// Conflict modes accepted in Transaction.ConflictMode.
const (
	ConflictBlock    = "block"
	ConflictFailFast = "fail-fast"
)

// Duration is a time.Duration that reads and writes as text ("5s") in
// TOML, and doubles as a pflag value.
type Duration time.Duration

func (d Duration) String() string { return time.Duration(d).String() }

// Set parses a duration; it makes Duration a pflag.Value.
func (d *Duration) Set(s string) error {
	return d.UnmarshalText([]byte(s))
}

func (d *Duration) Type() string { return "duration" }

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Config represents the configuration of a store.
type Config struct {
	// DataDir is where persistent backends keep their files.
	DataDir string `toml:"data-dir"`
	// Backend names the storage backend: memory, badger or bolt.
	Backend string `toml:"backend"`
	// Indexes is the index specification, e.g. "spoc,posc".
	Indexes string `toml:"indexes"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `toml:"log-level"`

	Transaction struct {
		// ConflictMode decides what a second writer does: block or fail-fast.
		ConflictMode string   `toml:"conflict-mode"`
		LockTimeout  Duration `toml:"lock-timeout"`
		// Sync flushes storage after every commit.
		Sync bool `toml:"sync"`
	} `toml:"transaction"`

	Compaction struct {
		// Threshold is the number of dead statement versions that
		// triggers compaction.
		Threshold int `toml:"threshold"`
	} `toml:"compaction"`

	Metric struct {
		Namespace string `toml:"namespace"`
	} `toml:"metric"`
}

// NewConfig returns an instance of Config with default options.
func NewConfig() *Config {
	c := &Config{
		DataDir:  "./sail_data",
		Backend:  storage.BackendBadger,
		Indexes:  store.DefaultIndexes,
		LogLevel: "info",
	}
	c.Transaction.ConflictMode = ConflictBlock
	c.Transaction.LockTimeout = Duration(store.DefaultLockTimeout)
	c.Compaction.Threshold = store.DefaultCompactThreshold
	c.Metric.Namespace = "sail"
	return c
}

// Validate checks the configuration against the backends in registry.
func (c *Config) Validate(registry *storage.Registry) error {
	known := false
	for _, name := range registry.Names() {
		if name == c.Backend {
			known = true
			break
		}
	}
	if !known {
		return errors.Newf(errors.ErrMalformedInput, "unknown backend %q, want one of %s", c.Backend, strings.Join(registry.Names(), ", "))
	}
	if c.Backend != storage.BackendMemory && c.DataDir == "" {
		return errors.Newf(errors.ErrMalformedInput, "backend %q needs a data directory", c.Backend)
	}
	if _, err := store.ParseIndexSpec(c.Indexes); err != nil {
		return err
	}
	if _, err := c.conflictMode(); err != nil {
		return err
	}
	if c.Transaction.LockTimeout <= 0 {
		return errors.Newf(errors.ErrMalformedInput, "lock timeout must be positive, got %s", c.Transaction.LockTimeout)
	}
	if c.Compaction.Threshold <= 0 {
		return errors.Newf(errors.ErrMalformedInput, "compaction threshold must be positive, got %d", c.Compaction.Threshold)
	}
	return nil
}

func (c *Config) conflictMode() (store.ConflictMode, error) {
	switch c.Transaction.ConflictMode {
	case ConflictBlock:
		return store.ConflictBlock, nil
	case ConflictFailFast:
		return store.ConflictFailFast, nil
	}
	return 0, errors.Newf(errors.ErrMalformedInput, "unknown conflict mode %q, want %s or %s", c.Transaction.ConflictMode, ConflictBlock, ConflictFailFast)
}

// ToTOML renders the configuration as a TOML document.
func (c *Config) ToTOML() ([]byte, error) {
	buf, err := toml.Marshal(*c)
	if err != nil {
		return nil, errors.Wrap(err, "marshalling config")
	}
	return buf, nil
}

// Parse reads a TOML document over the defaults.
func Parse(data []byte) (*Config, error) {
	c := NewConfig()
	if err := toml.Unmarshal(data, c); err != nil {
		return nil, errors.WrapCode(err, errors.ErrMalformedInput, "parsing config")
	}
	return c, nil
}

// Options converts the configuration to store options. Storage, Logger
// and Metrics are left to the caller.
func (c *Config) Options() (store.Options, error) {
	mode, err := c.conflictMode()
	if err != nil {
		return store.Options{}, err
	}
	return store.Options{
		Indexes:          c.Indexes,
		CompactThreshold: c.Compaction.Threshold,
		ConflictMode:     mode,
		LockTimeout:      time.Duration(c.Transaction.LockTimeout),
		SyncOnCommit:     c.Transaction.Sync,
	}, nil
}

// Open validates the configuration, opens the configured backend and a
// store on top of it. reg may be nil to skip metrics.
func (c *Config) Open(registry *storage.Registry, log logger.Logger, reg prometheus.Registerer) (*store.TripleStore, error) {
	if err := c.Validate(registry); err != nil {
		return nil, err
	}
	opts, err := c.Options()
	if err != nil {
		return nil, err
	}
	if reg != nil {
		if opts.Metrics, err = store.NewMetrics(reg, c.Metric.Namespace); err != nil {
			return nil, err
		}
	}
	opts.Logger = log

	st, err := registry.Open(c.Backend, c.DataDir, log)
	if err != nil {
		return nil, err
	}
	opts.Storage = st
	s, err := store.Open(opts)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	return s, nil
}
