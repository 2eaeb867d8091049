package config_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ansell/openrdf-sesame-sub028/internal/config"
	"github.com/ansell/openrdf-sesame-sub028/internal/storage"
	"github.com/ansell/openrdf-sesame-sub028/pkg/errors"
	"github.com/ansell/openrdf-sesame-sub028/pkg/logger"
	"github.com/ansell/openrdf-sesame-sub028/pkg/store"
)

func TestConfig_DefaultsValidate(t *testing.T) {
	c := config.NewConfig()
	require.NoError(t, c.Validate(storage.NewRegistry()))

	opts, err := c.Options()
	require.NoError(t, err)
	assert.Equal(t, store.ConflictBlock, opts.ConflictMode)
	assert.Equal(t, store.DefaultLockTimeout, opts.LockTimeout)
	assert.Equal(t, store.DefaultIndexes, opts.Indexes)
}

func TestConfig_Validate(t *testing.T) {
	registry := storage.NewRegistry()
	tests := map[string]func(c *config.Config){
		"unknown backend":     func(c *config.Config) { c.Backend = "lmdb" },
		"missing data dir":    func(c *config.Config) { c.DataDir = "" },
		"bad index spec":      func(c *config.Config) { c.Indexes = "spo" },
		"unknown conflict":    func(c *config.Config) { c.Transaction.ConflictMode = "wait" },
		"zero lock timeout":   func(c *config.Config) { c.Transaction.LockTimeout = 0 },
		"negative compaction": func(c *config.Config) { c.Compaction.Threshold = -1 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			c := config.NewConfig()
			mutate(c)
			err := c.Validate(registry)
			assert.True(t, errors.Is(err, errors.ErrMalformedInput), "got %v", err)
		})
	}

	c := config.NewConfig()
	c.Backend = storage.BackendMemory
	c.DataDir = ""
	assert.NoError(t, c.Validate(registry), "memory backend needs no directory")
}

func TestConfig_TOMLRoundTrip(t *testing.T) {
	c := config.NewConfig()
	c.Backend = storage.BackendBolt
	c.Indexes = "posc,cspo"
	c.Transaction.ConflictMode = config.ConflictFailFast
	c.Transaction.LockTimeout = config.Duration(250 * time.Millisecond)
	c.Transaction.Sync = true

	buf, err := c.ToTOML()
	require.NoError(t, err)
	assert.Contains(t, string(buf), `lock-timeout = "250ms"`)

	back, err := config.Parse(buf)
	require.NoError(t, err)
	assert.Equal(t, c, back)
}

func TestParse_PartialDocumentKeepsDefaults(t *testing.T) {
	c, err := config.Parse([]byte(`
backend = "memory"

[transaction]
conflict-mode = "fail-fast"
`))
	require.NoError(t, err)
	assert.Equal(t, "memory", c.Backend)
	assert.Equal(t, config.ConflictFailFast, c.Transaction.ConflictMode)
	assert.Equal(t, config.Duration(store.DefaultLockTimeout), c.Transaction.LockTimeout)
	assert.Equal(t, store.DefaultIndexes, c.Indexes)

	_, err = config.Parse([]byte("backend = "))
	assert.True(t, errors.Is(err, errors.ErrMalformedInput))
}

func TestDuration_FlagValue(t *testing.T) {
	var d config.Duration
	require.NoError(t, d.Set("1m30s"))
	assert.Equal(t, 90*time.Second, time.Duration(d))
	assert.Equal(t, "duration", d.Type())
	assert.Error(t, d.Set("soon"))
}

func TestConfig_Open(t *testing.T) {
	c := config.NewConfig()
	c.DataDir = t.TempDir()
	c.Backend = storage.BackendBolt

	reg := prometheus.NewRegistry()
	s, err := c.Open(storage.NewRegistry(), logger.NopLogger, reg)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, store.DefaultIndexes, s.Indexes())

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
