package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ansell/openrdf-sesame-sub028/internal/config"
	"github.com/ansell/openrdf-sesame-sub028/internal/nquads"
)

// run executes the CLI with args and returns stdout.
func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	rc := NewRootCommand(strings.NewReader(stdin), &stdout, &stderr)
	rc.SetArgs(args)
	err := rc.Execute()
	return stdout.String(), err
}

func TestGenerateConfig_Precedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sail.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
backend = "bolt"
indexes = "spoc"

[transaction]
lock-timeout = "2s"
conflict-mode = "fail-fast"
`), 0o600))
	t.Setenv("SAIL_INDEXES", "posc,spoc")

	out, err := run(t, "", "generate-config", "-c", path, "--transaction.conflict-mode", "block")
	require.NoError(t, err)

	cfg, err := config.Parse([]byte(out))
	require.NoError(t, err)
	assert.Equal(t, "bolt", cfg.Backend, "file over default")
	assert.Equal(t, "posc,spoc", cfg.Indexes, "env over file")
	assert.Equal(t, config.ConflictBlock, cfg.Transaction.ConflictMode, "flag over file")
	assert.Equal(t, config.Duration(2*time.Second), cfg.Transaction.LockTimeout)
}

func TestConfigFile_UnknownKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sail.toml")
	require.NoError(t, os.WriteFile(path, []byte("replicas = 3\n"), 0o600))

	_, err := run(t, "", "generate-config", "-c", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid option in configuration file: replicas")
}

const sample = `<http://example.org/Dog> <http://www.w3.org/2000/01/rdf-schema#subClassOf> <http://example.org/Animal> .
<http://example.org/rex> <http://www.w3.org/1999/02/22-rdf-syntax-ns#type> <http://example.org/Dog> .
<http://example.org/rex> <http://example.org/name> "Rex"@en <http://example.org/pets> .
`

func TestLoadCountDump(t *testing.T) {
	dir := t.TempDir()
	store := []string{"--backend", "bolt", "--data-dir", dir, "--log-level", "error"}

	out, err := run(t, sample, append([]string{"load", "--infer"}, store...)...)
	require.NoError(t, err)
	assert.Equal(t, "3 explicit statements stored\n", out)

	out, err = run(t, "", append([]string{"count"}, store...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "explicit:   3\n")
	assert.Contains(t, out, "inferred:   1\n")

	out, err = run(t, "", append([]string{"dump"}, store...)...)
	require.NoError(t, err)
	quads, err := nquads.Parse(out)
	require.NoError(t, err)
	assert.Len(t, quads, 3)

	out, err = run(t, "", append([]string{"dump", "--inferred", "--graph", "http://example.org/pets"}, store...)...)
	require.NoError(t, err)
	assert.Equal(t, `<http://example.org/rex> <http://example.org/name> "Rex"@en <http://example.org/pets> .`+"\n", out)

	out, err = run(t, "", append([]string{"dump", "--inferred"}, store...)...)
	require.NoError(t, err)
	assert.Contains(t, out, `<http://example.org/rex> <http://www.w3.org/1999/02/22-rdf-syntax-ns#type> <http://example.org/Animal> .`)

	_, err = run(t, "", append([]string{"compact"}, store...)...)
	require.NoError(t, err)
}

func TestLoad_Malformed(t *testing.T) {
	_, err := run(t, "<http://example.org/s> <http://example.org/p> .\n",
		"load", "--backend", "bolt", "--data-dir", t.TempDir(), "--log-level", "error")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 1")
}

func TestDemo(t *testing.T) {
	out, err := run(t, "", "demo", "--backend", "memory", "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, `"Alice"`)
	assert.Equal(t, 2, strings.Count(out, "2 rows"))
	assert.Contains(t, out, "sail_commits_total")
}
