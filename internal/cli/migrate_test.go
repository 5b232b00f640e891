package cli

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, fs afero.Fs, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand(fs)
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestMigrateCommand(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "migrations/001_orders.sql", []byte("CREATE TABLE orders (id INTEGER PRIMARY KEY, code TEXT);\n"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "migrations/002_seed.sql", []byte("INSERT INTO orders (code) VALUES ('A');\n"), 0o644))
	dsn := filepath.Join(t.TempDir(), "app.db")

	out, _, err := runCLI(t, fs, "migrate", "--dialect", "sqlite", "--dsn", dsn, "--dry-run")
	require.NoError(t, err)
	assert.Equal(t, "pending 001_orders.sql\npending 002_seed.sql\n", out)

	out, errOut, err := runCLI(t, fs, "migrate", "--dialect", "sqlite", "--dsn", dsn, "-v")
	require.NoError(t, err)
	assert.Equal(t, "applied 001_orders.sql\napplied 002_seed.sql\n", out)
	assert.Contains(t, errOut, "INSERT INTO orders (code) VALUES ('A');")
	assert.Contains(t, errOut, "stats: ")
	assert.Contains(t, errOut, `vorm_query_duration_seconds{dialect="sqlite",op="exec"} count=`)
	assert.Contains(t, errOut, `vorm_slow_queries_total{dialect="sqlite"} `)

	out, _, err = runCLI(t, fs, "migrate", "--dialect", "sqlite", "--dsn", dsn)
	require.NoError(t, err)
	assert.Equal(t, "up to date\n", out)
}

func TestMigrateCommandConfig(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "db/001_a.sql", []byte("CREATE TABLE a (id INTEGER);\n"), 0o644))
	dsn := filepath.Join(t.TempDir(), "app.db")
	require.NoError(t, afero.WriteFile(fs, "vorm.yaml", []byte("dialect: sqlite\ndsn: "+dsn+"\ndir: db\ntable: versions\n"), 0o644))

	out, _, err := runCLI(t, fs, "migrate", "--config", "vorm.yaml")
	require.NoError(t, err)
	assert.Equal(t, "applied 001_a.sql\n", out)

	out, _, err = runCLI(t, fs, "migrate", "-c", "vorm.yaml", "--table", "other", "--dry-run")
	require.NoError(t, err)
	assert.Equal(t, "pending 001_a.sql\n", out, "the flag overrides the configured table")
}

func TestMigrateCommandErrors(t *testing.T) {
	fs := afero.NewMemMapFs()

	_, _, err := runCLI(t, fs, "migrate", "--dsn", "x")
	assert.ErrorContains(t, err, "invalid dialect")

	_, _, err = runCLI(t, fs, "migrate", "--dialect", "sqlite", "--dsn", filepath.Join(t.TempDir(), "app.db"), "--dir", "none")
	assert.Error(t, err)

	_, _, err = runCLI(t, fs, "migrate", "extra")
	assert.Error(t, err)
}
