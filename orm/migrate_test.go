package orm

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, fs afero.Fs, files map[string]string) {
	t.Helper()
	for name, body := range files {
		require.NoError(t, afero.WriteFile(fs, name, []byte(body), 0o644))
	}
}

func versions(ms []Migration) []string {
	vs := make([]string, len(ms))
	for i, m := range ms {
		vs[i] = m.Version
	}
	return vs
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	row, err := db.QueryRow(t.Context(), "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name)
	require.NoError(t, err)
	return row[0] != int64(0)
}

func TestStatements(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, Statements("a;\nb;\n\n  c  "))
	assert.Equal(t, []string{"INSERT INTO t VALUES ('x;y')"}, Statements("INSERT INTO t VALUES ('x;y');"))
	assert.Nil(t, Statements(" \n;\n"))
}

func TestMigrations(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"db/002_items.sql":  "",
		"db/001_orders.sql": "",
		"db/README.md":      "",
		"db/01_short.sql":   "",
	})
	require.NoError(t, fs.MkdirAll("db/003_dir.sql", 0o755))
	ms, err := Migrations(fs, "db")
	require.NoError(t, err)
	assert.Equal(t, []Migration{
		{Version: "001", Name: "001_orders.sql", Path: "db/001_orders.sql"},
		{Version: "002", Name: "002_items.sql", Path: "db/002_items.sql"},
	}, ms)

	writeFiles(t, fs, map[string]string{"db/002_again.sql": ""})
	_, err = Migrations(fs, "db")
	assert.ErrorContains(t, err, `migration version "002" is duplicated`)

	_, err = Migrations(fs, "missing")
	assert.Error(t, err)
}

func TestMigrate(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"db/001_tables.sql": "CREATE TABLE a (id INTEGER);\nCREATE TABLE b (id INTEGER);\n",
		"db/002_seed.sql":   "INSERT INTO a (id) VALUES (1);\nINSERT INTO a (id) VALUES (2);\n",
	})
	db := sqliteDB(t, nil)
	ctx := t.Context()

	var echoed []string
	done, err := Migrate(ctx, db, fs, "db", Echo(func(s string) { echoed = append(echoed, s) }))
	require.NoError(t, err)
	assert.Equal(t, []string{"001", "002"}, versions(done))
	assert.Equal(t, []string{
		"CREATE TABLE a (id INTEGER);",
		"CREATE TABLE b (id INTEGER);",
		"INSERT INTO a (id) VALUES (1);",
		"INSERT INTO a (id) VALUES (2);",
	}, echoed)
	row, err := db.QueryRow(ctx, "SELECT COUNT(*) FROM a")
	require.NoError(t, err)
	assert.Equal(t, int64(2), row[0])

	done, err = Migrate(ctx, db, fs, "db")
	require.NoError(t, err)
	assert.Empty(t, done, "applied versions are skipped")

	writeFiles(t, fs, map[string]string{
		"db/003_bad.sql": "CREATE TABLE c (id INTEGER);\nNOT A STATEMENT;\n",
	})
	done, err = Migrate(ctx, db, fs, "db")
	assert.ErrorContains(t, err, "003_bad.sql")
	assert.Empty(t, done)
	assert.False(t, tableExists(t, db, "c"), "the failed script is rolled back")

	row, err = db.QueryRow(ctx, "SELECT COUNT(*) FROM "+DefaultMigrationTable)
	require.NoError(t, err)
	assert.Equal(t, int64(2), row[0])
}

func TestMigrateDryRun(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"db/001_tables.sql": "CREATE TABLE a (id INTEGER);\n",
	})
	db := sqliteDB(t, nil)
	ctx := t.Context()

	done, err := Migrate(ctx, db, fs, "db", DryRun(true), MigrationTable("versions"))
	require.NoError(t, err)
	assert.Equal(t, []string{"001"}, versions(done))
	assert.False(t, tableExists(t, db, "a"))
	assert.False(t, tableExists(t, db, "versions"))

	_, err = Migrate(ctx, db, fs, "db", MigrationTable("bad name"))
	assert.ErrorContains(t, err, "invalid table name")
}
