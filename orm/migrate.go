package orm

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// DefaultMigrationTable records the applied migration versions.
const DefaultMigrationTable = "schema_migrations"

var reMigration = regexp.MustCompile(`^(\d{3})_.*\.sql$`)

// Migration is a numbered SQL script, "NNN_description.sql".
type Migration struct {
	Version string
	Name    string
	Path    string
}

type migrateConfig struct {
	table  string
	dryRun bool
	echo   func(stmt string)
}

// MigrateOption configures Migrate.
type MigrateOption func(*migrateConfig)

// MigrationTable sets the table recording applied versions.
func MigrationTable(name string) MigrateOption {
	return func(c *migrateConfig) { c.table = name }
}

// DryRun lists the pending migrations without running them.
func DryRun(on bool) MigrateOption {
	return func(c *migrateConfig) { c.dryRun = on }
}

// Echo calls fn with every statement before it runs.
func Echo(fn func(stmt string)) MigrateOption {
	return func(c *migrateConfig) { c.echo = fn }
}

// Migrations lists the migration scripts of dir in ascending version
// order. Two scripts with the same version are an error.
func Migrations(fs afero.Fs, dir string) ([]Migration, error) {
	infos, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, fmt.Errorf("orm: migrations: %w", err)
	}
	seen := make(map[string]string)
	var ms []Migration
	for _, fi := range infos {
		if fi.IsDir() {
			continue
		}
		m := reMigration.FindStringSubmatch(fi.Name())
		if m == nil {
			continue
		}
		if prev, ok := seen[m[1]]; ok {
			return nil, fmt.Errorf("orm: migration version %q is duplicated: %s and %s", m[1], prev, fi.Name())
		}
		seen[m[1]] = fi.Name()
		ms = append(ms, Migration{Version: m[1], Name: fi.Name(), Path: path.Join(dir, fi.Name())})
	}
	sort.Slice(ms, func(i, j int) bool { return ms[i].Version < ms[j].Version })
	return ms, nil
}

// Statements splits a script into its statements. Statements end with a
// semicolon at the end of a line.
func Statements(script string) []string {
	var ss []string
	for _, s := range strings.Split(script, ";\n") {
		s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), ";"))
		if s != "" {
			ss = append(ss, s)
		}
	}
	return ss
}

// Migrate applies the scripts of dir whose version is not yet recorded,
// each in its own transaction, and returns them. The version table is
// created when missing.
//
//	applied, err := orm.Migrate(ctx, db, afero.NewOsFs(), "migrations")
func Migrate(ctx context.Context, db *DB, fs afero.Fs, dir string, opts ...MigrateOption) ([]Migration, error) {
	cfg := migrateConfig{table: DefaultMigrationTable}
	for _, opt := range opts {
		opt(&cfg)
	}
	if !validAlias(cfg.table) {
		return nil, fmt.Errorf("orm: migrate: invalid table name %q", cfg.table)
	}
	ms, err := Migrations(fs, dir)
	if err != nil {
		return nil, err
	}
	applied, err := appliedVersions(ctx, db, cfg)
	if err != nil {
		return nil, err
	}
	var done []Migration
	for _, m := range ms {
		if applied[m.Version] {
			continue
		}
		if cfg.dryRun {
			done = append(done, m)
			continue
		}
		b, err := afero.ReadFile(fs, m.Path)
		if err != nil {
			return done, fmt.Errorf("orm: migrate %s: %w", m.Name, err)
		}
		err = db.TxnDo(ctx, func(ctx context.Context, _ *Txn) error {
			for _, s := range Statements(string(b)) {
				if cfg.echo != nil {
					cfg.echo(s + ";")
				}
				if _, err := db.Exec(ctx, s); err != nil {
					return err
				}
			}
			_, err := db.Exec(ctx, "INSERT INTO "+cfg.table+" (version) VALUES (?)", m.Version)
			return err
		})
		if err != nil {
			return done, fmt.Errorf("orm: migrate %s: %w", m.Name, err)
		}
		db.log.InfoContext(ctx, "orm: migrated", "version", m.Version, "name", m.Name)
		done = append(done, m)
	}
	return done, nil
}

func appliedVersions(ctx context.Context, db *DB, cfg migrateConfig) (map[string]bool, error) {
	if !cfg.dryRun {
		create := "CREATE TABLE IF NOT EXISTS " + cfg.table + " (version VARCHAR(3) NOT NULL PRIMARY KEY)"
		if _, err := db.Exec(ctx, create); err != nil {
			return nil, fmt.Errorf("orm: migrate: %w", err)
		}
	}
	vs := make(map[string]bool)
	rows, err := db.QueryRows(ctx, "SELECT version FROM "+cfg.table)
	if err != nil {
		if cfg.dryRun {
			return vs, nil
		}
		return nil, fmt.Errorf("orm: migrate: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("orm: migrate: %w", err)
		}
		vs[v] = true
	}
	return vs, rows.Err()
}
