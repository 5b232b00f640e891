package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/go-sql-driver/mysql"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/syssam/vorm/dialect"
	"github.com/syssam/vorm/orm"
)

// Config is the connection and migration configuration. It is read from
// the --config file and overridden by command flags.
type Config struct {
	Dialect string `yaml:"dialect"`
	DSN     string `yaml:"dsn"`
	Dir     string `yaml:"dir"`
	Table   string `yaml:"table"`
}

// Dialects lists the accepted --dialect values.
var Dialects = []string{dialect.MySQL, dialect.Postgres, dialect.SQLite}

// LoadConfig reads a YAML configuration file. Unknown keys are an error.
func LoadConfig(fs afero.Fs, path string) (*Config, error) {
	b, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration and fills in defaults.
func (c *Config) Validate() error {
	if !slices.Contains(Dialects, c.Dialect) {
		return fmt.Errorf("invalid dialect %q: must be one of %v", c.Dialect, Dialects)
	}
	if c.DSN == "" {
		return errors.New("missing dsn")
	}
	if c.Dialect == dialect.MySQL {
		if _, err := mysql.ParseDSN(c.DSN); err != nil {
			return fmt.Errorf("invalid mysql dsn: %w", err)
		}
	}
	if c.Dir == "" {
		c.Dir = "migrations"
	}
	if c.Table == "" {
		c.Table = orm.DefaultMigrationTable
	}
	return nil
}

// DriverName returns the database/sql driver registered for the dialect.
func (c *Config) DriverName() string {
	switch c.Dialect {
	case dialect.Postgres:
		return "postgres"
	case dialect.SQLite:
		return "sqlite"
	}
	return "mysql"
}
