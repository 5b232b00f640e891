package cli

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "vorm.yaml", []byte("dialect: postgres\ndsn: postgres://localhost/app\ndir: db\n"), 0o644))

	cfg, err := LoadConfig(fs, "vorm.yaml")
	require.NoError(t, err)
	assert.Equal(t, &Config{Dialect: "postgres", DSN: "postgres://localhost/app", Dir: "db"}, cfg)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "schema_migrations", cfg.Table)
	assert.Equal(t, "postgres", cfg.DriverName())

	require.NoError(t, afero.WriteFile(fs, "bad.yaml", []byte("dialect: mysql\nhost: x\n"), 0o644))
	_, err = LoadConfig(fs, "bad.yaml")
	assert.ErrorContains(t, err, "parse config bad.yaml")

	require.NoError(t, afero.WriteFile(fs, "empty.yaml", nil, 0o644))
	cfg, err = LoadConfig(fs, "empty.yaml")
	require.NoError(t, err)
	assert.Equal(t, &Config{}, cfg)

	_, err = LoadConfig(fs, "missing.yaml")
	assert.ErrorContains(t, err, "read config")
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "mysql", cfg: Config{Dialect: "mysql", DSN: "root@tcp(localhost:3306)/app"}},
		{name: "sqlite", cfg: Config{Dialect: "sqlite", DSN: "app.db"}},
		{name: "dialect", cfg: Config{Dialect: "oracle", DSN: "x"}, wantErr: `invalid dialect "oracle"`},
		{name: "dsn", cfg: Config{Dialect: "sqlite"}, wantErr: "missing dsn"},
		{name: "mysql_dsn", cfg: Config{Dialect: "mysql", DSN: "root@localhost/app"}, wantErr: "invalid mysql dsn"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "migrations", tt.cfg.Dir)
			assert.Equal(t, tt.cfg.Dialect, tt.cfg.DriverName())
		})
	}
}
