package cli

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	// Drivers of the supported dialects.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/syssam/vorm/dialect"
	"github.com/syssam/vorm/dialect/sql"
	"github.com/syssam/vorm/orm"
)

type migrateOptions struct {
	dialect string
	dsn     string
	dir     string
	table   string
	dryRun  bool
}

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &migrateOptions{}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending SQL migrations",
		Long: `Apply the NNN_description.sql scripts of a directory whose version is
not yet recorded in the migration table, in ascending order.

Each script runs in its own transaction. Statements are separated by a
semicolon at the end of a line.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(rootOpts, opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.dialect, "dialect", "", "database dialect (mysql|postgres|sqlite)")
	cmd.Flags().StringVar(&opts.dsn, "dsn", "", "data source name")
	cmd.Flags().StringVar(&opts.dir, "dir", "migrations", "directory of the migration scripts")
	cmd.Flags().StringVar(&opts.table, "table", orm.DefaultMigrationTable, "table recording applied versions")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "list pending migrations without applying them")

	return cmd
}

// config overlays the flags set on the command line on the config file.
func (o *migrateOptions) config(flags *pflag.FlagSet, rootOpts *RootOptions) (*Config, error) {
	cfg := &Config{}
	if rootOpts.Config != "" {
		var err error
		if cfg, err = LoadConfig(rootOpts.fs, rootOpts.Config); err != nil {
			return nil, err
		}
	}
	overlay := func(name string, dst *string, v string) {
		if flags.Changed(name) || *dst == "" {
			*dst = v
		}
	}
	overlay("dialect", &cfg.Dialect, o.dialect)
	overlay("dsn", &cfg.DSN, o.dsn)
	overlay("dir", &cfg.Dir, o.dir)
	overlay("table", &cfg.Table, o.table)
	return cfg, cfg.Validate()
}

func runMigrate(rootOpts *RootOptions, opts *migrateOptions, cmd *cobra.Command) error {
	cfg, err := opts.config(cmd.Flags(), rootOpts)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()
	logger := slog.New(slog.NewTextHandler(errOut, nil))

	drv, err := sql.Open(cfg.DriverName(), cfg.DSN)
	if err != nil {
		return fmt.Errorf("open %s: %w", cfg.Dialect, err)
	}
	if cfg.Dialect == dialect.SQLite {
		drv.DB().SetMaxOpenConns(1)
	}
	sopts := []sql.StatsOption{sql.WithSlowQueryHook(sql.SlowQueryLogger(logger))}
	reg := prometheus.NewRegistry()
	if rootOpts.Verbose {
		sopts = append(sopts, sql.WithRegisterer(reg))
	}
	sd, err := sql.NewStatsDriver(drv, sopts...)
	if err != nil {
		drv.Close()
		return err
	}
	db := orm.NewDB(sd, orm.WithLogger(logger))
	defer db.Close()

	mopts := []orm.MigrateOption{orm.MigrationTable(cfg.Table), orm.DryRun(opts.dryRun)}
	if rootOpts.Verbose {
		mopts = append(mopts, orm.Echo(func(stmt string) { fmt.Fprintln(errOut, stmt) }))
	}
	done, err := orm.Migrate(ctx, db, rootOpts.fs, cfg.Dir, mopts...)
	verb := "applied"
	if opts.dryRun {
		verb = "pending"
	}
	for _, m := range done {
		fmt.Fprintf(out, "%s %s\n", verb, m.Name)
	}
	if rootOpts.Verbose {
		fmt.Fprintf(errOut, "stats: %s\n", sd.QueryStats().Stats())
		if merr := writeMetrics(errOut, reg); merr != nil {
			logger.WarnContext(ctx, "metrics unavailable", "error", merr)
		}
	}
	if err != nil {
		return err
	}
	if len(done) == 0 {
		fmt.Fprintln(out, "up to date")
	}
	return nil
}
