package sql

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/syssam/vorm/dialect"
)

// Keys for the collectors registered by WithRegisterer.
const (
	QueryDurationSecondsKey = "vorm_query_duration_seconds"
	QueryErrorsTotalKey     = "vorm_query_errors_total"
	SlowQueriesTotalKey     = "vorm_slow_queries_total"
)

// QueryStats holds query execution statistics.
type QueryStats struct {
	// TotalQueries is the total number of queries executed.
	TotalQueries atomic.Int64
	// TotalExecs is the total number of exec statements executed.
	TotalExecs atomic.Int64
	// TotalDuration is the total time spent executing queries.
	TotalDuration atomic.Int64 // nanoseconds
	// SlowQueries is the count of queries exceeding the slow threshold.
	SlowQueries atomic.Int64
	// Errors is the count of query errors.
	Errors atomic.Int64
}

// Stats returns a snapshot of the current statistics.
func (s *QueryStats) Stats() StatsSnapshot {
	return StatsSnapshot{
		TotalQueries:  s.TotalQueries.Load(),
		TotalExecs:    s.TotalExecs.Load(),
		TotalDuration: time.Duration(s.TotalDuration.Load()),
		SlowQueries:   s.SlowQueries.Load(),
		Errors:        s.Errors.Load(),
	}
}

// Reset resets all statistics to zero.
func (s *QueryStats) Reset() {
	s.TotalQueries.Store(0)
	s.TotalExecs.Store(0)
	s.TotalDuration.Store(0)
	s.SlowQueries.Store(0)
	s.Errors.Store(0)
}

// StatsSnapshot is a point-in-time snapshot of query statistics.
type StatsSnapshot struct {
	TotalQueries  int64
	TotalExecs    int64
	TotalDuration time.Duration
	SlowQueries   int64
	Errors        int64
}

// AvgQueryDuration returns the average query duration.
func (s StatsSnapshot) AvgQueryDuration() time.Duration {
	total := s.TotalQueries + s.TotalExecs
	if total == 0 {
		return 0
	}
	return s.TotalDuration / time.Duration(total)
}

// String returns a human-readable summary of the statistics.
func (s StatsSnapshot) String() string {
	return fmt.Sprintf(
		"queries=%d execs=%d duration=%s avg=%s slow=%d errors=%d",
		s.TotalQueries, s.TotalExecs, s.TotalDuration, s.AvgQueryDuration(),
		s.SlowQueries, s.Errors,
	)
}

// SlowQueryHook is a function called when a slow query is detected.
type SlowQueryHook func(ctx context.Context, query string, args []any, duration time.Duration)

// collectors are the prometheus metrics fed by a StatsDriver.
type collectors struct {
	duration *prometheus.HistogramVec
	errors   *prometheus.CounterVec
	slow     prometheus.Counter
}

func newCollectors(dialect string) *collectors {
	labels := prometheus.Labels{"dialect": dialect}
	return &collectors{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        QueryDurationSecondsKey,
			Help:        "Duration of statements sent to the database.",
			Buckets:     prometheus.ExponentialBuckets(0.0005, 2, 15),
			ConstLabels: labels,
		}, []string{"op"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        QueryErrorsTotalKey,
			Help:        "Cumulative number of statements that failed.",
			ConstLabels: labels,
		}, []string{"op"}),
		slow: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        SlowQueriesTotalKey,
			Help:        "Cumulative number of statements above the slow threshold.",
			ConstLabels: labels,
		}),
	}
}

// StatsDriver wraps a Driver with query statistics collection.
type StatsDriver struct {
	dialect.Driver
	stats         *QueryStats
	slowThreshold time.Duration
	slowHook      SlowQueryHook
	registerer    prometheus.Registerer
	metrics       *collectors
	mu            sync.RWMutex
}

// StatsOption configures the StatsDriver.
type StatsOption func(*StatsDriver)

// WithSlowThreshold sets the threshold for slow query detection.
// Queries taking longer than this duration will be counted as slow queries.
// Default is 100ms.
func WithSlowThreshold(d time.Duration) StatsOption {
	return func(s *StatsDriver) {
		s.slowThreshold = d
	}
}

// WithSlowQueryHook sets a callback function for slow queries.
func WithSlowQueryHook(hook SlowQueryHook) StatsOption {
	return func(s *StatsDriver) {
		s.slowHook = hook
	}
}

// WithSlowQueryLog logs slow queries to the default logger.
func WithSlowQueryLog() StatsOption {
	return WithSlowQueryHook(SlowQueryLogger(slog.Default()))
}

// SlowQueryLogger returns a hook that logs slow queries as warnings on l.
func SlowQueryLogger(l *slog.Logger) SlowQueryHook {
	return func(ctx context.Context, query string, args []any, duration time.Duration) {
		l.WarnContext(ctx, "slow query detected", "duration", duration, "query", query, "args", args)
	}
}

// WithRegisterer exports the statistics as prometheus collectors on r.
func WithRegisterer(r prometheus.Registerer) StatsOption {
	return func(s *StatsDriver) {
		s.registerer = r
	}
}

// NewStatsDriver wraps a Driver with statistics collection. It fails only
// when the prometheus collectors cannot be registered.
//
//	drv, _ := sql.Open(dialect.Postgres, dsn)
//	sd, err := sql.NewStatsDriver(drv,
//	    sql.WithSlowThreshold(200*time.Millisecond),
//	    sql.WithSlowQueryLog(),
//	    sql.WithRegisterer(prometheus.DefaultRegisterer),
//	)
//	db := orm.NewDB(sd)
func NewStatsDriver(drv dialect.Driver, opts ...StatsOption) (*StatsDriver, error) {
	s := &StatsDriver{
		Driver:        drv,
		stats:         &QueryStats{},
		slowThreshold: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registerer != nil {
		m := newCollectors(drv.Dialect())
		for _, c := range []prometheus.Collector{m.duration, m.errors, m.slow} {
			if err := s.registerer.Register(c); err != nil {
				return nil, fmt.Errorf("dialect/sql: register collector: %w", err)
			}
		}
		s.metrics = m
	}
	return s, nil
}

// QueryStats returns the underlying QueryStats for reading statistics.
func (d *StatsDriver) QueryStats() *QueryStats {
	return d.stats
}

// SlowThreshold returns the current slow query threshold.
func (d *StatsDriver) SlowThreshold() time.Duration {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.slowThreshold
}

// SetSlowThreshold updates the slow query threshold.
func (d *StatsDriver) SetSlowThreshold(threshold time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.slowThreshold = threshold
}

// Query executes a query and records statistics.
func (d *StatsDriver) Query(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := d.Driver.Query(ctx, query, args, v)
	d.record(ctx, query, args, start, err, true)
	return err
}

// Exec executes a statement and records statistics.
func (d *StatsDriver) Exec(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := d.Driver.Exec(ctx, query, args, v)
	d.record(ctx, query, args, start, err, false)
	return err
}

func (d *StatsDriver) record(ctx context.Context, query string, args any, start time.Time, err error, isQuery bool) {
	duration := time.Since(start)
	op := "exec"
	if isQuery {
		op = "query"
		d.stats.TotalQueries.Add(1)
	} else {
		d.stats.TotalExecs.Add(1)
	}
	d.stats.TotalDuration.Add(int64(duration))
	if d.metrics != nil {
		d.metrics.duration.WithLabelValues(op).Observe(duration.Seconds())
	}

	if err != nil {
		d.stats.Errors.Add(1)
		if d.metrics != nil {
			d.metrics.errors.WithLabelValues(op).Inc()
		}
	}

	d.mu.RLock()
	threshold := d.slowThreshold
	hook := d.slowHook
	d.mu.RUnlock()

	if duration > threshold {
		d.stats.SlowQueries.Add(1)
		if d.metrics != nil {
			d.metrics.slow.Inc()
		}
		if hook != nil {
			argsSlice, _ := args.([]any)
			hook(ctx, query, argsSlice, duration)
		}
	}
}

// Tx starts a transaction that also records statistics.
func (d *StatsDriver) Tx(ctx context.Context) (dialect.Tx, error) {
	tx, err := d.Driver.Tx(ctx)
	if err != nil {
		return nil, err
	}
	return &StatsTx{Tx: tx, driver: d}, nil
}

// StatsTx wraps a transaction with statistics collection.
type StatsTx struct {
	dialect.Tx
	driver *StatsDriver
}

// Query executes a query within the transaction and records statistics.
func (tx *StatsTx) Query(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := tx.Tx.Query(ctx, query, args, v)
	tx.driver.record(ctx, query, args, start, err, true)
	return err
}

// Exec executes a statement within the transaction and records statistics.
func (tx *StatsTx) Exec(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := tx.Tx.Exec(ctx, query, args, v)
	tx.driver.record(ctx, query, args, start, err, false)
	return err
}

var (
	_ dialect.Driver = (*StatsDriver)(nil)
	_ dialect.Tx     = (*StatsTx)(nil)
)

// OpenWithStats opens a database connection with statistics collection enabled.
func OpenWithStats(driverName, source string, opts ...StatsOption) (*StatsDriver, *QueryStats, error) {
	drv, err := Open(driverName, source)
	if err != nil {
		return nil, nil, err
	}
	sd, err := NewStatsDriver(drv, opts...)
	if err != nil {
		return nil, nil, err
	}
	return sd, sd.QueryStats(), nil
}
