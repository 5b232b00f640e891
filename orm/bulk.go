package orm

import (
	"context"
	"slices"
	"strings"

	"github.com/syssam/vorm"
)

// BulkLoader buffers rows and inserts them with multi-row INSERT
// statements:
//
//	l := db.BulkLoader(items, orm.BulkColumns("order_id", "qty"), orm.BatchSize(500))
//	for _, it := range input {
//	    if err := l.Add(ctx, it.OrderID, it.Qty); err != nil {
//	        return err
//	    }
//	}
//	return l.Flush(ctx)
type BulkLoader struct {
	db     *DB
	table  string
	head   string
	row    string
	suffix string
	width  int
	per    int
	err    error

	rows  int
	args  []any
	count int
}

type bulkConfig struct {
	cols   []string
	values map[string]string
	per    int
	suffix string
}

// BulkOption configures a BulkLoader.
type BulkOption func(*bulkConfig)

// BulkColumns sets the inserted columns. The default is every column of
// the model.
func BulkColumns(cols ...string) BulkOption {
	return func(c *bulkConfig) { c.cols = cols }
}

// BulkValue sets the value template of col, such as "LOWER(?)". The
// default is "?".
func BulkValue(col, template string) BulkOption {
	return func(c *bulkConfig) {
		if c.values == nil {
			c.values = make(map[string]string)
		}
		c.values[col] = template
	}
}

// BatchSize flushes the loader every n rows. The default is to flush only
// on Flush.
func BatchSize(n int) BulkOption {
	return func(c *bulkConfig) { c.per = n }
}

// Suffix appends s to every statement, such as an ON CONFLICT clause.
func Suffix(s string) BulkOption {
	return func(c *bulkConfig) { c.suffix = s }
}

// BulkLoader returns a loader inserting rows into the table of m.
func (db *DB) BulkLoader(m *Model, opts ...BulkOption) *BulkLoader {
	var cfg bulkConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	l := &BulkLoader{db: db, table: m.table, per: cfg.per, err: m.err}
	if len(cfg.cols) == 0 {
		for _, c := range m.columns {
			cfg.cols = append(cfg.cols, c.Name)
		}
	}
	ts := make([]string, len(cfg.cols))
	for i, k := range cfg.cols {
		if _, ok := m.Column(k); !ok && l.err == nil {
			l.err = vorm.NewQueryBuildError(vorm.UnknownColumn, k)
		}
		ts[i] = "?"
		if t, ok := cfg.values[k]; ok {
			ts[i] = t
		}
		l.width += strings.Count(ts[i], "?")
	}
	l.head = "INSERT INTO " + m.table + " (" + strings.Join(cfg.cols, ", ") + ") VALUES\n"
	l.row = "(" + strings.Join(ts, ", ") + ")"
	if cfg.suffix != "" {
		l.suffix = "\n" + cfg.suffix
	}
	return l
}

// Add buffers a row of values, one per placeholder, and flushes when the
// batch is full.
func (l *BulkLoader) Add(ctx context.Context, vs ...any) error {
	if l.err != nil {
		return l.err
	}
	if len(vs) != l.width {
		return vorm.NewArgumentError("Add", "takes %d values, got %d", l.width, len(vs))
	}
	l.rows++
	l.args = append(l.args, vs...)
	if l.per > 0 && l.rows >= l.per {
		return l.Flush(ctx)
	}
	return nil
}

// Extend adds every row of rows.
func (l *BulkLoader) Extend(ctx context.Context, rows [][]any) error {
	for _, vs := range rows {
		if err := l.Add(ctx, vs...); err != nil {
			return err
		}
	}
	return nil
}

// Flush inserts the buffered rows.
func (l *BulkLoader) Flush(ctx context.Context) error {
	if l.err != nil {
		return l.err
	}
	if l.rows == 0 {
		return nil
	}
	s := l.SQL()
	if _, err := l.db.exec(ctx, s.text, s.args); err != nil {
		return vorm.NewMutationError(l.table, "insert", err)
	}
	l.count += l.rows
	l.Clear()
	return nil
}

// Clear drops the buffered rows.
func (l *BulkLoader) Clear() {
	l.rows = 0
	l.args = l.args[:0]
}

// Pending returns the number of buffered rows.
func (l *BulkLoader) Pending() int { return l.rows }

// Count returns the number of rows inserted so far.
func (l *BulkLoader) Count() int { return l.count }

// SQL returns the statement of the buffered rows.
func (l *BulkLoader) SQL() SQL {
	rows := make([]string, l.rows)
	for i := range rows {
		rows[i] = l.row
	}
	return Raw(l.head+strings.Join(rows, ",\n")+l.suffix, slices.Clone(l.args)...)
}
