package schema_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/syssam/vorm/dialect"
	"github.com/syssam/vorm/schema"
)

func lineItems() *schema.Table {
	cols := []*schema.Descriptor{
		schema.Int("id").Primary().AutoIncrement().Descriptor(),
		schema.BelongsTo("order_id", "Order").Descriptor(),
		schema.String("sku").Size(32).Unique().Descriptor(),
		schema.Int("qty").Descriptor(),
		schema.Time("shipped_at").Null().Descriptor(),
	}
	return &schema.Table{
		Name:       "line_items",
		Columns:    cols,
		PrimaryKey: []string{"id"},
		Indexes:    schema.Indexes([]string{"id"}, cols, []*schema.Index{schema.IndexOn("qty", "shipped_at")}),
		ForeignKeys: []*schema.ForeignKey{
			{Column: "order_id", RefTable: "orders", RefColumn: "id"},
		},
	}
}

func TestCreateTableSQL(t *testing.T) {
	tbl := lineItems()
	assert.Equal(t, `CREATE TABLE line_items (
  id INT NOT NULL PRIMARY KEY AUTO_INCREMENT,
  order_id INT NOT NULL,
  sku VARCHAR(32) NOT NULL,
  qty INT NOT NULL,
  shipped_at DATETIME,
  FOREIGN KEY (order_id) REFERENCES orders (id)
)`, schema.CreateTableSQL(dialect.MySQL, tbl))

	assert.Equal(t, `CREATE TABLE line_items (
  id SERIAL PRIMARY KEY,
  order_id INTEGER NOT NULL,
  sku VARCHAR(32) NOT NULL,
  qty INTEGER NOT NULL,
  shipped_at TIMESTAMP,
  FOREIGN KEY (order_id) REFERENCES orders (id)
)`, schema.CreateTableSQL(dialect.Postgres, tbl))

	composite := &schema.Table{
		Name: "tags",
		Columns: []*schema.Descriptor{
			schema.Int("item_id").Primary().Descriptor(),
			schema.String("tag").Primary().Descriptor(),
		},
		PrimaryKey: []string{"item_id", "tag"},
	}
	assert.Equal(t, `CREATE TABLE tags (
  item_id INTEGER NOT NULL,
  tag VARCHAR(255) NOT NULL,
  PRIMARY KEY (item_id, tag)
)`, schema.CreateTableSQL(dialect.SQLite, composite))
}

func TestIndexes(t *testing.T) {
	tbl := lineItems()
	assert.Equal(t, []string{
		"CREATE TABLE line_items (",
		"CREATE INDEX line_items_qty_shipped_at ON line_items (qty, shipped_at)",
		"CREATE INDEX line_items_order_id ON line_items (order_id)",
		"CREATE UNIQUE INDEX line_items_sku ON line_items (sku)",
	}, firstLines(schema.DDL(dialect.MySQL, tbl)))

	// Leading columns of the primary key and of declared indexes are
	// already indexed.
	cols := []*schema.Descriptor{
		schema.Int("a").Primary().Index(true).Descriptor(),
		schema.Int("b").Index(true).Descriptor(),
		schema.Int("c").Index(true).Descriptor(),
	}
	idx := schema.Indexes([]string{"a"}, cols, []*schema.Index{schema.IndexOn("b", "c").Named("bc")})
	if assert.Len(t, idx, 2) {
		assert.Equal(t, "bc", idx[0].NameOn("t"))
		assert.Equal(t, []string{"c"}, idx[1].Columns)
	}

	assert.Equal(t, [][]string{{"sku"}}, schema.UniqueSets(tbl))
}

func firstLines(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		for j := range s {
			if s[j] == '\n' {
				s = s[:j]
				break
			}
		}
		out[i] = s
	}
	return out
}
