// Package orm is an ActiveRecord-style mapper over database/sql.
//
// Models are declared on a Registry and sealed once at startup:
//
//	reg := orm.NewRegistry()
//	orders := reg.Define("Order", orm.Columns(
//	    schema.Int("id").Primary().AutoIncrement(),
//	    schema.Int("total"),
//	), orm.Relations(orm.HasMany("line_items", "LineItem")))
//	items := reg.Define("LineItem", orm.Columns(
//	    schema.Int("id").Primary().AutoIncrement(),
//	    schema.BelongsTo("order_id", "Order"),
//	    schema.Int("qty"),
//	))
//	if err := reg.Seal(); err != nil {
//	    return err
//	}
//
// # Queries
//
// A Query is built by chaining methods; each returns a new Query. Values
// are always passed as arguments with ? placeholders, rebound to $n on
// PostgreSQL by the driver.
//
//	q := db.Query(items).
//	    Join("order").
//	    Select(orm.Cols("t1", "*"), orm.Cols("t2", "*")).
//	    Where(orm.Eq("qty", orm.GT(1))).
//	    OrderBy("t2.id DESC")
//	// SELECT t1.*, '|', t2.* FROM line_items t1 JOIN orders t2 ON t2.id = t1.order_id
//	// WHERE t1.qty > ? ORDER BY t2.id DESC
//
// Rows of a multi-table SELECT are split at the '|' border columns and
// each table becomes its own Record; the joined order is available from
// item.Related(ctx, "order") without another query. With an identity
// cache, rows sharing a primary key give the same *Record.
//
// # Transactions
//
// DB.Txn and DB.TxnDo open nested scopes: the outermost begins a
// transaction and inner ones set savepoints p1, p2, and so on.
//
//	err := db.TxnDo(ctx, func(ctx context.Context, _ *orm.Txn) error {
//	    _, err := order.Update(ctx)
//	    return err
//	})
package orm
