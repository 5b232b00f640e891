// Package vorm holds the error taxonomy and the identity cache contract
// shared by the vorm packages.
//
// The ORM itself lives in the orm package: a copy-on-write query builder
// that compiles to parameterized SQL, a row materializer that rebuilds
// object graphs from joined result sets, and a nested savepoint
// transaction manager. Drivers live under dialect.
//
//	reg := orm.NewRegistry()
//	reg.Define("Order", orm.Columns(
//	    schema.Int("id").Primary(),
//	    schema.Int("total"),
//	))
//	reg.Define("LineItem", orm.Columns(
//	    schema.Int("id").Primary(),
//	    schema.BelongsTo("order_id", "Order"),
//	    schema.Int("qty"),
//	))
//	if err := reg.Seal(); err != nil {
//	    log.Fatal(err)
//	}
//
//	db, err := orm.Open(dialect.MySQL, dsn)
//	items, err := db.Query(reg.MustModel("LineItem")).
//	    Join("order").
//	    Select(orm.Cols("t1", "*"), orm.Cols("t2", "*")).
//	    All(ctx)
//
// # Errors
//
// Structural mistakes in a query description (unknown or ambiguous
// columns, unknown relations, unreachable tables) are reported as
// *QueryBuildError values matching ErrInvalidQuery. Data conditions such as
// optimistic lock conflicts are collected on the record and surfaced as
// *ValidationError.
package vorm
