// Package schema describes the columns and indexes of vorm models.
//
// Columns are declared with builders and handed to orm.Columns:
//
//	orm.Columns(
//	    schema.Int("id").Primary().AutoIncrement(),
//	    schema.BelongsTo("order_id", "Order"),
//	    schema.String("sku").Size(32).Unique(),
//	    schema.Time("shipped_at").Null(),
//	)
//
// A Descriptor converts values between the driver and Go (Decode, Encode)
// and renders its column definition (DDL). Table, Indexes and
// CreateTableSQL render the DDL of a whole model, and ValidateTable
// checks a model's declaration before it is used.
package schema
