package schema_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/vorm/schema"
)

func TestColumn(t *testing.T) {
	d := schema.Int("id").Primary().AutoIncrement().Descriptor()
	assert.Equal(t, "id", d.Name)
	assert.Equal(t, schema.TypeInt, d.Type)
	assert.True(t, d.Primary)
	assert.True(t, d.AutoIncrement)
	assert.False(t, d.Nullable)
	assert.NoError(t, d.Err)

	d = schema.String("name").Size(40).Null().Unique().Descriptor()
	assert.Equal(t, 40, d.Size)
	assert.True(t, d.Nullable)
	assert.True(t, d.Unique)
	assert.False(t, d.Indexed())

	d = schema.String("name").AutoIncrement().Descriptor()
	assert.EqualError(t, d.Err, "schema: name: AUTO_INCREMENT requires an integer column")
	assert.Error(t, schema.Int("1x").Descriptor().Err)
	assert.Error(t, schema.String("s").Size(0).Descriptor().Err)
}

func TestBelongsTo(t *testing.T) {
	d := schema.BelongsTo("order_id", "Order").Descriptor()
	assert.Equal(t, "Order", d.BelongsTo)
	assert.Equal(t, "order", d.As)
	assert.True(t, d.Indexed())

	d = schema.BelongsTo("order_id", "Order").Index(false).Descriptor()
	assert.False(t, d.Indexed())

	assert.Equal(t, "creator", schema.BelongsTo("created_by", "User").Descriptor().As)
	assert.Equal(t, "updater", schema.BelongsTo("updated_by", "User").Descriptor().As)
	assert.Equal(t, "owner", schema.BelongsTo("user_id", "User").As("owner").Descriptor().As)
}

func TestDefaultValue(t *testing.T) {
	_, ok := schema.Int("n").Descriptor().DefaultValue()
	assert.False(t, ok)

	v, ok := schema.Int("n").Default(3).Descriptor().DefaultValue()
	assert.True(t, ok)
	assert.Equal(t, 3, v)

	calls := 0
	d := schema.Int("n").DefaultFunc(func() any { calls++; return calls }).Descriptor()
	v, _ = d.DefaultValue()
	assert.Equal(t, 1, v)
	v, _ = d.DefaultValue()
	assert.Equal(t, 2, v)
}

func TestDecode(t *testing.T) {
	id := uuid.MustParse("0b9e4c5c-1e8f-4c3e-9a59-2f8f7b6e1d00")
	ts := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	tests := []struct {
		col  *schema.Column
		in   any
		want any
	}{
		{schema.Int("n"), nil, nil},
		{schema.Int("n"), int32(7), int64(7)},
		{schema.Int("n"), []byte("42"), int64(42)},
		{schema.BigInt("n"), uint8(1), int64(1)},
		{schema.String("s"), []byte("abc"), "abc"},
		{schema.Text("s"), "abc", "abc"},
		{schema.Bool("b"), int64(1), true},
		{schema.Bool("b"), []byte("0"), false},
		{schema.Float("f"), []byte("1.5"), 1.5},
		{schema.Float("f"), int64(2), 2.0},
		{schema.Time("t"), ts, ts},
		{schema.Time("t"), "2024-03-01 12:30:00", ts},
		{schema.Bytes("b"), "xy", []byte("xy")},
		{schema.UUID("u"), id.String(), id},
		{schema.UUID("u"), id[:], id},
	}
	for _, tt := range tests {
		d := tt.col.Descriptor()
		got, err := d.Decode(tt.in)
		require.NoError(t, err, "%s %v", d.Type, tt.in)
		assert.Equal(t, tt.want, got, "%s %v", d.Type, tt.in)
	}

	_, err := schema.Int("n").Descriptor().Decode("x")
	assert.Error(t, err)
	_, err = schema.Time("t").Descriptor().Decode(3.5)
	assert.EqualError(t, err, "schema: t: cannot decode float64 as time")
}

func TestEncode(t *testing.T) {
	id := uuid.New()
	v, err := schema.UUID("u").Descriptor().Encode(id)
	require.NoError(t, err)
	assert.Equal(t, id.String(), v)

	v, err = schema.Int("n").Descriptor().Encode(5)
	require.NoError(t, err)
	assert.Equal(t, 5, v)

	d := schema.Int("cents").
		Encoder(func(v any) (any, error) { return int64(v.(float64) * 100), nil }).
		Decoder(func(v any) (any, error) { return float64(v.(int64)) / 100, nil }).
		Descriptor()
	v, err = d.Encode(1.25)
	require.NoError(t, err)
	assert.Equal(t, int64(125), v)
	v, err = d.Decode(int64(125))
	require.NoError(t, err)
	assert.Equal(t, 1.25, v)
}
