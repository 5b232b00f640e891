package schema

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Layouts tried, in order, when a time column arrives as text.
var timeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// Decode converts a value read from the driver into the Go value of the
// column: int64 for integer columns, string for text columns, bool,
// float64, time.Time, []byte and uuid.UUID. NULL decodes to nil.
func (d *Descriptor) Decode(v any) (any, error) {
	if d.Decoder != nil {
		return d.Decoder(v)
	}
	if v == nil {
		return nil, nil
	}
	switch d.Type {
	case TypeInt, TypeBigInt:
		return toInt64(v)
	case TypeString, TypeText:
		switch v := v.(type) {
		case string:
			return v, nil
		case []byte:
			return string(v), nil
		case fmt.Stringer:
			return v.String(), nil
		}
	case TypeBool:
		switch v := v.(type) {
		case bool:
			return v, nil
		case []byte:
			return strconv.ParseBool(string(v))
		case string:
			return strconv.ParseBool(v)
		default:
			n, err := toInt64(v)
			if err != nil {
				return nil, err
			}
			return n != 0, nil
		}
	case TypeFloat:
		switch v := v.(type) {
		case float64:
			return v, nil
		case float32:
			return float64(v), nil
		case []byte:
			return strconv.ParseFloat(string(v), 64)
		case string:
			return strconv.ParseFloat(v, 64)
		default:
			n, err := toInt64(v)
			if err != nil {
				return nil, err
			}
			return float64(n), nil
		}
	case TypeTime:
		switch v := v.(type) {
		case time.Time:
			return v, nil
		case []byte:
			return parseTime(string(v))
		case string:
			return parseTime(v)
		}
	case TypeBytes:
		switch v := v.(type) {
		case []byte:
			return v, nil
		case string:
			return []byte(v), nil
		}
	case TypeUUID:
		switch v := v.(type) {
		case uuid.UUID:
			return v, nil
		case string:
			return uuid.Parse(v)
		case []byte:
			if len(v) == 16 {
				return uuid.FromBytes(v)
			}
			return uuid.ParseBytes(v)
		}
	}
	return nil, fmt.Errorf("schema: %s: cannot decode %T as %s", d.Name, v, d.Type)
}

// Encode converts a Go value into the value passed to the driver.
func (d *Descriptor) Encode(v any) (any, error) {
	if d.Encoder != nil {
		return d.Encoder(v)
	}
	switch v := v.(type) {
	case uuid.UUID:
		return v.String(), nil
	case *uuid.UUID:
		if v == nil {
			return nil, nil
		}
		return v.String(), nil
	}
	return v, nil
}

func toInt64(v any) (int64, error) {
	switch v := v.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case uint:
		return int64(v), nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint64:
		return int64(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case []byte:
		return strconv.ParseInt(string(v), 10, 64)
	case string:
		return strconv.ParseInt(v, 10, 64)
	}
	return 0, fmt.Errorf("schema: cannot convert %T to int64", v)
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("schema: cannot parse %q as time", s)
}
