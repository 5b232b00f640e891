package sql

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/syssam/vorm/dialect"
)

// Quote renders v as a SQL literal for the given dialect. It is used for
// debug output and for statements that cannot carry bound parameters;
// regular queries should pass values as arguments.
func Quote(name string, v any) string {
	switch v := v.(type) {
	case nil:
		return "NULL"
	case bool:
		if canonical(name) == dialect.Postgres {
			return strings.ToUpper(strconv.FormatBool(v))
		}
		if v {
			return "1"
		}
		return "0"
	case int:
		return strconv.Itoa(v)
	case int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(v)
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case []byte:
		switch canonical(name) {
		case dialect.Postgres:
			return `'\x` + hex.EncodeToString(v) + `'::bytea`
		case dialect.SQLite:
			return "X'" + hex.EncodeToString(v) + "'"
		}
		return "0x" + hex.EncodeToString(v)
	case time.Time:
		return quoteString(name, v.Format("2006-01-02 15:04:05.999999"))
	case fmt.Stringer:
		return quoteString(name, v.String())
	case string:
		return quoteString(name, v)
	default:
		return quoteString(name, fmt.Sprint(v))
	}
}

func quoteString(name, s string) string {
	switch canonical(name) {
	case dialect.Postgres:
		return pq.QuoteLiteral(s)
	case dialect.MySQL:
		return "'" + escapeStringValue(s) + "'"
	}
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// escapeStringValue escapes a string value for safe use in SQL.
// It escapes both single quotes (by doubling) and backslashes (for MySQL compatibility).
func escapeStringValue(s string) string {
	if !strings.ContainsAny(s, `'\`) {
		return s
	}
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "'", "''")
	return s
}

// QuoteIdent quotes an identifier for the given dialect.
func QuoteIdent(name, ident string) string {
	if canonical(name) == dialect.MySQL {
		return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
	}
	return pq.QuoteIdentifier(ident)
}
