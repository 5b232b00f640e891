package sql

import (
	"strconv"
	"strings"
)

// Rebind rewrites '?' placeholders into PostgreSQL's numbered form
// ($1, $2, ...). Placeholders inside quoted strings, quoted identifiers
// and comments are left untouched.
func Rebind(query string) string {
	if !strings.Contains(query, "?") {
		return query
	}
	return replacePlaceholders(query, func(b *strings.Builder, n int) {
		b.WriteByte('$')
		b.WriteString(strconv.Itoa(n + 1))
	})
}

// CountPlaceholders returns the number of bindable '?' in query.
func CountPlaceholders(query string) int {
	var c int
	replacePlaceholders(query, func(*strings.Builder, int) { c++ })
	return c
}

// replacePlaceholders calls f for the n-th placeholder of query (0-based)
// and returns the query with every placeholder replaced by what f wrote.
func replacePlaceholders(query string, f func(b *strings.Builder, n int)) string {
	var (
		b   strings.Builder
		arg int
	)
	b.Grow(len(query) + 16)
	for i := 0; i < len(query); {
		switch c := query[i]; {
		case c == '\'' || c == '"' || c == '`':
			j := skipQuoted(query, i+1, c)
			b.WriteString(query[i:j])
			i = j
		case c == '-' && strings.HasPrefix(query[i:], "--"):
			j := strings.IndexByte(query[i:], '\n')
			if j < 0 {
				j = len(query) - i
			}
			b.WriteString(query[i : i+j])
			i += j
		case c == '/' && strings.HasPrefix(query[i:], "/*"):
			j := strings.Index(query[i+2:], "*/")
			if j < 0 {
				j = len(query) - i
			} else {
				j += 4
			}
			b.WriteString(query[i : i+j])
			i += j
		case c == '?':
			f(&b, arg)
			arg++
			i++
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String()
}

// skipQuoted returns the index just past the closing quote q, treating a
// doubled quote as an escaped one. An unterminated quote runs to the end.
func skipQuoted(s string, i int, q byte) int {
	for i < len(s) {
		if s[i] == q {
			if i+1 < len(s) && s[i+1] == q {
				i += 2
				continue
			}
			return i + 1
		}
		i++
	}
	return len(s)
}
