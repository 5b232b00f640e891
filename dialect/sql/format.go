package sql

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultWidth is the line width Format wraps statements at.
const DefaultWidth = 80

// breakRe matches the points where Format starts a new line: a nested
// SELECT, a parenthesis, or a clause keyword.
var breakRe = regexp.MustCompile(`(?i)\(\s*SELECT|[()]|\b(?:(?:LEFT |RIGHT |INNER |OUTER |CROSS |FULL |STRAIGHT_)*JOIN|FROM|WHERE|(?:ORDER|GROUP) BY|HAVING|UNION)\b`)

// Format pretty-prints a statement for debug output. Statements that fit
// in width and contain no JOIN are returned as is. Otherwise every clause
// starts on its own line and sub-selects are indented one level deeper,
// unless they fit on a single line at their depth.
func Format(query string, width int) string {
	if width <= 0 {
		width = DefaultWidth
	}
	if strings.Contains(query, "\n") || (len(query) < width && !strings.Contains(query, "JOIN")) {
		return query
	}
	return format(query, 0, width)
}

func format(query string, depth, width int) string {
	indent := strings.Repeat("  ", depth)
	if depth > 0 && len(query)+(depth+1)*2 < width {
		return indent + query
	}
	var (
		b          strings.Builder
		p0, p1, n  int
		start, end int
	)
	for {
		loc := breakRe.FindStringIndex(query[p1:])
		if loc == nil {
			b.WriteString(indent + query[p0:])
			return b.String()
		}
		start, end = p1+loc[0], p1+loc[1]
		g := query[start:end]
		switch {
		case n > 0:
			switch {
			case g[0] == '(':
				n++
			case g == ")":
				n--
			}
			if n == 0 {
				b.WriteString(format(strings.TrimSpace(query[p0:start]), depth+1, width) + "\n  ")
				p0 = start
			}
		case g == "(" || g == ")":
		case g[0] == '(':
			b.WriteString(indent + query[p0:start] + "(\n  ")
			n = 1
			p0 = start + 1
		default:
			b.WriteString(indent + query[p0:max(start-1, p0)] + "\n  ")
			p0 = start
		}
		p1 = end
	}
}

// Interpolate substitutes the quoted form of args into the placeholders
// of query, for logging. Values longer than limit are cut and suffixed
// with "...". It fails if the number of placeholders and args differ.
func Interpolate(dialect, query string, args []any, limit int) (string, error) {
	if c := CountPlaceholders(query); c != len(args) {
		return "", fmt.Errorf("dialect/sql: %d placeholders for %d arguments", c, len(args))
	}
	return replacePlaceholders(query, func(b *strings.Builder, n int) {
		v := Quote(dialect, args[n])
		if limit > 3 && len(v) > limit-3 {
			v = v[:limit-3] + "..."
		}
		b.WriteString(v)
	}), nil
}

// Indent prefixes every line of s with two spaces per depth level.
func Indent(s string, depth int) string {
	if depth <= 0 {
		return s
	}
	i := strings.Repeat("  ", depth)
	return i + strings.ReplaceAll(s, "\n", "\n"+i)
}
