// Package sqlutil provides helpers for working with SQL scripts as text.
package sqlutil

import (
	"strings"
)

// scanner walks a SQL script and reports which bytes are code, so that
// semicolons and comment markers inside literals, quoted identifiers and
// dollar-quoted bodies are left alone.
type scanner struct {
	src string
	pos int
}

// next returns the end of the token starting at s.pos and whether it is a comment.
func (s *scanner) next() (end int, comment bool) {
	src, i := s.src, s.pos
	switch {
	case strings.HasPrefix(src[i:], "--"):
		if nl := strings.IndexByte(src[i:], '\n'); nl >= 0 {
			return i + nl, true
		}
		return len(src), true
	case strings.HasPrefix(src[i:], "/*"):
		if close := strings.Index(src[i+2:], "*/"); close >= 0 {
			return i + 2 + close + 2, true
		}
		return len(src), true
	case src[i] == '\'' || src[i] == '"' || src[i] == '`':
		return quotedEnd(src, i), false
	case src[i] == '$':
		if tag, ok := dollarTag(src[i:]); ok {
			if close := strings.Index(src[i+len(tag):], tag); close >= 0 {
				return i + len(tag) + close + len(tag), false
			}
			return len(src), false
		}
	}
	return i + 1, false
}

// quotedEnd returns the index just past the quoted token starting at i. Doubled
// quotes and backslash escapes stay inside the token.
func quotedEnd(src string, i int) int {
	q := src[i]
	for j := i + 1; j < len(src); j++ {
		switch src[j] {
		case '\\':
			if q != '`' {
				j++
			}
		case q:
			if j+1 < len(src) && src[j+1] == q {
				j++
				continue
			}
			return j + 1
		}
	}
	return len(src)
}

// dollarTag recognises a PostgreSQL dollar-quote opener such as $$ or $body$.
func dollarTag(s string) (string, bool) {
	for j := 1; j < len(s); j++ {
		c := s[j]
		if c == '$' {
			return s[:j+1], true
		}
		if !(c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || j > 1 && c >= '0' && c <= '9') {
			return "", false
		}
	}
	return "", false
}

// StripComments removes -- line comments and /* */ block comments from a SQL
// script, leaving literals untouched.
func StripComments(sql string) string {
	var b strings.Builder
	s := &scanner{src: sql}
	for s.pos < len(sql) {
		end, comment := s.next()
		if !comment {
			b.WriteString(sql[s.pos:end])
		}
		s.pos = end
	}
	return b.String()
}

// SplitSQLStatements splits a script into statements at top-level semicolons.
// Statements are trimmed and empty ones are dropped. Semicolons inside string
// literals, quoted identifiers, comments and dollar-quoted bodies do not split.
func SplitSQLStatements(sql string) []string {
	var out []string
	start := 0
	s := &scanner{src: sql}
	for s.pos < len(sql) {
		if sql[s.pos] == ';' {
			if stmt := strings.TrimSpace(sql[start:s.pos]); stmt != "" {
				out = append(out, stmt)
			}
			s.pos++
			start = s.pos
			continue
		}
		end, _ := s.next()
		s.pos = end
	}
	if stmt := strings.TrimSpace(sql[start:]); stmt != "" {
		out = append(out, stmt)
	}
	return out
}
