package engine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dlclark/regexp2"
)

// Matcher tests URLs against a URLPattern-style string such as
//
//	https://example.com/api/:version/users/*
//	https://*.example.com/media/:id.(jpg|png)?size=*
//
// Supported syntax: "*" wildcards, ":name" groups, "(regexp)" groups,
// "{...}" non-capturing groups and the "?" modifier after a group. The
// query string and fragment are ignored unless the pattern has a search
// part of its own.
type Matcher struct {
	pattern string
	re      *regexp2.Regexp
}

// CompileURLPattern compiles pattern into a Matcher.
func CompileURLPattern(pattern string) (*Matcher, error) {
	if pattern == "" {
		return nil, fmt.Errorf("engine: empty url pattern")
	}
	main, search, hasSearch := splitSearch(pattern)

	var b strings.Builder
	b.WriteString("^")
	if err := translate(&b, main, "[^/?#]+", "[^?#]*"); err != nil {
		return nil, fmt.Errorf("engine: url pattern %q: %w", pattern, err)
	}
	if hasSearch {
		b.WriteString(`\?`)
		if err := translate(&b, search, "[^&#]+", "[^#]*"); err != nil {
			return nil, fmt.Errorf("engine: url pattern %q: %w", pattern, err)
		}
	} else {
		b.WriteString(`(?:\?[^#]*)?`)
	}
	b.WriteString(`(?:#.*)?$`)

	re, err := regexp2.Compile(b.String(), regexp2.None)
	if err != nil {
		return nil, fmt.Errorf("engine: url pattern %q: %w", pattern, err)
	}
	return &Matcher{pattern: pattern, re: re}, nil
}

func (m *Matcher) String() string { return m.pattern }

// Match reports whether rawURL matches. Named groups are returned by name,
// wildcards and regexp groups by their position ("0", "1", ...).
func (m *Matcher) Match(rawURL string) (map[string]string, bool) {
	res, err := m.re.FindStringMatch(rawURL)
	if err != nil || res == nil {
		return nil, false
	}
	groups := map[string]string{}
	for _, name := range m.re.GetGroupNames() {
		if name == "0" {
			continue
		}
		g := res.GroupByName(name)
		if g == nil || len(g.Captures) == 0 {
			continue
		}
		if n, err := strconv.Atoi(name); err == nil {
			name = strconv.Itoa(n - 1)
		}
		groups[name] = g.String()
	}
	return groups, true
}

// splitSearch finds the "?" starting the search part. A "?" directly after
// a group, wildcard or name is a modifier instead; "\?" is a literal.
func splitSearch(p string) (string, string, bool) {
	for i := 0; i < len(p); i++ {
		switch p[i] {
		case '\\':
			i++
		case '(':
			i = skipParens(p, i)
		case '?':
			if i > 0 && isModifierTarget(p, i-1) {
				continue
			}
			return p[:i], p[i+1:], true
		}
	}
	return p, "", false
}

func isModifierTarget(p string, i int) bool {
	c := p[i]
	return c == '*' || c == ')' || c == '}' || (isNameChar(c) && nameStart(p, i) >= 0)
}

// nameStart returns the index of the ':' starting the name that ends at i,
// or -1 when the run of name characters is not a group name.
func nameStart(p string, i int) int {
	j := i
	for j >= 0 && isNameChar(p[j]) {
		j--
	}
	if j >= 0 && p[j] == ':' && j < i && isNameStart(p[j+1]) {
		return j
	}
	return -1
}

func isNameStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isNameChar(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func skipParens(p string, i int) int {
	depth := 0
	for ; i < len(p); i++ {
		switch p[i] {
		case '\\':
			i++
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return i
}

// translate appends the regexp for one pattern component to b. segment is
// the default expression of a ":name" group, wildcard that of "*".
func translate(b *strings.Builder, p, segment, wildcard string) error {
	for i := 0; i < len(p); i++ {
		c := p[i]
		switch {
		case c == '\\':
			if i+1 < len(p) {
				i++
				b.WriteString(regexp2.Escape(p[i : i+1]))
			}
		case c == '*':
			b.WriteString("(" + wildcard + ")")
		case c == ':' && i+1 < len(p) && isNameStart(p[i+1]):
			j := i + 1
			for j < len(p) && isNameChar(p[j]) {
				j++
			}
			name := p[i+1 : j]
			if j < len(p) && p[j] == '(' {
				end := skipParens(p, j)
				if end >= len(p) {
					return fmt.Errorf("unbalanced group after :%s", name)
				}
				fmt.Fprintf(b, "(?<%s>%s)", name, p[j+1:end])
				j = end + 1
			} else {
				fmt.Fprintf(b, "(?<%s>%s)", name, segment)
			}
			i = j - 1
		case c == '(':
			end := skipParens(p, i)
			if end >= len(p) {
				return fmt.Errorf("unbalanced group at %d", i)
			}
			b.WriteString(p[i : end+1])
			i = end
		case c == '{':
			b.WriteString("(?:")
		case c == '}':
			b.WriteString(")")
		case (c == '?' || c == '+') && i > 0 && isModifierTarget(p, i-1):
			b.WriteByte(c)
		default:
			b.WriteString(regexp2.Escape(p[i : i+1]))
		}
	}
	return nil
}
