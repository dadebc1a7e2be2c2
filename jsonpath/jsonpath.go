// Package jsonpath reads and writes nested JSON-like values by dotted and
// bracketed path strings such as "a.b[0].c".
//
// Values are the shapes produced by JSON and YAML decoding: map[string]any,
// []any and scalars. Nothing fancier than identifiers and integer indexes is
// supported.
package jsonpath

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/use-agent/webexporter/models"
)

// Key is one token of a parsed path.
type Key struct {
	Name    string
	Index   int
	IsIndex bool
}

func (k Key) String() string {
	if k.IsIndex {
		return "[" + strconv.Itoa(k.Index) + "]"
	}
	return k.Name
}

// Path is a parsed path. The zero-length Path addresses the root itself.
type Path []Key

func (p Path) String() string {
	var b strings.Builder
	for i, k := range p {
		if !k.IsIndex && i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(k.String())
	}
	return b.String()
}

// parsed caches Parse results; paths come from site definitions so the set
// is small and fixed.
var parsed sync.Map // string -> Path

// Parse splits path into keys. The whole string must be consumed by the
// grammar `[\w$]+ | \.[\w$]+ | \[\d+\]`, otherwise a MALFORMED_PATH error is
// returned.
func Parse(path string) (Path, error) {
	if p, ok := parsed.Load(path); ok {
		return p.(Path), nil
	}
	keys := Path{}
	i := 0
	for i < len(path) {
		c := path[i]
		switch {
		case isIdent(c):
			j := scanIdent(path, i)
			keys = append(keys, Key{Name: path[i:j]})
			i = j
		case c == '.':
			j := scanIdent(path, i+1)
			if j == i+1 {
				return nil, malformed(path)
			}
			keys = append(keys, Key{Name: path[i+1 : j]})
			i = j
		case c == '[':
			j := i + 1
			for j < len(path) && path[j] >= '0' && path[j] <= '9' {
				j++
			}
			if j == i+1 || j >= len(path) || path[j] != ']' {
				return nil, malformed(path)
			}
			n, err := strconv.Atoi(path[i+1 : j])
			if err != nil {
				return nil, models.NewError(models.ErrCodeMalformedPath, "invalid path: "+path, err)
			}
			keys = append(keys, Key{Index: n, IsIndex: true})
			i = j + 1
		default:
			return nil, malformed(path)
		}
	}
	parsed.Store(path, keys)
	return keys, nil
}

// MustParse is like Parse but panics on a malformed path.
func MustParse(path string) Path {
	p, err := Parse(path)
	if err != nil {
		panic(err)
	}
	return p
}

func malformed(path string) error {
	return models.Errorf(models.ErrCodeMalformedPath, "invalid path: %s", path)
}

func isIdent(c byte) bool {
	return c == '_' || c == '$' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func scanIdent(s string, i int) int {
	for i < len(s) && isIdent(s[i]) {
		i++
	}
	return i
}

// Get parses path and reads it from root. When an intermediate value is
// falsy or a key is missing, def (nil when omitted) is returned. Get never
// creates containers.
func Get(root any, path string, def ...any) (any, error) {
	p, err := Parse(path)
	if err != nil {
		return nil, err
	}
	var d any
	if len(def) > 0 {
		d = def[0]
	}
	return p.Get(root, d), nil
}

// Set parses path and writes value into root, creating missing containers
// on the way: a slice when the following key is an index, a map otherwise.
// The returned root must be used by the caller, it differs from the input
// when root was nil or a root slice had to grow.
func Set(root any, path string, value any) (any, error) {
	p, err := Parse(path)
	if err != nil {
		return root, err
	}
	return p.Set(root, value)
}

// Get reads p from root, returning def when the walk falls off the data.
func (p Path) Get(root any, def any) any {
	cur := root
	for _, k := range p {
		if !Truthy(cur) {
			return def
		}
		next, ok := child(cur, k)
		if !ok {
			return def
		}
		cur = next
	}
	return cur
}

// Set writes value at p inside root and returns the resulting root.
// An empty path leaves root untouched.
func (p Path) Set(root any, value any) (any, error) {
	if len(p) == 0 {
		return root, nil
	}
	return setIn(root, p, value)
}

func child(cur any, k Key) (any, bool) {
	switch c := cur.(type) {
	case map[string]any:
		name := k.Name
		if k.IsIndex {
			name = strconv.Itoa(k.Index)
		}
		v, ok := c[name]
		return v, ok
	case []any:
		idx, ok := sliceIndex(k)
		if !ok || idx >= len(c) {
			return nil, false
		}
		return c[idx], true
	}
	return nil, false
}

func sliceIndex(k Key) (int, bool) {
	if k.IsIndex {
		return k.Index, true
	}
	n, err := strconv.Atoi(k.Name)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func container(k Key) any {
	if k.IsIndex {
		return []any{}
	}
	return map[string]any{}
}

func setIn(cur any, p Path, value any) (any, error) {
	k := p[0]
	last := len(p) == 1
	if cur == nil {
		cur = container(k)
	}
	switch c := cur.(type) {
	case map[string]any:
		name := k.Name
		if k.IsIndex {
			name = strconv.Itoa(k.Index)
		}
		if last {
			c[name] = value
			return c, nil
		}
		next := c[name]
		if next == nil {
			next = container(p[1])
		}
		v, err := setIn(next, p[1:], value)
		if err != nil {
			return c, err
		}
		c[name] = v
		return c, nil
	case []any:
		idx, ok := sliceIndex(k)
		if !ok {
			return c, fmt.Errorf("jsonpath: cannot set key %q on a sequence", k.Name)
		}
		for len(c) <= idx {
			c = append(c, nil)
		}
		if last {
			c[idx] = value
			return c, nil
		}
		next := c[idx]
		if next == nil {
			next = container(p[1])
		}
		v, err := setIn(next, p[1:], value)
		if err != nil {
			return c, err
		}
		c[idx] = v
		return c, nil
	}
	return cur, fmt.Errorf("jsonpath: cannot set %s on %T", k, cur)
}
