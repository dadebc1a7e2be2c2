// Package condition compiles declarative predicates from site definitions
// into Go functions.
//
// A condition is one of:
//
//	"NOT_NULL"                 a builtin name (IS_IMAGE, IS_URL, NOT_NULL, NOT_TRUE)
//	"^https://"                any other string, tested as a regular expression
//	{"a.b": "NOT_NULL", ...}   a mapping of path to sub-condition, all must pass
//
// Sequences are rejected so that there is no question whether they mean
// "any" or "all".
package condition

import (
	"sort"

	"github.com/use-agent/webexporter/jsonpath"
	"github.com/use-agent/webexporter/models"
)

// Predicate tests a single value.
type Predicate func(v any) bool

// Builtins are the predicates available by name.
var Builtins = map[string]Predicate{
	"IS_IMAGE": func(v any) bool { return matches(imageRe, v) },
	"IS_URL":   func(v any) bool { return matches(urlRe, v) },
	"NOT_NULL": func(v any) bool { return v != nil },
	"NOT_TRUE": func(v any) bool { return !jsonpath.Truthy(v) },
}

var (
	imageRe, _, _ = Named("IMAGE")
	urlRe, _, _   = Named("URL")
)

func always(any) bool { return true }

// Compile turns cond into a Predicate. A nil condition accepts everything.
func Compile(cond any) (Predicate, error) {
	switch c := cond.(type) {
	case nil:
		return always, nil
	case string:
		return compileString(c)
	case map[string]any:
		return compileMap(c)
	case []any:
		return nil, models.Errorf(models.ErrCodeUnsupportedCondition, "array condition is not supported")
	}
	return nil, models.Errorf(models.ErrCodeUnsupportedCondition, "condition of type %T is not supported", cond)
}

func compileString(s string) (Predicate, error) {
	if fn, ok := Builtins[s]; ok {
		return fn, nil
	}
	re, err := CompileRegexp(s, "")
	if err != nil {
		return nil, err
	}
	return func(v any) bool { return matches(re, v) }, nil
}

type clause struct {
	path jsonpath.Path
	test Predicate
}

func compileMap(m map[string]any) (Predicate, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	clauses := make([]clause, 0, len(keys))
	for _, k := range keys {
		p, err := jsonpath.Parse(k)
		if err != nil {
			return nil, err
		}
		fn, err := Compile(m[k])
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, clause{path: p, test: fn})
	}
	return func(v any) bool {
		for _, c := range clauses {
			if !c.test(c.path.Get(v, nil)) {
				return false
			}
		}
		return true
	}, nil
}
