package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/dlclark/regexp2"
	"github.com/goccy/go-json"
	"github.com/spf13/cast"

	"github.com/use-agent/webexporter/jsonpath"
	"github.com/use-agent/webexporter/models"
)

var (
	newDateRe    = regexp2.MustCompile(`new Date\(([^)]+)\)`, regexp2.ECMAScript)
	placeholders = regexp2.MustCompile(`\$(\d+|\w+|&)`, regexp2.ECMAScript)
)

func (in *Interpreter) opRe(_ context.Context, _ *Frame, s *Step, input, _ any) (any, error) {
	re, err := s.regexp()
	if err != nil {
		return nil, err
	}
	text := jsonpath.Stringify(input)

	if s.All {
		result := []any{}
		m, err := re.FindStringMatch(text)
		for err == nil && m != nil {
			out, ferr := formatMatch(s.Template, m, s.reGroups)
			if ferr != nil {
				return nil, ferr
			}
			result = append(result, out)
			m, err = re.FindNextMatch(m)
		}
		if err != nil {
			return nil, fmt.Errorf("re /%s/: %w", s.reLabel, err)
		}
		if len(result) == 0 {
			slog.Warn("pattern not matched", "pattern", s.reLabel)
		}
		return result, nil
	}

	m, err := re.FindStringMatch(text)
	if err != nil {
		return nil, fmt.Errorf("re /%s/: %w", s.reLabel, err)
	}
	if m == nil {
		return nil, models.Errorf(models.ErrCodePatternNotMatched, "pattern not matched: %s", s.reLabel)
	}
	return formatMatch(s.Template, m, s.reGroups)
}

// formatMatch expands $1, $name and $& in template. $n counts groups by
// position in the pattern through groups. An empty template yields the
// whole match; unknown or unmatched groups expand to "".
func formatMatch(template string, m *regexp2.Match, groups []int) (string, error) {
	if template == "" {
		return m.String(), nil
	}
	return placeholders.ReplaceFunc(template, func(p regexp2.Match) string {
		name := p.GroupByNumber(1).String()
		if name == "&" {
			return m.String()
		}
		if n, err := strconv.Atoi(name); err == nil {
			if n > 0 {
				if n > len(groups) {
					return ""
				}
				n = groups[n-1]
			}
			if g := m.GroupByNumber(n); g != nil {
				return g.String()
			}
			return ""
		}
		if g := m.GroupByName(name); g != nil {
			return g.String()
		}
		return ""
	}, -1, -1)
}

func (in *Interpreter) opJSONParse(_ context.Context, _ *Frame, s *Step, input, _ any) (any, error) {
	var text string
	switch v := input.(type) {
	case string:
		text = v
	case []byte:
		text = string(v)
	default:
		return nil, invalid(s, "input is %T, not text", input)
	}
	if s.UnwrapNewDate {
		var err error
		if text, err = newDateRe.Replace(text, "$1", -1, -1); err != nil {
			return nil, err
		}
	}
	var out any
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return nil, models.NewError(models.ErrCodeInvalidInput, "json_parse", err)
	}
	return out, nil
}

func (in *Interpreter) opJSONGet(_ context.Context, _ *Frame, s *Step, input, _ any) (any, error) {
	return jsonpath.Get(input, s.Path)
}

func (in *Interpreter) opResponse(_ context.Context, f *Frame, s *Step, _, _ any) (any, error) {
	switch s.Type {
	case "text":
		return f.responseText(), nil
	case "json":
		v, err := f.responseJSON()
		if err != nil {
			return nil, models.NewError(models.ErrCodeInvalidInput, "response is not JSON", err)
		}
		return v, nil
	}
	return nil, invalid(s, "unknown response type %q", s.Type)
}

func (in *Interpreter) opObjectValues(_ context.Context, _ *Frame, _ *Step, input, _ any) (any, error) {
	switch v := input.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]any, 0, len(v))
		for _, k := range keys {
			out = append(out, v[k])
		}
		return out, nil
	case string:
		out := make([]any, 0, len(v))
		for _, r := range v {
			out = append(out, string(r))
		}
		return out, nil
	}
	if seq, ok := jsonpath.Slice(input); ok {
		return seq, nil
	}
	return []any{}, nil
}

func (in *Interpreter) opFlat(_ context.Context, _ *Frame, s *Step, input, _ any) (any, error) {
	seq, ok := jsonpath.Slice(input)
	if !ok {
		return nil, invalid(s, "input is %T, not a sequence", input)
	}
	depth := math.MaxInt
	if s.Depth != nil {
		depth = *s.Depth
	}
	return flatten(make([]any, 0, len(seq)), seq, depth), nil
}

func flatten(dst, src []any, depth int) []any {
	for _, v := range src {
		if inner, ok := jsonpath.Slice(v); ok && depth > 0 {
			dst = flatten(dst, inner, depth-1)
			continue
		}
		dst = append(dst, v)
	}
	return dst
}

func (in *Interpreter) opFind(_ context.Context, _ *Frame, s *Step, input, _ any) (any, error) {
	seq, ok := jsonpath.Slice(input)
	if !ok {
		return nil, invalid(s, "input is %T, not a sequence", input)
	}
	key, err := jsonpath.Parse(s.Key)
	if err != nil {
		return nil, err
	}
	var result, best any
	for _, item := range seq {
		v := key.Get(item, nil)
		if best == nil || better(s.Mode, v, best) {
			best, result = v, item
		}
	}
	if !jsonpath.Truthy(result) {
		return nil, models.Errorf(models.ErrCodeEmptyInput, "no item found for find %s", s.Mode)
	}
	return result, nil
}

// better reports whether a beats b under mode ("min" or anything else for
// max). Two strings compare lexically, everything else numerically. A
// missing value never wins.
func better(mode string, a, b any) bool {
	if a == nil {
		return false
	}
	var less, greater bool
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		less, greater = as < bs, as > bs
	} else {
		af, aerr := toNumber(a)
		bf, berr := toNumber(b)
		if aerr != nil || berr != nil {
			return false
		}
		less, greater = af < bf, af > bf
	}
	if mode == "min" {
		return less
	}
	return greater
}

func toNumber(v any) (float64, error) {
	if t, ok := v.(time.Time); ok {
		return float64(t.UnixMilli()), nil
	}
	return cast.ToFloat64E(v)
}

func (in *Interpreter) opDate(_ context.Context, _ *Frame, s *Step, input, _ any) (any, error) {
	switch v := input.(type) {
	case time.Time:
		return v, nil
	case string:
		t, err := dateparse.ParseIn(strings.TrimSpace(v), time.UTC)
		if err != nil {
			return nil, models.NewError(models.ErrCodeInvalidInput, "date: cannot parse "+strconv.Quote(v), err)
		}
		return t.UTC(), nil
	case nil:
		return time.UnixMilli(0).UTC(), nil
	}
	ms, err := cast.ToFloat64E(input)
	if err != nil {
		return nil, invalid(s, "cannot convert %T to a date", input)
	}
	return time.UnixMilli(int64(ms)).UTC(), nil
}
