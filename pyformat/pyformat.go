// Package pyformat renders Python str.format style templates, the syntax
// site definitions use for filenames, URLs and log messages:
//
//	"{screen_name}-{index:03d}{ext}"
//	"https://example.com/{user.id}/media"
//	"DEBUG: {0}"
//
// Field names are JSON-Path expressions resolved against the data value.
// A numeric field indexes the data when it is a sequence and otherwise
// refers to the data itself, so "{0}" prints a scalar input.
package pyformat

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cast"

	"github.com/use-agent/webexporter/jsonpath"
)

// Format renders tmpl against data.
func Format(tmpl string, data any) (string, error) {
	var b strings.Builder
	auto := 0
	for i := 0; i < len(tmpl); {
		c := tmpl[i]
		switch {
		case c == '{' && i+1 < len(tmpl) && tmpl[i+1] == '{':
			b.WriteByte('{')
			i += 2
		case c == '}' && i+1 < len(tmpl) && tmpl[i+1] == '}':
			b.WriteByte('}')
			i += 2
		case c == '{':
			end := strings.IndexByte(tmpl[i:], '}')
			if end < 0 {
				return "", fmt.Errorf("pyformat: unclosed field in %q", tmpl)
			}
			field := tmpl[i+1 : i+end]
			out, err := renderField(field, data, &auto)
			if err != nil {
				return "", err
			}
			b.WriteString(out)
			i += end + 1
		case c == '}':
			return "", fmt.Errorf("pyformat: single '}' in %q", tmpl)
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String(), nil
}

func renderField(field string, data any, auto *int) (string, error) {
	name, spec, _ := strings.Cut(field, ":")
	name, _, _ = strings.Cut(name, "!")

	if name == "" {
		name = strconv.Itoa(*auto)
		*auto++
	}
	v, err := lookup(name, data)
	if err != nil {
		return "", err
	}
	return applySpec(v, spec)
}

func lookup(name string, data any) (any, error) {
	head, rest := splitHead(name)
	if n, err := strconv.Atoi(head); err == nil {
		var base any
		if seq, ok := jsonpath.Slice(data); ok {
			if n >= len(seq) {
				return nil, fmt.Errorf("pyformat: index %d out of range", n)
			}
			base = seq[n]
		} else if n == 0 {
			base = data
		} else {
			return nil, fmt.Errorf("pyformat: index %d out of range", n)
		}
		if rest == "" {
			return base, nil
		}
		return get(base, strings.TrimPrefix(rest, "."), name)
	}
	return get(data, name, name)
}

func get(data any, path, field string) (any, error) {
	p, err := jsonpath.Parse(path)
	if err != nil {
		return nil, err
	}
	const missing = missingT(0)
	v := p.Get(data, missing)
	if v == missing {
		return nil, fmt.Errorf("pyformat: missing field %q", field)
	}
	return v, nil
}

type missingT int

func splitHead(name string) (string, string) {
	for i := 0; i < len(name); i++ {
		if name[i] == '.' || name[i] == '[' {
			return name[:i], name[i:]
		}
	}
	return name, ""
}

// applySpec handles [[fill]align][0][width][.precision][type].
func applySpec(v any, spec string) (string, error) {
	if spec == "" {
		return jsonpath.Stringify(v), nil
	}
	fill, align := ' ', byte(0)
	if r, size := utf8.DecodeRuneInString(spec); len(spec) > size && isAlign(spec[size]) {
		fill, align = r, spec[size]
		spec = spec[size+1:]
	} else if len(spec) > 0 && isAlign(spec[0]) {
		align = spec[0]
		spec = spec[1:]
	}
	if strings.HasPrefix(spec, "0") {
		fill = '0'
		if align == 0 {
			align = '='
		}
		spec = spec[1:]
	}
	i := 0
	for i < len(spec) && spec[i] >= '0' && spec[i] <= '9' {
		i++
	}
	width, _ := strconv.Atoi(spec[:i])
	spec = spec[i:]
	prec := -1
	if strings.HasPrefix(spec, ".") {
		j := 1
		for j < len(spec) && spec[j] >= '0' && spec[j] <= '9' {
			j++
		}
		prec, _ = strconv.Atoi(spec[1:j])
		spec = spec[j:]
	}
	verb := spec

	var s string
	numeric := false
	switch verb {
	case "d", "x", "X", "o", "b":
		n, err := cast.ToInt64E(v)
		if err != nil {
			return "", fmt.Errorf("pyformat: %v is not an integer: %w", v, err)
		}
		base := map[string]int{"d": 10, "x": 16, "X": 16, "o": 8, "b": 2}[verb]
		s = strconv.FormatInt(n, base)
		if verb == "X" {
			s = strings.ToUpper(s)
		}
		numeric = true
	case "f", "e", "g", "%":
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return "", fmt.Errorf("pyformat: %v is not a number: %w", v, err)
		}
		if prec < 0 {
			prec = 6
		}
		if verb == "%" {
			s = strconv.FormatFloat(f*100, 'f', prec, 64) + "%"
		} else {
			s = strconv.FormatFloat(f, verb[0], prec, 64)
		}
		numeric = true
	case "", "s":
		s = jsonpath.Stringify(v)
		if prec >= 0 && utf8.RuneCountInString(s) > prec {
			s = string([]rune(s)[:prec])
		}
	default:
		return "", fmt.Errorf("pyformat: unknown format type %q", verb)
	}

	if align == 0 {
		align = '<'
		if numeric {
			align = '>'
		}
	}
	return pad(s, fill, align, width), nil
}

func isAlign(c byte) bool {
	return c == '<' || c == '>' || c == '^' || c == '='
}

func pad(s string, fill rune, align byte, width int) string {
	n := width - utf8.RuneCountInString(s)
	if n <= 0 {
		return s
	}
	f := string(fill)
	switch align {
	case '>':
		return strings.Repeat(f, n) + s
	case '^':
		left := n / 2
		return strings.Repeat(f, left) + s + strings.Repeat(f, n-left)
	case '=':
		if strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
			return s[:1] + strings.Repeat(f, n) + s[1:]
		}
		return strings.Repeat(f, n) + s
	}
	return s + strings.Repeat(f, n)
}
