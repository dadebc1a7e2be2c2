package condition

import (
	"fmt"
	"strings"

	"github.com/dlclark/regexp2"
)

// Patterns are the named regular expressions available to pipeline authors
// by name, both as `re` patterns and through the IS_URL / IS_IMAGE builtins.
var Patterns = map[string]string{
	"URL":   `(?:https?|ftp)://[^\s<>"'()]+`,
	"IMAGE": `^[^?#]+\.(?:jpe?g|png|gif|webp|avif|bmp|svg)(?:$|[?#:])`,
}

var patternFlags = map[string]string{
	"IMAGE": "i",
	"URL":   "i",
}

// SplitPattern separates a "/source/flags" literal into its parts. A pattern
// that does not start with a slash is returned as the source with no flags.
func SplitPattern(pattern string) (source, flags string) {
	if len(pattern) > 1 && pattern[0] == '/' {
		if last := strings.LastIndexByte(pattern, '/'); last > 0 {
			return pattern[1:last], pattern[last+1:]
		}
	}
	return pattern, ""
}

// Named returns the compiled builtin pattern called name, if any.
func Named(name string) (*regexp2.Regexp, bool, error) {
	src, ok := Patterns[name]
	if !ok {
		return nil, false, nil
	}
	re, err := CompileRegexp(src, patternFlags[name])
	return re, true, err
}

// CompileRegexp compiles source with JavaScript-style flags in regexp2's
// ECMAScript mode, so \d, \w and \s are ASCII-only as in a browser. The
// global and sticky flags are accepted and ignored; callers decide how many
// matches to take.
func CompileRegexp(source, flags string) (*regexp2.Regexp, error) {
	opts := regexp2.RegexOptions(regexp2.ECMAScript)
	for _, f := range flags {
		switch f {
		case 'i':
			opts |= regexp2.IgnoreCase
		case 'm':
			opts |= regexp2.Multiline
		case 's':
			opts |= regexp2.Singleline
		case 'u':
			opts |= regexp2.Unicode
		case 'g', 'y', 'd':
		default:
			return nil, fmt.Errorf("condition: unsupported regexp flag %q in /%s/%s", f, source, flags)
		}
	}
	re, err := regexp2.Compile(source, opts)
	if err != nil {
		return nil, fmt.Errorf("condition: compile /%s/%s: %w", source, flags, err)
	}
	return re, nil
}

// GroupNumbers returns, for each capturing group of re in the order its
// opening parenthesis appears, the number regexp2 gave it. regexp2 numbers
// named groups after all unnamed ones while JavaScript numbers every group
// by position, so $n in a template means GroupNumbers(re)[n-1].
func GroupNumbers(re *regexp2.Regexp) []int {
	src := re.String()
	var out []int
	unnamed := 0
	inClass := false
	for i := 0; i < len(src); i++ {
		switch c := src[i]; {
		case c == '\\':
			i++
		case inClass:
			if c == ']' {
				inClass = false
			}
		case c == '[':
			inClass = true
		case c == '(':
			if i+1 >= len(src) || src[i+1] != '?' {
				unnamed++
				out = append(out, unnamed)
				continue
			}
			if name, ok := groupName(src[i+2:]); ok {
				out = append(out, re.GroupNumberFromName(name))
			}
		}
	}
	return out
}

// groupName reads the name of a (?<name>...) or (?'name'...) group from s,
// the text following "(?". Lookbehinds are not groups.
func groupName(s string) (string, bool) {
	if len(s) < 2 {
		return "", false
	}
	var end byte
	switch s[0] {
	case '<':
		if s[1] == '=' || s[1] == '!' {
			return "", false
		}
		end = '>'
	case '\'':
		end = '\''
	default:
		return "", false
	}
	j := strings.IndexByte(s[1:], end)
	if j <= 0 {
		return "", false
	}
	return s[1 : j+1], true
}
