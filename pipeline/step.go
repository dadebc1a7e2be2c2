package pipeline

import (
	"fmt"
	"strings"
	"sync"

	"github.com/andybalholm/cascadia"
	"github.com/dlclark/regexp2"
	"github.com/goccy/go-json"

	"github.com/use-agent/webexporter/condition"
	"github.com/use-agent/webexporter/jsonpath"
	"github.com/use-agent/webexporter/models"
)

// Step is one declarative instruction of a pipeline. Only Use is common to
// every operator; the remaining fields are read by the operators that need
// them.
type Step struct {
	Use       string  `json:"use"`
	Input     *string `json:"input,omitempty"`
	Output    *string `json:"output,omitempty"`
	Steps     []*Step `json:"steps,omitempty"`
	Condition any     `json:"condition,omitempty"`

	// re
	Pattern  string `json:"pattern,omitempty"`
	Match    string `json:"match,omitempty"`
	Flags    string `json:"flags,omitempty"`
	Template string `json:"template,omitempty"`
	All      bool   `json:"all,omitempty"`

	// json_parse, json_get, response
	UnwrapNewDate bool   `json:"unwrap_new_date,omitempty"`
	Path          string `json:"path,omitempty"`
	Type          string `json:"type,omitempty"`

	// store, table_join, find
	Method   string            `json:"method,omitempty"`
	Key      string            `json:"key,omitempty"`
	Table    string            `json:"table,omitempty"`
	LeftKey  string            `json:"left_key,omitempty"`
	RightKey string            `json:"right_key,omitempty"`
	Fields   map[string]string `json:"fields,omitempty"`
	Mode     string            `json:"mode,omitempty"`

	// for_each, flat, const, debug
	Ref     string `json:"ref,omitempty"`
	Depth   *int   `json:"depth,omitempty"`
	Value   any    `json:"value,omitempty"`
	Message string `json:"message,omitempty"`

	// wait, spider_refresh, spider_click
	URL       string  `json:"url,omitempty"`
	Selector  string  `json:"selector,omitempty"`
	Extractor string  `json:"extractor,omitempty"`
	Seconds   float64 `json:"seconds,omitempty"`
	Timeout   int     `json:"timeout,omitempty"` // milliseconds

	// export, html_select, html_markdown
	Kind       string `json:"kind,omitempty"`
	Filename   string `json:"filename,omitempty"`
	DefaultExt string `json:"default_ext,omitempty"`
	Attr       string `json:"attr,omitempty"`

	reOnce   sync.Once
	re       *regexp2.Regexp
	reErr    error
	reLabel  string
	reGroups []int

	predOnce sync.Once
	pred     condition.Predicate
	predErr  error

	selOnce sync.Once
	sel     cascadia.Selector
	selErr  error

	outOnce   sync.Once
	outPath   jsonpath.Path
	outAppend bool
	outErr    error
}

// ParseSteps decodes a JSON array of steps and validates it.
func ParseSteps(data []byte) ([]*Step, error) {
	var steps []*Step
	if err := json.Unmarshal(data, &steps); err != nil {
		return nil, fmt.Errorf("pipeline: decode steps: %w", err)
	}
	if err := Validate(steps); err != nil {
		return nil, err
	}
	return steps, nil
}

// Validate checks operator names, paths and conditions of steps and their
// children ahead of the first run. Compiled conditions and patterns stay
// cached on the steps.
func Validate(steps []*Step) error {
	for i, s := range steps {
		if s == nil {
			return models.Errorf(models.ErrCodeInvalidStep, "step %d is empty", i)
		}
		if _, ok := operators[s.Use]; !ok {
			return models.Errorf(models.ErrCodeUnknownOperator, "step %d: unknown operator %q", i, s.Use)
		}
		if s.Input != nil {
			if _, err := jsonpath.Parse(*s.Input); err != nil {
				return fmt.Errorf("step %d (%s): input: %w", i, s.Use, err)
			}
		}
		if _, _, err := s.output(); err != nil {
			return fmt.Errorf("step %d (%s): output: %w", i, s.Use, err)
		}
		if s.Condition != nil {
			if _, err := s.predicate(); err != nil {
				return fmt.Errorf("step %d (%s): %w", i, s.Use, err)
			}
		}
		if s.Use == "re" {
			if _, err := s.regexp(); err != nil {
				return fmt.Errorf("step %d (%s): %w", i, s.Use, err)
			}
		}
		if err := Validate(s.Steps); err != nil {
			return fmt.Errorf("step %d (%s): %w", i, s.Use, err)
		}
	}
	return nil
}

// predicate compiles the step's condition once.
func (s *Step) predicate() (condition.Predicate, error) {
	s.predOnce.Do(func() {
		s.pred, s.predErr = condition.Compile(s.Condition)
	})
	return s.pred, s.predErr
}

// regexp compiles the step's pattern once. Pattern may name a builtin
// (URL, IMAGE), be a /source/flags literal or a bare source; the legacy
// match+flags pair is accepted as well.
func (s *Step) regexp() (*regexp2.Regexp, error) {
	s.reOnce.Do(func() {
		pattern, flags := s.Pattern, s.Flags
		if pattern == "" {
			pattern = s.Match
		}
		if pattern == "" {
			s.reErr = models.Errorf(models.ErrCodeInvalidStep, "re: pattern is required")
			return
		}
		s.reLabel = pattern
		if re, ok, err := condition.Named(pattern); ok {
			s.re, s.reErr = re, err
			return
		}
		if strings.HasPrefix(pattern, "/") {
			src, f := condition.SplitPattern(pattern)
			pattern, flags = src, f+flags
		}
		s.re, s.reErr = condition.CompileRegexp(pattern, flags)
		if s.reErr == nil {
			s.reGroups = condition.GroupNumbers(s.re)
		}
	})
	return s.re, s.reErr
}

// selector compiles the step's CSS selector once.
func (s *Step) selector() (cascadia.Selector, error) {
	s.selOnce.Do(func() {
		if s.Selector == "" {
			s.selErr = models.Errorf(models.ErrCodeInvalidStep, "%s: selector is required", s.Use)
			return
		}
		s.sel, s.selErr = cascadia.Compile(s.Selector)
		if s.selErr != nil {
			s.selErr = models.NewError(models.ErrCodeInvalidStep, "invalid selector "+s.Selector, s.selErr)
		}
	})
	return s.sel, s.selErr
}

// output parses the output path once. A leading "+" selects append mode.
func (s *Step) output() (jsonpath.Path, bool, error) {
	s.outOnce.Do(func() {
		if s.Output == nil {
			return
		}
		p := *s.Output
		if strings.HasPrefix(p, "+") {
			s.outAppend = true
			p = p[1:]
		}
		s.outPath, s.outErr = jsonpath.Parse(p)
	})
	return s.outPath, s.outAppend, s.outErr
}

func (s *Step) String() string {
	return s.Use
}
