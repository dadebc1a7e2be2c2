// Package pipeline interprets declarative step lists. A run threads one
// model value through the steps in order; each step reads its input from
// the model by path, calls an operator and merges the result back.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/use-agent/webexporter/jsonpath"
	"github.com/use-agent/webexporter/models"
)

// operator is the shape shared by every entry of the operator table.
type operator func(in *Interpreter, ctx context.Context, f *Frame, s *Step, input, model any) (any, error)

var operators map[string]operator

func init() {
	operators = map[string]operator{
		// extraction
		"re":            (*Interpreter).opRe,
		"json_parse":    (*Interpreter).opJSONParse,
		"json_get":      (*Interpreter).opJSONGet,
		"response":      (*Interpreter).opResponse,
		"object_values": (*Interpreter).opObjectValues,
		"flat":          (*Interpreter).opFlat,
		"find":          (*Interpreter).opFind,
		"date":          (*Interpreter).opDate,
		"html_select":   (*Interpreter).opHTMLSelect,
		"html_markdown": (*Interpreter).opHTMLMarkdown,

		// control flow
		"if":         (*Interpreter).opIf,
		"elif":       (*Interpreter).opElif,
		"else":       (*Interpreter).opElse,
		"for_each":   (*Interpreter).opForEach,
		"filter":     (*Interpreter).opFilter,
		"loop":       (*Interpreter).opLoop,
		"loop_break": (*Interpreter).opLoopBreak,

		// persistence
		"store":      (*Interpreter).opStore,
		"table_join": (*Interpreter).opTableJoin,

		// output and automation
		"export":         (*Interpreter).opExport,
		"wait":           (*Interpreter).opWait,
		"spider_refresh": (*Interpreter).opSpiderRefresh,
		"spider_click":   (*Interpreter).opSpiderClick,
		"debug":          (*Interpreter).opDebug,
		"const":          (*Interpreter).opConst,
	}
}

// Operators returns the names of all known operators.
func Operators() []string {
	names := make([]string, 0, len(operators))
	for name := range operators {
		names = append(names, name)
	}
	return names
}

// Interpreter runs step lists against its collaborators. It holds no
// per-run state and may be shared by concurrent runs.
type Interpreter struct {
	stores   Stores
	exporter Exporter
	tabs     Tabs
	log      Logger
	events   Events
}

// Option configures an Interpreter.
type Option func(*Interpreter)

func WithStores(s Stores) Option     { return func(in *Interpreter) { in.stores = s } }
func WithExporter(e Exporter) Option { return func(in *Interpreter) { in.exporter = e } }
func WithTabs(t Tabs) Option         { return func(in *Interpreter) { in.tabs = t } }
func WithLogger(l Logger) Option     { return func(in *Interpreter) { in.log = l } }
func WithEvents(e Events) Option     { return func(in *Interpreter) { in.events = e } }

// New creates an Interpreter. Operators whose collaborator is missing fail
// when they run.
func New(opts ...Option) *Interpreter {
	in := &Interpreter{}
	for _, opt := range opts {
		opt(in)
	}
	if in.log == nil {
		in.log = &slogLogger{}
	}
	return in
}

// Run executes f.Steps against model and returns the final model.
func (in *Interpreter) Run(ctx context.Context, f *Frame, model any) (any, error) {
	if f.response == nil {
		f.response = &responseCache{}
	}
	return in.run(ctx, f, model, nil)
}

// run is the step loop. shouldBreak is only set for loop bodies and is
// checked after every step.
func (in *Interpreter) run(ctx context.Context, f *Frame, model any, shouldBreak func() bool) (any, error) {
	for i, s := range f.Steps {
		if err := ctx.Err(); err != nil {
			return model, cancelled(err)
		}

		input := model
		if s.Input != nil {
			v, err := jsonpath.Get(model, *s.Input)
			if err != nil {
				return model, fmt.Errorf("step %d (%s): input: %w", i, s.Use, err)
			}
			input = v
		}

		op, ok := operators[s.Use]
		if !ok {
			return model, models.Errorf(models.ErrCodeUnknownOperator, "step %d: unknown operator %q", i, s.Use)
		}
		out, err := op(in, ctx, f, s, input, model)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, models.ErrCancelled) {
				err = cancelled(ctxErr)
			}
			return model, fmt.Errorf("step %d (%s): %w", i, s.Use, err)
		}

		model, err = merge(s, model, out)
		if err != nil {
			return model, fmt.Errorf("step %d (%s): output: %w", i, s.Use, err)
		}

		if shouldBreak != nil && shouldBreak() {
			break
		}
	}
	return model, nil
}

// merge folds an operator result into the model. Falsy results leave the
// model untouched.
func merge(s *Step, model, out any) (any, error) {
	if !jsonpath.Truthy(out) {
		return model, nil
	}
	if s.Output == nil {
		return out, nil
	}
	path, appendMode, err := s.output()
	if err != nil {
		return model, err
	}
	if !appendMode {
		return path.Set(model, out)
	}

	var list []any
	switch old := path.Get(model, nil).(type) {
	case nil:
	case []any:
		list = append(list, old...)
	default:
		list = append(list, old)
	}
	if seq, ok := jsonpath.Slice(out); ok {
		list = append(list, seq...)
	} else {
		list = append(list, out)
	}
	return path.Set(model, list)
}

func cancelled(err error) error {
	return models.NewError(models.ErrCodeCancelled, "pipeline cancelled", err)
}

func invalid(s *Step, format string, args ...any) error {
	return models.Errorf(models.ErrCodeInvalidStep, s.Use+": "+format, args...)
}

func missing(s *Step, collaborator string) error {
	return invalid(s, "no %s configured", collaborator)
}
