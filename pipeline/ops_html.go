package pipeline

import (
	"context"

	"github.com/use-agent/webexporter/cleaner"
	"github.com/use-agent/webexporter/jsonpath"
)

var markdown = cleaner.NewConverter()

func (f *Frame) pageURL() string {
	if f.Request == nil {
		return ""
	}
	return f.Request.URL
}

// opHTMLSelect returns the first match, or every match with all: true.
// A miss without all yields nil so the model is left alone.
func (in *Interpreter) opHTMLSelect(_ context.Context, f *Frame, s *Step, input, _ any) (any, error) {
	sel, err := s.selector()
	if err != nil {
		return nil, err
	}
	limit := 1
	if s.All {
		limit = 0
	}
	found, err := cleaner.Select(jsonpath.Stringify(input), sel, s.Attr, f.pageURL(), limit)
	if err != nil {
		return nil, err
	}
	if s.All {
		out := make([]any, len(found))
		for i, v := range found {
			out[i] = v
		}
		return out, nil
	}
	if len(found) == 0 {
		return nil, nil
	}
	return found[0], nil
}

func (in *Interpreter) opHTMLMarkdown(_ context.Context, f *Frame, s *Step, input, _ any) (any, error) {
	return markdown.Markdown(jsonpath.Stringify(input), f.pageURL(), s.Mode)
}
