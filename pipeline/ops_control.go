package pipeline

import (
	"context"

	"github.com/use-agent/webexporter/jsonpath"
)

func (in *Interpreter) opIf(ctx context.Context, f *Frame, s *Step, input, _ any) (any, error) {
	return in.branch(ctx, f, s, input)
}

func (in *Interpreter) opElif(ctx context.Context, f *Frame, s *Step, input, _ any) (any, error) {
	if f.TestResult {
		return nil, nil
	}
	return in.branch(ctx, f, s, input)
}

func (in *Interpreter) opElse(ctx context.Context, f *Frame, s *Step, input, _ any) (any, error) {
	if f.TestResult {
		return nil, nil
	}
	return in.run(ctx, f.child(s.Steps), input, nil)
}

// branch evaluates the step condition into f.TestResult and runs the
// children on success.
func (in *Interpreter) branch(ctx context.Context, f *Frame, s *Step, input any) (any, error) {
	pred, err := s.predicate()
	if err != nil {
		return nil, err
	}
	f.TestResult = pred(input)
	if !f.TestResult {
		return nil, nil
	}
	return in.run(ctx, f.child(s.Steps), input, nil)
}

func (in *Interpreter) opForEach(ctx context.Context, f *Frame, s *Step, input, model any) (any, error) {
	seq, ok := jsonpath.Slice(input)
	if !ok {
		return nil, invalid(s, "input is %T, not a sequence", input)
	}
	var pred func(any) bool
	if s.Condition != nil {
		p, err := s.predicate()
		if err != nil {
			return nil, err
		}
		pred = p
	}

	result := []any{}
	for _, item := range seq {
		if pred != nil && !pred(item) {
			continue
		}
		sub := item
		if s.Ref != "" {
			if m, ok := item.(map[string]any); ok {
				m["index"] = len(result)
			}
			var err error
			if sub, err = jsonpath.Set(model, s.Ref, item); err != nil {
				return nil, err
			}
		}
		v, err := in.run(ctx, f.child(s.Steps), sub, nil)
		if err != nil {
			return nil, err
		}
		result = append(result, v)
	}
	return result, nil
}

func (in *Interpreter) opFilter(_ context.Context, _ *Frame, s *Step, input, _ any) (any, error) {
	seq, ok := jsonpath.Slice(input)
	if !ok {
		return nil, invalid(s, "input is %T, not a sequence", input)
	}
	pred, err := s.predicate()
	if err != nil {
		return nil, err
	}
	result := []any{}
	for _, item := range seq {
		if pred(item) {
			result = append(result, item)
		}
	}
	return result, nil
}

// opLoop runs the children against the same input until loop_break fires or
// ctx is cancelled. The loop itself produces no value.
func (in *Interpreter) opLoop(ctx context.Context, f *Frame, s *Step, input, _ any) (any, error) {
	state := &loopState{}
	for !state.done() {
		if err := ctx.Err(); err != nil {
			return nil, cancelled(err)
		}
		body := f.child(s.Steps)
		body.loop = state
		if _, err := in.run(ctx, body, input, state.done); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

func (in *Interpreter) opLoopBreak(_ context.Context, f *Frame, s *Step, _, _ any) (any, error) {
	if f.loop == nil {
		return nil, invalid(s, "used outside of a loop")
	}
	f.loop.stop()
	return nil, nil
}
