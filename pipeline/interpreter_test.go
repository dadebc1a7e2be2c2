package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/webexporter/models"
)

func run(t *testing.T, in *Interpreter, f *Frame, model any) any {
	t.Helper()
	out, err := in.Run(context.Background(), f, model)
	require.NoError(t, err)
	return out
}

func TestRun_FalsyResultKeepsModel(t *testing.T) {
	for _, value := range []string{`0`, `""`, `false`, `null`} {
		t.Run(value, func(t *testing.T) {
			f := &Frame{Steps: mustSteps(t, `[{"use":"const","value":`+value+`}]`)}
			out := run(t, New(), f, map[string]any{"keep": true})
			assert.Equal(t, map[string]any{"keep": true}, out)
		})
	}
}

func TestRun_TruthyResultReplacesModel(t *testing.T) {
	f := &Frame{Steps: mustSteps(t, `[{"use":"const","value":[]}]`)}
	out := run(t, New(), f, "old")
	assert.Equal(t, []any{}, out)
}

func TestRun_OutputPath(t *testing.T) {
	f := &Frame{Steps: mustSteps(t, `[{"use":"const","value":"x","output":"a.b[1]"}]`)}
	out := run(t, New(), f, nil)
	assert.Equal(t, map[string]any{"a": map[string]any{"b": []any{nil, "x"}}}, out)
}

func TestRun_OutputAppend(t *testing.T) {
	tests := []struct {
		name  string
		model map[string]any
		value string
		want  []any
	}{
		{"sequence", map[string]any{"list": []any{1.0, 2.0}}, `[3]`, []any{1.0, 2.0, 3.0}},
		{"scalar", map[string]any{"list": []any{1.0}}, `2`, []any{1.0, 2.0}},
		{"missing", map[string]any{}, `["a"]`, []any{"a"}},
		{"non-sequence old value", map[string]any{"list": "x"}, `["y"]`, []any{"x", "y"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &Frame{Steps: mustSteps(t, `[{"use":"const","value":`+tt.value+`,"output":"+list"}]`)}
			out := run(t, New(), f, tt.model)
			assert.Equal(t, tt.want, out.(map[string]any)["list"])
		})
	}
}

func TestRun_InputPath(t *testing.T) {
	f := &Frame{Steps: mustSteps(t, `[
		{"use":"json_get","input":"data","path":"items[1].name","output":"name"}
	]`)}
	model := map[string]any{"data": map[string]any{"items": []any{
		map[string]any{"name": "a"}, map[string]any{"name": "b"},
	}}}
	out := run(t, New(), f, model)
	assert.Equal(t, "b", out.(map[string]any)["name"])
}

func TestRun_UnknownOperator(t *testing.T) {
	f := &Frame{Steps: []*Step{{Use: "teleport"}}}
	_, err := New().Run(context.Background(), f, nil)
	assert.ErrorIs(t, err, models.ErrUnknownOperator)
}

func TestRun_CancelledBeforeStep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := &Frame{Steps: mustSteps(t, `[{"use":"const","value":1}]`)}
	out, err := New().Run(ctx, f, "model")
	assert.ErrorIs(t, err, models.ErrCancelled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "model", out)
}

func TestRun_LoopUntilBreak(t *testing.T) {
	tabs := &fakeTabs{clickFn: func(n int) bool { return n < 3 }}
	f := &Frame{Steps: mustSteps(t, `[
		{"use":"loop","steps":[
			{"use":"spider_click","selector":"a.next"},
			{"use":"else","steps":[{"use":"loop_break"}]}
		]}
	]`)}
	run(t, New(WithTabs(tabs), WithLogger(&recordLogger{})), f, nil)
	assert.Equal(t, 3, tabs.clicks)
}

func TestRun_LoopBreakStopsBody(t *testing.T) {
	log := &recordLogger{}
	f := &Frame{Steps: mustSteps(t, `[
		{"use":"loop","steps":[
			{"use":"debug","message":"first"},
			{"use":"loop_break"},
			{"use":"debug","message":"never"}
		]}
	]`)}
	run(t, New(WithLogger(log)), f, nil)
	assert.Equal(t, []string{"first"}, log.Lines())
}

func TestRun_LoopCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	f := &Frame{Steps: mustSteps(t, `[{"use":"loop","steps":[{"use":"wait","seconds":0.005}]}]`)}

	done := make(chan error, 1)
	go func() {
		_, err := New().Run(ctx, f, nil)
		done <- err
	}()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, models.ErrCancelled)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not observe cancellation")
	}
}

func TestRun_LoopBreakOutsideLoop(t *testing.T) {
	f := &Frame{Steps: mustSteps(t, `[{"use":"loop_break"}]`)}
	_, err := New().Run(context.Background(), f, nil)
	assert.ErrorIs(t, err, models.ErrInvalidStep)
}

func TestRun_IfElifElse(t *testing.T) {
	steps := `[
		{"use":"if","condition":"^a","steps":[{"use":"const","value":"matched a"}]},
		{"use":"elif","condition":"^b","steps":[{"use":"const","value":"matched b"}]},
		{"use":"else","steps":[{"use":"const","value":"other"}]}
	]`
	tests := map[string]string{"apple": "matched a", "banana": "matched b", "cherry": "other"}
	for input, want := range tests {
		t.Run(input, func(t *testing.T) {
			out := run(t, New(), &Frame{Steps: mustSteps(t, steps)}, input)
			assert.Equal(t, want, out)
		})
	}
}

func TestRun_ForEachRefInjectsIndex(t *testing.T) {
	f := &Frame{Steps: mustSteps(t, `[
		{"use":"for_each","input":"items","ref":"item","output":"out","steps":[
			{"use":"json_get","path":"item"}
		]}
	]`)}
	model := map[string]any{"items": []any{
		map[string]any{"v": 1.0},
		map[string]any{"v": 2.0},
	}}
	out := run(t, New(), f, model).(map[string]any)

	got, ok := out["out"].([]any)
	require.True(t, ok)
	require.Len(t, got, 2)
	assert.Equal(t, map[string]any{"v": 1.0, "index": 0}, got[0])
	assert.Equal(t, map[string]any{"v": 2.0, "index": 1}, got[1])
}

func TestRun_ForEachCondition(t *testing.T) {
	f := &Frame{Steps: mustSteps(t, `[
		{"use":"for_each","condition":"IS_IMAGE","steps":[
			{"use":"re","pattern":"([^/]+)$"}
		]}
	]`)}
	out := run(t, New(), f, []any{"https://x.test/a.jpg", "https://x.test/page", "https://x.test/b.PNG?s=1"})
	assert.Equal(t, []any{"a.jpg", "b.PNG?s=1"}, out)
}

func TestRun_ForEachRequiresSequence(t *testing.T) {
	f := &Frame{Steps: mustSteps(t, `[{"use":"for_each","steps":[]}]`)}
	_, err := New().Run(context.Background(), f, "nope")
	assert.ErrorIs(t, err, models.ErrInvalidStep)
}

func TestParseSteps_Validation(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want error
	}{
		{"unknown nested operator", `[{"use":"loop","steps":[{"use":"nope"}]}]`, models.ErrUnknownOperator},
		{"array condition", `[{"use":"filter","condition":["a"]}]`, models.ErrUnsupportedCondition},
		{"malformed input", `[{"use":"const","input":"a..b"}]`, models.ErrMalformedPath},
		{"malformed output", `[{"use":"const","output":"+a["}]`, models.ErrMalformedPath},
		{"missing pattern", `[{"use":"re"}]`, models.ErrInvalidStep},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSteps([]byte(tt.src))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestStep_ConditionCompiledOnce(t *testing.T) {
	s := &Step{Use: "filter", Condition: "NOT_NULL"}
	p1, err := s.predicate()
	require.NoError(t, err)
	p2, err := s.predicate()
	require.NoError(t, err)
	assert.Equal(t, p1(nil), p2(nil))
	assert.True(t, p1("x"))
}
