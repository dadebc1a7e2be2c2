package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/webexporter/models"
)

func runStep(t *testing.T, in *Interpreter, f *Frame, steps string, model any) (any, error) {
	t.Helper()
	if f == nil {
		f = &Frame{}
	}
	f.Steps = mustSteps(t, steps)
	return in.Run(context.Background(), f, model)
}

func TestRe(t *testing.T) {
	tests := []struct {
		name  string
		step  string
		input any
		want  any
	}{
		{"template groups", `{"use":"re","pattern":"(\\w+)_(\\d+)","template":"$2:$1"}`, "img_42", "42:img"},
		{"slash literal groups", `{"use":"re","pattern":"/(\\w+)-(\\d+)/","template":"$2:$1"}`, "img-42", "42:img"},
		{"groups numbered by position", `{"use":"re","pattern":"(?<name>[a-z]+)-(\\d+)","template":"$1/$2/$name"}`, "img-42", "img/42/img"},
		{"ascii digits only", `{"use":"re","pattern":"\\d+"}`, "x\u0664\u06627", "7"},
		{"whole match", `{"use":"re","pattern":"\\d+"}`, "abc 123 def", "123"},
		{"named group", `{"use":"re","pattern":"id=(?<id>\\d+)","template":"<$id> $&"}`, "?id=7", "<7> id=7"},
		{"slash literal with flags", `{"use":"re","pattern":"/HELLO/i"}`, "say hello", "hello"},
		{"missing group expands empty", `{"use":"re","pattern":"(a)","template":"$1$9"}`, "a", "a"},
		{"number input", `{"use":"re","pattern":"^4\\d$"}`, 42.0, "42"},
		{"all", `{"use":"re","pattern":"\\d","all":true}`, "a1b2c3", []any{"1", "2", "3"}},
		{"builtin URL", `{"use":"re","pattern":"URL","all":true}`, "see https://a.test/x and http://b.test", []any{"https://a.test/x", "http://b.test"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := runStep(t, New(), nil, "["+tt.step+"]", tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestRe_GlobalNoMatchIsEmpty(t *testing.T) {
	out, err := runStep(t, New(), nil, `[{"use":"re","pattern":"\\d","all":true,"output":"digits"}]`, map[string]any{"text": "none"})
	require.NoError(t, err)
	assert.Equal(t, []any{}, out.(map[string]any)["digits"])
}

func TestRe_NotMatched(t *testing.T) {
	_, err := runStep(t, New(), nil, `[{"use":"re","pattern":"\\d+"}]`, "no digits")
	require.ErrorIs(t, err, models.ErrPatternNotMatched)
	assert.Contains(t, err.Error(), `\d+`)
}

func TestJSONParse_UnwrapNewDate(t *testing.T) {
	out, err := runStep(t, New(), nil,
		`[{"use":"json_parse","unwrap_new_date":true}]`,
		`{"created": new Date(1700000000000), "n": 1}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"created": 1700000000000.0, "n": 1.0}, out)
}

func TestResponse(t *testing.T) {
	f := &Frame{Chunks: [][]byte{[]byte("\xef\xbb\xbf{\"a\":[1,"), []byte("2]}")}}
	out, err := runStep(t, New(), f, `[
		{"use":"response","type":"text","output":"text"},
		{"use":"response","type":"json","output":"json"}
	]`, map[string]any{})
	require.NoError(t, err)
	m := out.(map[string]any)
	assert.Equal(t, `{"a":[1,2]}`, m["text"])
	assert.Equal(t, map[string]any{"a": []any{1.0, 2.0}}, m["json"])
}

func TestResponse_SharedWithChildFrames(t *testing.T) {
	f := &Frame{Chunks: [][]byte{[]byte(`"v"`)}}
	out, err := runStep(t, New(), f, `[
		{"use":"response","type":"json","output":"outer"},
		{"use":"for_each","input":"list","output":"inner","steps":[
			{"use":"response","type":"text"}
		]}
	]`, map[string]any{"list": []any{1.0}})
	require.NoError(t, err)
	m := out.(map[string]any)
	assert.Equal(t, "v", m["outer"])
	assert.Equal(t, []any{`"v"`}, m["inner"])
	assert.NotNil(t, f.response.text)
}

func TestObjectValues(t *testing.T) {
	out, err := runStep(t, New(), nil, `[{"use":"object_values"}]`, map[string]any{"b": 2.0, "a": 1.0})
	require.NoError(t, err)
	assert.Equal(t, []any{1.0, 2.0}, out)

	out, err = runStep(t, New(), nil, `[{"use":"object_values","output":"v"}]`, map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, []any{}, out.(map[string]any)["v"])
}

func TestFlat(t *testing.T) {
	input := []any{1.0, []any{2.0, []any{3.0, []any{4.0}}}}
	out, err := runStep(t, New(), nil, `[{"use":"flat"}]`, input)
	require.NoError(t, err)
	assert.Equal(t, []any{1.0, 2.0, 3.0, 4.0}, out)

	out, err = runStep(t, New(), nil, `[{"use":"flat","depth":1}]`, input)
	require.NoError(t, err)
	assert.Equal(t, []any{1.0, 2.0, []any{3.0, []any{4.0}}}, out)
}

func TestFind(t *testing.T) {
	items := []any{
		map[string]any{"id": "a", "size": 10.0},
		map[string]any{"id": "b", "size": 30.0},
		map[string]any{"id": "c", "size": 20.0},
	}
	out, err := runStep(t, New(), nil, `[{"use":"find","mode":"max","key":"size"}]`, items)
	require.NoError(t, err)
	assert.Equal(t, "b", out.(map[string]any)["id"])

	out, err = runStep(t, New(), nil, `[{"use":"find","mode":"min","key":"size"}]`, items)
	require.NoError(t, err)
	assert.Equal(t, "a", out.(map[string]any)["id"])

	_, err = runStep(t, New(), nil, `[{"use":"find","mode":"max","key":"size"}]`, []any{})
	assert.ErrorIs(t, err, models.ErrEmptyInput)
}

func TestFind_MissingKeyNeverWins(t *testing.T) {
	items := []any{
		map[string]any{"id": "a", "v": 5.0},
		map[string]any{"id": "b"},
	}
	for _, mode := range []string{"min", "max"} {
		t.Run(mode, func(t *testing.T) {
			out, err := runStep(t, New(), nil, `[{"use":"find","mode":"`+mode+`","key":"v"}]`, items)
			require.NoError(t, err)
			assert.Equal(t, "a", out.(map[string]any)["id"])
		})
	}

	// A leading item without the key is replaced by the first real value.
	out, err := runStep(t, New(), nil, `[{"use":"find","mode":"min","key":"v"}]`,
		[]any{map[string]any{"id": "b"}, map[string]any{"id": "c", "v": 7.0}, map[string]any{"id": "d", "v": 3.0}})
	require.NoError(t, err)
	assert.Equal(t, "d", out.(map[string]any)["id"])
}

func TestDate(t *testing.T) {
	out, err := runStep(t, New(), nil, `[{"use":"date"}]`, 1700000000000.0)
	require.NoError(t, err)
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), out)

	out, err = runStep(t, New(), nil, `[{"use":"date"}]`, "2024-01-02T03:04:05Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), out)

	_, err = runStep(t, New(), nil, `[{"use":"date"}]`, "not a date at all")
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestFilter(t *testing.T) {
	out, err := runStep(t, New(), nil, `[{"use":"filter","condition":{"user.name":"NOT_NULL"}}]`, []any{
		map[string]any{"user": map[string]any{"name": "a"}},
		map[string]any{"user": map[string]any{}},
		map[string]any{},
	})
	require.NoError(t, err)
	assert.Len(t, out, 1)
}

func TestStore(t *testing.T) {
	st := &fakeStore{}
	in := New(WithStores(fakeStores{st}))
	_, err := runStep(t, in, &Frame{SiteID: "s", ExtractorID: "e"},
		`[{"use":"store","method":"put","key":"users"}]`, map[string]any{"id": "1"})
	require.NoError(t, err)
	assert.Len(t, st.puts, 1)

	_, err = runStep(t, in, nil, `[{"use":"store","method":"drop","key":"users"}]`, nil)
	assert.ErrorIs(t, err, models.ErrInvalidStep)
}

func TestStore_PartialFailureIsNotFatal(t *testing.T) {
	st := &fakeStore{failed: 1, bulkErr: models.Errorf(models.ErrCodeStorePartialFailure, "1 rows failed")}
	log := &recordLogger{}
	in := New(WithStores(fakeStores{st}), WithLogger(log))
	_, err := runStep(t, in, nil, `[
		{"use":"store","method":"putMany","key":"media"},
		{"use":"debug","message":"after"}
	]`, []any{map[string]any{"id": "1"}, map[string]any{"id": "2"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"media: 1 of 2 rows failed to save", "after"}, log.Lines())
}

func TestTableJoin(t *testing.T) {
	st := &fakeStore{tables: map[string][]any{
		"users": {
			map[string]any{"id": 1.0, "name": "alice", "meta": map[string]any{"avatar": "a.png"}},
		},
	}}
	log := &recordLogger{}
	in := New(WithStores(fakeStores{st}), WithLogger(log))
	rows := []any{
		map[string]any{"uid": 1.0, "text": "hi"},
		map[string]any{"uid": 2.0, "text": "lost"},
	}
	out, err := runStep(t, in, nil, `[{"use":"table_join","table":"users","left_key":"uid","right_key":"id",
		"fields":{"user.name":"name","avatar":"meta.avatar"}}]`, rows)
	require.NoError(t, err)
	assert.Equal(t, []any{
		map[string]any{"uid": 1.0, "text": "hi", "user": map[string]any{"name": "alice"}, "avatar": "a.png"},
	}, out)
	assert.Len(t, log.Lines(), 1)
	assert.NotContains(t, rows[0].(map[string]any), "user")
}

func TestExport(t *testing.T) {
	ex := &fakeExporter{}
	f := &Frame{ExportKind: "media", Request: &Request{URL: "https://site.test/api", CookieStoreID: "c1"}}
	model := map[string]any{"user": "bob", "media": "https://cdn.test/a.jpg"}
	_, err := runStep(t, New(WithExporter(ex)), f,
		`[{"use":"export","input":"media","filename":"{user}/{filename}{ext}"}]`, model)
	require.NoError(t, err)
	require.Len(t, ex.reqs, 1)
	req := ex.reqs[0]
	assert.Equal(t, "media", req.Kind)
	assert.Equal(t, []any{"https://cdn.test/a.jpg"}, req.Items)
	assert.Equal(t, "https://site.test/api", req.Referer)
	assert.Equal(t, "c1", req.CookieStoreID)
	assert.Equal(t, model, req.Context)
}

func TestWait(t *testing.T) {
	t.Run("event", func(t *testing.T) {
		ev := &fakeEvents{ready: map[string]bool{"site::list::start": true}}
		_, err := runStep(t, New(WithEvents(ev)), &Frame{SiteID: "site"},
			`[{"use":"wait","extractor":"list","seconds":0.001}]`, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"site::list::start"}, ev.waited)
	})
	t.Run("timeout", func(t *testing.T) {
		ev := &fakeEvents{}
		_, err := runStep(t, New(WithEvents(ev)), &Frame{SiteID: "site"},
			`[{"use":"wait","extractor":"list","timeout":10}]`, nil)
		assert.ErrorIs(t, err, models.ErrWaitTimeout)
	})
	t.Run("nothing to wait for", func(t *testing.T) {
		_, err := runStep(t, New(), nil, `[{"use":"wait"}]`, nil)
		assert.ErrorIs(t, err, models.ErrInvalidStep)
	})
}

func TestSpiderRefresh(t *testing.T) {
	tabs := &fakeTabs{url: "https://site.test/user/a?page=1"}
	in := New(WithTabs(tabs), WithLogger(&recordLogger{}))
	_, err := runStep(t, in, &Frame{TabID: 3}, `[{"use":"spider_refresh","url":"?page={page}"}]`, map[string]any{"page": 2.0})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://site.test/user/a?page=2"}, tabs.navigated)

	_, err = runStep(t, in, &Frame{TabID: 3}, `[{"use":"spider_refresh"}]`, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, tabs.reloads)
}

func TestHTMLSelect(t *testing.T) {
	page := `<ul><li><a href="/a.jpg">A</a></li><li><a href="b.jpg">B</a></li></ul>`
	f := &Frame{Request: &Request{URL: "https://site.test/gallery/"}}
	out, err := runStep(t, New(), f, `[{"use":"html_select","selector":"li a","attr":"href","all":true}]`, page)
	require.NoError(t, err)
	assert.Equal(t, []any{"https://site.test/a.jpg", "https://site.test/gallery/b.jpg"}, out)

	out, err = runStep(t, New(), f, `[{"use":"html_select","selector":"li a"}]`, page)
	require.NoError(t, err)
	assert.Equal(t, "A", out)
}

func TestHTMLMarkdown(t *testing.T) {
	f := &Frame{Request: &Request{URL: "https://site.test/post"}}
	out, err := runStep(t, New(), f, `[{"use":"html_markdown","mode":"raw"}]`, `<h2>Notes</h2><p>see <a href="/more">more</a></p>`)
	require.NoError(t, err)
	assert.Contains(t, out, "## Notes")
	assert.Contains(t, out, "(https://site.test/more)")
}
