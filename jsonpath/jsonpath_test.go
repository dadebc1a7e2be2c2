package jsonpath

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/webexporter/models"
)

func TestParse(t *testing.T) {
	tests := []struct {
		path string
		want Path
	}{
		{"", Path{}},
		{"a", Path{{Name: "a"}}},
		{"a.b[0].c", Path{{Name: "a"}, {Name: "b"}, {Index: 0, IsIndex: true}, {Name: "c"}}},
		{"$ref.x", Path{{Name: "$ref"}, {Name: "x"}}},
		{"[2][10]", Path{{Index: 2, IsIndex: true}, {Index: 10, IsIndex: true}}},
		{"items.0", Path{{Name: "items"}, {Name: "0"}}},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := Parse(tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse_Malformed(t *testing.T) {
	for _, path := range []string{"a..b", "a.", "a[x]", "a[1", "a[]", "a-b", "a b", "[-1]", ".", "a/b"} {
		t.Run(path, func(t *testing.T) {
			_, err := Parse(path)
			require.Error(t, err)
			assert.True(t, errors.Is(err, models.ErrMalformedPath), "got %v", err)
		})
	}
}

func TestGet(t *testing.T) {
	root := map[string]any{
		"a": map[string]any{
			"b": []any{map[string]any{"c": "deep"}, nil},
			"z": 0.0,
			"n": nil,
		},
		"list": []any{1.0, 2.0},
	}

	tests := []struct {
		name string
		path string
		def  []any
		want any
	}{
		{"nested", "a.b[0].c", nil, "deep"},
		{"index via dot", "list.1", nil, 2.0},
		{"missing key", "a.missing", nil, nil},
		{"missing key default", "a.missing", []any{"dflt"}, "dflt"},
		{"out of range", "list[5]", []any{-1}, -1},
		{"through nil element", "a.b[1].c", []any{"d"}, "d"},
		{"through falsy scalar", "a.z.q", []any{"d"}, "d"},
		{"present nil value", "a.n", []any{"d"}, nil},
		{"empty path is root", "", nil, root},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Get(root, tt.path, tt.def...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGet_DoesNotCreate(t *testing.T) {
	root := map[string]any{}
	v, err := Get(root, "a.b[0]", "none")
	require.NoError(t, err)
	assert.Equal(t, "none", v)
	assert.Empty(t, root)
}

func TestGet_Malformed(t *testing.T) {
	_, err := Get(map[string]any{}, "a..b")
	assert.ErrorIs(t, err, models.ErrMalformedPath)
}

func TestSet_AutoVivifies(t *testing.T) {
	root := map[string]any{}
	out, err := Set(root, "a.b[1].c", "v")
	require.NoError(t, err)

	want := map[string]any{
		"a": map[string]any{
			"b": []any{nil, map[string]any{"c": "v"}},
		},
	}
	assert.Equal(t, want, out)
	// maps are written in place
	assert.Equal(t, want, root)
}

func TestSet_NilRoot(t *testing.T) {
	out, err := Set(nil, "[0].x", 1.0)
	require.NoError(t, err)
	assert.Equal(t, []any{map[string]any{"x": 1.0}}, out)
}

func TestSet_Replaces(t *testing.T) {
	root := map[string]any{"a": []any{1.0, 2.0}}
	_, err := Set(root, "a", "x")
	require.NoError(t, err)
	assert.Equal(t, "x", root["a"])
}

func TestSet_ScalarIntermediate(t *testing.T) {
	root := map[string]any{"a": "text"}
	_, err := Set(root, "a.b", 1.0)
	assert.Error(t, err)
}

func TestSet_Malformed(t *testing.T) {
	_, err := Set(map[string]any{}, "a[", 1.0)
	assert.ErrorIs(t, err, models.ErrMalformedPath)
}

func TestSetGet_RoundTrip(t *testing.T) {
	paths := []string{"a", "a.b", "a.b.c", "a[0]", "a[3].b", "x.y[2][1].z", "$k.v", "deep.list[0].inner[4]"}
	values := []any{"s", 42.0, true, map[string]any{"k": "v"}, []any{1.0}}

	for _, path := range paths {
		for _, v := range values {
			root, err := Set(map[string]any{}, path, v)
			require.NoError(t, err, path)
			got, err := Get(root, path)
			require.NoError(t, err, path)
			assert.Equal(t, v, got, path)
		}
	}
}

func TestTruthy(t *testing.T) {
	tests := []struct {
		v    any
		want bool
	}{
		{nil, false},
		{false, false},
		{true, true},
		{0.0, false},
		{1.5, true},
		{0, false},
		{"", false},
		{"0", true},
		{[]any{}, true},
		{map[string]any{}, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Truthy(tt.v), "%#v", tt.v)
	}
}

func TestStringify(t *testing.T) {
	assert.Equal(t, "42", Stringify(42.0))
	assert.Equal(t, "1.5", Stringify(1.5))
	assert.Equal(t, "true", Stringify(true))
	assert.Equal(t, "", Stringify(nil))
	assert.Equal(t, `{"a":1}`, Stringify(map[string]any{"a": 1.0}))
}
