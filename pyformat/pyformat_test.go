package pyformat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	data := map[string]any{
		"user":  map[string]any{"name": "bob", "ids": []any{7.0, 8.0}},
		"index": 3,
		"ext":   ".jpg",
		"score": 0.5,
	}
	tests := []struct {
		tmpl string
		want string
	}{
		{"plain", "plain"},
		{"{user.name}-{index}{ext}", "bob-3.jpg"},
		{"{user.ids[1]}", "8"},
		{"{index:03d}", "003"},
		{"{index:>4}", "   3"},
		{"{user.name:*^7}", "**bob**"},
		{"{score:.2f}", "0.50"},
		{"{index:x}", "3"},
		{"{{literal}}", "{literal}"},
		{"{user.name!s}", "bob"},
	}
	for _, tt := range tests {
		t.Run(tt.tmpl, func(t *testing.T) {
			got, err := Format(tt.tmpl, data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormat_Positional(t *testing.T) {
	got, err := Format("DEBUG: {0}", "hello")
	require.NoError(t, err)
	assert.Equal(t, "DEBUG: hello", got)

	got, err = Format("{} and {}", []any{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, "a and b", got)

	got, err = Format("{0}", map[string]any{"a": 1.0})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, got)
}

func TestFormat_Errors(t *testing.T) {
	for _, tmpl := range []string{"{missing}", "{unclosed", "stray }", "{0:q}", "{1}"} {
		t.Run(tmpl, func(t *testing.T) {
			_, err := Format(tmpl, map[string]any{})
			assert.Error(t, err)
		})
	}
}
