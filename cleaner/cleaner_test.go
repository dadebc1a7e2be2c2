package cleaner

import (
	"strings"
	"testing"

	"github.com/andybalholm/cascadia"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const gallery = `<div class="post">
  <a class="thumb" href="/p/1"><img src="img/1.jpg"> First </a>
  <a class="thumb" href="https://other.test/p/2"><img src="//cdn.test/2.jpg"> Second </a>
  <a class="thumb">No link</a>
</div>`

func TestSelect(t *testing.T) {
	sel := cascadia.MustCompile("a.thumb")
	tests := []struct {
		name  string
		attr  string
		limit int
		want  []string
	}{
		{"text", "", 0, []string{"First", "Second", "No link"}},
		{"limit", "text", 1, []string{"First"}},
		{"resolved href skips missing", "href", 0, []string{"https://site.test/p/1", "https://other.test/p/2"}},
		{"outer html", "html", 1, []string{`<a class="thumb" href="/p/1"><img src="img/1.jpg"/> First </a>`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Select(gallery, sel, tt.attr, "https://site.test/list/", tt.limit)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSelectSrcResolution(t *testing.T) {
	got, err := Select(gallery, cascadia.MustCompile("img"), "src", "https://site.test/list/", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://site.test/list/img/1.jpg", "https://cdn.test/2.jpg"}, got)

	got, err = Select(gallery, cascadia.MustCompile("img"), "src", "not absolute", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"img/1.jpg", "//cdn.test/2.jpg"}, got)
}

func TestSelectNoMatch(t *testing.T) {
	got, err := Select("<p>x</p>", cascadia.MustCompile("table"), "", "", 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMarkdownRaw(t *testing.T) {
	md, err := NewConverter().Markdown(`<h1>Title</h1><p>Some <strong>bold</strong> <a href="/x">link</a></p>`, "https://site.test/a", "raw")
	require.NoError(t, err)
	assert.Contains(t, md, "# Title")
	assert.Contains(t, md, "**bold**")
	assert.Contains(t, md, "(https://site.test/x)")
}

func TestMarkdownArticleFallsBackOnShortPages(t *testing.T) {
	md, err := NewConverter().Markdown(`<p>tiny</p>`, "https://site.test/a", "")
	require.NoError(t, err)
	assert.Equal(t, "tiny", strings.TrimSpace(md))
}

func TestMarkdownUnknownMode(t *testing.T) {
	_, err := NewConverter().Markdown("<p>x</p>", "", "pdf")
	assert.Error(t, err)
}
