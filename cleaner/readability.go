package cleaner

import (
	"log/slog"
	nurl "net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"
)

// minContentLength is the shortest article text accepted from readability
// before the whole document is used instead.
const minContentLength = 50

// mainContent returns the HTML of the main article in rawHTML. It falls back
// to rawHTML when the page URL is unusable or readability finds nothing of
// substance.
func mainContent(rawHTML, pageURL string) string {
	u, err := nurl.Parse(pageURL)
	if err != nil {
		slog.Warn("readability: invalid page URL, using whole document", "url", pageURL, "error", err)
		return rawHTML
	}

	article, err := readability.FromReader(strings.NewReader(rawHTML), u)
	if err != nil {
		slog.Warn("readability: extraction failed, using whole document", "url", pageURL, "error", err)
		return rawHTML
	}
	if len(strings.TrimSpace(article.TextContent)) < minContentLength {
		slog.Debug("readability: article too short, using whole document",
			"url", pageURL, "length", len(article.TextContent))
		return rawHTML
	}
	return article.Content
}
