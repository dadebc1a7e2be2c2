package cleaner

import (
	"fmt"
	nurl "net/url"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
)

// Converter turns captured HTML into Markdown. It is safe for concurrent use.
type Converter struct {
	conv *converter.Converter
}

// NewConverter creates a Converter with the commonmark and table plugins.
func NewConverter() *Converter {
	return &Converter{
		conv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(
					table.WithCellPaddingBehavior(table.CellPaddingBehaviorMinimal),
				),
			),
		),
	}
}

// Markdown converts rawHTML. In "article" mode (the default) only the
// readability main content is converted; "raw" converts the whole document.
// Relative links are resolved against pageURL's host.
func (c *Converter) Markdown(rawHTML, pageURL, mode string) (string, error) {
	switch mode {
	case "", "article":
		rawHTML = mainContent(rawHTML, pageURL)
	case "raw":
	default:
		return "", fmt.Errorf("cleaner: unknown markdown mode %q", mode)
	}

	if u, err := nurl.Parse(pageURL); err == nil && u.Host != "" {
		return c.conv.ConvertString(rawHTML, converter.WithDomain(u.Scheme+"://"+u.Host))
	}
	return c.conv.ConvertString(rawHTML)
}
