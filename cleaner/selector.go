package cleaner

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// Select parses rawHTML and returns one string per element matching sel, at
// most limit when limit > 0. attr picks what is returned:
//
//	""/"text"  the element's text content
//	"html"     the element's outer HTML
//	other      the attribute value; elements without it are skipped
//
// href and src values are resolved against pageURL when it is absolute.
func Select(rawHTML string, sel cascadia.Selector, attr, pageURL string, limit int) ([]string, error) {
	// Fragments (HTML embedded in JSON payloads) parse into an implied
	// html/body.
	root, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, err
	}
	doc := goquery.NewDocumentFromNode(root)
	base, _ := url.Parse(pageURL)
	if base != nil && !base.IsAbs() {
		base = nil
	}

	var out []string
	var selErr error
	doc.FindMatcher(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		switch attr {
		case "", "text":
			out = append(out, strings.TrimSpace(s.Text()))
		case "html":
			h, err := goquery.OuterHtml(s)
			if err != nil {
				selErr = err
				return false
			}
			out = append(out, h)
		default:
			v, ok := s.Attr(attr)
			if !ok {
				return true
			}
			if base != nil && (attr == "href" || attr == "src") {
				if ref, err := base.Parse(v); err == nil {
					v = ref.String()
				}
			}
			out = append(out, v)
		}
		return limit <= 0 || len(out) < limit
	})
	return out, selErr
}
