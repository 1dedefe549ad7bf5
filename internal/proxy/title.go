package proxy

import (
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// extractTitle parses the document and returns its <title>, falling back to
// the og:title meta when the title tag is empty.
func extractTitle(body io.Reader) string {
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return ""
	}
	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title != "" {
		return title
	}
	if og, ok := doc.Find(`meta[property="og:title"]`).First().Attr("content"); ok {
		return strings.TrimSpace(og)
	}
	return ""
}
