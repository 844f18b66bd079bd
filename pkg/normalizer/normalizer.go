// Package normalizer maps crawl results to document fields. Everything here is
// pure: no I/O, no clocks, no ids.
package normalizer

import (
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/xhad/recall/internal/models"
)

// Normalize builds the URL, title and content of a document from a page. The
// second return value is false when the page has no usable content and must be
// skipped.
//
// Content is the markdown, or the raw HTML when the markdown is blank. The URL
// falls back from the result URL to the source URL to the seed URL. The title
// falls back from the result title to the HTML <title> to the URL.
func Normalize(page models.Page) (models.Document, bool) {
	r := page.Result

	content := r.Markdown
	if strings.TrimSpace(content) == "" {
		content = r.RawHTML
	}
	if strings.TrimSpace(content) == "" {
		return models.Document{}, false
	}

	url := firstNonBlank(r.URL, r.SourceURL, page.Seed.URL)

	title := strings.TrimSpace(r.Title)
	if title == "" {
		title = HTMLTitle(r.RawHTML)
	}
	if title == "" {
		title = url
	}

	return models.Document{
		URL:     url,
		Title:   sanitizeUTF8(title),
		Content: sanitizeUTF8(content),
	}, true
}

// NormalizeAll normalizes pages in order and returns how many were skipped.
func NormalizeAll(pages []models.Page) ([]models.Document, int) {
	docs := make([]models.Document, 0, len(pages))
	skipped := 0
	for _, p := range pages {
		doc, ok := Normalize(p)
		if !ok {
			skipped++
			continue
		}
		docs = append(docs, doc)
	}
	return docs, skipped
}

// HTMLTitle returns the trimmed text of the first <title> element, or "".
func HTMLTitle(html string) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, "")
}
