package models

import "strings"

type Strategy string

const (
	StrategyScrape Strategy = "SCRAPE"
	StrategyCrawl  Strategy = "CRAWL"
)

// ParseStrategy accepts the strategy names case-insensitively.
func ParseStrategy(s string) (Strategy, bool) {
	switch Strategy(strings.ToUpper(strings.TrimSpace(s))) {
	case StrategyScrape:
		return StrategyScrape, true
	case StrategyCrawl:
		return StrategyCrawl, true
	}
	return "", false
}

// Seed is a configured starting URL and how to fetch it.
type Seed struct {
	URL      string
	Strategy Strategy
	Limit    int // page limit for crawl jobs
}

// CrawlResult is one page as returned by the crawl service.
type CrawlResult struct {
	URL       string
	SourceURL string
	Title     string
	Markdown  string
	RawHTML   string
}

// Page pairs a crawl result with the seed that produced it.
type Page struct {
	Seed   Seed
	Result CrawlResult
}

type Document struct {
	ID      string
	URL     string
	Title   string
	Summary string
	Content string
}

// Payload keys stored next to every vector.
const (
	PayloadURL      = "url"
	PayloadTitle    = "title"
	PayloadSummary  = "summary"
	PayloadMarkdown = "markdown"
)

func (d Document) Payload() map[string]any {
	return map[string]any{
		PayloadURL:      d.URL,
		PayloadTitle:    d.Title,
		PayloadSummary:  d.Summary,
		PayloadMarkdown: d.Content,
	}
}

// DocumentFromPayload rebuilds a document from a stored payload. Missing or
// non-string keys are left empty.
func DocumentFromPayload(id string, payload map[string]any) Document {
	str := func(key string) string {
		if v, ok := payload[key].(string); ok {
			return v
		}
		return ""
	}
	return Document{
		ID:      id,
		URL:     str(PayloadURL),
		Title:   str(PayloadTitle),
		Summary: str(PayloadSummary),
		Content: str(PayloadMarkdown),
	}
}

type Metric string

const (
	MetricCosine Metric = "Cosine"
	MetricDot    Metric = "Dot"
	MetricEuclid Metric = "Euclid"
)

func ParseMetric(s string) (Metric, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cosine", "":
		return MetricCosine, true
	case "dot":
		return MetricDot, true
	case "euclid", "euclidean":
		return MetricEuclid, true
	}
	return "", false
}

// Collection describes a named vector index. Its schema is fixed at creation.
type Collection struct {
	Name      string
	Dimension int
	Metric    Metric
}

type SearchResult struct {
	ID       string
	Score    float64
	Document Document
}
