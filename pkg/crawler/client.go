package crawler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/xhad/recall/internal/models"
	"github.com/xhad/recall/internal/types"
)

// Formats requested from the crawl service for every page.
var Formats = []string{"markdown", "rawHtml"}

type ClientConfig struct {
	BaseURL    string
	RateLimit  float64 // requests per second
	MaxRetries int
	BaseDelay  time.Duration
	Timeout    time.Duration
	Logger     *log.Logger
}

// Client talks to a Firecrawl-compatible crawl service.
type Client struct {
	config  ClientConfig
	client  *http.Client
	limiter *rate.Limiter
	log     *log.Logger
}

func NewClient(config ClientConfig) *Client {
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:3002"
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.BaseDelay == 0 {
		config.BaseDelay = 500 * time.Millisecond
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	logger := config.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Client{
		config:  config,
		client:  &http.Client{Timeout: config.Timeout},
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		log:     logger.With("component", "crawler"),
	}
}

// page is the wire shape of one crawled document.
type page struct {
	URL       string `json:"url"`
	SourceURL string `json:"sourceUrl"`
	Title     string `json:"title"`
	Markdown  string `json:"markdown"`
	RawHTML   string `json:"rawHtml"`
	Metadata  struct {
		URL       string `json:"url"`
		SourceURL string `json:"sourceURL"`
		Title     string `json:"title"`
	} `json:"metadata"`
}

func (p page) result() models.CrawlResult {
	r := models.CrawlResult{
		URL:       p.URL,
		SourceURL: p.SourceURL,
		Title:     p.Title,
		Markdown:  p.Markdown,
		RawHTML:   p.RawHTML,
	}
	if r.URL == "" {
		r.URL = p.Metadata.URL
	}
	if r.SourceURL == "" {
		r.SourceURL = p.Metadata.SourceURL
	}
	if r.Title == "" {
		r.Title = p.Metadata.Title
	}
	return r
}

// Scrape fetches a single page. A nil result means the service returned no
// data for the URL.
func (c *Client) Scrape(ctx context.Context, url string) (*models.CrawlResult, error) {
	body := map[string]any{
		"url":     url,
		"formats": Formats,
	}

	var resp struct {
		Data *page `json:"data"`
	}
	if _, err := c.do(ctx, http.MethodPost, "/v1/scrape", body, &resp); err != nil {
		return nil, err
	}
	if resp.Data == nil {
		return nil, nil
	}

	r := resp.Data.result()
	return &r, nil
}

// StartCrawl submits a multi-page crawl job and returns its id.
func (c *Client) StartCrawl(ctx context.Context, url string, limit int) (string, error) {
	body := map[string]any{
		"url":   url,
		"limit": limit,
		"scrapeOptions": map[string]any{
			"formats": Formats,
		},
	}

	var resp struct {
		ID   string `json:"id"`
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	raw, err := c.do(ctx, http.MethodPost, "/v1/crawl", body, &resp)
	if err != nil {
		return "", err
	}

	id := resp.ID
	if id == "" {
		id = resp.Data.ID
	}
	if id == "" {
		c.log.Error("crawl job response has no id", "url", url, "response", string(raw))
		return "", fmt.Errorf("%w: no job id for %s", types.ErrMalformedResponse, url)
	}
	return id, nil
}

const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

type CrawlStatus struct {
	Status  string
	Results []models.CrawlResult
}

// Terminal reports whether the job has finished, successfully or not.
func (s CrawlStatus) Terminal() bool {
	return s.Status == StatusCompleted || s.Status == StatusFailed
}

func (c *Client) CrawlStatus(ctx context.Context, id string) (*CrawlStatus, error) {
	var resp struct {
		Status string `json:"status"`
		Data   []page `json:"data"`
	}
	if _, err := c.do(ctx, http.MethodGet, "/v1/crawl/"+id, nil, &resp); err != nil {
		return nil, err
	}

	status := &CrawlStatus{Status: resp.Status}
	for _, p := range resp.Data {
		status.Results = append(status.Results, p.result())
	}
	return status, nil
}

// do sends one request with rate limiting and bounded retries. It returns the
// raw response body alongside the decoded value.
func (c *Client) do(ctx context.Context, method, path string, body, out any) ([]byte, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
	}

	url := c.config.BaseURL + path
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := backoff(c.config.BaseDelay, attempt)
			c.log.Debug("Backing off before retry", "url", url, "attempt", attempt, "delay", delay)
			if err := sleep(ctx, delay); err != nil {
				return nil, err
			}
		}

		// Apply rate limiting
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		raw, retry, err := c.send(ctx, method, url, payload)
		if err == nil {
			if out != nil {
				if err := json.Unmarshal(raw, out); err != nil {
					c.log.Error("undecodable response", "url", url, "response", string(raw))
					return raw, fmt.Errorf("%w: %s: %v", types.ErrMalformedResponse, url, err)
				}
			}
			return raw, nil
		}
		if !retry {
			return raw, err
		}

		lastErr = err
		c.log.Warn("crawl service request failed", "url", url, "attempt", attempt, "error", err)
	}

	return nil, fmt.Errorf("%w: %s after %d attempts: %v", types.ErrNetwork, url, c.config.MaxRetries+1, lastErr)
}

func (c *Client) send(ctx context.Context, method, url string, payload []byte) ([]byte, bool, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, false, fmt.Errorf("failed to build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		return nil, true, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, err
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return raw, true, fmt.Errorf("received status code %d", resp.StatusCode)
	case resp.StatusCode >= 300:
		c.log.Error("crawl service rejected request", "url", url, "status", resp.StatusCode, "response", string(raw))
		return raw, false, fmt.Errorf("%w: %s returned status %d", types.ErrMalformedResponse, url, resp.StatusCode)
	}
	return raw, false, nil
}

// backoff is base * 2^(attempt-1) plus up to 50% jitter.
func backoff(base time.Duration, attempt int) time.Duration {
	delay := base * time.Duration(1<<uint(attempt-1))
	if delay <= 0 {
		return base
	}
	return delay + time.Duration(rand.Int63n(int64(delay)/2+1))
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

