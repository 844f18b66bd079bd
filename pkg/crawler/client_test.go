package crawler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/recall/internal/types"
)

func newTestClient(url string) *Client {
	return NewClient(ClientConfig{
		BaseURL:    url,
		RateLimit:  1000,
		MaxRetries: 2,
		BaseDelay:  time.Millisecond,
	})
}

func TestScrapeWithMockServer(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/scrape", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"success": true,
			"data": {
				"markdown": "# Post",
				"rawHtml": "<html><title>Post</title></html>",
				"metadata": {"title": "Post", "sourceURL": "https://example.com/post"}
			}
		}`))
	}))
	defer server.Close()

	result, err := newTestClient(server.URL).Scrape(context.Background(), "https://example.com/post")
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, "https://example.com/post", got["url"])
	assert.Equal(t, []any{"markdown", "rawHtml"}, got["formats"])
	assert.Equal(t, "# Post", result.Markdown)
	assert.Equal(t, "Post", result.Title)
	assert.Equal(t, "https://example.com/post", result.SourceURL)
	assert.Empty(t, result.URL)
}

func TestScrapeNoData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": true}`))
	}))
	defer server.Close()

	result, err := newTestClient(server.URL).Scrape(context.Background(), "https://example.com")
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestStartCrawl(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantID  string
		wantErr error
	}{
		{"top level id", `{"success": true, "id": "abc"}`, "abc", nil},
		{"nested id", `{"data": {"id": "def"}}`, "def", nil},
		{"missing id", `{"success": true}`, "", types.ErrMalformedResponse},
		{"not json", `<html>`, "", types.ErrMalformedResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				var body map[string]any
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, "/v1/crawl", r.URL.Path)
				assert.EqualValues(t, 10, body["limit"])
				assert.Contains(t, body, "scrapeOptions")
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			id, err := newTestClient(server.URL).StartCrawl(context.Background(), "https://example.com/list/", 10)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, id)
		})
	}
}

func TestCrawlStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/crawl/job-9", r.URL.Path)
		w.Write([]byte(`{
			"status": "completed",
			"data": [
				{"markdown": "one", "metadata": {"url": "https://x/1"}},
				{"markdown": "two", "url": "https://x/2"}
			]
		}`))
	}))
	defer server.Close()

	status, err := newTestClient(server.URL).CrawlStatus(context.Background(), "job-9")
	require.NoError(t, err)
	assert.True(t, status.Terminal())
	require.Len(t, status.Results, 2)
	assert.Equal(t, "https://x/1", status.Results[0].URL)
	assert.Equal(t, "https://x/2", status.Results[1].URL)
}

func TestRetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"status": "scraping"}`))
	}))
	defer server.Close()

	status, err := newTestClient(server.URL).CrawlStatus(context.Background(), "job")
	require.NoError(t, err)
	assert.False(t, status.Terminal())
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestRetriesExhausted(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Scrape(context.Background(), "https://example.com")
	assert.ErrorIs(t, err, types.ErrNetwork)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": "bad url"}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Scrape(context.Background(), "nope")
	assert.ErrorIs(t, err, types.ErrMalformedResponse)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestUnreachableService(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := newTestClient(url).Scrape(context.Background(), "https://example.com")
	assert.ErrorIs(t, err, types.ErrNetwork)
}
