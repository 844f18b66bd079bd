package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/xhad/recall/internal/models"
	"github.com/xhad/recall/internal/types"
)

type QdrantConfig struct {
	URL        string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
	BaseDelay  time.Duration
	Logger     *log.Logger
}

// Qdrant is a REST client to a Qdrant server.
type Qdrant struct {
	config   QdrantConfig
	client   *http.Client
	log      *log.Logger
	active   *models.Collection
	mismatch error
}

func NewQdrant(config QdrantConfig) *Qdrant {
	config.URL = strings.TrimRight(config.URL, "/")
	if config.URL == "" {
		config.URL = "http://localhost:6333"
	}
	if config.Timeout == 0 {
		config.Timeout = 15 * time.Second
	}
	if config.BaseDelay == 0 {
		config.BaseDelay = 200 * time.Millisecond
	}
	logger := config.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Qdrant{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		log:    logger.With("component", "qdrant"),
	}
}

// statusError is a non-2xx reply from Qdrant.
type statusError struct {
	method, url string
	status      int
	body        string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("qdrant %s %s failed: %d %s", e.method, e.url, e.status, e.body)
}

func (q *Qdrant) Collections(ctx context.Context) ([]string, error) {
	var resp struct {
		Result struct {
			Collections []struct {
				Name string `json:"name"`
			} `json:"collections"`
		} `json:"result"`
	}
	if err := q.call(ctx, http.MethodGet, "/collections", nil, &resp); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(resp.Result.Collections))
	for _, c := range resp.Result.Collections {
		names = append(names, c.Name)
	}
	return names, nil
}

func (q *Qdrant) collectionInfo(ctx context.Context, name string) (models.Collection, error) {
	var resp struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors struct {
						Size     int    `json:"size"`
						Distance string `json:"distance"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	if err := q.call(ctx, http.MethodGet, "/collections/"+name, nil, &resp); err != nil {
		return models.Collection{}, err
	}
	v := resp.Result.Config.Params.Vectors
	metric, _ := models.ParseMetric(v.Distance)
	return models.Collection{Name: name, Dimension: v.Size, Metric: metric}, nil
}

// EnsureCollection creates the collection when it is not listed. An existing
// collection is never modified.
func (q *Qdrant) EnsureCollection(ctx context.Context, c models.Collection) error {
	names, err := q.Collections(ctx)
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}

	exists := false
	for _, n := range names {
		if n == c.Name {
			exists = true
			break
		}
	}

	if !exists {
		body := map[string]any{
			"vectors": map[string]any{
				"size":     c.Dimension,
				"distance": string(c.Metric),
			},
		}
		if err := q.call(ctx, http.MethodPut, "/collections/"+c.Name, body, nil); err != nil {
			return fmt.Errorf("failed to create collection %s: %w", c.Name, err)
		}
		q.log.Info("created collection", "name", c.Name, "dimension", c.Dimension, "metric", c.Metric)
		q.active, q.mismatch = &c, nil
		return nil
	}

	existing, err := q.collectionInfo(ctx, c.Name)
	if err != nil {
		return fmt.Errorf("failed to read collection %s: %w", c.Name, err)
	}
	q.active = &existing
	if existing.Dimension != c.Dimension {
		q.mismatch = mismatchError(c, existing.Dimension)
		return q.mismatch
	}
	q.mismatch = nil
	return nil
}

func (q *Qdrant) UpsertBatch(ctx context.Context, docs []models.Document, vectors [][]float32) (types.UpsertReport, error) {
	if q.active == nil {
		return types.UpsertReport{}, errNoCollection
	}
	if q.mismatch != nil {
		return types.UpsertReport{}, q.mismatch
	}

	accepted, failed, err := validate(*q.active, docs, vectors)
	report := types.UpsertReport{Failed: failed}
	if err != nil || len(accepted) == 0 {
		return report, err
	}

	err = q.upsert(ctx, docs, vectors, accepted)
	if err == nil {
		for _, i := range accepted {
			report.Stored = append(report.Stored, docs[i].ID)
		}
		return report, nil
	}
	if ctx.Err() != nil {
		return report, err
	}
	q.log.Warn("batch upsert failed, retrying per item", "points", len(accepted), "error", err)

	for _, i := range accepted {
		if err := q.upsert(ctx, docs, vectors, []int{i}); err != nil {
			report.Failed = append(report.Failed, types.ItemError{ID: docs[i].ID, URL: docs[i].URL, Err: err})
			continue
		}
		report.Stored = append(report.Stored, docs[i].ID)
	}
	return report, nil
}

func (q *Qdrant) upsert(ctx context.Context, docs []models.Document, vectors [][]float32, idx []int) error {
	ids := make([]string, 0, len(idx))
	vecs := make([][]float32, 0, len(idx))
	payloads := make([]map[string]any, 0, len(idx))
	for _, i := range idx {
		ids = append(ids, docs[i].ID)
		vecs = append(vecs, vectors[i])
		payloads = append(payloads, docs[i].Payload())
	}

	body := map[string]any{
		"batch": map[string]any{
			"ids":      ids,
			"vectors":  vecs,
			"payloads": payloads,
		},
	}
	return q.call(ctx, http.MethodPut, "/collections/"+q.active.Name+"/points?wait=true", body, nil)
}

func (q *Qdrant) Query(ctx context.Context, vector []float32, k int) ([]models.SearchResult, error) {
	if q.active == nil {
		return nil, errNoCollection
	}
	k = topK(k)

	req := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			ID      any            `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := q.call(ctx, http.MethodPost, "/collections/"+q.active.Name+"/points/search", req, &resp); err != nil {
		return nil, err
	}

	results := make([]models.SearchResult, 0, len(resp.Result))
	for _, r := range resp.Result {
		id := fmt.Sprint(r.ID)
		results = append(results, models.SearchResult{
			ID:       id,
			Score:    r.Score,
			Document: models.DocumentFromPayload(id, r.Payload),
		})
	}
	return rank(results, k), nil
}

func (q *Qdrant) Close() error {
	q.client.CloseIdleConnections()
	return nil
}

// call sends one JSON request, retrying transport errors and 5xx replies.
func (q *Qdrant) call(ctx context.Context, method, path string, body, out any) error {
	var data []byte
	if body != nil {
		var err error
		if data, err = json.Marshal(body); err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
	}
	url := q.config.URL + path

	var lastErr error
	for attempt := 0; attempt <= q.config.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := wait(ctx, q.config.BaseDelay<<uint(attempt-1)); err != nil {
				return err
			}
		}

		err := q.send(ctx, method, url, data, out)
		if err == nil {
			return nil
		}
		var se *statusError
		if ctx.Err() != nil || errors.Is(err, types.ErrMalformedResponse) || (errors.As(err, &se) && se.status < 500) {
			return err
		}
		lastErr = err
		q.log.Debug("qdrant request failed", "url", url, "attempt", attempt, "error", err)
	}
	return fmt.Errorf("%w: %v", types.ErrNetwork, lastErr)
}

func (q *Qdrant) send(ctx context.Context, method, url string, data []byte, out any) error {
	var reader io.Reader
	if data != nil {
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if q.config.APIKey != "" {
		req.Header.Set("api-key", q.config.APIKey)
	}

	resp, err := q.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &statusError{method: method, url: url, status: resp.StatusCode, body: string(raw)}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: %s: %v", types.ErrMalformedResponse, url, err)
		}
	}
	return nil
}

func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
