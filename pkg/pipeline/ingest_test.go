package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/recall/internal/mocks"
	"github.com/xhad/recall/internal/models"
	"github.com/xhad/recall/internal/types"
	"github.com/xhad/recall/pkg/crawler"
	"github.com/xhad/recall/pkg/llm"
	"github.com/xhad/recall/pkg/pipeline"
	"github.com/xhad/recall/pkg/store"
)

type fakeFetcher struct {
	pages    []models.Page
	failures []crawler.SeedError
}

func (f *fakeFetcher) FetchAll(ctx context.Context, seeds []models.Seed) ([]models.Page, []crawler.SeedError) {
	return f.pages, f.failures
}

// countingGateway records the size of every upsert call.
type countingGateway struct {
	*store.Memory
	mu      sync.Mutex
	batches []int
}

func (g *countingGateway) UpsertBatch(ctx context.Context, docs []models.Document, vectors [][]float32) (types.UpsertReport, error) {
	g.mu.Lock()
	g.batches = append(g.batches, len(docs))
	g.mu.Unlock()
	return g.Memory.UpsertBatch(ctx, docs, vectors)
}

type fixture struct {
	model    *mocks.MockModel
	embedder *llm.Embedder
	gateway  *countingGateway
	config   pipeline.Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return &fixture{
		model:    mocks.NewMockModel(),
		embedder: llm.NewEmbedder(mocks.NewMockEmbeddingClient(), llm.EmbedderConfig{Model: "all-minilm", Dimension: 384}),
		gateway:  &countingGateway{Memory: store.NewMemory()},
		config: pipeline.Config{
			Collection: models.Collection{Name: "research", Dimension: 384, Metric: models.MetricCosine},
		},
	}
}

func (f *fixture) ingester(t *testing.T, fetcher pipeline.Fetcher) *pipeline.Ingester {
	t.Helper()
	summarizer, err := llm.NewSummarizer(f.model, llm.SummarizerConfig{})
	require.NoError(t, err)
	return pipeline.NewIngester(fetcher, summarizer, f.embedder, f.gateway, f.config)
}

func page(seed, url, markdown string) models.Page {
	return models.Page{
		Seed:   models.Seed{URL: seed, Strategy: models.StrategyScrape},
		Result: models.CrawlResult{URL: url, Markdown: markdown},
	}
}

func TestRunIngestsAndQueries(t *testing.T) {
	f := newFixture(t)
	fetcher := &fakeFetcher{pages: []models.Page{{
		Seed: models.Seed{URL: "https://x/", Strategy: models.StrategyScrape},
		Result: models.CrawlResult{
			URL:      "https://x/",
			Title:    "LLM Post",
			Markdown: "Large Language Models reduce training instability...",
		},
	}}}

	report, err := f.ingester(t, fetcher).Run(context.Background(), []models.Seed{fetcher.pages[0].Seed})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Ingested)
	assert.Equal(t, 0, report.Failed)
	assert.Equal(t, 1, f.gateway.Len())

	vector, err := f.embedder.Embed(context.Background(), "LLM")
	require.NoError(t, err)
	results, err := f.gateway.Query(context.Background(), vector, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)

	doc := results[0].Document
	assert.Equal(t, "LLM Post", doc.Title)
	assert.Equal(t, "https://x/", doc.URL)
	assert.NotEmpty(t, doc.Summary)
	assert.LessOrEqual(t, len([]rune(doc.Summary)), 720)
	assert.NotEmpty(t, doc.ID)
}

func TestRunFallsBackToRawHTML(t *testing.T) {
	f := newFixture(t)
	fetcher := &fakeFetcher{pages: []models.Page{{
		Seed:   models.Seed{URL: "https://blog.example.com/post", Strategy: models.StrategyScrape},
		Result: models.CrawlResult{RawHTML: "<html><title>My Post</title></html>"},
	}}}

	report, err := f.ingester(t, fetcher).Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Ingested)
	assert.Equal(t, 0, report.Skipped)

	results, err := f.gateway.Query(context.Background(), make384(), 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "My Post", results[0].Document.Title)
	assert.Equal(t, "https://blog.example.com/post", results[0].Document.URL)
}

func TestRunIsolatesFailures(t *testing.T) {
	f := newFixture(t)
	f.model.Respond = func(prompt string) (string, error) {
		if strings.Contains(prompt, "broken") {
			return "", errors.New("model crashed")
		}
		parts := strings.Split(prompt, "\n\n")
		return parts[len(parts)-1], nil
	}

	bad := models.Seed{URL: "https://down.example.com/", Strategy: models.StrategyScrape}
	fetcher := &fakeFetcher{
		pages: []models.Page{
			page("https://a.example.com/", "https://a.example.com/1", "first article"),
			page("https://a.example.com/", "https://a.example.com/2", "broken article"),
			page("https://a.example.com/", "https://a.example.com/3", "   "),
			page("https://a.example.com/", "https://a.example.com/4", "fourth article"),
		},
		failures: []crawler.SeedError{{Seed: bad, Err: types.ErrNetwork}},
	}

	report, err := f.ingester(t, fetcher).Run(context.Background(), []models.Seed{bad, {URL: "https://a.example.com/"}})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Seeds)
	assert.Equal(t, 1, report.SeedFailures)
	assert.Equal(t, 4, report.Fetched)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 2, report.Ingested)

	var modelErr, netErr bool
	for _, e := range report.Errors {
		modelErr = modelErr || errors.Is(e, types.ErrModelInvocation)
		netErr = netErr || errors.Is(e, types.ErrNetwork)
	}
	assert.True(t, modelErr)
	assert.True(t, netErr)
}

func TestRunSchemaMismatchIsFatal(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.gateway.EnsureCollection(context.Background(), models.Collection{Name: "research", Dimension: 768}))

	fetcher := &fakeFetcher{pages: []models.Page{page("https://a/", "https://a/1", "text")}}
	_, err := f.ingester(t, fetcher).Run(context.Background(), nil)

	require.ErrorIs(t, err, types.ErrSchemaMismatch)
	assert.Zero(t, f.model.Calls(), "nothing is fetched or summarized after a mismatch")
	assert.Empty(t, f.gateway.batches)
}

func TestRunBatchesUpserts(t *testing.T) {
	f := newFixture(t)
	f.config.BatchSize = 2
	f.config.Workers = 3

	var pages []models.Page
	for i := 0; i < 5; i++ {
		pages = append(pages, page("https://a/", fmt.Sprintf("https://a/%d", i), fmt.Sprintf("article number %d", i)))
	}

	var mu sync.Mutex
	progress := map[string]int{}
	f.config.OnProgress = func(stage string, n int) {
		mu.Lock()
		progress[stage] += n
		mu.Unlock()
	}

	report, err := f.ingester(t, &fakeFetcher{pages: pages}).Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, 5, report.Ingested)
	assert.Equal(t, []int{2, 2, 1}, f.gateway.batches)
	assert.Equal(t, 5, progress[pipeline.StageProcess])
	assert.Equal(t, 5, progress[pipeline.StageStore])
}

func TestRunCancelled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fetcher := &fakeFetcher{pages: []models.Page{page("https://a/", "https://a/1", "text")}}
	_, err := f.ingester(t, fetcher).Run(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.gateway.batches)
}

func make384() []float32 {
	v := make([]float32, 384)
	v[0] = 1
	return v
}
