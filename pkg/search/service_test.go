package search_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/recall/internal/mocks"
	"github.com/xhad/recall/internal/models"
	"github.com/xhad/recall/pkg/llm"
	"github.com/xhad/recall/pkg/search"
	"github.com/xhad/recall/pkg/store"
)

func setup(t *testing.T, docs ...models.Document) *search.Service {
	t.Helper()
	ctx := context.Background()
	emb := llm.NewEmbedder(mocks.NewMockEmbeddingClient(), llm.EmbedderConfig{Model: "all-minilm", Dimension: 384})

	mem := store.NewMemory()
	require.NoError(t, mem.EnsureCollection(ctx, models.Collection{Name: "research", Dimension: 384}))

	vectors := make([][]float32, len(docs))
	for i, d := range docs {
		v, err := emb.Embed(ctx, d.Summary)
		require.NoError(t, err)
		vectors[i] = v
	}
	_, err := mem.UpsertBatch(ctx, docs, vectors)
	require.NoError(t, err)

	return search.NewService(emb, mem, search.Config{})
}

func TestSearchRanksBySimilarity(t *testing.T) {
	s := setup(t,
		models.Document{ID: "1", URL: "https://a/", Title: "Cooking", Summary: "pasta recipes with tomato sauce"},
		models.Document{ID: "2", URL: "https://b/", Title: "Transformers", Summary: "transformer training stability tricks"},
	)

	hits, err := s.Search(context.Background(), "transformer training stability", 5)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "Transformers", hits[0].Title)
	assert.Equal(t, 1, hits[0].Rank)
	assert.Equal(t, 2, hits[1].Rank)
	assert.Greater(t, hits[0].Score, hits[1].Score)
}

func TestSearchEmptyQuery(t *testing.T) {
	s := setup(t)
	_, err := s.Search(context.Background(), "   ", 5)
	assert.ErrorIs(t, err, search.ErrEmptyQuery)
}

func TestSearchDefaultK(t *testing.T) {
	var docs []models.Document
	for _, id := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		docs = append(docs, models.Document{ID: id, URL: "https://x/" + id, Title: id, Summary: "same words"})
	}
	s := setup(t, docs...)

	hits, err := s.Search(context.Background(), "same words", 0)
	require.NoError(t, err)
	assert.Len(t, hits, 5)
}

func TestSearchSummaryPrefix(t *testing.T) {
	long := strings.Repeat("要", 250)
	s := setup(t, models.Document{ID: "1", URL: "https://a/", Title: "Long", Summary: long})

	hits, err := s.Search(context.Background(), long, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, strings.Repeat("要", 200)+"...", hits[0].Summary)
}

func TestWriteHits(t *testing.T) {
	var buf bytes.Buffer
	err := search.WriteHits(&buf, []search.Hit{
		{Rank: 1, Title: "LLM Post", URL: "https://x/", Summary: "short"},
		{Rank: 2, Title: "Other", URL: "https://y/", Summary: "more"},
	})
	require.NoError(t, err)
	assert.Equal(t,
		"[1] LLM Post\nURL: https://x/\nSummary: short\n\n[2] Other\nURL: https://y/\nSummary: more\n\n",
		buf.String())
}
