package store_test

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/recall/internal/models"
	"github.com/xhad/recall/internal/types"
	"github.com/xhad/recall/pkg/store"
)

// newTestPGVector connects to DATABASE_URL and skips otherwise.
func newTestPGVector(t *testing.T) *store.PGVector {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	s, err := store.NewPGVector(context.Background(), store.PGVectorConfig{ConnString: dsn})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPGVectorRoundTrip(t *testing.T) {
	s := newTestPGVector(t)
	ctx := context.Background()

	name := "test_documents_" + uuid.NewString()[:8]
	require.NoError(t, s.EnsureCollection(ctx, models.Collection{Name: name, Dimension: 3, Metric: models.MetricCosine}))
	require.NoError(t, s.EnsureCollection(ctx, models.Collection{Name: name, Dimension: 3, Metric: models.MetricCosine}))

	docs := []models.Document{
		{ID: uuid.NewString(), URL: "https://example.com/1", Title: "One", Summary: "first", Content: "# One"},
		{ID: uuid.NewString(), URL: "https://example.com/2", Title: "Two", Summary: "second", Content: "# Two"},
	}
	report, err := s.UpsertBatch(ctx, docs, [][]float32{{1, 0, 0}, {0, 1, 0}})
	require.NoError(t, err)
	assert.Len(t, report.Stored, 2)
	assert.Empty(t, report.Failed)

	results, err := s.Query(ctx, []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, docs[0].ID, results[0].ID)
	assert.Equal(t, "https://example.com/1", results[0].Document.URL)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
}

func TestPGVectorDimensionMismatch(t *testing.T) {
	s := newTestPGVector(t)
	ctx := context.Background()

	name := "test_documents_" + uuid.NewString()[:8]
	require.NoError(t, s.EnsureCollection(ctx, models.Collection{Name: name, Dimension: 3}))

	err := s.EnsureCollection(ctx, models.Collection{Name: name, Dimension: 4})
	assert.ErrorIs(t, err, types.ErrSchemaMismatch)

	_, err = s.UpsertBatch(ctx, []models.Document{{ID: uuid.NewString(), Summary: "s"}}, [][]float32{{1, 2, 3, 4}})
	assert.ErrorIs(t, err, types.ErrSchemaMismatch)
}
