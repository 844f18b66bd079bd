package types

import (
	"context"

	"github.com/xhad/recall/internal/models"
)

// Core interfaces

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
	Model() string
}

type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// ItemError reports one document that could not be stored.
type ItemError struct {
	ID  string
	URL string
	Err error
}

func (e ItemError) Error() string {
	return e.URL + ": " + e.Err.Error()
}

func (e ItemError) Unwrap() error { return e.Err }

type UpsertReport struct {
	Stored []string
	Failed []ItemError
}

// Gateway is the vector store seen by the pipeline and the query service.
type Gateway interface {
	EnsureCollection(ctx context.Context, c models.Collection) error
	UpsertBatch(ctx context.Context, docs []models.Document, vectors [][]float32) (UpsertReport, error)
	Query(ctx context.Context, vector []float32, k int) ([]models.SearchResult, error)
	Close() error
}
