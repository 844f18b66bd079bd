// Package store implements the vector store gateway over Qdrant, PostgreSQL
// with pgvector, and an in-process index.
package store

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/xhad/recall/internal/models"
	"github.com/xhad/recall/internal/types"
)

const defaultTopK = 5

var errNoCollection = errors.New("collection not ensured")

// validate checks every (document, vector) pair before it is sent. Accepted
// pairs keep their order; rejected ones are reported per item. A vector of the
// wrong length makes the whole call fail with ErrSchemaMismatch.
func validate(c models.Collection, docs []models.Document, vectors [][]float32) ([]int, []types.ItemError, error) {
	if len(docs) != len(vectors) {
		return nil, nil, fmt.Errorf("documents and vectors length mismatch: %d != %d", len(docs), len(vectors))
	}

	var accepted []int
	var failed []types.ItemError
	var mismatch error

	for i, d := range docs {
		switch {
		case d.ID == "":
			failed = append(failed, types.ItemError{URL: d.URL, Err: errors.New("missing id")})
		case strings.TrimSpace(d.Summary) == "":
			failed = append(failed, types.ItemError{ID: d.ID, URL: d.URL, Err: errors.New("empty summary")})
		case len(vectors[i]) != c.Dimension:
			err := fmt.Errorf("%w: vector has %d dimensions, collection %s has %d",
				types.ErrSchemaMismatch, len(vectors[i]), c.Name, c.Dimension)
			failed = append(failed, types.ItemError{ID: d.ID, URL: d.URL, Err: err})
			mismatch = err
		default:
			accepted = append(accepted, i)
		}
	}

	return accepted, failed, mismatch
}

// rank orders results by decreasing score, then by ascending id, and keeps k.
func rank(results []models.SearchResult, k int) []models.SearchResult {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if k < len(results) {
		results = results[:k]
	}
	return results
}

func topK(k int) int {
	if k <= 0 {
		return defaultTopK
	}
	return k
}

func mismatchError(c models.Collection, existing int) error {
	return fmt.Errorf("%w: collection %s has dimension %d, embedder produces %d",
		types.ErrSchemaMismatch, c.Name, existing, c.Dimension)
}
