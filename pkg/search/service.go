// Package search answers free-text queries against the vector store.
package search

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/xhad/recall/internal/types"
	"github.com/xhad/recall/pkg/llm"
)

const (
	defaultTopK          = 5
	defaultSummaryPrefix = 200
)

var ErrEmptyQuery = errors.New("query is empty")

type Config struct {
	TopK          int
	SummaryPrefix int // summary runes kept per hit
	Logger        *log.Logger
}

// Hit is one ranked result as shown to a user.
type Hit struct {
	Rank    int     `json:"rank"`
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Summary string  `json:"summary"`
	Score   float64 `json:"score"`
}

// Service embeds queries with the same embedder used for ingestion and looks
// them up in the gateway. It holds no per-query state.
type Service struct {
	embedder types.Embedder
	gateway  types.Gateway
	config   Config
	log      *log.Logger
}

func NewService(embedder types.Embedder, gateway types.Gateway, config Config) *Service {
	if config.TopK <= 0 {
		config.TopK = defaultTopK
	}
	if config.SummaryPrefix <= 0 {
		config.SummaryPrefix = defaultSummaryPrefix
	}
	logger := config.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		embedder: embedder,
		gateway:  gateway,
		config:   config,
		log:      logger.With("component", "search"),
	}
}

// Search returns up to k hits for query, best first. k <= 0 uses the
// configured default.
func (s *Service) Search(ctx context.Context, query string, k int) ([]Hit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if k <= 0 {
		k = s.config.TopK
	}

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	results, err := s.gateway.Query(ctx, vector, k)
	if err != nil {
		return nil, fmt.Errorf("failed to query store: %w", err)
	}
	s.log.Debug("search", "query", query, "k", k, "results", len(results))

	hits := make([]Hit, 0, len(results))
	for i, r := range results {
		hits = append(hits, Hit{
			Rank:    i + 1,
			Title:   r.Document.Title,
			URL:     r.Document.URL,
			Summary: prefix(r.Document.Summary, s.config.SummaryPrefix),
			Score:   r.Score,
		})
	}
	return hits, nil
}

func prefix(s string, n int) string {
	cut := llm.Truncate(s, n)
	if cut != s {
		return cut + "..."
	}
	return s
}

// WriteHits prints hits in the CLI format.
func WriteHits(w io.Writer, hits []Hit) error {
	for _, h := range hits {
		if _, err := fmt.Fprintf(w, "[%d] %s\nURL: %s\nSummary: %s\n\n", h.Rank, h.Title, h.URL, h.Summary); err != nil {
			return err
		}
	}
	return nil
}
