package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/xhad/recall/internal/types"
)

// EmbedderConfig represents the configuration for an embedder.
type EmbedderConfig struct {
	Model     string
	Dimension int
	BaseURL   string // Ollama server URL
}

// Embedder maps text to a fixed-dimension vector. The same instance must serve
// ingestion and queries, otherwise scores are meaningless.
type Embedder struct {
	config EmbedderConfig
	client embeddings.EmbedderClient
}

func applyEmbedderDefaults(config *EmbedderConfig) {
	if config.Model == "" {
		config.Model = "all-minilm:l6-v2" // 384 dimensions
	}
	if config.Dimension == 0 {
		config.Dimension = 384
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434" // Default Ollama URL
	}
}

// NewEmbedderWithConfig creates an Embedder backed by an Ollama model.
func NewEmbedderWithConfig(config EmbedderConfig) (*Embedder, error) {
	applyEmbedderDefaults(&config)

	emb, err := ollama.New(ollama.WithModel(config.Model),
		ollama.WithServerURL(config.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding model: %w", err)
	}

	return NewEmbedder(emb, config), nil
}

// NewEmbedder wraps an existing embedding client.
func NewEmbedder(client embeddings.EmbedderClient, config EmbedderConfig) *Embedder {
	applyEmbedderDefaults(&config)
	return &Embedder{config: config, client: client}
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.client.CreateEmbedding(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("%w: embed: %v", types.ErrModelInvocation, err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: embed: expected 1 vector, got %d", types.ErrModelInvocation, len(vectors))
	}
	if len(vectors[0]) != e.config.Dimension {
		return nil, fmt.Errorf("%w: embed: model %s returned %d dimensions, want %d",
			types.ErrModelInvocation, e.config.Model, len(vectors[0]), e.config.Dimension)
	}
	return vectors[0], nil
}

func (e *Embedder) Dimension() int { return e.config.Dimension }

func (e *Embedder) Model() string { return e.config.Model }
