// Package mocks holds deterministic stand-ins for the model services.
package mocks

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"unicode"

	"github.com/tmc/langchaingo/llms"
)

// MockModel is an llms.Model that answers from a function instead of a server.
type MockModel struct {
	mu sync.Mutex

	// Respond builds the reply for a prompt. Defaults to echoing the last
	// paragraph of the prompt.
	Respond func(prompt string) (string, error)

	Prompts []string
	Options []llms.CallOptions
}

func NewMockModel() *MockModel {
	return &MockModel{}
}

func (m *MockModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	var prompt strings.Builder
	for _, msg := range messages {
		for _, part := range msg.Parts {
			if text, ok := part.(llms.TextContent); ok {
				prompt.WriteString(text.Text)
			}
		}
	}

	opts := llms.CallOptions{}
	for _, o := range options {
		o(&opts)
	}

	m.mu.Lock()
	m.Prompts = append(m.Prompts, prompt.String())
	m.Options = append(m.Options, opts)
	respond := m.Respond
	m.mu.Unlock()

	if respond == nil {
		respond = lastParagraph
	}
	out, err := respond(prompt.String())
	if err != nil {
		return nil, err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: out}}}, nil
}

func (m *MockModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

// Calls returns how many prompts the model has seen.
func (m *MockModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Prompts)
}

func lastParagraph(prompt string) (string, error) {
	parts := strings.Split(prompt, "\n\n")
	return strings.TrimSpace(parts[len(parts)-1]), nil
}

// ErrMockEmbedding is returned for texts listed in MockEmbeddingClient.FailOn.
var ErrMockEmbedding = errors.New("mock embedding failure")

// MockEmbeddingClient is an embeddings.EmbedderClient producing hashed
// bag-of-words vectors: identical text gives identical vectors and texts
// sharing words score higher than unrelated ones.
type MockEmbeddingClient struct {
	Dimensions int
	FailOn     map[string]bool

	mu    sync.Mutex
	calls int
}

func NewMockEmbeddingClient() *MockEmbeddingClient {
	return &MockEmbeddingClient{Dimensions: 384, FailOn: map[string]bool{}}
}

func (m *MockEmbeddingClient) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	result := make([][]float32, len(texts))
	for i, text := range texts {
		if m.FailOn[text] {
			return nil, ErrMockEmbedding
		}
		result[i] = m.vector(text)
	}
	return result, nil
}

func (m *MockEmbeddingClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MockEmbeddingClient) vector(text string) []float32 {
	vec := make([]float32, m.Dimensions)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(words) == 0 {
		words = []string{text}
	}
	for _, w := range words {
		h := fnv.New32a()
		h.Write([]byte(w))
		vec[h.Sum32()%uint32(m.Dimensions)]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}
