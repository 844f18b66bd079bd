package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/xhad/recall/internal/types"
)

// SummarizerConfig represents the configuration for a summarizer.
type SummarizerConfig struct {
	Model           string
	BaseURL         string // Ollama server URL
	MaxInputChars   int    // input is cut to this many characters
	MinLength       int
	MaxLength       int
	MaxSummaryChars int // hard cap on the returned synopsis
	Seed            int
	PromptTemplate  string
}

// Summarizer compresses page content into a short synopsis with an LLM.
type Summarizer struct {
	config SummarizerConfig
	llm    llms.Model
}

func applySummarizerDefaults(config *SummarizerConfig) {
	if config.Model == "" {
		config.Model = "qwen2.5:1.5b"
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434" // Default Ollama URL
	}
	if config.MaxInputChars == 0 {
		config.MaxInputChars = 3000
	}
	if config.MinLength == 0 {
		config.MinLength = 60
	}
	if config.MaxLength == 0 {
		config.MaxLength = 180
	}
	if config.MaxSummaryChars == 0 {
		config.MaxSummaryChars = 4 * config.MaxLength
	}
	if config.PromptTemplate == "" {
		config.PromptTemplate = "Summarize the following document in the language it is written in. " +
			"Write between %d and %d tokens of plain prose, no preamble.\n\n%s"
	}
}

// NewSummarizerWithConfig creates a Summarizer backed by an Ollama model.
func NewSummarizerWithConfig(config SummarizerConfig) (*Summarizer, error) {
	applySummarizerDefaults(&config)

	llm, err := ollama.New(ollama.WithModel(config.Model),
		ollama.WithServerURL(config.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}

	return NewSummarizer(llm, config)
}

// NewSummarizer wraps an existing model.
func NewSummarizer(llm llms.Model, config SummarizerConfig) (*Summarizer, error) {
	applySummarizerDefaults(&config)
	if config.MinLength < 0 || config.MinLength > config.MaxLength {
		return nil, fmt.Errorf("min length %d must be between 0 and max length %d", config.MinLength, config.MaxLength)
	}
	return &Summarizer{config: config, llm: llm}, nil
}

// Summarize returns a synopsis of text. The input is truncated to
// MaxInputChars before the model sees it; decoding is greedy so identical
// input yields identical output.
func (s *Summarizer) Summarize(ctx context.Context, text string) (string, error) {
	text = Truncate(strings.TrimSpace(text), s.config.MaxInputChars)
	if text == "" {
		return "", types.ErrEmptyContent
	}

	prompt := fmt.Sprintf(s.config.PromptTemplate, s.config.MinLength, s.config.MaxLength, text)

	out, err := llms.GenerateFromSinglePrompt(ctx, s.llm, prompt,
		llms.WithTemperature(0),
		llms.WithSeed(s.config.Seed),
		llms.WithMinLength(s.config.MinLength),
		llms.WithMaxLength(s.config.MaxLength),
		llms.WithMaxTokens(s.config.MaxLength),
	)
	if err != nil {
		return "", fmt.Errorf("%w: summarize: %v", types.ErrModelInvocation, err)
	}

	out = strings.TrimSpace(out)
	if out == "" {
		return "", fmt.Errorf("%w: summarize: empty response", types.ErrModelInvocation)
	}

	return Truncate(out, s.config.MaxSummaryChars), nil
}

// MaxSummaryChars is the longest synopsis Summarize returns.
func (s *Summarizer) MaxSummaryChars() int { return s.config.MaxSummaryChars }

// Truncate cuts s to at most n characters (runes, not bytes).
func Truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
