package llm_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/recall/internal/mocks"
	"github.com/xhad/recall/internal/types"
	"github.com/xhad/recall/pkg/llm"
)

func TestNewSummarizerWithConfig(t *testing.T) {
	s, err := llm.NewSummarizerWithConfig(llm.SummarizerConfig{
		Model:   "testmodel",
		BaseURL: "http://localhost:1234",
	})
	assert.NoError(t, err)
	assert.NotNil(t, s)
}

func TestNewSummarizerRejectsBadBounds(t *testing.T) {
	_, err := llm.NewSummarizer(mocks.NewMockModel(), llm.SummarizerConfig{MinLength: 200, MaxLength: 100})
	assert.Error(t, err)
}

func TestSummarizeTruncatesInput(t *testing.T) {
	model := mocks.NewMockModel()
	s, err := llm.NewSummarizer(model, llm.SummarizerConfig{})
	require.NoError(t, err)

	// Multi-byte characters: the budget counts characters, not bytes.
	content := strings.Repeat("学", 5000)
	_, err = s.Summarize(context.Background(), content)
	require.NoError(t, err)

	require.Equal(t, 1, model.Calls())
	assert.Contains(t, model.Prompts[0], strings.Repeat("学", 3000))
	assert.NotContains(t, model.Prompts[0], strings.Repeat("学", 3001))
}

func TestSummarizeUsesDeterministicDecoding(t *testing.T) {
	model := mocks.NewMockModel()
	s, err := llm.NewSummarizer(model, llm.SummarizerConfig{})
	require.NoError(t, err)

	_, err = s.Summarize(context.Background(), "Some article text.")
	require.NoError(t, err)

	opts := model.Options[0]
	assert.Equal(t, 0.0, opts.Temperature)
	assert.Equal(t, 60, opts.MinLength)
	assert.Equal(t, 180, opts.MaxLength)
	assert.Equal(t, 180, opts.MaxTokens)
}

func TestSummarizeCapsOutput(t *testing.T) {
	model := mocks.NewMockModel()
	model.Respond = func(string) (string, error) {
		return "  " + strings.Repeat("word ", 1000), nil
	}
	s, err := llm.NewSummarizer(model, llm.SummarizerConfig{})
	require.NoError(t, err)

	out, err := s.Summarize(context.Background(), "text")
	require.NoError(t, err)
	assert.LessOrEqual(t, utf8.RuneCountInString(out), s.MaxSummaryChars())
	assert.Equal(t, 720, s.MaxSummaryChars())
	assert.True(t, strings.HasPrefix(out, "word"))
}

func TestSummarizeErrors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		respond func(string) (string, error)
		want    error
	}{
		{"empty input", "   ", nil, types.ErrEmptyContent},
		{"model failure", "text", func(string) (string, error) { return "", errors.New("boom") }, types.ErrModelInvocation},
		{"blank response", "text", func(string) (string, error) { return "\n ", nil }, types.ErrModelInvocation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := mocks.NewMockModel()
			model.Respond = tt.respond
			s, err := llm.NewSummarizer(model, llm.SummarizerConfig{})
			require.NoError(t, err)

			_, err = s.Summarize(context.Background(), tt.input)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", llm.Truncate("abcdef", 3))
	assert.Equal(t, "ab", llm.Truncate("ab", 3))
	assert.Equal(t, "日本", llm.Truncate("日本語", 2))
	assert.Equal(t, "abc", llm.Truncate("abc", 0))
}
