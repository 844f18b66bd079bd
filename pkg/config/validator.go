package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/xhad/recall/internal/models"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// Validate Crawler config
	if !isHTTPURL(c.Crawler.BaseURL) {
		errors = append(errors, ValidationError{
			Field:   "crawler.base_url",
			Message: "invalid crawl service URL",
		})
	}

	if c.Crawler.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "crawler.rate_limit",
			Message: "rate_limit must be positive",
		})
	}

	if c.Crawler.MaxRetries < 0 {
		errors = append(errors, ValidationError{
			Field:   "crawler.max_retries",
			Message: "max_retries cannot be negative",
		})
	}

	if c.Crawler.PollInterval <= 0 {
		errors = append(errors, ValidationError{
			Field:   "crawler.poll_interval",
			Message: "poll_interval must be positive",
		})
	}

	if c.Crawler.MaxPolls < 1 {
		errors = append(errors, ValidationError{
			Field:   "crawler.max_polls",
			Message: "max_polls must be positive",
		})
	}

	if c.Crawler.CrawlTimeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "crawler.crawl_timeout",
			Message: "crawl_timeout must be positive",
		})
	}

	// Validate Store config
	switch c.Store.Backend {
	case "qdrant":
		if !isHTTPURL(c.Store.URL) {
			errors = append(errors, ValidationError{
				Field:   "store.url",
				Message: "invalid vector store URL",
			})
		}
	case "pgvector":
		if c.Store.DatabaseURL == "" {
			errors = append(errors, ValidationError{
				Field:   "store.database_url",
				Message: "database_url is required for the pgvector backend",
			})
		} else if _, err := url.Parse(c.Store.DatabaseURL); err != nil {
			errors = append(errors, ValidationError{
				Field:   "store.database_url",
				Message: "invalid database URL",
			})
		}
	case "memory":
	default:
		errors = append(errors, ValidationError{
			Field:   "store.backend",
			Message: fmt.Sprintf("unknown backend: %s", c.Store.Backend),
		})
	}

	if strings.TrimSpace(c.Store.Collection) == "" {
		errors = append(errors, ValidationError{
			Field:   "store.collection",
			Message: "collection name is required",
		})
	}

	if _, ok := models.ParseMetric(c.Store.Metric); !ok {
		errors = append(errors, ValidationError{
			Field:   "store.metric",
			Message: fmt.Sprintf("unknown metric: %s", c.Store.Metric),
		})
	}

	if c.Store.BatchSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "store.batch_size",
			Message: "batch_size must be positive",
		})
	}

	// Validate Models config
	if !isHTTPURL(c.Models.BaseURL) {
		errors = append(errors, ValidationError{
			Field:   "models.base_url",
			Message: "invalid Ollama base URL",
		})
	}

	if c.Models.VectorDim < 1 {
		errors = append(errors, ValidationError{
			Field:   "models.vector_dim",
			Message: "vector_dim must be positive",
		})
	}

	if c.Models.MaxInputChars < 1 {
		errors = append(errors, ValidationError{
			Field:   "models.max_input_chars",
			Message: "max_input_chars must be positive",
		})
	}

	if c.Models.MinLength < 0 || c.Models.MinLength > c.Models.MaxLength {
		errors = append(errors, ValidationError{
			Field:   "models.min_length",
			Message: "min_length must be non-negative and not above max_length",
		})
	}

	if c.Pipeline.Workers < 1 {
		errors = append(errors, ValidationError{
			Field:   "pipeline.workers",
			Message: "workers must be positive",
		})
	}

	// Validate seeds
	for i, s := range c.Seeds {
		if !isHTTPURL(s.URL) {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("seeds[%d].url", i),
				Message: fmt.Sprintf("invalid seed URL: %s", s.URL),
			})
		}
		if s.Strategy != "" {
			if _, ok := models.ParseStrategy(s.Strategy); !ok {
				errors = append(errors, ValidationError{
					Field:   fmt.Sprintf("seeds[%d].strategy", i),
					Message: fmt.Sprintf("unknown strategy: %s", s.Strategy),
				})
			}
		}
		if s.Limit < 0 {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("seeds[%d].limit", i),
				Message: "limit cannot be negative",
			})
		}
	}

	return errors
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
