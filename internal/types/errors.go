package types

import "errors"

var (
	// ErrNetwork means the crawl service or vector store could not be reached
	// after all retries.
	ErrNetwork = errors.New("network error")

	ErrCrawlTimeout      = errors.New("crawl job timed out")
	ErrMalformedResponse = errors.New("malformed response")
	ErrEmptyContent      = errors.New("empty content")
	ErrModelInvocation   = errors.New("model invocation failed")

	// ErrSchemaMismatch means an existing collection does not match the
	// embedder. It is fatal for the whole ingestion run.
	ErrSchemaMismatch = errors.New("collection schema mismatch")
)
