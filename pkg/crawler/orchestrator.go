package crawler

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/xhad/recall/internal/models"
	"github.com/xhad/recall/internal/types"
)

// Service is the part of the crawl service the orchestrator drives.
// *Client implements it.
type Service interface {
	Scrape(ctx context.Context, url string) (*models.CrawlResult, error)
	StartCrawl(ctx context.Context, url string, limit int) (string, error)
	CrawlStatus(ctx context.Context, id string) (*CrawlStatus, error)
}

// JobState is the state of a crawl job as seen by the orchestrator.
type JobState string

const (
	JobSubmitted JobState = "SUBMITTED"
	JobPolling   JobState = "POLLING"
	JobCompleted JobState = "COMPLETED"
	JobFailed    JobState = "FAILED"
	JobTimedOut  JobState = "TIMED_OUT"
)

type OrchestratorConfig struct {
	PollInterval time.Duration
	MaxPolls     int
	Timeout      time.Duration // wall-clock bound for one crawl job
	DefaultLimit int
	Logger       *log.Logger
	// OnState is called on every crawl job state transition.
	OnState func(seed models.Seed, state JobState)
}

type Orchestrator struct {
	service Service
	config  OrchestratorConfig
	log     *log.Logger
}

func NewOrchestrator(service Service, config OrchestratorConfig) *Orchestrator {
	if config.PollInterval == 0 {
		config.PollInterval = 2 * time.Second
	}
	if config.MaxPolls == 0 {
		config.MaxPolls = 150
	}
	if config.Timeout == 0 {
		config.Timeout = 5 * time.Minute
	}
	if config.DefaultLimit == 0 {
		config.DefaultLimit = 10
	}
	logger := config.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Orchestrator{
		service: service,
		config:  config,
		log:     logger.With("component", "orchestrator"),
	}
}

// Fetch retrieves every page for one seed. Each page carries the seed.
func (o *Orchestrator) Fetch(ctx context.Context, seed models.Seed) ([]models.Page, error) {
	switch seed.Strategy {
	case models.StrategyScrape:
		return o.scrape(ctx, seed)
	case models.StrategyCrawl:
		return o.crawl(ctx, seed)
	default:
		return nil, fmt.Errorf("unknown strategy %q for %s", seed.Strategy, seed.URL)
	}
}

func (o *Orchestrator) scrape(ctx context.Context, seed models.Seed) ([]models.Page, error) {
	result, err := o.service.Scrape(ctx, seed.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to scrape %s: %w", seed.URL, err)
	}
	if result == nil {
		o.log.Info("scrape returned no data", "url", seed.URL)
		return nil, nil
	}
	return []models.Page{{Seed: seed, Result: *result}}, nil
}

func (o *Orchestrator) crawl(ctx context.Context, seed models.Seed) ([]models.Page, error) {
	limit := seed.Limit
	if limit <= 0 {
		limit = o.config.DefaultLimit
	}

	id, err := o.service.StartCrawl(ctx, seed.URL, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to start crawl for %s: %w", seed.URL, err)
	}
	o.transition(seed, JobSubmitted, "job", id)

	deadline := time.Now().Add(o.config.Timeout)
	ticker := time.NewTicker(o.config.PollInterval)
	defer ticker.Stop()

	for attempt := 1; attempt <= o.config.MaxPolls; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
		if time.Now().After(deadline) {
			break
		}
		if attempt == 1 {
			o.transition(seed, JobPolling, "job", id)
		}

		status, err := o.service.CrawlStatus(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to poll crawl %s for %s: %w", id, seed.URL, err)
		}
		o.log.Debug("polled crawl job", "job", id, "attempt", attempt, "status", status.Status)

		switch status.Status {
		case StatusCompleted:
			o.transition(seed, JobCompleted, "job", id, "pages", len(status.Results))
			pages := make([]models.Page, 0, len(status.Results))
			for _, r := range status.Results {
				pages = append(pages, models.Page{Seed: seed, Result: r})
			}
			return pages, nil
		case StatusFailed:
			o.transition(seed, JobFailed, "job", id)
			return nil, nil
		}
	}

	o.transition(seed, JobTimedOut, "job", id)
	return nil, fmt.Errorf("%w: job %s for %s", types.ErrCrawlTimeout, id, seed.URL)
}

func (o *Orchestrator) transition(seed models.Seed, state JobState, keyvals ...any) {
	o.log.Info("crawl job "+string(state), append([]any{"url", seed.URL}, keyvals...)...)
	if o.config.OnState != nil {
		o.config.OnState(seed, state)
	}
}

// SeedError records a seed that produced no pages because of an error.
type SeedError struct {
	Seed models.Seed
	Err  error
}

func (e SeedError) Error() string {
	return e.Seed.URL + ": " + e.Err.Error()
}

func (e SeedError) Unwrap() error { return e.Err }

// FetchAll fetches every seed. A failing seed is recorded and does not stop
// the others; only cancellation of ctx ends the loop early.
func (o *Orchestrator) FetchAll(ctx context.Context, seeds []models.Seed) ([]models.Page, []SeedError) {
	var pages []models.Page
	var failures []SeedError

	for _, seed := range seeds {
		if err := ctx.Err(); err != nil {
			failures = append(failures, SeedError{Seed: seed, Err: err})
			continue
		}

		got, err := o.Fetch(ctx, seed)
		if err != nil {
			o.log.Error("seed failed", "url", seed.URL, "strategy", seed.Strategy, "error", err)
			failures = append(failures, SeedError{Seed: seed, Err: err})
			continue
		}
		pages = append(pages, got...)
	}

	return pages, failures
}
