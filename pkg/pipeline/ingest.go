// Package pipeline runs one ingestion: fetch seeds, normalize pages, summarize
// and embed each document, then store them in batches.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/xhad/recall/internal/models"
	"github.com/xhad/recall/internal/types"
	"github.com/xhad/recall/pkg/crawler"
	"github.com/xhad/recall/pkg/normalizer"
)

// Stage names passed to OnProgress.
const (
	StageFetch     = "fetch"
	StageNormalize = "normalize"
	StageProcess   = "process"
	StageStore     = "store"
)

// Fetcher retrieves the pages of a list of seeds. *crawler.Orchestrator
// implements it.
type Fetcher interface {
	FetchAll(ctx context.Context, seeds []models.Seed) ([]models.Page, []crawler.SeedError)
}

type Config struct {
	Collection models.Collection
	Workers    int
	BatchSize  int
	Logger     *log.Logger

	// OnProgress reports finished items: once with the totals of StageFetch
	// and StageNormalize, once per document for StageProcess (possibly from
	// several goroutines), once per batch for StageStore.
	OnProgress func(stage string, n int)
}

type Ingester struct {
	fetcher    Fetcher
	summarizer types.Summarizer
	embedder   types.Embedder
	gateway    types.Gateway
	config     Config
	log        *log.Logger
}

type Report struct {
	Seeds        int
	SeedFailures int
	Fetched      int
	Skipped      int
	Failed       int
	Ingested     int
	Errors       []error
}

func NewIngester(fetcher Fetcher, summarizer types.Summarizer, embedder types.Embedder, gateway types.Gateway, config Config) *Ingester {
	if config.Workers <= 0 {
		config.Workers = 4
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.Collection.Dimension == 0 {
		config.Collection.Dimension = embedder.Dimension()
	}
	if config.Collection.Metric == "" {
		config.Collection.Metric = models.MetricCosine
	}
	logger := config.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Ingester{
		fetcher:    fetcher,
		summarizer: summarizer,
		embedder:   embedder,
		gateway:    gateway,
		config:     config,
		log:        logger.With("component", "pipeline"),
	}
}

// processed is the outcome of summarizing and embedding one document.
type processed struct {
	doc    models.Document
	vector []float32
	err    error
}

// Run ingests every seed. The returned error is non-nil only for run-fatal
// conditions: the collection could not be ensured, a schema mismatch, or
// cancellation. Everything else is counted in the report.
func (in *Ingester) Run(ctx context.Context, seeds []models.Seed) (Report, error) {
	report := Report{Seeds: len(seeds)}

	if err := in.gateway.EnsureCollection(ctx, in.config.Collection); err != nil {
		return report, fmt.Errorf("failed to ensure collection %s: %w", in.config.Collection.Name, err)
	}

	pages, failures := in.fetcher.FetchAll(ctx, seeds)
	report.SeedFailures = len(failures)
	report.Fetched = len(pages)
	for _, f := range failures {
		report.Errors = append(report.Errors, f)
	}
	in.progress(StageFetch, len(pages))
	if err := ctx.Err(); err != nil {
		return report, err
	}

	docs, skipped := normalizer.NormalizeAll(pages)
	report.Skipped = skipped
	in.progress(StageNormalize, len(docs))
	in.log.Info("normalized pages", "pages", len(pages), "documents", len(docs), "skipped", skipped)

	results, err := in.process(ctx, docs)
	if err != nil {
		return report, err
	}

	ready := make([]processed, 0, len(results))
	for _, r := range results {
		if r.err != nil {
			report.Failed++
			report.Errors = append(report.Errors, types.ItemError{URL: r.doc.URL, Err: r.err})
			continue
		}
		ready = append(ready, r)
	}

	for start := 0; start < len(ready); start += in.config.BatchSize {
		end := min(start+in.config.BatchSize, len(ready))
		if err := in.store(ctx, ready[start:end], &report); err != nil {
			return report, err
		}
	}

	in.log.Info("ingestion finished",
		"seeds", report.Seeds,
		"seed_failures", report.SeedFailures,
		"ingested", report.Ingested,
		"skipped", report.Skipped,
		"failed", report.Failed)
	return report, nil
}

// process summarizes and embeds docs on a bounded pool. Results keep the input
// order; a per-document failure is stored in its slot.
func (in *Ingester) process(ctx context.Context, docs []models.Document) ([]processed, error) {
	results := make([]processed, len(docs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(in.config.Workers)

	for i, doc := range docs {
		i, doc := i, doc
		g.Go(func() error {
			results[i] = in.processOne(gctx, doc)
			if err := gctx.Err(); err != nil {
				return err
			}
			in.progress(StageProcess, 1)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (in *Ingester) processOne(ctx context.Context, doc models.Document) processed {
	summary, err := in.summarizer.Summarize(ctx, doc.Content)
	if err != nil {
		in.log.Warn("summarize failed", "url", doc.URL, "error", err)
		return processed{doc: doc, err: err}
	}

	vector, err := in.embedder.Embed(ctx, summary)
	if err != nil {
		in.log.Warn("embed failed", "url", doc.URL, "error", err)
		return processed{doc: doc, err: err}
	}

	doc.ID = uuid.NewString()
	doc.Summary = summary
	return processed{doc: doc, vector: vector}
}

// store writes one fully collected batch with a single upsert.
func (in *Ingester) store(ctx context.Context, batch []processed, report *Report) error {
	docs := make([]models.Document, len(batch))
	vectors := make([][]float32, len(batch))
	for i, p := range batch {
		docs[i] = p.doc
		vectors[i] = p.vector
	}

	res, err := in.gateway.UpsertBatch(ctx, docs, vectors)
	report.Ingested += len(res.Stored)
	report.Failed += len(res.Failed)
	for _, f := range res.Failed {
		report.Errors = append(report.Errors, f)
	}
	in.progress(StageStore, len(res.Stored))

	if err == nil {
		return nil
	}
	if errors.Is(err, types.ErrSchemaMismatch) || ctx.Err() != nil {
		return fmt.Errorf("failed to store batch: %w", err)
	}

	// the whole call failed; nothing beyond what was reported got stored
	lost := len(batch) - len(res.Stored) - len(res.Failed)
	report.Failed += lost
	report.Errors = append(report.Errors, fmt.Errorf("failed to store batch of %d: %w", lost, err))
	in.log.Error("batch upsert failed", "documents", lost, "error", err)
	return nil
}

func (in *Ingester) progress(stage string, n int) {
	if in.config.OnProgress != nil {
		in.config.OnProgress(stage, n)
	}
}
