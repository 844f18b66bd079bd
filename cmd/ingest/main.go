package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"

	"github.com/xhad/recall/internal/app"
	cfgPkg "github.com/xhad/recall/pkg/config"
	"github.com/xhad/recall/pkg/pipeline"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to config file")
	flag.Parse()

	// .env is optional
	_ = godotenv.Load()

	if err := run(configPath); err != nil {
		color.Red("ingest failed: %v", err)
		os.Exit(1)
	}
}

func getProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("docs"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// progress drives one bar per pipeline stage. The processing bar is created
// once normalization reports how many documents there are.
type progress struct {
	mu      sync.Mutex
	process *progressbar.ProgressBar
	store   *progressbar.ProgressBar
}

func (p *progress) update(stage string, n int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch stage {
	case pipeline.StageFetch:
		color.Green("✓ Fetched %d pages", n)
	case pipeline.StageNormalize:
		color.Green("✓ Normalized %d documents", n)
		p.process = getProgressBar(n, " Summarizing and embedding")
		p.store = getProgressBar(n, " Storing in vector database")
	case pipeline.StageProcess:
		if p.process != nil {
			p.process.Add(n)
		}
	case pipeline.StageStore:
		if p.store != nil {
			p.store.Add(n)
		}
	}
}

func (p *progress) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, bar := range []*progressbar.ProgressBar{p.process, p.store} {
		if bar != nil {
			bar.Finish()
			fmt.Fprintln(os.Stderr)
		}
	}
}

func run(configPath string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := cfgPkg.LoadConfig(configPath)
	if err != nil {
		return err
	}

	a, err := app.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	bars := &progress{}
	ingester, err := a.Ingester(bars.update)
	if err != nil {
		return err
	}

	seeds := cfg.ResolveSeeds()
	color.Cyan("Ingesting %d seeds into %s (%s)", len(seeds), cfg.Store.Collection, cfg.Store.Backend)

	report, err := ingester.Run(ctx, seeds)
	bars.finish()
	if err != nil {
		return err
	}

	fmt.Printf("ingested: %d docs\n", report.Ingested)
	summary := color.New(color.FgCyan).PrintfFunc()
	summary("seeds: %d (failed %d), pages: %d, skipped: %d, failed docs: %d\n",
		report.Seeds, report.SeedFailures, report.Fetched, report.Skipped, report.Failed)
	for _, e := range report.Errors {
		color.Yellow("  %v", e)
	}
	return nil
}
