package main

import (
	"context"
	"flag"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"

	"github.com/xhad/recall/internal/app"
	cfgPkg "github.com/xhad/recall/pkg/config"
	"github.com/xhad/recall/pkg/search"
)

func main() {
	var configPath string
	var k int
	flag.StringVar(&configPath, "config", "", "Path to config file")
	flag.IntVar(&k, "k", 5, "Number of results")
	flag.Parse()

	_ = godotenv.Load()

	if err := run(configPath, strings.Join(flag.Args(), " "), k); err != nil {
		color.Red("ask failed: %v", err)
		os.Exit(1)
	}
}

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func run(configPath, query string, k int) error {
	ctx := context.Background()

	cfg, err := cfgPkg.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if strings.TrimSpace(query) == "" {
		query = cfg.Query.DefaultQuery
	}

	a, err := app.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	svc, err := a.Search(ctx)
	if err != nil {
		return err
	}

	spinner := getSpinner(" Searching...")
	hits, err := svc.Search(ctx, query, k)
	spinner.Finish()
	os.Stderr.WriteString("\n")
	if err != nil {
		return err
	}

	if len(hits) == 0 {
		color.Yellow("no results for %q", query)
		return nil
	}
	return search.WriteHits(os.Stdout, hits)
}
