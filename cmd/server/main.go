package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"

	"github.com/xhad/recall/internal/app"
	cfgPkg "github.com/xhad/recall/pkg/config"
	"github.com/xhad/recall/pkg/server"
)

func main() {
	var configPath, addr string
	flag.StringVar(&configPath, "config", "", "Path to config file")
	flag.StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	flag.Parse()

	_ = godotenv.Load()

	if err := run(configPath, addr); err != nil {
		log.Fatal("server failed", "error", err)
	}
}

func run(configPath, addr string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := cfgPkg.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Server.Addr = addr
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

	return server.New(svc, server.Config{Addr: cfg.Server.Addr, Logger: a.Log}).ListenAndServe(ctx)
}
