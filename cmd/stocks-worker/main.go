package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"stockwatch/internal/config"
	"stockwatch/internal/market"
	"stockwatch/internal/search"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	config.LoadDotEnv()
	cfg, err := config.LoadWorkerFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))

	cat, err := market.OpenCatalog(cfg.Quotes.CatalogPath)
	if err != nil {
		logger.Error("catalog load failed", "err", err)
		os.Exit(1)
	}
	cache, closeQuotes, err := market.OpenQuoteCache(ctx, cfg.Quotes, cat, logger)
	if err != nil {
		logger.Error("redis connect failed", "err", err)
		os.Exit(1)
	}
	defer closeQuotes()

	targets := market.WarmTargets(search.NewEngine(cat), cfg.WarmTickers, logger)

	if cfg.RunOnce {
		if err := market.Warm(ctx, cache, targets, 0, logger); err != nil {
			logger.Error("warm failed", "err", err)
			os.Exit(1)
		}
		logger.Info("worker run-once completed")
		return
	}

	logger.Info("worker started", "warm_every", cfg.WarmEvery.String(), "targets", len(targets), "quote_source", cfg.Quotes.Source)
	_ = market.Warm(ctx, cache, targets, cfg.WarmEvery, logger)
	logger.Info("worker shutdown")
}
