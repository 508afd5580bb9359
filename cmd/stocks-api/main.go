package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stockwatch/internal/api"
	"stockwatch/internal/auth"
	"stockwatch/internal/config"
	"stockwatch/internal/db"
	"stockwatch/internal/game"
	"stockwatch/internal/market"
	"stockwatch/internal/search"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	config.LoadDotEnv()
	cfg, err := config.LoadAPIFromEnv()
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
		logger.Error("quote store init failed", "err", err)
		os.Exit(1)
	}
	defer closeQuotes()

	var store game.Store = game.NopStore{}
	if cfg.DatabaseURL != "" {
		pool, err := db.Connect(ctx, cfg.DatabaseURL, db.Options{MaxConns: cfg.DBMaxConns}, logger)
		if err != nil {
			logger.Error("db connect failed", "err", err)
			os.Exit(1)
		}
		defer pool.Close()
		pg := game.NewPostgresStore(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			logger.Error("schema init failed", "err", err)
			os.Exit(1)
		}
		store = pg
	}

	gameSvc := game.NewService(search.NewEngine(cat), cache, game.NewLedger(cfg.InitialCashCents), store, logger)
	restored, err := gameSvc.LoadPlayers(ctx)
	if err != nil {
		logger.Error("player restore failed", "err", err)
		os.Exit(1)
	}

	var verifier auth.Verifier = auth.DevVerifier{}
	var accounts *auth.SupabaseClient
	if cfg.AuthMode == config.AuthModeSupabase {
		accounts = auth.NewSupabaseClient(cfg.SupabaseURL, cfg.SupabaseAnonKey)
		verifier = accounts
	}

	server := api.New(logger, verifier, accounts, gameSvc)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("stocks api listening",
		"addr", cfg.Addr,
		"auth_mode", cfg.AuthMode,
		"quote_source", cfg.Quotes.Source,
		"tickers", cat.Len(),
		"players_restored", restored,
	)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
}
