// Package market assembles the catalog and quote stack shared by the API
// server and the warmer.
package market

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"stockwatch/internal/catalog"
	"stockwatch/internal/config"
	"stockwatch/internal/quotes"
	"stockwatch/internal/search"
)

func OpenCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default(), nil
	}
	return catalog.LoadFile(path)
}

func NewSource(cfg config.QuoteConfig, cat *catalog.Catalog) (quotes.Source, error) {
	switch cfg.Source {
	case config.QuoteSourceSim, "":
		return quotes.NewSimSource(cfg.Volatility, time.Now().UnixNano(), cat.Contains), nil
	case config.QuoteSourceHTTP:
		return quotes.NewHTTPSource(cfg.SourceURL), nil
	default:
		return nil, fmt.Errorf("unknown quote source %q", cfg.Source)
	}
}

// OpenQuoteCache builds the cache over Redis when REDIS_URL is set and over
// process memory otherwise. The returned close func is never nil.
func OpenQuoteCache(ctx context.Context, cfg config.QuoteConfig, cat *catalog.Catalog, logger *slog.Logger) (*quotes.Cache, func() error, error) {
	src, err := NewSource(cfg, cat)
	if err != nil {
		return nil, nil, err
	}
	var store quotes.Store = quotes.NewMemoryStore()
	closeFn := func() error { return nil }
	if cfg.RedisURL != "" {
		client, err := quotes.DialRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		rs := quotes.NewRedisStore(client, 10*cfg.TTL)
		store = rs
		closeFn = rs.Close
	}
	return quotes.NewCache(store, src, logger, quotes.WithTTL(cfg.TTL)), closeFn, nil
}

// WarmTargets is every sector member plus the listed extras that the catalog
// knows, sorted and deduplicated.
func WarmTargets(engine *search.Engine, extra []string, logger *slog.Logger) []string {
	if logger == nil {
		logger = slog.Default()
	}
	set := make(map[string]struct{})
	for _, name := range engine.Catalog().Sectors() {
		members, _ := engine.Sector(name)
		for _, t := range members {
			set[t] = struct{}{}
		}
	}
	for _, t := range quotes.Normalize(extra) {
		if !engine.Catalog().Contains(t) {
			logger.Warn("warm ticker not in catalog", "ticker", t)
			continue
		}
		set[t] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Warm refreshes targets on every tick until ctx is done. With every <= 0 it
// warms once and returns.
func Warm(ctx context.Context, cache *quotes.Cache, targets []string, every time.Duration, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	if every <= 0 {
		return warmOnce(ctx, cache, targets, logger)
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		if err := warmOnce(ctx, cache, targets, logger); err != nil {
			logger.Error("warm failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func warmOnce(ctx context.Context, cache *quotes.Cache, targets []string, logger *slog.Logger) error {
	started := time.Now()
	n, err := cache.Warm(ctx, targets)
	if err != nil {
		return err
	}
	logger.Info("quotes warmed", "fresh", n, "targets", len(targets), "took_ms", time.Since(started).Milliseconds())
	return nil
}
