package market

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"stockwatch/internal/catalog"
	"stockwatch/internal/config"
	"stockwatch/internal/quotes"
	"stockwatch/internal/search"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOpenCatalog(t *testing.T) {
	c, err := OpenCatalog("")
	if err != nil || !c.Contains("IBM") {
		t.Fatalf("default catalog err=%v", err)
	}

	path := filepath.Join(t.TempDir(), "tickers.txt")
	if err := os.WriteFile(path, []byte("ACME\tAcme Corporation\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	c, err = OpenCatalog(path)
	if err != nil || c.Len() != 1 || !c.Contains("ACME") {
		t.Fatalf("file catalog got len=%d err=%v", c.Len(), err)
	}

	if _, err := OpenCatalog(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Fatalf("expected error for a missing file")
	}
}

func TestNewSource(t *testing.T) {
	cat := catalog.Default()
	src, err := NewSource(config.QuoteConfig{Source: config.QuoteSourceSim, Volatility: "calm"}, cat)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := src.(*quotes.SimSource); !ok {
		t.Fatalf("got %T", src)
	}
	src, err = NewSource(config.QuoteConfig{Source: config.QuoteSourceHTTP, SourceURL: "http://example.invalid"}, cat)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := src.(*quotes.HTTPSource); !ok {
		t.Fatalf("got %T", src)
	}
	if _, err := NewSource(config.QuoteConfig{Source: "fax"}, cat); err == nil {
		t.Fatalf("expected error")
	}
}

func TestWarmTargets(t *testing.T) {
	engine := search.NewEngine(catalog.FromEntries([]catalog.Entry{
		{Ticker: "AAPL", Name: "Apple Inc."},
		{Ticker: "IBM", Name: "International Business Machines Corporation"},
		{Ticker: "ZZZ", Name: "Sleepy Holdings"},
	}))
	got := WarmTargets(engine, []string{"zzz", "NOPE", "IBM"}, quietLogger())

	want := map[string]bool{"AAPL": true, "IBM": true, "ZZZ": true}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for _, s := range got {
		if !want[s] {
			t.Fatalf("unexpected target %s in %v", s, got)
		}
	}
}

func TestWarmFillsSharedRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.QuoteConfig{
		Source:     config.QuoteSourceSim,
		Volatility: "calm",
		TTL:        5 * time.Second,
		RedisURL:   "redis://" + mr.Addr(),
	}
	cat := catalog.Default()
	ctx := context.Background()

	cache, closeFn, err := OpenQuoteCache(ctx, cfg, cat, quietLogger())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer closeFn()

	if err := Warm(ctx, cache, []string{"IBM", "XOM"}, 0, quietLogger()); err != nil {
		t.Fatalf("warm: %v", err)
	}
	if !mr.Exists("stockwatch:quote:IBM") || !mr.Exists("stockwatch:quote:XOM") {
		t.Fatalf("expected warmed keys, got %v", mr.Keys())
	}
}

func TestWarmStopsWithContext(t *testing.T) {
	cache := quotes.NewCache(nil, quotes.NewSimSource("calm", 1, nil), quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Warm(ctx, cache, []string{"IBM"}, 10*time.Millisecond, quietLogger()) }()
	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("warm loop did not stop")
	}
}
