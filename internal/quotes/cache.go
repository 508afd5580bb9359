package quotes

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"stockwatch/internal/metrics"
)

// Cache serves quotes from a Store and refreshes stale ones from a Source in
// a single batched call per request.
type Cache struct {
	store  Store
	source Source
	ttl    time.Duration
	now    func() time.Time
	log    *slog.Logger
	group  singleflight.Group
}

type Option func(*Cache)

func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

func NewCache(store Store, source Source, logger *slog.Logger, opts ...Option) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	if store == nil {
		store = NewMemoryStore()
	}
	c := &Cache{
		store:  store,
		source: source,
		ttl:    DefaultTTL,
		now:    time.Now,
		log:    logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// GetQuotes sorts and dedupes symbols, then returns quotes for the requested
// window only. Symbols the source could not price are left out of the page.
func (c *Cache) GetQuotes(ctx context.Context, symbols []string, rng Range) (Page, error) {
	sorted := Normalize(symbols)
	if rng.Start < 0 {
		rng.Start = 0
	}
	page := Page{Quotes: []Quote{}, Start: rng.Start, Total: len(sorted)}
	if rng.Start >= len(sorted) || rng.Length <= 0 {
		return page, nil
	}
	end := rng.Start + rng.Length
	if end > len(sorted) {
		end = len(sorted)
	}
	window := sorted[rng.Start:end]

	resolved, err := c.resolve(ctx, window)
	if err != nil {
		return page, err
	}
	for _, s := range window {
		if q, ok := resolved[s]; ok {
			page.Quotes = append(page.Quotes, q)
		}
	}
	return page, nil
}

// Quote looks up exactly one symbol.
func (c *Cache) Quote(ctx context.Context, symbol string) (Quote, bool, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return Quote{}, false, nil
	}
	resolved, err := c.resolve(ctx, []string{symbol})
	if err != nil {
		return Quote{}, false, err
	}
	q, ok := resolved[symbol]
	return q, ok, nil
}

// Lookup resolves every symbol without paging. Used for valuations.
func (c *Cache) Lookup(ctx context.Context, symbols []string) (map[string]Quote, error) {
	sorted := Normalize(symbols)
	if len(sorted) == 0 {
		return map[string]Quote{}, nil
	}
	return c.resolve(ctx, sorted)
}

// Warm refreshes whatever is stale among symbols and reports how many now
// hold a fresh quote.
func (c *Cache) Warm(ctx context.Context, symbols []string) (int, error) {
	resolved, err := c.Lookup(ctx, symbols)
	if err != nil {
		return 0, err
	}
	return len(resolved), nil
}

func (c *Cache) fresh(q Quote, now time.Time) bool {
	return q.Age(now) < c.ttl
}

func (c *Cache) resolve(ctx context.Context, symbols []string) (map[string]Quote, error) {
	cached, err := c.store.Get(ctx, symbols)
	if err != nil {
		return nil, err
	}
	now := c.now()
	out := make(map[string]Quote, len(symbols))
	var stale []string
	for _, s := range symbols {
		if q, ok := cached[s]; ok && c.fresh(q, now) {
			out[s] = q
			metrics.QuoteCacheHits.Inc()
			continue
		}
		stale = append(stale, s)
		metrics.QuoteCacheMisses.Inc()
	}
	if len(stale) == 0 {
		return out, nil
	}

	v, err, _ := c.group.Do(strings.Join(stale, ","), func() (any, error) {
		return c.fetch(ctx, stale)
	})
	if err != nil {
		return nil, err
	}
	for s, q := range v.(map[string]Quote) {
		out[s] = q
	}
	return out, nil
}

func (c *Cache) fetch(ctx context.Context, symbols []string) (map[string]Quote, error) {
	out := make(map[string]Quote, len(symbols))
	if c.source == nil {
		c.log.Warn("no quote source configured", "symbols", len(symbols))
		return out, nil
	}

	started := time.Now()
	metrics.QuoteSourceFetches.Inc()
	prices, err := c.source.Fetch(ctx, symbols)
	metrics.QuoteFetchLatency.Observe(time.Since(started).Seconds())
	if err != nil {
		metrics.QuoteSourceErrors.Inc()
		c.log.Error("quote source fetch failed", "symbols", len(symbols), "err", err)
		return out, nil
	}

	now := c.now()
	fetched := make([]Quote, 0, len(symbols))
	for _, s := range symbols {
		p, ok := prices[s]
		if !ok {
			metrics.QuoteMissingSymbols.Inc()
			c.log.Warn("quote source returned no price", "symbol", s)
			continue
		}
		q := Quote{Symbol: s, Price: p.Price, Change: p.Change, CreatedAt: now}
		fetched = append(fetched, q)
		out[s] = q
	}
	if err := c.store.Put(ctx, fetched); err != nil {
		return nil, err
	}
	return out, nil
}

// Normalize upper-cases, dedupes and sorts symbols, dropping blanks.
func Normalize(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
