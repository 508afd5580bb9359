package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	QuoteCacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stockwatch_quote_cache_hits_total",
		Help: "Quotes served from the cache inside the freshness window",
	})
	QuoteCacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stockwatch_quote_cache_misses_total",
		Help: "Quotes that were stale or absent and had to be refreshed",
	})
	QuoteSourceFetches = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stockwatch_quote_source_fetches_total",
		Help: "Batched calls made to the external quote source",
	})
	QuoteSourceErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stockwatch_quote_source_errors_total",
		Help: "Failed calls to the external quote source",
	})
	QuoteMissingSymbols = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stockwatch_quote_missing_symbols_total",
		Help: "Symbols requested from the source that came back without a price",
	})
	QuoteFetchLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "stockwatch_quote_fetch_latency_seconds",
		Help:    "Latency of batched quote source calls",
		Buckets: prometheus.DefBuckets,
	})

	// Transactions counts completed trades by side (buy/sell).
	Transactions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stockwatch_transactions_total",
		Help: "Completed player transactions",
	}, []string{"side"})
	TransactionFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stockwatch_transaction_failures_total",
		Help: "Rejected player transactions by reason",
	}, []string{"reason"})

	Players = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "stockwatch_players",
		Help: "Players currently held in the ledger",
	})
)

func init() {
	prometheus.MustRegister(QuoteCacheHits, QuoteCacheMisses, QuoteSourceFetches, QuoteSourceErrors, QuoteMissingSymbols, QuoteFetchLatency)
	prometheus.MustRegister(Transactions, TransactionFailures, Players)
}
