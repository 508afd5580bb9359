package quotes

import (
	"context"
	"time"
)

// DefaultTTL is how long a fetched quote may be served without a refresh.
const DefaultTTL = 5000 * time.Millisecond

// Quote is a price snapshot for one symbol. Price is in integer cents.
type Quote struct {
	Symbol    string    `json:"symbol"`
	Price     int64     `json:"price"`
	Change    string    `json:"change"`
	CreatedAt time.Time `json:"created_at"`
}

func (q Quote) Age(now time.Time) time.Duration {
	return now.Sub(q.CreatedAt)
}

// Price is what an external source reports for a symbol.
type Price struct {
	Price  int64
	Change string
}

// Source fetches current prices for a batch of symbols. Symbols it knows
// nothing about are simply absent from the returned map.
type Source interface {
	Fetch(ctx context.Context, symbols []string) (map[string]Price, error)
}

// Store holds the last fetched quote per symbol.
type Store interface {
	Get(ctx context.Context, symbols []string) (map[string]Quote, error)
	Put(ctx context.Context, quotes []Quote) error
}

type Range struct {
	Start  int `json:"start"`
	Length int `json:"length"`
}

// Page is one requested window of a sorted symbol set. Total counts the whole
// set, not just the window.
type Page struct {
	Quotes []Quote `json:"quotes"`
	Start  int     `json:"start"`
	Total  int     `json:"total"`
}
