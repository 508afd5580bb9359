package game

import (
	"time"

	"stockwatch/internal/quotes"
)

// Identity is the authenticated caller a request acts for.
type Identity struct {
	UserID      string
	DisplayName string
}

type StockRequest struct {
	SearchQuery    string       `json:"search_query"`
	SearchRange    quotes.Range `json:"search_range"`
	FavoritesRange quotes.Range `json:"favorites_range"`
	SectorName     string       `json:"sector_name"`
	SectorRange    quotes.Range `json:"sector_range"`
}

type StockQuote struct {
	Ticker      string    `json:"ticker"`
	Name        string    `json:"name"`
	Price       int64     `json:"price_cents"`
	Change      string    `json:"change"`
	SharesOwned int64     `json:"shares_owned"`
	AvgPrice    int64     `json:"avg_price_cents"`
	Favorite    bool      `json:"favorite"`
	CreatedAt   time.Time `json:"created_at"`
}

type StockList struct {
	Quotes []StockQuote `json:"quotes"`
	Start  int          `json:"start"`
	Total  int          `json:"total"`
}

type StockResponse struct {
	Search      StockList `json:"search"`
	Favorites   StockList `json:"favorites"`
	Sector      StockList `json:"sector"`
	Cash        int64     `json:"cash_cents"`
	NetWorth    int64     `json:"net_worth_cents"`
	DisplayName string    `json:"display_name"`
	Messages    []string  `json:"messages"`
}

type Transaction struct {
	Side           string `json:"side"`
	Ticker         string `json:"ticker"`
	Quantity       int64  `json:"quantity"`
	IdempotencyKey string `json:"-"`
}

type TransactionResult struct {
	Side     string `json:"side"`
	Ticker   string `json:"ticker"`
	Quantity int64  `json:"quantity"`
	Price    int64  `json:"price_cents"`
	Total    int64  `json:"total_cents"`
	Cash     int64  `json:"cash_cents"`
}

type LeaderboardRow struct {
	Rank        int64  `json:"rank"`
	DisplayName string `json:"display_name"`
	NetWorth    int64  `json:"net_worth_cents"`
}

type PositionView struct {
	Ticker       string `json:"ticker"`
	Name         string `json:"name"`
	Shares       int64  `json:"shares"`
	AvgPrice     int64  `json:"avg_price_cents"`
	CurrentPrice int64  `json:"current_price_cents"`
	Unrealized   int64  `json:"unrealized_cents"`
}

type StatusView struct {
	DisplayName string         `json:"display_name"`
	Cash        int64          `json:"cash_cents"`
	NetWorth    int64          `json:"net_worth_cents"`
	Positions   []PositionView `json:"positions"`
	Favorites   []string       `json:"favorites"`
	Messages    []string       `json:"messages"`
}
