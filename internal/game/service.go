package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"stockwatch/internal/catalog"
	"stockwatch/internal/metrics"
	"stockwatch/internal/quotes"
	"stockwatch/internal/search"
)

type Service struct {
	engine *search.Engine
	quotes *quotes.Cache
	ledger *Ledger
	store  Store
	log    *slog.Logger
}

func NewService(engine *search.Engine, cache *quotes.Cache, ledger *Ledger, store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if store == nil {
		store = NopStore{}
	}
	if ledger == nil {
		ledger = NewLedger(DefaultInitialCash)
	}
	return &Service{
		engine: engine,
		quotes: cache,
		ledger: ledger,
		store:  store,
		log:    logger,
	}
}

func (s *Service) Catalog() *catalog.Catalog {
	return s.engine.Catalog()
}

// LoadPlayers restores persisted players into the ledger.
func (s *Service) LoadPlayers(ctx context.Context) (int, error) {
	snaps, err := s.store.LoadPlayers(ctx)
	if err != nil {
		return 0, fmt.Errorf("load players: %w", err)
	}
	s.ledger.Restore(snaps)
	metrics.Players.Set(float64(s.ledger.Len()))
	return len(snaps), nil
}

// Player returns the caller's player, creating it on first use.
func (s *Service) Player(ctx context.Context, id Identity) (*Player, error) {
	if strings.TrimSpace(id.UserID) == "" {
		return nil, ErrUnauthorized
	}
	p, created := s.ledger.GetOrCreate(id.UserID, id.DisplayName)
	if created {
		metrics.Players.Set(float64(s.ledger.Len()))
		s.log.Info("player created", "user_id", id.UserID, "display_name", p.DisplayName())
		s.persist(ctx, p)
	}
	return p, nil
}

func (s *Service) Sectors() []string {
	return s.Catalog().Sectors()
}

func (s *Service) GetStockQuotes(ctx context.Context, id Identity, req StockRequest) (StockResponse, error) {
	p, err := s.Player(ctx, id)
	if err != nil {
		return StockResponse{}, err
	}

	var searchTickers []string
	if strings.TrimSpace(req.SearchQuery) != "" {
		searchTickers = s.engine.Search(req.SearchQuery)
	}
	var sectorTickers []string
	if strings.TrimSpace(req.SectorName) != "" {
		members, ok := s.engine.Sector(req.SectorName)
		if !ok {
			s.log.Debug("unknown sector requested", "sector", req.SectorName)
		}
		sectorTickers = members
	}

	resp := StockResponse{DisplayName: p.DisplayName()}
	if resp.Search, err = s.stockList(ctx, p, searchTickers, req.SearchRange); err != nil {
		return StockResponse{}, err
	}
	if resp.Favorites, err = s.stockList(ctx, p, p.Favorites(), req.FavoritesRange); err != nil {
		return StockResponse{}, err
	}
	if resp.Sector, err = s.stockList(ctx, p, sectorTickers, req.SectorRange); err != nil {
		return StockResponse{}, err
	}

	resp.Cash = p.Cash()
	if resp.NetWorth, err = s.netWorth(ctx, p.Cash(), p.Holdings()); err != nil {
		return StockResponse{}, err
	}
	resp.Messages = p.Messages()
	return resp, nil
}

func (s *Service) stockList(ctx context.Context, p *Player, tickers []string, rng quotes.Range) (StockList, error) {
	page, err := s.quotes.GetQuotes(ctx, tickers, rng)
	if err != nil {
		return StockList{}, err
	}
	list := StockList{Quotes: make([]StockQuote, 0, len(page.Quotes)), Start: page.Start, Total: page.Total}
	for _, q := range page.Quotes {
		name, _ := s.Catalog().Name(q.Symbol)
		sq := StockQuote{
			Ticker:    q.Symbol,
			Name:      name,
			Price:     q.Price,
			Change:    q.Change,
			Favorite:  p.IsFavorite(q.Symbol),
			CreatedAt: q.CreatedAt,
		}
		if h, ok := p.Holding(q.Symbol); ok {
			sq.SharesOwned = h.Shares
			sq.AvgPrice = h.AvgPrice()
		}
		list.Quotes = append(list.Quotes, sq)
	}
	return list, nil
}

func (s *Service) AddFavorite(ctx context.Context, id Identity, ticker string) (bool, error) {
	ticker, err := s.catalogTicker(ticker)
	if err != nil {
		return false, err
	}
	p, err := s.Player(ctx, id)
	if err != nil {
		return false, err
	}
	changed := p.AddFavorite(ticker)
	if changed {
		s.persist(ctx, p)
	}
	return changed, nil
}

func (s *Service) RemoveFavorite(ctx context.Context, id Identity, ticker string) (bool, error) {
	ticker, err := s.catalogTicker(ticker)
	if err != nil {
		return false, err
	}
	p, err := s.Player(ctx, id)
	if err != nil {
		return false, err
	}
	changed := p.RemoveFavorite(ticker)
	if changed {
		s.persist(ctx, p)
	}
	return changed, nil
}

func (s *Service) Transact(ctx context.Context, id Identity, in Transaction) (TransactionResult, error) {
	res, err := s.transact(ctx, id, in)
	if err != nil {
		metrics.TransactionFailures.WithLabelValues(failureReason(err)).Inc()
		return TransactionResult{}, err
	}
	metrics.Transactions.WithLabelValues(res.Side).Inc()
	return res, nil
}

func (s *Service) transact(ctx context.Context, id Identity, in Transaction) (TransactionResult, error) {
	side := strings.ToLower(strings.TrimSpace(in.Side))
	if side != SideBuy && side != SideSell {
		return TransactionResult{}, ErrInvalidSide
	}
	if in.Quantity <= 0 {
		return TransactionResult{}, ErrInvalidQuantity
	}
	ticker, err := s.catalogTicker(in.Ticker)
	if err != nil {
		return TransactionResult{}, err
	}
	p, err := s.Player(ctx, id)
	if err != nil {
		return TransactionResult{}, err
	}

	q, ok, err := s.quotes.Quote(ctx, ticker)
	if err != nil {
		return TransactionResult{}, err
	}
	if !ok || q.Price <= 0 {
		return TransactionResult{}, fmt.Errorf("%w: no quote for %s", ErrInvalidTicker, ticker)
	}

	res, err := p.Trade(side, ticker, in.Quantity, q.Price, in.IdempotencyKey)
	if err != nil {
		return TransactionResult{}, err
	}
	s.log.Info("transaction",
		"user_id", id.UserID,
		"side", res.Side,
		"ticker", res.Ticker,
		"quantity", res.Quantity,
		"price_cents", res.Price,
	)
	s.persist(ctx, p)
	return res, nil
}

func (s *Service) Leaderboard(ctx context.Context, limit int) ([]LeaderboardRow, error) {
	players := s.ledger.All()
	type entry struct {
		userID   string
		name     string
		cash     int64
		holdings map[string]Holding
	}
	entries := make([]entry, 0, len(players))
	var tickers []string
	for _, p := range players {
		snap := p.Snapshot()
		entries = append(entries, entry{userID: snap.UserID, name: snap.DisplayName, cash: snap.Cash, holdings: snap.Holdings})
		for t := range snap.Holdings {
			tickers = append(tickers, t)
		}
	}
	prices, err := s.quotes.Lookup(ctx, tickers)
	if err != nil {
		return nil, err
	}

	type scored struct {
		userID string
		row    LeaderboardRow
	}
	rows := make([]scored, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, scored{
			userID: e.userID,
			row:    LeaderboardRow{DisplayName: e.name, NetWorth: valueAt(e.cash, e.holdings, prices)},
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.row.NetWorth != b.row.NetWorth {
			return a.row.NetWorth > b.row.NetWorth
		}
		if a.row.DisplayName != b.row.DisplayName {
			return a.row.DisplayName < b.row.DisplayName
		}
		return a.userID < b.userID
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	out := make([]LeaderboardRow, 0, len(rows))
	for i, r := range rows {
		r.row.Rank = int64(i + 1)
		out = append(out, r.row)
	}
	return out, nil
}

func (s *Service) Status(ctx context.Context, id Identity) (StatusView, error) {
	p, err := s.Player(ctx, id)
	if err != nil {
		return StatusView{}, err
	}
	snap := p.Snapshot()
	tickers := make([]string, 0, len(snap.Holdings))
	for t := range snap.Holdings {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)
	prices, err := s.quotes.Lookup(ctx, tickers)
	if err != nil {
		return StatusView{}, err
	}

	out := StatusView{
		DisplayName: snap.DisplayName,
		Cash:        snap.Cash,
		NetWorth:    valueAt(snap.Cash, snap.Holdings, prices),
		Positions:   make([]PositionView, 0, len(tickers)),
		Favorites:   snap.Favorites,
		Messages:    snap.Messages,
	}
	for _, t := range tickers {
		h := snap.Holdings[t]
		name, _ := s.Catalog().Name(t)
		pos := PositionView{Ticker: t, Name: name, Shares: h.Shares, AvgPrice: h.AvgPrice()}
		if q, ok := prices[t]; ok {
			pos.CurrentPrice = q.Price
			if v, err := notionalCents(q.Price, h.Shares); err == nil {
				pos.Unrealized = v - h.TotalPaid
			}
		}
		out.Positions = append(out.Positions, pos)
	}
	return out, nil
}

func (s *Service) netWorth(ctx context.Context, cash int64, holdings map[string]Holding) (int64, error) {
	tickers := make([]string, 0, len(holdings))
	for t := range holdings {
		tickers = append(tickers, t)
	}
	prices, err := s.quotes.Lookup(ctx, tickers)
	if err != nil {
		return 0, err
	}
	return valueAt(cash, holdings, prices), nil
}

// valueAt marks holdings to market. A holding without a current quote is
// carried at what was paid for it.
func valueAt(cash int64, holdings map[string]Holding, prices map[string]quotes.Quote) int64 {
	total := cash
	for t, h := range holdings {
		if q, ok := prices[t]; ok && q.Price > 0 {
			v, err := notionalCents(q.Price, h.Shares)
			if err == nil {
				total += v
				continue
			}
		}
		total += h.TotalPaid
	}
	return total
}

func (s *Service) catalogTicker(raw string) (string, error) {
	ticker := NormalizeTicker(raw)
	if err := ValidateTicker(ticker); err != nil {
		return "", err
	}
	if !s.Catalog().Contains(ticker) {
		return "", fmt.Errorf("%w: %s is not listed", ErrInvalidTicker, ticker)
	}
	return ticker, nil
}

func (s *Service) persist(ctx context.Context, p *Player) {
	p.saveMu.Lock()
	defer p.saveMu.Unlock()
	if err := s.store.SavePlayer(ctx, p.Snapshot()); err != nil {
		s.log.Error("save player", "user_id", p.UserID(), "err", err)
	}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidTicker):
		return "invalid_ticker"
	case errors.Is(err, ErrInvalidQuantity):
		return "invalid_quantity"
	case errors.Is(err, ErrInvalidSide):
		return "invalid_side"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrInsufficientShares):
		return "insufficient_shares"
	case errors.Is(err, ErrDuplicateIdempotency):
		return "duplicate"
	default:
		return "internal"
	}
}
