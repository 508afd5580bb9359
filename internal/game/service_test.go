package game

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"sync"
	"testing"
	"time"

	"stockwatch/internal/catalog"
	"stockwatch/internal/quotes"
	"stockwatch/internal/search"
)

type fixedSource struct {
	mu     sync.Mutex
	prices map[string]quotes.Price
	err    error
}

func (s *fixedSource) Fetch(_ context.Context, symbols []string) (map[string]quotes.Price, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := make(map[string]quotes.Price)
	for _, sym := range symbols {
		if p, ok := s.prices[sym]; ok {
			out[sym] = p
		}
	}
	return out, nil
}

type recordingStore struct {
	mu    sync.Mutex
	saved []PlayerSnapshot
	load  []PlayerSnapshot
	err   error
}

func (s *recordingStore) LoadPlayers(context.Context) ([]PlayerSnapshot, error) {
	return s.load, nil
}

func (s *recordingStore) SavePlayer(_ context.Context, snap PlayerSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, snap)
	return s.err
}

// stallingStore keeps only the last snapshot written and blocks the
// stallOn-th save until release is closed.
type stallingStore struct {
	mu      sync.Mutex
	calls   int
	stallOn int
	entered chan struct{}
	release chan struct{}
	last    PlayerSnapshot
}

func (s *stallingStore) LoadPlayers(context.Context) ([]PlayerSnapshot, error) {
	return nil, nil
}

func (s *stallingStore) SavePlayer(_ context.Context, snap PlayerSnapshot) error {
	s.mu.Lock()
	s.calls++
	n := s.calls
	s.mu.Unlock()
	if n == s.stallOn {
		close(s.entered)
		<-s.release
	}
	s.mu.Lock()
	s.last = snap
	s.mu.Unlock()
	return nil
}

func (s *recordingStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved)
}

var testEntries = []catalog.Entry{
	{Ticker: "CVX", Name: "Chevron Corporation"},
	{Ticker: "GE", Name: "General Electric Company"},
	{Ticker: "GOOG", Name: "Google Inc. Class C"},
	{Ticker: "GOOGL", Name: "Google Inc. Class A"},
	{Ticker: "IBM", Name: "International Business Machines Corporation"},
	{Ticker: "INTC", Name: "Intel Corporation"},
	{Ticker: "XOM", Name: "Exxon Mobil Corporation"},
}

func newTestService(t *testing.T, src quotes.Source, store Store) *Service {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cache := quotes.NewCache(quotes.NewMemoryStore(), src, logger)
	engine := search.NewEngine(catalog.FromEntries(testEntries))
	return NewService(engine, cache, NewLedger(100_000), store, logger)
}

func defaultSource() *fixedSource {
	return &fixedSource{prices: map[string]quotes.Price{
		"CVX":   {Price: 7_000, Change: "+0.10"},
		"GE":    {Price: 1_500, Change: "-0.05"},
		"GOOG":  {Price: 50_000, Change: "+2.00"},
		"GOOGL": {Price: 51_000, Change: "+2.10"},
		"IBM":   {Price: 12_500, Change: "+0.50"},
		"INTC":  {Price: 2_000, Change: "-0.01"},
		"XOM":   {Price: 6_000, Change: "+0.00"},
	}}
}

var alice = Identity{UserID: "u-alice", DisplayName: "alice"}

func tickersOf(list StockList) []string {
	var out []string
	for _, q := range list.Quotes {
		out = append(out, q.Ticker)
	}
	return out
}

func TestGetStockQuotesBuildsAllLists(t *testing.T) {
	svc := newTestService(t, defaultSource(), nil)
	ctx := context.Background()

	if _, err := svc.AddFavorite(ctx, alice, "ibm"); err != nil {
		t.Fatalf("add favorite: %v", err)
	}
	if _, err := svc.Transact(ctx, alice, Transaction{Side: "buy", Ticker: "GOOG", Quantity: 1}); err != nil {
		t.Fatalf("buy: %v", err)
	}

	resp, err := svc.GetStockQuotes(ctx, alice, StockRequest{
		SearchQuery:    "go",
		SearchRange:    quotes.Range{Length: 10},
		FavoritesRange: quotes.Range{Length: 10},
		SectorName:     "dow jones industrials",
		SectorRange:    quotes.Range{Start: 1, Length: 2},
	})
	if err != nil {
		t.Fatalf("get quotes: %v", err)
	}
	if got := tickersOf(resp.Search); !reflect.DeepEqual(got, []string{"GOOG", "GOOGL"}) {
		t.Fatalf("search got %v", got)
	}
	if got := tickersOf(resp.Favorites); !reflect.DeepEqual(got, []string{"IBM"}) || !resp.Favorites.Quotes[0].Favorite {
		t.Fatalf("favorites got %+v", resp.Favorites)
	}
	if got := tickersOf(resp.Sector); resp.Sector.Total != 5 || !reflect.DeepEqual(got, []string{"GE", "IBM"}) {
		t.Fatalf("sector got total=%d %v", resp.Sector.Total, got)
	}

	goog := resp.Search.Quotes[0]
	if goog.SharesOwned != 1 || goog.AvgPrice != 50_000 || goog.Name != "Google Inc. Class C" {
		t.Fatalf("unexpected GOOG row %+v", goog)
	}
	if resp.Cash != 50_000 || resp.NetWorth != 100_000 {
		t.Fatalf("cash=%d net=%d", resp.Cash, resp.NetWorth)
	}
	if resp.DisplayName != "alice" || len(resp.Messages) == 0 {
		t.Fatalf("unexpected header %+v", resp)
	}
}

func TestGetStockQuotesUnknownSectorIsEmpty(t *testing.T) {
	svc := newTestService(t, defaultSource(), nil)
	resp, err := svc.GetStockQuotes(context.Background(), alice, StockRequest{
		SectorName:  "NOT A SECTOR",
		SectorRange: quotes.Range{Length: 10},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Sector.Total != 0 || len(resp.Sector.Quotes) != 0 {
		t.Fatalf("got %+v", resp.Sector)
	}
}

func TestFavoritesRequireListedTicker(t *testing.T) {
	svc := newTestService(t, defaultSource(), nil)
	if _, err := svc.AddFavorite(context.Background(), alice, "AAPL"); !errors.Is(err, ErrInvalidTicker) {
		t.Fatalf("expected ErrInvalidTicker, got %v", err)
	}
	if _, err := svc.RemoveFavorite(context.Background(), alice, "1BAD"); !errors.Is(err, ErrInvalidTicker) {
		t.Fatalf("expected ErrInvalidTicker, got %v", err)
	}
}

func TestTransactWithoutQuoteIsInvalidTicker(t *testing.T) {
	src := defaultSource()
	src.err = errors.New("upstream down")
	svc := newTestService(t, src, nil)

	_, err := svc.Transact(context.Background(), alice, Transaction{Side: SideBuy, Ticker: "IBM", Quantity: 1})
	if !errors.Is(err, ErrInvalidTicker) {
		t.Fatalf("expected ErrInvalidTicker, got %v", err)
	}
	p, _ := svc.Player(context.Background(), alice)
	if p.Cash() != 100_000 {
		t.Fatalf("cash must be untouched, got %d", p.Cash())
	}
}

func TestTransactValidation(t *testing.T) {
	svc := newTestService(t, defaultSource(), nil)
	ctx := context.Background()
	tests := []struct {
		name string
		in   Transaction
		want error
	}{
		{name: "bad side", in: Transaction{Side: "hold", Ticker: "IBM", Quantity: 1}, want: ErrInvalidSide},
		{name: "zero quantity", in: Transaction{Side: SideBuy, Ticker: "IBM"}, want: ErrInvalidQuantity},
		{name: "unlisted", in: Transaction{Side: SideBuy, Ticker: "AAPL", Quantity: 1}, want: ErrInvalidTicker},
		{name: "too expensive", in: Transaction{Side: SideBuy, Ticker: "GOOG", Quantity: 3}, want: ErrInsufficientFunds},
		{name: "oversell", in: Transaction{Side: SideSell, Ticker: "GE", Quantity: 1}, want: ErrInsufficientShares},
	}
	for _, tc := range tests {
		if _, err := svc.Transact(ctx, alice, tc.in); !errors.Is(err, tc.want) {
			t.Fatalf("%s: got %v want %v", tc.name, err, tc.want)
		}
	}
	if _, err := svc.Transact(ctx, Identity{}, Transaction{Side: SideBuy, Ticker: "IBM", Quantity: 1}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("anonymous caller: got %v", err)
	}
}

func TestTransactDuplicateKey(t *testing.T) {
	svc := newTestService(t, defaultSource(), nil)
	ctx := context.Background()
	tx := Transaction{Side: SideBuy, Ticker: "IBM", Quantity: 2, IdempotencyKey: "abc"}

	res, err := svc.Transact(ctx, alice, tx)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	if res.Price != 12_500 || res.Total != 25_000 || res.Cash != 75_000 {
		t.Fatalf("unexpected result %+v", res)
	}
	if _, err := svc.Transact(ctx, alice, tx); !errors.Is(err, ErrDuplicateIdempotency) {
		t.Fatalf("expected duplicate, got %v", err)
	}
}

func TestLeaderboardOrdering(t *testing.T) {
	svc := newTestService(t, defaultSource(), nil)
	ctx := context.Background()
	bob := Identity{UserID: "u-bob", DisplayName: "bob"}
	carol := Identity{UserID: "u-carol", DisplayName: "carol"}

	for _, id := range []Identity{alice, bob, carol} {
		if _, err := svc.Player(ctx, id); err != nil {
			t.Fatal(err)
		}
	}
	// buying at the quoted price leaves net worth unchanged, so all three tie
	if _, err := svc.Transact(ctx, carol, Transaction{Side: SideBuy, Ticker: "IBM", Quantity: 4}); err != nil {
		t.Fatal(err)
	}

	rows, err := svc.Leaderboard(ctx, 0)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	var names []string
	for i, r := range rows {
		if r.Rank != int64(i+1) {
			t.Fatalf("row %d has rank %d", i, r.Rank)
		}
		names = append(names, r.DisplayName)
	}
	if !reflect.DeepEqual(names, []string{"alice", "bob", "carol"}) {
		t.Fatalf("ties should break by name, got %v", names)
	}

	top, err := svc.Leaderboard(ctx, 1)
	if err != nil || len(top) != 1 {
		t.Fatalf("limit: %v %v", top, err)
	}
}

func TestLeaderboardMarksToMarket(t *testing.T) {
	src := defaultSource()
	svc := newTestService(t, src, nil)
	ctx := context.Background()
	bob := Identity{UserID: "u-bob", DisplayName: "bob"}

	if _, err := svc.Player(ctx, alice); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Transact(ctx, bob, Transaction{Side: SideBuy, Ticker: "GE", Quantity: 10}); err != nil {
		t.Fatal(err)
	}
	// the cached GE quote is still fresh, so change the price through a new
	// service sharing the ledger and a fresh cache
	src.mu.Lock()
	src.prices["GE"] = quotes.Price{Price: 3_000, Change: "+15.00"}
	src.mu.Unlock()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repriced := NewService(svc.engine, quotes.NewCache(nil, src, logger), svc.ledger, nil, logger)

	rows, err := repriced.Leaderboard(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if rows[0].DisplayName != "bob" || rows[0].NetWorth != 115_000 {
		t.Fatalf("got %+v", rows)
	}
}

func TestStatusReportsPositions(t *testing.T) {
	svc := newTestService(t, defaultSource(), nil)
	ctx := context.Background()
	if _, err := svc.Transact(ctx, alice, Transaction{Side: SideBuy, Ticker: "XOM", Quantity: 2}); err != nil {
		t.Fatal(err)
	}
	st, err := svc.Status(ctx, alice)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if len(st.Positions) != 1 {
		t.Fatalf("got %+v", st.Positions)
	}
	pos := st.Positions[0]
	if pos.Ticker != "XOM" || pos.Shares != 2 || pos.AvgPrice != 6_000 || pos.CurrentPrice != 6_000 || pos.Unrealized != 0 {
		t.Fatalf("unexpected position %+v", pos)
	}
	if st.Cash != 88_000 || st.NetWorth != 100_000 {
		t.Fatalf("cash=%d net=%d", st.Cash, st.NetWorth)
	}
}

func TestMutationsAreWrittenThrough(t *testing.T) {
	store := &recordingStore{err: errors.New("db down")}
	svc := newTestService(t, defaultSource(), store)
	ctx := context.Background()

	if _, err := svc.AddFavorite(ctx, alice, "IBM"); err != nil {
		t.Fatalf("save failures must not surface: %v", err)
	}
	// creation + favorite
	if got := store.Saves(); got != 2 {
		t.Fatalf("expected 2 saves, got %d", got)
	}
	if _, err := svc.AddFavorite(ctx, alice, "IBM"); err != nil {
		t.Fatal(err)
	}
	if got := store.Saves(); got != 2 {
		t.Fatalf("no-op favorite should not save, got %d", got)
	}
	if _, err := svc.Transact(ctx, alice, Transaction{Side: SideBuy, Ticker: "IBM", Quantity: 1}); err != nil {
		t.Fatal(err)
	}
	if got := store.Saves(); got != 3 {
		t.Fatalf("expected 3 saves, got %d", got)
	}
}

func TestLoadPlayersRestoresLedger(t *testing.T) {
	store := &recordingStore{load: []PlayerSnapshot{{
		UserID:      "u-dave",
		DisplayName: "dave",
		Cash:        1_234,
		Holdings:    map[string]Holding{"IBM": {Shares: 1, TotalPaid: 10_000}},
	}}}
	svc := newTestService(t, defaultSource(), store)
	n, err := svc.LoadPlayers(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("n=%d err=%v", n, err)
	}
	st, err := svc.Status(context.Background(), Identity{UserID: "u-dave"})
	if err != nil {
		t.Fatal(err)
	}
	if st.Cash != 1_234 || st.NetWorth != 1_234+12_500 {
		t.Fatalf("got %+v", st)
	}
}

func TestConcurrentSavesKeepNewestSnapshot(t *testing.T) {
	store := &stallingStore{
		stallOn: 2, // first save after player creation
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	svc := newTestService(t, defaultSource(), store)
	ctx := context.Background()
	if _, err := svc.Player(ctx, alice); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := svc.Transact(ctx, alice, Transaction{Side: SideBuy, Ticker: "GE", Quantity: 1})
		errs <- err
	}()
	<-store.entered

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := svc.Transact(ctx, alice, Transaction{Side: SideBuy, Ticker: "IBM", Quantity: 1})
		errs <- err
	}()
	p, _ := svc.ledger.Get(alice.UserID)
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := p.Holding("IBM"); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("second trade never applied")
		}
		time.Sleep(time.Millisecond)
	}
	close(store.release)
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatal(err)
		}
	}

	store.mu.Lock()
	last := store.last
	store.mu.Unlock()
	if _, ok := last.Holdings["IBM"]; !ok {
		t.Fatalf("older snapshot overwrote newer one: %+v", last.Holdings)
	}
	if _, ok := last.Holdings["GE"]; !ok || last.Cash != 86_000 {
		t.Fatalf("unexpected persisted state cash=%d holdings=%+v", last.Cash, last.Holdings)
	}
}

func TestStatusSkipsOverflowingValuation(t *testing.T) {
	store := &recordingStore{load: []PlayerSnapshot{{
		UserID:      "u-erin",
		DisplayName: "erin",
		Cash:        100,
		Holdings:    map[string]Holding{"IBM": {Shares: 1_000_000_000_000_000, TotalPaid: 5_000}},
	}}}
	svc := newTestService(t, defaultSource(), store)
	if _, err := svc.LoadPlayers(context.Background()); err != nil {
		t.Fatal(err)
	}
	st, err := svc.Status(context.Background(), Identity{UserID: "u-erin"})
	if err != nil {
		t.Fatal(err)
	}
	pos := st.Positions[0]
	if pos.CurrentPrice != 12_500 || pos.Unrealized != 0 {
		t.Fatalf("unexpected position %+v", pos)
	}
	if st.NetWorth != 5_100 {
		t.Fatalf("net worth should fall back to cost, got %d", st.NetWorth)
	}
}
