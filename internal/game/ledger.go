package game

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

type Holding struct {
	Shares    int64 `json:"shares"`
	TotalPaid int64 `json:"total_paid"`
}

func (h Holding) AvgPrice() int64 {
	return averageCost(h.TotalPaid, h.Shares)
}

// PlayerSnapshot is the persisted form of a Player.
type PlayerSnapshot struct {
	UserID          string             `json:"user_id"`
	DisplayName     string             `json:"display_name"`
	Cash            int64              `json:"cash"`
	Holdings        map[string]Holding `json:"holdings"`
	Favorites       []string           `json:"favorites"`
	Messages        []string           `json:"messages"`
	IdempotencyKeys []string           `json:"idempotency_keys,omitempty"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

// Player is one user's portfolio. All methods are safe for concurrent use.
type Player struct {
	mu sync.Mutex
	// saveMu orders write-through saves so a later snapshot is never
	// overwritten by an earlier one.
	saveMu sync.Mutex

	userID      string
	displayName string
	cash        int64
	holdings    map[string]Holding
	favorites   map[string]struct{}
	messages    []string
	claimed     map[string]struct{}
	claimOrder  []string
	updatedAt   time.Time
}

func newPlayer(userID, displayName string, cash int64) *Player {
	return &Player{
		userID:      userID,
		displayName: displayName,
		cash:        cash,
		holdings:    make(map[string]Holding),
		favorites:   make(map[string]struct{}),
		claimed:     make(map[string]struct{}),
		updatedAt:   time.Now().UTC(),
	}
}

func playerFromSnapshot(s PlayerSnapshot) *Player {
	p := newPlayer(s.UserID, s.DisplayName, s.Cash)
	for t, h := range s.Holdings {
		if h.Shares > 0 {
			p.holdings[t] = h
		}
	}
	for _, t := range s.Favorites {
		p.favorites[t] = struct{}{}
	}
	p.messages = append(p.messages, s.Messages...)
	for _, k := range s.IdempotencyKeys {
		p.rememberKey(k)
	}
	if !s.UpdatedAt.IsZero() {
		p.updatedAt = s.UpdatedAt
	}
	return p
}

func (p *Player) UserID() string {
	return p.userID
}

func (p *Player) DisplayName() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.displayName
}

func (p *Player) Cash() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cash
}

func (p *Player) Holding(ticker string) (Holding, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	h, ok := p.holdings[ticker]
	return h, ok
}

func (p *Player) Holdings() map[string]Holding {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]Holding, len(p.holdings))
	for t, h := range p.holdings {
		out[t] = h
	}
	return out
}

func (p *Player) IsFavorite(ticker string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.favorites[ticker]
	return ok
}

// Favorites returns the favorite tickers in ascending order.
func (p *Player) Favorites() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.favorites))
	for t := range p.favorites {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func (p *Player) Messages() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.messages...)
}

// AddFavorite reports whether the set changed.
func (p *Player) AddFavorite(ticker string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.favorites[ticker]; ok {
		return false
	}
	p.favorites[ticker] = struct{}{}
	p.logLocked("Added %s to favorites", ticker)
	return true
}

func (p *Player) RemoveFavorite(ticker string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.favorites[ticker]; !ok {
		return false
	}
	delete(p.favorites, ticker)
	p.logLocked("Removed %s from favorites", ticker)
	return true
}

func (p *Player) Buy(ticker string, qty, price int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buyLocked(ticker, qty, price)
}

func (p *Player) Sell(ticker string, qty, price int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sellLocked(ticker, qty, price)
}

// Trade applies a buy or sell and records key so a replay is rejected.
// An empty key disables the check.
func (p *Player) Trade(side, ticker string, qty, price int64, key string) (TransactionResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	key = strings.TrimSpace(key)
	if key != "" {
		if _, dup := p.claimed[key]; dup {
			return TransactionResult{}, ErrDuplicateIdempotency
		}
	}

	var err error
	switch side {
	case SideBuy:
		err = p.buyLocked(ticker, qty, price)
	case SideSell:
		err = p.sellLocked(ticker, qty, price)
	default:
		err = ErrInvalidSide
	}
	if err != nil {
		return TransactionResult{}, err
	}
	if key != "" {
		p.rememberKey(key)
	}
	total, _ := notionalCents(price, qty)
	return TransactionResult{
		Side:     side,
		Ticker:   ticker,
		Quantity: qty,
		Price:    price,
		Total:    total,
		Cash:     p.cash,
	}, nil
}

func (p *Player) buyLocked(ticker string, qty, price int64) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if price <= 0 {
		return fmt.Errorf("%w: no price for %s", ErrInvalidTicker, ticker)
	}
	cost, err := notionalCents(price, qty)
	if err != nil {
		return err
	}
	if cost > p.cash {
		return fmt.Errorf("%w: need %s, have %s", ErrInsufficientFunds, FormatCents(cost), FormatCents(p.cash))
	}
	h := p.holdings[ticker]
	h.Shares += qty
	h.TotalPaid += cost
	p.holdings[ticker] = h
	p.cash -= cost
	p.logLocked("Bought %d shares of %s at %s", qty, ticker, FormatCents(price))
	return nil
}

func (p *Player) sellLocked(ticker string, qty, price int64) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if price <= 0 {
		return fmt.Errorf("%w: no price for %s", ErrInvalidTicker, ticker)
	}
	h, ok := p.holdings[ticker]
	if !ok || h.Shares < qty {
		return fmt.Errorf("%w: own %d shares of %s", ErrInsufficientShares, h.Shares, ticker)
	}
	proceeds, err := notionalCents(price, qty)
	if err != nil {
		return err
	}
	remaining := h.Shares - qty
	if remaining == 0 {
		delete(p.holdings, ticker)
	} else {
		// basis shrinks in proportion to the shares sold
		basis, err := scaleCents(h.TotalPaid, remaining, h.Shares)
		if err != nil {
			return err
		}
		h.TotalPaid = basis
		h.Shares = remaining
		p.holdings[ticker] = h
	}
	p.cash += proceeds
	p.logLocked("Sold %d shares of %s at %s", qty, ticker, FormatCents(price))
	return nil
}

func (p *Player) logLocked(format string, args ...any) {
	p.messages = append(p.messages, fmt.Sprintf(format, args...))
	if over := len(p.messages) - MaxStatusMessages; over > 0 {
		p.messages = append([]string(nil), p.messages[over:]...)
	}
	p.updatedAt = time.Now().UTC()
}

func (p *Player) rememberKey(key string) {
	if _, ok := p.claimed[key]; ok {
		return
	}
	p.claimed[key] = struct{}{}
	p.claimOrder = append(p.claimOrder, key)
	if len(p.claimOrder) > maxClaimedKeys {
		oldest := p.claimOrder[0]
		p.claimOrder = p.claimOrder[1:]
		delete(p.claimed, oldest)
	}
}

func (p *Player) Snapshot() PlayerSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := PlayerSnapshot{
		UserID:          p.userID,
		DisplayName:     p.displayName,
		Cash:            p.cash,
		Holdings:        make(map[string]Holding, len(p.holdings)),
		Favorites:       make([]string, 0, len(p.favorites)),
		Messages:        append([]string(nil), p.messages...),
		IdempotencyKeys: append([]string(nil), p.claimOrder...),
		UpdatedAt:       p.updatedAt,
	}
	for t, h := range p.holdings {
		s.Holdings[t] = h
	}
	for t := range p.favorites {
		s.Favorites = append(s.Favorites, t)
	}
	sort.Strings(s.Favorites)
	return s
}

// Ledger indexes players by user identity.
type Ledger struct {
	mu          sync.RWMutex
	players     map[string]*Player
	initialCash int64
}

func NewLedger(initialCash int64) *Ledger {
	if initialCash <= 0 {
		initialCash = DefaultInitialCash
	}
	return &Ledger{
		players:     make(map[string]*Player),
		initialCash: initialCash,
	}
}

// GetOrCreate returns the player for userID, creating it on first access.
// Concurrent first accesses all observe the same *Player; created is true for
// exactly one of them.
func (l *Ledger) GetOrCreate(userID, displayName string) (p *Player, created bool) {
	l.mu.RLock()
	p, ok := l.players[userID]
	l.mu.RUnlock()
	if ok {
		return p, false
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if p, ok := l.players[userID]; ok {
		return p, false
	}
	if strings.TrimSpace(displayName) == "" {
		displayName = userID
	}
	p = newPlayer(userID, displayName, l.initialCash)
	p.logLocked("Welcome %s, you have %s to invest", displayName, FormatCents(l.initialCash))
	l.players[userID] = p
	return p, true
}

func (l *Ledger) Get(userID string) (*Player, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.players[userID]
	return p, ok
}

func (l *Ledger) All() []*Player {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*Player, 0, len(l.players))
	for _, p := range l.players {
		out = append(out, p)
	}
	return out
}

func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.players)
}

// Restore loads persisted players, replacing any in-memory entry.
func (l *Ledger) Restore(snapshots []PlayerSnapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, s := range snapshots {
		if s.UserID == "" {
			continue
		}
		l.players[s.UserID] = playerFromSnapshot(s)
	}
}
