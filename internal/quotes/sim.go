package quotes

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

const (
	minSimPriceCents = int64(1)
	maxSimPriceCents = int64(100_000_000)

	// Each fetch is a small slice of a market tick.
	simTickScale = 0.1
)

type marketDynamics struct {
	NoiseScale        float64
	ShockProb         float64
	ShockScale        float64
	ExtremeShockProb  float64
	ExtremeShockScale float64
	MeanReversion     float64
	RegimeSwitchProb  float64
	MaxDropPerTick    float64
}

func volatilityParams(mode string) marketDynamics {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "calm":
		return marketDynamics{
			NoiseScale:        0.020,
			ShockProb:         0.05,
			ShockScale:        0.09,
			ExtremeShockProb:  0.008,
			ExtremeShockScale: 0.22,
			MeanReversion:     0.03,
			RegimeSwitchProb:  0.04,
			MaxDropPerTick:    1.20,
		}
	case "wild":
		return marketDynamics{
			NoiseScale:        0.060,
			ShockProb:         0.18,
			ShockScale:        0.20,
			ExtremeShockProb:  0.050,
			ExtremeShockScale: 0.60,
			MeanReversion:     0.010,
			RegimeSwitchProb:  0.11,
			MaxDropPerTick:    2.60,
		}
	default:
		return marketDynamics{
			NoiseScale:        0.038,
			ShockProb:         0.11,
			ShockScale:        0.14,
			ExtremeShockProb:  0.020,
			ExtremeShockScale: 0.35,
			MeanReversion:     0.018,
			RegimeSwitchProb:  0.07,
			MaxDropPerTick:    2.00,
		}
	}
}

type simTicker struct {
	open   int64
	anchor int64
	price  int64
}

var _ Source = (*SimSource)(nil)

// SimSource is a random-walk market used when no real feed is configured.
// Unknown symbols (per the known filter) are never priced.
type SimSource struct {
	mu      sync.Mutex
	rand    *rand.Rand
	params  marketDynamics
	regime  string
	known   func(string) bool
	tickers map[string]*simTicker
}

func NewSimSource(volatility string, seed int64, known func(string) bool) *SimSource {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &SimSource{
		rand:    rand.New(rand.NewSource(seed)),
		params:  volatilityParams(volatility),
		regime:  "neutral",
		known:   known,
		tickers: make(map[string]*simTicker),
	}
}

func (s *SimSource) Fetch(ctx context.Context, symbols []string) (map[string]Price, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rand.Float64() < s.params.RegimeSwitchProb {
		s.regime = randomRegime(s.rand.Float64())
	}

	out := make(map[string]Price, len(symbols))
	for _, sym := range symbols {
		if s.known != nil && !s.known(sym) {
			continue
		}
		st, ok := s.tickers[sym]
		if !ok {
			base := basePriceCents(sym)
			st = &simTicker{open: base, anchor: base, price: base}
			s.tickers[sym] = st
		}
		st.price = s.step(st)
		out[sym] = Price{Price: st.price, Change: formatChange(st.price - st.open)}
	}
	return out, nil
}

func (s *SimSource) step(st *simTicker) int64 {
	p := s.params
	ret := regimeDrift(s.regime) + p.NoiseScale*normalish(s.rand.Float64()) + meanReversion(st.price, st.anchor, p.MeanReversion)
	if s.rand.Float64() < p.ShockProb {
		ret += signedShock(s.rand.Float64(), s.rand.Float64(), p.ShockScale)
	}
	if s.rand.Float64() < p.ExtremeShockProb {
		ret += signedShock(s.rand.Float64(), s.rand.Float64(), p.ExtremeShockScale)
	}
	next := evolvePrice(st.price, ret*simTickScale, p.MaxDropPerTick)
	if next < minSimPriceCents {
		next = minSimPriceCents
	}
	if next > maxSimPriceCents {
		next = maxSimPriceCents
	}
	return next
}

// basePriceCents derives a stable opening price between $5 and $500.
func basePriceCents(symbol string) int64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(symbol))
	return 500 + int64(h.Sum32()%49_500)
}

func randomRegime(seed float64) string {
	switch {
	case seed < 0.33:
		return "bear"
	case seed < 0.66:
		return "neutral"
	default:
		return "bull"
	}
}

func regimeDrift(regime string) float64 {
	switch regime {
	case "bull":
		return 0.0085
	case "bear":
		return -0.0085
	default:
		return 0.0000
	}
}

func meanReversion(price, anchor int64, strength float64) float64 {
	if anchor <= 0 {
		return 0
	}
	return strength * (float64(anchor-price) / float64(anchor))
}

func normalish(seed float64) float64 {
	return (seed + seed - 1)
}

func signedShock(magSeed, signSeed, base float64) float64 {
	mag := base * (0.35 + 2.8*magSeed*magSeed)
	if signSeed < 0.5 {
		return -mag
	}
	return mag
}

func evolvePrice(price int64, ret, maxDropPerTick float64) int64 {
	if price <= 0 {
		return 1
	}
	// Bound only the downside; upside can run.
	if ret < -maxDropPerTick {
		ret = -maxDropPerTick
	}
	next := int64(math.Round(float64(price) * math.Exp(ret)))
	if next < 1 {
		next = 1
	}
	return next
}

// formatChange renders a signed cent delta as "+1.23" / "-0.40".
func formatChange(deltaCents int64) string {
	d := decimal.New(deltaCents, -2)
	if d.Sign() >= 0 {
		return "+" + d.StringFixed(2)
	}
	return d.StringFixed(2)
}
