package game

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	CentsPerDollar = int64(100)

	DefaultInitialCash = int64(10_000) * CentsPerDollar

	// MaxStatusMessages bounds the per-player activity log.
	MaxStatusMessages = 20

	maxClaimedKeys = 512
)

const (
	SideBuy  = "buy"
	SideSell = "sell"
)

var (
	ErrInvalidTicker        = errors.New("invalid ticker")
	ErrInvalidQuantity      = errors.New("quantity must be > 0")
	ErrInvalidSide          = errors.New("side must be buy or sell")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInsufficientShares   = errors.New("insufficient shares")
	ErrDuplicateIdempotency = errors.New("duplicate idempotency key")
	ErrUnauthorized         = errors.New("unauthorized")
)

var tickerRE = regexp.MustCompile(`^[A-Z][A-Z0-9.\-]{0,9}$`)

func NormalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}

func ValidateTicker(ticker string) error {
	if !tickerRE.MatchString(NormalizeTicker(ticker)) {
		return fmt.Errorf("%w: %q", ErrInvalidTicker, ticker)
	}
	return nil
}

func DollarsToCents(v float64) int64 {
	return int64(math.Round(v * float64(CentsPerDollar)))
}

func CentsToDollars(v int64) float64 {
	return float64(v) / float64(CentsPerDollar)
}

// FormatCents renders cents as a dollar amount, e.g. "$1,234.50".
func FormatCents(v int64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	s := decimal.New(v, -2).StringFixed(2)
	whole, frac, _ := strings.Cut(s, ".")
	return sign + "$" + commaGroup(whole) + "." + frac
}

func commaGroup(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	pre := len(digits) % 3
	if pre > 0 {
		b.WriteString(digits[:pre])
	}
	for i := pre; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

func notionalCents(priceCents, shares int64) (int64, error) {
	v := new(big.Int).Mul(big.NewInt(priceCents), big.NewInt(shares))
	if !v.IsInt64() {
		return 0, fmt.Errorf("notional overflow")
	}
	return v.Int64(), nil
}

// scaleCents returns cents*num/den truncated toward zero.
func scaleCents(cents, num, den int64) (int64, error) {
	if den == 0 {
		return 0, fmt.Errorf("scale by zero")
	}
	v := new(big.Int).Mul(big.NewInt(cents), big.NewInt(num))
	v.Quo(v, big.NewInt(den))
	if !v.IsInt64() {
		return 0, fmt.Errorf("notional overflow")
	}
	return v.Int64(), nil
}

// averageCost is totalPaid/shares rounded half up.
func averageCost(totalPaid, shares int64) int64 {
	if shares <= 0 {
		return 0
	}
	return (totalPaid + shares/2) / shares
}

// DisplayNameFromEmail derives a player name from the mailbox part.
func DisplayNameFromEmail(email string) string {
	email = strings.TrimSpace(strings.ToLower(email))
	local, _, _ := strings.Cut(email, "@")
	if local == "" {
		return "player"
	}
	return SanitizeName(local)
}

func SanitizeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "player"
	}
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			out = append(out, r)
		} else {
			out = append(out, '_')
		}
	}
	res := strings.Trim(string(out), "_")
	if len(res) < 3 {
		res = "player_" + res
	}
	if len(res) > 24 {
		res = res[:24]
	}
	return res
}
