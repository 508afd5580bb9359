package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	AuthModeDev      = "dev"
	AuthModeSupabase = "supabase"

	QuoteSourceSim  = "sim"
	QuoteSourceHTTP = "http"
)

// QuoteConfig is shared by the API and the warmer.
type QuoteConfig struct {
	CatalogPath string
	Source      string
	SourceURL   string
	TTL         time.Duration
	Volatility  string
	RedisURL    string
}

type APIConfig struct {
	Quotes           QuoteConfig
	Addr             string
	AuthMode         string
	SupabaseURL      string
	SupabaseAnonKey  string
	DatabaseURL      string
	DBMaxConns       int32
	InitialCashCents int64
	LogLevel         slog.Level
}

type WorkerConfig struct {
	Quotes      QuoteConfig
	WarmEvery   time.Duration
	WarmTickers []string
	RunOnce     bool
	LogLevel    slog.Level
}

type CLIConfig struct {
	APIBaseURL string
}

// LoadDotEnv copies a .env file in the working directory into the process
// environment. Variables already set win.
func LoadDotEnv() bool {
	return godotenv.Load() == nil
}

func LoadAPIFromEnv() (APIConfig, error) {
	addr := os.Getenv("PORT")
	if addr != "" {
		if !strings.HasPrefix(addr, ":") {
			addr = ":" + addr
		}
	} else {
		addr = envDefault("STOCKS_API_ADDR", ":8080")
	}

	quotes, err := loadQuotes()
	if err != nil {
		return APIConfig{}, err
	}
	cfg := APIConfig{
		Quotes:           quotes,
		Addr:             addr,
		AuthMode:         strings.ToLower(envDefault("STOCKS_AUTH_MODE", AuthModeDev)),
		SupabaseURL:      strings.TrimRight(strings.TrimSpace(os.Getenv("SUPABASE_URL")), "/"),
		SupabaseAnonKey:  strings.TrimSpace(os.Getenv("SUPABASE_ANON_KEY")),
		DatabaseURL:      strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DBMaxConns:       int32(envInt64Default("DB_MAX_CONNS", 10)),
		InitialCashCents: envInt64Default("STOCKS_INITIAL_CASH_CENTS", 1_000_000),
		LogLevel:         envLogLevel(),
	}
	switch cfg.AuthMode {
	case AuthModeDev:
	case AuthModeSupabase:
		if cfg.SupabaseURL == "" {
			return cfg, fmt.Errorf("SUPABASE_URL is required")
		}
		if cfg.SupabaseAnonKey == "" {
			return cfg, fmt.Errorf("SUPABASE_ANON_KEY is required")
		}
	default:
		return cfg, fmt.Errorf("STOCKS_AUTH_MODE must be dev or supabase, got %q", cfg.AuthMode)
	}
	if cfg.InitialCashCents <= 0 {
		return cfg, fmt.Errorf("STOCKS_INITIAL_CASH_CENTS must be > 0")
	}
	if cfg.DBMaxConns <= 0 {
		return cfg, fmt.Errorf("DB_MAX_CONNS must be > 0")
	}
	return cfg, nil
}

func LoadWorkerFromEnv() (WorkerConfig, error) {
	quotes, err := loadQuotes()
	if err != nil {
		return WorkerConfig{}, err
	}
	cfg := WorkerConfig{
		Quotes:      quotes,
		WarmEvery:   envDurationDefault("STOCKS_WARM_EVERY", 4*time.Second),
		WarmTickers: envList("STOCKS_WARM_TICKERS"),
		RunOnce:     envBoolDefault("STOCKS_WORKER_RUN_ONCE", false),
		LogLevel:    envLogLevel(),
	}
	if cfg.Quotes.RedisURL == "" {
		return cfg, fmt.Errorf("REDIS_URL is required")
	}
	if cfg.WarmEvery <= 0 {
		return cfg, fmt.Errorf("STOCKS_WARM_EVERY must be > 0")
	}
	return cfg, nil
}

func LoadCLIFromEnv() CLIConfig {
	return CLIConfig{
		APIBaseURL: strings.TrimRight(envDefault("STK_API_BASE_URL", "http://localhost:8080"), "/"),
	}
}

func loadQuotes() (QuoteConfig, error) {
	cfg := QuoteConfig{
		CatalogPath: strings.TrimSpace(os.Getenv("STOCKS_CATALOG_PATH")),
		Source:      strings.ToLower(envDefault("STOCKS_QUOTE_SOURCE", QuoteSourceSim)),
		SourceURL:   strings.TrimSpace(os.Getenv("STOCKS_QUOTE_SOURCE_URL")),
		TTL:         envDurationDefault("STOCKS_QUOTE_TTL", 5*time.Second),
		Volatility:  envVolatilityDefault(),
		RedisURL:    strings.TrimSpace(os.Getenv("REDIS_URL")),
	}
	switch cfg.Source {
	case QuoteSourceSim:
	case QuoteSourceHTTP:
		if cfg.SourceURL == "" {
			return cfg, fmt.Errorf("STOCKS_QUOTE_SOURCE_URL is required for the http source")
		}
	default:
		return cfg, fmt.Errorf("STOCKS_QUOTE_SOURCE must be sim or http, got %q", cfg.Source)
	}
	if cfg.TTL <= 0 {
		return cfg, fmt.Errorf("STOCKS_QUOTE_TTL must be > 0")
	}
	return cfg, nil
}

func envDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envDurationDefault(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envInt64Default(key string, fallback int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func envList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.ToUpper(strings.TrimSpace(part)); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func envLogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("STOCKS_LOG_LEVEL"))) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func envVolatilityDefault() string {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("STOCKS_VOLATILITY")))
	switch v {
	case "calm", "mor", "wild":
		return v
	default:
		return "mor"
	}
}

func envBoolDefault(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
