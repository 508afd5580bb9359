package quotes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// maxSymbolsPerCall bounds the query string of a single upstream request.
const maxSymbolsPerCall = 100

var _ Source = (*HTTPSource)(nil)

// HTTPSource reads the finance "info" format:
//
//	// [ {"t":"GOOG","l":"1,234.56","c":"+1.23"}, ... ]
//
// The leading "//" guard is optional.
type HTTPSource struct {
	baseURL    string
	httpClient *http.Client
}

type infoRow struct {
	Ticker string `json:"t"`
	Last   string `json:"l"`
	Change string `json:"c"`
}

func NewHTTPSource(baseURL string) *HTTPSource {
	return &HTTPSource{
		baseURL: strings.TrimSpace(baseURL),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (h *HTTPSource) Fetch(ctx context.Context, symbols []string) (map[string]Price, error) {
	out := make(map[string]Price, len(symbols))
	for start := 0; start < len(symbols); start += maxSymbolsPerCall {
		end := start + maxSymbolsPerCall
		if end > len(symbols) {
			end = len(symbols)
		}
		if err := h.fetchBatch(ctx, symbols[start:end], out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (h *HTTPSource) fetchBatch(ctx context.Context, symbols []string, out map[string]Price) error {
	u, err := url.Parse(h.baseURL)
	if err != nil {
		return fmt.Errorf("parse quote source url: %w", err)
	}
	q := u.Query()
	q.Set("q", strings.Join(symbols, ","))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := h.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("quote source request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("quote source status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read quote source: %w", err)
	}
	raw = bytes.TrimSpace(raw)
	raw = bytes.TrimPrefix(raw, []byte("//"))

	var rows []infoRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		return fmt.Errorf("decode quote source: %w", err)
	}
	for _, row := range rows {
		sym := strings.ToUpper(strings.TrimSpace(row.Ticker))
		cents, err := parseCents(row.Last)
		if sym == "" || err != nil {
			continue
		}
		out[sym] = Price{Price: cents, Change: strings.TrimSpace(row.Change)}
	}
	return nil
}

// parseCents turns "1,234.567" into 123457.
func parseCents(s string) (int64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	if d.Sign() <= 0 {
		return 0, fmt.Errorf("non-positive price %q", s)
	}
	return d.Shift(2).Round(0).IntPart(), nil
}
