package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"stockwatch/internal/auth"
	"stockwatch/internal/game"
)

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// StatusError is a response the API actually sent, as opposed to a transport
// failure.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api status %d: %s", e.Code, e.Message)
}

// IsNetworkError reports whether err never reached the API, which makes the
// request safe to queue and retry.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		switch se.Code {
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	return !errors.Is(err, context.Canceled)
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) Signup(ctx context.Context, email, password, username string) (auth.Session, error) {
	var out auth.Session
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/auth/signup", "", map[string]any{
		"email":    email,
		"password": password,
		"username": username,
	}, &out, "")
	return out, err
}

func (c *Client) Login(ctx context.Context, email, password string) (auth.Session, error) {
	var out auth.Session
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/auth/login", "", map[string]any{
		"email":    email,
		"password": password,
	}, &out, "")
	return out, err
}

func (c *Client) Quotes(ctx context.Context, accessToken string, req game.StockRequest) (game.StockResponse, error) {
	var out game.StockResponse
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/quotes", accessToken, req, &out, "")
	return out, err
}

func (c *Client) Sectors(ctx context.Context, accessToken string) ([]string, error) {
	var out struct {
		Sectors []string `json:"sectors"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/sectors", accessToken, nil, &out, "")
	return out.Sectors, err
}

func (c *Client) AddFavorite(ctx context.Context, accessToken, ticker, idem string) (map[string]any, error) {
	return c.Do(ctx, http.MethodPost, "/v1/favorites", accessToken, map[string]any{"ticker": ticker}, idem)
}

func (c *Client) RemoveFavorite(ctx context.Context, accessToken, ticker, idem string) (map[string]any, error) {
	return c.Do(ctx, http.MethodDelete, "/v1/favorites/"+url.PathEscape(ticker), accessToken, nil, idem)
}

func (c *Client) Transact(ctx context.Context, accessToken string, tx game.Transaction, idem string) (game.TransactionResult, error) {
	var out game.TransactionResult
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/transactions", accessToken, TransactionBody(tx), &out, idem)
	return out, err
}

// TransactionBody is the wire form of a transaction, also used when queueing.
func TransactionBody(tx game.Transaction) map[string]any {
	return map[string]any{
		"side":     tx.Side,
		"ticker":   tx.Ticker,
		"quantity": tx.Quantity,
	}
}

func (c *Client) Leaderboard(ctx context.Context, accessToken string, limit int) ([]game.LeaderboardRow, error) {
	path := "/v1/leaderboard"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out struct {
		Rows []game.LeaderboardRow `json:"rows"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, path, accessToken, nil, &out, "")
	return out.Rows, err
}

func (c *Client) Status(ctx context.Context, accessToken string) (game.StatusView, error) {
	var out game.StatusView
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/status", accessToken, nil, &out, "")
	return out, err
}

func (c *Client) Do(ctx context.Context, method, path, accessToken string, body map[string]any, idem string) (map[string]any, error) {
	var out map[string]any
	var in any
	if body != nil {
		in = body
	}
	err := c.jsonRequest(ctx, method, path, accessToken, in, &out, idem)
	return out, err
}

func (c *Client) jsonRequest(ctx context.Context, method, path, accessToken string, in any, out any, idem string) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	if idem != "" {
		req.Header.Set("Idempotency-Key", idem)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Code: resp.StatusCode, Message: errorMessage(raw)}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func errorMessage(raw []byte) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		return body.Error
	}
	return strings.TrimSpace(string(raw))
}
