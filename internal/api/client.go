// Package api is the REST client for the remote trading service. It covers
// authentication, quotes, order submission, and portfolio reads. Every
// authenticated request carries the session's bearer token; any 401-class
// response invalidates the session so the caller is forced back to login.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tradedesk/internal/model"
	"tradedesk/internal/session"
)

var routes = map[string]string{
	"auth.login": "/auth/login",

	"trading.quote":    "/trading/quote",
	"trading.buy":      "/trading/buy",
	"trading.sell":     "/trading/sell",
	"trading.sell_all": "/trading/sell-all",

	"portfolio.mine":    "/portfolios/me",
	"portfolio.summary": "/portfolios/%d/summary",
	"positions.list":    "/positions/portfolio/%d/summaries",
	"orders.list":       "/orders/portfolio/%d",
}

// Config configures the Client.
type Config struct {
	BaseURL string        // e.g. http://localhost:8080/api/v1
	Timeout time.Duration // default 7s
}

// Client talks to the trading service on behalf of one session.
type Client struct {
	baseURL    string
	httpClient *http.Client
	session    *session.Session
	log        *slog.Logger
}

// New creates a Client bound to the given session.
func New(cfg Config, sess *session.Session, log *slog.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 7 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		session:    sess,
		log:        log,
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	TOTPCode string `json:"totpCode,omitempty"`
}

type loginResponse struct {
	AccessToken string `json:"accessToken"`
	UserID      int64  `json:"userId"`
	Username    string `json:"username"`
}

type portfolioResponse struct {
	ID          int64 `json:"id"`
	UserID      int64 `json:"userId"`
	CashBalance any   `json:"cashBalance"`
}

// Login authenticates against the trading service and establishes the
// session, then resolves the user's portfolio id. totpCode may be empty
// when the account has no second factor.
func (c *Client) Login(ctx context.Context, username, password, totpCode string) error {
	var resp loginResponse
	err := c.do(ctx, http.MethodPost, "auth.login", nil,
		loginRequest{Username: username, Password: password, TOTPCode: totpCode}, &resp, false)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}

	c.session.Establish(resp.AccessToken, resp.UserID, 0, username)

	var pf portfolioResponse
	if err := c.do(ctx, http.MethodGet, "portfolio.mine", nil, nil, &pf, true); err != nil {
		c.session.Invalidate()
		return fmt.Errorf("login: resolve portfolio: %w", err)
	}
	c.session.SetPortfolioID(pf.ID)

	c.log.Info("logged in", "user", username, "portfolio_id", pf.ID)
	return nil
}

// GetQuote fetches an advisory quote for the given symbol, quantity and
// side. The returned quote is displayed verbatim; its total value is the
// service's computation, not the client's.
func (c *Client) GetQuote(ctx context.Context, symbol string, qty int64, side model.Side) (model.Quote, error) {
	params := url.Values{}
	params.Set("stockSymbol", symbol)
	params.Set("quantity", fmt.Sprintf("%d", qty))
	params.Set("orderType", string(side))

	var q model.Quote
	if err := c.do(ctx, http.MethodGet, "trading.quote", params, nil, &q, true); err != nil {
		return model.Quote{}, err
	}
	return q, nil
}

// Buy submits a buy order. The response is terminal for the attempt.
func (c *Client) Buy(ctx context.Context, req model.TradeRequest) (model.TradeResponse, error) {
	var resp model.TradeResponse
	if err := c.do(ctx, http.MethodPost, "trading.buy", nil, req, &resp, true); err != nil {
		return model.TradeResponse{}, err
	}
	return resp, nil
}

// Sell submits a sell order.
func (c *Client) Sell(ctx context.Context, req model.TradeRequest) (model.TradeResponse, error) {
	var resp model.TradeResponse
	if err := c.do(ctx, http.MethodPost, "trading.sell", nil, req, &resp, true); err != nil {
		return model.TradeResponse{}, err
	}
	return resp, nil
}

// SellAll liquidates the full held quantity of one symbol.
func (c *Client) SellAll(ctx context.Context, symbol string, priceType model.PriceType) (model.TradeResponse, error) {
	body := map[string]any{
		"portfolioId": c.session.PortfolioID(),
		"stockSymbol": symbol,
		"priceType":   priceType,
	}
	var resp model.TradeResponse
	if err := c.do(ctx, http.MethodPost, "trading.sell_all", nil, body, &resp, true); err != nil {
		return model.TradeResponse{}, err
	}
	return resp, nil
}

// GetPositions fetches the authoritative position set for the active
// portfolio, derived fields included.
func (c *Client) GetPositions(ctx context.Context) ([]model.Position, error) {
	route := fmt.Sprintf(routes["positions.list"], c.session.PortfolioID())
	var out []model.Position
	if err := c.doPath(ctx, http.MethodGet, route, nil, nil, &out, true); err != nil {
		return nil, err
	}
	return out, nil
}

// GetSummary fetches the service-side portfolio summary.
func (c *Client) GetSummary(ctx context.Context) (model.PortfolioSummary, error) {
	route := fmt.Sprintf(routes["portfolio.summary"], c.session.PortfolioID())
	var out model.PortfolioSummary
	if err := c.doPath(ctx, http.MethodGet, route, nil, nil, &out, true); err != nil {
		return model.PortfolioSummary{}, err
	}
	return out, nil
}

// GetOrders fetches the order history for the active portfolio.
func (c *Client) GetOrders(ctx context.Context) ([]model.Order, error) {
	route := fmt.Sprintf(routes["orders.list"], c.session.PortfolioID())
	var out []model.Order
	if err := c.doPath(ctx, http.MethodGet, route, nil, nil, &out, true); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, route string, params url.Values, body, out any, auth bool) error {
	path, ok := routes[route]
	if !ok {
		return fmt.Errorf("unknown route: %s", route)
	}
	return c.doPath(ctx, method, path, params, body, out, auth)
}

func (c *Client) doPath(ctx context.Context, method, path string, params url.Values, body, out any, auth bool) error {
	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if auth {
		if tok := c.session.Token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s %s: read body: %w", method, path, err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		c.log.Warn("session rejected by trading service", "path", path)
		c.session.Invalidate()
		return ErrSessionExpired
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseAPIError(resp.StatusCode, path, data)
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}
