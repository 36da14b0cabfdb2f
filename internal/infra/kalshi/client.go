package kalshi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/aretelew/pm-bot/internal/domain"
	"github.com/aretelew/pm-bot/internal/infra"
)

const signPathPrefix = "/trade-api/v2"

// Client is the request/response half of the exchange gateway. Every
// outbound call passes through the shared rate limiter; rate-limit
// responses and transient network failures are retried with bounded
// exponential backoff, definitive errors fail immediately.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	signer      *Signer
	limiter     *infra.RateLimiter
	backoff     infra.Backoff
	breaker     *infra.CircuitBreaker
	maxAttempts int
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client (tests).
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = h }
}

// WithBackoff overrides the retry backoff schedule.
func WithBackoff(b infra.Backoff) ClientOption {
	return func(c *Client) { c.backoff = b }
}

// WithMaxAttempts bounds the retry count.
func WithMaxAttempts(n int) ClientOption {
	return func(c *Client) { c.maxAttempts = n }
}

// WithBreaker overrides the default circuit breaker.
func WithBreaker(cb *infra.CircuitBreaker) ClientOption {
	return func(c *Client) { c.breaker = cb }
}

// NewClient creates a REST gateway client.
func NewClient(baseURL string, signer *Signer, limiter *infra.RateLimiter, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:     baseURL,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		signer:      signer,
		limiter:     limiter,
		backoff:     infra.DefaultBackoff(),
		breaker:     infra.NewCircuitBreaker(infra.DefaultBreakerConfig("kalshi-rest")),
		maxAttempts: 3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// do issues one signed request with rate limiting and retry. The
// returned error wraps ErrExchangeRejected for definitive failures and
// ErrTransientNetwork when the retry budget is exhausted.
func (c *Client) do(ctx context.Context, method, path string, params url.Values, body any) ([]byte, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%w: marshal body: %v", domain.ErrExchangeRejected, err)
		}
	}

	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := c.backoff.Next(attempt - 1)
			slog.Warn("gateway retry", "method", method, "path", path, "attempt", attempt, "delay", delay)
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", domain.ErrTransientNetwork, ctx.Err())
			case <-time.After(delay):
			}
		}

		// The breaker state persists across calls, so a dead exchange is
		// not hammered by every component in turn.
		if !c.breaker.Allow() {
			return nil, fmt.Errorf("%w: circuit breaker open", domain.ErrTransientNetwork)
		}

		if err := c.limiter.Acquire(ctx); err != nil {
			return nil, err
		}

		data, retryable, err := c.doOnce(ctx, method, path, params, payload)
		if err == nil {
			c.breaker.RecordSuccess()
			return data, nil
		}
		if !retryable {
			// A definitive response means the exchange is reachable.
			return nil, err
		}
		c.breaker.RecordFailure()
		lastErr = err
	}
	return nil, lastErr
}

// doOnce performs a single HTTP exchange. The bool result reports
// whether the failure is retryable.
func (c *Client) doOnce(ctx context.Context, method, path string, params url.Values, payload []byte) ([]byte, bool, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return nil, false, fmt.Errorf("%w: build request: %v", domain.ErrExchangeRejected, err)
	}
	req.Header.Set("Content-Type", "application/json")

	if c.signer != nil {
		ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
		headers, err := c.signer.Headers(ts, method, signPathPrefix+path)
		if err != nil {
			return nil, false, fmt.Errorf("%w: %v", domain.ErrExchangeRejected, err)
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("%w: %v", domain.ErrTransientNetwork, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("%w: read body: %v", domain.ErrTransientNetwork, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		return data, false, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, true, fmt.Errorf("%w: status 429: %s", domain.ErrExchangeRejected, data)
	case resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("%w: status %d: %s", domain.ErrTransientNetwork, resp.StatusCode, data)
	default:
		// Auth failures and malformed requests are not transient.
		return nil, false, fmt.Errorf("%w: status %d: %s", domain.ErrExchangeRejected, resp.StatusCode, data)
	}
}

// ListMarkets fetches one page of open markets. Returns the page and
// the pagination cursor ("" when exhausted).
func (c *Client) ListMarkets(ctx context.Context, cursor string) ([]domain.Market, string, error) {
	params := url.Values{}
	params.Set("limit", "100")
	params.Set("status", "open")
	if cursor != "" {
		params.Set("cursor", cursor)
	}

	data, err := c.do(ctx, http.MethodGet, "/markets", params, nil)
	if err != nil {
		return nil, "", err
	}

	var resp marketsResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, "", fmt.Errorf("%w: decode markets: %v", domain.ErrExchangeRejected, err)
	}

	now := time.Now().UnixMicro()
	markets := make([]domain.Market, 0, len(resp.Markets))
	for i := range resp.Markets {
		markets = append(markets, resp.Markets[i].toDomain(now))
	}
	return markets, resp.Cursor, nil
}

// GetMarket fetches a single market by ticker.
func (c *Client) GetMarket(ctx context.Context, ticker string) (domain.Market, error) {
	data, err := c.do(ctx, http.MethodGet, "/markets/"+ticker, nil, nil)
	if err != nil {
		return domain.Market{}, err
	}
	var resp marketResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return domain.Market{}, fmt.Errorf("%w: decode market: %v", domain.ErrExchangeRejected, err)
	}
	return resp.Market.toDomain(time.Now().UnixMicro()), nil
}

// Orderbook fetches the book for a ticker, normalized best-first.
func (c *Client) Orderbook(ctx context.Context, ticker string, depth int) (domain.OrderBook, error) {
	params := url.Values{}
	params.Set("depth", strconv.Itoa(depth))

	data, err := c.do(ctx, http.MethodGet, "/markets/"+ticker+"/orderbook", params, nil)
	if err != nil {
		return domain.OrderBook{}, err
	}

	var resp orderbookDTO
	if err := json.Unmarshal(data, &resp); err != nil {
		return domain.OrderBook{}, fmt.Errorf("%w: decode orderbook: %v", domain.ErrExchangeRejected, err)
	}
	return resp.toDomain(), nil
}

// CreateOrder submits a limit order carrying the client idempotency
// token and returns the exchange-assigned order id.
func (c *Client) CreateOrder(ctx context.Context, o *domain.Order) (string, error) {
	req := orderRequest{
		Ticker:        o.Intent.Ticker,
		Action:        string(o.Intent.Action),
		Side:          string(o.Intent.Side),
		Count:         o.RequestedQty,
		Type:          "limit",
		ClientOrderID: o.ClientID,
	}
	if o.Intent.Marketable() {
		req.Type = "market"
	} else if o.Intent.Side == domain.SideYes {
		price := o.Intent.Price
		req.YesPrice = &price
	} else {
		price := o.Intent.Price
		req.NoPrice = &price
	}

	data, err := c.do(ctx, http.MethodPost, "/portfolio/orders", nil, req)
	if err != nil {
		return "", err
	}

	var resp orderResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("%w: decode order: %v", domain.ErrExchangeRejected, err)
	}
	return resp.Order.OrderID, nil
}

// CancelOrder cancels a resting order by exchange id.
func (c *Client) CancelOrder(ctx context.Context, exchangeID string) error {
	_, err := c.do(ctx, http.MethodDelete, "/portfolio/orders/"+exchangeID, nil, nil)
	return err
}

// Fills fetches recent fills, optionally filtered by ticker.
func (c *Client) Fills(ctx context.Context, ticker string) ([]domain.Fill, error) {
	params := url.Values{}
	params.Set("limit", "100")
	if ticker != "" {
		params.Set("ticker", ticker)
	}

	data, err := c.do(ctx, http.MethodGet, "/portfolio/fills", params, nil)
	if err != nil {
		return nil, err
	}

	var resp fillsResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode fills: %v", domain.ErrExchangeRejected, err)
	}

	fills := make([]domain.Fill, 0, len(resp.Fills))
	for i := range resp.Fills {
		fills = append(fills, resp.Fills[i].toDomain())
	}
	return fills, nil
}

// Balance fetches the account balance in cents.
func (c *Client) Balance(ctx context.Context) (int64, error) {
	data, err := c.do(ctx, http.MethodGet, "/portfolio/balance", nil, nil)
	if err != nil {
		return 0, err
	}
	var resp balanceResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return 0, fmt.Errorf("%w: decode balance: %v", domain.ErrExchangeRejected, err)
	}
	return resp.Balance, nil
}
