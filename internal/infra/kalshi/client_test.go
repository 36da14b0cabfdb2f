package kalshi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretelew/pm-bot/internal/domain"
	"github.com/aretelew/pm-bot/internal/infra"
)

func testClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	limiter := infra.NewRateLimiter(100, 100)
	c := NewClient(srv.URL, nil, limiter,
		WithBackoff(infra.Backoff{Base: time.Millisecond, Max: 10 * time.Millisecond, Factor: 2.0}))
	return c, srv
}

func TestClient_ListMarkets(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/markets" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("status"); got != "open" {
			t.Errorf("status = %q, want open", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"markets": []map[string]any{
				{"ticker": "TEST-1", "yes_bid": 45, "yes_ask": 48, "last_price": 46, "volume": 500},
			},
			"cursor": "next-page",
		})
	}))

	markets, cursor, err := c.ListMarkets(context.Background(), "")
	if err != nil {
		t.Fatalf("ListMarkets failed: %v", err)
	}
	if len(markets) != 1 || markets[0].Ticker != "TEST-1" {
		t.Fatalf("unexpected markets: %+v", markets)
	}
	if markets[0].Source != domain.SourcePolled {
		t.Errorf("source = %s, want polled", markets[0].Source)
	}
	if cursor != "next-page" {
		t.Errorf("cursor = %q", cursor)
	}
}

func TestClient_OrderbookNormalized(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Wire format: ascending [price, qty] pairs.
		json.NewEncoder(w).Encode(map[string]any{
			"orderbook": map[string]any{
				"yes": [][2]int{{40, 10}, {44, 20}, {45, 30}},
				"no":  [][2]int{{50, 5}, {52, 15}},
			},
		})
	}))

	book, err := c.Orderbook(context.Background(), "TEST-1", 10)
	if err != nil {
		t.Fatalf("Orderbook failed: %v", err)
	}
	if bid, _ := book.BestYesBid(); bid != 45 {
		t.Errorf("best yes bid = %d, want 45", bid)
	}
	if ask, _ := book.BestYesAsk(); ask != 48 {
		t.Errorf("best yes ask = %d, want 48 (100 - best no bid 52)", ask)
	}
	if err := book.Validate(); err != nil {
		t.Errorf("normalized book invalid: %v", err)
	}
}

func TestClient_Retry429ThenSuccess(t *testing.T) {
	var calls int32
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"markets": []any{}, "cursor": ""})
	}))

	_, _, err := c.ListMarkets(context.Background(), "")
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("calls = %d, want 2", got)
	}
}

func TestClient_NoRetryOn4xx(t *testing.T) {
	var calls int32
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, `{"error":"insufficient balance"}`, http.StatusBadRequest)
	}))

	_, _, err := c.ListMarkets(context.Background(), "")
	if !errors.Is(err, domain.ErrExchangeRejected) {
		t.Fatalf("expected ErrExchangeRejected, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("definitive rejection retried: %d calls", got)
	}
}

func TestClient_RetryBudgetExhausted(t *testing.T) {
	var calls int32
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))

	_, _, err := c.ListMarkets(context.Background(), "")
	if !errors.Is(err, domain.ErrTransientNetwork) {
		t.Fatalf("expected ErrTransientNetwork, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("calls = %d, want 3 (max attempts)", got)
	}
}

func TestClient_BreakerFailsFastWhenOpen(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, nil, infra.NewRateLimiter(100, 100),
		WithBackoff(infra.Backoff{Base: time.Millisecond, Max: 10 * time.Millisecond, Factor: 2.0}),
		WithBreaker(infra.NewCircuitBreaker(infra.BreakerConfig{
			Name:             "test",
			FailureThreshold: 3,
			SuccessThreshold: 1,
			Cooldown:         time.Hour,
		})))

	// First call burns the retry budget and opens the breaker.
	_, _, err := c.ListMarkets(context.Background(), "")
	if !errors.Is(err, domain.ErrTransientNetwork) {
		t.Fatalf("expected ErrTransientNetwork, got %v", err)
	}
	before := atomic.LoadInt32(&calls)

	// Subsequent calls fail fast without touching the exchange.
	_, _, err = c.ListMarkets(context.Background(), "")
	if !errors.Is(err, domain.ErrTransientNetwork) {
		t.Fatalf("expected ErrTransientNetwork from open breaker, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != before {
		t.Errorf("open breaker issued %d extra requests", got-before)
	}
}

func TestClient_CreateOrderCarriesClientID(t *testing.T) {
	var got orderRequest
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(map[string]any{
			"order": map[string]any{"order_id": "ex-123", "status": "resting"},
		})
	}))

	order := &domain.Order{
		ClientID: "client-token-1",
		Intent: domain.Intent{
			Ticker:   "TEST-1",
			Action:   domain.ActionBuy,
			Side:     domain.SideYes,
			Price:    47,
			Quantity: 3,
		},
		RequestedQty: 3,
	}
	exchangeID, err := c.CreateOrder(context.Background(), order)
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}
	if exchangeID != "ex-123" {
		t.Errorf("exchange id = %q", exchangeID)
	}
	if got.ClientOrderID != "client-token-1" {
		t.Errorf("client_order_id = %q, want the idempotency token", got.ClientOrderID)
	}
	if got.Type != "limit" || got.YesPrice == nil || *got.YesPrice != 47 {
		t.Errorf("unexpected order request: %+v", got)
	}
}

func TestClient_FillsPriceBySide(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"fills": []map[string]any{
				{"trade_id": "t1", "order_id": "o1", "ticker": "A", "action": "buy", "side": "yes", "count": 2, "yes_price": 47, "no_price": 53},
				{"trade_id": "t2", "order_id": "o2", "ticker": "A", "action": "sell", "side": "no", "count": 1, "yes_price": 47, "no_price": 53},
			},
		})
	}))

	fills, err := c.Fills(context.Background(), "A")
	if err != nil {
		t.Fatalf("Fills failed: %v", err)
	}
	if fills[0].Price != 47 {
		t.Errorf("yes fill price = %d, want 47", fills[0].Price)
	}
	if fills[1].Price != 53 {
		t.Errorf("no fill price = %d, want 53", fills[1].Price)
	}
}
