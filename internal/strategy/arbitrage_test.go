package strategy

import (
	"testing"

	"github.com/aretelew/pm-bot/internal/domain"
)

func TestExtractThreshold(t *testing.T) {
	cases := []struct {
		title string
		want  float64
		ok    bool
	}{
		{"GDP growth above 3.0%", 3.0, true},
		{"Will CPI be below 2.5", 2.5, true},
		{"Temperature over 90", 90, true},
		{"Rate >= 5.25", 5.25, true},
		{"Will X win the election", 0, false},
	}
	for _, tc := range cases {
		got, ok := extractThreshold(tc.title)
		if ok != tc.ok || got != tc.want {
			t.Errorf("extractThreshold(%q) = %v, %v; want %v, %v", tc.title, got, ok, tc.want, tc.ok)
		}
	}
}

func TestArbitrage_MonotonicityViolation(t *testing.T) {
	s := NewArbitrage()

	// "above 3" must not trade above "above 2" of the same event; a
	// 10c inversion is well past the edge.
	markets := []domain.Market{
		{Ticker: "GDP-2", EventTicker: "GDP", Title: "GDP above 2.0", LastPrice: 40},
		{Ticker: "GDP-3", EventTicker: "GDP", Title: "GDP above 3.0", LastPrice: 50},
	}
	s.RegisterMarkets(markets)

	intents := s.OnMarketData(markets[0], domain.OrderBook{})
	if len(intents) < 2 {
		t.Fatalf("expected sell+buy pair, got %d intents", len(intents))
	}

	var sell, buy *domain.Intent
	for i := range intents {
		switch intents[i].Action {
		case domain.ActionSell:
			sell = &intents[i]
		case domain.ActionBuy:
			buy = &intents[i]
		}
	}
	if sell == nil || sell.Ticker != "GDP-3" || sell.Price != 49 {
		t.Errorf("expected sell GDP-3@49, got %+v", sell)
	}
	if buy == nil || buy.Ticker != "GDP-2" || buy.Price != 41 {
		t.Errorf("expected buy GDP-2@41, got %+v", buy)
	}
}

func TestArbitrage_NoSignalWhenConsistent(t *testing.T) {
	s := NewArbitrage()

	// Decreasing prices with increasing thresholds, summing near 100.
	markets := []domain.Market{
		{Ticker: "X-1", EventTicker: "X", Title: "above 1", LastPrice: 60},
		{Ticker: "X-2", EventTicker: "X", Title: "above 2", LastPrice: 40},
	}
	s.RegisterMarkets(markets)

	if intents := s.OnMarketData(markets[0], domain.OrderBook{}); len(intents) != 0 {
		t.Errorf("consistent markets produced signals: %+v", intents)
	}
}

func TestArbitrage_Overround(t *testing.T) {
	s := NewArbitrage()

	// Mutually exclusive outcomes summing to 112: sell the dearest.
	markets := []domain.Market{
		{Ticker: "W-A", EventTicker: "W", Title: "Team A wins", LastPrice: 62},
		{Ticker: "W-B", EventTicker: "W", Title: "Team B wins", LastPrice: 50},
	}
	s.RegisterMarkets(markets)

	intents := s.OnMarketData(markets[0], domain.OrderBook{})
	if len(intents) != 1 {
		t.Fatalf("expected 1 intent, got %d", len(intents))
	}
	if intents[0].Action != domain.ActionSell || intents[0].Ticker != "W-A" {
		t.Errorf("expected sell W-A, got %+v", intents[0])
	}
}

func TestArbitrage_Underround(t *testing.T) {
	s := NewArbitrage()

	// Summing to 80: buy the cheapest.
	markets := []domain.Market{
		{Ticker: "W-A", EventTicker: "W", Title: "Team A wins", LastPrice: 50},
		{Ticker: "W-B", EventTicker: "W", Title: "Team B wins", LastPrice: 30},
	}
	s.RegisterMarkets(markets)

	intents := s.OnMarketData(markets[0], domain.OrderBook{})
	if len(intents) != 1 {
		t.Fatalf("expected 1 intent, got %d", len(intents))
	}
	if intents[0].Action != domain.ActionBuy || intents[0].Ticker != "W-B" {
		t.Errorf("expected buy W-B, got %+v", intents[0])
	}
}

func TestArbitrage_SingleMarketNoSignal(t *testing.T) {
	s := NewArbitrage()
	m := domain.Market{Ticker: "LONELY", EventTicker: "E", LastPrice: 90}
	s.RegisterMarkets([]domain.Market{m})

	if intents := s.OnMarketData(m, domain.OrderBook{}); len(intents) != 0 {
		t.Errorf("single market produced signals: %+v", intents)
	}
}
