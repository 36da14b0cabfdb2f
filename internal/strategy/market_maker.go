package strategy

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretelew/pm-bot/internal/domain"
)

func init() {
	Register("market_maker", func() Strategy { return NewMarketMaker() })
}

// MarketMaker quotes a bid and an ask around the mid-price, skewing
// both away from the side where inventory has accumulated.
type MarketMaker struct {
	halfSpread      int
	quantity        int
	minSpread       int
	maxInventory    int
	minVolume       int
	skewPerContract float64

	mu        sync.Mutex
	inventory map[string]int
}

// NewMarketMaker creates the strategy with its default parameters.
func NewMarketMaker() *MarketMaker {
	return &MarketMaker{
		halfSpread:      3,
		quantity:        1,
		minSpread:       4,
		maxInventory:    20,
		minVolume:       50,
		skewPerContract: 0.5,
		inventory:       make(map[string]int),
	}
}

func (s *MarketMaker) Name() string { return "market_maker" }

func (s *MarketMaker) ShouldTrade(m domain.Market) bool {
	return m.Volume >= s.minVolume
}

// UpdateInventory records a fill so subsequent quotes skew away from
// the accumulated side.
func (s *MarketMaker) UpdateInventory(ticker string, delta int) {
	s.mu.Lock()
	s.inventory[ticker] += delta
	s.mu.Unlock()
}

func (s *MarketMaker) OnMarketData(m domain.Market, book domain.OrderBook) []domain.Intent {
	mid, ok := book.Mid()
	if !ok {
		return nil
	}
	spread, _ := book.Spread()
	if spread < s.minSpread {
		return nil
	}

	s.mu.Lock()
	inventory := s.inventory[m.Ticker]
	s.mu.Unlock()

	if abs(inventory) >= s.maxInventory {
		slog.Info("inventory limit", "ticker", m.Ticker, "inventory", inventory)
		return nil
	}

	skew := int(float64(inventory) * s.skewPerContract)
	bidPrice := int(mid) - s.halfSpread - skew
	if bidPrice < 1 {
		bidPrice = 1
	}
	askPrice := int(mid) + s.halfSpread - skew
	if askPrice > 99 {
		askPrice = 99
	}
	if bidPrice >= askPrice {
		return nil
	}

	now := time.Now().UnixMicro()
	return []domain.Intent{
		{
			Strategy:     s.Name(),
			Ticker:       m.Ticker,
			Action:       domain.ActionBuy,
			Side:         domain.SideYes,
			Price:        bidPrice,
			Quantity:     s.quantity,
			Confidence:   0.5,
			Reason:       fmt.Sprintf("MM bid at %dc (mid=%.1f, inv=%d)", bidPrice, mid, inventory),
			CreatedUnixM: now,
		},
		{
			Strategy:     s.Name(),
			Ticker:       m.Ticker,
			Action:       domain.ActionSell,
			Side:         domain.SideYes,
			Price:        askPrice,
			Quantity:     s.quantity,
			Confidence:   0.5,
			Reason:       fmt.Sprintf("MM ask at %dc (mid=%.1f, inv=%d)", askPrice, mid, inventory),
			CreatedUnixM: now,
		},
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
