package strategy

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/aretelew/pm-bot/internal/domain"
)

func init() {
	Register("naive_value", func() Strategy { return NewNaiveValue() })
}

// NaiveValue trades when the last traded price diverges from the
// orderbook mid by more than a threshold: buy when the market looks
// underpriced versus mid, sell when overpriced.
type NaiveValue struct {
	threshold float64 // cents
	quantity  int
	minSpread int
	maxSpread int
	minVolume int
}

// NewNaiveValue creates the strategy with its default parameters.
func NewNaiveValue() *NaiveValue {
	return &NaiveValue{
		threshold: 5,
		quantity:  1,
		minSpread: 2,
		maxSpread: 30,
		minVolume: 10,
	}
}

func (s *NaiveValue) Name() string { return "naive_value" }

func (s *NaiveValue) ShouldTrade(m domain.Market) bool {
	return m.Volume >= s.minVolume && m.HasQuotes()
}

func (s *NaiveValue) OnMarketData(m domain.Market, book domain.OrderBook) []domain.Intent {
	mid, ok := book.Mid()
	if !ok {
		return nil
	}
	spread, _ := book.Spread()
	if spread < s.minSpread || spread > s.maxSpread {
		return nil
	}
	if m.LastPrice <= 0 {
		return nil
	}

	deviation := float64(m.LastPrice) - mid
	if math.Abs(deviation) <= s.threshold {
		return nil
	}

	var intent domain.Intent
	if deviation < 0 {
		bid, ok := book.BestYesBid()
		if !ok {
			return nil
		}
		intent = domain.Intent{
			Strategy:   s.Name(),
			Ticker:     m.Ticker,
			Action:     domain.ActionBuy,
			Side:       domain.SideYes,
			Price:      bid + 1,
			Quantity:   s.quantity,
			Confidence: math.Min(math.Abs(deviation)/20.0, 1.0),
			Reason:     fmt.Sprintf("underpriced by %.1fc vs mid %.1f", math.Abs(deviation), mid),
		}
	} else {
		ask, ok := book.BestYesAsk()
		if !ok {
			return nil
		}
		intent = domain.Intent{
			Strategy:   s.Name(),
			Ticker:     m.Ticker,
			Action:     domain.ActionSell,
			Side:       domain.SideYes,
			Price:      ask - 1,
			Quantity:   s.quantity,
			Confidence: math.Min(deviation/20.0, 1.0),
			Reason:     fmt.Sprintf("overpriced by %.1fc vs mid %.1f", deviation, mid),
		}
	}
	intent.CreatedUnixM = time.Now().UnixMicro()

	slog.Info("signal generated",
		"strategy", s.Name(),
		"ticker", intent.Ticker,
		"action", intent.Action,
		"price", intent.Price,
		"reason", intent.Reason)
	return []domain.Intent{intent}
}
