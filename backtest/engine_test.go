package backtest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretelew/pm-bot/internal/domain"
	"github.com/aretelew/pm-bot/internal/engine"
	"github.com/aretelew/pm-bot/internal/storage"
	"github.com/aretelew/pm-bot/internal/strategy"
)

// scriptedStrategy emits one predetermined intent per snapshot.
type scriptedStrategy struct {
	script []domain.Intent
	step   int
}

func (s *scriptedStrategy) Name() string                     { return "scripted" }
func (s *scriptedStrategy) ShouldTrade(m domain.Market) bool { return true }

func (s *scriptedStrategy) OnMarketData(m domain.Market, book domain.OrderBook) []domain.Intent {
	if s.step >= len(s.script) {
		return nil
	}
	intent := s.script[s.step]
	s.step++
	if intent.Ticker == "" {
		return nil
	}
	return []domain.Intent{intent}
}

func seedHistory(t *testing.T, s *storage.Store, prices []int) {
	t.Helper()
	for i, p := range prices {
		m := domain.Market{
			Ticker:       "TEST-1",
			YesBid:       p - 1,
			YesAsk:       p + 1,
			LastPrice:    p,
			Volume:       100,
			Source:       domain.SourcePolled,
			UpdatedUnixM: int64((i + 1) * 1000),
		}
		require.NoError(t, s.SaveMarket(context.Background(), m))
	}
}

func TestEngine_ProfitableRoundTrip(t *testing.T) {
	store, err := storage.NewStore(filepath.Join(t.TempDir(), "bt.db"))
	require.NoError(t, err)
	defer store.Close()

	seedHistory(t, store, []int{40, 60})

	st := &scriptedStrategy{script: []domain.Intent{
		{Strategy: "scripted", Ticker: "TEST-1", Action: domain.ActionBuy, Side: domain.SideYes, Price: 40, Quantity: 5},
		{Strategy: "scripted", Ticker: "TEST-1", Action: domain.ActionSell, Side: domain.SideYes, Price: 60, Quantity: 5},
	}}

	eng := NewEngine(store, []strategy.Strategy{st}, engine.RiskLimits{
		MaxPositionPerMarket: 100,
		MaxTotalExposure:     1000,
		MaxDailyLoss:         decimal.NewFromInt(1000),
	})

	res, err := eng.Run(context.Background(), "TEST-1")
	require.NoError(t, err)

	assert.Equal(t, 2, res.Snapshots)
	assert.Equal(t, 2, res.Signals)
	assert.Len(t, res.Fills, 2)

	// Buy 5 @ 0.40, sell 5 @ 0.60: +$1.00.
	assert.True(t, res.RealizedPnL.Equal(decimal.NewFromInt(1)),
		"pnl = %s", res.RealizedPnL)
	assert.Contains(t, res.Report(), "Realized P&L:       $1.00")
}

// bookEchoStrategy reports whether the replay ever handed it a
// populated book.
type bookEchoStrategy struct {
	sawBook bool
}

func (s *bookEchoStrategy) Name() string                     { return "book-echo" }
func (s *bookEchoStrategy) ShouldTrade(m domain.Market) bool { return true }

func (s *bookEchoStrategy) OnMarketData(m domain.Market, book domain.OrderBook) []domain.Intent {
	if _, ok := book.Mid(); ok {
		s.sawBook = true
	}
	return nil
}

func TestEngine_ReplaysStoredOrderbooks(t *testing.T) {
	store, err := storage.NewStore(filepath.Join(t.TempDir(), "bt.db"))
	require.NoError(t, err)
	defer store.Close()

	seedHistory(t, store, []int{50})
	require.NoError(t, store.SaveOrderbook(context.Background(), "TEST-1", domain.OrderBook{
		Yes: []domain.BookLevel{{Price: 49, Quantity: 10}},
		No:  []domain.BookLevel{{Price: 49, Quantity: 10}},
	}, 1000))

	st := &bookEchoStrategy{}
	eng := NewEngine(store, []strategy.Strategy{st}, engine.RiskLimits{
		MaxPositionPerMarket: 10,
		MaxDailyLoss:         decimal.NewFromInt(100),
	})

	_, err = eng.Run(context.Background(), "TEST-1")
	require.NoError(t, err)
	assert.True(t, st.sawBook, "strategies must see the book recorded with the snapshot")
}

func TestEngine_PriceRangeFromSeries(t *testing.T) {
	store, err := storage.NewStore(filepath.Join(t.TempDir(), "bt.db"))
	require.NoError(t, err)
	defer store.Close()

	seedHistory(t, store, []int{50})
	for i, p := range []int{42, 58, 47} {
		require.NoError(t, store.SavePrice(context.Background(), storage.PricePoint{
			Ticker: "TEST-1", Price: p, TsUnixM: int64((i + 1) * 1000),
		}))
	}

	eng := NewEngine(store, nil, engine.RiskLimits{
		MaxPositionPerMarket: 10,
		MaxDailyLoss:         decimal.NewFromInt(100),
	})

	res, err := eng.Run(context.Background(), "TEST-1")
	require.NoError(t, err)
	assert.Equal(t, 42, res.PriceLow)
	assert.Equal(t, 58, res.PriceHigh)
	assert.Contains(t, res.Report(), "Price range:        42-58 cents")
}

func TestEngine_RiskVetoCounts(t *testing.T) {
	store, err := storage.NewStore(filepath.Join(t.TempDir(), "bt.db"))
	require.NoError(t, err)
	defer store.Close()

	seedHistory(t, store, []int{50})

	st := &scriptedStrategy{script: []domain.Intent{
		{Strategy: "scripted", Ticker: "TEST-1", Action: domain.ActionBuy, Side: domain.SideYes, Price: 50, Quantity: 500},
	}}

	eng := NewEngine(store, []strategy.Strategy{st}, engine.RiskLimits{
		MaxPositionPerMarket: 10,
		MaxDailyLoss:         decimal.NewFromInt(100),
	})

	res, err := eng.Run(context.Background(), "TEST-1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Vetoed)
	assert.Empty(t, res.Fills)
}

func TestEngine_EmptyHistory(t *testing.T) {
	store, err := storage.NewStore(filepath.Join(t.TempDir(), "bt.db"))
	require.NoError(t, err)
	defer store.Close()

	eng := NewEngine(store, nil, engine.RiskLimits{MaxPositionPerMarket: 10, MaxDailyLoss: decimal.NewFromInt(100)})
	_, err = eng.Run(context.Background(), "NOPE")
	assert.Error(t, err)
}
