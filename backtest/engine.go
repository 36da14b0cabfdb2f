// Package backtest replays recorded market history through the
// strategies and a simulated fill model, producing a performance
// report without touching the exchange.
package backtest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/aretelew/pm-bot/internal/domain"
	"github.com/aretelew/pm-bot/internal/engine"
	"github.com/aretelew/pm-bot/internal/storage"
	"github.com/aretelew/pm-bot/internal/strategy"
)

// SimulatedFill is one trade executed by the simulator.
type SimulatedFill struct {
	Strategy string
	Ticker   string
	Action   domain.Action
	Price    int
	Count    int
	PnL      decimal.Decimal
	TsUnixM  int64
}

// Result aggregates a completed backtest run. PriceLow and PriceHigh
// are set for single-ticker runs from the recorded price series.
type Result struct {
	Snapshots   int
	Signals     int
	Vetoed      int
	Fills       []SimulatedFill
	RealizedPnL decimal.Decimal
	MaxDrawdown decimal.Decimal
	Equity      []decimal.Decimal
	PriceLow    int
	PriceHigh   int
}

// Engine replays stored market snapshots in time order. Every snapshot
// is offered to each strategy; approved intents fill immediately at
// the intent price. Optimistic by construction: no queue position, no
// partial fills, no fees.
type Engine struct {
	store      *storage.Store
	strategies []strategy.Strategy
	risk       *engine.RiskController
}

// NewEngine creates a backtest engine over the given store.
func NewEngine(store *storage.Store, strategies []strategy.Strategy, limits engine.RiskLimits) *Engine {
	return &Engine{
		store:      store,
		strategies: strategies,
		risk:       engine.NewRiskController(limits),
	}
}

// Run replays history for ticker ("" for all markets) and returns the
// aggregated result.
func (e *Engine) Run(ctx context.Context, ticker string) (*Result, error) {
	history, err := e.store.MarketHistory(ctx, ticker)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	if len(history) == 0 {
		return nil, fmt.Errorf("no recorded history for %q", ticker)
	}

	res := &Result{RealizedPnL: decimal.Zero}
	peak := decimal.Zero

	for _, m := range history {
		res.Snapshots++

		book, err := e.store.OrderbookAt(ctx, m.Ticker, m.UpdatedUnixM)
		if err != nil {
			book = domain.OrderBook{}
		}

		for _, st := range e.strategies {
			if !st.ShouldTrade(m) {
				continue
			}
			for _, intent := range st.OnMarketData(m, book) {
				res.Signals++
				if err := e.risk.Evaluate(intent); err != nil {
					res.Vetoed++
					continue
				}
				e.execute(res, intent)
			}
		}

		if res.RealizedPnL.GreaterThan(peak) {
			peak = res.RealizedPnL
		}
		if dd := peak.Sub(res.RealizedPnL); dd.GreaterThan(res.MaxDrawdown) {
			res.MaxDrawdown = dd
		}
		res.Equity = append(res.Equity, res.RealizedPnL)
	}

	if ticker != "" {
		e.priceRange(ctx, ticker, res)
	}

	slog.Info("backtest complete",
		"snapshots", res.Snapshots,
		"signals", res.Signals,
		"vetoed", res.Vetoed,
		"fills", len(res.Fills),
		"pnl", res.RealizedPnL.StringFixed(2))
	return res, nil
}

// priceRange reads the recorded price series back and annotates the
// result with the observed trading range.
func (e *Engine) priceRange(ctx context.Context, ticker string, res *Result) {
	series, err := e.store.PriceSeries(ctx, ticker, 10_000)
	if err != nil || len(series) == 0 {
		return
	}
	res.PriceLow, res.PriceHigh = series[0].Price, series[0].Price
	for _, p := range series[1:] {
		if p.Price < res.PriceLow {
			res.PriceLow = p.Price
		}
		if p.Price > res.PriceHigh {
			res.PriceHigh = p.Price
		}
	}
}

// execute fills the intent at its limit price and books the P&L
// through the same position accounting the live engine uses.
func (e *Engine) execute(res *Result, intent domain.Intent) {
	price := intent.Price
	if price <= 0 || price >= 100 {
		return
	}

	before := e.risk.RealizedPnL()
	e.risk.HandleFill(domain.Fill{
		OrderID: fmt.Sprintf("sim-%d", len(res.Fills)+1),
		Ticker:  intent.Ticker,
		Action:  intent.Action,
		Side:    intent.Side,
		Price:   price,
		Count:   intent.Quantity,
		TsUnixM: intent.CreatedUnixM,
	})
	pnl := e.risk.RealizedPnL().Sub(before)

	res.Fills = append(res.Fills, SimulatedFill{
		Strategy: intent.Strategy,
		Ticker:   intent.Ticker,
		Action:   intent.Action,
		Price:    price,
		Count:    intent.Quantity,
		PnL:      pnl,
		TsUnixM:  intent.CreatedUnixM,
	})
	res.RealizedPnL = e.risk.RealizedPnL()
}

// Report renders a human-readable summary.
func (r *Result) Report() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Backtest Report\n")
	fmt.Fprintf(&sb, "===============\n")
	fmt.Fprintf(&sb, "Snapshots replayed: %d\n", r.Snapshots)
	fmt.Fprintf(&sb, "Signals generated:  %d (vetoed: %d)\n", r.Signals, r.Vetoed)
	fmt.Fprintf(&sb, "Trades executed:    %d\n", len(r.Fills))
	fmt.Fprintf(&sb, "Realized P&L:       $%s\n", r.RealizedPnL.StringFixed(2))
	fmt.Fprintf(&sb, "Max drawdown:       $%s\n", r.MaxDrawdown.StringFixed(2))
	if r.PriceHigh > 0 {
		fmt.Fprintf(&sb, "Price range:        %d-%d cents\n", r.PriceLow, r.PriceHigh)
	}

	wins := 0
	closed := 0
	for _, f := range r.Fills {
		if f.PnL.IsZero() {
			continue
		}
		closed++
		if f.PnL.IsPositive() {
			wins++
		}
	}
	if closed > 0 {
		fmt.Fprintf(&sb, "Win rate:           %.1f%% (%d/%d closing trades)\n",
			100*float64(wins)/float64(closed), wins, closed)
	}
	return sb.String()
}
