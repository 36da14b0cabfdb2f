package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dollars(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestPosition_LongRoundTrip(t *testing.T) {
	p := &Position{Ticker: "TEST"}

	// Buy 10 @ 40c: no realized P&L, cost basis 0.40.
	pnl := p.ApplyFill(ActionBuy, 40, 10)
	if !pnl.IsZero() {
		t.Errorf("opening buy realized %s, want 0", pnl)
	}
	if p.Quantity != 10 || !p.AvgCost.Equal(dollars("0.4")) {
		t.Errorf("got qty=%d avg=%s", p.Quantity, p.AvgCost)
	}

	// Buy 10 more @ 60c: re-averaged to 0.50.
	p.ApplyFill(ActionBuy, 60, 10)
	if p.Quantity != 20 || !p.AvgCost.Equal(dollars("0.5")) {
		t.Errorf("got qty=%d avg=%s", p.Quantity, p.AvgCost)
	}

	// Sell 20 @ 70c: realize (0.70-0.50)*20 = 4.00.
	pnl = p.ApplyFill(ActionSell, 70, 20)
	if !pnl.Equal(dollars("4")) {
		t.Errorf("realized %s, want 4", pnl)
	}
	if !p.IsFlat() {
		t.Errorf("expected flat, got qty=%d", p.Quantity)
	}
}

func TestPosition_ShortRoundTrip(t *testing.T) {
	p := &Position{Ticker: "TEST"}

	// Sell 5 @ 60c opens a short.
	pnl := p.ApplyFill(ActionSell, 60, 5)
	if !pnl.IsZero() || p.Quantity != -5 || !p.AvgCost.Equal(dollars("0.6")) {
		t.Errorf("got pnl=%s qty=%d avg=%s", pnl, p.Quantity, p.AvgCost)
	}

	// Buy back 5 @ 45c: realize (0.60-0.45)*5 = 0.75.
	pnl = p.ApplyFill(ActionBuy, 45, 5)
	if !pnl.Equal(dollars("0.75")) {
		t.Errorf("realized %s, want 0.75", pnl)
	}
	if !p.IsFlat() {
		t.Errorf("expected flat, got qty=%d", p.Quantity)
	}
	if !p.RealizedPnL.Equal(dollars("0.75")) {
		t.Errorf("cumulative %s, want 0.75", p.RealizedPnL)
	}
}

func TestPosition_FlipLongToShort(t *testing.T) {
	p := &Position{Ticker: "TEST"}
	p.ApplyFill(ActionBuy, 50, 10)

	// Sell 15 @ 55c: closes 10 for (0.55-0.50)*10 = 0.50,
	// opens a 5-contract short at 0.55.
	pnl := p.ApplyFill(ActionSell, 55, 15)
	if !pnl.Equal(dollars("0.5")) {
		t.Errorf("realized %s, want 0.5", pnl)
	}
	if p.Quantity != -5 {
		t.Errorf("got qty=%d, want -5", p.Quantity)
	}
	if !p.AvgCost.Equal(dollars("0.55")) {
		t.Errorf("new basis %s, want 0.55", p.AvgCost)
	}
}

func TestPosition_PartialClose(t *testing.T) {
	p := &Position{Ticker: "TEST"}
	p.ApplyFill(ActionBuy, 30, 10)

	// Sell 4 @ 50c: realize (0.50-0.30)*4 = 0.80, basis unchanged.
	pnl := p.ApplyFill(ActionSell, 50, 4)
	if !pnl.Equal(dollars("0.8")) {
		t.Errorf("realized %s, want 0.8", pnl)
	}
	if p.Quantity != 6 || !p.AvgCost.Equal(dollars("0.3")) {
		t.Errorf("got qty=%d avg=%s", p.Quantity, p.AvgCost)
	}
}
