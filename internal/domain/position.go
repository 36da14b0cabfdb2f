package domain

import "github.com/shopspring/decimal"

var cents = decimal.NewFromInt(100)

// Position is the per-ticker net quantity and average cost.
// Quantity is positive for long, negative for short. Money is in dollars.
type Position struct {
	Ticker      string
	Quantity    int
	AvgCost     decimal.Decimal
	RealizedPnL decimal.Decimal
}

// IsFlat reports whether the position holds no contracts.
func (p *Position) IsFlat() bool {
	return p.Quantity == 0
}

// ApplyFill updates the position for a confirmed fill and returns the
// realized P&L of the fill (zero when opening or adding).
func (p *Position) ApplyFill(action Action, priceCents, quantity int) decimal.Decimal {
	price := decimal.NewFromInt(int64(priceCents)).Div(cents)
	qty := decimal.NewFromInt(int64(quantity))

	if action == ActionBuy {
		newQty := p.Quantity + quantity
		if p.Quantity >= 0 {
			// Adding to (or opening) a long: re-average the cost basis.
			total := p.AvgCost.Mul(decimal.NewFromInt(int64(p.Quantity))).Add(price.Mul(qty))
			if newQty > 0 {
				p.AvgCost = total.Div(decimal.NewFromInt(int64(newQty)))
			} else {
				p.AvgCost = decimal.Zero
			}
			p.Quantity = newQty
			return decimal.Zero
		}
		// Buying back a short: realize against average cost.
		closed := quantity
		if short := -p.Quantity; short < closed {
			closed = short
		}
		pnl := decimal.NewFromInt(int64(closed)).Mul(p.AvgCost.Sub(price))
		p.RealizedPnL = p.RealizedPnL.Add(pnl)
		p.Quantity = newQty
		if p.Quantity > 0 {
			p.AvgCost = price
		}
		return pnl
	}

	newQty := p.Quantity - quantity
	if p.Quantity <= 0 {
		// Adding to (or opening) a short.
		total := p.AvgCost.Mul(decimal.NewFromInt(int64(-p.Quantity))).Add(price.Mul(qty))
		if newQty != 0 {
			p.AvgCost = total.Div(decimal.NewFromInt(int64(-newQty)))
		} else {
			p.AvgCost = decimal.Zero
		}
		p.Quantity = newQty
		return decimal.Zero
	}
	// Selling out of a long.
	closed := quantity
	if p.Quantity < closed {
		closed = p.Quantity
	}
	pnl := decimal.NewFromInt(int64(closed)).Mul(price.Sub(p.AvgCost))
	p.RealizedPnL = p.RealizedPnL.Add(pnl)
	p.Quantity = newQty
	if p.Quantity < 0 {
		p.AvgCost = price
	}
	return pnl
}
