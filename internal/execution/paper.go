// Package execution provides the simulated order path used in paper
// trading mode. Market data still comes from the real exchange; orders
// never leave the process.
package execution

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretelew/pm-bot/internal/domain"
)

// MarketData is the read-only exchange surface the paper gateway
// delegates to. Satisfied by *kalshi.Client.
type MarketData interface {
	ListMarkets(ctx context.Context, cursor string) ([]domain.Market, string, error)
	Orderbook(ctx context.Context, ticker string, depth int) (domain.OrderBook, error)
}

// PaperGateway simulates execution with immediate fills: limit orders
// fill at their limit price, marketable orders cross the live book.
// Fills re-deliver on every poll, like the real fills endpoint, and
// carry stable trade ids so downstream dedup applies.
type PaperGateway struct {
	data MarketData

	mu     sync.Mutex
	seq    int
	orders map[string]*paperOrder
}

type paperOrder struct {
	fill      domain.Fill
	cancelled bool
}

// NewPaperGateway creates a paper gateway over the given market data.
func NewPaperGateway(data MarketData) *PaperGateway {
	return &PaperGateway{
		data:   data,
		orders: make(map[string]*paperOrder),
	}
}

// ListMarkets delegates to the real exchange.
func (p *PaperGateway) ListMarkets(ctx context.Context, cursor string) ([]domain.Market, string, error) {
	return p.data.ListMarkets(ctx, cursor)
}

// Orderbook delegates to the real exchange.
func (p *PaperGateway) Orderbook(ctx context.Context, ticker string, depth int) (domain.OrderBook, error) {
	return p.data.Orderbook(ctx, ticker, depth)
}

// CreateOrder simulates an immediate full fill and returns a synthetic
// exchange id. Marketable orders that cannot be priced off the live
// book are rejected, as the exchange would reject an unpriceable order.
func (p *PaperGateway) CreateOrder(ctx context.Context, o *domain.Order) (string, error) {
	price := o.Intent.Price
	if o.Intent.Marketable() {
		book, err := p.data.Orderbook(ctx, o.Intent.Ticker, 1)
		if err != nil {
			return "", fmt.Errorf("%w: price market order: %v", domain.ErrExchangeRejected, err)
		}
		crossed, ok := crossingPrice(book, o.Intent.Action, o.Intent.Side)
		if !ok {
			return "", fmt.Errorf("%w: no book to price market order for %s",
				domain.ErrExchangeRejected, o.Intent.Ticker)
		}
		price = crossed
	}

	p.mu.Lock()
	p.seq++
	id := fmt.Sprintf("paper-%d", p.seq)
	p.orders[id] = &paperOrder{fill: domain.Fill{
		TradeID: fmt.Sprintf("paper-trade-%d", p.seq),
		OrderID: id,
		Ticker:  o.Intent.Ticker,
		Action:  o.Intent.Action,
		Side:    o.Intent.Side,
		Price:   price,
		Count:   o.RequestedQty,
		TsUnixM: time.Now().UnixMicro(),
	}}
	p.mu.Unlock()

	slog.Info("paper fill",
		"order_id", id,
		"ticker", o.Intent.Ticker,
		"action", o.Intent.Action,
		"price", price,
		"count", o.RequestedQty)
	return id, nil
}

// CancelOrder suppresses the order's fill from future polls. Fills
// already delivered stand, matching a real cancel racing a fill.
func (p *PaperGateway) CancelOrder(ctx context.Context, exchangeID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	order, ok := p.orders[exchangeID]
	if !ok {
		return fmt.Errorf("%w: order %s", domain.ErrNotFound, exchangeID)
	}
	order.cancelled = true
	return nil
}

// Fills returns every live simulated fill, optionally filtered by
// ticker. Re-delivery on every call mirrors the real endpoint.
func (p *PaperGateway) Fills(ctx context.Context, ticker string) ([]domain.Fill, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []domain.Fill
	for _, o := range p.orders {
		if o.cancelled {
			continue
		}
		if ticker != "" && o.fill.Ticker != ticker {
			continue
		}
		out = append(out, o.fill)
	}
	return out, nil
}

// crossingPrice resolves the side price a marketable order would trade
// at against the resting book.
func crossingPrice(book domain.OrderBook, action domain.Action, side domain.Side) (int, bool) {
	if side == domain.SideYes {
		if action == domain.ActionBuy {
			return book.BestYesAsk()
		}
		return book.BestYesBid()
	}
	if action == domain.ActionBuy {
		// The no ask mirrors the resting yes bid.
		bid, ok := book.BestYesBid()
		if !ok {
			return 0, false
		}
		return 100 - bid, true
	}
	if len(book.No) == 0 {
		return 0, false
	}
	return book.No[0].Price, true
}
