package engine

import (
	"context"

	"github.com/aretelew/pm-bot/internal/domain"
)

// Gateway is the exchange surface the engine consumes. Satisfied by
// *kalshi.Client; tests substitute fakes.
type Gateway interface {
	// ListMarkets fetches one page of open markets plus the next cursor.
	ListMarkets(ctx context.Context, cursor string) ([]domain.Market, string, error)

	// Orderbook fetches the book for a ticker, best level first.
	Orderbook(ctx context.Context, ticker string, depth int) (domain.OrderBook, error)

	// CreateOrder submits an order and returns the exchange order id.
	// The order's ClientID is the idempotency token.
	CreateOrder(ctx context.Context, o *domain.Order) (string, error)

	// CancelOrder cancels a resting order by exchange id.
	CancelOrder(ctx context.Context, exchangeID string) error

	// Fills fetches recent fills, optionally filtered by ticker.
	Fills(ctx context.Context, ticker string) ([]domain.Fill, error)
}
