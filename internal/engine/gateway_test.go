package engine

import (
	"context"
	"sync"

	"github.com/aretelew/pm-bot/internal/domain"
)

// fakeGateway is a scriptable Gateway for engine tests.
type fakeGateway struct {
	mu sync.Mutex

	listPages [][]domain.Market
	listCalls int

	createFn     func(o *domain.Order) (string, error)
	createdCount int

	cancelFn  func(exchangeID string) error
	cancelled []string

	fills []domain.Fill

	books map[string]domain.OrderBook
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{books: make(map[string]domain.OrderBook)}
}

func (f *fakeGateway) ListMarkets(ctx context.Context, cursor string) ([]domain.Market, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listCalls >= len(f.listPages) {
		return nil, "", nil
	}
	page := f.listPages[f.listCalls]
	f.listCalls++
	next := ""
	if f.listCalls < len(f.listPages) {
		next = "more"
	}
	return page, next, nil
}

func (f *fakeGateway) Orderbook(ctx context.Context, ticker string, depth int) (domain.OrderBook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.books[ticker], nil
}

func (f *fakeGateway) CreateOrder(ctx context.Context, o *domain.Order) (string, error) {
	f.mu.Lock()
	fn := f.createFn
	f.createdCount++
	f.mu.Unlock()
	if fn != nil {
		return fn(o)
	}
	return "ex-" + o.ClientID, nil
}

func (f *fakeGateway) CancelOrder(ctx context.Context, exchangeID string) error {
	f.mu.Lock()
	fn := f.cancelFn
	f.mu.Unlock()
	if fn != nil {
		if err := fn(exchangeID); err != nil {
			return err
		}
	}
	f.mu.Lock()
	f.cancelled = append(f.cancelled, exchangeID)
	f.mu.Unlock()
	return nil
}

func (f *fakeGateway) Fills(ctx context.Context, ticker string) ([]domain.Fill, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fills, nil
}

func (f *fakeGateway) lists() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls
}

func (f *fakeGateway) creates() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.createdCount
}

func (f *fakeGateway) cancels() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.cancelled))
	copy(out, f.cancelled)
	return out
}
