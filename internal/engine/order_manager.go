package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/aretelew/pm-bot/internal/domain"
	"github.com/aretelew/pm-bot/internal/storage"
)

// OrderManager maps approved intents to exchange orders, tracks the
// order lifecycle, and reconciles gateway acknowledgements and fills.
type OrderManager struct {
	mu             sync.Mutex
	gw             Gateway
	store          *storage.Store // nil-tolerated
	byClient       map[string]*domain.Order
	byExchange     map[string]*domain.Order
	seenTrades     map[string]struct{}
	cancelFailures map[string]string // client id -> failure reason
	onFill         func(domain.Fill)
}

// NewOrderManager creates an order manager. store may be nil.
func NewOrderManager(gw Gateway, store *storage.Store) *OrderManager {
	return &OrderManager{
		gw:             gw,
		store:          store,
		byClient:       make(map[string]*domain.Order),
		byExchange:     make(map[string]*domain.Order),
		seenTrades:     make(map[string]struct{}),
		cancelFailures: make(map[string]string),
	}
}

// SetOnFill registers the fill callback (risk controller).
func (om *OrderManager) SetOnFill(f func(domain.Fill)) {
	om.mu.Lock()
	om.onFill = f
	om.mu.Unlock()
}

// Submit converts an intent to an exchange order. Submission is
// idempotent per intent token: resubmitting after an ambiguous network
// failure re-sends the same client order id, which the exchange
// deduplicates, so two resting orders can never result. A definitive
// exchange rejection moves the order to Rejected and is never retried.
func (om *OrderManager) Submit(ctx context.Context, intent domain.Intent) (*domain.Order, error) {
	if intent.Token == "" {
		intent.Token = uuid.NewString()
	}

	om.mu.Lock()
	if existing, ok := om.byClient[intent.Token]; ok {
		// Only an ambiguous earlier submit (sent, no ack) is re-sent.
		if !(existing.State == domain.OrderSubmitted && existing.ExchangeID == "") {
			om.mu.Unlock()
			return existing, nil
		}
		om.mu.Unlock()
		return om.send(ctx, existing)
	}

	now := time.Now().UnixMicro()
	order := &domain.Order{
		ClientID:     intent.Token,
		Intent:       intent,
		State:        domain.OrderPending,
		RequestedQty: intent.Quantity,
		AvgFillPrice: decimal.Zero,
		CreatedUnixM: now,
		UpdatedUnixM: now,
	}
	om.byClient[intent.Token] = order
	om.mu.Unlock()

	om.logTransition(order)
	return om.send(ctx, order)
}

func (om *OrderManager) send(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	om.transition(order, domain.OrderSubmitted)

	exchangeID, err := om.gw.CreateOrder(ctx, order)
	if err != nil {
		if errors.Is(err, domain.ErrExchangeRejected) {
			om.mu.Lock()
			order.RejectReason = err.Error()
			om.mu.Unlock()
			om.transition(order, domain.OrderRejected)
			slog.Warn("order rejected",
				"client_id", order.ClientID,
				"ticker", order.Intent.Ticker,
				"reason", err.Error())
			return order, err
		}
		// Ambiguous: the order stays Submitted and may be re-sent with
		// the same token.
		slog.Warn("order submit failed, may retry",
			"client_id", order.ClientID,
			"ticker", order.Intent.Ticker,
			"err", err)
		return order, err
	}

	om.mu.Lock()
	order.ExchangeID = exchangeID
	om.byExchange[exchangeID] = order
	om.mu.Unlock()
	om.transition(order, domain.OrderOpen)

	slog.Info("order placed",
		"client_id", order.ClientID,
		"exchange_id", exchangeID,
		"ticker", order.Intent.Ticker,
		"action", order.Intent.Action,
		"price", order.Intent.Price,
		"count", order.RequestedQty,
		"strategy", order.Intent.Strategy)
	return order, nil
}

// HandleFill reconciles a confirmed fill into the owning order and
// forwards it to the fill callback. Delivery upstream is at-least-once
// (the fill poll re-reads recent fills every cycle), so each trade id
// is applied exactly once; unknown order ids are logged and dropped.
func (om *OrderManager) HandleFill(fill domain.Fill) {
	om.mu.Lock()
	if fill.TradeID != "" {
		if _, seen := om.seenTrades[fill.TradeID]; seen {
			om.mu.Unlock()
			return
		}
	}
	order, ok := om.byExchange[fill.OrderID]
	if !ok {
		// Not marked seen: the fill is retried once the order is known.
		om.mu.Unlock()
		slog.Debug("fill for unknown order", "order_id", fill.OrderID)
		return
	}
	if order.State.IsTerminal() {
		om.mu.Unlock()
		return
	}
	if fill.TradeID != "" {
		om.seenTrades[fill.TradeID] = struct{}{}
	}

	prevQty := decimal.NewFromInt(int64(order.FilledQty))
	fillQty := decimal.NewFromInt(int64(fill.Count))
	fillPrice := decimal.NewFromInt(int64(fill.Price)).Div(decimal.NewFromInt(100))
	newQty := prevQty.Add(fillQty)
	order.AvgFillPrice = order.AvgFillPrice.Mul(prevQty).Add(fillPrice.Mul(fillQty)).Div(newQty)
	order.FilledQty += fill.Count
	filled := order.FilledQty >= order.RequestedQty
	cb := om.onFill
	om.mu.Unlock()

	if filled {
		om.transition(order, domain.OrderFilled)
	} else {
		om.transition(order, domain.OrderPartiallyFilled)
	}

	slog.Info("fill",
		"order_id", fill.OrderID,
		"ticker", fill.Ticker,
		"price", fill.Price,
		"count", fill.Count,
		"filled", order.FilledQty,
		"requested", order.RequestedQty)

	if cb != nil {
		cb(fill)
	}
}

// Cancel cancels one order by client id.
func (om *OrderManager) Cancel(ctx context.Context, clientID string) error {
	om.mu.Lock()
	order, ok := om.byClient[clientID]
	om.mu.Unlock()
	if !ok {
		return fmt.Errorf("order %s: %w", clientID, domain.ErrNotFound)
	}
	return om.cancelOrder(ctx, order)
}

func (om *OrderManager) cancelOrder(ctx context.Context, order *domain.Order) error {
	om.mu.Lock()
	state := order.State
	exchangeID := order.ExchangeID
	om.mu.Unlock()

	switch {
	case state.IsTerminal():
		return nil
	case state == domain.OrderPending:
		// Never sent; cancel locally.
		om.transition(order, domain.OrderCancelled)
		return nil
	case exchangeID == "":
		// Sent but never acknowledged: we cannot address it on the
		// exchange. Record the failure rather than losing it.
		om.recordCancelFailure(order, "submitted without acknowledgement")
		return fmt.Errorf("order %s has no exchange id", order.ClientID)
	}

	if err := om.gw.CancelOrder(ctx, exchangeID); err != nil {
		om.recordCancelFailure(order, err.Error())
		return err
	}
	om.transition(order, domain.OrderCancelled)
	slog.Info("order cancelled", "client_id", order.ClientID, "exchange_id", exchangeID)
	return nil
}

// CancelAll cancels every non-terminal order, tolerating individual
// failures. Both graceful shutdown and the kill switch call this.
// After it returns, every order that was resting at call time is
// terminal or has a recorded cancel failure.
func (om *OrderManager) CancelAll(ctx context.Context) int {
	om.mu.Lock()
	pending := make([]*domain.Order, 0, len(om.byClient))
	for _, o := range om.byClient {
		if !o.State.IsTerminal() {
			pending = append(pending, o)
		}
	}
	om.mu.Unlock()

	cancelled := 0
	for _, o := range pending {
		if err := om.cancelOrder(ctx, o); err != nil {
			slog.Warn("cancel failed", "client_id", o.ClientID, "err", err)
			continue
		}
		cancelled++
	}
	slog.Info("cancel all complete", "cancelled", cancelled, "failed", len(pending)-cancelled)
	return cancelled
}

// Get returns the order for a client id.
func (om *OrderManager) Get(clientID string) (*domain.Order, bool) {
	om.mu.Lock()
	defer om.mu.Unlock()
	o, ok := om.byClient[clientID]
	return o, ok
}

// OpenOrders returns a snapshot of all non-terminal orders.
func (om *OrderManager) OpenOrders() []domain.Order {
	om.mu.Lock()
	defer om.mu.Unlock()

	out := make([]domain.Order, 0)
	for _, o := range om.byClient {
		if !o.State.IsTerminal() {
			out = append(out, *o)
		}
	}
	return out
}

// CancelFailures returns the recorded outstanding cancel failures.
func (om *OrderManager) CancelFailures() map[string]string {
	om.mu.Lock()
	defer om.mu.Unlock()

	out := make(map[string]string, len(om.cancelFailures))
	for k, v := range om.cancelFailures {
		out[k] = v
	}
	return out
}

func (om *OrderManager) recordCancelFailure(order *domain.Order, reason string) {
	om.mu.Lock()
	om.cancelFailures[order.ClientID] = reason
	om.mu.Unlock()
}

func (om *OrderManager) transition(order *domain.Order, next domain.OrderState) {
	om.mu.Lock()
	if !order.State.CanTransition(next) {
		om.mu.Unlock()
		slog.Error("illegal order transition",
			"client_id", order.ClientID,
			"from", order.State,
			"to", next)
		return
	}
	order.State = next
	order.UpdatedUnixM = time.Now().UnixMicro()
	om.mu.Unlock()
	om.logTransition(order)
}

func (om *OrderManager) logTransition(order *domain.Order) {
	if om.store == nil {
		return
	}
	if err := om.store.LogOrder(context.Background(), order); err != nil {
		slog.Warn("failed to log order transition", "client_id", order.ClientID, "err", err)
	}
}
