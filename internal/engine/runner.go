package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/aretelew/pm-bot/internal/domain"
	"github.com/aretelew/pm-bot/internal/marketdata"
	"github.com/aretelew/pm-bot/internal/storage"
	"github.com/aretelew/pm-bot/internal/strategy"
)

// RunnerConfig tunes the strategy evaluation loop.
type RunnerConfig struct {
	StrategyTimeout time.Duration
	MinTick         time.Duration
	BookDepth       int
}

// StrategyRunner drives strategies off hub updates: it throttles
// per-ticker evaluation, fetches the book once per cycle, collects
// intents, and pushes approved ones through risk to the order manager.
type StrategyRunner struct {
	hub        *marketdata.Hub
	scanner    *Scanner
	gw         Gateway
	risk       *RiskController
	orders     *OrderManager
	store      *storage.Store // nil-tolerated
	strategies []strategy.Strategy
	cfg        RunnerConfig

	mu       sync.Mutex
	lastEval map[string]time.Time
}

// NewStrategyRunner wires the evaluation loop. store may be nil.
func NewStrategyRunner(
	hub *marketdata.Hub,
	scanner *Scanner,
	gw Gateway,
	risk *RiskController,
	orders *OrderManager,
	store *storage.Store,
	strategies []strategy.Strategy,
	cfg RunnerConfig,
) *StrategyRunner {
	if cfg.StrategyTimeout <= 0 {
		cfg.StrategyTimeout = 2 * time.Second
	}
	if cfg.MinTick <= 0 {
		cfg.MinTick = 5 * time.Second
	}
	if cfg.BookDepth <= 0 {
		cfg.BookDepth = 10
	}
	return &StrategyRunner{
		hub:        hub,
		scanner:    scanner,
		gw:         gw,
		risk:       risk,
		orders:     orders,
		store:      store,
		strategies: strategies,
		cfg:        cfg,
		lastEval:   make(map[string]time.Time),
	}
}

// Run consumes hub updates until ctx ends. Each accepted update may
// trigger one evaluation cycle for its ticker, rate-limited by MinTick.
func (r *StrategyRunner) Run(ctx context.Context) {
	updates := r.hub.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-updates:
			r.evaluate(ctx, snap)
		}
	}
}

func (r *StrategyRunner) evaluate(ctx context.Context, snap marketdata.Snapshot) {
	m := snap.Market
	if r.scanner != nil && !r.scanner.Watching(m.Ticker) {
		return
	}

	r.mu.Lock()
	if last, ok := r.lastEval[m.Ticker]; ok && time.Since(last) < r.cfg.MinTick {
		r.mu.Unlock()
		return
	}
	r.lastEval[m.Ticker] = time.Now()
	r.mu.Unlock()

	interested := make([]strategy.Strategy, 0, len(r.strategies))
	for _, st := range r.strategies {
		if st.ShouldTrade(m) {
			interested = append(interested, st)
		}
	}
	if len(interested) == 0 {
		return
	}

	book := m.Book
	if len(book.Yes) == 0 && len(book.No) == 0 {
		fetched, err := r.gw.Orderbook(ctx, m.Ticker, r.cfg.BookDepth)
		if err != nil {
			slog.Debug("orderbook fetch failed", "ticker", m.Ticker, "err", err)
		} else {
			book = fetched
			r.persistBook(ctx, m.Ticker, book, m.UpdatedUnixM)
		}
	}

	for _, st := range interested {
		intents, ok := r.invoke(st, m, book)
		if !ok {
			continue
		}
		for _, intent := range intents {
			r.dispatch(ctx, intent)
		}
	}
}

// invoke runs one strategy with a hard timeout. A strategy that blows
// its budget is skipped for this cycle; its late result is discarded.
func (r *StrategyRunner) invoke(st strategy.Strategy, m domain.Market, book domain.OrderBook) ([]domain.Intent, bool) {
	done := make(chan []domain.Intent, 1)
	go func() {
		done <- st.OnMarketData(m, book)
	}()

	select {
	case intents := <-done:
		return intents, true
	case <-time.After(r.cfg.StrategyTimeout):
		slog.Warn("strategy timed out, skipping cycle",
			"strategy", st.Name(), "ticker", m.Ticker, "timeout", r.cfg.StrategyTimeout)
		return nil, false
	}
}

func (r *StrategyRunner) dispatch(ctx context.Context, intent domain.Intent) {
	err := r.risk.Evaluate(intent)
	r.logSignal(ctx, intent, err == nil)
	if err != nil {
		var veto *domain.VetoError
		switch {
		case errors.Is(err, domain.ErrKillSwitchTripped):
			slog.Warn("intent blocked, kill switch active",
				"strategy", intent.Strategy, "ticker", intent.Ticker)
		case errors.As(err, &veto):
			slog.Info("intent vetoed",
				"strategy", intent.Strategy, "ticker", intent.Ticker, "reason", veto.Reason)
		default:
			slog.Warn("risk evaluation failed",
				"strategy", intent.Strategy, "ticker", intent.Ticker, "err", err)
		}
		return
	}

	if _, err := r.orders.Submit(ctx, intent); err != nil {
		slog.Warn("order submission failed",
			"strategy", intent.Strategy, "ticker", intent.Ticker, "err", err)
	}
}

// persistBook records the book keyed to the snapshot timestamp, so
// replays see the same book the strategies saw.
func (r *StrategyRunner) persistBook(ctx context.Context, ticker string, book domain.OrderBook, ts int64) {
	if r.store == nil {
		return
	}
	if err := r.store.SaveOrderbook(ctx, ticker, book, ts); err != nil {
		slog.Warn("failed to save orderbook", "ticker", ticker, "err", err)
	}
}

func (r *StrategyRunner) logSignal(ctx context.Context, intent domain.Intent, executed bool) {
	if r.store == nil {
		return
	}
	if err := r.store.LogSignal(ctx, intent, executed); err != nil {
		slog.Warn("failed to log signal", "strategy", intent.Strategy, "err", err)
	}
}
