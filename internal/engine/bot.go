package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aretelew/pm-bot/internal/domain"
	"github.com/aretelew/pm-bot/internal/infra/kalshi"
	"github.com/aretelew/pm-bot/internal/marketdata"
	"github.com/aretelew/pm-bot/internal/storage"
	"github.com/aretelew/pm-bot/internal/strategy"
)

// shutdownTimeout bounds the cancel-all sweep during Stop so shutdown
// cannot hang on a dead exchange.
const shutdownTimeout = 10 * time.Second

// fillPollInterval is how often resting fills are reconciled through
// the REST path, independent of the stream.
const fillPollInterval = 15 * time.Second

// Bot owns every component's lifecycle: it wires the gateway, hub,
// scanner, runner, risk controller, and order manager together, starts
// them in dependency order, and tears them down exactly once.
type Bot struct {
	gw      Gateway
	stream  *kalshi.StreamWorker
	hub     *marketdata.Hub
	store   *storage.Store
	scanner *Scanner
	runner  *StrategyRunner
	risk    *RiskController
	orders  *OrderManager

	runCtx   context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
	done     chan struct{}
}

// BotDeps carries the pre-built components Bot orchestrates. stream
// and store may be nil (backtests and paper setups without streaming).
type BotDeps struct {
	Gateway    Gateway
	Stream     *kalshi.StreamWorker
	Hub        *marketdata.Hub
	Store      *storage.Store
	Scanner    *Scanner
	Risk       *RiskController
	Orders     *OrderManager
	Strategies []strategy.Strategy
	Runner     RunnerConfig
}

// NewBot assembles the orchestrator and cross-wires the callbacks.
func NewBot(deps BotDeps) *Bot {
	b := &Bot{
		gw:      deps.Gateway,
		stream:  deps.Stream,
		hub:     deps.Hub,
		store:   deps.Store,
		scanner: deps.Scanner,
		risk:    deps.Risk,
		orders:  deps.Orders,
		done:    make(chan struct{}),
	}
	b.runner = NewStrategyRunner(
		deps.Hub, deps.Scanner, deps.Gateway, deps.Risk, deps.Orders, deps.Store,
		deps.Strategies, deps.Runner)

	// Confirmed fills flow order manager -> risk; a tripped kill switch
	// halts the whole bot, which cancels all resting orders on the way
	// down. CancelAll runs exactly once because Stop is once-only.
	deps.Orders.SetOnFill(func(f domain.Fill) {
		deps.Risk.HandleFill(f)
		for _, st := range deps.Strategies {
			if mm, ok := st.(*strategy.MarketMaker); ok {
				delta := f.Count
				if f.Action == domain.ActionSell {
					delta = -delta
				}
				mm.UpdateInventory(f.Ticker, delta)
			}
		}
	})
	deps.Risk.SetOnTrip(func(reason string) {
		go b.Stop(reason)
	})

	// Arbitrage compares markets within one event, so it needs the
	// whole watch set, not just single updates.
	for _, st := range deps.Strategies {
		if arb, ok := st.(*strategy.Arbitrage); ok {
			deps.Scanner.SetOnScan(arb.RegisterMarkets)
		}
	}
	return b
}

// Start launches all component loops. It returns immediately; use Wait
// to block until shutdown.
func (b *Bot) Start(ctx context.Context) {
	ctx, b.cancel = context.WithCancel(ctx)
	b.runCtx = ctx

	if b.stream != nil {
		// Gap recovery runs under the bot's context, so shutdown halts
		// it before any new exchange calls go out.
		b.stream.SetOnResync(func() { go b.resync() })
		b.stream.Start(ctx)
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.scanner.Run(ctx)
	}()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.runner.Run(ctx)
	}()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.pollFills(ctx)
	}()

	slog.Info("bot started")
}

// resync bridges a stream gap with an immediate polled refresh.
func (b *Bot) resync() {
	slog.Info("stream gap, refreshing via poll")
	if err := b.scanner.Scan(b.runCtx); err != nil {
		slog.Warn("resync scan failed", "err", err)
	}
}

// pollFills reconciles fills through REST so executions are never lost
// to a stream gap. The order manager dedups by trade id.
func (b *Bot) pollFills(ctx context.Context) {
	ticker := time.NewTicker(fillPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fills, err := b.gw.Fills(ctx, "")
			if err != nil {
				slog.Warn("fill poll failed", "err", err)
				continue
			}
			for _, f := range fills {
				b.orders.HandleFill(f)
			}
		}
	}
}

// Stop shuts the bot down: stops inbound flows, cancels every resting
// order under a bounded deadline, and releases Wait. Idempotent; the
// first caller's reason wins.
func (b *Bot) Stop(reason string) {
	b.stopOnce.Do(func() {
		slog.Info("bot stopping", "reason", reason)

		if b.cancel != nil {
			b.cancel()
		}
		if b.stream != nil {
			b.stream.Stop()
		}

		// The run context is already cancelled; the sweep needs its own.
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		b.orders.CancelAll(ctx)

		if failures := b.orders.CancelFailures(); len(failures) > 0 {
			for id, why := range failures {
				slog.Error("order not confirmed cancelled", "client_id", id, "reason", why)
			}
		}

		b.wg.Wait()
		slog.Info("bot stopped",
			"realized_pnl", b.risk.RealizedPnL().StringFixed(2),
			"kill_switch", b.risk.KillSwitchActive())
		close(b.done)
	})
}

// Wait blocks until the bot has fully stopped.
func (b *Bot) Wait() {
	<-b.done
}

// KillSwitchActive reports the risk controller's kill switch state.
func (b *Bot) KillSwitchActive() bool {
	return b.risk.KillSwitchActive()
}

// ResetRisk explicitly starts a new trading session.
func (b *Bot) ResetRisk() {
	b.risk.Reset()
}

// OpenOrders exposes the current resting orders.
func (b *Bot) OpenOrders() []domain.Order {
	return b.orders.OpenOrders()
}
