// Package app wires configuration, storage, and the trading engine
// into a runnable bot.
package app

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aretelew/pm-bot/internal/domain"
	"github.com/aretelew/pm-bot/internal/engine"
	"github.com/aretelew/pm-bot/internal/execution"
	"github.com/aretelew/pm-bot/internal/infra"
	"github.com/aretelew/pm-bot/internal/infra/kalshi"
	"github.com/aretelew/pm-bot/internal/marketdata"
	"github.com/aretelew/pm-bot/internal/storage"
	"github.com/aretelew/pm-bot/internal/strategy"
)

// Bootstrap orchestrates the application startup sequence.
type Bootstrap struct {
	Config  *infra.Config
	Store   *storage.Store
	Limiter *infra.RateLimiter
	Signer  *kalshi.Signer
}

// NewBootstrap creates a new Bootstrap instance.
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize performs core system initialization: config, logger,
// store, credentials.
func (b *Bootstrap) Initialize(configPath string) error {
	slog.Info("🚀 Bootstrapping pm-bot...")

	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	b.Config = cfg

	slog.SetDefault(infra.NewLogger(cfg.Logging.Level))

	store, err := storage.NewStore(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	b.Store = store
	slog.Info("✅ Store initialized (WAL-mode)", "path", cfg.Storage.Path)

	b.Limiter = infra.NewRateLimiter(cfg.API.RateLimit.Burst, cfg.API.RateLimit.PerSecond)

	mode := strings.ToLower(cfg.Trading.Mode)
	if cfg.API.KeyID != "" && cfg.API.PrivateKeyPath != "" {
		signer, err := kalshi.NewSigner(cfg.API.KeyID, cfg.API.PrivateKeyPath)
		if err != nil {
			return fmt.Errorf("load signing key: %w", err)
		}
		b.Signer = signer
		slog.Info("✅ API credentials loaded", "key_id", cfg.API.KeyID, "mode", mode)
	} else if mode == "live" {
		return fmt.Errorf("live mode requires api key_id and private_key_path")
	} else {
		slog.Warn("no API credentials configured, read-only paper mode")
	}

	return nil
}

// BuildBot assembles the full trading engine from the initialized
// components.
func (b *Bootstrap) BuildBot() (*engine.Bot, error) {
	cfg := b.Config

	maxDailyLoss, err := decimal.NewFromString(cfg.Risk.MaxDailyLoss)
	if err != nil {
		return nil, fmt.Errorf("invalid max_daily_loss %q: %w", cfg.Risk.MaxDailyLoss, err)
	}

	strategies, err := strategy.New(cfg.Trading.Strategies)
	if err != nil {
		return nil, err
	}

	retryBackoff := infra.Backoff{
		Base:   time.Duration(cfg.API.Retry.BaseDelayMS) * time.Millisecond,
		Max:    time.Duration(cfg.API.Retry.MaxDelayMS) * time.Millisecond,
		Factor: 2.0,
		Jitter: 0.2,
	}
	client := kalshi.NewClient(cfg.API.BaseURL, b.Signer, b.Limiter,
		kalshi.WithBackoff(retryBackoff),
		kalshi.WithMaxAttempts(cfg.API.Retry.MaxAttempts))

	// Paper mode reads real market data but keeps orders in-process.
	var gw engine.Gateway = client
	if strings.ToLower(cfg.Trading.Mode) != "live" {
		gw = execution.NewPaperGateway(client)
		slog.Info("📝 Paper trading mode, orders stay local")
	}

	hub := marketdata.NewHub()
	risk := engine.NewRiskController(engine.RiskLimits{
		MaxPositionPerMarket: cfg.Risk.MaxPositionPerMarket,
		MaxTotalExposure:     cfg.Risk.MaxTotalExposure,
		MaxDailyLoss:         maxDailyLoss,
	})
	orders := engine.NewOrderManager(gw, b.Store)
	scanner := engine.NewScanner(gw, hub, b.Store, engine.ScannerConfig{
		Interval:  time.Duration(cfg.Scanner.IntervalSec) * time.Second,
		MinVolume: cfg.Scanner.MinVolume,
		MaxSpread: cfg.Scanner.MaxSpread,
		WatchSize: cfg.Scanner.WatchSize,
	})

	reconnectBackoff := infra.Backoff{
		Base:   time.Duration(cfg.API.Reconnect.BaseDelayMS) * time.Millisecond,
		Max:    time.Duration(cfg.API.Reconnect.MaxDelayMS) * time.Millisecond,
		Factor: 2.0,
		Jitter: 0.2,
	}
	// Streamed updates merge into the hub. The bot wires the resync
	// callback itself so gap recovery is tied to its run context.
	stream := kalshi.NewStreamWorker(
		cfg.API.WSURL, b.Signer, b.Limiter, reconnectBackoff,
		[]string{"ticker"}, nil,
		func(m domain.Market) { hub.ApplyStreamed(m) },
		nil,
	)

	bot := engine.NewBot(engine.BotDeps{
		Gateway:    gw,
		Stream:     stream,
		Hub:        hub,
		Store:      b.Store,
		Scanner:    scanner,
		Risk:       risk,
		Orders:     orders,
		Strategies: strategies,
		Runner: engine.RunnerConfig{
			StrategyTimeout: time.Duration(cfg.Runner.StrategyTimeoutMS) * time.Millisecond,
			MinTick:         time.Duration(cfg.Runner.MinTickMS) * time.Millisecond,
		},
	})
	return bot, nil
}

// Close releases held resources.
func (b *Bootstrap) Close() {
	if b.Store != nil {
		b.Store.Close()
	}
}
