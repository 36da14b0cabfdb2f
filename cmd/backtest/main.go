package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/aretelew/pm-bot/backtest"
	"github.com/aretelew/pm-bot/internal/engine"
	"github.com/aretelew/pm-bot/internal/storage"
	"github.com/aretelew/pm-bot/internal/strategy"
)

func main() {
	dbPath := flag.String("db", "pm_bot.db", "path to the recorded market database")
	ticker := flag.String("ticker", "", "replay a single ticker (default: all)")
	names := flag.String("strategies", "naive_value", "comma-separated strategy names")
	maxLoss := flag.String("max-daily-loss", "500", "loss limit in dollars")
	flag.Parse()

	store, err := storage.NewStore(*dbPath)
	if err != nil {
		slog.Error("❌ Failed to open store", slog.Any("error", err))
		os.Exit(1)
	}
	defer store.Close()

	strategies, err := strategy.New(strings.Split(*names, ","))
	if err != nil {
		slog.Error("❌ Unknown strategy", slog.Any("error", err))
		os.Exit(1)
	}

	loss, err := decimal.NewFromString(*maxLoss)
	if err != nil {
		slog.Error("❌ Invalid loss limit", slog.Any("error", err))
		os.Exit(1)
	}

	eng := backtest.NewEngine(store, strategies, engine.RiskLimits{
		MaxPositionPerMarket: 100,
		MaxTotalExposure:     10_000,
		MaxDailyLoss:         loss,
	})

	result, err := eng.Run(context.Background(), *ticker)
	if err != nil {
		slog.Error("❌ Backtest failed", slog.Any("error", err))
		os.Exit(1)
	}

	fmt.Print(result.Report())
}
