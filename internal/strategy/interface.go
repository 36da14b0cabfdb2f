// Package strategy holds the trading-logic plug-ins. Strategies are a
// fixed capability interface selected at startup from configuration;
// the engine enforces a per-call timeout so a misbehaving strategy is
// skipped for the cycle rather than stalling the loop.
package strategy

import (
	"fmt"

	"github.com/aretelew/pm-bot/internal/domain"
)

// Strategy defines the contract every trading strategy honors.
type Strategy interface {
	// Name identifies the strategy in logs, intents, and storage.
	Name() string

	// ShouldTrade reports whether the strategy wants this market at
	// all. Cheap pre-filter; saves orderbook fetches.
	ShouldTrade(m domain.Market) bool

	// OnMarketData evaluates one market snapshot and returns zero or
	// more trade intents. Must not block unboundedly; the runner
	// enforces a timeout.
	OnMarketData(m domain.Market, book domain.OrderBook) []domain.Intent
}

// Factory builds a strategy with its default parameters.
type Factory func() Strategy

var registry = map[string]Factory{}

// Register adds a strategy factory under name. Called from init.
func Register(name string, f Factory) {
	registry[name] = f
}

// New instantiates the named strategies. Unknown names are an error so
// a config typo fails at startup, not silently.
func New(names []string) ([]Strategy, error) {
	out := make([]Strategy, 0, len(names))
	for _, name := range names {
		f, ok := registry[name]
		if !ok {
			return nil, fmt.Errorf("unknown strategy %q (available: %v)", name, Names())
		}
		out = append(out, f())
	}
	return out, nil
}

// Names lists the registered strategy names.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	return names
}
