package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/aretelew/pm-bot/internal/domain"
	"github.com/aretelew/pm-bot/internal/marketdata"
	"github.com/aretelew/pm-bot/internal/storage"
)

// maxScanPages bounds cursor pagination so a misbehaving cursor can
// never loop the scanner forever.
const maxScanPages = 50

// ScannerConfig tunes discovery and watchlist selection.
type ScannerConfig struct {
	Interval  time.Duration
	MinVolume int
	MaxSpread int
	WatchSize int
}

// Scanner periodically sweeps the full market universe through the
// paginated list endpoint, feeds every snapshot into the hub, and
// maintains a scored watchlist of tradeable markets.
type Scanner struct {
	gw    Gateway
	hub   *marketdata.Hub
	store *storage.Store // nil-tolerated
	cfg   ScannerConfig

	mu        sync.Mutex
	watchlist []domain.Market
	onScan    func(watchlist []domain.Market)
}

// NewScanner creates a scanner. store may be nil.
func NewScanner(gw Gateway, hub *marketdata.Hub, store *storage.Store, cfg ScannerConfig) *Scanner {
	if cfg.WatchSize <= 0 {
		cfg.WatchSize = 50
	}
	return &Scanner{gw: gw, hub: hub, store: store, cfg: cfg}
}

// SetOnScan registers a callback invoked with the new watchlist after
// every completed scan.
func (s *Scanner) SetOnScan(f func(watchlist []domain.Market)) {
	s.mu.Lock()
	s.onScan = f
	s.mu.Unlock()
}

// Run seeds the hub from stored history, scans immediately, then on
// every interval tick until ctx ends. A failed scan is logged and
// skipped; the previous watchlist stands.
func (s *Scanner) Run(ctx context.Context) {
	s.seed(ctx)
	if err := s.Scan(ctx); err != nil {
		slog.Warn("initial scan failed", "err", err)
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Scan(ctx); err != nil {
				slog.Warn("scan failed, keeping previous watchlist", "err", err)
			}
		}
	}
}

// seed warms the hub with the last stored snapshot per ticker so
// strategies have context before the first live scan completes.
func (s *Scanner) seed(ctx context.Context) {
	if s.store == nil {
		return
	}
	history, err := s.store.MarketHistory(ctx, "")
	if err != nil {
		slog.Warn("seed from store failed", "err", err)
		return
	}
	seeded := 0
	for _, m := range history {
		// History is time-ordered; later rows replace earlier ones.
		if s.hub.ApplyPolled(m) {
			seeded++
		}
	}
	if seeded > 0 {
		slog.Info("hub seeded from store", "snapshots", seeded)
	}
}

// Scan walks every page of open markets, merges them into the hub, and
// rebuilds the watchlist.
func (s *Scanner) Scan(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()

	var all []domain.Market
	cursor := ""
	for page := 0; page < maxScanPages; page++ {
		markets, next, err := s.gw.ListMarkets(ctx, cursor)
		if err != nil {
			return fmt.Errorf("list markets (page %d): %w", page, err)
		}
		all = append(all, markets...)
		if next == "" {
			break
		}
		cursor = next
	}

	candidates := make([]domain.Market, 0, len(all))
	for _, m := range all {
		if !s.hub.ApplyPolled(m) {
			continue
		}
		s.persist(ctx, m)
		if s.tradeable(m) {
			candidates = append(candidates, m)
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		return s.score(candidates[i]) > s.score(candidates[j])
	})
	if len(candidates) > s.cfg.WatchSize {
		candidates = candidates[:s.cfg.WatchSize]
	}

	s.mu.Lock()
	s.watchlist = candidates
	onScan := s.onScan
	s.mu.Unlock()

	slog.Info("scan complete",
		"markets", len(all),
		"watchlist", len(candidates),
		"elapsed", time.Since(start).Round(time.Millisecond))

	if onScan != nil {
		onScan(candidates)
	}
	return nil
}

// tradeable filters out markets with no two-sided quotes, thin volume,
// or spreads too wide to cross profitably.
func (s *Scanner) tradeable(m domain.Market) bool {
	if !m.HasQuotes() {
		return false
	}
	if m.Volume < s.cfg.MinVolume {
		return false
	}
	if s.cfg.MaxSpread > 0 && m.YesAsk-m.YesBid > s.cfg.MaxSpread {
		return false
	}
	return true
}

// score ranks candidates: liquid, tight markets first, with a mild
// boost for near-term expiry where prices move most.
func (s *Scanner) score(m domain.Market) float64 {
	spread := m.YesAsk - m.YesBid
	score := float64(m.Volume) / float64(1+spread)

	if m.CloseUnixM > 0 {
		hoursLeft := float64(m.CloseUnixM-time.Now().UnixMicro()) / float64(time.Hour.Microseconds())
		if hoursLeft > 0 && hoursLeft < 24 {
			score *= 1.5
		}
	}
	return score
}

func (s *Scanner) persist(ctx context.Context, m domain.Market) {
	if s.store == nil {
		return
	}
	if err := s.store.SaveMarket(ctx, m); err != nil {
		slog.Warn("failed to save market", "ticker", m.Ticker, "err", err)
		return
	}
	if m.LastPrice > 0 {
		err := s.store.SavePrice(ctx, storage.PricePoint{
			Ticker:  m.Ticker,
			Price:   m.LastPrice,
			Volume:  m.Volume,
			Source:  string(m.Source),
			TsUnixM: m.UpdatedUnixM,
		})
		if err != nil {
			slog.Warn("failed to save price", "ticker", m.Ticker, "err", err)
		}
	}
}

// Watchlist returns a copy of the current watchlist.
func (s *Scanner) Watchlist() []domain.Market {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Market, len(s.watchlist))
	copy(out, s.watchlist)
	return out
}

// Watching reports whether ticker is on the current watchlist.
func (s *Scanner) Watching(ticker string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.watchlist {
		if m.Ticker == ticker {
			return true
		}
	}
	return false
}
